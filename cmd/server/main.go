package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/devghori1264/chromevm-sim/internal/api"
	"github.com/devghori1264/chromevm-sim/internal/natsclient"
	"github.com/devghori1264/chromevm-sim/internal/provision"
	"github.com/devghori1264/chromevm-sim/internal/proxy"
	"github.com/devghori1264/chromevm-sim/internal/server"
	"github.com/devghori1264/chromevm-sim/internal/storage"
)

func main() {
	httpAddr := flag.String("http-addr", ":8080", "HTTP listen address")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics listen address")
	dbPath := flag.String("db", "", "Badger DB path (empty: in-memory store)")
	natsURL := flag.String("nats", "", "NATS URL for lifecycle events (empty: disabled)")
	endpoint := flag.String("provision-endpoint", os.Getenv("PROVISION_ENDPOINT"), "external provisioning endpoint URL")
	gcpProject := flag.String("gcp-project", os.Getenv("GCP_PROJECT"), "GCP project id; empty means no cloud credentials")
	gcpZone := flag.String("gcp-zone", "us-central1-a", "GCP zone for simulated instances")
	traceOut := flag.Bool("trace", false, "emit otel spans to stdout")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if *traceOut {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			log.Fatal("trace exporter", zap.Error(err))
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		otel.SetTracerProvider(tp)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
	}

	var store storage.Store
	if *dbPath != "" {
		bs, err := storage.NewBadgerStore(*dbPath)
		if err != nil {
			log.Fatal("open badger store", zap.Error(err))
		}
		store = bs
	} else {
		store = storage.NewMemoryStore()
	}
	defer store.Close()

	var events *natsclient.Publisher
	if *natsURL != "" {
		events, err = natsclient.NewPublisher(*natsURL)
		if err != nil {
			log.Warn("nats unavailable, lifecycle events are store-only", zap.Error(err))
		} else {
			defer events.Close()
		}
	}

	edge := provision.NewEdgeBackend()
	cloud := provision.NewCloudBackend(provision.CloudConfig{
		Project:  *gcpProject,
		Zone:     *gcpZone,
		Endpoint: *endpoint,
	}, edge, log)
	prov := provision.NewProvisioner(edge, cloud, log)

	srv := server.New(store, prov, events, log)
	px := proxy.New(log)

	httpServer := &http.Server{
		Addr:    *httpAddr,
		Handler: api.NewHTTPHandler(srv, px, log),
	}
	go func() {
		log.Info("HTTP server listening", zap.String("addr", *httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http listen", zap.Error(err))
		}
	}()

	go func() {
		mux := http.NewServeMux()
		api.RegisterMetrics(mux)
		log.Info("Prometheus metrics listening", zap.String("addr", *metricsAddr))
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Fatal("metrics server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutdown initiated")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}
	log.Info("shutdown complete")
}
