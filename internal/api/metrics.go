package api

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chromevm_http_requests_total",
		Help: "HTTP requests handled, by route group and status code.",
	}, []string{"route", "code"})

	vmsProvisioned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chromevm_vms_provisioned_total",
		Help: "VMs provisioned, by strategy and descriptor source.",
	}, []string{"strategy", "source"})
)

// RegisterMetrics registers the collectors and the Prometheus handler in
// the provided mux.
func RegisterMetrics(mux *http.ServeMux) {
	prometheus.MustRegister(requestsTotal, vmsProvisioned)
	mux.Handle("/metrics", promhttp.Handler())
}

func httpCode(code int) string {
	return strconv.Itoa(code)
}
