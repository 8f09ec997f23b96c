package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/devghori1264/chromevm-sim/internal/models"
	"github.com/devghori1264/chromevm-sim/internal/provision"
	"github.com/devghori1264/chromevm-sim/internal/proxy"
	"github.com/devghori1264/chromevm-sim/internal/server"
	"github.com/devghori1264/chromevm-sim/internal/storage"
)

type stubBackend struct {
	res *provision.Result
	err error
}

func (s stubBackend) Provision(context.Context, *models.VM) (*provision.Result, error) {
	return s.res, s.err
}

func newTestHandler(t *testing.T, edge, cloud provision.Backend) http.Handler {
	t.Helper()
	store := storage.NewMemoryStore()
	prov := provision.NewProvisioner(edge, cloud, zap.NewNop())
	srv := server.New(store, prov, nil, zap.NewNop())
	return NewHTTPHandler(srv, proxy.New(zap.NewNop()), zap.NewNop())
}

func fastEdge() provision.Backend {
	return &provision.EdgeBackend{Latency: time.Millisecond}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(bs)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func createVM(t *testing.T, h http.Handler, name string) string {
	t.Helper()
	w := doJSON(t, h, http.MethodPost, "/vms", map[string]string{"name": name})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", w.Code, w.Body.String())
	}
	var out struct {
		VMID string `json:"vmId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil || out.VMID == "" {
		t.Fatalf("create response: %s (%v)", w.Body.String(), err)
	}
	return out.VMID
}

func TestCreateGetDeleteFlow(t *testing.T) {
	h := newTestHandler(t, fastEdge(), fastEdge())

	id := createVM(t, h, "web")

	w := doJSON(t, h, http.MethodGet, "/vms/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}
	var vm models.VM
	if err := json.Unmarshal(w.Body.Bytes(), &vm); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if vm.Status != models.StatusReady {
		t.Errorf("status after create = %q", vm.Status)
	}

	w = doJSON(t, h, http.MethodGet, "/vms", nil)
	var list struct {
		Count int `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &list)
	if w.Code != http.StatusOK || list.Count != 1 {
		t.Errorf("list: %d count=%d", w.Code, list.Count)
	}

	w = doJSON(t, h, http.MethodDelete, "/vms/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: %d", w.Code)
	}
	w = doJSON(t, h, http.MethodGet, "/vms/"+id, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete: %d", w.Code)
	}
	w = doJSON(t, h, http.MethodGet, "/vms/working-vm-"+id, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get alias after delete: %d", w.Code)
	}
}

func TestCreateRequiresName(t *testing.T) {
	h := newTestHandler(t, fastEdge(), fastEdge())
	w := doJSON(t, h, http.MethodPost, "/vms", map[string]string{"server_id": "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing name: status %d", w.Code)
	}
}

func TestNoVNCNotShadowedByGenericRoute(t *testing.T) {
	h := newTestHandler(t, fastEdge(), fastEdge())
	id := createVM(t, h, "web")

	w := doJSON(t, h, http.MethodGet, "/vms/"+id+"/novnc", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("novnc: %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("novnc served as %q, the generic JSON route shadowed it", ct)
	}
	if !strings.Contains(w.Body.String(), "<canvas") {
		t.Errorf("novnc body is not the HTML page: %.100s", w.Body.String())
	}

	// the generic route still serves raw JSON
	w = doJSON(t, h, http.MethodGet, "/vms/"+id, nil)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("generic route content-type %q", ct)
	}
}

func TestLifecycleRoutes(t *testing.T) {
	// local upstream keeps the best-effort restart notifies off the network
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()
	origin := stubBackend{res: &provision.Result{
		ContainerID:    "c0",
		AgentURL:       upstream.URL,
		OriginAgentURL: upstream.URL,
		Source:         provision.SourceReal,
	}}
	h := newTestHandler(t, origin, origin)
	id := createVM(t, h, "web")

	for _, action := range []string{"stop", "start", "restart"} {
		w := doJSON(t, h, http.MethodPost, "/vms/"+id+"/"+action, nil)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status %d body %s", action, w.Code, w.Body.String())
		}
	}

	w := doJSON(t, h, http.MethodPost, "/vms/unknown/start", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("start unknown: %d", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/vms/"+id+"/status", nil)
	var status struct {
		Status models.Status `json:"status"`
	}
	json.Unmarshal(w.Body.Bytes(), &status)
	if w.Code != http.StatusOK || status.Status != models.StatusInitializing {
		t.Errorf("status after restart: %d %q", w.Code, status.Status)
	}

	w = doJSON(t, h, http.MethodGet, "/vms/"+id+"/events", nil)
	var events struct {
		Events []models.Event `json:"events"`
	}
	json.Unmarshal(w.Body.Bytes(), &events)
	if len(events.Events) < 4 {
		t.Errorf("expected create+stop+start+restart events, got %d", len(events.Events))
	}
}

func TestAgentActionProxies(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"healthy":true}`))
	}))
	defer upstream.Close()

	origin := stubBackend{res: &provision.Result{
		ContainerID:    "c1",
		AgentURL:       upstream.URL,
		OriginAgentURL: upstream.URL,
		Source:         provision.SourceReal,
	}}
	h := newTestHandler(t, fastEdge(), origin)

	w := doJSON(t, h, http.MethodPost, "/vms", map[string]string{"name": "web", "instanceType": "e2-standard-4"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d", w.Code)
	}
	var out struct {
		VMID string `json:"vmId"`
	}
	json.Unmarshal(w.Body.Bytes(), &out)

	w = doJSON(t, h, http.MethodGet, "/vms/"+out.VMID+"/agent/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("agent status: %d body %s", w.Code, w.Body.String())
	}
	if gotPath != "/health" {
		t.Errorf("status action hit %q, want /health", gotPath)
	}
	if !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("upstream body not passed through: %s", w.Body.String())
	}
}

func TestAgentActionErrors(t *testing.T) {
	// failing backends leave the record with no origin agent URL
	failing := stubBackend{err: errors.New("no capacity")}
	h := newTestHandler(t, failing, failing)

	id := "brokenvm"
	w := doJSON(t, h, http.MethodPost, "/vms", map[string]string{"name": "web", "vm_id": id})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/vms/"+id+"/agent/status", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("no upstream: status %d, want 400", w.Code)
	}

	h2 := newTestHandler(t, fastEdge(), fastEdge())
	id2 := createVM(t, h2, "web")
	w = doJSON(t, h2, http.MethodPost, "/vms/"+id2+"/agent/format-disk", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown action: status %d, want 400", w.Code)
	}
}

func TestAgentDescriptor(t *testing.T) {
	h := newTestHandler(t, fastEdge(), fastEdge())
	id := createVM(t, h, "web")

	w := doJSON(t, h, http.MethodGet, "/vms/"+id+"/agent", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("agent descriptor: %d", w.Code)
	}
	var desc struct {
		Actions []string `json:"actions"`
	}
	json.Unmarshal(w.Body.Bytes(), &desc)
	if len(desc.Actions) != 5 {
		t.Errorf("descriptor actions: %v", desc.Actions)
	}
}

func TestScriptsRoutes(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()
	origin := stubBackend{res: &provision.Result{
		ContainerID:    "c3",
		AgentURL:       upstream.URL,
		OriginAgentURL: upstream.URL,
		Source:         provision.SourceReal,
	}}
	h := newTestHandler(t, origin, origin)
	id := createVM(t, h, "web")

	w := doJSON(t, h, http.MethodPost, "/vms/"+id+"/scripts", map[string]string{"script": "document.title"})
	if w.Code != http.StatusCreated {
		t.Fatalf("post script: %d body %s", w.Code, w.Body.String())
	}
	w = doJSON(t, h, http.MethodGet, "/vms/"+id+"/scripts", nil)
	var scripts struct {
		Scripts []models.ScriptExecution `json:"scripts"`
	}
	json.Unmarshal(w.Body.Bytes(), &scripts)
	if len(scripts.Scripts) != 1 {
		t.Errorf("expected 1 script, got %d", len(scripts.Scripts))
	}

	w = doJSON(t, h, http.MethodGet, "/vms/"+id+"/metrics", nil)
	if w.Code != http.StatusOK {
		t.Errorf("metrics: %d", w.Code)
	}
}

func TestHealthServicesAndCORS(t *testing.T) {
	h := newTestHandler(t, fastEdge(), fastEdge())

	w := doJSON(t, h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("health: %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}

	w = doJSON(t, h, http.MethodGet, "/services", nil)
	var svc struct {
		Services []map[string]any `json:"services"`
	}
	json.Unmarshal(w.Body.Bytes(), &svc)
	if w.Code != http.StatusOK || len(svc.Services) != 2 {
		t.Errorf("services: %d %v", w.Code, svc.Services)
	}

	w = doJSON(t, h, http.MethodOptions, "/vms/anything/agent/status", nil)
	if w.Code != http.StatusOK {
		t.Errorf("OPTIONS should short-circuit with 200, got %d", w.Code)
	}
}

func TestUnknownRoutes(t *testing.T) {
	h := newTestHandler(t, fastEdge(), fastEdge())

	w := doJSON(t, h, http.MethodGet, "/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown path: %d", w.Code)
	}
	id := createVM(t, h, "web")
	w = doJSON(t, h, http.MethodGet, "/vms/"+id+"/bogus", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown sub-resource: %d", w.Code)
	}
	w = doJSON(t, h, http.MethodPatch, "/vms/"+id, nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("PATCH generic: %d", w.Code)
	}
}
