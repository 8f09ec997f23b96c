package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devghori1264/chromevm-sim/internal/models"
	"github.com/devghori1264/chromevm-sim/internal/provision"
	"github.com/devghori1264/chromevm-sim/internal/proxy"
	"github.com/devghori1264/chromevm-sim/internal/server"
	"github.com/devghori1264/chromevm-sim/internal/storage"
)

// Handler dispatches the flat /vms path space. The path space has no
// hierarchical router, so dispatch order is: health → collection routes →
// VM sub-resource suffixes → generic /vms/{id}. The generic route must be
// checked last or it shadows every suffix route.
type Handler struct {
	srv *server.Server
	px  *proxy.Proxy
	log *zap.Logger
}

func NewHTTPHandler(srv *server.Server, px *proxy.Proxy, log *zap.Logger) http.Handler {
	return &Handler{srv: srv, px: px, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error("panic in handler", zap.Any("panic", rec), zap.String("path", r.URL.Path))
			h.writeError(w, http.StatusInternalServerError, "internal error")
		}
	}()

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	path := r.URL.Path
	route := "other"
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	w = sw

	switch {
	case path == "/health":
		route = "health"
		h.handleHealth(w, r)
	case path == "/services":
		route = "services"
		h.handleServices(w, r)
	case path == "/vms" || path == "/vms/":
		route = "vms"
		h.handleCollection(w, r)
	case strings.HasPrefix(path, "/vms/"):
		route = "vm"
		h.dispatchVM(w, r, strings.TrimPrefix(path, "/vms/"))
	default:
		h.writeError(w, http.StatusNotFound, "not found")
	}
	requestsTotal.WithLabelValues(route, httpCode(sw.code)).Inc()
}

// dispatchVM routes everything under /vms/{id}. Suffix routes are matched
// before the generic {id} GET/DELETE; reordering these cases misroutes.
func (h *Handler) dispatchVM(w http.ResponseWriter, r *http.Request, rest string) {
	rest = strings.TrimSuffix(rest, "/")
	if i := strings.Index(rest, "/"); i >= 0 {
		id, sub := rest[:i], rest[i+1:]
		switch {
		case sub == "novnc":
			h.handleNoVNC(w, r, id)
		case sub == "agent":
			h.handleAgentDescriptor(w, r, id)
		case strings.HasPrefix(sub, "agent/"):
			h.handleAgentAction(w, r, id, strings.TrimPrefix(sub, "agent/"))
		case sub == "start" || sub == "restart" || sub == "stop":
			h.handleLifecycleAction(w, r, id, sub)
		case sub == "status":
			h.handleStatus(w, r, id)
		case sub == "scripts":
			h.handleScripts(w, r, id)
		case sub == "metrics":
			h.handleSamples(w, r, id)
		case sub == "events":
			h.handleEvents(w, r, id)
		default:
			h.writeError(w, http.StatusNotFound, "not found")
		}
		return
	}

	// generic /vms/{id}
	switch r.Method {
	case http.MethodGet:
		vm, err := h.srv.Get(r.Context(), rest)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, vm)
	case http.MethodDelete:
		if err := h.srv.Delete(r.Context(), rest); err != nil {
			h.writeDomainError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "vm deleted"})
	default:
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "chromevm-sim",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		vms, err := h.srv.List(r.Context())
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		if vms == nil {
			vms = []*models.VM{}
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"vms": vms, "count": len(vms)})
	case http.MethodPost:
		var req struct {
			Name         string `json:"name"`
			ServerID     string `json:"server_id"`
			InstanceType string `json:"instanceType"`
			VMID         string `json:"vm_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		vm, err := h.srv.Create(r.Context(), server.CreateRequest{
			Name:         req.Name,
			InstanceType: req.InstanceType,
			ServerID:     req.ServerID,
			VMID:         req.VMID,
		})
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		source := "real"
		if vm.Simulated {
			source = "simulated"
		}
		vmsProvisioned.WithLabelValues(vm.Provisioner, source).Inc()
		h.writeJSON(w, http.StatusCreated, map[string]any{"vmId": vm.ID, "status": vm.Status})
	default:
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleLifecycleAction(w http.ResponseWriter, r *http.Request, id, action string) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var err error
	switch action {
	case "start":
		_, err = h.srv.Start(r.Context(), id)
	case "restart":
		_, err = h.srv.Restart(r.Context(), id)
	case "stop":
		_, err = h.srv.Stop(r.Context(), id)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "vm " + action + " requested"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request, id string) {
	vm, err := h.srv.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"id": vm.ID, "status": vm.Status})
}

func (h *Handler) handleAgentDescriptor(w http.ResponseWriter, r *http.Request, id string) {
	vm, err := h.srv.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"id":               vm.ID,
		"status":           vm.Status,
		"agent_url":        vm.AgentURL,
		"origin_agent_url": vm.OriginAgentURL,
		"actions":          []string{"browser/navigate", "restart", "status", "execute", "screenshot"},
	})
}

func (h *Handler) handleAgentAction(w http.ResponseWriter, r *http.Request, id, action string) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	vm, err := h.srv.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	resp, err := h.px.Do(r.Context(), vm, action, r.Method, r.Body)
	if err != nil {
		switch {
		case errors.Is(err, proxy.ErrUnknownAction), errors.Is(err, proxy.ErrNoUpstream):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.writeError(w, http.StatusBadGateway, "upstream agent call failed: "+err.Error())
		}
		return
	}
	w.Header().Set("Content-Type", resp.ContentType)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func (h *Handler) handleScripts(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		scripts, err := h.srv.ListScripts(r.Context(), id)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		if scripts == nil {
			scripts = []*models.ScriptExecution{}
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"scripts": scripts})
	case http.MethodPost:
		var req struct {
			Script string `json:"script"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Script == "" {
			h.writeError(w, http.StatusBadRequest, "script required")
			return
		}
		se, err := h.srv.RecordScript(r.Context(), id, req.Script)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		h.writeJSON(w, http.StatusCreated, se)
	default:
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleSamples(w http.ResponseWriter, r *http.Request, id string) {
	samples, err := h.srv.ListSamples(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if samples == nil {
		samples = []*models.MetricSample{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"metrics": samples})
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request, id string) {
	events, err := h.srv.ListEvents(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if events == nil {
		events = []*models.Event{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleServices advertises the fixed strategy catalog.
func (h *Handler) handleServices(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"services": []map[string]any{
			{
				"name":        string(provision.StrategyEdge),
				"max_memory":  "4GB",
				"max_cpu":     "2 vCPU",
				"max_storage": "20GB",
				"regions":     []string{"local"},
			},
			{
				"name":        string(provision.StrategyCloudManaged),
				"server_id":   provision.CloudManagedServerID,
				"max_memory":  "16GB",
				"max_cpu":     "8 vCPU",
				"max_storage": "100GB",
				"regions":     []string{"us-central1", "europe-west1"},
			},
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
	h.log.Warn("request failed", zap.Int("status", status), zap.String("error", msg))
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "vm not found")
	case errors.Is(err, server.ErrNameRequired):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("internal error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// statusWriter captures the response code for the request counter.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (s *statusWriter) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}
