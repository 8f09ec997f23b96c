package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devghori1264/chromevm-sim/internal/models"
)

var (
	// ErrNoUpstream means the record has no origin agent URL. A client
	// error, not a 404: the VM exists, it just has nothing to proxy to.
	ErrNoUpstream = errors.New("no upstream agent configured")
	// ErrUnknownAction is returned before any network call is attempted.
	ErrUnknownAction = errors.New("unknown agent action")
)

// actionPaths maps the enumerated control actions to upstream path
// suffixes on the per-VM agent.
var actionPaths = map[string]string{
	"browser/navigate": "/browser/navigate",
	"restart":          "/browser/restart",
	"status":           "/health",
	"execute":          "/run",
	"screenshot":       "/run",
}

// Response is the upstream reply passed through unchanged.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Proxy rewrites VM-scoped control actions into upstream HTTP calls
// against the record's origin agent base URL. No retry, no circuit
// breaking: a failed upstream call surfaces directly.
type Proxy struct {
	client *http.Client
	log    *zap.Logger
}

func New(log *zap.Logger) *Proxy {
	return &Proxy{
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

// Do forwards the action. Method and body pass through verbatim for
// non-GET/HEAD requests; incoming content-type framing is replaced with
// application/json. The upstream status and body come back unchanged,
// content-type defaulting to JSON when the upstream omits one.
func (p *Proxy) Do(ctx context.Context, vm *models.VM, action, method string, body io.Reader) (*Response, error) {
	suffix, ok := actionPaths[action]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if vm.OriginAgentURL == "" {
		return nil, ErrNoUpstream
	}

	target := strings.TrimSuffix(vm.OriginAgentURL, "/") + suffix
	if method == http.MethodGet || method == http.MethodHead {
		body = nil
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	p.log.Debug("proxying agent action",
		zap.String("vm_id", vm.ID),
		zap.String("action", action),
		zap.String("target", target))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	return &Response{StatusCode: resp.StatusCode, ContentType: ct, Body: b}, nil
}
