package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/devghori1264/chromevm-sim/internal/models"
)

func TestProxyActionPathMapping(t *testing.T) {
	tests := []struct {
		action string
		method string
		want   string
	}{
		{"status", http.MethodGet, "/health"},
		{"execute", http.MethodPost, "/run"},
		{"screenshot", http.MethodPost, "/run"},
		{"restart", http.MethodPost, "/browser/restart"},
		{"browser/navigate", http.MethodPost, "/browser/navigate"},
	}
	for _, tt := range tests {
		var gotPath, gotMethod string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotMethod = r.Method
			w.Write([]byte(`{"ok":true}`))
		}))

		p := New(zap.NewNop())
		vm := &models.VM{ID: "p1", OriginAgentURL: ts.URL}
		resp, err := p.Do(context.Background(), vm, tt.action, tt.method, strings.NewReader(`{}`))
		ts.Close()
		if err != nil {
			t.Fatalf("%s: %v", tt.action, err)
		}
		if gotPath != tt.want {
			t.Errorf("%s: upstream path = %q, want %q", tt.action, gotPath, tt.want)
		}
		if gotMethod != tt.method {
			t.Errorf("%s: upstream method = %q, want %q", tt.action, gotMethod, tt.method)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status = %d", tt.action, resp.StatusCode)
		}
	}
}

// recordingTransport flags any network attempt.
type recordingTransport struct {
	called bool
}

func (rt *recordingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	rt.called = true
	return nil, errors.New("network must not be touched")
}

func TestProxyNoUpstreamErrsBeforeNetwork(t *testing.T) {
	rt := &recordingTransport{}
	p := New(zap.NewNop())
	p.client = &http.Client{Transport: rt}

	_, err := p.Do(context.Background(), &models.VM{ID: "p2"}, "status", http.MethodGet, nil)
	if !errors.Is(err, ErrNoUpstream) {
		t.Fatalf("want ErrNoUpstream, got %v", err)
	}
	if rt.called {
		t.Error("proxy attempted a network call with no upstream configured")
	}
}

func TestProxyUnknownActionErrsBeforeNetwork(t *testing.T) {
	rt := &recordingTransport{}
	p := New(zap.NewNop())
	p.client = &http.Client{Transport: rt}

	vm := &models.VM{ID: "p3", OriginAgentURL: "http://u"}
	_, err := p.Do(context.Background(), vm, "format-disk", http.MethodPost, nil)
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("want ErrUnknownAction, got %v", err)
	}
	if rt.called {
		t.Error("proxy attempted a network call for an unknown action")
	}
}

func TestProxyForwardsBodyAndDefaultsContentType(t *testing.T) {
	var gotBody, gotCT string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotCT = r.Header.Get("Content-Type")
		// deliberately no content-type on the response; suppress the
		// net/http sniffer so the header is truly absent
		w.Header()["Content-Type"] = nil
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("raw"))
	}))
	defer ts.Close()

	p := New(zap.NewNop())
	vm := &models.VM{ID: "p4", OriginAgentURL: ts.URL + "/"}
	resp, err := p.Do(context.Background(), vm, "execute", http.MethodPost, strings.NewReader(`{"script":"1"}`))
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if gotBody != `{"script":"1"}` {
		t.Errorf("body not forwarded verbatim: %q", gotBody)
	}
	if gotCT != "application/json" {
		t.Errorf("content-type not replaced: %q", gotCT)
	}
	if resp.StatusCode != http.StatusAccepted || string(resp.Body) != "raw" {
		t.Errorf("upstream reply not passed through: %d %q", resp.StatusCode, resp.Body)
	}
	if resp.ContentType != "application/json" {
		t.Errorf("missing default content-type, got %q", resp.ContentType)
	}
}

func TestProxyDropsBodyForGet(t *testing.T) {
	var gotLen int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLen = r.ContentLength
		w.Write([]byte("{}"))
	}))
	defer ts.Close()

	p := New(zap.NewNop())
	vm := &models.VM{ID: "p5", OriginAgentURL: ts.URL}
	if _, err := p.Do(context.Background(), vm, "status", http.MethodGet, strings.NewReader("ignored")); err != nil {
		t.Fatalf("do: %v", err)
	}
	if gotLen > 0 {
		t.Errorf("GET forwarded a body of length %d", gotLen)
	}
}
