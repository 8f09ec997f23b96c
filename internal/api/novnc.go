package api

import (
	"html/template"
	"net/http"
)

// noVNCTemplate renders whatever status and reachability fields are on the
// record. Purely presentational; the canvas stands in for a real remote
// framebuffer.
var noVNCTemplate = template.Must(template.New("novnc").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>{{.Name}} - Chrome VM</title>
  <style>
    body { font-family: monospace; background: #1e1e1e; color: #d4d4d4; margin: 2em; }
    .status { padding: 2px 8px; border-radius: 3px; background: #264f78; }
    canvas { border: 1px solid #3c3c3c; margin-top: 1em; display: block; }
    dt { color: #9cdcfe; }
  </style>
</head>
<body>
  <h1>{{.Name}}</h1>
  <p>Status: <span class="status">{{.Status}}</span></p>
  <dl>
    <dt>id</dt><dd>{{.ID}}</dd>
    <dt>container</dt><dd>{{.ContainerID}}</dd>
    <dt>agent</dt><dd>{{.AgentURL}}</dd>
    <dt>address</dt><dd>{{.PublicAddress}}</dd>
    <dt>chrome</dt><dd>{{.ChromeVersion}}</dd>
    <dt>resources</dt><dd>{{.Memory}} / {{.CPU}} / {{.Storage}}</dd>
    {{if .Error}}<dt>error</dt><dd>{{.Error}}</dd>{{end}}
  </dl>
  <canvas id="screen" width="800" height="450"></canvas>
  <script>
    const ctx = document.getElementById('screen').getContext('2d');
    ctx.fillStyle = '#2d2d2d';
    ctx.fillRect(0, 0, 800, 450);
    ctx.fillStyle = '#d4d4d4';
    ctx.font = '16px monospace';
    ctx.fillText('{{.Status}} - {{.Name}}', 20, 40);
  </script>
</body>
</html>
`))

func (h *Handler) handleNoVNC(w http.ResponseWriter, r *http.Request, id string) {
	vm, err := h.srv.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = noVNCTemplate.Execute(w, vm)
}
