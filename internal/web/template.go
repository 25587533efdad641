package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/layer-threshold/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"layers": func(ls []uint8) string {
		out := ""
		for i, l := range ls {
			if i > 0 {
				out += " "
			}
			out += fmt.Sprint(l)
		}
		return out
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Layer Threshold</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Layer Threshold<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Layers</h2>
<table>
<tr><th>Layer active</th><td id="layer-state" class="{{if .LayerActive}}on{{else}}off{{end}}">{{if .LayerActive}}yes{{else}}no{{end}}</td></tr>
<tr><th>Active layers</th><td id="active-layers">{{layers .ActiveLayers}}</td></tr>
<tr><th>Changes on/off</th><td id="layer-counts">{{.Counts.On}}/{{.Counts.Off}}</td></tr>
<tr><th>Key events</th><td id="key-events">{{.KeyEvents}}</td></tr>
</table>

<h2>Controllers</h2>
<table>
<tr><th>Name</th><td>Layer / X / Y / activations</td></tr>
{{range .Controllers}}<tr><th>{{.Name}}</th><td>{{if .LayerActive}}<span class="on">{{.ActiveLayer}}</span>{{else}}<span class="off">-</span>{{end}} / {{.AccumulatedX}} / {{.AccumulatedY}} / {{.Stats.Activations}}</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
{{range .Config.Devices}}<tr><th>Device</th><td>{{.}}</td></tr>
{{end}}</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var stateEl = document.getElementById("layer-state");
  var layersEl = document.getElementById("active-layers");
  var countsEl = document.getElementById("layer-counts");
  var keysEl = document.getElementById("key-events");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");

    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var s = JSON.parse(ev.data).status;
        stateEl.textContent = s.layer_active ? "yes" : "no";
        stateEl.className = s.layer_active ? "on" : "off";
        layersEl.textContent = s.active_layers.join(" ");
        countsEl.textContent = s.layer_changes.on + "/" + s.layer_changes.off;
        keysEl.textContent = s.key_events;
      } catch (e) {}
    };
  }

  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() and LayerActive() methods but the template
	// reads fields.
	data := struct {
		status.Snapshot
		Uptime      time.Duration
		LayerActive bool
	}{
		Snapshot:    snap,
		Uptime:      snap.Uptime(),
		LayerActive: snap.LayerActive(),
	}
	return indexTmpl.Execute(w, data)
}
