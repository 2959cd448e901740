package web

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"time"

	"github.com/sweeney/humidex-sensor/internal/logic"
	"github.com/sweeney/humidex-sensor/internal/status"
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
	"oneDecimal": func(v float64) string {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "-"
		}
		return fmt.Sprintf("%.1f", v)
	},
	"orDash": func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	},
	"level": func(c logic.Comfort) string {
		return fmt.Sprintf("level-%d", c.Level())
	},
	"outcomes": func() []logic.Outcome {
		return logic.Outcomes
	},
	"count": func(counts map[logic.Outcome]int, o logic.Outcome) int {
		return counts[o]
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>Humidex Sensor</title>
<style>
body { font-family: monospace; max-width: 800px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.unavailable { color: orange; }
.level-1, .level-2 { color: green; }
.level-3 { color: #b8a000; }
.level-4 { color: darkorange; font-weight: bold; }
.level-5, .level-6 { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Humidex Sensor</h1>

<h2>Registrations</h2>
{{if .Registrations}}
<table>
<tr><th>Name</th><th>Temperature</th><th>Humidity</th><th>Humidex</th><th>Comfort</th><th>Dew point</th></tr>
{{range .Registrations}}
<tr id="reg-{{.ID}}">
<td>{{.Title}}</td>
<td title="{{.Temperature}}">{{orDash .TemperatureState}} {{.TemperatureUnit}}</td>
<td title="{{.Humidity}}">{{orDash .HumidityState}}</td>
{{if .Available}}<td>{{oneDecimal .Humidex}} °C</td><td class="{{level .Comfort}}">{{.Comfort.Label}}</td><td>{{oneDecimal .DewPoint}}</td>
{{else}}<td class="unavailable">unavailable</td><td class="unavailable">{{.Outcome}}</td><td>-</td>{{end}}
</tr>
{{end}}
</table>
{{else}}
<p>No registrations.</p>
{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Statestream</th><td>{{.Config.StatePrefix}}</td></tr>
<tr><th>Output</th><td>{{.Config.OutputPrefix}}</td></tr>
</table>

<h2>Refresh Outcomes</h2>
<table>
{{$counts := .Counts}}{{range outcomes}}<tr><th>{{.}}</th><td>{{count $counts .}}</td></tr>
{{end}}</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Fallback unit</th><td>{{.Config.FallbackUnit}}</td></tr>
<tr><th>Database</th><td>{{.Config.Database}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
