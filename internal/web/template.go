package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/rain-gauge/internal/status"
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
	"mm": func(v float64) string {
		return fmt.Sprintf("%.2f", status.Round2(v))
	},
	"when": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.Format("2006-01-02 15:04:05")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Rain Gauge</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; }
.bad { color: red; }
.current { font-weight: bold; }
</style>
</head>
<body>
<h1>Rain Gauge</h1>

<h2>Rainfall</h2>
<table>
<tr><th>Today</th><td id="today">{{mm .Rain.Today}} mm</td></tr>
<tr><th>Last hour</th><td id="last-hour">{{mm .Rain.LastHour}} mm</td></tr>
<tr><th>Yesterday</th><td id="yesterday">{{mm .Rain.Yesterday}} mm</td></tr>
<tr><th>Tips</th><td>{{.Rain.TotalTips}} ({{.Bounces}} bounces rejected)</td></tr>
</table>

<h2>Hourly</h2>
<table>
{{range $h, $v := .Rain.PerHour}}<tr{{if eq $h $.Rain.LastCheckedHour}} class="current"{{end}}><th>{{printf "%02d" $h}}:00</th><td>{{mm $v}}</td></tr>
{{end}}</table>

<h2>Health</h2>
<table>
<tr><th>Storage</th><td class="{{if .StorageOK}}ok{{else}}bad{{end}}">{{if .StorageOK}}ok{{else}}failed{{end}} ({{.Config.Storage}})</td></tr>
<tr><th>Last checkpoint</th><td>{{when .LastCheckpoint}}</td></tr>
<tr><th>Clock</th><td class="{{if .TimeValid}}ok{{else}}bad{{end}}">{{if .TimeValid}}set{{else}}not set{{end}} ({{.Config.RTC}})</td></tr>
<tr><th>Wall time</th><td>{{when .WallTime}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}ok{{else}}bad{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Checkpoint</th><td>{{.Config.CheckpointMs}}ms</td></tr>
<tr><th>mm per tip</th><td>{{.Config.MMPerTip}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/hourly.csv">hourly.csv</a> | <a href="/history.csv">history.csv</a> | <a href="/metrics">metrics</a></p>
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
