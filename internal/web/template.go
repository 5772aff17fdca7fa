package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sweeney/soil-irrigator/internal/pumplog"
	"github.com/sweeney/soil-irrigator/internal/status"
)

type pageData struct {
	status.Snapshot
	Uptime time.Duration
	Days   []pumplog.DayCount
	Recent []pumplog.Entry
	Hours  []pumplog.HourCount
}

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
	"comma": humanize.Comma,
	"ml": func(v float64) string {
		return humanize.FormatFloat("#,###.#", v) + " mL"
	},
	"ago": func(t, now time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return humanize.RelTime(t, now, "ago", "from now")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Soil Irrigator</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.connected { color: green; }
.disconnected { color: red; }
.warn { color: orange; }
</style>
</head>
<body>
<h1>Soil Irrigator</h1>

<h2>Pumps</h2>
<table>
<tr><th>Today</th><td id="today">{{comma .TodayPumps}} ({{ml .TodayVolumeML}})</td></tr>
<tr><th>Total</th><td id="total">{{comma .TotalPumps}} ({{ml .TotalVolumeML}})</td></tr>
<tr><th>Last pump</th><td>{{ago .LastPumpAt .Now}}</td></tr>
<tr><th>Controller count</th><td>{{.Monitor.Last}}</td></tr>
<tr><th>Controller resets</th><td{{if .Monitor.Resets}} class="warn"{{end}}>{{.Monitor.Resets}}</td></tr>
</table>

{{if .Days}}<h2>Last {{len .Days}} days</h2>
<table>
{{range .Days}}<tr><th>{{.Day}}</th><td>{{comma .Pumps}} ({{ml .VolumeML}})</td></tr>
{{end}}</table>
{{end}}
{{if .Hours}}<h2>Today by hour</h2>
<table id="hourly">
{{range .Hours}}<tr><th>{{.Label}}</th><td>{{comma .Pumps}} ({{ml .VolumeML}})</td></tr>
{{end}}</table>
{{end}}
{{if .Recent}}<h2>Recent</h2>
<table>
{{range .Recent}}<tr><th>{{.Timestamp.UTC.Format "2006-01-02 15:04:05"}}</th><td>{{ago .Timestamp $.Now}}</td></tr>
{{end}}</table>
{{end}}
<h2>Connectivity</h2>
<table>
<tr><th>Serial</th><td class="{{if .SerialConnected}}connected{{else}}disconnected{{end}}">{{if .SerialConnected}}connected{{else}}disconnected{{end}} ({{.Config.SerialPort}})</td></tr>
<tr><th>Last line</th><td>{{ago .LastLineAt .Now}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Lines read</th><td>{{comma .Monitor.Lines}}</td></tr>
<tr><th>Database</th><td>{{.Config.DBPath}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/api/pumps/daily">daily</a> | <a href="/api/pumps/recent">recent</a> | <a href="/api/pumps/hourly">hourly</a> | <a href="/api/pumps/cumulative">cumulative</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, data pageData) {
	indexTmpl.Execute(w, data)
}
