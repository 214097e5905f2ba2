package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/vent-controller/internal/status"
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
	"positionOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"channel": func(i int) string {
		return fmt.Sprintf("CH%02d", i+1)
	},
	"ts": func(t time.Time) string {
		return t.Format("2006-01-02 15:04:05")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Vent Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.closed { color: #06c; font-weight: bold; }
.open { color: green; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.error { color: red; }
</style>
</head>
<body>
<h1>Vent Controller</h1>

<h2>Vent</h2>
<table>
{{- $pos := positionOrUnknown (printf "%s" .Position)}}
<tr><th>Position</th><td id="position" class="{{if eq $pos "CLOSED"}}closed{{else if eq $pos "OPEN"}}open{{else}}unknown{{end}}">{{$pos}}</td></tr>
<tr><th>Desired angle</th><td>{{.Desired}}&deg;</td></tr>
<tr><th>Commanded angle</th><td id="commanded">{{if .HasCommanded}}{{.Commanded}}&deg;{{else}}none{{end}}</td></tr>
<tr><th>Closed window</th><td>{{.Config.WindowStart}} - {{.Config.WindowEnd}}</td></tr>
<tr><th>Angles</th><td>closed {{.Config.AngleClosed}}&deg;, open {{.Config.AngleOpen}}&deg;</td></tr>
</table>

<h2>Sensor</h2>
<table>
{{- if .HasReading}}
{{- range $i, $v := .Reading.Voltages}}
<tr><th>{{channel $i}}</th><td>{{printf "%.4f" $v}} V ({{index $.Reading.Values $i}})</td></tr>
{{- end}}
<tr><th>Sampled</th><td>{{ts .LastSample}}</td></tr>
{{- else}}
<tr><th>Reading</th><td class="unknown">no sample yet</td></tr>
{{- end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Ticks</th><td>{{.Counts.Ticks}}</td></tr>
<tr><th>Moves</th><td>{{.Counts.Moves}}</td></tr>
<tr><th>Sample errors</th><td>{{.Counts.SampleErrors}}</td></tr>
<tr><th>Log errors</th><td>{{.Counts.LogErrors}}</td></tr>
<tr><th>Actuate errors</th><td>{{.Counts.ActuateErrors}}</td></tr>
{{- if .LastError}}
<tr><th>Last error</th><td class="error" id="last-error">{{.LastError}} ({{ts .LastErrorTime}})</td></tr>
{{- end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Servo driver</th><td>{{.Config.ServoDriver}}</td></tr>
<tr><th>Data format</th><td>{{.Config.DataFormat}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .Config.Broker}}{{if .MQTTConnected}}connected{{else}}disconnected{{end}} ({{.Config.Broker}}){{else}}disabled{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
