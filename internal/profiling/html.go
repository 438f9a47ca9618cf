package profiling

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"time"
)

// DefaultFileName is the name of the rendered timeline.
const DefaultFileName = "flame-graph.html"

type bar struct {
	Name     string
	Lane     int
	Left     float64
	Width    float64
	Offset   string
	Duration string
	Hue      int
}

type page struct {
	Title     string
	Total     string
	Lanes     int
	Height    int
	Bars      []bar
	Summaries []Summary
}

var timelineTemplate = template.Must(template.New("timeline").Funcs(template.FuncMap{
	"ms": func(d time.Duration) string { return fmt.Sprintf("%.1f ms", float64(d)/float64(time.Millisecond)) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 20px; }
.timeline { position: relative; border: 1px solid #ccc; height: {{.Height}}px; }
.bar { position: absolute; height: 18px; overflow: hidden; white-space: nowrap;
       font-size: 11px; line-height: 18px; padding-left: 2px; box-sizing: border-box;
       border: 1px solid #fff; }
table { border-collapse: collapse; margin-top: 20px; }
td, th { border: 1px solid #ccc; padding: 2px 8px; text-align: left; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>Total: {{.Total}}, {{len .Bars}} spans</p>
<div class="timeline">
{{- range .Bars}}
<div class="bar" style="left: {{printf "%.4f" .Left}}%; width: {{printf "%.4f" .Width}}%; top: {{.Lane}}px; background: hsl({{.Hue}}, 70%, 70%);" title="{{.Name}} +{{.Offset}} {{.Duration}}">{{.Name}}</div>
{{- end}}
</div>
<table>
<tr><th>Span</th><th>Count</th><th>Total</th><th>Max</th></tr>
{{- range .Summaries}}
<tr><td>{{.Name}}</td><td>{{.Count}}</td><td>{{ms .Total}}</td><td>{{ms .Max}}</td></tr>
{{- end}}
</table>
</body>
</html>
`))

// WriteHTML renders the recorded spans as a timeline. Overlapping spans are
// stacked into lanes, so enclosing sections sit above the work they contain.
func (r *Recorder) WriteHTML(w io.Writer) error {
	spans := r.Spans()

	var total time.Duration
	for _, s := range spans {
		if end := s.End().Sub(r.origin); end > total {
			total = end
		}
	}

	const laneHeight = 20
	var laneEnds []time.Time
	bars := make([]bar, 0, len(spans))
	for _, s := range spans {
		lane := 0
		for lane < len(laneEnds) && laneEnds[lane].After(s.Start) {
			lane++
		}
		if lane == len(laneEnds) {
			laneEnds = append(laneEnds, s.End())
		} else {
			laneEnds[lane] = s.End()
		}

		left, width := 0.0, 100.0
		if total > 0 {
			left = 100 * float64(s.Start.Sub(r.origin)) / float64(total)
			width = 100 * float64(s.Duration) / float64(total)
		}
		bars = append(bars, bar{
			Name:     s.Name,
			Lane:     lane * laneHeight,
			Left:     left,
			Width:    width,
			Offset:   s.Start.Sub(r.origin).Round(time.Microsecond).String(),
			Duration: s.Duration.Round(time.Microsecond).String(),
			Hue:      hue(s.Name),
		})
	}

	data := page{
		Title:     "Run profile",
		Total:     total.Round(time.Microsecond).String(),
		Lanes:     len(laneEnds),
		Height:    (len(laneEnds) + 1) * laneHeight,
		Bars:      bars,
		Summaries: r.Summaries(),
	}

	if err := timelineTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("render timeline: %w", err)
	}
	return nil
}

// WriteFile renders the timeline into path.
func (r *Recorder) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := r.WriteHTML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// hue derives a stable color from a span name.
func hue(name string) int {
	h := 0
	for _, c := range name {
		h = (h*31 + int(c)) % 360
	}
	return h
}
