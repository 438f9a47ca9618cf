// Package profiling records named time spans of a run and renders them as
// an HTML timeline (flame-graph.html).
package profiling

import (
	"fmt"
	"os"
	"runtime/pprof"
	"sort"
	"sync"
	"time"
)

// Span is one timed section of the run.
type Span struct {
	Name     string
	Start    time.Time
	Duration time.Duration
}

// End returns the time the span finished.
func (s Span) End() time.Time {
	return s.Start.Add(s.Duration)
}

// Recorder collects spans. It is safe for concurrent use, so parallel
// workers can record their pages into the same recorder.
type Recorder struct {
	mu      sync.Mutex
	origin  time.Time
	spans   []Span
	nowFunc func() time.Time
}

// NewRecorder creates a recorder whose timeline starts now.
func NewRecorder() *Recorder {
	return &Recorder{
		origin:  time.Now(),
		nowFunc: time.Now,
	}
}

// Start opens a span and returns the function that closes it. Calling the
// returned function more than once records the span once.
func (r *Recorder) Start(name string) func() {
	if r == nil {
		return func() {}
	}

	start := r.nowFunc()
	var once sync.Once
	return func() {
		once.Do(func() {
			end := r.nowFunc()
			r.mu.Lock()
			r.spans = append(r.spans, Span{Name: name, Start: start, Duration: end.Sub(start)})
			r.mu.Unlock()
		})
	}
}

// Spans returns the recorded spans ordered by start time, longest first on
// ties so enclosing spans precede their children.
func (r *Recorder) Spans() []Span {
	r.mu.Lock()
	spans := make([]Span, len(r.spans))
	copy(spans, r.spans)
	r.mu.Unlock()

	sort.SliceStable(spans, func(i, j int) bool {
		if !spans[i].Start.Equal(spans[j].Start) {
			return spans[i].Start.Before(spans[j].Start)
		}
		return spans[i].Duration > spans[j].Duration
	})
	return spans
}

// Summary aggregates spans by name.
type Summary struct {
	Name  string
	Count int
	Total time.Duration
	Max   time.Duration
}

// Summaries returns per-name totals, largest total first.
func (r *Recorder) Summaries() []Summary {
	byName := map[string]*Summary{}
	var order []string
	for _, s := range r.Spans() {
		sum, ok := byName[s.Name]
		if !ok {
			sum = &Summary{Name: s.Name}
			byName[s.Name] = sum
			order = append(order, s.Name)
		}
		sum.Count++
		sum.Total += s.Duration
		if s.Duration > sum.Max {
			sum.Max = s.Duration
		}
	}

	out := make([]Summary, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	return out
}

// StartCPU writes a pprof CPU profile to path until the returned stop
// function is called.
func StartCPU(path string) (func() error, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create cpu profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("start cpu profile: %w", err)
	}
	return func() error {
		pprof.StopCPUProfile()
		return f.Close()
	}, nil
}
