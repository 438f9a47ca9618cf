package profiling

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeClock advances by step on every reading.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(step)
		return t
	}
}

func TestRecorder_StartStop(t *testing.T) {
	r := NewRecorder()
	stop := r.Start("main")
	stop()
	stop()

	spans := r.Spans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "main" {
		t.Errorf("Name = %q, want main", spans[0].Name)
	}
	if spans[0].Duration < 0 {
		t.Errorf("negative duration %s", spans[0].Duration)
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.Start("ignored")()
}

func TestRecorder_Concurrent(t *testing.T) {
	r := NewRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Start(fmt.Sprintf("page %d", i))()
		}(i)
	}
	wg.Wait()

	if got := len(r.Spans()); got != 50 {
		t.Errorf("got %d spans, want 50", got)
	}
}

func TestRecorder_OrderAndSummaries(t *testing.T) {
	origin := time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC)
	r := &Recorder{origin: origin, nowFunc: fakeClock(origin, time.Millisecond)}

	stopMain := r.Start("main")   // t=0
	stopA := r.Start("page")      // t=1
	stopA()                       // t=2
	stopB := r.Start("page")      // t=3
	stopB()                       // t=4
	stopWrite := r.Start("write") // t=5
	stopWrite()                   // t=6
	stopMain()                    // t=7

	spans := r.Spans()
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name
	}
	if got := strings.Join(names, ","); got != "main,page,page,write" {
		t.Errorf("order = %s", got)
	}

	sums := r.Summaries()
	if sums[0].Name != "main" || sums[0].Total != 7*time.Millisecond {
		t.Errorf("first summary = %+v, want main 7ms", sums[0])
	}
	for _, s := range sums {
		if s.Name == "page" && (s.Count != 2 || s.Total != 2*time.Millisecond) {
			t.Errorf("page summary = %+v, want 2 spans totalling 2ms", s)
		}
	}
}

func TestWriteHTML(t *testing.T) {
	origin := time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC)
	r := &Recorder{origin: origin, nowFunc: fakeClock(origin, time.Millisecond)}

	stopMain := r.Start("retrieving all classes serially")
	r.Start("getting page 1")()
	r.Start("<script>")()
	stopMain()

	var buf bytes.Buffer
	if err := r.WriteHTML(&buf); err != nil {
		t.Fatalf("WriteHTML failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{"<!DOCTYPE html>", "retrieving all classes serially", "getting page 1", "class=\"bar\""} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(out, "<script>") {
		t.Error("span names must be escaped")
	}
	// The enclosing span and its children need two lanes.
	if !strings.Contains(out, "top: 20px") {
		t.Error("expected children stacked in a second lane")
	}
}

func TestWriteHTML_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRecorder().WriteHTML(&buf); err != nil {
		t.Fatalf("WriteHTML failed: %v", err)
	}
	if !strings.Contains(buf.String(), "0 spans") {
		t.Error("expected empty timeline")
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	r := NewRecorder()
	r.Start("main")()

	if err := r.WriteFile(path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Contains(data, []byte("main")) {
		t.Error("file should contain the span")
	}
}

func TestStartCPU(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpu.pprof")

	stop, err := StartCPU(path)
	if err != nil {
		t.Fatalf("StartCPU failed: %v", err)
	}
	if err := stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("profile not written: %v", err)
	}
	if info.Size() == 0 {
		t.Error("profile is empty")
	}
}
