package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestMetrics_RecordCommand(t *testing.T) {
	m := NewMetrics("v1.0.0")

	m.RecordCommand("todo add", nil, 20*time.Millisecond)
	m.RecordCommand("todo add", errors.New("boom"), 10*time.Millisecond)
	m.RecordCommand("custom", nil, time.Millisecond)

	snap := m.Snapshot()
	got := snap.Commands["todo add"]
	if got.Count != 2 || got.Failures != 1 || got.LatencyMillis != 30 {
		t.Errorf("todo add = %+v", got)
	}
	if snap.Commands["custom"].Count != 1 {
		t.Errorf("unknown command not recorded: %+v", snap.Commands)
	}
	if _, ok := snap.Commands["note create"]; ok {
		t.Error("commands that never ran should be left out of the snapshot")
	}
}

func TestMetrics_RecordEventAndSync(t *testing.T) {
	m := NewMetrics("v1.0.0")

	m.RecordEvent("todo.created")
	m.RecordEvent("todo.created")
	m.RecordEvent("note.pinned")
	m.RecordSync(nil, 5*time.Millisecond)
	m.RecordSync(errors.New("locked"), 5*time.Millisecond)

	snap := m.Snapshot()
	if snap.Events["todo.created"] != 2 || snap.Events["note.pinned"] != 1 {
		t.Errorf("events = %v", snap.Events)
	}
	if snap.Syncs != 2 || snap.SyncFailures != 1 {
		t.Errorf("syncs = %d failures = %d", snap.Syncs, snap.SyncFailures)
	}
}

func TestMetrics_Concurrent(t *testing.T) {
	m := NewMetrics("v1.0.0")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordCommand("note create", nil, time.Millisecond)
			m.RecordEvent("note.created")
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.Commands["note create"].Count != 20 || snap.Events["note.created"] != 20 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("v1.2.3")
	m.RecordCommand("category create", nil, 3*time.Millisecond)
	m.RecordEvent("category.created")
	m.RecordSync(nil, time.Millisecond)
	m.Gauge("notebase_journal_head", "Position of the last journal record", func() float64 { return 7 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`notebase_info{version="v1.2.3"} 1`,
		`notebase_commands_total{command="category create"} 1`,
		`notebase_command_failures_total{command="category create"} 0`,
		`notebase_events_total{event="category.created"} 1`,
		`notebase_projection_syncs_total 1`,
		"# TYPE notebase_journal_head gauge",
		"notebase_journal_head 7",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
