// Package observability collects command, event and projection metrics and
// renders them in the Prometheus text format.
package observability

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is safe for concurrent use.
type Metrics struct {
	mu sync.RWMutex

	commands map[string]*commandStats
	events   map[string]*atomic.Int64
	gauges   []gauge

	syncs          atomic.Int64
	syncFailures   atomic.Int64
	syncLatencySum atomic.Int64

	version   string
	startTime time.Time
}

type commandStats struct {
	count      atomic.Int64
	failures   atomic.Int64
	latencySum atomic.Int64
}

type gauge struct {
	name, help string
	value      func() float64
}

// knownCommands are allocated up front so the common path only takes the
// read lock.
var knownCommands = []string{
	"category create", "category rename", "category move", "category delete",
	"note create", "note rename", "note move", "note edit", "note pin", "note delete",
	"todo add", "todo edit", "todo done", "todo move", "todo delete",
}

// NewMetrics creates an empty registry.
func NewMetrics(version string) *Metrics {
	m := &Metrics{
		commands:  make(map[string]*commandStats, len(knownCommands)),
		events:    make(map[string]*atomic.Int64),
		version:   version,
		startTime: time.Now(),
	}
	for _, name := range knownCommands {
		m.commands[name] = &commandStats{}
	}
	return m
}

func (m *Metrics) command(name string) *commandStats {
	m.mu.RLock()
	s := m.commands[name]
	m.mu.RUnlock()
	if s != nil {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s = m.commands[name]; s == nil {
		s = &commandStats{}
		m.commands[name] = s
	}
	return s
}

// RecordCommand records one command run. err is the command's result.
func (m *Metrics) RecordCommand(name string, err error, d time.Duration) {
	s := m.command(name)
	s.count.Add(1)
	if err != nil {
		s.failures.Add(1)
	}
	s.latencySum.Add(d.Milliseconds())
}

// RecordEvent counts one committed event.
func (m *Metrics) RecordEvent(name string) {
	m.mu.RLock()
	c := m.events[name]
	m.mu.RUnlock()
	if c == nil {
		m.mu.Lock()
		if c = m.events[name]; c == nil {
			c = &atomic.Int64{}
			m.events[name] = c
		}
		m.mu.Unlock()
	}
	c.Add(1)
}

// RecordSync records one projection catch-up.
func (m *Metrics) RecordSync(err error, d time.Duration) {
	m.syncs.Add(1)
	if err != nil {
		m.syncFailures.Add(1)
	}
	m.syncLatencySum.Add(d.Milliseconds())
}

// Gauge registers a value read at scrape time.
func (m *Metrics) Gauge(name, help string, value func() float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges = append(m.gauges, gauge{name: name, help: help, value: value})
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(m.render()))
	})
}

func (m *Metrics) render() string {
	var sb strings.Builder
	header := func(name, kind, help string) {
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
	}

	header("notebase_info", "gauge", "Build information")
	fmt.Fprintf(&sb, "notebase_info{version=%q} 1\n\n", m.version)

	header("notebase_uptime_seconds", "gauge", "Uptime in seconds")
	fmt.Fprintf(&sb, "notebase_uptime_seconds %.2f\n\n", time.Since(m.startTime).Seconds())

	snap := m.Snapshot()
	names := sortedKeys(snap.Commands)

	header("notebase_commands_total", "counter", "Commands run")
	for _, name := range names {
		fmt.Fprintf(&sb, "notebase_commands_total{command=%q} %d\n", name, snap.Commands[name].Count)
	}
	sb.WriteString("\n")
	header("notebase_command_failures_total", "counter", "Commands that returned an error")
	for _, name := range names {
		fmt.Fprintf(&sb, "notebase_command_failures_total{command=%q} %d\n", name, snap.Commands[name].Failures)
	}
	sb.WriteString("\n")
	header("notebase_command_duration_milliseconds", "summary", "Command duration")
	for _, name := range names {
		c := snap.Commands[name]
		fmt.Fprintf(&sb, "notebase_command_duration_milliseconds_count{command=%q} %d\n", name, c.Count)
		fmt.Fprintf(&sb, "notebase_command_duration_milliseconds_sum{command=%q} %d\n", name, c.LatencyMillis)
	}
	sb.WriteString("\n")

	header("notebase_events_total", "counter", "Events committed to the journal")
	for _, name := range sortedKeys(snap.Events) {
		fmt.Fprintf(&sb, "notebase_events_total{event=%q} %d\n", name, snap.Events[name])
	}
	sb.WriteString("\n")

	header("notebase_projection_syncs_total", "counter", "Projection catch-ups")
	fmt.Fprintf(&sb, "notebase_projection_syncs_total %d\n\n", snap.Syncs)
	header("notebase_projection_sync_failures_total", "counter", "Projection catch-ups that failed")
	fmt.Fprintf(&sb, "notebase_projection_sync_failures_total %d\n\n", snap.SyncFailures)
	header("notebase_projection_sync_duration_milliseconds", "summary", "Projection catch-up duration")
	fmt.Fprintf(&sb, "notebase_projection_sync_duration_milliseconds_count %d\n", snap.Syncs)
	fmt.Fprintf(&sb, "notebase_projection_sync_duration_milliseconds_sum %d\n", m.syncLatencySum.Load())

	m.mu.RLock()
	gauges := slices.Clone(m.gauges)
	m.mu.RUnlock()
	for _, g := range gauges {
		sb.WriteString("\n")
		header(g.name, "gauge", g.help)
		fmt.Fprintf(&sb, "%s %g\n", g.name, g.value())
	}
	return sb.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// CommandSnapshot is one command's counters.
type CommandSnapshot struct {
	Count         int64 `json:"count"`
	Failures      int64 `json:"failures"`
	LatencyMillis int64 `json:"latency_ms"`
}

// MetricsSnapshot is a point-in-time copy of the counters. Commands that
// never ran are left out.
type MetricsSnapshot struct {
	Commands     map[string]CommandSnapshot `json:"commands"`
	Events       map[string]int64           `json:"events"`
	Syncs        int64                      `json:"syncs"`
	SyncFailures int64                      `json:"sync_failures"`
	Uptime       time.Duration              `json:"uptime"`
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		Commands:     make(map[string]CommandSnapshot, len(m.commands)),
		Events:       make(map[string]int64, len(m.events)),
		Syncs:        m.syncs.Load(),
		SyncFailures: m.syncFailures.Load(),
		Uptime:       time.Since(m.startTime),
	}
	for name, s := range m.commands {
		if n := s.count.Load(); n > 0 {
			snap.Commands[name] = CommandSnapshot{Count: n, Failures: s.failures.Load(), LatencyMillis: s.latencySum.Load()}
		}
	}
	for name, c := range m.events {
		snap.Events[name] = c.Load()
	}
	return snap
}
