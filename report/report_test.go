package report

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vinayprograms/orchestrator/heartbeat"
	"github.com/vinayprograms/orchestrator/logging"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func fixedSource() Backlog {
	return Backlog{
		Counts:   map[string]int{"open": 3, "in_progress": 1, "delivered": 2},
		Eligible: 3,
		Workers: []heartbeat.Seen{
			{WorkerID: "w1", LastSeen: t0.Add(-10 * time.Second)},
			{WorkerID: "w2", LastSeen: t0.Add(-5 * time.Minute)},
		},
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Error("nil source should fail")
	}
	if _, err := New(Config{Schedule: "every now and then"}, fixedSource); err == nil {
		t.Error("bad schedule should fail")
	}
	if _, err := New(Config{Schedule: "*/5 * * * *"}, fixedSource); err != nil {
		t.Errorf("standard cron expression should parse: %v", err)
	}
}

func TestReporter_Run(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New()
	logger.SetOutput(&buf)

	r, err := New(Config{
		Monitor: heartbeat.NewMonitor(time.Minute),
		Logger:  logger,
		Now:     func() time.Time { return t0 },
	}, fixedSource)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	if r.Last() != nil {
		t.Error("Last should be nil before the first run")
	}

	s := r.Run()
	if s.Total != 6 || s.Eligible != 3 {
		t.Errorf("summary = %+v", s)
	}
	if s.Workers.Alive != 1 || s.Workers.Stale != 1 {
		t.Errorf("workers = %+v", s.Workers)
	}
	if r.Last() == nil || r.Runs() != 1 {
		t.Error("Run should record the summary")
	}

	out := buf.String()
	for _, want := range []string{"backlog_report", "status_open=3", "workers_stale=1", "worker_stale", "worker=w2"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}

	// The stale warning is not repeated.
	buf.Reset()
	r.Run()
	if strings.Contains(buf.String(), "worker_stale") {
		t.Error("stale worker should be reported once")
	}
}

func TestReporter_Schedule(t *testing.T) {
	var calls atomic.Int32
	r, err := New(Config{Schedule: "@every 1s"}, func() Backlog {
		calls.Add(1)
		return Backlog{}
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	r.Start()

	deadline := time.Now().Add(3 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
	if calls.Load() == 0 {
		t.Error("scheduled report never ran")
	}
}
