// Package logging provides leveled, line-oriented log output for the
// orchestrator and its workers.
//
// Lines have the form:
//
//	LEVEL TIMESTAMP [component] message key=value ...
//
// Field keys are written in sorted order so lines are stable and greppable.
package logging

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Level is a log severity. Higher levels are more severe.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "LEVEL(" + strconv.Itoa(int(l)) + ")"
	}
	return levelNames[l]
}

// ParseLevel converts a case-insensitive level name. Unknown names yield
// LevelInfo and false.
func ParseLevel(s string) (Level, bool) {
	switch name := strings.ToUpper(strings.TrimSpace(s)); name {
	case "", "INFO":
		return LevelInfo, true
	case "WARNING":
		return LevelWarn, true
	default:
		if i := slices.Index(levelNames[:], name); i >= 0 {
			return Level(i), true
		}
		return LevelInfo, false
	}
}

const timeLayout = "2006-01-02T15:04:05.000Z"

// Logger writes one line per entry. Copies made by WithComponent and
// WithTraceID share the parent's lock so their lines never interleave.
type Logger struct {
	mu        *sync.Mutex
	out       io.Writer
	min       Level
	component string
	traceID   string
	now       func() time.Time
}

// New logs to stdout at INFO.
func New() *Logger {
	return &Logger{mu: new(sync.Mutex), out: os.Stdout, min: LevelInfo, now: time.Now}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	l := New()
	l.out = io.Discard
	return l
}

func (l *Logger) WithComponent(component string) *Logger {
	c := *l
	c.component = component
	return &c
}

// WithTraceID tags every line with trace=<id>.
func (l *Logger) WithTraceID(traceID string) *Logger {
	c := *l
	c.traceID = traceID
	return &c
}

func (l *Logger) SetLevel(level Level)          { l.min = level }
func (l *Logger) SetOutput(w io.Writer)         { l.out = w }
func (l *Logger) SetClock(now func() time.Time) { l.now = now }

// Enabled reports whether entries at level are written.
func (l *Logger) Enabled(level Level) bool { return level >= l.min }

func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.write(LevelDebug, msg, fields)
}

func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.write(LevelInfo, msg, fields)
}

func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.write(LevelWarn, msg, fields)
}

func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.write(LevelError, msg, fields)
}

func (l *Logger) write(level Level, msg string, fields []map[string]interface{}) {
	if !l.Enabled(level) {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-5s %s ", level, l.now().UTC().Format(timeLayout))
	if l.component != "" {
		b.WriteString("[" + l.component + "] ")
	}
	b.WriteString(msg)

	merged := make(map[string]interface{})
	for _, f := range fields {
		maps.Copy(merged, f)
	}
	if l.traceID != "" {
		merged["trace"] = l.traceID
	}
	for _, k := range slices.Sorted(maps.Keys(merged)) {
		b.WriteString(" " + k + "=" + formatValue(merged[k]))
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.out, b.String())
}

// formatValue quotes values that would otherwise break key=value parsing.
func formatValue(v interface{}) string {
	s := fmt.Sprint(v)
	if strings.ContainsAny(s, " \t\n\"") {
		return strconv.Quote(s)
	}
	return s
}

// TaskEvent logs a lifecycle change as "task_<event>".
func (l *Logger) TaskEvent(event, taskID, actor string, extra map[string]interface{}) {
	fields := map[string]interface{}{"task": taskID}
	if actor != "" {
		fields["actor"] = actor
	}
	maps.Copy(fields, extra)
	l.Info("task_"+event, fields)
}

func (l *Logger) ClaimMiss(workerID string) {
	l.Debug("claim_empty", map[string]interface{}{"worker": workerID})
}

func (l *Logger) SnapshotLoaded(key string, tasks, migrated int) {
	l.Info("snapshot_loaded", map[string]interface{}{"key": key, "tasks": tasks, "migrated": migrated})
}

// SnapshotFailed is a warning: memory stays authoritative and the next
// mutation writes again.
func (l *Logger) SnapshotFailed(key string, err error) {
	l.Warn("snapshot_failed", map[string]interface{}{"key": key, "error": err.Error()})
}

// Request logs an HTTP request at DEBUG, or at ERROR for a 5xx.
func (l *Logger) Request(method, path string, status int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":   method,
		"path":     path,
		"status":   status,
		"duration": duration.String(),
	}
	if status >= 500 {
		l.Error("request", fields)
	} else {
		l.Debug("request", fields)
	}
}
