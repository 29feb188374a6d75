package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// LogRecorder captures log output for assertions on what a run reported.
type LogRecorder struct {
	mu      sync.Mutex
	entries []string
}

// Logger returns a slog.Logger that records every message at every level.
func (r *LogRecorder) Logger() *slog.Logger {
	return slog.New(&recordingHandler{rec: r})
}

// Entries returns the captured "LEVEL message" lines in order.
func (r *LogRecorder) Entries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}

// Count returns how many captured lines contain substr.
func (r *LogRecorder) Count(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if strings.Contains(e, substr) {
			n++
		}
	}
	return n
}

func (r *LogRecorder) add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, line)
}

type recordingHandler struct {
	rec *LogRecorder
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, record slog.Record) error {
	h.rec.add(fmt.Sprintf("%s %s", record.Level, record.Message))
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }
