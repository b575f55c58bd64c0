package logger

import (
	"sync"
	"time"
)

// maxRecent is how many log lines are kept for the /api/logs endpoint.
const maxRecent = 1000

// Entry is one captured log line.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// ring keeps the most recent entries, oldest first.
type ring struct {
	mu      sync.Mutex
	entries []Entry
	limit   int
}

func newRing(limit int) *ring {
	return &ring{entries: make([]Entry, 0, 64), limit: limit}
}

func (r *ring) add(level LogLevel, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{
		Timestamp: time.Now().Format("2006-01-02 15:04:05"),
		Level:     level.String(),
		Message:   msg,
	})
	if len(r.entries) > r.limit {
		r.entries = r.entries[len(r.entries)-r.limit:]
	}
}

func (r *ring) snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *ring) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = r.entries[:0]
}

// Recent returns the captured lines of this logger, oldest first.
func (l *Logger) Recent() []Entry {
	return l.recent.snapshot()
}

// ClearRecent drops the captured lines of this logger.
func (l *Logger) ClearRecent() {
	l.recent.clear()
}

// Recent returns the lines captured by the package-level logger.
func Recent() []Entry {
	return getDefaultLogger().Recent()
}

// ClearRecent drops the lines captured by the package-level logger.
func ClearRecent() {
	getDefaultLogger().ClearRecent()
}
