package testutil

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// CapturedLog is one log record kept by LogCapture.
type CapturedLog struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// LogCapture is a slog.Handler that keeps records in memory so tests can
// assert on structured log output.
//
// Thread-safety: safe for concurrent use.
type LogCapture struct {
	mu      *sync.Mutex
	records *[]CapturedLog
	attrs   []slog.Attr
	level   slog.Level
}

// NewLogCapture returns a handler that keeps records at or above level.
func NewLogCapture(level slog.Level) *LogCapture {
	return &LogCapture{
		mu:      &sync.Mutex{},
		records: &[]CapturedLog{},
		level:   level,
	}
}

// Logger returns a *slog.Logger writing to the capture.
func (c *LogCapture) Logger() *slog.Logger {
	return slog.New(c)
}

// Enabled implements slog.Handler.
func (c *LogCapture) Enabled(_ context.Context, level slog.Level) bool {
	return level >= c.level
}

// Handle implements slog.Handler.
func (c *LogCapture) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, r.NumAttrs()+len(c.attrs))
	for _, a := range c.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	*c.records = append(*c.records, CapturedLog{Level: r.Level, Message: r.Message, Attrs: attrs})
	return nil
}

// WithAttrs implements slog.Handler.
func (c *LogCapture) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *c
	next.attrs = append(append([]slog.Attr{}, c.attrs...), attrs...)
	return &next
}

// WithGroup implements slog.Handler. Groups are flattened.
func (c *LogCapture) WithGroup(string) slog.Handler {
	return c
}

// Records returns a copy of every captured record.
func (c *LogCapture) Records() []CapturedLog {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CapturedLog, len(*c.records))
	copy(out, *c.records)
	return out
}

// Messages returns the messages of captured records, in order.
func (c *LogCapture) Messages() []string {
	recs := c.Records()
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Message
	}
	return out
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
