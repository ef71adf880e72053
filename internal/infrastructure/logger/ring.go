package logger

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// RingEntry is one captured log line
type RingEntry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Logger  string         `json:"logger,omitempty"`
	Message string         `json:"message"`
	Caller  string         `json:"caller,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// RingBuffer keeps the most recent log entries in memory. When full, the
// oldest entry is overwritten. Contents are lost on restart.
type RingBuffer struct {
	mu      sync.Mutex
	entries []RingEntry
	next    int
	full    bool
	dropped uint64
}

// NewRingBuffer creates a buffer holding up to capacity entries
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{entries: make([]RingEntry, capacity)}
}

// Add appends an entry, evicting the oldest one when full
func (r *RingBuffer) Add(e RingEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		r.dropped++
	}
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Snapshot returns a copy of the buffered entries, oldest first
func (r *RingBuffer) Snapshot() []RingEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]RingEntry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]RingEntry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}

// Len returns the number of buffered entries
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}

// Capacity returns the maximum number of entries
func (r *RingBuffer) Capacity() int {
	return len(r.entries)
}

// Dropped returns how many entries were evicted so far
func (r *RingBuffer) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// RingCore is a zapcore.Core that records entries into a RingBuffer
type RingCore struct {
	zapcore.LevelEnabler
	buf    *RingBuffer
	fields []zapcore.Field
}

// NewRingCore returns a core writing entries at or above level into buf
func NewRingCore(buf *RingBuffer, level zapcore.LevelEnabler) *RingCore {
	return &RingCore{LevelEnabler: level, buf: buf}
}

// Buffer returns the underlying ring
func (c *RingCore) Buffer() *RingBuffer {
	return c.buf
}

// With implements zapcore.Core
func (c *RingCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &RingCore{LevelEnabler: c.LevelEnabler, buf: c.buf, fields: merged}
}

// Check implements zapcore.Core
func (c *RingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write implements zapcore.Core
func (c *RingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	e := RingEntry{
		Time:    ent.Time,
		Level:   ent.Level.String(),
		Logger:  ent.LoggerName,
		Message: ent.Message,
	}
	if ent.Caller.Defined {
		e.Caller = ent.Caller.TrimmedPath()
	}
	if len(enc.Fields) > 0 {
		e.Fields = enc.Fields
	}
	c.buf.Add(e)
	return nil
}

// Sync implements zapcore.Core
func (c *RingCore) Sync() error {
	return nil
}
