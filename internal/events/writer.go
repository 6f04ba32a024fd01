// Package events carries user-facing notices about write operations.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

type Notice struct {
	Level      Level     `json:"type"`
	Message    string    `json:"message"`
	Op         string    `json:"op"`
	EntityKind string    `json:"entityKind,omitempty"`
	EntityID   string    `json:"entityId,omitempty"`
	At         time.Time `json:"at"`
}

// Sink receives notices. Implementations must not block for long.
type Sink interface {
	Notify(ctx context.Context, n Notice)
}

type SinkFunc func(ctx context.Context, n Notice)

func (f SinkFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// Writer stamps notices and fans them out to every sink. Sinks may be added
// and removed while notices are written.
type Writer struct {
	Now func() time.Time

	mu    sync.RWMutex
	sinks []*sinkEntry
}

// sinkEntry gives every registration its own identity; SinkFunc values are
// not comparable.
type sinkEntry struct {
	Sink
}

func NewWriter(sinks ...Sink) *Writer {
	w := &Writer{}
	for _, s := range sinks {
		w.Add(s)
	}
	return w
}

// Add registers s. The returned func unregisters it and may be called more
// than once.
func (w *Writer) Add(s Sink) (remove func()) {
	e := &sinkEntry{Sink: s}
	w.mu.Lock()
	w.sinks = append(w.sinks, e)
	w.mu.Unlock()
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, x := range w.sinks {
			if x == e {
				w.sinks = append(w.sinks[:i:i], w.sinks[i+1:]...)
				return
			}
		}
	}
}

// Len is the number of registered sinks.
func (w *Writer) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.sinks)
}

// Append delivers the notice outside the lock, so sinks may register or
// unregister from Notify.
func (w *Writer) Append(ctx context.Context, level Level, op, entityKind, entityID, message string) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	n := Notice{Level: level, Message: message, Op: op, EntityKind: entityKind, EntityID: entityID, At: now().UTC()}
	w.mu.RLock()
	sinks := w.sinks
	w.mu.RUnlock()
	for _, s := range sinks {
		s.Notify(ctx, n)
	}
}

// LogSink writes notices to a zap logger.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) Notify(_ context.Context, n Notice) {
	fields := []zap.Field{zap.String("op", n.Op)}
	if n.EntityKind != "" {
		fields = append(fields, zap.String("kind", n.EntityKind))
	}
	if n.EntityID != "" {
		fields = append(fields, zap.String("id", n.EntityID))
	}
	switch n.Level {
	case LevelError:
		s.Log.Error(n.Message, fields...)
	case LevelWarning:
		s.Log.Warn(n.Message, fields...)
	default:
		s.Log.Info(n.Message, fields...)
	}
}
