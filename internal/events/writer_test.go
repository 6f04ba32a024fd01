package events

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWriterFansOut(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	var a, b []Notice
	w := NewWriter(
		SinkFunc(func(_ context.Context, n Notice) { a = append(a, n) }),
		SinkFunc(func(_ context.Context, n Notice) { b = append(b, n) }),
	)
	w.Now = func() time.Time { return at }
	w.Append(context.Background(), LevelSuccess, "create", "survey", "7", "Survey saved successfully!")
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("sinks got %d and %d notices", len(a), len(b))
	}
	n := a[0]
	if n.Level != LevelSuccess || n.EntityID != "7" || n.Message != "Survey saved successfully!" {
		t.Fatalf("unexpected notice %+v", n)
	}
	if !n.At.Equal(at) || n.At.Location() != time.UTC {
		t.Fatalf("notice time %v not stamped in UTC", n.At)
	}
}

func TestWriterRemoveSink(t *testing.T) {
	var first, second int
	w := NewWriter(SinkFunc(func(context.Context, Notice) { first++ }))
	remove := w.Add(SinkFunc(func(context.Context, Notice) { second++ }))
	ctx := context.Background()

	w.Append(ctx, LevelInfo, "load", "", "", "loaded")
	remove()
	remove()
	w.Append(ctx, LevelInfo, "load", "", "", "loaded")
	if first != 2 || second != 1 || w.Len() != 1 {
		t.Fatalf("first=%d second=%d len=%d", first, second, w.Len())
	}
}

func TestLogSinkLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sink := LogSink{Log: zap.New(core)}
	ctx := context.Background()
	sink.Notify(ctx, Notice{Level: LevelError, Message: "Failed to save survey", Op: "create", EntityKind: "survey", EntityID: "1"})
	sink.Notify(ctx, Notice{Level: LevelSuccess, Message: "All data cleared", Op: "clear"})

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zap.ErrorLevel || entries[0].ContextMap()["id"] != "1" {
		t.Fatalf("unexpected error entry %+v", entries[0])
	}
	if entries[1].Level != zap.InfoLevel {
		t.Fatalf("unexpected level %v", entries[1].Level)
	}
	if _, ok := entries[1].ContextMap()["kind"]; ok {
		t.Fatalf("empty kind should not be logged")
	}
}
