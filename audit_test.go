package kongmint

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// collectSink records every emitted event for assertions.
type collectSink struct {
	mu     sync.Mutex
	events []AuditEvent
	slow   time.Duration
}

func (s *collectSink) Emit(ctx context.Context, event AuditEvent) {
	if s.slow > 0 {
		time.Sleep(s.slow)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *collectSink) all() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	sink := &collectSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 64, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: AuditTokenIssued})
	}
	d.Close()

	if got := len(sink.all()); got != 10 {
		t.Fatalf("delivered %d events, want 10", got)
	}
	if d.Dropped() != 0 {
		t.Fatalf("Dropped = %d, want 0", d.Dropped())
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &collectSink{slow: 50 * time.Millisecond}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer d.Close()

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: AuditTokenIssued})
	}

	if d.Dropped() == 0 {
		t.Fatal("expected drops with a slow sink and a 1-slot buffer")
	}
}

func TestDispatcherBackpressureHonorsContext(t *testing.T) {
	sink := &collectSink{slow: time.Second}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: false}, sink)
	defer d.Close()

	// Fill the buffer and occupy the worker.
	d.Emit(context.Background(), AuditEvent{EventType: AuditTokenIssued})
	d.Emit(context.Background(), AuditEvent{EventType: AuditTokenIssued})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	d.Emit(ctx, AuditEvent{EventType: AuditTokenIssued})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Emit blocked %v past context cancellation", elapsed)
	}
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, &collectSink{})
	if d != nil {
		t.Fatal("disabled audit must yield a nil dispatcher")
	}

	// Nil receivers are no-ops.
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("Dropped on nil dispatcher")
	}
}

func TestDispatcherCloseIsIdempotent(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4, DropIfFull: true}, &collectSink{})
	d.Close()
	d.Close()

	// Emitting after close is a silent no-op.
	d.Emit(context.Background(), AuditEvent{EventType: AuditShutdown})
}

func TestJSONWriterSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		EventType:  AuditTokenIssued,
		ConsumerID: "c1",
		Success:    true,
	})
	sink.Emit(context.Background(), AuditEvent{
		EventType: AuditTokenFailed,
		Error:     "boom",
	})

	scanner := bufio.NewScanner(&buf)
	var lines []AuditEvent
	for scanner.Scan() {
		var ev AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("line %d not valid JSON: %v", len(lines), err)
		}
		lines = append(lines, ev)
	}

	if len(lines) != 2 {
		t.Fatalf("wrote %d lines, want 2", len(lines))
	}
	if lines[0].EventType != AuditTokenIssued || lines[0].ConsumerID != "c1" || !lines[0].Success {
		t.Fatalf("first line = %+v", lines[0])
	}
	if lines[1].EventType != AuditTokenFailed || lines[1].Error != "boom" {
		t.Fatalf("second line = %+v", lines[1])
	}
}
