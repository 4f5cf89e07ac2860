package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu      sync.Mutex
	entries []Entry
	batches int
	err     error
}

func (s *captureSink) WriteBatch(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entries...)
	s.batches++
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestLoggerFlushesFullBatch(t *testing.T) {
	sink := &captureSink{}
	l := New(context.Background(), sink)
	defer l.Close()

	for i := 0; i < batchSize; i++ {
		l.Log(Entry{RequestID: "req", Provider: "openai", Model: "m", Outcome: "success"})
	}

	waitFor(t, func() bool { return sink.count() == batchSize })
}

func TestLoggerFlushesOnClose(t *testing.T) {
	sink := &captureSink{}
	l := New(context.Background(), sink)

	l.Log(Entry{RequestID: "a"})
	l.Log(Entry{RequestID: "b"})
	l.Log(Entry{RequestID: "c"})

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := sink.count(); got != 3 {
		t.Fatalf("sink received %d entries, want 3", got)
	}
	if l.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0", l.Dropped())
	}
}

func TestLoggerDropsWhenBufferFull(t *testing.T) {
	sink := &captureSink{}
	l := newWithBuffer(context.Background(), 1, sink)
	defer l.Close()

	// Far more entries than a 1-slot buffer can absorb between flushes.
	for i := 0; i < 10_000; i++ {
		l.Log(Entry{RequestID: "flood"})
	}

	if l.Dropped() == 0 {
		t.Error("expected drops with a 1-entry buffer")
	}
}

func TestLoggerCountsFailedWrites(t *testing.T) {
	sink := &captureSink{err: errors.New("sink down")}
	l := New(context.Background(), sink)

	l.Log(Entry{RequestID: "a"})
	l.Log(Entry{RequestID: "b"})

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if l.Dropped() != 2 {
		t.Errorf("Dropped = %d, want 2", l.Dropped())
	}
}

func TestLoggerFansOutToAllSinks(t *testing.T) {
	a, b := &captureSink{}, &captureSink{}
	l := New(context.Background(), a, b)

	l.Log(Entry{RequestID: "x"})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if a.count() != 1 || b.count() != 1 {
		t.Errorf("sinks received %d/%d entries, want 1/1", a.count(), b.count())
	}
}
