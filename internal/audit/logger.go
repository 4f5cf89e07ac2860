// Package audit implements a non-blocking, batched audit trail of completed
// gateway requests.
//
// Entries are written to an internal buffered channel and flushed in
// batches by a background goroutine, so auditing never blocks the request
// hot path. When the channel is full or a sink write fails, entries are
// dropped and counted in Dropped.
package audit

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const (
	channelBuffer = 10_000
	batchSize     = 100
	flushInterval = time.Second
	flushTimeout  = 5 * time.Second
)

// Entry is one completed request, successful or not.
type Entry struct {
	Time         time.Time
	RequestID    string
	Tenant       string
	Strategy     string
	Complexity   float64
	Provider     string
	Model        string
	Outcome      string
	CacheHit     bool
	LatencyMs    int64
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Attempts     []string
	Warnings     []string
}

// Sink persists flushed batches. WriteBatch is called from a single
// goroutine; the entries slice is only valid for the duration of the call.
type Sink interface {
	WriteBatch(ctx context.Context, entries []Entry) error
}

// Logger fans entries out to its sinks in batches.
type Logger struct {
	ch        chan Entry
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	dropped int64

	baseCtx context.Context
	sinks   []Sink
	log     *slog.Logger
}

// New starts the flush loop. With no sinks the logger writes to a SlogSink
// on stdout.
func New(ctx context.Context, sinks ...Sink) *Logger {
	return newWithBuffer(ctx, channelBuffer, sinks...)
}

func newWithBuffer(ctx context.Context, buffer int, sinks ...Sink) *Logger {
	if len(sinks) == 0 {
		sinks = []Sink{NewSlogSink(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})))}
	}

	l := &Logger{
		ch:      make(chan Entry, buffer),
		done:    make(chan struct{}),
		baseCtx: ctx,
		sinks:   sinks,
		log:     slog.Default(),
	}

	l.wg.Add(1)
	go l.run()

	return l
}

// Log enqueues one entry. Never blocks; on a full buffer the entry is
// dropped and counted.
func (l *Logger) Log(entry Entry) {
	select {
	case l.ch <- entry:
	default:
		atomic.AddInt64(&l.dropped, 1)
	}
}

// Dropped returns the number of entries lost to a full buffer or failed
// sink writes.
func (l *Logger) Dropped() int64 {
	return atomic.LoadInt64(&l.dropped)
}

// Close drains the buffer, flushes the final batch and stops the loop.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
	return nil
}

func (l *Logger) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(l.baseCtx, flushTimeout)
		for _, sink := range l.sinks {
			if err := sink.WriteBatch(ctx, batch); err != nil {
				atomic.AddInt64(&l.dropped, int64(len(batch)))
				l.log.ErrorContext(ctx, "audit_flush_error",
					slog.Int("entries", len(batch)),
					slog.String("error", err.Error()),
				)
			}
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-l.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-l.done:
			for {
				select {
				case entry := <-l.ch:
					batch = append(batch, entry)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// SlogSink writes each entry as one structured log record.
type SlogSink struct {
	log *slog.Logger
}

func NewSlogSink(log *slog.Logger) *SlogSink {
	return &SlogSink{log: log}
}

func (s *SlogSink) WriteBatch(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		s.log.InfoContext(ctx, "request",
			slog.Time("ts", normalizeTime(e.Time)),
			slog.String("request_id", e.RequestID),
			slog.String("tenant", e.Tenant),
			slog.String("strategy", e.Strategy),
			slog.Float64("complexity", e.Complexity),
			slog.String("provider", e.Provider),
			slog.String("model", e.Model),
			slog.String("outcome", e.Outcome),
			slog.Bool("cache_hit", e.CacheHit),
			slog.Int64("latency_ms", e.LatencyMs),
			slog.Int("input_tokens", e.InputTokens),
			slog.Int("output_tokens", e.OutputTokens),
			slog.Float64("cost_usd", e.CostUSD),
			slog.Any("attempts", e.Attempts),
			slog.Any("warnings", e.Warnings),
		)
	}
	return nil
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
