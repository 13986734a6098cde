// Package trace records per-turn telemetry without blocking turn processing.
package trace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/avesely/opsdeck/internal/domain"
	"github.com/avesely/opsdeck/internal/shared"
	"github.com/avesely/opsdeck/internal/store"
)

const (
	defaultQueueSize = 1000
	writeTimeout     = 5 * time.Second
	writeRetries     = 3
	retryBaseDelay   = 100 * time.Millisecond
)

// Sink accepts finished turn traces.
type Sink interface {
	Record(rec domain.TraceRecord)
}

// Recorder persists traces asynchronously through a bounded queue. Records
// are dropped (with a warning) rather than blocking a turn when the queue is
// full. Close flushes whatever is queued.
type Recorder struct {
	repo  store.Repository
	queue chan domain.TraceRecord

	closeOnce sync.Once
	done      chan struct{}
}

// NewRecorder creates a Recorder and starts its writer goroutine.
func NewRecorder(repo store.Repository, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	r := &Recorder{
		repo:  repo,
		queue: make(chan domain.TraceRecord, queueSize),
		done:  make(chan struct{}),
	}
	go r.writeLoop()
	return r
}

// Record enqueues a trace. Never blocks.
func (r *Recorder) Record(rec domain.TraceRecord) {
	select {
	case r.queue <- rec:
	default:
		slog.Warn("Trace queue full, dropping record", "trace_id", rec.TraceID)
	}
}

// Close stops accepting records and flushes the queue.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.queue)
		<-r.done
	})
}

func (r *Recorder) writeLoop() {
	defer close(r.done)
	for rec := range r.queue {
		r.write(rec)
	}
}

// write persists one record with backoff against SQLITE_BUSY, which can
// occur while the retention sweeper holds the write lock.
func (r *Recorder) write(rec domain.TraceRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	for i := 0; i < writeRetries; i++ {
		err := r.repo.SaveTrace(ctx, &rec)
		if err == nil {
			return
		}
		if shared.IsSQLiteConflictError(err) && i < writeRetries-1 {
			delay := retryBaseDelay * time.Duration(1<<i)
			slog.Debug("Trace write hit busy database, retrying",
				"trace_id", rec.TraceID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}
		slog.Error("Failed to persist trace", "error", err, "trace_id", rec.TraceID)
		return
	}
}
