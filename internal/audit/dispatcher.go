// internal/audit/dispatcher.go
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"eligibility-engine/internal/common/logger"
)

const writeTimeout = 5 * time.Second

// Dispatcher fans records out to the writers on a background goroutine. Dispatch never
// blocks: when the queue is full the record is dropped and logged.
type Dispatcher struct {
	writers []Writer
	queue   chan Record
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	dropped int64
	logger  logger.Logger
}

func NewDispatcher(queueSize int, log logger.Logger, writers ...Writer) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		writers: writers,
		queue:   make(chan Record, queueSize),
		done:    make(chan struct{}),
		logger:  log.WithFields(map[string]interface{}{"component": "audit"}),
	}
	go d.worker()
	return d
}

func (d *Dispatcher) Dispatch(rec Record) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.queue <- rec:
	default:
		atomic.AddInt64(&d.dropped, 1)
		d.logger.Warn("audit queue full, dropping record", map[string]interface{}{
			"recordId": rec.ID,
			"outcome":  rec.Outcome,
		})
	}
}

// Dropped reports how many records were discarded because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return atomic.LoadInt64(&d.dropped)
}

// Close stops accepting records and waits until the queued ones are written.
// It is safe to call more than once.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
	return nil
}

func (d *Dispatcher) worker() {
	defer close(d.done)

	for rec := range d.queue {
		for _, w := range d.writers {
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			if err := w.Write(ctx, rec); err != nil {
				d.logger.Error("audit write failed", map[string]interface{}{
					"writer":   w.Name(),
					"recordId": rec.ID,
					"error":    err,
				})
			}
			cancel()
		}
	}
}
