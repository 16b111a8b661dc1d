package audit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

var (
	defaultNumWorkers uint = 2
	defaultQueueSize  uint = 100
)

const defaultRecordTimeout = 10 * time.Second

// DispatcherConfig is the configuration for a Dispatcher.
type DispatcherConfig struct {
	// Recorder receives every dispatched record.
	Recorder Recorder

	// NumWorkers is the number of background workers (defaults to 2).
	NumWorkers uint

	// QueueSize is the capacity of the buffered record channel (defaults to 100).
	QueueSize uint

	// Timeout bounds a single Recorder call (defaults to 10s).
	Timeout time.Duration

	Logger *slog.Logger
}

// Dispatcher hands records to a Recorder on background workers so callers
// never block on a sink.
type Dispatcher struct {
	config *DispatcherConfig
	queue  chan Record
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewDispatcher creates a Dispatcher and starts its workers.
func NewDispatcher(c *DispatcherConfig) (*Dispatcher, error) {
	if c.Recorder == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.Timeout == 0 {
		c.Timeout = defaultRecordTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	d := &Dispatcher{
		config: c,
		queue:  make(chan Record, c.QueueSize),
		logger: c.Logger,
	}

	d.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go d.worker(i)
	}
	return d, nil
}

// Enqueue submits a record. It returns false when the queue is full or the
// dispatcher is closed, in which case the record is dropped.
func (d *Dispatcher) Enqueue(r Record) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("audit record dropped, dispatcher closed", "record_id", r.ID)
		return false
	}

	select {
	case d.queue <- r:
		d.logger.Debug("audit record queued", "record_id", r.ID, "subject_id", r.SubjectID)
		return true
	default:
		d.logger.Error("audit record dropped, queue full",
			"record_id", r.ID,
			"subject_id", r.SubjectID,
			"candidate_id", r.CandidateID,
		)
		return false
	}
}

// Close stops accepting records and waits for queued ones to drain.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	d.wg.Wait()
}

func (d *Dispatcher) worker(id uint) {
	defer d.wg.Done()
	d.logger.Debug("audit worker started", "worker_id", id)

	for r := range d.queue {
		d.process(r)
	}

	d.logger.Debug("audit worker stopped", "worker_id", id)
}

func (d *Dispatcher) process(r Record) {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.Timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("audit recorder panicked", "record_id", r.ID, "panic", p)
		}
	}()

	if err := d.config.Recorder.Record(ctx, r); err != nil {
		d.logger.Error("audit record failed",
			"record_id", r.ID,
			"subject_id", r.SubjectID,
			"error", err,
		)
		return
	}
	d.logger.Debug("audit record stored", "record_id", r.ID)
}
