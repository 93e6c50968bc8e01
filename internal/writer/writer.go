// Package writer implements the writer capability (C8): AsyncWriter,
// which buffers writes through a bounded queue drained by a worker
// goroutine, and StdWriter, which batches writes into a fixed staging
// buffer flushed on fill or close.
//
// The bounded-queue-with-backpressure shape is grounded on the
// teacher's internal/queue/pool.go sharded-pool pattern generalized
// from buffer reuse to a producer/consumer byte-blob queue; the
// worker-goroutine-with-stop-flag shape follows
// internal/queue/runner.go's ioLoop (pin a goroutine, select on done,
// otherwise do one unit of work).
package writer

import (
	"os"
	"sync"

	"github.com/fx3dev/fx3stream/internal/constants"
)

// Writer is the capability both AsyncWriter and StdWriter implement.
type Writer interface {
	Open(path string) error
	Write(p []byte) bool
	Close() error
	LastError() string
	IsOpen() bool
}

// AsyncWriter queues writes onto a bounded channel drained by a
// worker goroutine, flushing after every write. A producer blocks
// when the queue reaches MAX_QUEUE_SIZE until occupancy drops below
// 80%.
type AsyncWriter struct {
	mu        sync.Mutex
	file      *os.File
	open      bool
	lastError string

	queue   chan []byte
	maxLen  int
	resume  int
	occMu   sync.Mutex
	occCond *sync.Cond
	occ     int

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewAsyncWriter creates an unopened AsyncWriter with the default
// queue sizing (100 entries, resume below 80%).
func NewAsyncWriter() *AsyncWriter {
	w := &AsyncWriter{
		queue:  make(chan []byte, constants.AsyncWriterMaxQueue),
		maxLen: constants.AsyncWriterMaxQueue,
		resume: int(float64(constants.AsyncWriterMaxQueue) * constants.AsyncWriterResumeFrac),
	}
	w.occCond = sync.NewCond(&w.occMu)
	return w
}

// Open opens path for writing and starts the worker goroutine.
func (w *AsyncWriter) Open(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		w.lastError = err.Error()
		return err
	}
	w.file = f
	w.open = true
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	go w.worker()
	return nil
}

// Write enqueues p for the worker, blocking the caller if the queue
// is at capacity until occupancy drops below the resume watermark. It
// returns false (without blocking further) once the writer has been
// closed. A failed write in the worker is recorded in LastError and
// does not make later Write calls return false.
func (w *AsyncWriter) Write(p []byte) bool {
	w.mu.Lock()
	if !w.open {
		w.mu.Unlock()
		return false
	}
	w.mu.Unlock()

	cp := make([]byte, len(p))
	copy(cp, p)

	w.occMu.Lock()
	for w.occ >= w.maxLen {
		w.occCond.Wait()
	}
	w.occ++
	w.occMu.Unlock()

	select {
	case w.queue <- cp:
		return true
	case <-w.stopCh:
		return false
	}
}

func (w *AsyncWriter) worker() {
	defer close(w.done)
	for {
		select {
		case blob := <-w.queue:
			w.flush(blob)
		case <-w.stopCh:
			w.drain()
			return
		}
	}
}

func (w *AsyncWriter) drain() {
	for {
		select {
		case blob := <-w.queue:
			w.flush(blob)
		default:
			return
		}
	}
}

func (w *AsyncWriter) flush(blob []byte) {
	w.occMu.Lock()
	w.occ--
	if w.occ < w.resume {
		w.occCond.Broadcast()
	}
	w.occMu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return
	}
	if _, err := w.file.Write(blob); err != nil {
		w.lastError = err.Error()
		return
	}
	_ = w.file.Sync()
}

// Close stops the worker, drains any remaining queued entries, and
// closes the underlying file.
func (w *AsyncWriter) Close() error {
	w.stopOnce.Do(func() {
		if w.stopCh != nil {
			close(w.stopCh)
		}
	})
	if w.done != nil {
		<-w.done
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.open = false
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		w.lastError = err.Error()
	}
	return err
}

// LastError returns the last captured error string, if any.
func (w *AsyncWriter) LastError() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastError
}

// IsOpen reports whether the writer currently has an open file.
func (w *AsyncWriter) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

var _ Writer = (*AsyncWriter)(nil)

// StdWriter accumulates writes into a fixed-size staging buffer and
// flushes to disk only when the buffer fills or Close is called.
type StdWriter struct {
	mu        sync.Mutex
	file      *os.File
	open      bool
	lastError string
	staging   []byte
	cap       int
}

// NewStdWriter creates an unopened StdWriter with the default 4 MiB
// staging buffer.
func NewStdWriter() *StdWriter {
	return &StdWriter{cap: constants.StdWriterStagingBytes, staging: make([]byte, 0, constants.StdWriterStagingBytes)}
}

// Open opens path for writing.
func (w *StdWriter) Open(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		w.lastError = err.Error()
		return err
	}
	w.file = f
	w.open = true
	w.staging = w.staging[:0]
	return nil
}

// Write appends p to the staging buffer, flushing through to disk
// whenever the buffer fills (possibly more than once for a single
// large write).
func (w *StdWriter) Write(p []byte) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return false
	}

	for len(p) > 0 {
		space := w.cap - len(w.staging)
		n := len(p)
		if n > space {
			n = space
		}
		w.staging = append(w.staging, p[:n]...)
		p = p[n:]

		if len(w.staging) >= w.cap {
			if !w.flushLocked() {
				return false
			}
		}
	}
	return true
}

func (w *StdWriter) flushLocked() bool {
	if len(w.staging) == 0 {
		return true
	}
	if _, err := w.file.Write(w.staging); err != nil {
		w.lastError = err.Error()
		return false
	}
	w.staging = w.staging[:0]
	return true
}

// Close flushes the residual staging buffer and closes the file.
func (w *StdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return nil
	}
	w.flushLocked()
	w.open = false
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		w.lastError = err.Error()
	}
	return err
}

// LastError returns the last captured error string, if any.
func (w *StdWriter) LastError() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastError
}

// IsOpen reports whether the writer currently has an open file.
func (w *StdWriter) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

var _ Writer = (*StdWriter)(nil)
