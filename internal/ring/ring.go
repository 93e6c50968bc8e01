// Package ring implements the RingBuffer (C3): a fixed pool of N
// equal-sized byte buffers that couples the USB reader (the producer)
// to downstream consumers (the processor) with batching, backpressure,
// and occupancy warning levels.
//
// The shape is grounded on the teacher's io_uring submission/completion
// ring (internal/uring/minimal.go): a fixed-size array of slots
// addressed by an index that only ever advances modulo N, with a
// single mutex serializing index bookkeeping and a batched-flush
// consumer side. Where the teacher's ring hands kernel-visible SQEs
// across a shared-memory boundary (and so needs explicit memory
// fences, see internal/uring/barrier.go), this ring is entirely
// in-process: Go's sync.Mutex already establishes the happens-before
// edge a consumer needs to see a fully committed packet, so no
// fences are required here.
package ring

import (
	"fmt"
	"sync"
	"time"

	"github.com/fx3dev/fx3stream/internal/constants"
	"github.com/fx3dev/fx3stream/internal/interfaces"
)

// Occupancy is the three-valued classification of the batch queue
// fill named in spec.md §4.3 / GLOSSARY.
type Occupancy int

const (
	OccupancyNormal Occupancy = iota
	OccupancyWarning
	OccupancyCritical
)

func (o Occupancy) String() string {
	switch o {
	case OccupancyWarning:
		return "warning"
	case OccupancyCritical:
		return "critical"
	default:
		return "normal"
	}
}

// Config configures a RingBuffer's pool size, slot capacity, and
// batching thresholds.
type Config struct {
	Slots                int
	SlotCapacity         int
	MaxPacketsPerBatch    int
	MaxBatchIntervalMs    int64
	Observer              interfaces.Observer
	Now                   func() time.Time // injectable for deterministic tests
}

// DefaultConfig returns spec.md §3's defaults (N=64, B=262144,
// 8 packets / 50ms batching).
func DefaultConfig() Config {
	return Config{
		Slots:              constants.DefaultRingSlots,
		SlotCapacity:       constants.DefaultSlotCapacity,
		MaxPacketsPerBatch: constants.DefaultMaxPacketsPerBatch,
		MaxBatchIntervalMs: constants.DefaultMaxBatchIntervalMs,
	}
}

// RingBuffer is the C3 component. All mutating operations run under a
// single mutex: the writer holds at most one checked-out slot at a
// time and commit/occupancy/reset are mutually exclusive, so no
// consumer ever observes a half-committed packet.
type RingBuffer struct {
	mu sync.Mutex

	slots        [][]byte
	slotCapacity int
	writeIndex   int

	readyPackets []*interfaces.DataPacket
	readyBatches [][]*interfaces.DataPacket
	currentBatch []*interfaces.DataPacket
	batchStart   time.Time
	nextBatchID  uint32

	maxPacketsPerBatch int
	maxBatchIntervalMs int64

	warningThreshold  int
	criticalThreshold int

	observer interfaces.Observer
	now      func() time.Time

	cond *sync.Cond
}

// New constructs a RingBuffer from cfg, filling in any zero field
// from DefaultConfig.
func New(cfg Config) *RingBuffer {
	def := DefaultConfig()
	if cfg.Slots <= 0 {
		cfg.Slots = def.Slots
	}
	if cfg.SlotCapacity <= 0 {
		cfg.SlotCapacity = def.SlotCapacity
	}
	if cfg.MaxPacketsPerBatch <= 0 {
		cfg.MaxPacketsPerBatch = def.MaxPacketsPerBatch
	}
	if cfg.MaxBatchIntervalMs <= 0 {
		cfg.MaxBatchIntervalMs = def.MaxBatchIntervalMs
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	slots := make([][]byte, cfg.Slots)
	for i := range slots {
		slots[i] = make([]byte, cfg.SlotCapacity)
	}

	r := &RingBuffer{
		slots:              slots,
		slotCapacity:       cfg.SlotCapacity,
		maxPacketsPerBatch: cfg.MaxPacketsPerBatch,
		maxBatchIntervalMs: cfg.MaxBatchIntervalMs,
		warningThreshold:   (cfg.Slots*constants.OccupancyWarningPct + 99) / 100,
		criticalThreshold:  (cfg.Slots*constants.OccupancyCriticalPct + 99) / 100,
		observer:           cfg.Observer,
		now:                cfg.Now,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// GetWriteBuffer returns the slot at write_index and its capacity. It
// does not advance the index; Commit does. The caller must not retain
// the returned slice past the matching Commit call — the slot is
// reused once committed.
func (r *RingBuffer) GetWriteBuffer() ([]byte, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[r.writeIndex], r.slotCapacity
}

// Commit finalizes bytesWritten bytes in the currently checked-out
// slot per spec.md §4.3's seven-step procedure.
func (r *RingBuffer) Commit(bytesWritten int) (*interfaces.DataPacket, error) {
	if bytesWritten == 0 || bytesWritten > r.slotCapacity {
		return nil, fmt.Errorf("ring: invalid commit size %d (capacity %d)", bytesWritten, r.slotCapacity)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]byte, bytesWritten)
	copy(data, r.slots[r.writeIndex][:bytesWritten])

	if len(r.currentBatch) == 0 {
		r.nextBatchID++
		r.batchStart = r.now()
	}

	pkt := &interfaces.DataPacket{
		Data:           data,
		Size:           bytesWritten,
		TimestampNs:    r.now().UnixNano(),
		BatchID:        r.nextBatchID,
		PacketsInBatch: len(r.currentBatch) + 1,
	}
	r.currentBatch = append(r.currentBatch, pkt)

	elapsed := r.now().Sub(r.batchStart).Milliseconds()
	if len(r.currentBatch) == r.maxPacketsPerBatch || elapsed >= r.maxBatchIntervalMs {
		pkt.IsBatchComplete = true
		closed := r.currentBatch
		r.readyBatches = append(r.readyBatches, closed)
		r.currentBatch = nil
		if r.observer != nil {
			r.observer.ObserveBatchClosed(len(closed))
		}
	}

	r.readyPackets = append(r.readyPackets, pkt)
	r.writeIndex = (r.writeIndex + 1) % len(r.slots)

	if r.observer != nil {
		r.observer.ObserveCommit(uint64(bytesWritten), true)
		r.observer.ObserveOccupancy(int(r.occupancyLocked()))
	}

	r.cond.Broadcast()
	return pkt, nil
}

// PopBatch removes and returns the oldest ready batch, or nil if none
// is ready.
func (r *RingBuffer) PopBatch() []*interfaces.DataPacket {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.readyBatches) == 0 {
		return nil
	}
	batch := r.readyBatches[0]
	r.readyBatches = r.readyBatches[1:]
	return batch
}

// PopPacket removes and returns the oldest ready single packet, or
// nil if none is ready. Every committed packet lands here regardless
// of batch membership, so single-packet consumers see every packet.
func (r *RingBuffer) PopPacket() *interfaces.DataPacket {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.readyPackets) == 0 {
		return nil
	}
	pkt := r.readyPackets[0]
	r.readyPackets = r.readyPackets[1:]
	return pkt
}

// HasWork reports whether either queue is non-empty.
func (r *RingBuffer) HasWork() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.readyBatches) > 0 || len(r.readyPackets) > 0
}

// Wait blocks until HasWork() becomes true or the timeout elapses,
// whichever comes first. The Processor (C5) calls this once per loop
// iteration and re-checks its own stopping condition on return, so
// Wait itself takes no stopping callback.
func (r *RingBuffer) Wait(timeout time.Duration) {
	timer := time.AfterFunc(timeout, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer timer.Stop()

	r.mu.Lock()
	if len(r.readyBatches) == 0 && len(r.readyPackets) == 0 {
		r.cond.Wait()
	}
	r.mu.Unlock()
}

// OccupancyLevel classifies current batch-queue fill against the
// warning/critical thresholds.
func (r *RingBuffer) OccupancyLevel() Occupancy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.occupancyLocked()
}

func (r *RingBuffer) occupancyLocked() Occupancy {
	n := len(r.readyBatches)
	switch {
	case n >= r.criticalThreshold:
		return OccupancyCritical
	case n >= r.warningThreshold:
		return OccupancyWarning
	default:
		return OccupancyNormal
	}
}

// Reset drains both queues and rewinds write_index to zero.
func (r *RingBuffer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readyPackets = nil
	r.readyBatches = nil
	r.currentBatch = nil
	r.writeIndex = 0
}

// Slots returns the configured number of pool slots (N).
func (r *RingBuffer) Slots() int { return len(r.slots) }

// SlotCapacity returns the configured per-slot capacity (B).
func (r *RingBuffer) SlotCapacity() int { return r.slotCapacity }
