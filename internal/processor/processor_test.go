package processor

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fx3dev/fx3stream/internal/interfaces"
	"github.com/fx3dev/fx3stream/internal/ring"
)

type recordingSink struct {
	mu          sync.Mutex
	packets     []*interfaces.DataPacket
	batches     [][]*interfaces.DataPacket
	failNextN   int
}

func (s *recordingSink) OnPacket(pkt *interfaces.DataPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNextN > 0 {
		s.failNextN--
		return fmt.Errorf("sink rejected packet")
	}
	s.packets = append(s.packets, pkt)
	return nil
}

func (s *recordingSink) OnBatch(batch []*interfaces.DataPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	return nil
}

func (s *recordingSink) packetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.packets)
}

func (s *recordingSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func TestProcessorPrefersBatchesOverSinglePackets(t *testing.T) {
	r := ring.New(ring.Config{Slots: 8, SlotCapacity: 16, MaxPacketsPerBatch: 2, MaxBatchIntervalMs: 50})
	sink := &recordingSink{}
	p := New(Config{Ring: r, Sink: sink})

	go p.Run()
	defer p.Stop()

	for i := 0; i < 4; i++ {
		buf, _ := r.GetWriteBuffer()
		_, err := r.Commit(len(buf))
		assert.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		return sink.batchCount() == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, sink.packetCount())
}

func TestProcessorFallsBackToOnPacketForSingleElementBatch(t *testing.T) {
	// max_packets_per_batch=1 means every commit closes its own
	// one-packet "batch"; the processor must deliver it via both
	// OnBatch and, additionally, OnPacket for backward compatibility.
	r := ring.New(ring.Config{Slots: 8, SlotCapacity: 16, MaxPacketsPerBatch: 1, MaxBatchIntervalMs: 50})
	sink := &recordingSink{}
	p := New(Config{Ring: r, Sink: sink})

	go p.Run()
	defer p.Stop()

	buf, _ := r.GetWriteBuffer()
	_, err := r.Commit(len(buf))
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		return sink.packetCount() == 1 && sink.batchCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestProcessorContinuesAfterSinkFailure(t *testing.T) {
	r := ring.New(ring.Config{Slots: 8, SlotCapacity: 16, MaxPacketsPerBatch: 1, MaxBatchIntervalMs: 50})
	sink := &recordingSink{failNextN: 1}
	p := New(Config{Ring: r, Sink: sink})

	go p.Run()
	defer p.Stop()

	for i := 0; i < 2; i++ {
		buf, _ := r.GetWriteBuffer()
		_, err := r.Commit(len(buf))
		assert.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		return sink.packetCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestProcessorDrainsQueuedWorkBeforeStopReturns(t *testing.T) {
	r := ring.New(ring.Config{Slots: 8, SlotCapacity: 16, MaxPacketsPerBatch: 1, MaxBatchIntervalMs: 50})
	sink := &recordingSink{}
	p := New(Config{Ring: r, Sink: sink})

	for i := 0; i < 3; i++ {
		buf, _ := r.GetWriteBuffer()
		_, err := r.Commit(len(buf))
		assert.NoError(t, err)
	}

	go p.Run()
	p.Stop()

	assert.Equal(t, 3, sink.packetCount())
}
