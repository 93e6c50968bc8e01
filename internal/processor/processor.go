// Package processor implements the Processor (C5): a goroutine that
// drains ready batches (preferring them over single packets, per
// spec.md §4.5) from a RingBuffer and fans each one out to a
// DataSink, logging and continuing past a failing sink rather than
// stopping the pipeline.
//
// Grounded on the teacher's internal/queue/runner.go ioLoop shape
// (poll, process, repeat until done) but replacing the kernel
// completion-queue poll with RingBuffer.Wait's condition-variable
// wakeup.
package processor

import (
	"context"

	"github.com/fx3dev/fx3stream/internal/constants"
	"github.com/fx3dev/fx3stream/internal/interfaces"
	"github.com/fx3dev/fx3stream/internal/logging"
	"github.com/fx3dev/fx3stream/internal/ring"
)

// Config wires the Processor to its ring source and fan-out sink.
type Config struct {
	Ring   *ring.RingBuffer
	Sink   interfaces.DataSink
	Logger *logging.Logger
}

// Processor is the C5 component.
type Processor struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Processor. Call Run in its own goroutine.
func New(cfg Config) *Processor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Processor{cfg: cfg, ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// Stop signals the loop to exit and waits for it to drain and return.
func (p *Processor) Stop() {
	p.cancel()
	<-p.done
}

// Run drains the ring buffer until stopped, delivering whatever work
// remains queued before it returns.
func (p *Processor) Run() {
	defer close(p.done)

	for {
		stopping := p.isStopping()

		if batch := p.cfg.Ring.PopBatch(); batch != nil {
			p.deliverBatch(batch)
			continue
		}
		if pkt := p.cfg.Ring.PopPacket(); pkt != nil {
			p.deliverPacket(pkt)
			continue
		}

		if stopping {
			return
		}

		p.cfg.Ring.Wait(constants.ProcessorWaitTimeout)
	}
}

func (p *Processor) isStopping() bool {
	select {
	case <-p.ctx.Done():
		return true
	default:
		return false
	}
}

func (p *Processor) deliverBatch(batch []*interfaces.DataPacket) {
	if err := p.cfg.Sink.OnBatch(batch); err != nil {
		p.logSinkFailure(err, "on_batch")
	}
	if len(batch) == 1 {
		p.deliverPacket(batch[0])
	}
}

func (p *Processor) deliverPacket(pkt *interfaces.DataPacket) {
	if err := p.cfg.Sink.OnPacket(pkt); err != nil {
		p.logSinkFailure(err, "on_packet")
	}
}

func (p *Processor) logSinkFailure(err error, op string) {
	if p.cfg.Logger == nil {
		return
	}
	p.cfg.Logger.WithError(err).WithRequest(0, op).Warn("data sink rejected packet; continuing")
}
