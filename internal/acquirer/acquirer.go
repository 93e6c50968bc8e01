// Package acquirer implements the Acquirer (C4): a dedicated goroutine
// that repeatedly checks out a ring buffer slot, issues a bulk USB
// read into it, and commits the result, stopping the application on
// unrecoverable device errors or ring overflow.
//
// The loop shape — a dedicated goroutine running a select-on-done
// wrapped around a processing step that reports its own stop
// condition — is grounded on the teacher's internal/queue/runner.go
// ioLoop. The teacher's ioLoop additionally pins itself to an OS
// thread and sets CPU affinity because ublk_drv requires one
// dedicated kernel thread per queue; libusb has no such requirement,
// so this loop runs as an ordinary goroutine.
package acquirer

import (
	"context"
	"fmt"
	"time"

	"github.com/fx3dev/fx3stream/internal/constants"
	"github.com/fx3dev/fx3stream/internal/interfaces"
	"github.com/fx3dev/fx3stream/internal/logging"
	"github.com/fx3dev/fx3stream/internal/ring"
)

// StopReason classifies why the Acquirer stopped, per spec.md §4.4.
type StopReason int

const (
	StopNone StopReason = iota
	StopRequested
	StopBufferOverflow
	StopReadError
	StopDeviceError
)

func (s StopReason) String() string {
	switch s {
	case StopRequested:
		return "stop_requested"
	case StopBufferOverflow:
		return "buffer_overflow"
	case StopReadError:
		return "read_error"
	case StopDeviceError:
		return "device_error"
	default:
		return "none"
	}
}

// StatsSnapshot is published on every stats-update tick (every
// StatsUpdateIntervalMs) while the Acquirer runs.
type StatsSnapshot struct {
	TotalBytes     uint64
	TotalReads     uint64
	FailedReads    uint64
	BytesPerSecond float64
}

// Config wires the Acquirer to its USB source, ring buffer sink, and
// observability hooks.
type Config struct {
	Endpoint interfaces.UsbEndpoint
	Ring     *ring.RingBuffer
	Logger   *logging.Logger
	Observer interfaces.Observer
	OnStats  func(StatsSnapshot)
	OnStop   func(reason StopReason, err error)
}

// Acquirer is the C4 component.
type Acquirer struct {
	cfg Config

	cancel context.CancelFunc
	ctx    context.Context
	done   chan struct{}

	stats          StatsSnapshot
	consecutiveErr int
	lastStatsAt    time.Time
	statsWindowBytes uint64
	statsWindowStart time.Time
}

// New constructs an Acquirer. Call Run in its own goroutine.
func New(cfg Config) *Acquirer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Acquirer{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Stop signals the loop to exit at its next stop check and blocks
// until it has done so.
func (a *Acquirer) Stop() {
	a.cancel()
	<-a.done
}

// Run executes the acquisition loop until stopped or a terminal
// condition is reached. It is safe to call exactly once.
func (a *Acquirer) Run() {
	defer close(a.done)

	now := time.Now()
	a.lastStatsAt = now
	a.statsWindowStart = now

	for {
		select {
		case <-a.ctx.Done():
			a.stop(StopRequested, nil)
			return
		default:
		}

		if a.cfg.Ring.OccupancyLevel() == ring.OccupancyCritical {
			a.stop(StopBufferOverflow, fmt.Errorf("acquirer: ring buffer occupancy reached critical"))
			return
		}

		if reason, err := a.step(); reason != StopNone {
			a.stop(reason, err)
			return
		}

		a.maybePublishStats()
	}
}

// step performs one read-commit cycle. It returns a non-StopNone
// reason when the loop must terminate.
func (a *Acquirer) step() (StopReason, error) {
	buf, _ := a.cfg.Ring.GetWriteBuffer()

	readCtx, cancel := context.WithTimeout(a.ctx, constants.ReadTransferTimeout)
	defer cancel()

	start := time.Now()
	n, err := a.cfg.Endpoint.ReadInto(readCtx, buf)
	latency := time.Since(start)

	if err != nil {
		a.stats.FailedReads++
		a.consecutiveErr++
		if a.cfg.Observer != nil {
			a.cfg.Observer.ObserveRead(0, uint64(latency.Nanoseconds()), false)
		}
		if a.cfg.Logger != nil {
			a.cfg.Logger.WithError(err).Warn("bulk read failed")
		}
		if a.consecutiveErr >= constants.MaxConsecutiveFailures {
			return StopReadError, fmt.Errorf("acquirer: %d consecutive read failures: %w", a.consecutiveErr, err)
		}
		time.Sleep(constants.ReadFailureBackoff)
		return StopNone, nil
	}

	a.consecutiveErr = 0
	a.stats.TotalReads++
	a.stats.TotalBytes += uint64(n)
	a.statsWindowBytes += uint64(n)

	if a.cfg.Observer != nil {
		a.cfg.Observer.ObserveRead(uint64(n), uint64(latency.Nanoseconds()), true)
	}

	if _, err := a.cfg.Ring.Commit(n); err != nil {
		// n came from the endpoint and should never exceed slot
		// capacity (ReadInto is bounded by len(buf)); treat as a
		// device-level anomaly rather than silently dropping data.
		return StopDeviceError, fmt.Errorf("acquirer: commit failed: %w", err)
	}

	return StopNone, nil
}

func (a *Acquirer) maybePublishStats() {
	now := time.Now()
	if now.Sub(a.lastStatsAt) < constants.StatsUpdateIntervalMs*time.Millisecond {
		return
	}
	elapsed := now.Sub(a.statsWindowStart).Seconds()
	if elapsed > 0 {
		a.stats.BytesPerSecond = float64(a.statsWindowBytes) / elapsed
	}
	a.lastStatsAt = now
	a.statsWindowBytes = 0
	a.statsWindowStart = now

	if a.cfg.OnStats != nil {
		a.cfg.OnStats(a.stats)
	}
}

func (a *Acquirer) stop(reason StopReason, err error) {
	if a.cfg.Logger != nil {
		if err != nil {
			a.cfg.Logger.WithError(err).Warn(fmt.Sprintf("acquirer stopped: %s", reason))
		} else {
			a.cfg.Logger.Info(fmt.Sprintf("acquirer stopped: %s", reason))
		}
	}
	if a.cfg.OnStop != nil {
		a.cfg.OnStop(reason, err)
	}
}
