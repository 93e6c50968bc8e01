// Package fx3stream is the public API for driving a Cypress FX3
// streaming capture device: enumerate and open the device, issue
// start/stop commands, and fan acquired data out to pluggable sinks
// such as the FileManager.
//
// Coordinator (C11) composes the lower-level components — UsbEndpoint
// (C1), CommandCodec (C2), RingBuffer (C3), Acquirer (C4), Processor
// (C5), and the application StateMachine (C7) — the way the teacher's
// CreateAndServe/StopAndDelete compose a Controller and a set of queue
// Runners around one ublk device: build the command-plane objects,
// start the worker goroutines, and roll back cleanly on any failure
// partway through.
package fx3stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fx3dev/fx3stream/internal/acquirer"
	"github.com/fx3dev/fx3stream/internal/cmdframe"
	"github.com/fx3dev/fx3stream/internal/constants"
	"github.com/fx3dev/fx3stream/internal/fx3err"
	"github.com/fx3dev/fx3stream/internal/logging"
	"github.com/fx3dev/fx3stream/internal/metrics"
	"github.com/fx3dev/fx3stream/internal/processor"
	"github.com/fx3dev/fx3stream/internal/ring"
	"github.com/fx3dev/fx3stream/internal/statemachine"
)

// StartParams are the runtime acquisition parameters for StartTransfer.
type StartParams struct {
	Width       uint16
	Height      uint16
	Format      uint8
	LaneSeq     uint8
	ChannelMode uint8
	InvertPN    uint8
}

// Config wires a Coordinator to its collaborators. Endpoint and Sink
// are required; everything else defaults sensibly.
type Config struct {
	Endpoint UsbEndpoint
	Sink     DataSink

	Ring   ring.Config
	Logger *logging.Logger

	// OnTransition, if set, is additionally notified of every state
	// transition (in the order they occur), on top of any
	// subscribers registered later via Subscribe.
	OnTransition func(statemachine.Transition)
}

// Coordinator is the DeviceCoordinator (C11).
type Coordinator struct {
	cfg     Config
	logger  *logging.Logger
	metrics *metrics.Metrics
	machine *statemachine.Machine
	ring    *ring.RingBuffer
	codec   *cmdframe.Codec

	mu           sync.Mutex
	acq          *acquirer.Acquirer
	proc         *processor.Processor
	group        *errgroup.Group
	shuttingDown bool

	lastArrivalAt time.Time
	lastRemovalAt time.Time
}

// New constructs a Coordinator starting in statemachine.Initializing.
// It does not open the device or load commands; call LoadCommands and
// OnDeviceArrival (or drive those transitions externally) before
// StartTransfer.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Endpoint == nil {
		return nil, fx3err.New("Coordinator.New", fx3err.CodeInvalidParams, "endpoint is required")
	}
	if cfg.Sink == nil {
		return nil, fx3err.New("Coordinator.New", fx3err.CodeInvalidParams, "sink is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("coordinator")

	c := &Coordinator{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		machine: statemachine.New(),
	}
	if cfg.OnTransition != nil {
		c.machine.Subscribe(cfg.OnTransition)
	}
	return c, nil
}

// State returns the current application state.
func (c *Coordinator) State() statemachine.State {
	return c.machine.State()
}

// Subscribe registers fn to receive every future state transition.
func (c *Coordinator) Subscribe(fn statemachine.Subscriber) (unsubscribe func()) {
	return c.machine.Subscribe(fn)
}

// Metrics returns the session's metrics instance.
func (c *Coordinator) Metrics() *Metrics {
	return c.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of the session's metrics.
func (c *Coordinator) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// LoadCommands loads the three command templates from dir and fires
// CommandsLoaded on success.
func (c *Coordinator) LoadCommands(dir string) error {
	codec, err := cmdframe.Load(dir)
	if err != nil {
		c.fireUnlessShuttingDown(statemachine.ErrorOccurred)
		return fx3err.Wrap("Coordinator.LoadCommands", fx3err.CodeInvalidParams, err)
	}

	c.mu.Lock()
	c.codec = codec
	c.mu.Unlock()

	c.fireUnlessShuttingDown(statemachine.CommandsLoaded)
	return nil
}

// OnDeviceArrival opens the endpoint and publishes DeviceConnected,
// debounced per spec.md §4.11 against a prior arrival within
// DeviceEventDebounce.
func (c *Coordinator) OnDeviceArrival(ctx context.Context) error {
	if c.debounced(&c.lastArrivalAt) {
		return nil
	}

	if err := c.cfg.Endpoint.Open(ctx); err != nil {
		c.fireUnlessShuttingDown(statemachine.ErrorOccurred)
		return fx3err.Wrap("Coordinator.OnDeviceArrival", fx3err.CodeDeviceNotFound, err)
	}

	c.fireUnlessShuttingDown(statemachine.DeviceConnected)
	return nil
}

// OnDeviceRemoval force-stops any transfer in progress, closes the
// endpoint, and publishes DeviceDisconnected, debounced the same way
// as OnDeviceArrival.
func (c *Coordinator) OnDeviceRemoval() error {
	if c.debounced(&c.lastRemovalAt) {
		return nil
	}

	c.stopWorkers()
	c.cfg.Endpoint.StopTransfer()
	if err := c.cfg.Endpoint.Close(); err != nil {
		c.logger.WithError(err).Warn("endpoint close failed during removal")
	}

	c.fireUnlessShuttingDown(statemachine.DeviceDisconnected)
	return nil
}

func (c *Coordinator) debounced(last *time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if !last.IsZero() && now.Sub(*last) < constants.DeviceEventDebounce {
		return true
	}
	*last = now
	return false
}

// StartTransfer validates params, sends CMD_START, and starts the
// Acquirer and Processor in that order. Invalid params are rejected
// before any state transition, per spec.md §8 scenario 2.
func (c *Coordinator) StartTransfer(ctx context.Context, p StartParams) error {
	if p.Width == 0 || p.Height == 0 || p.Width > constants.MaxWidth || p.Height > constants.MaxHeight {
		return fx3err.New("Coordinator.StartTransfer", fx3err.CodeInvalidParams,
			fmt.Sprintf("invalid geometry %dx%d", p.Width, p.Height))
	}

	c.mu.Lock()
	codec := c.codec
	c.mu.Unlock()
	if codec == nil {
		return fx3err.New("Coordinator.StartTransfer", fx3err.CodeInvalidParams, "commands not loaded")
	}

	if !c.machine.Fire(statemachine.StartRequested) {
		return fx3err.New("Coordinator.StartTransfer", fx3err.CodeInvalidState,
			fmt.Sprintf("cannot start from state %s", c.machine.State()))
	}

	frame, err := codec.Render(cmdframe.TemplateStart, cmdframe.Params{
		Width: p.Width, Height: p.Height, Format: p.Format,
		LaneSeq: p.LaneSeq, ChannelMode: p.ChannelMode, InvertPN: p.InvertPN,
	})
	if err != nil {
		c.fireUnlessShuttingDown(statemachine.StartFailed)
		return fx3err.Wrap("Coordinator.StartTransfer", fx3err.CodeInvalidParams, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, constants.CommandTimeout)
	defer cancel()
	if err := c.cfg.Endpoint.SendCommandFrame(sendCtx, &frame); err != nil {
		c.fireUnlessShuttingDown(statemachine.StartFailed)
		return fx3err.Wrap("Coordinator.StartTransfer", fx3err.CodeIOError, err)
	}

	c.startWorkers()
	c.fireUnlessShuttingDown(statemachine.StartSucceeded)
	return nil
}

func (c *Coordinator) startWorkers() {
	c.mu.Lock()
	defer c.mu.Unlock()

	ringCfg := c.cfg.Ring
	ringCfg.Observer = metrics.NewObserver(c.metrics)
	c.ring = ring.New(ringCfg)

	c.acq = acquirer.New(acquirer.Config{
		Endpoint: c.cfg.Endpoint,
		Ring:     c.ring,
		Logger:   c.logger,
		Observer: metrics.NewObserver(c.metrics),
		OnStop:   c.onAcquirerStop,
	})
	c.proc = processor.New(processor.Config{
		Ring:   c.ring,
		Sink:   c.cfg.Sink,
		Logger: c.logger,
	})

	c.group = &errgroup.Group{}
	acq, proc := c.acq, c.proc
	c.group.Go(func() error { acq.Run(); return nil })
	c.group.Go(func() error { proc.Run(); return nil })
}

func (c *Coordinator) onAcquirerStop(reason acquirer.StopReason, err error) {
	if reason == acquirer.StopBufferOverflow {
		c.fireUnlessShuttingDown(statemachine.ErrorOccurred)
	}
	if err != nil {
		c.logger.WithError(err).Warn(fmt.Sprintf("acquirer stopped: %s", reason))
	}
}

// StopTransfer requests the endpoint's asynchronous cleanup, signals
// the Acquirer and Processor to stop, joins each with a
// StopJoinTimeout bound (detaching past it), and publishes
// StopSucceeded.
func (c *Coordinator) StopTransfer() {
	c.fireUnlessShuttingDown(statemachine.StopRequested)
	c.cfg.Endpoint.StopTransfer()
	c.stopWorkers()
	c.fireUnlessShuttingDown(statemachine.StopSucceeded)
}

func (c *Coordinator) stopWorkers() {
	c.mu.Lock()
	acq, proc, group := c.acq, c.proc, c.group
	c.acq, c.proc, c.group = nil, nil, nil
	c.mu.Unlock()

	if acq == nil && proc == nil {
		return
	}

	c.joinWithTimeout("acquirer", func() {
		if acq != nil {
			acq.Stop()
		}
	})
	c.joinWithTimeout("processor", func() {
		if proc != nil {
			proc.Stop()
		}
	})
	if group != nil {
		c.joinWithTimeout("worker group", func() { _ = group.Wait() })
	}
}

func (c *Coordinator) joinWithTimeout(name string, stop func()) {
	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(constants.StopJoinTimeout):
		c.logger.Warn(fmt.Sprintf("%s did not join within timeout, detaching", name))
	}
}

// PrepareForShutdown marks the coordinator as shutting down (so
// subsequent internal events are not published to subscribers — spec.md
// §4.11's "stopping during shutdown skips UI publication"), stops any
// in-progress transfer, and fires AppShutdown.
func (c *Coordinator) PrepareForShutdown() {
	c.mu.Lock()
	c.shuttingDown = true
	c.mu.Unlock()

	c.stopWorkers()
	c.cfg.Endpoint.StopTransfer()
	c.machine.Fire(statemachine.AppShutdown)
}

func (c *Coordinator) fireUnlessShuttingDown(event statemachine.Event) bool {
	c.mu.Lock()
	down := c.shuttingDown
	c.mu.Unlock()
	if down {
		return false
	}
	return c.machine.Fire(event)
}
