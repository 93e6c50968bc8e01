// Package usb implements the UsbEndpoint (C1) over a real Cypress
// FX3 device using github.com/google/gousb's libusb binding. Its
// shape follows the teacher's internal/ctrl.Controller: a thin struct
// around one open handle, exported methods that translate failures
// into the package's structured error type, and no business logic
// beyond what the wire protocol requires.
package usb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/fx3dev/fx3stream/internal/constants"
	"github.com/fx3dev/fx3stream/internal/fx3err"
	"github.com/fx3dev/fx3stream/internal/logging"
)

// Speed strings, as named in spec.md §4.1.
const (
	SpeedLow        = "LowSpeed"
	SpeedFull       = "FullSpeed"
	SpeedHigh       = "HighSpeed"
	SpeedSuper      = "SuperSpeed"
	SpeedSuperPlus  = "SuperSpeedPlus"
	SpeedUnknown    = "Unknown"
)

// Endpoint is the real UsbEndpoint (C1), backed by a single Cypress
// FX3 device matched by VendorID/ProductID. It targets exactly one
// VID/PID, per spec.md §1's non-goals: no cross-device abstraction.
type Endpoint struct {
	logger *logging.Logger

	mu       sync.Mutex
	ctx      *gousb.Context
	dev      *gousb.Device
	cfg      *gousb.Config
	iface    *gousb.Interface
	inEp     *gousb.InEndpoint
	outEp    *gousb.OutEndpoint

	readCancel context.CancelFunc
	readMu     sync.Mutex

	transferring bool
}

// New constructs an unopened Endpoint.
func New(logger *logging.Logger) *Endpoint {
	if logger == nil {
		logger = logging.Default()
	}
	return &Endpoint{logger: logger.WithComponent("usb")}
}

// Open enumerates, matches VID/PID, and binds the bulk-IN/bulk-OUT
// endpoints under alt-interface 0. It retries transient failures up
// to OpenMaxAttempts times with OpenRetryBackoff between attempts.
func (e *Endpoint) Open(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= constants.OpenMaxAttempts; attempt++ {
		if err := e.openOnce(); err == nil {
			e.logger.Info("device opened", "attempt", attempt)
			return nil
		} else {
			lastErr = err
			e.logger.WithError(err).Warn("open attempt failed", "attempt", attempt)
		}

		if attempt < constants.OpenMaxAttempts {
			select {
			case <-ctx.Done():
				return fx3err.Wrap("usb.Open", fx3err.CodeTimeout, ctx.Err())
			case <-time.After(constants.OpenRetryBackoff):
			}
		}
	}
	return fx3err.Wrap("usb.Open", fx3err.CodeDeviceNotFound, lastErr)
}

func (e *Endpoint) openOnce() error {
	usbCtx := gousb.NewContext()

	dev, err := usbCtx.OpenDeviceWithVIDPID(gousb.ID(constants.VendorID), gousb.ID(constants.ProductID))
	if err != nil {
		usbCtx.Close()
		return fx3err.Wrap("usb.open", fx3err.CodeDeviceNotFound, err)
	}
	if dev == nil {
		usbCtx.Close()
		return fx3err.New("usb.open", fx3err.CodeDeviceNotFound, "no device matched vid/pid")
	}

	if err := dev.SetAutoDetach(true); err != nil {
		e.logger.WithError(err).Debug("auto-detach not supported, continuing")
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		usbCtx.Close()
		return fx3err.Wrap("usb.config", fx3err.CodeIOError, err)
	}

	iface, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		usbCtx.Close()
		return fx3err.Wrap("usb.interface", fx3err.CodeIOError, err)
	}

	inNum, outNum, err := findBulkEndpoints(cfg)
	if err != nil {
		iface.Close()
		cfg.Close()
		dev.Close()
		usbCtx.Close()
		return fx3err.Wrap("usb.endpoints", fx3err.CodeInvalidParams, err)
	}

	inEp, err := iface.InEndpoint(inNum)
	if err != nil {
		iface.Close()
		cfg.Close()
		dev.Close()
		usbCtx.Close()
		return fx3err.Wrap("usb.in_endpoint", fx3err.CodeIOError, err)
	}
	outEp, err := iface.OutEndpoint(outNum)
	if err != nil {
		iface.Close()
		cfg.Close()
		dev.Close()
		usbCtx.Close()
		return fx3err.Wrap("usb.out_endpoint", fx3err.CodeIOError, err)
	}

	e.mu.Lock()
	e.ctx, e.dev, e.cfg, e.iface = usbCtx, dev, cfg, iface
	e.inEp, e.outEp = inEp, outEp
	e.transferring = true
	e.mu.Unlock()
	return nil
}

// findBulkEndpoints scans alt-interface 0's endpoint descriptors for
// exactly one bulk-IN and one bulk-OUT endpoint. Returns a plain error
// if either is absent or duplicated; the caller tags it with
// fx3err.CodeInvalidParams.
func findBulkEndpoints(cfg *gousb.Config) (in, out int, err error) {
	if len(cfg.Desc.Interfaces) == 0 {
		return 0, 0, fmt.Errorf("no interfaces in active configuration")
	}
	var ifaceDesc *gousb.InterfaceDesc
	for i := range cfg.Desc.Interfaces {
		if cfg.Desc.Interfaces[i].Number == 0 {
			ifaceDesc = &cfg.Desc.Interfaces[i]
			break
		}
	}
	if ifaceDesc == nil {
		return 0, 0, fmt.Errorf("interface 0 not found")
	}
	var setting *gousb.InterfaceSetting
	for i := range ifaceDesc.AltSettings {
		if ifaceDesc.AltSettings[i].Alternate == 0 {
			setting = &ifaceDesc.AltSettings[i]
			break
		}
	}
	if setting == nil {
		return 0, 0, fmt.Errorf("alt-setting 0 not found")
	}

	foundIn, foundOut := -1, -1
	for _, ep := range setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionIn:
			if foundIn != -1 {
				return 0, 0, fmt.Errorf("more than one bulk-in endpoint")
			}
			foundIn = ep.Number
		case gousb.EndpointDirectionOut:
			if foundOut != -1 {
				return 0, 0, fmt.Errorf("more than one bulk-out endpoint")
			}
			foundOut = ep.Number
		}
	}
	if foundIn == -1 || foundOut == -1 {
		return 0, 0, fmt.Errorf("bulk endpoint pair not found")
	}
	return foundIn, foundOut, nil
}

// Close releases the device handle and underlying libusb context.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.iface != nil {
		e.iface.Close()
		e.iface = nil
	}
	if e.cfg != nil {
		e.cfg.Close()
		e.cfg = nil
	}
	var err error
	if e.dev != nil {
		err = e.dev.Close()
		e.dev = nil
	}
	if e.ctx != nil {
		e.ctx.Close()
		e.ctx = nil
	}
	e.transferring = false
	return err
}

// ReadInto performs a single bulk-IN transfer, bounded by ctx's
// deadline if one is set, otherwise by ReadTransferTimeout.
func (e *Endpoint) ReadInto(ctx context.Context, buf []byte) (int, error) {
	e.mu.Lock()
	inEp := e.inEp
	e.mu.Unlock()
	if inEp == nil {
		return 0, fx3err.New("usb.ReadInto", fx3err.CodeDeviceOffline, "endpoint not open")
	}

	readCtx, cancel := e.trackRead(ctx)
	defer cancel()

	type result struct {
		n   int
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		n, err := inEp.Read(buf)
		resCh <- result{n, err}
	}()

	select {
	case r := <-resCh:
		if r.err != nil {
			return r.n, fx3err.Wrap("usb.ReadInto", fx3err.CodeIOError, r.err)
		}
		return r.n, nil
	case <-readCtx.Done():
		return 0, fx3err.Wrap("usb.ReadInto", fx3err.CodeTimeout, readCtx.Err())
	}
}

// trackRead applies ReadTransferTimeout when ctx carries no deadline
// of its own, and records the cancel func so abortInEndpoint can
// interrupt a read that is currently blocked.
func (e *Endpoint) trackRead(ctx context.Context) (context.Context, context.CancelFunc) {
	var readCtx context.Context
	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); ok {
		readCtx, cancel = context.WithCancel(ctx)
	} else {
		readCtx, cancel = context.WithTimeout(ctx, constants.ReadTransferTimeout)
	}

	e.readMu.Lock()
	e.readCancel = cancel
	e.readMu.Unlock()

	return readCtx, func() {
		cancel()
		e.readMu.Lock()
		if e.readCancel != nil {
			e.readCancel = nil
		}
		e.readMu.Unlock()
	}
}

// abortInEndpoint interrupts any read currently tracked by
// trackRead. gousb exposes no direct libusb transfer-cancel call, so
// this approximates spec.md §4.1's pre-command endpoint abort by
// cancelling the context the in-flight ReadInto is waiting on.
func (e *Endpoint) abortInEndpoint() {
	e.readMu.Lock()
	cancel := e.readCancel
	e.readMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SendCommandFrame aborts any in-flight read, waits
// PreCommandAbortDelay, then writes the full 512-byte frame,
// rejecting partial transfers.
func (e *Endpoint) SendCommandFrame(ctx context.Context, frame *[512]byte) error {
	e.mu.Lock()
	outEp := e.outEp
	e.mu.Unlock()
	if outEp == nil {
		return fx3err.New("usb.SendCommandFrame", fx3err.CodeDeviceOffline, "endpoint not open")
	}

	e.abortInEndpoint()

	select {
	case <-time.After(constants.PreCommandAbortDelay):
	case <-ctx.Done():
		return fx3err.Wrap("usb.SendCommandFrame", fx3err.CodeTimeout, ctx.Err())
	}

	writeCtx, cancel := context.WithTimeout(ctx, constants.CommandTimeout)
	defer cancel()

	type result struct {
		n   int
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		n, err := outEp.Write(frame[:])
		resCh <- result{n, err}
	}()

	select {
	case r := <-resCh:
		if r.err != nil {
			return fx3err.Wrap("usb.SendCommandFrame", fx3err.CodeIOError, r.err)
		}
		if r.n != constants.CommandFrameSize {
			return fx3err.New("usb.SendCommandFrame", fx3err.CodeIOError,
				fmt.Sprintf("partial command transfer: wrote %d of %d bytes", r.n, constants.CommandFrameSize))
		}
		return nil
	case <-writeCtx.Done():
		return fx3err.Wrap("usb.SendCommandFrame", fx3err.CodeTimeout, writeCtx.Err())
	}
}

// StopTransfer flips the transferring flag synchronously, then aborts
// the in-flight bulk-IN read on a detached goroutine bounded by
// StopCleanupCeiling. No stop command is sent to the device and the
// endpoints are not reset. The caller returns immediately.
func (e *Endpoint) StopTransfer() {
	e.mu.Lock()
	e.transferring = false
	e.mu.Unlock()

	go e.cleanup()
}

func (e *Endpoint) cleanup() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.abortInEndpoint()
	}()

	select {
	case <-done:
	case <-time.After(constants.StopCleanupCeiling):
		e.logger.Warn("stop cleanup exceeded ceiling", "ceiling_ms", constants.StopCleanupCeiling.Milliseconds())
	}
}

// Speed reports the negotiated USB link speed.
func (e *Endpoint) Speed() string {
	e.mu.Lock()
	dev := e.dev
	e.mu.Unlock()
	if dev == nil {
		return SpeedUnknown
	}
	switch dev.Desc.Speed {
	case gousb.SpeedLow:
		return SpeedLow
	case gousb.SpeedFull:
		return SpeedFull
	case gousb.SpeedHigh:
		return SpeedHigh
	case gousb.SpeedSuper:
		return SpeedSuper
	case gousb.SpeedSuperPlus:
		return SpeedSuperPlus
	default:
		return SpeedUnknown
	}
}

// DeviceDescriptor reports the vendor/product identity for
// diagnostics. Never used for behavior branching: this module targets
// exactly one VID/PID.
func (e *Endpoint) DeviceDescriptor() string {
	e.mu.Lock()
	dev := e.dev
	e.mu.Unlock()
	if dev == nil {
		return "closed"
	}
	return fmt.Sprintf("vid=%s pid=%s speed=%s", dev.Desc.Vendor, dev.Desc.Product, e.Speed())
}

// IsTransferring reports whether the endpoint has been opened and
// neither StopTransfer nor Close has been called since.
func (e *Endpoint) IsTransferring() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transferring
}
