// Package interfaces provides internal capability definitions for the
// acquisition pipeline. They are kept separate from the public
// top-level package to avoid circular imports between it and the
// internal subpackages that implement each capability.
package interfaces

import "context"

// DataPacket is the internal view of a single committed read result.
// Fields mirror spec.md §3's DataPacket exactly. The public package
// re-exports this as fx3stream.DataPacket.
type DataPacket struct {
	Data            []byte
	Size            int
	TimestampNs     int64
	BatchID         uint32
	PacketsInBatch  int
	IsBatchComplete bool
	OffsetInFile    int64
	PacketIndex     int
}

// DataSink is a pluggable consumer of acquired data (C5's fan-out
// target, C10's FileManager being one concrete sink). OnBatch
// implementations that have no batch-specific optimization may simply
// loop and call OnPacket per element, matching the original source's
// IDataProcessor::processBatchData default.
type DataSink interface {
	OnPacket(pkt *DataPacket) error
	OnBatch(batch []*DataPacket) error
}

// Logger is the minimal logging capability consumed by components
// that should not import internal/logging's concrete type directly.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer is the metrics-collection capability threaded through the
// acquisition and save loops. Implementations must be thread-safe:
// methods are called directly from the Acquirer and FileManager hot
// paths, never marshaled onto another goroutine first.
type Observer interface {
	ObserveRead(bytes uint64, latencyNs uint64, success bool)
	ObserveCommit(bytes uint64, success bool)
	ObserveBatchClosed(packetCount int)
	ObserveOccupancy(level int)
	ObserveSaveWrite(bytes uint64, latencyNs uint64, success bool)
}

// UsbEndpoint is the capability consumed by the Acquirer (C4) and
// DeviceCoordinator (C11). internal/usb provides the real
// implementation over github.com/google/gousb; the public package's
// testing.go provides a mock for unit tests.
type UsbEndpoint interface {
	Open(ctx context.Context) error
	Close() error
	ReadInto(ctx context.Context, buf []byte) (int, error)
	SendCommandFrame(ctx context.Context, frame *[512]byte) error
	StopTransfer()
	Speed() string
}
