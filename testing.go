package fx3stream

import (
	"context"
	"sync"

	"github.com/fx3dev/fx3stream/internal/interfaces"
)

// MockUsbEndpoint provides a mock implementation of UsbEndpoint for
// testing. It implements the interface and tracks method calls for
// verification, the way the teacher's MockBackend tracks calls for
// block-device unit tests.
type MockUsbEndpoint struct {
	mu sync.Mutex

	opened       bool
	transferring bool
	speed        string

	readData [][]byte
	readIdx  int
	readErr  error

	sendErr error

	openCalls     int
	closeCalls    int
	readCalls     int
	sendCalls     int
	stopCalls     int
	sentFrames    [][512]byte
}

// NewMockUsbEndpoint creates a mock endpoint that serves packets from
// reads, in order, whether or not Open has been called. A nil or
// exhausted reads slice makes ReadInto block until ctx is done.
func NewMockUsbEndpoint(reads [][]byte) *MockUsbEndpoint {
	return &MockUsbEndpoint{readData: reads, speed: "high"}
}

// Open implements UsbEndpoint.
func (m *MockUsbEndpoint) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openCalls++
	m.opened = true
	return nil
}

// Close implements UsbEndpoint.
func (m *MockUsbEndpoint) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	m.opened = false
	return nil
}

// ReadInto implements UsbEndpoint, copying the next queued packet into
// buf, or blocking on ctx if none remain.
func (m *MockUsbEndpoint) ReadInto(ctx context.Context, buf []byte) (int, error) {
	m.mu.Lock()
	m.readCalls++
	if m.readErr != nil {
		err := m.readErr
		m.mu.Unlock()
		return 0, err
	}
	if m.readIdx < len(m.readData) {
		pkt := m.readData[m.readIdx]
		m.readIdx++
		m.mu.Unlock()
		n := copy(buf, pkt)
		return n, nil
	}
	m.mu.Unlock()

	<-ctx.Done()
	return 0, ctx.Err()
}

// SendCommandFrame implements UsbEndpoint.
func (m *MockUsbEndpoint) SendCommandFrame(ctx context.Context, frame *[512]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCalls++
	m.sentFrames = append(m.sentFrames, *frame)
	return m.sendErr
}

// StopTransfer implements UsbEndpoint.
func (m *MockUsbEndpoint) StopTransfer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	m.transferring = false
}

// Speed implements UsbEndpoint.
func (m *MockUsbEndpoint) Speed() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed
}

// SetReadError makes every subsequent ReadInto fail with err.
func (m *MockUsbEndpoint) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// SetSendError makes every subsequent SendCommandFrame fail with err.
func (m *MockUsbEndpoint) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// SentFrames returns every frame passed to SendCommandFrame, in order.
func (m *MockUsbEndpoint) SentFrames() [][512]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][512]byte, len(m.sentFrames))
	copy(out, m.sentFrames)
	return out
}

// CallCounts returns the number of times each method has been called.
func (m *MockUsbEndpoint) CallCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		"open":  m.openCalls,
		"close": m.closeCalls,
		"read":  m.readCalls,
		"send":  m.sendCalls,
		"stop":  m.stopCalls,
	}
}

// IsOpen returns true if Open has been called more recently than Close.
func (m *MockUsbEndpoint) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

// MockDataSink is a DataSink that records every packet and batch it
// receives, for assertion in Processor/Coordinator tests.
type MockDataSink struct {
	mu sync.Mutex

	packets  []*interfaces.DataPacket
	batches  [][]*interfaces.DataPacket
	onPacket func(*interfaces.DataPacket) error
	onBatch  func([]*interfaces.DataPacket) error
}

// NewMockDataSink creates an empty recording sink.
func NewMockDataSink() *MockDataSink {
	return &MockDataSink{}
}

// OnPacket implements DataSink.
func (s *MockDataSink) OnPacket(pkt *interfaces.DataPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = append(s.packets, pkt)
	if s.onPacket != nil {
		return s.onPacket(pkt)
	}
	return nil
}

// OnBatch implements DataSink.
func (s *MockDataSink) OnBatch(batch []*interfaces.DataPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	if s.onBatch != nil {
		return s.onBatch(batch)
	}
	return nil
}

// SetOnPacket installs a hook invoked on every OnPacket call, in
// addition to recording.
func (s *MockDataSink) SetOnPacket(fn func(*interfaces.DataPacket) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPacket = fn
}

// SetOnBatch installs a hook invoked on every OnBatch call, in
// addition to recording.
func (s *MockDataSink) SetOnBatch(fn func([]*interfaces.DataPacket) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onBatch = fn
}

// Packets returns every packet delivered via OnPacket, in order.
func (s *MockDataSink) Packets() []*interfaces.DataPacket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*interfaces.DataPacket, len(s.packets))
	copy(out, s.packets)
	return out
}

// Batches returns every batch delivered via OnBatch, in order.
func (s *MockDataSink) Batches() [][]*interfaces.DataPacket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]*interfaces.DataPacket, len(s.batches))
	copy(out, s.batches)
	return out
}

// Compile-time interface checks.
var (
	_ UsbEndpoint = (*MockUsbEndpoint)(nil)
	_ DataSink    = (*MockDataSink)(nil)
)
