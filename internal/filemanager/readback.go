package filemanager

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fx3dev/fx3stream/internal/constants"
)

// ReadPacket is one chunk produced by the streaming read-back loader.
type ReadPacket struct {
	Data   []byte
	Offset int64
}

// Loader implements spec.md §4.10's offline read-back: a streaming
// loader that chunks a file into fixed-size packets on a producer
// goroutine, plus synchronous and single-flight asynchronous random
// range reads.
type Loader struct {
	mu       sync.Mutex
	file     *os.File
	size     int64
	loading  bool
	cancel   context.CancelFunc
	done     chan struct{}

	queue chan ReadPacket

	onProgress func(fraction float64)

	rangeMu      sync.Mutex
	rangeInFlight bool

	onRangeComplete func(data []byte, offset int64, requestID uint64)
	onRangeError    func(msg string, requestID uint64)
}

// NewLoader constructs an idle Loader.
func NewLoader(onProgress func(float64), onRangeComplete func([]byte, int64, uint64), onRangeError func(string, uint64)) *Loader {
	return &Loader{
		onProgress:      onProgress,
		onRangeComplete: onRangeComplete,
		onRangeError:    onRangeError,
	}
}

// StartLoading opens path and begins streaming ReadbackPacketBytes
// packets from ReadbackChunkBytes disk reads onto the returned
// channel. Calling StartLoading again (a seek) clears any
// in-progress load and starts fresh at the new path.
func (l *Loader) StartLoading(path string) (<-chan ReadPacket, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loading {
		l.stopLocked()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.file = f
	l.size = info.Size()
	l.loading = true
	l.cancel = cancel
	l.done = make(chan struct{})
	l.queue = make(chan ReadPacket, constants.ReadbackQueueCap)

	go l.streamLoop(ctx, f, l.size, l.queue)
	return l.queue, nil
}

func (l *Loader) streamLoop(ctx context.Context, f *os.File, size int64, out chan<- ReadPacket) {
	defer close(l.done)
	defer f.Close()
	defer close(out)

	chunk := make([]byte, constants.ReadbackChunkBytes)
	var produced int64
	lastProgress := 0.0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := f.Read(chunk)
		if n > 0 {
			for off := 0; off < n; off += constants.ReadbackPacketBytes {
				end := off + constants.ReadbackPacketBytes
				if end > n {
					end = n
				}
				pkt := ReadPacket{Data: append([]byte(nil), chunk[off:end]...), Offset: produced}
				produced += int64(end - off)

				select {
				case out <- pkt:
				case <-ctx.Done():
					return
				}

				if size > 0 {
					frac := float64(produced) / float64(size)
					if frac-lastProgress >= constants.ReadbackProgressStep {
						lastProgress = frac
						if l.onProgress != nil {
							l.onProgress(frac)
						}
					}
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return
			}
			return
		}
	}
}

// StopLoading cancels the in-progress stream, if any.
func (l *Loader) StopLoading() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

func (l *Loader) stopLocked() {
	if !l.loading {
		return
	}
	l.cancel()
	<-l.done
	l.loading = false
}

// ReadRange performs a synchronous random-range read: open, seek,
// read, close. size is clamped to the remaining file length.
func ReadRange(path string, offset int64, size int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if offset >= info.Size() {
		return nil, nil
	}
	remaining := info.Size() - offset
	if int64(size) > remaining {
		size = int(remaining)
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:n], nil
}

// ReadRangeAsync performs the range read on a background goroutine
// and delivers the result via onRangeComplete/onRangeError. It
// refuses a second concurrent request.
func (l *Loader) ReadRangeAsync(path string, offset int64, size int, requestID uint64) error {
	l.rangeMu.Lock()
	if l.rangeInFlight {
		l.rangeMu.Unlock()
		return fmt.Errorf("filemanager: a range read is already in flight")
	}
	l.rangeInFlight = true
	l.rangeMu.Unlock()

	go func() {
		defer func() {
			l.rangeMu.Lock()
			l.rangeInFlight = false
			l.rangeMu.Unlock()
		}()

		data, err := ReadRange(path, offset, size)
		if err != nil {
			if l.onRangeError != nil {
				l.onRangeError(err.Error(), requestID)
			}
			return
		}
		if l.onRangeComplete != nil {
			l.onRangeComplete(data, offset, requestID)
		}
	}()
	return nil
}
