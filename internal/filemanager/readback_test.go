package filemanager

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, size int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoaderStreamsEntireFile(t *testing.T) {
	path := writeTestFile(t, 200_000)

	l := NewLoader(nil, nil, nil)
	ch, err := l.StartLoading(path)
	require.NoError(t, err)

	var total int
	timeout := time.After(5 * time.Second)
loop:
	for {
		select {
		case pkt, ok := <-ch:
			if !ok {
				break loop
			}
			total += len(pkt.Data)
		case <-timeout:
			t.Fatal("loader did not finish in time")
		}
	}
	assert.Equal(t, 200_000, total)
}

func TestLoaderReportsProgress(t *testing.T) {
	path := writeTestFile(t, 500_000)

	var mu sync.Mutex
	var fractions []float64
	l := NewLoader(func(f float64) {
		mu.Lock()
		defer mu.Unlock()
		fractions = append(fractions, f)
	}, nil, nil)

	ch, err := l.StartLoading(path)
	require.NoError(t, err)
	for range ch {
	}

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, fractions)
}

func TestReadRangeClampsToFileEnd(t *testing.T) {
	path := writeTestFile(t, 100)
	data, err := ReadRange(path, 90, 50)
	require.NoError(t, err)
	assert.Len(t, data, 10)
}

func TestReadRangeReturnsRequestedSlice(t *testing.T) {
	path := writeTestFile(t, 100)
	data, err := ReadRange(path, 10, 5)
	require.NoError(t, err)
	require.Len(t, data, 5)
	assert.Equal(t, byte(10), data[0])
}

func TestReadRangeAsyncDeliversCompletion(t *testing.T) {
	path := writeTestFile(t, 100)

	done := make(chan struct{})
	var gotData []byte
	var gotOffset int64
	var gotID uint64

	l := NewLoader(nil, func(data []byte, offset int64, id uint64) {
		gotData, gotOffset, gotID = data, offset, id
		close(done)
	}, nil)

	require.NoError(t, l.ReadRangeAsync(path, 5, 10, 42))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async range read did not complete")
	}

	assert.Len(t, gotData, 10)
	assert.Equal(t, int64(5), gotOffset)
	assert.Equal(t, uint64(42), gotID)
}

func TestReadRangeAsyncRefusesConcurrentRequest(t *testing.T) {
	path := writeTestFile(t, 100)

	release := make(chan struct{})
	started := make(chan struct{})
	l := NewLoader(nil, func(data []byte, offset int64, id uint64) {
		close(started)
		<-release
	}, nil)

	require.NoError(t, l.ReadRangeAsync(path, 0, 10, 1))
	<-started

	err := l.ReadRangeAsync(path, 0, 10, 2)
	assert.Error(t, err)
	close(release)
}
