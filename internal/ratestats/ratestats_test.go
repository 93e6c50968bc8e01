package ratestats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddBytesAccumulates(t *testing.T) {
	s := New()
	s.AddBytes(100)
	s.AddBytes(50)
	assert.Equal(t, uint64(150), s.TotalBytes())
}

func TestResetZeroesAccumulator(t *testing.T) {
	s := New()
	s.AddBytes(100)
	s.Reset()
	assert.Equal(t, uint64(0), s.TotalBytes())
}

func TestRateMBPerSecZeroWhenNoElapsedTime(t *testing.T) {
	s := New()
	s.now = func() time.Time { return s.startTime }
	s.AddBytes(1024)
	assert.Equal(t, 0.0, s.RateMBPerSec())
}

func TestRateMBPerSecComputation(t *testing.T) {
	s := New()
	start := s.startTime
	s.now = func() time.Time { return start.Add(1 * time.Second) }
	s.AddBytes(2 * 1024 * 1024) // 2 MiB in 1s -> 2 MB/s
	assert.InDelta(t, 2.0, s.RateMBPerSec(), 0.01)
}

func TestEWMAFirstSampleIsValue(t *testing.T) {
	e := NewEWMA(0.3)
	assert.Equal(t, 5.0, e.Update(5.0))
}

func TestEWMASmoothsSubsequentSamples(t *testing.T) {
	e := NewEWMA(0.3)
	e.Update(10.0)
	got := e.Update(0.0)
	assert.InDelta(t, 7.0, got, 0.001) // 0.3*0 + 0.7*10
}
