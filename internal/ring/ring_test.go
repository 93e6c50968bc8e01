package ring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRing(t *testing.T, slots, capacity, maxPackets int, maxIntervalMs int64) (*RingBuffer, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(0, 0)}
	r := New(Config{
		Slots:              slots,
		SlotCapacity:       capacity,
		MaxPacketsPerBatch: maxPackets,
		MaxBatchIntervalMs: maxIntervalMs,
		Now:                clock.Now,
	})
	return r, clock
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestCommitExactCapacityAccepted(t *testing.T) {
	r, _ := newTestRing(t, 4, 16, 8, 50)
	buf, cap := r.GetWriteBuffer()
	assert.Equal(t, 16, cap)
	copy(buf, []byte("0123456789abcdef"))

	pkt, err := r.Commit(16)
	require.NoError(t, err)
	assert.Equal(t, 16, pkt.Size)
	assert.Equal(t, []byte("0123456789abcdef"), pkt.Data)
}

func TestCommitOverCapacityRejectedWithoutAdvancing(t *testing.T) {
	r, _ := newTestRing(t, 4, 16, 8, 50)

	_, err := r.Commit(17)
	require.Error(t, err)

	// write_index must not have advanced
	_, _ = r.GetWriteBuffer()
	assert.Equal(t, 0, r.writeIndex)
}

func TestCommitDataIsImmutableCopy(t *testing.T) {
	r, _ := newTestRing(t, 4, 8, 8, 50)
	buf, _ := r.GetWriteBuffer()
	copy(buf, []byte("abcdefgh"))
	pkt, err := r.Commit(8)
	require.NoError(t, err)

	// mutate the underlying slot after commit; packet data must be unaffected
	buf2, _ := r.GetWriteBuffer()
	for i := range buf2 {
		buf2[i] = 0xFF
	}
	assert.Equal(t, []byte("abcdefgh"), pkt.Data)
}

func TestBatchClosesOnMaxPackets(t *testing.T) {
	r, _ := newTestRing(t, 8, 4, 3, 50)

	for i := 0; i < 3; i++ {
		buf, _ := r.GetWriteBuffer()
		copy(buf, []byte{byte(i), 0, 0, 0})
		pkt, err := r.Commit(4)
		require.NoError(t, err)
		if i < 2 {
			assert.False(t, pkt.IsBatchComplete)
		} else {
			assert.True(t, pkt.IsBatchComplete)
		}
		assert.Equal(t, i+1, pkt.PacketsInBatch)
	}

	batch := r.PopBatch()
	require.Len(t, batch, 3)
	assert.Nil(t, r.PopBatch())
}

func TestBatchClosesOnElapsedInterval(t *testing.T) {
	r, clock := newTestRing(t, 8, 4, 8, 50)

	buf, _ := r.GetWriteBuffer()
	copy(buf, []byte{1, 2, 3, 4})
	pkt1, err := r.Commit(4)
	require.NoError(t, err)
	assert.False(t, pkt1.IsBatchComplete)

	clock.Advance(60 * time.Millisecond)

	buf, _ = r.GetWriteBuffer()
	copy(buf, []byte{5, 6, 7, 8})
	pkt2, err := r.Commit(4)
	require.NoError(t, err)
	assert.True(t, pkt2.IsBatchComplete)

	batch := r.PopBatch()
	require.Len(t, batch, 2)
}

func TestBatchNeverObservedEmpty(t *testing.T) {
	r, _ := newTestRing(t, 8, 4, 8, 50)
	assert.Nil(t, r.PopBatch())

	buf, _ := r.GetWriteBuffer()
	copy(buf, []byte{1, 2, 3, 4})
	_, err := r.Commit(4)
	require.NoError(t, err)

	// batch not yet closed (below max packets, interval not elapsed)
	assert.Nil(t, r.PopBatch())
}

func TestPacketsInBatchMonotonicWithoutGaps(t *testing.T) {
	r, _ := newTestRing(t, 8, 4, 4, 50)
	var seen []int
	for i := 0; i < 4; i++ {
		buf, _ := r.GetWriteBuffer()
		copy(buf, []byte{byte(i), 0, 0, 0})
		pkt, err := r.Commit(4)
		require.NoError(t, err)
		seen = append(seen, pkt.PacketsInBatch)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, seen)
}

func TestOccupancyLevels(t *testing.T) {
	// 10 slots: warning >= 8 (75% rounds up to 8), critical >= 9
	r, _ := newTestRing(t, 10, 4, 1, 50)
	assert.Equal(t, OccupancyNormal, r.OccupancyLevel())

	for i := 0; i < 8; i++ {
		buf, _ := r.GetWriteBuffer()
		_, err := r.Commit(len(buf))
		require.NoError(t, err)
	}
	assert.Equal(t, OccupancyWarning, r.OccupancyLevel())

	buf, _ := r.GetWriteBuffer()
	_, err := r.Commit(len(buf))
	require.NoError(t, err)
	assert.Equal(t, OccupancyCritical, r.OccupancyLevel())
}

func TestResetDrainsQueuesAndRewindsIndex(t *testing.T) {
	r, _ := newTestRing(t, 4, 4, 1, 50)
	buf, _ := r.GetWriteBuffer()
	_, err := r.Commit(len(buf))
	require.NoError(t, err)
	require.True(t, r.HasWork())

	r.Reset()
	assert.False(t, r.HasWork())
	assert.Equal(t, 0, r.writeIndex)
	assert.Equal(t, OccupancyNormal, r.OccupancyLevel())
}

func TestWriteIndexWrapsAroundSlotPool(t *testing.T) {
	r, _ := newTestRing(t, 2, 4, 8, 50)
	for i := 0; i < 5; i++ {
		buf, _ := r.GetWriteBuffer()
		_, err := r.Commit(len(buf))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, r.writeIndex) // 5 commits mod 2 slots == 1
}

func TestWaitReturnsPromptlyWhenWorkArrives(t *testing.T) {
	r, _ := newTestRing(t, 4, 4, 8, 50)
	go func() {
		time.Sleep(5 * time.Millisecond)
		buf, _ := r.GetWriteBuffer()
		_, _ = r.Commit(len(buf))
	}()

	start := time.Now()
	r.Wait(500 * time.Millisecond)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, r.HasWork())
}

func TestWaitTimesOutWhenNoWork(t *testing.T) {
	r, _ := newTestRing(t, 4, 4, 8, 50)
	start := time.Now()
	r.Wait(30 * time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestPopPacketFIFOOrder(t *testing.T) {
	r, _ := newTestRing(t, 4, 1, 8, 50)
	buf, _ := r.GetWriteBuffer()
	buf[0] = 'a'
	_, err := r.Commit(1)
	require.NoError(t, err)

	buf, _ = r.GetWriteBuffer()
	buf[0] = 'b'
	_, err = r.Commit(1)
	require.NoError(t, err)

	p1 := r.PopPacket()
	p2 := r.PopPacket()
	require.NotNil(t, p1)
	require.NotNil(t, p2)
	assert.Equal(t, byte('a'), p1.Data[0])
	assert.Equal(t, byte('b'), p2.Data[0])
	assert.Nil(t, r.PopPacket())
}
