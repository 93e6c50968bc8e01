package statemachine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitialStateIsInitializing(t *testing.T) {
	m := New()
	assert.Equal(t, Initializing, m.State())
}

func TestHappyPathTraversal(t *testing.T) {
	m := New()
	steps := []struct {
		event Event
		want  State
	}{
		{DeviceConnected, CommandsMissing},
		{CommandsLoaded, Configured},
		{StartRequested, Starting},
		{StartSucceeded, Transferring},
		{StopRequested, Stopping},
		{StopSucceeded, Configured},
	}
	for _, s := range steps {
		ok := m.Fire(s.event)
		assert.True(t, ok, "event %s should be accepted", s.event)
		assert.Equal(t, s.want, m.State())
	}
}

func TestUnmatchedEventIsSilentlyIgnored(t *testing.T) {
	m := New()
	ok := m.Fire(StartSucceeded) // not valid from Initializing
	assert.False(t, ok)
	assert.Equal(t, Initializing, m.State())
}

func TestAppShutdownAcceptedFromEveryState(t *testing.T) {
	for _, start := range []State{Initializing, DeviceAbsent, DeviceError, CommandsMissing, Configured, Starting, Transferring, Stopping} {
		m := New()
		m.state = start
		ok := m.Fire(AppShutdown)
		assert.True(t, ok)
		assert.Equal(t, Shutdown, m.State())
	}
}

func TestShutdownIsAbsorbing(t *testing.T) {
	m := New()
	m.Fire(AppShutdown)
	assert.True(t, m.State() == Shutdown)

	ok := m.Fire(DeviceConnected)
	assert.False(t, ok)
	assert.Equal(t, Shutdown, m.State())

	ok = m.Fire(AppShutdown)
	assert.False(t, ok, "a second AppShutdown is a no-op, not a new transition")
}

func TestErrorOccurredFromMultipleStatesGoesToDeviceError(t *testing.T) {
	for _, start := range []State{Initializing, CommandsMissing, Configured, Starting, Transferring, Stopping} {
		m := New()
		m.state = start
		ok := m.Fire(ErrorOccurred)
		assert.True(t, ok, "from %s", start)
		assert.Equal(t, DeviceError, m.State())
	}
}

func TestDeviceErrorRecoversOnDeviceConnected(t *testing.T) {
	m := New()
	m.state = DeviceError
	ok := m.Fire(DeviceConnected)
	assert.True(t, ok)
	assert.Equal(t, CommandsMissing, m.State())
}

func TestSubscribersReceiveTransitionsInOrder(t *testing.T) {
	m := New()
	var mu sync.Mutex
	var seen []State

	m.Subscribe(func(tr Transition) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, tr.New)
	})

	m.Fire(DeviceConnected)
	m.Fire(CommandsLoaded)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{CommandsMissing, Configured}, seen)
}

func TestUnsubscribeStopsFurtherDelivery(t *testing.T) {
	m := New()
	count := 0
	unsub := m.Subscribe(func(tr Transition) { count++ })

	m.Fire(DeviceConnected)
	unsub()
	m.Fire(CommandsLoaded)

	assert.Equal(t, 1, count)
}

func TestMultipleSubscribersAllNotified(t *testing.T) {
	m := New()
	var mu sync.Mutex
	calls := 0
	for i := 0; i < 3; i++ {
		m.Subscribe(func(tr Transition) {
			mu.Lock()
			defer mu.Unlock()
			calls++
		})
	}
	m.Fire(DeviceConnected)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls)
}
