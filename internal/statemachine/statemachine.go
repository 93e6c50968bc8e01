// Package statemachine implements the application StateMachine (C7):
// a closed transition table with copy-on-write, lock-free subscriber
// dispatch.
//
// The pack has no close analogue for a copy-on-write pub/sub list, so
// this is written in the teacher's general idiom (small mutex-guarded
// struct, atomic.Pointer for the lock-free read path) rather than
// ported from a specific teacher file — see DESIGN.md.
package statemachine

import (
	"sync"
	"sync/atomic"
)

// State is one node of the closed transition table in spec.md §4.7.
type State int

const (
	Initializing State = iota
	Idle
	DeviceAbsent
	DeviceError
	CommandsMissing
	Configured
	Starting
	Transferring
	Stopping
	Shutdown
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Idle:
		return "idle"
	case DeviceAbsent:
		return "device_absent"
	case DeviceError:
		return "device_error"
	case CommandsMissing:
		return "commands_missing"
	case Configured:
		return "configured"
	case Starting:
		return "starting"
	case Transferring:
		return "transferring"
	case Stopping:
		return "stopping"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Event drives transitions between States.
type Event int

const (
	DeviceConnected Event = iota
	DeviceDisconnected
	ErrorOccurred
	CommandsLoaded
	CommandsUnloaded
	StartRequested
	StartSucceeded
	StartFailed
	StopRequested
	StopSucceeded
	StopFailed
	AppShutdown
)

func (e Event) String() string {
	switch e {
	case DeviceConnected:
		return "device_connected"
	case DeviceDisconnected:
		return "device_disconnected"
	case ErrorOccurred:
		return "error_occurred"
	case CommandsLoaded:
		return "commands_loaded"
	case CommandsUnloaded:
		return "commands_unloaded"
	case StartRequested:
		return "start_requested"
	case StartSucceeded:
		return "start_succeeded"
	case StartFailed:
		return "start_failed"
	case StopRequested:
		return "stop_requested"
	case StopSucceeded:
		return "stop_succeeded"
	case StopFailed:
		return "stop_failed"
	case AppShutdown:
		return "app_shutdown"
	default:
		return "unknown"
	}
}

// Transition is published to subscribers on every accepted transition.
type Transition struct {
	Old    State
	New    State
	Reason Event
}

// Subscriber receives every accepted transition, in the order they
// occur.
type Subscriber func(Transition)

type transitionKey struct {
	from  State
	event Event
}

var table = map[transitionKey]State{
	{Initializing, DeviceConnected}:      CommandsMissing,
	{Initializing, ErrorOccurred}:        DeviceError,
	{DeviceAbsent, DeviceConnected}:      CommandsMissing,
	{DeviceError, DeviceConnected}:       CommandsMissing,
	{DeviceError, DeviceDisconnected}:    DeviceAbsent,
	{CommandsMissing, CommandsLoaded}:     Configured,
	{CommandsMissing, DeviceDisconnected}: DeviceAbsent,
	{CommandsMissing, ErrorOccurred}:      DeviceError,
	{Configured, StartRequested}:     Starting,
	{Configured, CommandsUnloaded}:   CommandsMissing,
	{Configured, DeviceDisconnected}: DeviceAbsent,
	{Configured, ErrorOccurred}:      DeviceError,
	{Starting, StartSucceeded}:      Transferring,
	{Starting, StartFailed}:         DeviceError,
	{Starting, DeviceDisconnected}:  DeviceAbsent,
	{Starting, ErrorOccurred}:       DeviceError,
	{Transferring, StopRequested}:       Stopping,
	{Transferring, DeviceDisconnected}:  DeviceAbsent,
	{Transferring, ErrorOccurred}:       DeviceError,
	{Stopping, StopSucceeded}:      Configured,
	{Stopping, StopFailed}:         DeviceError,
	{Stopping, DeviceDisconnected}: DeviceAbsent,
	{Stopping, ErrorOccurred}:      DeviceError,
}

// Machine runs the closed transition table and dispatches transitions
// to subscribers. The subscriber list is copy-on-write: Subscribe
// allocates a new backing slice and swaps it in atomically, so
// Dispatch never takes a lock to read the current list.
type Machine struct {
	mu    sync.Mutex // serializes state reads/writes and Subscribe's copy-on-write swap
	state State

	subscribers atomic.Pointer[[]Subscriber]
}

// New creates a Machine starting in Initializing.
func New() *Machine {
	m := &Machine{state: Initializing}
	empty := []Subscriber{}
	m.subscribers.Store(&empty)
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn to receive every future transition. It
// returns an unsubscribe function.
func (m *Machine) Subscribe(fn Subscriber) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := *m.subscribers.Load()
	next := make([]Subscriber, len(old)+1)
	copy(next, old)
	next[len(old)] = fn
	m.subscribers.Store(&next)

	id := len(next) - 1
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		cur := *m.subscribers.Load()
		if id >= len(cur) {
			return
		}
		next := make([]Subscriber, 0, len(cur)-1)
		next = append(next, cur[:id]...)
		next = append(next, cur[id+1:]...)
		m.subscribers.Store(&next)
	}
}

// Fire applies event to the current state per the closed transition
// table. AppShutdown moves every state other than Shutdown to
// Shutdown; once in Shutdown, every event, AppShutdown included, is
// ignored and Fire returns false. An event with no matching table
// entry is silently ignored and Fire returns false.
func (m *Machine) Fire(event Event) bool {
	m.mu.Lock()
	old := m.state

	var next State
	var ok bool
	switch {
	case event == AppShutdown:
		next, ok = Shutdown, old != Shutdown
	case old == Shutdown:
		ok = false
	default:
		next, ok = table[transitionKey{old, event}]
	}

	if !ok {
		m.mu.Unlock()
		return false
	}

	m.state = next
	m.mu.Unlock()

	m.dispatch(Transition{Old: old, New: next, Reason: event})
	return true
}

func (m *Machine) dispatch(t Transition) {
	subs := *m.subscribers.Load()
	for _, fn := range subs {
		fn(t)
	}
}
