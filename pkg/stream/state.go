package stream

import (
	"fmt"
	"time"

	"github.com/taskdeck/deckstream/pkg/backoff"
)

// State is the connection lifecycle state of a session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosingClean
	StateClosingStale
	StateClosingError
	// StateFinished is terminal: reached only via an explicit server
	// completion signal, never left for the lifetime of the session.
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosingClean:
		return "closing_clean"
	case StateClosingStale:
		return "closing_stale"
	case StateClosingError:
		return "closing_error"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event is a connection lifecycle input.
type Event int

const (
	// EventDial begins a connection attempt.
	EventDial Event = iota
	// EventOpened marks a successful (re)connection.
	EventOpened
	// EventDialFailed marks a failed connection attempt.
	EventDialFailed
	// EventFinished is the server's terminal completion signal.
	EventFinished
	// EventCloseClean is a normal closure (code 1000).
	EventCloseClean
	// EventCloseStale is a liveness-monitor self-closure (code 4000).
	EventCloseStale
	// EventCloseRefresh is a refresh-escalation self-closure (code 4001).
	EventCloseRefresh
	// EventCloseError is any other abnormal closure.
	EventCloseError
	// EventStopped is a caller-initiated teardown.
	EventStopped
)

func (e Event) String() string {
	switch e {
	case EventDial:
		return "dial"
	case EventOpened:
		return "opened"
	case EventDialFailed:
		return "dial_failed"
	case EventFinished:
		return "finished"
	case EventCloseClean:
		return "close_clean"
	case EventCloseStale:
		return "close_stale"
	case EventCloseRefresh:
		return "close_refresh"
	case EventCloseError:
		return "close_error"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Action tells the session loop what to do after a transition.
type Action int

const (
	// ActionNone requires nothing from the loop.
	ActionNone Action = iota
	// ActionDial opens a connection now.
	ActionDial
	// ActionRedial reconnects immediately, without touching the retry budget.
	ActionRedial
	// ActionRedialAfter reconnects after Decision.Delay.
	ActionRedialAfter
	// ActionGiveUp stops permanently: the retry budget is exhausted.
	ActionGiveUp
	// ActionHalt stops without error (finished, clean close, or caller stop).
	ActionHalt
)

// Decision is the outcome of one dispatched event.
type Decision struct {
	Action Action
	Delay  time.Duration
}

// Machine is the reconnection policy as an explicit state machine with a
// single dispatch function. It is not safe for concurrent use; the owning
// session serializes access.
type Machine struct {
	state     State
	lastClose State // one of the Closing* states, or StateDisconnected before any closure
	attempts  int
	policy    *backoff.Policy
}

// NewMachine creates a machine in StateDisconnected.
func NewMachine(policy *backoff.Policy) *Machine {
	if policy == nil {
		policy = backoff.NewPolicy()
	}
	return &Machine{state: StateDisconnected, policy: policy}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// LastClose reports how the most recent connection ended.
func (m *Machine) LastClose() State { return m.lastClose }

// Attempts returns the number of budget-consuming failures since the last
// successful connection.
func (m *Machine) Attempts() int { return m.attempts }

// Reset returns the machine to StateDisconnected with a fresh budget.
// A finished machine stays finished.
func (m *Machine) Reset() {
	if m.state == StateFinished {
		return
	}
	m.state = StateDisconnected
	m.attempts = 0
}

// Dispatch applies one event and decides the next action. Events arriving
// in StateFinished always halt: completion is terminal regardless of any
// close events that race in after it.
func (m *Machine) Dispatch(ev Event) (Decision, error) {
	if m.state == StateFinished {
		return Decision{Action: ActionHalt}, nil
	}
	if ev == EventStopped {
		m.state = StateDisconnected
		return Decision{Action: ActionHalt}, nil
	}

	switch m.state {
	case StateDisconnected:
		if ev == EventDial {
			m.state = StateConnecting
			return Decision{Action: ActionDial}, nil
		}

	case StateConnecting:
		switch ev {
		case EventOpened:
			m.state = StateConnected
			m.attempts = 0
			return Decision{Action: ActionNone}, nil
		case EventDialFailed, EventCloseError:
			return m.fail(), nil
		}

	case StateConnected:
		switch ev {
		case EventFinished:
			m.state = StateFinished
			return Decision{Action: ActionHalt}, nil
		case EventCloseClean:
			m.lastClose = StateClosingClean
			m.state = StateDisconnected
			return Decision{Action: ActionHalt}, nil
		case EventCloseStale, EventCloseRefresh:
			// Client-initiated, expected closures: immediate reconnect,
			// no budget charge.
			m.lastClose = StateClosingStale
			m.state = StateDisconnected
			return Decision{Action: ActionRedial}, nil
		case EventCloseError:
			return m.fail(), nil
		}
	}

	return Decision{}, fmt.Errorf("invalid transition: %s in state %s", ev, m.state)
}

func (m *Machine) fail() Decision {
	m.lastClose = StateClosingError
	m.state = StateDisconnected
	m.attempts++
	if m.policy.Exhausted(m.attempts) {
		return Decision{Action: ActionGiveUp}
	}
	return Decision{Action: ActionRedialAfter, Delay: m.policy.Delay(m.attempts - 1)}
}
