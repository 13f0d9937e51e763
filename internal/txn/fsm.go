package txn

// This file implements the exchange state machine as a pure function over a
// transition table keyed by (state, request kind, event). It has no side
// effects; Exchange executes the returned actions.
//
//	          Sent
//	           | Sent
//	           V
//	    +-> AwaitResponse --+-- Final (INVITE) ----> Success
//	    |      |            +-- Final (CANCEL) ----> TeardownAcked
//	    +------+            +-- TimerExpired ------> Timeout
//	 Provisional, NonTerminal, Malformed, UnknownClass,
//	 Final (other methods)
//
// Terminal states have no outgoing transitions: late responses are dropped.

import "github.com/dantte-lp/goprotos/internal/sipmsg"

// -------------------------------------------------------------------------
// States
// -------------------------------------------------------------------------

// State is the state of one request/response exchange.
type State uint8

const (
	// StateSent is the state before the request has been handed to the
	// transport.
	StateSent State = iota

	// StateAwaitResponse waits for a correlated response or the timer.
	StateAwaitResponse

	// StateSuccess is reached by a final response to an INVITE.
	StateSuccess

	// StateTeardownAcked is reached by a final response to a CANCEL, after
	// the ACK has been sent.
	StateTeardownAcked

	// StateTimeout is reached when no terminal response arrived in time.
	StateTimeout
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateSent:
		return "Sent"
	case StateAwaitResponse:
		return "AwaitResponse"
	case StateSuccess:
		return "Success"
	case StateTeardownAcked:
		return "TeardownAcked"
	case StateTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further events are accepted in s.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateTeardownAcked || s == StateTimeout
}

// -------------------------------------------------------------------------
// Request kinds
// -------------------------------------------------------------------------

// Kind groups request methods by how their final responses are handled.
type Kind uint8

const (
	// KindOther covers every method whose final responses do not end the
	// exchange.
	KindOther Kind = iota

	// KindInvite is an INVITE: a final response ends the exchange.
	KindInvite

	// KindCancel is a CANCEL: a final response is acknowledged with an ACK.
	KindCancel
)

// String returns the kind name, used as a bounded metrics label.
func (k Kind) String() string {
	switch k {
	case KindInvite:
		return sipmsg.MethodInvite
	case KindCancel:
		return sipmsg.MethodCancel
	default:
		return "OTHER"
	}
}

// KindOf maps a request method to its Kind. Matching is exact: a mangled
// method token is KindOther.
func KindOf(method string) Kind {
	switch method {
	case sipmsg.MethodInvite:
		return KindInvite
	case sipmsg.MethodCancel:
		return KindCancel
	default:
		return KindOther
	}
}

// -------------------------------------------------------------------------
// Events
// -------------------------------------------------------------------------

// Event is an input to the exchange state machine.
type Event uint8

const (
	// EventSent fires once the request is on the wire.
	EventSent Event = iota

	// EventProvisional is a 1xx response.
	EventProvisional

	// EventFinal is a 2xx, 4xx or 5xx response.
	EventFinal

	// EventNonTerminal is a 3xx or 6xx response; no action is taken.
	EventNonTerminal

	// EventUnknownClass is a status code outside classes 1-6.
	EventUnknownClass

	// EventMalformed is a correlated message without a parsable status line.
	EventMalformed

	// EventTimerExpired fires when the reply-wait elapses.
	EventTimerExpired
)

// String returns the human-readable name of the event.
func (e Event) String() string {
	switch e {
	case EventSent:
		return "Sent"
	case EventProvisional:
		return "Provisional"
	case EventFinal:
		return "Final"
	case EventNonTerminal:
		return "NonTerminal"
	case EventUnknownClass:
		return "UnknownClass"
	case EventMalformed:
		return "Malformed"
	case EventTimerExpired:
		return "TimerExpired"
	default:
		return "Unknown"
	}
}

// ClassifyStatus maps a status code to its event by class (code / 100).
func ClassifyStatus(code int) Event {
	switch code / 100 {
	case 1:
		return EventProvisional
	case 2, 4, 5:
		return EventFinal
	case 3, 6:
		return EventNonTerminal
	default:
		return EventUnknownClass
	}
}

// -------------------------------------------------------------------------
// Actions
// -------------------------------------------------------------------------

// Action is a side effect the caller executes after a transition, in the
// order returned.
type Action uint8

const (
	// ActionSendAck rewrites the CANCEL into an ACK and sends it.
	ActionSendAck Action = iota + 1

	// ActionUnsubscribe cancels the Call-ID subscription.
	ActionUnsubscribe

	// ActionResolve delivers the exchange outcome to the caller.
	ActionResolve

	// ActionLogAnomaly records a protocol anomaly.
	ActionLogAnomaly
)

// String returns the human-readable name of the action.
func (a Action) String() string {
	switch a {
	case ActionSendAck:
		return "SendAck"
	case ActionUnsubscribe:
		return "Unsubscribe"
	case ActionResolve:
		return "Resolve"
	case ActionLogAnomaly:
		return "LogAnomaly"
	default:
		return "Unknown"
	}
}

// -------------------------------------------------------------------------
// Transition table
// -------------------------------------------------------------------------

type transitionKey struct {
	state State
	kind  Kind
	event Event
}

type transition struct {
	newState State
	actions  []Action
}

// FSMResult holds the outcome of applying an event.
type FSMResult struct {
	OldState State
	NewState State
	Actions  []Action
	// Changed is false for ignored events and self-loops.
	Changed bool
}

//nolint:gochecknoglobals // FSM transition table is intentionally package-level.
var fsmTable = buildTable()

func buildTable() map[transitionKey]transition {
	t := make(map[transitionKey]transition)

	for _, k := range []Kind{KindOther, KindInvite, KindCancel} {
		t[transitionKey{StateSent, k, EventSent}] = transition{newState: StateAwaitResponse}

		// Waiting self-loops.
		t[transitionKey{StateAwaitResponse, k, EventProvisional}] = transition{newState: StateAwaitResponse}
		t[transitionKey{StateAwaitResponse, k, EventNonTerminal}] = transition{newState: StateAwaitResponse}
		t[transitionKey{StateAwaitResponse, k, EventUnknownClass}] = transition{
			newState: StateAwaitResponse,
			actions:  []Action{ActionLogAnomaly},
		}
		t[transitionKey{StateAwaitResponse, k, EventMalformed}] = transition{
			newState: StateAwaitResponse,
			actions:  []Action{ActionLogAnomaly},
		}

		t[transitionKey{StateAwaitResponse, k, EventTimerExpired}] = transition{
			newState: StateTimeout,
			actions:  []Action{ActionUnsubscribe, ActionResolve},
		}
	}

	t[transitionKey{StateAwaitResponse, KindInvite, EventFinal}] = transition{
		newState: StateSuccess,
		actions:  []Action{ActionUnsubscribe, ActionResolve},
	}
	t[transitionKey{StateAwaitResponse, KindCancel, EventFinal}] = transition{
		newState: StateTeardownAcked,
		actions:  []Action{ActionSendAck, ActionUnsubscribe, ActionResolve},
	}
	// Final responses to any other method leave the exchange to the timer.
	t[transitionKey{StateAwaitResponse, KindOther, EventFinal}] = transition{newState: StateAwaitResponse}

	return t
}

// ApplyEvent applies event to an exchange of the given kind in state. Pairs
// missing from the table are ignored: the result is unchanged with no
// actions.
func ApplyEvent(state State, kind Kind, event Event) FSMResult {
	tr, ok := fsmTable[transitionKey{state: state, kind: kind, event: event}]
	if !ok {
		return FSMResult{OldState: state, NewState: state}
	}

	return FSMResult{
		OldState: state,
		NewState: tr.newState,
		Actions:  tr.actions,
		Changed:  state != tr.newState,
	}
}
