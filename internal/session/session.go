// Package session owns the canonical table of in-flight authentication
// prompts and the per-session state machine that governs how they move
// from creation to a terminal outcome.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Source identifies which subsystem originated a session.
type Source string

const (
	SourcePolkit   Source = "polkit"
	SourceKeyring  Source = "keyring"
	SourcePinentry Source = "pinentry"
)

// State is a session's position in its lifecycle.
type State string

const (
	StateCreated   State = "created"
	StatePrompting State = "prompting"
	StateAwaiting  State = "awaiting"
	StateSuccess   State = "success"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// IsTerminal reports whether a state has no further transitions.
func (s State) IsTerminal() bool {
	switch s {
	case StateSuccess, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}

// validTransitions mirrors the state-machine-with-allowed-edges idiom used
// for workflow states: a map of map keeps CanTransitionTo a pure lookup
// instead of a sprawling switch.
var validTransitions = map[State]map[State]bool{
	StateCreated: {
		StatePrompting: true,
		StateCancelled: true,
		StateFailed:    true,
	},
	StatePrompting: {
		StateAwaiting:  true,
		StateSuccess:   true,
		StateCancelled: true,
		StateFailed:    true,
	},
	StateAwaiting: {
		StatePrompting: true,
		StateSuccess:   true,
		StateCancelled: true,
		StateFailed:    true,
	},
	StateSuccess:   {},
	StateCancelled: {},
	StateFailed:    {},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s State) CanTransitionTo(next State) bool {
	edges, ok := validTransitions[s]
	if !ok {
		return false
	}
	return edges[next]
}

// Requestor is the actor attributed to a session by the actor resolver,
// when the source supplied a pid.
type Requestor struct {
	Name string `json:"name"`
	PID  int    `json:"pid"`
	UID  int    `json:"uid"`
	Exe  string `json:"exe,omitempty"`
}

// Context is the immutable-after-creation payload a session was created
// with, normalised from whichever subsystem produced it.
type Context struct {
	Message              string     `json:"message"`
	Description          string     `json:"description,omitempty"`
	Requestor            *Requestor `json:"requestor,omitempty"`
	ActionID             string     `json:"actionId,omitempty"`
	User                 string     `json:"user,omitempty"`
	KeyringName          string     `json:"keyringName,omitempty"`
	ConfirmOnly          bool       `json:"confirmOnly,omitempty"`
	PasswordNew          bool       `json:"passwordNew,omitempty"`
	FingerprintAvailable bool       `json:"fingerprintAvailable,omitempty"`
}

// Result is the terminal outcome of a session.
type Result string

const (
	ResultSuccess   Result = "success"
	ResultCancelled Result = "cancelled"
	ResultError     Result = "error"
)

// ReplyHandle is a small non-owning reference to the connection or process
// that must receive a session's terminal result. It is re-resolved through
// a lookup rather than held as a back-pointer, so a session is a plain
// value record the store can copy and hand out safely.
type ReplyHandle struct {
	ConnID string
}

// Session is one in-flight prompt lifecycle.
type Session struct {
	ID        string
	Source    Source
	Context   Context
	State     State
	Prompt    string
	Echo      bool
	Info      string
	Error     string
	RetryCurr int
	RetryMax  int
	Result    Result
	ResultErr string
	CreatedAt time.Time
	Reply     ReplyHandle
}

// NewID mints a new globally-unique session id.
func NewID() string {
	return uuid.New().String()
}

// MaxAuthRetries bounds Session.RetryCurr; exceeding it forces an
// error-terminal on the current attempt, not a deferred one (the original
// agent fails immediately on reaching the bound, see finishAuth).
const MaxAuthRetries = 3
