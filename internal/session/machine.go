package session

import "fmt"

// ErrWrongState is returned when a transition is attempted from a state
// that does not permit it.
var ErrWrongState = fmt.Errorf("session not in a state that permits this transition")

// OnPrompt handles a subsystem prompt arrival: Created|Awaiting -> Prompting,
// emitting session.updated with the new prompt and echo flag. Setting a new
// prompt clears any stale info field (§4.1).
func (s *Store) OnPrompt(id, prompt string, echo bool) (Event, error) {
	var ev Event
	err := s.Update(id, func(sess *Session) {
		if sess.State != StateCreated && sess.State != StateAwaiting {
			return
		}
		sess.State = StatePrompting
		sess.Prompt = prompt
		sess.Echo = echo
		sess.Info = ""
		ev = Event{Kind: EventUpdated, SessionID: id, Session: *sess}
	})
	if err != nil {
		return Event{}, err
	}
	if ev.Kind == "" {
		return Event{}, ErrWrongState
	}
	return ev, nil
}

// OnRespond handles a provider session.respond: Prompting -> Awaiting. The
// caller (daemon core) is responsible for forwarding the response value to
// the originating subsystem after this succeeds.
func (s *Store) OnRespond(id string) error {
	return s.Update(id, func(sess *Session) {
		if sess.State == StatePrompting {
			sess.State = StateAwaiting
		}
	})
}

// OnSuccess transitions a session to Success and closes it (any state ->
// Success, invariant (iii): no further session.updated after closed).
func (s *Store) OnSuccess(id string) (Event, error) {
	var ev Event
	err := s.Update(id, func(sess *Session) {
		sess.State = StateSuccess
		sess.Result = ResultSuccess
		ev = Event{Kind: EventClosed, SessionID: id, Session: *sess}
	})
	if err != nil {
		return Event{}, err
	}
	return ev, nil
}

// OnFailure handles a subsystem auth-completed(failure). If retries remain
// it increments the counter and returns to Prompting under the same
// session id; once MaxAuthRetries is reached it forces an error-terminal
// immediately on the current attempt (per the original source: finishAuth
// fails as soon as retryCount reaches the bound, never deferring to a
// hypothetical next round). terminal reports whether this call closed the
// session.
func (s *Store) OnFailure(id, reason string) (ev Event, terminal bool, err error) {
	err = s.Update(id, func(sess *Session) {
		sess.RetryCurr++
		if sess.RetryCurr >= sess.RetryMax {
			sess.State = StateFailed
			sess.Result = ResultError
			sess.ResultErr = reason
			ev = Event{Kind: EventClosed, SessionID: id, Session: *sess}
			terminal = true
			return
		}
		sess.State = StatePrompting
		sess.Error = reason
		ev = Event{Kind: EventUpdated, SessionID: id, Session: *sess}
	})
	return ev, terminal, err
}

// OnCancel handles an explicit cancel (active provider or subsystem-side):
// any non-terminal state -> Cancelled.
func (s *Store) OnCancel(id string) (Event, error) {
	var ev Event
	err := s.Update(id, func(sess *Session) {
		if sess.State.IsTerminal() {
			return
		}
		sess.State = StateCancelled
		sess.Result = ResultCancelled
		ev = Event{Kind: EventClosed, SessionID: id, Session: *sess}
	})
	if err != nil {
		return Event{}, err
	}
	if ev.Kind == "" {
		return Event{}, ErrInvalidCookie
	}
	return ev, nil
}

// OnInfo records a subsystem info line and emits session.updated with no
// state change.
func (s *Store) OnInfo(id, info string) (Event, error) {
	var ev Event
	err := s.Update(id, func(sess *Session) {
		sess.Info = info
		ev = Event{Kind: EventUpdated, SessionID: id, Session: *sess}
	})
	if err != nil {
		return Event{}, err
	}
	return ev, nil
}

// OnError records a subsystem error line and emits session.updated with
// no state change; providers may show it and the user may retry.
func (s *Store) OnError(id, errText string) (Event, error) {
	var ev Event
	err := s.Update(id, func(sess *Session) {
		sess.Error = errText
		ev = Event{Kind: EventUpdated, SessionID: id, Session: *sess}
	})
	if err != nil {
		return Event{}, err
	}
	return ev, nil
}

// RespondAuthorized validates a respond/cancel against store state,
// returning ErrInvalidCookie (no side effects) for an unknown or
// already-terminal session (§4.1 failure semantics).
func (s *Store) RespondAuthorized(id string) (*Session, error) {
	sess, ok := s.Get(id)
	if !ok || sess.State.IsTerminal() {
		return nil, ErrInvalidCookie
	}
	return sess, nil
}
