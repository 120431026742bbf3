package daemon

import (
	"context"

	"github.com/anthonyhab/bb-auth/internal/log"
	"github.com/anthonyhab/bb-auth/internal/session"
)

// PolkitEvent is the data the PolicyKit authentication-agent glue hands
// the daemon on an inbound authenticate call. The glue itself — D-Bus
// registration as org.freedesktop.PolicyKit1.AuthenticationAgent — is the
// external collaborator spec.md §1 scopes out; this struct is the data
// shape that boundary produces, not the binding that produces it.
type PolkitEvent struct {
	Cookie      string
	ActionID    string
	Message     string
	Description string
	User        string
	SubjectPID  int
}

// PolkitResponder is the daemon's handle back to the PolicyKit agent glue
// for one session. Respond hands a freshly entered secret onward for
// PolicyKit's own asynchronous session object to validate; the daemon
// never retains it past the hand-off (spec.md's non-goals exclude
// credential storage/caching). A single session may see several Respond
// calls, one per retry round, since PolicyKit's own validation result
// arrives later and separately (see PolkitCompleted) rather than
// synchronously with the hand-off. Cancel is the terminal, once-only
// call: the prompt was denied, cancelled, or exhausted its retries.
type PolkitResponder interface {
	Respond(cookie, password string)
	Cancel(cookie string)
}

// PolkitInitiate creates a session for an inbound PolicyKit authentication
// request, attributing the subject pid to a Requestor when possible
// (§4.6), and returns the session id. A duplicate cookie is rejected
// exactly like keyring_request/pinentry_request (spec.md invariant i).
func (d *Daemon) PolkitInitiate(ctx context.Context, ev PolkitEvent, responder PolkitResponder) (string, error) {
	cookie := ev.Cookie
	if cookie == "" {
		cookie = session.NewID()
	}

	sessCtx := session.Context{
		Message:              ev.Message,
		Description:          ev.Description,
		ActionID:             ev.ActionID,
		User:                 ev.User,
		FingerprintAvailable: d.cfg.FingerprintAvailable,
	}
	if ev.SubjectPID != 0 && d.resolver != nil {
		if info, err := d.resolver.Resolve(ctx, ev.SubjectPID); err == nil {
			sessCtx.Requestor = &session.Requestor{
				Name: info.DisplayName,
				PID:  info.Proc.PID,
				UID:  info.Proc.RUID,
				Exe:  info.Proc.Exe,
			}
		} else {
			log.Warn(log.CatActor, "actor resolution failed", "pid", ev.SubjectPID, "error", err)
		}
	}

	sess, err := d.sessions.Create(cookie, session.SourcePolkit, sessCtx)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	d.responders[cookie] = responder
	d.mu.Unlock()

	d.publish(session.Event{Kind: session.EventCreated, SessionID: cookie, Session: *sess})
	if ev2, err := d.sessions.OnPrompt(cookie, ev.Message, true); err == nil {
		d.publish(ev2)
	}
	return cookie, nil
}

// PolkitCancel aborts a polkit-sourced session from the subsystem side —
// the agent itself withdrawing the request (e.g. the requesting process
// exited) — distinct from a UI provider's session.cancel, which already
// goes through the normal IPC path and reaches deliverPolkitResult via
// HandleSessionEvent.
func (d *Daemon) PolkitCancel(cookie string) {
	ev, err := d.sessions.OnCancel(cookie)
	if err != nil {
		return
	}
	d.publish(ev)
}

// ForwardReply implements ipc.ReplyForwarder: a polkit-sourced session has
// no connection-level reply handle for handleRespond to unicast onto, so
// the IPC layer hands the response value here instead, for every
// session.respond — including a retry round, since OnRespond only moves
// Prompting -> Awaiting and the subsystem's own validation is still
// pending. The responder entry stays in the map until the session
// reaches a terminal state (see deliverPolkitResult), since a retry may
// need it again.
func (d *Daemon) ForwardReply(id, response string) {
	d.mu.Lock()
	responder, ok := d.responders[id]
	d.mu.Unlock()
	if !ok {
		return
	}
	responder.Respond(id, response)
}

// PolkitCompleted is called by the PolicyKit agent glue when its own
// asynchronous session object resolves — the completed(bool
// gainedAuthorization) signal in
// original_source/src/core/PolkitListener.cpp — which happens separately
// from, and later than, the session.respond that merely forwarded the
// entered secret via ForwardReply. success drives a terminal Success
// close (§4.1's "auth-completed(success): * -> Success and close");
// otherwise OnFailure either returns the session to Prompting for
// another round or, once MaxAuthRetries is reached, closes it as a
// terminal failure (mirroring finishAuth's retryCount/reattempt logic).
func (d *Daemon) PolkitCompleted(cookie string, success bool, errText string) {
	if success {
		ev, err := d.sessions.OnSuccess(cookie)
		if err != nil {
			return
		}
		d.publish(ev)
		return
	}

	ev, _, err := d.sessions.OnFailure(cookie, errText)
	if err != nil {
		return
	}
	d.publish(ev)
}

// deliverPolkitResult delivers a terminal, non-success outcome
// (cancelled, timed out, or retry-exhausted failure) to the subsystem via
// the responder's Cancel. A Success close is already fully handled by
// ForwardReply's Respond call at each respond round, so it needs no
// further callback here — the entry is still removed so the map doesn't
// grow unboundedly.
func (d *Daemon) deliverPolkitResult(ev session.Event) {
	d.mu.Lock()
	responder, ok := d.responders[ev.SessionID]
	if ok {
		delete(d.responders, ev.SessionID)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	if ev.Session.Result == session.ResultSuccess {
		return
	}
	responder.Cancel(ev.SessionID)
}
