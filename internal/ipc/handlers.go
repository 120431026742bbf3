package ipc

import (
	"time"

	"github.com/anthonyhab/bb-auth/internal/log"
	"github.com/anthonyhab/bb-auth/internal/provider"
	"github.com/anthonyhab/bb-auth/internal/session"
)

func (s *Server) handleSubscribe(c *conn) {
	active := s.providers.Subscribe(c.id)
	c.subscribed = true
	_ = c.writeJSON(map[string]any{"type": "subscribed", "active": active})
}

func (s *Server) handleNext(c *conn) {
	if msg, ok := s.popNextEvent(); ok {
		_ = c.writeJSON(msg)
		return
	}
	_ = c.writeJSON(map[string]any{"type": "empty"})
}

func (s *Server) handleRegister(c *conn, msg map[string]any) {
	name := strField(msg, "name")
	kind := strField(msg, "kind")
	priority := provider.DefaultPriority(kind)
	if p, ok := msg["priority"].(float64); ok {
		priority = int(p)
	}

	p, active, transitions := s.providers.Register(c.id, name, kind, priority)
	c.providerID = p.ID
	_ = c.writeJSON(map[string]any{"type": "ui.registered", "id": p.ID, "active": active})
	s.applyTransitions(transitions)
}

func (s *Server) handleHeartbeat(c *conn, msg map[string]any) {
	id := strField(msg, "id")
	if id == "" {
		id = c.providerID
	}
	if !s.providers.Heartbeat(id) {
		_ = c.writeJSON(errorCode(ErrInvalidCookie))
		return
	}
	_ = c.writeJSON(okReply())
}

func (s *Server) handleRespond(c *conn, msg map[string]any) {
	id := strField(msg, "id")
	if id == "" {
		_ = c.writeJSON(errorCode(ErrMissingID))
		return
	}
	if !s.providers.IsAuthorized(c.id) {
		_ = c.writeJSON(errorMessage("not the active UI provider"))
		return
	}

	sess, err := s.sessions.RespondAuthorized(id)
	if err != nil {
		_ = c.writeJSON(errorCode(ErrInvalidCookie))
		return
	}

	response, _ := msg["response"].(string)

	// The ack for this command is written before the resulting session
	// event is broadcast, so that an active provider which is also
	// subscribed sees its own "ok" before the async fan-out of the same
	// mutation it just caused.
	var ev session.Event
	switch sess.Source {
	case session.SourcePinentry:
		if err := s.sessions.OnRespond(id); err != nil {
			_ = c.writeJSON(errorCode(ErrInvalidCookie))
			return
		}
		s.deliverPending(id, pinentryReplyPayload(id, sess, response))
		_ = c.writeJSON(okReply())
	case session.SourceKeyring:
		var err error
		ev, err = s.sessions.OnSuccess(id)
		if err != nil {
			_ = c.writeJSON(errorCode(ErrInvalidCookie))
			return
		}
		s.deliverPending(id, map[string]any{"type": "keyring_response", "id": id, "result": "ok", "password": response})
		_ = c.writeJSON(okReply())
	default: // polkit: Prompting -> Awaiting, forward the response, and let
		// the subsystem's own later completion call (Daemon.PolkitCompleted)
		// decide success/failure instead of resolving it here
		if err := s.sessions.OnRespond(id); err != nil {
			_ = c.writeJSON(errorCode(ErrInvalidCookie))
			return
		}
		if fw, ok := s.sink.(ReplyForwarder); ok {
			fw.ForwardReply(id, response)
		}
		_ = c.writeJSON(okReply())
	}

	s.broadcastAndForward(ev)
}

func (s *Server) handleCancel(c *conn, msg map[string]any) {
	id := strField(msg, "id")
	if id == "" {
		_ = c.writeJSON(errorCode(ErrMissingID))
		return
	}
	if !s.providers.IsAuthorized(c.id) {
		_ = c.writeJSON(errorMessage("not the active UI provider"))
		return
	}

	sess, ok := s.sessions.Get(id)
	if !ok {
		_ = c.writeJSON(errorCode(ErrInvalidCookie))
		return
	}

	ev, err := s.sessions.OnCancel(id)
	if err != nil {
		_ = c.writeJSON(errorCode(ErrInvalidCookie))
		return
	}

	switch sess.Source {
	case session.SourcePinentry:
		s.deliverPending(id, map[string]any{"type": "pinentry_response", "id": id, "result": "cancelled"})
	case session.SourceKeyring:
		s.deliverPending(id, map[string]any{"type": "keyring_response", "id": id, "result": "cancel"})
	}

	_ = c.writeJSON(okReply())
	s.broadcastAndForward(ev)
}

func (s *Server) handleKeyringRequest(c *conn, msg map[string]any) {
	cookie := strField(msg, "cookie")
	if cookie == "" {
		_ = c.writeJSON(errorCode(ErrMissingCookie))
		return
	}

	ctx := session.Context{
		Message:     strField(msg, "prompt"),
		Description: strField(msg, "description"),
		KeyringName: strField(msg, "title"),
		PasswordNew: boolField(msg, "password_new"),
		ConfirmOnly: boolField(msg, "confirm_only"),
	}

	if _, exists := s.sessions.Get(cookie); exists {
		_ = c.writeJSON(errorMessage("duplicate session id"))
		return
	}

	sess, err := s.sessions.Create(cookie, session.SourceKeyring, ctx)
	if err != nil {
		_ = c.writeJSON(errorMessage("duplicate session id"))
		return
	}
	_ = s.sessions.Update(cookie, func(se *session.Session) { se.Reply = session.ReplyHandle{ConnID: c.id} })

	s.broadcastAndForward(session.Event{Kind: session.EventCreated, SessionID: cookie, Session: *sess})

	ev, err := s.promptSession(cookie, ctx.Message, true)
	if err == nil {
		s.broadcastAndForward(ev)
	}

	s.waitForReply(c, cookie, KeyringRequestTimeout)
}

func (s *Server) handlePinentryRequest(c *conn, msg map[string]any) {
	cookie := strField(msg, "cookie")
	if cookie == "" {
		_ = c.writeJSON(errorCode(ErrMissingCookie))
		return
	}

	prompt := strField(msg, "prompt")
	description := strField(msg, "description")
	confirmOnly := boolField(msg, "confirm_only")

	existing, exists := s.sessions.Get(cookie)
	if !exists {
		ctx := session.Context{
			Message:     prompt,
			Description: description,
			KeyringName: strField(msg, "title"),
			ConfirmOnly: confirmOnly,
		}
		sess, err := s.sessions.Create(cookie, session.SourcePinentry, ctx)
		if err != nil {
			_ = c.writeJSON(errorMessage("duplicate session id"))
			return
		}
		s.broadcastAndForward(session.Event{Kind: session.EventCreated, SessionID: cookie, Session: *sess})
	} else if existing.State.IsTerminal() {
		_ = c.writeJSON(errorCode(ErrInvalidCookie))
		return
	}

	_ = s.sessions.Update(cookie, func(se *session.Session) { se.Reply = session.ReplyHandle{ConnID: c.id} })

	errText := strField(msg, "error")
	ev, err := s.promptSession(cookie, prompt, true)
	if err == nil {
		if errText != "" {
			if infoEv, infoErr := s.sessions.OnError(cookie, errText); infoErr == nil {
				ev = infoEv
			}
		}
		s.broadcastAndForward(ev)
	}

	s.waitForReply(c, cookie, PinentryRequestTimeout)
}

func (s *Server) handlePinentryResult(c *conn, msg map[string]any) {
	id := strField(msg, "id")
	if id == "" {
		_ = c.writeJSON(errorCode(ErrMissingID))
		return
	}
	if _, ok := s.sessions.Get(id); !ok {
		_ = c.writeJSON(errorCode(ErrInvalidCookie))
		return
	}

	result := strField(msg, "result")
	errText := strField(msg, "error")

	var ev session.Event
	var err error
	switch result {
	case "success":
		ev, err = s.sessions.OnSuccess(id)
	case "cancelled":
		ev, err = s.sessions.OnCancel(id)
	case "retry", "error":
		ev, _, err = s.sessions.OnFailure(id, errText)
	default:
		log.Warn(log.CatIPC, "unrecognised pinentry_result", "result", result)
		_ = c.writeJSON(errorMessage("unrecognised result"))
		return
	}
	if err != nil {
		_ = c.writeJSON(errorCode(ErrInvalidCookie))
		return
	}

	s.broadcastAndForward(ev)
	_ = c.writeJSON(okReply())
}

// promptSession pushes a (possibly updated) prompt to a session. First
// arrival (Created -> Prompting) goes through the state machine's OnPrompt;
// a pinentry retry round re-enters with the session already back in
// Prompting (set by OnFailure), which OnPrompt's guard does not accept as
// a transition source, so that case is applied as a direct field update
// instead of a state transition.
func (s *Server) promptSession(id, prompt string, echo bool) (session.Event, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return session.Event{}, session.ErrNotFound
	}
	if sess.State == session.StatePrompting {
		var ev session.Event
		err := s.sessions.Update(id, func(se *session.Session) {
			se.Prompt = prompt
			se.Echo = echo
			ev = session.Event{Kind: session.EventUpdated, SessionID: id, Session: *se}
		})
		return ev, err
	}
	return s.sessions.OnPrompt(id, prompt, echo)
}

// waitForReply registers a pending-reply channel for id, blocks this
// connection on it up to timeout, and writes whatever arrives (or a
// timeout error) back on c. This is the half of the protocol that holds a
// keyring_request/pinentry_request connection open until a UI provider's
// session.respond/session.cancel resolves it on a different connection
// (§4.12).
func (s *Server) waitForReply(c *conn, id string, timeout time.Duration) {
	ch := s.registerPending(id)
	defer s.unregisterPending(id)

	select {
	case payload := <-ch:
		_ = c.writeJSON(payload)
	case <-time.After(timeout):
		if ev, _, err := s.sessions.OnFailure(id, "timed out waiting for a response"); err == nil {
			s.broadcastAndForward(ev)
		}
		_ = c.writeJSON(errorMessage("timed out waiting for a response"))
	}
}

func pinentryReplyPayload(id string, sess *session.Session, response string) map[string]any {
	if sess.Context.ConfirmOnly {
		return map[string]any{"type": "pinentry_response", "id": id, "result": "confirmed"}
	}
	return map[string]any{"type": "pinentry_response", "id": id, "result": "ok", "password": response}
}
