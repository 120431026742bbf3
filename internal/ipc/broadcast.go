package ipc

import "github.com/anthonyhab/bb-auth/internal/session"

// broadcastAndForward pushes ev to every subscribed connection and, if a
// sink is configured, hands it to the daemon core (which decides whether
// the provider launcher needs to run). A zero-value Event (the no-op
// result of a guarded transition) is silently dropped.
func (s *Server) broadcastAndForward(ev session.Event) {
	if ev.Kind == "" {
		return
	}
	s.broadcastEvent(ev)
	if s.sink != nil {
		s.sink.HandleSessionEvent(ev)
	}
}

// Broadcast fans ev out to subscribers without forwarding it to the
// sink. It exists for event sources that never went through dispatch in
// the first place — the daemon core's polkit boundary (§4.12) creates and
// mutates sessions directly, then calls this to publish the result and
// calls its own HandleSessionEvent separately (Daemon.publish).
func (s *Server) Broadcast(ev session.Event) {
	if ev.Kind == "" {
		return
	}
	s.broadcastEvent(ev)
}

func (s *Server) broadcastEvent(ev session.Event) {
	msg := sessionEventMessage(ev)
	if msg == nil {
		return
	}

	s.mu.Lock()
	s.eventQueue = append(s.eventQueue, msg)
	targets := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		if c.subscribed {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		_ = c.writeJSON(msg)
	}
}

// popNextEvent dequeues the oldest not-yet-consumed event from the
// server's shared FIFO, for the `next` message / `--next` CLI flag
// (§4.12, §6.4). This queue is independent of per-connection `subscribe`
// fan-out: any client, including a one-shot CLI invocation that never
// subscribed, can drain it.
func (s *Server) popNextEvent() (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.eventQueue) == 0 {
		return nil, false
	}
	msg := s.eventQueue[0]
	s.eventQueue = s.eventQueue[1:]
	return msg, true
}

// sessionEventMessage translates a session.Event into its wire shape
// (§6.1's session.created/session.updated/session.closed payloads).
func sessionEventMessage(ev session.Event) map[string]any {
	switch ev.Kind {
	case session.EventCreated:
		return map[string]any{
			"type":    "session.created",
			"id":      ev.SessionID,
			"source":  string(ev.Session.Source),
			"context": contextPayload(ev.Session.Context),
		}
	case session.EventUpdated:
		m := map[string]any{"type": "session.updated", "id": ev.SessionID}
		if ev.Session.Prompt != "" {
			m["prompt"] = ev.Session.Prompt
		}
		m["echo"] = ev.Session.Echo
		if ev.Session.Error != "" {
			m["error"] = ev.Session.Error
		}
		if ev.Session.Info != "" {
			m["info"] = ev.Session.Info
		}
		m["curRetry"] = ev.Session.RetryCurr
		m["maxRetries"] = ev.Session.RetryMax
		return m
	case session.EventClosed:
		m := map[string]any{
			"type":   "session.closed",
			"id":     ev.SessionID,
			"result": string(ev.Session.Result),
		}
		if ev.Session.ResultErr != "" {
			m["error"] = ev.Session.ResultErr
		}
		return m
	default:
		return nil
	}
}

func contextPayload(ctx session.Context) map[string]any {
	m := map[string]any{"message": ctx.Message}
	if ctx.Description != "" {
		m["description"] = ctx.Description
	}
	if ctx.ActionID != "" {
		m["actionId"] = ctx.ActionID
	}
	if ctx.User != "" {
		m["user"] = ctx.User
	}
	if ctx.KeyringName != "" {
		m["keyringName"] = ctx.KeyringName
	}
	if ctx.ConfirmOnly {
		m["confirmOnly"] = true
	}
	if ctx.PasswordNew {
		m["passwordNew"] = true
	}
	if ctx.FingerprintAvailable {
		m["fingerprintAvailable"] = true
	}
	if ctx.Requestor != nil {
		m["requestor"] = map[string]any{
			"name": ctx.Requestor.Name,
			"pid":  ctx.Requestor.PID,
			"uid":  ctx.Requestor.UID,
			"exe":  ctx.Requestor.Exe,
		}
	}
	return m
}
