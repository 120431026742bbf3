package ipc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthonyhab/bb-auth/internal/log"
	"github.com/anthonyhab/bb-auth/internal/tracing"
)

func (s *Server) dispatch(c *conn, line []byte) {
	var msg map[string]any
	if err := json.Unmarshal(line, &msg); err != nil {
		_ = c.writeJSON(errorMessage(ErrMsgInvalidJSON))
		return
	}

	typ, _ := msg["type"].(string)
	if typ == "" {
		_ = c.writeJSON(errorMessage(ErrMsgMissingType))
		return
	}

	_, span := tracing.DispatchSpan(context.Background(), s.tracer, c.id, typ)
	var dispatchErr error
	defer func() { tracing.EndDispatchSpan(span, dispatchErr) }()

	switch typ {
	case "ping":
		_ = c.writeJSON(map[string]any{"type": "pong"})
	case "subscribe":
		s.handleSubscribe(c)
	case "next":
		s.handleNext(c)
	case "ui.register":
		s.handleRegister(c, msg)
	case "ui.heartbeat":
		s.handleHeartbeat(c, msg)
	case "session.respond":
		s.handleRespond(c, msg)
	case "session.cancel":
		s.handleCancel(c, msg)
	case "keyring_request":
		s.handleKeyringRequest(c, msg)
	case "pinentry_request":
		s.handlePinentryRequest(c, msg)
	case "pinentry_result":
		s.handlePinentryResult(c, msg)
	default:
		log.Debug(log.CatIPC, "unknown message type", "type", typ)
		dispatchErr = fmt.Errorf("%s: %s", ErrMsgUnknownType, typ)
		_ = c.writeJSON(errorMessage(ErrMsgUnknownType))
	}
}

func strField(msg map[string]any, key string) string {
	v, _ := msg[key].(string)
	return v
}

func boolField(msg map[string]any, key string) bool {
	v, _ := msg[key].(bool)
	return v
}
