// Package ipc implements the per-user unix-socket wire protocol (§4.2):
// line-delimited JSON over $XDG_RUNTIME_DIR/bb-auth.sock, one JSON object
// per line, with a hard per-line size cap and a small fixed vocabulary of
// inbound/outbound message types.
package ipc

import "time"

// MaxMessageSize is the hard per-line cap (§4.2). A client that sends a
// line exceeding this without a newline is disconnected.
const MaxMessageSize = 64 * 1024

// Connect/write timeouts, shared across the transport (§5). There is no
// ReadTimeout alongside these: keyring_request/pinentry_request connections
// legitimately block for up to PinentryRequestTimeout waiting on a
// session.respond/cancel that may never come quickly, and a subscribed
// event connection is expected to sit idle between session events. A
// single static per-read deadline would have to be refreshed on every
// read to avoid disconnecting those healthy idle connections, which is
// exactly the bookkeeping waitForReply/the pending-event queue already do
// at the session level — a second, lower-level timer here would just race
// it.
const (
	ConnectTimeout = time.Second
	WriteTimeout   = time.Second
)

// PinentryRequestTimeout bounds how long a pinentry_request connection
// blocks waiting for a session.respond/cancel to resolve it (§4.7).
const PinentryRequestTimeout = 5 * time.Minute

// KeyringRequestTimeout mirrors PinentryRequestTimeout: the original
// source names no separate bound for the keyring_request path.
const KeyringRequestTimeout = PinentryRequestTimeout

// Routing error codes, carried forward verbatim from the original agent's
// vocabulary (§4.12).
const (
	ErrUnknownCommand = "unknown_command"
	ErrMissingID      = "missing_id"
	ErrMissingCookie  = "missing_cookie"
	ErrInvalidCookie  = "invalid_cookie"
)

// Transport error messages (§4.2), sent as {"type":"error","message":...}.
const (
	ErrMsgUnknownType = "Unknown type"
	ErrMsgMissingType = "Missing type field"
	ErrMsgInvalidJSON = "Invalid JSON"
)

func errorMessage(message string) map[string]any {
	return map[string]any{"type": "error", "message": message}
}

func errorCode(code string) map[string]any {
	return map[string]any{"type": "error", "error": code}
}

func okReply() map[string]any {
	return map[string]any{"type": "ok"}
}
