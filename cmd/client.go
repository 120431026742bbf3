package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"

	"github.com/anthonyhab/bb-auth/internal/ipc"
)

// dialAndRoundtrip opens a short-lived connection to the control socket,
// writes one line-delimited JSON frame, and reads exactly one reply line —
// the shape every one-shot CLI mode needs (§6.4). It does not speak the
// subscribe/event-stream half of the protocol; that is the UI provider's
// job, not the CLI's.
func dialAndRoundtrip(socketPath string, req map[string]any) (map[string]any, error) {
	conn, err := net.DialTimeout("unix", socketPath, ipc.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	defer func() { _ = conn.Close() }()

	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), ipc.MaxMessageSize)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading reply: %w", err)
		}
		return nil, fmt.Errorf("daemon closed the connection without a reply")
	}

	var reply map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &reply); err != nil {
		return nil, fmt.Errorf("decoding reply: %w", err)
	}
	return reply, nil
}
