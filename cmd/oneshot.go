package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthonyhab/bb-auth/internal/log"
)

// runPing sends {"type":"ping"} and succeeds iff the daemon answers
// {"type":"pong"} (§6.4).
func runPing(socketPath string) error {
	reply, err := dialAndRoundtrip(socketPath, map[string]any{"type": "ping"})
	if err != nil {
		return err
	}
	if reply["type"] != "pong" {
		return fmt.Errorf("unexpected reply: %v", reply)
	}
	fmt.Println("pong")
	return nil
}

// runNext dequeues one pending event (or {"type":"empty"} if none) and
// prints it as JSON on stdout.
func runNext(socketPath string) error {
	reply, err := dialAndRoundtrip(socketPath, map[string]any{"type": "next"})
	if err != nil {
		return err
	}
	enc, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	fmt.Println(string(enc))
	return nil
}

// runRespond reads one line from stdin (the password/response payload)
// and sends it as session.respond for cookie.
func runRespond(socketPath, cookie string) error {
	response, err := readStdinLine()
	if err != nil {
		return fmt.Errorf("reading response from stdin: %w", err)
	}

	reply, err := dialAndRoundtrip(socketPath, map[string]any{
		"type":     "session.respond",
		"id":       cookie,
		"response": response,
	})
	if err != nil {
		return err
	}
	return expectOK(reply)
}

// runCancel sends session.cancel for cookie.
func runCancel(socketPath, cookie string) error {
	reply, err := dialAndRoundtrip(socketPath, map[string]any{
		"type": "session.cancel",
		"id":   cookie,
	})
	if err != nil {
		return err
	}
	return expectOK(reply)
}

func expectOK(reply map[string]any) error {
	if reply["type"] == "ok" {
		return nil
	}
	if reply["type"] == "error" {
		if msg, ok := reply["message"].(string); ok && msg != "" {
			return fmt.Errorf("%s", msg)
		}
		if code, ok := reply["error"].(string); ok && code != "" {
			return fmt.Errorf("%s", code)
		}
	}
	log.Warn(log.CatIPC, "unexpected reply from daemon", "reply", reply)
	return fmt.Errorf("unexpected reply: %v", reply)
}

func readStdinLine() (string, error) {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
