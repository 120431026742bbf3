package pinentry

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
)

// PinentryRequestTimeout and pinentryResultTimeout are named in §4.7 /
// Constants.hpp.
const (
	PinentryRequestTimeout = 5 * time.Minute
	pinentryResultTimeout  = 10 * time.Second
)

const operationCancelledCode = 83886179

// requester is the daemon-facing half of a session: sending a pinentry
// request/result and getting back a response. Implemented by
// *DaemonClient; faked in tests.
type requester interface {
	SendRequest(req map[string]any, timeout time.Duration) (map[string]any, error)
}

type state struct {
	description string
	prompt      string
	title       string
	errorText   string
	keyinfo     string
	repeat      string
}

// Session drives one pinentry process's stdin/stdout Assuan loop.
type Session struct {
	client                 requester
	out                    io.Writer
	state                  state
	flowCookie             string
	awaitingTerminalResult bool
}

// NewSession constructs a Session writing Assuan responses to out and
// issuing daemon requests through client.
func NewSession(client requester, out io.Writer) *Session {
	return &Session{client: client, out: out}
}

// Run reads Assuan command lines from in until BYE or EOF, per §4.7.
func (s *Session) Run(in io.Reader) {
	s.sendOK("BB Auth Pinentry")

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		if line == "" {
			continue
		}
		if !s.handleCommand(line) {
			return
		}
	}
	s.finalizeOnStreamClose()
}

func (s *Session) sendOK(comment string) {
	if comment == "" {
		fmt.Fprint(s.out, "OK\n")
	} else {
		fmt.Fprintf(s.out, "OK %s\n", comment)
	}
}

func (s *Session) sendErr(code int, message string) {
	fmt.Fprintf(s.out, "ERR %d %s\n", code, message)
}

func (s *Session) sendData(data string) {
	fmt.Fprintf(s.out, "D %s\n", Encode(data))
}

func (s *Session) ensureFlowCookie() string {
	if s.flowCookie == "" {
		s.flowCookie = uuid.New().String()
	}
	return s.flowCookie
}

func (s *Session) clearSubmitState() {
	s.awaitingTerminalResult = false
}

func (s *Session) resetFlow() {
	s.clearSubmitState()
	s.flowCookie = ""
}

// handleCommand processes one Assuan line and reports whether the
// session should keep reading (false only after BYE).
func (s *Session) handleCommand(line string) bool {
	cmd, arg := SplitCommand(line)

	switch cmd {
	case "BYE":
		if s.awaitingTerminalResult {
			s.reportStateTerminal("success")
		} else if s.flowCookie != "" {
			s.reportStateTerminal("cancelled")
		}
		s.sendOK("closing connection")
		return false

	case "SETDESC":
		s.state.description = arg
	case "SETPROMPT":
		s.state.prompt = arg
	case "SETTITLE":
		s.state.title = arg
	case "SETERROR":
		s.state.errorText = arg
	case "SETOK", "SETCANCEL", "SETNOTOK":
		// Button label overrides: acknowledged, not surfaced by this
		// headless front-end.
	case "SETKEYINFO":
		s.state.keyinfo = arg
	case "SETREPEAT":
		s.state.repeat = arg
	case "OPTION":
		// ttyname/ttytype/lc-ctype/etc: acknowledged, unused.
	case "GETINFO":
		s.handleGetInfo(arg)
		return true
	case "GETPIN":
		s.handleGetPin()
		return true
	case "CONFIRM":
		s.handleConfirm()
		return true
	case "MESSAGE":
		// Shows description and waits for OK; this front-end has no
		// interactive display step, so just acknowledge.
	case "RESET":
		s.state = state{}
	case "NOP":
		// no-op
	default:
		// Unknown commands are still OK per the Assuan spec.
	}

	s.sendOK("")
	return true
}

func (s *Session) handleGetInfo(arg string) {
	switch arg {
	case "pid":
		s.sendData(fmt.Sprintf("%d", os.Getpid()))
		s.sendOK("")
	case "version":
		s.sendData("1.0.0")
		s.sendOK("")
	case "flavor":
		s.sendData("bb")
		s.sendOK("")
	case "ttyinfo":
		s.sendData("")
		s.sendOK("")
	default:
		s.sendOK("")
	}
}

// handleGetPin implements §4.7's GETPIN/retry semantics: a GETPIN that
// arrives while a previous submission is still awaiting its terminal
// result reports that previous flow as "retry" (carrying its last
// SETERROR text, defaulting to "Authentication failed") before starting
// a fresh request under the same flow cookie.
func (s *Session) handleGetPin() {
	if s.awaitingTerminalResult {
		retryError := s.state.errorText
		if retryError == "" {
			retryError = "Authentication failed"
		}
		s.reportTerminalResult("retry", retryError)
	}

	password, ok := s.requestPasswordFromDaemon()
	if ok && password != "" {
		s.sendData(password)
		s.sendOK("")
	} else {
		s.sendErr(operationCancelledCode, "Operation cancelled")
	}
	s.state.errorText = ""
}

func (s *Session) handleConfirm() {
	if s.requestConfirmFromDaemon() {
		s.sendOK("")
	} else {
		s.sendErr(operationCancelledCode, "Operation cancelled")
	}
	s.state.errorText = ""
}

func (s *Session) requestPasswordFromDaemon() (string, bool) {
	cookie := s.ensureFlowCookie()

	title := s.state.title
	if title == "" {
		title = "GPG Key"
	}
	prompt := s.state.prompt
	if prompt == "" {
		prompt = "Enter passphrase:"
	}

	req := map[string]any{
		"type":        "pinentry_request",
		"cookie":      cookie,
		"title":       title,
		"prompt":      prompt,
		"description": s.state.description,
		"repeat":      s.state.repeat != "",
	}
	if s.state.errorText != "" {
		req["error"] = s.state.errorText
	}
	if s.state.keyinfo != "" {
		req["keyinfo"] = s.state.keyinfo
	}

	resp, err := s.client.SendRequest(req, PinentryRequestTimeout)
	if err != nil {
		s.resetFlow()
		return "", false
	}

	if respType, _ := resp["type"].(string); respType == "pinentry_response" {
		if result, _ := resp["result"].(string); result == "ok" {
			password, _ := resp["password"].(string)
			s.awaitingTerminalResult = true
			return password, true
		}
	}

	s.resetFlow()
	return "", false
}

func (s *Session) requestConfirmFromDaemon() bool {
	cookie := s.ensureFlowCookie()

	title := s.state.title
	if title == "" {
		title = "Confirm"
	}
	prompt := s.state.description
	if prompt == "" {
		prompt = "Please confirm"
	}

	req := map[string]any{
		"type":         "pinentry_request",
		"cookie":       cookie,
		"title":        title,
		"prompt":       prompt,
		"confirm_only": true,
	}

	resp, err := s.client.SendRequest(req, PinentryRequestTimeout)
	if err != nil {
		s.resetFlow()
		return false
	}

	respType, _ := resp["type"].(string)
	result, _ := resp["result"].(string)
	confirmed := respType == "pinentry_response" && result == "confirmed"
	if confirmed {
		s.awaitingTerminalResult = true
	} else {
		s.resetFlow()
	}
	return confirmed
}

// reportStateTerminal reports "error" with the last SETERROR text if one
// is set, and defaultResult otherwise, at stream close or BYE.
func (s *Session) reportStateTerminal(defaultResult string) {
	if s.state.errorText != "" {
		s.reportTerminalResult("error", s.state.errorText)
	} else {
		s.reportTerminalResult(defaultResult, "")
	}
}

func (s *Session) finalizeOnStreamClose() {
	if s.awaitingTerminalResult {
		s.reportStateTerminal("success")
		return
	}
	if s.flowCookie != "" {
		s.reportStateTerminal("cancelled")
	}
}

func (s *Session) reportTerminalResult(result, errText string) {
	if s.flowCookie == "" {
		return
	}

	req := map[string]any{
		"type":   "pinentry_result",
		"id":     s.flowCookie,
		"result": result,
	}
	if errText != "" {
		req["error"] = errText
	}

	_, _ = s.client.SendRequest(req, pinentryResultTimeout)

	if result == "retry" {
		s.clearSubmitState()
	} else {
		s.resetFlow()
	}
}
