package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
)

// maxRequestorNameWidth caps how many terminal columns a requestor's
// display name (desktop entry name or exe basename, §4.6 — arbitrary
// UTF-8, not bounded by the original process) may occupy on a
// fixed-width provider surface before being elided. Measured in
// East-Asian-aware columns, not bytes or runes, since a handful of
// wide CJK characters can blow a fixed-width card layout even though
// the rune count looks short.
const maxRequestorNameWidth = 40

func truncateDisplayName(name string) string {
	if runewidth.StringWidth(name) <= maxRequestorNameWidth {
		return name
	}
	return runewidth.Truncate(name, maxRequestorNameWidth, "…")
}

// DetailWrapWidth is the default column width detail lines are wrapped
// to for providers that render a fixed-width or terminal-style surface,
// matching how the teacher wraps long text for display. Providers with
// their own layout engine can ignore Model.Details and use the
// unwrapped fields instead.
const DetailWrapWidth = 72

// Intent classifies what kind of credential interaction a prompt is
// asking for (§4.8).
type Intent string

const (
	IntentGeneric    Intent = "generic"
	IntentUnlock     Intent = "unlock"
	IntentFingerprint Intent = "fingerprint"
	IntentFido2      Intent = "fido2"
	IntentRunCommand Intent = "run_command"
	IntentOpenPgp    Intent = "openpgp"
)

// Requestor identifies the process that triggered the request.
type Requestor struct {
	Name string
	PID  int64
}

// Input is a session's raw inbound context plus optional live info/
// prompt fields, the input to Build.
type Input struct {
	Source      string // "polkit" | "keyring" | "pinentry"
	Message     string
	Description string
	Requestor   Requestor
	ActionID    string
	User        string
	KeyringName string
	Info        string // live update, may change across retries
	LivePrompt  string // live update, pinentry's current SETPROMPT text
}

// Model is the display model produced by Build.
type Model struct {
	Intent              Intent
	Title               string
	Summary             string
	Details             string
	RequestorLine       string
	Prompt              string
	PassphrasePrompt    bool
	AllowEmptyResponse  bool
}

var genericAuthSummaries = map[string]bool{
	"authentication is required":              true,
	"authentication required":                 true,
	"authorization is required":                true,
	"authorization required":                   true,
	"authenticate to continue":                 true,
	"authentication is required to continue":   true,
	"authorization is required to continue":    true,
}

func isGenericAuthSummary(summary string) bool {
	normalized := normalizeCompareText(summary)
	if normalized == "" {
		return true
	}
	return genericAuthSummaries[normalized]
}

var lowSignalCommands = map[string]bool{"true": true, "sh": true, "bash": true}

func isLowSignalCommand(name string) bool {
	normalized := strings.ToLower(strings.TrimSpace(name))
	return normalized == "" || lowSignalCommands[normalized]
}

func humanizeActionID(actionID string) string {
	actionID = strings.TrimSpace(actionID)
	if actionID == "" {
		return ""
	}

	if idx := strings.LastIndexByte(actionID, '.'); idx >= 0 && idx+1 < len(actionID) {
		actionID = actionID[idx+1:]
	}

	actionID = strings.NewReplacer("-", " ", "_", " ", "/", " ").Replace(actionID)
	words := strings.Fields(actionID)
	if len(words) == 0 {
		return ""
	}
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

var (
	identityQuoteRe = regexp.MustCompile(`"([^"]+)"`)
	keyIDRe         = regexp.MustCompile(`(?i)ID\s+([A-F0-9]{8,})`)
	keyTypeRe       = regexp.MustCompile(`(?i)(\d{3,5}-bit\s+[A-Za-z0-9-]+\s+key)`)
	createdRe       = regexp.MustCompile(`(?i)created\s+([0-9]{4}-[0-9]{2}-[0-9]{2})`)
)

func captureFirst(text string, re *regexp.Regexp) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func cleanIdentity(identity string) string {
	identity = strings.Join(strings.Fields(identity), " ")
	identity = strings.ReplaceAll(strings.ToLower(identity), " (github)", "")
	return strings.TrimSpace(identity)
}

func isIdentityLine(line string) bool {
	return strings.Contains(line, "\"") && strings.Contains(line, "<") && strings.Contains(line, ">")
}

func isKeyMetadataLine(line string) bool {
	lower := strings.ToLower(line)
	return (strings.Contains(lower, " id ") || strings.HasPrefix(lower, "id ")) && strings.Contains(lower, "created")
}

// Build produces a display model from in, per §4.8's intent
// classification and per-intent title/summary/details/prompt rules.
func Build(in Input) Model {
	var model Model

	requestorName := strings.TrimSpace(in.Requestor.Name)
	actionID := strings.TrimSpace(in.ActionID)
	var actionSummary string
	if in.Source == "polkit" {
		actionSummary = humanizeActionID(actionID)
	}
	actionUser := strings.TrimSpace(in.User)

	infoText := normalizeDetailText(in.Info)
	normalizedMessage := normalizeDetailText(in.Message)
	normalizedDescription := normalizeDetailText(in.Description)
	detailText := strings.ToLower(normalizedDescription + " " + normalizedMessage)
	livePromptText := normalizeDetailText(in.LivePrompt)
	authHintText := strings.ToLower(detailText + " " + infoText + " " + livePromptText)

	var commandName string
	if in.Source == "polkit" {
		commandName = extractCommandName(in.Message)
	}

	unlockCtx := unlockContext{KeyringName: in.KeyringName, Message: in.Message, Description: in.Description}
	var unlockTarget string
	if in.Source == "polkit" || in.Source == "keyring" {
		unlockTarget = extractUnlockTargetFromContext(unlockCtx)
	}
	if in.Source == "keyring" && unlockTarget == "" {
		unlockTarget = requestorName
	}

	fingerprintHint := looksLikeFingerprintPrompt(authHintText)
	fidoHint := looksLikeFidoPrompt(authHintText)
	touchHint := fingerprintHint || fidoHint || looksLikeTouchPrompt(authHintText)

	switch {
	case in.Source == "polkit" && fingerprintHint:
		model.Intent = IntentFingerprint
	case in.Source == "polkit" && fidoHint:
		model.Intent = IntentFido2
	case in.Source == "pinentry" && (strings.Contains(detailText, "openpgp") || strings.Contains(detailText, "gpg")):
		model.Intent = IntentOpenPgp
	case in.Source == "polkit" && commandName != "":
		model.Intent = IntentRunCommand
	case (in.Source == "polkit" || in.Source == "keyring") && unlockTarget != "":
		model.Intent = IntentUnlock
	default:
		model.Intent = IntentGeneric
	}

	switch {
	case model.Intent == IntentUnlock:
		model.Title = "Unlock " + unlockTarget
		model.Summary = "Use your password to unlock " + unlockTarget
		model.Details = buildUnlockDetails(unlockCtx, unlockTarget)

	case model.Intent == IntentFingerprint:
		model.Title = "Verify Fingerprint"
		if infoText == "" {
			model.Summary = "Use your fingerprint sensor to continue"
		} else {
			model.Summary = firstMeaningfulLine(infoText)
		}
		model.Details = normalizedDescription

	case model.Intent == IntentFido2:
		model.Title = "Use Security Key"
		if infoText == "" {
			model.Summary = "Touch your security key to continue"
		} else {
			model.Summary = firstMeaningfulLine(infoText)
		}
		model.Details = normalizedDescription

	case model.Intent == IntentRunCommand:
		model.Title = "Authorization Required"
		if isLowSignalCommand(commandName) {
			model.Summary = "Administrative privileges required"
		} else {
			model.Summary = fmt.Sprintf("Run %s as superuser", commandName)
		}
		model.Details = ""

	case in.Source == "pinentry":
		buildPinentryModel(&model, in, detailText)

	default:
		if in.Source == "polkit" {
			model.Title = "Authorization Required"
		} else {
			model.Title = "Authentication Required"
		}
		model.Summary = firstMeaningfulLine(normalizedMessage)
		if model.Summary == "" {
			model.Summary = firstMeaningfulLine(normalizedDescription)
		}
		if normalizedDescription != "" && !textEquivalent(normalizedDescription, model.Summary) {
			model.Details = normalizedDescription
		} else if normalizedMessage != "" && !textEquivalent(normalizedMessage, model.Summary) {
			model.Details = normalizedMessage
		}
	}

	buildRequestorLine(&model, in, requestorName, unlockTarget)
	foldSummaryDetails(&model)

	if infoText != "" && !textEquivalent(infoText, model.Summary) && !textEquivalent(infoText, model.Details) {
		if model.Details == "" {
			model.Details = infoText
		} else {
			model.Details = uniqueJoined([]string{model.Details, infoText})
		}
	}

	if in.Source == "polkit" {
		applyPolkitDetails(&model, actionSummary, actionID, actionUser)
	}

	buildPromptLabel(&model, in, touchHint)

	model.PassphrasePrompt = in.Source == "pinentry" || strings.Contains(strings.ToLower(model.Prompt), "passphrase")
	if in.Source == "polkit" && touchHint {
		model.PassphrasePrompt = false
	}

	if model.Details != "" {
		model.Details = wordwrap.String(model.Details, DetailWrapWidth)
	}

	return model
}

func buildPinentryModel(model *Model, in Input, detailText string) {
	switch {
	case model.Intent == IntentOpenPgp:
		model.Title = "Unlock OpenPGP Key"
	case strings.Contains(detailText, "ssh"):
		model.Title = "Unlock SSH Key"
	default:
		model.Title = "Authentication Required"
	}

	referenceText := in.Description
	if referenceText == "" {
		referenceText = in.Message
	}

	identity := cleanIdentity(captureFirst(referenceText, identityQuoteRe))
	keyID := captureFirst(referenceText, keyIDRe)
	keyType := captureFirst(referenceText, keyTypeRe)
	created := captureFirst(referenceText, createdRe)

	var pieces []string
	switch {
	case identity != "":
		pieces = append(pieces, trimToLength(identity, 72))
	case keyType != "":
		pieces = append(pieces, keyType)
	}
	if keyID != "" {
		pieces = append(pieces, keyID)
	}
	if created != "" {
		pieces = append(pieces, "created "+created)
	}

	if len(pieces) > 0 {
		model.Summary = strings.Join(pieces, "  •  ")
	} else {
		model.Summary = firstMeaningfulLine(referenceText)
	}

	pinText := in.Description
	if pinText == "" {
		pinText = in.Message
	}
	pinText = normalizeDetailText(pinText)
	if pinText != "" {
		var filtered []string
		for _, line := range strings.Split(pinText, "\n") {
			if isIdentityLine(line) || isKeyMetadataLine(line) {
				continue
			}
			filtered = append(filtered, line)
		}
		if len(filtered) == 0 {
			model.Details = pinText
		} else {
			model.Details = strings.Join(filtered, "\n")
		}
	}
}

func buildRequestorLine(model *Model, in Input, requestorName, unlockTarget string) {
	requestorPID := in.Requestor.PID
	requestorName = truncateDisplayName(requestorName)

	if requestorName != "" {
		duplicateUnlockRequestor := model.Intent == IntentUnlock && strings.EqualFold(requestorName, unlockTarget)
		if !duplicateUnlockRequestor {
			weakIdentity := in.Source == "polkit" && strings.EqualFold(requestorName, "unknown") && requestorPID > 0
			if weakIdentity {
				model.RequestorLine = fmt.Sprintf("Requested by process %d", requestorPID)
			} else {
				model.RequestorLine = "Requested by " + requestorName
			}
		}
	} else if in.Source == "polkit" && requestorPID > 0 {
		model.RequestorLine = fmt.Sprintf("Requested by process %d", requestorPID)
	}
}

func foldSummaryDetails(model *Model) {
	if model.Summary == "" && model.Details != "" {
		normalizedDetails := normalizeDetailText(model.Details)
		if idx := strings.IndexByte(normalizedDetails, '\n'); idx == -1 {
			model.Summary = normalizedDetails
			model.Details = ""
		} else {
			model.Summary = strings.TrimSpace(normalizedDetails[:idx])
			model.Details = strings.TrimSpace(normalizedDetails[idx+1:])
		}
	}

	if model.Summary != "" && model.Details != "" {
		normalizedDetails := normalizeDetailText(model.Details)
		detailLines := strings.Split(normalizedDetails, "\n")
		if len(detailLines) > 0 && textEquivalent(detailLines[0], model.Summary) {
			detailLines = detailLines[1:]
			model.Details = strings.TrimSpace(strings.Join(detailLines, "\n"))
		}
		if textEquivalent(model.Summary, model.Details) {
			model.Details = ""
		}
	}
}

func applyPolkitDetails(model *Model, actionSummary, actionID, actionUser string) {
	if isGenericAuthSummary(model.Summary) && actionSummary != "" {
		model.Summary = actionSummary
	}

	var actionLines []string
	if actionSummary != "" {
		actionLines = append(actionLines, "Action: "+actionSummary)
	}
	if actionID != "" && !strings.EqualFold(actionID, actionSummary) {
		actionLines = append(actionLines, "Policy: "+actionID)
	}
	if actionUser != "" {
		actionLines = append(actionLines, "Authenticate as "+actionUser)
	}

	actionDetails := uniqueJoined(actionLines)
	if actionDetails == "" {
		return
	}
	if model.Details == "" {
		model.Details = actionDetails
	} else {
		model.Details = uniqueJoined([]string{model.Details, actionDetails})
	}
}

func buildPromptLabel(model *Model, in Input, touchHint bool) {
	if in.Source == "pinentry" {
		pinPrompt := strings.TrimSpace(in.LivePrompt)
		if pinPrompt == "" {
			pinPrompt = strings.TrimSpace(in.Message)
		}
		if pinPrompt == "" {
			pinPrompt = "Passphrase:"
		}
		model.Prompt = pinPrompt
		return
	}

	model.Prompt = "Password:"
	if in.Source == "polkit" && touchHint {
		model.Prompt = "Press Enter to continue (or wait)"
		model.AllowEmptyResponse = true
	}
}
