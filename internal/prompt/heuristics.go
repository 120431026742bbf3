package prompt

import "strings"

// The following phrase lists are this package's own heuristic for
// classifying a biometric/security-key prompt from free-form polkit
// action text — the upstream implementation's PromptHeuristics source
// was not available to ground these against verbatim, so the phrase
// sets below are inferred from the intents they must distinguish
// (§4.8: Fingerprint, Fido2, generic touch) and kept conservative.

var fingerprintPhrases = []string{
	"fingerprint", "finger print", "touch the fingerprint", "scan your finger",
}

var fidoPhrases = []string{
	"security key", "fido", "u2f", "webauthn", "hardware key", "touch your key",
}

var touchPhrases = []string{
	"touch", "press the button", "tap your",
}

func containsAny(haystack string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(haystack, p) {
			return true
		}
	}
	return false
}

func looksLikeFingerprintPrompt(text string) bool {
	return containsAny(text, fingerprintPhrases)
}

func looksLikeFidoPrompt(text string) bool {
	return containsAny(text, fidoPhrases)
}

func looksLikeTouchPrompt(text string) bool {
	return containsAny(text, touchPhrases)
}
