package prompt

import (
	"regexp"
	"strings"
)

var (
	runQuotedRe = regexp.MustCompile("(?i)run\\s+['\"`]([^'\"`]+)['\"`]")
	absPathRe   = regexp.MustCompile(`/[^\s'"` + "`" + `]+`)
	unlockRe    = regexp.MustCompile(`(?i)unlock\s+(.+)`)
)

// extractCommandName pulls a command name out of a polkit message: an
// explicit "run 'cmd'"/`run "cmd"`/run `cmd`` quoting, or the basename
// of the first absolute path mentioned. Plain bare words are not
// captured — too weak a signal to name a command after.
func extractCommandName(message string) string {
	if m := runQuotedRe.FindStringSubmatch(message); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := absPathRe.FindString(message); m != "" {
		segs := strings.Split(strings.TrimRight(m, "/"), "/")
		return segs[len(segs)-1]
	}
	return ""
}

// extractUnlockTarget pulls the object of an "unlock <target>" phrase,
// trimming a trailing period.
func extractUnlockTarget(text string) string {
	trimmed := strings.TrimSpace(text)
	m := unlockRe.FindStringSubmatch(trimmed)
	if m == nil {
		return ""
	}
	target := strings.TrimSpace(m[1])
	target = strings.TrimSuffix(target, ".")
	return strings.TrimSpace(target)
}

// unlockContext is the subset of a session's context relevant to unlock
// target extraction, in priority order (keyringName, message,
// description).
type unlockContext struct {
	KeyringName string
	Message     string
	Description string
}

// extractUnlockTargetFromContext tries keyringName, then message, then
// description (in that priority) for an "unlock <target>" phrase.
func extractUnlockTargetFromContext(ctx unlockContext) string {
	for _, v := range []string{ctx.KeyringName, ctx.Message, ctx.Description} {
		if v == "" {
			continue
		}
		if target := extractUnlockTarget(v); target != "" {
			return target
		}
	}
	return ""
}

// buildUnlockDetails combines description/message/keyringName into a
// deduplicated detail block, filtering out any line that's just the
// generic "Authenticate to unlock <target>" template phrase.
func buildUnlockDetails(ctx unlockContext, target string) string {
	var lines []string
	for _, v := range []string{ctx.Description, ctx.Message, ctx.KeyringName} {
		if v == "" {
			continue
		}
		lines = append(lines, strings.Split(normalizeDetailText(v), "\n")...)
	}

	templateLine := "Authenticate to unlock " + target
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		if textEquivalent(line, templateLine) {
			continue
		}
		filtered = append(filtered, line)
	}

	return uniqueJoined(filtered)
}
