// Package prompt builds a display model — title, summary, details,
// requestor line, prompt label — from a session's raw inbound context
// (§4.8).
package prompt

import (
	"strings"
)

// normalizeDetailText converts CRLF/CR line endings to LF and drops
// blank or whitespace-only lines.
func normalizeDetailText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// comparePunctuation is replaced with a space by normalizeCompareText,
// so punctuation that abuts a word (like a backtick in "how`s") still
// breaks it into two words rather than fusing them together.
const comparePunctuation = ",\"`."

// normalizeCompareText lowercases s, turns a small set of punctuation
// marks into spaces, and collapses whitespace runs to single spaces,
// producing a key suitable for equivalence comparisons (not display).
func normalizeCompareText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if strings.ContainsRune(comparePunctuation, r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// textEquivalent reports whether a and b are the same text once
// normalized, or one is a normalized prefix of the other (so a
// truncated summary still matches its untruncated detail line).
func textEquivalent(a, b string) bool {
	na, nb := normalizeCompareText(a), normalizeCompareText(b)
	if na == "" || nb == "" {
		return na == nb
	}
	return na == nb || strings.HasPrefix(na, nb) || strings.HasPrefix(nb, na)
}

// firstMeaningfulLine returns the first non-blank line of s.
func firstMeaningfulLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// trimToLength truncates text to at most maxLen characters, replacing
// the tail with "..." when truncation occurs.
func trimToLength(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// uniqueJoined deduplicates items (by trimmed, case-insensitive key,
// skipping blanks) preserving first-occurrence order, and joins the
// kept originals with "\n".
func uniqueJoined(items []string) string {
	seen := make(map[string]bool, len(items))
	kept := make([]string, 0, len(items))
	for _, item := range items {
		key := strings.ToLower(strings.TrimSpace(item))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, item)
	}
	return strings.Join(kept, "\n")
}
