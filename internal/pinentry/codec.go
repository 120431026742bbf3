// Package pinentry implements the Assuan protocol front-end used by
// GnuPG to collect a passphrase or confirmation via the daemon (§4.7).
package pinentry

import (
	"strconv"
	"strings"
)

// Decode reverses Assuan percent-encoding ("%HH") in an inbound command
// argument.
func Decode(input string) string {
	var b strings.Builder
	b.Grow(len(input))

	for i := 0; i < len(input); i++ {
		if input[i] == '%' && i+2 < len(input) {
			if code, err := strconv.ParseUint(input[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(code))
				i += 2
				continue
			}
		}
		b.WriteByte(input[i])
	}
	return b.String()
}

// Encode percent-encodes '%', CR, and LF for an outbound "D" payload line.
func Encode(input string) string {
	var b strings.Builder
	b.Grow(len(input))

	for i := 0; i < len(input); i++ {
		c := input[i]
		if c == '%' || c == '\n' || c == '\r' {
			const hexDigits = "0123456789ABCDEF"
			b.WriteByte('%')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0xF])
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// SplitCommand splits an Assuan protocol line into its command verb and
// percent-decoded argument.
func SplitCommand(line string) (cmd, arg string) {
	idx := strings.IndexByte(line, ' ')
	if idx < 0 {
		return strings.ToUpper(line), ""
	}
	return strings.ToUpper(line[:idx]), Decode(line[idx+1:])
}
