package sanitize

import "unicode/utf8"

// TruncationMarker is appended to output that was cut at the size bound.
const TruncationMarker = "\n[output truncated]"

// Output bounds tool output before it is folded into the conversation.
// Returns the (possibly shortened) content and whether truncation happened.
// The cut lands on a rune boundary so the engine never sees a torn
// character. A non-positive bound disables truncation.
func Output(content string, maxBytes int) (string, bool) {
	if maxBytes <= 0 || len(content) <= maxBytes {
		return content, false
	}

	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + TruncationMarker, true
}
