package sanitize

import (
	"regexp"
	"strings"

	"github.com/gcastel/agentloop"
	"github.com/gcastel/agentloop/schema"
)

// Argument keys that receive domain-specific treatment. Matching is by key
// name because discovery schemas carry no semantic annotations beyond type.
var (
	queryKeys = map[string]bool{"sql": true, "query": true}
	pathKeys  = map[string]bool{
		"path": true, "file": true, "filename": true,
		"filepath": true, "dir": true, "directory": true,
	}
)

// destructiveVerbs are statement-altering or data-deleting query keywords.
// Payloads containing one are rejected unless the tool declares mutation as
// an allowed capability.
var destructiveVerbs = regexp.MustCompile(
	`(?i)\b(DROP|DELETE|TRUNCATE|ALTER|UPDATE|INSERT)\b`)

// likeUnquoted matches a case-insensitive match operator followed by an
// operand that is not quoted. The operand is only repaired when it contains
// a wildcard, so column references stay untouched.
var likeUnquoted = regexp.MustCompile(`(?i)\b(ILIKE|LIKE)\s+([^'"\s;][^\s;]*)`)

// percentEscape matches a percent sign followed by two hex digits.
var percentEscape = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)

// Arguments validates and repairs one call's argument payload before it is
// allowed anywhere near an endpoint.
//
// A payload that already satisfies the tool's declared input shape and
// trips no security gate comes back unchanged. Repairs are limited to
// query-language arguments: percent-decoding, and quoting an unquoted
// pattern operand after ILIKE/LIKE. Security gates (destructive verbs,
// parent-directory traversal) return a security-tagged error; shape
// violations return a parse-tagged error. Both are meant to be folded into
// the conversation, not raised.
func Arguments(
	tool *agentloop.ToolDescriptor,
	inputSchema *schema.Schema,
	raw map[string]any,
) (map[string]any, *agentloop.Error) {
	args := make(map[string]any, len(raw))
	for key, value := range raw {
		args[key] = value
	}

	for key, value := range args {
		text, isString := value.(string)
		if !isString {
			continue
		}
		lowered := strings.ToLower(key)

		if pathKeys[lowered] {
			if hasTraversal(text) {
				return nil, agentloop.NewError(agentloop.KindSecurity, "sanitizer",
					"argument %q for tool %q contains a parent-directory traversal", key, tool.Name).
					WithHint("use a path relative to the tool's root, without '..'")
			}
			continue
		}

		if queryKeys[lowered] {
			fixed := FixQuery(text)
			if !tool.AllowsMutation {
				if verb := destructiveVerbs.FindString(fixed); verb != "" {
					return nil, agentloop.NewError(agentloop.KindSecurity, "sanitizer",
						"query for tool %q contains destructive keyword %q", tool.Name, strings.ToUpper(verb)).
						WithHint("only read-only queries are allowed; rephrase without DROP, DELETE, ALTER, TRUNCATE, UPDATE or INSERT")
				}
			}
			args[key] = fixed
		}
	}

	if err := inputSchema.Validate(args); err != nil {
		return nil, agentloop.NewError(agentloop.KindParse, "sanitizer",
			"arguments for tool %q do not match its input shape", tool.Name).
			WithHint("compare the arguments against the tool's declared schema").
			WithCause(err)
	}

	return args, nil
}

// FixQuery repairs the query-string corruptions engines produce most often:
// percent-escaped characters and unquoted pattern operands.
func FixQuery(q string) string {
	q = decodePercent(q)
	q = quotePatternOperands(q)
	return q
}

// decodePercent resolves %XX escapes. Wildcard uses of the percent sign
// (as in '%alice%') are left alone because they are not followed by two hex
// digits — and %25 itself is preserved as a literal percent.
func decodePercent(q string) string {
	return percentEscape.ReplaceAllStringFunc(q, func(esc string) string {
		b := hexByte(esc[1])<<4 | hexByte(esc[2])
		if b < 0x20 || b > 0x7e {
			return esc
		}
		return string(rune(b))
	})
}

func hexByte(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// quotePatternOperands wraps an unquoted wildcard operand after ILIKE/LIKE
// in single quotes: `name ILIKE %alice%` becomes `name ILIKE '%alice%'`.
func quotePatternOperands(q string) string {
	return likeUnquoted.ReplaceAllStringFunc(q, func(match string) string {
		sub := likeUnquoted.FindStringSubmatch(match)
		operator, operand := sub[1], sub[2]
		if !strings.Contains(operand, "%") {
			return match
		}
		return operator + " '" + operand + "'"
	})
}

// hasTraversal reports whether a path contains a parent-directory segment.
func hasTraversal(path string) bool {
	for _, segment := range strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	}) {
		if segment == ".." {
			return true
		}
	}
	return false
}
