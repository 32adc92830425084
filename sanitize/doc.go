// Package sanitize repairs malformed reasoning-engine output and validates
// tool arguments before they reach any endpoint.
//
// The engine's structured output is unreliable: tool calls show up embedded
// in free text, JSON arrives with invalid escape sequences, argument keys
// vary between "arguments" and "parameters", and query strings come back
// with unquoted pattern operands. ParseToolCalls and Arguments absorb those
// quirks so the rest of the loop can assume well-formed input.
//
// Arguments is also the security boundary: destructive query verbs and
// parent-directory traversals are rejected here, before dispatch, and the
// rejection is returned as a tagged error the driver folds back into the
// conversation.
package sanitize
