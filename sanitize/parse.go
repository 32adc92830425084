package sanitize

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/gcastel/agentloop"
)

// ParseToolCalls extracts tool-call requests from a reasoning engine reply.
//
// Resolution order:
//  1. If the structured tool-call field is populated, it is used directly.
//  2. Otherwise the free text is scanned for an embedded JSON object that
//     looks like a tool call (a "name" member plus an "arguments" or
//     "parameters" member), repairing invalid escapes first.
//  3. Otherwise the reply is a final answer and the result is empty.
//
// Calls without an engine-assigned ID get one minted locally. The function
// never fails: text that resists every repair is simply not a tool call.
func ParseToolCalls(raw *agentloop.RawResponse) []*agentloop.ToolCallRequest {
	if raw == nil {
		return nil
	}

	if len(raw.Calls) > 0 {
		requests := make([]*agentloop.ToolCallRequest, 0, len(raw.Calls))
		for _, call := range raw.Calls {
			id := call.ID
			if id == "" {
				id = uuid.NewString()
			}
			args := call.Arguments
			if args == nil && call.RawArguments != "" {
				// The engine double-encoded or corrupted the argument
				// JSON; repair and decode. If it still resists, the call
				// goes through with empty arguments so schema validation
				// reports the problem back to the engine.
				_ = json.Unmarshal([]byte(CleanJSONText(call.RawArguments)), &args)
			}
			requests = append(requests, &agentloop.ToolCallRequest{
				ID:      id,
				Name:    call.Name,
				RawArgs: unwrapValues(args),
			})
		}
		return requests
	}

	return parseEmbedded(raw.Text)
}

// parseEmbedded recovers a tool call the engine wrote into its free text
// instead of the structured field. Some models do this reliably enough that
// dropping the calls would strand the loop.
func parseEmbedded(text string) []*agentloop.ToolCallRequest {
	text = strings.TrimSpace(text)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil
	}

	cleaned := CleanJSONText(text[start : end+1])

	var obj map[string]any
	if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
		return nil
	}

	name, args, ok := NormalizeCall(obj)
	if !ok {
		return nil
	}
	return []*agentloop.ToolCallRequest{{
		ID:      uuid.NewString(),
		Name:    name,
		RawArgs: unwrapValues(args),
	}}
}

// NormalizeCall extracts the tool name and arguments from a call-shaped
// object, treating a "parameters" member as a synonym of "arguments".
// Returns ok=false when the object is not a tool call.
func NormalizeCall(obj map[string]any) (name string, args map[string]any, ok bool) {
	name, _ = obj["name"].(string)
	if name == "" {
		return "", nil, false
	}

	rawArgs, present := obj["arguments"]
	if !present {
		rawArgs, present = obj["parameters"]
	}
	if !present {
		return "", nil, false
	}

	switch v := rawArgs.(type) {
	case map[string]any:
		return name, v, true
	case nil:
		return name, map[string]any{}, true
	case string:
		// Arguments double-encoded as a JSON string.
		var decoded map[string]any
		if err := json.Unmarshal([]byte(CleanJSONText(v)), &decoded); err != nil {
			return "", nil, false
		}
		return name, decoded, true
	default:
		return "", nil, false
	}
}

// CleanJSONText removes invalid escape sequences from would-be JSON.
// Engines regularly emit escapes like \% or \_ that no JSON decoder
// accepts; the backslash is dropped while every legal escape is kept.
func CleanJSONText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		next := s[i+1]
		switch next {
		case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
			b.WriteByte(c)
		default:
			// Invalid escape: drop the backslash, keep the character.
		}
	}
	return b.String()
}

// unwrapValues flattens the {"value": x} wrappers some engines put around
// individual argument values.
func unwrapValues(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(args))
	for key, value := range args {
		if wrapper, ok := value.(map[string]any); ok && len(wrapper) == 1 {
			if inner, ok := wrapper["value"]; ok {
				out[key] = inner
				continue
			}
		}
		out[key] = value
	}
	return out
}
