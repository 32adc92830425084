package agentloop

// StructuredCall is one tool call as reported in the reasoning engine's
// structured tool-call field, before sanitization.
type StructuredCall struct {
	// ID is the engine-assigned call identifier. May be empty; the parser
	// mints one in that case.
	ID string

	// Name is the requested tool.
	Name string

	// Arguments is the decoded argument payload. Nil when the engine's
	// argument JSON did not decode; RawArguments then holds the text for
	// the sanitizer to repair.
	Arguments map[string]any

	// RawArguments is the argument payload as the engine encoded it.
	RawArguments string
}

// RawResponse is one reasoning engine reply: free text plus whatever the
// engine reported in its structured tool-call field. The gateway performs no
// interpretation beyond filling these two fields; recovering call intent
// embedded in Text is the sanitizer's job.
type RawResponse struct {
	// Text is the assistant's free-text content.
	Text string

	// Calls are the structured tool calls, in the order the engine
	// reported them. Empty when the engine answered in text only.
	Calls []StructuredCall
}
