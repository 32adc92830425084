package agentloop

// Endpoint identifies a tool-serving endpoint reachable through the
// discovery/invocation protocol.
//
// Address is a transport specification:
//
//	stdio://python server.py    spawn a subprocess speaking stdio
//	sse://host:8080/sse         HTTP + server-sent events
//	http+stream://host:8080     streamable HTTP
//	http://host:8080            plain URL, treated as SSE
//
// Anything without a recognized scheme is treated as a stdio command line.
type Endpoint struct {
	// Name is the endpoint identifier used in logs and tool ownership.
	Name string

	// Address is the transport specification for reaching the endpoint.
	Address string
}

// ToolDescriptor is the self-describing record a tool publishes at discovery
// time, annotated with the endpoint that owns it.
type ToolDescriptor struct {
	// Name is the tool's identifier, unique within a registry.
	Name string

	// Description is the human-readable description shown to the
	// reasoning engine.
	Description string

	// InputSchema is the JSON Schema for the tool's arguments.
	// Nil if the tool takes no arguments.
	InputSchema map[string]any

	// Endpoint is the name of the owning Endpoint.
	Endpoint string

	// AllowsMutation is true when the tool declares destructive operations
	// as an allowed capability. The sanitizer's destructive-keyword gate is
	// skipped for such tools.
	AllowsMutation bool
}

// ToolCallRequest is one tool invocation requested by the reasoning engine.
type ToolCallRequest struct {
	// ID is the call identifier, unique within a turn. Minted locally when
	// the engine embedded the call in free text without one.
	ID string

	// Name is the tool to invoke.
	Name string

	// RawArgs is the argument payload exactly as the engine produced it,
	// before sanitization.
	RawArgs map[string]any

	// Args is the sanitized argument payload. Nil until sanitization has
	// run; may differ from RawArgs when repairs were applied.
	Args map[string]any
}

// ToolCallResult is the outcome of one tool invocation. Every request yields
// exactly one result, success or failure.
type ToolCallResult struct {
	// ID matches the ToolCallRequest this result answers.
	ID string

	// Name is the tool that was invoked.
	Name string

	// Content is the tool output on success, empty on failure.
	Content string

	// Err is the failure detail, nil on success.
	Err *Error

	// Truncated is true when Content was cut to the configured bound.
	Truncated bool
}

// OK reports whether the call succeeded.
func (r *ToolCallResult) OK() bool {
	return r.Err == nil
}

// Text returns the content the reasoning engine should observe for this
// result: the tool output on success, or the failure detail (including its
// remediation hint) on failure, so the engine can self-correct.
func (r *ToolCallResult) Text() string {
	if r.Err == nil {
		return r.Content
	}
	msg := "error: " + r.Err.Message
	if r.Err.Hint != "" {
		msg += " (" + r.Err.Hint + ")"
	}
	return msg
}

// FailedCall builds the failing ToolCallResult for a request that was
// rejected before reaching any endpoint (unknown tool, blocked arguments,
// invocation failure). The loop folds these into the conversation instead of
// aborting.
func FailedCall(req *ToolCallRequest, err *Error) *ToolCallResult {
	return &ToolCallResult{
		ID:   req.ID,
		Name: req.Name,
		Err:  err,
	}
}
