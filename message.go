package agentloop

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a conversation. Exactly one of the optional fields
// is populated depending on the role: assistant messages may carry ToolCalls,
// tool messages carry a Result.
type Message struct {
	// Role is the author of the message.
	Role Role

	// Text is the message body. May be empty for an assistant message that
	// only requests tool calls.
	Text string

	// ToolCalls are the calls requested by an assistant message.
	ToolCalls []*ToolCallRequest

	// Result is the tool outcome carried by a tool message.
	Result *ToolCallResult
}

// Conversation owns the ordered message history for one loop run. Messages
// are never reordered or deduplicated. A Conversation is owned exclusively by
// one run at a time; it is not safe for concurrent use and does not need to
// be.
type Conversation struct {
	messages []*Message

	// pending maps call IDs from the latest assistant turn to their
	// requests. MergeResults consumes it; a result with no pending entry is
	// an orphan.
	pending map[string]*ToolCallRequest
}

// NewConversation creates a conversation seeded with the system prompt and
// the user's request. The system message is always message 0 and survives
// history bounding.
func NewConversation(systemPrompt, userMessage string) *Conversation {
	return &Conversation{
		messages: []*Message{
			{Role: RoleSystem, Text: systemPrompt},
			{Role: RoleUser, Text: userMessage},
		},
		pending: map[string]*ToolCallRequest{},
	}
}

// AppendUser appends a user message.
func (c *Conversation) AppendUser(text string) {
	c.messages = append(c.messages, &Message{Role: RoleUser, Text: text})
}

// AppendAssistant appends an assistant message. The given calls become the
// pending set for the next MergeResults; any previously pending calls are
// discarded.
func (c *Conversation) AppendAssistant(text string, calls []*ToolCallRequest) {
	c.messages = append(c.messages, &Message{
		Role:      RoleAssistant,
		Text:      text,
		ToolCalls: calls,
	})
	c.pending = make(map[string]*ToolCallRequest, len(calls))
	for _, call := range calls {
		c.pending[call.ID] = call
	}
}

// MergeResults appends one tool message per result, in the order given,
// which the caller guarantees to be the order of the original requests.
// A result whose ID matches no pending request from the immediately
// preceding assistant turn fails with a protocol error and leaves the
// history untouched.
func (c *Conversation) MergeResults(results []*ToolCallResult) error {
	for _, result := range results {
		if _, ok := c.pending[result.ID]; !ok {
			return NewError(KindProtocol, "conversation",
				"tool result %q for tool %q matches no pending call", result.ID, result.Name).
				WithHint("the endpoint answered with a call ID the assistant never issued; check the endpoint's invocation handling")
		}
	}
	for _, result := range results {
		delete(c.pending, result.ID)
		c.messages = append(c.messages, &Message{
			Role:   RoleTool,
			Text:   result.Text(),
			Result: result,
		})
	}
	return nil
}

// BoundHistory drops the oldest non-system messages until at most max
// remain after the system message. The system message is never dropped.
// A non-positive max is a no-op.
func (c *Conversation) BoundHistory(max int) {
	if max <= 0 {
		return
	}
	// messages[0] is the system message by construction.
	rest := c.messages[1:]
	if len(rest) <= max {
		return
	}
	kept := make([]*Message, 0, max+1)
	kept = append(kept, c.messages[0])
	kept = append(kept, rest[len(rest)-max:]...)
	c.messages = kept
}

// Messages returns the ordered history. Callers must not mutate it.
func (c *Conversation) Messages() []*Message {
	return c.messages
}

// Len returns the number of messages in the history.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// PendingCalls returns the calls from the latest assistant turn that have
// not yet received a result.
func (c *Conversation) PendingCalls() int {
	return len(c.pending)
}
