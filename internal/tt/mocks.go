// Package tt provides test doubles shared by the package test suites: a
// scriptable reasoning model, in-process MCP endpoints, and text assertions.
package tt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// MockModel is a scriptable llms.Model. Responses and errors queue up in
// order; each GenerateContent call consumes one. Requests are captured for
// inspection.
type MockModel struct {
	mu       sync.Mutex
	queue    []step
	Captured [][]llms.MessageContent
}

type step struct {
	response *llms.ContentResponse
	err      error
}

// NewMockModel creates an empty mock. Script it with AddResponse/AddError.
func NewMockModel() *MockModel {
	return &MockModel{}
}

// AddResponse queues a response. Returns the mock for chaining.
func (m *MockModel) AddResponse(resp *llms.ContentResponse) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, step{response: resp})
	return m
}

// AddText queues a plain-text response.
func (m *MockModel) AddText(text string) *MockModel {
	return m.AddResponse(TextResponse(text))
}

// AddToolCall queues a response requesting one tool call.
func (m *MockModel) AddToolCall(id, name string, args map[string]any) *MockModel {
	return m.AddResponse(ToolCallResponse(id, name, args))
}

// AddError queues an error.
func (m *MockModel) AddError(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, step{err: err})
	return m
}

// Calls returns how many GenerateContent calls the mock has served.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Captured)
}

// GenerateContent implements llms.Model.
func (m *MockModel) GenerateContent(
	ctx context.Context,
	messages []llms.MessageContent,
	options ...llms.CallOption,
) (*llms.ContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Captured = append(m.Captured, messages)
	if len(m.queue) == 0 {
		return nil, fmt.Errorf("mock model: no scripted response for call %d", len(m.Captured))
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	return next.response, next.err
}

// Call implements the legacy llms.Model surface.
func (m *MockModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, options...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Content, nil
}

var _ llms.Model = (*MockModel)(nil)

// TextResponse builds a single-choice text response.
func TextResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text}},
	}
}

// ToolCallResponse builds a response whose only choice requests one tool
// call with the given arguments.
func ToolCallResponse(id, name string, args map[string]any) *llms.ContentResponse {
	encoded, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{{
				ID:   id,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      name,
					Arguments: string(encoded),
				},
			}},
		}},
	}
}
