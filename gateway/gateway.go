// Package gateway is the reasoning-engine client. It converts the
// conversation and tool catalog into the engine's wire shapes, issues the
// blocking request with a per-call timeout, and retries transient failures
// with bounded exponential backoff.
//
// The gateway reports tool-call intent only as far as the engine's
// structured field carries it; recovering calls embedded in free text is the
// sanitizer's job.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/gcastel/agentloop"
)

// Gateway issues reasoning requests against an llms.Model.
type Gateway struct {
	model     llms.Model
	modelName string
	timeout   time.Duration
	attempts  int
	baseDelay time.Duration
	logger    *slog.Logger
}

// New creates a Gateway for the given model using the config's timeout and
// retry settings.
func New(model llms.Model, cfg *agentloop.Config) *Gateway {
	return &Gateway{
		model:     model,
		modelName: cfg.Model.Name,
		timeout:   cfg.CallTimeout,
		attempts:  cfg.RetryAttempts,
		baseDelay: cfg.RetryBaseDelay,
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger used for retry diagnostics.
// Returns the gateway for chaining.
func (g *Gateway) WithLogger(logger *slog.Logger) *Gateway {
	g.logger = logger
	return g
}

// Request submits the conversation plus tool schemas and returns the
// engine's raw reply. Transient failures are retried up to the configured
// attempt budget with doubling delays; when the budget is exhausted the
// last failure surfaces as a connection error with a remediation hint.
func (g *Gateway) Request(
	ctx context.Context,
	conv *agentloop.Conversation,
	tools []*agentloop.ToolDescriptor,
) (*agentloop.RawResponse, error) {
	messages := ConvertMessages(conv.Messages())

	var options []llms.CallOption
	if len(tools) > 0 {
		options = append(options, llms.WithTools(ConvertTools(tools)))
	}

	var lastErr error
	for attempt := 0; attempt <= g.attempts; attempt++ {
		if attempt > 0 {
			g.logger.Debug("retrying reasoning request",
				"model", g.modelName,
				"attempt", attempt,
				"max_attempts", g.attempts,
				"error", lastErr,
			)
			if err := g.wait(ctx, attempt); err != nil {
				return nil, connectionError(err)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		resp, err := g.model.GenerateContent(callCtx, messages, options...)
		cancel()

		if err == nil {
			return convertResponse(resp), nil
		}
		lastErr = err
		if ctx.Err() != nil {
			// The caller gave up; no point burning the retry budget.
			break
		}
	}

	return nil, connectionError(lastErr)
}

// wait sleeps for the backoff delay of the given attempt, doubling per
// attempt, and returns early if the context is done.
func (g *Gateway) wait(ctx context.Context, attempt int) error {
	delay := g.baseDelay << (attempt - 1)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func connectionError(cause error) *agentloop.Error {
	err := agentloop.NewError(agentloop.KindConnection, "gateway",
		"reasoning engine request failed").
		WithHint("check that the reasoning engine is running and reachable at its configured base URL").
		WithCause(cause)
	if errors.Is(cause, context.DeadlineExceeded) {
		err.Message = "reasoning engine request timed out"
		err.Hint = "raise call_timeout or use a smaller model"
	}
	return err
}

// ConvertMessages maps the conversation history to the engine wire shape.
func ConvertMessages(messages []*agentloop.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case agentloop.RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, msg.Text))
		case agentloop.RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, msg.Text))
		case agentloop.RoleAssistant:
			content := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if msg.Text != "" {
				content.Parts = append(content.Parts, llms.TextContent{Text: msg.Text})
			}
			for _, call := range msg.ToolCalls {
				content.Parts = append(content.Parts, llms.ToolCall{
					ID:   call.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      call.Name,
						Arguments: encodeArgs(call),
					},
				})
			}
			out = append(out, content)
		case agentloop.RoleTool:
			part := llms.ToolCallResponse{Content: msg.Text}
			if msg.Result != nil {
				part.ToolCallID = msg.Result.ID
				part.Name = msg.Result.Name
			}
			out = append(out, llms.MessageContent{
				Role:  llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{part},
			})
		}
	}
	return out
}

// encodeArgs serializes a call's sanitized arguments (falling back to the
// raw ones) for replay in the history.
func encodeArgs(call *agentloop.ToolCallRequest) string {
	args := call.Args
	if args == nil {
		args = call.RawArgs
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

// ConvertTools maps tool descriptors to the engine's tool-declaration shape.
func ConvertTools(tools []*agentloop.ToolDescriptor) []llms.Tool {
	out := make([]llms.Tool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}
	return out
}

// convertResponse maps the engine reply to a RawResponse. Argument JSON is
// decoded mechanically here; anything that fails to decode is passed on raw
// for the sanitizer to repair.
func convertResponse(resp *llms.ContentResponse) *agentloop.RawResponse {
	raw := &agentloop.RawResponse{}
	if resp == nil || len(resp.Choices) == 0 {
		return raw
	}

	choice := resp.Choices[0]
	raw.Text = choice.Content
	for _, call := range choice.ToolCalls {
		if call.FunctionCall == nil {
			continue
		}
		structured := agentloop.StructuredCall{
			ID:           call.ID,
			Name:         call.FunctionCall.Name,
			RawArguments: call.FunctionCall.Arguments,
		}
		if call.FunctionCall.Arguments != "" {
			var args map[string]any
			if err := json.Unmarshal([]byte(call.FunctionCall.Arguments), &args); err == nil {
				structured.Arguments = args
			}
		} else {
			structured.Arguments = map[string]any{}
		}
		raw.Calls = append(raw.Calls, structured)
	}
	return raw
}
