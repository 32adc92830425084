// Package driver runs the agent loop: a bounded cycle of reasoning,
// deciding, executing and synthesizing that ends in a final answer or an
// abort at the iteration cap.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gcastel/agentloop"
	"github.com/gcastel/agentloop/gateway"
	"github.com/gcastel/agentloop/registry"
	"github.com/gcastel/agentloop/router"
	"github.com/gcastel/agentloop/sanitize"
)

// DefaultSystemPrompt seeds the conversation when the config does not
// provide one. The query guidance mirrors the sanitizer's repairs so the
// engine is steered toward output that needs none.
const DefaultSystemPrompt = `You are a careful assistant with access to external tools.
Use a tool when you need data you do not have; answer directly otherwise.
When querying a database, write read-only SQL and use ILIKE with a quoted
pattern for case-insensitive search, e.g. title ILIKE '%shopping%'.
Refer to files by their path relative to the server root.`

// Outcome is the terminal result of one loop run.
type Outcome struct {
	// Answer is the final answer, or the best partial answer on abort.
	Answer string

	// Phase is the terminal phase: PhaseFinalAnswer or PhaseAborted.
	Phase agentloop.Phase

	// Turns is how many reasoning turns the run used.
	Turns int

	// Partial is true when the loop aborted before a final answer.
	Partial bool

	// Warning explains an abort and how to avoid it. Empty on success.
	Warning string
}

// Loop composes the gateway, registry, sanitizer and router into the
// orchestrator state machine. One Loop may serve several sequential runs;
// each run owns its own conversation.
type Loop struct {
	cfg    *agentloop.Config
	gw     *gateway.Gateway
	reg    *registry.Registry
	router *router.Router
	stream *agentloop.StepStream
	logger *slog.Logger
}

// New creates a Loop. The registry must already be discovered (or be
// refreshed by the caller before Run).
func New(cfg *agentloop.Config, gw *gateway.Gateway, reg *registry.Registry) *Loop {
	l := &Loop{
		cfg:    cfg,
		gw:     gw,
		reg:    reg,
		stream: agentloop.NewStepStream(),
		logger: slog.Default(),
	}
	// A missing config is reported by Run's validation, not a panic here.
	if cfg != nil {
		l.router = router.New(reg, cfg)
	}
	return l
}

// WithLogger sets the logger for state transitions.
// Returns the loop for chaining.
func (l *Loop) WithLogger(logger *slog.Logger) *Loop {
	l.logger = logger
	if l.router != nil {
		l.router = l.router.WithLogger(logger)
	}
	return l
}

// Events returns the step-event stream. Reading it is optional; the loop
// never blocks on a slow or absent consumer.
func (l *Loop) Events() <-chan agentloop.StepEvent {
	return l.stream.Events()
}

// Close ends the event stream. Call after the last Run.
func (l *Loop) Close() {
	l.stream.Close()
}

// Run drives one question to a terminal phase.
//
// Only two failure classes surface as errors: unusable configuration and a
// reasoning engine that stays unreachable after retries. Everything else —
// blocked arguments, unknown tools, endpoint failures — is folded into the
// conversation as failing tool results for the engine to observe. Reaching
// the iteration cap is not an error: the Outcome comes back with
// PhaseAborted, a partial answer and a warning.
func (l *Loop) Run(ctx context.Context, question string) (*Outcome, error) {
	l.emit(agentloop.PhaseInit, 0, "starting run")
	if err := l.validate(); err != nil {
		return nil, err
	}

	tools := l.reg.Tools()
	detail := fmt.Sprintf("%d tools available", len(tools))
	if warnings := l.reg.Warnings(); len(warnings) > 0 {
		detail += fmt.Sprintf(" (%d discovery warnings)", len(warnings))
	}
	l.emit(agentloop.PhaseDiscovering, 0, detail)

	conv := agentloop.NewConversation(l.systemPrompt(), question)

	for turn := 1; turn <= l.cfg.MaxIterations; turn++ {
		l.emit(agentloop.PhaseReasoning, turn, "asking the reasoning engine")
		raw, err := l.gw.Request(ctx, conv, tools)
		if err != nil {
			l.emit(agentloop.PhaseAborted, turn, "reasoning engine unreachable")
			return nil, err
		}

		calls := sanitize.ParseToolCalls(raw)
		if len(calls) == 0 {
			l.emit(agentloop.PhaseDeciding, turn, "final answer")
			conv.AppendAssistant(raw.Text, nil)
			l.emit(agentloop.PhaseFinalAnswer, turn, "run complete")
			return &Outcome{
				Answer: raw.Text,
				Phase:  agentloop.PhaseFinalAnswer,
				Turns:  turn,
			}, nil
		}

		l.emit(agentloop.PhaseDeciding, turn, fmt.Sprintf("%d tool calls requested", len(calls)))
		conv.AppendAssistant(raw.Text, calls)

		l.emit(agentloop.PhaseExecuting, turn, callNames(calls))
		results := l.executeBatch(ctx, calls)

		l.emit(agentloop.PhaseSynthesizing, turn, "merging tool results")
		if err := conv.MergeResults(results); err != nil {
			return nil, err
		}
		conv.BoundHistory(l.cfg.HistoryBound)
	}

	warning := fmt.Sprintf(
		"iteration cap of %d reached before a final answer; raise max_iterations or simplify the question",
		l.cfg.MaxIterations)
	l.logger.Warn("loop aborted at iteration cap", "max_iterations", l.cfg.MaxIterations)
	l.emit(agentloop.PhaseAborted, l.cfg.MaxIterations, warning)

	return &Outcome{
		Answer:  partialAnswer(conv),
		Phase:   agentloop.PhaseAborted,
		Turns:   l.cfg.MaxIterations,
		Partial: true,
		Warning: warning,
	}, nil
}

func (l *Loop) validate() error {
	if l.cfg == nil {
		return agentloop.NewError(agentloop.KindConfiguration, "driver", "no configuration").
			WithHint("construct the loop with a validated Config")
	}
	if err := l.cfg.Validate(); err != nil {
		return err
	}
	if l.gw == nil {
		return agentloop.NewError(agentloop.KindConfiguration, "driver", "no reasoning gateway").
			WithHint("construct the loop with a gateway.Gateway")
	}
	if l.reg == nil {
		return agentloop.NewError(agentloop.KindConfiguration, "driver", "no tool registry").
			WithHint("discover a registry.Registry before constructing the loop")
	}
	return nil
}

// executeBatch sanitizes each call and dispatches the survivors. A call
// rejected by the sanitizer becomes a failing result in place; its siblings
// still run. Unknown tools pass through to the router, which reports them
// the same way.
func (l *Loop) executeBatch(ctx context.Context, calls []*agentloop.ToolCallRequest) []*agentloop.ToolCallResult {
	results := make([]*agentloop.ToolCallResult, len(calls))

	var dispatch []*agentloop.ToolCallRequest
	var positions []int
	for i, call := range calls {
		desc, lookupErr := l.reg.Lookup(call.Name)
		if lookupErr != nil {
			dispatch = append(dispatch, call)
			positions = append(positions, i)
			continue
		}
		args, err := sanitize.Arguments(desc, l.reg.Schema(call.Name), call.RawArgs)
		if err != nil {
			l.logger.Warn("tool call rejected by sanitizer",
				"tool", call.Name,
				"kind", err.Kind,
				"error", err,
			)
			results[i] = agentloop.FailedCall(call, err)
			continue
		}
		call.Args = args
		dispatch = append(dispatch, call)
		positions = append(positions, i)
	}

	routed := l.router.Execute(ctx, dispatch)
	for j, i := range positions {
		results[i] = routed[j]
	}
	return results
}

func (l *Loop) systemPrompt() string {
	if l.cfg.SystemPrompt != "" {
		return l.cfg.SystemPrompt
	}
	return DefaultSystemPrompt
}

func (l *Loop) emit(phase agentloop.Phase, turn int, detail string) {
	l.logger.Debug("phase transition", "phase", phase, "turn", turn, "detail", detail)
	l.stream.Send(agentloop.StepEvent{Phase: phase, Turn: turn, Detail: detail})
}

func callNames(calls []*agentloop.ToolCallRequest) string {
	names := make([]string, 0, len(calls))
	for _, call := range calls {
		names = append(names, call.Name)
	}
	return "calling " + strings.Join(names, ", ")
}

// partialAnswer assembles the abort payload from the conversation: the last
// assistant text when there is one, otherwise the most recent tool results,
// so the caller is never left with nothing.
func partialAnswer(conv *agentloop.Conversation) string {
	messages := conv.Messages()

	var lastResults []string
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		switch msg.Role {
		case agentloop.RoleAssistant:
			if msg.Text != "" {
				return msg.Text
			}
		case agentloop.RoleTool:
			lastResults = append([]string{msg.Text}, lastResults...)
			continue
		}
		if len(lastResults) > 0 {
			break
		}
	}

	if len(lastResults) > 0 {
		return "No final answer was reached. Last tool results:\n" + strings.Join(lastResults, "\n")
	}
	return "No final answer was reached before the iteration cap."
}
