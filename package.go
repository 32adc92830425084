// Package agentloop orchestrates a reasoning engine and a set of tool-serving
// endpoints into a bounded agent loop.
//
// The loop discovers tools from MCP endpoints, submits the conversation plus
// tool schemas to the engine, defensively parses the engine's (often
// malformed) output, sanitizes tool arguments, dispatches the calls
// concurrently while preserving result order, and folds results back into the
// conversation until the engine produces a final answer or the iteration cap
// is reached.
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//	    "fmt"
//
//	    "github.com/gcastel/agentloop"
//	    "github.com/gcastel/agentloop/driver"
//	    "github.com/gcastel/agentloop/gateway"
//	    "github.com/gcastel/agentloop/registry"
//	    "github.com/tmc/langchaingo/llms/ollama"
//	)
//
//	func main() {
//	    cfg, err := agentloop.LoadConfig("agentloop.yaml")
//	    if err != nil {
//	        panic(err) // configuration errors carry a remediation hint
//	    }
//
//	    llm, _ := ollama.New(
//	        ollama.WithModel(cfg.Model.Name),
//	        ollama.WithServerURL(cfg.Model.BaseURL),
//	    )
//
//	    ctx := context.Background()
//	    reg, err := registry.Discover(ctx, registry.EndpointsFromConfig(cfg))
//	    if err != nil {
//	        panic(err)
//	    }
//	    defer reg.Close()
//
//	    loop := driver.New(cfg, gateway.New(llm, cfg), reg)
//
//	    // Step events are optional; the loop never blocks on the stream.
//	    go func() {
//	        for ev := range loop.Events() {
//	            fmt.Printf("[%s] %s\n", ev.Phase, ev.Detail)
//	        }
//	    }()
//
//	    outcome, err := loop.Run(ctx, "How many users signed up last week?")
//	    if err != nil {
//	        panic(err)
//	    }
//	    fmt.Println(outcome.Answer)
//	}
//
// # Package Layout
//
//   - agentloop (this package): shared data model — messages, tool
//     descriptors, call requests/results, the tagged error type, step events,
//     and configuration.
//   - registry: endpoint discovery over MCP, tool lookup, and invocation
//     sessions.
//   - sanitize: repair of malformed model output, tool-call parsing, and the
//     argument sanitizer with its security gates.
//   - schema: JSON Schema compilation and validation for tool input shapes.
//   - gateway: the reasoning engine client with retry, backoff, and timeout.
//   - router: order-preserving concurrent dispatch of tool-call batches.
//   - driver: the state machine tying everything together.
//
// # Error Handling
//
// Components return *agentloop.Error values tagged with a Kind from the
// taxonomy (configuration, connection, protocol, security, tool_execution,
// parse) and carrying a human remediation hint as data. Only configuration
// errors and a reasoning engine that stays unreachable after retries reach
// the caller of driver.Run as errors; blocked arguments, unknown tools and
// endpoint failures are folded into the conversation as failing tool results
// so the engine can observe them and self-correct, and hitting the iteration
// cap returns a partial Outcome rather than an error.
package agentloop
