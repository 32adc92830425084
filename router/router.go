// Package router dispatches a batch of sanitized tool calls to their
// endpoints and returns results in request order.
//
// Calls targeting different endpoints run concurrently; calls sharing an
// endpoint are serialized to keep one session's request/response pairing
// simple. Results land in a slice indexed by request position, so the output
// order never depends on which endpoint answers first. The router never
// fails for a per-call problem: every request yields exactly one result,
// success or failure.
package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gcastel/agentloop"
	"github.com/gcastel/agentloop/registry"
	"github.com/gcastel/agentloop/sanitize"
)

// Router executes tool-call batches against a registry.
type Router struct {
	reg      *registry.Registry
	timeout  time.Duration
	maxBytes int
	logger   *slog.Logger
}

// New creates a Router using the config's per-call timeout and output bound.
func New(reg *registry.Registry, cfg *agentloop.Config) *Router {
	return &Router{
		reg:      reg,
		timeout:  cfg.CallTimeout,
		maxBytes: cfg.MaxOutputBytes,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for per-call diagnostics.
// Returns the router for chaining.
func (r *Router) WithLogger(logger *slog.Logger) *Router {
	r.logger = logger
	return r
}

// Execute runs every request and returns one result per request, in request
// order. A request whose tool is unknown yields a failing result without
// aborting the batch, and no failing call prevents its siblings from
// running.
func (r *Router) Execute(ctx context.Context, requests []*agentloop.ToolCallRequest) []*agentloop.ToolCallResult {
	results := make([]*agentloop.ToolCallResult, len(requests))

	// Group request indices by owning endpoint so each endpoint's calls
	// run in order on one goroutine while endpoints proceed in parallel.
	groups := map[string][]int{}
	var groupOrder []string
	for i, req := range requests {
		desc, err := r.reg.Lookup(req.Name)
		if err != nil {
			results[i] = agentloop.FailedCall(req, err)
			continue
		}
		if _, seen := groups[desc.Endpoint]; !seen {
			groupOrder = append(groupOrder, desc.Endpoint)
		}
		groups[desc.Endpoint] = append(groups[desc.Endpoint], i)
	}

	var wg sync.WaitGroup
	for _, endpoint := range groupOrder {
		wg.Add(1)
		go func(indices []int) {
			defer wg.Done()
			for _, i := range indices {
				results[i] = r.execute(ctx, requests[i])
			}
		}(groups[endpoint])
	}
	wg.Wait()

	return results
}

// execute runs one call with its own timeout and bounds the output.
func (r *Router) execute(ctx context.Context, req *agentloop.ToolCallRequest) *agentloop.ToolCallResult {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	content, err := r.reg.Invoke(callCtx, req)
	duration := time.Since(start)

	if err != nil {
		r.logger.Warn("tool call failed",
			"tool", req.Name,
			"duration", duration,
			"error", err,
		)
		return agentloop.FailedCall(req, err)
	}

	bounded, truncated := sanitize.Output(content, r.maxBytes)
	r.logger.Debug("tool call succeeded",
		"tool", req.Name,
		"duration", duration,
		"bytes", len(content),
		"truncated", truncated,
	)
	return &agentloop.ToolCallResult{
		ID:        req.ID,
		Name:      req.Name,
		Content:   bounded,
		Truncated: truncated,
	}
}
