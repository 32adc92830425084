// Package registry discovers tools from MCP endpoints and routes lookups
// and invocations to the owning endpoint's session.
//
// Discovery fans out one listing call per endpoint concurrently. A single
// unreachable endpoint never fails the build: it contributes zero tools and
// a warning. The descriptor set is rebuilt wholesale on Refresh; readers
// never observe a partially built registry.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gcastel/agentloop"
	"github.com/gcastel/agentloop/schema"
)

// entry pairs a discovered descriptor with its compiled input schema.
type entry struct {
	desc   *agentloop.ToolDescriptor
	schema *schema.Schema
}

// Registry holds the discovered tool set and the per-endpoint sessions used
// to invoke them. Safe for concurrent use; the tool map is read-mostly and
// swapped atomically under the lock on Refresh.
type Registry struct {
	endpoints []agentloop.Endpoint
	dial      TransportDialer
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*mcpsdk.ClientSession
	entries  map[string]*entry
	order    []string
	warnings []string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for discovery warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithDialer overrides the transport dialer. Tests use this to route
// endpoint addresses to in-process servers.
func WithDialer(dial TransportDialer) Option {
	return func(r *Registry) { r.dial = dial }
}

// New creates a Registry for the given endpoints without touching the
// network. Call Refresh (or use Discover) to populate it.
func New(endpoints []agentloop.Endpoint, opts ...Option) *Registry {
	r := &Registry{
		endpoints: endpoints,
		dial:      DialTransport,
		logger:    slog.Default(),
		sessions:  map[string]*mcpsdk.ClientSession{},
		entries:   map[string]*entry{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Discover creates a Registry and runs the initial discovery.
func Discover(ctx context.Context, endpoints []agentloop.Endpoint, opts ...Option) (*Registry, error) {
	r := New(endpoints, opts...)
	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// EndpointsFromConfig maps the config's endpoint declarations to Endpoints.
func EndpointsFromConfig(cfg *agentloop.Config) []agentloop.Endpoint {
	endpoints := make([]agentloop.Endpoint, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		endpoints = append(endpoints, agentloop.Endpoint{Name: ep.Name, Address: ep.Address})
	}
	return endpoints
}

// discovery is one endpoint's contribution to a registry build.
type discovery struct {
	endpoint agentloop.Endpoint
	session  *mcpsdk.ClientSession
	tools    []*mcpsdk.Tool
	err      error
}

// Refresh rebuilds the tool set wholesale. Endpoints are queried
// concurrently and joined before the new set replaces the old one; a failing
// endpoint contributes zero tools and a warning. Sessions from the previous
// build are closed after the swap.
func (r *Registry) Refresh(ctx context.Context) error {
	if len(r.endpoints) == 0 {
		return agentloop.NewError(agentloop.KindConfiguration, "registry", "no endpoints to discover").
			WithHint("configure at least one endpoint before starting the loop")
	}

	results := make([]discovery, len(r.endpoints))
	var wg sync.WaitGroup
	for i, ep := range r.endpoints {
		wg.Add(1)
		go func(i int, ep agentloop.Endpoint) {
			defer wg.Done()
			results[i] = r.discoverEndpoint(ctx, ep)
		}(i, ep)
	}
	wg.Wait()

	entries := map[string]*entry{}
	sessions := map[string]*mcpsdk.ClientSession{}
	var order []string
	var warnings []string

	for _, res := range results {
		if res.err != nil {
			warning := fmt.Sprintf("endpoint %q unavailable: %v", res.endpoint.Name, res.err)
			warnings = append(warnings, warning)
			r.logger.Warn("discovery failed for endpoint, continuing without it",
				"endpoint", res.endpoint.Name,
				"address", res.endpoint.Address,
				"error", res.err,
			)
			continue
		}
		sessions[res.endpoint.Name] = res.session
		for _, tool := range res.tools {
			if existing, ok := entries[tool.Name]; ok {
				// First registration wins; later endpoints offering the
				// same name are recorded and skipped.
				warning := fmt.Sprintf("tool %q from endpoint %q shadowed by endpoint %q",
					tool.Name, res.endpoint.Name, existing.desc.Endpoint)
				warnings = append(warnings, warning)
				r.logger.Warn("duplicate tool name, keeping first registration",
					"tool", tool.Name,
					"kept", existing.desc.Endpoint,
					"skipped", res.endpoint.Name,
				)
				continue
			}
			e, err := newEntry(tool, res.endpoint.Name)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("tool %q from endpoint %q has an unusable schema: %v",
					tool.Name, res.endpoint.Name, err))
				continue
			}
			entries[tool.Name] = e
			order = append(order, tool.Name)
		}
	}

	r.mu.Lock()
	old := r.sessions
	r.sessions = sessions
	r.entries = entries
	r.order = order
	r.warnings = warnings
	r.mu.Unlock()

	for _, session := range old {
		_ = session.Close()
	}

	r.logger.Info("discovery complete",
		"endpoints", len(r.endpoints),
		"tools", len(order),
		"warnings", len(warnings),
	)
	return nil
}

// discoverEndpoint connects one endpoint and lists its tools.
func (r *Registry) discoverEndpoint(ctx context.Context, ep agentloop.Endpoint) discovery {
	res := discovery{endpoint: ep}

	transport, err := r.dial(ctx, ep.Address)
	if err != nil {
		res.err = err
		return res
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "agentloop", Version: "dev"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		res.err = err
		return res
	}

	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			res.err = err
			return res
		}
		res.tools = append(res.tools, tool)
	}
	res.session = session
	return res
}

// newEntry converts an MCP tool record into a descriptor with a compiled
// input schema.
func newEntry(tool *mcpsdk.Tool, endpointName string) (*entry, error) {
	var (
		rawSchema map[string]any
		compiled  *schema.Schema
	)
	if tool.InputSchema != nil {
		data, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &rawSchema); err != nil {
			return nil, err
		}
		compiled, err = schema.CompileJSON(data)
		if err != nil {
			return nil, err
		}
	}

	return &entry{
		desc: &agentloop.ToolDescriptor{
			Name:           tool.Name,
			Description:    tool.Description,
			InputSchema:    rawSchema,
			Endpoint:       endpointName,
			AllowsMutation: allowsMutation(tool.Annotations),
		},
		schema: compiled,
	}, nil
}

// allowsMutation reads the MCP annotations. Mutation is allowed only when
// the endpoint explicitly declares the tool destructive and not read-only.
func allowsMutation(ann *mcpsdk.ToolAnnotations) bool {
	if ann == nil || ann.ReadOnlyHint {
		return false
	}
	return ann.DestructiveHint != nil && *ann.DestructiveHint
}

// Lookup returns the descriptor owning the given tool name, or a
// tool-execution error listing what is available.
func (r *Registry) Lookup(name string) (*agentloop.ToolDescriptor, *agentloop.Error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		available := strings.Join(r.order, ", ")
		if available == "" {
			available = "none"
		}
		return nil, agentloop.NewError(agentloop.KindToolExecution, "registry",
			"tool %q is not in the registry", name).
			WithHint("available tools: %s", available)
	}
	return e.desc, nil
}

// Schema returns the compiled input schema for a tool, or nil when the tool
// is unknown or declared no schema.
func (r *Registry) Schema(name string) *schema.Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[name]; ok {
		return e.schema
	}
	return nil
}

// Tools returns the descriptors in discovery order.
func (r *Registry) Tools() []*agentloop.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]*agentloop.ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.entries[name].desc)
	}
	return tools
}

// Warnings returns the warnings recorded during the last Refresh.
func (r *Registry) Warnings() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.warnings...)
}

// Invoke dispatches one sanitized call to its owning endpoint and returns
// the textual result content. Failures come back as tagged errors: unknown
// tools and endpoint-reported failures as tool-execution errors, transport
// problems as connection errors.
func (r *Registry) Invoke(ctx context.Context, req *agentloop.ToolCallRequest) (string, *agentloop.Error) {
	desc, lookupErr := r.Lookup(req.Name)
	if lookupErr != nil {
		return "", lookupErr
	}

	r.mu.RLock()
	session := r.sessions[desc.Endpoint]
	r.mu.RUnlock()
	if session == nil {
		return "", agentloop.NewError(agentloop.KindConnection, "registry",
			"endpoint %q has no live session", desc.Endpoint).
			WithHint("the endpoint failed discovery; check that it is running and refresh the registry")
	}

	args := req.Args
	if args == nil {
		args = req.RawArgs
	}
	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      req.Name,
		Arguments: args,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", agentloop.NewError(agentloop.KindConnection, "registry",
				"call to tool %q timed out", req.Name).
				WithHint("raise call_timeout or check the endpoint's responsiveness").
				WithCause(err)
		}
		return "", agentloop.NewError(agentloop.KindConnection, "registry",
			"call to tool %q on endpoint %q failed", req.Name, desc.Endpoint).
			WithHint("check that the endpoint process is running and reachable").
			WithCause(err)
	}

	content := flattenContent(result.Content)
	if result.IsError {
		return "", agentloop.NewError(agentloop.KindToolExecution, "registry",
			"tool %q reported a failure: %s", req.Name, content).
			WithHint("the endpoint rejected the call; adjust the arguments and try again")
	}
	return content, nil
}

// flattenContent joins a result's content blocks into the text form the
// conversation carries. Non-text blocks are serialized as JSON.
func flattenContent(blocks []mcpsdk.Content) string {
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		if text, ok := block.(*mcpsdk.TextContent); ok {
			parts = append(parts, text.Text)
			continue
		}
		if data, err := json.Marshal(block); err == nil {
			parts = append(parts, string(data))
		}
	}
	return strings.Join(parts, "\n")
}

// Close shuts down every endpoint session.
func (r *Registry) Close() error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = map[string]*mcpsdk.ClientSession{}
	r.mu.Unlock()

	var errs []error
	names := make([]string, 0, len(sessions))
	for name := range sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := sessions[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
