package registry

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// TransportDialer turns an endpoint address into a connectable MCP
// transport. Tests substitute one that routes to in-process servers.
type TransportDialer func(ctx context.Context, address string) (mcpsdk.Transport, error)

const (
	stdioScheme = "stdio://"
	sseScheme   = "sse://"
)

// DialTransport is the default TransportDialer. Recognized address forms:
//
//	stdio://python server.py    subprocess over stdio
//	sse://host:8080/sse         HTTP + server-sent events
//	http+sse://host:8080        explicit SSE hint
//	http+stream://host:8080     streamable HTTP
//	http://host:8080            plain URL, treated as SSE
//	python server.py            no scheme, treated as a stdio command
func DialTransport(ctx context.Context, address string) (mcpsdk.Transport, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("endpoint address is empty")
	}

	lowered := strings.ToLower(address)
	switch {
	case strings.HasPrefix(lowered, stdioScheme):
		return stdioTransport(ctx, address[len(stdioScheme):])
	case strings.HasPrefix(lowered, sseScheme):
		return sseTransport(address[len(sseScheme):])
	}

	if base, hint, ok := splitSchemeHint(address); ok {
		switch hint {
		case "sse":
			return sseTransport(base)
		case "stream", "streamable", "http", "json":
			endpoint, err := normalizeHTTPURL(base)
			if err != nil {
				return nil, fmt.Errorf("invalid HTTP endpoint: %w", err)
			}
			return &mcpsdk.StreamableClientTransport{Endpoint: endpoint}, nil
		default:
			return nil, fmt.Errorf("unsupported transport hint %q", hint)
		}
	}

	if strings.HasPrefix(lowered, "http://") || strings.HasPrefix(lowered, "https://") {
		return sseTransport(address)
	}

	return stdioTransport(ctx, address)
}

func stdioTransport(ctx context.Context, command string) (mcpsdk.Transport, error) {
	parts := strings.Fields(strings.TrimSpace(command))
	if len(parts) == 0 {
		return nil, fmt.Errorf("stdio command is empty")
	}
	// #nosec G204 -- the command comes from the operator's endpoint config.
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	return &mcpsdk.CommandTransport{Command: cmd}, nil
}

func sseTransport(address string) (mcpsdk.Transport, error) {
	endpoint, err := normalizeHTTPURL(address)
	if err != nil {
		return nil, fmt.Errorf("invalid SSE endpoint: %w", err)
	}
	return &mcpsdk.SSEClientTransport{Endpoint: endpoint}, nil
}

// splitSchemeHint splits schemes of the form "http+sse://..." into the base
// URL and the transport hint.
func splitSchemeHint(address string) (base, hint string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(address))
	if err != nil || u.Scheme == "" {
		return "", "", false
	}
	scheme, hintPart, has := strings.Cut(strings.ToLower(u.Scheme), "+")
	if !has || (scheme != "http" && scheme != "https") {
		return "", "", false
	}
	rebuilt := *u
	rebuilt.Scheme = scheme
	return rebuilt.String(), hintPart, true
}

func normalizeHTTPURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("endpoint is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	parsed.Scheme = scheme
	return parsed.String(), nil
}
