package tt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// FileServer is an in-process MCP endpoint serving read_file and list_files
// over a fixed in-memory file set.
func FileServer(files map[string]string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "mcp-file", Version: "test"}, nil)

	server.AddTool(&mcpsdk.Tool{
		Name:        "read_file",
		Description: "Read the contents of a file",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path": {Type: "string"},
			},
			Required: []string{"path"},
		},
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return nil, err
		}
		content, ok := files[args.Path]
		if !ok {
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "file not found: " + args.Path}},
			}, nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: content}},
		}, nil
	})

	server.AddTool(&mcpsdk.Tool{
		Name:        "list_files",
		Description: "List available files",
		InputSchema: &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{}},
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		names := make([]string, 0, len(files))
		for name := range files {
			names = append(names, name)
		}
		sort.Strings(names)
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: strings.Join(names, "\n")}},
		}, nil
	})

	return server
}

// DBServer is an in-process MCP endpoint serving query_db and list_tables.
// Queries are answered from the rows map keyed by the exact query string;
// the handler records every query it receives so tests can assert what
// reached the endpoint.
type DBServer struct {
	Server *mcpsdk.Server

	mu      sync.Mutex
	rows    map[string]string
	queries []string
}

// NewDBServer creates a DBServer answering the given canned queries.
func NewDBServer(rows map[string]string) *DBServer {
	db := &DBServer{rows: rows}
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "mcp-db", Version: "test"}, nil)

	server.AddTool(&mcpsdk.Tool{
		Name:        "query_db",
		Description: "Run a read-only SQL query",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"sql": {Type: "string"},
			},
			Required: []string{"sql"},
		},
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args struct {
			SQL string `json:"sql"`
		}
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return nil, err
		}
		db.mu.Lock()
		db.queries = append(db.queries, args.SQL)
		answer, ok := db.rows[args.SQL]
		db.mu.Unlock()
		if !ok {
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "no rows for query"}},
			}, nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: answer}},
		}, nil
	})

	server.AddTool(&mcpsdk.Tool{
		Name:        "list_tables",
		Description: "List database tables",
		InputSchema: &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{}},
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "users\nnotes"}},
		}, nil
	})

	db.Server = server
	return db
}

// Queries returns every SQL string that reached the endpoint, in order.
func (db *DBServer) Queries() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]string(nil), db.queries...)
}

// EchoServer is an in-process MCP endpoint with a single echo tool, useful
// when a test only needs something callable.
func EchoServer(name string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: name, Version: "test"}, nil)
	server.AddTool(&mcpsdk.Tool{
		Name:        "echo",
		Description: "Echo the input text",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"text": {Type: "string"},
			},
			Required: []string{"text"},
		},
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return nil, err
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: name + ":" + args.Text}},
		}, nil
	})
	return server
}

// Dialer returns a transport dialer routing each endpoint address to an
// in-process MCP server over in-memory transports. Addresses with no server
// fail to connect, which tests use to simulate an unreachable endpoint.
//
// The returned cleanup closes every server session; register it with
// t.Cleanup.
func Dialer(servers map[string]*mcpsdk.Server) (
	dial func(ctx context.Context, address string) (mcpsdk.Transport, error),
	cleanup func(),
) {
	var (
		mu       sync.Mutex
		sessions []*mcpsdk.ServerSession
	)

	dial = func(ctx context.Context, address string) (mcpsdk.Transport, error) {
		server, ok := servers[address]
		if !ok {
			return nil, fmt.Errorf("no test server at %s", address)
		}
		serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()
		go func() {
			session, err := server.Connect(context.Background(), serverTransport, nil)
			if err != nil {
				return
			}
			mu.Lock()
			sessions = append(sessions, session)
			mu.Unlock()
			session.Wait()
		}()
		return clientTransport, nil
	}

	cleanup = func() {
		mu.Lock()
		defer mu.Unlock()
		for _, session := range sessions {
			_ = session.Close()
		}
	}

	return dial, cleanup
}
