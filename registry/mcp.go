package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/agentlane/relay"
)

const (
	mcpClientName    = "relay-registry"
	mcpClientVersion = "1.0.0"

	// defaultConnectTimeout bounds transport start and protocol
	// initialization per server.
	defaultConnectTimeout = 30 * time.Second
)

// MCPTransport selects how to reach an MCP server.
type MCPTransport string

const (
	MCPTransportHTTP  MCPTransport = "http"
	MCPTransportSSE   MCPTransport = "sse"
	MCPTransportStdio MCPTransport = "stdio"
)

// MCPServerConfig describes one MCP server to expose as a routing backend.
type MCPServerConfig struct {
	// Backend name. E.g., "search-tools"
	Name string `yaml:"name"`

	// Backend category tag used by capability scoring. E.g., "search"
	Type string `yaml:"type"`

	// Transport to the server: http, sse or stdio.
	Transport MCPTransport `yaml:"transport"`

	// URL for http/sse transports. E.g., "http://localhost:9200/mcp"
	URL string `yaml:"url"`

	// Headers sent with http/sse transports.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Command and arguments for the stdio transport.
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
}

// Validate checks a server configuration before dialing.
func (c *MCPServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("mcp server requires a name")
	}
	switch c.Transport {
	case MCPTransportHTTP, MCPTransportSSE:
		if c.URL == "" {
			return fmt.Errorf("mcp server %s: %s transport requires a url", c.Name, c.Transport)
		}
	case MCPTransportStdio:
		if c.Command == "" {
			return fmt.Errorf("mcp server %s: stdio transport requires a command", c.Name)
		}
	default:
		return fmt.Errorf("mcp server %s: unsupported transport %q", c.Name, c.Transport)
	}
	return nil
}

func (c *MCPServerConfig) endpoint() string {
	if c.Transport == MCPTransportStdio {
		return c.Command
	}
	return c.URL
}

type mcpConnection struct {
	config MCPServerConfig
	conn   *client.Client
}

// MCP exposes connected MCP servers as routing backends: each server becomes
// one BackendDescriptor whose capabilities are the names of the tools it
// lists.
type MCP struct {
	mutex          sync.Mutex
	connections    []*mcpConnection
	connectTimeout time.Duration
	logger         *zap.SugaredLogger
}

// NewMCP creates a registry for the given servers. Call Connect before taking
// snapshots.
func NewMCP(servers []MCPServerConfig, logger *zap.SugaredLogger) (*MCP, error) {
	registry := &MCP{
		connectTimeout: defaultConnectTimeout,
		logger:         logger,
	}
	for _, server := range servers {
		config := server
		if err := config.Validate(); err != nil {
			return nil, err
		}
		registry.connections = append(registry.connections, &mcpConnection{config: config})
	}
	return registry, nil
}

// Connect dials and initializes every configured server. Servers that cannot
// be reached are logged and left out of snapshots; Connect only fails when no
// server at all is usable.
func (r *MCP) Connect(ctx context.Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	connected := 0
	for _, connection := range r.connections {
		if err := r.connectLocked(ctx, connection); err != nil {
			r.logger.Warnw("Failed to connect MCP server",
				"server", connection.config.Name,
				"error", err)
			continue
		}
		connected++
	}
	if len(r.connections) > 0 && connected == 0 {
		return fmt.Errorf("no MCP server reachable")
	}
	return nil
}

func (r *MCP) connectLocked(ctx context.Context, connection *mcpConnection) error {
	mcpClient, err := newMCPClient(connection.config)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	defer cancel()

	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}

	initRequest := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    mcpClientName,
				Version: mcpClientVersion,
			},
		},
	}
	if _, err := mcpClient.Initialize(ctx, initRequest); err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	connection.conn = mcpClient
	r.logger.Infow("Connected MCP server", "server", connection.config.Name)
	return nil
}

func newMCPClient(config MCPServerConfig) (*client.Client, error) {
	switch config.Transport {
	case MCPTransportHTTP:
		httpTransport, err := transport.NewStreamableHTTP(
			config.URL,
			transport.WithHTTPHeaders(config.Headers),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP transport: %w", err)
		}
		return client.NewClient(httpTransport), nil
	case MCPTransportSSE:
		sseTransport, err := transport.NewSSE(
			config.URL,
			transport.WithHeaders(config.Headers),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create SSE transport: %w", err)
		}
		return client.NewClient(sseTransport), nil
	case MCPTransportStdio:
		return client.NewClient(transport.NewStdio(config.Command, nil, config.Args...)), nil
	}
	return nil, fmt.Errorf("unsupported transport %q", config.Transport)
}

// Snapshot lists tools from every connected server and returns one
// descriptor per server. Unreachable servers are skipped so a flapping
// backend degrades the candidate set instead of failing selection outright.
func (r *MCP) Snapshot(ctx context.Context) ([]*relay.BackendDescriptor, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	backends := make([]*relay.BackendDescriptor, 0, len(r.connections))
	for _, connection := range r.connections {
		if connection.conn == nil {
			continue
		}

		listRequest := mcp.ListToolsRequest{
			PaginatedRequest: mcp.PaginatedRequest{
				Request: mcp.Request{
					Method: string(mcp.MethodToolsList),
				},
			},
		}
		response, err := connection.conn.ListTools(ctx, listRequest)
		if err != nil {
			r.logger.Warnw("Failed to list MCP tools",
				"server", connection.config.Name,
				"error", err)
			continue
		}

		backends = append(backends, descriptorFromTools(connection.config, response.Tools))
	}
	return backends, nil
}

// descriptorFromTools converts a server's tool list into a backend
// descriptor.
func descriptorFromTools(config MCPServerConfig, tools []mcp.Tool) *relay.BackendDescriptor {
	capabilities := make([]string, 0, len(tools))
	for _, tool := range tools {
		capabilities = append(capabilities, tool.Name)
	}
	return &relay.BackendDescriptor{
		Name:         config.Name,
		Type:         config.Type,
		Endpoint:     config.endpoint(),
		Capabilities: capabilities,
	}
}

// Close shuts down every connection.
func (r *MCP) Close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, connection := range r.connections {
		if connection.conn == nil {
			continue
		}
		if err := connection.conn.Close(); err != nil {
			r.logger.Warnw("Failed to close MCP connection",
				"server", connection.config.Name,
				"error", err)
		}
		connection.conn = nil
	}
}
