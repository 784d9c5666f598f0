package mcp

import (
	"context"
	"io"
	"log/slog"
	"sort"

	"github.com/relicta-tech/notebase/internal/container"
)

// Server implements the MCP server for notebase.
type Server struct {
	version  string
	logger   *slog.Logger
	app      *container.Container
	readOnly bool

	tools     map[string]toolEntry
	resources map[string]resourceEntry
	prompts   map[string]promptEntry
}

// ToolHandler handles a tool call.
type ToolHandler func(ctx context.Context, args map[string]any) (*CallToolResult, error)

// ResourceHandler handles a resource read.
type ResourceHandler func(ctx context.Context, uri string) (*ReadResourceResult, error)

// PromptHandler handles a prompt request.
type PromptHandler func(ctx context.Context, args map[string]string) (*GetPromptResult, error)

type toolEntry struct {
	tool    Tool
	handler ToolHandler
	// write tools are hidden on a read-only server.
	write bool
}

type resourceEntry struct {
	resource Resource
	handler  ResourceHandler
}

type promptEntry struct {
	prompt  Prompt
	handler PromptHandler
}

// ServerOption configures the MCP server.
type ServerOption func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithReadOnly hides the tools that run commands.
func WithReadOnly(readOnly bool) ServerOption {
	return func(s *Server) {
		s.readOnly = readOnly
	}
}

// NewServer creates an MCP server over an initialized container.
func NewServer(version string, app *container.Container, opts ...ServerOption) *Server {
	s := &Server{
		version:   version,
		logger:    slog.Default(),
		app:       app,
		tools:     make(map[string]toolEntry),
		resources: make(map[string]resourceEntry),
		prompts:   make(map[string]promptEntry),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// Serve runs the server over newline-delimited JSON until reader is
// exhausted or ctx is done.
func (s *Server) Serve(ctx context.Context, reader io.Reader, writer io.Writer) error {
	s.logger.Info("MCP server started", "version", s.version, "read_only", s.readOnly)
	return serveLines(ctx, reader, writer, s.HandleRequest)
}

// HandleRequest answers one request. It returns nil for notifications.
func (s *Server) HandleRequest(ctx context.Context, req *Request) *Response {
	s.logger.Debug("handling request", "method", req.Method, "id", req.ID)

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "initialized", "notifications/initialized":
		// Notification, no response needed
		return nil
	case "tools/list":
		return s.handleListTools(req)
	case "tools/call":
		return s.handleCallTool(ctx, req)
	case "resources/list":
		return s.handleListResources(req)
	case "resources/read":
		return s.handleReadResource(ctx, req)
	case "prompts/list":
		return s.handleListPrompts(req)
	case "prompts/get":
		return s.handleGetPrompt(ctx, req)
	case "ping":
		return reply(req.ID, map[string]any{})
	default:
		return replyError(req.ID, ErrCodeMethodNotFound, "Method not found", req.Method)
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	var params InitializeParams
	if errResp := decodeParams(req, &params); errResp != nil {
		return errResp
	}
	s.logger.Debug("client connected", "client", params.ClientInfo.Name, "protocol", params.ProtocolVersion)

	instructions := `notebase keeps notes in a notebook tree and todos in a category tree.

Read with notebase.tree, notebase.notes.list, notebase.note.get,
notebase.todos.list and notebase.history. Resources expose both trees and
the projection status.`
	if !s.readOnly {
		instructions += `

Write with notebase.category.create, notebase.note.create,
notebase.todo.create and notebase.todo.toggle. Every write is validated
against the tree: sibling names are unique and a category can never move
under itself.`
	}

	result := InitializeResult{
		ProtocolVersion: MCPVersion,
		Capabilities: map[string]capability{
			"tools":     {},
			"resources": {},
			"prompts":   {},
		},
		ServerInfo: Implementation{
			Name:    "notebase",
			Version: s.version,
		},
		Instructions: instructions,
	}

	return reply(req.ID, result)
}

func (s *Server) handleListTools(req *Request) *Response {
	tools := make([]Tool, 0, len(s.tools))
	for _, e := range s.tools {
		if e.write && s.readOnly {
			continue
		}
		tools = append(tools, e.tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	return reply(req.ID, ListToolsResult{Tools: tools})
}

func (s *Server) handleCallTool(ctx context.Context, req *Request) *Response {
	var params CallToolParams
	if errResp := decodeParams(req, &params); errResp != nil {
		return errResp
	}

	entry, ok := s.tools[params.Name]
	if !ok || (entry.write && s.readOnly) {
		return replyError(req.ID, ErrCodeMethodNotFound, "Tool not found", params.Name)
	}
	if params.Arguments == nil {
		params.Arguments = map[string]any{}
	}

	result, err := entry.handler(ctx, params.Arguments)
	if err != nil {
		return replyError(req.ID, ErrCodeInternalError, "Tool execution failed", err.Error())
	}

	return reply(req.ID, result)
}

func (s *Server) handleListResources(req *Request) *Response {
	resources := make([]Resource, 0, len(s.resources))
	for _, e := range s.resources {
		resources = append(resources, e.resource)
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].URI < resources[j].URI })

	return reply(req.ID, ListResourcesResult{Resources: resources})
}

func (s *Server) handleReadResource(ctx context.Context, req *Request) *Response {
	var params ReadResourceParams
	if errResp := decodeParams(req, &params); errResp != nil {
		return errResp
	}

	entry, ok := s.resources[params.URI]
	if !ok {
		return replyError(req.ID, ErrCodeMethodNotFound, "Resource not found", params.URI)
	}

	// The query service caches reads, so resources are not cached here.
	result, err := entry.handler(ctx, params.URI)
	if err != nil {
		return replyError(req.ID, ErrCodeInternalError, "Resource read failed", err.Error())
	}

	return reply(req.ID, result)
}

func (s *Server) handleListPrompts(req *Request) *Response {
	prompts := make([]Prompt, 0, len(s.prompts))
	for _, e := range s.prompts {
		prompts = append(prompts, e.prompt)
	}
	sort.Slice(prompts, func(i, j int) bool { return prompts[i].Name < prompts[j].Name })

	return reply(req.ID, ListPromptsResult{Prompts: prompts})
}

func (s *Server) handleGetPrompt(ctx context.Context, req *Request) *Response {
	var params GetPromptParams
	if errResp := decodeParams(req, &params); errResp != nil {
		return errResp
	}

	entry, ok := s.prompts[params.Name]
	if !ok {
		return replyError(req.ID, ErrCodeMethodNotFound, "Prompt not found", params.Name)
	}

	result, err := entry.handler(ctx, params.Arguments)
	if err != nil {
		return replyError(req.ID, ErrCodeInternalError, "Prompt generation failed", err.Error())
	}

	return reply(req.ID, result)
}

func (s *Server) addTool(tool Tool, write bool, handler ToolHandler) {
	if tool.InputSchema.Type == "" {
		tool.InputSchema.Type = "object"
	}
	s.tools[tool.Name] = toolEntry{tool: tool, handler: handler, write: write}
}

func (s *Server) addResource(resource Resource, handler ResourceHandler) {
	s.resources[resource.URI] = resourceEntry{resource: resource, handler: handler}
}

func (s *Server) addPrompt(prompt Prompt, handler PromptHandler) {
	s.prompts[prompt.Name] = promptEntry{prompt: prompt, handler: handler}
}
