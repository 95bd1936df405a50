package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/atomic"

	"github.com/hopkins385/mcp-google-vertex/internal/generation"
	"github.com/hopkins385/mcp-google-vertex/internal/infra"
	"github.com/hopkins385/mcp-google-vertex/internal/ledger"
)

const (
	jsonRPCVersion  = "2.0"
	protocolVersion = "2024-11-05"

	defaultServerName = "mcp-google-vertex"
)

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Generator produces finished artifacts for a prompt. It is implemented by
// generation.Service.
type Generator interface {
	GenerateImages(ctx context.Context, prompt string, opts generation.ImageOptions) ([]generation.Artifact, error)
	GenerateVideos(ctx context.Context, prompt string, opts generation.VideoOptions) ([]generation.Artifact, error)
}

// ArtifactWriter persists artifact bytes under a storage key. Implemented by
// storage.FileStore.
type ArtifactWriter interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// ServerOptions bundles the collaborators the server needs.
type ServerOptions struct {
	Name       string
	Version    string
	ImageModel string
	VideoModel string
	Generator  Generator
	Store      ArtifactWriter
	Ledger     ledger.Recorder
	Logger     infra.Logger

	// RateLimitPerMinute caps tool calls per client IP on the HTTP
	// transport. Zero disables the limit; stdio is never limited.
	RateLimitPerMinute int
}

// Server speaks the MCP tool protocol over JSON-RPC 2.0. The same dispatch
// serves both the stdio and the HTTP transport.
type Server struct {
	name       string
	version    string
	imageModel string
	videoModel string

	generator Generator
	store     ArtifactWriter
	ledger    ledger.Recorder
	logger    infra.Logger

	rateLimitPerMinute int

	tools map[string]toolDefinition

	calls    atomic.Int64
	failures atomic.Int64
}

// NewServer wires the tool registry around the provided generator.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Generator == nil {
		return nil, errors.New("mcp: generator is required")
	}

	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = defaultServerName
	}
	version := strings.TrimSpace(opts.Version)
	if version == "" {
		version = "dev"
	}
	rec := opts.Ledger
	if rec == nil {
		rec = ledger.Noop{}
	}

	s := &Server{
		name:               name,
		version:            version,
		imageModel:         opts.ImageModel,
		videoModel:         opts.VideoModel,
		generator:          opts.Generator,
		store:              opts.Store,
		ledger:             rec,
		logger:             opts.Logger,
		rateLimitPerMinute: opts.RateLimitPerMinute,
	}
	s.tools = s.buildToolRegistry()
	return s, nil
}

// Stats reports how many tool calls the server handled and how many of those
// returned an error result.
func (s *Server) Stats() (calls, failures int64) {
	return s.calls.Load(), s.failures.Load()
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    serverCapabilities `json:"capabilities"`
	ServerInfo      serverInfo         `json:"serverInfo"`
}

type serverCapabilities struct {
	Tools struct {
		ListChanged bool `json:"listChanged"`
	} `json:"tools"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Handle processes a single JSON-RPC message and returns the marshaled
// response. Notifications yield a nil response.
func (s *Server) Handle(ctx context.Context, raw []byte) []byte {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return marshalResponse(errorResponse(nil, codeParseError, "parse error"))
	}
	if req.JSONRPC != jsonRPCVersion {
		return marshalResponse(errorResponse(req.ID, codeInvalidRequest, "jsonrpc must be \"2.0\""))
	}

	notification := len(req.ID) == 0
	if strings.HasPrefix(req.Method, "notifications/") {
		return nil
	}

	var (
		result interface{}
		rpcErr *rpcError
	)
	switch req.Method {
	case "initialize":
		result = initializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      serverInfo{Name: s.name, Version: s.version},
		}
	case "ping":
		result = struct{}{}
	case "tools/list":
		result = s.toolsListResult()
	case "tools/call":
		result, rpcErr = s.dispatchToolCall(ctx, req.Params)
	default:
		rpcErr = &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}

	if notification {
		return nil
	}
	if rpcErr != nil {
		return marshalResponse(rpcResponse{JSONRPC: jsonRPCVersion, ID: normalizeID(req.ID), Error: rpcErr})
	}
	return marshalResponse(rpcResponse{JSONRPC: jsonRPCVersion, ID: normalizeID(req.ID), Result: result})
}

func (s *Server) toolsListResult() map[string]interface{} {
	tools := make([]toolDefinition, 0, len(s.tools))
	for _, name := range toolOrder {
		if tool, ok := s.tools[name]; ok {
			tools = append(tools, tool)
		}
	}
	return map[string]interface{}{"tools": tools}
}

func (s *Server) dispatchToolCall(ctx context.Context, rawParams json.RawMessage) (interface{}, *rpcError) {
	params, err := parseToolsCallParams(rawParams)
	if err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}

	s.calls.Inc()

	tool, ok := s.tools[params.Name]
	if !ok {
		s.failures.Inc()
		return newToolErrorResult(toolExecutionError{
			Code:    "METHOD_NOT_FOUND",
			Message: fmt.Sprintf("unknown tool: %s", params.Name),
		}), nil
	}

	result, toolErr := tool.handler(ctx, params.Arguments)
	if toolErr != nil {
		s.failures.Inc()
		s.logger.Warn().
			Str("tool", params.Name).
			Str("code", toolErr.Code).
			Msg(toolErr.Message)
		return newToolErrorResult(*toolErr), nil
	}
	return result, nil
}

func parseToolsCallParams(raw json.RawMessage) (toolsCallParams, error) {
	if len(raw) == 0 {
		return toolsCallParams{}, errors.New("params is required")
	}
	var params toolsCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return toolsCallParams{}, errors.New("invalid tools/call params")
	}
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return toolsCallParams{}, errors.New("tools/call params.name is required")
	}
	if params.Arguments == nil {
		params.Arguments = map[string]interface{}{}
	}
	return params, nil
}

func errorResponse(id json.RawMessage, code int, message string) rpcResponse {
	return rpcResponse{
		JSONRPC: jsonRPCVersion,
		ID:      normalizeID(id),
		Error:   &rpcError{Code: code, Message: message},
	}
}

// normalizeID keeps the response id field present even when the request id
// was absent or malformed.
func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

func marshalResponse(resp rpcResponse) []byte {
	out, err := json.Marshal(resp)
	if err != nil {
		fallback := fmt.Sprintf(`{"jsonrpc":"2.0","id":null,"error":{"code":%d,"message":"internal error"}}`, codeInternalError)
		return []byte(fallback)
	}
	return out
}
