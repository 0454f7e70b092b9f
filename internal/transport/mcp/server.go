// internal/transport/mcp/server.go
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	apperrors "eligibility-engine/internal/common/errors"
	"eligibility-engine/internal/common/logger"
	"eligibility-engine/internal/eligibility"
	"eligibility-engine/pkg/registry"
)

// EvaluateToolName is the only tool this server exposes.
const EvaluateToolName = "evaluate_unpaid_leave_eligibility"

type Evaluator interface {
	EvaluateJSON(ctx context.Context, raw []byte) (*eligibility.EvaluationResponse, error)
}

// Server answers MCP requests independent of the transport that carries them.
type Server struct {
	evaluator Evaluator
	registry  *registry.ToolRegistry
	logger    logger.Logger
}

func NewServer(evaluator Evaluator, reg *registry.ToolRegistry, log logger.Logger) (*Server, error) {
	if reg == nil {
		reg = registry.Default()
	}
	if _, ok := reg.Find(EvaluateToolName); !ok {
		return nil, fmt.Errorf("tool registry does not declare %q", EvaluateToolName)
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Server{
		evaluator: evaluator,
		registry:  reg,
		logger:    log.WithFields(map[string]interface{}{"component": "mcp"}),
	}, nil
}

// HandleMessage decodes one JSON-RPC message and returns the encoded response. It returns
// nil for notifications.
func (s *Server) HandleMessage(ctx context.Context, raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return encode(errorResponse(nil, CodeInvalidRequest, "batch requests are not supported"))
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return encode(errorResponse(nil, CodeParseError, "parse error: "+err.Error()))
	}

	resp := s.Handle(ctx, &req)
	if resp == nil {
		return nil
	}
	return encode(resp)
}

// Handle dispatches one decoded request.
func (s *Server) Handle(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		if req.IsNotification() {
			return nil
		}
		return errorResponse(req.ID, CodeInvalidRequest, "invalid request")
	}

	result, rpcErr := s.dispatch(ctx, req)
	if req.IsNotification() {
		return nil
	}
	if rpcErr != nil {
		return &Response{JSONRPC: jsonrpcVersion, ID: req.ID, Error: rpcErr}
	}
	return &Response{JSONRPC: jsonrpcVersion, ID: req.ID, Result: result}
}

func (s *Server) dispatch(ctx context.Context, req *Request) (interface{}, *RPCError) {
	switch req.Method {
	case "initialize":
		return s.initialize(req.Params)
	case "notifications/initialized", "notifications/cancelled":
		return struct{}{}, nil
	case "ping":
		return struct{}{}, nil
	case "tools/list":
		return s.listTools(), nil
	case "tools/call":
		return s.callTool(ctx, req.Params)
	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

func (s *Server) initialize(params json.RawMessage) (interface{}, *RPCError) {
	var p initializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: "invalid initialize params: " + err.Error()}
		}
	}

	version := p.ProtocolVersion
	if version == "" {
		version = DefaultProtocolVersion
	}

	return &initializeResult{
		ProtocolVersion: version,
		Capabilities:    capabilities{Tools: toolsCapability{ListChanged: false}},
		ServerInfo:      implementation{Name: s.registry.Server.Name, Version: s.registry.Server.Version},
		Instructions:    s.registry.Server.Instructions,
	}, nil
}

func (s *Server) listTools() *listToolsResult {
	tools := make([]toolDescriptor, 0, len(s.registry.Tools))
	for _, t := range s.registry.Tools {
		tools = append(tools, toolDescriptor{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return &listToolsResult{Tools: tools}
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	var p callToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "invalid tools/call params: " + err.Error()}
	}
	if p.Name != EvaluateToolName {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "unknown tool: " + p.Name}
	}

	resp, err := s.evaluator.EvaluateJSON(ctx, p.Arguments)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeMalformedInput {
			return nil, &RPCError{Code: CodeInvalidParams, Message: eligibility.RenderToolError(err)}
		}
		return textResult(eligibility.RenderToolError(err), true), nil
	}

	text, err := eligibility.RenderToolResult(resp)
	if err != nil {
		s.logger.Error("failed to render tool result", map[string]interface{}{"error": err.Error()})
		return nil, &RPCError{Code: CodeInternalError, Message: "Serialization error: " + err.Error()}
	}
	return textResult(text, false), nil
}

func errorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: id, Error: &RPCError{Code: code, Message: message}}
}

func encode(resp *Response) []byte {
	if resp.ID == nil {
		resp.ID = json.RawMessage("null")
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		raw, _ = json.Marshal(errorResponse(resp.ID, CodeInternalError, err.Error()))
	}
	return raw
}
