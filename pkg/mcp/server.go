// Package mcp exposes the orchestrator as Model Context Protocol tools over
// line-delimited JSON-RPC 2.0 on stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/pario-ai/backstop/pkg/config"
	"github.com/pario-ai/backstop/pkg/logging"
	"github.com/pario-ai/backstop/pkg/models"
	"github.com/pario-ai/backstop/pkg/orchestrator"
)

// maxLine bounds a single JSON-RPC message.
const maxLine = 1 << 20

// Orchestrator is the subset of *orchestrator.Orchestrator the tools use.
type Orchestrator interface {
	Request(ctx context.Context, req models.Request, opts orchestrator.Options) models.Result
	RemainingQuota(ctx context.Context, providerID string) (models.Remaining, error)
	Usage(ctx context.Context, providerID string) (models.UsageRecord, error)
	CurrentMode(ctx context.Context) models.Mode
	CacheStats() models.CacheStats
	Providers() []config.ProviderConfig
}

// Server answers MCP requests.
type Server struct {
	orch    Orchestrator
	version string
	logger  *zap.Logger
}

// New creates a Server.
func New(orch Orchestrator, version string, logger *zap.Logger) *Server {
	return &Server{orch: orch, version: version, logger: logging.OrNop(logger)}
}

// Run reads requests from r one per line and writes responses to w. It
// returns when r is exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, rpcResponse{
				JSONRPC: "2.0",
				Error:   &rpcError{Code: codeParseError, Message: "parse error"},
			})
			continue
		}

		if resp := s.handle(ctx, &req); resp != nil {
			s.write(w, *resp)
		}
	}
	return scanner.Err()
}

func (s *Server) handle(ctx context.Context, req *rpcRequest) *rpcResponse {
	resp := &rpcResponse{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "initialize":
		resp.Result = initializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      serverInfo{Name: "backstop", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		}
	case "notifications/initialized":
		return nil
	case "ping":
		resp.Result = map[string]any{}
	case "tools/list":
		resp.Result = map[string]any{"tools": tools}
	case "tools/call":
		var params toolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp.Error = &rpcError{Code: codeInvalidParams, Message: "invalid params"}
			return resp
		}
		resp.Result = s.call(ctx, params)
	default:
		resp.Error = &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)}
	}
	return resp
}

func (s *Server) call(ctx context.Context, params toolCallParams) ToolResult {
	handler, ok := handlers[params.Name]
	if !ok {
		return textResult(fmt.Sprintf("unknown tool: %s", params.Name), true)
	}
	s.logger.Debug("tool call", zap.String("tool", params.Name))
	return handler(ctx, s.orch, params.Arguments)
}

func (s *Server) write(w io.Writer, resp rpcResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", zap.Error(err))
		return
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		s.logger.Error("write response", zap.Error(err))
	}
}
