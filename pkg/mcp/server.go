package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/pario-ai/chatgate/pkg/gateway"
	"github.com/pario-ai/chatgate/pkg/models"
)

// AuditSearcher queries the request log without coupling to the SQLite logger.
type AuditSearcher interface {
	Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error)
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
type Server struct {
	session *gateway.Session
	auditor AuditSearcher
	version string
}

// New creates a new MCP Server. auditor may be nil.
func New(session *gateway.Session, auditor AuditSearcher, version string) *Server {
	return &Server{
		session: session,
		auditor: auditor,
		version: version,
	}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled, then waits for calls
// still in flight.
//
// Long-running tool calls are served on their own goroutine so that a
// cancellation or a superseding call can be read while they are pending.
// Everything else is answered in order.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	out := &responseWriter{w: w}
	var inflight sync.WaitGroup
	defer inflight.Wait()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			out.write(errorResponse(nil, CodeParseError, "parse error"))
			continue
		}

		if isAsyncCall(&req) {
			inflight.Add(1)
			go func(req Request) {
				defer inflight.Done()
				out.write(s.dispatch(ctx, &req))
			}(req)
			continue
		}
		out.write(s.dispatch(ctx, &req))
	}
	return scanner.Err()
}

func isAsyncCall(req *Request) bool {
	if req.Method != "tools/call" || req.JSONRPC != jsonrpcVersion {
		return false
	}
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return false
	}
	return asyncTools[params.Name]
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != jsonrpcVersion {
		if req.IsNotification() {
			return nil
		}
		return errorResponse(req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
	}

	switch req.Method {
	case "notifications/cancelled":
		s.session.Cancel()
		return nil
	case "initialize":
		return resultResponse(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: "chatgate", Version: s.version},
			Capabilities:    Capabilities{Tools: &ToolsCapability{}},
			Instructions:    "Select a model with chatgate_select_model, then chat with chatgate_send_message.",
		})
	case "ping":
		return resultResponse(req.ID, struct{}{})
	case "tools/list":
		return resultResponse(req.ID, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	}

	// Unknown notifications, notifications/initialized included, are dropped.
	if req.IsNotification() {
		return nil
	}
	return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return resultResponse(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}
	return resultResponse(req.ID, handler(ctx, s, params.Arguments))
}

// responseWriter serialises newline-delimited responses from concurrent calls.
type responseWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (rw *responseWriter) write(resp *Response) {
	if resp == nil {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("mcp: marshal error: %v", err)
		return
	}
	data = append(data, '\n')

	rw.mu.Lock()
	defer rw.mu.Unlock()
	if _, err := rw.w.Write(data); err != nil {
		log.Errorf("mcp: write error: %v", err)
	}
}
