package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pario-ai/chatgate/pkg/gateway"
	"github.com/pario-ai/chatgate/pkg/models"
	"github.com/pario-ai/chatgate/pkg/provider"
	"github.com/pario-ai/chatgate/pkg/registry"
)

// fakeTransport answers every generation call, or fails once fail is set.
type fakeTransport struct {
	fail error
}

func (f *fakeTransport) Generate(_ context.Context, _ string, req models.ProviderRequest) (provider.Result, error) {
	if f.fail != nil {
		return provider.Result{}, f.fail
	}
	return provider.Result{Shape: provider.ShapeList, Text: "echo: " + req.Inputs, Items: 1}, nil
}

// fakeAuditor implements AuditSearcher for testing.
type fakeAuditor struct {
	entries []models.AuditEntry
	last    models.AuditQueryOpts
}

func (f *fakeAuditor) Query(_ context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	f.last = opts
	return f.entries, nil
}

func newTestServer(tr *fakeTransport, auditor AuditSearcher) *Server {
	client := gateway.New(registry.New(nil), tr)
	return New(gateway.NewSession(client), auditor, "test")
}

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name string, args any) ToolCallResult {
	t.Helper()
	rawArgs, _ := json.Marshal(args)
	params, _ := json.Marshal(ToolCallParams{Name: name, Arguments: rawArgs})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`7`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("rpc error: %+v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	return result
}

func text(r ToolCallResult) string {
	if len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Text
}

func TestInitialize(t *testing.T) {
	srv := newTestServer(&fakeTransport{}, nil)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if result.ServerInfo.Name != "chatgate" || result.ServerInfo.Version != "test" {
		t.Errorf("unexpected server info %+v", result.ServerInfo)
	}
}

func TestToolsList(t *testing.T) {
	srv := newTestServer(&fakeTransport{}, nil)
	resp := sendAndReceive(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`2`), Method: "tools/list"})

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Tools) != len(toolHandlers) {
		t.Fatalf("expected %d tools, got %d", len(toolHandlers), len(result.Tools))
	}
	for _, tool := range result.Tools {
		if _, ok := toolHandlers[tool.Name]; !ok {
			t.Errorf("tool %s has no handler", tool.Name)
		}
	}
}

func TestNotificationHasNoResponse(t *testing.T) {
	srv := newTestServer(&fakeTransport{}, nil)
	var out bytes.Buffer
	in := strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n")
	if err := srv.Run(context.Background(), in, &out); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no output, got %s", out.String())
	}
}

func TestParseAndMethodErrors(t *testing.T) {
	srv := newTestServer(&fakeTransport{}, nil)
	var out bytes.Buffer
	in := strings.NewReader("not json\n" + `{"jsonrpc":"2.0","id":3,"method":"bogus"}` + "\n")
	if err := srv.Run(context.Background(), in, &out); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(lines))
	}
	var first, second Response
	_ = json.Unmarshal([]byte(lines[0]), &first)
	_ = json.Unmarshal([]byte(lines[1]), &second)
	if first.Error == nil || first.Error.Code != CodeParseError {
		t.Errorf("expected parse error, got %+v", first.Error)
	}
	if second.Error == nil || second.Error.Code != CodeMethodNotFound {
		t.Errorf("expected method not found, got %+v", second.Error)
	}
}

func TestChatFlow(t *testing.T) {
	srv := newTestServer(&fakeTransport{}, nil)

	res := callTool(t, srv, "chatgate_send_message", map[string]any{"message": "hi"})
	if !res.IsError || !strings.Contains(text(res), "no model selected") {
		t.Fatalf("expected validation error, got %+v", res)
	}

	res = callTool(t, srv, "chatgate_select_model", map[string]any{"model": "general"})
	if res.IsError || !strings.Contains(text(res), "Connected to General Assistant") {
		t.Fatalf("select failed: %+v", res)
	}

	res = callTool(t, srv, "chatgate_send_message", map[string]any{"message": "hi", "max_new_tokens": 16})
	if res.IsError || !strings.Contains(text(res), "General Assistant: echo: hi") {
		t.Fatalf("send failed: %+v", res)
	}

	res = callTool(t, srv, "chatgate_send_message", map[string]any{"message": "hi", "max_new_tokens": 16})
	if !strings.Contains(text(res), "(cached)") {
		t.Errorf("expected cached reply, got %s", text(res))
	}

	res = callTool(t, srv, "chatgate_list_models", nil)
	if !strings.Contains(text(res), "* general-assistant") {
		t.Errorf("active model not marked:\n%s", text(res))
	}

	res = callTool(t, srv, "chatgate_stats", nil)
	if !strings.Contains(text(res), "Cache entries:     1") || !strings.Contains(text(res), "Requests (60s):    1") {
		t.Errorf("unexpected stats:\n%s", text(res))
	}

	res = callTool(t, srv, "chatgate_export", nil)
	if !strings.Contains(text(res), "You: hi") {
		t.Errorf("unexpected export:\n%s", text(res))
	}

	res = callTool(t, srv, "chatgate_clear", nil)
	if text(res) != "General Assistant: Hello! Ask me anything.\n" {
		t.Errorf("unexpected transcript after clear: %q", text(res))
	}

	callTool(t, srv, "chatgate_cancel", nil)
	callTool(t, srv, "chatgate_disconnect", nil)
	res = callTool(t, srv, "chatgate_stats", nil)
	if !strings.Contains(text(res), "(disconnected)") {
		t.Errorf("expected disconnected, got:\n%s", text(res))
	}
}

func TestSendFallbackIsFlagged(t *testing.T) {
	tr := &fakeTransport{}
	srv := newTestServer(tr, nil)
	callTool(t, srv, "chatgate_select_model", map[string]any{"model": "mentor"})

	tr.fail = &provider.Error{Kind: provider.KindUnauthorized, StatusCode: 401}
	res := callTool(t, srv, "chatgate_send_message", map[string]any{"message": "plan"})
	if !res.IsError {
		t.Fatal("fallback reply should be flagged as an error")
	}
	if !strings.Contains(text(res), "fallback reply") {
		t.Errorf("unexpected text %s", text(res))
	}
}

func TestSelectUnknownModel(t *testing.T) {
	srv := newTestServer(&fakeTransport{}, nil)
	res := callTool(t, srv, "chatgate_select_model", map[string]any{"model": "nope"})
	if !res.IsError || !strings.Contains(text(res), "unknown model") {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestAuditSearch(t *testing.T) {
	srv := newTestServer(&fakeTransport{}, nil)
	res := callTool(t, srv, "chatgate_audit_search", nil)
	if text(res) != "Audit logging is not configured." {
		t.Errorf("unexpected %q", text(res))
	}

	auditor := &fakeAuditor{entries: []models.AuditEntry{{
		RequestID: "req-1", Model: "general-assistant", State: "fallback",
		Attempts: 4, StatusCode: 429, CreatedAt: time.Now(),
	}}}
	srv = newTestServer(&fakeTransport{}, auditor)
	res = callTool(t, srv, "chatgate_audit_search", map[string]any{"state": "fallback", "since": "2025-01-01"})
	if res.IsError || !strings.Contains(text(res), "req-1") {
		t.Fatalf("unexpected %+v", res)
	}
	if auditor.last.State != "fallback" || auditor.last.Since.Year() != 2025 {
		t.Errorf("filters not passed through: %+v", auditor.last)
	}

	res = callTool(t, srv, "chatgate_audit_search", map[string]any{"since": "yesterday"})
	if !res.IsError {
		t.Error("expected error for bad date")
	}
}

func TestUnknownTool(t *testing.T) {
	srv := newTestServer(&fakeTransport{}, nil)
	res := callTool(t, srv, "nope", nil)
	if !res.IsError {
		t.Error("expected error result")
	}
}

func TestInvalidRequests(t *testing.T) {
	srv := newTestServer(&fakeTransport{}, nil)

	resp := sendAndReceive(t, srv, Request{JSONRPC: "1.0", ID: json.RawMessage(`4`), Method: "ping"})
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Errorf("expected invalid request, got %+v", resp.Error)
	}

	resp = sendAndReceive(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`5`), Method: "tools/call", Params: json.RawMessage(`{}`)})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("expected invalid params, got %+v", resp.Error)
	}

	resp = sendAndReceive(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`6`), Method: "ping"})
	if resp.Error != nil || string(resp.ID) != "6" {
		t.Errorf("unexpected ping response %+v", resp)
	}
}

func TestUnknownNotificationIgnored(t *testing.T) {
	srv := newTestServer(&fakeTransport{}, nil)
	var out bytes.Buffer
	in := strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/progress"}` + "\n")
	if err := srv.Run(context.Background(), in, &out); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no output, got %s", out.String())
	}
}

// slowTransport holds any prompt mentioning "slow" until its context ends.
type slowTransport struct {
	started chan struct{}
}

func (f *slowTransport) Generate(ctx context.Context, _ string, req models.ProviderRequest) (provider.Result, error) {
	if !strings.Contains(req.Inputs, "slow") {
		return provider.Result{Shape: provider.ShapeList, Text: "echo: " + req.Inputs, Items: 1}, nil
	}
	close(f.started)
	select {
	case <-ctx.Done():
		return provider.Result{}, ctx.Err()
	case <-time.After(5 * time.Second):
		return provider.Result{Shape: provider.ShapeList, Text: "slow reply", Items: 1}, nil
	}
}

func toolLine(t *testing.T, id int, name string, args any) string {
	t.Helper()
	rawArgs, _ := json.Marshal(args)
	params, _ := json.Marshal(ToolCallParams{Name: name, Arguments: rawArgs})
	line, err := json.Marshal(Request{JSONRPC: "2.0", ID: json.RawMessage(fmt.Sprint(id)), Method: "tools/call", Params: params})
	if err != nil {
		t.Fatal(err)
	}
	return string(line) + "\n"
}

func TestCancelWhileSendInFlight(t *testing.T) {
	tests := []struct {
		name   string
		cancel func(t *testing.T) string
	}{
		{"notification", func(*testing.T) string {
			return `{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":2}}` + "\n"
		}},
		{"tool", func(t *testing.T) string { return toolLine(t, 3, "chatgate_cancel", nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &slowTransport{started: make(chan struct{})}
			client := gateway.New(registry.New(nil), tr)
			srv := New(gateway.NewSession(client), nil, "test")

			pr, pw := io.Pipe()
			var out bytes.Buffer
			done := make(chan error, 1)
			go func() { done <- srv.Run(context.Background(), pr, &out) }()

			begin := time.Now()
			if _, err := io.WriteString(pw, toolLine(t, 1, "chatgate_select_model", map[string]any{"model": "general"})); err != nil {
				t.Fatal(err)
			}
			if _, err := io.WriteString(pw, toolLine(t, 2, "chatgate_send_message", map[string]any{"message": "slow question"})); err != nil {
				t.Fatal(err)
			}
			select {
			case <-tr.started:
			case <-time.After(2 * time.Second):
				t.Fatal("send never reached the transport")
			}
			if _, err := io.WriteString(pw, tt.cancel(t)); err != nil {
				t.Fatal(err)
			}
			pw.Close()

			select {
			case err := <-done:
				if err != nil {
					t.Fatal(err)
				}
			case <-time.After(3 * time.Second):
				t.Fatal("run did not finish after cancel")
			}
			if elapsed := time.Since(begin); elapsed > 2*time.Second {
				t.Errorf("cancel took effect only after %s", elapsed)
			}

			var sendResult *ToolCallResult
			for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
				var resp Response
				if err := json.Unmarshal([]byte(line), &resp); err != nil {
					t.Fatalf("bad response line %q: %v", line, err)
				}
				if string(resp.ID) != "2" {
					continue
				}
				data, _ := json.Marshal(resp.Result)
				var r ToolCallResult
				if err := json.Unmarshal(data, &r); err != nil {
					t.Fatal(err)
				}
				sendResult = &r
			}
			if sendResult == nil {
				t.Fatalf("no response to the send call in %s", out.String())
			}
			if !strings.Contains(text(*sendResult), "cancelled") {
				t.Errorf("expected a cancelled reply, got %q", text(*sendResult))
			}
			if strings.Contains(srv.session.ExportConversation(), "slow question") {
				t.Error("cancelled exchange must not reach the transcript")
			}
		})
	}
}
