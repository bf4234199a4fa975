package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/pario-ai/chatgate/pkg/gateway"
	"github.com/pario-ai/chatgate/pkg/models"
	"github.com/pario-ai/chatgate/pkg/ratelimit"
)

type selectArgs struct {
	Model string `json:"model"`
}

type sendArgs struct {
	Message string `json:"message"`
	models.GenerationOptions
}

type auditSearchArgs struct {
	Model     string `json:"model"`
	State     string `json:"state"`
	Since     string `json:"since"`
	SessionID string `json:"session_id"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"chatgate_list_models":  handleListModels,
	"chatgate_select_model": handleSelectModel,
	"chatgate_send_message": handleSendMessage,
	"chatgate_cancel":       handleCancel,
	"chatgate_clear":        handleClear,
	"chatgate_disconnect":   handleDisconnect,
	"chatgate_export":       handleExport,
	"chatgate_stats":        handleStats,
	"chatgate_audit_search": handleAuditSearch,
}

// asyncTools wait on the upstream model and run off the read loop.
var asyncTools = map[string]bool{
	"chatgate_send_message": true,
}

func emptySchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "chatgate_list_models",
		Description: "List the models available to chat with and show which one is active.",
		InputSchema: emptySchema(),
	},
	{
		Name:        "chatgate_select_model",
		Description: "Connect to a model by id or alias. The endpoint is probed once before the model becomes active.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"model"},
			"properties": map[string]any{
				"model": prop("string", "Model id or alias"),
			},
		},
	},
	{
		Name:        "chatgate_send_message",
		Description: "Send a message to the active model and return its reply. Provider failures return a canned fallback reply flagged as an error.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"message"},
			"properties": map[string]any{
				"message":            prop("string", "The message to send"),
				"max_new_tokens":     prop("integer", "Override the model's max_new_tokens (optional)"),
				"temperature":        prop("number", "Override the sampling temperature (optional)"),
				"do_sample":          prop("boolean", "Override do_sample (optional)"),
				"top_p":              prop("number", "Override top_p (optional)"),
				"repetition_penalty": prop("number", "Override repetition_penalty (optional)"),
			},
		},
	},
	{
		Name:        "chatgate_cancel",
		Description: "Cancel the in-flight request; its reply will be discarded.",
		InputSchema: emptySchema(),
	},
	{
		Name:        "chatgate_clear",
		Description: "Clear the conversation and show the active model's welcome line again.",
		InputSchema: emptySchema(),
	},
	{
		Name:        "chatgate_disconnect",
		Description: "Disconnect from the active model and clear the conversation.",
		InputSchema: emptySchema(),
	},
	{
		Name:        "chatgate_export",
		Description: "Export the conversation as a plain-text transcript.",
		InputSchema: emptySchema(),
	},
	{
		Name:        "chatgate_stats",
		Description: "Show the active model, cache size and rate limit usage.",
		InputSchema: emptySchema(),
	},
	{
		Name:        "chatgate_audit_search",
		Description: "Search the request log with optional filters.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"model":      prop("string", "Filter by model id (optional)"),
				"state":      prop("string", "Filter by state: completed, cancelled, fallback, rejected (optional)"),
				"since":      prop("string", "Start date in YYYY-MM-DD format (optional)"),
				"session_id": prop("string", "Filter by session ID (optional)"),
			},
		},
	},
}

func handleListModels(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	active := ""
	if d, err := s.session.Client().ActiveModel(); err == nil {
		active = d.ID
	}
	return textResult(formatModels(s.session.Client().AvailableModels(), active))
}

func handleSelectModel(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args selectArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Model == "" {
		return errorResult("model is required")
	}
	d, err := s.session.SelectModel(ctx, args.Model)
	if err != nil {
		return errorResult("Could not connect: " + err.Error())
	}
	return textResult("Connected to " + d.Name + ".\n\n" + d.WelcomeMessage())
}

func handleSendMessage(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args sendArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("invalid arguments: " + err.Error())
		}
	}
	reply, err := s.session.Send(ctx, args.Message, args.GenerationOptions)
	switch {
	case gateway.IsValidation(err):
		return errorResult(err.Error())
	case errors.Is(err, ratelimit.ErrRateLimited):
		return errorResult("Rate limited: " + err.Error())
	case err != nil:
		return errorResult(err.Error())
	}
	res := textResult(formatReply(reply))
	res.IsError = reply.Message.Error
	return res
}

func handleCancel(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	s.session.Cancel()
	return textResult("Request cancelled.")
}

func handleClear(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	s.session.ClearConversation()
	return textResult(formatTranscript(s.session.Transcript()))
}

func handleDisconnect(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	s.session.DisconnectModel()
	return textResult("Disconnected.")
}

func handleExport(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(s.session.ExportConversation())
}

func handleStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	cs, err := s.session.Client().CacheStats()
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatStats(s.session.Client().Stats(), cs))
}

func handleAuditSearch(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.auditor == nil {
		return textResult("Audit logging is not configured.")
	}
	var args auditSearchArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	opts := models.AuditQueryOpts{
		Model:     args.Model,
		State:     args.State,
		SessionID: args.SessionID,
		Limit:     50,
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.auditor.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching audit log: " + err.Error())
	}
	return textResult(formatAuditEntries(entries))
}
