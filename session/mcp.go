package session

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/tabkeeper/kit"
)

// RegisterMCP registers the tabkeeper tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerSaveTool(srv)
	s.registerListTool(srv)
	s.registerRestoreTool(srv)
	s.registerDeleteTool(srv)
	s.registerRenameTool(srv)
	s.registerUndoTool(srv)
	s.registerOrganizeTool(srv)
	s.registerStatsTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

// --- save ---

type saveRequest struct {
	Name string `json:"name,omitempty"`
}

func (s *Service) registerSaveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_save",
		Description: "Capture the current window/tab/group arrangement as a named session snapshot.",
		InputSchema: inputSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "Session name (default: timestamped)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*saveRequest)
		return s.Save(ctx, r.Name)
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r saveRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &r, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- list ---

func (s *Service) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_list",
		Description: "List stored session snapshots, newest first.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.List(ctx)
	}

	decode := func(_ *mcp.CallToolRequest) (any, error) {
		return nil, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- restore ---

type restoreRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Service) registerRestoreTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_restore",
		Description: "Reconstruct a stored session in the live browser: windows, tabs, pins, groups, active tab.",
		InputSchema: inputSchema(map[string]any{
			"session_id": map[string]any{"type": "string", "description": "Snapshot ID to restore"},
		}, []string{"session_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*restoreRequest)
		if err := s.Restore(ctx, r.SessionID); err != nil {
			return nil, err
		}
		return map[string]string{"status": "restored", "session_id": r.SessionID}, nil
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r restoreRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &r, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- delete ---

func (s *Service) registerDeleteTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_delete",
		Description: "Delete a stored session snapshot.",
		InputSchema: inputSchema(map[string]any{
			"session_id": map[string]any{"type": "string", "description": "Snapshot ID to delete"},
		}, []string{"session_id"}),
	}

	type delReq struct {
		SessionID string `json:"session_id"`
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*delReq)
		if err := s.Delete(ctx, r.SessionID); err != nil {
			return nil, err
		}
		return map[string]string{"status": "deleted", "session_id": r.SessionID}, nil
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r delReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &r, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- rename ---

func (s *Service) registerRenameTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_rename",
		Description: "Rename a stored session snapshot.",
		InputSchema: inputSchema(map[string]any{
			"session_id": map[string]any{"type": "string", "description": "Snapshot ID to rename"},
			"name":       map[string]any{"type": "string", "description": "New session name"},
		}, []string{"session_id", "name"}),
	}

	type renameReq struct {
		SessionID string `json:"session_id"`
		Name      string `json:"name"`
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*renameReq)
		if err := s.Rename(ctx, r.SessionID, r.Name); err != nil {
			return nil, err
		}
		return map[string]string{"status": "renamed", "session_id": r.SessionID, "name": r.Name}, nil
	}

	decode := func(req *mcp.CallToolRequest) (any, error) {
		var r renameReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &r, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- undo ---

func (s *Service) registerUndoTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_undo",
		Description: "Revert the most recent tabkeeper action, restoring the prior grouping arrangement.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		undone, err := s.Undo(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"undone": undone}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (any, error) {
		return nil, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- organize ---

func (s *Service) registerOrganizeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_organize",
		Description: "Group open tabs by the configured classification rules. Records an undo entry first.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		n, err := s.Organize(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{"groups_created": n}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (any, error) {
		return nil, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- stats ---

func (s *Service) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "tabkeeper_stats",
		Description: "Get tabkeeper statistics: session count, undo depth, storage bytes in use and quota.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.Stats(ctx)
	}

	decode := func(_ *mcp.CallToolRequest) (any, error) {
		return nil, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
