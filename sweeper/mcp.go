package sweeper

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/feedsweep/kit"
	"github.com/hazyhaar/feedsweep/sweeper/message"
)

// RegisterMCP registers the feedsweep tools on an MCP server.
func (e *Engine) RegisterMCP(srv *mcp.Server) {
	e.registerCommandTool(srv)
	e.registerStateTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (e *Engine) registerCommandTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "feedsweep_command",
		Description: "Send a command to the feed-cleaning engine (START, STOP, SET_TOGGLE, SET_SCROLL_DELAY, SET_REFRESH_THRESHOLD, SET_FILTER, SET_HUMAN_PACING). Returns the engine state.",
		InputSchema: inputSchema(map[string]any{
			"type": map[string]any{"type": "string", "description": "Command type"},
			"key": map[string]any{
				"type":        "string",
				"description": "SET_TOGGLE key: suppressAds, suppressSuggested or foreignScriptLock",
			},
			"value":   map[string]any{"description": "SET_TOGGLE boolean, or integer for SET_SCROLL_DELAY / SET_REFRESH_THRESHOLD"},
			"enabled": map[string]any{"type": "boolean", "description": "SET_FILTER / SET_HUMAN_PACING switch"},
			"keyword": map[string]any{"type": "string", "description": "SET_FILTER keyword"},
		}, []string{"type"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		if _, err := e.Dispatch(ctx, req.(message.Command)); err != nil {
			return nil, err
		}
		return e.Status(), nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		c, err := message.Decode(req.Params.Arguments)
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: c}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Logging(e.logger, tool.Name)(endpoint), decode)
}

type stateReq struct {
	Suppressions bool `json:"suppressions"`
}

func (e *Engine) registerStateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "feedsweep_state",
		Description: "Read the engine configuration, counters, network warning and current mode.",
		InputSchema: inputSchema(map[string]any{
			"suppressions": map[string]any{"type": "boolean", "description": "Include the per-reason suppression breakdown"},
		}, nil),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		st := e.Status()
		if !req.(*stateReq).Suppressions {
			st.Suppressions = nil
		}
		return st, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r stateReq
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
