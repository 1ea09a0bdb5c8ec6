package toolproc

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes the same seven tools as Tools()/execTool over the
// mark3labs/mcp-go protocol, for clients that drive the build over MCP
// instead of the native completion tool-call loop.
type MCPServer struct {
	registry *Registry
	server   *server.MCPServer
}

// NewMCPServer builds an MCP server bound to registry, one Application FSM
// session per "application_id:trace_id" pair supplied in each call's
// arguments.
func NewMCPServer(registry *Registry) *MCPServer {
	s := &MCPServer{registry: registry}

	mcpServer := server.NewMCPServer(
		"forge-toolproc",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)
	s.server = mcpServer
	return s
}

func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("start_application",
			mcp.WithDescription("Create the application build (if one does not already exist) and advance to the first review state."),
			mcp.WithString("application_id", mcp.Required(), mcp.Description("Application identifier scoping this build.")),
			mcp.WithString("trace_id", mcp.Required(), mcp.Description("Trace identifier scoping this build.")),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("Natural-language description of the application to build.")),
		),
		s.handleStartApplication,
	)

	mcpServer.AddTool(
		mcp.NewTool("confirm_state",
			mcp.WithDescription("Confirm the current stage's output and advance to the next stage."),
			mcp.WithString("application_id", mcp.Required(), mcp.Description("Application identifier.")),
			mcp.WithString("trace_id", mcp.Required(), mcp.Description("Trace identifier.")),
		),
		s.handleConfirmState,
	)

	mcpServer.AddTool(
		mcp.NewTool("provide_feedback",
			mcp.WithDescription("Reject the current stage's output with feedback text and re-run the stage."),
			mcp.WithString("application_id", mcp.Required(), mcp.Description("Application identifier.")),
			mcp.WithString("trace_id", mcp.Required(), mcp.Description("Trace identifier.")),
			mcp.WithString("text", mcp.Required(), mcp.Description("Feedback text to feed back into the stage.")),
			mcp.WithString("component", mcp.Description("Optional component name the feedback is scoped to.")),
		),
		s.handleProvideFeedback,
	)

	mcpServer.AddTool(
		mcp.NewTool("complete",
			mcp.WithDescription("Confirm every remaining review state until the build reaches Complete or Failure."),
			mcp.WithString("application_id", mcp.Required(), mcp.Description("Application identifier.")),
			mcp.WithString("trace_id", mcp.Required(), mcp.Description("Trace identifier.")),
		),
		s.handleComplete,
	)

	mcpServer.AddTool(
		mcp.NewTool("get_state",
			mcp.WithDescription("Return the FSM's current state name."),
			mcp.WithString("application_id", mcp.Required(), mcp.Description("Application identifier.")),
			mcp.WithString("trace_id", mcp.Required(), mcp.Description("Trace identifier.")),
		),
		s.handleGetState,
	)

	mcpServer.AddTool(
		mcp.NewTool("get_available_actions",
			mcp.WithDescription("Return the tool names that are valid to call from the current state."),
			mcp.WithString("application_id", mcp.Required(), mcp.Description("Application identifier.")),
			mcp.WithString("trace_id", mcp.Required(), mcp.Description("Trace identifier.")),
		),
		s.handleGetAvailableActions,
	)

	mcpServer.AddTool(
		mcp.NewTool("get_state_output",
			mcp.WithDescription("Return the current application context: produced files, pending feedback, and any error."),
			mcp.WithString("application_id", mcp.Required(), mcp.Description("Application identifier.")),
			mcp.WithString("trace_id", mcp.Required(), mcp.Description("Trace identifier.")),
		),
		s.handleGetStateOutput,
	)
}

func (s *MCPServer) session(request mcp.CallToolRequest) (*Session, error) {
	appID := request.GetString("application_id", "")
	traceID := request.GetString("trace_id", "")
	if appID == "" || traceID == "" {
		return nil, fmt.Errorf("application_id and trace_id are required")
	}
	return s.registry.GetOrCreate(appID, traceID), nil
}

func (s *MCPServer) handleStartApplication(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	prompt := request.GetString("prompt", "")
	if prompt == "" {
		return mcp.NewToolResultError("prompt parameter is required"), nil
	}
	if err := sess.start(ctx, prompt); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("application started, now at %s", sess.leaf())), nil
}

func (s *MCPServer) handleConfirmState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, isErr := execTool(ctx, sess, toolUseFor("confirm_state", nil))
	if isErr {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *MCPServer) handleProvideFeedback(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	input := map[string]any{
		"text":      request.GetString("text", ""),
		"component": request.GetString("component", ""),
	}
	text, isErr := execTool(ctx, sess, toolUseFor("provide_feedback", input))
	if isErr {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *MCPServer) handleComplete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, isErr := execTool(ctx, sess, toolUseFor("complete", nil))
	if isErr {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *MCPServer) handleGetState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, _ := execTool(ctx, sess, toolUseFor("get_state", nil))
	return mcp.NewToolResultText(text), nil
}

func (s *MCPServer) handleGetAvailableActions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, _ := execTool(ctx, sess, toolUseFor("get_available_actions", nil))
	return mcp.NewToolResultText(text), nil
}

func (s *MCPServer) handleGetStateOutput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, isErr := execTool(ctx, sess, toolUseFor("get_state_output", nil))
	if isErr {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}

// ServeStdio starts the MCP server on stdio.
func (s *MCPServer) ServeStdio() error {
	return server.ServeStdio(s.server)
}
