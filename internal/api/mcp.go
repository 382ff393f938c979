package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/folio/internal/composer"
	"github.com/kalambet/folio/internal/content"
	"github.com/kalambet/folio/internal/gatekeeper"
)

// ProfileResourceURI names the bundle resource.
const ProfileResourceURI = "portfolio://profile"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Content content.Source
	Version string
}

// NewMCPServer creates an MCP server exposing the portfolio bundle, the
// relevance gate and the persona prompt.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Content == nil {
		deps.Content = content.Static{}
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	s := server.NewMCPServer(
		"folio",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("folio: portfolio profile, question relevance checks and the chat persona prompt."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("classify_question",
			mcp.WithDescription("Decide whether a visitor question is in scope for the portfolio assistant."),
			mcp.WithString("question", mcp.Description("The visitor's question"), mcp.Required()),
		),
		mcpClassifyQuestion(),
	)

	s.AddTool(
		mcp.NewTool("system_prompt",
			mcp.WithDescription("Return the persona system prompt built from the current portfolio content."),
		),
		mcpSystemPrompt(deps),
	)

	s.AddResource(
		mcp.NewResource(
			ProfileResourceURI,
			"Portfolio Profile",
			mcp.WithResourceDescription("Profile, experience, projects, skills and education as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfile(deps),
	)

	return s
}

type classification struct {
	Relevant bool   `json:"relevant"`
	Rule     string `json:"rule"`
	Message  string `json:"message,omitempty"`
}

func mcpClassifyQuestion() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		v, rule := gatekeeper.Explain(question)
		out := classification{Relevant: v.Relevant, Rule: rule}
		if !v.Relevant {
			out.Message = v.RejectionMessage()
		}
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal verdict: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSystemPrompt(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := deps.Content.Fetch(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load portfolio content: %v", err)), nil
		}
		return mcpText(composer.Compose(b)), nil
	}
}

func mcpResourceProfile(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		bundle, err := deps.Content.Fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load portfolio content: %w", err)
		}

		b, err := json.Marshal(bundle)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal bundle: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
