package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/karsov/docroute/internal/pipeline"
	"github.com/karsov/docroute/internal/storage"
)

// MCPProcessor abstracts pipeline execution for the MCP layer.
type MCPProcessor interface {
	ProcessDocument(ctx context.Context, path string) pipeline.Result
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Processor MCPProcessor
}

// NewMCPServer creates an MCP server exposing document processing and
// thread inspection tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"docroute",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("docroute — classify heterogeneous documents, route them to handlers, and inspect processing threads."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("process_document",
			mcp.WithDescription("Classify a document file, route it to the matching handler, and return the processing result."),
			mcp.WithString("path", mcp.Description("Filesystem path of the document to process"), mcp.Required()),
		),
		mcpProcessDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("get_thread",
			mcp.WithDescription("Return a processing thread with its extracted fields and routing history."),
			mcp.WithString("thread_id", mcp.Description("Thread identifier"), mcp.Required()),
		),
		mcpGetThread(deps),
	)

	s.AddTool(
		mcp.NewTool("list_threads",
			mcp.WithDescription("List recent processing threads."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of threads (default 20)")),
		),
		mcpListThreads(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"docroute://recent",
			"Recent Threads",
			mcp.WithResourceDescription("Last 10 processing threads (summaries only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpProcessDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcpError("path is required"), nil
		}

		result := deps.Processor.ProcessDocument(ctx, path)

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		if result.Status != pipeline.StatusSuccess {
			return mcpError(string(b)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetThread(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		threadID, err := req.RequireString("thread_id")
		if err != nil {
			return mcpError("thread_id is required"), nil
		}

		snapshot, err := deps.Store.GetThread(threadID)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("thread %s not found", threadID)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get thread: %v", err)), nil
		}

		b, err := json.Marshal(snapshot)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal thread: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListThreads(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		threads, err := deps.Store.ListThreads(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list threads: %v", err)), nil
		}
		if len(threads) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(threads)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal threads: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		threads, err := deps.Store.ListThreads(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list threads: %w", err)
		}

		type threadSummary struct {
			ThreadID  string `json:"thread_id"`
			Format    string `json:"format"`
			Intent    string `json:"intent"`
			Status    string `json:"status"`
			CreatedAt string `json:"created_at"`
		}

		summaries := make([]threadSummary, len(threads))
		for i, th := range threads {
			summaries[i] = threadSummary{
				ThreadID:  th.ID,
				Format:    th.Format,
				Intent:    th.Intent,
				Status:    th.Status,
				CreatedAt: th.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal threads: %w", err)
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
