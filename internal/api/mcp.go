package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/lectern/internal/catalog"
	"github.com/kalambet/lectern/internal/history"
	"github.com/kalambet/lectern/internal/pipeline"
	"github.com/kalambet/lectern/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Pipeline Processor
	Store    *storage.Store
	Catalog  *catalog.Catalog
	Recorder *history.Recorder
}

// NewMCPServer creates an MCP server with the lectern tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"lectern",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("lectern renders short animated explainer videos for a topic."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("generate_video",
			mcp.WithDescription("Render an explainer video for a topic, reusing a cached render when one exists. May take several minutes."),
			mcp.WithString("topic", mcp.Description("Topic to explain, e.g. \"Pythagorean Theorem\""), mcp.Required()),
		),
		mcpGenerateVideo(deps),
	)

	s.AddTool(
		mcp.NewTool("list_videos",
			mcp.WithDescription("List generated videos, newest first."),
		),
		mcpListVideos(deps),
	)

	s.AddTool(
		mcp.NewTool("video_details",
			mcp.WithDescription("Show the video URL and caption text of a generated video."),
			mcp.WithString("id", mcp.Description("Video id as returned by list_videos"), mcp.Required()),
		),
		mcpVideoDetails(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"lectern://runs/recent",
			"Recent Runs",
			mcp.WithResourceDescription("Last 10 generation runs"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentRuns(deps),
	)

	return s
}

func mcpGenerateVideo(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		topicText, err := req.RequireString("topic")
		if err != nil {
			return mcpError("topic is required"), nil
		}

		started := time.Now()
		res, err := deps.Pipeline.ProcessTopic(ctx, topicText)
		deps.Recorder.Record(history.SourceMCP, topicText, started, res, err)
		if err != nil {
			var ex *pipeline.ExhaustedError
			if errors.As(err, &ex) {
				return mcpError(fmt.Sprintf("%s\nlast %s error: %s", ExhaustedMessage, ex.Last.Origin, truncateRunes(ex.Last.Text, 1000))), nil
			}
			return mcpError(fmt.Sprintf("generation failed: %v", err)), nil
		}

		doc, err := deps.Catalog.FromResult(res)
		if err != nil {
			return mcpError(fmt.Sprintf("building result: %v", err)), nil
		}
		doc.Title = topicText

		b, err := json.Marshal(doc)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListVideos(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		videos, err := deps.Catalog.List()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list videos: %v", err)), nil
		}
		if len(videos) == 0 {
			return mcpText("No videos yet."), nil
		}
		b, err := json.Marshal(videos)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal videos: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpVideoDetails(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		d, err := deps.Catalog.Details(id)
		if errors.Is(err, catalog.ErrNotFound) {
			return mcpError("Video not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load video: %v", err)), nil
		}
		b, err := json.Marshal(d)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal details: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecentRuns(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		runs, err := deps.Store.RecentRuns(10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent runs: %w", err)
		}

		out := make([]runResponse, len(runs))
		for i, run := range runs {
			r := toRunResponse(run)
			r.LastError = truncateRunes(r.LastError, 200)
			out[i] = r
		}

		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal runs: %w", err)
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

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
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
