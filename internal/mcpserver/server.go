// Package mcpserver provides an MCP (Model Context Protocol) server
// that answers coverage questions over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/catcoverage/internal/aggregate"
	"github.com/starford/catcoverage/internal/annotation"
	"github.com/starford/catcoverage/internal/apperr"
	"github.com/starford/catcoverage/internal/coverage"
)

const formatURI = "catcoverage://annotation-format"

// Server wraps the MCP server with coverage tools.
type Server struct {
	mcp *server.MCPServer
	svc *coverage.Service
}

// New creates a new MCP server with all coverage tools registered.
func New(svc *coverage.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"catcoverage",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_coverage",
		mcp.WithDescription("Archive totals per annotation and the ok / not ok split, as JSON."),
	), s.getCoverage)

	s.mcp.AddTool(mcp.NewTool("list_collections",
		mcp.WithDescription("Totals per (annotation, collection), largest first, as JSON."),
		mcp.WithString("annotation", mcp.Description("Only rows with this annotation (e.g. missing)")),
		mcp.WithString("sort", mcp.Description("bytes (default) or files")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of rows (0 for all)")),
	), s.listCollections)

	s.mcp.AddTool(mcp.NewTool("list_annotation_paths",
		mcp.WithDescription("Directories carrying an annotation, one per line."),
		mcp.WithString("annotation", mcp.Required(), mcp.Description("Annotation, e.g. missing or readme_only")),
	), s.listAnnotationPaths)

	s.mcp.AddTool(mcp.NewTool("reload_coverage",
		mcp.WithDescription("Re-read the annotation file and rebuild the report if it changed."),
	), s.reloadCoverage)

	s.mcp.AddTool(mcp.NewTool("get_annotation_format",
		mcp.WithDescription("Describes the annotation file and the annotation vocabulary."),
	), s.getAnnotationFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Annotation File Format",
			mcp.WithResourceDescription("Layout of the annotation file and meaning of each annotation."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) snapshot() (*coverage.Snapshot, *mcp.CallToolResult) {
	snap, err := s.svc.Current()
	if err != nil {
		return nil, mcp.NewToolResultError("no annotation file loaded; run find-missing first")
	}
	return snap, nil
}

func (s *Server) getCoverage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, errResult := s.snapshot()
	if errResult != nil {
		return errResult, nil
	}
	return jsonResult(map[string]any{
		"checksum":    snap.Checksum,
		"total":       snap.Report.Residual.Total,
		"top":         snap.Report.Residual.Top,
		"annotations": snap.Report.Annotations,
		"split":       snap.Report.Split,
		"warnings":    len(snap.Report.Residual.Warnings),
	})
}

func (s *Server) listCollections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	field := aggregate.ByBytes
	switch req.GetString("sort", "bytes") {
	case "bytes":
	case "files":
		field = aggregate.ByFiles
	default:
		return mcp.NewToolResultError("sort must be bytes or files"), nil
	}
	only := annotation.Annotation(req.GetString("annotation", ""))
	limit := req.GetInt("limit", 0)

	snap, errResult := s.snapshot()
	if errResult != nil {
		return errResult, nil
	}
	rows := []aggregate.Row{}
	for _, row := range aggregate.Sorted(snap.Report.ByKey, field) {
		if only != "" && row.Annotation != only {
			continue
		}
		if limit > 0 && len(rows) == limit {
			break
		}
		rows = append(rows, row)
	}
	return jsonResult(rows)
}

func (s *Server) listAnnotationPaths(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, err := req.RequireString("annotation")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, errResult := s.snapshot(); errResult != nil {
		return errResult, nil
	}
	paths, err := s.svc.Paths(annotation.Annotation(a))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("no directories annotated %s", a)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) reloadCoverage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	changed, err := s.svc.Reload(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap, errResult := s.snapshot()
	if errResult != nil {
		return errResult, nil
	}
	if !changed {
		return mcp.NewToolResultText("unchanged: " + snap.Checksum), nil
	}
	return mcp.NewToolResultText("reloaded: " + snap.Checksum), nil
}

func (s *Server) getAnnotationFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(AnnotationFormat), nil
}

func (s *Server) readFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     AnnotationFormat,
		},
	}, nil
}
