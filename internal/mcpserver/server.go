// Package mcpserver exposes the document registry and chat to MCP clients
// over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/jwulff/docqa/internal/api"
)

// Backend is the subset of the API client the tools use.
type Backend interface {
	List(ctx context.Context) ([]api.Document, error)
	ListByType(ctx context.Context, kind api.MediaKind) ([]api.Document, error)
	Get(ctx context.Context, id int64) (api.Document, error)
	Summary(ctx context.Context, id int64) (api.SummaryResponse, error)
	Timestamps(ctx context.Context, id int64) (api.TimestampResponse, error)
	Chat(ctx context.Context, req api.ChatRequest) (api.ChatResponse, error)
}

// Server holds the tool handlers.
type Server struct {
	backend Backend
	logger  *zap.Logger
	version string
}

// New creates a Server.
func New(backend Backend, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{backend: backend, logger: logger, version: version}
}

// MCPServer builds the MCP server with every tool registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("docqa", s.version, server.WithToolCapabilities(false))

	srv.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List uploaded documents with their processing status"),
		mcp.WithString("type",
			mcp.Description("Only documents of this media kind"),
			mcp.Enum(string(api.KindPDF), string(api.KindAudio), string(api.KindVideo)),
		),
	), s.listDocuments)

	srv.AddTool(mcp.NewTool("get_document",
		mcp.WithDescription("Get one document's metadata"),
		mcp.WithNumber("document_id", mcp.Required(), mcp.Description("Document id")),
	), s.getDocument)

	srv.AddTool(mcp.NewTool("get_summary",
		mcp.WithDescription("Get the generated summary of a processed document"),
		mcp.WithNumber("document_id", mcp.Required(), mcp.Description("Document id")),
	), s.getSummary)

	srv.AddTool(mcp.NewTool("get_timestamps",
		mcp.WithDescription("Get the topic timeline of an audio or video document"),
		mcp.WithNumber("document_id", mcp.Required(), mcp.Description("Document id")),
	), s.getTimestamps)

	srv.AddTool(mcp.NewTool("ask_document",
		mcp.WithDescription("Ask a question about a document. Pass the returned session_id to continue the conversation."),
		mcp.WithNumber("document_id", mcp.Required(), mcp.Description("Document id")),
		mcp.WithString("message", mcp.Required(), mcp.Description("Question to ask")),
		mcp.WithString("session_id", mcp.Description("Session id from a previous answer")),
	), s.askDocument)

	return srv
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.MCPServer())
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		docs []api.Document
		err  error
	)
	if kind := strings.ToUpper(req.GetString("type", "")); kind != "" {
		docs, err = s.backend.ListByType(ctx, api.MediaKind(kind))
	} else {
		docs, err = s.backend.List(ctx)
	}
	if err != nil {
		return s.failed("list documents", err), nil
	}

	var b strings.Builder
	if len(docs) == 0 {
		b.WriteString("No documents.")
	}
	for _, d := range docs {
		fmt.Fprintf(&b, "%d\t%s\t%s\t%s\n", d.ID, d.Type, d.Status, d.DisplayName())
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) getDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errRes := documentID(req)
	if errRes != nil {
		return errRes, nil
	}
	doc, err := s.backend.Get(ctx, id)
	if err != nil {
		return s.failed("get document", err), nil
	}
	return jsonResult(doc)
}

func (s *Server) getSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errRes := documentID(req)
	if errRes != nil {
		return errRes, nil
	}
	sum, err := s.backend.Summary(ctx, id)
	if err != nil {
		return s.failed("get summary", err), nil
	}
	if sum.Summary == "" {
		return mcp.NewToolResultText("No summary yet; the document may still be processing."), nil
	}
	return mcp.NewToolResultText(sum.Summary), nil
}

func (s *Server) getTimestamps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errRes := documentID(req)
	if errRes != nil {
		return errRes, nil
	}
	ts, err := s.backend.Timestamps(ctx, id)
	if err != nil {
		return s.failed("get timestamps", err), nil
	}

	var b strings.Builder
	for _, e := range ts.Timestamps {
		fmt.Fprintf(&b, "[%s-%s] %s\n", e.FormattedStartTime, e.FormattedEndTime, e.Topic)
	}
	if b.Len() == 0 {
		b.WriteString("No timestamps.")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) askDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errRes := documentID(req)
	if errRes != nil {
		return errRes, nil
	}
	msg := strings.TrimSpace(req.GetString("message", ""))
	if msg == "" {
		return mcp.NewToolResultError("message is required"), nil
	}

	resp, err := s.backend.Chat(ctx, api.ChatRequest{
		DocumentID: id,
		Message:    msg,
		SessionID:  req.GetString("session_id", ""),
	})
	if err != nil {
		return s.failed("ask document", err), nil
	}

	var b strings.Builder
	b.WriteString(resp.Response)
	for i, t := range resp.Timestamps {
		if i == 0 {
			b.WriteString("\n\nReferences:")
		}
		fmt.Fprintf(&b, "\n- %s %s", t.FormattedTime, t.Content)
	}
	fmt.Fprintf(&b, "\n\nsession_id: %s", resp.SessionID)
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) failed(op string, err error) *mcp.CallToolResult {
	s.logger.Warn("tool failed", zap.String("op", op), zap.Error(err))
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", op, err))
}

func documentID(req mcp.CallToolRequest) (int64, *mcp.CallToolResult) {
	f, err := req.RequireFloat("document_id")
	if err != nil {
		return 0, mcp.NewToolResultError(err.Error())
	}
	if f <= 0 || f != float64(int64(f)) {
		return 0, mcp.NewToolResultError("document_id must be a positive integer")
	}
	return int64(f), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
