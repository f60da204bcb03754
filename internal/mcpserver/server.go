// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the vault gateway tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/vaultgate/internal/docpatch"
	"github.com/starford/vaultgate/internal/noteservice"
	"github.com/starford/vaultgate/internal/vault"
)

const contractURI = "vaultgate://patch-targets"

// Server wraps the MCP server with vault tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all vault tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"vaultgate",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a Markdown document from the vault."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path (e.g. folder/note.md)")),
		mcp.WithString("format", mcp.Description("markdown (default) or json for frontmatter, tags and links"),
			mcp.Enum("markdown", "json")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("get_document_map",
		mcp.WithDescription("List the headings, block ids and frontmatter keys a patch can target."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path")),
	), s.getDocumentMap)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List the entries of a vault folder. Sub-folders end with /."),
		mcp.WithString("folder", mcp.Description("Folder to list (empty for the vault root)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Plain text search across the vault."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
		mcp.WithNumber("context_length", mcp.Description("Characters of context around each match (default 100)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("advanced_search",
		mcp.WithDescription("Run a Dataview DQL or JsonLogic query. Needs the Obsidian REST backend "+
			"with the Dataview plugin installed."),
		mcp.WithString("query_type", mcp.Required(), mcp.Enum(vault.QueryDataview, vault.QueryJSONLogic)),
		mcp.WithString("query", mcp.Required(),
			mcp.Description("DQL text (e.g. TABLE file.mtime FROM #project) or a JsonLogic object as JSON")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 50, max 1000)")),
	), s.advancedSearch)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a document. Fails if it exists unless overwrite is true."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path for the document")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content")),
		mcp.WithBoolean("overwrite", mcp.Description("Replace an existing document")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("append_note",
		mcp.WithDescription("Append content to the end of a document, creating it when absent."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content to append")),
		mcp.WithBoolean("add_newline", mcp.Description("Start on a new line when the body does not end with one (default true)")),
	), s.appendNote)

	s.mcp.AddTool(mcp.NewTool("patch_note",
		mcp.WithDescription("Edit one heading section, block, frontmatter key or the whole document. "+
			"Read the contract via get_patch_contract or the "+contractURI+" resource first."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path")),
		mcp.WithString("operation", mcp.Required(), mcp.Enum("replace", "append", "prepend", "insert-after")),
		mcp.WithString("target_type", mcp.Required(),
			mcp.Enum(docpatch.KindHeading, docpatch.KindBlock, docpatch.KindFrontmatter, docpatch.KindContent)),
		mcp.WithString("target", mcp.Description("Heading path (A::B), block id, or frontmatter key")),
		mcp.WithString("content", mcp.Description("Content to apply")),
	), s.patchNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("list_history",
		mcp.WithDescription("List recent write operations, oldest first, with their pre-images."),
		mcp.WithNumber("limit", mcp.Description("Only the most recent N entries")),
	), s.listHistory)

	s.mcp.AddTool(mcp.NewTool("revert_operation",
		mcp.WithDescription("Restore the document state captured before a history entry."),
		mcp.WithNumber("seq", mcp.Required(), mcp.Description("History sequence number")),
	), s.revertOperation)

	s.mcp.AddTool(mcp.NewTool("clear_history",
		mcp.WithDescription("Drop all retained history entries."),
	), s.clearHistory)

	s.mcp.AddTool(mcp.NewTool("get_patch_contract",
		mcp.WithDescription("Returns how patch targets and operations address a document."),
	), s.getPatchContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Patch Targets",
			mcp.WithResourceDescription("How heading, block and frontmatter targets address a document."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if req.GetString("format", "markdown") == "json" {
		note, err := s.svc.Note(ctx, path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(note)
	}
	body, err := s.svc.Get(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(body), nil
}

func (s *Server) getDocumentMap(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	outline, err := s.svc.Outline(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(outline)
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files, err := s.svc.List(ctx, req.GetString("folder", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.Join(files, "\n")), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("context_length", 100))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) advancedSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	queryType, err := req.RequireString("query_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.AdvancedSearch(ctx, queryType, query, req.GetInt("limit", noteservice.DefaultQueryLimit))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, err := s.svc.Create(ctx, path, content, req.GetBool("overwrite", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (seq %d)", entry.Path, entry.Seq)), nil
}

func (s *Server) appendNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, err := s.svc.Append(ctx, path, content, req.GetBool("add_newline", true))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("appended: %s (seq %d)", entry.Path, entry.Seq)), nil
}

func (s *Server) patchNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opName, err := req.RequireString("operation")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := req.RequireString("target_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	op, err := docpatch.ParseOperation(opName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := s.svc.ParseTarget(kind, req.GetString("target", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, err := s.svc.Patch(ctx, path, target, op, req.GetString("content", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("patched: %s %s %s (seq %d)", entry.Path, op, target, entry.Seq)), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, err := s.svc.Delete(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s (seq %d)", entry.Path, entry.Seq)), nil
}

func (s *Server) listHistory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.History(req.GetInt("limit", 0)))
}

func (s *Server) revertOperation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	seq := req.GetInt("seq", 0)
	if seq <= 0 {
		return mcp.NewToolResultError("seq must be a positive integer"), nil
	}
	entry, err := s.svc.Revert(ctx, uint64(seq))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("reverted seq %d: %s %s (seq %d)", seq, entry.Op, entry.Path, entry.Seq)), nil
}

func (s *Server) clearHistory(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.svc.ClearHistory(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("history cleared"), nil
}

func (s *Server) getPatchContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PatchContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     PatchContract,
		},
	}, nil
}
