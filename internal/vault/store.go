// Package vault defines the document store the gateway fronts and its
// adapters: the Obsidian Local REST API and a plain directory on disk.
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/starford/vaultgate/internal/apperr"
)

// Store is the external vault. Paths are vault-relative and /-separated.
// Failures to reach the backend wrap apperr.ErrTransport.
type Store interface {
	// Get returns the document body and whether it exists. A missing
	// document is not an error.
	Get(ctx context.Context, path string) (string, bool, error)
	// Put creates or overwrites the document.
	Put(ctx context.Context, path, body string) error
	// Delete removes the document, returning apperr.ErrNotFound if absent.
	Delete(ctx context.Context, path string) error
	// List returns the entries of dir; sub-directories end with "/".
	List(ctx context.Context, dir string) ([]string, error)
	// Search runs a plain text search across documents.
	Search(ctx context.Context, query string, contextLength int) ([]SearchResult, error)
	// Query runs a Dataview DQL or JsonLogic query. query is the DQL text
	// or the JSON encoded JsonLogic expression. Backends without a query
	// engine return apperr.ErrUnsupported; rejected queries wrap
	// apperr.ErrInvalidQuery.
	Query(ctx context.Context, queryType, query string) ([]QueryResult, error)
	// Ping reports backend reachability and version details.
	Ping(ctx context.Context) (Health, error)
}

// SearchMatch is one hit inside a document.
type SearchMatch struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Context string `json:"context"`
}

// SearchResult groups the hits of one document.
type SearchResult struct {
	Filename string        `json:"filename"`
	Score    float64       `json:"score"`
	Matches  []SearchMatch `json:"matches"`
}

// Advanced query languages.
const (
	QueryDataview  = "dataview"
	QueryJSONLogic = "jsonlogic"
)

// QueryResult is one document matched by an advanced query. Result is the
// value the query produced for it, passed through as raw JSON.
type QueryResult struct {
	Filename string          `json:"filename"`
	Result   json.RawMessage `json:"result"`
}

// Health describes the backend.
type Health struct {
	Connected       bool   `json:"connected"`
	Backend         string `json:"backend"`
	ObsidianVersion string `json:"obsidian_version,omitempty"`
	PluginVersion   string `json:"plugin_version,omitempty"`
	Error           string `json:"error,omitempty"`
}

// CleanPath validates a document path and returns its canonical form:
// no leading slash, no empty, "." or ".." segments, no trailing slash.
// Segments are case-sensitive and left untouched otherwise.
func CleanPath(p string) (string, error) {
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", fmt.Errorf("%w: empty path", apperr.ErrInvalidPath)
	}
	if strings.HasSuffix(p, "/") {
		return "", fmt.Errorf("%w: %q names a directory", apperr.ErrInvalidPath, p)
	}
	if strings.ContainsRune(p, '\\') || strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("%w: %q contains a forbidden character", apperr.ErrInvalidPath, p)
	}
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".", "..":
			return "", fmt.Errorf("%w: %q has an empty or relative segment", apperr.ErrInvalidPath, p)
		}
	}
	return p, nil
}

// CleanDir is CleanPath for directory listings: the root may be given as
// "" or "/", and a trailing slash is allowed.
func CleanDir(dir string) (string, error) {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return "", nil
	}
	return CleanPath(dir)
}
