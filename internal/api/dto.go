package api

import (
	"bytes"
	"encoding/json"
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/vaultgate/internal/docpatch"
	"github.com/starford/vaultgate/internal/history"
	"github.com/starford/vaultgate/internal/vault"
)

// CreateRequest is the request body for creating a document.
type CreateRequest struct {
	Content   string `json:"content" example:"# Hello\nWorld"`
	Overwrite bool   `json:"overwrite" example:"false"`
}

// Validate validates the create request.
func (r *CreateRequest) Validate() error { return nil }

// AppendRequest is the request body for appending to a document.
type AppendRequest struct {
	Content string `json:"content" example:"- new item" validate:"required"`
	// AddNewline separates content from a body not ending in a line break.
	// Defaults to true.
	AddNewline *bool `json:"add_newline,omitempty" example:"true"`
}

// Newline reports the effective add_newline setting.
func (r *AppendRequest) Newline() bool {
	return r.AddNewline == nil || *r.AddNewline
}

// Validate validates the append request.
func (r *AppendRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Content, validation.Required),
	)
}

// PatchRequest is the request body for a targeted edit.
type PatchRequest struct {
	Operation   string `json:"operation" example:"append" validate:"required"`
	Target      string `json:"target" example:"heading" validate:"required"`
	TargetValue string `json:"target_value" example:"Project::Tasks"`
	Content     string `json:"content" example:"- [ ] write tests"`
}

// Validate validates the patch request.
func (r *PatchRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Operation, validation.Required,
			validation.In("replace", "append", "prepend", "insert-after")),
		validation.Field(&r.Target, validation.Required,
			validation.In(docpatch.KindHeading, docpatch.KindBlock, docpatch.KindFrontmatter, docpatch.KindContent, "document")),
		validation.Field(&r.TargetValue,
			validation.When(r.Target == docpatch.KindHeading || r.Target == docpatch.KindBlock, validation.Required)),
	)
}

// AdvancedSearchRequest is the request body for a Dataview DQL or JsonLogic
// query. Query is a string for dataview and an object for jsonlogic.
type AdvancedSearchRequest struct {
	QueryType string          `json:"query_type" example:"dataview" validate:"required"`
	Query     json.RawMessage `json:"query" swaggertype:"string" example:"TABLE file.mtime FROM #project"`
	Limit     int             `json:"limit" example:"50"`
}

// Validate validates the advanced search request.
func (r *AdvancedSearchRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.QueryType, validation.Required, validation.In(vault.QueryDataview, vault.QueryJSONLogic)),
		validation.Field(&r.Query, validation.Required),
		validation.Field(&r.Limit, validation.Min(0), validation.Max(1000)),
	)
}

// QueryText returns the query in the form the upstream expects: DQL text or
// the JsonLogic object as JSON.
func (r *AdvancedSearchRequest) QueryText() (string, error) {
	raw := bytes.TrimSpace(r.Query)
	if r.QueryType == vault.QueryJSONLogic {
		if len(raw) == 0 || raw[0] != '{' {
			return "", errors.New("query: jsonlogic queries must be an object, not a string")
		}
		return string(raw), nil
	}
	var dql string
	if err := json.Unmarshal(raw, &dql); err != nil {
		return "", errors.New("query: dataview queries must be a string")
	}
	return dql, nil
}

// AdvancedSearchResponse wraps advanced query results.
type AdvancedSearchResponse struct {
	QueryType string              `json:"query_type" example:"dataview"`
	Query     json.RawMessage     `json:"query" swaggertype:"string"`
	Results   []vault.QueryResult `json:"results" validate:"required"`
	Total     int                 `json:"total" example:"2"`
}

// ListResponse is the directory listing response.
type ListResponse struct {
	Path  string   `json:"path" example:"Projects/"`
	Files []string `json:"files" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Query   string               `json:"query" validate:"required"`
	Results []vault.SearchResult `json:"results" validate:"required"`
}

// HistoryResponse wraps the retained history window.
type HistoryResponse struct {
	Entries  []history.Entry `json:"entries" validate:"required"`
	Count    int             `json:"count" example:"3"`
	Capacity int             `json:"capacity" example:"10"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string       `json:"status" example:"ok"`
	Upstream vault.Health `json:"upstream"`
}
