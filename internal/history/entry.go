// Package history keeps a bounded, in-memory log of vault write operations
// together with the document state they replaced.
package history

import (
	"context"
	"time"
)

// Op is the kind of write an entry records.
type Op string

const (
	OpCreate Op = "create"
	OpAppend Op = "append"
	OpPatch  Op = "patch"
	OpDelete Op = "delete"
)

// Status tracks whether the write an entry describes reached the vault.
type Status string

const (
	// StatusAttempted is set when the entry is recorded, before the push.
	StatusAttempted Status = "attempted"
	StatusCommitted Status = "committed"
	StatusFailed    Status = "failed"
)

// Entry is one recorded write. PreImage is nil when the document did not
// exist before the operation, which is distinct from an empty document.
type Entry struct {
	Seq        uint64            `json:"seq"`
	ID         string            `json:"id"`
	Op         Op                `json:"operation"`
	Path       string            `json:"path"`
	PreImage   *string           `json:"previous_content"`
	NewContent *string           `json:"new_content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Status     Status            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Existed reports whether the document existed before the operation.
func (e Entry) Existed() bool { return e.PreImage != nil }

// clone copies the entry so callers cannot reach the ring's storage.
func (e Entry) clone() Entry {
	if e.Metadata != nil {
		md := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		e.Metadata = md
	}
	return e
}

// Sink persists entries outside the process. Implementations are optional
// and their failures never affect the ring.
type Sink interface {
	Append(ctx context.Context, e Entry) error
	SetStatus(ctx context.Context, seq uint64, status Status) error
	Clear(ctx context.Context) error
}

// StringPtr returns a pointer to s, for building pre-images.
func StringPtr(s string) *string { return &s }
