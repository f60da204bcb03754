// Package testutil provides shared test helpers: an in-memory vault store,
// temporary vault directories and journals.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/starford/vaultgate/internal/apperr"
	"github.com/starford/vaultgate/internal/journal"
	"github.com/starford/vaultgate/internal/vault"
)

// MemStore is an in-memory vault.Store. Setting FailGet, FailPut or
// FailDelete makes the matching call return an error wrapping
// apperr.ErrTransport.
type MemStore struct {
	mu         sync.Mutex
	docs       map[string]string
	FailGet    bool
	FailPut    bool
	FailDelete bool
	Gets       int
	Puts       int

	// QueryResults is what Query returns; LastQuery is "type:query" of the
	// most recent call.
	QueryResults []vault.QueryResult
	LastQuery    string
}

var _ vault.Store = (*MemStore)(nil)

// NewMemStore returns a store seeded with docs.
func NewMemStore(docs map[string]string) *MemStore {
	m := &MemStore{docs: map[string]string{}}
	for k, v := range docs {
		m.docs[k] = v
	}
	return m
}

// Doc returns the stored body of path.
func (m *MemStore) Doc(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.docs[path]
	return body, ok
}

// Fail toggles every injected failure at once.
func (m *MemStore) Fail(on bool) {
	m.mu.Lock()
	m.FailGet, m.FailPut, m.FailDelete = on, on, on
	m.mu.Unlock()
}

func transport(op string) error {
	return fmt.Errorf("%w: injected %s failure", apperr.ErrTransport, op)
}

func (m *MemStore) Get(_ context.Context, path string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	if m.FailGet {
		return "", false, transport("get")
	}
	body, ok := m.docs[path]
	return body, ok, nil
}

func (m *MemStore) Put(_ context.Context, path, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Puts++
	if m.FailPut {
		return transport("put")
	}
	m.docs[path] = body
	return nil
}

func (m *MemStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete {
		return transport("delete")
	}
	if _, ok := m.docs[path]; !ok {
		return fmt.Errorf("delete %s: %w", path, apperr.ErrNotFound)
	}
	delete(m.docs, path)
	return nil
}

func (m *MemStore) List(_ context.Context, dir string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := ""
	if dir != "" {
		prefix = strings.TrimSuffix(dir, "/") + "/"
	}
	seen := map[string]struct{}{}
	out := []string{}
	for p := range m.docs {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		name := strings.TrimPrefix(p, prefix)
		if i := strings.Index(name, "/"); i >= 0 {
			name = name[:i+1]
		}
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	if len(out) == 0 && prefix != "" {
		return nil, fmt.Errorf("list %s: %w", dir, apperr.ErrNotFound)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemStore) Search(_ context.Context, query string, _ int) ([]vault.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []vault.SearchResult{}
	for p, body := range m.docs {
		if i := strings.Index(body, query); i >= 0 {
			out = append(out, vault.SearchResult{
				Filename: p,
				Score:    1,
				Matches:  []vault.SearchMatch{{Start: i, End: i + len(query), Context: body}},
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

// Query records the query and returns QueryResults, or apperr.ErrUnsupported
// when QueryResults is nil.
func (m *MemStore) Query(_ context.Context, queryType, query string) ([]vault.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastQuery = queryType + ":" + query
	if m.QueryResults == nil {
		return nil, fmt.Errorf("memory store: %w", apperr.ErrUnsupported)
	}
	return append([]vault.QueryResult(nil), m.QueryResults...), nil
}

func (m *MemStore) Ping(_ context.Context) (vault.Health, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailGet {
		return vault.Health{Backend: "memory", Error: "injected"}, transport("ping")
	}
	return vault.Health{Connected: true, Backend: "memory"}, nil
}

// TestJournal creates a temporary SQLite journal that is automatically cleaned up.
func TestJournal(t *testing.T, keep int) *journal.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "vaultgate-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := journal.Open(dbFile.Name(), keep)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a file system store.
func TestVault(t *testing.T) (string, *vault.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := vault.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}
