package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/vaultgate/internal/apperr"
)

const tmpPrefix = ".vaultgate-tmp-"

// FS is a Store backed by a vault directory on the local file system.
type FS struct {
	root string // absolute path to vault directory
}

var _ Store = (*FS)(nil)

// NewFS creates a store rooted at the given directory, which must exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("vault: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("vault: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute vault directory.
func (f *FS) Root() string { return f.root }

// safePath resolves a vault path against the root and rejects any result
// that escapes it.
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	abs := filepath.Join(f.root, filepath.FromSlash(rel))
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("%w: %s escapes the vault root", apperr.ErrInvalidPath, rel)
	}
	return abs, nil
}

func (f *FS) docPath(p string) (string, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	return f.safePath(clean)
}

// Get reads a document.
func (f *FS) Get(_ context.Context, path string) (string, bool, error) {
	abs, err := f.docPath(path)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: read %s: %v", apperr.ErrTransport, path, err)
	}
	return string(data), true, nil
}

// Put writes atomically: temp file, fsync, rename.
func (f *FS) Put(_ context.Context, path, body string) error {
	abs, err := f.docPath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir: %v", apperr.ErrTransport, err)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", apperr.ErrTransport, err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.WriteString(body); err != nil {
		return fmt.Errorf("%w: write temp: %v", apperr.ErrTransport, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: fsync: %v", apperr.ErrTransport, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp: %v", apperr.ErrTransport, err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("%w: rename: %v", apperr.ErrTransport, err)
	}
	success = true
	return nil
}

// Delete removes a document.
func (f *FS) Delete(_ context.Context, path string) error {
	abs, err := f.docPath(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("vault: delete %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", apperr.ErrTransport, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", apperr.ErrInvalidPath, path)
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("%w: delete %s: %v", apperr.ErrTransport, path, err)
	}
	return nil
}

// List returns the direct entries of dir, sub-directories suffixed with "/".
// Hidden entries are skipped.
func (f *FS) List(_ context.Context, dir string) ([]string, error) {
	clean, err := CleanDir(dir)
	if err != nil {
		return nil, err
	}
	abs, err := f.safePath(clean)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("vault: list %s: %w", dir, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", apperr.ErrTransport, dir, err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Search walks every markdown file and reports case-insensitive substring
// matches with contextLength bytes of surrounding text on each side.
func (f *FS) Search(ctx context.Context, query string, contextLength int) ([]SearchResult, error) {
	needle := strings.ToLower(query)
	if needle == "" {
		return []SearchResult{}, nil
	}
	out := []SearchResult{}
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != f.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		matches := findMatches(string(data), needle, contextLength)
		if len(matches) == 0 {
			return nil
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, SearchResult{
			Filename: filepath.ToSlash(rel),
			Score:    float64(len(matches)),
			Matches:  matches,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", apperr.ErrTransport, err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func findMatches(text, needle string, contextLength int) []SearchMatch {
	lower := strings.ToLower(text)
	if len(lower) != len(text) {
		// Case folding changed byte offsets; fall back to exact matching.
		lower, needle = text, strings.TrimSpace(needle)
	}
	var out []SearchMatch
	for from := 0; ; {
		i := strings.Index(lower[from:], needle)
		if i < 0 {
			return out
		}
		start := from + i
		end := start + len(needle)
		lo, hi := max(0, start-contextLength), min(len(text), end+contextLength)
		out = append(out, SearchMatch{Start: start, End: end, Context: text[lo:hi]})
		from = end
	}
}

// Query is not available on a plain directory: Dataview runs inside
// Obsidian.
func (f *FS) Query(_ context.Context, queryType, _ string) ([]QueryResult, error) {
	return nil, fmt.Errorf("%s query on fs backend: %w", queryType, apperr.ErrUnsupported)
}

// Ping checks that the vault directory is still there.
func (f *FS) Ping(_ context.Context) (Health, error) {
	h := Health{Backend: "fs"}
	if _, err := os.Stat(f.root); err != nil {
		h.Error = err.Error()
		return h, fmt.Errorf("%w: %v", apperr.ErrTransport, err)
	}
	h.Connected = true
	return h, nil
}
