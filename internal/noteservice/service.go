// Package noteservice orchestrates vault writes: it validates the request,
// fetches the current document, computes the new body, records a history
// entry and pushes the result upstream.
package noteservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/starford/vaultgate/internal/apperr"
	"github.com/starford/vaultgate/internal/docpatch"
	"github.com/starford/vaultgate/internal/history"
	"github.com/starford/vaultgate/internal/metrics"
	"github.com/starford/vaultgate/internal/parser"
	"github.com/starford/vaultgate/internal/vault"
)

// Notifier receives change notifications after writes.
type Notifier interface {
	PublishVaultEvent(kind, path string)
	PublishHistoryEvent()
}

// Options configures optional collaborators of a Service.
type Options struct {
	// Sink persists history entries. Failures are logged, never returned.
	Sink history.Sink
	// Notifier is told about committed writes and history changes.
	Notifier Notifier
	// HeadingDelimiter separates heading path segments; default "::".
	HeadingDelimiter string
	Logger           *slog.Logger
}

// Note is the structured view of a document.
type Note struct {
	Path        string         `json:"path"`
	Content     string         `json:"content"`
	Title       string         `json:"title"`
	Frontmatter map[string]any `json:"frontmatter"`
	Tags        []string       `json:"tags"`
	Links       []string       `json:"links"`
	Checksum    string         `json:"checksum"`
}

// Service coordinates the vault store and the history ring.
type Service struct {
	store  vault.Store
	ring   *history.Ring
	sink   history.Sink
	notify Notifier
	delim  string
	logger *slog.Logger

	// locks serializes read-modify-write cycles per path so a pre-image is
	// never stale.
	locks pathLocks
}

// NewService creates a new note service.
func NewService(store vault.Store, ring *history.Ring, opts Options) *Service {
	s := &Service{
		store:  store,
		ring:   ring,
		sink:   opts.Sink,
		notify: opts.Notifier,
		delim:  opts.HeadingDelimiter,
		logger: opts.Logger,
	}
	if s.delim == "" {
		s.delim = docpatch.DefaultHeadingDelimiter
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// HeadingDelimiter returns the configured heading path separator.
func (s *Service) HeadingDelimiter() string { return s.delim }

// ParseTarget builds a patch target using the configured heading delimiter.
func (s *Service) ParseTarget(kind, value string) (docpatch.Target, error) {
	return docpatch.ParseTarget(kind, value, s.delim)
}

// ---------------------------------------------------------------------------
// Reads

// Get returns the raw markdown of a document.
func (s *Service) Get(ctx context.Context, path string) (string, error) {
	p, err := vault.CleanPath(path)
	if err != nil {
		return "", err
	}
	body, ok, err := s.store.Get(ctx, p)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("document %s: %w", p, apperr.ErrNotFound)
	}
	return body, nil
}

// Note returns the structured view of a document.
func (s *Service) Note(ctx context.Context, path string) (*Note, error) {
	body, err := s.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	res := parser.Parse(body)
	p, _ := vault.CleanPath(path)
	return &Note{
		Path:        p,
		Content:     body,
		Title:       res.Title,
		Frontmatter: res.Frontmatter,
		Tags:        res.Tags,
		Links:       res.Links,
		Checksum:    res.Checksum,
	}, nil
}

// Outline returns the addressable structure of a document.
func (s *Service) Outline(ctx context.Context, path string) (docpatch.Outline, error) {
	body, err := s.Get(ctx, path)
	if err != nil {
		return docpatch.Outline{}, err
	}
	return docpatch.BuildOutline(body), nil
}

// List returns the entries of a vault directory.
func (s *Service) List(ctx context.Context, dir string) ([]string, error) {
	d, err := vault.CleanDir(dir)
	if err != nil {
		return nil, err
	}
	return s.store.List(ctx, d)
}

// Search runs a plain text search across the vault.
func (s *Service) Search(ctx context.Context, query string, contextLength int) ([]vault.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return []vault.SearchResult{}, nil
	}
	if contextLength < 0 {
		contextLength = 0
	}
	return s.store.Search(ctx, query, contextLength)
}

// Advanced query result limits.
const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 1000
)

// AdvancedSearch runs a Dataview DQL or JsonLogic query upstream and returns
// at most limit results. A zero limit means DefaultQueryLimit. JsonLogic
// queries must be a JSON object.
func (s *Service) AdvancedSearch(ctx context.Context, queryType, query string, limit int) ([]vault.QueryResult, error) {
	switch queryType {
	case vault.QueryDataview:
		if strings.TrimSpace(query) == "" {
			return nil, fmt.Errorf("%w: empty dataview query", apperr.ErrInvalidQuery)
		}
	case vault.QueryJSONLogic:
		var expr map[string]any
		if err := json.Unmarshal([]byte(query), &expr); err != nil || expr == nil {
			return nil, fmt.Errorf("%w: jsonlogic query must be a JSON object", apperr.ErrInvalidQuery)
		}
	default:
		return nil, fmt.Errorf("%w: unknown query type %q", apperr.ErrInvalidQuery, queryType)
	}
	if limit == 0 {
		limit = DefaultQueryLimit
	}
	if limit < 1 || limit > MaxQueryLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", apperr.ErrInvalidQuery, MaxQueryLimit)
	}

	res, err := s.store.Query(ctx, queryType, query)
	if err != nil {
		return nil, err
	}
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// Health pings the upstream store.
func (s *Service) Health(ctx context.Context) (vault.Health, error) {
	return s.store.Ping(ctx)
}

// ---------------------------------------------------------------------------
// Writes

// Create writes a new document. An existing document is only replaced when
// overwrite is set; otherwise apperr.ErrAlreadyExists is returned.
func (s *Service) Create(ctx context.Context, path, content string, overwrite bool) (history.Entry, error) {
	p, err := vault.CleanPath(path)
	if err != nil {
		return history.Entry{}, err
	}
	unlock, err := s.lock(ctx, p)
	if err != nil {
		return history.Entry{}, err
	}
	defer unlock()

	pre, err := s.fetch(ctx, p)
	if err != nil {
		return history.Entry{}, err
	}
	if pre != nil && !overwrite {
		metrics.RecordOperation(string(history.OpCreate), metrics.OutcomeRejected)
		return history.Entry{}, fmt.Errorf("document %s: %w", p, apperr.ErrAlreadyExists)
	}
	return s.commit(ctx, history.OpCreate, p, pre, &content, map[string]string{
		"overwrite": strconv.FormatBool(overwrite),
	})
}

// Append adds content to the end of a document, creating it when absent.
// With addNewline a line break separates content from a body that does not
// already end in one.
func (s *Service) Append(ctx context.Context, path, content string, addNewline bool) (history.Entry, error) {
	p, err := vault.CleanPath(path)
	if err != nil {
		return history.Entry{}, err
	}
	unlock, err := s.lock(ctx, p)
	if err != nil {
		return history.Entry{}, err
	}
	defer unlock()

	pre, err := s.fetch(ctx, p)
	if err != nil {
		return history.Entry{}, err
	}
	next := content
	if pre != nil {
		next = *pre
		if addNewline && next != "" && !strings.HasSuffix(next, "\n") {
			next += "\n"
		}
		next += content
	}
	return s.commit(ctx, history.OpAppend, p, pre, &next, nil)
}

// Patch applies a targeted edit. Malformed targets fail before the document
// is fetched; unresolved targets fail without recording anything.
func (s *Service) Patch(ctx context.Context, path string, target docpatch.Target, op docpatch.Operation, content string) (history.Entry, error) {
	p, err := vault.CleanPath(path)
	if err != nil {
		return history.Entry{}, err
	}
	if err := docpatch.Validate(target); err != nil {
		return history.Entry{}, err
	}
	if !op.Valid() {
		return history.Entry{}, fmt.Errorf("%w: unknown operation %v", apperr.ErrMalformedTarget, op)
	}

	unlock, err := s.lock(ctx, p)
	if err != nil {
		return history.Entry{}, err
	}
	defer unlock()

	pre, err := s.fetch(ctx, p)
	if err != nil {
		return history.Entry{}, err
	}
	if pre == nil {
		return history.Entry{}, fmt.Errorf("document %s: %w", p, apperr.ErrNotFound)
	}
	next, err := docpatch.Apply(*pre, target, op, content)
	if err != nil {
		metrics.RecordOperation(string(history.OpPatch), metrics.OutcomeRejected)
		return history.Entry{}, err
	}
	return s.commit(ctx, history.OpPatch, p, pre, &next, map[string]string{
		"target":    target.String(),
		"operation": op.String(),
	})
}

// Delete removes a document. Deleting an absent document records nothing.
func (s *Service) Delete(ctx context.Context, path string) (history.Entry, error) {
	p, err := vault.CleanPath(path)
	if err != nil {
		return history.Entry{}, err
	}
	unlock, err := s.lock(ctx, p)
	if err != nil {
		return history.Entry{}, err
	}
	defer unlock()

	pre, err := s.fetch(ctx, p)
	if err != nil {
		return history.Entry{}, err
	}
	if pre == nil {
		return history.Entry{}, fmt.Errorf("document %s: %w", p, apperr.ErrNotFound)
	}
	return s.commit(ctx, history.OpDelete, p, pre, nil, nil)
}

// Revert restores the pre-image captured by history entry seq. An entry
// without a pre-image is reverted by deleting the document.
func (s *Service) Revert(ctx context.Context, seq uint64) (history.Entry, error) {
	src, err := s.HistoryEntry(seq)
	if err != nil {
		return history.Entry{}, err
	}
	meta := map[string]string{"revert_of": strconv.FormatUint(seq, 10)}

	unlock, err := s.lock(ctx, src.Path)
	if err != nil {
		return history.Entry{}, err
	}
	defer unlock()

	cur, err := s.fetch(ctx, src.Path)
	if err != nil {
		return history.Entry{}, err
	}
	if src.PreImage == nil {
		if cur == nil {
			return history.Entry{}, fmt.Errorf("document %s: %w", src.Path, apperr.ErrNotFound)
		}
		return s.commit(ctx, history.OpDelete, src.Path, cur, nil, meta)
	}
	restored := *src.PreImage
	return s.commit(ctx, history.OpCreate, src.Path, cur, &restored, meta)
}

// lock waits for exclusive write access to p, giving up when ctx is done.
func (s *Service) lock(ctx context.Context, p string) (func(), error) {
	unlock, err := s.locks.acquire(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("document %s: waiting for a concurrent write: %w", p, err)
	}
	return unlock, nil
}

// fetch returns the current body of p, or nil when the document is absent.
func (s *Service) fetch(ctx context.Context, p string) (*string, error) {
	body, ok, err := s.store.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &body, nil
}

// commit records the entry, pushes the change upstream and settles the
// entry's status. next == nil deletes the document. Callers hold the lock for p.
func (s *Service) commit(ctx context.Context, op history.Op, p string, pre, next *string, meta map[string]string) (history.Entry, error) {
	entry := history.Entry{Op: op, Path: p, PreImage: pre, NewContent: next, Metadata: meta}
	seq := s.ring.Record(entry)
	if recorded, ok := s.ring.Get(seq); ok {
		entry = recorded
	} else {
		entry.Seq = seq
	}
	if s.sink != nil {
		if err := s.sink.Append(ctx, entry); err != nil {
			s.logger.Warn("history: journal append failed",
				slog.Uint64("seq", seq), slog.String("error", err.Error()))
		}
	}

	var pushErr error
	if next == nil {
		pushErr = s.store.Delete(ctx, p)
	} else {
		pushErr = s.store.Put(ctx, p, *next)
	}

	entry.Status = history.StatusCommitted
	if pushErr != nil {
		entry.Status = history.StatusFailed
	}
	s.ring.SetStatus(seq, entry.Status)
	if s.sink != nil {
		// The push already happened; a cancelled request must not leave the
		// journal entry unsettled.
		if err := s.sink.SetStatus(context.WithoutCancel(ctx), seq, entry.Status); err != nil {
			s.logger.Warn("history: journal status update failed",
				slog.Uint64("seq", seq), slog.String("error", err.Error()))
		}
	}
	metrics.RecordOperation(string(op), string(entry.Status))
	metrics.SetHistoryEntries(s.ring.Len())

	if s.notify != nil {
		s.notify.PublishHistoryEvent()
	}
	if pushErr != nil {
		s.logger.Error("vault: push failed",
			slog.String("op", string(op)),
			slog.String("path", p),
			slog.Uint64("seq", seq),
			slog.String("error", pushErr.Error()))
		return entry, pushErr
	}

	if s.notify != nil {
		kind := vault.ChangeUpdated
		switch {
		case next == nil:
			kind = vault.ChangeDeleted
		case pre == nil:
			kind = vault.ChangeCreated
		}
		s.notify.PublishVaultEvent(kind, p)
	}
	s.logger.Info("vault: write committed",
		slog.String("op", string(op)),
		slog.String("path", p),
		slog.Uint64("seq", seq))
	return entry, nil
}

// ---------------------------------------------------------------------------
// History

// History returns up to limit of the most recent entries, oldest first.
// limit <= 0 returns everything retained.
func (s *Service) History(limit int) []history.Entry {
	if limit <= 0 {
		return s.ring.List()
	}
	return s.ring.Last(limit)
}

// HistoryCapacity is the number of entries the ring retains.
func (s *Service) HistoryCapacity() int { return s.ring.Cap() }

// HistoryEntry returns the entry with the given sequence number.
func (s *Service) HistoryEntry(seq uint64) (history.Entry, error) {
	e, ok := s.ring.Get(seq)
	if !ok {
		return history.Entry{}, fmt.Errorf("history entry %d: %w", seq, apperr.ErrNotFound)
	}
	return e, nil
}

// ClearHistory drops every retained entry. Sequence numbers keep increasing.
func (s *Service) ClearHistory(ctx context.Context) error {
	s.ring.Clear()
	metrics.SetHistoryEntries(0)
	if s.notify != nil {
		s.notify.PublishHistoryEvent()
	}
	if s.sink != nil {
		if err := s.sink.Clear(ctx); err != nil {
			return fmt.Errorf("history: clear journal: %w", err)
		}
	}
	return nil
}
