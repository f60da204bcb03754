package vault

import (
	"context"
	"time"

	"github.com/starford/vaultgate/internal/metrics"
)

// Instrumented wraps a Store and records the latency of every call.
type Instrumented struct {
	next Store
}

var _ Store = (*Instrumented)(nil)

// WithMetrics returns s wrapped with upstream latency metrics.
func WithMetrics(s Store) *Instrumented {
	return &Instrumented{next: s}
}

func (m *Instrumented) Get(ctx context.Context, path string) (body string, ok bool, err error) {
	defer func(start time.Time) { metrics.ObserveUpstream("get", start, err) }(time.Now())
	return m.next.Get(ctx, path)
}

func (m *Instrumented) Put(ctx context.Context, path, body string) (err error) {
	defer func(start time.Time) { metrics.ObserveUpstream("put", start, err) }(time.Now())
	return m.next.Put(ctx, path, body)
}

func (m *Instrumented) Delete(ctx context.Context, path string) (err error) {
	defer func(start time.Time) { metrics.ObserveUpstream("delete", start, err) }(time.Now())
	return m.next.Delete(ctx, path)
}

func (m *Instrumented) List(ctx context.Context, dir string) (out []string, err error) {
	defer func(start time.Time) { metrics.ObserveUpstream("list", start, err) }(time.Now())
	return m.next.List(ctx, dir)
}

func (m *Instrumented) Search(ctx context.Context, query string, contextLength int) (out []SearchResult, err error) {
	defer func(start time.Time) { metrics.ObserveUpstream("search", start, err) }(time.Now())
	return m.next.Search(ctx, query, contextLength)
}

func (m *Instrumented) Query(ctx context.Context, queryType, query string) (out []QueryResult, err error) {
	defer func(start time.Time) { metrics.ObserveUpstream("query", start, err) }(time.Now())
	return m.next.Query(ctx, queryType, query)
}

func (m *Instrumented) Ping(ctx context.Context) (h Health, err error) {
	defer func(start time.Time) { metrics.ObserveUpstream("ping", start, err) }(time.Now())
	return m.next.Ping(ctx)
}
