package vault

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/starford/vaultgate/internal/apperr"
)

const maxErrorBody = 4 << 10

// RemoteOptions configures a Remote.
type RemoteOptions struct {
	URL                string
	APIKey             string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Remote is a Store backed by the Obsidian Local REST API plugin.
type Remote struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ Store = (*Remote)(nil)

// NewRemote creates a client for the REST API at opts.URL.
func NewRemote(opts RemoteOptions) (*Remote, error) {
	u, err := url.Parse(opts.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("vault: invalid upstream url %q", opts.URL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureSkipVerify {
		// The plugin serves HTTPS with a self-signed certificate.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in
	}
	return &Remote{
		baseURL: strings.TrimRight(opts.URL, "/"),
		apiKey:  opts.APIKey,
		client:  &http.Client{Timeout: timeout, Transport: transport},
	}, nil
}

func escapePath(p string) string {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func (r *Remote) do(ctx context.Context, method, path string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("vault: build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", apperr.ErrTransport, method, path, err)
	}
	return resp, nil
}

// upstreamMessage reads the error text of a failed response, preferring the
// plugin's JSON "message" field.
func upstreamMessage(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var apiErr struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &apiErr) == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	return strings.TrimSpace(string(b))
}

// statusError turns an unexpected upstream response into a transport error.
func statusError(resp *http.Response) error {
	return fmt.Errorf("%w: upstream %s %s: %d %s", apperr.ErrTransport,
		resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, upstreamMessage(resp))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}

// Get fetches the raw markdown of a document.
func (r *Remote) Get(ctx context.Context, path string) (string, bool, error) {
	resp, err := r.do(ctx, http.MethodGet, "/vault/"+escapePath(path), nil,
		http.Header{"Accept": {"text/markdown"}})
	if err != nil {
		return "", false, err
	}
	defer drain(resp)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", false, nil
	case resp.StatusCode >= 300:
		return "", false, statusError(resp)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("%w: read body: %v", apperr.ErrTransport, err)
	}
	return string(b), true, nil
}

// Put writes the whole document.
func (r *Remote) Put(ctx context.Context, path, body string) error {
	resp, err := r.do(ctx, http.MethodPut, "/vault/"+escapePath(path), strings.NewReader(body),
		http.Header{"Content-Type": {"text/markdown"}})
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	return nil
}

// Delete removes a document.
func (r *Remote) Delete(ctx context.Context, path string) error {
	resp, err := r.do(ctx, http.MethodDelete, "/vault/"+escapePath(path), nil, nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("vault: delete %s: %w", path, apperr.ErrNotFound)
	case resp.StatusCode == http.StatusMethodNotAllowed:
		return fmt.Errorf("%w: %s is a directory", apperr.ErrInvalidPath, path)
	case resp.StatusCode >= 300:
		return statusError(resp)
	}
	return nil
}

// List returns the entries of a directory.
func (r *Remote) List(ctx context.Context, dir string) ([]string, error) {
	p := "/vault/"
	if d := escapePath(dir); d != "" {
		p += d + "/"
	}
	resp, err := r.do(ctx, http.MethodGet, p, nil, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("vault: list %s: %w", dir, apperr.ErrNotFound)
	case resp.StatusCode >= 300:
		return nil, statusError(resp)
	}
	var out struct {
		Files []string `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode listing: %v", apperr.ErrTransport, err)
	}
	if out.Files == nil {
		out.Files = []string{}
	}
	return out.Files, nil
}

// Search uses the plugin's simple search endpoint.
func (r *Remote) Search(ctx context.Context, query string, contextLength int) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("contextLength", strconv.Itoa(contextLength))
	resp, err := r.do(ctx, http.MethodPost, "/search/simple/?"+q.Encode(), nil, nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}
	var raw []struct {
		Filename string  `json:"filename"`
		Score    float64 `json:"score"`
		Matches  []struct {
			Match struct {
				Start int `json:"start"`
				End   int `json:"end"`
			} `json:"match"`
			Context string `json:"context"`
		} `json:"matches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode search results: %v", apperr.ErrTransport, err)
	}
	out := make([]SearchResult, 0, len(raw))
	for _, item := range raw {
		res := SearchResult{Filename: item.Filename, Score: item.Score, Matches: []SearchMatch{}}
		for _, m := range item.Matches {
			res.Matches = append(res.Matches, SearchMatch{Start: m.Match.Start, End: m.Match.End, Context: m.Context})
		}
		out = append(out, res)
	}
	return out, nil
}

var queryContentTypes = map[string]string{
	QueryDataview:  "application/vnd.olrapi.dataview.dql+txt",
	QueryJSONLogic: "application/vnd.olrapi.jsonlogic+json",
}

// Query posts an advanced query to the plugin's /search/ endpoint. The
// plugin answers 404 when Dataview is not installed.
func (r *Remote) Query(ctx context.Context, queryType, query string) ([]QueryResult, error) {
	ct, ok := queryContentTypes[queryType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown query type %q", apperr.ErrInvalidQuery, queryType)
	}
	resp, err := r.do(ctx, http.MethodPost, "/search/", strings.NewReader(query),
		http.Header{"Content-Type": {ct}, "Accept": {"application/json"}})
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("advanced search unavailable, is Dataview installed: %w", apperr.ErrUnsupported)
	case resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", apperr.ErrInvalidQuery, upstreamMessage(resp))
	case resp.StatusCode >= 300:
		return nil, statusError(resp)
	}
	out := []QueryResult{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode query results: %v", apperr.ErrTransport, err)
	}
	return out, nil
}

// Ping queries the plugin status endpoint.
func (r *Remote) Ping(ctx context.Context) (Health, error) {
	h := Health{Backend: "rest"}
	resp, err := r.do(ctx, http.MethodGet, "/", nil, http.Header{"Accept": {"application/json"}})
	if err != nil {
		h.Error = err.Error()
		return h, err
	}
	defer drain(resp)
	if resp.StatusCode >= 300 {
		err := statusError(resp)
		h.Error = err.Error()
		return h, err
	}
	var info struct {
		Versions struct {
			Obsidian string `json:"obsidian"`
			Self     string `json:"self"`
		} `json:"versions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		err = fmt.Errorf("%w: decode status: %v", apperr.ErrTransport, err)
		h.Error = err.Error()
		return h, err
	}
	h.Connected = true
	h.ObsidianVersion = info.Versions.Obsidian
	h.PluginVersion = info.Versions.Self
	return h, nil
}
