package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTPReadOnlyBackend reads a database published over plain HTTP. All
// mutating operations fail with ReadOnly. list is derived from a fetched
// _meta/manifest.json; stat results are cached per path and invalidated
// whenever the bearer token changes.
type HTTPReadOnlyBackend struct {
	baseURL string
	token   string
	client  *http.Client
	timeout time.Duration

	mu        sync.Mutex
	statCache map[string]*Stat
	cacheTok  string
}

// NewHTTPReadOnlyBackend builds a read-only backend against baseURL. The
// default per-request timeout is 30 seconds, matching the spec default.
func NewHTTPReadOnlyBackend(baseURL, token string) *HTTPReadOnlyBackend {
	return &HTTPReadOnlyBackend{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		token:     token,
		client:    &http.Client{},
		timeout:   30 * time.Second,
		statCache: make(map[string]*Stat),
		cacheTok:  token,
	}
}

// SetToken updates the bearer token, invalidating the stat cache.
func (h *HTTPReadOnlyBackend) SetToken(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if token != h.cacheTok {
		h.statCache = make(map[string]*Stat)
		h.cacheTok = token
	}
	h.token = token
}

func (h *HTTPReadOnlyBackend) ReadOnly() bool { return true }

func (h *HTTPReadOnlyBackend) do(ctx context.Context, method, path string, rng string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+"/"+path, nil)
	if err != nil {
		return nil, errNetwork(err.Error())
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	if rng != "" {
		req.Header.Set("Range", rng)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errNetwork("request exceeded configured timeout of " + h.timeout.String())
		}
		return nil, errNetwork(err.Error())
	}
	return resp, nil
}

func statusToError(path string, status int) error {
	switch {
	case status == 401 || status == 403:
		return errPermissionDenied(path)
	case status == 404:
		return errNotFound(path)
	case status >= 200 && status < 300:
		return nil
	default:
		return errNetwork("unexpected status " + http.StatusText(status))
	}
}

func (h *HTTPReadOnlyBackend) Read(ctx context.Context, path string) ([]byte, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	resp, err := h.do(ctx, http.MethodGet, path, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if serr := statusToError(path, resp.StatusCode); serr != nil {
		return nil, serr
	}
	return io.ReadAll(resp.Body)
}

func (h *HTTPReadOnlyBackend) ReadRange(ctx context.Context, path string, r ByteRange) ([]byte, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	start, end := r.Start, r.End
	if end < 0 || start < 0 {
		st, err := h.Stat(ctx, path)
		if err != nil {
			return nil, err
		}
		if st == nil {
			return nil, errNotFound(path)
		}
		if start < 0 {
			start = st.Size + start
		}
		if end < 0 {
			end = st.Size + end
		}
	}
	if start < 0 || end < start {
		return nil, errValidation("invalid byte range", path)
	}
	if start >= end {
		return []byte{}, nil
	}
	// convert the half-open [start, end) interval to an inclusive HTTP range
	rangeHeader := "bytes=" + itoa(start) + "-" + itoa(end-1)
	resp, err := h.do(ctx, http.MethodGet, path, rangeHeader)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if serr := statusToError(path, resp.StatusCode); serr != nil {
		return nil, serr
	}
	return io.ReadAll(resp.Body)
}

func (h *HTTPReadOnlyBackend) Stat(ctx context.Context, path string) (*Stat, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	h.mu.Lock()
	if cached, ok := h.statCache[path]; ok {
		h.mu.Unlock()
		return cached, nil
	}
	h.mu.Unlock()

	resp, err := h.do(ctx, http.MethodHead, path, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == 404 {
		h.mu.Lock()
		h.statCache[path] = nil
		h.mu.Unlock()
		return nil, nil
	}
	if serr := statusToError(path, resp.StatusCode); serr != nil {
		return nil, serr
	}

	st := &Stat{Size: resp.ContentLength, Etag: strings.Trim(resp.Header.Get("ETag"), `"`)}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			st.Mtime = t
		}
	}
	h.mu.Lock()
	h.statCache[path] = st
	h.mu.Unlock()
	return st, nil
}

func (h *HTTPReadOnlyBackend) Exists(ctx context.Context, path string) (bool, error) {
	st, err := h.Stat(ctx, path)
	return st != nil, err
}

func (h *HTTPReadOnlyBackend) Write(ctx context.Context, path string, data []byte, opts WriteOptions) (WriteResult, error) {
	return WriteResult{}, errReadOnly()
}

func (h *HTTPReadOnlyBackend) WriteAtomic(ctx context.Context, path string, data []byte, opts WriteOptions) (WriteResult, error) {
	return WriteResult{}, errReadOnly()
}

func (h *HTTPReadOnlyBackend) WriteConditional(ctx context.Context, path string, data []byte, expectedEtag string) (WriteResult, error) {
	return WriteResult{}, errReadOnly()
}

func (h *HTTPReadOnlyBackend) Append(ctx context.Context, path string, data []byte) (int64, error) {
	return 0, errReadOnly()
}

func (h *HTTPReadOnlyBackend) Delete(ctx context.Context, path string) error   { return errReadOnly() }
func (h *HTTPReadOnlyBackend) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	return 0, errReadOnly()
}
func (h *HTTPReadOnlyBackend) Mkdir(ctx context.Context, path string) error { return errReadOnly() }
func (h *HTTPReadOnlyBackend) Rmdir(ctx context.Context, path string) error { return errReadOnly() }
func (h *HTTPReadOnlyBackend) Copy(ctx context.Context, src, dst string) error {
	return errReadOnly()
}
func (h *HTTPReadOnlyBackend) Move(ctx context.Context, src, dst string) error {
	return errReadOnly()
}

// manifestFile mirrors the relevant subset of manifest.Manifest's JSON
// shape, kept local to avoid an import cycle with package manifest.
type manifestFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

type rawManifest struct {
	Files map[string]manifestFile `json:"files"`
}

// List derives its result from the canonical _meta/manifest.json, per the
// read-only HTTP variant's documented behavior.
func (h *HTTPReadOnlyBackend) List(ctx context.Context, prefix string, opts ListOptions) (ListResult, error) {
	data, err := h.Read(ctx, "_meta/manifest.json")
	if err != nil {
		return ListResult{}, err
	}
	var m rawManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return ListResult{}, errNetwork("malformed manifest: " + err.Error())
	}
	var files []string
	for p := range m.Files {
		if strings.HasPrefix(p, prefix) {
			files = append(files, p)
		}
	}
	return ListResult{Files: files}, nil
}
