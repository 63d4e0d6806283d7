package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

type memBlob struct {
	data     []byte
	mtime    time.Time
	etag     string
	ctype    string
	metadata map[string]string
}

// MemoryBackend is an in-memory Backend. Read returns an owned copy so
// caller mutation never corrupts stored bytes. Write preserves a
// caller-supplied mtime, which the sync engine's "newest" strategy tests
// rely on.
type MemoryBackend struct {
	mu      sync.RWMutex
	blobs   map[string]*memBlob
	writeCt uint64
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{blobs: make(map[string]*memBlob)}
}

func (m *MemoryBackend) ReadOnly() bool { return false }

func (m *MemoryBackend) Read(ctx context.Context, path string) ([]byte, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[path]
	if !ok {
		return nil, errNotFound(path)
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, nil
}

func (m *MemoryBackend) ReadRange(ctx context.Context, path string, r ByteRange) ([]byte, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	m.mu.RLock()
	b, ok := m.blobs[path]
	m.mu.RUnlock()
	if !ok {
		return nil, errNotFound(path)
	}
	size := int64(len(b.data))
	start, end := r.Start, r.End
	if start < 0 {
		start = size + start
	}
	if end < 0 {
		end = size + end
	}
	if start < 0 || end < start {
		return nil, errValidation("invalid byte range", path)
	}
	if start >= end {
		return []byte{}, nil
	}
	if end > size {
		end = size
	}
	if start > size {
		start = size
	}
	out := make([]byte, end-start)
	copy(out, b.data[start:end])
	return out, nil
}

func (m *MemoryBackend) Stat(ctx context.Context, path string) (*Stat, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[path]
	if !ok {
		return nil, nil
	}
	return &Stat{Size: int64(len(b.data)), Mtime: b.mtime, Etag: b.etag, ContentType: b.ctype, Metadata: b.metadata}, nil
}

func (m *MemoryBackend) Exists(ctx context.Context, path string) (bool, error) {
	s, err := m.Stat(ctx, path)
	return s != nil, err
}

// nextEtag fingerprints data with blake2b-256, faster than SHA-256 on the
// larger blobs a columnar store holds, with no cryptographic need for
// SHA-256's specific properties here. Counter suffix breaks ties between
// identical writes to the same path.
func (m *MemoryBackend) nextEtag(data []byte) string {
	m.writeCt++
	sum := blake2b.Sum256(data)
	return fmt.Sprintf("%s-%d", hex.EncodeToString(sum[:]), m.writeCt)
}

func (m *MemoryBackend) Write(ctx context.Context, path string, data []byte, opts WriteOptions) (WriteResult, error) {
	if err := validatePath(path); err != nil {
		return WriteResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, has := m.blobs[path]

	if opts.IfNoneMatch == "*" && has {
		return WriteResult{}, errConflict(path, "blob already exists")
	}
	if opts.IfMatch != "" {
		if !has || existing.etag != opts.IfMatch {
			return WriteResult{}, errConflict(path, "etag precondition failed")
		}
	}

	mtime := time.Now()
	if opts.Mtime != nil {
		mtime = *opts.Mtime
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	etag := m.nextEtag(owned)
	m.blobs[path] = &memBlob{data: owned, mtime: mtime, etag: etag, ctype: opts.ContentType, metadata: opts.Metadata}
	return WriteResult{Etag: etag, Size: int64(len(owned))}, nil
}

func (m *MemoryBackend) WriteAtomic(ctx context.Context, path string, data []byte, opts WriteOptions) (WriteResult, error) {
	return m.Write(ctx, path, data, opts)
}

func (m *MemoryBackend) WriteConditional(ctx context.Context, path string, data []byte, expectedEtag string) (WriteResult, error) {
	m.mu.RLock()
	existing, has := m.blobs[path]
	m.mu.RUnlock()

	if expectedEtag == "" {
		if has {
			return WriteResult{}, errConflict(path, "blob already exists")
		}
	} else if !has || existing.etag != expectedEtag {
		return WriteResult{}, errConflict(path, "etag mismatch")
	}
	return m.Write(ctx, path, data, WriteOptions{})
}

func (m *MemoryBackend) Append(ctx context.Context, path string, data []byte) (int64, error) {
	if err := validatePath(path); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[path]
	if !ok {
		owned := make([]byte, len(data))
		copy(owned, data)
		m.blobs[path] = &memBlob{data: owned, mtime: time.Now(), etag: m.nextEtag(owned)}
		return int64(len(owned)), nil
	}
	b.data = append(b.data, data...)
	b.mtime = time.Now()
	b.etag = m.nextEtag(b.data)
	return int64(len(b.data)), nil
}

func (m *MemoryBackend) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, path)
	return nil
}

func (m *MemoryBackend) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for p := range m.blobs {
		if strings.HasPrefix(p, prefix) {
			delete(m.blobs, p)
			n++
		}
	}
	return n, nil
}

func (m *MemoryBackend) List(ctx context.Context, prefix string, opts ListOptions) (ListResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []string
	for p := range m.blobs {
		if strings.HasPrefix(p, prefix) {
			matched = append(matched, p)
		}
	}
	sort.Strings(matched)

	start := 0
	if opts.Cursor != "" {
		for i, p := range matched {
			if p > opts.Cursor {
				start = i
				break
			}
			start = i + 1
		}
	}
	end := len(matched)
	hasMore := false
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
		hasMore = true
	}
	page := matched[start:end]

	res := ListResult{Files: page, HasMore: hasMore}
	if hasMore {
		res.Cursor = page[len(page)-1]
	}
	if opts.IncludeMetadata {
		res.Stats = make(map[string]Stat, len(page))
		for _, p := range page {
			b := m.blobs[p]
			res.Stats[p] = Stat{Size: int64(len(b.data)), Mtime: b.mtime, Etag: b.etag}
		}
	}
	return res, nil
}

func (m *MemoryBackend) Mkdir(ctx context.Context, path string) error { return nil }

func (m *MemoryBackend) Rmdir(ctx context.Context, path string) error {
	_, err := m.DeletePrefix(ctx, path)
	return err
}

func (m *MemoryBackend) Copy(ctx context.Context, src, dst string) error {
	data, err := m.Read(ctx, src)
	if err != nil {
		return err
	}
	_, err = m.Write(ctx, dst, data, WriteOptions{})
	return err
}

func (m *MemoryBackend) Move(ctx context.Context, src, dst string) error {
	if err := m.Copy(ctx, src, dst); err != nil {
		return err
	}
	return m.Delete(ctx, src)
}
