package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// LocalBackend is a Backend rooted at a directory on the local filesystem.
// WriteAtomic writes to a temp file in the same directory and renames over
// the destination, so concurrent readers never observe a partial write.
type LocalBackend struct {
	root string
	mu   sync.Mutex

	writeCt uint64
	etags   map[string]string // full path -> etag assigned at its last tracked write
}

// NewLocalBackend roots a Backend at dir, creating it if necessary.
func NewLocalBackend(dir string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errNetwork(err.Error())
	}
	return &LocalBackend{root: dir}, nil
}

func (l *LocalBackend) ReadOnly() bool { return false }

func (l *LocalBackend) resolve(path string) (string, error) {
	if err := validatePath(path); err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(path)), nil
}

func (l *LocalBackend) Read(ctx context.Context, path string) ([]byte, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, errNotFound(path)
	}
	if err != nil {
		return nil, errNetwork(err.Error())
	}
	return data, nil
}

func (l *LocalBackend) ReadRange(ctx context.Context, path string, r ByteRange) ([]byte, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if os.IsNotExist(err) {
		return nil, errNotFound(path)
	}
	if err != nil {
		return nil, errNetwork(err.Error())
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errNetwork(err.Error())
	}
	size := info.Size()
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
	buf := make([]byte, end-start)
	if _, err := f.ReadAt(buf, start); err != nil && err != io.EOF {
		return nil, errNetwork(err.Error())
	}
	return buf, nil
}

func (l *LocalBackend) Stat(ctx context.Context, path string) (*Stat, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errNetwork(err.Error())
	}
	l.mu.Lock()
	etag, err := l.currentEtag(full)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &Stat{Size: info.Size(), Mtime: info.ModTime(), Etag: etag}, nil
}

// currentEtag returns full's etag as last assigned by a tracked write, or
// falls back to a plain content hash for files this process never wrote
// (e.g. present from before a restart). Callers must hold l.mu.
func (l *LocalBackend) currentEtag(full string) (string, error) {
	if et, ok := l.etags[full]; ok {
		return et, nil
	}
	return l.fileEtag(full)
}

func (l *LocalBackend) fileEtag(full string) (string, error) {
	data, err := os.ReadFile(full)
	if err != nil {
		return "", errNetwork(err.Error())
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// nextEtag records and returns a fresh etag for full after a successful
// write: content hash plus a monotonically increasing counter, mirroring
// MemoryBackend.nextEtag so two writes of identical bytes never collide.
// Callers must hold l.mu.
func (l *LocalBackend) nextEtag(full string, data []byte) string {
	l.writeCt++
	sum := blake2b.Sum256(data)
	etag := fmt.Sprintf("%s-%d", hex.EncodeToString(sum[:]), l.writeCt)
	if l.etags == nil {
		l.etags = map[string]string{}
	}
	l.etags[full] = etag
	return etag
}

func (l *LocalBackend) Exists(ctx context.Context, path string) (bool, error) {
	s, err := l.Stat(ctx, path)
	return s != nil, err
}

func (l *LocalBackend) Write(ctx context.Context, path string, data []byte, opts WriteOptions) (WriteResult, error) {
	full, err := l.resolve(path)
	if err != nil {
		return WriteResult{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, statErr := os.Stat(full)
	exists := statErr == nil
	if opts.IfNoneMatch == "*" && exists {
		return WriteResult{}, errConflict(path, "blob already exists")
	}
	if opts.IfMatch != "" {
		if !exists {
			return WriteResult{}, errConflict(path, "etag precondition failed")
		}
		current, _ := l.currentEtag(full)
		if current != opts.IfMatch {
			return WriteResult{}, errConflict(path, "etag precondition failed")
		}
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return WriteResult{}, errNetwork(err.Error())
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return WriteResult{}, errNetwork(err.Error())
	}
	if opts.Mtime != nil {
		_ = os.Chtimes(full, *opts.Mtime, *opts.Mtime)
	}
	_ = existing
	return WriteResult{Etag: l.nextEtag(full, data), Size: int64(len(data))}, nil
}

// WriteAtomic writes to a sibling temp file and renames over the
// destination, guaranteeing readers never observe partial content.
func (l *LocalBackend) WriteAtomic(ctx context.Context, path string, data []byte, opts WriteOptions) (WriteResult, error) {
	full, err := l.resolve(path)
	if err != nil {
		return WriteResult{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, statErr := os.Stat(full)
	exists := statErr == nil
	if opts.IfNoneMatch == "*" && exists {
		return WriteResult{}, errConflict(path, "blob already exists")
	}
	if opts.IfMatch != "" {
		if !exists {
			return WriteResult{}, errConflict(path, "etag precondition failed")
		}
		current, _ := l.currentEtag(full)
		if current != opts.IfMatch {
			return WriteResult{}, errConflict(path, "etag precondition failed")
		}
	}
	_ = existing

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return WriteResult{}, errNetwork(err.Error())
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-*")
	if err != nil {
		return WriteResult{}, errNetwork(err.Error())
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return WriteResult{}, errNetwork(err.Error())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return WriteResult{}, errNetwork(err.Error())
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return WriteResult{}, errNetwork(err.Error())
	}
	if opts.Mtime != nil {
		_ = os.Chtimes(full, *opts.Mtime, *opts.Mtime)
	}
	return WriteResult{Etag: l.nextEtag(full, data), Size: int64(len(data))}, nil
}

func (l *LocalBackend) WriteConditional(ctx context.Context, path string, data []byte, expectedEtag string) (WriteResult, error) {
	full, err := l.resolve(path)
	if err != nil {
		return WriteResult{}, err
	}
	l.mu.Lock()
	_, statErr := os.Stat(full)
	exists := statErr == nil
	var currentEtag string
	if exists {
		currentEtag, _ = l.currentEtag(full)
	}
	l.mu.Unlock()

	if expectedEtag == "" {
		if exists {
			return WriteResult{}, errConflict(path, "blob already exists")
		}
	} else if !exists || currentEtag != expectedEtag {
		return WriteResult{}, errConflict(path, "etag mismatch")
	}
	return l.WriteAtomic(ctx, path, data, WriteOptions{})
}

func (l *LocalBackend) Append(ctx context.Context, path string, data []byte) (int64, error) {
	full, err := l.resolve(path)
	if err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return 0, errNetwork(err.Error())
	}
	f, err := os.OpenFile(full, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, errNetwork(err.Error())
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return 0, errNetwork(err.Error())
	}
	info, err := f.Stat()
	if err != nil {
		return 0, errNetwork(err.Error())
	}
	return info.Size(), nil
}

func (l *LocalBackend) Delete(ctx context.Context, path string) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return errNetwork(err.Error())
	}
	l.mu.Lock()
	delete(l.etags, full)
	l.mu.Unlock()
	return nil
}

func (l *LocalBackend) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	full, err := l.resolve(prefix)
	if err != nil {
		return 0, err
	}
	n := 0
	err = filepath.Walk(full, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if rmErr := os.Remove(p); rmErr == nil {
			n++
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return n, errNetwork(err.Error())
	}
	return n, nil
}

func (l *LocalBackend) List(ctx context.Context, prefix string, opts ListOptions) (ListResult, error) {
	root, err := l.resolve(prefix)
	if err != nil {
		return ListResult{}, err
	}
	var matched []string
	walkRoot := root
	if _, statErr := os.Stat(walkRoot); os.IsNotExist(statErr) {
		walkRoot = l.root
	}
	err = filepath.Walk(walkRoot, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(l.root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			matched = append(matched, rel)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return ListResult{}, errNetwork(err.Error())
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
	return res, nil
}

func (l *LocalBackend) Mkdir(ctx context.Context, path string) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return errNetwork(err.Error())
	}
	return nil
}

func (l *LocalBackend) Rmdir(ctx context.Context, path string) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(full); err != nil {
		return errNetwork(err.Error())
	}
	return nil
}

func (l *LocalBackend) Copy(ctx context.Context, src, dst string) error {
	data, err := l.Read(ctx, src)
	if err != nil {
		return err
	}
	_, err = l.WriteAtomic(ctx, dst, data, WriteOptions{})
	return err
}

func (l *LocalBackend) Move(ctx context.Context, src, dst string) error {
	srcFull, err := l.resolve(src)
	if err != nil {
		return err
	}
	dstFull, err := l.resolve(dst)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dstFull), 0o755); err != nil {
		return errNetwork(err.Error())
	}
	if err := os.Rename(srcFull, dstFull); err != nil {
		return errNetwork(err.Error())
	}
	return nil
}
