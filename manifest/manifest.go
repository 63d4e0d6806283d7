// Package manifest implements the sync manifest (C6): enumerating a
// storage backend into a per-file hash index, and diffing two manifests
// as a pure function with no I/O.
package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/evalgo-chronicle/chronicle/storage"
)

// FileEntry is one file's manifest record.
type FileEntry struct {
	Path          string    `json:"path"`
	Size          int64     `json:"size"`
	Hash          string    `json:"hash"`
	HashAlgorithm string    `json:"hashAlgorithm"`
	ModifiedAt    time.Time `json:"modifiedAt"`
}

// Manifest is the sync manifest persisted at _meta/manifest.json.
type Manifest struct {
	Version      int                  `json:"version"`
	DatabaseID   string               `json:"databaseId"`
	Name         string               `json:"name"`
	Visibility   string               `json:"visibility"`
	LastSyncedAt time.Time            `json:"lastSyncedAt"`
	Files        map[string]FileEntry `json:"files"`
}

var excludedSegments = []string{".git", ".DS_Store", "node_modules"}

func isExcluded(path string) bool {
	if path == "_meta/manifest.json" {
		return true
	}
	if strings.HasPrefix(path, "_meta/locks/") {
		return true
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, ".") {
			return true
		}
		for _, excluded := range excludedSegments {
			if seg == excluded {
				return true
			}
		}
	}
	return false
}

// Build enumerates every retained path under backend and computes a
// FileEntry for each, by reading its full contents to hash.
func Build(ctx context.Context, backend storage.Backend, databaseID, name, visibility string) (Manifest, error) {
	files := make(map[string]FileEntry)
	cursor := ""
	for {
		res, err := backend.List(ctx, "", storage.ListOptions{Cursor: cursor})
		if err != nil {
			return Manifest{}, err
		}
		for _, path := range res.Files {
			if isExcluded(path) {
				continue
			}
			st, err := backend.Stat(ctx, path)
			if err != nil {
				return Manifest{}, err
			}
			data, err := backend.Read(ctx, path)
			if err != nil {
				return Manifest{}, err
			}
			sum := sha256.Sum256(data)
			files[path] = FileEntry{
				Path:          path,
				Size:          st.Size,
				Hash:          hex.EncodeToString(sum[:]),
				HashAlgorithm: "sha256",
				ModifiedAt:    st.Mtime,
			}
		}
		if !res.HasMore {
			break
		}
		cursor = res.Cursor
	}

	return Manifest{
		Version:      1,
		DatabaseID:   databaseID,
		Name:         name,
		Visibility:   visibility,
		LastSyncedAt: time.Now().UTC(),
		Files:        files,
	}, nil
}

// IsSynced reports whether two manifests have nothing to upload,
// download, or reconcile.
func IsSynced(local, remote Manifest) bool {
	d := Diff(local, remote)
	return len(d.ToUpload) == 0 && len(d.ToDownload) == 0 && len(d.Conflicts) == 0
}
