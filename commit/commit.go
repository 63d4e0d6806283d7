// Package commit implements the content-addressed commit DAG (C5):
// canonical-form hashing, save/load over a storage.Backend, and
// bidirectional-BFS ancestor search.
package commit

import (
	"context"
	"encoding/json"
	"fmt"

	cherrors "github.com/evalgo-chronicle/chronicle/errors"
	"github.com/evalgo-chronicle/chronicle/storage"
)

// EventLogPosition marks the event-segment boundary a commit's state
// snapshot corresponds to, the natural place to resume replay from.
type EventLogPosition struct {
	SegmentID string `json:"segmentId"`
	Offset    int    `json:"offset"`
}

// RelationshipHashes summarizes the forward/reverse relationship indexes
// at commit time.
type RelationshipHashes struct {
	ForwardHash string `json:"forwardHash"`
	ReverseHash string `json:"reverseHash"`
}

// CollectionState is one namespace's contribution to a DatabaseState.
type CollectionState struct {
	DataHash   string `json:"dataHash"`
	SchemaHash string `json:"schemaHash"`
	RowCount   int    `json:"rowCount"`
}

// DatabaseState is the full snapshot a Commit points to.
type DatabaseState struct {
	Collections      map[string]CollectionState `json:"collections"`
	Relationships    RelationshipHashes         `json:"relationships"`
	EventLogPosition EventLogPosition           `json:"eventLogPosition"`
}

// Commit is a content-addressed snapshot of DatabaseState.
type Commit struct {
	Hash      string        `json:"hash"`
	Parents   []string      `json:"parents"`
	Timestamp int64         `json:"timestamp"`
	Author    string        `json:"author"`
	Message   string        `json:"message"`
	State     DatabaseState `json:"state"`
}

// CreateOptions customizes CreateCommit.
type CreateOptions struct {
	Message string
	Author  string
	Parents []string
}

// CreateCommit builds a Commit over state, hashing every field except Hash
// itself in canonical form (recursively sorted map keys, SHA-256, 64
// hex chars). timestamp is taken from the caller rather than time.Now()
// so hashing stays a pure function of its inputs.
func CreateCommit(state DatabaseState, opts CreateOptions, timestamp int64) (Commit, error) {
	author := opts.Author
	if author == "" {
		author = "anonymous"
	}
	parents := append([]string{}, opts.Parents...)

	c := Commit{
		Parents:   parents,
		Timestamp: timestamp,
		Author:    author,
		Message:   opts.Message,
		State:     state,
	}
	hash, err := hashCommit(c)
	if err != nil {
		return Commit{}, err
	}
	c.Hash = hash
	return c, nil
}

func commitPath(hash string) string {
	return fmt.Sprintf("_meta/commits/%s.json", hash)
}

// SaveCommit writes commit to its content-addressed path with atomic
// replacement.
func SaveCommit(ctx context.Context, backend storage.Backend, c Commit) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return cherrors.Wrap(cherrors.Internal, c.Hash, err)
	}
	_, err = backend.WriteAtomic(ctx, commitPath(c.Hash), data, storage.WriteOptions{ContentType: "application/json"})
	return err
}

// LoadCommit reads, parses, and re-hashes the loaded fields, failing with
// HASH_MISMATCH if the stored hash no longer matches its own content —
// protection against silent corruption or tampering.
func LoadCommit(ctx context.Context, backend storage.Backend, hash string) (Commit, error) {
	data, err := backend.Read(ctx, commitPath(hash))
	if err != nil {
		return Commit{}, err
	}
	var c Commit
	if err := json.Unmarshal(data, &c); err != nil {
		return Commit{}, cherrors.Wrap(cherrors.Internal, hash, err)
	}
	recomputed, err := hashCommit(c)
	if err != nil {
		return Commit{}, err
	}
	if recomputed != c.Hash {
		return Commit{}, cherrors.WithPath(cherrors.HashMismatch, hash, "stored commit hash does not match recomputed content hash")
	}
	return c, nil
}
