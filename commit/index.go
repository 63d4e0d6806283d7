package commit

import (
	"context"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb" // CouchDB driver

	cherrors "github.com/evalgo-chronicle/chronicle/errors"
)

// IndexConfig configures the commit index's CouchDB connection.
type IndexConfig struct {
	URL             string
	Database        string
	CreateIfMissing bool
}

// Index is a queryable secondary index over commits — by author, by time
// range — generalized from storage/database.go's CouchDBClient document
// operations to commit documents. The commits themselves remain
// content-addressed under _meta/commits/<hash>.json; this index exists
// purely to answer "which commits" queries without listing every blob.
type Index struct {
	client *kivik.Client
	db     *kivik.DB
}

// OpenIndex connects to CouchDB and ensures the target database exists.
func OpenIndex(ctx context.Context, cfg IndexConfig) (*Index, error) {
	client, err := kivik.New("couch", cfg.URL)
	if err != nil {
		return nil, cherrors.Wrap(cherrors.Network, cfg.URL, err)
	}
	exists, err := client.DBExists(ctx, cfg.Database)
	if err != nil {
		return nil, cherrors.Wrap(cherrors.Network, cfg.Database, err)
	}
	if !exists {
		if !cfg.CreateIfMissing {
			return nil, cherrors.WithPath(cherrors.NotFound, cfg.Database, "commit index database does not exist")
		}
		if err := client.CreateDB(ctx, cfg.Database); err != nil {
			return nil, cherrors.Wrap(cherrors.Internal, cfg.Database, err)
		}
	}
	return &Index{client: client, db: client.DB(cfg.Database)}, nil
}

// Close releases the underlying CouchDB connection.
func (idx *Index) Close() error { return idx.client.Close() }

// indexDoc is the commit projection stored in CouchDB — small enough to
// query over, the state snapshot itself stays in the content-addressed
// blob.
type indexDoc struct {
	Hash      string   `json:"_id"`
	Rev       string   `json:"_rev,omitempty"`
	Parents   []string `json:"parents"`
	Timestamp int64    `json:"timestamp"`
	Author    string   `json:"author"`
	Message   string   `json:"message"`
}

// Record upserts a commit's searchable projection into the index.
func (idx *Index) Record(ctx context.Context, c Commit) error {
	doc := indexDoc{Hash: c.Hash, Parents: c.Parents, Timestamp: c.Timestamp, Author: c.Author, Message: c.Message}
	if row := idx.db.Get(ctx, c.Hash); row.Err() == nil {
		var existing indexDoc
		if err := row.ScanDoc(&existing); err == nil {
			doc.Rev = existing.Rev
		}
	}
	_, err := idx.db.Put(ctx, c.Hash, doc)
	if err != nil {
		return cherrors.Wrap(cherrors.Internal, c.Hash, err)
	}
	return nil
}

// ByAuthor returns the hashes of every indexed commit by author.
func (idx *Index) ByAuthor(ctx context.Context, author string) ([]string, error) {
	selector := map[string]any{"author": author}
	rows := idx.db.Find(ctx, map[string]any{"selector": selector})
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var doc indexDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, cherrors.Wrap(cherrors.Internal, "", err)
		}
		hashes = append(hashes, doc.Hash)
	}
	if err := rows.Err(); err != nil {
		return nil, cherrors.Wrap(cherrors.Internal, "", err)
	}
	return hashes, nil
}

// ByTimeRange returns the hashes of indexed commits with from <= timestamp
// <= to (Unix seconds; 0 means unbounded on that side).
func (idx *Index) ByTimeRange(ctx context.Context, from, to int64) ([]string, error) {
	cond := map[string]any{}
	if from > 0 {
		cond["$gte"] = from
	}
	if to > 0 {
		cond["$lte"] = to
	}
	selector := map[string]any{}
	if len(cond) > 0 {
		selector["timestamp"] = cond
	}
	rows := idx.db.Find(ctx, map[string]any{"selector": selector})
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var doc indexDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, cherrors.Wrap(cherrors.Internal, "", err)
		}
		hashes = append(hashes, doc.Hash)
	}
	if err := rows.Err(); err != nil {
		return nil, cherrors.Wrap(cherrors.Internal, "", err)
	}
	return hashes, nil
}
