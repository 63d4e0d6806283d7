package entity

import (
	"context"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ReadModelCache is a secondary, persistent cache of current entity state,
// consulted to avoid rebuilding the in-memory materialized view from
// scratch on process restart. Store works without one; a nil ReadModelCache
// degrades to pure in-memory materialization.
type ReadModelCache interface {
	Get(ctx context.Context, id ID) (Entity, bool, error)
	Put(ctx context.Context, id ID, e Entity) error
	Delete(ctx context.Context, id ID) error
	// ForEach visits every cached entity in namespace, used to warm the
	// in-memory view at startup.
	ForEach(ctx context.Context, namespace string, fn func(ID, Entity) error) error
}

const entityBucket = "entities"

// BoltCache is a ReadModelCache backed by a local bbolt file, generalized
// from db/bolt/bolt.go's bucket/PutJSON/GetJSON helpers to the entity
// store's ID/Entity vocabulary.
type BoltCache struct {
	db *bolt.DB
}

// OpenBoltCache opens or creates a bbolt-backed read-model cache at path.
func OpenBoltCache(path string) (*BoltCache, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(entityBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &BoltCache{db: db}, nil
}

// Close releases the underlying bbolt file handle.
func (c *BoltCache) Close() error { return c.db.Close() }

func (c *BoltCache) Get(_ context.Context, id ID) (Entity, bool, error) {
	var e Entity
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entityBucket))
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &e)
	})
	if err != nil {
		return nil, false, err
	}
	return e, found, nil
}

func (c *BoltCache) Put(_ context.Context, id ID, e Entity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entityBucket))
		return b.Put([]byte(id), data)
	})
}

func (c *BoltCache) Delete(_ context.Context, id ID) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entityBucket))
		return b.Delete([]byte(id))
	})
}

func (c *BoltCache) ForEach(_ context.Context, namespace string, fn func(ID, Entity) error) error {
	prefix := []byte(namespace + "/")
	return c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entityBucket))
		cur := b.Cursor()
		for k, v := cur.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = cur.Next() {
			var e Entity
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if err := fn(ID(k), e); err != nil {
				return err
			}
		}
		return nil
	})
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
