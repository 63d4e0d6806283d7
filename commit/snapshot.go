package commit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/evalgo-chronicle/chronicle/entity"
)

// EntitySource is the minimal view of the live entity store BuildDatabaseState
// needs: every alive entity, grouped by namespace. entity.Store satisfies it.
type EntitySource interface {
	Snapshot(ctx context.Context) map[string][]entity.Entity
}

// BuildDatabaseState enumerates every namespace currently held in store and
// computes its data/schema hashes and row count, the real DatabaseState a
// commit should point to.
func BuildDatabaseState(ctx context.Context, store EntitySource, position EventLogPosition) (DatabaseState, error) {
	byNamespace := store.Snapshot(ctx)

	collections := make(map[string]CollectionState, len(byNamespace))
	for namespace, entities := range byNamespace {
		dataHash, err := hashCollectionData(entities)
		if err != nil {
			return DatabaseState{}, err
		}
		collections[namespace] = CollectionState{
			DataHash:   dataHash,
			SchemaHash: hashCollectionSchema(entities),
			RowCount:   len(entities),
		}
	}

	return DatabaseState{
		Collections:      collections,
		EventLogPosition: position,
	}, nil
}

// hashCollectionData hashes every entity's canonical form, sorted by id so
// the digest depends on row content rather than map/slice iteration order.
func hashCollectionData(entities []entity.Entity) (string, error) {
	ids := make([]string, 0, len(entities))
	byID := make(map[string]entity.Entity, len(entities))
	for _, e := range entities {
		id := string(e.ID())
		ids = append(ids, id)
		byID[id] = e
	}
	sort.Strings(ids)

	rows := make([]any, len(ids))
	for i, id := range ids {
		rows[i] = map[string]any(byID[id])
	}

	canon, err := canonicalize(rows)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// hashCollectionSchema fingerprints the union of field names across
// entities, a cheap stand-in for "did this collection's shape change"
// without re-hashing every row's full content.
func hashCollectionSchema(entities []entity.Entity) string {
	fieldSet := map[string]bool{}
	for _, e := range entities {
		for k := range e {
			fieldSet[k] = true
		}
	}
	fields := make([]string, 0, len(fieldSet))
	for f := range fieldSet {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	sum := sha256.Sum256([]byte(strings.Join(fields, ",")))
	return hex.EncodeToString(sum[:])
}
