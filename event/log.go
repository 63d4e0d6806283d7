package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	cherrors "github.com/evalgo-chronicle/chronicle/errors"
	"github.com/evalgo-chronicle/chronicle/storage"
	"github.com/google/uuid"
)

// segmentPath mirrors the persisted layout's events/<namespace>/<segment-id>.parquet
// naming. The actual encoding inside each blob is a JSON array of Event —
// Parquet columnar encoding is an out-of-scope external collaborator
// (spec §1's "Parquet codec implementation details"); this placeholder
// codec keeps the path layout and segment-boundary semantics the real
// codec would slot into.
func segmentPath(namespace, segmentID string) string {
	return fmt.Sprintf("events/%s/%s.parquet", namespace, segmentID)
}

// Log is the durable, append-only event log (C2). Appends land in an
// in-memory tail buffer; the Flush Coordinator (package flush) decides
// when to snapshot that buffer into a durable segment.
type Log struct {
	backend storage.Backend

	mu      sync.Mutex
	pending []Event
}

// New creates a Log over backend. The tail buffer starts empty; durable
// segments already present under events/ are discovered lazily by query
// methods, not eagerly scanned at construction.
func New(backend storage.Backend) *Log {
	return &Log{backend: backend}
}

// Append adds events to the tail buffer. It performs no I/O; durability is
// the Flush Coordinator's responsibility.
func (l *Log) Append(events ...Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, events...)
}

// Snapshot atomically takes ownership of the current tail buffer,
// replacing it with an empty one. Events appended concurrently land in
// the new buffer.
func (l *Log) Snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.pending
	l.pending = nil
	return batch
}

// Requeue re-prepends a batch onto the tail buffer, used to restore
// events after a failed flush.
func (l *Log) Requeue(batch []Event) {
	if len(batch) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(append([]Event{}, batch...), l.pending...)
}

// PendingSnapshot returns a read-only copy of the tail buffer without
// clearing it, used by readers who need to see unflushed events.
func (l *Log) PendingSnapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.pending))
	copy(out, l.pending)
	return out
}

// WrittenSegment records enough to roll a segment write back.
type WrittenSegment struct {
	Path          string
	PriorExisted  bool
	PriorContents []byte
}

// WriteSegment durably appends events for a single namespace as a new
// segment blob, returning what's needed to roll the write back if a
// later write in the same flush batch fails.
func (l *Log) WriteSegment(ctx context.Context, namespace string, events []Event) (WrittenSegment, error) {
	segID := uuid.NewString()
	path := segmentPath(namespace, segID)

	var prior []byte
	existed, err := l.backend.Exists(ctx, path)
	if err != nil {
		return WrittenSegment{}, err
	}
	if existed {
		prior, err = l.backend.Read(ctx, path)
		if err != nil {
			return WrittenSegment{}, err
		}
	}

	data, err := json.Marshal(events)
	if err != nil {
		return WrittenSegment{}, cherrors.Wrap(cherrors.Internal, path, err)
	}
	if _, err := l.backend.WriteAtomic(ctx, path, data, storage.WriteOptions{ContentType: "application/json"}); err != nil {
		return WrittenSegment{}, err
	}
	return WrittenSegment{Path: path, PriorExisted: existed, PriorContents: prior}, nil
}

// Restore undoes a WriteSegment, used by the Flush Coordinator's rollback
// path in reverse order of the writes it's undoing.
func (l *Log) Restore(ctx context.Context, w WrittenSegment) error {
	if !w.PriorExisted {
		return l.backend.Delete(ctx, w.Path)
	}
	_, err := l.backend.WriteAtomic(ctx, w.Path, w.PriorContents, storage.WriteOptions{ContentType: "application/json"})
	return err
}

func (l *Log) readSegments(ctx context.Context, namespace string) ([]Event, error) {
	res, err := l.backend.List(ctx, fmt.Sprintf("events/%s/", namespace), storage.ListOptions{})
	if err != nil {
		return nil, err
	}
	var all []Event
	for _, path := range res.Files {
		if !strings.HasSuffix(path, ".parquet") {
			continue
		}
		data, err := l.backend.Read(ctx, path)
		if err != nil {
			if cherrors.CodeOf(err) == cherrors.NotFound {
				continue
			}
			return nil, err
		}
		var seg []Event
		if err := json.Unmarshal(data, &seg); err != nil {
			return nil, cherrors.Wrap(cherrors.Internal, path, err)
		}
		all = append(all, seg...)
	}
	return all, nil
}

func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].TS.Equal(events[j].TS) {
			return events[i].ID < events[j].ID
		}
		return events[i].TS.Before(events[j].TS)
	})
}

func paginate(items []Event, f Filter) Page {
	var matched []Event
	for _, e := range items {
		if f.matches(e) {
			matched = append(matched, e)
		}
	}
	sortEvents(matched)

	start := 0
	if f.Cursor != "" {
		for i, e := range matched {
			if e.ID == f.Cursor {
				start = i + 1
				break
			}
		}
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	hasMore := false
	if f.Limit > 0 && start+f.Limit < end {
		end = start + f.Limit
		hasMore = true
	}
	page := matched[start:end]
	next := ""
	if hasMore {
		next = page[len(page)-1].ID
	}
	return Page{Items: page, HasMore: hasMore, NextCursor: next}
}

// GetEvents returns events for a single entity matching filter, in
// chronological order with a stable tiebreak on event id, combining
// durable segments with the unflushed tail buffer.
func (l *Log) GetEvents(ctx context.Context, entityID string, f Filter) (Page, error) {
	namespace := entityID
	if i := strings.IndexByte(entityID, '/'); i >= 0 {
		namespace = entityID[:i]
	}
	durable, err := l.readSegments(ctx, namespace)
	if err != nil {
		return Page{}, err
	}
	var forEntity []Event
	for _, e := range durable {
		if e.Target == entityID {
			forEntity = append(forEntity, e)
		}
	}
	for _, e := range l.PendingSnapshot() {
		if e.Target == entityID {
			forEntity = append(forEntity, e)
		}
	}
	return paginate(forEntity, f), nil
}

// GetEventsByNamespace returns events across every entity in namespace
// matching filter.
func (l *Log) GetEventsByNamespace(ctx context.Context, namespace string, f Filter) (Page, error) {
	durable, err := l.readSegments(ctx, namespace)
	if err != nil {
		return Page{}, err
	}
	all := append([]Event{}, durable...)
	for _, e := range l.PendingSnapshot() {
		if strings.HasPrefix(e.Target, namespace+"/") {
			all = append(all, e)
		}
	}
	return paginate(all, f), nil
}
