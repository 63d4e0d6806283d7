package entity

import (
	"context"
	"sync"
	"time"

	cherrors "github.com/evalgo-chronicle/chronicle/errors"
	"github.com/evalgo-chronicle/chronicle/event"
	"github.com/google/uuid"
)

// FilterEvaluator is the external predicate matcher Find delegates to; the
// entity store has no opinion on filter syntax, only on which entities it
// hands to the evaluator.
type FilterEvaluator interface {
	Match(ctx context.Context, e Entity, filter any) (bool, error)
}

// Replayer reconstructs historical entity state, implemented by package
// timetravel and injected into Store after construction — entity cannot
// import timetravel directly, since timetravel operates over entity.Store.
type Replayer interface {
	AsOf(ctx context.Context, id ID, t time.Time) (Entity, bool, error)
}

// CreateOptions customizes Create.
type CreateOptions struct {
	ID    string // explicit local id; random uuid if empty
	Actor string
}

// GetOptions customizes Get.
type GetOptions struct {
	AsOf *time.Time
}

// FindOptions customizes Find.
type FindOptions struct {
	AsOf  *time.Time
	Limit int
}

// Store is the materialized read model over an event.Log (C3): current
// entity state per EntityId, updated transactionally alongside every
// append to the log.
type Store struct {
	log   *event.Log
	clock *event.Clock

	mu         sync.RWMutex
	entities   map[ID]Entity
	tombstoned map[ID]int // version the entity held at the moment it was tombstoned

	cache    ReadModelCache
	filter   FilterEvaluator
	embedder EmbedDispatcher
	replayer Replayer
}

// NewStore creates a Store over log. cache, filter and embedder are all
// optional collaborators; pass nil to disable each.
func NewStore(log *event.Log, cache ReadModelCache, filter FilterEvaluator, embedder EmbedDispatcher) *Store {
	return &Store{
		log:        log,
		clock:      event.NewClock(),
		entities:   map[ID]Entity{},
		tombstoned: map[ID]int{},
		cache:      cache,
		filter:     filter,
		embedder:   embedder,
	}
}

// SetReplayer wires the time-travel engine in after construction, breaking
// the import cycle timetravel -> entity -> timetravel would otherwise form.
func (s *Store) SetReplayer(r Replayer) { s.replayer = r }

// Warm loads namespace's entities from cache into the in-memory view,
// used at startup before serving traffic.
func (s *Store) Warm(ctx context.Context, namespace string) error {
	if s.cache == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.ForEach(ctx, namespace, func(id ID, e Entity) error {
		s.entities[id] = e
		return nil
	})
}

// Create allocates an id (or uses opts.ID), emits CREATE with version=1,
// and returns the stored entity.
func (s *Store) Create(ctx context.Context, namespace string, data Entity, opts CreateOptions) (Entity, error) {
	local := opts.ID
	if local == "" {
		local = uuid.NewString()
	}
	id := NewID(namespace, local)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, alive := s.entities[id]; alive {
		return nil, cherrors.WithPath(cherrors.Conflict, string(id), "entity already exists")
	}
	if _, wasTombstoned := s.tombstoned[id]; wasTombstoned {
		return nil, cherrors.WithPath(cherrors.Conflict, string(id), "id was previously deleted and cannot be reused")
	}

	after := data.Clone()
	if after == nil {
		after = Entity{}
	}
	after[FieldID] = string(id)
	after[FieldType] = namespace
	after[FieldVersion] = 1

	ev := event.Event{
		ID:     event.NewID(),
		TS:     s.clock.Now(),
		Op:     event.Create,
		Target: string(id),
		Actor:  opts.Actor,
		After:  map[string]any(after),
	}
	s.log.Append(ev)
	s.entities[id] = after.Clone()
	if s.cache != nil {
		if err := s.cache.Put(ctx, id, after.Clone()); err != nil {
			return nil, err
		}
	}
	return after.Clone(), nil
}

// Get returns the current entity, or the entity as of opts.AsOf when set.
// A missing entity (never existed, or tombstoned with no AsOf) returns
// (nil, nil) — not an error; callers translate that to NOT_FOUND at the
// adapter boundary, mirroring spec semantics for "reads return null".
func (s *Store) Get(ctx context.Context, namespace, localID string, opts GetOptions) (Entity, error) {
	id := NewID(namespace, localID)

	if opts.AsOf != nil {
		if s.replayer == nil {
			return nil, cherrors.New(cherrors.Internal, "no time-travel replayer configured")
		}
		e, found, err := s.replayer.AsOf(ctx, id, *opts.AsOf)
		if err != nil || !found {
			return nil, err
		}
		return e, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, alive := s.entities[id]
	if !alive {
		return nil, nil
	}
	return e.Clone(), nil
}

// Snapshot returns every alive entity grouped by namespace, a point-in-time
// copy consumed by package commit to compute a DatabaseState.
func (s *Store) Snapshot(ctx context.Context) map[string][]Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string][]Entity{}
	for id, e := range s.entities {
		ns := id.Namespace()
		out[ns] = append(out[ns], e.Clone())
	}
	return out
}

// Find returns entities in namespace matching filter, evaluated through the
// injected FilterEvaluator. A nil filter matches everything.
func (s *Store) Find(ctx context.Context, namespace string, filter any, opts FindOptions) ([]Entity, error) {
	if filter != nil && s.filter == nil {
		return nil, cherrors.New(cherrors.Validation, "no filter evaluator configured")
	}

	s.mu.RLock()
	candidates := make([]Entity, 0, len(s.entities))
	for id, e := range s.entities {
		if id.Namespace() != namespace {
			continue
		}
		candidates = append(candidates, e.Clone())
	}
	s.mu.RUnlock()

	var out []Entity
	for _, e := range candidates {
		if filter != nil {
			ok, err := s.filter.Match(ctx, e, filter)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, e)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

// Update loads the current entity, applies spec, and emits UPDATE with
// before/after and version+1.
func (s *Store) Update(ctx context.Context, namespace, localID string, spec UpdateSpec, actor string) (Entity, error) {
	id := NewID(namespace, localID)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, alive := s.entities[id]
	if !alive {
		return nil, cherrors.WithPath(cherrors.NotFound, string(id), "entity does not exist")
	}
	before := current.Clone()

	mutated, embeds, err := ApplyUpdate(current, spec, false)
	if err != nil {
		return nil, err
	}
	mutated[FieldID] = string(id)
	mutated[FieldType] = namespace
	mutated[FieldVersion] = current.Version() + 1

	mutation := make(map[string]any, len(spec))
	for op, args := range spec {
		mutation[op] = args
	}

	ev := event.Event{
		ID:       event.NewID(),
		TS:       s.clock.Now(),
		Op:       event.Update,
		Target:   string(id),
		Actor:    actor,
		Before:   map[string]any(before),
		After:    map[string]any(mutated),
		Mutation: mutation,
	}
	s.log.Append(ev)
	s.entities[id] = mutated.Clone()
	if s.cache != nil {
		if err := s.cache.Put(ctx, id, mutated.Clone()); err != nil {
			return nil, err
		}
	}

	if s.embedder != nil {
		for _, req := range embeds {
			job := EmbedJob{EntityID: id, Field: req.Field, SourceText: req.SourceText, Model: req.Model, EnqueuedAt: time.Now()}
			if err := s.embedder.Dispatch(ctx, job); err != nil {
				return nil, cherrors.Wrap(cherrors.Internal, string(id), err)
			}
		}
	}

	return mutated.Clone(), nil
}

// Delete emits DELETE and moves the entity to TOMBSTONED: unreadable from
// the current view, but its history persists in the event log.
func (s *Store) Delete(ctx context.Context, namespace, localID, actor string) error {
	id := NewID(namespace, localID)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, alive := s.entities[id]
	if !alive {
		return cherrors.WithPath(cherrors.NotFound, string(id), "entity does not exist")
	}

	ev := event.Event{
		ID:     event.NewID(),
		TS:     s.clock.Now(),
		Op:     event.Delete,
		Target: string(id),
		Actor:  actor,
		Before: map[string]any(current.Clone()),
	}
	s.log.Append(ev)
	delete(s.entities, id)
	s.tombstoned[id] = current.Version()
	if s.cache != nil {
		if err := s.cache.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Revert is called by package timetravel after computing state@t; it
// applies that state as the entity's current view and appends a REVERT
// event, bringing a TOMBSTONED entity back to ALIVE when state@t is
// non-null.
func (s *Store) Revert(ctx context.Context, id ID, state Entity, actor string) (Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, alive := s.entities[id]
	var beforeMap map[string]any
	if alive {
		beforeMap = map[string]any(before.Clone())
	}

	namespace := id.Namespace()
	version := 1
	if alive {
		version = before.Version() + 1
	} else if tombstonedAt, wasTombstoned := s.tombstoned[id]; wasTombstoned {
		version = tombstonedAt + 1
	}

	after := state.StripReserved()
	after[FieldID] = string(id)
	after[FieldType] = namespace
	after[FieldVersion] = version

	ev := event.Event{
		ID:       event.NewID(),
		TS:       s.clock.Now(),
		Op:       event.Revert,
		Target:   string(id),
		Actor:    actor,
		Before:   beforeMap,
		After:    map[string]any(after),
		Metadata: map[string]any{"revert": true},
	}
	s.log.Append(ev)
	s.entities[id] = after.Clone()
	delete(s.tombstoned, id)
	if s.cache != nil {
		if err := s.cache.Put(ctx, id, after.Clone()); err != nil {
			return nil, err
		}
	}
	return after.Clone(), nil
}
