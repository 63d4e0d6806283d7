// Package timetravel implements the time-travel engine (C4): asOf replay,
// history, diff and revert over an event.Log and an entity.Store.
package timetravel

import (
	"context"
	"sort"
	"strings"
	"time"

	cherrors "github.com/evalgo-chronicle/chronicle/errors"
	"github.com/evalgo-chronicle/chronicle/entity"
	"github.com/evalgo-chronicle/chronicle/event"
)

// Engine implements entity.Replayer and exposes History/Diff/Revert.
// Construct with New, then call store.SetReplayer(engine) to wire it into
// the entity store's asOf-aware Get.
type Engine struct {
	log   *event.Log
	store *entity.Store
}

// New creates an Engine over log and store.
func New(log *event.Log, store *entity.Store) *Engine {
	return &Engine{log: log, store: store}
}

// AsOf replays events for id with ts <= t, folding UpdateSpec application
// from a null starting state. If the last applicable event is DELETE, or
// no event with ts <= t exists, it returns (nil, false, nil).
func (e *Engine) AsOf(ctx context.Context, id entity.ID, t time.Time) (entity.Entity, bool, error) {
	events, err := e.eventsUpTo(ctx, id, t)
	if err != nil {
		return nil, false, err
	}
	if len(events) == 0 {
		return nil, false, nil
	}

	state, err := fold(events)
	if err != nil {
		return nil, false, err
	}
	last := events[len(events)-1]
	if last.Op == event.Delete {
		return nil, false, nil
	}
	if state == nil {
		return nil, false, nil
	}
	return state, true, nil
}

// fold replays a chronologically ordered event slice into final entity
// state, starting from null. CREATE/REVERT/UPDATE events that carry a full
// After snapshot are applied directly; this mirrors the store's own
// write path, which always records before/after snapshots rather than
// leaving the replayer to re-derive state from the Mutation column alone.
func fold(events []event.Event) (entity.Entity, error) {
	var state entity.Entity
	for _, ev := range events {
		switch ev.Op {
		case event.Create, event.Update, event.Revert:
			state = entity.Entity(ev.After)
		case event.Delete:
			state = nil
		default:
			return nil, cherrors.Newf(cherrors.Internal, "unknown event op %q", ev.Op)
		}
	}
	if state == nil {
		return nil, nil
	}
	return state.Clone(), nil
}

func (e *Engine) eventsUpTo(ctx context.Context, id entity.ID, t time.Time) ([]event.Event, error) {
	var all []event.Event
	cursor := ""
	for {
		page, err := e.log.GetEvents(ctx, string(id), event.Filter{To: &t, Limit: 500, Cursor: cursor})
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	return all, nil
}

// History delegates to the Event Log's filters for a single entity,
// returning a strictly chronologically ordered page.
func (e *Engine) History(ctx context.Context, id entity.ID, f event.Filter) (event.Page, error) {
	return e.log.GetEvents(ctx, string(id), f)
}

// Diff computes state@t1 and state@t2 via AsOf replay and reports the
// field-paths that were added, removed, or changed between them. Array-
// valued changes report the path once with the full before/after arrays;
// nested-mapping changes report dotted paths for changed leaves only.
type Diff struct {
	Added   []string
	Removed []string
	Changed []string
	Values  map[string]ValuePair
}

// ValuePair is the before/after values for one changed path in a Diff.
type ValuePair struct {
	Before any
	After  any
}

func (e *Engine) Diff(ctx context.Context, id entity.ID, t1, t2 time.Time) (Diff, error) {
	s1, _, err := e.AsOf(ctx, id, t1)
	if err != nil {
		return Diff{}, err
	}
	s2, _, err := e.AsOf(ctx, id, t2)
	if err != nil {
		return Diff{}, err
	}
	return diffEntities(s1.StripReserved(), s2.StripReserved()), nil
}

func diffEntities(before, after entity.Entity) Diff {
	d := Diff{Values: map[string]ValuePair{}}
	if before == nil && after == nil {
		return d
	}
	leaves := map[string]struct{ before, after any }{}
	collectLeaves(before, "", func(path string, v any) {
		e := leaves[path]
		e.before = v
		leaves[path] = e
	})
	present := map[string]bool{}
	for k := range leaves {
		present[k] = true
	}
	collectLeaves(after, "", func(path string, v any) {
		e, existed := leaves[path]
		e.after = v
		leaves[path] = e
		if !existed {
			present[path] = false
		}
	})

	paths := make([]string, 0, len(leaves))
	for p := range leaves {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		v := leaves[path]
		_, hadBefore := lookupLeaf(before, path)
		_, hadAfter := lookupLeaf(after, path)
		switch {
		case !hadBefore && hadAfter:
			d.Added = append(d.Added, path)
			d.Values[path] = ValuePair{Before: nil, After: v.after}
		case hadBefore && !hadAfter:
			d.Removed = append(d.Removed, path)
			d.Values[path] = ValuePair{Before: v.before, After: nil}
		case hadBefore && hadAfter && !deepEqual(v.before, v.after):
			d.Changed = append(d.Changed, path)
			d.Values[path] = ValuePair{Before: v.before, After: v.after}
		}
	}
	return d
}

func lookupLeaf(e entity.Entity, path string) (any, bool) {
	segs := strings.Split(path, ".")
	var cur any = map[string]any(e)
	for _, s := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[s]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// collectLeaves walks a nested-map structure, reporting one leaf per
// dotted path. Array values are reported as a single leaf (the full
// slice), never decomposed element-by-element.
func collectLeaves(e entity.Entity, prefix string, emit func(path string, v any)) {
	if e == nil {
		return
	}
	walkMap(map[string]any(e), prefix, emit)
}

func walkMap(m map[string]any, prefix string, emit func(path string, v any)) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			walkMap(nested, path, emit)
			continue
		}
		emit(path, v)
	}
}

func deepEqual(a, b any) bool {
	al, aok := a.([]any)
	bl, bok := b.([]any)
	if aok || bok {
		if aok != bok || len(al) != len(bl) {
			return false
		}
		for i := range al {
			if !deepEqual(al[i], bl[i]) {
				return false
			}
		}
		return true
	}
	af, aIsNum := asFloat(a)
	bf, bIsNum := asFloat(b)
	if aIsNum && bIsNum {
		return af == bf
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Revert atomically applies state@t as the entity's current state via an
// injected entity.Store, requiring t <= now and state@t non-null.
func (e *Engine) Revert(ctx context.Context, id entity.ID, t time.Time, actor string) (entity.Entity, error) {
	if t.After(time.Now()) {
		return nil, cherrors.WithPath(cherrors.Validation, string(id), "revert target time must not be in the future")
	}
	state, found, err := e.AsOf(ctx, id, t)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, cherrors.WithPath(cherrors.NotFound, string(id), "no state existed at the requested time")
	}
	return e.store.Revert(ctx, id, state, actor)
}
