// Package entity implements the event-sourced entity store (C3):
// materialized entities keyed by EntityId, with CRUD operations and the
// UpdateSpec operator set, backed by an event.Log.
package entity

import (
	"fmt"
	"strings"
)

// ID is an opaque "<namespace>/<local-id>" string.
type ID string

// Namespace returns the collection portion of an ID.
func (id ID) Namespace() string {
	s := string(id)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[:i]
	}
	return s
}

// LocalID returns the portion of an ID after the namespace separator.
func (id ID) LocalID() string {
	s := string(id)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return ""
}

// NewID joins a namespace and local id into an EntityId.
func NewID(namespace, localID string) ID {
	return ID(fmt.Sprintf("%s/%s", namespace, localID))
}

const (
	FieldID      = "$id"
	FieldType    = "$type"
	FieldVersion = "version"
)

// Entity is a mapping from field-name to value, plus the reserved
// attributes $id, $type and version.
type Entity map[string]any

// Clone returns a deep-enough copy for safe mutation (nested maps and
// slices are copied recursively; scalars are copied by value).
func (e Entity) Clone() Entity {
	if e == nil {
		return nil
	}
	return deepCopyMap(e)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// ID returns the entity's $id attribute, or "" if absent.
func (e Entity) ID() ID {
	if v, ok := e[FieldID]; ok {
		if s, ok := v.(string); ok {
			return ID(s)
		}
	}
	return ""
}

// Type returns the entity's $type attribute.
func (e Entity) Type() string {
	if v, ok := e[FieldType]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Version returns the entity's version attribute as an int.
func (e Entity) Version() int {
	switch v := e[FieldVersion].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// StripReserved returns a copy of e with $id, $type and version removed,
// used when reverting state onto an entity (the reserved attributes are
// never part of a diff/revert payload).
func (e Entity) StripReserved() Entity {
	out := e.Clone()
	delete(out, FieldID)
	delete(out, FieldType)
	delete(out, FieldVersion)
	return out
}
