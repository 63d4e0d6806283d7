package entity

import (
	"encoding/json"
	"strconv"
	"strings"

	cherrors "github.com/evalgo-chronicle/chronicle/errors"
)

func newValidationErr(path, msg string) error {
	if path == "" {
		return cherrors.New(cherrors.Validation, msg)
	}
	return cherrors.WithPath(cherrors.Validation, path, msg)
}

// getPath navigates a dotted field-path ("address.city") through nested
// maps, returning the value found and whether the full path resolved.
func getPath(e Entity, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var cur any = map[string]any(e)
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// setPath writes value at a dotted field-path. When autoVivify is true,
// intermediate maps that don't exist yet are created; when false (as for
// operators that only make sense against existing structure, like the
// internal rewrite performed by $pull/$pullAll/$unlink) a missing intermediate map
// is silently treated as a no-op.
func setPath(e Entity, path string, value any, autoVivify bool) error {
	segments := strings.Split(path, ".")
	m := map[string]any(e)
	for i, seg := range segments {
		if i == len(segments)-1 {
			m[seg] = value
			return nil
		}
		next, ok := m[seg]
		if !ok {
			if !autoVivify {
				return nil
			}
			child := map[string]any{}
			m[seg] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			if !autoVivify {
				return nil
			}
			child = map[string]any{}
			m[seg] = child
		}
		m = child
	}
	return nil
}

// unsetPath removes the field at a dotted field-path. Unlike $set, this
// never auto-vivifies intermediate maps: a missing intermediate segment
// means there is nothing to unset.
func unsetPath(e Entity, path string) {
	segments := strings.Split(path, ".")
	m := map[string]any(e)
	for i, seg := range segments {
		if i == len(segments)-1 {
			delete(m, seg)
			return
		}
		next, ok := m[seg]
		if !ok {
			return
		}
		child, ok := next.(map[string]any)
		if !ok {
			return
		}
		m = child
	}
}

// renamePath moves the value at path to newPath (given as the operator
// argument), removing the source. It does not auto-vivify the source
// path's intermediate maps, but does auto-vivify the destination's.
func renamePath(e Entity, path string, arg any) error {
	newPath, ok := arg.(string)
	if !ok || newPath == "" {
		return newValidationErr(path, "$rename argument must be a non-empty string")
	}
	v, found := getPath(e, path)
	if !found {
		return nil
	}
	unsetPath(e, path)
	return setPath(e, newPath, v, true)
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if valuesEqual(item, v) {
			return true
		}
	}
	return false
}

// valuesEqual compares two decoded-JSON values for the equality semantics
// $pull/$pullAll/$addToSet need. Numbers are compared as float64 so that
// an int argument matches a float-decoded stored value and vice versa.
func valuesEqual(a, b any) bool {
	af, aIsNum := toFloatOK(a)
	bf, bIsNum := toFloatOK(b)
	if aIsNum && bIsNum {
		return af == bf
	}
	if am, ok := a.(map[string]any); ok {
		bm, ok := b.(map[string]any)
		if !ok || len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, ok := bm[k]
			if !ok || !valuesEqual(av, bv) {
				return false
			}
		}
		return true
	}
	if al, ok := a.([]any); ok {
		bl, ok := b.([]any)
		if !ok || len(al) != len(bl) {
			return false
		}
		for i := range al {
			if !valuesEqual(al[i], bl[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}

func toFloatOK(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, error) {
	if f, ok := toFloatOK(v); ok {
		return f, nil
	}
	if v == nil {
		return 0, nil
	}
	return 0, newValidationErr("", "expected a numeric value")
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, newValidationErr("", "expected an integer value")
		}
		return i, nil
	case nil:
		return 0, nil
	}
	return 0, newValidationErr("", "expected an integer value")
}
