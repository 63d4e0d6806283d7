package entity

import (
	"sort"
	"time"

	cherrors "github.com/evalgo-chronicle/chronicle/errors"
)

// UpdateSpec is a mutation instruction: each operator key maps to a
// sub-mapping of field-paths to operator arguments.
type UpdateSpec map[string]map[string]any

// operator categories, in the deterministic application order the spec
// requires: field, numeric, array, date, relationship, bitwise, embedding.
var categoryOf = map[string]int{
	"$set": 0, "$unset": 0, "$rename": 0, "$setOnInsert": 0,
	"$inc": 1, "$mul": 1, "$min": 1, "$max": 1,
	"$push": 2, "$pull": 2, "$pullAll": 2, "$addToSet": 2, "$pop": 2,
	"$currentDate": 3,
	"$link":        4, "$unlink": 4,
	"$bit": 5,
	"$embed": 6,
}

// EmbedRequest is emitted for every $embed operator encountered, left for
// the caller (entity.Store) to dispatch to the embeddings queue — ApplyUpdate
// itself stays a pure function with no side effects.
type EmbedRequest struct {
	Field      string
	SourceText string
	Model      string
}

// ApplyUpdate is the pure function (entity, spec) -> entity named in
// SPEC_FULL.md's entity module. isInsert gates $setOnInsert. Returns the
// mutated entity (a fresh copy; the input is never modified) and any
// $embed requests to dispatch.
func ApplyUpdate(e Entity, spec UpdateSpec, isInsert bool) (Entity, []EmbedRequest, error) {
	out := e.Clone()
	if out == nil {
		out = Entity{}
	}

	operators := make([]string, 0, len(spec))
	for op := range spec {
		if _, known := categoryOf[op]; !known {
			return nil, nil, cherrors.Newf(cherrors.Validation, "unknown update operator %q", op)
		}
		operators = append(operators, op)
	}
	sort.Slice(operators, func(i, j int) bool {
		ci, cj := categoryOf[operators[i]], categoryOf[operators[j]]
		if ci != cj {
			return ci < cj
		}
		return operators[i] < operators[j]
	})

	var embeds []EmbedRequest
	for _, op := range operators {
		args := spec[op]
		paths := make([]string, 0, len(args))
		for p := range args {
			paths = append(paths, p)
		}
		sort.Strings(paths)

		for _, path := range paths {
			arg := args[path]
			var err error
			var embed *EmbedRequest
			switch op {
			case "$set":
				err = setPath(out, path, arg, true)
			case "$unset":
				unsetPath(out, path)
			case "$rename":
				err = renamePath(out, path, arg)
			case "$setOnInsert":
				if isInsert {
					err = setPath(out, path, arg, true)
				}
			case "$inc":
				err = applyInc(out, path, arg)
			case "$mul":
				err = applyMul(out, path, arg)
			case "$min":
				err = applyMinMax(out, path, arg, true)
			case "$max":
				err = applyMinMax(out, path, arg, false)
			case "$push":
				err = applyPush(out, path, arg, false)
			case "$addToSet":
				err = applyPush(out, path, arg, true)
			case "$pull":
				applyPull(out, path, arg)
			case "$pullAll":
				applyPullAll(out, path, arg)
			case "$pop":
				err = applyPop(out, path, arg)
			case "$currentDate":
				err = applyCurrentDate(out, path, arg)
			case "$link":
				err = applyLink(out, path, arg)
			case "$unlink":
				err = applyUnlink(out, path, arg)
			case "$bit":
				err = applyBit(out, path, arg)
			case "$embed":
				embed, err = applyEmbed(out, path, arg)
			}
			if err != nil {
				return nil, nil, err
			}
			if embed != nil {
				embeds = append(embeds, *embed)
			}
		}
	}
	return out, embeds, nil
}

func applyInc(e Entity, path string, arg any) error {
	delta, err := toFloat(arg)
	if err != nil {
		return cherrors.WithPath(cherrors.Validation, path, "$inc argument must be numeric")
	}
	current, _ := getPath(e, path)
	cur, _ := toFloat(current)
	return setPath(e, path, cur+delta, true)
}

func applyMul(e Entity, path string, arg any) error {
	factor, err := toFloat(arg)
	if err != nil {
		return cherrors.WithPath(cherrors.Validation, path, "$mul argument must be numeric")
	}
	current, _ := getPath(e, path)
	cur, _ := toFloat(current)
	return setPath(e, path, cur*factor, true)
}

func applyMinMax(e Entity, path string, arg any, wantMin bool) error {
	candidate, err := toFloat(arg)
	if err != nil {
		return cherrors.WithPath(cherrors.Validation, path, "$min/$max argument must be numeric")
	}
	current, ok := getPath(e, path)
	if !ok {
		return setPath(e, path, candidate, true)
	}
	cur, err := toFloat(current)
	if err != nil {
		return setPath(e, path, candidate, true)
	}
	if wantMin && candidate < cur {
		return setPath(e, path, candidate, true)
	}
	if !wantMin && candidate > cur {
		return setPath(e, path, candidate, true)
	}
	return nil
}

func applyPush(e Entity, path string, arg any, onlyIfAbsent bool) error {
	current, _ := getPath(e, path)
	list, _ := current.([]any)

	var toAppend []any
	if m, ok := arg.(map[string]any); ok {
		if each, ok := m["$each"]; ok {
			if s, ok := each.([]any); ok {
				toAppend = s
			}
		} else {
			toAppend = []any{arg}
		}
	} else {
		toAppend = []any{arg}
	}

	for _, v := range toAppend {
		if onlyIfAbsent && containsValue(list, v) {
			continue
		}
		list = append(list, v)
	}
	return setPath(e, path, list, true)
}

// pullPredicateKeys are the Mongo-style query operators $pull accepts in
// place of a scalar equality value.
var pullPredicateKeys = map[string]bool{
	"$eq": true, "$ne": true, "$gt": true, "$gte": true, "$lt": true, "$lte": true,
	"$in": true, "$nin": true,
}

// asPullPredicate reports whether arg is a predicate object (every key a
// recognized query operator) rather than a scalar or structural value to
// match by equality.
func asPullPredicate(arg any) (map[string]any, bool) {
	m, ok := arg.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !pullPredicateKeys[k] {
			return nil, false
		}
	}
	return m, true
}

// matchesPullPredicate evaluates v against a $pull predicate object, ANDing
// every operator present (Mongo semantics for a single query document).
func matchesPullPredicate(v any, predicate map[string]any) bool {
	for op, operand := range predicate {
		switch op {
		case "$eq":
			if !valuesEqual(v, operand) {
				return false
			}
		case "$ne":
			if valuesEqual(v, operand) {
				return false
			}
		case "$gt", "$gte", "$lt", "$lte":
			vf, vOk := toFloatOK(v)
			of, oOk := toFloatOK(operand)
			if !vOk || !oOk {
				return false
			}
			switch op {
			case "$gt":
				if !(vf > of) {
					return false
				}
			case "$gte":
				if !(vf >= of) {
					return false
				}
			case "$lt":
				if !(vf < of) {
					return false
				}
			case "$lte":
				if !(vf <= of) {
					return false
				}
			}
		case "$in":
			list, _ := operand.([]any)
			if !containsValue(list, v) {
				return false
			}
		case "$nin":
			list, _ := operand.([]any)
			if containsValue(list, v) {
				return false
			}
		}
	}
	return true
}

func applyPull(e Entity, path string, arg any) {
	current, _ := getPath(e, path)
	list, ok := current.([]any)
	if !ok {
		return
	}
	predicate, isPredicate := asPullPredicate(arg)
	var out []any
	for _, v := range list {
		var remove bool
		if isPredicate {
			remove = matchesPullPredicate(v, predicate)
		} else {
			remove = valuesEqual(v, arg)
		}
		if !remove {
			out = append(out, v)
		}
	}
	_ = setPath(e, path, out, false)
}

func applyPullAll(e Entity, path string, arg any) {
	current, _ := getPath(e, path)
	list, ok := current.([]any)
	if !ok {
		return
	}
	remove, _ := arg.([]any)
	var out []any
	for _, v := range list {
		if !containsValue(remove, v) {
			out = append(out, v)
		}
	}
	_ = setPath(e, path, out, false)
}

func applyPop(e Entity, path string, arg any) error {
	current, _ := getPath(e, path)
	list, ok := current.([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	dir, err := toFloat(arg)
	if err != nil {
		return cherrors.WithPath(cherrors.Validation, path, "$pop argument must be 1 or -1")
	}
	if dir >= 0 {
		list = list[:len(list)-1]
	} else {
		list = list[1:]
	}
	return setPath(e, path, list, true)
}

func applyCurrentDate(e Entity, path string, arg any) error {
	now := time.Now().UTC()
	switch v := arg.(type) {
	case bool:
		if !v {
			return nil
		}
		return setPath(e, path, now.Format(time.RFC3339Nano), true)
	case map[string]any:
		if t, _ := v["$type"].(string); t == "timestamp" {
			return setPath(e, path, now.Unix(), true)
		}
		return setPath(e, path, now.Format(time.RFC3339Nano), true)
	default:
		return cherrors.WithPath(cherrors.Validation, path, "$currentDate argument must be true or {$type}")
	}
}

func applyLink(e Entity, path string, arg any) error {
	ids := toIDSlice(arg)
	current, _ := getPath(e, path)
	list, _ := current.([]any)
	for _, id := range ids {
		if !containsValue(list, id) {
			list = append(list, id)
		}
	}
	return setPath(e, path, list, true)
}

func applyUnlink(e Entity, path string, arg any) error {
	if s, ok := arg.(string); ok && s == "$all" {
		return setPath(e, path, []any{}, false)
	}
	remove := toIDSlice(arg)
	current, _ := getPath(e, path)
	list, ok := current.([]any)
	if !ok {
		return nil
	}
	var out []any
	for _, v := range list {
		if !containsValue(remove, v) {
			out = append(out, v)
		}
	}
	return setPath(e, path, out, false)
}

func toIDSlice(arg any) []any {
	if s, ok := arg.([]any); ok {
		return s
	}
	return []any{arg}
}

func applyBit(e Entity, path string, arg any) error {
	ops, ok := arg.(map[string]any)
	if !ok {
		return cherrors.WithPath(cherrors.Validation, path, "$bit argument must be {and|or|xor: int}")
	}
	current, _ := getPath(e, path)
	cur, _ := toInt(current)
	for opName, opArg := range ops {
		n, err := toInt(opArg)
		if err != nil {
			return cherrors.WithPath(cherrors.Validation, path, "$bit operand must be an integer")
		}
		switch opName {
		case "and":
			cur &= n
		case "or":
			cur |= n
		case "xor":
			cur ^= n
		default:
			return cherrors.WithPath(cherrors.Validation, path, "unknown $bit operation "+opName)
		}
	}
	return setPath(e, path, cur, true)
}

func applyEmbed(e Entity, path string, arg any) (*EmbedRequest, error) {
	req := &EmbedRequest{Field: path}
	switch v := arg.(type) {
	case string:
		req.SourceText = v
	case map[string]any:
		if f, ok := v["field"].(string); ok {
			req.SourceText = f
		}
		if m, ok := v["model"].(string); ok {
			req.Model = m
		}
	default:
		return nil, cherrors.WithPath(cherrors.Validation, path, "$embed argument must be a field name or {field, model}")
	}
	return req, nil
}
