package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplySetAutoVivifiesNestedPath(t *testing.T) {
	e := Entity{}
	out, _, err := ApplyUpdate(e, UpdateSpec{"$set": {"address.city": "Berlin"}}, false)
	require.NoError(t, err)
	addr, ok := out["address"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Berlin", addr["city"])
}

func TestApplyUnsetDoesNotAutoVivify(t *testing.T) {
	e := Entity{}
	out, _, err := ApplyUpdate(e, UpdateSpec{"$unset": {"address.city": true}}, false)
	require.NoError(t, err)
	_, exists := out["address"]
	assert.False(t, exists)
}

func TestApplyIncMissingFieldStartsAtZero(t *testing.T) {
	e := Entity{}
	out, _, err := ApplyUpdate(e, UpdateSpec{"$inc": {"views": 5.0}}, false)
	require.NoError(t, err)
	assert.Equal(t, 5.0, out["views"])
}

func TestApplyMinReplacesWhenSmaller(t *testing.T) {
	e := Entity{"score": 10.0}
	out, _, err := ApplyUpdate(e, UpdateSpec{"$min": {"score": 3.0}}, false)
	require.NoError(t, err)
	assert.Equal(t, 3.0, out["score"])

	out2, _, err := ApplyUpdate(out, UpdateSpec{"$min": {"score": 9.0}}, false)
	require.NoError(t, err)
	assert.Equal(t, 3.0, out2["score"])
}

func TestApplyPushWithEach(t *testing.T) {
	e := Entity{"tags": []any{"a"}}
	out, _, err := ApplyUpdate(e, UpdateSpec{"$push": {"tags": map[string]any{"$each": []any{"b", "c"}}}}, false)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, out["tags"])
}

func TestApplyAddToSetSkipsDuplicates(t *testing.T) {
	e := Entity{"tags": []any{"a", "b"}}
	out, _, err := ApplyUpdate(e, UpdateSpec{"$addToSet": {"tags": "a"}}, false)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, out["tags"])
}

func TestApplyPullRemovesMatchingValue(t *testing.T) {
	e := Entity{"tags": []any{"a", "b", "a"}}
	out, _, err := ApplyUpdate(e, UpdateSpec{"$pull": {"tags": "a"}}, false)
	require.NoError(t, err)
	assert.Equal(t, []any{"b"}, out["tags"])
}

func TestApplyPullRemovesValuesMatchingPredicate(t *testing.T) {
	e := Entity{"scores": []any{85.0, 90.0, 95.0, 60.0}}
	out, _, err := ApplyUpdate(e, UpdateSpec{"$pull": {"scores": map[string]any{"$gte": 90.0}}}, false)
	require.NoError(t, err)
	assert.Equal(t, []any{85.0, 60.0}, out["scores"])
}

func TestApplyPullPredicateSupportsInAndNe(t *testing.T) {
	e := Entity{"tags": []any{"a", "b", "c", "d"}}
	out, _, err := ApplyUpdate(e, UpdateSpec{"$pull": {"tags": map[string]any{"$in": []any{"b", "d"}}}}, false)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "c"}, out["tags"])

	out2, _, err := ApplyUpdate(out, UpdateSpec{"$pull": {"tags": map[string]any{"$ne": "a"}}}, false)
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, out2["tags"])
}

func TestApplyPopTailAndHead(t *testing.T) {
	e := Entity{"tags": []any{"a", "b", "c"}}
	out, _, err := ApplyUpdate(e, UpdateSpec{"$pop": {"tags": 1.0}}, false)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, out["tags"])

	out2, _, err := ApplyUpdate(out, UpdateSpec{"$pop": {"tags": -1.0}}, false)
	require.NoError(t, err)
	assert.Equal(t, []any{"b"}, out2["tags"])
}

func TestApplyUnlinkAll(t *testing.T) {
	e := Entity{"friends": []any{"a/1", "a/2"}}
	out, _, err := ApplyUpdate(e, UpdateSpec{"$unlink": {"friends": "$all"}}, false)
	require.NoError(t, err)
	assert.Equal(t, []any{}, out["friends"])
}

func TestApplyBitOperations(t *testing.T) {
	e := Entity{"flags": 0b0110}
	out, _, err := ApplyUpdate(e, UpdateSpec{"$bit": {"flags": map[string]any{"or": 0b1000}}}, false)
	require.NoError(t, err)
	assert.Equal(t, 0b1110, out["flags"])
}

func TestApplyEmbedReturnsRequestWithoutMutatingEntity(t *testing.T) {
	e := Entity{"bio": "hello world"}
	out, embeds, err := ApplyUpdate(e, UpdateSpec{"$embed": {"vector": map[string]any{"field": "hello world", "model": "m1"}}}, false)
	require.NoError(t, err)
	require.Len(t, embeds, 1)
	assert.Equal(t, "vector", embeds[0].Field)
	assert.Equal(t, "hello world", embeds[0].SourceText)
	assert.Equal(t, "m1", embeds[0].Model)
	_, exists := out["vector"]
	assert.False(t, exists)
}

func TestApplySetOnInsertOnlyAppliesWhenInserting(t *testing.T) {
	e := Entity{}
	out, _, err := ApplyUpdate(e, UpdateSpec{"$setOnInsert": {"createdBy": "system"}}, false)
	require.NoError(t, err)
	_, exists := out["createdBy"]
	assert.False(t, exists)

	out2, _, err := ApplyUpdate(e, UpdateSpec{"$setOnInsert": {"createdBy": "system"}}, true)
	require.NoError(t, err)
	assert.Equal(t, "system", out2["createdBy"])
}

func TestApplyUnknownOperatorFailsValidation(t *testing.T) {
	e := Entity{}
	_, _, err := ApplyUpdate(e, UpdateSpec{"$bogus": {"x": 1}}, false)
	require.Error(t, err)
}

func TestApplyOperatorsRunInDeterministicCategoryOrder(t *testing.T) {
	// $set (field category) must land before $inc (numeric category) even
	// though $inc is declared first in the map literal.
	e := Entity{}
	spec := UpdateSpec{
		"$inc": {"counter": 1.0},
		"$set": {"counter": 10.0},
	}
	out, _, err := ApplyUpdate(e, spec, false)
	require.NoError(t, err)
	assert.Equal(t, 11.0, out["counter"])
}
