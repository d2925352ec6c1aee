package diff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsync/internal/errors"
	"docsync/internal/types"
)

func snap(documentID, content string, fields []types.Field, refs []string, origin types.Origin) *types.DocumentSnapshot {
	return &types.DocumentSnapshot{
		ID:         documentID + "-" + string(origin),
		DocumentID: documentID,
		Content:    content,
		Fields:     fields,
		Outbound:   refs,
		CapturedAt: time.Now().UTC(),
		Origin:     origin,
	}
}

func TestCompareRejectsDifferentDocuments(t *testing.T) {
	a := snap("doc-1", "hello", nil, nil, types.OriginCanonical)
	b := snap("doc-2", "hello", nil, nil, types.OriginMirror)

	_, err := Compare(a, b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindIncomparableSnapshots))
}

func TestCompareIdenticalContent(t *testing.T) {
	a := snap("doc-1", "same text\n", nil, nil, types.OriginCanonical)
	b := snap("doc-1", "same text\n", nil, nil, types.OriginMirror)

	result, err := Compare(a, b)
	require.NoError(t, err)
	assert.True(t, result.Identical)
	assert.False(t, result.HasChanges())
	assert.InDelta(t, 1.0, result.Similarity, 1e-9)
	assert.Empty(t, result.AddedSpans)
	assert.Empty(t, result.RemovedSpans)
}

func TestCompareWhitespaceOnly(t *testing.T) {
	a := snap("doc-1", "A cat sat.", nil, nil, types.OriginCanonical)
	b := snap("doc-1", "A cat sat.  ", nil, nil, types.OriginMirror)

	result, err := Compare(a, b)
	require.NoError(t, err)
	assert.False(t, result.Identical)
	assert.True(t, result.WhitespaceOnly)
	assert.InDelta(t, 1.0, result.Similarity, 1e-9)
}

func TestCompareUnicodeNormalization(t *testing.T) {
	// "é" precomposed vs combining sequence normalize to the same text.
	a := snap("doc-1", "café", nil, nil, types.OriginCanonical)
	b := snap("doc-1", "café", nil, nil, types.OriginMirror)

	result, err := Compare(a, b)
	require.NoError(t, err)
	assert.True(t, result.Identical)
}

func TestCompareLineSpans(t *testing.T) {
	a := snap("doc-1", "alpha\nbeta\ngamma\n", nil, nil, types.OriginCanonical)
	b := snap("doc-1", "alpha\ndelta\ngamma\n", nil, nil, types.OriginMirror)

	result, err := Compare(a, b)
	require.NoError(t, err)

	require.Len(t, result.RemovedSpans, 1)
	assert.Equal(t, "beta", result.RemovedSpans[0].Text)
	require.Len(t, result.AddedSpans, 1)
	assert.Equal(t, "delta", result.AddedSpans[0].Text)
	assert.Equal(t, 6, result.RemovedSpans[0].Start)
	assert.Equal(t, 10, result.RemovedSpans[0].End)
}

func TestCompareMovedLinesProduceNoSpans(t *testing.T) {
	a := snap("doc-1", "one\ntwo\nthree\n", nil, nil, types.OriginCanonical)
	b := snap("doc-1", "three\none\ntwo\n", nil, nil, types.OriginMirror)

	result, err := Compare(a, b)
	require.NoError(t, err)
	assert.False(t, result.Identical)
	assert.Empty(t, result.AddedSpans)
	assert.Empty(t, result.RemovedSpans)
}

func TestCompareFieldChanges(t *testing.T) {
	a := snap("doc-1", "x", []types.Field{
		{Name: "title", Value: "Old"},
		{Name: "status", Value: "draft"},
	}, nil, types.OriginCanonical)
	b := snap("doc-1", "x", []types.Field{
		{Name: "title", Value: "New"},
		{Name: "owner", Value: "team-a"},
	}, nil, types.OriginMirror)

	result, err := Compare(a, b)
	require.NoError(t, err)
	require.Len(t, result.FieldChanges, 3)

	byName := map[string]FieldChange{}
	for _, fc := range result.FieldChanges {
		byName[fc.Name] = fc
	}
	assert.Equal(t, "Old", byName["title"].Canonical)
	assert.Equal(t, "New", byName["title"].Mirror)
	assert.False(t, byName["status"].MirrorPresent)
	assert.False(t, byName["owner"].CanonicalPresent)
}

func TestCompareReferenceDiff(t *testing.T) {
	a := snap("doc-1", "x", nil, []string{"doc-2", "doc-3"}, types.OriginCanonical)
	b := snap("doc-1", "x", nil, []string{"doc-3", "doc-4"}, types.OriginMirror)

	result, err := Compare(a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-2"}, result.RemovedReferences)
	assert.Equal(t, []string{"doc-4"}, result.AddedReferences)
	assert.True(t, result.HasChanges())
}

func TestCompareDeterministic(t *testing.T) {
	a := snap("doc-1", "alpha\nbeta\n", []types.Field{{Name: "tags", Value: []string{"x"}}}, []string{"r1", "r2"}, types.OriginCanonical)
	b := snap("doc-1", "alpha\ngamma\n", []types.Field{{Name: "tags", Value: []string{"y"}}}, []string{"r2", "r3"}, types.OriginMirror)

	first, err := Compare(a, b)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Compare(a, b)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestTokenSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"both empty", "", "", 1.0},
		{"one empty", "words here", "", 0.0},
		{"identical", "the same words", "the same words", 1.0},
		{"disjoint", "alpha beta", "gamma delta", 0.0},
		{"half overlap", "a b", "b c", 1.0 / 3.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tokenSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}
