package resolution

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsync/internal/diff"
	"docsync/internal/types"
)

func mergeInputs(t *testing.T, canonical, mirror string) (*types.DocumentSnapshot, *types.DocumentSnapshot, *types.Analysis) {
	t.Helper()
	canonSnap := &types.DocumentSnapshot{DocumentID: "doc-1", Content: canonical, Origin: types.OriginCanonical}
	mirrorSnap := &types.DocumentSnapshot{DocumentID: "doc-1", Content: mirror, Origin: types.OriginMirror}

	d, err := diff.Compare(canonSnap, mirrorSnap)
	require.NoError(t, err)
	return canonSnap, mirrorSnap, &types.Analysis{
		Content: types.ContentAnalysis{
			AddedSpans:   d.AddedSpans,
			RemovedSpans: d.RemovedSpans,
		},
	}
}

func TestSemanticMergeDisjointEditsKeepBoth(t *testing.T) {
	base := "intro\nmiddle\nend\n"
	canonical := "intro\ncanonical addition\nmiddle\nend\n"
	mirror := base + "mirror addition\n"

	canonSnap, mirrorSnap, a := mergeInputs(t, canonical, mirror)
	result := SemanticMerge(canonSnap, mirrorSnap, a)

	assert.Contains(t, result.Content, "canonical addition")
	assert.Contains(t, result.Content, "mirror addition")
	assert.Empty(t, result.Discarded)
	assert.InDelta(t, 1.0, result.Effectiveness, 1e-9)
}

func TestSemanticMergeOverlappingEditDiscardsWithRecord(t *testing.T) {
	canonical := "Conclusion: hypothesis supported.\n"
	mirror := "Conclusion: hypothesis refuted.\n"

	canonSnap, mirrorSnap, a := mergeInputs(t, canonical, mirror)
	result := SemanticMerge(canonSnap, mirrorSnap, a)

	// The canonical side wins the contested region; the mirror's span is
	// recorded as discarded, never silently dropped.
	assert.Equal(t, canonical, result.Content)
	require.Len(t, result.Discarded, 1)
	assert.Equal(t, "Conclusion: hypothesis refuted.", result.Discarded[0].Text)
	assert.InDelta(t, 0.5, result.Effectiveness, 1e-9)
}

// Property: for random disjoint edits, every non-whitespace span of either
// input ends up in the merge result or in the discarded log.
func TestSemanticMergeNoSilentLoss(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		lines := make([]string, 12)
		for i := range lines {
			lines[i] = fmt.Sprintf("base line %d trial %d", i, trial)
		}
		base := strings.Join(lines, "\n") + "\n"

		// Canonical inserts near the top, mirror appends at the bottom, so
		// the edits never contest the same region.
		canonLines := append([]string{fmt.Sprintf("canonical insert %d-%d", trial, rng.Intn(1000))}, lines...)
		canonical := strings.Join(canonLines, "\n") + "\n"
		mirror := base + fmt.Sprintf("mirror insert %d-%d\n", trial, rng.Intn(1000))

		canonSnap, mirrorSnap, a := mergeInputs(t, canonical, mirror)
		result := SemanticMerge(canonSnap, mirrorSnap, a)

		resultLines := map[string]bool{}
		for _, l := range strings.Split(result.Content, "\n") {
			resultLines[l] = true
		}
		discarded := map[string]bool{}
		for _, span := range result.Discarded {
			discarded[span.Text] = true
		}

		for _, input := range []string{canonical, mirror} {
			for _, l := range strings.Split(input, "\n") {
				if strings.TrimSpace(l) == "" {
					continue
				}
				assert.True(t, resultLines[l] || discarded[l],
					"trial %d lost line %q", trial, l)
			}
		}
	}
}

func TestSemanticMergeIdenticalContent(t *testing.T) {
	canonSnap, mirrorSnap, a := mergeInputs(t, "same\n", "same\n")
	result := SemanticMerge(canonSnap, mirrorSnap, a)
	assert.Equal(t, "same\n", result.Content)
	assert.InDelta(t, 1.0, result.Effectiveness, 1e-9)
	assert.Empty(t, result.Discarded)
}

func TestMergeFieldsTagUnion(t *testing.T) {
	canonical := []types.Field{
		{Name: "id", Value: "doc-1"},
		{Name: "tags", Value: []string{"sync", "draft"}},
	}
	mirror := []types.Field{
		{Name: "id", Value: "doc-1"},
		{Name: "tags", Value: []string{"sync", "reviewed"}},
		{Name: "reviewer", Value: "team-b"},
	}
	diffs := []types.FieldDiff{{
		Name:      "tags",
		Canonical: []string{"sync", "draft"},
		Mirror:    []string{"sync", "reviewed"},
		Class:     types.FieldClassFree,
		Severity:  types.SeverityLow,
	}}

	merged := mergeFields(canonical, mirror, diffs)
	byName := map[string]any{}
	for _, f := range merged {
		byName[f.Name] = f.Value
	}
	assert.Equal(t, []string{"sync", "draft", "reviewed"}, byName["tags"])
	assert.Equal(t, "doc-1", byName["id"])
	assert.Equal(t, "team-b", byName["reviewer"])
}

func TestMergeFieldsScalarKeepsCanonical(t *testing.T) {
	canonical := []types.Field{{Name: "title", Value: "Canonical Title"}}
	mirror := []types.Field{{Name: "title", Value: "Mirror Title"}}
	diffs := []types.FieldDiff{{
		Name: "title", Canonical: "Canonical Title", Mirror: "Mirror Title",
		Class: types.FieldClassGoverned, Severity: types.SeverityMedium,
	}}

	merged := mergeFields(canonical, mirror, diffs)
	require.Len(t, merged, 1)
	assert.Equal(t, "Canonical Title", merged[0].Value)
}
