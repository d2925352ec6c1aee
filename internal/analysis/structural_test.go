package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsync/internal/cache"
	"docsync/internal/diff"
	"docsync/internal/types"
)

// fakeChecker answers existence from a fixed map and can fail a number of
// times before succeeding.
type fakeChecker struct {
	existing  map[string]bool
	failTimes int
	calls     int
}

func (f *fakeChecker) Exists(ctx context.Context, documentIDs []string) (map[string]bool, error) {
	f.calls++
	if f.failTimes > 0 {
		f.failTimes--
		return nil, errors.New("store unreachable")
	}
	out := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		out[id] = f.existing[id]
	}
	return out, nil
}

func refSnap(refs ...string) *types.DocumentSnapshot {
	return &types.DocumentSnapshot{DocumentID: "doc-1", Outbound: refs}
}

func TestStructuralAnalyzerBrokenReference(t *testing.T) {
	checker := &fakeChecker{existing: map[string]bool{"doc-2": true, "doc-3": false}}
	analyzer := NewStructuralAnalyzer(checker, nil, nil)

	d := &diff.Result{AddedReferences: []string{"doc-3"}}
	sa := analyzer.Analyze(context.Background(), refSnap("doc-2"), refSnap("doc-2", "doc-3"), d)

	assert.Equal(t, []string{"doc-3"}, sa.BrokenReferences)
	assert.Equal(t, types.SeverityMedium, sa.Severity)
	assert.False(t, sa.Degraded)
}

func TestStructuralAnalyzerManyBrokenReferencesEscalate(t *testing.T) {
	checker := &fakeChecker{existing: map[string]bool{}}
	analyzer := NewStructuralAnalyzer(checker, nil, nil)

	refs := []string{"a", "b", "c", "d"}
	sa := analyzer.Analyze(context.Background(), refSnap(refs...), refSnap(refs...), &diff.Result{})
	assert.Len(t, sa.BrokenReferences, 4)
	assert.Equal(t, types.SeverityHigh, sa.Severity)
}

func TestStructuralAnalyzerChangesWithoutBreakageAreLow(t *testing.T) {
	checker := &fakeChecker{existing: map[string]bool{"doc-2": true, "doc-3": true}}
	analyzer := NewStructuralAnalyzer(checker, nil, nil)

	d := &diff.Result{AddedReferences: []string{"doc-3"}, RemovedReferences: []string{"doc-2"}}
	sa := analyzer.Analyze(context.Background(), refSnap("doc-2"), refSnap("doc-3"), d)
	assert.Empty(t, sa.BrokenReferences)
	assert.Equal(t, types.SeverityLow, sa.Severity)
}

func TestStructuralAnalyzerRetriesTransientFailures(t *testing.T) {
	checker := &fakeChecker{existing: map[string]bool{"doc-2": true}, failTimes: 2}
	analyzer := NewStructuralAnalyzer(checker, nil, nil)

	sa := analyzer.Analyze(context.Background(), refSnap("doc-2"), refSnap("doc-2"), &diff.Result{})
	assert.Equal(t, 3, checker.calls)
	assert.Empty(t, sa.BrokenReferences)
	assert.Empty(t, sa.UnknownReferences)
	assert.False(t, sa.Degraded)
}

func TestStructuralAnalyzerExhaustedRetriesReportUnknown(t *testing.T) {
	checker := &fakeChecker{existing: map[string]bool{"doc-2": true}, failTimes: 10}
	analyzer := NewStructuralAnalyzer(checker, nil, nil)

	sa := analyzer.Analyze(context.Background(), refSnap("doc-2"), refSnap("doc-2"), &diff.Result{})
	// Never silently "no conflict": the unchecked reference surfaces as
	// unknown and the analysis is degraded.
	assert.Equal(t, []string{"doc-2"}, sa.UnknownReferences)
	assert.True(t, sa.Degraded)
	assert.Equal(t, types.SeverityLow, sa.Severity)
}

func TestStructuralAnalyzerNilCheckerReportsUnknown(t *testing.T) {
	analyzer := NewStructuralAnalyzer(nil, nil, nil)

	sa := analyzer.Analyze(context.Background(), refSnap("doc-2"), refSnap(), &diff.Result{RemovedReferences: []string{"doc-2"}})
	assert.Equal(t, []string{"doc-2"}, sa.UnknownReferences)
	assert.True(t, sa.Degraded)
}

func TestStructuralAnalyzerUsesExistenceCache(t *testing.T) {
	existence := cache.NewExistenceCache(cache.NewMemoryStore(16, time.Minute))
	existence.Set(context.Background(), "doc-2", false)

	checker := &fakeChecker{existing: map[string]bool{"doc-2": true}}
	analyzer := NewStructuralAnalyzer(checker, existence, nil)

	sa := analyzer.Analyze(context.Background(), refSnap("doc-2"), refSnap("doc-2"), &diff.Result{})
	// Cached answer wins; the checker is never consulted.
	assert.Equal(t, 0, checker.calls)
	assert.Equal(t, []string{"doc-2"}, sa.BrokenReferences)
}

func TestStructuralAnalyzerPathChange(t *testing.T) {
	checker := &fakeChecker{existing: map[string]bool{}}
	analyzer := NewStructuralAnalyzer(checker, nil, nil)

	d := &diff.Result{FieldChanges: []diff.FieldChange{{
		Name: "path", Canonical: "/a/doc", Mirror: "/b/doc",
		CanonicalPresent: true, MirrorPresent: true,
	}}}
	sa := analyzer.Analyze(context.Background(), refSnap(), refSnap(), d)
	require.True(t, sa.PathChanged)
	assert.Equal(t, types.SeverityLow, sa.Severity)
}
