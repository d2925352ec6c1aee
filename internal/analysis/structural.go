package analysis

import (
	"context"
	"sort"

	"docsync/internal/cache"
	"docsync/internal/diff"
	"docsync/internal/logging"
	"docsync/internal/retry"
	"docsync/internal/types"
)

// ExistenceChecker resolves whether the given document ids exist in the
// canonical store. Implementations should answer the whole batch in one
// round trip.
type ExistenceChecker interface {
	Exists(ctx context.Context, documentIDs []string) (map[string]bool, error)
}

// Fields whose divergence indicates the document moved rather than changed.
var organizationFields = map[string]bool{
	"path":       true,
	"parent":     true,
	"collection": true,
}

// StructuralAnalyzer classifies divergences in the reference graph. The
// existence check is the only external call; it is retried on transient
// failure and otherwise degrades to "unknown" instead of reporting a clean
// graph it never verified.
type StructuralAnalyzer struct {
	checker   ExistenceChecker
	existence *cache.ExistenceCache
	retrier   *retry.Retrier
	logger    logging.Logger
}

// NewStructuralAnalyzer creates a structural analyzer. existence may be nil
// to disable caching; checker may be nil, in which case every reference is
// reported unknown.
func NewStructuralAnalyzer(checker ExistenceChecker, existence *cache.ExistenceCache, logger logging.Logger) *StructuralAnalyzer {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &StructuralAnalyzer{
		checker:   checker,
		existence: existence,
		retrier:   retry.New(retry.WithAttempts(3)),
		logger:    logger.WithComponent("structural-analyzer"),
	}
}

// Analyze computes the symmetric reference difference and checks the union
// of both sides' references for breakage.
func (a *StructuralAnalyzer) Analyze(ctx context.Context, canonical, mirror *types.DocumentSnapshot, d *diff.Result) types.StructuralAnalysis {
	sa := types.StructuralAnalysis{
		AddedReferences:   d.AddedReferences,
		RemovedReferences: d.RemovedReferences,
		Severity:          types.SeverityNone,
	}

	for _, fc := range d.FieldChanges {
		if organizationFields[fc.Name] {
			sa.PathChanged = true
			break
		}
	}

	refs := referenceUnion(canonical.Outbound, mirror.Outbound)
	broken, unknown := a.checkExistence(ctx, refs)
	sa.BrokenReferences = broken
	sa.UnknownReferences = unknown
	sa.Degraded = len(unknown) > 0

	switch {
	case len(sa.BrokenReferences) > 3:
		sa.Severity = types.SeverityHigh
	case len(sa.BrokenReferences) > 0:
		sa.Severity = types.SeverityMedium
	case len(sa.AddedReferences) > 0 || len(sa.RemovedReferences) > 0 || sa.PathChanged || sa.Degraded:
		sa.Severity = types.SeverityLow
	}
	return sa
}

// checkExistence resolves references through the cache first, then batches
// the misses through the checker with retries. References the checker could
// not answer for come back as unknown.
func (a *StructuralAnalyzer) checkExistence(ctx context.Context, refs []string) (broken, unknown []string) {
	if len(refs) == 0 {
		return nil, nil
	}

	pending := make([]string, 0, len(refs))
	for _, ref := range refs {
		if a.existence != nil {
			if exists, found := a.existence.Get(ctx, ref); found {
				if !exists {
					broken = append(broken, ref)
				}
				continue
			}
		}
		pending = append(pending, ref)
	}

	if len(pending) == 0 {
		sort.Strings(broken)
		return broken, nil
	}
	if a.checker == nil {
		sort.Strings(broken)
		return broken, pending
	}

	var results map[string]bool
	err := a.retrier.Do(ctx, func(ctx context.Context) error {
		var lookupErr error
		results, lookupErr = a.checker.Exists(ctx, pending)
		return lookupErr
	})
	if err != nil {
		a.logger.WarnContext(ctx, "reference existence check failed, marking unknown",
			"references", len(pending), "error", err.Error())
		sort.Strings(broken)
		return broken, pending
	}

	for _, ref := range pending {
		exists, ok := results[ref]
		if !ok {
			unknown = append(unknown, ref)
			continue
		}
		if a.existence != nil {
			a.existence.Set(ctx, ref, exists)
		}
		if !exists {
			broken = append(broken, ref)
		}
	}
	sort.Strings(broken)
	sort.Strings(unknown)
	return broken, unknown
}

func referenceUnion(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	union := make([]string, 0, len(a)+len(b))
	for _, lists := range [][]string{a, b} {
		for _, ref := range lists {
			if !seen[ref] {
				seen[ref] = true
				union = append(union, ref)
			}
		}
	}
	sort.Strings(union)
	return union
}
