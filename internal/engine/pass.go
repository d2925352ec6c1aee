package engine

import (
	"context"
	"sync"

	"docsync/internal/analysis"
	"docsync/internal/config"
	"docsync/internal/diff"
	"docsync/internal/logging"
	"docsync/internal/resolution"
	"docsync/internal/types"
)

// detectionPass holds one pass's captured configuration and analyzers.
// Analyzer construction is cheap, so each pass builds its own set against
// the frozen configuration.
type detectionPass struct {
	engine *Engine
	cfg    config.DetectionConfig
	depth  types.DetectionDepth
	logger logging.Logger
}

// analyzeDocument runs the full pipeline for one document: snapshot reads,
// differencing, the three analyzers, classification, strategy selection, and
// the ledger append. Returns (nil, _, nil) when the sides do not conflict.
func (p *detectionPass) analyzeDocument(ctx context.Context, documentID string) (*types.ConflictRecord, bool, error) {
	canonical, err := p.engine.deps.Canonical.Read(ctx, documentID)
	if err != nil {
		return nil, false, err
	}
	mirror, err := p.engine.deps.Mirror.Read(ctx, documentID)
	if err != nil {
		return nil, false, err
	}

	d, err := diff.Compare(canonical, mirror)
	if err != nil {
		return nil, false, err
	}
	if !d.HasChanges() {
		return nil, false, nil
	}

	a := p.runAnalyzers(ctx, canonical, mirror, d)
	record := analysis.BuildRecord(documentID, a, canonical, mirror)
	degraded := a.Metadata.Degraded || a.Structural.Degraded
	if record == nil {
		return nil, degraded, nil
	}

	strategy := resolution.NewSelector(p.cfg).Select(record)
	record.ChosenStrategy = &strategy

	if err := p.engine.deps.Ledger.Record(ctx, record); err != nil {
		return nil, degraded, err
	}
	p.logger.InfoContext(ctx, "conflict detected",
		"conflict_id", record.ConflictID,
		"document_id", documentID,
		"severity", string(record.Severity),
		"conflict_type", string(record.Type),
		"strategy", string(strategy.Kind))
	return record, degraded, nil
}

// runAnalyzers runs the three analyzers concurrently and joins on all of
// them; the semantic analyzer bounds its own timeout.
func (p *detectionPass) runAnalyzers(ctx context.Context, canonical, mirror *types.DocumentSnapshot, d *diff.Result) *types.Analysis {
	a := &types.Analysis{Content: analysis.AnalyzeContent(d, &p.cfg)}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Metadata = analysis.NewMetadataAnalyzer(p.cfg).Analyze(canonical, mirror, d)
	}()

	structuralSkipped := p.depth == types.DepthQuick
	if !structuralSkipped {
		wg.Add(1)
		go func() {
			defer wg.Done()
			structural := analysis.NewStructuralAnalyzer(p.engine.deps.Canonical, p.engine.deps.Existence, p.logger)
			a.Structural = structural.Analyze(ctx, canonical, mirror, d)
		}()
	} else {
		a.Structural = types.StructuralAnalysis{Severity: types.SeverityNone}
	}

	if p.semanticWanted(canonical.DocumentID) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			semantic := analysis.NewSemanticAnalyzer(p.engine.deps.Capability, p.cfg, p.logger)
			a.Content, a.SemanticSkipped = semantic.Refine(ctx, canonical, mirror, a.Content)
		}()
	} else {
		a.SemanticSkipped = true
	}

	wg.Wait()
	return a
}

// semanticWanted applies the depth policy: quick never, deep always,
// standard by deterministic sampling.
func (p *detectionPass) semanticWanted(documentID string) bool {
	if p.engine.deps.Capability == nil {
		return false
	}
	switch p.depth {
	case types.DepthQuick:
		return false
	case types.DepthDeep:
		return true
	default:
		return shouldSample(documentID, p.cfg.SemanticSampleRate)
	}
}
