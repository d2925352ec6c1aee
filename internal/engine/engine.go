// Package engine exposes the conflict engine's four operations: Detect,
// GetConflict, Resolve (plus ResolveMany), and Configure. It owns the
// detection worker pool and wires the analyzers, classifier, selector,
// executor, and ledger together. Transport layers live elsewhere.
package engine

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"docsync/internal/cache"
	"docsync/internal/config"
	"docsync/internal/embeddings"
	"docsync/internal/errors"
	"docsync/internal/ledger"
	"docsync/internal/logging"
	"docsync/internal/resolution"
	"docsync/internal/store"
	"docsync/internal/types"
)

// Dependencies are the engine's collaborators.
type Dependencies struct {
	Canonical  store.CanonicalStore
	Mirror     store.MirrorStore
	Ledger     ledger.Ledger
	Capability embeddings.Capability // nil disables semantic analysis
	Existence  *cache.ExistenceCache // nil disables existence caching
	Audit      resolution.AuditRecorder
	Logger     logging.Logger
}

// Engine runs detection passes and resolutions.
type Engine struct {
	deps   Dependencies
	logger logging.Logger

	// locks outlives the per-call executors so resolution stays serialized
	// per document across separate Resolve and ResolveMany calls.
	locks *resolution.DocumentLocks

	mu  sync.RWMutex
	cfg config.DetectionConfig
}

// New creates an engine with the given detection configuration.
func New(deps Dependencies, cfg config.DetectionConfig) (*Engine, error) {
	if deps.Canonical == nil || deps.Mirror == nil || deps.Ledger == nil {
		return nil, errors.New(errors.KindInvalidInput, "engine requires canonical store, mirror store, and ledger")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.KindInvalidInput, "invalid detection configuration", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Engine{
		deps:   deps,
		logger: logger.WithComponent("engine"),
		locks:  resolution.NewDocumentLocks(),
		cfg:    cfg,
	}, nil
}

// Configure replaces the detection configuration. The new configuration
// applies from the next detection pass; a running pass keeps the
// configuration it captured at start.
func (e *Engine) Configure(cfg config.DetectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(errors.KindInvalidInput, "invalid detection configuration", err)
	}
	e.mu.Lock()
	e.cfg = cfg.Clone()
	e.mu.Unlock()
	e.logger.Info("detection configuration updated", "concurrency", cfg.Concurrency)
	return nil
}

// GetConflict returns the ledger record for one conflict.
func (e *Engine) GetConflict(ctx context.Context, conflictID string) (*types.ConflictRecord, error) {
	return e.deps.Ledger.Get(ctx, conflictID)
}

// Detect runs one detection pass over the given documents, or over every
// pending document when ids is empty. The pass captures its configuration at
// start; cancellation is honored between documents.
func (e *Engine) Detect(ctx context.Context, documentIDs []string, depth types.DetectionDepth) (*types.DetectionReport, error) {
	if !depth.Valid() {
		depth = types.DepthStandard
	}
	cfg := e.snapshotConfig()
	ctx = logging.WithTraceID(ctx, "")

	if len(documentIDs) == 0 {
		lister, ok := e.deps.Canonical.(store.PendingLister)
		if !ok {
			return nil, errors.New(errors.KindInvalidInput, "no document ids given and the canonical store cannot enumerate")
		}
		var err error
		documentIDs, err = lister.PendingDocuments(ctx)
		if err != nil {
			return nil, errors.PersistenceFailure("failed to enumerate pending documents", err)
		}
	}

	started := time.Now().UTC()
	report := &types.DetectionReport{StartedAt: started, Depth: depth}
	e.logger.InfoContext(ctx, "detection pass started",
		"documents", len(documentIDs), "depth", string(depth), "concurrency", cfg.Concurrency)

	pass := &detectionPass{
		engine: e,
		cfg:    cfg,
		depth:  depth,
		logger: e.logger,
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, cfg.Concurrency)
	)
	for _, documentID := range documentIDs {
		// Cooperative checkpoint: stop dispatching once cancelled, let
		// in-flight documents finish.
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			record, degraded, err := pass.analyzeDocument(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			report.TotalAnalyzed++
			if degraded {
				report.Degraded++
			}
			if err != nil {
				e.logger.WarnContext(ctx, "document analysis failed",
					"document_id", id, "error", err.Error())
				return
			}
			if record != nil {
				report.Conflicts = append(report.Conflicts, *record)
			}
		}(documentID)
	}
	wg.Wait()

	report.ProcessingTime = time.Since(started).String()
	e.logger.InfoContext(ctx, "detection pass finished",
		"analyzed", report.TotalAnalyzed,
		"conflicts", len(report.Conflicts),
		"degraded", report.Degraded,
		"elapsed", report.ProcessingTime)
	if err := ctx.Err(); err != nil {
		return report, errors.Wrap(errors.KindInvalidInput, "detection pass cancelled", err)
	}
	return report, nil
}

// Resolve applies a strategy to one conflict.
func (e *Engine) Resolve(ctx context.Context, conflictID string, strategy types.ResolutionStrategy, createBackup bool) (*types.ResolutionOutcome, error) {
	record, err := e.deps.Ledger.Get(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	executor := resolution.NewExecutor(e.deps.Ledger, e.deps.Canonical, e.snapshotConfig(), e.deps.Audit, e.logger, e.locks)
	return executor.Execute(logging.WithTraceID(ctx, ""), record, strategy, createBackup)
}

// ResolveRequest is one entry of a batch resolution.
type ResolveRequest struct {
	ConflictID   string
	Strategy     types.ResolutionStrategy
	CreateBackup bool
}

// ResolveResult reports one batch entry's outcome or failure.
type ResolveResult struct {
	ConflictID string
	Outcome    *types.ResolutionOutcome
	Err        error
}

// ResolveMany resolves a batch, each conflict independently: one failure
// never aborts the rest. Resolutions run in parallel across documents; the
// executor serializes per document.
func (e *Engine) ResolveMany(ctx context.Context, requests []ResolveRequest) []ResolveResult {
	cfg := e.snapshotConfig()
	executor := resolution.NewExecutor(e.deps.Ledger, e.deps.Canonical, cfg, e.deps.Audit, e.logger, e.locks)
	ctx = logging.WithTraceID(ctx, "")

	results := make([]ResolveResult, len(requests))
	var wg sync.WaitGroup
	sem := make(chan struct{}, cfg.Concurrency)
	for i, req := range requests {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, req ResolveRequest) {
			defer wg.Done()
			defer func() { <-sem }()

			result := ResolveResult{ConflictID: req.ConflictID}
			record, err := e.deps.Ledger.Get(ctx, req.ConflictID)
			if err != nil {
				result.Err = err
			} else {
				result.Outcome, result.Err = executor.Execute(ctx, record, req.Strategy, req.CreateBackup)
			}
			results[i] = result
		}(i, req)
	}
	wg.Wait()
	return results
}

func (e *Engine) snapshotConfig() config.DetectionConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.Clone()
}

// shouldSample decides deterministically whether standard-depth detection
// runs semantic analysis for a document. Determinism keeps re-detection of
// an unchanged document at the same severity.
func shouldSample(documentID string, rate float64) bool {
	if rate >= 1 {
		return true
	}
	if rate <= 0 {
		return false
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(documentID))
	return float64(h.Sum32()%10000) < rate*10000
}
