// docsync runs the sync conflict engine against the configured stores: one
// detection pass, optional auto-resolution of what the selector permits, and
// a severity-colored report.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"docsync/internal/audit"
	"docsync/internal/cache"
	"docsync/internal/config"
	"docsync/internal/embeddings"
	"docsync/internal/engine"
	"docsync/internal/ledger"
	"docsync/internal/logging"
	"docsync/internal/persistence"
	"docsync/internal/resolution"
	"docsync/internal/store"
	"docsync/internal/types"
)

func main() {
	var (
		depthFlag   = flag.String("depth", "standard", "Detection depth: quick, standard, or deep")
		resolveFlag = flag.Bool("resolve", false, "Apply the selected strategy to auto-resolvable conflicts")
		exportFlag  = flag.String("export", "", "Export unresolved ledger history to this directory after the pass")
		seedFlag    = flag.Bool("seed-demo", false, "Seed in-memory stores with demo documents")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.NewLogger(logging.ParseLevel(cfg.Logging.Level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cacheStore := buildCacheStore(ctx, cfg, logger)
	defer func() { _ = cacheStore.Close() }()

	led, err := buildLedger(cfg)
	if err != nil {
		log.Fatalf("Failed to open ledger: %v", err)
	}
	defer func() { _ = led.Close() }()

	var trail resolution.AuditRecorder
	if cfg.Audit.Enabled {
		auditTrail, auditErr := audit.NewTrail(cfg.Audit.Dir, logger)
		if auditErr != nil {
			log.Fatalf("Failed to open audit trail: %v", auditErr)
		}
		defer func() { _ = auditTrail.Close() }()
		trail = auditTrail
	}

	canonical := store.NewMemoryStore(types.OriginCanonical)
	mirror := store.NewMemoryStore(types.OriginMirror)
	if *seedFlag {
		seedDemo(canonical, mirror)
	}

	eng, err := engine.New(engine.Dependencies{
		Canonical:  canonical,
		Mirror:     mirror,
		Ledger:     led,
		Capability: buildCapability(cfg, cacheStore, logger),
		Existence:  cache.NewExistenceCache(cacheStore),
		Audit:      trail,
		Logger:     logger,
	}, cfg.Detection)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	report, err := eng.Detect(ctx, flag.Args(), types.DetectionDepth(*depthFlag))
	if err != nil {
		log.Fatalf("Detection pass failed: %v", err)
	}
	printReport(report)

	if *resolveFlag {
		autoResolve(ctx, eng, report)
	}

	if *exportFlag != "" {
		exporter := persistence.NewExporter(led, *exportFlag)
		metadata, exportErr := exporter.Export(ctx, types.SeverityLow, types.SeverityCritical)
		if exportErr != nil {
			log.Fatalf("Ledger export failed: %v", exportErr)
		}
		fmt.Printf("Exported %d records (%d bytes)\n", metadata.RecordCount, metadata.Size)
	}
}

func buildCacheStore(ctx context.Context, cfg *config.Config, logger logging.Logger) cache.Store {
	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	if cfg.Cache.Provider == "redis" {
		redisStore, err := cache.NewRedisStore(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			TTL:      ttl,
		}, logger)
		if err != nil {
			logger.Warn("redis cache unavailable, falling back to in-process cache", "error", err.Error())
		} else {
			return redisStore
		}
	}
	return cache.NewMemoryStore(cfg.Cache.MaxEntries, ttl)
}

func buildLedger(cfg *config.Config) (ledger.Ledger, error) {
	if cfg.Ledger.Driver == "postgres" {
		return ledger.NewPostgresLedger(cfg.Ledger.DSN)
	}
	return ledger.NewSQLiteLedger(cfg.Ledger.Path)
}

func buildCapability(cfg *config.Config, cacheStore cache.Store, logger logging.Logger) embeddings.Capability {
	if !cfg.Semantic.Enabled {
		return nil
	}
	client, err := embeddings.NewOpenAIClient(&embeddings.OpenAIConfig{
		APIKey:  cfg.Semantic.APIKey,
		BaseURL: cfg.Semantic.BaseURL,
		Model:   cfg.Semantic.EmbeddingModel,
		Timeout: time.Duration(cfg.Semantic.RequestTimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		logger.Warn("semantic capability disabled", "error", err.Error())
		return nil
	}
	return embeddings.NewGuardedCapability(client, cache.NewSimilarityCache(cacheStore))
}

func printReport(report *types.DetectionReport) {
	bold := color.New(color.Bold)
	_, _ = bold.Printf("Analyzed %d documents in %s (depth: %s)\n",
		report.TotalAnalyzed, report.ProcessingTime, report.Depth)
	if report.Degraded > 0 {
		color.Yellow("%d documents analyzed with partial data", report.Degraded)
	}
	if len(report.Conflicts) == 0 {
		color.Green("No conflicts detected")
		return
	}

	for i := range report.Conflicts {
		c := &report.Conflicts[i]
		severityColor(c.Severity).Printf("[%s]", c.Severity)
		fmt.Printf(" %s  document=%s type=%s confidence=%.2f",
			c.ConflictID[:8], c.DocumentID, c.Type, c.Confidence)
		if c.ChosenStrategy != nil {
			fmt.Printf(" strategy=%s", c.ChosenStrategy.Kind)
			if c.ChosenStrategy.UserInterventionRequired {
				fmt.Print(" (needs review)")
			}
		}
		fmt.Println()
	}
}

func severityColor(s types.Severity) *color.Color {
	switch s {
	case types.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case types.SeverityHigh:
		return color.New(color.FgRed)
	case types.SeverityMedium:
		return color.New(color.FgYellow)
	case types.SeverityLow:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgWhite)
	}
}

func autoResolve(ctx context.Context, eng *engine.Engine, report *types.DetectionReport) {
	var requests []engine.ResolveRequest
	for i := range report.Conflicts {
		c := &report.Conflicts[i]
		if c.ChosenStrategy == nil || !c.ChosenStrategy.Kind.AutoResolving() {
			continue
		}
		requests = append(requests, engine.ResolveRequest{
			ConflictID:   c.ConflictID,
			Strategy:     *c.ChosenStrategy,
			CreateBackup: true,
		})
	}
	if len(requests) == 0 {
		fmt.Println("Nothing to auto-resolve")
		return
	}

	for _, result := range eng.ResolveMany(ctx, requests) {
		if result.Err != nil {
			color.Red("resolve %s: %v", result.ConflictID[:8], result.Err)
			continue
		}
		color.Green("resolved %s via %s (effectiveness %.2f)",
			result.ConflictID[:8], result.Outcome.StrategyApplied, result.Outcome.Effectiveness)
	}
	_ = os.Stdout.Sync()
}

func seedDemo(canonical, mirror *store.MemoryStore) {
	fields := []types.Field{
		{Name: "id", Value: "doc-1"},
		{Name: "type", Value: "note"},
		{Name: "title", Value: "Findings"},
		{Name: "tags", Value: []string{"sync", "draft"}},
	}
	canonical.Put("doc-1", "# Findings\n\nConclusion: hypothesis supported.\n", fields)

	mirrorFields := []types.Field{
		{Name: "id", Value: "doc-1"},
		{Name: "type", Value: "note"},
		{Name: "title", Value: "Findings"},
		{Name: "tags", Value: []string{"sync", "reviewed"}},
	}
	mirror.Put("doc-1", "# Findings\n\nConclusion: hypothesis supported.\n\nSee [notes](notes.md).\n", mirrorFields)

	canonical.Put("doc-2", "A cat sat.\n", nil)
	mirror.Put("doc-2", "A cat sat.  \n", nil)
}
