// Package config holds the engine configuration. A detection pass captures
// its DetectionConfig value at start, so concurrent reconfiguration can never
// produce a pass with mixed thresholds.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"docsync/internal/types"
)

// Config is the full engine configuration.
type Config struct {
	Detection DetectionConfig `json:"detection"`
	Ledger    LedgerConfig    `json:"ledger"`
	Cache     CacheConfig     `json:"cache"`
	Semantic  SemanticConfig  `json:"semantic"`
	Audit     AuditConfig     `json:"audit"`
	Logging   LoggingConfig   `json:"logging"`
}

// DetectionConfig tunes conflict detection and strategy selection. It is a
// plain value: the engine copies it at pass start and never reads the live
// configuration mid-pass.
type DetectionConfig struct {
	// Concurrency bounds the number of documents analyzed in parallel.
	Concurrency int `json:"concurrency"`

	// SemanticTimeoutSeconds bounds the wait on the semantic analyzer only.
	SemanticTimeoutSeconds int `json:"semantic_timeout_seconds"`

	// SemanticSampleRate is the fraction of documents that get semantic
	// analysis at standard depth. Deep depth forces it on every document.
	SemanticSampleRate float64 `json:"semantic_sample_rate"`

	// Similarity breakpoints mapping content similarity to severity.
	// >SimilarityNone => none, >=SimilarityLow => low,
	// >=SimilarityMedium => medium, below => high.
	SimilarityNone   float64 `json:"similarity_none"`
	SimilarityLow    float64 `json:"similarity_low"`
	SimilarityMedium float64 `json:"similarity_medium"`

	// MergeConfidenceThreshold gates SemanticMerge at low severity.
	MergeConfidenceThreshold float64 `json:"merge_confidence_threshold"`

	AutoResolveLowSeverity bool `json:"auto_resolve_low_severity"`
	AutoResolveMedium      bool `json:"auto_resolve_medium"`

	// PreferredSide is the default side for low-severity auto-resolution.
	PreferredSide types.Origin `json:"preferred_side"`

	// GovernedFieldSeverity is the severity assigned to governed-field
	// mismatches. Identity fields are always critical, free fields low.
	GovernedFieldSeverity types.Severity `json:"governed_field_severity"`

	// FieldClasses maps structured field names to their policy class.
	// Unlisted fields are treated as free.
	FieldClasses map[string]types.FieldClass `json:"field_classes"`

	// BranchRelinkReferences controls whether Branch rewrites structural
	// references from the original document to the new sibling.
	BranchRelinkReferences bool `json:"branch_relink_references"`
}

// LedgerConfig selects and configures the conflict ledger backend.
type LedgerConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `json:"driver"`
	// Path is the sqlite database file (":memory:" for tests).
	Path string `json:"path"`
	// DSN is the postgres connection string.
	DSN string `json:"-"`
}

// CacheConfig configures the shared read-mostly caches.
type CacheConfig struct {
	// Provider is "memory" or "redis".
	Provider   string `json:"provider"`
	TTLSeconds int    `json:"ttl_seconds"`
	MaxEntries int    `json:"max_entries"`

	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redis_db"`
}

// SemanticConfig configures the optional embedding/intent capability.
type SemanticConfig struct {
	Enabled               bool   `json:"enabled"`
	APIKey                string `json:"-"`
	BaseURL               string `json:"base_url"`
	EmbeddingModel        string `json:"embedding_model"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// AuditConfig configures the resolution audit trail.
type AuditConfig struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `json:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Detection: DefaultDetectionConfig(),
		Ledger: LedgerConfig{
			Driver: "sqlite",
			Path:   "./data/conflicts.db",
		},
		Cache: CacheConfig{
			Provider:   "memory",
			TTLSeconds: 3600,
			MaxEntries: 10000,
			RedisAddr:  "localhost:6379",
		},
		Semantic: SemanticConfig{
			Enabled:               false,
			BaseURL:               "https://api.openai.com/v1",
			EmbeddingModel:        "text-embedding-3-small",
			RequestTimeoutSeconds: 30,
		},
		Audit: AuditConfig{
			Enabled: true,
			Dir:     "./data/audit",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// DefaultDetectionConfig returns the default detection thresholds.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		Concurrency:              10,
		SemanticTimeoutSeconds:   10,
		SemanticSampleRate:       0.25,
		SimilarityNone:           0.95,
		SimilarityLow:            0.80,
		SimilarityMedium:         0.60,
		MergeConfidenceThreshold: 0.80,
		AutoResolveLowSeverity:   true,
		AutoResolveMedium:        false,
		PreferredSide:            types.OriginCanonical,
		GovernedFieldSeverity:    types.SeverityMedium,
		FieldClasses: map[string]types.FieldClass{
			"id":         types.FieldClassIdentity,
			"type":       types.FieldClassIdentity,
			"created_at": types.FieldClassIdentity,
			"title":      types.FieldClassGoverned,
			"status":     types.FieldClassGoverned,
			"tags":       types.FieldClassFree,
		},
		BranchRelinkReferences: false,
	}
}

// Load reads configuration from the environment (and a .env file if one
// exists), applying overrides on top of the defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := DefaultConfig()
	loadFromEnv(cfg)

	if table := os.Getenv("DOCSYNC_FIELD_TABLE"); table != "" {
		classes, err := LoadFieldTable(table)
		if err != nil {
			return nil, err
		}
		cfg.Detection.FieldClasses = classes
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) {
	loadDetectionEnv(&cfg.Detection)
	loadLedgerEnv(&cfg.Ledger)
	loadCacheEnv(&cfg.Cache)
	loadSemanticEnv(&cfg.Semantic)

	if dir := os.Getenv("DOCSYNC_AUDIT_DIR"); dir != "" {
		cfg.Audit.Dir = dir
	}
	if enabled := os.Getenv("DOCSYNC_AUDIT_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			cfg.Audit.Enabled = b
		}
	}
	if level := os.Getenv("DOCSYNC_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

func loadDetectionEnv(d *DetectionConfig) {
	if v := os.Getenv("DOCSYNC_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			d.Concurrency = n
		}
	}
	if v := os.Getenv("DOCSYNC_SEMANTIC_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			d.SemanticTimeoutSeconds = n
		}
	}
	if v := os.Getenv("DOCSYNC_SEMANTIC_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			d.SemanticSampleRate = f
		}
	}
	if v := os.Getenv("DOCSYNC_MERGE_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			d.MergeConfidenceThreshold = f
		}
	}
	if v := os.Getenv("DOCSYNC_AUTO_RESOLVE_LOW"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			d.AutoResolveLowSeverity = b
		}
	}
	if v := os.Getenv("DOCSYNC_AUTO_RESOLVE_MEDIUM"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			d.AutoResolveMedium = b
		}
	}
	if v := os.Getenv("DOCSYNC_PREFERRED_SIDE"); v != "" {
		d.PreferredSide = types.Origin(v)
	}
	if v := os.Getenv("DOCSYNC_BRANCH_RELINK_REFERENCES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			d.BranchRelinkReferences = b
		}
	}
}

func loadLedgerEnv(l *LedgerConfig) {
	if v := os.Getenv("DOCSYNC_LEDGER_DRIVER"); v != "" {
		l.Driver = v
	}
	if v := os.Getenv("DOCSYNC_LEDGER_PATH"); v != "" {
		l.Path = v
	}
	if v := os.Getenv("DOCSYNC_LEDGER_DSN"); v != "" {
		l.DSN = v
	}
}

func loadCacheEnv(c *CacheConfig) {
	if v := os.Getenv("DOCSYNC_CACHE_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("DOCSYNC_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TTLSeconds = n
		}
	}
	if v := os.Getenv("DOCSYNC_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("DOCSYNC_REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("DOCSYNC_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RedisDB = n
		}
	}
}

func loadSemanticEnv(s *SemanticConfig) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		s.APIKey = v
		s.Enabled = true
	}
	if v := os.Getenv("DOCSYNC_SEMANTIC_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.Enabled = b
		}
	}
	if v := os.Getenv("DOCSYNC_SEMANTIC_BASE_URL"); v != "" {
		s.BaseURL = v
	}
	if v := os.Getenv("DOCSYNC_EMBEDDING_MODEL"); v != "" {
		s.EmbeddingModel = v
	}
	if v := os.Getenv("DOCSYNC_SEMANTIC_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.RequestTimeoutSeconds = n
		}
	}
}

// fieldTable is the YAML shape of the field classification table.
type fieldTable struct {
	Identity []string `yaml:"identity"`
	Governed []string `yaml:"governed"`
	Free     []string `yaml:"free"`
}

// LoadFieldTable reads a YAML field classification table.
func LoadFieldTable(path string) (map[string]types.FieldClass, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("failed to read field table: %w", err)
	}

	var table fieldTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse field table: %w", err)
	}

	classes := make(map[string]types.FieldClass)
	for _, name := range table.Identity {
		classes[name] = types.FieldClassIdentity
	}
	for _, name := range table.Governed {
		classes[name] = types.FieldClassGoverned
	}
	for _, name := range table.Free {
		classes[name] = types.FieldClassFree
	}
	return classes, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if err := c.Detection.Validate(); err != nil {
		return err
	}
	switch c.Ledger.Driver {
	case "sqlite":
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger path cannot be empty for sqlite driver")
		}
	case "postgres":
		if c.Ledger.DSN == "" {
			return fmt.Errorf("ledger DSN cannot be empty for postgres driver")
		}
	default:
		return fmt.Errorf("unknown ledger driver: %q", c.Ledger.Driver)
	}
	if c.Cache.Provider != "memory" && c.Cache.Provider != "redis" {
		return fmt.Errorf("unknown cache provider: %q", c.Cache.Provider)
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.Semantic.Enabled && c.Semantic.APIKey == "" {
		return fmt.Errorf("semantic analysis enabled but no API key configured")
	}
	return nil
}

// Validate checks detection threshold invariants.
func (d *DetectionConfig) Validate() error {
	if d.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", d.Concurrency)
	}
	if d.SemanticTimeoutSeconds < 1 {
		return fmt.Errorf("semantic timeout must be at least 1s")
	}
	if d.SemanticSampleRate < 0 || d.SemanticSampleRate > 1 {
		return fmt.Errorf("semantic sample rate must be in [0,1]")
	}
	if !(d.SimilarityMedium < d.SimilarityLow && d.SimilarityLow < d.SimilarityNone) {
		return fmt.Errorf("similarity breakpoints must be strictly increasing: medium < low < none")
	}
	if d.SimilarityNone > 1 || d.SimilarityMedium < 0 {
		return fmt.Errorf("similarity breakpoints must be in [0,1]")
	}
	if d.MergeConfidenceThreshold < 0 || d.MergeConfidenceThreshold > 1 {
		return fmt.Errorf("merge confidence threshold must be in [0,1]")
	}
	if !d.PreferredSide.Valid() {
		return fmt.Errorf("preferred side must be canonical or mirror, got %q", d.PreferredSide)
	}
	if !d.GovernedFieldSeverity.Valid() || d.GovernedFieldSeverity == types.SeverityNone {
		return fmt.Errorf("governed field severity must be a severity above none")
	}
	return nil
}

// Clone returns a deep copy; a detection pass works on its own copy so that
// Configure cannot change thresholds mid-pass.
func (d *DetectionConfig) Clone() DetectionConfig {
	out := *d
	out.FieldClasses = make(map[string]types.FieldClass, len(d.FieldClasses))
	for k, v := range d.FieldClasses {
		out.FieldClasses[k] = v
	}
	return out
}

// ClassOf returns the policy class for a field name, defaulting to free.
func (d *DetectionConfig) ClassOf(name string) types.FieldClass {
	if class, ok := d.FieldClasses[name]; ok {
		return class
	}
	return types.FieldClassFree
}
