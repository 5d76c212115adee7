// Package config loads the engine's JSON config file and environment
// overrides, and watches the file for changes so a model-identifier edit
// can reset the embedding pipeline without a restart.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the set of tunables read from <HOME>/.mama/config.json, with
// environment variables MAMA_DB_PATH and MAMA_DISABLE_HOOKS layered on top.
type Config struct {
	ModelName    string `mapstructure:"modelName"`
	EmbeddingDim int    `mapstructure:"embeddingDim"`
	CacheDir     string `mapstructure:"cacheDir"`

	DBPath       string `mapstructure:"-"`
	DisableHooks bool   `mapstructure:"-"`

	// Scorer and outcome knobs. Not part of the minimal documented option
	// set, but tunable via the config file rather than fixed constants.
	Scorer  ScorerConfig  `mapstructure:"scorer"`
	Outcome OutcomeConfig `mapstructure:"outcome"`

	// VectorIndexDisabled forces the degraded tier, primarily for tests.
	VectorIndexDisabled bool `mapstructure:"-"`
}

type ScorerConfig struct {
	WeightSemantic       float64 `mapstructure:"weightSemantic"`
	WeightRecency        float64 `mapstructure:"weightRecency"`
	WeightConfidence     float64 `mapstructure:"weightConfidence"`
	WeightOutcome        float64 `mapstructure:"weightOutcome"`
	WeightUsage          float64 `mapstructure:"weightUsage"`
	RecencyHalfLifeDays  float64 `mapstructure:"recencyHalfLifeDays"`
	PrefilterThreshold   float64 `mapstructure:"prefilterThreshold"`
	ShortQueryThreshold  float64 `mapstructure:"shortQueryThreshold"`
	LongQueryThreshold   float64 `mapstructure:"longQueryThreshold"`
	ShortQueryMaxTokens  int     `mapstructure:"shortQueryMaxTokens"`
	TopK                 int     `mapstructure:"topK"`
}

type OutcomeConfig struct {
	AutoApplyWindowMinutes int `mapstructure:"autoApplyWindowMinutes"`
}

func defaults() Config {
	home, _ := os.UserHomeDir()
	return Config{
		ModelName:    "mama-embed-multilingual-small",
		EmbeddingDim: 384,
		CacheDir:     filepath.Join(home, ".cache", "huggingface", "transformers"),
		DBPath:       legacyOrDefaultDBPath(home),
		Scorer: ScorerConfig{
			WeightSemantic:      0.45,
			WeightRecency:       0.20,
			WeightConfidence:    0.15,
			WeightOutcome:       0.10,
			WeightUsage:         0.10,
			RecencyHalfLifeDays: 21,
			PrefilterThreshold:  0.5,
			ShortQueryThreshold: 0.7,
			LongQueryThreshold:  0.6,
			ShortQueryMaxTokens: 3,
			TopK:                3,
		},
		Outcome: OutcomeConfig{
			AutoApplyWindowMinutes: 60,
		},
	}
}

// legacyOrDefaultDBPath detects a store file left by an earlier installation
// layout (a flat ~/.mama-memory.db, predating the ~/.mama/ directory) and
// prefers it over the current default.
func legacyOrDefaultDBPath(home string) string {
	legacy := filepath.Join(home, ".mama-memory.db")
	if _, err := os.Stat(legacy); err == nil {
		return legacy
	}
	return filepath.Join(home, ".mama", "mama-memory.db")
}

// Load reads <HOME>/.mama/config.json, creating it with defaults if absent,
// applies environment overrides, and returns the resolved Config. Missing or
// invalid fields fall back to defaults with a warning (returned as the
// second value).
func Load() (Config, []string, error) {
	cfg := defaults()
	var warnings []string

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, warnings, fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".mama")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cfg, warnings, fmt.Errorf("create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(dir)
	v.SetDefault("modelName", cfg.ModelName)
	v.SetDefault("embeddingDim", cfg.EmbeddingDim)
	v.SetDefault("cacheDir", cfg.CacheDir)

	path := filepath.Join(dir, "config.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := v.SafeWriteConfigAs(path); err != nil {
			warnings = append(warnings, fmt.Sprintf("could not create default config: %v", err))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		warnings = append(warnings, fmt.Sprintf("could not read config, using defaults: %v", err))
	} else {
		if err := v.Unmarshal(&cfg); err != nil {
			warnings = append(warnings, fmt.Sprintf("invalid config, using defaults: %v", err))
			cfg = defaults()
		}
	}

	if cfg.EmbeddingDim <= 0 {
		warnings = append(warnings, "embeddingDim must be positive, using default")
		cfg.EmbeddingDim = 384
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "mama-embed-multilingual-small"
	}

	if dbPath := os.Getenv("MAMA_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	cfg.DisableHooks = os.Getenv("MAMA_DISABLE_HOOKS") != ""
	cfg.VectorIndexDisabled = os.Getenv("MAMA_DISABLE_VECTOR_INDEX") != ""

	return cfg, warnings, nil
}

// Watcher watches config.json for changes and invokes onChange when
// the resolved ModelName differs from the last-seen value.
type Watcher struct {
	mu          sync.Mutex
	lastModel   string
	onChange    func(Config)
	v           *viper.Viper
}

// NewWatcher wires a viper instance to fsnotify and starts watching. It is a
// best-effort addition — failure to watch is not fatal, only logged by the
// caller.
func NewWatcher(cfg Config, onChange func(Config)) (*Watcher, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(home, ".mama")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(dir)
	_ = v.ReadInConfig()

	w := &Watcher{lastModel: cfg.ModelName, onChange: onChange, v: v}
	v.OnConfigChange(func(_ fsnotify.Event) {
		w.mu.Lock()
		defer w.mu.Unlock()
		var updated Config
		if err := v.Unmarshal(&updated); err != nil {
			return
		}
		if updated.ModelName != "" && updated.ModelName != w.lastModel {
			w.lastModel = updated.ModelName
			if w.onChange != nil {
				w.onChange(updated)
			}
		}
	})
	v.WatchConfig()
	return w, nil
}
