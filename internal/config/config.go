package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds tunable thresholds for plan diagnostics.
type Config struct {
	Insights InsightConfig `json:"insights" yaml:"insights"`
}

// InsightConfig defines thresholds for warning detection.
type InsightConfig struct {
	// LargeSeqScanRows is the row count above which a sequential scan is flagged.
	LargeSeqScanRows float64 `json:"large_seq_scan_rows" yaml:"large_seq_scan_rows"`
	// EstimateWarnFactor flags actual/estimated row ratios outside [1/f, f].
	EstimateWarnFactor float64 `json:"estimate_warn_factor" yaml:"estimate_warn_factor"`
	// EstimateCriticalFactor escalates the mismatch outside [1/f, f].
	EstimateCriticalFactor float64 `json:"estimate_critical_factor" yaml:"estimate_critical_factor"`
	HotNestedLoopLoops     float64 `json:"hot_nested_loop_loops" yaml:"hot_nested_loop_loops"`
	HashSpillBatches       int64   `json:"hash_spill_batches" yaml:"hash_spill_batches"`
	OverFilterRatio        float64 `json:"over_filter_ratio" yaml:"over_filter_ratio"`
	CacheMinBlocks         int64   `json:"cache_min_blocks" yaml:"cache_min_blocks"`
	CacheHitRatioMin       float64 `json:"cache_hit_ratio_min" yaml:"cache_hit_ratio_min"`
	LossyBitmapRatio       float64 `json:"lossy_bitmap_ratio" yaml:"lossy_bitmap_ratio"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Insights: InsightConfig{
			LargeSeqScanRows:       10000,
			EstimateWarnFactor:     10,
			EstimateCriticalFactor: 100,
			HotNestedLoopLoops:     1000,
			HashSpillBatches:       1,
			OverFilterRatio:        0.9,
			CacheMinBlocks:         100,
			CacheHitRatioMin:       0.90,
			LossyBitmapRatio:       0.5,
		},
	}
}

// Load reads configuration from path (JSON, or YAML for .yaml/.yml files)
// on top of the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
