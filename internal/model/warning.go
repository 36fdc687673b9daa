package model

// Severity expresses the urgency of a warning.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from least to most urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// WarningKind names a diagnostic category.
type WarningKind string

const (
	KindLargeSeqScan      WarningKind = "large_seq_scan"
	KindEstimateMismatch  WarningKind = "estimate_mismatch"
	KindHotNestedLoop     WarningKind = "hot_nested_loop"
	KindDiskSort          WarningKind = "disk_sort"
	KindHashSpill         WarningKind = "hash_spill"
	KindOverFiltering     WarningKind = "over_filtering"
	KindLowCacheHit       WarningKind = "low_cache_hit"
	KindParallelShortfall WarningKind = "parallel_shortfall"
	KindLossyBitmap       WarningKind = "lossy_bitmap"
)

// Warning is a diagnostic attached to a single plan node.
type Warning struct {
	Kind       WarningKind `json:"kind"`
	Severity   Severity    `json:"severity"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion"`
	Details    string      `json:"details,omitempty"`
}
