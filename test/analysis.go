package test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mickamy/planscope/internal/model"
	"github.com/mickamy/planscope/internal/parser"
)

var (
	rootPath string
	once     sync.Once
)

// RootPath resolves a path relative to the repository rootPath (where go.mod resides).
func RootPath(t *testing.T) string {
	t.Helper()
	once.Do(func() {
		wd, err := os.Getwd()
		if err != nil {
			t.Fatalf("getwd: %v", err)
		}
		for {
			if _, err := os.Stat(filepath.Join(wd, "go.mod")); err == nil {
				rootPath = wd
				break
			}
			next := filepath.Dir(wd)
			if next == wd {
				t.Fatalf("go.mod not found from %s", wd)
			}
			wd = next
		}
	})
	return rootPath
}

// ReadSample returns the raw contents of a file under samples/.
func ReadSample(t *testing.T, rel string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(RootPath(t), "samples", rel))
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	return data
}

// ParseSample parses a JSON plan under samples/ without running the analysis passes.
func ParseSample(t *testing.T, rel string) *model.QueryPlanAnalysis {
	t.Helper()
	plan, err := parser.Parse(ReadSample(t, rel), model.Options{Format: model.FormatJSON})
	if err != nil {
		t.Fatalf("parse plan: %v", err)
	}
	return plan
}

// Float returns a pointer to v, for building plan nodes in tests.
func Float(v float64) *float64 {
	return &v
}

// Int returns a pointer to v, for building plan nodes in tests.
func Int(v int64) *int64 {
	return &v
}
