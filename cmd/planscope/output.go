package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mickamy/planscope"
	"github.com/mickamy/planscope/internal/render/tui"
)

type reportOptions struct {
	output   string
	color    bool
	maxDepth int
	warnings bool
	timeline bool
}

func writeReport(w io.Writer, a *planscope.Analyzer, analysis *planscope.QueryPlanAnalysis, opts reportOptions) error {
	switch opts.output {
	case "", "text":
		renderOpts := tui.Options{
			EnableColor:  opts.color,
			MaxDepth:     opts.maxDepth,
			ShowWarnings: opts.warnings,
		}
		if opts.timeline {
			renderOpts.Timeline = a.Timeline(analysis)
		}
		return tui.Render(w, analysis, renderOpts)
	case "json":
		return planscope.Encode(w, analysis)
	case "yaml":
		return writeYAML(w, analysis)
	default:
		return fmt.Errorf("unknown output %q (want text, json or yaml)", opts.output)
	}
}

// writeYAML goes through the JSON encoding so keys match the JSON field names.
func writeYAML(w io.Writer, v any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// readPlan reads a plan file, or stdin when path is "-".
func readPlan(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return data, nil
}

// detectFormat resolves the plan format from the flag value, falling back to
// the file extension and then JSON.
func detectFormat(flag, path string) (planscope.Format, error) {
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "json":
		return planscope.FormatJSON, nil
	case "text", "txt":
		return planscope.FormatText, nil
	case "xml":
		return planscope.FormatXML, nil
	case "yaml", "yml":
		return planscope.FormatYAML, nil
	case "":
	default:
		return "", fmt.Errorf("unknown format %q (want json, text, xml or yaml)", flag)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return planscope.FormatText, nil
	case ".xml":
		return planscope.FormatXML, nil
	case ".yaml", ".yml":
		return planscope.FormatYAML, nil
	default:
		return planscope.FormatJSON, nil
	}
}
