package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"

	"github.com/cukefork/cukefork/types"
)

// Step statuses that appear in cucumber-format JSON results.
const (
	stepStatusPassed    = "passed"
	stepStatusFailed    = "failed"
	stepStatusSkipped   = "skipped"
	stepStatusPending   = "pending"
	stepStatusUndefined = "undefined"
	stepStatusAmbiguous = "ambiguous"
)

// cukeFeature mirrors the portion of a cucumber JSON result document this
// core reads; the rest of the schema is opaque to us.
type cukeFeature struct {
	URI      string        `json:"uri"`
	Name     string        `json:"name"`
	Elements []cukeElement `json:"elements"`
}

type cukeElement struct {
	Type  string     `json:"type"`
	Name  string     `json:"name"`
	Steps []cukeStep `json:"steps"`
}

type cukeStep struct {
	Name   string     `json:"name"`
	Result cukeResult `json:"result"`
}

type cukeResult struct {
	Status string `json:"status"`
}

// Collector parses a worker's primary JSON result artifact into structured
// per-feature counts.
type Collector struct {
	log log.Logger
}

// NewCollector creates a Collector.
func NewCollector(logger log.Logger) *Collector {
	if logger == nil {
		logger = log.New()
	}
	return &Collector{log: logger.New("component", "collector")}
}

// Collect reads the invocation's result artifact and returns one
// FeatureResult per feature the worker reported. A missing or unparseable
// artifact is returned as an error; the orchestrator classifies that as a
// structural parse failure.
func (c *Collector) Collect(inv types.WorkerInvocation) ([]types.FeatureResult, error) {
	data, err := os.ReadFile(inv.ResultPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("result artifact missing at %s", inv.ResultPath)
		}
		return nil, fmt.Errorf("failed to read result artifact %s: %w", inv.ResultPath, err)
	}

	features, err := parseCucumberJSON(data)
	if err != nil {
		return nil, fmt.Errorf("malformed result artifact %s: %w", inv.ResultPath, err)
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("result artifact %s contains no features", inv.ResultPath)
	}

	results := make([]types.FeatureResult, 0, len(features))
	for _, f := range features {
		r := countFeature(f)
		r.Feature = inv.Feature.Name
		results = append(results, r)
	}
	c.log.Debug("Collected feature results", "feature", inv.Feature.Name, "records", len(results))
	return results, nil
}

// parseCucumberJSON decodes a cucumber-format result document. Engines
// occasionally prepend console noise to the JSON body, so decoding starts
// at the first bracket.
func parseCucumberJSON(data []byte) ([]cukeFeature, error) {
	text := strings.TrimSpace(stripansi.Strip(string(data)))
	if idx := strings.IndexAny(text, "[{"); idx > 0 {
		text = text[idx:]
	}
	if text == "" {
		return nil, fmt.Errorf("empty document")
	}

	var features []cukeFeature
	if err := json.Unmarshal([]byte(text), &features); err == nil {
		return features, nil
	}

	// Some engines emit a single feature object instead of an array.
	var single cukeFeature
	if err := json.Unmarshal([]byte(text), &single); err != nil {
		return nil, err
	}
	return []cukeFeature{single}, nil
}

func countFeature(f cukeFeature) types.FeatureResult {
	var r types.FeatureResult
	for _, el := range f.Elements {
		isScenario := el.Type == "" || el.Type == "scenario" || el.Type == "scenario_outline"
		if isScenario {
			r.Scenarios++
		}

		scenarioFailed := false
		for _, step := range el.Steps {
			r.Steps++
			switch step.Result.Status {
			case stepStatusPassed:
			case stepStatusFailed, stepStatusAmbiguous:
				r.FailedSteps++
				scenarioFailed = true
			case stepStatusSkipped:
				r.SkippedSteps++
			case stepStatusPending:
				r.PendingSteps++
			case stepStatusUndefined:
				r.UndefinedSteps++
			default:
				// Unknown statuses count as failures rather than silently
				// passing.
				r.FailedSteps++
				scenarioFailed = true
			}
		}
		if isScenario && scenarioFailed {
			r.FailedScenarios++
		}
	}
	return r
}

// CaptureTail returns the last maxBytes of a worker capture file with ANSI
// escapes stripped, for structural-failure diagnostics. Missing captures
// yield an empty string.
func CaptureTail(path string, maxBytes int) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	text := stripansi.Strip(string(data))
	if maxBytes > 0 && len(text) > maxBytes {
		text = "..." + text[len(text)-maxBytes:]
	}
	return strings.TrimSpace(text)
}

// ArtifactPresent reports whether the invocation's primary result artifact
// exists as a regular file.
func ArtifactPresent(inv types.WorkerInvocation) bool {
	info, err := os.Stat(inv.ResultPath)
	return err == nil && info.Mode().IsRegular()
}

// invocationPaths derives the four per-feature output paths from the
// feature's logical name.
func invocationPaths(feature types.FeatureFile, resultsDir, reportsDir string, structured bool) OutputPaths {
	out := OutputPaths{
		Result: filepath.Join(resultsDir, feature.Name+".json"),
		Stdout: filepath.Join(resultsDir, feature.Name+".out.log"),
		Stderr: filepath.Join(resultsDir, feature.Name+".err.log"),
	}
	if structured {
		out.Report = filepath.Join(reportsDir, feature.Name+".xml")
	}
	return out
}
