// Package registry loads the suite definition file: the declarative YAML
// description of glue roots, feature roots, filters, and engine invocation
// that a run is built from.
package registry

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/cukefork/cukefork/types"
)

// Definition is the YAML shape of a suite definition file.
type Definition struct {
	// Engine is the worker entry point: binary plus fixed leading args.
	Engine []string `yaml:"engine"`
	// FeatureRoots are the resource root directories scanned for feature
	// files.
	FeatureRoots []string `yaml:"feature_roots"`

	Glue    []string `yaml:"glue"`
	Include []string `yaml:"include"`
	Tags    []string `yaml:"tags"`

	Strict     bool   `yaml:"strict"`
	DryRun     bool   `yaml:"dry_run"`
	Monochrome bool   `yaml:"monochrome"`
	Snippets   string `yaml:"snippets"`

	MaxParallelForks int  `yaml:"max_parallel_forks"`
	JUnitReport      bool `yaml:"junit_report"`

	Properties map[string]string `yaml:"properties"`

	// RunInterval re-runs the whole suite periodically when set, e.g.
	// "30m". Empty means run once.
	RunInterval string `yaml:"run_interval"`
}

// Interval parses the definition's run interval. Empty means run once.
func (d Definition) Interval() (time.Duration, error) {
	if d.RunInterval == "" {
		return 0, nil
	}
	interval, err := time.ParseDuration(d.RunInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid run_interval %q: %w", d.RunInterval, err)
	}
	if interval < 0 {
		return 0, fmt.Errorf("run_interval cannot be negative")
	}
	return interval, nil
}

// Registry holds a loaded suite definition.
type Registry struct {
	config     Config
	definition Definition
}

// Config contains registry configuration.
type Config struct {
	Log                 log.Logger
	SuiteDefinitionFile string
}

// NewRegistry loads and validates the suite definition file.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.SuiteDefinitionFile == "" {
		return nil, fmt.Errorf("suite definition file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}

	r := &Registry{config: cfg}
	if err := r.load(cfg.SuiteDefinitionFile); err != nil {
		return nil, fmt.Errorf("failed to load suite definition: %w", err)
	}

	cfg.Log.Debug("Suite definition loaded",
		"file", cfg.SuiteDefinitionFile,
		"feature_roots", len(r.definition.FeatureRoots),
		"glue", len(r.definition.Glue))
	return r, nil
}

// Definition returns the loaded definition.
func (r *Registry) Definition() Definition {
	return r.definition
}

// RunOptions materializes the immutable per-run configuration snapshot from
// the definition, applying defaults for anything left unset.
func (r *Registry) RunOptions() types.RunOptions {
	opts := types.DefaultRunOptions()
	def := r.definition

	opts.GlueRoots = append([]string{}, def.Glue...)
	if len(def.Include) > 0 {
		opts.IncludePatterns = append([]string{}, def.Include...)
	}
	opts.Tags = append([]string{}, def.Tags...)
	opts.Strict = def.Strict
	opts.DryRun = def.DryRun
	opts.Monochrome = def.Monochrome
	if def.Snippets != "" {
		opts.Snippets = types.SnippetStyle(def.Snippets)
	}
	if def.MaxParallelForks > 0 {
		opts.MaxParallelForks = def.MaxParallelForks
	}
	opts.StructuredReport = def.JUnitReport
	if len(def.Properties) > 0 {
		opts.SystemProperties = make(map[string]string, len(def.Properties))
		for k, v := range def.Properties {
			opts.SystemProperties[k] = v
		}
	}
	return opts
}

func (r *Registry) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid suite definition %s: %w", path, err)
	}

	r.definition = def
	return nil
}

func validateDefinition(def Definition) error {
	if len(def.FeatureRoots) == 0 {
		return fmt.Errorf("at least one feature root is required")
	}
	if def.MaxParallelForks < 0 {
		return fmt.Errorf("max_parallel_forks cannot be negative")
	}
	if def.Snippets != "" && !types.SnippetStyle(def.Snippets).Valid() {
		return fmt.Errorf("unknown snippet style %q", def.Snippets)
	}
	if _, err := def.Interval(); err != nil {
		return err
	}
	return nil
}
