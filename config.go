package cukefork

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/cukefork/cukefork/flags"
)

// Config holds the application configuration
type Config struct {
	SuiteDefinition  string        // Path to the suite definition file
	OutputDir        string        // Base directory for per-run artifacts
	Engine           []string      // Worker engine command override (empty = use definition)
	FeatureRoots     []string      // Extra feature roots added on top of the definition
	Tags             []string      // Tag filter override (empty = use definition)
	MaxParallelForks int           // Fork count override (0 = use definition)
	RunInterval      time.Duration // Interval between suite runs
	RunOnce          bool          // Indicates if the service should exit after one run
	Watch            bool          // Re-run the suite on feature file changes
	Log              log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, logger log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	suiteDefinition := ctx.String(flags.SuiteDefinition.Name)
	if suiteDefinition == "" {
		return nil, errors.New("suite definition file is required")
	}
	absSuiteDefinition, err := filepath.Abs(suiteDefinition)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for suite definition '%s': %w", suiteDefinition, err)
	}

	outputDir := ctx.String(flags.OutputDir.Name)
	if outputDir == "" {
		outputDir = "out"
	}
	outputDir, err = filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for output directory '%s': %w", outputDir, err)
	}

	maxForks := ctx.Int(flags.MaxParallelForks.Name)
	if maxForks < 0 {
		return nil, fmt.Errorf("max-parallel-forks cannot be negative, got %d", maxForks)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	if runInterval < 0 {
		return nil, fmt.Errorf("run-interval cannot be negative, got %s", runInterval)
	}
	watch := ctx.Bool(flags.Watch.Name)
	runOnce := runInterval == 0 && !watch

	return &Config{
		SuiteDefinition:  absSuiteDefinition,
		OutputDir:        outputDir,
		Engine:           ctx.StringSlice(flags.Engine.Name),
		FeatureRoots:     ctx.StringSlice(flags.FeatureRoot.Name),
		Tags:             ctx.StringSlice(flags.Tags.Name),
		MaxParallelForks: maxForks,
		RunInterval:      runInterval,
		RunOnce:          runOnce,
		Watch:            watch,
		Log:              logger,
	}, nil
}
