package flags

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "CUKEFORK"

// prefixEnvVar builds the canonical environment variable name for a flag.
func prefixEnvVar(name string) []string {
	return []string{EnvVarPrefix + "_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))}
}

var (
	SuiteDefinition = &cli.StringFlag{
		Name:     "suite",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVar("suite"),
		Usage:    "Path to the suite definition file (eg. 'suite.yaml')",
	}
	OutputDir = &cli.StringFlag{
		Name:    "output-dir",
		Value:   "out",
		EnvVars: prefixEnvVar("output-dir"),
		Usage:   "Base directory for per-run results, reports, captures and the summary",
	}
	Engine = &cli.StringSliceFlag{
		Name:    "engine",
		EnvVars: prefixEnvVar("engine"),
		Usage:   "Worker engine command (binary plus fixed args); overrides the suite definition",
	}
	FeatureRoot = &cli.StringSliceFlag{
		Name:    "feature-root",
		EnvVars: prefixEnvVar("feature-root"),
		Usage:   "Additional resource root directory to scan for feature files",
	}
	Tags = &cli.StringSliceFlag{
		Name:    "tags",
		EnvVars: prefixEnvVar("tags"),
		Usage:   "Tag filter expression; overrides the suite definition when set",
	}
	MaxParallelForks = &cli.IntFlag{
		Name:    "max-parallel-forks",
		Value:   0,
		EnvVars: prefixEnvVar("max-parallel-forks"),
		Usage:   "Number of concurrent worker processes (0 = use suite definition)",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVar("run-interval"),
		Usage:   "Interval between suite runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	Watch = &cli.BoolFlag{
		Name:    "watch",
		Value:   false,
		EnvVars: prefixEnvVar("watch"),
		Usage:   "Re-run the suite when feature files change",
	}
	Serve = &cli.BoolFlag{
		Name:    "serve",
		Value:   false,
		EnvVars: prefixEnvVar("serve"),
		Usage:   "Expose healthz and metrics HTTP endpoints",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVar("log-level"),
		Usage:   "Log level (trace, debug, info, warn, error)",
	}
)

var requiredFlags = []cli.Flag{
	SuiteDefinition,
}

var optionalFlags = []cli.Flag{
	OutputDir,
	Engine,
	FeatureRoot,
	Tags,
	MaxParallelForks,
	RunInterval,
	Watch,
	Serve,
	LogLevel,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
