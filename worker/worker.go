// Package worker adapts the argument list built by the orchestrator into a
// godog test suite, so users can build a self-contained worker binary whose
// step definitions are compiled in. The orchestrator treats the engine as a
// black box; this package is one engine implementation, not a dependency of
// the core.
package worker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// ErrDryRunUnsupported is returned when the orchestrator forwards the
// dry-run flag: godog has no dry-run mode, so a godog-backed worker cannot
// honor it. External engines receive the flag verbatim.
var ErrDryRunUnsupported = errors.New("dry-run is not supported by the godog worker")

// Invocation is the parsed form of one worker argument list.
type Invocation struct {
	GlueRoots   []string
	Plugins     []string
	DryRun      bool
	Monochrome  bool
	Strict      bool
	Tags        string
	Snippets    string
	FeaturePath string
}

// ParseArgs decodes the argument list the orchestrator's argument builder
// produces. The final positional argument is the feature file path.
func ParseArgs(args []string) (*Invocation, error) {
	inv := &Invocation{}
	i := 0
	next := func(flag string) (string, error) {
		i++
		if i >= len(args) {
			return "", fmt.Errorf("flag %s is missing its value", flag)
		}
		return args[i], nil
	}

	for ; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "--glue":
			v, err := next(arg)
			if err != nil {
				return nil, err
			}
			inv.GlueRoots = append(inv.GlueRoots, v)
		case "--plugin":
			v, err := next(arg)
			if err != nil {
				return nil, err
			}
			inv.Plugins = append(inv.Plugins, v)
		case "--dry-run":
			inv.DryRun = true
		case "--monochrome":
			inv.Monochrome = true
		case "--strict":
			inv.Strict = true
		case "--tags":
			v, err := next(arg)
			if err != nil {
				return nil, err
			}
			inv.Tags = v
		case "--snippets":
			v, err := next(arg)
			if err != nil {
				return nil, err
			}
			inv.Snippets = v
		default:
			if strings.HasPrefix(arg, "--") {
				return nil, fmt.Errorf("unknown flag %s", arg)
			}
			if inv.FeaturePath != "" {
				return nil, fmt.Errorf("multiple feature paths given: %s and %s", inv.FeaturePath, arg)
			}
			inv.FeaturePath = arg
		}
	}

	if inv.FeaturePath == "" {
		return nil, fmt.Errorf("feature path is required as the trailing argument")
	}
	return inv, nil
}

// Formats maps the invocation's plugins onto godog formatter specs. The
// primary json plugin becomes godog's cucumber formatter; junit passes
// through.
func (inv *Invocation) Formats() (string, error) {
	if len(inv.Plugins) == 0 {
		return "cucumber", nil
	}
	formats := make([]string, 0, len(inv.Plugins))
	for _, plugin := range inv.Plugins {
		switch {
		case strings.HasPrefix(plugin, "json:"):
			formats = append(formats, "cucumber:"+strings.TrimPrefix(plugin, "json:"))
		case strings.HasPrefix(plugin, "junit:"):
			formats = append(formats, plugin)
		default:
			return "", fmt.Errorf("unsupported plugin %q", plugin)
		}
	}
	return strings.Join(formats, ","), nil
}

// GodogOptions materializes godog options from the invocation. Glue roots
// are accepted for interface compatibility but ignored: a godog worker's
// glue is whatever step definitions were compiled into the binary. The
// snippet style is likewise engine cosmetics godog does not expose.
func (inv *Invocation) GodogOptions() (*godog.Options, error) {
	if inv.DryRun {
		return nil, ErrDryRunUnsupported
	}
	format, err := inv.Formats()
	if err != nil {
		return nil, err
	}
	return &godog.Options{
		Format:   format,
		Tags:     inv.Tags,
		Strict:   inv.Strict,
		NoColors: inv.Monochrome,
		Paths:    []string{inv.FeaturePath},
	}, nil
}

// Run parses args, runs the feature through godog with the given scenario
// initializer, and returns the process exit code. Intended to be called
// from a worker binary's main.
func Run(name string, initializer func(*godog.ScenarioContext), args []string) int {
	inv, err := ParseArgs(args)
	if err != nil {
		fmt.Println("worker:", err)
		return 2
	}
	opts, err := inv.GodogOptions()
	if err != nil {
		fmt.Println("worker:", err)
		return 2
	}

	suite := godog.TestSuite{
		Name:                name,
		ScenarioInitializer: initializer,
		Options:             opts,
	}
	return suite.Run()
}
