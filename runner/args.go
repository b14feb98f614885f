package runner

import (
	"strings"

	"github.com/cukefork/cukefork/types"
)

// Engine flag names. These mirror the underlying engine's CLI surface; the
// bundled godog worker understands the same set.
const (
	GlueFlag       = "--glue"
	PluginFlag     = "--plugin"
	DryRunFlag     = "--dry-run"
	MonochromeFlag = "--monochrome"
	StrictFlag     = "--strict"
	TagsFlag       = "--tags"
	SnippetsFlag   = "--snippets"

	// Plugin identifiers for the two result artifacts.
	jsonPluginPrefix  = "json:"
	junitPluginPrefix = "junit:"
)

// BuildArgs constructs the worker argument list for one feature. The
// composition order is fixed: glue pairs, result plugins, mode flags,
// tags, snippet style, then the feature path as the trailing positional
// argument. Identical inputs always yield an identical argument list.
func BuildArgs(opts types.RunOptions, feature types.FeatureFile, out OutputPaths) []string {
	args := make([]string, 0, 2*len(opts.GlueRoots)+12)

	for _, glue := range opts.GlueRoots {
		args = append(args, GlueFlag, glue)
	}

	args = append(args, PluginFlag, jsonPluginPrefix+out.Result)
	if opts.StructuredReport {
		args = append(args, PluginFlag, junitPluginPrefix+out.Report)
	}

	if opts.DryRun {
		args = append(args, DryRunFlag)
	}
	if opts.Monochrome {
		args = append(args, MonochromeFlag)
	}
	if opts.Strict {
		args = append(args, StrictFlag)
	}
	if len(opts.Tags) > 0 {
		args = append(args, TagsFlag, strings.Join(opts.Tags, ","))
	}

	args = append(args, SnippetsFlag, string(opts.Snippets))
	args = append(args, feature.Path)

	return args
}

// OutputPaths names the four files owned by one worker invocation.
type OutputPaths struct {
	Result string
	Report string
	Stdout string
	Stderr string
}
