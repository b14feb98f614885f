// Package reporting renders suite results for humans: the console results
// table and the per-run plain-text summary file. HTML rendering is an
// external collaborator that consumes the JSON artifacts directly.
package reporting

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/cukefork/cukefork/runner"
)

// RenderTable writes the per-feature results table to w.
func RenderTable(w io.Writer, result *runner.SuiteResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Feature Suite Results (%s)", formatDuration(result.Duration)))

	t.AppendHeader(table.Row{
		"Feature", "Duration", "Scenarios", "Failed", "Steps", "Failed", "Skipped", "Pending", "Undefined", "Outcome",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Feature", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Scenarios", Align: text.AlignRight},
		{Name: "Steps", Align: text.AlignRight},
	})

	features := append([]runner.FeatureOutcome{}, result.Features...)
	sort.Slice(features, func(i, j int) bool {
		return features[i].Feature.Name < features[j].Feature.Name
	})

	for _, f := range features {
		t.AppendRow(table.Row{
			f.Feature.Name,
			formatDuration(f.Duration),
			f.Result.Scenarios,
			f.Result.FailedScenarios,
			f.Result.Steps,
			f.Result.FailedSteps,
			f.Result.SkippedSteps,
			f.Result.PendingSteps,
			f.Result.UndefinedSteps,
			outcomeString(f.Outcome),
		})
	}

	totals := result.Totals
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d features", totals.Features),
		formatDuration(result.Duration),
		totals.Counts.Scenarios,
		totals.Counts.FailedScenarios,
		totals.Counts.Steps,
		totals.Counts.FailedSteps,
		totals.Counts.SkippedSteps,
		totals.Counts.PendingSteps,
		totals.Counts.UndefinedSteps,
		verdictString(result),
	})

	t.Render()
}

// WriteSummary writes the plain-text summary file for a run, including
// diagnostics for every structural failure.
func WriteSummary(path string, result *runner.SuiteResult, structural []runner.StructuralFailure) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer func() { _ = f.Close() }()

	fmt.Fprintf(f, "Run ID: %s\n", result.RunID)
	fmt.Fprintf(f, "Verdict: %s\n\n", verdictString(result))
	RenderTable(f, result)

	if len(structural) > 0 {
		fmt.Fprintf(f, "\nStructural parse failures (%d):\n", len(structural))
		for _, failure := range structural {
			fmt.Fprintf(f, "\n--- %s: %s\n", failure.Feature.Name, failure.Reason)
			if failure.StdoutTail != "" {
				fmt.Fprintf(f, "stdout:\n%s\n", failure.StdoutTail)
			}
			if failure.StderrTail != "" {
				fmt.Fprintf(f, "stderr:\n%s\n", failure.StderrTail)
			}
		}
	}
	return nil
}

func outcomeString(outcome runner.OutcomeKind) string {
	switch outcome {
	case runner.OutcomePassed:
		return "✓ pass"
	case runner.OutcomeFailed:
		return "✗ fail"
	default:
		return "! structural"
	}
}

func verdictString(result *runner.SuiteResult) string {
	if result.Passed {
		return "PASS"
	}
	return "FAIL"
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
