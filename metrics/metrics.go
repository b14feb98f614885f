package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "cukefork"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	featuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "features_total",
		Help:      "Count of feature runs by outcome",
	}, []string{
		"run_id",
		"feature",
		"outcome",
	})

	suiteResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_results",
		Help:      "Result of suite runs",
	}, []string{
		"run_id",
		"result",
	})

	suiteScenariosTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_scenarios_total",
		Help:      "Total number of scenarios executed per suite run",
	}, []string{
		"run_id",
	})

	suiteScenariosFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_scenarios_failed",
		Help:      "Number of failed scenarios per suite run",
	}, []string{
		"run_id",
	})

	suiteStructuralFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_structural_failures",
		Help:      "Number of features with structural parse failures per suite run",
	}, []string{
		"run_id",
	})

	suiteDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_duration_seconds",
		Help:      "Wall-clock duration of suite runs",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordFeature records one feature run's outcome.
func RecordFeature(runID, feature, outcome string) {
	if Debug {
		log.Debug("metric inc",
			"m", "features_total",
			"run_id", runID,
			"feature", feature,
			"outcome", outcome)
	}
	featuresTotal.WithLabelValues(runID, feature, outcome).Inc()
}

// RecordSuite records the aggregate outcome of a suite run.
func RecordSuite(
	runID string,
	result string,
	scenarios int,
	failedScenarios int,
	structuralFailures int,
	duration time.Duration,
) {
	suiteResults.WithLabelValues(runID, result).Set(1)
	suiteScenariosTotal.WithLabelValues(runID).Add(float64(scenarios))
	suiteScenariosFailed.WithLabelValues(runID).Add(float64(failedScenarios))
	suiteStructuralFailures.WithLabelValues(runID).Add(float64(structuralFailures))
	suiteDuration.WithLabelValues(runID).Set(duration.Seconds())
}
