package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-cycler/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "cycler"
)

var (
	Debug                bool = true
	validOutcomes             = []types.Outcome{types.OutcomePass, types.OutcomeFail, types.OutcomeAborted}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	casesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cases_total",
		Help:      "Count of dispatched test sub-invocations",
	}, []string{
		"platform",
		"run_id",
		"cycle",
		"name",
		"outcome",
	})

	caseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "case_duration_seconds",
		Help:      "Duration of test sub-invocations",
		Buckets:   []float64{1, 10, 30, 60, 300, 900, 1800, 3600, 7200},
	}, []string{
		"platform",
		"cycle",
	})

	setupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "setups_total",
		Help:      "Count of setup decisions taken by the scheduler",
	}, []string{
		"platform",
		"decision",
	})

	cycleResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "cycle_results",
		Help:      "Result of test cycles",
	}, []string{
		"platform",
		"run_id",
		"cycle",
		"result",
	})

	cycleCases = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cycle_cases",
		Help:      "Case totals of test cycles by outcome",
	}, []string{
		"platform",
		"run_id",
		"cycle",
		"outcome",
	})

	cycleDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "cycle_duration",
		Help:      "Duration of test cycles",
	}, []string{
		"platform",
		"run_id",
		"cycle",
	})

	cleanupJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cleanup_jobs_total",
		Help:      "Count of teardown jobs observed terminal",
	}, []string{
		"state",
	})

	cleanupIssueErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cleanup_issue_errors_total",
		Help:      "Count of teardown requests that could not be issued",
	})

	cleanupJobsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "cleanup_jobs_tracked",
		Help:      "Teardown jobs issued and not yet observed terminal",
	})

	drainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "drain_duration_seconds",
		Help:      "Time spent draining teardown jobs at cycle end",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	})

	drainPolls = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "drain_polls",
		Help:      "Polling rounds needed to drain teardown jobs",
		Buckets:   prometheus.LinearBuckets(0, 2, 10),
	})

	reportIntegrityWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "report_integrity_warnings_total",
		Help:      "Count of results with an empty or unrecognized outcome",
	}, []string{
		"cycle",
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

// RecordCase counts one dispatched sub-invocation
func RecordCase(platform string, runID string, cycle string, name string, outcome types.Outcome, duration time.Duration) {
	if !isValidOutcome(outcome) {
		log.Error("RecordCase - invalid outcome", "outcome", outcome)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "cases_total",
			"platform", platform,
			"run_id", runID,
			"cycle", cycle,
			"name", name,
			"outcome", outcome)
	}
	casesTotal.WithLabelValues(platform, runID, cycle, name, string(outcome)).Inc()
	caseDuration.WithLabelValues(platform, cycle).Observe(duration.Seconds())
}

// RecordSetup counts a setup decision: deploy, reuse or forced
func RecordSetup(platform string, decision string) {
	setupsTotal.WithLabelValues(platform, decision).Inc()
}

func RecordCycle(
	platform string,
	runID string,
	cycle string,
	result types.Outcome,
	acc types.CycleResultAccumulator,
	duration time.Duration,
) {
	cycleResults.WithLabelValues(platform, runID, cycle, string(result)).Set(1)
	cycleCases.WithLabelValues(platform, runID, cycle, "total").Add(float64(acc.TotalCases))
	cycleCases.WithLabelValues(platform, runID, cycle, string(types.OutcomePass)).Add(float64(acc.TotalPass))
	cycleCases.WithLabelValues(platform, runID, cycle, string(types.OutcomeFail)).Add(float64(acc.TotalFail))
	cycleCases.WithLabelValues(platform, runID, cycle, string(types.OutcomeAborted)).Add(float64(acc.TotalAborted))
	cycleDuration.WithLabelValues(platform, runID, cycle).Set(duration.Seconds())
}

func RecordCleanupJob(state string) {
	cleanupJobsTotal.WithLabelValues(state).Inc()
}

func RecordCleanupIssueError() {
	cleanupIssueErrors.Inc()
}

func SetCleanupJobsTracked(n int) {
	cleanupJobsTracked.Set(float64(n))
}

func RecordDrain(duration time.Duration, polls int) {
	drainDuration.Observe(duration.Seconds())
	drainPolls.Observe(float64(polls))
}

func RecordReportIntegrityWarning(cycle string) {
	reportIntegrityWarnings.WithLabelValues(cycle).Inc()
}

func isValidOutcome(outcome types.Outcome) bool {
	return slices.Contains(validOutcomes, outcome)
}
