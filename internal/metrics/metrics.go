package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "familymerge",
			Name:      "runs_total",
			Help:      "Total folder runs by result (success, failure)",
		},
		[]string{"result"},
	)

	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "familymerge",
			Name:      "run_duration_seconds",
			Help:      "Duration of folder runs",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
		},
	)

	runsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "familymerge",
			Name:      "runs_in_flight",
			Help:      "Folder runs currently executing",
		},
	)

	familiesMerged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "familymerge",
			Name:      "families_merged_total",
			Help:      "Families successfully merged and saved",
		},
	)

	membersAppended = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "familymerge",
			Name:      "members_appended_total",
			Help:      "Family members appended into merged documents",
		},
	)

	placeholdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "familymerge",
			Name:      "placeholders_total",
			Help:      "Placeholder synthesis attempts by result (created, failed)",
		},
		[]string{"result"},
	)

	skipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "familymerge",
			Name:      "member_skips_total",
			Help:      "Members skipped at the merge step by reason (missing, unreadable, empty)",
		},
		[]string{"reason"},
	)

	qcSelected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "familymerge",
			Name:      "qc_selected_total",
			Help:      "QC documents selected by kind (largest, first_native)",
		},
		[]string{"kind"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "familymerge",
			Name:      "queue_depth",
			Help:      "Queue depth gauges by type",
		},
		[]string{"type"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(runsTotal, runDuration, runsInFlight, familiesMerged, membersAppended, placeholdersTotal, skipsTotal, qcSelected, queueDepth)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveRun(result string, dur time.Duration) {
	runsTotal.WithLabelValues(result).Inc()
	runDuration.Observe(dur.Seconds())
}

func RunStarted()  { runsInFlight.Inc() }
func RunFinished() { runsInFlight.Dec() }

func IncFamilyMerged() { familiesMerged.Inc() }

func AddMembersAppended(n int) { membersAppended.Add(float64(n)) }

func IncPlaceholder(result string) { placeholdersTotal.WithLabelValues(result).Inc() }
func IncSkip(reason string)        { skipsTotal.WithLabelValues(reason).Inc() }
func IncQCSelected(kind string)    { qcSelected.WithLabelValues(kind).Inc() }

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }
