package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	Namespace = "dantesync"

	// Metrics names.
	MetricNameBuildInfo          = Namespace + "_build_info"
	MetricNameErrors             = Namespace + "_errors_total"
	MetricNameSamplesAccepted    = Namespace + "_samples_accepted_total"
	MetricNameSamplesSubstituted = Namespace + "_samples_substituted_total"
	MetricNameSamplesRejected    = Namespace + "_samples_rejected_total"
	MetricNameSamplesDropped     = Namespace + "_samples_dropped_total"
	MetricNameClockSteps         = Namespace + "_clock_steps_total"
	MetricNameNTPPolls           = Namespace + "_ntp_polls_total"
	MetricNameSoftResets         = Namespace + "_soft_resets_total"
	MetricNameDriftRatePPM       = Namespace + "_drift_rate_ppm"
	MetricNameFreqAdjustmentPPM  = Namespace + "_frequency_adjustment_ppm"
	MetricNameSyncMode           = Namespace + "_sync_mode"
	MetricNamePhaseErrorMicros   = Namespace + "_phase_error_microseconds"
	MetricNameTimeQueryRequests  = Namespace + "_time_query_requests_total"

	// Labels.
	LabelVersion   = "version"
	LabelCommit    = "commit"
	LabelDate      = "date"
	LabelErrorType = "error_type"

	// Error types.
	ErrorTypeAdjustFrequency = "adjust_frequency"
	ErrorTypeStepClock       = "step_clock"
	ErrorTypeNTPQuery        = "ntp_query"
	ErrorTypePTPListener     = "ptp_listener"
	ErrorTypeRTCUpdate       = "rtc_update"
	ErrorTypeTimeQueryServer = "time_query_server"
	ErrorTypeNTPServer       = "ntp_server"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: MetricNameBuildInfo,
			Help: "Build information of the sync daemon",
		},
		[]string{LabelVersion, LabelCommit, LabelDate},
	)

	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricNameErrors,
			Help: "Number of errors encountered",
		},
		[]string{LabelErrorType},
	)

	SamplesAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameSamplesAccepted,
			Help: "Number of drift-rate samples accepted into the filter chain",
		},
	)

	SamplesSubstituted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameSamplesSubstituted,
			Help: "Number of outlier samples substituted with the window median",
		},
	)

	SamplesRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameSamplesRejected,
			Help: "Number of samples rejected before reaching the filter chain",
		},
	)

	SamplesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameSamplesDropped,
			Help: "Number of samples dropped because the controller queue was full",
		},
	)

	ClockSteps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameClockSteps,
			Help: "Number of absolute time steps applied from NTP",
		},
	)

	NTPPolls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameNTPPolls,
			Help: "Number of completed NTP polls",
		},
	)

	SoftResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameSoftResets,
			Help: "Number of soft resets triggered by a grandmaster change",
		},
	)

	DriftRatePPM = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricNameDriftRatePPM,
			Help: "Smoothed drift rate relative to the grandmaster, in ppm",
		},
	)

	FreqAdjustmentPPM = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricNameFreqAdjustmentPPM,
			Help: "Current frequency adjustment applied to the system clock, in ppm",
		},
	)

	SyncMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricNameSyncMode,
			Help: "Current sync mode (0=INIT 1=ACQ 2=PROD 3=LOCK 4=NANO 5=NTP_ONLY)",
		},
	)

	PhaseErrorMicros = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricNamePhaseErrorMicros,
			Help: "Accumulated phase error since the last NTP step, in microseconds",
		},
	)

	TimeQueryRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricNameTimeQueryRequests,
			Help: "Number of time query requests served",
		},
	)
)
