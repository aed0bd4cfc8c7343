// Package observability exports pipeline stage metrics through Prometheus.
//
// A Metrics value is a pipeline.Observer. It keeps its own registry, so
// several runs in one process never collide on the default registry, and it
// can write the registry as a node-exporter textfile after a run.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/YuminosukeSato/mlpipe/pipeline"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
)

const namespace = "mlpipe"

// Metrics records stage durations, candidate scores and failures.
type Metrics struct {
	registry *prometheus.Registry
	logger   log.Logger

	stageDuration     *prometheus.GaugeVec
	stageFailures     *prometheus.CounterVec
	candidateScore    *prometheus.GaugeVec
	candidateFailures *prometheus.CounterVec
	selectedScore     *prometheus.GaugeVec
	trainedRows       *prometheus.GaugeVec
	lastRun           prometheus.Gauge
}

var _ pipeline.Observer = (*Metrics)(nil)

// NewMetrics creates a Metrics observer with a fresh registry.
func NewMetrics(logger log.Logger) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logger:   log.OrNop(logger),
		stageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of the last execution of each pipeline stage.",
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Number of failed pipeline stage executions.",
		}, []string{"stage"}),
		candidateScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "candidate_r2",
			Help:      "Test R² of each evaluated candidate.",
		}, []string{"candidate"}),
		candidateFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidate_failures_total",
			Help:      "Number of candidates that failed to train or score.",
		}, []string{"candidate"}),
		selectedScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "selected_r2",
			Help:      "Test R² of the selected model.",
		}, []string{"model"}),
		trainedRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "partition_rows",
			Help:      "Rows in each data partition of the last run.",
		}, []string{"partition"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_stage_timestamp_seconds",
			Help:      "Unix time at which the last stage finished.",
		}),
	}
	m.registry.MustRegister(
		m.stageDuration,
		m.stageFailures,
		m.candidateScore,
		m.candidateFailures,
		m.selectedScore,
		m.trainedRows,
		m.lastRun,
	)
	return m
}

// Registry returns the registry holding the pipeline metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// OnStage implements pipeline.Observer.
func (m *Metrics) OnStage(e pipeline.StageEvent) {
	m.stageDuration.WithLabelValues(e.Stage).Set(e.Duration.Seconds())
	m.lastRun.Set(float64(e.Started.Add(e.Duration).Unix()))
	if e.Err != nil {
		m.stageFailures.WithLabelValues(e.Stage).Inc()
	}

	switch e.Stage {
	case pipeline.StageIngestion:
		if e.Err == nil {
			m.trainedRows.WithLabelValues("raw").Set(float64(e.Rows))
			m.trainedRows.WithLabelValues("train").Set(float64(e.TrainRows))
			m.trainedRows.WithLabelValues("test").Set(float64(e.TestRows))
		}
	case pipeline.StageEvaluation:
		for name, score := range e.Scores {
			m.candidateScore.WithLabelValues(name).Set(score)
		}
		for _, f := range e.Failures {
			m.candidateFailures.WithLabelValues(f.Candidate).Inc()
		}
	case pipeline.StageSelection:
		if e.BestModel != "" {
			m.selectedScore.Reset()
			m.selectedScore.WithLabelValues(e.BestModel).Set(e.BestScore)
		}
	}
}

// WriteTextfile writes the current metrics to path in the Prometheus text
// format. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.NewArtifactSaveError(path, err)
	}
	m.logger.Debug("metrics written", log.ArtifactPathKey, path)
	return nil
}
