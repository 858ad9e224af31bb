package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics holds the Prometheus series mandated by spec §6.3's
// operational surface: per-source fetch counts, per-source/status parse
// row counts, per-table Parquet write and ClickHouse load outcomes, and
// per-flow run duration. Grounded on the teacher's CounterVec/HistogramVec
// registration pattern (prometheus.NewCounterVec/NewHistogramVec plus a
// MustRegister block), generalized from HTTP/DB/chain series to the ETL
// run's own domain.
type PipelineMetrics struct {
	FilesDownloaded *prometheus.CounterVec // labels: source
	RowsParsed      *prometheus.CounterVec // labels: source, status (ok|filtered)

	ParquetWriteSuccess *prometheus.CounterVec // labels: table
	ParquetWriteFailed  *prometheus.CounterVec // labels: table

	ClickHouseLoadSuccess *prometheus.CounterVec // labels: table
	ClickHouseLoadFailed  *prometheus.CounterVec // labels: table

	FlowDuration *prometheus.HistogramVec // labels: flow_name, status
}

// NewPipelineMetrics registers the pipeline series against registerer.
func NewPipelineMetrics(registerer prometheus.Registerer) *PipelineMetrics {
	pm := &PipelineMetrics{
		FilesDownloaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "files_downloaded_total",
				Help: "Total number of source files/responses successfully fetched",
			},
			[]string{"source"},
		),
		RowsParsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rows_parsed_total",
				Help: "Total number of rows produced by a source parser",
			},
			[]string{"source", "status"},
		),
		ParquetWriteSuccess: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parquet_write_success_total",
				Help: "Total number of successful Parquet partition writes",
			},
			[]string{"table"},
		),
		ParquetWriteFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parquet_write_failed_total",
				Help: "Total number of failed Parquet partition writes",
			},
			[]string{"table"},
		),
		ClickHouseLoadSuccess: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clickhouse_load_success_total",
				Help: "Total number of successful ClickHouse batch loads",
			},
			[]string{"table"},
		),
		ClickHouseLoadFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clickhouse_load_failed_total",
				Help: "Total number of failed ClickHouse batch loads",
			},
			[]string{"table"},
		),
		FlowDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flow_duration_seconds",
				Help:    "Duration of one pipeline run, end to end",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"flow_name", "status"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			pm.FilesDownloaded,
			pm.RowsParsed,
			pm.ParquetWriteSuccess,
			pm.ParquetWriteFailed,
			pm.ClickHouseLoadSuccess,
			pm.ClickHouseLoadFailed,
			pm.FlowDuration,
		)
	}

	return pm
}

// NewPipelineMetricsDefault registers against prometheus.DefaultRegisterer,
// for process entrypoints that expose the default /metrics handler.
func NewPipelineMetricsDefault() *PipelineMetrics {
	return NewPipelineMetrics(prometheus.DefaultRegisterer)
}

func (pm *PipelineMetrics) RecordFileDownloaded(source string) {
	if pm == nil {
		return
	}
	pm.FilesDownloaded.WithLabelValues(source).Inc()
}

func (pm *PipelineMetrics) RecordRowsParsed(source, status string, rows int) {
	if pm == nil || rows <= 0 {
		return
	}
	pm.RowsParsed.WithLabelValues(source, status).Add(float64(rows))
}

func (pm *PipelineMetrics) RecordParquetWrite(table string, err error) {
	if pm == nil {
		return
	}
	if err != nil {
		pm.ParquetWriteFailed.WithLabelValues(table).Inc()
		return
	}
	pm.ParquetWriteSuccess.WithLabelValues(table).Inc()
}

func (pm *PipelineMetrics) RecordClickHouseLoad(table string, err error) {
	if pm == nil {
		return
	}
	if err != nil {
		pm.ClickHouseLoadFailed.WithLabelValues(table).Inc()
		return
	}
	pm.ClickHouseLoadSuccess.WithLabelValues(table).Inc()
}

func (pm *PipelineMetrics) RecordFlowDuration(flowName, status string, d time.Duration) {
	if pm == nil {
		return
	}
	pm.FlowDuration.WithLabelValues(flowName, status).Observe(d.Seconds())
}
