package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var namespace = "alpaca"
var subsystem = "logappender"

var (
	// StartupTime stores how long the startup took (in seconds)
	StartupTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "startup_seconds",
			Help:      "Seconds taken by the startup",
		},
	)

	// RecordsAppendedTotal stores the number of records appended, partitioned by topic
	RecordsAppendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "records_appended_total",
		Help:      "Number of records appended to segments partitioned by topic",
	}, []string{"topic"})

	// BytesAppendedTotal stores the number of payload bytes appended, partitioned by topic
	BytesAppendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "bytes_appended_total",
		Help:      "Number of payload bytes appended to segments partitioned by topic",
	}, []string{"topic"})

	// AppendErrorsTotal stores the number of failed appends, partitioned by topic
	AppendErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "append_errors_total",
		Help:      "Number of appends that returned an error partitioned by topic",
	}, []string{"topic"})

	// SegmentsRolledTotal stores the number of segment rollovers, partitioned by topic
	SegmentsRolledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "segments_rolled_total",
		Help:      "Number of times an active segment was sealed and replaced partitioned by topic",
	}, []string{"topic"})

	// OpenSegments stores the number of segments currently holding file handles
	OpenSegments = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "open_segments",
		Help:      "Number of segments with open data and index files",
	})

	// DiskUsageBytes stores the total size of the files under the root directory
	DiskUsageBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "disk_usage_bytes",
		Help:      "Total size of segment and index files under the root directory",
	})
)
