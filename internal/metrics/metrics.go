// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesReadTotal counts frames returned by the capture handle, captured or not
	FramesReadTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xdump_frames_read_total",
			Help: "Total number of frames read from the capture handle",
		},
	)

	// FramesForwardedTotal counts frames handed to the writer queue
	FramesForwardedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xdump_frames_forwarded_total",
			Help: "Total number of frames forwarded to the writer",
		},
	)

	// FramesDroppedTotal counts frames discarded by the source, by reason
	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xdump_frames_dropped_total",
			Help: "Total number of frames dropped before the writer",
		},
		[]string{"reason"},
	)

	// ReadErrorsTotal counts capture read failures other than timeouts
	ReadErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xdump_read_errors_total",
			Help: "Total number of capture read errors",
		},
	)

	// RecordsWrittenTotal counts pcap records appended to capture files
	RecordsWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xdump_records_written_total",
			Help: "Total number of records written to capture files",
		},
	)

	// WriteErrorsTotal counts failed record writes, flushes and file operations
	WriteErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xdump_write_errors_total",
			Help: "Total number of capture file write errors",
		},
	)

	// CaptureEnabled mirrors the capture state (1=window open)
	CaptureEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "xdump_capture_enabled",
			Help: "Whether the capture window is currently open",
		},
	)

	// WriterFileOpen is 1 while a capture file is open
	WriterFileOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "xdump_writer_file_open",
			Help: "Whether the writer currently holds an open capture file",
		},
	)

	// WriterDegraded is 1 while the writer cannot create its capture file
	WriterDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "xdump_writer_degraded",
			Help: "Whether the writer failed to create the capture file for the current window",
		},
	)
)

// Drop reasons used as the FramesDroppedTotal label.
const (
	ReasonIdle         = "idle"
	ReasonExcludedPort = "excluded_port"
	ReasonProtocol     = "protocol"
	ReasonFragment     = "fragment"
	ReasonMalformed    = "malformed"
	ReasonHook         = "hook"
)

// BoolGauge maps a boolean to 0 or 1.
func BoolGauge(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
