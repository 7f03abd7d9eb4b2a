// Package metrics defines the Prometheus instrumentation for the capture
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all collectors for one recorder instance.
type Metrics struct {
	// Capture metrics
	FramesCaptured *prometheus.CounterVec
	BufferOverruns *prometheus.CounterVec
	SourceLevel    *prometheus.GaugeVec

	// Pipeline metrics
	BlocksEmitted  prometheus.Counter
	FramesPadded   *prometheus.CounterVec
	RecorderState  prometheus.Gauge
	SessionSeconds prometheus.Histogram

	// Output metrics
	BytesWritten prometheus.Counter
	WriteErrors  prometheus.Counter
}

// New creates and registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesCaptured: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dualcap_frames_captured_total",
			Help: "Total frames read from each capture source",
		}, []string{"source"}),
		BufferOverruns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dualcap_buffer_overruns_total",
			Help: "Total frames dropped because a capture buffer was full",
		}, []string{"source"}),
		SourceLevel: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dualcap_source_level_rms",
			Help: "RMS level of the most recent block from each source",
		}, []string{"source"}),

		BlocksEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "dualcap_blocks_emitted_total",
			Help: "Total aligned blocks written to the output file",
		}),
		FramesPadded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dualcap_frames_padded_total",
			Help: "Total silence frames inserted when a source ran dry",
		}, []string{"source"}),
		RecorderState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dualcap_recorder_state",
			Help: "Recorder state (0 idle, 1 recording, 2 stopping, 3 failed, 4 ready)",
		}),
		SessionSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dualcap_session_duration_seconds",
			Help:    "Duration of completed recording sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~2.3 hours
		}),

		BytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "dualcap_output_bytes_written_total",
			Help: "Total PCM payload bytes appended to output files",
		}),
		WriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "dualcap_output_write_errors_total",
			Help: "Total write failures on the output file",
		}),
	}
}
