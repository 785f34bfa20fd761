// Package metrics exposes Prometheus metrics for capture, encode and mux.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "oleppy"

var (
	framesCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "capture",
		Name:      "frames_total",
		Help:      "Frames acquired from the source",
	}, []string{"session"})

	framesMissed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "capture",
		Name:      "missed_ticks_total",
		Help:      "Ticks without a usable frame, by reason",
	}, []string{"session", "reason"})

	deviceLosses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "capture",
		Name:      "device_lost_total",
		Help:      "Fatal device losses reported by the source",
	}, []string{"session"})

	ringOverruns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "ring",
		Name:      "overruns_total",
		Help:      "Copy ring reads where the producer lapped the consumer",
	}, []string{"session"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "pipeline",
		Name:      "queue_depth",
		Help:      "Items waiting in a hand-off queue",
	}, []string{"queue"})

	queueDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "pipeline",
		Name:      "queue_dropped_total",
		Help:      "Items discarded by a queue overflow policy",
	}, []string{"queue"})

	framesEncoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "encoder",
		Name:      "frames_total",
		Help:      "Frames handed to the encoder",
	}, []string{"session"})

	encodeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "encoder",
		Name:      "frame_seconds",
		Help:      "Time spent submitting one frame to the encoder",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	packetsMuxed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "mux",
		Name:      "packets_total",
		Help:      "Encoded packets written to a container",
	}, []string{"muxer"})

	bytesMuxed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "mux",
		Name:      "bytes_total",
		Help:      "Encoded payload bytes written to a container",
	}, []string{"muxer"})

	segmentsFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "session",
		Name:      "segments_finalized_total",
		Help:      "Output files committed with a trailer",
	})
)

// IncFramesCaptured counts one acquired frame.
func IncFramesCaptured(session string) {
	framesCaptured.WithLabelValues(session).Inc()
}

// IncFramesMissed counts one tick without a frame. reason is the fault code.
func IncFramesMissed(session, reason string) {
	framesMissed.WithLabelValues(session, reason).Inc()
}

// IncDeviceLost counts one device loss.
func IncDeviceLost(session string) {
	deviceLosses.WithLabelValues(session).Inc()
}

// IncRingOverrun counts one copy ring overrun.
func IncRingOverrun(session string) {
	ringOverruns.WithLabelValues(session).Inc()
}

// SetQueueDepth records the current length of a queue.
func SetQueueDepth(queue string, depth int) {
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// AddQueueDropped adds n dropped items for a queue.
func AddQueueDropped(queue string, n uint64) {
	if n == 0 {
		return
	}
	queueDropped.WithLabelValues(queue).Add(float64(n))
}

// ObserveEncode counts one encoded frame and its submit latency.
func ObserveEncode(session string, d time.Duration) {
	framesEncoded.WithLabelValues(session).Inc()
	encodeLatency.Observe(d.Seconds())
}

// AddMuxed counts one packet of size bytes written by muxer.
func AddMuxed(muxer string, size int) {
	packetsMuxed.WithLabelValues(muxer).Inc()
	bytesMuxed.WithLabelValues(muxer).Add(float64(size))
}

// IncSegmentsFinalized counts one committed output file.
func IncSegmentsFinalized() {
	segmentsFinalized.Inc()
}

// DeleteSessionMetrics removes per-session series.
func DeleteSessionMetrics(session string) {
	framesCaptured.DeleteLabelValues(session)
	framesMissed.DeletePartialMatch(prometheus.Labels{"session": session})
	deviceLosses.DeleteLabelValues(session)
	ringOverruns.DeleteLabelValues(session)
	framesEncoded.DeleteLabelValues(session)
	DeleteEncoderMetrics(session)
}
