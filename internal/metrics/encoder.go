package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	encoderFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "encoder",
		Name:      "fps",
		Help:      "Encoder throughput reported by ffmpeg progress",
	}, []string{"session"})

	encoderDropped = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "encoder",
		Name:      "rate_dropped_frames",
		Help:      "Frames dropped by ffmpeg rate conversion",
	}, []string{"session"})

	encoderDuplicated = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "encoder",
		Name:      "rate_duplicated_frames",
		Help:      "Frames duplicated by ffmpeg rate conversion",
	}, []string{"session"})

	encoderSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "encoder",
		Name:      "speed",
		Help:      "Encode speed relative to real time",
	}, []string{"session"})

	// Latest values for the status API.
	encoderCache   = make(map[string]*EncoderProgress)
	encoderCacheMu sync.RWMutex
)

// EncoderProgress holds the latest ffmpeg progress report for a session.
type EncoderProgress struct {
	FPS             float64 `json:"fps"`
	DroppedFrames   float64 `json:"dropped_frames"`
	DuplicateFrames float64 `json:"duplicate_frames"`
	Speed           float64 `json:"speed"`
}

// SetEncoderFPS sets the current FPS for a session.
func SetEncoderFPS(session string, fps float64) {
	encoderFPS.WithLabelValues(session).Set(fps)
	updateCache(session, func(m *EncoderProgress) { m.FPS = fps })
}

// SetEncoderDropped sets the dropped frames count for a session.
func SetEncoderDropped(session string, count float64) {
	encoderDropped.WithLabelValues(session).Set(count)
	updateCache(session, func(m *EncoderProgress) { m.DroppedFrames = count })
}

// SetEncoderDuplicated sets the duplicate frames count for a session.
func SetEncoderDuplicated(session string, count float64) {
	encoderDuplicated.WithLabelValues(session).Set(count)
	updateCache(session, func(m *EncoderProgress) { m.DuplicateFrames = count })
}

// SetEncoderSpeed sets the processing speed for a session.
func SetEncoderSpeed(session string, speed float64) {
	encoderSpeed.WithLabelValues(session).Set(speed)
	updateCache(session, func(m *EncoderProgress) { m.Speed = speed })
}

// DeleteEncoderMetrics removes all metrics for a session.
func DeleteEncoderMetrics(session string) {
	encoderFPS.DeleteLabelValues(session)
	encoderDropped.DeleteLabelValues(session)
	encoderDuplicated.DeleteLabelValues(session)
	encoderSpeed.DeleteLabelValues(session)

	encoderCacheMu.Lock()
	delete(encoderCache, session)
	encoderCacheMu.Unlock()
}

// EncoderProgressFor returns current metric values for a session.
func EncoderProgressFor(session string) *EncoderProgress {
	encoderCacheMu.RLock()
	defer encoderCacheMu.RUnlock()
	if m, ok := encoderCache[session]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// AllEncoderProgress returns metrics for all active sessions.
func AllEncoderProgress() map[string]*EncoderProgress {
	encoderCacheMu.RLock()
	defer encoderCacheMu.RUnlock()
	result := make(map[string]*EncoderProgress, len(encoderCache))
	for id, m := range encoderCache {
		dup := *m
		result[id] = &dup
	}
	return result
}

func updateCache(session string, update func(*EncoderProgress)) {
	encoderCacheMu.Lock()
	defer encoderCacheMu.Unlock()
	m, ok := encoderCache[session]
	if !ok {
		m = &EncoderProgress{}
		encoderCache[session] = m
	}
	update(m)
}
