// Package metrics exposes Prometheus collectors for the recognition pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline stages observed by StageDuration.
const (
	StageDetect    = "detect"
	StageAlign     = "align"
	StageEmbed     = "embed"
	StageRecognize = "recognize"
	StageSave      = "save"
)

var (
	framesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceid_frames_processed_total",
			Help: "Total number of frames processed",
		},
		[]string{"mode"},
	)
	facesDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "faceid_faces_detected_total",
			Help: "Total number of faces returned by the detector",
		},
	)
	faceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceid_face_errors_total",
			Help: "Faces dropped before matching",
		},
		[]string{"stage"},
	)
	recognitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceid_recognitions_total",
			Help: "Recognition decisions by result",
		},
		[]string{"result"},
	)
	enrollmentCaptures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faceid_enrollment_captures_total",
			Help: "Enrollment capture requests by outcome",
		},
		[]string{"outcome"},
	)
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "faceid_stage_duration_seconds",
			Help:    "Latency of pipeline stages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	galleryIdentities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "faceid_gallery_identities",
			Help: "Number of identities in the in-memory gallery",
		},
	)
)

func init() {
	prometheus.MustRegister(framesProcessed, facesDetected, faceErrors)
	prometheus.MustRegister(recognitions, enrollmentCaptures)
	prometheus.MustRegister(stageDuration, galleryIdentities)
}

func FrameProcessed(mode string) {
	framesProcessed.WithLabelValues(mode).Inc()
}

func FacesDetected(n int) {
	facesDetected.Add(float64(n))
}

// FaceError counts a face dropped at the given stage.
func FaceError(stage string) {
	faceErrors.WithLabelValues(stage).Inc()
}

// Recognition counts one decision. Known decisions are labeled "known", the
// rest "unknown" so the label set stays bounded.
func Recognition(known bool) {
	result := "unknown"
	if known {
		result = "known"
	}
	recognitions.WithLabelValues(result).Inc()
}

func EnrollmentCapture(outcome string) {
	enrollmentCaptures.WithLabelValues(outcome).Inc()
}

func SetGalleryIdentities(n int) {
	galleryIdentities.Set(float64(n))
}

// ObserveStage records the time elapsed since start for stage.
func ObserveStage(stage string, start time.Time) {
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
