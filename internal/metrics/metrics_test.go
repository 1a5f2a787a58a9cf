package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecognitionLabels(t *testing.T) {
	known := testutil.ToFloat64(recognitions.WithLabelValues("known"))
	unknown := testutil.ToFloat64(recognitions.WithLabelValues("unknown"))

	Recognition(true)
	Recognition(false)
	Recognition(false)

	if got := testutil.ToFloat64(recognitions.WithLabelValues("known")) - known; got != 1 {
		t.Errorf("expected 1 known recognition, got %v", got)
	}
	if got := testutil.ToFloat64(recognitions.WithLabelValues("unknown")) - unknown; got != 2 {
		t.Errorf("expected 2 unknown recognitions, got %v", got)
	}
}

func TestGalleryGauge(t *testing.T) {
	SetGalleryIdentities(7)
	if got := testutil.ToFloat64(galleryIdentities); got != 7 {
		t.Errorf("expected gauge 7, got %v", got)
	}
	SetGalleryIdentities(0)
	if got := testutil.ToFloat64(galleryIdentities); got != 0 {
		t.Errorf("expected gauge 0, got %v", got)
	}
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(facesDetected)
	FacesDetected(3)
	if got := testutil.ToFloat64(facesDetected) - before; got != 3 {
		t.Errorf("expected 3 faces, got %v", got)
	}

	beforeCapture := testutil.ToFloat64(enrollmentCaptures.WithLabelValues("committed"))
	EnrollmentCapture("committed")
	if got := testutil.ToFloat64(enrollmentCaptures.WithLabelValues("committed")) - beforeCapture; got != 1 {
		t.Errorf("expected 1 committed capture, got %v", got)
	}
}

func TestObserveStage(t *testing.T) {
	ObserveStage(StageAlign, time.Now().Add(-10*time.Millisecond))
	if n := testutil.CollectAndCount(stageDuration); n < 1 {
		t.Errorf("expected at least one stage series, got %d", n)
	}
}
