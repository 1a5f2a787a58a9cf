// Package pipeline turns frames into per-face recognition or enrollment
// results by driving the detector, the aligner, the embedder, the matcher and
// the enrollment session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/kozaktomas/face-id/internal/align"
	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/gallery"
)

var (
	ErrUnknownMode    = errors.New("unknown mode")
	ErrFaceOutOfFrame = errors.New("face bounding box lies outside the frame")
	ErrNilFrame       = errors.New("frame is nil")
)

// Detection is one face found by a Detector. Coordinates are in the frame's
// pixel space.
type Detection struct {
	BBox     image.Rectangle
	LeftEye  align.Point
	RightEye align.Point
	Score    float64
}

// Detector finds faces in a frame. An empty slice means no faces.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]Detection, error)
}

// Embedder computes the descriptor of an aligned face.
type Embedder interface {
	Embed(ctx context.Context, face image.Image) (gallery.Embedding, error)
}

type Mode int

const (
	ModeRecognition Mode = iota
	ModeEnrollment
)

func (m Mode) String() string {
	switch m {
	case ModeRecognition:
		return "recognition"
	case ModeEnrollment:
		return "enrollment"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode accepts the mode names case-insensitively, plus the short forms
// "recognize" and "enroll".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "recognition", "recognize":
		return ModeRecognition, nil
	case "enrollment", "enroll":
		return ModeEnrollment, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// FaceResult is the outcome for one detected face. Err is set when the face
// was skipped; the other faces of the frame are unaffected.
type FaceResult struct {
	Index     int               `json:"index"`
	BBox      image.Rectangle   `json:"-"`
	Box       [4]int            `json:"bbox"`
	Score     float64           `json:"score"`
	Embedding gallery.Embedding `json:"-"`
	Match     *facematch.Match  `json:"match,omitempty"`
	Label     string            `json:"label,omitempty"`
	Err       error             `json:"-"`
	Error     string            `json:"error,omitempty"`
}

// OK reports whether the face produced a usable embedding.
func (f FaceResult) OK() bool {
	return f.Err == nil && len(f.Embedding) > 0
}

func boxOf(r image.Rectangle) [4]int {
	return [4]int{r.Min.X, r.Min.Y, r.Max.X, r.Max.Y}
}

func (f *FaceResult) fail(err error) {
	f.Err = err
	f.Error = err.Error()
}

// FrameResult holds every face of one frame in detection order.
type FrameResult struct {
	Mode  Mode         `json:"mode"`
	Faces []FaceResult `json:"faces"`
}

// Embeddings returns one entry per detected face. Faces that failed
// alignment or embedding are kept as nil entries so the face count of the
// frame is preserved.
func (r FrameResult) Embeddings() []gallery.Embedding {
	out := make([]gallery.Embedding, len(r.Faces))
	for i, f := range r.Faces {
		if f.OK() {
			out[i] = f.Embedding
		}
	}
	return out
}
