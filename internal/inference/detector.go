package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"image"

	"github.com/kozaktomas/face-id/internal/align"
	"github.com/kozaktomas/face-id/internal/constants"
	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/imageio"
	"github.com/kozaktomas/face-id/internal/pipeline"
)

const frameJPEGQuality = 90

// Detector finds faces by posting frames to the detection server.
type Detector struct {
	client
	minScore float64
}

var _ pipeline.Detector = (*Detector)(nil)

func NewDetector(baseURL string, minScore float64) *Detector {
	return &Detector{client: newClient(baseURL), minScore: minScore}
}

// faceDetection is one face in the /detect reply. Keypoints follow the
// InsightFace order: left eye, right eye, nose, mouth corners.
type faceDetection struct {
	BBox     []float64    `json:"bbox"` // [x1, y1, x2, y2]
	Kps      [][2]float64 `json:"kps"`
	DetScore float64      `json:"det_score"`
}

type detectResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Detect returns the faces in frame, highest score first. Faces below the
// minimum score, without eye keypoints, or outside the frame are dropped, as
// are lower-scoring duplicates of the same face.
func (d *Detector) Detect(ctx context.Context, frame image.Image) ([]pipeline.Detection, error) {
	data, err := imageio.EncodeJPEG(frame, frameJPEGQuality)
	if err != nil {
		return nil, err
	}

	body, err := d.postMultipartImage(ctx, "/detect", "frame.jpg", data)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return d.convert(resp.Faces, frame.Bounds()), nil
}

func (d *Detector) convert(faces []faceDetection, bounds image.Rectangle) []pipeline.Detection {
	// The server sees the encoded frame with its origin at (0, 0).
	ox, oy := float64(bounds.Min.X), float64(bounds.Min.Y)

	var (
		candidates []pipeline.Detection
		boxes      [][]float64
		scores     []float64
	)
	for _, f := range faces {
		if f.DetScore < d.minScore || len(f.Kps) < 2 || len(f.BBox) != 4 {
			continue
		}
		bbox := []float64{f.BBox[0] + ox, f.BBox[1] + oy, f.BBox[2] + ox, f.BBox[3] + oy}
		r, ok := facematch.ClampBox(bbox, bounds)
		if !ok {
			continue
		}
		candidates = append(candidates, pipeline.Detection{
			BBox:     r,
			LeftEye:  align.Point{X: f.Kps[0][0] + ox, Y: f.Kps[0][1] + oy},
			RightEye: align.Point{X: f.Kps[1][0] + ox, Y: f.Kps[1][1] + oy},
			Score:    f.DetScore,
		})
		boxes = append(boxes, bbox)
		scores = append(scores, f.DetScore)
	}

	kept := facematch.SuppressOverlaps(boxes, scores, constants.DetectionOverlapIoU)
	out := make([]pipeline.Detection, 0, len(kept))
	for _, i := range kept {
		out = append(out, candidates[i])
	}
	return out
}
