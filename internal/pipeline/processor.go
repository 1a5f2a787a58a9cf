package pipeline

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-id/internal/align"
	"github.com/kozaktomas/face-id/internal/constants"
	"github.com/kozaktomas/face-id/internal/imageio"
	"github.com/kozaktomas/face-id/internal/logging"
	"github.com/kozaktomas/face-id/internal/metrics"
)

// ProcessorConfig controls how frames are prepared.
type ProcessorConfig struct {
	Pose align.Pose
	// Workers bounds the number of faces aligned and embedded in parallel.
	Workers int
	// MaxImageSize downscales frames before detection; 0 disables it.
	MaxImageSize int
}

// Processor detects, aligns and embeds every face of a frame.
type Processor struct {
	detector Detector
	embedder Embedder
	pose     align.Pose
	workers  int
	maxSize  int
}

func NewProcessor(detector Detector, embedder Embedder, cfg ProcessorConfig) *Processor {
	workers := cfg.Workers
	if workers <= 0 {
		workers = constants.WorkerPoolSize
	}
	pose := cfg.Pose
	if pose.Width == 0 && pose.Height == 0 {
		pose = align.DefaultPose()
	}
	return &Processor{
		detector: detector,
		embedder: embedder,
		pose:     pose,
		workers:  workers,
		maxSize:  cfg.MaxImageSize,
	}
}

// Pose returns the canonical pose faces are aligned to.
func (p *Processor) Pose() align.Pose {
	return p.pose
}

// Process returns one FaceResult per detection. dim is the embedding length
// every face must have; 0 accepts any non-empty embedding. Only a detector
// failure fails the whole frame.
func (p *Processor) Process(ctx context.Context, frame image.Image, dim int) ([]FaceResult, error) {
	if frame == nil {
		return nil, ErrNilFrame
	}

	detections, err := p.detect(ctx, frame)
	if err != nil {
		return nil, err
	}
	metrics.FacesDetected(len(detections))

	results := make([]FaceResult, len(detections))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, det := range detections {
		g.Go(func() error {
			results[i] = p.processFace(gctx, frame, i, det, dim)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range results {
		if r.Err != nil {
			logging.Warn(logging.Fields{"face": r.Index, "bbox": r.BBox.String()}, "skipping face: "+r.Error)
		}
	}
	return results, nil
}

func (p *Processor) detect(ctx context.Context, frame image.Image) ([]Detection, error) {
	start := time.Now()
	defer metrics.ObserveStage(metrics.StageDetect, start)

	scaled, scale := imageio.FitWithin(frame, p.maxSize)
	detections, err := p.detector.Detect(ctx, scaled)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}
	if scale == 1 {
		return detections, nil
	}

	// Map detections on the downscaled copy back to frame coordinates.
	origin := frame.Bounds().Min
	out := make([]Detection, len(detections))
	for i, d := range detections {
		out[i] = Detection{
			BBox: image.Rect(
				origin.X+int(math.Floor(float64(d.BBox.Min.X)/scale)),
				origin.Y+int(math.Floor(float64(d.BBox.Min.Y)/scale)),
				origin.X+int(math.Ceil(float64(d.BBox.Max.X)/scale)),
				origin.Y+int(math.Ceil(float64(d.BBox.Max.Y)/scale)),
			),
			LeftEye:  align.Point{X: float64(origin.X) + d.LeftEye.X/scale, Y: float64(origin.Y) + d.LeftEye.Y/scale},
			RightEye: align.Point{X: float64(origin.X) + d.RightEye.X/scale, Y: float64(origin.Y) + d.RightEye.Y/scale},
			Score:    d.Score,
		}
	}
	return out, nil
}

func (p *Processor) processFace(ctx context.Context, frame image.Image, index int, det Detection, dim int) FaceResult {
	res := FaceResult{Index: index, BBox: det.BBox, Box: boxOf(det.BBox), Score: det.Score}

	r := det.BBox.Intersect(frame.Bounds())
	if r.Empty() {
		res.fail(ErrFaceOutOfFrame)
		metrics.FaceError(metrics.StageAlign)
		return res
	}
	res.BBox = r
	res.Box = boxOf(r)

	// Eyes arrive in frame coordinates; the aligner wants them relative to
	// the crop origin.
	left := align.Point{X: det.LeftEye.X - float64(r.Min.X), Y: det.LeftEye.Y - float64(r.Min.Y)}
	right := align.Point{X: det.RightEye.X - float64(r.Min.X), Y: det.RightEye.Y - float64(r.Min.Y)}

	start := time.Now()
	aligned, err := align.Align(imageio.Crop(frame, r), left, right, p.pose)
	metrics.ObserveStage(metrics.StageAlign, start)
	if err != nil {
		res.fail(fmt.Errorf("aligning face %d: %w", index, err))
		metrics.FaceError(metrics.StageAlign)
		return res
	}

	start = time.Now()
	emb, err := p.embedder.Embed(ctx, aligned)
	metrics.ObserveStage(metrics.StageEmbed, start)
	if err != nil {
		res.fail(fmt.Errorf("embedding face %d: %w", index, err))
		metrics.FaceError(metrics.StageEmbed)
		return res
	}
	if err := emb.Validate(dim); err != nil {
		res.fail(fmt.Errorf("embedding face %d: %w", index, err))
		metrics.FaceError(metrics.StageEmbed)
		return res
	}

	res.Embedding = emb
	return res
}
