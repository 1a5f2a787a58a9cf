package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/kozaktomas/face-id/internal/align"
	"github.com/kozaktomas/face-id/internal/database/mock"
	"github.com/kozaktomas/face-id/internal/enroll"
	"github.com/kozaktomas/face-id/internal/gallery"
)

type fakeDetector struct {
	mu         sync.Mutex
	detections []Detection
	err        error
	seen       []image.Rectangle
}

func (f *fakeDetector) Detect(_ context.Context, frame image.Image) ([]Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, frame.Bounds())
	if f.err != nil {
		return nil, f.err
	}
	return append([]Detection(nil), f.detections...), nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	emb   gallery.Embedding
	err   error
	sizes []image.Rectangle
}

func (f *fakeEmbedder) Embed(_ context.Context, face image.Image) (gallery.Embedding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sizes = append(f.sizes, face.Bounds())
	if f.err != nil {
		return nil, f.err
	}
	return f.emb.Clone(), nil
}

func testFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func centeredFace() Detection {
	return Detection{
		BBox:     image.Rect(20, 20, 80, 80),
		LeftEye:  align.Point{X: 35, Y: 40},
		RightEye: align.Point{X: 65, Y: 40},
		Score:    0.99,
	}
}

var aliceEmbedding = gallery.Embedding{0.6, 0.8, 0, 0}

func newTestController(det *fakeDetector, emb *fakeEmbedder, cfg ControllerConfig) *Controller {
	p := NewProcessor(det, emb, ProcessorConfig{Pose: align.DefaultPose(), Workers: 2})
	if cfg.Enrollment.Shots == 0 {
		cfg.Enrollment.Shots = 5
	}
	return NewController(p, gallery.New(), cfg)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"recognition", ModeRecognition, false},
		{"Enrollment", ModeEnrollment, false},
		{" enroll ", ModeEnrollment, false},
		{"recognize", ModeRecognition, false},
		{"training", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownMode) {
					t.Errorf("expected ErrUnknownMode, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseMode(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestProcessor_AlignsEachFace(t *testing.T) {
	outside := Detection{BBox: image.Rect(200, 200, 260, 260), Score: 0.9}
	det := &fakeDetector{detections: []Detection{centeredFace(), outside}}
	emb := &fakeEmbedder{emb: aliceEmbedding}
	p := NewProcessor(det, emb, ProcessorConfig{Pose: align.DefaultPose()})

	faces, err := p.Process(context.Background(), testFrame(100, 100), 4)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(faces) != 2 {
		t.Fatalf("expected 2 results, got %d", len(faces))
	}

	if !faces[0].OK() {
		t.Errorf("expected first face to succeed, got %v", faces[0].Err)
	}
	if faces[0].Box != [4]int{20, 20, 80, 80} {
		t.Errorf("unexpected box %v", faces[0].Box)
	}
	if !errors.Is(faces[1].Err, ErrFaceOutOfFrame) {
		t.Errorf("expected ErrFaceOutOfFrame, got %v", faces[1].Err)
	}
	if faces[1].Error == "" {
		t.Error("expected error text on skipped face")
	}

	if len(emb.sizes) != 1 {
		t.Fatalf("expected one embed call, got %d", len(emb.sizes))
	}
	if emb.sizes[0].Dx() != 160 || emb.sizes[0].Dy() != 160 {
		t.Errorf("expected 160x160 aligned face, got %v", emb.sizes[0])
	}
}

func TestProcessor_FaceErrors(t *testing.T) {
	degenerate := centeredFace()
	degenerate.RightEye = degenerate.LeftEye

	tests := []struct {
		name    string
		det     Detection
		emb     *fakeEmbedder
		dim     int
		wantErr error
	}{
		{"degenerate eyes", degenerate, &fakeEmbedder{emb: aliceEmbedding}, 4, align.ErrDegenerateLandmarks},
		{"dimension mismatch", centeredFace(), &fakeEmbedder{emb: gallery.Embedding{1, 2, 3}}, 4, gallery.ErrDimensionMismatch},
		{"empty embedding", centeredFace(), &fakeEmbedder{emb: gallery.Embedding{}}, 0, gallery.ErrEmptyEmbedding},
		{"embedder failure", centeredFace(), &fakeEmbedder{err: io.ErrUnexpectedEOF}, 4, io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProcessor(&fakeDetector{detections: []Detection{tt.det}}, tt.emb, ProcessorConfig{})

			faces, err := p.Process(context.Background(), testFrame(100, 100), tt.dim)
			if err != nil {
				t.Fatalf("per-face errors must not fail the frame: %v", err)
			}
			if len(faces) != 1 {
				t.Fatalf("expected 1 result, got %d", len(faces))
			}
			if !errors.Is(faces[0].Err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, faces[0].Err)
			}
			if faces[0].OK() {
				t.Error("failed face must not report OK")
			}
		})
	}
}

func TestProcessor_DetectorError(t *testing.T) {
	boom := errors.New("detector down")
	p := NewProcessor(&fakeDetector{err: boom}, &fakeEmbedder{}, ProcessorConfig{})

	if _, err := p.Process(context.Background(), testFrame(10, 10), 0); !errors.Is(err, boom) {
		t.Errorf("expected detector error, got %v", err)
	}
	if _, err := p.Process(context.Background(), nil, 0); !errors.Is(err, ErrNilFrame) {
		t.Errorf("expected ErrNilFrame, got %v", err)
	}
}

func TestProcessor_NoFaces(t *testing.T) {
	p := NewProcessor(&fakeDetector{}, &fakeEmbedder{}, ProcessorConfig{})

	faces, err := p.Process(context.Background(), testFrame(10, 10), 0)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("expected no faces, got %d", len(faces))
	}
}

func TestProcessor_DownscalesBeforeDetection(t *testing.T) {
	det := &fakeDetector{detections: []Detection{{
		BBox:     image.Rect(10, 10, 20, 20),
		LeftEye:  align.Point{X: 12, Y: 14},
		RightEye: align.Point{X: 18, Y: 14},
	}}}
	emb := &fakeEmbedder{emb: aliceEmbedding}
	p := NewProcessor(det, emb, ProcessorConfig{MaxImageSize: 100})

	faces, err := p.Process(context.Background(), testFrame(400, 200), 0)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if det.seen[0].Dx() != 100 || det.seen[0].Dy() != 50 {
		t.Errorf("expected detector to see 100x50, got %v", det.seen[0])
	}
	if faces[0].Box != [4]int{40, 40, 80, 80} {
		t.Errorf("expected box scaled back to frame, got %v", faces[0].Box)
	}
	if !faces[0].OK() {
		t.Errorf("expected face to succeed, got %v", faces[0].Err)
	}
}

func enrollShots(t *testing.T, c *Controller, n int) enroll.Result {
	t.Helper()
	var res enroll.Result
	for i := range n {
		if _, err := c.ProcessFrame(context.Background(), testFrame(100, 100)); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		res = c.Capture(context.Background())
	}
	return res
}

func TestController_EnrollThenRecognize(t *testing.T) {
	store := mock.NewMockGalleryStore()
	det := &fakeDetector{detections: []Detection{centeredFace()}}
	emb := &fakeEmbedder{emb: aliceEmbedding}
	c := newTestController(det, emb, ControllerConfig{Store: store})

	if err := c.SetMode(ModeEnrollment); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if err := c.BindName("Alice"); err != nil {
		t.Fatalf("BindName: %v", err)
	}

	for i := range 4 {
		res := enrollShots(t, c, 1)
		if res.Outcome != enroll.OutcomeAccumulated || res.Shot != i+1 {
			t.Fatalf("shot %d: unexpected result %+v", i+1, res)
		}
	}
	res := enrollShots(t, c, 1)
	if res.Outcome != enroll.OutcomeCommitted || res.Name != "Alice" {
		t.Fatalf("expected Alice committed, got %+v", res)
	}
	if c.Mode() != ModeRecognition {
		t.Errorf("expected recognition mode after commit, got %s", c.Mode())
	}

	frame, err := c.ProcessFrame(context.Background(), testFrame(100, 100))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if len(frame.Faces) != 1 || frame.Faces[0].Match == nil {
		t.Fatalf("expected one matched face, got %+v", frame.Faces)
	}
	m := frame.Faces[0].Match
	if !m.Known || m.Name != "Alice" || m.Distance > 1e-9 {
		t.Errorf("expected Alice at distance ~0, got %+v", m)
	}
	if frame.Faces[0].Label != "Alice" {
		t.Errorf("expected label Alice, got %q", frame.Faces[0].Label)
	}

	if store.Saves() != 0 {
		t.Errorf("expected no save before quit without autosave, got %d", store.Saves())
	}
	if err := c.Quit(context.Background()); err != nil {
		t.Fatalf("Quit: %v", err)
	}
	snap := store.Snapshot()
	if snap == nil || len(snap.Identities["Alice"]) != len(aliceEmbedding) {
		t.Fatalf("expected Alice in saved snapshot, got %+v", snap)
	}
}

func TestController_CaptureIgnored(t *testing.T) {
	two := []Detection{centeredFace(), centeredFace()}
	degenerate := centeredFace()
	degenerate.RightEye = degenerate.LeftEye

	tests := []struct {
		name       string
		detections []Detection
		enroll     bool
		bind       bool
		wantReason string
	}{
		{"recognition mode", []Detection{centeredFace()}, false, false, enroll.ReasonNotEnrolling},
		{"no name", []Detection{centeredFace()}, true, false, enroll.ReasonNoName},
		{"no faces", nil, true, true, enroll.ReasonNoFace},
		{"two faces", two, true, true, enroll.ReasonMultipleFaces},
		{"good face and degenerate face", []Detection{centeredFace(), degenerate}, true, true, enroll.ReasonMultipleFaces},
		{"only face degenerate", []Detection{degenerate}, true, true, enroll.ReasonFaceUnusable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(&fakeDetector{detections: tt.detections}, &fakeEmbedder{emb: aliceEmbedding}, ControllerConfig{})
			if tt.enroll {
				if err := c.SetMode(ModeEnrollment); err != nil {
					t.Fatalf("SetMode: %v", err)
				}
			}
			if tt.bind {
				if err := c.BindName("Bob"); err != nil {
					t.Fatalf("BindName: %v", err)
				}
			}

			res := enrollShots(t, c, 1)
			if res.Outcome != enroll.OutcomeIgnored || res.Reason != tt.wantReason {
				t.Errorf("expected ignored %q, got %+v", tt.wantReason, res)
			}
			if c.Gallery().Len() != 0 {
				t.Error("ignored capture must not touch the gallery")
			}
			if tt.bind && c.Status().Enrollment.Shot != 0 {
				t.Errorf("ignored capture must not count as a shot, got %d", c.Status().Enrollment.Shot)
			}
		})
	}
}

func TestController_BindNameOutsideEnrollment(t *testing.T) {
	c := newTestController(&fakeDetector{}, &fakeEmbedder{}, ControllerConfig{})

	if err := c.BindName("Alice"); !errors.Is(err, ErrNotEnrolling) {
		t.Errorf("expected ErrNotEnrolling, got %v", err)
	}

	_ = c.SetMode(ModeEnrollment)
	if err := c.BindName("   "); !errors.Is(err, enroll.ErrEmptyName) {
		t.Errorf("expected ErrEmptyName, got %v", err)
	}
}

func TestController_ToggleAbandonsEnrollment(t *testing.T) {
	det := &fakeDetector{detections: []Detection{centeredFace()}}
	c := newTestController(det, &fakeEmbedder{emb: aliceEmbedding}, ControllerConfig{})

	if mode, err := c.ToggleMode(); err != nil || mode != ModeEnrollment {
		t.Fatalf("expected enrollment, got %v, %v", mode, err)
	}
	if err := c.BindName("Alice"); err != nil {
		t.Fatalf("BindName: %v", err)
	}
	enrollShots(t, c, 2)
	if got := c.Status().Enrollment.Shot; got != 2 {
		t.Fatalf("expected 2 shots, got %d", got)
	}

	if mode, err := c.ToggleMode(); err != nil || mode != ModeRecognition {
		t.Fatalf("expected recognition, got %v, %v", mode, err)
	}
	st := c.Status()
	if st.Enrollment.State != enroll.StateIdle || st.Enrollment.Shot != 0 {
		t.Errorf("expected idle session after toggle, got %+v", st.Enrollment)
	}
	if c.Gallery().Len() != 0 {
		t.Error("abandoned enrollment must not touch the gallery")
	}
}

func TestController_AutoSave(t *testing.T) {
	store := mock.NewMockGalleryStore()
	det := &fakeDetector{detections: []Detection{centeredFace()}}
	c := newTestController(det, &fakeEmbedder{emb: aliceEmbedding}, ControllerConfig{
		Store:      store,
		AutoSave:   true,
		Enrollment: enroll.Config{Shots: 2},
	})

	_ = c.SetMode(ModeEnrollment)
	_ = c.BindName("Alice")
	if res := enrollShots(t, c, 2); res.Outcome != enroll.OutcomeCommitted {
		t.Fatalf("expected commit, got %+v", res)
	}
	if store.Saves() != 1 {
		t.Errorf("expected autosave after commit, got %d saves", store.Saves())
	}
}

func TestController_QuitReportsSaveError(t *testing.T) {
	store := mock.NewMockGalleryStore()
	store.SaveError = errors.New("disk full")
	c := newTestController(&fakeDetector{}, &fakeEmbedder{}, ControllerConfig{Store: store})

	err := c.Quit(context.Background())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("expected save error from Quit, got %v", err)
	}
}

func TestController_UnreadStoreKeptUntilEnrollment(t *testing.T) {
	store := mock.NewMockGalleryStore()
	det := &fakeDetector{detections: []Detection{centeredFace()}}
	c := newTestController(det, &fakeEmbedder{emb: aliceEmbedding}, ControllerConfig{
		Store:       store,
		StoreUnread: true,
		Enrollment:  enroll.Config{Shots: 2},
	})

	if err := c.Quit(context.Background()); err != nil {
		t.Fatalf("Quit: %v", err)
	}
	if store.Saves() != 0 {
		t.Fatalf("expected unread store to stay untouched, got %d saves", store.Saves())
	}

	_ = c.SetMode(ModeEnrollment)
	_ = c.BindName("Alice")
	if res := enrollShots(t, c, 2); res.Outcome != enroll.OutcomeCommitted {
		t.Fatalf("expected commit, got %+v", res)
	}
	if err := c.Quit(context.Background()); err != nil {
		t.Fatalf("Quit: %v", err)
	}
	if store.Saves() != 1 {
		t.Errorf("expected save once the gallery changed, got %d saves", store.Saves())
	}
}

type sliceFrames struct {
	frames []image.Image
}

func (s *sliceFrames) Next(context.Context) (image.Image, string, error) {
	if len(s.frames) == 0 {
		return nil, "", io.EOF
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, "frame.png", nil
}

func TestRun_EnrollAndRecognize(t *testing.T) {
	store := mock.NewMockGalleryStore()
	det := &fakeDetector{detections: []Detection{centeredFace()}}
	c := newTestController(det, &fakeEmbedder{emb: aliceEmbedding}, ControllerConfig{
		Store:      store,
		Enrollment: enroll.Config{Shots: 2},
	})

	frames := &sliceFrames{}
	for range 4 {
		frames.frames = append(frames.frames, testFrame(100, 100))
	}
	script := strings.Join([]string{
		"m",
		"n Alice",
		"", "c",
		"f", "c",
		"f",
		"bogus",
		"f",
		"f",
	}, "\n")

	var out bytes.Buffer
	if err := Run(context.Background(), c, frames, strings.NewReader(script), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"mode: enrollment",
		"name: Alice",
		"shot 1/2 for Alice",
		"enrolled Alice",
		"Alice (0.0000)",
		`unknown command "bogus"`,
		"no more frames",
		"gallery saved",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, got)
		}
	}
	if store.Saves() != 1 {
		t.Errorf("expected one save on quit, got %d", store.Saves())
	}
}

func TestDirFrames(t *testing.T) {
	d := &DirFrames{}
	if _, _, err := d.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF from empty source, got %v", err)
	}
	if d.Len() != 0 {
		t.Errorf("expected 0 frames, got %d", d.Len())
	}
}
