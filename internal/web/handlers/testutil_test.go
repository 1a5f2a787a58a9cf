package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-id/internal/align"
	"github.com/kozaktomas/face-id/internal/enroll"
	"github.com/kozaktomas/face-id/internal/gallery"
	"github.com/kozaktomas/face-id/internal/imageio"
	"github.com/kozaktomas/face-id/internal/pipeline"
)

// stubDetector reports the same faces for every frame.
type stubDetector struct {
	faces []pipeline.Detection
}

func (d *stubDetector) Detect(context.Context, image.Image) ([]pipeline.Detection, error) {
	return d.faces, nil
}

// stubEmbedder returns a fixed embedding for every face.
type stubEmbedder struct {
	emb gallery.Embedding
}

func (e *stubEmbedder) Embed(context.Context, image.Image) (gallery.Embedding, error) {
	return e.emb.Clone(), nil
}

func oneFace() []pipeline.Detection {
	return []pipeline.Detection{{
		BBox:     image.Rect(8, 8, 56, 56),
		LeftEye:  align.Point{X: 20, Y: 24},
		RightEye: align.Point{X: 44, Y: 24},
		Score:    0.9,
	}}
}

// newTestController wires a controller to stub inference and g.
func newTestController(g *gallery.Gallery, faces []pipeline.Detection, emb gallery.Embedding) *pipeline.Controller {
	p := pipeline.NewProcessor(&stubDetector{faces: faces}, &stubEmbedder{emb: emb}, pipeline.ProcessorConfig{})
	return pipeline.NewController(p, g, pipeline.ControllerConfig{Enrollment: enroll.Config{Shots: 2}})
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// frameRequest builds a multipart upload of a 64x64 PNG frame.
func frameRequest(t *testing.T) *http.Request {
	t.Helper()
	data, err := imageio.EncodePNG(image.NewRGBA(image.Rect(0, 0, 64, 64)))
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", "frame.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(data)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/frames", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(recorder.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", recorder.Body.String(), err)
	}
	return v
}
