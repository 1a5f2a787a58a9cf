package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-id/internal/enroll"
	"github.com/kozaktomas/face-id/internal/gallery"
	"github.com/kozaktomas/face-id/internal/pipeline"
)

func TestControlHandler_Recognize(t *testing.T) {
	handler := NewControlHandler(newTestController(testGallery(t), nil, nil))

	tests := []struct {
		name      string
		body      any
		wantCode  int
		wantLabel string
	}{
		{"known", RecognizeRequest{Embedding: []float32{0, 1, 0}}, http.StatusOK, "Alice"},
		{"unknown", RecognizeRequest{Embedding: []float32{0, 0, 5}}, http.StatusOK, "unknown"},
		{"wrong dimension", RecognizeRequest{Embedding: []float32{1, 0}}, http.StatusBadRequest, ""},
		{"missing embedding", map[string]any{}, http.StatusBadRequest, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.Recognize(recorder, jsonRequest(t, http.MethodPost, "/api/v1/recognize", tc.body))

			if recorder.Code != tc.wantCode {
				t.Fatalf("expected status %d, got %d: %s", tc.wantCode, recorder.Code, recorder.Body.String())
			}
			if tc.wantLabel == "" {
				return
			}
			resp := decodeBody[RecognizeResponse](t, recorder)
			if resp.Label != tc.wantLabel {
				t.Errorf("expected label %q, got %+v", tc.wantLabel, resp)
			}
		})
	}
}

func TestControlHandler_Mode(t *testing.T) {
	ctrl := newTestController(gallery.New(), nil, nil)
	handler := NewControlHandler(ctrl)

	recorder := httptest.NewRecorder()
	handler.SetMode(recorder, jsonRequest(t, http.MethodPut, "/api/v1/mode", ModeRequest{Mode: "enrollment"}))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if ctrl.Mode() != pipeline.ModeEnrollment {
		t.Errorf("expected enrollment mode, got %s", ctrl.Mode())
	}

	recorder = httptest.NewRecorder()
	handler.GetMode(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/mode", nil))
	if body := decodeBody[map[string]string](t, recorder); body["mode"] != "enrollment" {
		t.Errorf("expected mode enrollment, got %v", body)
	}

	recorder = httptest.NewRecorder()
	handler.SetMode(recorder, jsonRequest(t, http.MethodPut, "/api/v1/mode", ModeRequest{Mode: "party"}))
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for unknown mode, got %d", recorder.Code)
	}
}

func TestControlHandler_BindName(t *testing.T) {
	ctrl := newTestController(gallery.New(), nil, nil)
	handler := NewControlHandler(ctrl)

	recorder := httptest.NewRecorder()
	handler.BindName(recorder, jsonRequest(t, http.MethodPut, "/api/v1/enrollment/name", NameRequest{Name: "Alice"}))
	if recorder.Code != http.StatusConflict {
		t.Errorf("expected 409 outside enrollment, got %d", recorder.Code)
	}

	if err := ctrl.SetMode(pipeline.ModeEnrollment); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	recorder = httptest.NewRecorder()
	handler.BindName(recorder, jsonRequest(t, http.MethodPut, "/api/v1/enrollment/name", NameRequest{Name: "  "}))
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for blank name, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	handler.BindName(recorder, jsonRequest(t, http.MethodPut, "/api/v1/enrollment/name", NameRequest{Name: "Alice"}))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	status := decodeBody[enroll.Status](t, recorder)
	if status.Name != "Alice" || status.Shots != 2 {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestControlHandler_EnrollOverHTTP(t *testing.T) {
	g := gallery.New()
	ctrl := newTestController(g, oneFace(), gallery.Embedding{0.6, 0.8})
	handler := NewControlHandler(ctrl)

	// Capture before anything is set up is ignored.
	recorder := httptest.NewRecorder()
	handler.Capture(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/enrollment/capture", nil))
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409 for ignored capture, got %d", recorder.Code)
	}
	if res := decodeBody[enroll.Result](t, recorder); res.Reason != enroll.ReasonNotEnrolling {
		t.Errorf("unexpected reason %q", res.Reason)
	}

	_ = ctrl.SetMode(pipeline.ModeEnrollment)
	_ = ctrl.BindName("Alice")

	var last enroll.Result
	for range 2 {
		recorder = httptest.NewRecorder()
		handler.Frame(recorder, frameRequest(t))
		if recorder.Code != http.StatusOK {
			t.Fatalf("frame: expected 200, got %d: %s", recorder.Code, recorder.Body.String())
		}

		recorder = httptest.NewRecorder()
		handler.Capture(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/enrollment/capture", nil))
		if recorder.Code != http.StatusOK {
			t.Fatalf("capture: expected 200, got %d: %s", recorder.Code, recorder.Body.String())
		}
		last = decodeBody[enroll.Result](t, recorder)
	}
	if last.Outcome != enroll.OutcomeCommitted {
		t.Fatalf("expected committed, got %+v", last)
	}

	recorder = httptest.NewRecorder()
	handler.Frame(recorder, frameRequest(t))
	frame := decodeBody[pipeline.FrameResult](t, recorder)
	if frame.Mode != pipeline.ModeRecognition || len(frame.Faces) != 1 {
		t.Fatalf("unexpected frame result %+v", frame)
	}
	if frame.Faces[0].Label != "Alice" {
		t.Errorf("expected Alice, got %+v", frame.Faces[0])
	}

	recorder = httptest.NewRecorder()
	handler.Status(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/enrollment", nil))
	status := decodeBody[pipeline.Status](t, recorder)
	if status.Identities != 1 || status.Enrollment.State != enroll.StateIdle {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestControlHandler_FrameRequiresImage(t *testing.T) {
	handler := NewControlHandler(newTestController(gallery.New(), nil, nil))

	recorder := httptest.NewRecorder()
	handler.Frame(recorder, jsonRequest(t, http.MethodPost, "/api/v1/frames", map[string]string{}))
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", recorder.Code)
	}
}
