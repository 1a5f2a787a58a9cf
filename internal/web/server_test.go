package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/gallery"
	"github.com/kozaktomas/face-id/internal/pipeline"
)

func testServer(t *testing.T, token string) *Server {
	t.Helper()
	cfg := &config.Config{Web: config.WebConfig{Host: "127.0.0.1", Port: 0, Token: token}}
	p := pipeline.NewProcessor(nil, nil, pipeline.ProcessorConfig{})
	return NewServer(cfg, pipeline.NewController(p, gallery.New(), pipeline.ControllerConfig{}))
}

func TestRoutes(t *testing.T) {
	s := testServer(t, "s3cret")

	tests := []struct {
		name   string
		method string
		path   string
		auth   bool
		want   int
	}{
		{"health is public", http.MethodGet, "/api/v1/health", false, http.StatusOK},
		{"metrics is public", http.MethodGet, "/metrics", false, http.StatusOK},
		{"identities need token", http.MethodGet, "/api/v1/identities", false, http.StatusUnauthorized},
		{"identities with token", http.MethodGet, "/api/v1/identities", true, http.StatusOK},
		{"mode with token", http.MethodGet, "/api/v1/mode", true, http.StatusOK},
		{"enrollment status", http.MethodGet, "/api/v1/enrollment", true, http.StatusOK},
		{"unknown identity", http.MethodGet, "/api/v1/identities/nobody", true, http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/api/v1/mode", true, http.StatusMethodNotAllowed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.auth {
				req.Header.Set("Authorization", "Bearer s3cret")
			}
			recorder := httptest.NewRecorder()

			s.Router().ServeHTTP(recorder, req)

			if recorder.Code != tc.want {
				t.Errorf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, recorder.Code)
			}
		})
	}
}

func TestRoutes_SetModeThroughRouter(t *testing.T) {
	s := testServer(t, "")

	req := httptest.NewRequest(http.MethodPut, "/api/v1/mode", strings.NewReader(`{"mode":"enrollment"}`))
	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if s.controller.Mode() != pipeline.ModeEnrollment {
		t.Errorf("expected enrollment mode, got %s", s.controller.Mode())
	}
}

func TestServerAddr(t *testing.T) {
	s := testServer(t, "")
	if s.httpServer.Addr != "127.0.0.1:0" {
		t.Errorf("unexpected addr %s", s.httpServer.Addr)
	}
}
