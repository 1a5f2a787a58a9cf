package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/kozaktomas/face-id/internal/constants"
	"github.com/kozaktomas/face-id/internal/enroll"
	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/gallery"
	"github.com/kozaktomas/face-id/internal/imageio"
	"github.com/kozaktomas/face-id/internal/logging"
	"github.com/kozaktomas/face-id/internal/pipeline"
)

// ControlHandler exposes the pipeline controller: frames, recognition, mode
// switching and enrollment.
type ControlHandler struct {
	ctrl *pipeline.Controller
}

func NewControlHandler(ctrl *pipeline.Controller) *ControlHandler {
	return &ControlHandler{ctrl: ctrl}
}

// RecognizeRequest carries one precomputed embedding.
type RecognizeRequest struct {
	Embedding []float32 `json:"embedding" validate:"required,min=1"`
}

// RecognizeResponse is a match plus its display label.
type RecognizeResponse struct {
	facematch.Match
	Label string `json:"label"`
}

// ModeRequest switches the controller mode.
type ModeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=recognition enrollment"`
}

// ModeResponse reports the current mode.
type ModeResponse struct {
	Mode pipeline.Mode `json:"mode"`
}

// NameRequest binds the enrollment name.
type NameRequest struct {
	Name string `json:"name" validate:"required"`
}

// Recognize matches an embedding against the gallery.
func (h *ControlHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	var req RecognizeRequest
	if err := decodeRequest(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.ctrl.Recognize(req.Embedding)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, gallery.ErrDimensionMismatch) || errors.Is(err, gallery.ErrNonFinite) {
			status = http.StatusBadRequest
		}
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, RecognizeResponse{Match: m, Label: m.Label()})
}

// Frame runs an uploaded image through the pipeline in the current mode.
// The image is sent as the multipart field "image".
func (h *ControlHandler) Frame(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxFrameUploadSize)
	if err := r.ParseMultipartForm(constants.MaxFrameUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}
	frame, _, err := imageio.Decode(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unsupported image")
		return
	}

	res, err := h.ctrl.ProcessFrame(r.Context(), frame)
	if err != nil {
		logging.Error(logging.Fields{"file": sanitizeForLog(header.Filename)}, "frame failed: "+err.Error())
		respondError(w, http.StatusBadGateway, "failed to process frame")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// GetMode returns the current mode.
func (h *ControlHandler) GetMode(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ModeResponse{Mode: h.ctrl.Mode()})
}

// SetMode switches between recognition and enrollment.
func (h *ControlHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := decodeRequest(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := pipeline.ParseMode(req.Mode)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.ctrl.SetMode(mode); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, ModeResponse{Mode: h.ctrl.Mode()})
}

// BindName names the identity being enrolled.
func (h *ControlHandler) BindName(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if err := decodeRequest(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.ctrl.BindName(req.Name)
	switch {
	case errors.Is(err, enroll.ErrEmptyName):
		respondError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondJSON(w, http.StatusOK, h.ctrl.Status().Enrollment)
	}
}

// Capture offers the last processed frame to the enrollment session.
// Ignored captures are reported with 409 so clients can show the reason.
func (h *ControlHandler) Capture(w http.ResponseWriter, r *http.Request) {
	res := h.ctrl.Capture(r.Context())
	switch res.Outcome {
	case enroll.OutcomeIgnored:
		respondJSON(w, http.StatusConflict, res)
	case enroll.OutcomeFailed:
		respondJSON(w, http.StatusUnprocessableEntity, res)
	default:
		respondJSON(w, http.StatusOK, res)
	}
}

// Status returns the controller status.
func (h *ControlHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.ctrl.Status())
}
