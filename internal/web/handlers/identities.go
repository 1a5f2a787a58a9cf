package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-id/internal/gallery"
)

// IdentitiesHandler serves read-only views of the gallery.
type IdentitiesHandler struct {
	gallery *gallery.Gallery
}

func NewIdentitiesHandler(g *gallery.Gallery) *IdentitiesHandler {
	return &IdentitiesHandler{gallery: g}
}

// IdentityResponse describes one enrolled identity.
type IdentityResponse struct {
	Name      string    `json:"name"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// IdentityListResponse lists identities in gallery order.
type IdentityListResponse struct {
	Dim        int                `json:"dim"`
	Count      int                `json:"count"`
	Identities []IdentityResponse `json:"identities"`
}

// List returns every identity without its embedding.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	names := h.gallery.Names()
	dim := h.gallery.Dim()

	resp := IdentityListResponse{
		Dim:        dim,
		Count:      len(names),
		Identities: make([]IdentityResponse, 0, len(names)),
	}
	for _, name := range names {
		resp.Identities = append(resp.Identities, IdentityResponse{Name: name, Dim: dim})
	}
	respondJSON(w, http.StatusOK, resp)
}

// Get returns one identity with its embedding. The name is matched exactly
// first and then ignoring case and diacritics.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	key, emb, ok := h.gallery.Find(name)
	if !ok {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	respondJSON(w, http.StatusOK, IdentityResponse{Name: key, Dim: len(emb), Embedding: emb})
}
