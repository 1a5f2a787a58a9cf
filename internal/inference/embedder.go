package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"

	"github.com/kozaktomas/face-id/internal/gallery"
	"github.com/kozaktomas/face-id/internal/imageio"
	"github.com/kozaktomas/face-id/internal/pipeline"
)

// Embedder computes face descriptors from aligned crops.
type Embedder struct {
	client
}

var _ pipeline.Embedder = (*Embedder)(nil)

func NewEmbedder(baseURL string) *Embedder {
	return &Embedder{client: newClient(baseURL)}
}

// embeddingResponse represents the response from the embedding server
type embeddingResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// Embed posts face as PNG, so the aligned pixels reach the model without
// recompression.
func (e *Embedder) Embed(ctx context.Context, face image.Image) (gallery.Embedding, error) {
	data, err := imageio.EncodePNG(face)
	if err != nil {
		return nil, err
	}

	body, err := e.postMultipartImage(ctx, "/embed/aligned", "face.png", data)
	if err != nil {
		return nil, err
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(embResp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	if embResp.Dim != 0 && embResp.Dim != len(embResp.Embedding) {
		return nil, fmt.Errorf("%w: server reported %d, sent %d",
			gallery.ErrDimensionMismatch, embResp.Dim, len(embResp.Embedding))
	}

	return embResp.Embedding, nil
}
