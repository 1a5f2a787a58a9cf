package mariadb

import (
	"math"
	"slices"
	"strings"
	"testing"
)

func TestEmbeddingCodec(t *testing.T) {
	tests := []struct {
		name string
		emb  []float32
	}{
		{"empty", []float32{}},
		{"simple", []float32{1, -2, 0.5}},
		{"extremes", []float32{math.MaxFloat32, math.SmallestNonzeroFloat32, float32(math.Inf(1))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := EncodeEmbedding(tt.emb)
			if len(blob) != 4*len(tt.emb) {
				t.Fatalf("expected %d bytes, got %d", 4*len(tt.emb), len(blob))
			}

			got, err := DecodeEmbedding(blob)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(got, tt.emb) {
				t.Errorf("expected %v, got %v", tt.emb, got)
			}
		})
	}
}

func TestEncodeEmbedding_LittleEndian(t *testing.T) {
	blob := EncodeEmbedding([]float32{1})
	// 1.0f is 0x3f800000
	want := []byte{0x00, 0x00, 0x80, 0x3f}
	if !slices.Equal(blob, want) {
		t.Errorf("expected %x, got %x", want, blob)
	}
}

func TestDecodeEmbedding_BadLength(t *testing.T) {
	if _, err := DecodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements(schema)
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %v", len(got), got)
	}
	for _, stmt := range got {
		if !strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS") {
			t.Errorf("unexpected statement %q", stmt)
		}
	}
}
