package embed

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two vectors of unequal length are
// compared. The comparison is fatal; callers decide how to proceed.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Cosine computes the cosine similarity of two vectors: dot product divided
// by the product of Euclidean norms. If either norm is zero the result is
// exactly 0, never NaN, so the graph builder stays total over all pairs.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine: %w (%d vs %d)", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// SimilarityRecord is the derived, ephemeral pairing of two vectors. It is
// computed on demand and never persisted apart from the graph built from it.
type SimilarityRecord struct {
	IDA                string   `json:"id_a"`
	IDB                string   `json:"id_b"`
	Score              float64  `json:"score"`
	SharedCapabilities []string `json:"shared_capabilities"`
}

// Similarity compares two vectors and records their shared capabilities.
func Similarity(a, b Vector) (SimilarityRecord, error) {
	score, err := Cosine(a.Values, b.Values)
	if err != nil {
		return SimilarityRecord{}, err
	}
	return SimilarityRecord{
		IDA:                a.ID,
		IDB:                b.ID,
		Score:              score,
		SharedCapabilities: sharedCapabilities(a.Capabilities, b.Capabilities),
	}, nil
}

// sharedCapabilities intersects two capability sets, preserving the order
// of the first set for deterministic output.
func sharedCapabilities(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, c := range b {
		inB[c] = true
	}
	var shared []string
	for _, c := range a {
		if inB[c] {
			shared = append(shared, c)
		}
	}
	return shared
}
