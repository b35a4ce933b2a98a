package retrieval

import (
	"log/slog"
	"math"
)

// CosineSimilarity returns dot(a,b) / (|a| * |b|) computed in float64.
//
// Malformed input never fails: mismatched lengths, empty vectors and zero
// norms all score 0. Mismatched lengths are logged since they indicate an
// embedding model change.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		slog.Warn("similarity: vector length mismatch", "a", len(a), "b", len(b))
		return 0
	}
	if len(a) == 0 {
		return 0
	}
	var dot, aSq, bSq float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		aSq += x * x
		bSq += y * y
	}
	if aSq == 0 || bSq == 0 {
		return 0
	}
	return dot / (math.Sqrt(aSq) * math.Sqrt(bSq))
}
