// ABOUTME: Vector math for embedding similarity
// ABOUTME: Cosine similarity over float32 embedding vectors

package knowledge

import "math"

// cosineSimilarity computes the cosine of the angle between two embedding
// vectors. Returns 0 for mismatched lengths or zero vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// round2 rounds a similarity to two decimal places for presentation.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
