package distance

import (
	"gonum.org/v1/gonum/floats"
)

func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	dotProduct := floats.Dot(a, b)
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (normA * normB)
}

// CosineDistance is 1 - cosine similarity. A zero vector is at distance 1
// from everything.
func CosineDistance(a, b []float64) float64 {
	return 1 - CosineSimilarity(a, b)
}
