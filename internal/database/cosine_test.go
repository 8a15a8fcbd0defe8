package database

import (
	"math"
	"testing"
)

func TestCosineSimilarity_IdenticalVectors(t *testing.T) {
	// A constant vector compared with itself must score exactly 1 even
	// though it is not unit length.
	v := make([]float32, 512)
	for i := range v {
		v[i] = 0.1
	}

	got := CosineSimilarity(v, v)
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("CosineSimilarity(v, v) = %v, want 1.0", got)
	}
}

func TestCosineSimilarity_OrthogonalVectors(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	got := CosineSimilarity(a, b)
	if got != 0 {
		t.Errorf("CosineSimilarity(orthogonal) = %v, want 0", got)
	}
}

func TestCosineSimilarity_OppositeVectors(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-1, -2, -3}

	got := CosineSimilarity(a, b)
	if math.Abs(got+1.0) > 1e-9 {
		t.Errorf("CosineSimilarity(opposite) = %v, want -1.0", got)
	}
}

func TestCosineSimilarity_InvalidInputs(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
	}{
		{"empty vectors", []float32{}, []float32{}},
		{"mismatched lengths", []float32{1, 2}, []float32{1, 2, 3}},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 2, 3}},
		{"nil vector", nil, []float32{1, 2, 3}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CosineSimilarity(tc.a, tc.b); got != 0 {
				t.Errorf("CosineSimilarity = %v, want 0", got)
			}
		})
	}
}

func TestCosineSimilarity_Clamped(t *testing.T) {
	// Accumulated float error must never push the result outside [-1, 1].
	v := make([]float32, 512)
	for i := range v {
		v[i] = float32(i%7) * 0.173
	}

	got := CosineSimilarity(v, v)
	if got < -1.0 || got > 1.0 {
		t.Errorf("CosineSimilarity out of range: %v", got)
	}
}

func TestCosineDistance(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{1, 0}

	if got := CosineDistance(a, b); got != 0 {
		t.Errorf("CosineDistance(identical) = %v, want 0", got)
	}

	if got := CosineDistance([]float32{1, 2}, []float32{1}); got != 2 {
		t.Errorf("CosineDistance(mismatched) = %v, want 2", got)
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	n := Normalize(v)

	var norm float64
	for _, x := range n {
		norm += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-6 {
		t.Errorf("Normalize result has norm %v, want 1", math.Sqrt(norm))
	}

	// Input must not be mutated.
	if v[0] != 3 || v[1] != 4 {
		t.Errorf("Normalize mutated its input: %v", v)
	}
}

func TestNormalize_ZeroVector(t *testing.T) {
	n := Normalize([]float32{0, 0, 0})
	for i, x := range n {
		if x != 0 {
			t.Errorf("Normalize(zero)[%d] = %v, want 0", i, x)
		}
	}
}
