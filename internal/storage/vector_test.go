package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0, 0}, []float32{1, 0, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0, 0}, []float32{0, 1, 0}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{2, 0}, []float32{5, 0}), 1e-9, "magnitude invariant")
}

func TestCosineSimilarityDegenerate(t *testing.T) {
	assert.Zero(t, CosineSimilarity(nil, nil))
	assert.Zero(t, CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestVectorRoundTrip(t *testing.T) {
	vec := []float32{0.5, -1.25, 3.75, 0}
	buf := EncodeVector(vec)
	require.Len(t, buf, 16)

	got, err := DecodeVector(buf)
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}

func TestVectorEncodeEmpty(t *testing.T) {
	assert.Nil(t, EncodeVector(nil))
	assert.Nil(t, EncodeVector([]float32{}))

	got, err := DecodeVector(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestVectorDecodeTruncated(t *testing.T) {
	_, err := DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
