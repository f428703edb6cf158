package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateNextChunkSize_SparseRangeWidens(t *testing.T) {
	assert.Equal(t, uint64(200), estimateNextChunkSize(100, 0, 2048))
}

func TestEstimateNextChunkSize_DenseRangeNarrows(t *testing.T) {
	assert.Equal(t, uint64(50), estimateNextChunkSize(100, 150, 2048))
}

func TestEstimateNextChunkSize_MidRangeUnchanged(t *testing.T) {
	assert.Equal(t, uint64(100), estimateNextChunkSize(100, 10, 2048))
}

func TestEstimateNextChunkSize_NeverExceedsMax(t *testing.T) {
	assert.Equal(t, uint64(2048), estimateNextChunkSize(2000, 0, 2048))
}

func TestEstimateNextChunkSize_NeverBelowOne(t *testing.T) {
	assert.Equal(t, uint64(1), estimateNextChunkSize(1, 5, 2048))
}
