package xtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitInterval(t *testing.T) {
	assert.Equal(t,
		[]BlockRange{{1, 4}, {5, 7}, {8, 8}},
		SplitInterval(1, 8, []uint64{4, 7}),
	)
	assert.Equal(t,
		[]BlockRange{{1, 8}},
		SplitInterval(1, 8, []uint64{0, 9}),
	)
}

func TestBundledByBlock(t *testing.T) {
	logs := []ExtendedLogReceipt{
		{BlockNumber: 10, LogIndex: 0},
		{BlockNumber: 10, LogIndex: 1},
		{BlockNumber: 12, LogIndex: 0},
	}
	groups := BundledByBlock(logs)
	assert.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 1)
}

func TestBatchBundles(t *testing.T) {
	bundles := make([]DataBundle, 35)
	batches := BatchBundles(bundles, 16)
	assert.Len(t, batches, 3)
	assert.Len(t, batches[0], 16)
	assert.Len(t, batches[2], 3)
}
