// Package partition provides block range arithmetic: archive partition keys,
// sampling points across a range and block estimates from elapsed time.
package partition

import (
	"fmt"
	"time"
)

// BlockRangeSize is the number of blocks per archive partition.
// Each partition contains exactly 1000 blocks.
const BlockRangeSize = 1000

// GetPartition returns the partition string for a block number.
// Each partition contains exactly BlockRangeSize (1000) blocks:
// Block 0-999 -> "0-999", block 1000-1999 -> "1000-1999", etc.
func GetPartition(blockNumber int64) string {
	partitionIndex := blockNumber / BlockRangeSize
	start := partitionIndex * BlockRangeSize
	end := start + BlockRangeSize - 1
	return fmt.Sprintf("%d-%d", start, end)
}

// SplitInterval returns n points from start to end inclusive, evenly spaced
// by floor((end-start)/(n-1)). The last point is always end, so the final
// gap absorbs the rounding. n <= 2 yields just the endpoints.
//
// The result is not deduplicated: when the range is shorter than n-1 blocks
// interior points repeat start.
func SplitInterval(start, end int64, n int) []int64 {
	if n <= 2 {
		return []int64{start, end}
	}

	step := floorDiv(end-start, int64(n-1))
	points := make([]int64, 0, n)
	points = append(points, start)
	for i := int64(1); i < int64(n-1); i++ {
		points = append(points, start+i*step)
	}
	return append(points, end)
}

// EstimateBlockAtAge estimates the block produced age before current, given a
// constant blockTime: current - floor(age / blockTime). The result is not
// clamped and may be negative when age reaches past genesis. A non-positive
// blockTime returns current unchanged.
func EstimateBlockAtAge(current int64, blockTime, age time.Duration) int64 {
	if blockTime <= 0 {
		return current
	}
	return current - floorDiv(int64(age), int64(blockTime))
}

// Year is the age used for year-old block estimates.
const Year = 365 * 24 * time.Hour

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
