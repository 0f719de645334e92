// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zla

import (
	"fmt"
	"math"
)

// Plan partitions an acquisition into hardware-limited bursts.
type Plan struct {
	Total    int   // total number of words to acquire
	MaxBurst int   // maximum number of words per burst
	Blocks   []int // burst lengths, in words
}

// NewPlan splits total words into bursts of at most max words.
// All bursts but the last one are max words long.
func NewPlan(total, max int) (Plan, error) {
	switch {
	case total < 0:
		return Plan{}, fmt.Errorf("zla: invalid total length %d", total)
	case max <= 0:
		return Plan{}, fmt.Errorf("zla: invalid maximum burst length %d", max)
	case int64(total) > math.MaxUint32:
		return Plan{}, fmt.Errorf("%w (total=%d words)", ErrTooLong, total)
	case int64(max) > math.MaxUint32:
		return Plan{}, fmt.Errorf("%w (max-burst=%d words)", ErrTooLong, max)
	}

	plan := Plan{
		Total:    total,
		MaxBurst: max,
	}
	if total == 0 {
		return plan, nil
	}

	n := (total + max - 1) / max
	plan.Blocks = make([]int, n)
	for i := range plan.Blocks {
		plan.Blocks[i] = max
	}
	if rem := total % max; rem != 0 {
		plan.Blocks[n-1] = rem
	}
	return plan, nil
}

// Len returns the number of bursts.
func (p Plan) Len() int { return len(p.Blocks) }

// burstSize returns the burst size recorded in the container header.
func (p Plan) burstSize() int {
	if len(p.Blocks) == 0 {
		return p.MaxBurst
	}
	return p.Blocks[0]
}

// MaxBurstWords returns the largest burst, in words, a DMA engine with a
// lengthBits-wide length register can transfer, given the device word
// size and the address alignment granularity (in words, a power of two).
func MaxBurstWords(lengthBits, wordSize, align int) int {
	if lengthBits <= 0 || lengthBits > 32 || wordSize <= 0 {
		return 0
	}
	if align <= 0 {
		align = 1
	}
	max := int((uint64(1)<<lengthBits - 1) / uint64(wordSize))
	return max &^ (align - 1)
}
