package blockchain

import (
	"supernova.dev/node/chaincfg"
	"supernova.dev/node/consensus"
)

// ExpectedBits returns the compact target a block at height must carry,
// given the headers of its ancestors (newest last, the direct parent at the
// end). Between retarget boundaries the parent's bits carry over; at a
// boundary the window is rescaled from the median-smoothed timestamp series
// so a single outlier stamp cannot warp the adjustment.
func ExpectedBits(params *chaincfg.Params, height uint64, ancestors []*consensus.BlockHeader) (uint32, error) {
	if height == 0 {
		return params.PowLimitBits, nil
	}
	if len(ancestors) == 0 {
		return 0, consensus.RuleErr(consensus.ERR_HEADER_INVALID, "no ancestor headers")
	}
	parent := ancestors[len(ancestors)-1]

	if height%params.RetargetWindow != 0 {
		return parent.Bits, nil
	}

	window := int(params.RetargetWindow)
	if len(ancestors) < window {
		// Short history (only possible right after genesis on tiny test
		// chains): keep the parent difficulty.
		return parent.Bits, nil
	}

	first := smoothedTimestamp(ancestors, len(ancestors)-window)
	last := smoothedTimestamp(ancestors, len(ancestors)-1)
	var actual uint64
	if last > first {
		actual = last - first
	} else {
		actual = 1
	}

	newBits, err := consensus.Retarget(parent.Bits, actual, params.PowLimit)
	if err != nil {
		return 0, err
	}
	return newBits, nil
}

// smoothedTimestamp returns the median of the up-to-11 timestamps ending at
// ancestors[idx].
func smoothedTimestamp(ancestors []*consensus.BlockHeader, idx int) uint64 {
	span := consensus.MEDIAN_TIME_SPAN
	start := idx - span + 1
	if start < 0 {
		start = 0
	}
	ts := make([]uint64, 0, span)
	for i := start; i <= idx; i++ {
		ts = append(ts, ancestors[i].Timestamp)
	}
	return consensus.MedianTimestamp(ts)
}

// CheckHeaderDifficulty enforces that header carries exactly the expected
// bits for its height and that the per-block target step stays inside the
// clamp factor.
func CheckHeaderDifficulty(params *chaincfg.Params, header *consensus.BlockHeader, height uint64, ancestors []*consensus.BlockHeader) error {
	expected, err := ExpectedBits(params, height, ancestors)
	if err != nil {
		return err
	}
	if header.Bits != expected {
		return consensus.RuleErr(consensus.ERR_DIFFICULTY_MISMATCH, "bits do not match retarget schedule")
	}
	if len(ancestors) > 0 {
		if err := consensus.CheckTargetStep(ancestors[len(ancestors)-1].Bits, header.Bits); err != nil {
			return err
		}
	}
	return nil
}
