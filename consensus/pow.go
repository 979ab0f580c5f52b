package consensus

import (
	"bytes"
	"math/big"
)

// Difficulty schedule. The retarget window is 2016 blocks at a 150-second
// target interval; the adjustment ratio is clamped to [1/4, 4] per retarget
// and the target may never exceed the network's PoW limit (the minimum
// difficulty floor).
const (
	RETARGET_WINDOW       = 2_016
	TARGET_BLOCK_INTERVAL = 150
	RETARGET_CLAMP_FACTOR = 4
)

// CheckProofOfWork verifies hash(header) interpreted big-endian against the
// target encoded by header.Bits, bounded by powLimit.
func CheckProofOfWork(header *BlockHeader, powLimit *big.Int) error {
	target, err := CompactToTarget(header.Bits)
	if err != nil {
		return err
	}
	if target.Cmp(powLimit) > 0 {
		return ruleErr(ERR_DIFFICULTY_MISMATCH, "target above pow limit")
	}
	targetHash, err := TargetToHash(target)
	if err != nil {
		return err
	}
	blockHash := header.BlockHash()
	if bytes.Compare(blockHash[:], targetHash[:]) > 0 {
		return ruleErr(ERR_POW_INSUFFICIENT, "block hash above target")
	}
	return nil
}

// Retarget computes the next compact target from the previous one and the
// actual window duration. All arithmetic is arbitrary precision; the ratio
// actual/expected is clamped to [1/RETARGET_CLAMP_FACTOR, RETARGET_CLAMP_FACTOR]
// before scaling, and the result is capped at powLimit.
//
// Callers feed actualSeconds from the median-smoothed timestamp series, not
// raw header timestamps, so a miner cannot warp the window with a single
// outlier stamp.
func Retarget(oldBits uint32, actualSeconds uint64, powLimit *big.Int) (uint32, error) {
	oldTarget, err := CompactToTarget(oldBits)
	if err != nil {
		return 0, err
	}

	expected := uint64(TARGET_BLOCK_INTERVAL) * uint64(RETARGET_WINDOW)
	if actualSeconds < expected/RETARGET_CLAMP_FACTOR {
		actualSeconds = expected / RETARGET_CLAMP_FACTOR
	}
	if actualSeconds > expected*RETARGET_CLAMP_FACTOR {
		actualSeconds = expected * RETARGET_CLAMP_FACTOR
	}

	newTarget := new(big.Int).Mul(oldTarget, new(big.Int).SetUint64(actualSeconds))
	newTarget.Div(newTarget, new(big.Int).SetUint64(expected))
	if newTarget.Sign() == 0 {
		newTarget.SetInt64(1)
	}
	if newTarget.Cmp(powLimit) > 0 {
		newTarget.Set(powLimit)
	}
	return TargetToCompact(newTarget), nil
}

// CheckTargetStep rejects a per-block target change larger than the clamp
// factor in either direction. The retarget formula already bounds scheduled
// changes; this defends against a crafted bits field between retargets.
func CheckTargetStep(prevBits, nextBits uint32) error {
	prev, err := CompactToTarget(prevBits)
	if err != nil {
		return err
	}
	next, err := CompactToTarget(nextBits)
	if err != nil {
		return err
	}
	upper := new(big.Int).Mul(prev, big.NewInt(RETARGET_CLAMP_FACTOR))
	lower := new(big.Int).Div(prev, big.NewInt(RETARGET_CLAMP_FACTOR))
	if lower.Sign() == 0 {
		lower.SetInt64(1)
	}
	if next.Cmp(upper) > 0 || next.Cmp(lower) < 0 {
		return ruleErr(ERR_DIFFICULTY_MISMATCH, "target step above clamp factor")
	}
	return nil
}

var two256 = new(big.Int).Lsh(big.NewInt(1), 256)

// WorkFromBits returns the fork-choice weight of one block:
// floor(2^256 / (target + 1)). Deterministic, integer-only.
func WorkFromBits(bits uint32) (*big.Int, error) {
	target, err := CompactToTarget(bits)
	if err != nil {
		return nil, err
	}
	denom := new(big.Int).Add(target, big.NewInt(1))
	return new(big.Int).Div(two256, denom), nil
}
