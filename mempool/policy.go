package mempool

import (
	"supernova.dev/node/consensus"
	"supernova.dev/node/txscript"
)

// isStandardOutput accepts the relayed script templates plus bounded
// OP_RETURN data carriers.
func isStandardOutput(script []byte) bool {
	class := txscript.ClassifyScript(script)
	if class == txscript.NullData {
		return len(script) <= 83
	}
	if class != txscript.NonStandard {
		return true
	}
	// HTLC outputs relay as well; the atomic-swap layer creates them bare.
	_, _, _, _, ok := txscript.MatchHTLC(script)
	return ok
}

// checkReplacementLocked applies the Replace-By-Fee rules to a candidate
// that conflicts with the pooled set `conflicts`:
//
//  1. its absolute fee must cover the replaced fees plus one incremental
//     relay fee for its own weight,
//  2. its fee rate must be strictly higher than every replaced entry's,
//  3. it must not introduce unconfirmed parents the replaced set did not
//     already depend on.
func (m *Mempool) checkReplacementLocked(tx *consensus.Tx, fee, feeRate uint64, parents map[consensus.Hash]struct{}, conflicts map[consensus.Hash]struct{}) error {
	var replacedFees uint64
	replacedParents := make(map[consensus.Hash]struct{})
	for id := range conflicts {
		e, ok := m.pool[id]
		if !ok {
			continue
		}
		var err error
		replacedFees, err = consensus.SafeAdd(replacedFees, e.Fee)
		if err != nil {
			return err
		}
		if feeRate <= e.FeeRate {
			return consensus.RuleErr(consensus.ERR_FEE_NEGATIVE,
				"replacement fee rate not above replaced")
		}
		for p := range e.parents {
			replacedParents[p] = struct{}{}
		}
	}

	weight, err := tx.Weight()
	if err != nil {
		return err
	}
	incremental, err := consensus.SafeMul(m.cfg.IncrementalFeeRate, weight)
	if err != nil {
		return err
	}
	incremental /= 1_000
	required, err := consensus.SafeAdd(replacedFees, incremental)
	if err != nil {
		return err
	}
	if fee < required {
		return consensus.RuleErr(consensus.ERR_FEE_NEGATIVE,
			"replacement fee below replaced plus increment")
	}

	for p := range parents {
		if _, known := replacedParents[p]; !known {
			return consensus.RuleErr(consensus.ERR_TX_INVALID,
				"replacement introduces new unconfirmed dependency")
		}
	}
	return nil
}
