package blockchain

import (
	"context"
	"time"

	"supernova.dev/node/chaincfg"
	"supernova.dev/node/consensus"
)

// Per-block validation budget.
const blockValidationBudget = 60 * time.Second

// CheckBlockSanity enforces every rule that needs no chain context: exactly
// one coinbase at index zero, a matching merkle root, the weight cap, and
// per-transaction structure.
func CheckBlockSanity(blk *consensus.Block) error {
	if len(blk.Transactions) == 0 {
		return consensus.RuleErr(consensus.ERR_MISSING_COINBASE, "block has no transactions")
	}
	if !blk.Transactions[0].IsCoinbase() {
		return consensus.RuleErr(consensus.ERR_MISSING_COINBASE, "first transaction is not a coinbase")
	}
	for _, tx := range blk.Transactions[1:] {
		if tx.IsCoinbase() {
			return consensus.RuleErr(consensus.ERR_DUPLICATE_COINBASE, "extra coinbase in body")
		}
	}

	if root := consensus.BlockMerkleRoot(blk.Transactions); root != blk.Header.MerkleRoot {
		return consensus.RuleErr(consensus.ERR_MERKLE_MISMATCH, "merkle root does not match body")
	}

	var totalWeight uint64
	seen := make(map[consensus.OutPoint]struct{})
	for _, tx := range blk.Transactions {
		if err := tx.CheckStructure(); err != nil {
			return err
		}
		w, err := tx.Weight()
		if err != nil {
			return err
		}
		totalWeight, err = consensus.SafeAdd(totalWeight, w)
		if err != nil {
			return err
		}
		// No two inputs across the block may spend the same outpoint.
		if !tx.IsCoinbase() {
			for i := range tx.Inputs {
				p := tx.Inputs[i].Prev
				if _, dup := seen[p]; dup {
					return consensus.RuleErr(consensus.ERR_DOUBLE_SPEND, "outpoint spent twice in block")
				}
				seen[p] = struct{}{}
			}
		}
	}
	if totalWeight > consensus.MAX_BLOCK_WEIGHT {
		return consensus.RuleErr(consensus.ERR_WEIGHT_EXCEEDED, "block weight above cap")
	}
	return nil
}

// checkHeaderContext validates a header against its ancestor chain: linkage
// is the caller's lookup, this covers difficulty schedule, PoW and the
// timestamp rules.
func checkHeaderContext(params *chaincfg.Params, header *consensus.BlockHeader, height uint64, ancestors []*consensus.BlockHeader, localTime uint64) error {
	if err := CheckHeaderDifficulty(params, header, height, ancestors); err != nil {
		return err
	}
	if err := consensus.CheckProofOfWork(header, params.PowLimit); err != nil {
		return err
	}
	prevTimestamps := make([]uint64, 0, consensus.MEDIAN_TIME_SPAN)
	start := len(ancestors) - consensus.MEDIAN_TIME_SPAN
	if start < 0 {
		start = 0
	}
	for _, h := range ancestors[start:] {
		prevTimestamps = append(prevTimestamps, h.Timestamp)
	}
	return consensus.CheckTimestamp(header.Timestamp, prevTimestamps, localTime)
}

// connectBody validates every transaction of blk against view at height and
// applies them to the view in order, so intra-block spends of earlier
// outputs work while the block's own coinbase stays locked behind maturity.
// It returns the total fees. When skipScripts is set (checkpointed blocks)
// script execution is bypassed; every other rule still runs.
func connectBody(ctx context.Context, blk *consensus.Block, view *UtxoView, height uint64, tv *TxValidator, skipScripts bool) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, blockValidationBudget)
	defer cancel()

	var totalFees uint64
	for i, tx := range blk.Transactions {
		if err := ctx.Err(); err != nil {
			return 0, consensus.RuleErr(consensus.ERR_VALIDATION_TIMEOUT, "block validation budget exceeded")
		}
		if i == 0 {
			view.ApplyTx(tx, height)
			continue
		}
		var fee uint64
		var err error
		if skipScripts {
			fee, err = validateNoScripts(tx, view, height)
		} else {
			fee, err = ValidateTransaction(ctx, tx, view, height, tv)
		}
		if err != nil {
			return 0, err
		}
		totalFees, err = consensus.SafeAdd(totalFees, fee)
		if err != nil {
			return 0, err
		}
		view.ApplyTx(tx, height)
	}
	return totalFees, nil
}

// validateNoScripts is the checkpoint fast path: all structural, lookup,
// maturity and value rules run; only script execution is skipped.
func validateNoScripts(tx *consensus.Tx, view *UtxoView, tipHeight uint64) (uint64, error) {
	if err := tx.CheckStructure(); err != nil {
		return 0, err
	}
	prevOuts, err := prevOutputs(tx, view, tipHeight)
	if err != nil {
		return 0, err
	}
	return txFee(tx, prevOuts)
}

// checkCoinbaseValue enforces the subsidy schedule with the environmental
// bonus: the coinbase may pay at most base + bonus + fees, with the bonus
// inputs read from the coinbase scriptSig and the BIP34 height commitment
// matching the connection height.
func checkCoinbaseValue(blk *consensus.Block, height uint64, totalFees uint64) error {
	coinbase := blk.Transactions[0]
	committedHeight, renewablePercent, envFlags, err := consensus.ParseCoinbaseScriptSig(coinbase.Inputs[0].ScriptSig)
	if err != nil {
		return err
	}
	if committedHeight != height {
		return consensus.RuleErr(consensus.ERR_MISSING_COINBASE, "coinbase height commitment mismatch")
	}
	var paid uint64
	for i := range coinbase.Outputs {
		paid, err = consensus.SafeAdd(paid, coinbase.Outputs[i].Value)
		if err != nil {
			return err
		}
	}
	maxValue, err := consensus.MaxCoinbaseValue(height, renewablePercent, envFlags, totalFees)
	if err != nil {
		return err
	}
	if paid > maxValue {
		return consensus.RuleErr(consensus.ERR_BAD_SUBSIDY, "coinbase pays above subsidy, bonus and fees")
	}
	return nil
}
