package blockchain

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"supernova.dev/node/blockchain/store"
	"supernova.dev/node/consensus"
	"supernova.dev/node/crypto"
	"supernova.dev/node/txscript"
)

// Per-transaction script budget. Exceeding it fails the transaction with a
// timeout verdict rather than stalling the caller.
const txValidationBudget = 2 * time.Second

// TxValidator bundles what transaction validation needs besides the UTXO
// view.
type TxValidator struct {
	Verifier *crypto.Verifier
	SigCache *txscript.SigCache
}

// prevOutputs resolves every input of tx against view, enforcing existence,
// no double spend within the view, and coinbase maturity at tipHeight.
func prevOutputs(tx *consensus.Tx, view *UtxoView, tipHeight uint64) ([]store.UtxoEntry, error) {
	entries := make([]store.UtxoEntry, len(tx.Inputs))
	for i := range tx.Inputs {
		point := tx.Inputs[i].Prev
		entry, ok, err := view.Get(point)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, consensus.RuleErr(consensus.ERR_MISSING_INPUT,
				"input "+point.TxID.String()+" not found")
		}
		if entry.IsCoinbase && tipHeight-entry.Height < consensus.COINBASE_MATURITY {
			return nil, consensus.RuleErr(consensus.ERR_IMMATURE_COINBASE,
				"coinbase spend before maturity")
		}
		entries[i] = entry
	}
	return entries, nil
}

// txFee computes fee = Σ inputs − Σ outputs with checked arithmetic. A
// negative fee is a violation, not a wrap.
func txFee(tx *consensus.Tx, prevOuts []store.UtxoEntry) (uint64, error) {
	var inSum uint64
	for i := range prevOuts {
		var err error
		inSum, err = consensus.SafeAdd(inSum, prevOuts[i].Output.Value)
		if err != nil {
			return 0, err
		}
	}
	var outSum uint64
	for i := range tx.Outputs {
		var err error
		outSum, err = consensus.SafeAdd(outSum, tx.Outputs[i].Value)
		if err != nil {
			return 0, err
		}
	}
	if outSum > inSum {
		return 0, consensus.RuleErr(consensus.ERR_FEE_NEGATIVE, "outputs exceed inputs")
	}
	return inSum - outSum, nil
}

// ValidateTransaction runs the full non-contextual and contextual checks for
// one transaction against view: structure, value bounds, prevout lookup with
// maturity, parallel script verification, and the fee. It does not mutate
// the view; the caller applies the transaction after a pass. The returned
// fee feeds the block subsidy check and the mempool fee rate.
func ValidateTransaction(ctx context.Context, tx *consensus.Tx, view *UtxoView, tipHeight uint64, tv *TxValidator) (uint64, error) {
	if tx.IsCoinbase() {
		return 0, consensus.RuleErr(consensus.ERR_TX_INVALID, "standalone coinbase")
	}
	if err := tx.CheckStructure(); err != nil {
		return 0, err
	}
	if tx.SerializedSize() > consensus.MAX_BLOCK_WEIGHT {
		return 0, consensus.RuleErr(consensus.ERR_WEIGHT_EXCEEDED, "transaction above block weight cap")
	}
	prevOuts, err := prevOutputs(tx, view, tipHeight)
	if err != nil {
		return 0, err
	}
	if err := checkScripts(ctx, tx, prevOuts, tv); err != nil {
		return 0, err
	}
	fee, err := txFee(tx, prevOuts)
	if err != nil {
		return 0, err
	}
	return fee, nil
}

// checkScripts verifies every input script, fanning the inputs of the
// transaction out across a bounded worker group. Results are identical to
// serial verification of each input.
func checkScripts(ctx context.Context, tx *consensus.Tx, prevOuts []store.UtxoEntry, tv *TxValidator) error {
	ctx, cancel := context.WithTimeout(ctx, txValidationBudget)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := range tx.Inputs {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return consensus.RuleErr(consensus.ERR_VALIDATION_TIMEOUT, "script check budget exceeded")
			}
			return txscript.VerifyInput(tx, i, &prevOuts[i].Output, tv.Verifier, tv.SigCache)
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			if _, isRule := consensus.RuleCode(err); !isRule {
				return consensus.RuleErr(consensus.ERR_VALIDATION_TIMEOUT, "script check budget exceeded")
			}
		}
		return err
	}
	return nil
}
