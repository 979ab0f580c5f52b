// Package blockchain ties the consensus primitives together: transaction
// and block validation, the chain state with atomic connect/disconnect and
// reorg, fork choice by cumulative work, and checkpoint handling.
package blockchain

import (
	"supernova.dev/node/blockchain/store"
	"supernova.dev/node/consensus"
	"supernova.dev/node/txscript"
)

// UtxoView is the read surface validation sees: the persistent set plus an
// in-memory overlay for the block being validated, so later transactions
// observe earlier ones' outputs.
type UtxoView struct {
	base  *store.UtxoStore
	adds  map[consensus.OutPoint]store.UtxoEntry
	spent map[consensus.OutPoint]struct{}
}

// NewUtxoView creates an empty overlay over base. base may be nil for a
// purely in-memory view (tests, mempool checks against a snapshot).
func NewUtxoView(base *store.UtxoStore) *UtxoView {
	return &UtxoView{
		base:  base,
		adds:  make(map[consensus.OutPoint]store.UtxoEntry),
		spent: make(map[consensus.OutPoint]struct{}),
	}
}

// Get returns the entry visible at point: overlay additions win, overlay
// spends hide the base.
func (v *UtxoView) Get(point consensus.OutPoint) (store.UtxoEntry, bool, error) {
	if _, gone := v.spent[point]; gone {
		return store.UtxoEntry{}, false, nil
	}
	if e, ok := v.adds[point]; ok {
		return e.Clone(), true, nil
	}
	if v.base == nil {
		return store.UtxoEntry{}, false, nil
	}
	return v.base.Get(point)
}

// Spend marks point consumed. The caller has already confirmed existence.
func (v *UtxoView) Spend(point consensus.OutPoint) {
	if _, ok := v.adds[point]; ok {
		delete(v.adds, point)
		return
	}
	v.spent[point] = struct{}{}
}

// Add introduces a new output into the overlay.
func (v *UtxoView) Add(point consensus.OutPoint, entry store.UtxoEntry) {
	v.adds[point] = entry
}

// ApplyTx spends tx's inputs and adds its outputs at the given height.
func (v *UtxoView) ApplyTx(tx *consensus.Tx, height uint64) {
	if !tx.IsCoinbase() {
		for i := range tx.Inputs {
			v.Spend(tx.Inputs[i].Prev)
		}
	}
	txid := tx.TxID()
	for i := range tx.Outputs {
		if len(tx.Outputs[i].ScriptPubKey) > 0 && tx.Outputs[i].ScriptPubKey[0] == txscript.OP_RETURN {
			continue // provably unspendable
		}
		v.Add(consensus.OutPoint{TxID: txid, Vout: uint32(i)}, store.UtxoEntry{
			Output:     tx.Outputs[i],
			Height:     height,
			IsCoinbase: tx.IsCoinbase(),
		})
	}
}

