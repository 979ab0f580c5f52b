package mempool

import (
	"supernova.dev/node/consensus"
)

// BlockTemplate is a miner-ready transaction selection drawn from one
// stable mempool snapshot.
type BlockTemplate struct {
	Transactions []*consensus.Tx
	TotalFees    uint64
	TotalWeight  uint64
}

// NewBlockTemplate selects transactions in descending fee-rate order with
// arrival-time tie-breaks, keeping parents ahead of children and staying
// under maxWeight after reserving coinbaseWeight. The snapshot it draws
// from is taken once and is stable for the whole assembly.
func (m *Mempool) NewBlockTemplate(maxWeight, coinbaseWeight uint64) (*BlockTemplate, error) {
	snapshot := m.Snapshot()

	tpl := &BlockTemplate{}
	budget := maxWeight
	if coinbaseWeight >= budget {
		return nil, consensus.RuleErr(consensus.ERR_WEIGHT_EXCEEDED, "coinbase exceeds block weight")
	}
	budget -= coinbaseWeight

	included := make(map[consensus.Hash]struct{})
	deferred := snapshot
	// Children can only follow their parents; a deferred child is retried
	// on later passes until no progress is made.
	for len(deferred) > 0 {
		progress := false
		next := deferred[:0]
		for _, e := range deferred {
			if !m.parentsIncluded(e, included) {
				next = append(next, e)
				continue
			}
			if e.Weight > budget {
				continue
			}
			fees, err := consensus.SafeAdd(tpl.TotalFees, e.Fee)
			if err != nil {
				return nil, err
			}
			tpl.Transactions = append(tpl.Transactions, e.Tx)
			tpl.TotalFees = fees
			tpl.TotalWeight += e.Weight
			budget -= e.Weight
			included[e.TxID] = struct{}{}
			progress = true
		}
		if !progress {
			break
		}
		deferred = next
	}
	return tpl, nil
}

// parentsIncluded reports whether every pooled parent of e is already in
// the template; confirmed parents resolve through the chain and need no
// ordering.
func (m *Mempool) parentsIncluded(e *Entry, included map[consensus.Hash]struct{}) bool {
	for p := range e.parents {
		if _, ok := included[p]; !ok {
			if m.Have(p) {
				return false
			}
		}
	}
	return true
}
