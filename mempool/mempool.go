// Package mempool holds unconfirmed transactions with fee-rate indexing,
// Replace-By-Fee conflict handling, descendant-aware eviction, and per-peer
// submission limits.
package mempool

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"supernova.dev/node/blockchain"
	"supernova.dev/node/consensus"
)

// Config tunes mempool policy. Zero fields fall back to the defaults.
type Config struct {
	// MaxBytes caps the serialized size of all pooled transactions.
	MaxBytes uint64
	// MinFeeRate is the admission floor in novas per kilo-weight.
	MinFeeRate uint64
	// MaxTxWeight rejects individual transactions above this weight.
	MaxTxWeight uint64
	// MaxAncestors bounds the unconfirmed dependency chain.
	MaxAncestors int
	// IncrementalFeeRate is the extra fee rate a replacement must pay on
	// top of the replaced set, in novas per kilo-weight.
	IncrementalFeeRate uint64
}

const (
	DefaultMaxBytes           = 300 * 1024 * 1024
	DefaultMaxTxWeight        = consensus.MAX_BLOCK_WEIGHT / 4
	DefaultMaxAncestors       = 25
	DefaultIncrementalFeeRate = 1_000
)

func (c Config) withDefaults() Config {
	if c.MaxBytes == 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.MaxTxWeight == 0 {
		c.MaxTxWeight = DefaultMaxTxWeight
	}
	if c.MaxAncestors == 0 {
		c.MaxAncestors = DefaultMaxAncestors
	}
	if c.IncrementalFeeRate == 0 {
		c.IncrementalFeeRate = DefaultIncrementalFeeRate
	}
	return c
}

// Entry is one pooled transaction with its cached policy numbers.
type Entry struct {
	Tx      *consensus.Tx
	TxID    consensus.Hash
	Fee     uint64
	Weight  uint64
	Size    uint64
	FeeRate uint64 // novas per kilo-weight
	Arrival uint64 // admission sequence, ties broken oldest-first
	Peer    string

	parents map[consensus.Hash]struct{}
}

// Mempool is safe for concurrent use: lookups take a read lock, mutations
// the write lock.
type Mempool struct {
	cfg   Config
	chain *blockchain.Chain
	tv    *blockchain.TxValidator
	log   zerolog.Logger

	mu         sync.RWMutex
	pool       map[consensus.Hash]*Entry
	byPrevout  map[consensus.OutPoint]consensus.Hash
	children   map[consensus.Hash]map[consensus.Hash]struct{}
	totalBytes uint64
	arrivalSeq uint64

	peers *peerLimiter
}

// New creates a mempool bound to chain for UTXO resolution.
func New(cfg Config, chain *blockchain.Chain, tv *blockchain.TxValidator, log zerolog.Logger) *Mempool {
	return &Mempool{
		cfg:       cfg.withDefaults(),
		chain:     chain,
		tv:        tv,
		log:       log,
		pool:      make(map[consensus.Hash]*Entry),
		byPrevout: make(map[consensus.OutPoint]consensus.Hash),
		children:  make(map[consensus.Hash]map[consensus.Hash]struct{}),
		peers:     newPeerLimiter(),
	}
}

// Count returns the number of pooled transactions.
func (m *Mempool) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pool)
}

// Bytes returns the pooled serialized size.
func (m *Mempool) Bytes() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalBytes
}

// Have reports whether txid is pooled.
func (m *Mempool) Have(txid consensus.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pool[txid]
	return ok
}

// Get returns the pooled entry for txid.
func (m *Mempool) Get(txid consensus.Hash) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.pool[txid]
	return e, ok
}

// Accept validates tx against the current chain and pool state and admits
// it, applying RBF rules to conflicts. peer attributes the submission for
// rate limiting.
func (m *Mempool) Accept(ctx context.Context, tx *consensus.Tx, peer string) error {
	if tx.IsCoinbase() {
		return consensus.RuleErr(consensus.ERR_TX_INVALID, "coinbase cannot enter mempool")
	}
	if err := tx.CheckStructure(); err != nil {
		return err
	}
	size := uint64(tx.SerializedSize())
	if !m.peers.allow(peer, size, time.Now()) {
		return consensus.RuleErr(consensus.ERR_TX_INVALID, "peer submission rate exceeded")
	}

	weight, err := tx.Weight()
	if err != nil {
		return err
	}
	if weight > m.cfg.MaxTxWeight {
		return consensus.RuleErr(consensus.ERR_WEIGHT_EXCEEDED, "transaction above mempool weight cap")
	}
	for i := range tx.Outputs {
		if !isStandardOutput(tx.Outputs[i].ScriptPubKey) {
			return consensus.RuleErr(consensus.ERR_TX_INVALID, "nonstandard output script")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	txid := tx.TxID()
	if _, dup := m.pool[txid]; dup {
		return consensus.RuleErr(consensus.ERR_TX_INVALID, "transaction already pooled")
	}

	conflicts := m.conflictsLocked(tx)

	// Validate against the pool view with conflicts masked out, since a
	// replacement spends outpoints its victims claim.
	view := blockchain.NewUtxoView(m.chain.UtxoStore())
	tip := m.chain.Tip()
	for id, e := range m.pool {
		if _, gone := conflicts[id]; gone {
			continue
		}
		view.ApplyTx(e.Tx, tip.Height+1)
	}
	fee, err := blockchain.ValidateTransaction(ctx, tx, view, tip.Height, m.tv)
	if err != nil {
		return err
	}

	feeRate, err := feeRatePerKW(fee, weight)
	if err != nil {
		return err
	}
	if feeRate < m.minFeeRateLocked() {
		return consensus.RuleErr(consensus.ERR_FEE_NEGATIVE, "fee rate below relay floor")
	}

	parents := m.directParentsLocked(tx, conflicts)
	if err := m.checkAncestorLimitLocked(parents); err != nil {
		return err
	}

	if len(conflicts) > 0 {
		if err := m.checkReplacementLocked(tx, fee, feeRate, parents, conflicts); err != nil {
			return err
		}
		for id := range conflicts {
			m.removeLocked(id, true)
		}
	}

	m.arrivalSeq++
	entry := &Entry{
		Tx:      tx,
		TxID:    txid,
		Fee:     fee,
		Weight:  weight,
		Size:    size,
		FeeRate: feeRate,
		Arrival: m.arrivalSeq,
		Peer:    peer,
		parents: parents,
	}
	m.addLocked(entry)
	m.evictForSizeLocked()
	mempoolSize.Set(float64(len(m.pool)))
	mempoolBytes.Set(float64(m.totalBytes))
	return nil
}

// minFeeRateLocked is the chain-level relay floor.
func (m *Mempool) minFeeRateLocked() uint64 {
	if m.cfg.MinFeeRate > 0 {
		return m.cfg.MinFeeRate
	}
	return m.chain.Params().MinRelayFeeRate
}

// conflictsLocked finds pooled transactions claiming any of tx's inputs,
// including their descendants: replacing a parent evicts its whole subtree.
func (m *Mempool) conflictsLocked(tx *consensus.Tx) map[consensus.Hash]struct{} {
	out := make(map[consensus.Hash]struct{})
	for i := range tx.Inputs {
		if claimant, ok := m.byPrevout[tx.Inputs[i].Prev]; ok {
			m.collectDescendantsLocked(claimant, out)
		}
	}
	return out
}

func (m *Mempool) collectDescendantsLocked(txid consensus.Hash, out map[consensus.Hash]struct{}) {
	if _, seen := out[txid]; seen {
		return
	}
	out[txid] = struct{}{}
	for child := range m.children[txid] {
		m.collectDescendantsLocked(child, out)
	}
}

// directParentsLocked returns the pooled txids tx spends from, excluding
// the conflict set being replaced.
func (m *Mempool) directParentsLocked(tx *consensus.Tx, exclude map[consensus.Hash]struct{}) map[consensus.Hash]struct{} {
	parents := make(map[consensus.Hash]struct{})
	for i := range tx.Inputs {
		parent := tx.Inputs[i].Prev.TxID
		if _, excluded := exclude[parent]; excluded {
			continue
		}
		if _, pooled := m.pool[parent]; pooled {
			parents[parent] = struct{}{}
		}
	}
	return parents
}

// checkAncestorLimitLocked bounds the unconfirmed ancestor chain.
func (m *Mempool) checkAncestorLimitLocked(parents map[consensus.Hash]struct{}) error {
	seen := make(map[consensus.Hash]struct{})
	var walk func(consensus.Hash)
	walk = func(id consensus.Hash) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		if e, ok := m.pool[id]; ok {
			for p := range e.parents {
				walk(p)
			}
		}
	}
	for p := range parents {
		walk(p)
	}
	if len(seen) >= m.cfg.MaxAncestors {
		return consensus.RuleErr(consensus.ERR_TX_INVALID, "unconfirmed ancestor limit exceeded")
	}
	return nil
}

func (m *Mempool) addLocked(e *Entry) {
	m.pool[e.TxID] = e
	for i := range e.Tx.Inputs {
		m.byPrevout[e.Tx.Inputs[i].Prev] = e.TxID
	}
	for p := range e.parents {
		if m.children[p] == nil {
			m.children[p] = make(map[consensus.Hash]struct{})
		}
		m.children[p][e.TxID] = struct{}{}
	}
	m.totalBytes += e.Size
}

// removeLocked drops txid and, when withDescendants is set, everything that
// depends on it.
func (m *Mempool) removeLocked(txid consensus.Hash, withDescendants bool) {
	e, ok := m.pool[txid]
	if !ok {
		return
	}
	if withDescendants {
		for child := range m.children[txid] {
			m.removeLocked(child, true)
		}
	}
	delete(m.pool, txid)
	for i := range e.Tx.Inputs {
		if m.byPrevout[e.Tx.Inputs[i].Prev] == txid {
			delete(m.byPrevout, e.Tx.Inputs[i].Prev)
		}
	}
	for p := range e.parents {
		delete(m.children[p], e.TxID)
	}
	delete(m.children, txid)
	m.totalBytes -= e.Size
}

// evictForSizeLocked enforces the global byte cap by evicting the lowest
// fee-rate entries, descendants included, until the pool fits.
func (m *Mempool) evictForSizeLocked() {
	for m.totalBytes > m.cfg.MaxBytes {
		var victim *Entry
		for _, e := range m.pool {
			if victim == nil || e.FeeRate < victim.FeeRate ||
				(e.FeeRate == victim.FeeRate && e.Arrival > victim.Arrival) {
				victim = e
			}
		}
		if victim == nil {
			return
		}
		m.log.Debug().Str("txid", victim.TxID.String()).Msg("evicting for mempool size")
		m.removeLocked(victim.TxID, true)
	}
}

// RemoveConfirmed drops transactions included in a connected block and any
// pooled transactions their inputs now double-spend.
func (m *Mempool) RemoveConfirmed(blk *consensus.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range blk.Transactions {
		m.removeLocked(tx.TxID(), false)
		if tx.IsCoinbase() {
			continue
		}
		for i := range tx.Inputs {
			if claimant, ok := m.byPrevout[tx.Inputs[i].Prev]; ok {
				m.removeLocked(claimant, true)
			}
		}
	}
	mempoolSize.Set(float64(len(m.pool)))
	mempoolBytes.Set(float64(m.totalBytes))
}

// TrimInvalid re-validates every pooled transaction against the current
// chain state and evicts the ones that no longer apply. Called after the
// tip moves, reorgs included, so the pool stays a consistent UTXO-extending
// set: no dangling inputs, no double spends.
func (m *Mempool) TrimInvalid(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tip := m.chain.Tip()
	for {
		var victims []consensus.Hash
		for txid, e := range m.pool {
			view := blockchain.NewUtxoView(m.chain.UtxoStore())
			for other, oe := range m.pool {
				if other != txid {
					view.ApplyTx(oe.Tx, tip.Height+1)
				}
			}
			if _, err := blockchain.ValidateTransaction(ctx, e.Tx, view, tip.Height, m.tv); err != nil {
				victims = append(victims, txid)
			}
		}
		if len(victims) == 0 {
			break
		}
		for _, txid := range victims {
			m.log.Debug().Str("txid", txid.String()).Msg("evicting stale transaction after tip change")
			m.removeLocked(txid, true)
		}
	}
	mempoolSize.Set(float64(len(m.pool)))
	mempoolBytes.Set(float64(m.totalBytes))
}

// Snapshot returns the entries ordered for block assembly: descending fee
// rate, ties broken by arrival so relay order cannot be gamed for
// reordering advantage.
func (m *Mempool) Snapshot() []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Entry, 0, len(m.pool))
	for _, e := range m.pool {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FeeRate != out[j].FeeRate {
			return out[i].FeeRate > out[j].FeeRate
		}
		return out[i].Arrival < out[j].Arrival
	})
	return out
}

func feeRatePerKW(fee, weight uint64) (uint64, error) {
	if weight == 0 {
		return 0, consensus.RuleErr(consensus.ERR_TX_INVALID, "zero weight")
	}
	scaled, err := consensus.SafeMul(fee, 1_000)
	if err != nil {
		return 0, err
	}
	return scaled / weight, nil
}
