package blockchain

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"supernova.dev/node/blockchain/store"
	"supernova.dev/node/chaincfg"
	"supernova.dev/node/consensus"
	"supernova.dev/node/txscript"
)

// maxOrphanBlocks bounds the in-memory pool of blocks whose parent is not
// yet connected.
const maxOrphanBlocks = 128

// Chain owns the best-chain state: the block store, the UTXO set, the
// header index, and the fork-choice bookkeeping. All mutating entry points
// serialize on one writer lock; reads go through the store's snapshots.
type Chain struct {
	params *chaincfg.Params
	db     *store.DB
	utxo   *store.UtxoStore
	tv     *TxValidator
	log    zerolog.Logger

	mu  sync.Mutex
	tip store.TipState

	// firstSeen records the order in which blocks were first indexed. Fork
	// choice does not read it: on equal work resolveFork keeps the current
	// tip.
	firstSeen   map[consensus.Hash]uint64
	seenCounter uint64

	// orphans are keyed by the missing parent hash.
	orphans     map[consensus.Hash][]*consensus.Block
	orphanCount int

	// bestKnownHeight is fed by the sync layer and drives the IBD check.
	bestKnownHeight uint64

	timeSource func() uint64
}

// New opens the chain over db, connecting the network's genesis block on
// first run.
func New(params *chaincfg.Params, db *store.DB, tv *TxValidator, log zerolog.Logger) (*Chain, error) {
	utxo, err := store.NewUtxoStore(db)
	if err != nil {
		return nil, err
	}
	c := &Chain{
		params:     params,
		db:         db,
		utxo:       utxo,
		tv:         tv,
		log:        log,
		firstSeen:  make(map[consensus.Hash]uint64),
		orphans:    make(map[consensus.Hash][]*consensus.Block),
		timeSource: func() uint64 { return uint64(time.Now().Unix()) },
	}
	tip, ok, err := db.Tip()
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := c.connectGenesis(); err != nil {
			return nil, err
		}
		tip, _, err = db.Tip()
		if err != nil {
			return nil, err
		}
	}
	c.tip = *tip
	return c, nil
}

// Tip returns a copy of the best-chain summary.
func (c *Chain) Tip() store.TipState {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tip
	t.Work = new(big.Int).Set(c.tip.Work)
	return t
}

// Params returns the network parameters the chain runs under.
func (c *Chain) Params() *chaincfg.Params { return c.params }

// UtxoStore exposes the persistent UTXO set for read-only queries (mempool,
// RPC).
func (c *Chain) UtxoStore() *store.UtxoStore { return c.utxo }

// SetBestKnownHeight records the highest header height learned from peers.
func (c *Chain) SetBestKnownHeight(h uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h > c.bestKnownHeight {
		c.bestKnownHeight = h
	}
}

// InInitialBlockDownload reports whether the tip trails the best known
// header height by more than the IBD threshold.
func (c *Chain) InInitialBlockDownload() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return inInitialBlockDownload(c.tip.Height, c.bestKnownHeight)
}

// SetTimeSource overrides the wall clock, for tests.
func (c *Chain) SetTimeSource(f func() uint64) { c.timeSource = f }

// connectGenesis installs the pinned genesis block. Genesis is accepted by
// hash identity; its PoW is part of the network definition.
func (c *Chain) connectGenesis() error {
	genesis := c.params.GenesisBlock
	hash := c.params.GenesisHash

	work, err := consensus.WorkFromBits(genesis.Header.Bits)
	if err != nil {
		return err
	}
	if err := c.db.PutHeader(hash, &genesis.Header); err != nil {
		return err
	}
	if err := c.db.PutBlock(hash, genesis); err != nil {
		return err
	}
	if err := c.db.PutIndex(hash, store.BlockIndexEntry{
		Height:         0,
		CumulativeWork: work,
		Status:         store.StatusBodyValid,
	}); err != nil {
		return err
	}
	batch := blockBatch(genesis, 0)
	tip := store.TipState{Hash: hash, Height: 0, Work: work}
	if err := c.utxo.ConnectBatch(hash, tip, batch); err != nil {
		return err
	}
	c.log.Info().Str("hash", hash.String()).Msg("genesis connected")
	return nil
}

// blockBatch builds the canonical UTXO delta of blk at height: removes in
// input order, adds in output order, OP_RETURN outputs skipped. An output
// created and spent inside blk appears in neither list.
func blockBatch(blk *consensus.Block, height uint64) *store.UtxoBatch {
	batch := &store.UtxoBatch{}
	for _, tx := range blk.Transactions {
		if !tx.IsCoinbase() {
			for i := range tx.Inputs {
				prev := tx.Inputs[i].Prev
				spentInBlock := false
				for j := range batch.Adds {
					if batch.Adds[j].Point == prev {
						batch.Adds = append(batch.Adds[:j], batch.Adds[j+1:]...)
						spentInBlock = true
						break
					}
				}
				if !spentInBlock {
					batch.Removes = append(batch.Removes, prev)
				}
			}
		}
		txid := tx.TxID()
		for i := range tx.Outputs {
			script := tx.Outputs[i].ScriptPubKey
			if len(script) > 0 && script[0] == txscript.OP_RETURN {
				continue
			}
			batch.Adds = append(batch.Adds, store.UtxoAdd{
				Point: consensus.OutPoint{TxID: txid, Vout: uint32(i)},
				Entry: store.UtxoEntry{
					Output:     tx.Outputs[i],
					Height:     height,
					IsCoinbase: tx.IsCoinbase(),
				},
			})
		}
	}
	return batch
}

// ProcessResult reports what became of a submitted block.
type ProcessResult struct {
	Hash   consensus.Hash
	Status store.BlockStatus
}

// ProcessBlock drives a candidate block through the validation state
// machine: header checks, body checks, then either a tip extension, a
// side-chain record, a reorg, or the orphan pool. It is the single writer
// entry point for new blocks.
func (c *Chain) ProcessBlock(blk *consensus.Block) (*ProcessResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.processBlockLocked(blk)
	if err != nil {
		return res, err
	}
	// Connected blocks may unlock stored orphans.
	c.adoptOrphansLocked(res.Hash)
	return res, nil
}

func (c *Chain) processBlockLocked(blk *consensus.Block) (*ProcessResult, error) {
	hash := blk.Header.BlockHash()
	res := &ProcessResult{Hash: hash, Status: store.StatusUnknown}

	if entry, ok, err := c.db.GetIndex(hash); err != nil {
		return res, err
	} else if ok {
		res.Status = entry.Status
		if entry.Status == store.StatusInvalid {
			return res, consensus.RuleErr(consensus.ERR_HEADER_INVALID, "block previously marked invalid")
		}
		if entry.Status == store.StatusConnected {
			return res, nil
		}
	}

	parent, ok, err := c.db.GetIndex(blk.Header.PrevBlock)
	if err != nil {
		return res, err
	}
	if !ok {
		c.storeOrphanLocked(blk)
		res.Status = store.StatusOrphan
		return res, nil
	}
	if parent.Status == store.StatusInvalid {
		res.Status = store.StatusInvalid
		return res, consensus.RuleErr(consensus.ERR_HEADER_INVALID, "parent is invalid")
	}
	height := parent.Height + 1

	ancestors, err := c.AncestorHeaders(blk.Header.PrevBlock, int(c.params.RetargetWindow))
	if err != nil {
		return res, err
	}

	if err := checkAgainstCheckpoints(c.params, height, hash); err != nil {
		res.Status = store.StatusInvalid
		return res, err
	}
	if err := checkHeaderContext(c.params, &blk.Header, height, ancestors, c.timeSource()); err != nil {
		return res, c.markInvalid(res, hash, height, blk.Header.PrevBlock, parent, err)
	}

	work, err := consensus.WorkFromBits(blk.Header.Bits)
	if err != nil {
		return res, err
	}
	entry := store.BlockIndexEntry{
		Height:         height,
		PrevHash:       blk.Header.PrevBlock,
		CumulativeWork: new(big.Int).Add(parent.CumulativeWork, work),
		Status:         store.StatusHeaderValid,
	}
	if err := c.recordBlock(hash, blk, entry); err != nil {
		return res, err
	}
	res.Status = store.StatusHeaderValid
	if _, seen := c.firstSeen[hash]; !seen {
		c.seenCounter++
		c.firstSeen[hash] = c.seenCounter
	}

	if err := CheckBlockSanity(blk); err != nil {
		res.Status = store.StatusInvalid
		_ = c.db.SetStatus(hash, store.StatusInvalid)
		return res, err
	}
	if err := c.db.SetStatus(hash, store.StatusBodyValid); err != nil {
		return res, err
	}
	res.Status = store.StatusBodyValid

	decision := c.resolveFork(&entry, hash)
	switch decision {
	case forkExtendTip:
		if err := c.connectAsTip(blk, hash, &entry); err != nil {
			if _, isRule := consensus.RuleCode(err); isRule && !consensus.IsTransient(err) {
				res.Status = store.StatusInvalid
				_ = c.db.SetStatus(hash, store.StatusInvalid)
			}
			return res, err
		}
		res.Status = store.StatusConnected
		return res, nil
	case forkReorg:
		if err := c.reorgTo(hash); err != nil {
			return res, err
		}
		res.Status = store.StatusConnected
		return res, nil
	default:
		// Side chain: retained at BodyValid until it accumulates more work.
		return res, nil
	}
}

func (c *Chain) markInvalid(res *ProcessResult, hash consensus.Hash, height uint64, prevHash consensus.Hash, parent *store.BlockIndexEntry, cause error) error {
	// Record the header so the invalid verdict is cheap to repeat.
	work := new(big.Int).Set(parent.CumulativeWork)
	_ = c.db.PutIndex(hash, store.BlockIndexEntry{
		Height:         height,
		PrevHash:       prevHash,
		CumulativeWork: work,
		Status:         store.StatusInvalid,
	})
	res.Status = store.StatusInvalid
	return cause
}

func (c *Chain) recordBlock(hash consensus.Hash, blk *consensus.Block, entry store.BlockIndexEntry) error {
	if err := c.db.PutHeader(hash, &blk.Header); err != nil {
		return err
	}
	if err := c.db.PutBlock(hash, blk); err != nil {
		return err
	}
	return c.db.PutIndex(hash, entry)
}

// connectAsTip validates blk's body against the live UTXO set and commits
// it as the new best tip in one atomic batch.
func (c *Chain) connectAsTip(blk *consensus.Block, hash consensus.Hash, entry *store.BlockIndexEntry) error {
	if entry.CumulativeWork.Cmp(c.tip.Work) <= 0 {
		return consensus.RuleErr(consensus.ERR_CHAINWORK_REGRESSION, "tip extension does not increase chainwork")
	}

	view := NewUtxoView(c.utxo)
	skipScripts := checkpointSkipsScripts(c.params, entry.Height, hash)
	totalFees, err := connectBody(context.Background(), blk, view, entry.Height, c.tv, skipScripts)
	if err != nil {
		return err
	}
	if err := checkCoinbaseValue(blk, entry.Height, totalFees); err != nil {
		return err
	}

	batch := blockBatch(blk, entry.Height)
	newTip := store.TipState{
		Hash:   hash,
		Height: entry.Height,
		Work:   entry.CumulativeWork,
	}
	if err := c.utxo.ConnectBatch(hash, newTip, batch); err != nil {
		return err
	}
	commitment, err := c.utxo.Commitment()
	if err != nil {
		return err
	}
	newTip.Commitment = commitment
	c.tip = newTip
	blocksConnected.Inc()
	c.log.Info().
		Uint64("height", newTip.Height).
		Str("hash", hash.String()).
		Uint64("fees", totalFees).
		Msg("block connected")
	return nil
}

// disconnectTip rewinds the best tip by one block using its undo journal
// and returns the disconnected block's hash.
func (c *Chain) disconnectTip() (consensus.Hash, error) {
	tipHash := c.tip.Hash
	entry, ok, err := c.db.GetIndex(tipHash)
	if err != nil {
		return consensus.Hash{}, err
	}
	if !ok {
		return consensus.Hash{}, consensus.RuleErr(consensus.ERR_HEADER_INVALID, "tip missing from index")
	}
	parentEntry, ok, err := c.db.GetIndex(entry.PrevHash)
	if err != nil {
		return consensus.Hash{}, err
	}
	if !ok {
		return consensus.Hash{}, consensus.RuleErr(consensus.ERR_HEADER_INVALID, "tip parent missing from index")
	}
	prevTip := store.TipState{
		Hash:   entry.PrevHash,
		Height: parentEntry.Height,
		Work:   parentEntry.CumulativeWork,
	}
	if _, err := c.utxo.DisconnectBatch(tipHash, prevTip); err != nil {
		return consensus.Hash{}, err
	}
	commitment, err := c.utxo.Commitment()
	if err != nil {
		return consensus.Hash{}, err
	}
	prevTip.Commitment = commitment
	c.tip = prevTip
	return tipHash, nil
}

// AncestorHeaders returns up to n headers ending at hash, oldest first.
func (c *Chain) AncestorHeaders(hash consensus.Hash, n int) ([]*consensus.BlockHeader, error) {
	out := make([]*consensus.BlockHeader, 0, n)
	cur := hash
	for len(out) < n {
		header, ok, err := c.db.GetHeader(cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, header)
		if header.PrevBlock.IsZero() {
			break
		}
		cur = header.PrevBlock
	}
	// Reverse to oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (c *Chain) storeOrphanLocked(blk *consensus.Block) {
	if c.orphanCount >= maxOrphanBlocks {
		return
	}
	parent := blk.Header.PrevBlock
	c.orphans[parent] = append(c.orphans[parent], blk)
	c.orphanCount++
}

// adoptOrphansLocked retries stored orphans whose parent just connected.
func (c *Chain) adoptOrphansLocked(parent consensus.Hash) {
	pending := c.orphans[parent]
	if len(pending) == 0 {
		return
	}
	delete(c.orphans, parent)
	c.orphanCount -= len(pending)
	for _, blk := range pending {
		res, err := c.processBlockLocked(blk)
		if err != nil {
			c.log.Debug().Err(err).Str("hash", res.Hash.String()).Msg("orphan rejected")
			continue
		}
		c.adoptOrphansLocked(res.Hash)
	}
}
