package blockchain

import (
	"supernova.dev/node/blockchain/store"
	"supernova.dev/node/consensus"
)

// forkDecision is the outcome of comparing a validated block against the
// current tip.
type forkDecision int

const (
	forkSideChain forkDecision = iota
	forkExtendTip
	forkReorg
)

// resolveFork ranks a candidate branch against the current best chain.
// Cumulative chainwork is the only advantage that counts; peer count and
// arrival timing never promote a branch. On exactly equal work the
// first-seen branch is retained, and the tie is logged because equal-work
// forks are worth operator attention.
func (c *Chain) resolveFork(entry *store.BlockIndexEntry, hash consensus.Hash) forkDecision {
	if entry.PrevHash == c.tip.Hash {
		return forkExtendTip
	}
	cmp := entry.CumulativeWork.Cmp(c.tip.Work)
	if cmp > 0 {
		return forkReorg
	}
	if cmp == 0 {
		c.log.Warn().
			Str("candidate", hash.String()).
			Str("tip", c.tip.Hash.String()).
			Msg("equal-chainwork fork observed, keeping first-seen")
	}
	return forkSideChain
}

// findForkPoint walks both branches back to their common ancestor.
func (c *Chain) findForkPoint(a, b consensus.Hash) (consensus.Hash, error) {
	ea, ok, err := c.db.GetIndex(a)
	if err != nil || !ok {
		return consensus.Hash{}, indexMissing(err)
	}
	eb, ok, err := c.db.GetIndex(b)
	if err != nil || !ok {
		return consensus.Hash{}, indexMissing(err)
	}
	for ea.Height > eb.Height {
		a = ea.PrevHash
		if ea, ok, err = c.db.GetIndex(a); err != nil || !ok {
			return consensus.Hash{}, indexMissing(err)
		}
	}
	for eb.Height > ea.Height {
		b = eb.PrevHash
		if eb, ok, err = c.db.GetIndex(b); err != nil || !ok {
			return consensus.Hash{}, indexMissing(err)
		}
	}
	for a != b {
		a = ea.PrevHash
		b = eb.PrevHash
		if ea, ok, err = c.db.GetIndex(a); err != nil || !ok {
			return consensus.Hash{}, indexMissing(err)
		}
		if eb, ok, err = c.db.GetIndex(b); err != nil || !ok {
			return consensus.Hash{}, indexMissing(err)
		}
	}
	return a, nil
}

func indexMissing(err error) error {
	if err != nil {
		return err
	}
	return consensus.RuleErr(consensus.ERR_HEADER_INVALID, "block index entry missing")
}

// pathFromAncestor returns the hashes from ancestor's child up to tip,
// ascending by height.
func (c *Chain) pathFromAncestor(ancestor, tip consensus.Hash) ([]consensus.Hash, error) {
	if ancestor == tip {
		return nil, nil
	}
	cur := tip
	out := make([]consensus.Hash, 0, 16)
	for cur != ancestor {
		out = append(out, cur)
		entry, ok, err := c.db.GetIndex(cur)
		if err != nil || !ok {
			return nil, indexMissing(err)
		}
		cur = entry.PrevHash
		if cur.IsZero() {
			return nil, indexMissing(nil)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// reorgTo atomically replaces the best-chain suffix with the branch ending
// at newTipHash. The reorg depth is capped by the weak-subjectivity window;
// on any side-chain validation failure the previous best chain is fully
// restored before the error is returned.
func (c *Chain) reorgTo(newTipHash consensus.Hash) error {
	oldTipHash := c.tip.Hash
	forkHash, err := c.findForkPoint(oldTipHash, newTipHash)
	if err != nil {
		return err
	}
	forkEntry, ok, err := c.db.GetIndex(forkHash)
	if err != nil || !ok {
		return indexMissing(err)
	}

	depth := c.tip.Height - forkEntry.Height
	if depth > c.params.MaxReorgDepth {
		return consensus.RuleErr(consensus.ERR_WEAK_SUBJECTIVITY,
			"reorg deeper than weak-subjectivity window")
	}

	// Disconnect down to the fork point, remembering the suffix for
	// rollback.
	disconnected := make([]consensus.Hash, 0, depth)
	for c.tip.Hash != forkHash {
		hash, err := c.disconnectTip()
		if err != nil {
			return err
		}
		disconnected = append(disconnected, hash)
	}

	connect := func(hashes []consensus.Hash) error {
		for _, h := range hashes {
			blk, ok, err := c.db.GetBlock(h)
			if err != nil || !ok {
				if err == nil {
					err = consensus.RuleErr(consensus.ERR_HEADER_INVALID, "reorg block missing from store")
				}
				return err
			}
			entry, ok, err := c.db.GetIndex(h)
			if err != nil || !ok {
				return indexMissing(err)
			}
			if err := c.connectAsTip(blk, h, entry); err != nil {
				_ = c.db.SetStatus(h, store.StatusInvalid)
				return err
			}
		}
		return nil
	}

	path, err := c.pathFromAncestor(forkHash, newTipHash)
	if err == nil {
		err = connect(path)
	}
	if err != nil {
		// Restore the previous best chain. The old blocks validated
		// before, so reconnecting them cannot fail on rule grounds.
		for c.tip.Hash != forkHash {
			if _, rbErr := c.disconnectTip(); rbErr != nil {
				return rbErr
			}
		}
		restore := make([]consensus.Hash, len(disconnected))
		for i, h := range disconnected {
			restore[len(disconnected)-1-i] = h
		}
		if rbErr := connect(restore); rbErr != nil {
			return rbErr
		}
		return err
	}

	reorgDepth.Observe(float64(depth))
	c.log.Info().
		Uint64("depth", depth).
		Str("old_tip", oldTipHash.String()).
		Str("new_tip", newTipHash.String()).
		Msg("chain reorganized")
	return nil
}
