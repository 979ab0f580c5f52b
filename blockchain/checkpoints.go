package blockchain

import (
	"supernova.dev/node/chaincfg"
	"supernova.dev/node/consensus"
)

// ibdThreshold is how far behind the best known header height the tip must
// be for the chain to consider itself in initial block download.
const ibdThreshold = 1_000

// checkpointSkipsScripts reports whether script verification may be skipped
// for a block: its height must be at or below the last checkpoint and, when
// a checkpoint pins that exact height, the hash must match. Header-chain
// validation is never skipped.
func checkpointSkipsScripts(params *chaincfg.Params, height uint64, hash consensus.Hash) bool {
	last := params.LastCheckpoint()
	if last == nil || height > last.Height {
		return false
	}
	if cp := params.CheckpointAt(height); cp != nil {
		return cp.Hash == hash
	}
	return true
}

// checkAgainstCheckpoints refuses a block that contradicts a pinned
// checkpoint: a different hash at a checkpointed height can never be on the
// valid chain.
func checkAgainstCheckpoints(params *chaincfg.Params, height uint64, hash consensus.Hash) error {
	if cp := params.CheckpointAt(height); cp != nil && cp.Hash != hash {
		return consensus.RuleErr(consensus.ERR_HEADER_INVALID, "block contradicts checkpoint")
	}
	return nil
}

// inInitialBlockDownload compares the tip against the best header height
// learned from peers.
func inInitialBlockDownload(tipHeight, bestKnownHeight uint64) bool {
	return tipHeight+ibdThreshold < bestKnownHeight
}
