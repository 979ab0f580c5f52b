package node

import (
	"context"

	"supernova.dev/node/blockchain"
	"supernova.dev/node/consensus"
)

// MineOptions parameterize one block assembly.
type MineOptions struct {
	PayoutScript []byte
	// RenewablePercent and EnvFlags are the miner's attested environmental
	// inputs committed in the coinbase.
	RenewablePercent uint8
	EnvFlags         uint8
	ExtraNonce       uint64
	// Timestamp overrides the clock when non-zero (tests).
	Timestamp uint64
}

// BuildBlock assembles a candidate block on the current tip: a template
// drawn from the mempool, a coinbase paying subsidy, bonus and fees, and a
// header ready for nonce grinding.
func (n *Node) BuildBlock(opts MineOptions) (*consensus.Block, error) {
	tip := n.Chain.Tip()
	height := tip.Height + 1

	coinbaseReserve := uint64(2_000) // generous weight reserve for the coinbase
	tpl, err := n.Mempool.NewBlockTemplate(consensus.MAX_BLOCK_WEIGHT, coinbaseReserve)
	if err != nil {
		return nil, err
	}

	value, err := consensus.MaxCoinbaseValue(height, opts.RenewablePercent, opts.EnvFlags, tpl.TotalFees)
	if err != nil {
		return nil, err
	}
	coinbase := consensus.NewCoinbaseTx(height, value, opts.PayoutScript, opts.RenewablePercent, opts.EnvFlags, opts.ExtraNonce)

	txs := append([]*consensus.Tx{coinbase}, tpl.Transactions...)

	tipHeader, ok, err := n.DB.GetHeader(tip.Hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, consensus.RuleErr(consensus.ERR_HEADER_INVALID, "tip header missing")
	}
	ancestors, err := n.Chain.AncestorHeaders(tip.Hash, int(n.Params.RetargetWindow))
	if err != nil {
		return nil, err
	}
	bits, err := blockchain.ExpectedBits(n.Params, height, ancestors)
	if err != nil {
		return nil, err
	}

	timestamp := opts.Timestamp
	if timestamp == 0 {
		timestamp = tipHeader.Timestamp + 1
	}

	blk := &consensus.Block{
		Header: consensus.BlockHeader{
			Version:    1,
			PrevBlock:  tip.Hash,
			MerkleRoot: consensus.BlockMerkleRoot(txs),
			Timestamp:  timestamp,
			Bits:       bits,
			Nonce:      0,
		},
		Transactions: txs,
	}
	return blk, nil
}

// Solve grinds the header nonce until the hash meets the target or ctx is
// cancelled.
func Solve(ctx context.Context, blk *consensus.Block) error {
	target, err := consensus.CompactToTarget(blk.Header.Bits)
	if err != nil {
		return err
	}
	targetHash, err := consensus.TargetToHash(target)
	if err != nil {
		return err
	}
	for nonce := uint32(0); ; nonce++ {
		if nonce%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		blk.Header.Nonce = nonce
		hash := blk.Header.BlockHash()
		if lessOrEqual(hash, targetHash) {
			return nil
		}
		if nonce == 0xffffffff {
			return consensus.RuleErr(consensus.ERR_POW_INSUFFICIENT, "nonce space exhausted")
		}
	}
}

func lessOrEqual(a, b consensus.Hash) bool {
	for i := 0; i < 32; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return true
}
