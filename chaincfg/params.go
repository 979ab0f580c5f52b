// Package chaincfg defines the per-network consensus parameters and pinned
// genesis blocks for the Supernova networks.
package chaincfg

import (
	"math/big"

	"supernova.dev/node/consensus"
)

// Checkpoint pins a known-good block hash at a height. Blocks at or below
// the last checkpoint skip script verification whenever they connect, in or
// out of initial block download; header-chain validation still applies.
type Checkpoint struct {
	Height uint64
	Hash   consensus.Hash
}

// Params holds everything that differs between Supernova networks.
type Params struct {
	Name string

	// Net magic distinguishes wire payloads across networks.
	Net uint32

	// Bech32HRP is the human-readable part of addresses on this network.
	Bech32HRP string

	// PowLimit is the maximum target (minimum difficulty). PowLimitBits is
	// its compact encoding, used by genesis and by the retarget floor.
	PowLimit     *big.Int
	PowLimitBits uint32

	// TargetBlockInterval is the desired seconds between blocks;
	// RetargetWindow the number of blocks per difficulty adjustment.
	TargetBlockInterval uint64
	RetargetWindow      uint64

	// MaxReorgDepth is the weak-subjectivity window: a competing branch
	// that forks deeper than this is refused regardless of chainwork.
	MaxReorgDepth uint64

	// MinRelayFeeRate is the mempool admission floor in novas per weight
	// unit, scaled by 1000 (i.e. novas per kilo-weight).
	MinRelayFeeRate uint64

	Checkpoints []Checkpoint

	// GenesisBlock and GenesisHash pin block zero.
	GenesisBlock *consensus.Block
	GenesisHash  consensus.Hash
}

// LastCheckpoint returns the highest checkpoint, or nil when the network has
// none.
func (p *Params) LastCheckpoint() *Checkpoint {
	if len(p.Checkpoints) == 0 {
		return nil
	}
	return &p.Checkpoints[len(p.Checkpoints)-1]
}

// CheckpointAt returns the checkpoint pinned at height, if any.
func (p *Params) CheckpointAt(height uint64) *Checkpoint {
	for i := range p.Checkpoints {
		if p.Checkpoints[i].Height == height {
			return &p.Checkpoints[i]
		}
	}
	return nil
}

var (
	mainPowLimit = mustCompact(0x1d00ffff)
	testPowLimit = mustCompact(0x207fffff)
)

// MainNetParams are the Supernova mainnet parameters.
var MainNetParams = Params{
	Name:                "mainnet",
	Net:                 0x4e4f5641, // "NOVA"
	Bech32HRP:           "nova",
	PowLimit:            mainPowLimit,
	PowLimitBits:        0x1d00ffff,
	TargetBlockInterval: consensus.TARGET_BLOCK_INTERVAL,
	RetargetWindow:      consensus.RETARGET_WINDOW,
	MaxReorgDepth:       100,
	MinRelayFeeRate:     1_000,
	GenesisBlock:        &mainNetGenesisBlock,
	GenesisHash:         mainNetGenesisBlock.Header.BlockHash(),
}

// TestNetParams are the Supernova testnet parameters. The PoW limit is high
// enough that test miners solve blocks in microseconds.
var TestNetParams = Params{
	Name:                "testnet",
	Net:                 0x544e5641, // "TNVA"
	Bech32HRP:           "tnova",
	PowLimit:            testPowLimit,
	PowLimitBits:        0x207fffff,
	TargetBlockInterval: consensus.TARGET_BLOCK_INTERVAL,
	RetargetWindow:      consensus.RETARGET_WINDOW,
	MaxReorgDepth:       100,
	MinRelayFeeRate:     1_000,
	GenesisBlock:        &testNetGenesisBlock,
	GenesisHash:         testNetGenesisBlock.Header.BlockHash(),
}

// SimNetParams mirror testnet with an isolated net magic for in-process
// simulation and tests.
var SimNetParams = Params{
	Name:                "simnet",
	Net:                 0x53494d4e, // "SIMN"
	Bech32HRP:           "tnova",
	PowLimit:            testPowLimit,
	PowLimitBits:        0x207fffff,
	TargetBlockInterval: consensus.TARGET_BLOCK_INTERVAL,
	RetargetWindow:      consensus.RETARGET_WINDOW,
	MaxReorgDepth:       100,
	MinRelayFeeRate:     1_000,
	GenesisBlock:        &testNetGenesisBlock,
	GenesisHash:         testNetGenesisBlock.Header.BlockHash(),
}

// ParamsForNetwork maps a network name to its parameters.
func ParamsForNetwork(name string) (*Params, bool) {
	switch name {
	case "mainnet":
		return &MainNetParams, true
	case "testnet":
		return &TestNetParams, true
	case "simnet":
		return &SimNetParams, true
	default:
		return nil, false
	}
}

func mustCompact(bits uint32) *big.Int {
	t, err := consensus.CompactToTarget(bits)
	if err != nil {
		panic(err)
	}
	return t
}
