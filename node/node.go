package node

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"supernova.dev/node/blockchain"
	"supernova.dev/node/blockchain/store"
	"supernova.dev/node/chaincfg"
	"supernova.dev/node/consensus"
	"supernova.dev/node/crypto"
	"supernova.dev/node/mempool"
	"supernova.dev/node/txscript"
)

// Node assembles the consensus core. Block connection, disconnection and
// mempool admission funnel through here, so the chain's single-writer
// discipline holds process-wide.
type Node struct {
	Cfg     Config
	Params  *chaincfg.Params
	Log     zerolog.Logger
	DB      *store.DB
	Chain   *blockchain.Chain
	Mempool *mempool.Mempool
}

// Open builds a node from cfg, creating the data directory and the chain
// database (connecting genesis on first run).
func Open(cfg Config, log zerolog.Logger) (*Node, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	params, ok := chaincfg.ParamsForNetwork(cfg.Network)
	if !ok {
		return nil, fmt.Errorf("unknown network %q", cfg.Network)
	}
	dataDir := cfg.DataDir
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, err
	}

	db, err := store.Open(dataDir)
	if err != nil {
		return nil, err
	}

	mode := crypto.ModeStandard
	if cfg.StrictQuantum {
		mode = crypto.ModeStrictQuantumResistant
	}
	verifier := &crypto.Verifier{
		Mode:                      mode,
		EnableExperimentalSchemes: cfg.ExperimentalSchemes,
	}
	sigCache, err := txscript.NewSigCache(cfg.SigCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	tv := &blockchain.TxValidator{Verifier: verifier, SigCache: sigCache}

	chain, err := blockchain.New(params, db, tv, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	pool := mempool.New(mempool.Config{MaxBytes: cfg.MempoolMaxBytes}, chain, tv, log)

	return &Node{
		Cfg:     cfg,
		Params:  params,
		Log:     log,
		DB:      db,
		Chain:   chain,
		Mempool: pool,
	}, nil
}

// Close flushes and releases the chain database.
func (n *Node) Close() error {
	return n.DB.Close()
}

// SubmitBlock feeds a block through validation and, when it becomes part of
// the best chain, prunes the mempool of its transactions.
func (n *Node) SubmitBlock(blk *consensus.Block) (*blockchain.ProcessResult, error) {
	res, err := n.Chain.ProcessBlock(blk)
	if err != nil {
		return res, err
	}
	if res.Status == store.StatusConnected {
		n.Mempool.RemoveConfirmed(blk)
		n.Mempool.TrimInvalid(context.Background())
	}
	return res, nil
}

// SubmitTransaction runs mempool admission for a transaction received from
// peer (empty for local submissions).
func (n *Node) SubmitTransaction(ctx context.Context, tx *consensus.Tx, peer string) error {
	return n.Mempool.Accept(ctx, tx, peer)
}
