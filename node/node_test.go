package node

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"supernova.dev/node/blockchain/store"
	"supernova.dev/node/consensus"
	"supernova.dev/node/crypto"
	"supernova.dev/node/txscript"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Network = "simnet"
	cfg.DataDir = t.TempDir()
	cfg.MetricsAddr = ""
	n, err := Open(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func zeroKeyHashScript() []byte {
	var pkh [20]byte
	return txscript.PayToWitnessPubKeyHash(pkh)
}

// mineBlock assembles, solves and submits one block on the current tip.
func mineBlock(t *testing.T, n *Node, opts MineOptions) *consensus.Block {
	t.Helper()
	if opts.PayoutScript == nil {
		opts.PayoutScript = zeroKeyHashScript()
	}
	blk, err := n.BuildBlock(opts)
	require.NoError(t, err)
	require.NoError(t, Solve(context.Background(), blk))
	res, err := n.SubmitBlock(blk)
	require.NoError(t, err)
	require.Equal(t, store.StatusConnected, res.Status)
	return blk
}

func mineN(t *testing.T, n *Node, count int, payout []byte) {
	t.Helper()
	for i := 0; i < count; i++ {
		mineBlock(t, n, MineOptions{PayoutScript: payout, ExtraNonce: uint64(i)})
	}
}

// buildBlockOn constructs and solves an empty block on an arbitrary parent,
// for side-chain scenarios the miner will not assemble.
func buildBlockOn(t *testing.T, parentHash consensus.Hash, parentHeader *consensus.BlockHeader, height uint64, extraNonce uint64) *consensus.Block {
	t.Helper()
	value, err := consensus.MaxCoinbaseValue(height, 0, 0, 0)
	require.NoError(t, err)
	coinbase := consensus.NewCoinbaseTx(height, value, zeroKeyHashScript(), 0, 0, extraNonce)
	blk := &consensus.Block{
		Header: consensus.BlockHeader{
			Version:    1,
			PrevBlock:  parentHash,
			MerkleRoot: consensus.BlockMerkleRoot([]*consensus.Tx{coinbase}),
			Timestamp:  parentHeader.Timestamp + 1,
			Bits:       parentHeader.Bits,
			Nonce:      0,
		},
		Transactions: []*consensus.Tx{coinbase},
	}
	require.NoError(t, Solve(context.Background(), blk))
	return blk
}

// spendOutput builds a single-input transaction consuming vout 0 of from,
// paying value-fee back to a zero key hash, signed with key (P2WPKH).
func spendOutput(t *testing.T, from *consensus.Tx, key *crypto.KeyPair, fee uint64) *consensus.Tx {
	t.Helper()
	amount := from.Outputs[0].Value
	tx := &consensus.Tx{
		Version: 2,
		Inputs: []consensus.TxIn{{
			Prev:     consensus.OutPoint{TxID: from.TxID(), Vout: 0},
			Sequence: 0xfffffffe,
		}},
		Outputs: []consensus.TxOut{{Value: amount - fee, ScriptPubKey: zeroKeyHashScript()}},
	}
	witness, err := txscript.WitnessSignature(tx, 0, amount, key)
	require.NoError(t, err)
	tx.Inputs[0].Witness = witness
	return tx
}

func payToKey(key *crypto.KeyPair) []byte {
	return txscript.PayToWitnessPubKeyHash(consensus.Hash160(key.Public))
}

func TestGenesisAndFirstBlock(t *testing.T) {
	n := newTestNode(t)
	tip := n.Chain.Tip()
	require.Equal(t, uint64(0), tip.Height)
	require.Equal(t, n.Params.GenesisHash, tip.Hash)

	require.False(t, n.Chain.InInitialBlockDownload())
	n.Chain.SetBestKnownHeight(5_000)
	require.True(t, n.Chain.InInitialBlockDownload())

	blk := mineBlock(t, n, MineOptions{})
	tip = n.Chain.Tip()
	require.Equal(t, uint64(1), tip.Height)
	require.Equal(t, blk.Header.BlockHash(), tip.Hash)

	// The coinbase output is in the UTXO set, marked coinbase at height 1.
	point := consensus.OutPoint{TxID: blk.Transactions[0].TxID(), Vout: 0}
	entry, ok, err := n.Chain.UtxoStore().Get(point)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, entry.IsCoinbase)
	require.Equal(t, uint64(1), entry.Height)
	require.Equal(t, uint64(50*consensus.NOVAS_PER_NOVA), entry.Output.Value)
}

func TestImmatureCoinbaseSpend(t *testing.T) {
	n := newTestNode(t)
	key, err := crypto.GenerateKey(crypto.SchemeEd25519, false)
	require.NoError(t, err)

	blk1 := mineBlock(t, n, MineOptions{PayoutScript: payToKey(key)})
	mineN(t, n, 49, nil)
	require.Equal(t, uint64(50), n.Chain.Tip().Height)

	spend := spendOutput(t, blk1.Transactions[0], key, 1_000)
	err = n.SubmitTransaction(context.Background(), spend, "")
	require.True(t, consensus.IsRuleCode(err, consensus.ERR_IMMATURE_COINBASE), "got %v", err)
	require.Zero(t, n.Mempool.Count())
}

func TestMatureCoinbaseSpendAndMempoolRBF(t *testing.T) {
	n := newTestNode(t)
	key, err := crypto.GenerateKey(crypto.SchemeEd25519, false)
	require.NoError(t, err)

	blk1 := mineBlock(t, n, MineOptions{PayoutScript: payToKey(key)})
	mineN(t, n, 100, nil)
	require.Equal(t, uint64(101), n.Chain.Tip().Height)

	// Low-fee spend of outpoint O admitted first.
	txA := spendOutput(t, blk1.Transactions[0], key, 1_000)
	require.NoError(t, n.SubmitTransaction(context.Background(), txA, ""))
	require.Equal(t, 1, n.Mempool.Count())

	// Conflicting higher-fee spend replaces it.
	txB := spendOutput(t, blk1.Transactions[0], key, 2_500)
	require.NoError(t, n.SubmitTransaction(context.Background(), txB, ""))
	require.Equal(t, 1, n.Mempool.Count(), "conflict set must collapse to one")
	require.False(t, n.Mempool.Have(txA.TxID()))
	require.True(t, n.Mempool.Have(txB.TxID()))

	// A replacement paying a lower fee rate is refused.
	txC := spendOutput(t, blk1.Transactions[0], key, 1_200)
	err = n.SubmitTransaction(context.Background(), txC, "")
	require.Error(t, err)
	require.True(t, n.Mempool.Have(txB.TxID()))

	// The winner mines into the next block and leaves the pool.
	blk := mineBlock(t, n, MineOptions{})
	require.Len(t, blk.Transactions, 2)
	require.Equal(t, txB.TxID(), blk.Transactions[1].TxID())
	require.Zero(t, n.Mempool.Count())
}

func TestAmountOverflowRejected(t *testing.T) {
	n := newTestNode(t)
	mineN(t, n, 1, nil)

	tx := &consensus.Tx{
		Version: 2,
		Inputs: []consensus.TxIn{{
			Prev:     consensus.OutPoint{TxID: consensus.Hash{0x01}, Vout: 0},
			Sequence: 0xfffffffe,
		}},
		Outputs: []consensus.TxOut{
			{Value: math.MaxUint64 - 100, ScriptPubKey: zeroKeyHashScript()},
			{Value: 200, ScriptPubKey: zeroKeyHashScript()},
		},
	}
	err := n.SubmitTransaction(context.Background(), tx, "")
	require.True(t, consensus.IsRuleCode(err, consensus.ERR_AMOUNT_OVERFLOW), "got %v", err)
	require.Zero(t, n.Mempool.Count())
}

func TestReorgDepthTwo(t *testing.T) {
	n := newTestNode(t)
	genesisHash := n.Params.GenesisHash
	genesisHeader := n.Params.GenesisBlock.Header

	// Best chain: genesis -> B1 -> B2.
	mineBlock(t, n, MineOptions{ExtraNonce: 1})
	b2 := mineBlock(t, n, MineOptions{ExtraNonce: 2})
	require.Equal(t, uint64(2), n.Chain.Tip().Height)

	// Competing branch from genesis with one block more work.
	b1p := buildBlockOn(t, genesisHash, &genesisHeader, 1, 1_001)
	b2p := buildBlockOn(t, b1p.Header.BlockHash(), &b1p.Header, 2, 1_002)
	b3p := buildBlockOn(t, b2p.Header.BlockHash(), &b2p.Header, 3, 1_003)

	res, err := n.SubmitBlock(b1p)
	require.NoError(t, err)
	require.Equal(t, store.StatusBodyValid, res.Status, "lighter branch stays on the side")

	res, err = n.SubmitBlock(b2p)
	require.NoError(t, err)
	require.Equal(t, store.StatusBodyValid, res.Status, "equal work keeps the first-seen tip")
	require.Equal(t, b2.Header.BlockHash(), n.Chain.Tip().Hash)

	res, err = n.SubmitBlock(b3p)
	require.NoError(t, err)
	require.Equal(t, store.StatusConnected, res.Status)
	tip := n.Chain.Tip()
	require.Equal(t, uint64(3), tip.Height)
	require.Equal(t, b3p.Header.BlockHash(), tip.Hash)

	// A fresh node fed only the winning branch reaches the identical UTXO
	// commitment: the reorg left no residue.
	m := newTestNode(t)
	for _, blk := range []*consensus.Block{b1p, b2p, b3p} {
		res, err := m.SubmitBlock(blk)
		require.NoError(t, err)
		require.Equal(t, store.StatusConnected, res.Status)
	}
	require.Equal(t, m.Chain.Tip().Commitment, tip.Commitment)
	require.Equal(t, m.Chain.Tip().Hash, tip.Hash)
}

func TestDeepReorgRefused(t *testing.T) {
	n := newTestNode(t)
	genesisHash := n.Params.GenesisHash
	genesisHeader := n.Params.GenesisBlock.Header
	maxDepth := int(n.Params.MaxReorgDepth)

	// Best chain two blocks past the weak-subjectivity window.
	mineN(t, n, maxDepth+2, nil)
	tipBefore := n.Chain.Tip()

	// Heavier branch forking at genesis: refused regardless of work.
	parentHash := genesisHash
	parentHeader := &genesisHeader
	var rejected bool
	for i := 0; i < maxDepth+4; i++ {
		blk := buildBlockOn(t, parentHash, parentHeader, uint64(i+1), uint64(5_000+i))
		_, err := n.SubmitBlock(blk)
		if err != nil {
			require.True(t, consensus.IsRuleCode(err, consensus.ERR_WEAK_SUBJECTIVITY), "got %v", err)
			rejected = true
			break
		}
		parentHash = blk.Header.BlockHash()
		parentHeader = &blk.Header
	}
	require.True(t, rejected, "deep branch was never refused")
	require.Equal(t, tipBefore.Hash, n.Chain.Tip().Hash, "tip must be retained")
	require.Equal(t, tipBefore.Commitment, n.Chain.Tip().Commitment)
}

func TestQuantumSpendEndToEnd(t *testing.T) {
	n := newTestNode(t)
	classicalKey, err := crypto.GenerateKey(crypto.SchemeEd25519, false)
	require.NoError(t, err)
	quantumKey, err := crypto.GenerateKey(crypto.SchemeDilithium3, false)
	require.NoError(t, err)

	blk1 := mineBlock(t, n, MineOptions{PayoutScript: payToKey(classicalKey)})
	mineN(t, n, 100, nil)

	// Move the matured coinbase into a quantum program output.
	quantumScript := txscript.PayToQuantumWitness(quantumKey.Public)
	amount := blk1.Transactions[0].Outputs[0].Value
	fund := &consensus.Tx{
		Version: 2,
		Inputs: []consensus.TxIn{{
			Prev:     consensus.OutPoint{TxID: blk1.Transactions[0].TxID(), Vout: 0},
			Sequence: 0xfffffffe,
		}},
		Outputs: []consensus.TxOut{{Value: amount - 2_000, ScriptPubKey: quantumScript}},
	}
	witness, err := txscript.WitnessSignature(fund, 0, amount, classicalKey)
	require.NoError(t, err)
	fund.Inputs[0].Witness = witness
	require.NoError(t, n.SubmitTransaction(context.Background(), fund, ""))
	mineBlock(t, n, MineOptions{})
	require.Zero(t, n.Mempool.Count())

	// Spend the quantum output under an ML-DSA level-3 signature.
	quantumAmount := fund.Outputs[0].Value
	spend := &consensus.Tx{
		Version: 2,
		Inputs: []consensus.TxIn{{
			Prev:     consensus.OutPoint{TxID: fund.TxID(), Vout: 0},
			Sequence: 0xfffffffe,
		}},
		Outputs: []consensus.TxOut{{Value: quantumAmount - 20_000, ScriptPubKey: zeroKeyHashScript()}},
	}
	qWitness, err := txscript.QuantumWitnessSignature(spend, 0, quantumScript, quantumAmount, quantumKey)
	require.NoError(t, err)
	spend.Inputs[0].Witness = qWitness

	// A corrupted signature is rejected.
	spend.Inputs[0].Witness[0][20] ^= 0x01
	err = n.SubmitTransaction(context.Background(), spend, "")
	require.True(t, consensus.IsRuleCode(err, consensus.ERR_SIGNATURE_INVALID), "got %v", err)
	spend.Inputs[0].Witness[0][20] ^= 0x01

	require.NoError(t, n.SubmitTransaction(context.Background(), spend, ""))
	blk := mineBlock(t, n, MineOptions{})
	require.Len(t, blk.Transactions, 2)
	require.Equal(t, spend.TxID(), blk.Transactions[1].TxID())
}

func TestEnvironmentalBonusCoinbase(t *testing.T) {
	n := newTestNode(t)
	blk := mineBlock(t, n, MineOptions{
		RenewablePercent: 100,
		EnvFlags:         consensus.ENV_FLAG_EFFICIENCY | consensus.ENV_FLAG_CARBON_NEGATIVE,
	})
	base := consensus.BaseSubsidy(1)
	want := base + base*consensus.MAX_BONUS_PERCENT/100
	require.Equal(t, want, blk.Transactions[0].Outputs[0].Value)
}

func TestOverclaimedCoinbaseRejected(t *testing.T) {
	n := newTestNode(t)
	genesisHeader := n.Params.GenesisBlock.Header

	// Claim the full bonus in value but commit zero environmental inputs.
	value := consensus.BaseSubsidy(1) * 2
	coinbase := consensus.NewCoinbaseTx(1, value, zeroKeyHashScript(), 0, 0, 0)
	blk := &consensus.Block{
		Header: consensus.BlockHeader{
			Version:    1,
			PrevBlock:  n.Params.GenesisHash,
			MerkleRoot: consensus.BlockMerkleRoot([]*consensus.Tx{coinbase}),
			Timestamp:  genesisHeader.Timestamp + 1,
			Bits:       genesisHeader.Bits,
			Nonce:      0,
		},
		Transactions: []*consensus.Tx{coinbase},
	}
	require.NoError(t, Solve(context.Background(), blk))
	_, err := n.SubmitBlock(blk)
	require.True(t, consensus.IsRuleCode(err, consensus.ERR_BAD_SUBSIDY), "got %v", err)
	require.Equal(t, uint64(0), n.Chain.Tip().Height)
}

func TestOrphanAdoption(t *testing.T) {
	n := newTestNode(t)
	genesisHeader := n.Params.GenesisBlock.Header

	b1 := buildBlockOn(t, n.Params.GenesisHash, &genesisHeader, 1, 1)
	b2 := buildBlockOn(t, b1.Header.BlockHash(), &b1.Header, 2, 2)

	// Child first: parked as an orphan.
	res, err := n.SubmitBlock(b2)
	require.NoError(t, err)
	require.Equal(t, store.StatusOrphan, res.Status)
	require.Equal(t, uint64(0), n.Chain.Tip().Height)

	// Parent arrives: both connect.
	res, err = n.SubmitBlock(b1)
	require.NoError(t, err)
	require.Equal(t, store.StatusConnected, res.Status)
	require.Equal(t, uint64(2), n.Chain.Tip().Height)
	require.Equal(t, b2.Header.BlockHash(), n.Chain.Tip().Hash)
}
