package chaincfg

import "supernova.dev/node/consensus"

// Genesis blocks carry a single coinbase paying the initial subsidy to an
// empty script, making the output unspendable. Genesis is connected by hash
// identity, never by PoW re-validation, so the pinned nonce is part of the
// network definition rather than something nodes re-derive.

var mainNetGenesisCoinbase = consensus.Tx{
	Version: 2,
	Inputs: []consensus.TxIn{{
		Prev:      consensus.OutPoint{Vout: consensus.COINBASE_PREV_VOUT},
		ScriptSig: consensus.BuildCoinbaseScriptSig(0, 0, 0, 0, []byte("supernova genesis")),
		Sequence:  0xffffffff,
	}},
	Outputs: []consensus.TxOut{{
		Value:        consensus.INITIAL_SUBSIDY,
		ScriptPubKey: nil,
	}},
}

var mainNetGenesisBlock = consensus.Block{
	Header: consensus.BlockHeader{
		Version:    1,
		PrevBlock:  consensus.Hash{},
		MerkleRoot: mainNetGenesisCoinbase.TxID(),
		Timestamp:  1735689600, // 2025-01-01 00:00:00 UTC
		Bits:       0x1d00ffff,
		Nonce:      2083236893,
	},
	Transactions: []*consensus.Tx{&mainNetGenesisCoinbase},
}

var testNetGenesisCoinbase = consensus.Tx{
	Version: 2,
	Inputs: []consensus.TxIn{{
		Prev:      consensus.OutPoint{Vout: consensus.COINBASE_PREV_VOUT},
		ScriptSig: consensus.BuildCoinbaseScriptSig(0, 0, 0, 0, []byte("supernova testnet genesis")),
		Sequence:  0xffffffff,
	}},
	Outputs: []consensus.TxOut{{
		Value:        consensus.INITIAL_SUBSIDY,
		ScriptPubKey: nil,
	}},
}

var testNetGenesisBlock = consensus.Block{
	Header: consensus.BlockHeader{
		Version:    1,
		PrevBlock:  consensus.Hash{},
		MerkleRoot: testNetGenesisCoinbase.TxID(),
		Timestamp:  1735689600,
		Bits:       0x207fffff,
		Nonce:      0,
	},
	Transactions: []*consensus.Tx{&testNetGenesisCoinbase},
}
