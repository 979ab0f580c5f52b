package store

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"supernova.dev/node/consensus"
)

func openTestDB(t *testing.T) (*DB, *UtxoStore) {
	t.Helper()
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	utxo, err := NewUtxoStore(db)
	require.NoError(t, err)
	return db, utxo
}

func putIndexFor(t *testing.T, db *DB, hash consensus.Hash, height uint64) {
	t.Helper()
	require.NoError(t, db.PutIndex(hash, BlockIndexEntry{
		Height:         height,
		CumulativeWork: big.NewInt(int64(height + 1)),
		Status:         StatusBodyValid,
	}))
}

func testEntry(value uint64) UtxoEntry {
	return UtxoEntry{
		Output: consensus.TxOut{Value: value, ScriptPubKey: []byte{0x51}},
		Height: 1,
	}
}

func TestConnectBatch_AddsAndCommitment(t *testing.T) {
	db, utxo := openTestDB(t)
	blockHash := consensus.Hash{0xb1}
	putIndexFor(t, db, blockHash, 1)

	before, err := utxo.Commitment()
	require.NoError(t, err)

	point := consensus.OutPoint{TxID: consensus.Hash{0x01}, Vout: 0}
	batch := &UtxoBatch{Adds: []UtxoAdd{{Point: point, Entry: testEntry(5_000)}}}
	tip := TipState{Hash: blockHash, Height: 1, Work: big.NewInt(2)}
	require.NoError(t, utxo.ConnectBatch(blockHash, tip, batch))

	after, err := utxo.Commitment()
	require.NoError(t, err)
	require.NotEqual(t, before, after, "commitment must advance on add")

	got, ok, err := utxo.Get(point)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(5_000), got.Output.Value)

	idx, ok, err := db.GetIndex(blockHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusConnected, idx.Status)
}

func TestConnectBatch_RemoveMissingFailsAtomically(t *testing.T) {
	db, utxo := openTestDB(t)
	blockHash := consensus.Hash{0xb2}
	putIndexFor(t, db, blockHash, 1)

	before, err := utxo.Commitment()
	require.NoError(t, err)

	point := consensus.OutPoint{TxID: consensus.Hash{0x02}, Vout: 0}
	batch := &UtxoBatch{
		Removes: []consensus.OutPoint{{TxID: consensus.Hash{0xff}, Vout: 9}},
		Adds:    []UtxoAdd{{Point: point, Entry: testEntry(1)}},
	}
	err = utxo.ConnectBatch(blockHash, TipState{Hash: blockHash, Work: big.NewInt(1)}, batch)
	require.Error(t, err)

	// Nothing from the failed batch is visible.
	_, ok, err := utxo.Get(point)
	require.NoError(t, err)
	require.False(t, ok)
	after, err := utxo.Commitment()
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestConnectBatch_AddCollisionFails(t *testing.T) {
	db, utxo := openTestDB(t)
	h1, h2 := consensus.Hash{0xb3}, consensus.Hash{0xb4}
	putIndexFor(t, db, h1, 1)
	putIndexFor(t, db, h2, 2)

	point := consensus.OutPoint{TxID: consensus.Hash{0x03}, Vout: 0}
	batch := &UtxoBatch{Adds: []UtxoAdd{{Point: point, Entry: testEntry(1)}}}
	require.NoError(t, utxo.ConnectBatch(h1, TipState{Hash: h1, Work: big.NewInt(1)}, batch))

	dup := &UtxoBatch{Adds: []UtxoAdd{{Point: point, Entry: testEntry(2)}}}
	require.Error(t, utxo.ConnectBatch(h2, TipState{Hash: h2, Work: big.NewInt(2)}, dup))

	// Original entry untouched.
	got, ok, err := utxo.Get(point)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), got.Output.Value)
}

func TestDisconnectBatch_RestoresStateAndCommitment(t *testing.T) {
	db, utxo := openTestDB(t)
	h1, h2 := consensus.Hash{0xb5}, consensus.Hash{0xb6}
	putIndexFor(t, db, h1, 1)
	putIndexFor(t, db, h2, 2)

	spent := consensus.OutPoint{TxID: consensus.Hash{0x05}, Vout: 0}
	batch1 := &UtxoBatch{Adds: []UtxoAdd{{Point: spent, Entry: testEntry(7_000)}}}
	require.NoError(t, utxo.ConnectBatch(h1, TipState{Hash: h1, Height: 1, Work: big.NewInt(1)}, batch1))

	commitAfterH1, err := utxo.Commitment()
	require.NoError(t, err)

	created := consensus.OutPoint{TxID: consensus.Hash{0x06}, Vout: 1}
	batch2 := &UtxoBatch{
		Removes: []consensus.OutPoint{spent},
		Adds:    []UtxoAdd{{Point: created, Entry: testEntry(6_500)}},
	}
	require.NoError(t, utxo.ConnectBatch(h2, TipState{Hash: h2, Height: 2, Work: big.NewInt(2)}, batch2))

	// Disconnect h2: spent restored, created removed, commitment equal to
	// the pre-connect value bit for bit.
	undo, err := utxo.DisconnectBatch(h2, TipState{Hash: h1, Height: 1, Work: big.NewInt(1)})
	require.NoError(t, err)
	require.Len(t, undo.Spent, 1)
	require.Len(t, undo.Created, 1)

	_, ok, err := utxo.Get(created)
	require.NoError(t, err)
	require.False(t, ok)
	restored, ok, err := utxo.Get(spent)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7_000), restored.Output.Value)

	commitNow, err := utxo.Commitment()
	require.NoError(t, err)
	require.Equal(t, commitAfterH1, commitNow)
}

func TestUndoRecord_RoundTrip(t *testing.T) {
	rec := UndoRecord{
		PrevCommitment: consensus.Hash{0xcc},
		Spent: []UndoSpent{{
			OutPoint:      consensus.OutPoint{TxID: consensus.Hash{0x07}, Vout: 3},
			RestoredEntry: UtxoEntry{Output: consensus.TxOut{Value: 42, ScriptPubKey: []byte{1, 2, 3}}, Height: 9, IsCoinbase: true},
		}},
		Created: []consensus.OutPoint{{TxID: consensus.Hash{0x08}, Vout: 0}},
	}
	raw, err := encodeUndoRecord(rec)
	require.NoError(t, err)
	back, err := decodeUndoRecord(raw)
	require.NoError(t, err)
	require.Equal(t, rec.PrevCommitment, back.PrevCommitment)
	require.Equal(t, rec.Spent, back.Spent)
	require.Equal(t, rec.Created, back.Created)
}

func TestIndexEntry_RoundTrip(t *testing.T) {
	e := BlockIndexEntry{
		Height:         123,
		PrevHash:       consensus.Hash{0x09},
		CumulativeWork: new(big.Int).Lsh(big.NewInt(1), 200),
		Status:         StatusHeaderValid,
	}
	raw, err := encodeIndexEntry(e)
	require.NoError(t, err)
	back, err := decodeIndexEntry(raw)
	require.NoError(t, err)
	require.Equal(t, e.Height, back.Height)
	require.Equal(t, e.PrevHash, back.PrevHash)
	require.Zero(t, e.CumulativeWork.Cmp(back.CumulativeWork))
	require.Equal(t, e.Status, back.Status)
}

func TestUtxoEntry_RoundTrip(t *testing.T) {
	e := testEntry(999)
	e.IsCoinbase = true
	back, err := decodeUtxoEntry(encodeUtxoEntry(e))
	require.NoError(t, err)
	require.Equal(t, e, back)
}
