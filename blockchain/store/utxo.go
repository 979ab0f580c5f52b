package store

import (
	"encoding/binary"
	"fmt"
	"math/big"

	lru "github.com/hashicorp/golang-lru/v2"
	bolt "go.etcd.io/bbolt"
	"lukechampine.com/blake3"

	"supernova.dev/node/consensus"
)

// UtxoEntry is one unspent output with the metadata maturity and undo
// handling need.
type UtxoEntry struct {
	Output     consensus.TxOut
	Height     uint64
	IsCoinbase bool
}

// Clone returns a deep copy; callers may hold entries across batch applies.
func (e UtxoEntry) Clone() UtxoEntry {
	e.Output.ScriptPubKey = append([]byte(nil), e.Output.ScriptPubKey...)
	return e
}

// UtxoBatch is the atomic state delta of one block: spends remove entries,
// creations add them. Removes apply before adds so a batch can never
// observe its own additions.
type UtxoBatch struct {
	Removes []consensus.OutPoint
	Adds    []UtxoAdd
}

// UtxoAdd pairs a new outpoint with its entry.
type UtxoAdd struct {
	Point consensus.OutPoint
	Entry UtxoEntry
}

// utxoCacheSize bounds the in-memory read-through cache of hot entries.
const utxoCacheSize = 65_536

// commitment op tags, folded into the rolling hash per operation.
const (
	commitOpAdd    = 0x01
	commitOpRemove = 0x02
)

// foldCommitment advances the rolling UTXO commitment by one operation:
// commit' = BLAKE3(commit || op_tag || outpoint || output).
func foldCommitment(commit consensus.Hash, opTag byte, point consensus.OutPoint, entry UtxoEntry) consensus.Hash {
	h := blake3.New(32, nil)
	h.Write(commit[:])
	h.Write([]byte{opTag})
	h.Write(encodeOutpointKey(point))
	h.Write(encodeUtxoEntry(entry))
	var out consensus.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// UtxoStore layers an LRU read cache over the persistent set. Mutations go
// through ConnectBatch/DisconnectBatch only.
type UtxoStore struct {
	db    *DB
	cache *lru.Cache[consensus.OutPoint, UtxoEntry]
}

func NewUtxoStore(db *DB) (*UtxoStore, error) {
	cache, err := lru.New[consensus.OutPoint, UtxoEntry](utxoCacheSize)
	if err != nil {
		return nil, err
	}
	return &UtxoStore{db: db, cache: cache}, nil
}

// Get returns the entry for point, consulting the cache first.
func (u *UtxoStore) Get(point consensus.OutPoint) (UtxoEntry, bool, error) {
	if e, ok := u.cache.Get(point); ok {
		return e.Clone(), true, nil
	}
	var entry UtxoEntry
	found := false
	err := u.db.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketUtxo).Get(encodeOutpointKey(point))
		if v == nil {
			return nil
		}
		e, err := decodeUtxoEntry(v)
		if err != nil {
			return err
		}
		entry = e
		found = true
		return nil
	})
	if err != nil || !found {
		return UtxoEntry{}, false, err
	}
	u.cache.Add(point, entry.Clone())
	return entry, true, nil
}

// Commitment returns the current rolling UTXO commitment.
func (u *UtxoStore) Commitment() (consensus.Hash, error) {
	var out consensus.Hash
	err := u.db.db.View(func(tx *bolt.Tx) error {
		copy(out[:], tx.Bucket(bucketState).Get(keyUtxoCommitment))
		return nil
	})
	return out, err
}

// ConnectBatch applies a block's delta and advances the tip in a single
// bolt transaction. Invariants: every remove must hit an existing entry, no
// add may collide, and on any failure nothing is visible. The undo record
// (with the restored entries and the pre-batch commitment) is stored under
// the block hash, and the block's index status moves to Connected.
func (u *UtxoStore) ConnectBatch(blockHash consensus.Hash, tip TipState, batch *UtxoBatch) error {
	err := u.db.db.Update(func(tx *bolt.Tx) error {
		bu := tx.Bucket(bucketUtxo)
		bs := tx.Bucket(bucketState)

		var commit consensus.Hash
		copy(commit[:], bs.Get(keyUtxoCommitment))
		undo := UndoRecord{PrevCommitment: commit}

		for _, point := range batch.Removes {
			key := encodeOutpointKey(point)
			v := bu.Get(key)
			if v == nil {
				return fmt.Errorf("utxo: remove of missing outpoint %s:%d", point.TxID, point.Vout)
			}
			entry, err := decodeUtxoEntry(v)
			if err != nil {
				return err
			}
			undo.Spent = append(undo.Spent, UndoSpent{OutPoint: point, RestoredEntry: entry})
			if err := bu.Delete(key); err != nil {
				return err
			}
			commit = foldCommitment(commit, commitOpRemove, point, entry)
		}
		for _, add := range batch.Adds {
			key := encodeOutpointKey(add.Point)
			if bu.Get(key) != nil {
				return fmt.Errorf("utxo: add collides with existing outpoint %s:%d", add.Point.TxID, add.Point.Vout)
			}
			if err := bu.Put(key, encodeUtxoEntry(add.Entry)); err != nil {
				return err
			}
			undo.Created = append(undo.Created, add.Point)
			commit = foldCommitment(commit, commitOpAdd, add.Point, add.Entry)
		}

		undoRaw, err := encodeUndoRecord(undo)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketUndo).Put(blockHash[:], undoRaw); err != nil {
			return err
		}

		if err := setIndexStatus(tx, blockHash, StatusConnected); err != nil {
			return err
		}
		return writeTip(bs, tip, commit)
	})
	if err != nil {
		return err
	}
	// Cache coherence after commit.
	for _, point := range batch.Removes {
		u.cache.Remove(point)
	}
	for _, add := range batch.Adds {
		u.cache.Add(add.Point, add.Entry.Clone())
	}
	return nil
}

// DisconnectBatch reverses a connected block using its stored undo record
// and rewinds the tip to prevTip. The commitment snaps back to the value
// recorded when the block was connected.
func (u *UtxoStore) DisconnectBatch(blockHash consensus.Hash, prevTip TipState) (*UndoRecord, error) {
	var undo *UndoRecord
	err := u.db.db.Update(func(tx *bolt.Tx) error {
		undoRaw := tx.Bucket(bucketUndo).Get(blockHash[:])
		if undoRaw == nil {
			return fmt.Errorf("utxo: undo record missing for %s", blockHash)
		}
		rec, err := decodeUndoRecord(undoRaw)
		if err != nil {
			return err
		}
		undo = rec

		bu := tx.Bucket(bucketUtxo)
		for _, point := range rec.Created {
			if err := bu.Delete(encodeOutpointKey(point)); err != nil {
				return err
			}
		}
		for _, s := range rec.Spent {
			if err := bu.Put(encodeOutpointKey(s.OutPoint), encodeUtxoEntry(s.RestoredEntry)); err != nil {
				return err
			}
		}
		if err := tx.Bucket(bucketUndo).Delete(blockHash[:]); err != nil {
			return err
		}
		if err := setIndexStatus(tx, blockHash, StatusBodyValid); err != nil {
			return err
		}
		return writeTip(tx.Bucket(bucketState), prevTip, rec.PrevCommitment)
	})
	if err != nil {
		return nil, err
	}
	for _, point := range undo.Created {
		u.cache.Remove(point)
	}
	for _, s := range undo.Spent {
		u.cache.Add(s.OutPoint, s.RestoredEntry.Clone())
	}
	return undo, nil
}

func writeTip(bs *bolt.Bucket, tip TipState, commitment consensus.Hash) error {
	if err := bs.Put(keyTipHash, tip.Hash[:]); err != nil {
		return err
	}
	var height [8]byte
	binary.LittleEndian.PutUint64(height[:], tip.Height)
	if err := bs.Put(keyTipHeight, height[:]); err != nil {
		return err
	}
	work := tip.Work
	if work == nil {
		work = new(big.Int)
	}
	if err := bs.Put(keyTipWork, work.Bytes()); err != nil {
		return err
	}
	return bs.Put(keyUtxoCommitment, commitment[:])
}

func setIndexStatus(tx *bolt.Tx, hash consensus.Hash, status BlockStatus) error {
	b := tx.Bucket(bucketIndex)
	v := b.Get(hash[:])
	if v == nil {
		return fmt.Errorf("index entry missing for %s", hash)
	}
	e, err := decodeIndexEntry(v)
	if err != nil {
		return err
	}
	if e.Status == StatusInvalid {
		return fmt.Errorf("status change on invalid block %s", hash)
	}
	e.Status = status
	raw, err := encodeIndexEntry(*e)
	if err != nil {
		return err
	}
	return b.Put(hash[:], raw)
}

// encodeOutpointKey is txid(32) || vout u32le, 36 bytes.
func encodeOutpointKey(point consensus.OutPoint) []byte {
	out := make([]byte, 36)
	copy(out[:32], point.TxID[:])
	binary.LittleEndian.PutUint32(out[32:], point.Vout)
	return out
}

func decodeOutpointKey(b []byte) (consensus.OutPoint, error) {
	var out consensus.OutPoint
	if len(b) != 36 {
		return out, fmt.Errorf("outpoint key: want 36 bytes, got %d", len(b))
	}
	copy(out.TxID[:], b[:32])
	out.Vout = binary.LittleEndian.Uint32(b[32:])
	return out, nil
}

// encodeUtxoEntry layout:
// value u64le | height u64le | coinbase u8 | script_len u32le | script
func encodeUtxoEntry(e UtxoEntry) []byte {
	out := make([]byte, 0, 8+8+1+4+len(e.Output.ScriptPubKey))
	out = binary.LittleEndian.AppendUint64(out, e.Output.Value)
	out = binary.LittleEndian.AppendUint64(out, e.Height)
	if e.IsCoinbase {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = binary.LittleEndian.AppendUint32(out, uint32(len(e.Output.ScriptPubKey)))
	return append(out, e.Output.ScriptPubKey...)
}

func decodeUtxoEntry(b []byte) (UtxoEntry, error) {
	var e UtxoEntry
	if len(b) < 8+8+1+4 {
		return e, fmt.Errorf("utxo entry: truncated")
	}
	e.Output.Value = binary.LittleEndian.Uint64(b[0:8])
	e.Height = binary.LittleEndian.Uint64(b[8:16])
	switch b[16] {
	case 0:
	case 1:
		e.IsCoinbase = true
	default:
		return e, fmt.Errorf("utxo entry: bad coinbase flag")
	}
	scriptLen := int(binary.LittleEndian.Uint32(b[17:21]))
	if 21+scriptLen != len(b) {
		return e, fmt.Errorf("utxo entry: bad script len")
	}
	e.Output.ScriptPubKey = append([]byte(nil), b[21:]...)
	return e, nil
}
