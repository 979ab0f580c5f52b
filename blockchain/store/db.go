// Package store provides the bbolt-backed persistence for the chain: block
// headers and bodies, the block index with cumulative work, the UTXO set
// with its rolling BLAKE3 commitment, and per-block undo journals.
package store

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"supernova.dev/node/consensus"
)

var (
	bucketHeaders = []byte("headers_by_hash")
	bucketBlocks  = []byte("blocks_by_hash")
	bucketIndex   = []byte("block_index_by_hash")
	bucketUtxo    = []byte("utxo_by_outpoint")
	bucketUndo    = []byte("undo_by_block_hash")
	bucketState   = []byte("chain_state")
)

var (
	keyTipHash        = []byte("tip_hash")
	keyTipHeight      = []byte("tip_height")
	keyTipWork        = []byte("tip_work")
	keyUtxoCommitment = []byte("utxo_commitment")
)

// BlockStatus tracks a block through the validation state machine.
// Connected and Invalid are terminal; Invalid is permanent.
type BlockStatus byte

const (
	StatusUnknown     BlockStatus = 0
	StatusHeaderValid BlockStatus = 1
	StatusBodyValid   BlockStatus = 2
	StatusConnected   BlockStatus = 3
	StatusOrphan      BlockStatus = 4
	StatusInvalid     BlockStatus = 5
)

func (s BlockStatus) String() string {
	switch s {
	case StatusHeaderValid:
		return "header_valid"
	case StatusBodyValid:
		return "body_valid"
	case StatusConnected:
		return "connected"
	case StatusOrphan:
		return "orphan"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// BlockIndexEntry is the per-header record used for linkage walks and fork
// choice.
type BlockIndexEntry struct {
	Height         uint64
	PrevHash       consensus.Hash
	CumulativeWork *big.Int
	Status         BlockStatus
}

// TipState is the persisted best-chain summary.
type TipState struct {
	Hash       consensus.Hash
	Height     uint64
	Work       *big.Int
	Commitment consensus.Hash
}

// DB wraps the bbolt handle. A single process owns the file; bbolt enforces
// that with an exclusive lock.
type DB struct {
	db *bolt.DB
}

// Open creates or opens the chain database under dataDir.
func Open(dataDir string) (*DB, error) {
	path := filepath.Join(dataDir, "chain.db")
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}
	d := &DB{db: bdb}
	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketHeaders, bucketBlocks, bucketIndex, bucketUtxo, bucketUndo, bucketState} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) PutHeader(hash consensus.Hash, header *consensus.BlockHeader) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHeaders).Put(hash[:], header.Serialize())
	})
}

func (d *DB) GetHeader(hash consensus.Hash) (*consensus.BlockHeader, bool, error) {
	var raw []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketHeaders).Get(hash[:])
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return nil, false, err
	}
	h, err := consensus.ParseBlockHeader(raw)
	if err != nil {
		return nil, false, err
	}
	return h, true, nil
}

func (d *DB) PutBlock(hash consensus.Hash, blk *consensus.Block) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlocks).Put(hash[:], blk.Serialize())
	})
}

func (d *DB) GetBlock(hash consensus.Hash) (*consensus.Block, bool, error) {
	var raw []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlocks).Get(hash[:])
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return nil, false, err
	}
	blk, err := consensus.ParseBlock(raw)
	if err != nil {
		return nil, false, err
	}
	return blk, true, nil
}

func (d *DB) PutIndex(hash consensus.Hash, e BlockIndexEntry) error {
	raw, err := encodeIndexEntry(e)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIndex).Put(hash[:], raw)
	})
}

func (d *DB) GetIndex(hash consensus.Hash) (*BlockIndexEntry, bool, error) {
	var out *BlockIndexEntry
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketIndex).Get(hash[:])
		if v == nil {
			return nil
		}
		e, err := decodeIndexEntry(v)
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		return nil, false, nil
	}
	return out, true, nil
}

// SetStatus transitions a block's index status. Invalid is sticky: once a
// block is marked invalid it never leaves that state.
func (d *DB) SetStatus(hash consensus.Hash, status BlockStatus) error {
	return d.db.Update(func(tx *bolt.Tx) error {
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
			return nil
		}
		e.Status = status
		raw, err := encodeIndexEntry(*e)
		if err != nil {
			return err
		}
		return b.Put(hash[:], raw)
	})
}

// Tip returns the persisted best-chain state, or ok=false before genesis
// initialization.
func (d *DB) Tip() (*TipState, bool, error) {
	var out *TipState
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketState)
		hashRaw := b.Get(keyTipHash)
		if hashRaw == nil {
			return nil
		}
		var t TipState
		copy(t.Hash[:], hashRaw)
		heightRaw := b.Get(keyTipHeight)
		if len(heightRaw) != 8 {
			return fmt.Errorf("chain state: bad tip height")
		}
		t.Height = binary.LittleEndian.Uint64(heightRaw)
		t.Work = new(big.Int).SetBytes(b.Get(keyTipWork))
		copy(t.Commitment[:], b.Get(keyUtxoCommitment))
		out = &t
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		return nil, false, nil
	}
	return out, true, nil
}

func encodeIndexEntry(e BlockIndexEntry) ([]byte, error) {
	if e.CumulativeWork == nil || e.CumulativeWork.Sign() < 0 {
		return nil, fmt.Errorf("index: cumulative_work required")
	}
	work := e.CumulativeWork.Bytes()
	if len(work) > 0xffff {
		return nil, fmt.Errorf("index: cumulative_work too large")
	}
	// Layout: height u64le | prev_hash 32 | status u8 | work_len u16le | work
	out := make([]byte, 8+32+1+2+len(work))
	binary.LittleEndian.PutUint64(out[0:8], e.Height)
	copy(out[8:40], e.PrevHash[:])
	out[40] = byte(e.Status)
	binary.LittleEndian.PutUint16(out[41:43], uint16(len(work)))
	copy(out[43:], work)
	return out, nil
}

func decodeIndexEntry(b []byte) (*BlockIndexEntry, error) {
	if len(b) < 8+32+1+2 {
		return nil, fmt.Errorf("index: truncated")
	}
	height := binary.LittleEndian.Uint64(b[0:8])
	var prev consensus.Hash
	copy(prev[:], b[8:40])
	status := BlockStatus(b[40])
	workLen := int(binary.LittleEndian.Uint16(b[41:43]))
	if 43+workLen != len(b) {
		return nil, fmt.Errorf("index: bad work len")
	}
	return &BlockIndexEntry{
		Height:         height,
		PrevHash:       prev,
		CumulativeWork: new(big.Int).SetBytes(b[43:]),
		Status:         status,
	}, nil
}
