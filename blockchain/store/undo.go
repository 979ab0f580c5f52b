package store

import (
	"encoding/binary"
	"fmt"

	"supernova.dev/node/consensus"
)

// UndoSpent restores one spent output on disconnect.
type UndoSpent struct {
	OutPoint      consensus.OutPoint
	RestoredEntry UtxoEntry
}

// UndoRecord is the reverse delta journaled when a block connects. Applying
// it in reverse removes the block's created outputs, restores its spent
// ones, and snaps the UTXO commitment back to PrevCommitment.
type UndoRecord struct {
	PrevCommitment consensus.Hash
	Spent          []UndoSpent
	Created        []consensus.OutPoint
}

func encodeUndoRecord(u UndoRecord) ([]byte, error) {
	if len(u.Spent) > 0xffffffff || len(u.Created) > 0xffffffff {
		return nil, fmt.Errorf("undo: too many items")
	}

	// Layout:
	// prev_commitment 32
	// spent_count u32le
	//   (outpoint_key 36 | utxo_len u32le | utxo_bytes) * spent_count
	// created_count u32le
	//   (outpoint_key 36) * created_count
	out := make([]byte, 0, 32+4+len(u.Spent)*(36+4+64)+4+len(u.Created)*36)
	out = append(out, u.PrevCommitment[:]...)

	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(u.Spent)))
	out = append(out, tmp4[:]...)
	for _, s := range u.Spent {
		out = append(out, encodeOutpointKey(s.OutPoint)...)
		utxoBytes := encodeUtxoEntry(s.RestoredEntry)
		binary.LittleEndian.PutUint32(tmp4[:], uint32(len(utxoBytes)))
		out = append(out, tmp4[:]...)
		out = append(out, utxoBytes...)
	}

	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(u.Created)))
	out = append(out, tmp4[:]...)
	for _, p := range u.Created {
		out = append(out, encodeOutpointKey(p)...)
	}
	return out, nil
}

func decodeUndoRecord(b []byte) (*UndoRecord, error) {
	if len(b) < 32+4+4 {
		return nil, fmt.Errorf("undo: truncated")
	}
	var rec UndoRecord
	copy(rec.PrevCommitment[:], b[:32])
	off := 32

	readU32 := func() (uint32, error) {
		if off+4 > len(b) {
			return 0, fmt.Errorf("undo: truncated u32")
		}
		v := binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
		return v, nil
	}

	spentN, err := readU32()
	if err != nil {
		return nil, err
	}
	rec.Spent = make([]UndoSpent, 0, spentN)
	for i := uint32(0); i < spentN; i++ {
		if off+36 > len(b) {
			return nil, fmt.Errorf("undo: truncated outpoint")
		}
		p, err := decodeOutpointKey(b[off : off+36])
		if err != nil {
			return nil, err
		}
		off += 36
		utxoLen, err := readU32()
		if err != nil {
			return nil, err
		}
		if int(utxoLen) > len(b)-off {
			return nil, fmt.Errorf("undo: truncated utxo bytes")
		}
		e, err := decodeUtxoEntry(b[off : off+int(utxoLen)])
		if err != nil {
			return nil, err
		}
		off += int(utxoLen)
		rec.Spent = append(rec.Spent, UndoSpent{OutPoint: p, RestoredEntry: e})
	}

	createdN, err := readU32()
	if err != nil {
		return nil, err
	}
	rec.Created = make([]consensus.OutPoint, 0, createdN)
	for i := uint32(0); i < createdN; i++ {
		if off+36 > len(b) {
			return nil, fmt.Errorf("undo: truncated created outpoint")
		}
		p, err := decodeOutpointKey(b[off : off+36])
		if err != nil {
			return nil, err
		}
		off += 36
		rec.Created = append(rec.Created, p)
	}
	if off != len(b) {
		return nil, fmt.Errorf("undo: trailing bytes")
	}
	return &rec, nil
}
