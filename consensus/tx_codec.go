package consensus

import "encoding/binary"

// Transaction wire format:
//
//	version(4) || varint in_count || inputs || varint out_count || outputs || locktime(4)
//
// When any input carries witness data the segwit framing applies: a zero
// marker byte and a 0x01 flag byte follow the version, and per-input witness
// stacks are placed after the outputs, before the locktime. The marker is
// unambiguous because a well-formed transaction always has at least one
// input, so the in_count varint can never start with 0x00.
const (
	witnessMarker = 0x00
	witnessFlag   = 0x01

	// maxWitnessItemBytes bounds a single witness stack element. SLH-DSA
	// signatures are the largest legitimate payload.
	maxWitnessItemBytes = 52_000
	maxWitnessItems     = 512
	maxScriptSigBytes   = 10_000
)

// Serialize returns the canonical serialization including witness data.
func (tx *Tx) Serialize() []byte {
	return tx.serialize(tx.HasWitness())
}

// SerializeNoWitness returns the canonical serialization with all witness
// data stripped. This is the txid preimage.
func (tx *Tx) SerializeNoWitness() []byte {
	return tx.serialize(false)
}

func (tx *Tx) serialize(withWitness bool) []byte {
	out := make([]byte, 0, 256)
	out = binary.LittleEndian.AppendUint32(out, tx.Version)
	if withWitness {
		out = append(out, witnessMarker, witnessFlag)
	}
	out = AppendCompactSize(out, uint64(len(tx.Inputs)))
	for i := range tx.Inputs {
		in := &tx.Inputs[i]
		out = append(out, in.Prev.TxID[:]...)
		out = binary.LittleEndian.AppendUint32(out, in.Prev.Vout)
		out = AppendCompactSize(out, uint64(len(in.ScriptSig)))
		out = append(out, in.ScriptSig...)
		out = binary.LittleEndian.AppendUint32(out, in.Sequence)
	}
	out = AppendCompactSize(out, uint64(len(tx.Outputs)))
	for i := range tx.Outputs {
		o := &tx.Outputs[i]
		out = binary.LittleEndian.AppendUint64(out, o.Value)
		out = AppendCompactSize(out, uint64(len(o.ScriptPubKey)))
		out = append(out, o.ScriptPubKey...)
	}
	if withWitness {
		for i := range tx.Inputs {
			items := tx.Inputs[i].Witness
			out = AppendCompactSize(out, uint64(len(items)))
			for _, item := range items {
				out = AppendCompactSize(out, uint64(len(item)))
				out = append(out, item...)
			}
		}
	}
	out = binary.LittleEndian.AppendUint32(out, tx.Locktime)
	return out
}

// ParseTx decodes a transaction from b, which must contain exactly one
// transaction with no trailing bytes.
func ParseTx(b []byte) (*Tx, error) {
	off := 0
	tx, err := parseTxAt(b, &off)
	if err != nil {
		return nil, err
	}
	if off != len(b) {
		return nil, ruleErr(ERR_PARSE, "tx: trailing bytes")
	}
	return tx, nil
}

func parseTxAt(b []byte, off *int) (*Tx, error) {
	var tx Tx
	version, err := readU32(b, off)
	if err != nil {
		return nil, err
	}
	tx.Version = version

	hasWitness := false
	if *off+2 <= len(b) && b[*off] == witnessMarker {
		if b[*off+1] != witnessFlag {
			return nil, ruleErr(ERR_PARSE, "tx: bad witness flag")
		}
		hasWitness = true
		*off += 2
	}

	inCount, err := readCompactSize(b, off)
	if err != nil {
		return nil, err
	}
	if inCount == 0 || inCount > MAX_TX_INPUTS {
		return nil, ruleErr(ERR_PARSE, "tx: input count out of range")
	}
	tx.Inputs = make([]TxIn, 0, inCount)
	for i := uint64(0); i < inCount; i++ {
		var in TxIn
		if in.Prev.TxID, err = readHash(b, off); err != nil {
			return nil, err
		}
		if in.Prev.Vout, err = readU32(b, off); err != nil {
			return nil, err
		}
		if in.ScriptSig, err = readVarBytes(b, off, maxScriptSigBytes, "tx: script_sig"); err != nil {
			return nil, err
		}
		if in.Sequence, err = readU32(b, off); err != nil {
			return nil, err
		}
		tx.Inputs = append(tx.Inputs, in)
	}

	outCount, err := readCompactSize(b, off)
	if err != nil {
		return nil, err
	}
	if outCount == 0 || outCount > MAX_TX_OUTPUTS {
		return nil, ruleErr(ERR_PARSE, "tx: output count out of range")
	}
	tx.Outputs = make([]TxOut, 0, outCount)
	for i := uint64(0); i < outCount; i++ {
		var o TxOut
		if o.Value, err = readU64(b, off); err != nil {
			return nil, err
		}
		if o.ScriptPubKey, err = readVarBytes(b, off, MAX_SCRIPT_PUBKEY_BYTES, "tx: script_pubkey"); err != nil {
			return nil, err
		}
		tx.Outputs = append(tx.Outputs, o)
	}

	if hasWitness {
		sawItems := false
		for i := range tx.Inputs {
			itemCount, err := readCompactSize(b, off)
			if err != nil {
				return nil, err
			}
			if itemCount > maxWitnessItems {
				return nil, ruleErr(ERR_PARSE, "tx: witness item count above limit")
			}
			if itemCount > 0 {
				sawItems = true
				items := make([][]byte, 0, itemCount)
				for j := uint64(0); j < itemCount; j++ {
					item, err := readVarBytes(b, off, maxWitnessItemBytes, "tx: witness item")
					if err != nil {
						return nil, err
					}
					items = append(items, item)
				}
				tx.Inputs[i].Witness = items
			}
		}
		if !sawItems {
			return nil, ruleErr(ERR_PARSE, "tx: witness flag without witness data")
		}
	}

	if tx.Locktime, err = readU32(b, off); err != nil {
		return nil, err
	}
	return &tx, nil
}
