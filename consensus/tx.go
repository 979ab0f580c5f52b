package consensus

// Consensus limits shared across the core. MAX_BLOCK_WEIGHT caps the
// witness-discounted size of a block; script limits live in txscript.
const (
	MAX_BLOCK_WEIGHT  = 4_000_000
	COINBASE_MATURITY = 100

	MAX_TX_INPUTS  = 24_576
	MAX_TX_OUTPUTS = 24_576

	MAX_SCRIPT_PUBKEY_BYTES = 10_000

	WITNESS_SCALE_FACTOR = 4

	// COINBASE_PREV_VOUT marks the null prevout of a coinbase input.
	COINBASE_PREV_VOUT = 0xffffffff
)

// OutPoint references an output of a prior transaction.
type OutPoint struct {
	TxID Hash
	Vout uint32
}

// IsNull reports whether op is the coinbase null prevout.
func (op OutPoint) IsNull() bool {
	return op.TxID.IsZero() && op.Vout == COINBASE_PREV_VOUT
}

// TxIn spends a previous output. Witness carries the segregated stack for
// witness program spends; it is excluded from the txid.
type TxIn struct {
	Prev      OutPoint
	ScriptSig []byte
	Witness   [][]byte
	Sequence  uint32
}

// TxOut locks value under a script.
type TxOut struct {
	Value        uint64
	ScriptPubKey []byte
}

// Tx is a Supernova transaction. Identity is the double-SHA256 of the
// canonical serialization excluding witnesses.
type Tx struct {
	Version  uint32
	Inputs   []TxIn
	Outputs  []TxOut
	Locktime uint32
}

// HasWitness reports whether any input carries witness data.
func (tx *Tx) HasWitness() bool {
	for i := range tx.Inputs {
		if len(tx.Inputs[i].Witness) != 0 {
			return true
		}
	}
	return false
}

// IsCoinbase reports whether tx has the exact coinbase input shape: a single
// input spending the null prevout.
func (tx *Tx) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].Prev.IsNull()
}

// TxID is the double-SHA256 of the serialization without witnesses.
func (tx *Tx) TxID() Hash {
	return DoubleSha256(tx.SerializeNoWitness())
}

// WTxID is the double-SHA256 of the serialization including witnesses. For a
// transaction with no witness data it equals TxID.
func (tx *Tx) WTxID() Hash {
	return DoubleSha256(tx.Serialize())
}

// Weight returns the block-capacity cost of tx: non-witness bytes count 4x,
// witness bytes 1x.
func (tx *Tx) Weight() (uint64, error) {
	base := uint64(len(tx.SerializeNoWitness()))
	total := uint64(len(tx.Serialize()))
	witness := total - base
	scaled, err := SafeMul(base, WITNESS_SCALE_FACTOR)
	if err != nil {
		return 0, err
	}
	return SafeAdd(scaled, witness)
}

// SerializedSize returns the full serialized byte length including witnesses.
func (tx *Tx) SerializedSize() int {
	return len(tx.Serialize())
}

// CheckStructure enforces the context-free transaction invariants: at least
// one input and one output, no duplicate prevouts, output values within
// MAX_MONEY with a checked sum, and bounded script sizes.
func (tx *Tx) CheckStructure() error {
	if len(tx.Inputs) == 0 {
		return ruleErr(ERR_TX_INVALID, "transaction has no inputs")
	}
	if len(tx.Outputs) == 0 {
		return ruleErr(ERR_TX_INVALID, "transaction has no outputs")
	}
	if len(tx.Inputs) > MAX_TX_INPUTS || len(tx.Outputs) > MAX_TX_OUTPUTS {
		return ruleErr(ERR_TX_INVALID, "input or output count above limit")
	}

	if !tx.IsCoinbase() {
		seen := make(map[OutPoint]struct{}, len(tx.Inputs))
		for i := range tx.Inputs {
			prev := tx.Inputs[i].Prev
			if prev.IsNull() {
				return ruleErr(ERR_TX_INVALID, "null prevout outside coinbase")
			}
			if _, dup := seen[prev]; dup {
				return ruleErr(ERR_DOUBLE_SPEND, "duplicate prevout within transaction")
			}
			seen[prev] = struct{}{}
		}
	}

	var outSum uint64
	for i := range tx.Outputs {
		out := &tx.Outputs[i]
		if err := CheckAmount(out.Value); err != nil {
			return err
		}
		if len(out.ScriptPubKey) > MAX_SCRIPT_PUBKEY_BYTES {
			return ruleErr(ERR_TX_INVALID, "script_pubkey above size limit")
		}
		var err error
		outSum, err = SafeAdd(outSum, out.Value)
		if err != nil {
			return err
		}
	}
	if outSum > MAX_MONEY {
		return ruleErr(ERR_AMOUNT_OVERFLOW, "output sum above max money")
	}
	return nil
}
