package txscript

import (
	"encoding/binary"

	"supernova.dev/node/consensus"
)

// sighashDomainTag versions the signature message. Bumping the tag
// invalidates every existing signature, so it changes only with a consensus
// version.
const sighashDomainTag = "supernova/sighash/v1"

// LegacySighash computes the signed digest for a non-witness input: the
// transaction with every scriptSig emptied except the signed input's, which
// is replaced by scriptCode (the previous output's script, or the redeem
// script for P2SH), double-SHA256'd under the domain tag.
func LegacySighash(tx *consensus.Tx, inputIndex int, scriptCode []byte) (consensus.Hash, error) {
	if inputIndex < 0 || inputIndex >= len(tx.Inputs) {
		return consensus.Hash{}, scriptErr("sighash: input index out of range")
	}
	clone := consensus.Tx{
		Version:  tx.Version,
		Inputs:   make([]consensus.TxIn, len(tx.Inputs)),
		Outputs:  tx.Outputs,
		Locktime: tx.Locktime,
	}
	for i := range tx.Inputs {
		clone.Inputs[i] = consensus.TxIn{
			Prev:     tx.Inputs[i].Prev,
			Sequence: tx.Inputs[i].Sequence,
		}
		if i == inputIndex {
			clone.Inputs[i].ScriptSig = scriptCode
		}
	}
	preimage := append([]byte(sighashDomainTag), clone.SerializeNoWitness()...)
	return consensus.DoubleSha256(preimage), nil
}

// WitnessSighash computes the BIP143-style digest for a witness input. The
// preimage commits to the hashes of all prevouts, all sequences and all
// outputs, plus the spent outpoint, the script code, the spent amount, the
// input's sequence, and the locktime, all under the domain tag. Quantum
// inputs sign the same digest; the scheme tag byte travels with the
// signature, not the message.
func WitnessSighash(tx *consensus.Tx, inputIndex int, scriptCode []byte, amount uint64) (consensus.Hash, error) {
	if inputIndex < 0 || inputIndex >= len(tx.Inputs) {
		return consensus.Hash{}, scriptErr("sighash: input index out of range")
	}

	prevouts := make([]byte, 0, len(tx.Inputs)*36)
	sequences := make([]byte, 0, len(tx.Inputs)*4)
	for i := range tx.Inputs {
		in := &tx.Inputs[i]
		prevouts = append(prevouts, in.Prev.TxID[:]...)
		prevouts = binary.LittleEndian.AppendUint32(prevouts, in.Prev.Vout)
		sequences = binary.LittleEndian.AppendUint32(sequences, in.Sequence)
	}
	hashPrevouts := consensus.DoubleSha256(prevouts)
	hashSequences := consensus.DoubleSha256(sequences)

	outputs := make([]byte, 0, len(tx.Outputs)*40)
	for i := range tx.Outputs {
		o := &tx.Outputs[i]
		outputs = binary.LittleEndian.AppendUint64(outputs, o.Value)
		outputs = consensus.AppendCompactSize(outputs, uint64(len(o.ScriptPubKey)))
		outputs = append(outputs, o.ScriptPubKey...)
	}
	hashOutputs := consensus.DoubleSha256(outputs)

	in := &tx.Inputs[inputIndex]
	preimage := make([]byte, 0, 256)
	preimage = append(preimage, []byte(sighashDomainTag)...)
	preimage = binary.LittleEndian.AppendUint32(preimage, tx.Version)
	preimage = append(preimage, hashPrevouts[:]...)
	preimage = append(preimage, hashSequences[:]...)
	preimage = append(preimage, in.Prev.TxID[:]...)
	preimage = binary.LittleEndian.AppendUint32(preimage, in.Prev.Vout)
	preimage = consensus.AppendCompactSize(preimage, uint64(len(scriptCode)))
	preimage = append(preimage, scriptCode...)
	preimage = binary.LittleEndian.AppendUint64(preimage, amount)
	preimage = binary.LittleEndian.AppendUint32(preimage, in.Sequence)
	preimage = append(preimage, hashOutputs[:]...)
	preimage = binary.LittleEndian.AppendUint32(preimage, tx.Locktime)

	return consensus.DoubleSha256(preimage), nil
}
