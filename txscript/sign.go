package txscript

import (
	"supernova.dev/node/consensus"
	"supernova.dev/node/crypto"
)

// Signing helpers used by the miner, the test harness and wallet tooling.
// Consensus never calls these.

// taggedSig appends the scheme tag byte that VerifyInput strips back off.
func taggedSig(key *crypto.KeyPair, digest consensus.Hash) ([]byte, error) {
	sig, err := key.Sign(digest[:])
	if err != nil {
		return nil, err
	}
	return append(sig, byte(key.Scheme)), nil
}

// SignatureScript builds a P2PKH scriptSig for tx.Inputs[inputIndex]
// spending prevScript.
func SignatureScript(tx *consensus.Tx, inputIndex int, prevScript []byte, key *crypto.KeyPair) ([]byte, error) {
	digest, err := LegacySighash(tx, inputIndex, prevScript)
	if err != nil {
		return nil, err
	}
	sig, err := taggedSig(key, digest)
	if err != nil {
		return nil, err
	}
	return BuildScriptSig(sig, key.Public), nil
}

// WitnessSignature builds the two-item P2WPKH witness stack.
func WitnessSignature(tx *consensus.Tx, inputIndex int, amount uint64, key *crypto.KeyPair) ([][]byte, error) {
	pkh := consensus.Hash160(key.Public)
	scriptCode := PayToPubKeyHash(pkh)
	digest, err := WitnessSighash(tx, inputIndex, scriptCode, amount)
	if err != nil {
		return nil, err
	}
	sig, err := taggedSig(key, digest)
	if err != nil {
		return nil, err
	}
	return [][]byte{sig, key.Public}, nil
}

// QuantumWitnessSignature builds the witness for a v1 quantum program. The
// digest committed to is the BIP143-style witness sighash over the program
// script itself.
func QuantumWitnessSignature(tx *consensus.Tx, inputIndex int, prevScript []byte, amount uint64, key *crypto.KeyPair) ([][]byte, error) {
	digest, err := WitnessSighash(tx, inputIndex, prevScript, amount)
	if err != nil {
		return nil, err
	}
	sig, err := taggedSig(key, digest)
	if err != nil {
		return nil, err
	}
	return [][]byte{sig, key.Public}, nil
}
