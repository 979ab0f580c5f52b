// Package address implements the bech32 text encoding of Supernova output
// scripts. Mainnet addresses use the "nova" human-readable part, testnet
// "tnova". The leading version byte distinguishes classical witness
// programs (0) from quantum programs (1); the program length selects the
// key-hash (20) or script-hash/quantum (32) form.
package address

import (
	"errors"

	"github.com/decred/dcrd/bech32"

	"supernova.dev/node/txscript"
)

var (
	ErrInvalidAddress = errors.New("address: malformed address")
	ErrWrongNetwork   = errors.New("address: wrong network prefix")
)

// Encode renders a witness program as a bech32 address under hrp.
func Encode(hrp string, version byte, program []byte) (string, error) {
	if version > 16 {
		return "", ErrInvalidAddress
	}
	if len(program) != 20 && len(program) != 32 {
		return "", ErrInvalidAddress
	}
	converted, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", err
	}
	data := append([]byte{version}, converted...)
	return bech32.Encode(hrp, data)
}

// Decode parses addr, enforcing the expected hrp, and returns the witness
// version and program.
func Decode(addr string, wantHRP string) (byte, []byte, error) {
	hrp, data, err := bech32.Decode(addr)
	if err != nil {
		return 0, nil, ErrInvalidAddress
	}
	if hrp != wantHRP {
		return 0, nil, ErrWrongNetwork
	}
	if len(data) < 1 {
		return 0, nil, ErrInvalidAddress
	}
	version := data[0]
	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return 0, nil, ErrInvalidAddress
	}
	if version > 16 || (len(program) != 20 && len(program) != 32) {
		return 0, nil, ErrInvalidAddress
	}
	return version, program, nil
}

// PayScript converts a decoded address back into the script_pubkey it pays
// to.
func PayScript(version byte, program []byte) ([]byte, error) {
	switch {
	case version == 0 && len(program) == 20:
		var pkh [20]byte
		copy(pkh[:], program)
		return txscript.PayToWitnessPubKeyHash(pkh), nil
	case version == 0 && len(program) == 32:
		var sh [32]byte
		copy(sh[:], program)
		return txscript.PayToWitnessScriptHash(sh), nil
	case version == 1 && len(program) == 32:
		out := make([]byte, 0, 34)
		out = append(out, txscript.OP_1, 32)
		return append(out, program...), nil
	default:
		return nil, ErrInvalidAddress
	}
}

// FromScript renders the address for a standard script_pubkey, when one
// exists.
func FromScript(hrp string, script []byte) (string, error) {
	switch txscript.ClassifyScript(script) {
	case txscript.WitnessPubKeyHash, txscript.WitnessScriptHash:
		return Encode(hrp, 0, script[2:])
	case txscript.QuantumWitness:
		return Encode(hrp, 1, script[2:])
	default:
		return "", ErrInvalidAddress
	}
}
