package txscript

import (
	"encoding/binary"

	"supernova.dev/node/consensus"
)

// ScriptClass labels the standard output templates the mempool relays and
// the interpreter fast-paths. Classification is by exact byte shape.
type ScriptClass int

const (
	NonStandard ScriptClass = iota
	PubKeyHash              // OP_DUP OP_HASH160 <20> OP_EQUALVERIFY OP_CHECKSIG
	ScriptHash              // OP_HASH160 <20> OP_EQUAL
	WitnessPubKeyHash       // OP_0 <20>
	WitnessScriptHash       // OP_0 <32>
	QuantumWitness          // OP_1 <32>, program = SHA256(pubkey)
	NullData                // OP_RETURN ...
)

func (c ScriptClass) String() string {
	switch c {
	case PubKeyHash:
		return "pubkeyhash"
	case ScriptHash:
		return "scripthash"
	case WitnessPubKeyHash:
		return "witness_v0_keyhash"
	case WitnessScriptHash:
		return "witness_v0_scripthash"
	case QuantumWitness:
		return "witness_v1_quantum"
	case NullData:
		return "nulldata"
	default:
		return "nonstandard"
	}
}

// ClassifyScript identifies the template of a script_pubkey.
func ClassifyScript(script []byte) ScriptClass {
	switch {
	case isPayToPubKeyHash(script):
		return PubKeyHash
	case isPayToScriptHash(script):
		return ScriptHash
	case isWitnessProgram(script, OP_0, 20):
		return WitnessPubKeyHash
	case isWitnessProgram(script, OP_0, 32):
		return WitnessScriptHash
	case isWitnessProgram(script, OP_1, 32):
		return QuantumWitness
	case len(script) >= 1 && script[0] == OP_RETURN:
		return NullData
	default:
		return NonStandard
	}
}

// IsStandard reports whether the mempool relays outputs of this shape.
func IsStandard(script []byte) bool {
	return ClassifyScript(script) != NonStandard
}

func isPayToPubKeyHash(script []byte) bool {
	return len(script) == 25 &&
		script[0] == OP_DUP &&
		script[1] == OP_HASH160 &&
		script[2] == 20 &&
		script[23] == OP_EQUALVERIFY &&
		script[24] == OP_CHECKSIG
}

func isPayToScriptHash(script []byte) bool {
	return len(script) == 23 &&
		script[0] == OP_HASH160 &&
		script[1] == 20 &&
		script[22] == OP_EQUAL
}

func isWitnessProgram(script []byte, versionOp byte, programLen int) bool {
	return len(script) == 2+programLen &&
		script[0] == versionOp &&
		int(script[1]) == programLen
}

// witnessProgram extracts the version opcode and program bytes from a
// witness-program script_pubkey.
func witnessProgram(script []byte) (version byte, program []byte) {
	return script[0], script[2:]
}

// PayToPubKeyHash builds the canonical 25-byte P2PKH script.
func PayToPubKeyHash(pubKeyHash [20]byte) []byte {
	out := make([]byte, 0, 25)
	out = append(out, OP_DUP, OP_HASH160, 20)
	out = append(out, pubKeyHash[:]...)
	return append(out, OP_EQUALVERIFY, OP_CHECKSIG)
}

// PayToScriptHash builds the canonical 23-byte P2SH script.
func PayToScriptHash(scriptHash [20]byte) []byte {
	out := make([]byte, 0, 23)
	out = append(out, OP_HASH160, 20)
	out = append(out, scriptHash[:]...)
	return append(out, OP_EQUAL)
}

// PayToWitnessPubKeyHash builds the 22-byte v0 key-hash witness program.
func PayToWitnessPubKeyHash(pubKeyHash [20]byte) []byte {
	out := make([]byte, 0, 22)
	out = append(out, OP_0, 20)
	return append(out, pubKeyHash[:]...)
}

// PayToWitnessScriptHash builds the 34-byte v0 script-hash witness program.
func PayToWitnessScriptHash(scriptHash [32]byte) []byte {
	out := make([]byte, 0, 34)
	out = append(out, OP_0, 32)
	return append(out, scriptHash[:]...)
}

// PayToQuantumWitness builds the 34-byte v1 quantum program committing to
// SHA256(pubkey). Post-quantum public keys are too large to embed, so the
// program carries their hash and the witness reveals the key.
func PayToQuantumWitness(pubkey []byte) []byte {
	h := consensus.Sha256(pubkey)
	out := make([]byte, 0, 34)
	out = append(out, OP_1, 32)
	return append(out, h[:]...)
}

// pushData returns the minimal push encoding of data.
func pushData(data []byte) []byte {
	switch {
	case len(data) == 0:
		return []byte{OP_0}
	case len(data) < OP_PUSHDATA1:
		return append([]byte{byte(len(data))}, data...)
	case len(data) <= 0xff:
		return append([]byte{OP_PUSHDATA1, byte(len(data))}, data...)
	case len(data) <= 0xffff:
		var l [2]byte
		binary.LittleEndian.PutUint16(l[:], uint16(len(data)))
		return append([]byte{OP_PUSHDATA2, l[0], l[1]}, data...)
	default:
		var l [4]byte
		binary.LittleEndian.PutUint32(l[:], uint32(len(data)))
		return append([]byte{OP_PUSHDATA4, l[0], l[1], l[2], l[3]}, data...)
	}
}

// BuildScriptSig concatenates minimal pushes, the only content a scriptSig
// may carry.
func BuildScriptSig(items ...[]byte) []byte {
	var out []byte
	for _, item := range items {
		out = append(out, pushData(item)...)
	}
	return out
}

// HTLCScript builds the hash-and-time locked contract used by the atomic
// swap layer:
//
//	OP_IF
//	  OP_HASH160 <payment_hash> OP_EQUALVERIFY OP_DUP OP_HASH160 <claim_pkh>
//	OP_ELSE
//	  <timeout> OP_CHECKLOCKTIMEVERIFY OP_DROP OP_DUP OP_HASH160 <refund_pkh>
//	OP_ENDIF
//	OP_EQUALVERIFY OP_CHECKSIG
func HTLCScript(paymentHash [20]byte, claimPKH [20]byte, refundPKH [20]byte, timeout uint32) []byte {
	out := make([]byte, 0, 90)
	out = append(out, OP_IF)
	out = append(out, OP_HASH160, 20)
	out = append(out, paymentHash[:]...)
	out = append(out, OP_EQUALVERIFY, OP_DUP, OP_HASH160, 20)
	out = append(out, claimPKH[:]...)
	out = append(out, OP_ELSE)
	out = append(out, pushData(scriptNumBytes(int64(timeout)))...)
	out = append(out, OP_CHECKLOCKTIMEVERIFY, OP_DROP, OP_DUP, OP_HASH160, 20)
	out = append(out, refundPKH[:]...)
	out = append(out, OP_ENDIF)
	out = append(out, OP_EQUALVERIFY, OP_CHECKSIG)
	return out
}

// MatchHTLC reports whether script has the exact HTLC shape and returns its
// fields when it does.
func MatchHTLC(script []byte) (paymentHash, claimPKH, refundPKH [20]byte, timeout uint32, ok bool) {
	ops, err := parseScript(script)
	if err != nil || len(ops) != 17 {
		return
	}
	shape := []byte{
		OP_IF, OP_HASH160, 0, OP_EQUALVERIFY, OP_DUP, OP_HASH160, 0,
		OP_ELSE, 0, OP_CHECKLOCKTIMEVERIFY, OP_DROP, OP_DUP, OP_HASH160, 0,
		OP_ENDIF, OP_EQUALVERIFY, OP_CHECKSIG,
	}
	for i, want := range shape {
		if want == 0 {
			if !ops[i].isPush() {
				return
			}
			continue
		}
		if ops[i].op != want {
			return
		}
	}
	if len(ops[2].data) != 20 || len(ops[6].data) != 20 || len(ops[13].data) != 20 {
		return
	}
	n, err := parseScriptNum(ops[8].pushValue(), 5)
	if err != nil || n < 0 || n > 0xffffffff {
		return
	}
	copy(paymentHash[:], ops[2].data)
	copy(claimPKH[:], ops[6].data)
	copy(refundPKH[:], ops[13].data)
	return paymentHash, claimPKH, refundPKH, uint32(n), true
}
