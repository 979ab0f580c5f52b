// Package crypto provides the signature schemes accepted by Supernova
// consensus: classical ECDSA/secp256k1 and Ed25519, the post-quantum ML-DSA
// (Dilithium) levels and SLH-DSA (SPHINCS+), and an experimental hybrid
// composition gated behind a feature flag.
package crypto

import (
	"encoding/binary"
	"errors"
)

// SchemeID is the consensus-visible tag byte identifying a signature scheme.
// Unknown tags are refused at deserialization, not at execution.
type SchemeID byte

const (
	SchemeSecp256k1   SchemeID = 0x01
	SchemeEd25519     SchemeID = 0x02
	SchemeDilithium2  SchemeID = 0x03 // ML-DSA-44, NIST level 1
	SchemeDilithium3  SchemeID = 0x04 // ML-DSA-65, NIST level 3
	SchemeDilithium5  SchemeID = 0x05 // ML-DSA-87, NIST level 5
	SchemeSphincsPlus SchemeID = 0x06 // SLH-DSA-SHAKE-128s
	SchemeFalcon      SchemeID = 0x07 // reserved; not part of v1 consensus
	SchemeHybrid      SchemeID = 0x08 // classical || quantum, both must verify
)

var (
	ErrUnsupportedScheme = errors.New("crypto: unsupported signature scheme")
	ErrInvalidPublicKey  = errors.New("crypto: invalid public key")
	ErrInvalidSignature  = errors.New("crypto: invalid signature encoding")
	ErrQuantumRequired   = errors.New("crypto: quantum-resistant signature required")
	ErrSchemeGatedOff    = errors.New("crypto: scheme disabled by feature gate")
)

// IsQuantumResistant reports whether id is a post-quantum scheme. Hybrid
// counts: its quantum component must verify for the whole to pass.
func (id SchemeID) IsQuantumResistant() bool {
	switch id {
	case SchemeDilithium2, SchemeDilithium3, SchemeDilithium5, SchemeSphincsPlus, SchemeHybrid:
		return true
	default:
		return false
	}
}

// IsClassical reports whether id is a pre-quantum scheme.
func (id SchemeID) IsClassical() bool {
	return id == SchemeSecp256k1 || id == SchemeEd25519
}

// ParseSchemeID validates a tag byte read off the wire.
func ParseSchemeID(b byte) (SchemeID, error) {
	id := SchemeID(b)
	switch id {
	case SchemeSecp256k1, SchemeEd25519, SchemeDilithium2, SchemeDilithium3,
		SchemeDilithium5, SchemeSphincsPlus, SchemeFalcon, SchemeHybrid:
		return id, nil
	default:
		return 0, ErrUnsupportedScheme
	}
}

func (id SchemeID) String() string {
	switch id {
	case SchemeSecp256k1:
		return "secp256k1"
	case SchemeEd25519:
		return "ed25519"
	case SchemeDilithium2:
		return "ml-dsa-44"
	case SchemeDilithium3:
		return "ml-dsa-65"
	case SchemeDilithium5:
		return "ml-dsa-87"
	case SchemeSphincsPlus:
		return "slh-dsa-shake-128s"
	case SchemeFalcon:
		return "falcon"
	case SchemeHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// Hybrid payloads concatenate a classical and a quantum component, each
// length-prefixed with u16le, preceded by the component scheme tags.
//
//	tag_classical(1) || tag_quantum(1) || c_len(2) || classical || q_len(2) || quantum
//
// The same framing is used for hybrid public keys and hybrid signatures.
type hybridParts struct {
	classicalID SchemeID
	quantumID   SchemeID
	classical   []byte
	quantum     []byte
}

func splitHybrid(b []byte) (*hybridParts, error) {
	if len(b) < 2+2+2 {
		return nil, ErrInvalidSignature
	}
	cid, err := ParseSchemeID(b[0])
	if err != nil {
		return nil, err
	}
	qid, err := ParseSchemeID(b[1])
	if err != nil {
		return nil, err
	}
	if !cid.IsClassical() || !qid.IsQuantumResistant() || qid == SchemeHybrid {
		return nil, ErrInvalidSignature
	}
	off := 2
	cLen := int(binary.LittleEndian.Uint16(b[off:]))
	off += 2
	if off+cLen+2 > len(b) {
		return nil, ErrInvalidSignature
	}
	classical := b[off : off+cLen]
	off += cLen
	qLen := int(binary.LittleEndian.Uint16(b[off:]))
	off += 2
	if off+qLen != len(b) {
		return nil, ErrInvalidSignature
	}
	return &hybridParts{
		classicalID: cid,
		quantumID:   qid,
		classical:   classical,
		quantum:     b[off:],
	}, nil
}
