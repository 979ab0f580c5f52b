package consensus

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/ripemd160"
)

// Hash is a 32-byte digest. Block hashes, txids and merkle nodes are all
// double-SHA256 digests stored in internal byte order; PoW comparisons
// interpret them big-endian.
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// HashFromHex parses a 64-character hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	var out Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, ruleErr(ERR_PARSE, "hash: invalid hex")
	}
	if len(raw) != 32 {
		return out, ruleErr(ERR_PARSE, "hash: expected 32 bytes")
	}
	copy(out[:], raw)
	return out, nil
}

// Sha256 returns the SHA-256 digest of data.
func Sha256(data []byte) Hash {
	return sha256.Sum256(data)
}

// DoubleSha256 returns SHA-256(SHA-256(data)), the canonical identity hash.
func DoubleSha256(data []byte) Hash {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// Ripemd160 returns the RIPEMD-160 digest of data.
func Ripemd160(data []byte) [20]byte {
	r := ripemd160.New()
	r.Write(data)
	var out [20]byte
	copy(out[:], r.Sum(nil))
	return out
}

// Hash160 returns RIPEMD-160(SHA-256(data)), used by P2PKH and P2SH
// script templates.
func Hash160(data []byte) [20]byte {
	sha := sha256.Sum256(data)
	r := ripemd160.New()
	r.Write(sha[:])
	var out [20]byte
	copy(out[:], r.Sum(nil))
	return out
}
