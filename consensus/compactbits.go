package consensus

import "math/big"

// Compact bits pack a 256-bit PoW target into 32 bits: the high byte is a
// base-256 exponent, the low 24 bits a mantissa. The encoding matches
// Bitcoin's, including the sign-bit quirk: a mantissa with bit 0x00800000
// set is shifted down and the exponent bumped so targets always decode
// non-negative.

// CompactToTarget expands bits to the full target. It returns an error for
// a zero or negative target, which can never be satisfied by a hash.
func CompactToTarget(bits uint32) (*big.Int, error) {
	mantissa := bits & 0x007fffff
	exponent := uint(bits >> 24)
	if bits&0x00800000 != 0 {
		return nil, ruleErr(ERR_DIFFICULTY_MISMATCH, "compact bits: negative target")
	}
	var target *big.Int
	if exponent <= 3 {
		target = big.NewInt(int64(mantissa >> (8 * (3 - exponent))))
	} else {
		target = big.NewInt(int64(mantissa))
		target.Lsh(target, 8*(exponent-3))
	}
	if target.Sign() <= 0 {
		return nil, ruleErr(ERR_DIFFICULTY_MISMATCH, "compact bits: zero target")
	}
	return target, nil
}

// TargetToCompact packs target into compact bits, normalizing the mantissa
// so the high bit of the top byte is clear.
func TargetToCompact(target *big.Int) uint32 {
	if target.Sign() <= 0 {
		return 0
	}
	exponent := uint32(len(target.Bytes()))
	var mantissa uint32
	if exponent <= 3 {
		mantissa = uint32(target.Uint64()) << (8 * (3 - exponent))
	} else {
		mantissa = uint32(new(big.Int).Rsh(target, uint(8*(exponent-3))).Uint64())
	}
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}
	return exponent<<24 | mantissa
}

// TargetToHash writes target as a 32-byte big-endian value, the form PoW
// comparisons use.
func TargetToHash(target *big.Int) (Hash, error) {
	var out Hash
	b := target.Bytes()
	if target.Sign() < 0 || len(b) > 32 {
		return out, ruleErr(ERR_DIFFICULTY_MISMATCH, "target: out of range")
	}
	copy(out[32-len(b):], b)
	return out, nil
}
