package consensus

import (
	"math/big"
	"testing"
)

func TestCompactToTarget_GenesisBits(t *testing.T) {
	target, err := CompactToTarget(0x1d00ffff)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := new(big.Int).Lsh(big.NewInt(0x00ffff), 8*(0x1d-3))
	if target.Cmp(want) != 0 {
		t.Fatalf("got %x, want %x", target, want)
	}
}

func TestCompactToTarget_NegativeRejected(t *testing.T) {
	if _, err := CompactToTarget(0x1d800000); !IsRuleCode(err, ERR_DIFFICULTY_MISMATCH) {
		t.Fatalf("got err=%v, want %s", err, ERR_DIFFICULTY_MISMATCH)
	}
}

func TestCompactToTarget_ZeroRejected(t *testing.T) {
	if _, err := CompactToTarget(0); !IsRuleCode(err, ERR_DIFFICULTY_MISMATCH) {
		t.Fatalf("got err=%v, want %s", err, ERR_DIFFICULTY_MISMATCH)
	}
}

func TestTargetCompactRoundTrip(t *testing.T) {
	for _, bits := range []uint32{0x1d00ffff, 0x207fffff, 0x1b0404cb, 0x1c05a3f4} {
		target, err := CompactToTarget(bits)
		if err != nil {
			t.Fatalf("bits %08x: %v", bits, err)
		}
		if got := TargetToCompact(target); got != bits {
			t.Fatalf("bits %08x round-tripped to %08x", bits, got)
		}
	}
}

func TestTargetToHash_BigEndianLayout(t *testing.T) {
	target, err := CompactToTarget(0x207fffff)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	h, err := TargetToHash(target)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if h[0] != 0x7f {
		t.Fatalf("got leading byte %02x, want 7f", h[0])
	}
}
