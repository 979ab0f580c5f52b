package consensus

import (
	"math"
	"testing"
)

func TestBaseSubsidy_Schedule(t *testing.T) {
	tests := []struct {
		height uint64
		want   uint64
	}{
		{0, 50 * NOVAS_PER_NOVA},
		{1, 50 * NOVAS_PER_NOVA},
		{HALVING_INTERVAL - 1, 50 * NOVAS_PER_NOVA},
		{HALVING_INTERVAL, 25 * NOVAS_PER_NOVA},
		{2 * HALVING_INTERVAL, (50 * NOVAS_PER_NOVA) >> 2},
		{63 * HALVING_INTERVAL, (50 * NOVAS_PER_NOVA) >> 63},
		{64 * HALVING_INTERVAL, 0},
		{1_000 * HALVING_INTERVAL, 0},
	}
	for _, tc := range tests {
		if got := BaseSubsidy(tc.height); got != tc.want {
			t.Fatalf("height %d: got %d, want %d", tc.height, got, tc.want)
		}
	}
}

func TestEnvironmentalBonus_FullStack(t *testing.T) {
	base := uint64(50 * NOVAS_PER_NOVA)
	// 100% renewable + efficiency + carbon negative = 20+10+45 clamped 75.
	bonus := EnvironmentalBonus(base, 100, ENV_FLAG_EFFICIENCY|ENV_FLAG_CARBON_NEGATIVE)
	if want := base * MAX_BONUS_PERCENT / 100; bonus != want {
		t.Fatalf("got %d, want %d", bonus, want)
	}
}

func TestEnvironmentalBonus_RenewableScales(t *testing.T) {
	base := uint64(50 * NOVAS_PER_NOVA)
	if got, want := EnvironmentalBonus(base, 50, 0), base*10/100; got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
	if got := EnvironmentalBonus(base, 0, 0); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
}

func TestEnvironmentalBonus_ClampsRenewableAbove100(t *testing.T) {
	base := uint64(50 * NOVAS_PER_NOVA)
	if EnvironmentalBonus(base, 255, 0) != EnvironmentalBonus(base, 100, 0) {
		t.Fatalf("renewable fraction above 100%% must clamp, not panic or scale")
	}
}

func TestEnvironmentalBonus_OverflowKeepsBase(t *testing.T) {
	// A base near u64 max overflows the percent multiply; the bonus
	// degrades to zero so the caller keeps the base, never a wrap.
	if got := EnvironmentalBonus(math.MaxUint64, 100, ENV_FLAG_CARBON_NEGATIVE); got != 0 {
		t.Fatalf("got %d, want 0 on overflow", got)
	}
}

func TestMaxCoinbaseValue(t *testing.T) {
	fees := uint64(12_345)
	got, err := MaxCoinbaseValue(1, 100, ENV_FLAG_EFFICIENCY|ENV_FLAG_CARBON_NEGATIVE, fees)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	base := uint64(50 * NOVAS_PER_NOVA)
	want := base + base*75/100 + fees
	if got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestCoinbaseScriptSig_RoundTrip(t *testing.T) {
	for _, height := range []uint64{0, 1, 255, 256, 840_000, 1 << 40} {
		script := BuildCoinbaseScriptSig(height, 73, ENV_FLAG_EFFICIENCY, 9, []byte("gm"))
		gotHeight, renewable, flags, err := ParseCoinbaseScriptSig(script)
		if err != nil {
			t.Fatalf("height %d: %v", height, err)
		}
		if gotHeight != height || renewable != 73 || flags != ENV_FLAG_EFFICIENCY {
			t.Fatalf("height %d: got (%d, %d, %d)", height, gotHeight, renewable, flags)
		}
	}
}

func TestParseCoinbaseScriptSig_Malformed(t *testing.T) {
	for _, script := range [][]byte{nil, {0x01}, {0x09, 1, 2, 3}} {
		if _, _, _, err := ParseCoinbaseScriptSig(script); err == nil {
			t.Fatalf("malformed script %x accepted", script)
		}
	}
}

func TestNewCoinbaseTx_Shape(t *testing.T) {
	tx := NewCoinbaseTx(42, 50*NOVAS_PER_NOVA, []byte{0x51}, 0, 0, 7)
	if !tx.IsCoinbase() {
		t.Fatalf("not recognized as coinbase")
	}
	height, _, _, err := ParseCoinbaseScriptSig(tx.Inputs[0].ScriptSig)
	if err != nil || height != 42 {
		t.Fatalf("height commitment lost: %d %v", height, err)
	}
}
