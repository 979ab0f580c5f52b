package consensus

import (
	"math"
	"testing"
)

func TestSafeAdd_Overflow(t *testing.T) {
	if _, err := SafeAdd(math.MaxUint64, 1); !IsRuleCode(err, ERR_AMOUNT_OVERFLOW) {
		t.Fatalf("got err=%v, want %s", err, ERR_AMOUNT_OVERFLOW)
	}
	got, err := SafeAdd(math.MaxUint64-10, 10)
	if err != nil || got != math.MaxUint64 {
		t.Fatalf("got=%d err=%v, want max", got, err)
	}
}

func TestSafeSub_Underflow(t *testing.T) {
	if _, err := SafeSub(100, 200); !IsRuleCode(err, ERR_AMOUNT_OVERFLOW) {
		t.Fatalf("got err=%v, want %s", err, ERR_AMOUNT_OVERFLOW)
	}
	if got, err := SafeSub(100, 100); err != nil || got != 0 {
		t.Fatalf("got=%d err=%v, want 0", got, err)
	}
}

func TestSafeMul_Overflow(t *testing.T) {
	if _, err := SafeMul(math.MaxUint64, 2); !IsRuleCode(err, ERR_AMOUNT_OVERFLOW) {
		t.Fatalf("got err=%v, want %s", err, ERR_AMOUNT_OVERFLOW)
	}
	if got, err := SafeMul(1_000, 0); err != nil || got != 0 {
		t.Fatalf("got=%d err=%v, want 0", got, err)
	}
}

func TestSafeDiv_ByZero(t *testing.T) {
	if _, err := SafeDiv(1_000, 0); !IsRuleCode(err, ERR_AMOUNT_OVERFLOW) {
		t.Fatalf("got err=%v, want %s", err, ERR_AMOUNT_OVERFLOW)
	}
}

func TestSumSafe(t *testing.T) {
	got, err := SumSafe(100, 200, 300)
	if err != nil || got != 600 {
		t.Fatalf("got=%d err=%v, want 600", got, err)
	}
	if _, err := SumSafe(math.MaxUint64-100, 200); !IsRuleCode(err, ERR_AMOUNT_OVERFLOW) {
		t.Fatalf("got err=%v, want %s", err, ERR_AMOUNT_OVERFLOW)
	}
}

func TestPercentageSafe(t *testing.T) {
	got, err := PercentageSafe(1_000, 10)
	if err != nil || got != 100 {
		t.Fatalf("got=%d err=%v, want 100", got, err)
	}
	if _, err := PercentageSafe(math.MaxUint64, 200); !IsRuleCode(err, ERR_AMOUNT_OVERFLOW) {
		t.Fatalf("got err=%v, want %s", err, ERR_AMOUNT_OVERFLOW)
	}
}

func TestCheckStructure_OutputSumOverflow(t *testing.T) {
	tx := &Tx{
		Version: 2,
		Inputs: []TxIn{{
			Prev: OutPoint{TxID: Hash{1}, Vout: 0},
		}},
		Outputs: []TxOut{
			{Value: math.MaxUint64 - 100},
			{Value: 200},
		},
	}
	err := tx.CheckStructure()
	if !IsRuleCode(err, ERR_AMOUNT_OVERFLOW) {
		t.Fatalf("got err=%v, want %s", err, ERR_AMOUNT_OVERFLOW)
	}
}

func TestCheckStructure_DuplicateOutpoint(t *testing.T) {
	prev := OutPoint{TxID: Hash{7}, Vout: 3}
	tx := &Tx{
		Version: 2,
		Inputs:  []TxIn{{Prev: prev}, {Prev: prev}},
		Outputs: []TxOut{{Value: 1}},
	}
	if err := tx.CheckStructure(); !IsRuleCode(err, ERR_DOUBLE_SPEND) {
		t.Fatalf("got err=%v, want %s", err, ERR_DOUBLE_SPEND)
	}
}
