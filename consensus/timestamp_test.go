package consensus

import "testing"

func TestMedianTimestamp(t *testing.T) {
	ts := []uint64{5, 1, 9, 3, 7}
	if got := MedianTimestamp(ts); got != 5 {
		t.Fatalf("got %d, want 5", got)
	}
	// Input must stay untouched.
	if ts[0] != 5 || ts[4] != 7 {
		t.Fatalf("input mutated")
	}
}

func TestCheckTimestamp_MedianPastRule(t *testing.T) {
	prev := make([]uint64, MEDIAN_TIME_SPAN)
	for i := range prev {
		prev[i] = uint64(1_000 + i*10)
	}
	median := MedianTimestamp(prev)

	if err := CheckTimestamp(median, prev, 0); !IsRuleCode(err, ERR_TIMESTAMP_RANGE) {
		t.Fatalf("timestamp equal to median accepted: %v", err)
	}
	if err := CheckTimestamp(median+1, prev, 0); err != nil {
		t.Fatalf("timestamp above median rejected: %v", err)
	}
}

func TestCheckTimestamp_FutureDrift(t *testing.T) {
	prev := make([]uint64, MEDIAN_TIME_SPAN)
	for i := range prev {
		prev[i] = uint64(1_000 + i)
	}
	localTime := uint64(10_000)
	if err := CheckTimestamp(localTime+MAX_FUTURE_DRIFT, prev, localTime); err != nil {
		t.Fatalf("timestamp at drift bound rejected: %v", err)
	}
	if err := CheckTimestamp(localTime+MAX_FUTURE_DRIFT+1, prev, localTime); !IsRuleCode(err, ERR_TIMESTAMP_RANGE) {
		t.Fatalf("timestamp past drift bound accepted: %v", err)
	}
}

func TestCheckTimestamp_RelaxedEarlyChain(t *testing.T) {
	// Fewer than 11 ancestors: only the genesis lower bound applies.
	prev := []uint64{1_000, 5_000, 4_000}
	if err := CheckTimestamp(1_001, prev, 0); err != nil {
		t.Fatalf("early-chain timestamp above genesis rejected: %v", err)
	}
	if err := CheckTimestamp(1_000, prev, 0); !IsRuleCode(err, ERR_TIMESTAMP_RANGE) {
		t.Fatalf("early-chain timestamp at genesis accepted: %v", err)
	}
}

func TestCheckTimestamp_NoAncestors(t *testing.T) {
	if err := CheckTimestamp(1, nil, 0); !IsRuleCode(err, ERR_TIMESTAMP_RANGE) {
		t.Fatalf("got err=%v, want %s", err, ERR_TIMESTAMP_RANGE)
	}
}
