package consensus

import "sort"

const (
	// MEDIAN_TIME_SPAN is the number of trailing block timestamps whose
	// median lower-bounds a new block's timestamp.
	MEDIAN_TIME_SPAN = 11

	// MAX_FUTURE_DRIFT bounds how far ahead of local time a header
	// timestamp may run, in seconds.
	MAX_FUTURE_DRIFT = 2 * 3_600
)

// MedianTimestamp returns the median of the given timestamps. The slice is
// not modified. An empty slice yields zero.
func MedianTimestamp(timestamps []uint64) uint64 {
	if len(timestamps) == 0 {
		return 0
	}
	sorted := make([]uint64, len(timestamps))
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2]
}

// CheckTimestamp enforces the median-past-time rule and the future drift
// bound. prevTimestamps holds up to MEDIAN_TIME_SPAN trailing best-chain
// timestamps, oldest first; while the chain is shorter than the span the
// rule relaxes to "after the genesis timestamp", which is prevTimestamps[0].
func CheckTimestamp(timestamp uint64, prevTimestamps []uint64, localTime uint64) error {
	if len(prevTimestamps) == 0 {
		return ruleErr(ERR_TIMESTAMP_RANGE, "no ancestor timestamps")
	}
	if len(prevTimestamps) < MEDIAN_TIME_SPAN {
		if timestamp <= prevTimestamps[0] {
			return ruleErr(ERR_TIMESTAMP_RANGE, "timestamp not after genesis")
		}
	} else if timestamp <= MedianTimestamp(prevTimestamps) {
		return ruleErr(ERR_TIMESTAMP_RANGE, "timestamp not after median past time")
	}
	if localTime != 0 && timestamp > localTime+MAX_FUTURE_DRIFT {
		return ruleErr(ERR_TIMESTAMP_RANGE, "timestamp too far in the future")
	}
	return nil
}
