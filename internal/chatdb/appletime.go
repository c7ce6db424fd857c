package chatdb

import "time"

// AppleEpochOffset is the number of seconds between the Unix epoch and
// 2001-01-01T00:00:00Z, the epoch of the message history store.
const AppleEpochOffset = 978307200

// nanosecondThreshold separates the two encodings found in the wild: raw
// values above it are nanoseconds since 2001, the rest are seconds.
const nanosecondThreshold = 10_000_000_000

// AppleToTime converts a raw store timestamp to a time.Time. Zero maps to
// the zero time.
func AppleToTime(raw int64) time.Time {
	if raw == 0 {
		return time.Time{}
	}
	if raw > nanosecondThreshold {
		return time.Unix(AppleEpochOffset, 0).Add(time.Duration(raw))
	}
	return time.Unix(raw+AppleEpochOffset, 0)
}

// TimeToApple converts a wall-clock time to the store's native encoding
// (nanoseconds since 2001).
func TimeToApple(t time.Time) int64 {
	return t.UnixNano() - AppleEpochOffset*int64(time.Second)
}
