package chatdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppleToTime_BothScales(t *testing.T) {
	want := time.Unix(700000000+978307200, 0)
	assert.True(t, want.Equal(AppleToTime(700_000_000)))
	assert.True(t, want.Equal(AppleToTime(700_000_000_000_000_000)))
	assert.True(t, AppleToTime(0).IsZero())
}

func TestAppleToTime_Threshold(t *testing.T) {
	// Exactly at the threshold the value is still seconds.
	assert.Equal(t, int64(10_000_000_000+AppleEpochOffset), AppleToTime(10_000_000_000).Unix())
	assert.True(t, time.Unix(AppleEpochOffset+10, 1).Equal(AppleToTime(10_000_000_001)))
}

func TestTimeToApple_RoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 250_000_000, time.UTC)
	raw := TimeToApple(ts)

	assert.Greater(t, raw, int64(nanosecondThreshold))
	assert.True(t, ts.Equal(AppleToTime(raw)))
}
