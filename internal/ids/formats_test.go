package ids

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"20s", 20000},
		{"20000", 20000},
		{"1h", 3_600_000},
		{"500ms", 500},
		{"0", 0},
		{"", 0},
	}
	for _, c := range cases {
		got, err := ParseDuration(c.in)
		require.NoError(t, err)
		require.Equal(t, c.want, got, c.in)
	}
}

func TestParseDurationInvalid(t *testing.T) {
	_, err := ParseDuration("banana")
	require.Error(t, err)
}

func TestFormatDurationRoundTrip(t *testing.T) {
	for _, ms := range []int64{0, 500, 20000, 3_600_000, 1234} {
		s := FormatDuration(ms)
		got, err := ParseDuration(s)
		require.NoError(t, err)
		require.Equal(t, ms, got)
	}
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"true", "YES", "On", "1"} {
		b, err := ParseBool(s)
		require.NoError(t, err)
		require.True(t, b)
	}
	for _, s := range []string{"false", "NO", "Off", "0"} {
		b, err := ParseBool(s)
		require.NoError(t, err)
		require.False(t, b)
	}
	_, err := ParseBool("maybe")
	require.Error(t, err)
}

func TestScoreRoundTrip(t *testing.T) {
	for n := -InfinityMagnitude; n <= InfinityMagnitude; n += 12345 {
		got, err := ParseScore(FormatScore(n))
		require.NoError(t, err)
		require.Equal(t, n, got)
	}
}

func TestScoreSentinels(t *testing.T) {
	pos, err := ParseScore("INFINITY")
	require.NoError(t, err)
	require.Equal(t, InfinityMagnitude, pos)

	pos2, err := ParseScore("+INFINITY")
	require.NoError(t, err)
	require.Equal(t, InfinityMagnitude, pos2)

	neg, err := ParseScore("-INFINITY")
	require.NoError(t, err)
	require.Equal(t, -InfinityMagnitude, neg)

	require.Equal(t, "INFINITY", FormatScore(InfinityMagnitude))
	require.Equal(t, "-INFINITY", FormatScore(-InfinityMagnitude))
}

func TestCompareVersions(t *testing.T) {
	require.Equal(t, 1, CompareVersions("1.1.15", "1.1.2"))
	require.Equal(t, -1, CompareVersions("1.1.2", "1.1.15"))
	require.Equal(t, 0, CompareVersions("1.2", "1.2.0"))
}

func TestExpand(t *testing.T) {
	require.Equal(t, "1", Expand("value++", ""))
	require.Equal(t, "6", Expand("value++", "5"))
	require.Equal(t, "8", Expand("value+=3", "5"))
	require.Equal(t, "2", Expand("value+=2", "notanumber"))
	require.Equal(t, "literal", Expand("literal", "5"))
}

func TestOperationKeyRoundTrip(t *testing.T) {
	key := OperationKey("myrsc", "monitor", 5000)
	require.Equal(t, "myrsc_monitor_5000", key)

	rsc, op, interval, err := ParseOperationKey(key)
	require.NoError(t, err)
	require.Equal(t, "myrsc", rsc)
	require.Equal(t, "monitor", op)
	require.Equal(t, int64(5000), interval)
}
