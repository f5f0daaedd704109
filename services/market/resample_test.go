package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResampleAggregatesBuckets(t *testing.T) {
	// six 5m bars = two 15m bars
	series := Series{
		{Timestamp: 0, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10},
		{Timestamp: 300_000, Open: 100.5, High: 103, Low: 100, Close: 102, Volume: 20},
		{Timestamp: 600_000, Open: 102, High: 102.5, Low: 98, Close: 99, Volume: 30},
		{Timestamp: 900_000, Open: 99, High: 100, Low: 98.5, Close: 99.5, Volume: 5},
		{Timestamp: 1_200_000, Open: 99.5, High: 104, Low: 99, Close: 103, Volume: 15},
		{Timestamp: 1_500_000, Open: 103, High: 103.5, Low: 101, Close: 102, Volume: 25},
	}

	out, err := Resample(series, 300_000, 900_000)
	require.NoError(t, err)
	require.Len(t, out, 2)

	first := out[0]
	assert.Equal(t, int64(0), first.Timestamp)
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 103.0, first.High)
	assert.Equal(t, 98.0, first.Low)
	assert.Equal(t, 99.0, first.Close)
	assert.Equal(t, 60.0, first.Volume)

	second := out[1]
	assert.Equal(t, int64(900_000), second.Timestamp)
	assert.Equal(t, 104.0, second.High)
	assert.Equal(t, 102.0, second.Close)
	assert.Equal(t, 45.0, second.Volume)
}

func TestResampleKeepsPartialTrailingBucket(t *testing.T) {
	series := Series{
		{Timestamp: 0, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
		{Timestamp: 300_000, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
		{Timestamp: 900_000, Open: 2, High: 2, Low: 2, Close: 2, Volume: 2},
	}
	out, err := Resample(series, 300_000, 900_000)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 2.0, out[1].Close)
}

func TestResampleRejectsNonMultiple(t *testing.T) {
	_, err := Resample(Series{}, 300_000, 700_000)
	require.Error(t, err)
}

func TestResampleIdentityCadence(t *testing.T) {
	series := Series{{Timestamp: 0, Close: 1}}
	out, err := Resample(series, 300_000, 300_000)
	require.NoError(t, err)
	assert.Equal(t, series, out)
}
