package market

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSVWithHeader(t *testing.T) {
	path := writeTemp(t, "bars.csv", `timestamp,open,high,low,close,volume
1000,100.5,101,99.5,100.75,1200
1300000,100.75,102,100,101.5,900
`)
	series, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, int64(1000), series[0].Timestamp)
	assert.Equal(t, 100.75, series[0].Close)
	assert.Equal(t, 900.0, series[1].Volume)
}

func TestLoadCSVSortsAndDeduplicates(t *testing.T) {
	path := writeTemp(t, "bars.csv", `3000,103,104,102,103,100
1000,101,102,100,101,100
2000,102,103,101,102,100
2000,110,111,109,110,500
`)
	series, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, int64(1000), series[0].Timestamp)
	assert.Equal(t, int64(2000), series[1].Timestamp)
	// duplicate timestamp keeps the last row
	assert.Equal(t, 110.0, series[1].Close)
	require.NoError(t, series.Validate())
}

func TestLoadCSVSkipsMalformedRows(t *testing.T) {
	path := writeTemp(t, "bars.csv", `1000,100,101,99,100,50
garbage line that is not csv enough
2000,not_a_price,101,99,100,50
3000,102,103,101,102,50
`)
	series, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, int64(3000), series[1].Timestamp)
}

func TestLoadCSVEmptyFileFails(t *testing.T) {
	path := writeTemp(t, "bars.csv", "")
	_, err := LoadCSV(path)
	require.Error(t, err)
}

func TestLoadCSVUTF16BOM(t *testing.T) {
	content := "1000,100,101,99,100,50\n2000,101,102,100,101,60\n"
	units := utf16.Encode([]rune(content))
	buf := make([]byte, 2+2*len(units))
	buf[0], buf[1] = 0xFF, 0xFE // UTF-16 LE BOM
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[2+2*i:], u)
	}
	path := filepath.Join(t.TempDir(), "bars_utf16.csv")
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	series, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 101.0, series[1].Close)
}

func TestSeriesValidateDetectsDisorder(t *testing.T) {
	good := Series{{Timestamp: 1}, {Timestamp: 2}, {Timestamp: 3}}
	require.NoError(t, good.Validate())

	bad := Series{{Timestamp: 1}, {Timestamp: 3}, {Timestamp: 2}}
	require.Error(t, bad.Validate())

	dup := Series{{Timestamp: 1}, {Timestamp: 1}}
	require.Error(t, dup.Validate())
}

func TestCadenceDetection(t *testing.T) {
	series := make(Series, 100)
	for i := range series {
		series[i] = Candle{Timestamp: int64(i) * 300_000}
	}
	// one gap must not confuse the majority vote
	series[50].Timestamp += 600_000
	assert.Equal(t, int64(300_000), series.Cadence(60_000))

	assert.Equal(t, int64(60_000), Series{}.Cadence(60_000))
}

func TestOrderBookMid(t *testing.T) {
	book := OrderBook{
		Bids: []BookLevel{{Price: 99, Amount: 1}},
		Asks: []BookLevel{{Price: 101, Amount: 1}},
	}
	assert.Equal(t, 100.0, book.Mid())
}
