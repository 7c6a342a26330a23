package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKlines(t *testing.T) {
	body := []byte(`[
		[1709251200000,"1.1000","1.2000","1.0500","1.1500","123.4",1709254799999,"140.2",42,"60.0","70.1","0"],
		[1709254800000,"1.1500","1.1800","1.1200","1.1300","98.7",1709258399999,"112.0",31,"40.0","45.5","0"]
	]`)

	candles := parseKlines(body)
	require.Len(t, candles, 2)

	first := candles[0]
	assert.Equal(t, int64(1709251200000), first.OpenTime)
	assert.Equal(t, int64(1709254799999), first.CloseTime)
	assert.Equal(t, 1.10, first.Open)
	assert.Equal(t, 1.20, first.High)
	assert.Equal(t, 1.05, first.Low)
	assert.Equal(t, 1.15, first.Close)
	assert.Equal(t, 123.4, first.Volume)
	assert.Equal(t, int64(42), first.Trades)
	assert.True(t, first.Closed)
}

func TestParseKlinesSkipsShortRows(t *testing.T) {
	body := []byte(`[[1709251200000,"1.10","1.20"],[1709254800000,"1.15","1.18","1.12","1.13","98.7",1709258399999,"112.0",31]]`)
	candles := parseKlines(body)
	require.Len(t, candles, 1)
	assert.Equal(t, int64(1709254800000), candles[0].OpenTime)
}

func TestParseKlinesEmptyBody(t *testing.T) {
	assert.Empty(t, parseKlines([]byte(`[]`)))
	assert.Empty(t, parseKlines(nil))
}
