package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareOrdersBuildsBatch(t *testing.T) {
	cfg := testConfig("backtest")
	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000},
	})
	intents := []OrderType{
		buyLongIntent(1.1050),
		sellLongIntent(1.1150),
		stopLongIntent(1.0950),
	}

	orders, err := PrepareOrders(0, series, testPricing(), MarketInLong, intents, cfg)
	require.NoError(t, err)
	require.Len(t, orders, 3)

	tradeID := TimeID(barDate(0))
	for _, o := range orders {
		assert.Equal(t, tradeID, o.TradeID)
		assert.Equal(t, StatusPending, o.Status)
		assert.Equal(t, 1.1000, o.OriginPrice)
		require.NotNil(t, o.ValidUntil)
		assert.Equal(t, barDate(5), *o.ValidUntil)
	}
	assert.Equal(t, 1.1050, orders[0].TargetPrice)
	assert.Equal(t, 1.1150, orders[1].TargetPrice)
	assert.Equal(t, 1.0950, orders[2].TargetPrice)
	assert.Equal(t, orders[0].Size, orders[2].Size)
}

func TestPrepareOrdersRejectsCrossedTarget(t *testing.T) {
	cfg := testConfig("backtest")
	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000},
	})

	_, err := PrepareOrders(0, series, testPricing(), MarketInLong,
		[]OrderType{buyLongIntent(1.0990)}, cfg)
	require.Error(t, err)
	assert.True(t, IsFatalReject(err))

	down := OrderType{Kind: KindBuyShort, Direction: DirectionDown, Size: 1000, TargetPrice: 1.1020}
	_, err = PrepareOrders(0, series, testPricing(), MarketInShort,
		[]OrderType{down}, cfg)
	require.Error(t, err)
	assert.True(t, IsFatalReject(err))
}

func TestPrepareOrdersRejectsStopOnWrongSide(t *testing.T) {
	cfg := testConfig("backtest")
	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000},
	})
	intents := []OrderType{
		buyLongIntent(1.1050),
		stopLongIntent(1.1070),
	}

	_, err := PrepareOrders(0, series, testPricing(), MarketInLong, intents, cfg)
	require.Error(t, err)
	assert.True(t, IsReject(err))
	assert.False(t, IsFatalReject(err))
}

func TestPrepareOrdersRejectsExitBelowEntry(t *testing.T) {
	cfg := testConfig("backtest")
	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000},
	})
	intents := []OrderType{
		buyLongIntent(1.1050),
		sellLongIntent(1.1040),
	}

	_, err := PrepareOrders(0, series, testPricing(), MarketInLong, intents, cfg)
	require.Error(t, err)
	assert.True(t, IsReject(err))
}

func TestPrepareOrdersSpreadTightensExitCheck(t *testing.T) {
	cfg := testConfig("backtest")
	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000},
	})
	// sell sits above the raw buy target but inside the spread-adjusted one
	intents := []OrderType{
		buyLongIntent(1.1050),
		sellLongIntent(1.1051),
	}

	_, err := PrepareOrders(0, series, testPricing(), MarketInLong, intents, cfg)
	require.Error(t, err)

	cfg.OrderWithSpread = true
	orders, err := PrepareOrders(0, series, testPricing(), MarketInLong, intents, cfg)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestPrepareOrdersStopFromPips(t *testing.T) {
	cfg := testConfig("backtest")
	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000},
	})
	stop := OrderType{Kind: KindStopLossLong, Direction: DirectionDown, TargetPrice: 20, StopKind: StopPips}
	intents := []OrderType{buyLongIntent(1.1050), stop}

	orders, err := PrepareOrders(0, series, testPricing(), MarketInLong, intents, cfg)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.InDelta(t, 1.1030, orders[1].TargetPrice, 1e-9)
}

func TestPrepareOrdersLoneStopAnchorsToOpen(t *testing.T) {
	cfg := testConfig("backtest")
	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000},
	})

	orders, err := PrepareOrders(0, series, testPricing(), MarketInLong,
		[]OrderType{stopLongIntent(0)}, cfg)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.InDelta(t, 1.0990-testPricing().Spread, orders[0].TargetPrice, 1e-9)
	assert.Equal(t, cfg.OrderSize, orders[0].Size)
}
