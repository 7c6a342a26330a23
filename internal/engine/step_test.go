package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placeOrdersSignal(intents ...OrderType) Position {
	return Position{Kind: PositionPlaceOrders, Intents: intents}
}

func TestStepFullRoundTrip(t *testing.T) {
	eng, err := New(testConfig("backtest"))
	require.NoError(t, err)

	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000}, // orders placed here
		{1.1000, 1.1060, 1.0990, 1.1040}, // buy level swept
		{1.1055, 1.1160, 1.1040, 1.1150}, // sell level swept
		{1.1150, 1.1180, 1.1120, 1.1160},
		{1.1160, 1.1190, 1.1130, 1.1170},
	})
	pricing := testPricing()

	signal := placeOrdersSignal(
		buyLongIntent(1.1050),
		sellLongIntent(1.1150),
		stopLongIntent(1.0950),
	)
	res, err := eng.Step(0, series, pricing, signal, nil)
	require.NoError(t, err)
	assert.Len(t, res.Placed, 3)
	assert.Nil(t, res.TradeIn)
	assert.Len(t, eng.Book().Pending(), 3)

	res, err = eng.Step(1, series, pricing, NonePosition(), nil)
	require.NoError(t, err)
	require.NotNil(t, res.TradeIn)
	assert.Equal(t, PositionMarketInOrder, res.Position.Kind)
	assert.Equal(t, int64(2), res.TradeIn.IndexIn)
	assert.InDelta(t, 1.1055+pricing.Spread, res.TradeIn.PriceIn, 1e-9)
	open := res.TradeIn

	buys, _, _ := eng.Book().CategoryCounts()
	assert.Equal(t, 0, buys)

	res, err = eng.Step(2, series, pricing, NonePosition(), open)
	require.NoError(t, err)
	require.NotNil(t, res.TradeOut)
	assert.Equal(t, PositionMarketOutOrder, res.Position.Kind)
	assert.Equal(t, 1.1150, res.TradeOut.PriceOut)
	assert.Greater(t, res.TradeOut.Profit, 0.0)

	// position is flat, the surviving stop must be gone
	assert.Empty(t, eng.Book().Pending())
}

func TestStepStopsOutLosingTrade(t *testing.T) {
	eng, err := New(testConfig("backtest"))
	require.NoError(t, err)

	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000},
		{1.1000, 1.1060, 1.0990, 1.1040}, // buy swept
		{1.1055, 1.1070, 1.0940, 1.0960}, // stop swept
		{1.0960, 1.0980, 1.0930, 1.0950},
		{1.0950, 1.0970, 1.0920, 1.0940},
	})
	pricing := testPricing()

	signal := placeOrdersSignal(
		buyLongIntent(1.1050),
		sellLongIntent(1.1150),
		stopLongIntent(1.0950),
	)
	_, err = eng.Step(0, series, pricing, signal, nil)
	require.NoError(t, err)

	res, err := eng.Step(1, series, pricing, NonePosition(), nil)
	require.NoError(t, err)
	require.NotNil(t, res.TradeIn)
	open := res.TradeIn

	res, err = eng.Step(2, series, pricing, NonePosition(), open)
	require.NoError(t, err)
	require.NotNil(t, res.TradeOut)
	assert.Equal(t, StopLossLong, res.TradeOut.TradeType)
	assert.Equal(t, 1.0950, res.TradeOut.PriceOut)
	assert.Less(t, res.TradeOut.Profit, 0.0)
	assert.Empty(t, eng.Book().Pending())
}

func TestStepExpiresStaleOrders(t *testing.T) {
	eng, err := New(testConfig("backtest"))
	require.NoError(t, err)

	// prices never reach any level
	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000},
		{1.1000, 1.1010, 1.0990, 1.1000},
		{1.1000, 1.1010, 1.0990, 1.1000},
		{1.1000, 1.1010, 1.0990, 1.1000},
		{1.1000, 1.1010, 1.0990, 1.1000},
		{1.1000, 1.1010, 1.0990, 1.1000},
		{1.1000, 1.1010, 1.0990, 1.1000},
	})
	pricing := testPricing()

	signal := placeOrdersSignal(
		buyLongIntent(1.1050),
		sellLongIntent(1.1150),
		stopLongIntent(1.0950),
	)
	_, err = eng.Step(0, series, pricing, signal, nil)
	require.NoError(t, err)

	for i := 1; i < 5; i++ {
		res, err := eng.Step(i, series, pricing, NonePosition(), nil)
		require.NoError(t, err)
		assert.Zero(t, res.Expired)
	}

	res, err := eng.Step(5, series, pricing, NonePosition(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Expired)
	assert.Zero(t, eng.Book().Len())
}

func TestStepEntryFillExtendsRestingOrders(t *testing.T) {
	eng, err := New(testConfig("backtest"))
	require.NoError(t, err)

	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000}, // orders placed here
		{1.1000, 1.1060, 1.0990, 1.1040}, // buy swept
		{1.1055, 1.1070, 1.1050, 1.1060},
		{1.1060, 1.1070, 1.1050, 1.1060},
		{1.1060, 1.1070, 1.1050, 1.1060},
		{1.1060, 1.1070, 1.1050, 1.1060},
		{1.1060, 1.1070, 1.1050, 1.1060},
		{1.1060, 1.1160, 1.1050, 1.1150}, // sell swept well past original validity
		{1.1150, 1.1170, 1.1130, 1.1160},
	})
	pricing := testPricing()

	signal := placeOrdersSignal(
		buyLongIntent(1.1050),
		sellLongIntent(1.1150),
		stopLongIntent(1.0950),
	)
	_, err = eng.Step(0, series, pricing, signal, nil)
	require.NoError(t, err)

	res, err := eng.Step(1, series, pricing, NonePosition(), nil)
	require.NoError(t, err)
	require.NotNil(t, res.TradeIn)
	open := res.TradeIn

	for i := 2; i < 7; i++ {
		res, err = eng.Step(i, series, pricing, NonePosition(), open)
		require.NoError(t, err)
		assert.Zero(t, res.Expired)
		assert.Len(t, eng.Book().Pending(), 2)
	}

	res, err = eng.Step(7, series, pricing, NonePosition(), open)
	require.NoError(t, err)
	require.NotNil(t, res.TradeOut)
	assert.Equal(t, 1.1150, res.TradeOut.PriceOut)
}

func TestStepFatalRejectBubblesUp(t *testing.T) {
	eng, err := New(testConfig("backtest"))
	require.NoError(t, err)
	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000},
		{1.1000, 1.1010, 1.0990, 1.1000},
	})

	_, err = eng.Step(0, series, testPricing(), placeOrdersSignal(buyLongIntent(1.0990)), nil)
	require.Error(t, err)
	assert.True(t, IsFatalReject(err))
}

func TestStepCapacityRejectKeepsRunning(t *testing.T) {
	cfg := testConfig("backtest")
	cfg.MaxPendingOrders = 2
	eng, err := New(cfg)
	require.NoError(t, err)
	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000},
		{1.1000, 1.1010, 1.0990, 1.1000},
	})
	pricing := testPricing()

	signal := placeOrdersSignal(
		buyLongIntent(1.1050),
		sellLongIntent(1.1150),
		stopLongIntent(1.0950),
	)
	res, err := eng.Step(0, series, pricing, signal, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Placed)
	assert.Zero(t, eng.Book().Len())
}

func TestStepDirectMarketSignals(t *testing.T) {
	eng, err := New(testConfig("backtest"))
	require.NoError(t, err)
	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000},
		{1.1000, 1.1060, 1.0990, 1.1040},
		{1.1055, 1.1160, 1.1040, 1.1150},
		{1.1150, 1.1180, 1.1120, 1.1160},
	})
	pricing := testPricing()

	in := Position{Kind: PositionMarketIn, Intents: []OrderType{buyLongIntent(0)}}
	res, err := eng.Step(0, series, pricing, in, nil)
	require.NoError(t, err)
	require.NotNil(t, res.TradeIn)
	assert.Equal(t, MarketInLong, res.TradeIn.TradeType)
	open := res.TradeIn

	out := Position{Kind: PositionMarketOut}
	res, err = eng.Step(2, series, pricing, out, open)
	require.NoError(t, err)
	require.NotNil(t, res.TradeOut)
	assert.Equal(t, MarketOutLong, res.TradeOut.TradeType)
}
