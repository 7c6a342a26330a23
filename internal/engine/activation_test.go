package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveActiveEntryOnHighCross(t *testing.T) {
	book, err := NewBook(testConfig("backtest"))
	require.NoError(t, err)
	book.seed([]Order{pendingAt(0, KindBuyLong, DirectionUp, 1.1050)})

	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000},
		{1.1000, 1.1060, 1.0990, 1.1040},
	})

	pos, err := book.ResolveActive(1, series)
	require.NoError(t, err)
	assert.Equal(t, PositionMarketInOrder, pos.Kind)
	require.NotNil(t, pos.Order)
	assert.Equal(t, KindBuyLong, pos.Order.Type.Kind)
}

func TestResolveActiveSameBarGuard(t *testing.T) {
	book, err := NewBook(testConfig("backtest"))
	require.NoError(t, err)
	book.seed([]Order{pendingAt(0, KindBuyLong, DirectionUp, 1.1050)})

	// target crossed on the very bar the order was created on
	series := testSeries([][4]float64{
		{1.0990, 1.1060, 1.0980, 1.1000},
	})

	pos, err := book.ResolveActive(0, series)
	require.NoError(t, err)
	assert.True(t, pos.IsNone())
}

func TestResolveActiveCloseSourceIgnoresWicks(t *testing.T) {
	cfg := testConfig("backtest")
	cfg.OrderActivationSource = "close"
	book, err := NewBook(cfg)
	require.NoError(t, err)
	book.seed([]Order{pendingAt(0, KindBuyLong, DirectionUp, 1.1050)})

	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000},
		{1.1000, 1.1060, 1.0990, 1.1040},
	})

	pos, err := book.ResolveActive(1, series)
	require.NoError(t, err)
	assert.True(t, pos.IsNone())
}

func TestResolveActiveBrokerEngineUsesWicks(t *testing.T) {
	cfg := testConfig("backtest")
	cfg.OrderEngine = "broker"
	cfg.OrderActivationSource = "close"
	book, err := NewBook(cfg)
	require.NoError(t, err)
	book.seed([]Order{pendingAt(0, KindBuyLong, DirectionUp, 1.1050)})

	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000},
		{1.1000, 1.1060, 1.0990, 1.1040},
	})

	pos, err := book.ResolveActive(1, series)
	require.NoError(t, err)
	assert.Equal(t, PositionMarketInOrder, pos.Kind)
}

func TestResolveActiveStopBeatsExit(t *testing.T) {
	book, err := NewBook(testConfig("backtest"))
	require.NoError(t, err)
	book.seed([]Order{
		pendingAt(0, KindSellLong, DirectionUp, 1.1100),
		pendingAt(0, KindStopLossLong, DirectionDown, 1.0900),
	})

	// both levels swept on the same bar
	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000},
		{1.1000, 1.1150, 1.0850, 1.1000},
	})

	pos, err := book.ResolveActive(1, series)
	require.NoError(t, err)
	assert.Equal(t, PositionMarketOutOrder, pos.Kind)
	require.NotNil(t, pos.Order)
	assert.Equal(t, KindStopLossLong, pos.Order.Type.Kind)
}

func TestResolveActiveStopUsesWicksUnderCloseSource(t *testing.T) {
	cfg := testConfig("backtest")
	cfg.OrderActivationSource = "close"
	book, err := NewBook(cfg)
	require.NoError(t, err)
	book.seed([]Order{pendingAt(0, KindStopLossLong, DirectionDown, 1.0900)})

	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000},
		{1.1000, 1.1010, 1.0850, 1.1000},
	})

	pos, err := book.ResolveActive(1, series)
	require.NoError(t, err)
	assert.Equal(t, PositionMarketOutOrder, pos.Kind)
}

func TestResolveActiveExitGatedByPendingBuys(t *testing.T) {
	book, err := NewBook(testConfig("backtest"))
	require.NoError(t, err)
	// buy capacity still fully pending, so no position can exist yet
	book.seed([]Order{
		pendingAt(0, KindBuyLong, DirectionUp, 1.2000),
		pendingAt(0, KindSellLong, DirectionUp, 1.1100),
	})

	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000},
		{1.1000, 1.1150, 1.0990, 1.1000},
	})

	pos, err := book.ResolveActive(1, series)
	require.NoError(t, err)
	assert.True(t, pos.IsNone())
}

func TestResolveActiveLaterOrderWinsWithinRank(t *testing.T) {
	book, err := NewBook(testConfig("backtest"))
	require.NoError(t, err)
	first := pendingAt(0, KindSellLong, DirectionUp, 1.1050)
	second := pendingAt(0, KindTakeProfitLong, DirectionUp, 1.1080)
	book.seed([]Order{first, second})

	series := testSeries([][4]float64{
		{1.0990, 1.1010, 1.0980, 1.1000},
		{1.1000, 1.1150, 1.0990, 1.1000},
	})

	pos, err := book.ResolveActive(1, series)
	require.NoError(t, err)
	require.NotNil(t, pos.Order)
	assert.Equal(t, KindTakeProfitLong, pos.Order.Type.Kind)
}
