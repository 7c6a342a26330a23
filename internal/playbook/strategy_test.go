package playbook

import (
	"testing"
	"time"

	"marlin/internal/config"
	"marlin/internal/engine"
	"marlin/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strategyConfig() config.EngineConfig {
	return config.EngineConfig{
		ExecutionMode:         "backtest",
		MaxBuyOrders:          1,
		MaxSellOrders:         1,
		MaxStopLosses:         1,
		MaxPendingOrders:      3,
		ValidUntilBars:        5,
		NonProfitableOuts:     true,
		OrderEngine:           "bot",
		OrderActivationSource: "highs_lows",
		OrderSize:             1000,
	}
}

func hourlySeries(bars [][4]float64) *market.Series {
	tf, _ := market.ParseTimeframe("1h")
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, len(bars))
	for i, b := range bars {
		open := start.Add(time.Duration(i) * time.Hour)
		candles[i] = market.Candle{
			OpenTime:  open.UnixMilli(),
			CloseTime: open.Add(time.Hour).UnixMilli() - 1,
			Open:      b[0],
			High:      b[1],
			Low:       b[2],
			Close:     b[3],
			Closed:    true,
		}
	}
	return market.NewSeries("EURUSD", tf, candles)
}

func TestStrategyBullishCloseEmitsBracket(t *testing.T) {
	path := writePlaybook(t, `
rules:
  momentum_long:
    trigger: bullish_close
    direction: long
    params:
      entry_pips: 10
      exit_pips: 100
      stop_pips: 50
`)
	r, err := NewRegistry(path)
	require.NoError(t, err)
	s := NewStrategy(r, strategyConfig())

	series := hourlySeries([][4]float64{{1.1000, 1.1060, 1.0990, 1.1040}})
	pricing := market.Pricing{Symbol: "EURUSD", Spread: 0.0002, PipSize: 0.0001}

	pos, err := s.Evaluate(0, series, pricing, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.PositionPlaceOrders, pos.Kind)
	require.Len(t, pos.Intents, 3)

	assert.Equal(t, engine.KindBuyLong, pos.Intents[0].Kind)
	assert.InDelta(t, 1.1050, pos.Intents[0].TargetPrice, 1e-9)
	assert.Equal(t, engine.KindSellLong, pos.Intents[1].Kind)
	assert.InDelta(t, 1.1150, pos.Intents[1].TargetPrice, 1e-9)
	assert.Equal(t, engine.KindStopLossLong, pos.Intents[2].Kind)
	assert.InDelta(t, 1.1000, pos.Intents[2].TargetPrice, 1e-9)
	assert.Equal(t, 1000.0, pos.Intents[0].Size)
}

func TestStrategyShortDirection(t *testing.T) {
	path := writePlaybook(t, `
rules:
  fade_short:
    trigger: bearish_close
    direction: short
    params:
      entry_pips: 10
      exit_pips: 100
      stop_pips: 50
`)
	r, err := NewRegistry(path)
	require.NoError(t, err)
	s := NewStrategy(r, strategyConfig())

	series := hourlySeries([][4]float64{{1.1040, 1.1050, 1.0990, 1.1000}})
	pricing := market.Pricing{PipSize: 0.0001}

	pos, err := s.Evaluate(0, series, pricing, nil)
	require.NoError(t, err)
	require.Len(t, pos.Intents, 3)
	assert.Equal(t, engine.KindBuyShort, pos.Intents[0].Kind)
	assert.InDelta(t, 1.0990, pos.Intents[0].TargetPrice, 1e-9)
	assert.Equal(t, engine.DirectionDown, pos.Intents[1].Direction)
	assert.Equal(t, engine.DirectionUp, pos.Intents[2].Direction)
}

func TestStrategyBreakoutNeedsLookback(t *testing.T) {
	path := writePlaybook(t, `
rules:
  breakout_long:
    trigger: breakout
    direction: long
    params:
      lookback: 3
`)
	r, err := NewRegistry(path)
	require.NoError(t, err)
	s := NewStrategy(r, strategyConfig())

	series := hourlySeries([][4]float64{
		{1.1000, 1.1020, 1.0990, 1.1010},
		{1.1010, 1.1030, 1.1000, 1.1020},
		{1.1020, 1.1040, 1.1010, 1.1030},
		{1.1030, 1.1080, 1.1020, 1.1070},
	})
	pricing := market.Pricing{PipSize: 0.0001}

	pos, err := s.Evaluate(1, series, pricing, nil)
	require.NoError(t, err)
	assert.True(t, pos.IsNone())

	pos, err = s.Evaluate(3, series, pricing, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.PositionPlaceOrders, pos.Kind)
}

func TestStrategySilentWhileTradeOpen(t *testing.T) {
	path := writePlaybook(t, `
rules:
  momentum_long:
    trigger: bullish_close
    direction: long
`)
	r, err := NewRegistry(path)
	require.NoError(t, err)
	s := NewStrategy(r, strategyConfig())

	series := hourlySeries([][4]float64{{1.1000, 1.1060, 1.0990, 1.1040}})
	open := &engine.TradeIn{TradeType: engine.OrderInLong}

	pos, err := s.Evaluate(0, series, market.Pricing{PipSize: 0.0001}, open)
	require.NoError(t, err)
	assert.True(t, pos.IsNone())
}
