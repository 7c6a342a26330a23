package engine

import (
	"time"

	"marlin/internal/config"
	"marlin/internal/market"
)

var testStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func testConfig(mode string) config.EngineConfig {
	return config.EngineConfig{
		ExecutionMode:         mode,
		MaxBuyOrders:          1,
		MaxSellOrders:         1,
		MaxStopLosses:         1,
		MaxPendingOrders:      3,
		ValidUntilBars:        5,
		OrderWithSpread:       false,
		NonProfitableOuts:     true,
		OrderEngine:           "bot",
		OrderActivationSource: "highs_lows",
		OrderSize:             1000,
	}
}

// testSeries builds an hourly series from [open, high, low, close] rows.
func testSeries(bars [][4]float64) *market.Series {
	tf, _ := market.ParseTimeframe("1h")
	candles := make([]market.Candle, len(bars))
	for i, b := range bars {
		open := testStart.Add(time.Duration(i) * time.Hour)
		candles[i] = market.Candle{
			OpenTime:  open.UnixMilli(),
			CloseTime: open.Add(time.Hour).UnixMilli() - 1,
			Open:      b[0],
			High:      b[1],
			Low:       b[2],
			Close:     b[3],
			Volume:    100,
			Trades:    10,
			Closed:    true,
		}
	}
	return market.NewSeries("EURUSD", tf, candles)
}

func testPricing() market.Pricing {
	return market.Pricing{Symbol: "EURUSD", Spread: 0.0002, PipSize: 0.0001}
}

func barDate(i int) time.Time {
	return testStart.Add(time.Duration(i) * time.Hour)
}

func pendingAt(barIndex int, kind OrderKind, dir OrderDirection, target float64) Order {
	date := barDate(barIndex)
	validUntil := date.Add(5 * time.Hour)
	return Order{
		ID:           TimeID(date),
		TradeID:      TimeID(date),
		IndexCreated: barIndex,
		Size:         1000,
		Type:         OrderType{Kind: kind, Direction: dir, Size: 1000, TargetPrice: target},
		Status:       StatusPending,
		TargetPrice:  target,
		CreatedAt:    date,
		ValidUntil:   &validUntil,
	}
}

func buyLongIntent(target float64) OrderType {
	return OrderType{Kind: KindBuyLong, Direction: DirectionUp, Size: 1000, TargetPrice: target}
}

func sellLongIntent(target float64) OrderType {
	return OrderType{Kind: KindSellLong, Direction: DirectionUp, Size: 1000, TargetPrice: target}
}

func stopLongIntent(target float64) OrderType {
	return OrderType{Kind: KindStopLossLong, Direction: DirectionDown, TargetPrice: target, StopKind: StopPrice}
}
