package engine

import (
	"fmt"
	"strings"

	"marlin/internal/config"
	"marlin/internal/logger"
	"marlin/internal/market"
)

// Resolver 把激活事件（或直接的市价请求）解析成具体成交：
// 成交价、数量，以及回测模式下的已实现盈亏与极值漂移。
type Resolver struct {
	cfg  config.EngineConfig
	mode ExecutionMode
}

func NewResolver(cfg config.EngineConfig) (*Resolver, error) {
	mode, err := ParseMode(cfg.ExecutionMode)
	if err != nil {
		return nil, fmt.Errorf("trade resolver: %w", err)
	}
	return &Resolver{cfg: cfg, mode: mode}, nil
}

// TradeIndex 返回成交 bar 的下标：回测在下一根 bar 的开盘成交，
// 实时就在当前事件上成交。
func (r *Resolver) TradeIndex(index int) int {
	if r.mode.IsBacktest() {
		return index + 1
	}
	return index
}

func (r *Resolver) brokerEngine() bool {
	return strings.EqualFold(r.cfg.OrderEngine, "broker")
}

// ResolveTradeIn 解析入场。非入场类型返回 (nil, nil)。
func (r *Resolver) ResolveTradeIn(index int, tradeSize float64, series *market.Series, pricing market.Pricing, tradeType TradeType, order *Order) (*TradeIn, error) {
	if !tradeType.IsEntry() {
		return nil, nil
	}
	idx := r.TradeIndex(index)
	current, err := series.Get(idx)
	if err != nil {
		return nil, fmt.Errorf("resolve trade in: %w", err)
	}
	spread := pricing.Spread
	date := current.Date()
	id := TimeID(date)

	// broker 引擎用触发挂单的目标价成交，bot 引擎用 bar 开盘价。
	price := current.Open
	if r.brokerEngine() && order != nil {
		price = order.TargetPrice
	}

	ask := price
	if tradeType.IsLong() {
		ask = price + spread
	}
	priceIn := price
	if tradeType.IsLong() {
		priceIn = ask
	}

	indexIn := int64(idx)
	if r.mode.IsLive() {
		indexIn = id
	}

	return &TradeIn{
		ID:          id,
		IndexIn:     indexIn,
		Quantity:    Quantity(tradeSize, priceIn),
		OriginPrice: price,
		PriceIn:     priceIn,
		Ask:         ask,
		Spread:      spread,
		DateIn:      date,
		TradeType:   tradeType,
	}, nil
}

// ResolveTradeOut 解析出场。非盈利出场在配置关闭时被压制并返回
// (nil, nil)，触发挂单保持 pending 等待后续重新评估；止损永远放行。
func (r *Resolver) ResolveTradeOut(index int, series *market.Series, pricing market.Pricing, tradeIn *TradeIn, tradeType TradeType, order *Order) (*TradeOut, error) {
	if tradeIn == nil {
		return nil, fmt.Errorf("resolve trade out: no open trade")
	}
	if tradeType.IsStop() && order == nil {
		return nil, fmt.Errorf("resolve trade out: stop exit requires its triggering order")
	}
	idx := r.TradeIndex(index)
	current, err := series.Get(idx)
	if err != nil {
		return nil, fmt.Errorf("resolve trade out: %w", err)
	}

	spread := pricing.Spread
	inType := tradeIn.TradeType
	date := current.Date()

	closePrice := current.Open
	if tradeType.IsStop() {
		closePrice = order.TargetPrice
	}
	priceOut := closePrice
	if r.brokerEngine() && order != nil {
		priceOut = order.TargetPrice
	}
	// 回测模式空头出场补一个点差。
	if r.mode.IsBacktest() && inType.IsShort() {
		priceOut += spread
	}

	priceIn := tradeIn.PriceIn
	bid := priceOut
	if tradeType.IsLong() {
		bid = priceOut + spread
	}

	unitProfit := priceOut - priceIn
	if !inType.IsLong() {
		unitProfit = priceIn - priceOut
	}
	if tradeType.IsStop() && unitProfit > 0 {
		logger.Errorf("profitable stop loss! %d @ (%v, %v) %v", idx, priceIn, priceOut, unitProfit)
	}

	profitable := unitProfit > 0
	if !r.cfg.NonProfitableOuts && !profitable && !tradeType.IsStop() {
		logger.Warnf("non profitable %s exit suppressed (profit=%v)", tradeType, unitProfit)
		return nil, nil
	}

	dateIn := date
	if r.mode.IsBacktest() {
		inCandle, err := series.Get(int(tradeIn.IndexIn))
		if err != nil {
			return nil, fmt.Errorf("resolve trade out: %w", err)
		}
		dateIn = inCandle.Date()
	}

	out := &TradeOut{
		ID:          TimeID(date),
		TradeType:   tradeType,
		IndexIn:     tradeIn.IndexIn,
		PriceIn:     priceIn,
		Ask:         priceIn,
		SpreadIn:    tradeIn.Spread,
		DateIn:      dateIn,
		IndexOut:    int64(idx),
		PriceOrigin: tradeIn.PriceIn,
		PriceOut:    priceOut,
		Bid:         bid,
		SpreadOut:   spread,
		DateOut:     date,
	}

	// 已实现统计只在回测模式即时计算；实时模式留待对账补零。
	if r.mode.IsBacktest() {
		data := series.Candles()
		out.Profit = Profit(tradeIn.Quantity, priceIn, priceOut, inType)
		out.ProfitPer = ProfitPer(priceIn, priceOut, inType)
		out.RunUp = RunUp(data, priceIn, tradeIn.IndexIn, int64(idx), inType)
		out.RunUpPer = ExcursionPer(out.RunUp, priceIn)
		out.DrawDown = DrawDown(data, priceIn, tradeIn.IndexIn, int64(idx), inType)
		out.DrawDownPer = ExcursionPer(out.DrawDown, priceIn)
	}

	return out, nil
}
