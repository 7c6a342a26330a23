package engine

import (
	"strings"

	"marlin/internal/market"
)

// activationRank 是同一根 bar 上多个挂单同时激活时的显式优先级：
// 止损 > 退出/止盈 > 入场。原设计依赖循环顺序「后者覆盖前者」，
// 这里把平局规则定死；同级之间仍取账本顺序靠后者。
func activationRank(t OrderType) int {
	switch {
	case t.IsStop():
		return 3
	case t.IsExit():
		return 2
	case t.IsEntry():
		return 1
	default:
		return 0
	}
}

// ResolveActive 扫描挂单，判断当前 bar 是否触发了其中某一个，
// 每一步最多返回一个解析结果。
func (b *Book) ResolveActive(index int, series *market.Series) (Position, error) {
	result := NonePosition()
	bestRank := 0

	for i := range b.orders {
		o := &b.orders[i]
		if o.Status != StatusPending {
			continue
		}
		activated, err := b.orderActivated(index, o, series)
		if err != nil {
			return NonePosition(), err
		}
		if !activated {
			continue
		}
		rank := activationRank(o.Type)
		if rank < bestRank {
			continue
		}
		bestRank = rank
		hit := *o
		if o.Type.IsEntry() {
			result = Position{Kind: PositionMarketInOrder, Order: &hit}
		} else {
			result = Position{Kind: PositionMarketOutOrder, Order: &hit}
		}
	}

	if !b.hasExecutedBuyOrder(result) {
		return NonePosition(), nil
	}
	return result, nil
}

// orderActivated 判断单个挂单是否被当前 bar 触发。
// candle 的时间 ID 必须严格大于订单 ID：同 bar 创建的订单不允许同 bar 成交。
func (b *Book) orderActivated(index int, order *Order, series *market.Series) (bool, error) {
	current, err := series.Get(index)
	if err != nil {
		return false, err
	}
	candleTS := TimeID(current.Date())
	isNextBar := candleTS > order.ID

	priceOver, priceUnder := b.activationPrices(current)

	isClosed := true
	if strings.EqualFold(b.cfg.OrderActivationSource, "close") {
		isClosed = current.Closed
	}

	crossOver := decGTE(priceOver, order.TargetPrice) && isNextBar && isClosed
	crossUnder := decLTE(priceUnder, order.TargetPrice) && isNextBar && isClosed
	stopCrossOver := decGTE(current.High, order.TargetPrice) && isNextBar
	stopCrossUnder := decLTE(current.Low, order.TargetPrice) && isNextBar

	switch order.Type.Kind {
	case KindStopLossLong:
		return stopCrossUnder, nil
	case KindStopLossShort:
		return stopCrossOver, nil
	default:
		if order.Type.Direction == DirectionUp {
			return crossOver, nil
		}
		return crossUnder, nil
	}
}

// activationPrices 按 order_engine / order_activation_source 选择驱动
// 穿越判断的价格字段。
func (b *Book) activationPrices(c market.Candle) (over, under float64) {
	if strings.EqualFold(b.cfg.OrderEngine, "broker") {
		return c.High, c.Low
	}
	if strings.EqualFold(b.cfg.OrderActivationSource, "highs_lows") {
		return c.High, c.Low
	}
	return c.Close, c.Close
}

// hasExecutedBuyOrder 对 MarketOutOrder 结果做出场门控：
// 只有买单额度已被此前的成交消耗（挂单买单数 < 上限），才可能真的有持仓可平。
func (b *Book) hasExecutedBuyOrder(pos Position) bool {
	if pos.Kind != PositionMarketOutOrder {
		return true
	}
	buys, _, _ := b.CategoryCounts()
	return buys < b.cfg.MaxBuyOrders
}
