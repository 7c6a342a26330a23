package engine

import (
	"time"
)

// TradeType 标识一次成交的方向与来源（市价 / 挂单 / 止损）。
type TradeType string

const (
	MarketInLong   TradeType = "market_in_long"
	MarketOutLong  TradeType = "market_out_long"
	MarketInShort  TradeType = "market_in_short"
	MarketOutShort TradeType = "market_out_short"
	OrderInLong    TradeType = "order_in_long"
	OrderOutLong   TradeType = "order_out_long"
	OrderInShort   TradeType = "order_in_short"
	OrderOutShort  TradeType = "order_out_short"
	StopLossLong   TradeType = "stop_loss_long"
	StopLossShort  TradeType = "stop_loss_short"
	TradeNone      TradeType = "none"
)

func (t TradeType) IsEntry() bool {
	switch t {
	case MarketInLong, MarketInShort, OrderInLong, OrderInShort:
		return true
	}
	return false
}

func (t TradeType) IsExit() bool {
	switch t {
	case MarketOutLong, MarketOutShort, OrderOutLong, OrderOutShort, StopLossLong, StopLossShort:
		return true
	}
	return false
}

func (t TradeType) IsLong() bool {
	switch t {
	case MarketInLong, MarketOutLong, OrderInLong, OrderOutLong, StopLossLong:
		return true
	}
	return false
}

func (t TradeType) IsShort() bool {
	switch t {
	case MarketInShort, MarketOutShort, OrderInShort, OrderOutShort, StopLossShort:
		return true
	}
	return false
}

func (t TradeType) IsStop() bool {
	return t == StopLossLong || t == StopLossShort
}

// ParseTradeType 解析持久化/传输层的字符串表示。
func ParseTradeType(s string) TradeType {
	switch TradeType(s) {
	case MarketInLong, MarketOutLong, MarketInShort, MarketOutShort,
		OrderInLong, OrderOutLong, OrderInShort, OrderOutShort,
		StopLossLong, StopLossShort:
		return TradeType(s)
	default:
		return TradeNone
	}
}

// TradeIn 是一次已实现的入场。
type TradeIn struct {
	ID          int64     `json:"id"`
	IndexIn     int64     `json:"index_in"`
	Quantity    float64   `json:"quantity"`
	OriginPrice float64   `json:"origin_price"`
	PriceIn     float64   `json:"price_in"`
	Ask         float64   `json:"ask"`
	Spread      float64   `json:"spread"`
	DateIn      time.Time `json:"date_in"`
	TradeType   TradeType `json:"trade_type"`
}

// TradeOut 是一次已实现的出场，回测模式下带已实现盈亏与极值漂移。
type TradeOut struct {
	ID          int64     `json:"id"`
	TradeType   TradeType `json:"trade_type"`
	IndexIn     int64     `json:"index_in"`
	PriceIn     float64   `json:"price_in"`
	Ask         float64   `json:"ask"`
	SpreadIn    float64   `json:"spread_in"`
	DateIn      time.Time `json:"date_in"`
	IndexOut    int64     `json:"index_out"`
	PriceOrigin float64   `json:"price_origin"`
	PriceOut    float64   `json:"price_out"`
	Bid         float64   `json:"bid"`
	SpreadOut   float64   `json:"spread_out"`
	DateOut     time.Time `json:"date_out"`
	Profit      float64   `json:"profit"`
	ProfitPer   float64   `json:"profit_per"`
	RunUp       float64   `json:"run_up"`
	RunUpPer    float64   `json:"run_up_per"`
	DrawDown    float64   `json:"draw_down"`
	DrawDownPer float64   `json:"draw_down_per"`
}

// PositionKind 标识一步扫描的结果类别。
type PositionKind string

const (
	PositionNone           PositionKind = "none"
	PositionMarketIn       PositionKind = "market_in"
	PositionMarketOut      PositionKind = "market_out"
	PositionMarketInOrder  PositionKind = "market_in_order"
	PositionMarketOutOrder PositionKind = "market_out_order"
	PositionPlaceOrders    PositionKind = "place_orders"
)

// Position 是一步扫描的解析结果：要么激活了某个挂单（Order 非空），
// 要么是策略层的直接信号（Intents 携带后续意图），要么什么都没有。
type Position struct {
	Kind    PositionKind `json:"kind"`
	Order   *Order       `json:"order,omitempty"`
	Intents []OrderType  `json:"intents,omitempty"`
}

func NonePosition() Position {
	return Position{Kind: PositionNone}
}

func (p Position) IsNone() bool {
	return p.Kind == PositionNone || p.Kind == ""
}
