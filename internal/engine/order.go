package engine

import (
	"time"
)

// OrderDirection 决定订单在价格向哪个方向穿越目标价时激活。
type OrderDirection string

const (
	DirectionUp   OrderDirection = "up"
	DirectionDown OrderDirection = "down"
)

// OrderStatus 的迁移是单向的：pending → fulfilled / canceled，绝不回退。
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusFulfilled OrderStatus = "fulfilled"
	StatusCanceled  OrderStatus = "canceled"
)

// OrderKind 枚举订单种类，多空方向体现在名字里。
type OrderKind string

const (
	KindBuyLong         OrderKind = "buy_long"
	KindBuyShort        OrderKind = "buy_short"
	KindSellLong        OrderKind = "sell_long"
	KindSellShort       OrderKind = "sell_short"
	KindTakeProfitLong  OrderKind = "take_profit_long"
	KindTakeProfitShort OrderKind = "take_profit_short"
	KindStopLossLong    OrderKind = "stop_loss_long"
	KindStopLossShort   OrderKind = "stop_loss_short"
)

// StopKind 决定止损目标价的推导方式。
type StopKind string

const (
	StopPrice StopKind = "price" // 直接使用给定价格
	StopPips  StopKind = "pips"  // 参考价 ± N 个 pip
)

// OrderType 描述一个下单意图。原设计把方向、手数、价格塞进无名元组，
// 这里改用具名字段消除 size/price 槽位歧义。
type OrderType struct {
	Kind        OrderKind      `json:"kind"`
	Direction   OrderDirection `json:"direction"`
	Size        float64        `json:"size"`
	TargetPrice float64        `json:"target_price"`
	StopKind    StopKind       `json:"stop_kind,omitempty"`
}

func (t OrderType) IsEntry() bool {
	return t.Kind == KindBuyLong || t.Kind == KindBuyShort
}

func (t OrderType) IsExit() bool {
	switch t.Kind {
	case KindSellLong, KindSellShort, KindTakeProfitLong, KindTakeProfitShort:
		return true
	}
	return false
}

func (t OrderType) IsStop() bool {
	return t.Kind == KindStopLossLong || t.Kind == KindStopLossShort
}

func (t OrderType) IsLong() bool {
	switch t.Kind {
	case KindBuyLong, KindSellLong, KindTakeProfitLong, KindStopLossLong:
		return true
	}
	return false
}

// TradeType 返回该订单激活后对应的成交类型。
func (t OrderType) TradeType() TradeType {
	switch t.Kind {
	case KindBuyLong:
		return MarketInLong
	case KindBuyShort:
		return MarketInShort
	case KindSellLong, KindTakeProfitLong:
		return MarketOutLong
	case KindSellShort, KindTakeProfitShort:
		return MarketOutShort
	case KindStopLossLong:
		return StopLossLong
	case KindStopLossShort:
		return StopLossShort
	default:
		return TradeNone
	}
}

// Order 是账本中的一条挂单记录。
// 状态只会被到期管理（→canceled）或成交联动（→fulfilled）修改。
type Order struct {
	ID             int64       `json:"id"`
	TradeID        int64       `json:"trade_id"`
	IndexCreated   int         `json:"index_created"`
	IndexFulfilled int         `json:"index_fulfilled"`
	Size           float64     `json:"size"`
	Type           OrderType   `json:"order_type"`
	Status         OrderStatus `json:"status"`
	OriginPrice    float64     `json:"origin_price"`
	TargetPrice    float64     `json:"target_price"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      *time.Time  `json:"updated_at,omitempty"`
	FulfilledAt    *time.Time  `json:"full_filled_at,omitempty"`
	ValidUntil     *time.Time  `json:"valid_until,omitempty"`
}

func (o *Order) IsPending() bool {
	return o.Status == StatusPending
}

// StillValid 判断订单在给定时刻是否仍然有效（未到期且仍在挂单）。
func (o *Order) StillValid(at time.Time) bool {
	if o.Status != StatusPending {
		return false
	}
	if o.ValidUntil == nil {
		return true
	}
	return at.Before(*o.ValidUntil)
}

// Fulfill 标记订单成交。状态迁移单向，已终结的订单不再变化。
func (o *Order) Fulfill(index int, at time.Time) {
	if o.Status != StatusPending {
		return
	}
	o.IndexFulfilled = index
	o.Status = StatusFulfilled
	o.UpdatedAt = &at
	o.FulfilledAt = &at
}

// Cancel 标记订单取消。
func (o *Order) Cancel(at time.Time) {
	if o.Status != StatusPending {
		return
	}
	o.Status = StatusCanceled
	o.UpdatedAt = &at
}

// ExtendValidity 把有效期向后顺延（保留存活止损单用）。
func (o *Order) ExtendValidity(d time.Duration) {
	if o.Status != StatusPending || o.ValidUntil == nil {
		return
	}
	next := o.ValidUntil.Add(d)
	o.ValidUntil = &next
}
