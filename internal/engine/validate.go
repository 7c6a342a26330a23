package engine

import (
	"fmt"

	"marlin/internal/config"
	"marlin/internal/logger"
	"marlin/internal/market"
)

// PrepareOrders 校验一批下单意图并生成挂单记录。
// 任一意图目标价方向非法，或批内止损/止盈与入场价的相对位置错误，
// 整批丢弃（原子接受），账本不受影响，调用方下一步可带修正后的意图重试。
func PrepareOrders(index int, series *market.Series, pricing market.Pricing, tradeType TradeType, intents []OrderType, cfg config.EngineConfig) ([]Order, error) {
	mode, err := ParseMode(cfg.ExecutionMode)
	if err != nil {
		return nil, err
	}

	current, err := currentCandle(index, series, mode)
	if err != nil {
		return nil, err
	}
	closePrice := current.Close
	tradeID := TimeID(current.Date())

	var (
		buyTarget     float64
		sellTarget    float64
		stopTarget    float64
		stopDirection OrderDirection
		hasStop       bool
	)
	orders := make([]Order, 0, len(intents))

	for _, intent := range intents {
		if intent.IsStop() {
			refPrice := current.Open
			size := cfg.OrderSize
			if len(orders) > 0 {
				refPrice = orders[0].TargetPrice
				size = orders[0].Size
			}
			stop, err := newStopLossOrder(index, tradeID, series, pricing, intent, refPrice, size, cfg, mode)
			if err != nil {
				return nil, err
			}
			stopTarget = stop.TargetPrice
			stopDirection = intent.Direction
			hasStop = true
			orders = append(orders, stop)
			continue
		}

		if err := validateTargetPrice(intent, closePrice); err != nil {
			logger.Errorf("order %s not valid: %v", intent.Kind, err)
			return nil, err
		}
		order, err := newOrder(index, tradeID, series, intent, intent.TargetPrice, intent.Size, cfg, mode)
		if err != nil {
			return nil, err
		}
		if intent.IsEntry() {
			buyTarget = entryAccountingPrice(intent, order.TargetPrice, pricing.Spread, cfg.OrderWithSpread)
		} else {
			sellTarget = exitAccountingPrice(intent, order.TargetPrice, pricing.Spread, cfg.OrderWithSpread)
		}
		orders = append(orders, order)
	}

	// 止损必须落在入场目标的亏损侧。
	if hasStop && buyTarget > 0 {
		switch stopDirection {
		case DirectionDown:
			if decGTE(stopTarget, buyTarget) {
				logger.Errorf("stop loss can't be placed higher than buy level (%v, %v)", buyTarget, stopTarget)
				return nil, &RejectError{
					Reason: RejectStopSide,
					Detail: fmt.Sprintf("stop %.5f >= buy %.5f", stopTarget, buyTarget),
				}
			}
		default:
			if decLTE(stopTarget, buyTarget) {
				logger.Errorf("stop loss can't be placed lower than buy level (%v, %v)", buyTarget, stopTarget)
				return nil, &RejectError{
					Reason: RejectStopSide,
					Detail: fmt.Sprintf("stop %.5f <= buy %.5f", stopTarget, buyTarget),
				}
			}
		}
	}

	// 止盈/退出目标相对入场目标的排序检查。
	if sellTarget > 0 {
		if tradeType.IsLong() && decLTE(sellTarget, buyTarget) {
			logger.Errorf("sell order can't be placed lower than buy level (%v, %v)", buyTarget, sellTarget)
			return nil, &RejectError{
				Reason: RejectExitSide,
				Detail: fmt.Sprintf("sell %.5f <= buy %.5f", sellTarget, buyTarget),
			}
		}
		if !tradeType.IsLong() && buyTarget > 0 && decGTE(sellTarget, buyTarget) {
			logger.Errorf("sell order can't be placed higher than buy level (%v, %v)", buyTarget, sellTarget)
			return nil, &RejectError{
				Reason: RejectExitSide,
				Detail: fmt.Sprintf("sell %.5f >= buy %.5f", sellTarget, buyTarget),
			}
		}
	}

	return orders, nil
}

// validateTargetPrice 要求目标价严格落在现价的方向侧：
// Up 必须高于收盘价，Down 必须低于收盘价。原设计在此直接 panic，
// 这里改为带 Fatal 标记的拒绝错误，由调用方决定升级与否。
func validateTargetPrice(intent OrderType, closePrice float64) error {
	switch intent.Direction {
	case DirectionUp:
		if decGTE(closePrice, intent.TargetPrice) {
			return &RejectError{
				Reason: RejectTargetCrossed,
				Kind:   intent.Kind,
				Detail: fmt.Sprintf("target %.5f not above close %.5f", intent.TargetPrice, closePrice),
				Fatal:  true,
			}
		}
	case DirectionDown:
		if decLTE(closePrice, intent.TargetPrice) {
			return &RejectError{
				Reason: RejectTargetCrossed,
				Kind:   intent.Kind,
				Detail: fmt.Sprintf("target %.5f not below close %.5f", intent.TargetPrice, closePrice),
				Fatal:  true,
			}
		}
	default:
		return &RejectError{
			Reason: RejectTargetCrossed,
			Kind:   intent.Kind,
			Detail: fmt.Sprintf("unknown direction %q", intent.Direction),
			Fatal:  true,
		}
	}
	return nil
}

// entryAccountingPrice 计算买单在批内一致性检查时使用的价位，
// order_with_spread=false 时补上点差。
func entryAccountingPrice(intent OrderType, target, spread float64, withSpread bool) float64 {
	if intent.IsLong() && !withSpread {
		return target + spread
	}
	return target
}

func exitAccountingPrice(intent OrderType, target, spread float64, withSpread bool) float64 {
	if !intent.IsLong() && !withSpread {
		return target + spread
	}
	return target
}

func currentCandle(index int, series *market.Series, mode ExecutionMode) (market.Candle, error) {
	if mode.IsBacktest() {
		return series.Get(index)
	}
	return series.Last()
}

func newOrder(index int, tradeID int64, series *market.Series, intent OrderType, targetPrice, size float64, cfg config.EngineConfig, mode ExecutionMode) (Order, error) {
	current, err := currentCandle(index, series, mode)
	if err != nil {
		return Order{}, err
	}
	date := current.Date()
	validUntil := series.Timeframe.ValidUntil(date, cfg.ValidUntilBars)
	return Order{
		ID:           TimeID(date),
		TradeID:      tradeID,
		IndexCreated: index,
		Size:         size,
		Type:         intent,
		Status:       StatusPending,
		OriginPrice:  current.Close,
		TargetPrice:  targetPrice,
		CreatedAt:    date,
		ValidUntil:   &validUntil,
	}, nil
}

// newStopLossOrder 由止损意图推导目标价：price 类型直接用给定价，
// pips 类型按参考价 ± N 个 pip；缺省落在参考价的亏损侧一个点差。
func newStopLossOrder(index int, tradeID int64, series *market.Series, pricing market.Pricing, intent OrderType, refPrice, size float64, cfg config.EngineConfig, mode ExecutionMode) (Order, error) {
	target := deriveStopTarget(intent, refPrice, pricing)
	stop := intent
	stop.Size = size
	stop.TargetPrice = target
	order, err := newOrder(index, tradeID, series, stop, target, size, cfg, mode)
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func deriveStopTarget(intent OrderType, refPrice float64, pricing market.Pricing) float64 {
	switch intent.StopKind {
	case StopPips:
		delta := intent.TargetPrice * pricing.PipSize
		if intent.Direction == DirectionDown {
			return refPrice - delta
		}
		return refPrice + delta
	default:
		if intent.TargetPrice > 0 {
			return intent.TargetPrice
		}
		if intent.Direction == DirectionDown {
			return refPrice - pricing.Spread
		}
		return refPrice + pricing.Spread
	}
}
