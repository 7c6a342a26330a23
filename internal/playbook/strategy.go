package playbook

import (
	"marlin/internal/config"
	"marlin/internal/engine"
	"marlin/internal/market"
)

// 触发器为纯价格行为判断，不做指标计算。
const (
	TriggerBullishClose = "bullish_close"
	TriggerBearishClose = "bearish_close"
	TriggerBreakout     = "breakout"
	TriggerBreakdown    = "breakdown"
)

func knownTrigger(name string) bool {
	switch name {
	case TriggerBullishClose, TriggerBearishClose, TriggerBreakout, TriggerBreakdown:
		return true
	}
	return false
}

// Strategy 按剧本规则逐 bar 产出下单信号。
// 持仓期间不再开新信号，出场全部交给已挂的止盈/止损单。
type Strategy struct {
	registry *Registry
	cfg      config.EngineConfig
}

func NewStrategy(registry *Registry, cfg config.EngineConfig) *Strategy {
	return &Strategy{registry: registry, cfg: cfg}
}

// Evaluate 返回当前 bar 的信号。规则按 ID 排序逐个尝试，第一个命中生效。
func (s *Strategy) Evaluate(index int, series *market.Series, pricing market.Pricing, open *engine.TradeIn) (engine.Position, error) {
	if open != nil {
		return engine.NonePosition(), nil
	}
	current, err := series.Get(index)
	if err != nil {
		return engine.NonePosition(), err
	}

	for _, id := range s.registry.RuleIDs() {
		rule, ok := s.registry.Rule(id)
		if !ok {
			continue
		}
		hit, err := s.matches(rule, index, series, current)
		if err != nil {
			return engine.NonePosition(), err
		}
		if !hit {
			continue
		}
		return engine.Position{
			Kind:    engine.PositionPlaceOrders,
			Intents: s.buildIntents(rule, current, pricing),
		}, nil
	}
	return engine.NonePosition(), nil
}

func (s *Strategy) matches(rule Rule, index int, series *market.Series, current market.Candle) (bool, error) {
	switch rule.Trigger {
	case TriggerBullishClose:
		return current.IsBullish(), nil
	case TriggerBearishClose:
		return current.IsBearish(), nil
	case TriggerBreakout, TriggerBreakdown:
		lookback := int(rule.FloatParam("lookback", 20))
		if lookback <= 0 || index < lookback {
			return false, nil
		}
		extreme, err := rangeExtreme(series, index-lookback, index-1, rule.Trigger == TriggerBreakout)
		if err != nil {
			return false, err
		}
		if rule.Trigger == TriggerBreakout {
			return current.Close > extreme, nil
		}
		return current.Close < extreme, nil
	}
	return false, nil
}

// buildIntents 把规则参数换算成一组 bracket 挂单：入场 + 止盈 + 止损。
func (s *Strategy) buildIntents(rule Rule, current market.Candle, pricing market.Pricing) []engine.OrderType {
	pip := pricing.PipSize
	entryPips := rule.FloatParam("entry_pips", 10)
	exitPips := rule.FloatParam("exit_pips", 100)
	stopPips := rule.FloatParam("stop_pips", 50)
	size := rule.FloatParam("size", s.cfg.OrderSize)

	if rule.IsLong() {
		entry := current.Close + entryPips*pip
		return []engine.OrderType{
			{Kind: engine.KindBuyLong, Direction: engine.DirectionUp, Size: size, TargetPrice: entry},
			{Kind: engine.KindSellLong, Direction: engine.DirectionUp, Size: size, TargetPrice: entry + exitPips*pip},
			{Kind: engine.KindStopLossLong, Direction: engine.DirectionDown, Size: size, TargetPrice: entry - stopPips*pip, StopKind: engine.StopPrice},
		}
	}
	entry := current.Close - entryPips*pip
	return []engine.OrderType{
		{Kind: engine.KindBuyShort, Direction: engine.DirectionDown, Size: size, TargetPrice: entry},
		{Kind: engine.KindSellShort, Direction: engine.DirectionDown, Size: size, TargetPrice: entry - exitPips*pip},
		{Kind: engine.KindStopLossShort, Direction: engine.DirectionUp, Size: size, TargetPrice: entry + stopPips*pip, StopKind: engine.StopPrice},
	}
}

func rangeExtreme(series *market.Series, from, to int, wantHigh bool) (float64, error) {
	first, err := series.Get(from)
	if err != nil {
		return 0, err
	}
	extreme := first.Low
	if wantHigh {
		extreme = first.High
	}
	for i := from + 1; i <= to; i++ {
		c, err := series.Get(i)
		if err != nil {
			return 0, err
		}
		if wantHigh && c.High > extreme {
			extreme = c.High
		}
		if !wantHigh && c.Low < extreme {
			extreme = c.Low
		}
	}
	return extreme, nil
}
