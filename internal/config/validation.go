package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	return nil
}

func (e *EngineConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.ExecutionMode)) {
	case "backtest", "live":
	default:
		return fmt.Errorf("engine.execution_mode must be backtest or live, got %q", e.ExecutionMode)
	}
	switch strings.ToLower(strings.TrimSpace(e.OrderEngine)) {
	case "broker", "bot":
	default:
		return fmt.Errorf("engine.order_engine must be broker or bot, got %q", e.OrderEngine)
	}
	switch strings.ToLower(strings.TrimSpace(e.OrderActivationSource)) {
	case "close", "highs_lows":
	default:
		return fmt.Errorf("engine.order_activation_source must be close or highs_lows, got %q", e.OrderActivationSource)
	}
	if e.MaxPendingOrders < e.MaxBuyOrders {
		return fmt.Errorf("engine.max_pending_orders (%d) must be >= engine.max_buy_orders (%d)", e.MaxPendingOrders, e.MaxBuyOrders)
	}
	if e.ValidUntilBars <= 0 {
		return fmt.Errorf("engine.valid_until_bars must be > 0")
	}
	if e.OrderSize <= 0 {
		return fmt.Errorf("engine.order_size must be > 0")
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if len(b.Symbols) == 0 {
		return nil
	}
	for _, s := range b.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("backtest.symbols contains an empty symbol")
		}
	}
	return nil
}
