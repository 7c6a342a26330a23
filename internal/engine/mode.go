package engine

import (
	"fmt"
	"strings"
)

// ExecutionMode 区分回测与实时两种时间线。
// 回测以数组下标为时间线（下一根 bar 成交），实时以事件为时间线。
type ExecutionMode int

const (
	Backtest ExecutionMode = iota
	Live
)

func (m ExecutionMode) IsBacktest() bool { return m == Backtest }
func (m ExecutionMode) IsLive() bool     { return m == Live }

func (m ExecutionMode) String() string {
	switch m {
	case Backtest:
		return "backtest"
	case Live:
		return "live"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode 解析配置中的 execution_mode。
func ParseMode(input string) (ExecutionMode, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "backtest", "back_test":
		return Backtest, nil
	case "live", "bot":
		return Live, nil
	default:
		return Backtest, fmt.Errorf("unknown execution mode: %q", input)
	}
}
