package config

import "strings"

// Config 是 Marlin 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Engine   EngineConfig   `toml:"engine"`
	Backtest BacktestConfig `toml:"backtest"`
	Live     LiveConfig     `toml:"live"`
	Playbook PlaybookConfig `toml:"playbook"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
}

// EngineConfig 是订单引擎的全部可调参数。
// 显式传入每个入口，不读环境变量，保证同进程内可用不同配置做测试。
type EngineConfig struct {
	ExecutionMode string `toml:"execution_mode"` // backtest | live

	MaxBuyOrders     int `toml:"max_buy_orders"`
	MaxSellOrders    int `toml:"max_sell_orders"`
	MaxStopLosses    int `toml:"max_stop_losses"`
	MaxPendingOrders int `toml:"max_pending_orders"`

	ValidUntilBars int `toml:"valid_until_bars"`

	OrderWithSpread   bool `toml:"order_with_spread"`
	NonProfitableOuts bool `toml:"non_profitable_outs"`

	OrderEngine           string `toml:"order_engine"`            // broker | bot
	OrderActivationSource string `toml:"order_activation_source"` // close | highs_lows

	OrderSize float64 `toml:"order_size"` // 止损单缺省手数
}

// Categories 返回各类挂单上限（买入、卖出/止盈、止损）。
func (e EngineConfig) Categories() (int, int, int) {
	return e.MaxBuyOrders, e.MaxSellOrders, e.MaxStopLosses
}

type BacktestConfig struct {
	DataRoot       string   `toml:"data_root"`
	ResultsRoot    string   `toml:"results_root"`
	HTTPAddr       string   `toml:"http_addr"`
	SourceBaseURL  string   `toml:"source_base_url"`
	Symbols        []string `toml:"symbols"`
	Timeframe      string   `toml:"timeframe"`
	InitialBalance float64  `toml:"initial_balance"`
	MaxConcurrent  int      `toml:"max_concurrent"`
	PipSize        float64  `toml:"pip_size"`
	SpreadPips     float64  `toml:"spread_pips"`
	ReportDir      string   `toml:"report_dir"`
}

type LiveConfig struct {
	Symbol    string  `toml:"symbol"`
	Timeframe string  `toml:"timeframe"`
	PipSize   float64 `toml:"pip_size"`
}

type PlaybookConfig struct {
	Path string `toml:"path"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
