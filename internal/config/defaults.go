package config

import "strings"

// 默认值常量
const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppLogPath  = ""

	defaultExecutionMode    = "backtest"
	defaultMaxBuyOrders     = 1
	defaultMaxSellOrders    = 1
	defaultMaxStopLosses    = 1
	defaultMaxPendingOrders = 3
	defaultValidUntilBars   = 5
	defaultOrderEngine      = "bot"
	defaultActivationSource = "highs_lows"
	defaultOrderSize        = 1

	defaultBacktestDataRoot    = "data/candles"
	defaultBacktestResultsRoot = "data/results"
	defaultBacktestHTTPAddr    = ":9985"
	defaultBacktestSourceURL   = "https://fapi.binance.com"
	defaultBacktestTimeframe   = "1h"
	defaultBacktestBalance     = 10000
	defaultBacktestConcurrent  = 1
	defaultBacktestPipSize     = 0.0001
	defaultBacktestReportDir   = "data/reports"

	defaultLiveTimeframe = "1h"
	defaultLivePipSize   = 0.0001

	defaultPlaybookPath = "configs/playbook.yaml"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Live.applyDefaults(keys)
	c.Playbook.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("engine.execution_mode", &e.ExecutionMode, defaultExecutionMode),
		stringFieldDefault("engine.order_engine", &e.OrderEngine, defaultOrderEngine),
		stringFieldDefault("engine.order_activation_source", &e.OrderActivationSource, defaultActivationSource),
		intFieldDefault("engine.max_buy_orders", &e.MaxBuyOrders, defaultMaxBuyOrders),
		intFieldDefault("engine.max_sell_orders", &e.MaxSellOrders, defaultMaxSellOrders),
		intFieldDefault("engine.max_stop_losses", &e.MaxStopLosses, defaultMaxStopLosses),
		intFieldDefault("engine.max_pending_orders", &e.MaxPendingOrders, defaultMaxPendingOrders),
		intFieldDefault("engine.valid_until_bars", &e.ValidUntilBars, defaultValidUntilBars),
		fieldDefault{
			key:   "engine.order_size",
			need:  func() bool { return e.OrderSize <= 0 },
			apply: func() { e.OrderSize = defaultOrderSize },
		},
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("backtest.data_root", &b.DataRoot, defaultBacktestDataRoot),
		stringFieldDefault("backtest.results_root", &b.ResultsRoot, defaultBacktestResultsRoot),
		stringFieldDefault("backtest.http_addr", &b.HTTPAddr, defaultBacktestHTTPAddr),
		stringFieldDefault("backtest.source_base_url", &b.SourceBaseURL, defaultBacktestSourceURL),
		stringFieldDefault("backtest.timeframe", &b.Timeframe, defaultBacktestTimeframe),
		stringFieldDefault("backtest.report_dir", &b.ReportDir, defaultBacktestReportDir),
		intFieldDefault("backtest.max_concurrent", &b.MaxConcurrent, defaultBacktestConcurrent),
		fieldDefault{
			key:   "backtest.initial_balance",
			need:  func() bool { return b.InitialBalance <= 0 },
			apply: func() { b.InitialBalance = defaultBacktestBalance },
		},
		fieldDefault{
			key:   "backtest.pip_size",
			need:  func() bool { return b.PipSize <= 0 },
			apply: func() { b.PipSize = defaultBacktestPipSize },
		},
	)
}

func (l *LiveConfig) applyDefaults(keys keySet) {
	if l == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("live.timeframe", &l.Timeframe, defaultLiveTimeframe),
		fieldDefault{
			key:   "live.pip_size",
			need:  func() bool { return l.PipSize <= 0 },
			apply: func() { l.PipSize = defaultLivePipSize },
		},
	)
}

func (p *PlaybookConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("playbook.path", &p.Path, defaultPlaybookPath),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
