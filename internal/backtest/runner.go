package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"marlin/internal/config"
	"marlin/internal/engine"
	"marlin/internal/logger"
	"marlin/internal/market"
	"marlin/internal/playbook"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RunnerConfig 聚合 Runner 依赖。
type RunnerConfig struct {
	Store    *Store
	Results  *ResultStore
	Registry *playbook.Registry
	Engine   config.EngineConfig
	Backtest config.BacktestConfig
}

// Runner 驱动多品种回测：从本地库读 K 线，逐 bar 扫描引擎，
// 把成交与权益曲线落到结果库。
type Runner struct {
	store    *Store
	results  *ResultStore
	registry *playbook.Registry
	engCfg   config.EngineConfig
	btCfg    config.BacktestConfig
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Store == nil || cfg.Results == nil {
		return nil, fmt.Errorf("runner: store and result store required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("runner: playbook registry required")
	}
	engCfg := cfg.Engine
	engCfg.ExecutionMode = "backtest"
	return &Runner{
		store:    cfg.Store,
		results:  cfg.Results,
		registry: cfg.Registry,
		engCfg:   engCfg,
		btCfg:    cfg.Backtest,
	}, nil
}

// RunRequest 描述一次回测请求。Start/End 为 0 时使用全部本地数据。
type RunRequest struct {
	Symbols        []string `json:"symbols"`
	Timeframe      string   `json:"timeframe"`
	Start          int64    `json:"start"`
	End            int64    `json:"end"`
	InitialBalance float64  `json:"initial_balance"`
}

// RunAll 并发回测多个品种，单个品种失败不影响其余。
func (r *Runner) RunAll(ctx context.Context, req RunRequest) ([]Run, error) {
	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols = r.btCfg.Symbols
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("runner: no symbols")
	}
	timeframe := req.Timeframe
	if timeframe == "" {
		timeframe = r.btCfg.Timeframe
	}
	tf, err := market.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	balance := req.InitialBalance
	if balance <= 0 {
		balance = r.btCfg.InitialBalance
	}
	if balance <= 0 {
		return nil, fmt.Errorf("runner: initial balance must be positive")
	}

	maxConcurrent := r.btCfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	var mu sync.Mutex
	runs := make([]Run, 0, len(symbols))
	for _, symbol := range symbols {
		symbol := strings.ToUpper(symbol)
		g.Go(func() error {
			run, err := r.runSymbol(gctx, symbol, tf, req.Start, req.End, balance)
			if err != nil {
				logger.Errorf("backtest %s failed: %v", symbol, err)
				return nil
			}
			mu.Lock()
			runs = append(runs, run)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return runs, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("runner: all symbols failed")
	}
	return runs, nil
}

func (r *Runner) runSymbol(ctx context.Context, symbol string, tf market.Timeframe, start, end int64, balance float64) (Run, error) {
	var candles []market.Candle
	var err error
	if start > 0 && end > start {
		candles, err = r.store.RangeCandles(ctx, symbol, tf.Key, start, end)
	} else {
		candles, err = r.store.ListAllCandles(ctx, symbol, tf.Key)
	}
	if err != nil {
		return Run{}, err
	}
	if len(candles) < 2 {
		return Run{}, fmt.Errorf("not enough candles for %s %s: %d", symbol, tf.Key, len(candles))
	}

	cfgJSON, err := json.Marshal(r.engCfg)
	if err != nil {
		return Run{}, err
	}
	run := Run{
		ID:             uuid.NewString(),
		Symbol:         symbol,
		Timeframe:      tf.Key,
		Status:         RunStatusRunning,
		StartTS:        candles[0].OpenTime,
		EndTS:          candles[len(candles)-1].OpenTime,
		InitialBalance: balance,
		Config:         cfgJSON,
	}
	if err := r.results.InsertRun(ctx, run); err != nil {
		return Run{}, err
	}
	logger.Infof("backtest %s started: %s %s candles=%d", run.ID, symbol, tf.Key, len(candles))

	stats, err := r.scan(ctx, run.ID, symbol, tf, candles, balance)
	if err != nil {
		_ = r.results.UpdateRunSummary(ctx, run.ID, RunStatusFailed, stats, err.Error())
		return Run{}, err
	}
	if err := r.results.UpdateRunSummary(ctx, run.ID, RunStatusDone, stats, ""); err != nil {
		return Run{}, err
	}
	run.Status = RunStatusDone
	run.Stats = stats

	if r.btCfg.ReportDir != "" {
		if path, rErr := r.writeReport(ctx, run, candles); rErr != nil {
			logger.Warnf("report for %s skipped: %v", run.ID, rErr)
		} else {
			logger.Infof("report for %s written to %s", run.ID, path)
		}
	}
	logger.Infof("backtest %s finished: trades=%d profit=%.2f return=%.2f%%",
		run.ID, stats.Trades, stats.Profit, stats.ReturnPct)
	return run, nil
}

// scan 是回测主循环。最后一根 bar 不扫描：成交价取自下一根开盘价。
func (r *Runner) scan(ctx context.Context, runID, symbol string, tf market.Timeframe, candles []market.Candle, initial float64) (RunStats, error) {
	series := market.NewSeries(symbol, tf, candles)
	eng, err := engine.New(r.engCfg)
	if err != nil {
		return RunStats{}, err
	}
	strat := playbook.NewStrategy(r.registry, r.engCfg)
	pricing := market.Pricing{
		Symbol:  symbol,
		Spread:  r.btCfg.SpreadPips * r.btCfg.PipSize,
		PipSize: r.btCfg.PipSize,
	}

	stride := len(candles) / 500
	if stride < 1 {
		stride = 1
	}

	balance := initial
	peak := initial
	maxDrawdownPct := 0.0
	var wins, losses int
	var open *engine.TradeIn

	for i := 0; i < series.Len()-1; i++ {
		if err := ctx.Err(); err != nil {
			return r.finishStats(initial, balance, wins, losses, maxDrawdownPct), err
		}
		signal, err := strat.Evaluate(i, series, pricing, open)
		if err != nil {
			return r.finishStats(initial, balance, wins, losses, maxDrawdownPct), err
		}
		res, err := eng.Step(i, series, pricing, signal, open)
		if err != nil {
			return r.finishStats(initial, balance, wins, losses, maxDrawdownPct), err
		}
		if res.TradeIn != nil {
			open = res.TradeIn
		}
		if res.TradeOut != nil {
			quantity := 0.0
			if open != nil {
				quantity = open.Quantity
			}
			balance += res.TradeOut.Profit
			if res.TradeOut.Profit >= 0 {
				wins++
			} else {
				losses++
			}
			if _, err := r.results.InsertTrade(ctx, runID, *res.TradeOut, quantity); err != nil {
				return r.finishStats(initial, balance, wins, losses, maxDrawdownPct), err
			}
			open = nil
		}

		equity := balance + unrealized(open, candles[i].Close)
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak * 100; dd > maxDrawdownPct {
				maxDrawdownPct = dd
			}
		}
		if i%stride == 0 || res.TradeOut != nil {
			snap := EquitySnapshot{
				RunID:    runID,
				TS:       candles[i].OpenTime,
				Equity:   equity,
				Balance:  balance,
				Drawdown: maxDrawdownPct,
			}
			if err := r.results.InsertSnapshot(ctx, snap); err != nil {
				return r.finishStats(initial, balance, wins, losses, maxDrawdownPct), err
			}
		}
	}
	return r.finishStats(initial, balance, wins, losses, maxDrawdownPct), nil
}

func (r *Runner) finishStats(initial, balance float64, wins, losses int, maxDD float64) RunStats {
	trades := wins + losses
	stats := RunStats{
		FinalBalance:   balance,
		Profit:         balance - initial,
		MaxDrawdownPct: maxDD,
		Trades:         trades,
		Wins:           wins,
		Losses:         losses,
	}
	if initial > 0 {
		stats.ReturnPct = (balance - initial) / initial * 100
	}
	if trades > 0 {
		stats.WinRate = float64(wins) / float64(trades) * 100
	}
	return stats
}

// unrealized 计算持仓的浮动盈亏（无持仓为 0）。
func unrealized(open *engine.TradeIn, price float64) float64 {
	if open == nil {
		return 0
	}
	if open.TradeType.IsLong() {
		return (price - open.PriceIn) * open.Quantity
	}
	return (open.PriceIn - price) * open.Quantity
}

func (r *Runner) writeReport(ctx context.Context, run Run, candles []market.Candle) (string, error) {
	trades, err := r.results.ListTrades(ctx, run.ID, 1000)
	if err != nil {
		return "", err
	}
	snaps, err := r.results.ListSnapshots(ctx, run.ID, 5000)
	if err != nil {
		return "", err
	}
	return WriteRunReport(r.btCfg.ReportDir, run, candles, trades, snaps)
}
