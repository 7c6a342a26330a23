package app

import (
	"context"
	"fmt"

	"marlin/internal/backtest"
	"marlin/internal/config"
	"marlin/internal/engine"
	"marlin/internal/live"
	"marlin/internal/logger"
	"marlin/internal/playbook"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：按执行模式装配回测或实时服务。
type App struct {
	cfg  *config.Config
	mode engine.ExecutionMode

	registry *playbook.Registry

	store   *backtest.Store
	results *backtest.ResultStore
	syncer  *backtest.Syncer
	runner  *backtest.Runner
	httpSrv *backtest.HTTPServer

	liveSvc *live.Service
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	mode, err := engine.ParseMode(cfg.Engine.ExecutionMode)
	if err != nil {
		return nil, err
	}
	registry, err := playbook.NewRegistry(cfg.Playbook.Path)
	if err != nil {
		return nil, fmt.Errorf("loading playbook failed: %w", err)
	}

	a := &App{cfg: cfg, mode: mode, registry: registry}
	if mode.IsBacktest() {
		if err := a.buildBacktest(); err != nil {
			return nil, err
		}
	} else {
		if err := a.buildLive(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *App) buildBacktest() error {
	cfg := a.cfg
	store, err := backtest.NewStore(cfg.Backtest.DataRoot)
	if err != nil {
		return fmt.Errorf("opening candle store failed: %w", err)
	}
	results, err := backtest.NewResultStore(cfg.Backtest.ResultsRoot)
	if err != nil {
		return fmt.Errorf("opening result store failed: %w", err)
	}
	syncer, err := backtest.NewSyncer(backtest.SyncConfig{
		Store: store,
		Sources: map[string]backtest.CandleSource{
			"binance": backtest.NewBinanceSource(cfg.Backtest.SourceBaseURL),
		},
		DefaultExchange: "binance",
		MaxConcurrent:   cfg.Backtest.MaxConcurrent,
	})
	if err != nil {
		return err
	}
	runner, err := backtest.NewRunner(backtest.RunnerConfig{
		Store:    store,
		Results:  results,
		Registry: a.registry,
		Engine:   cfg.Engine,
		Backtest: cfg.Backtest,
	})
	if err != nil {
		return err
	}
	a.store = store
	a.results = results
	a.syncer = syncer
	a.runner = runner

	if cfg.Backtest.HTTPAddr != "" {
		httpSrv, err := backtest.NewHTTPServer(backtest.HTTPConfig{
			Addr:     cfg.Backtest.HTTPAddr,
			Syncer:   syncer,
			Store:    store,
			Runner:   runner,
			Results:  results,
			Registry: a.registry,
		})
		if err != nil {
			return err
		}
		a.httpSrv = httpSrv
	}
	return nil
}

func (a *App) buildLive() error {
	svc, err := live.NewService(*a.cfg, live.NewFeed(""), a.registry)
	if err != nil {
		return err
	}
	a.liveSvc = svc
	return nil
}

// Run 启动服务并阻塞。回测模式下：配了 http_addr 就常驻服务，
// 否则对配置的 symbols 跑一轮后退出。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()

	if a.mode.IsLive() {
		return a.liveSvc.Run(ctx)
	}

	a.syncer.SetContext(ctx)
	if a.httpSrv != nil {
		group, ctx := errgroup.WithContext(ctx)
		group.Go(func() error {
			if err := a.httpSrv.Start(ctx); err != nil {
				return fmt.Errorf("backtest http server error: %w", err)
			}
			return nil
		})
		return group.Wait()
	}

	runs, err := a.runner.RunAll(ctx, backtest.RunRequest{})
	if err != nil {
		return err
	}
	for _, run := range runs {
		logger.Infof("run %s %s: trades=%d profit=%.2f return=%.2f%% maxDD=%.2f%%",
			run.ID, run.Symbol, run.Stats.Trades, run.Stats.Profit, run.Stats.ReturnPct, run.Stats.MaxDrawdownPct)
	}
	return nil
}

func (a *App) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.results != nil {
		_ = a.results.Close()
	}
}
