package live

import (
	"context"
	"fmt"
	"strings"

	"marlin/internal/config"
	"marlin/internal/engine"
	"marlin/internal/logger"
	"marlin/internal/market"
	"marlin/internal/playbook"
)

const historyBootstrap = 500

// Service 是实时模式的主循环：K 线流驱动引擎扫描，盘口流提供报价。
// 单 symbol 单 goroutine，引擎状态不加锁。
type Service struct {
	cfg      config.Config
	feed     *Feed
	registry *playbook.Registry

	eng    *engine.Engine
	strat  *playbook.Strategy
	series *market.Series

	pricing market.Pricing
	open    *engine.TradeIn
}

func NewService(cfg config.Config, feed *Feed, registry *playbook.Registry) (*Service, error) {
	if feed == nil {
		return nil, fmt.Errorf("live: feed required")
	}
	if registry == nil {
		return nil, fmt.Errorf("live: playbook registry required")
	}
	if strings.TrimSpace(cfg.Live.Symbol) == "" {
		return nil, fmt.Errorf("live: symbol required")
	}
	engCfg := cfg.Engine
	engCfg.ExecutionMode = "live"
	eng, err := engine.New(engCfg)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:      cfg,
		feed:     feed,
		registry: registry,
		eng:      eng,
		strat:    playbook.NewStrategy(registry, engCfg),
	}, nil
}

// Run 启动实时循环，阻塞直到 ctx 取消。
func (s *Service) Run(ctx context.Context) error {
	symbol := strings.ToUpper(s.cfg.Live.Symbol)
	tf, err := market.ParseTimeframe(s.cfg.Live.Timeframe)
	if err != nil {
		return err
	}
	history, err := s.feed.History(ctx, symbol, tf.SourceInterval, historyBootstrap)
	if err != nil {
		return fmt.Errorf("live: bootstrap history: %w", err)
	}
	if len(history) == 0 {
		return fmt.Errorf("live: no history for %s %s", symbol, tf.Key)
	}
	s.series = market.NewSeries(symbol, tf, history)
	logger.Infof("live %s %s started with %d history candles", symbol, tf.Key, len(history))

	last, _ := s.series.Last()
	s.pricing = fallbackPricing(symbol, last.Close, s.cfg.Live.PipSize)

	candles := s.feed.StreamKlines(ctx, symbol, tf.SourceInterval, 0)
	quotes := s.feed.StreamQuotes(ctx, symbol, s.cfg.Live.PipSize, 0)

	for {
		select {
		case <-ctx.Done():
			logger.Infof("live %s stopped", symbol)
			return nil
		case p, ok := <-quotes:
			if ok {
				s.pricing = p
			}
		case c, ok := <-candles:
			if !ok {
				return fmt.Errorf("live: kline stream closed")
			}
			if err := s.onCandle(c); err != nil {
				logger.Errorf("live %s scan failed: %v", symbol, err)
			}
		}
	}
}

// onCandle 把最新 K 线合并进序列后执行一次扫描。
// 策略只在收盘 bar 上产出新信号，挂单激活则每次更新都会检查。
func (s *Service) onCandle(c market.Candle) error {
	last, err := s.series.Last()
	if err != nil {
		return err
	}
	switch {
	case c.OpenTime > last.OpenTime:
		if err := s.series.Append(c); err != nil {
			return err
		}
	case c.OpenTime == last.OpenTime:
		if err := s.series.ReplaceLast(c); err != nil {
			return err
		}
	default:
		// 迟到的旧 bar，直接忽略
		return nil
	}

	index := s.series.LastIndex()
	signal := engine.NonePosition()
	if c.Closed {
		signal, err = s.strat.Evaluate(index, s.series, s.pricing, s.open)
		if err != nil {
			return err
		}
	}
	res, err := s.eng.Step(index, s.series, s.pricing, signal, s.open)
	if err != nil {
		return err
	}
	if len(res.Placed) > 0 {
		logger.Infof("live %s placed %d orders", s.series.Symbol, len(res.Placed))
	}
	if res.TradeIn != nil {
		s.open = res.TradeIn
		logger.Infof("live %s entered %s at %.5f qty=%.4f",
			s.series.Symbol, res.TradeIn.TradeType, res.TradeIn.PriceIn, res.TradeIn.Quantity)
	}
	if res.TradeOut != nil {
		logger.Infof("live %s exited %s in=%.5f out=%.5f",
			s.series.Symbol, res.TradeOut.TradeType, res.TradeOut.PriceIn, res.TradeOut.PriceOut)
		s.open = nil
	}
	return nil
}

// fallbackPricing 在首个盘口报价到达前用收盘价近似。
func fallbackPricing(symbol string, close, pipSize float64) market.Pricing {
	spread := pipSize
	if spread <= 0 {
		spread = close * 0.0001
	}
	return market.NewPricing(symbol, close+spread, close, pipSize)
}
