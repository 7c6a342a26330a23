package engine

import (
	"fmt"
	"time"

	"marlin/internal/config"
	"marlin/internal/logger"
	"marlin/internal/market"
)

// 开仓成交后给剩余挂单（止损、止盈）顺延的 bar 数，
// 保证它们在持仓期间不会先行到期。
const holdExtensionBars = 10000

// Engine 把账本、校验器和成交解析器编排成单线程的逐 bar 扫描循环。
// 回测和实时共用同一套流程，分叉全部收敛在 ExecutionMode 里。
type Engine struct {
	cfg      config.EngineConfig
	mode     ExecutionMode
	book     *Book
	resolver *Resolver
}

func New(cfg config.EngineConfig) (*Engine, error) {
	mode, err := ParseMode(cfg.ExecutionMode)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	book, err := NewBook(cfg)
	if err != nil {
		return nil, err
	}
	resolver, err := NewResolver(cfg)
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, mode: mode, book: book, resolver: resolver}, nil
}

func (e *Engine) Mode() ExecutionMode {
	return e.mode
}

func (e *Engine) Book() *Book {
	return e.book
}

// StepResult 汇总一次扫描里发生的所有事情。
type StepResult struct {
	Position Position
	TradeIn  *TradeIn
	TradeOut *TradeOut
	Placed   []Order
	Expired  int
}

// Step 执行一次完整扫描：先清理到期挂单，再解析激活，最后落到策略
// 信号。挂单激活优先于同一 bar 的直接市价信号。
func (e *Engine) Step(index int, series *market.Series, pricing market.Pricing, signal Position, open *TradeIn) (StepResult, error) {
	res := StepResult{Position: NonePosition()}

	now, err := e.clock(index, series)
	if err != nil {
		return res, err
	}
	res.Expired = e.book.CancelExpired(now)

	if signal.Kind == PositionPlaceOrders {
		placed, err := e.SubmitIntents(index, series, pricing, signal.Intents)
		if err != nil {
			if IsFatalReject(err) {
				return res, err
			}
			logger.Warnf("order batch rejected: %v", err)
		}
		res.Placed = placed
	}

	active, err := e.book.ResolveActive(index, series)
	if err != nil {
		return res, err
	}

	switch {
	case active.Kind == PositionMarketInOrder:
		if open != nil {
			logger.Warnf("entry order %d activated while a trade is open, skipping", active.Order.ID)
			break
		}
		ti, err := e.resolver.ResolveTradeIn(index, active.Order.Size, series, pricing, active.Order.Type.TradeType(), active.Order)
		if err != nil {
			return res, err
		}
		if ti != nil {
			e.book.Fulfill(e.fillIndex(index, series), ti.DateIn, *active.Order)
			e.book.ExtendAllPending(holdExtensionBars * series.Timeframe.Duration)
			res.Position = active
			res.TradeIn = ti
		}

	case active.Kind == PositionMarketOutOrder:
		if open == nil {
			logger.Warnf("exit order %d activated without an open trade, skipping", active.Order.ID)
			break
		}
		to, err := e.resolver.ResolveTradeOut(index, series, pricing, open, active.Order.Type.TradeType(), active.Order)
		if err != nil {
			return res, err
		}
		res.Position = active
		if to != nil {
			e.book.Fulfill(e.fillIndex(index, series), to.DateOut, *active.Order)
			e.book.CancelAllPending(to.DateOut)
			res.TradeOut = to
		}

	case signal.Kind == PositionMarketIn && open == nil:
		tradeType := MarketInLong
		if len(signal.Intents) > 0 && !signal.Intents[0].IsLong() {
			tradeType = MarketInShort
		}
		ti, err := e.resolver.ResolveTradeIn(index, e.cfg.OrderSize, series, pricing, tradeType, nil)
		if err != nil {
			return res, err
		}
		if ti != nil {
			res.Position = signal
			res.TradeIn = ti
		}

	case signal.Kind == PositionMarketOut && open != nil:
		tradeType := MarketOutLong
		if open.TradeType.IsShort() {
			tradeType = MarketOutShort
		}
		to, err := e.resolver.ResolveTradeOut(index, series, pricing, open, tradeType, nil)
		if err != nil {
			return res, err
		}
		res.Position = signal
		if to != nil {
			e.book.CancelAllPending(to.DateOut)
			res.TradeOut = to
		}
	}

	return res, nil
}

// SubmitIntents 把策略产出的意图批量转换成挂单并入账。
// 校验失败或容量不足时整批丢弃，账本不变。
func (e *Engine) SubmitIntents(index int, series *market.Series, pricing market.Pricing, intents []OrderType) ([]Order, error) {
	if len(intents) == 0 {
		return nil, nil
	}
	tradeType := MarketInLong
	for _, intent := range intents {
		if intent.IsEntry() && !intent.IsLong() {
			tradeType = MarketInShort
		}
	}
	orders, err := PrepareOrders(index, series, pricing, tradeType, intents, e.cfg)
	if err != nil {
		return nil, err
	}
	if err := e.book.InsertBatch(orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// clock 返回到期判定用的时间：回测用 bar 时间，实时用挂钟。
func (e *Engine) clock(index int, series *market.Series) (time.Time, error) {
	if e.mode.IsBacktest() {
		current, err := series.Get(index)
		if err != nil {
			return time.Time{}, err
		}
		return current.Date(), nil
	}
	return time.Now(), nil
}

// fillIndex 是成交联动时写回订单的下标：回测为成交 bar，实时取序列尾。
func (e *Engine) fillIndex(index int, series *market.Series) int {
	if e.mode.IsBacktest() {
		return e.resolver.TradeIndex(index)
	}
	return series.LastIndex()
}
