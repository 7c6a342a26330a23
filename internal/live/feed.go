package live

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"marlin/internal/logger"
	"marlin/internal/market"

	"github.com/adshao/go-binance/v2/futures"
)

const maxHistoryLimit = 1500

// Feed 基于 go-binance SDK 提供实时行情：历史 K 线、K 线流与盘口流。
type Feed struct {
	client *futures.Client
}

func NewFeed(baseURL string) *Feed {
	client := futures.NewClient("", "")
	if base := strings.TrimSpace(baseURL); base != "" {
		client.BaseURL = base
	}
	return &Feed{client: client}
}

// History 拉取最近的已收盘 K 线，末尾未收盘的 bar 会被丢弃。
func (f *Feed) History(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	interval = strings.ToLower(strings.TrimSpace(interval))
	if symbol == "" || interval == "" {
		return nil, fmt.Errorf("symbol/interval required")
	}
	if limit <= 0 {
		limit = 500
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	kls, err := f.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		c := market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
			Closed:    kl.CloseTime < now,
		}
		if !c.Closed {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// StreamKlines 订阅 K 线流，断线自动重连（指数退避，封顶 30s）。
func (f *Feed) StreamKlines(ctx context.Context, symbol, interval string, buffer int) <-chan market.Candle {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	interval = strings.ToLower(strings.TrimSpace(interval))
	if buffer <= 0 {
		buffer = 512
	}
	out := make(chan market.Candle, buffer)
	go func() {
		defer close(out)
		delay := time.Second
		for {
			if ctx.Err() != nil {
				return
			}
			handler := func(ev *futures.WsKlineEvent) {
				if ev == nil {
					return
				}
				c := market.Candle{
					OpenTime:  ev.Kline.StartTime,
					CloseTime: ev.Kline.EndTime,
					Open:      parseFloat(ev.Kline.Open),
					High:      parseFloat(ev.Kline.High),
					Low:       parseFloat(ev.Kline.Low),
					Close:     parseFloat(ev.Kline.Close),
					Volume:    parseFloat(ev.Kline.Volume),
					Trades:    ev.Kline.TradeNum,
					Closed:    ev.Kline.IsFinal,
				}
				select {
				case <-ctx.Done():
				case out <- c:
				default:
					logger.Warnf("kline channel full, drop %s %s", symbol, interval)
				}
			}
			errHandler := func(err error) {
				if err != nil {
					logger.Warnf("kline stream %s error: %v", symbol, err)
				}
			}
			doneC, stopC, err := futures.WsKlineServe(symbol, interval, handler, errHandler)
			if err != nil {
				logger.Errorf("kline subscribe %s failed: %v", symbol, err)
				if !sleepWithContext(ctx, delay) {
					return
				}
				delay = nextDelay(delay)
				continue
			}
			delay = time.Second
			select {
			case <-ctx.Done():
				close(stopC)
				<-doneC
				return
			case <-doneC:
			}
			close(stopC)
			logger.Warnf("kline stream %s disconnected, reconnecting", symbol)
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
		}
	}()
	return out
}

// StreamQuotes 订阅盘口最优买卖价，转换成报价快照。
func (f *Feed) StreamQuotes(ctx context.Context, symbol string, pipSize float64, buffer int) <-chan market.Pricing {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if buffer <= 0 {
		buffer = 1024
	}
	out := make(chan market.Pricing, buffer)
	go func() {
		defer close(out)
		delay := time.Second
		for {
			if ctx.Err() != nil {
				return
			}
			handler := func(ev *futures.WsBookTickerEvent) {
				if ev == nil {
					return
				}
				ask := parseFloat(ev.BestAskPrice)
				bid := parseFloat(ev.BestBidPrice)
				if ask <= 0 || bid <= 0 {
					return
				}
				p := market.NewPricing(symbol, ask, bid, pipSize)
				select {
				case <-ctx.Done():
				case out <- p:
				default:
					// 报价流只关心最新值，丢弃积压的旧报价
				}
			}
			errHandler := func(err error) {
				if err != nil {
					logger.Warnf("book ticker %s error: %v", symbol, err)
				}
			}
			doneC, stopC, err := futures.WsBookTickerServe(symbol, handler, errHandler)
			if err != nil {
				logger.Errorf("book ticker subscribe %s failed: %v", symbol, err)
				if !sleepWithContext(ctx, delay) {
					return
				}
				delay = nextDelay(delay)
				continue
			}
			delay = time.Second
			select {
			case <-ctx.Done():
				close(stopC)
				<-doneC
				return
			case <-doneC:
			}
			close(stopC)
			logger.Warnf("book ticker %s disconnected, reconnecting", symbol)
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
		}
	}()
	return out
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	next := current * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}
