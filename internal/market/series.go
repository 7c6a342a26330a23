package market

import "fmt"

// Series 持有按时间升序排列的 K 线窗口。
// 回测模式下长度固定，实时模式下只会向尾部追加。
type Series struct {
	Symbol    string
	Timeframe Timeframe
	candles   []Candle
}

func NewSeries(symbol string, tf Timeframe, candles []Candle) *Series {
	return &Series{Symbol: symbol, Timeframe: tf, candles: candles}
}

func (s *Series) Len() int {
	return len(s.candles)
}

// Get 返回指定下标的 K 线；越界返回 error，绝不伪造价格。
func (s *Series) Get(index int) (Candle, error) {
	if index < 0 || index >= len(s.candles) {
		return Candle{}, fmt.Errorf("series %s: no candle at index %d (len=%d)", s.Symbol, index, len(s.candles))
	}
	return s.candles[index], nil
}

// Last 返回最新一根 K 线。
func (s *Series) Last() (Candle, error) {
	if len(s.candles) == 0 {
		return Candle{}, fmt.Errorf("series %s: empty", s.Symbol)
	}
	return s.candles[len(s.candles)-1], nil
}

// LastIndex 返回最新一根 K 线的下标（空窗口为 -1）。
func (s *Series) LastIndex() int {
	return len(s.candles) - 1
}

// Append 向尾部追加 K 线（实时模式）。时间必须不早于当前尾部。
func (s *Series) Append(c Candle) error {
	if n := len(s.candles); n > 0 && c.OpenTime < s.candles[n-1].OpenTime {
		return fmt.Errorf("series %s: out-of-order candle %d < %d", s.Symbol, c.OpenTime, s.candles[n-1].OpenTime)
	}
	s.candles = append(s.candles, c)
	return nil
}

// ReplaceLast 用最新报价刷新未收盘的尾部 K 线。
func (s *Series) ReplaceLast(c Candle) error {
	if len(s.candles) == 0 {
		return fmt.Errorf("series %s: empty", s.Symbol)
	}
	s.candles[len(s.candles)-1] = c
	return nil
}

// Candles 返回底层切片（只读约定，调用方不得修改）。
func (s *Series) Candles() []Candle {
	return s.candles
}
