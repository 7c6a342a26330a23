package market

import "time"

// Candle 表示单根 K 线（毫秒时间戳，OHLCV）。
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
	Closed    bool    `json:"closed"`
}

// Date 返回开盘时间对应的本地时间。
func (c Candle) Date() time.Time {
	return time.UnixMilli(c.OpenTime)
}

func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

func (c Candle) IsBearish() bool {
	return c.Close < c.Open
}

// Range 返回 high-low 振幅。
func (c Candle) Range() float64 {
	return c.High - c.Low
}
