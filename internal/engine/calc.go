package engine

import (
	"marlin/internal/market"

	"github.com/shopspring/decimal"
)

// Quantity 按请求资金量与成交价推导仓位数量（8 位小数截断）。
func Quantity(tradeSize, price float64) float64 {
	if price <= 0 {
		return 0
	}
	q := decFromFloat(tradeSize).DivRound(decFromFloat(price), 12).Truncate(8)
	f, _ := q.Float64()
	return f
}

// Profit 返回带数量的已实现盈亏，符号与方向一致。
func Profit(quantity, priceIn, priceOut float64, t TradeType) float64 {
	diff := priceDiff(priceIn, priceOut, t)
	f, _ := diff.Mul(decFromFloat(quantity)).Float64()
	return f
}

// ProfitPer 返回相对入场价的盈亏百分比。
func ProfitPer(priceIn, priceOut float64, t TradeType) float64 {
	if priceIn == 0 {
		return 0
	}
	diff := priceDiff(priceIn, priceOut, t)
	f, _ := diff.Div(decFromFloat(priceIn)).Mul(decimal.NewFromInt(100)).Float64()
	return f
}

func priceDiff(priceIn, priceOut float64, t TradeType) decimal.Decimal {
	in := decFromFloat(priceIn)
	out := decFromFloat(priceOut)
	if t.IsLong() {
		return out.Sub(in)
	}
	return in.Sub(out)
}

// RunUp 扫描持仓区间，返回相对入场价最有利的未实现漂移（不为负）。
func RunUp(data []market.Candle, priceIn float64, from, to int64, t TradeType) float64 {
	lo, hi := clampRange(data, from, to)
	if lo > hi {
		return 0
	}
	var best float64
	if t.IsLong() {
		for i := lo; i <= hi; i++ {
			if v := data[i].High - priceIn; v > best {
				best = v
			}
		}
	} else {
		for i := lo; i <= hi; i++ {
			if v := priceIn - data[i].Low; v > best {
				best = v
			}
		}
	}
	return best
}

// DrawDown 扫描持仓区间，返回相对入场价最不利的未实现漂移（不为负）。
func DrawDown(data []market.Candle, priceIn float64, from, to int64, t TradeType) float64 {
	lo, hi := clampRange(data, from, to)
	if lo > hi {
		return 0
	}
	var worst float64
	if t.IsLong() {
		for i := lo; i <= hi; i++ {
			if v := priceIn - data[i].Low; v > worst {
				worst = v
			}
		}
	} else {
		for i := lo; i <= hi; i++ {
			if v := data[i].High - priceIn; v > worst {
				worst = v
			}
		}
	}
	return worst
}

// ExcursionPer 把绝对漂移换算成入场价百分比。
func ExcursionPer(excursion, priceIn float64) float64 {
	if priceIn == 0 {
		return 0
	}
	f, _ := decFromFloat(excursion).Div(decFromFloat(priceIn)).Mul(decimal.NewFromInt(100)).Float64()
	return f
}

func clampRange(data []market.Candle, from, to int64) (int, int) {
	if len(data) == 0 {
		return 1, 0
	}
	lo, hi := int(from), int(to)
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo < 0 {
		lo = 0
	}
	if hi > len(data)-1 {
		hi = len(data) - 1
	}
	return lo, hi
}
