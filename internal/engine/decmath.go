package engine

import (
	"math"

	"github.com/shopspring/decimal"
)

// 价格判断统一走 decimal，避免浮点边界误判目标价穿越。

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decCompare(a, b float64) int {
	return decFromFloat(a).Cmp(decFromFloat(b))
}

func decLTE(a, b float64) bool { return decCompare(a, b) <= 0 }
func decGTE(a, b float64) bool { return decCompare(a, b) >= 0 }
