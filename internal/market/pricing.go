package market

// Pricing 是某个交易品种在当前一步的报价快照。
// Spread 已经是 ask-bid 的差值，引擎不再自行推导。
type Pricing struct {
	Symbol     string  `json:"symbol"`
	Ask        float64 `json:"ask"`
	Bid        float64 `json:"bid"`
	Spread     float64 `json:"spread"`
	PipSize    float64 `json:"pip_size"`
	Percentage float64 `json:"percentage"`
}

// NewPricing 由 ask/bid 构造快照并补齐 spread。
func NewPricing(symbol string, ask, bid, pipSize float64) Pricing {
	return Pricing{
		Symbol:  symbol,
		Ask:     ask,
		Bid:     bid,
		Spread:  ask - bid,
		PipSize: pipSize,
	}
}
