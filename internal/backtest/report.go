package backtest

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"marlin/internal/market"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	reportBackground    = "#060c1b"
	reportTextPrimary   = "#eceff4"
	reportTextSecondary = "#9ca3af"
	reportBull          = "#34d399"
	reportBear          = "#f87171"
	reportEquity        = "#3b82f6"
	reportDrawdown      = "#fb7185"

	reportWidthPx        = 1600
	reportKlineHeightPx  = 600
	reportEquityHeightPx = 320
)

// WriteRunReport 把一次回测渲染成独立 HTML：K 线 + 出入场标记 + 权益曲线。
// 返回生成的文件路径。
func WriteRunReport(dir string, run Run, candles []market.Candle, trades []TradeRecord, snaps []EquitySnapshot) (string, error) {
	if len(candles) == 0 {
		return "", fmt.Errorf("no candles for report %s", run.ID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(buildPriceChart(run, candles, trades))
	if len(snaps) > 0 {
		page.AddCharts(buildEquityChart(run, snaps))
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s_%s.html", strings.ToLower(run.Symbol), run.Timeframe, run.ID))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return "", err
	}
	return path, nil
}

func buildPriceChart(run Run, candles []market.Candle, trades []TradeRecord) *charts.Kline {
	minPrice, maxPrice := reportPriceBounds(candles)
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxPrice)*0.01)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", reportWidthPx),
			Height:          fmt.Sprintf("%dpx", reportKlineHeightPx),
			BackgroundColor: reportBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("%s %s", strings.ToUpper(run.Symbol), run.Timeframe),
			Subtitle: fmt.Sprintf("trades=%d profit=%.2f return=%.2f%% maxDD=%.2f%%",
				run.Stats.Trades, run.Stats.Profit, run.Stats.ReturnPct, run.Stats.MaxDrawdownPct),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: reportTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: reportTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: reportTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: reportTextSecondary},
			Min:       reportRound(minPrice-padding, 4),
			Max:       reportRound(maxPrice+padding, 4),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: reportTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        reportBull,
			Color0:       reportBear,
			BorderColor:  reportBull,
			BorderColor0: reportBear,
		}),
	)

	xAxis := reportXAxis(candles)
	data := make([]opts.KlineData, 0, len(candles))
	for _, c := range candles {
		data = append(data, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", data)

	if markers := buildTradeMarkers(candles, trades); markers != nil {
		markers.SetXAxis(xAxis)
		kline.Overlap(markers)
	}
	return kline
}

// buildTradeMarkers 用散点标出成交：入场画在 price_in，出场画在 price_out。
func buildTradeMarkers(candles []market.Candle, trades []TradeRecord) *charts.Scatter {
	if len(trades) == 0 {
		return nil
	}
	indexByTime := make(map[int64]int, len(candles))
	for i, c := range candles {
		indexByTime[c.OpenTime] = i
	}
	entries := make([]opts.ScatterData, 0, len(trades))
	exits := make([]opts.ScatterData, 0, len(trades))
	for _, t := range trades {
		if i, ok := indexByTime[t.DateIn.UnixMilli()]; ok {
			entries = append(entries, opts.ScatterData{Value: []interface{}{i, t.PriceIn}, SymbolSize: 12})
		}
		if i, ok := indexByTime[t.DateOut.UnixMilli()]; ok {
			exits = append(exits, opts.ScatterData{Value: []interface{}{i, t.PriceOut}, SymbolSize: 12})
		}
	}
	if len(entries) == 0 && len(exits) == 0 {
		return nil
	}
	scatter := charts.NewScatter()
	scatter.AddSeries("Entry", entries, charts.WithItemStyleOpts(opts.ItemStyle{Color: reportBull}))
	scatter.AddSeries("Exit", exits, charts.WithItemStyleOpts(opts.ItemStyle{Color: reportBear}))
	return scatter
}

func buildEquityChart(run Run, snaps []EquitySnapshot) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", reportWidthPx),
			Height:          fmt.Sprintf("%dpx", reportEquityHeightPx),
			BackgroundColor: reportBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Equity", Left: "left", TitleStyle: &opts.TextStyle{Color: reportTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: reportTextSecondary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Color: reportTextSecondary}}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: reportTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: reportTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)

	xAxis := make([]string, len(snaps))
	equity := make([]opts.LineData, len(snaps))
	drawdown := make([]opts.LineData, len(snaps))
	for i, s := range snaps {
		xAxis[i] = time.UnixMilli(s.TS).UTC().Format("01-02 15:04")
		equity[i] = opts.LineData{Value: s.Equity}
		drawdown[i] = opts.LineData{Value: s.Drawdown}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Equity", equity,
		charts.WithLineStyleOpts(opts.LineStyle{Color: reportEquity, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.AddSeries("MaxDD%", drawdown,
		charts.WithLineStyleOpts(opts.LineStyle{Color: reportDrawdown, Width: 1}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}

func reportXAxis(candles []market.Candle) []string {
	x := make([]string, len(candles))
	for i, c := range candles {
		x[i] = time.UnixMilli(c.OpenTime).UTC().Format("01-02 15:04")
	}
	return x
}

func reportPriceBounds(candles []market.Candle) (float64, float64) {
	minPrice := math.MaxFloat64
	maxPrice := -math.MaxFloat64
	for _, c := range candles {
		if c.Low < minPrice {
			minPrice = c.Low
		}
		if c.High > maxPrice {
			maxPrice = c.High
		}
	}
	return minPrice, maxPrice
}

func reportRound(v float64, digits int) float64 {
	pow := math.Pow(10, float64(digits))
	return math.Round(v*pow) / pow
}
