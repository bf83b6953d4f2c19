package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"alphasim/internal/backtest"
)

const (
	colorBackground = "#060c1b"
	colorText       = "#eceff4"
	colorTextDim    = "#9ca3af"
	colorEquity     = "#34d399"
	colorCash       = "#3b82f6"

	chartWidthPx  = 1200
	chartHeightPx = 520
)

// renderEquityCurve 画单个 agent 的组合价值与现金曲线。
func renderEquityCurve(run backtest.Run, res backtest.AgentResult) ([]byte, error) {
	if len(res.Daily) == 0 {
		return nil, fmt.Errorf("%s 没有日终数据", res.AgentID)
	}

	x := make([]string, len(res.Daily))
	equity := make([]opts.LineData, len(res.Daily))
	cash := make([]opts.LineData, len(res.Daily))
	for i, day := range res.Daily {
		x[i] = day.Date.Format("2006-01-02")
		equity[i] = opts.LineData{Value: day.PortfolioValue}
		cash[i] = opts.LineData{Value: day.Cash}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("%s equity", strings.ToUpper(res.Personality)),
			Subtitle: fmt.Sprintf("总收益 %.2f%% | 最大回撤 %.2f%% | sharpe %.2f | 胜率 %.1f%%",
				res.Metrics.TotalReturn*100, res.Metrics.MaxDrawdown*100,
				res.Metrics.Sharpe, res.Metrics.WinRate*100),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorText, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextDim},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorText}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextDim},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextDim},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextDim, Opacity: opts.Float(0.2)}},
		}),
	)

	line.SetXAxis(x)
	line.AddSeries("equity", equity, charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity}))
	line.AddSeries("cash", cash, charts.WithLineStyleOpts(opts.LineStyle{Color: colorCash}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
