package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"premia/internal/paper"
)

const (
	colorEquity = "#34d399"
	colorWin    = "#34d399"
	colorLoss   = "#f87171"
)

// WriteHTML 把一批平仓记录渲染为 权益曲线 + 单笔盈亏 的 HTML 报告，
// 返回生成的文件路径。
func WriteHTML(dir, runID string, trades []paper.Trade) (string, error) {
	if len(trades) == 0 {
		return "", fmt.Errorf("report: 没有成交记录可渲染")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	xAxis := make([]string, 0, len(trades))
	equity := make([]opts.LineData, 0, len(trades))
	pnls := make([]opts.BarData, 0, len(trades))
	cum := 0.0
	for i, t := range trades {
		xAxis = append(xAxis, fmt.Sprintf("#%d %s", i+1, t.ExitTime.Format("15:04")))
		cum += t.PnL
		equity = append(equity, opts.LineData{Value: cum})
		color := colorWin
		if t.PnL < 0 {
			color = colorLoss
		}
		pnls = append(pnls, opts.BarData{
			Value:     t.PnL,
			ItemStyle: &opts.ItemStyle{Color: color},
		})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "累计权益（点数）", Subtitle: "run " + runID}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("equity", equity, charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}))

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "单笔盈亏"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(xAxis)
	bar.AddSeries("pnl", pnls)

	page := components.NewPage()
	page.AddCharts(line, bar)

	name := fmt.Sprintf("replay_%s_%s.html", runID, time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return "", fmt.Errorf("report: 渲染失败: %w", err)
	}
	return path, nil
}
