package regime

import (
	"math"
	"time"

	"premia/internal/logger"

	talib "github.com/markcheno/go-talib"
)

// 波动率/趋势分档阈值。
const (
	historyCap     = 100
	volWindow      = 20
	momentumWindow = 10
	lowVolBound    = 0.15
	midVolBound    = 0.25
	trendBound     = 0.6
	defaultVol     = 0.2

	// 1 分钟采样、252 个交易日、每日 375 分钟。
	annualizeFactor = 252.0 * 375.0
)

// Regime 是一次市场状态判定结果。
type Regime struct {
	Label      string    `json:"label"`
	Volatility float64   `json:"volatility"`
	Trend      float64   `json:"trend"`
	Momentum   float64   `json:"momentum"`
	At         time.Time `json:"at"`
}

// Unknown 返回安全默认状态。
func Unknown(at time.Time) Regime {
	return Regime{Label: "unknown", Volatility: defaultVol, At: at}
}

type pricePoint struct {
	at    time.Time
	price float64
}

// Detector 维护滚动价格缓冲并判定 波动率×趋势 共 6 种市场状态。
type Detector struct {
	history []pricePoint
	results []Regime
}

func NewDetector() *Detector {
	return &Detector{}
}

// Detect 记录最新价格并返回当前市场状态。任何内部异常都退化为
// Unknown，绝不向调用方传播。
func (d *Detector) Detect(at time.Time, price float64) (out Regime) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("regime: 判定异常已兜底: %v", r)
			out = Unknown(at)
		}
	}()

	if price > 0 {
		d.history = append(d.history, pricePoint{at: at, price: price})
		if len(d.history) > historyCap {
			d.history = d.history[len(d.history)-historyCap:]
		}
	}

	out = Regime{
		Label:      "unknown",
		Volatility: d.volatility(),
		Trend:      d.trend(),
		Momentum:   d.momentum(),
		At:         at,
	}
	out.Label = label(out.Volatility, out.Trend)

	d.results = append(d.results, out)
	if len(d.results) > historyCap {
		d.results = d.results[len(d.results)-historyCap:]
	}
	return out
}

// History 返回已记录的状态序列（审计/展示用）。
func (d *Detector) History() []Regime {
	out := make([]Regime, len(d.results))
	copy(out, d.results)
	return out
}

func (d *Detector) window(n int) []float64 {
	h := d.history
	if len(h) > n {
		h = h[len(h)-n:]
	}
	prices := make([]float64, len(h))
	for i, p := range h {
		prices[i] = p.price
	}
	return prices
}

// volatility 计算对数收益年化波动率，夹紧 [0.05, 2.0]；历史不足时取 0.2。
func (d *Detector) volatility() float64 {
	prices := d.window(volWindow)
	if len(prices) < 2 {
		return defaultVol
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(prices[i]/prices[i-1]))
	}
	if len(returns) < 2 {
		return defaultVol
	}
	series := talib.StdDev(returns, len(returns), 1)
	std := series[len(series)-1]
	vol := std * math.Sqrt(annualizeFactor)
	return clamp(vol, 0.05, 2.0)
}

// trend 取窗口内价格对序号线性拟合的斜率，按均价归一后再乘以
// 窗口长度（等价于窗口内的相对总位移），夹紧 [-1, 1]。
func (d *Detector) trend() float64 {
	prices := d.window(volWindow)
	if len(prices) < 2 {
		return 0
	}
	slopes := talib.LinearRegSlope(prices, len(prices))
	slope := slopes[len(slopes)-1]
	mean := 0.0
	for _, p := range prices {
		mean += p
	}
	mean /= float64(len(prices))
	if mean == 0 {
		return 0
	}
	return clamp(slope/mean*float64(len(prices)), -1, 1)
}

// momentum 是 10 点窗口的涨跌幅，夹紧 [-1, 1]。
func (d *Detector) momentum() float64 {
	h := d.history
	if len(h) < momentumWindow {
		return 0
	}
	base := h[len(h)-momentumWindow].price
	if base <= 0 {
		return 0
	}
	cur := h[len(h)-1].price
	return clamp((cur-base)/base, -1, 1)
}

func label(vol, trend float64) string {
	volBand := "high_vol"
	switch {
	case vol < lowVolBound:
		volBand = "low_vol"
	case vol < midVolBound:
		volBand = "medium_vol"
	}
	trendBand := "sideways"
	if math.Abs(trend) > trendBound {
		trendBand = "trending"
	}
	return trendBand + "_" + volBand
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
