package profit

import (
	"premia/internal/market"
)

// regimeTargetMultiplier 是 6 种市场状态对收益目标的修正表。
var regimeTargetMultiplier = map[string]float64{
	"trending_low_vol":    1.2,
	"trending_medium_vol": 1.1,
	"trending_high_vol":   0.9,
	"sideways_low_vol":    1.0,
	"sideways_medium_vol": 0.8,
	"sideways_high_vol":   0.7,
}

// Optimizer 根据状态与信号强度调整收益目标和出入场时机评分。
type Optimizer struct{}

func NewOptimizer() *Optimizer {
	return &Optimizer{}
}

// TargetRatio 计算风险收益比：基准 1.5，按强度、波动率、状态表
// 和时段修正，夹紧 [0.5, 5.0]。
func (o *Optimizer) TargetRatio(strength, volatility float64, regimeLabel string, flags market.SessionFlags) float64 {
	ratio := 1.5
	ratio *= 1 + (strength-5)*0.1
	ratio *= 1 + 2*(volatility-0.2)
	if mul, ok := regimeTargetMultiplier[regimeLabel]; ok {
		ratio *= mul
	}
	switch {
	case flags.Opening:
		ratio *= 1.1
	case flags.Closing:
		ratio *= 0.9
	}
	return clamp(ratio, 0.5, 5.0)
}

// ShouldEnter 以加法评分判断是否入场（≥0.6 通过）。
// 强度 <5 或波动率 >0.5 直接否决。
func (o *Optimizer) ShouldEnter(strength, volatility float64, regimeLabel string, flags market.SessionFlags, recentPnls []float64) bool {
	score := 0.0
	switch {
	case strength >= 7:
		score += 0.4
	case strength >= 5:
		score += 0.2
	default:
		return false
	}
	if volatility > 0.5 {
		return false
	}
	if volatility >= 0.1 && volatility <= 0.4 {
		score += 0.2
	}
	if isTrending(regimeLabel) {
		score += 0.2
	}
	if flags.Mid {
		score += 0.1
	} else if flags.Opening {
		score += 0.05
	}
	if avgTail(recentPnls, 5) > 0 {
		score += 0.1
	}
	return score >= 0.6
}

// ShouldExit 以加法评分判断是否离场（>0.5 通过）。
// 与 paper 状态机的硬性退出规则相互独立，两者都保留：
// 状态机负责真正平仓，本评分仅作为并行信号记录。
func (o *Optimizer) ShouldExit(holdingMinutes, profitPct, strength float64, regimeLabel string) bool {
	score := 0.0
	if holdingMinutes > 120 {
		score += 0.3
	} else if holdingMinutes > 60 {
		score += 0.1
	}
	switch {
	case profitPct > 200:
		score += 0.4
	case profitPct > 100:
		score += 0.2
	}
	if profitPct < -50 {
		score += 0.5
	}
	if strength < 3 {
		score += 0.2
	}
	if !isTrending(regimeLabel) && profitPct > 50 {
		score += 0.2
	}
	return score > 0.5
}

func isTrending(label string) bool {
	return len(label) >= 8 && label[:8] == "trending"
}

func avgTail(vals []float64, n int) float64 {
	if len(vals) == 0 {
		return 0
	}
	if len(vals) > n {
		vals = vals[len(vals)-n:]
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
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
