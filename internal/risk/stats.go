package risk

import "math"

// TradeStats 是交易历史的汇总指标；样本不足 5 笔时全部取中性默认值。
type TradeStats struct {
	Count        int
	WinRate      float64
	AvgWin       float64
	AvgLoss      float64
	ProfitFactor float64
	MaxDrawdown  float64
	Sharpe       float64
}

func neutralStats(count int) TradeStats {
	return TradeStats{Count: count, WinRate: 0.5, ProfitFactor: 1}
}

// Stats 计算胜率、平均盈亏、盈亏比、最大回撤与夏普。
func (m *Manager) Stats() TradeStats {
	n := len(m.pnls)
	if n < 5 {
		return neutralStats(n)
	}

	var wins, losses int
	var winSum, lossSum float64
	for _, p := range m.pnls {
		if p > 0 {
			wins++
			winSum += p
		} else {
			losses++
			lossSum += -p
		}
	}
	s := TradeStats{Count: n}
	s.WinRate = float64(wins) / float64(n)
	if wins > 0 {
		s.AvgWin = winSum / float64(wins)
	}
	if losses > 0 {
		s.AvgLoss = lossSum / float64(losses)
	}
	if lossSum > 0 {
		s.ProfitFactor = winSum / lossSum
	} else if winSum > 0 {
		s.ProfitFactor = math.Inf(1)
	} else {
		s.ProfitFactor = 1
	}
	s.MaxDrawdown = maxDrawdown(m.pnls)
	s.Sharpe = sharpe(m.pnls)
	return s
}

func maxDrawdown(pnls []float64) float64 {
	var equity, peak, dd float64
	for _, p := range pnls {
		equity += p
		if equity > peak {
			peak = equity
		}
		if draw := peak - equity; draw > dd {
			dd = draw
		}
	}
	return dd
}

func sharpe(pnls []float64) float64 {
	n := float64(len(pnls))
	var mean float64
	for _, p := range pnls {
		mean += p
	}
	mean /= n
	var variance float64
	for _, p := range pnls {
		variance += (p - mean) * (p - mean)
	}
	variance /= n
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(252)
}
