package decision

import (
	"sort"

	"premia/internal/predict"
)

const comparativeCap = 500

// comparative 维护累计行情分布，用分位与形态一致性对模型置信度
// 做有界修正（[-0.05, +0.25]）。
type comparative struct {
	pcrHistory []float64
}

func (c *comparative) observe(pcr float64) {
	if pcr <= 0 {
		return
	}
	c.pcrHistory = append(c.pcrHistory, pcr)
	if len(c.pcrHistory) > comparativeCap {
		c.pcrHistory = c.pcrHistory[len(c.pcrHistory)-comparativeCap:]
	}
}

// adjust 返回置信度修正量。分位极端且方向一致加分，
// 极端但方向相悖减分，完整形态与序列模型参与各再加一点。
func (c *comparative) adjust(pred *predict.Prediction, pcr float64) float64 {
	if pred == nil {
		return 0
	}
	delta := 0.0

	if len(c.pcrHistory) >= 20 && pcr > 0 {
		p := percentile(c.pcrHistory, pcr)
		switch {
		case p >= 0.9 && pred.SignalDirection == 1:
			delta += 0.10
		case p <= 0.1 && pred.SignalDirection == -1:
			delta += 0.10
		case (p >= 0.9 && pred.SignalDirection == -1) || (p <= 0.1 && pred.SignalDirection == 1):
			delta -= 0.05
		}
	}
	if pred.Pattern == 3 {
		delta += 0.05
	}
	if pred.SequenceModelUsed {
		delta += 0.05
	}

	if delta < -0.05 {
		delta = -0.05
	}
	if delta > 0.25 {
		delta = 0.25
	}
	return delta
}

// percentile 返回 v 在样本中的经验分位（[0,1]）。
func percentile(samples []float64, v float64) float64 {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	idx := sort.SearchFloat64s(sorted, v)
	return float64(idx) / float64(len(sorted))
}
