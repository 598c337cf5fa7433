package predict

import "math"

// LabelSet 是一组确定性生成的训练目标，绝不人工标注：
// 已知成交盈亏时由 盈亏+特征 推导，否则退化为纯行情启发式。
type LabelSet struct {
	Regime          float64 `json:"regime"`            // {-1, 0, 1}
	Confidence      float64 `json:"confidence"`        // {0, 1, 2}
	Pattern         float64 `json:"pattern"`           // {0, 1, 2, 3}
	SignalDirection float64 `json:"signal_direction"`  // {-1, 0, 1}
	PositionSize    float64 `json:"position_size"`     // [0, 1]
	StopLossPct     float64 `json:"stop_loss_pct"`     // [0.05, 0.20]
	TrailingStopPct float64 `json:"trailing_stop_pct"` // [0.3, 0.8]
}

// DeriveLabels 从特征值推导标签；pnl 为 nil 表示没有已知成交结果。
func DeriveLabels(values map[string]float64, pnl *float64) LabelSet {
	pcr := values["pcr_oi"]
	priceChg := values["call_ltp_change_pct"] - values["put_ltp_change_pct"]
	volRatio := values["pcr_volume"]

	ls := LabelSet{}

	// 状态：PCR 偏高视为下方支撑（看涨），偏低看跌。
	switch {
	case pcr > 1.2:
		ls.Regime = 1
	case pcr < 0.8 && pcr > 0:
		ls.Regime = -1
	}

	// 方向与状态同源，但要求更强的偏离。
	switch {
	case pcr > 1.3:
		ls.SignalDirection = 1
	case pcr < 0.7 && pcr > 0:
		ls.SignalDirection = -1
	}

	// 形态：成交量倾斜 × 价格动量 的四格组合。
	pattern := 0.0
	if volRatio > 1.2 {
		pattern += 1
	}
	if math.Abs(priceChg) > 5 {
		pattern += 2
	}
	ls.Pattern = pattern

	// 置信度：有盈亏结果时由结果定档，否则看信号一致性。
	switch {
	case pnl != nil && *pnl > 5:
		ls.Confidence = 2
	case pnl != nil && *pnl > 0:
		ls.Confidence = 1
	case pnl != nil:
		ls.Confidence = 0
		ls.SignalDirection = 0 // 亏损样本抑制方向标签
	case ls.SignalDirection != 0 && ls.Regime == ls.SignalDirection:
		ls.Confidence = 2
	case ls.SignalDirection != 0:
		ls.Confidence = 1
	}

	ls.PositionSize = clampLabel(0.25+0.25*ls.Confidence, 0, 1)
	ls.StopLossPct = clampLabel(0.05+math.Abs(priceChg)/100*0.15, 0.05, 0.20)
	ls.TrailingStopPct = clampLabel(0.3+math.Abs(priceChg)/100*0.5, 0.3, 0.8)
	return ls
}

// Vector 以固定顺序展开七个训练目标（与 labelRoles 对齐）。
func (l LabelSet) valueFor(role Role) float64 {
	switch role {
	case RoleRegime, RoleMeta:
		return l.Regime
	case RoleConfidence:
		return l.Confidence
	case RolePattern:
		return l.Pattern
	case RoleDirection:
		return l.SignalDirection
	case RoleSizer:
		return l.PositionSize
	case RoleStopLoss:
		return l.StopLossPct
	case RoleTrailing:
		return l.TrailingStopPct
	default:
		return 0
	}
}

func clampLabel(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
