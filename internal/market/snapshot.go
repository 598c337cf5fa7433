package market

import (
	"math"
	"time"
)

// ChainRow 表示期权链上单一行权价的行情行。
type ChainRow struct {
	Strike       float64 `json:"strike"`
	CallOI       float64 `json:"call_oi"`
	CallChangeOI float64 `json:"call_change_oi"`
	CallVolume   float64 `json:"call_volume"`
	CallLTP      float64 `json:"call_ltp"`
	PutOI        float64 `json:"put_oi"`
	PutChangeOI  float64 `json:"put_change_oi"`
	PutVolume    float64 `json:"put_volume"`
	PutLTP       float64 `json:"put_ltp"`
}

// Snapshot 是一次期权链快照：标的价 + 全部行权价行。
type Snapshot struct {
	Timestamp  time.Time  `json:"timestamp"`
	Underlying float64    `json:"underlying"`
	Rows       []ChainRow `json:"rows"`
}

// Row 按行权价查找对应行；未找到时返回 (ChainRow{}, false)。
func (s *Snapshot) Row(strike float64) (ChainRow, bool) {
	if s == nil {
		return ChainRow{}, false
	}
	for _, r := range s.Rows {
		if r.Strike == strike {
			return r, true
		}
	}
	return ChainRow{}, false
}

// ATMStrike 返回距离标的价最近的行权价；无数据时返回 0。
func (s *Snapshot) ATMStrike() float64 {
	if s == nil || len(s.Rows) == 0 || s.Underlying <= 0 {
		return 0
	}
	best := s.Rows[0].Strike
	bestDist := math.Abs(best - s.Underlying)
	for _, r := range s.Rows[1:] {
		if d := math.Abs(r.Strike - s.Underlying); d < bestDist {
			best = r.Strike
			bestDist = d
		}
	}
	return best
}

// Totals 汇总全链的 OI 与成交量。
type Totals struct {
	CallOI     float64
	PutOI      float64
	CallVolume float64
	PutVolume  float64
}

// Totals 遍历所有行权价求和。
func (s *Snapshot) Totals() Totals {
	var t Totals
	if s == nil {
		return t
	}
	for _, r := range s.Rows {
		t.CallOI += r.CallOI
		t.PutOI += r.PutOI
		t.CallVolume += r.CallVolume
		t.PutVolume += r.PutVolume
	}
	return t
}
