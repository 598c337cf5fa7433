package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"premia/internal/market"
)

func midSessionTime() time.Time {
	return time.Date(2026, 8, 31, 11, 30, 0, 0, time.Local)
}

// pcr_oi ≈ 1.5（3000/2000）但其它指标中性：只有 PCR 一票，
// 强度 1 < 2，必须输出中性信号。
func TestHeuristicPCRAloneIsNotEnough(t *testing.T) {
	snap := &market.Snapshot{
		Timestamp:  midSessionTime(),
		Underlying: 24000,
		Rows: []market.ChainRow{
			{Strike: 24000, CallOI: 2000, PutOI: 3000, CallVolume: 800, PutVolume: 800, CallLTP: 50, PutLTP: 40},
		},
	}
	sig, strength := HeuristicSignal(snap, 24000)
	assert.Equal(t, 0, sig)
	assert.Less(t, strength, 2.0)
}

func TestHeuristicBullishConfluence(t *testing.T) {
	snap := &market.Snapshot{
		Timestamp:  midSessionTime(),
		Underlying: 24000,
		Rows: []market.ChainRow{
			{
				Strike:      24000,
				CallOI:      1000, PutOI: 2000, // 持仓占优 +2
				CallVolume: 400, PutVolume: 800, // 成交量占优 +2，量比 +1
				CallChangeOI: 100, PutChangeOI: 500, // 持仓变化 +1
				CallLTP: 60, PutLTP: 40, // 价比 1.5 +1
			},
		},
	}
	sig, strength := HeuristicSignal(snap, 24000)
	assert.Equal(t, 1, sig)
	assert.GreaterOrEqual(t, strength, 2.0)
	assert.LessOrEqual(t, strength, 10.0)
}

func TestHeuristicSessionDampening(t *testing.T) {
	mk := func(at time.Time) *market.Snapshot {
		return &market.Snapshot{
			Timestamp:  at,
			Underlying: 24000,
			Rows: []market.ChainRow{
				{Strike: 24000, CallOI: 1000, PutOI: 2000, CallVolume: 800, PutVolume: 800, CallLTP: 50, PutLTP: 45},
			},
		}
	}
	_, midStrength := HeuristicSignal(mk(midSessionTime()), 24000)
	opening := time.Date(2026, 8, 31, 9, 20, 0, 0, time.Local)
	_, openStrength := HeuristicSignal(mk(opening), 24000)
	assert.Greater(t, midStrength, openStrength, "开盘时段强度被抑制")
}

func TestHeuristicMissingStrike(t *testing.T) {
	snap := &market.Snapshot{Timestamp: midSessionTime(), Underlying: 24000}
	sig, strength := HeuristicSignal(snap, 24000)
	assert.Equal(t, 0, sig)
	assert.Zero(t, strength)
}
