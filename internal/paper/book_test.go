package paper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"premia/internal/market"
	"premia/internal/predict"
)

type memLog struct {
	trades []Trade
}

func (m *memLog) Append(_ context.Context, t Trade) error {
	m.trades = append(m.trades, t)
	return nil
}

func snapWithPut(strike, putLTP, callLTP float64, at time.Time) *market.Snapshot {
	return &market.Snapshot{
		Timestamp:  at,
		Underlying: strike,
		Rows:       []market.ChainRow{{Strike: strike, PutLTP: putLTP, CallLTP: callLTP}},
	}
}

func TestEnterValidation(t *testing.T) {
	b := NewBook(nil)
	now := time.Now()

	assert.False(t, b.Enter(0, 100, 24000, 1, "unknown", nil, now), "非法方向")
	assert.False(t, b.Enter(1, 0, 24000, 1, "unknown", nil, now), "非法价格")
	assert.False(t, b.Enter(1, 100, 0, 1, "unknown", nil, now), "非法行权价")
	_, open := b.Open()
	assert.False(t, open)
}

func TestSinglePositionInvariant(t *testing.T) {
	b := NewBook(nil)
	now := time.Now()
	require.True(t, b.Enter(1, 100, 24000, 1, "unknown", nil, now))

	// 在场时再次开仓是无操作
	assert.False(t, b.Enter(1, 90, 24000, 1, "unknown", nil, now))
	assert.False(t, b.Enter(-1, 90, 24100, 1, "unknown", nil, now))

	pos, open := b.Open()
	require.True(t, open)
	assert.Equal(t, SideShortPut, pos.Side)
	assert.Equal(t, 100.0, pos.EntryPrice)
}

func TestFallbackStopAndTarget(t *testing.T) {
	b := NewBook(nil)
	require.True(t, b.Enter(1, 100, 24000, 1, "trending_low_vol", nil, time.Now()))
	pos, _ := b.Open()
	assert.InDelta(t, 110, pos.StopLoss, 1e-9)
	assert.InDelta(t, 50, pos.ProfitTarget, 1e-9)

	b2 := NewBook(nil)
	require.True(t, b2.Enter(-1, 100, 24000, 1, "sideways_high_vol", nil, time.Now()))
	pos2, _ := b2.Open()
	assert.Equal(t, SideShortCall, pos2.Side)
	assert.InDelta(t, 70, pos2.ProfitTarget, 1e-9)
}

func TestPredictionDrivenEntry(t *testing.T) {
	b := NewBook(nil)
	pred := &predict.Prediction{
		Confidence:      0.85,
		PositionSize:    0.5,
		StopLossPct:     0.08,
		TrailingStopPct: 0.6,
	}
	require.True(t, b.Enter(1, 100, 24000, 2, "unknown", pred, time.Now()))
	pos, _ := b.Open()
	assert.Equal(t, 5, pos.Lots, "取 请求手数 与 预测×10 的较大者")
	assert.InDelta(t, 108, pos.StopLoss, 1e-9)
	assert.InDelta(t, 40, pos.ProfitTarget, 1e-9, "置信度 >0.8 用最深目标")
	assert.True(t, pos.FromModel)
}

func TestExitPriorityStopLossWins(t *testing.T) {
	log := &memLog{}
	b := NewBook(log)
	now := time.Now()
	require.True(t, b.Enter(1, 100, 24000, 1, "unknown", nil, now))

	// 构造同时满足止损(≥110)与止盈(≤60)判定的矛盾价：115 触发止损
	pos, _ := b.Open()
	require.InDelta(t, 110, pos.StopLoss, 1e-9)
	b.mu.Lock()
	b.pos.ProfitTarget = 60
	b.mu.Unlock()

	res := b.CheckExit(context.Background(), snapWithPut(24000, 115, 10, now.Add(time.Minute)), 1, "unknown", now.Add(time.Minute))
	require.NotNil(t, res)
	assert.Equal(t, "Stop Loss", res.Reason)
	assert.Equal(t, 0, res.Outcome)
	assert.InDelta(t, -15, res.PnL, 1e-9)
	require.Len(t, log.trades, 1)

	_, open := b.Open()
	assert.False(t, open, "平仓后回到 FLAT")
}

func TestShortPutPnlSign(t *testing.T) {
	b := NewBook(nil)
	now := time.Now()
	require.True(t, b.Enter(1, 100, 24000, 1, "unknown", nil, now))

	// 100 → 70：卖方盈利 30 点
	res := b.CheckExit(context.Background(), snapWithPut(24000, 70, 10, now.Add(time.Minute)), 1, "unknown", now.Add(time.Minute))
	require.NotNil(t, res)
	assert.Equal(t, "Profit Target", res.Reason)
	assert.InDelta(t, 30, res.PnL, 1e-9)
	assert.Equal(t, 1, res.Outcome)
}

func TestSignalChangeExit(t *testing.T) {
	b := NewBook(nil)
	now := time.Now()
	require.True(t, b.Enter(1, 100, 24000, 1, "unknown", nil, now))

	res := b.CheckExit(context.Background(), snapWithPut(24000, 95, 10, now), 0, "unknown", now)
	require.NotNil(t, res)
	assert.Equal(t, "Signal Change", res.Reason)
}

func TestTimeExit(t *testing.T) {
	b := NewBook(nil)
	now := time.Now()
	require.True(t, b.Enter(1, 100, 24000, 1, "unknown", nil, now))

	late := now.Add(7201 * time.Second)
	res := b.CheckExit(context.Background(), snapWithPut(24000, 95, 10, late), 1, "unknown", late)
	require.NotNil(t, res)
	assert.Equal(t, "Time Exit", res.Reason)
}

func TestMaxHoldSecondsHotReload(t *testing.T) {
	b := NewBook(nil)
	now := time.Now()
	require.True(t, b.Enter(1, 100, 24000, 1, "unknown", nil, now))

	b.SetMaxHoldSeconds(60)
	res := b.CheckExit(context.Background(), snapWithPut(24000, 95, 10, now.Add(61*time.Second)), 1, "unknown", now.Add(61*time.Second))
	require.NotNil(t, res)
	assert.Equal(t, "Time Exit", res.Reason)

	// 低于下限的值被忽略
	b.SetMaxHoldSeconds(30)
	assert.InDelta(t, 60, b.maxHold, 1e-9)
}

func TestTrailingStopAfterRetracement(t *testing.T) {
	b := NewBook(nil)
	now := time.Now()
	require.True(t, b.Enter(1, 100, 24000, 1, "unknown", nil, now))

	// 先冲高利润（100→88，盈利 12 > 8 的闸门）
	res := b.CheckExit(context.Background(), snapWithPut(24000, 88, 10, now), 1, "unknown", now)
	assert.Nil(t, res)

	// 回吐到 4 点：4 < 12×0.5（unknown 回吐额度）→ 移动止盈
	res = b.CheckExit(context.Background(), snapWithPut(24000, 96, 10, now), 1, "unknown", now)
	require.NotNil(t, res)
	assert.Equal(t, "Trailing Stop", res.Reason)
	assert.Equal(t, 1, res.Outcome)
}

func TestCheckExitSkipsMissingStrike(t *testing.T) {
	b := NewBook(nil)
	now := time.Now()
	require.True(t, b.Enter(1, 100, 24000, 1, "unknown", nil, now))

	snap := snapWithPut(25000, 95, 10, now)
	assert.Nil(t, b.CheckExit(context.Background(), snap, 1, "unknown", now))
	_, open := b.Open()
	assert.True(t, open, "缺行只跳过本周期，不平仓")
}

func TestObserveBufferAndPseudoSamples(t *testing.T) {
	b := NewBook(nil)
	base := time.Now()
	for i := 0; i < 5; i++ {
		b.Observe(&market.Snapshot{Timestamp: base.Add(time.Duration(i) * time.Minute), Underlying: 24000 + float64(i*24)})
	}
	samples := b.PseudoSamples(3)
	require.Len(t, samples, 3)
	assert.InDelta(t, 0.1, samples[0].PriceChangePct, 0.01)
}
