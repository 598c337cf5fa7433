package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionSizeAlwaysAtLeastOneLot(t *testing.T) {
	m := NewManager(Config{})

	// 病态输入一律兜底 1 手
	assert.GreaterOrEqual(t, m.PositionSize(0, 0.2, 2, 5), 1)
	assert.GreaterOrEqual(t, m.PositionSize(-1000, -0.5, 0, 0), 1)
	assert.GreaterOrEqual(t, m.PositionSize(500000, 0.2, 2, 8), 1)
}

func TestPositionSizeCapByCapital(t *testing.T) {
	m := NewManager(Config{})
	// 给足成交历史让 Kelly 分支生效
	for i := 0; i < 12; i++ {
		pnl := 10.0
		if i%3 == 0 {
			pnl = -5
		}
		m.RecordTrade(pnl)
	}
	lots := m.PositionSize(100000, 0.2, 3, 10)
	assert.GreaterOrEqual(t, lots, 1)
	assert.LessOrEqual(t, lots, 2, "手数受 账户/50000 封顶")
}

func TestDynamicStopLossBounds(t *testing.T) {
	m := NewManager(Config{})
	entry := 100.0

	// 无价格历史时 ATR 退化为 2% 入场价
	stop := m.DynamicStopLoss(entry, 0.2, 5)
	assert.GreaterOrEqual(t, stop, 0.05*entry)
	assert.LessOrEqual(t, stop, 0.15*entry)

	// 极端波动率仍被夹紧
	stop = m.DynamicStopLoss(entry, 5.0, 10)
	assert.LessOrEqual(t, stop, 0.15*entry)
}

func TestTrailingStopFloor(t *testing.T) {
	m := NewManager(Config{})
	stop := m.TrailingStop(100, 120, 30, 0.2)
	assert.GreaterOrEqual(t, stop, 95.0, "止损价不低于 95% 入场价")
}

func TestCheckPortfolioRisk(t *testing.T) {
	m := NewManager(Config{MaxPortfolioRisk: 0.06, MaxOpenPositions: 1})

	ok, _ := m.CheckPortfolioRisk(100000, 5000)
	assert.True(t, ok)

	ok, reason := m.CheckPortfolioRisk(100000, 7000)
	assert.False(t, ok)
	assert.NotEmpty(t, reason)

	m.RegisterOpen(1000)
	ok, reason = m.CheckPortfolioRisk(100000, 100)
	assert.False(t, ok, "在场仓位数已达上限")
	assert.NotEmpty(t, reason)

	m.RegisterClose(1000)
	ok, _ = m.CheckPortfolioRisk(100000, 100)
	assert.True(t, ok)
}

func TestStatsNeutralDefaults(t *testing.T) {
	m := NewManager(Config{})
	m.RecordTrade(10)
	m.RecordTrade(-5)

	s := m.Stats()
	require.Equal(t, 2, s.Count)
	assert.InDelta(t, 0.5, s.WinRate, 1e-9, "不足 5 笔时用中性默认")
	assert.InDelta(t, 1.0, s.ProfitFactor, 1e-9)
}

func TestStatsWithHistory(t *testing.T) {
	m := NewManager(Config{})
	pnls := []float64{10, -5, 8, -2, 6, 12, -4}
	for _, p := range pnls {
		m.RecordTrade(p)
	}
	s := m.Stats()
	assert.Equal(t, len(pnls), s.Count)
	assert.InDelta(t, 4.0/7.0, s.WinRate, 1e-9)
	assert.Greater(t, s.ProfitFactor, 1.0)
	assert.Greater(t, s.MaxDrawdown, 0.0)
}

func TestTradeHistoryTrimsOnOverflow(t *testing.T) {
	m := NewManager(Config{})
	for i := 0; i < 101; i++ {
		m.RecordTrade(1)
	}
	assert.Equal(t, 50, m.Stats().Count, "超过 100 笔裁剪到 50")
}
