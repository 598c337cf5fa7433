package risk

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
)

const (
	contractValue   = 100.0 // 每张合约名义价值（₹）
	lotsPerCapital  = 50000.0
	tradeHistoryCap = 100
	tradeHistoryLow = 50
	atrPeriod       = 14
)

// Config 是风控参数。
type Config struct {
	MaxRiskPerTrade  float64 // 单笔最大风险占比
	MaxPortfolioRisk float64 // 组合最大风险占比
	MaxOpenPositions int
	LotSize          int // 每手合约数
}

// Manager 负责仓位测算、动态止损与组合级风险闸门。
type Manager struct {
	cfg Config

	pnls   []float64
	highs  []float64
	lows   []float64
	closes []float64

	openRisk  float64
	openCount int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxRiskPerTrade <= 0 {
		cfg.MaxRiskPerTrade = 0.02
	}
	if cfg.MaxPortfolioRisk <= 0 {
		cfg.MaxPortfolioRisk = 0.06
	}
	if cfg.MaxOpenPositions <= 0 {
		cfg.MaxOpenPositions = 1
	}
	if cfg.LotSize <= 0 {
		cfg.LotSize = 50
	}
	return &Manager{cfg: cfg}
}

// RecordPrice 记录一次标的价用于 ATR 计算。
// 1 分钟采样下仅有单价，按退化 K 线（高=低=收）入列，
// 此时真实波幅等价于相邻收盘差的绝对值。
func (m *Manager) RecordPrice(price float64) {
	if price <= 0 {
		return
	}
	m.highs = append(m.highs, price)
	m.lows = append(m.lows, price)
	m.closes = append(m.closes, price)
	if len(m.closes) > tradeHistoryCap {
		m.highs = m.highs[len(m.highs)-tradeHistoryCap:]
		m.lows = m.lows[len(m.lows)-tradeHistoryCap:]
		m.closes = m.closes[len(m.closes)-tradeHistoryCap:]
	}
}

// RecordTrade 记录一笔已平仓盈亏；超过上限时裁剪到后半段。
func (m *Manager) RecordTrade(pnl float64) {
	m.pnls = append(m.pnls, pnl)
	if len(m.pnls) > tradeHistoryCap {
		m.pnls = m.pnls[len(m.pnls)-tradeHistoryLow:]
	}
}

// PositionSize 计算开仓手数（凯利缩放），任何异常回退到 1 手。
func (m *Manager) PositionSize(accountValue, volatility, confidence, strength float64) int {
	lots, err := m.positionSize(accountValue, volatility, confidence, strength)
	if err != nil || lots < 1 {
		return 1
	}
	return lots
}

func (m *Manager) positionSize(accountValue, volatility, confidence, strength float64) (int, error) {
	if accountValue <= 0 {
		return 0, fmt.Errorf("risk: 账户价值非法 %.2f", accountValue)
	}
	if volatility < 0 {
		volatility = 0
	}

	var riskAmount float64
	if len(m.pnls) < 10 {
		// 样本不足时固定 1% 底仓
		riskAmount = accountValue * 0.01
	} else {
		s := m.Stats()
		kelly := 0.0
		if s.AvgWin > 0 {
			kelly = (s.WinRate*s.AvgWin - (1-s.WinRate)*s.AvgLoss) / s.AvgWin
		}
		kelly = clamp(kelly, 0, 0.25)
		riskAmount = accountValue * kelly
	}

	riskAmount *= 1 / (1 + 2*volatility)
	riskAmount *= math.Min(confidence/3, 1)
	riskAmount *= math.Min(strength/10, 1)
	riskAmount = clamp(riskAmount, accountValue*0.005, accountValue*m.cfg.MaxRiskPerTrade)

	lots := int(riskAmount / (contractValue * float64(m.cfg.LotSize)))
	if lots < 1 {
		lots = 1
	}
	if maxLots := int(accountValue / lotsPerCapital); maxLots >= 1 && lots > maxLots {
		lots = maxLots
	}
	return lots, nil
}

// ATR 返回 14 周期平均真实波幅；历史不足时按入场价的 2% 兜底。
func (m *Manager) ATR(fallbackPrice float64) float64 {
	if len(m.closes) <= atrPeriod {
		return fallbackPrice * 0.02
	}
	series := talib.Atr(m.highs, m.lows, m.closes, atrPeriod)
	atr := series[len(series)-1]
	if atr <= 0 || math.IsNaN(atr) {
		return fallbackPrice * 0.02
	}
	return atr
}

// DynamicStopLoss 返回止损距离（点数）：
// 2×ATR(14)，按信号强度与波动率放大，夹紧到入场价的 [5%, 15%]。
func (m *Manager) DynamicStopLoss(entryPrice, volatility, strength float64) float64 {
	if entryPrice <= 0 {
		return 0
	}
	stop := 2 * m.ATR(entryPrice)
	stop *= 1 + strength/10
	stop *= 1 + 2*(volatility-defaultVolatility)
	return clamp(stop, entryPrice*0.05, entryPrice*0.15)
}

const defaultVolatility = 0.2

// TrailingStop 按浮盈分档返回追踪止损价（空头经济学：价格上穿止损价离场）。
// 浮盈越大允许的回吐越多：<50% 回吐 30%，<100% 回吐 50%，否则 70%。
func (m *Manager) TrailingStop(entryPrice, currentPrice, maxProfit, volatility float64) float64 {
	if entryPrice <= 0 || maxProfit <= 0 {
		return entryPrice
	}
	profitPct := maxProfit / entryPrice * 100
	allowance := 0.30
	switch {
	case profitPct >= 100:
		allowance = 0.70
	case profitPct >= 50:
		allowance = 0.50
	}
	allowance *= 1 + 1.5*(volatility-defaultVolatility)
	stop := entryPrice - maxProfit*(1-allowance)
	return math.Max(stop, entryPrice*0.95)
}

// CheckPortfolioRisk 校验新增风险是否触碰组合闸门。
func (m *Manager) CheckPortfolioRisk(portfolioValue, newRisk float64) (bool, string) {
	if m.openCount >= m.cfg.MaxOpenPositions {
		return false, fmt.Sprintf("持仓数已达上限 %d", m.cfg.MaxOpenPositions)
	}
	limit := portfolioValue * m.cfg.MaxPortfolioRisk
	if m.openRisk+newRisk > limit {
		return false, fmt.Sprintf("组合风险超限：%.0f+%.0f > %.0f", m.openRisk, newRisk, limit)
	}
	return true, ""
}

// RegisterOpen/RegisterClose 维护在手风险敞口。
func (m *Manager) RegisterOpen(riskAmount float64) {
	m.openRisk += riskAmount
	m.openCount++
}

func (m *Manager) RegisterClose(riskAmount float64) {
	m.openRisk -= riskAmount
	if m.openRisk < 0 {
		m.openRisk = 0
	}
	if m.openCount > 0 {
		m.openCount--
	}
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
