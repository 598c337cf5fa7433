package paper

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"premia/internal/logger"
	"premia/internal/market"
	"premia/internal/predict"
)

// 硬退出参数。
const (
	defaultMaxHoldSeconds = 7200
	minMaxHoldSeconds     = 60
	trailGateProfit       = 2.0
	trailGateMax          = 8.0
	bufferCap             = 1000
)

// TradeLog 是平仓记录的外部归档后端。
type TradeLog interface {
	Append(ctx context.Context, trade Trade) error
}

// ExitResult 是一次平仓评估的产物。
type ExitResult struct {
	Outcome int
	PnL     float64
	Reason  string
	Trade   Trade
}

// bufferedTick 是训练缓冲里的一条行情观测。
type bufferedTick struct {
	At         time.Time
	Underlying float64
}

// PseudoSample 是由缓冲价差推导的弱监督样本素材。
type PseudoSample struct {
	At             time.Time
	PriceChangePct float64
}

// Book 是纸面交易的状态机：FLAT → OPEN → FLAT，
// 全程只允许一张在场仓位，无部分成交。
type Book struct {
	mu      sync.Mutex
	pos     *Position
	log     TradeLog
	maxHold float64
	buffer  []bufferedTick
	closed  []Trade
}

func NewBook(log TradeLog) *Book {
	return &Book{log: log, maxHold: defaultMaxHoldSeconds}
}

// SetMaxHoldSeconds 热更新最长持仓秒数；低于下限的值忽略。
func (b *Book) SetMaxHoldSeconds(sec int) {
	if sec < minMaxHoldSeconds {
		return
	}
	b.mu.Lock()
	b.maxHold = float64(sec)
	b.mu.Unlock()
}

// Open 返回当前仓位的副本；FLAT 时返回 (Position{}, false)。
func (b *Book) Open() (Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pos == nil {
		return Position{}, false
	}
	return *b.pos, true
}

// ClosedTrades 返回已平仓记录的副本（审计展示用）。
func (b *Book) ClosedTrades() []Trade {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Trade, len(b.closed))
	copy(out, b.closed)
	return out
}

// Enter 开仓。direction 只接受 ±1；已有在场仓位时拒绝（返回 false，
// 状态不变）。prediction 为 nil 时用固定止损 + 状态推导目标兜底。
func (b *Book) Enter(direction int, price, strike float64, lots int, regime string, pred *predict.Prediction, at time.Time) bool {
	if direction != 1 && direction != -1 {
		return false
	}
	if price <= 0 || strike <= 0 {
		return false
	}
	if lots < 1 {
		lots = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pos != nil {
		logger.Debugf("paper: 已有在场仓位，拒绝开仓")
		return false
	}

	side := SideShortPut
	if direction == -1 {
		side = SideShortCall
	}

	pos := &Position{
		Side:          side,
		Direction:     direction,
		EntryPrice:    price,
		EntryStrike:   strike,
		EntryTime:     at,
		Lots:          lots,
		RegimeAtEntry: regime,
	}

	if pred != nil {
		if fromModel := int(pred.PositionSize*10 + 0.5); fromModel > pos.Lots {
			pos.Lots = fromModel
		}
		slPct := clampPct(pred.StopLossPct, 0.05, 0.20)
		pos.StopLoss = price * (1 + slPct)
		switch {
		case pred.Confidence > 0.8:
			pos.ProfitTarget = price * 0.4
		case pred.Confidence > 0.7:
			pos.ProfitTarget = price * 0.6
		default:
			pos.ProfitTarget = price * 0.7
		}
		pos.TrailingPct = clampPct(pred.TrailingStopPct, 0.3, 0.8)
		pos.FromModel = true
	} else {
		pos.StopLoss = price * 1.10
		pos.ProfitTarget = price * regimeTargetPct(regime)
	}

	b.pos = pos
	logger.Infof("paper: 开仓 %s @%.2f strike=%.0f lots=%d stop=%.2f target=%.2f regime=%s",
		side, price, strike, pos.Lots, pos.StopLoss, pos.ProfitTarget, regime)
	return true
}

// CheckExit 评估一次退出条件。FLAT 或行权价缺行时是无操作。
// 退出原因按固定优先级判定，首个命中即生效：
// 止损 → 信号反转 → 止盈 → 超时 → 移动止盈。
func (b *Book) CheckExit(ctx context.Context, snap *market.Snapshot, currentSignal int, regime string, at time.Time) *ExitResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pos == nil || snap == nil {
		return nil
	}

	row, ok := snap.Row(b.pos.EntryStrike)
	if !ok {
		logger.Warnf("paper: 快照缺少行权价 %.0f，本周期跳过退出评估", b.pos.EntryStrike)
		return nil
	}
	current := row.CallLTP
	if b.pos.Direction == 1 {
		current = row.PutLTP
	}
	if current <= 0 {
		return nil
	}

	// 卖方经济学：入场价 − 当前价 即为每张合约的点数利润。
	profit := b.pos.EntryPrice - current
	if profit > b.pos.MaxProfitSeen {
		b.pos.MaxProfitSeen = profit
	}

	cur := decimal.NewFromFloat(current)
	reason := ""
	switch {
	case cur.GreaterThanOrEqual(decimal.NewFromFloat(b.pos.StopLoss)):
		reason = "Stop Loss"
	case currentSignal == 0 || currentSignal != b.pos.Direction:
		reason = "Signal Change"
	case cur.LessThanOrEqual(decimal.NewFromFloat(b.pos.ProfitTarget)):
		reason = "Profit Target"
	case at.Sub(b.pos.EntryTime).Seconds() > b.maxHold:
		reason = "Time Exit"
	case b.pos.MaxProfitSeen > trailGateMax && profit > trailGateProfit:
		allowance := b.pos.TrailingPct
		if allowance == 0 {
			allowance = regimeTrailAllowance(regime)
		}
		if profit < b.pos.MaxProfitSeen*allowance {
			reason = "Trailing Stop"
		}
	}
	if reason == "" {
		return nil
	}

	outcome := 0
	if profit > 0 {
		outcome = 1
	}
	trade := Trade{
		ID:          newTradeID(),
		Side:        b.pos.Side,
		EntryPrice:  b.pos.EntryPrice,
		ExitPrice:   current,
		Strike:      b.pos.EntryStrike,
		Lots:        b.pos.Lots,
		PnL:         profit,
		Outcome:     outcome,
		Regime:      b.pos.RegimeAtEntry,
		ExitReason:  reason,
		EntryTime:   b.pos.EntryTime,
		ExitTime:    at,
		HoldSeconds: at.Sub(b.pos.EntryTime).Seconds(),
		FromModel:   b.pos.FromModel,
	}
	b.closed = append(b.closed, trade)
	b.pos = nil

	if b.log != nil {
		if err := b.log.Append(ctx, trade); err != nil {
			logger.Errorf("paper: 成交归档失败: %v", err)
		}
	}
	logger.Infof("paper: 平仓 %s @%.2f pnl=%.2f reason=%s", trade.Side, current, profit, reason)
	return &ExitResult{Outcome: outcome, PnL: profit, Reason: reason, Trade: trade}
}

// Observe 把行情快照压入训练缓冲（上限 1000，溢出去头）。
func (b *Book) Observe(snap *market.Snapshot) {
	if snap == nil || snap.Underlying <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffer = append(b.buffer, bufferedTick{At: snap.Timestamp, Underlying: snap.Underlying})
	if len(b.buffer) > bufferCap {
		b.buffer = b.buffer[len(b.buffer)-bufferCap:]
	}
}

// PseudoSamples 从缓冲价差生成弱监督样本素材（最多 n 条，
// 按相邻观测的价格变化率），供学习反馈路径补充训练样本。
func (b *Book) PseudoSamples(n int) []PseudoSample {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buffer) < 2 {
		return nil
	}
	start := len(b.buffer) - n - 1
	if start < 0 {
		start = 0
	}
	out := make([]PseudoSample, 0, n)
	for i := start + 1; i < len(b.buffer); i++ {
		prev, cur := b.buffer[i-1], b.buffer[i]
		if prev.Underlying <= 0 {
			continue
		}
		out = append(out, PseudoSample{
			At:             cur.At,
			PriceChangePct: (cur.Underlying - prev.Underlying) / prev.Underlying * 100,
		})
	}
	return out
}

func regimeTargetPct(regime string) float64 {
	switch {
	case isTrendingRegime(regime):
		return 0.5
	case isSidewaysRegime(regime):
		return 0.7
	default:
		return 0.6
	}
}

func regimeTrailAllowance(regime string) float64 {
	switch {
	case isTrendingRegime(regime):
		return 0.4
	case isSidewaysRegime(regime):
		return 0.6
	default:
		return 0.5
	}
}

func isTrendingRegime(regime string) bool {
	return len(regime) >= 8 && regime[:8] == "trending"
}

func isSidewaysRegime(regime string) bool {
	return len(regime) >= 8 && regime[:8] == "sideways"
}

func clampPct(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
