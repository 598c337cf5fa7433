package paper

import (
	"time"

	"github.com/google/uuid"
)

// Side 是持仓方向：策略永远卖权利金。
type Side string

const (
	SideShortPut  Side = "SHORT_PUT"
	SideShortCall Side = "SHORT_CALL"
)

// Position 是当前唯一的在场仓位（全系统同时至多一张）。
type Position struct {
	Side          Side
	Direction     int // 1 → SHORT_PUT，-1 → SHORT_CALL
	EntryPrice    float64
	EntryStrike   float64
	EntryTime     time.Time
	Lots          int
	StopLoss      float64 // 高于入场价（卖方风险在上方）
	ProfitTarget  float64 // 低于入场价
	TrailingPct   float64 // 0 表示未由预测指定，退出时按状态推导
	MaxProfitSeen float64
	RegimeAtEntry string
	FromModel     bool
}

// Trade 是平仓后的成交归档记录，只用于审计与展示。
type Trade struct {
	ID          string    `json:"id"`
	Side        Side      `json:"side"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	Strike      float64   `json:"strike"`
	Lots        int       `json:"lots"`
	PnL         float64   `json:"pnl"` // 每张合约的点数盈亏
	Outcome     int       `json:"outcome"`
	Regime      string    `json:"regime"`
	ExitReason  string    `json:"exit_reason"`
	EntryTime   time.Time `json:"entry_time"`
	ExitTime    time.Time `json:"exit_time"`
	HoldSeconds float64   `json:"hold_seconds"`
	FromModel   bool      `json:"from_model"`
}

func newTradeID() string {
	return uuid.NewString()
}
