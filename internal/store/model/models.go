package model

import (
	"gorm.io/datatypes"
)

// PaperTradeModel 是平仓记录的持久化形态（只写不改，审计用）。
type PaperTradeModel struct {
	ID          int64   `gorm:"column:id;primaryKey"`
	TradeID     string  `gorm:"column:trade_id;uniqueIndex"`
	Side        string  `gorm:"column:side"`
	EntryPrice  float64 `gorm:"column:entry_price"`
	ExitPrice   float64 `gorm:"column:exit_price"`
	Strike      float64 `gorm:"column:strike"`
	Lots        int     `gorm:"column:lots"`
	PnL         float64 `gorm:"column:pnl"`
	Outcome     int     `gorm:"column:outcome"`
	Regime      string  `gorm:"column:regime"`
	ExitReason  string  `gorm:"column:exit_reason"`
	EntryTs     int64   `gorm:"column:entry_ts"`
	ExitTs      int64   `gorm:"column:exit_ts"`
	HoldSeconds float64 `gorm:"column:hold_seconds"`
	FromModel   int     `gorm:"column:from_model"`
	CreatedAt   int64   `gorm:"column:created_at"`
}

func (PaperTradeModel) TableName() string { return "paper_trades" }

// ModelSnapshotModel 保存预测引擎的全量快照（单行覆盖写）。
type ModelSnapshotModel struct {
	ID        int64          `gorm:"column:id;primaryKey"`
	Name      string         `gorm:"column:name;uniqueIndex"`
	Payload   datatypes.JSON `gorm:"column:payload"`
	UpdatedAt int64          `gorm:"column:updated_at"`
}

func (ModelSnapshotModel) TableName() string { return "model_snapshots" }

// TrainingSampleModel 归档训练样本，供离线检视与回放复用。
type TrainingSampleModel struct {
	ID           int64          `gorm:"column:id;primaryKey"`
	TradeContext string         `gorm:"column:trade_context"`
	Features     datatypes.JSON `gorm:"column:features"`
	Labels       datatypes.JSON `gorm:"column:labels"`
	SampledAt    int64          `gorm:"column:sampled_at"`
	CreatedAt    int64          `gorm:"column:created_at"`
}

func (TrainingSampleModel) TableName() string { return "training_samples" }
