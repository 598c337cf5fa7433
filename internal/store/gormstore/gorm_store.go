package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"premia/internal/paper"
	storemodel "premia/internal/store/model"
)

const snapshotName = "prediction_engine"

// GormStore 用 Gorm + SQLite 承载成交归档、训练样本与模型快照。
// 同时实现 paper.TradeLog 与 predict.Persister。
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 数据库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&storemodel.PaperTradeModel{},
		&storemodel.ModelSnapshotModel{},
		&storemodel.TrainingSampleModel{},
	); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL：给状态接口的并发读留一点余量，同时压住锁竞争。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Append 归档一条平仓记录（paper.TradeLog）。
func (s *GormStore) Append(ctx context.Context, trade paper.Trade) error {
	rec := storemodel.PaperTradeModel{
		TradeID:     trade.ID,
		Side:        string(trade.Side),
		EntryPrice:  trade.EntryPrice,
		ExitPrice:   trade.ExitPrice,
		Strike:      trade.Strike,
		Lots:        trade.Lots,
		PnL:         trade.PnL,
		Outcome:     trade.Outcome,
		Regime:      trade.Regime,
		ExitReason:  trade.ExitReason,
		EntryTs:     trade.EntryTime.Unix(),
		ExitTs:      trade.ExitTime.Unix(),
		HoldSeconds: trade.HoldSeconds,
		CreatedAt:   time.Now().Unix(),
	}
	if trade.FromModel {
		rec.FromModel = 1
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// Trades 返回最近 limit 条成交（按平仓时间倒序）。
func (s *GormStore) Trades(ctx context.Context, limit int) ([]storemodel.PaperTradeModel, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []storemodel.PaperTradeModel
	err := s.db.WithContext(ctx).Order("exit_ts DESC").Limit(limit).Find(&out).Error
	return out, err
}

// SaveSnapshot 覆盖写入预测引擎快照（predict.Persister）。
func (s *GormStore) SaveSnapshot(ctx context.Context, data []byte) error {
	rec := storemodel.ModelSnapshotModel{
		Name:      snapshotName,
		Payload:   datatypes.JSON(data),
		UpdatedAt: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&rec).Error
}

// LoadSnapshot 读取快照；不存在时返回 (nil, nil) 表示全新启动。
func (s *GormStore) LoadSnapshot(ctx context.Context) ([]byte, error) {
	var rec storemodel.ModelSnapshotModel
	err := s.db.WithContext(ctx).Where("name = ?", snapshotName).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(rec.Payload), nil
}

// AppendSample 归档一条训练样本。
func (s *GormStore) AppendSample(ctx context.Context, tradeContext string, features map[string]float64, labels interface{}, at time.Time) error {
	fj, err := json.Marshal(features)
	if err != nil {
		return err
	}
	lj, err := json.Marshal(labels)
	if err != nil {
		return err
	}
	rec := storemodel.TrainingSampleModel{
		TradeContext: tradeContext,
		Features:     datatypes.JSON(fj),
		Labels:       datatypes.JSON(lj),
		SampledAt:    at.Unix(),
		CreatedAt:    time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}
