package replay

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// RunStore 管理 replay_runs 表：每次离线回放一行，含汇总统计。
type RunStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewRunStore(root string) (*RunStore, error) {
	if root == "" {
		return nil, fmt.Errorf("run store root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "replay_runs.db")
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureRunSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &RunStore{db: db, path: path}, nil
}

func (s *RunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureRunSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS replay_runs (
			id TEXT PRIMARY KEY,
			snapshots INTEGER NOT NULL,
			trades INTEGER NOT NULL,
			wins INTEGER NOT NULL,
			win_rate REAL NOT NULL,
			total_pnl REAL NOT NULL,
			max_drawdown REAL NOT NULL,
			trained INTEGER NOT NULL,
			stats_json TEXT,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_replay_runs_started ON replay_runs(started_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("run store 初始化失败: %w", err)
		}
	}
	return nil
}

// SaveRun 写入一次回放的汇总行。
func (s *RunStore) SaveRun(ctx context.Context, r *RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("run store 已关闭")
	}
	stats, err := json.Marshal(r)
	if err != nil {
		return err
	}
	trained := 0
	if r.Trained {
		trained = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO replay_runs
		 (id, snapshots, trades, wins, win_rate, total_pnl, max_drawdown, trained, stats_json, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Snapshots, r.Trades, r.Wins, r.WinRate, r.TotalPnL, r.MaxDrawdown,
		trained, string(stats), r.StartedAt.Unix(), r.FinishedAt.Unix())
	return err
}

// ListRuns 按开始时间倒序返回最近 limit 次回放。
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("run store 已关闭")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT stats_json FROM replay_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunResult
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var r RunResult
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
