package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"premia/internal/decision"
	"premia/internal/logger"
	"premia/internal/market"
	"premia/internal/paper"
)

// RunResult 是一次离线回放的汇总统计。
type RunResult struct {
	ID          string        `json:"id"`
	Snapshots   int           `json:"snapshots"`
	Trades      int           `json:"trades"`
	Wins        int           `json:"wins"`
	WinRate     float64       `json:"win_rate"`
	TotalPnL    float64       `json:"total_pnl"`
	MaxDrawdown float64       `json:"max_drawdown"`
	Trained     bool          `json:"trained"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	TradeList   []paper.Trade `json:"trade_list,omitempty"`
}

// Runner 把历史快照按时间序逐条喂给决策周期——与实盘同一条代码
// 路径，只是背靠背执行、不等待外部时钟。
type Runner struct {
	store *RunStore
}

func NewRunner(store *RunStore) *Runner {
	return &Runner{store: store}
}

// Run 执行完整回放。取消只在周期边界生效，不会留下半截状态。
func (r *Runner) Run(ctx context.Context, history market.HistoryStore, orch *decision.Orchestrator, trained func() bool) (*RunResult, error) {
	snaps, err := history.AllAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay: 历史数据读取失败: %w", err)
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("replay: 没有可回放的历史快照")
	}

	result := &RunResult{ID: uuid.NewString(), StartedAt: time.Now()}
	logger.Infof("replay: 开始回放 %d 条快照 run=%s", len(snaps), result.ID)

	for i := range snaps {
		if err := ctx.Err(); err != nil {
			logger.Warnf("replay: 第 %d 条后被取消", i)
			break
		}
		orch.Cycle(ctx, &snaps[i])
		result.Snapshots++
	}

	trades := orch.Book().ClosedTrades()
	result.Trades = len(trades)
	result.TradeList = trades
	equity := 0.0
	peak := 0.0
	for _, t := range trades {
		if t.Outcome == 1 {
			result.Wins++
		}
		result.TotalPnL += t.PnL
		equity += t.PnL
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > result.MaxDrawdown {
			result.MaxDrawdown = dd
		}
	}
	if result.Trades > 0 {
		result.WinRate = float64(result.Wins) / float64(result.Trades)
	}
	if trained != nil {
		result.Trained = trained()
	}
	result.FinishedAt = time.Now()

	if r.store != nil {
		if err := r.store.SaveRun(ctx, result); err != nil {
			logger.Errorf("replay: 结果落库失败: %v", err)
		}
	}
	logger.InfoBlock(fmt.Sprintf(
		"回放完成 run=%s snapshots=%d trades=%d win_rate=%.1f%% pnl=%.2f max_dd=%.2f",
		result.ID, result.Snapshots, result.Trades, result.WinRate*100, result.TotalPnL, result.MaxDrawdown))
	return result, nil
}
