package market

import "context"

// Source 提供实时期权链快照。实现方负责 HTTP 会话与重试，
// 拉取失败时返回 (nil, err)，核心循环将该周期视为跳过。
type Source interface {
	FetchChain(ctx context.Context) (*Snapshot, error)
	Close() error
}

// HistoryStore 提供可回放的历史快照（按时间升序）。
type HistoryStore interface {
	AllAvailable(ctx context.Context) ([]Snapshot, error)
}
