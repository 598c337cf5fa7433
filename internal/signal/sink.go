package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"premia/internal/logger"
)

// Sink 接收交易信号（+1 / -1 / 0）。实现方自行负责重试，
// 核心只做即发即忘，外加"上次已发送"去重。
type Sink interface {
	Send(ctx context.Context, sig int) error
}

// Noop 丢弃所有信号（回放与测试用）。
type Noop struct{}

func (Noop) Send(context.Context, int) error { return nil }

// HTTPSink 把信号 POST 到下游执行端，重复信号不再发送。
type HTTPSink struct {
	mu       sync.Mutex
	endpoint string
	client   *http.Client
	lastSent *int
}

func NewHTTPSink(endpoint string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSink) Send(ctx context.Context, sig int) error {
	s.mu.Lock()
	if s.lastSent != nil && *s.lastSent == sig {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	body, _ := json.Marshal(map[string]int{"signal": sig})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("signal: 构造请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("signal: 发送失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("signal: 下游返回 %d", resp.StatusCode)
	}

	s.mu.Lock()
	v := sig
	s.lastSent = &v
	s.mu.Unlock()
	logger.Infof("signal: 已发送 %+d", sig)
	return nil
}
