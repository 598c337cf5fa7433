package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"premia/internal/logger"
)

func newCookieJar() http.CookieJar {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil
	}
	return jar
}

const (
	fetchRetries   = 3
	retryBaseDelay = 2 * time.Second
)

// HTTPSource 从交易所 REST 接口拉取期权链，带会话预热与有界重试。
// NSE 接口要求浏览器式 UA 并依赖站点 Cookie，首次请求前先访问
// 首页建立会话。
type HTTPSource struct {
	chainURL string
	homeURL  string
	client   *http.Client
	warmed   bool
}

func NewHTTPSource(chainURL, homeURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	jar := newCookieJar()
	return &HTTPSource{
		chainURL: chainURL,
		homeURL:  homeURL,
		client:   &http.Client{Timeout: timeout, Jar: jar},
	}
}

// FetchChain 拉取并解析一次快照。所有重试耗尽后返回错误，
// 调用方把该周期视为跳过。
func (s *HTTPSource) FetchChain(ctx context.Context) (*Snapshot, error) {
	var lastErr error
	for attempt := 0; attempt < fetchRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		snap, err := s.fetchOnce(ctx)
		if err == nil {
			return snap, nil
		}
		lastErr = err
		s.warmed = false // 会话可能已失效，下次重新预热
		logger.Warnf("market: 第 %d 次拉取失败: %v", attempt+1, err)
	}
	return nil, fmt.Errorf("market: 拉取重试耗尽: %w", lastErr)
}

func (s *HTTPSource) fetchOnce(ctx context.Context) (*Snapshot, error) {
	if !s.warmed && s.homeURL != "" {
		if err := s.warm(ctx); err != nil {
			return nil, fmt.Errorf("会话预热失败: %w", err)
		}
		s.warmed = true
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.chainURL, nil)
	if err != nil {
		return nil, err
	}
	setBrowserHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("接口返回 %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	return DecodeChainPayload(raw, time.Now())
}

func (s *HTTPSource) warm(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.homeURL, nil)
	if err != nil {
		return err
	}
	setBrowserHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return nil
}

func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
}

func (s *HTTPSource) Close() error { return nil }
