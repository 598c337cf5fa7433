package statushttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"premia/internal/decision"
	"premia/internal/logger"
	"premia/internal/replay"
	"premia/internal/store/gormstore"
)

// Server 提供只读状态接口：健康检查、仓位、决策记录、成交与回放结果。
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述状态服务依赖。
type ServerConfig struct {
	Addr     string
	Orch     *decision.Orchestrator
	Store    *gormstore.GormStore
	RunStore *replay.RunStore
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Orch == nil {
		return nil, errors.New("status http server requires orchestrator")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9985"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/position", func(c *gin.Context) {
		pos, open := cfg.Orch.Book().Open()
		if !open {
			c.JSON(http.StatusOK, gin.H{"open": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"open": true, "position": pos})
	})
	api.GET("/decisions", func(c *gin.Context) {
		n, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		c.JSON(http.StatusOK, gin.H{"decisions": cfg.Orch.Records(n)})
	})
	api.GET("/trades", func(c *gin.Context) {
		if cfg.Store == nil {
			c.JSON(http.StatusOK, gin.H{"trades": cfg.Orch.Book().ClosedTrades()})
			return
		}
		n, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		trades, err := cfg.Store.Trades(c.Request.Context(), n)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"trades": trades})
	})
	api.GET("/replay/runs", func(c *gin.Context) {
		if cfg.RunStore == nil {
			c.JSON(http.StatusOK, gin.H{"runs": []any{}})
			return
		}
		n, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		runs, err := cfg.RunStore.ListRuns(c.Request.Context(), n)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	})

	return &Server{addr: cfg.Addr, router: router}, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		logger.Debugf("HTTP %s %s status=%d dur=%s", method, path, c.Writer.Status(), time.Since(start))
	}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
