package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"premia/internal/config"
	"premia/internal/config/loader"
	"premia/internal/decision"
	"premia/internal/logger"
	"premia/internal/market"
	"premia/internal/paper"
	"premia/internal/predict"
	"premia/internal/profit"
	"premia/internal/regime"
	"premia/internal/replay"
	"premia/internal/report"
	"premia/internal/risk"
	"premia/internal/scheduler"
	"premia/internal/signal"
	"premia/internal/store/gormstore"
	statushttp "premia/internal/transport/http"
)

// App 负责应用级编排：加载配置→初始化依赖→启动实时或回放服务。
type App struct {
	cfg *config.Config

	store    *gormstore.GormStore
	runStore *replay.RunStore
	engine   *predict.Engine
	orch     *decision.Orchestrator
	tunables *loader.Registry
	httpSrv  *statushttp.Server
	source   market.Source
	history  *market.FileHistory
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	store, err := gormstore.NewGormStore(cfg.Engine.SnapshotDB)
	if err != nil {
		return nil, fmt.Errorf("初始化存储失败: %w", err)
	}

	engine := predict.NewEngine(predict.Config{
		MinTrainingSamples: cfg.Engine.MinTrainingSamples,
		MaxTrainingSamples: cfg.Engine.MaxTrainingSamples,
		SequenceLength:     cfg.Engine.SequenceLength,
		MetaMinSamples:     cfg.Engine.MetaMinSamples,
		SequenceMinBuffer:  cfg.Engine.SequenceMinBuffer,
		SequenceBufferCap:  cfg.Engine.SequenceBufferCap,
		SequenceEpochs:     cfg.Engine.SequenceEpochs,
	}, store)
	if err := engine.Load(ctx); err != nil {
		logger.Warnf("模型快照恢复失败，全新启动: %v", err)
	}

	riskMgr := risk.NewManager(risk.Config{
		MaxRiskPerTrade:  cfg.Risk.MaxRiskPerTrade,
		MaxPortfolioRisk: cfg.Risk.MaxPortfolioRisk,
		MaxOpenPositions: cfg.Risk.MaxOpenPositions,
		LotSize:          cfg.Risk.LotSize,
	})
	book := paper.NewBook(store)

	var sink signal.Sink = signal.Noop{}
	if cfg.Decision.SignalEndpoint != "" {
		sink = signal.NewHTTPSink(cfg.Decision.SignalEndpoint, 5*time.Second)
	}

	orch := decision.NewOrchestrator(decision.Config{
		AccountValue:  cfg.Decision.AccountValue,
		LotSize:       cfg.Risk.LotSize,
		UpdateEvery:   cfg.Decision.UpdateEvery,
		TrainEvery:    cfg.Decision.TrainEvery,
		FeedbackEvery: cfg.Decision.FeedbackEvery,
		BaseThreshold: cfg.Decision.BaseThreshold,
	}, engine, regime.NewDetector(), riskMgr, profit.NewOptimizer(), book, sink)
	orch.UseSampleArchive(store)

	applyTunables := func(v loader.Tunables) {
		orch.SetThresholds(v.BaseThreshold, v.RaiseThreshold, v.LowerThreshold)
		if v.MinStrength > 0 {
			orch.SetMinStrength(v.MinStrength)
		}
		if v.MaxHoldSeconds > 0 {
			book.SetMaxHoldSeconds(v.MaxHoldSeconds)
		}
	}
	tunables, err := loader.NewRegistry(cfg.App.TunablesPath)
	if err != nil {
		logger.Warnf("参数热加载不可用: %v", err)
	} else {
		tunables.OnChange(func(snap loader.Snapshot) {
			applyTunables(snap.Values)
		})
		if v := tunables.Snapshot().Values; v != (loader.Tunables{}) {
			applyTunables(v)
		}
	}

	runStore, err := replay.NewRunStore(cfg.Replay.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("初始化回放存储失败: %w", err)
	}
	history, err := market.NewFileHistory(cfg.Market.HistoryDir)
	if err != nil {
		return nil, fmt.Errorf("初始化历史存储失败: %w", err)
	}

	httpSrv, err := statushttp.NewServer(statushttp.ServerConfig{
		Addr:     cfg.App.HTTPAddr,
		Orch:     orch,
		Store:    store,
		RunStore: runStore,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化状态服务失败: %w", err)
	}

	var source market.Source
	if cfg.Market.ChainURL != "" {
		source = market.NewHTTPSource(cfg.Market.ChainURL, homeURLOf(cfg.Market.ChainURL),
			time.Duration(cfg.Market.FetchTimeoutSeconds)*time.Second)
	}

	return &App{
		cfg:      cfg,
		store:    store,
		runStore: runStore,
		engine:   engine,
		orch:     orch,
		tunables: tunables,
		httpSrv:  httpSrv,
		source:   source,
		history:  history,
	}, nil
}

// Run 启动状态服务与实时决策循环，ctx 取消时优雅退出。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.source == nil {
		return fmt.Errorf("实时模式需要配置 market.chain_url")
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("status http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		sched := scheduler.NewAlignedScheduler(ctx,
			time.Duration(a.cfg.Market.CycleIntervalSec)*time.Second, 0)
		sched.RunImmediately = true
		sched.Start(func() { a.liveCycle(ctx) })
		return nil
	})

	logger.Infof("premia 启动完成 env=%s addr=%s", a.cfg.App.Env, a.httpSrv.Addr())
	return group.Wait()
}

// liveCycle 执行一次 拉取→落盘→决策 周期，拉取失败视为跳过。
func (a *App) liveCycle(ctx context.Context) {
	snap, err := a.source.FetchChain(ctx)
	if err != nil {
		logger.Warnf("行情拉取失败，跳过周期: %v", err)
		return
	}
	if err := a.history.Record(snap); err != nil {
		logger.Warnf("历史落盘失败: %v", err)
	}
	a.orch.Cycle(ctx, snap)
}

// RunReplay 在全部历史快照上背靠背执行决策循环，并渲染 HTML 报告。
func (a *App) RunReplay(ctx context.Context) error {
	defer a.Close()
	runner := replay.NewRunner(a.runStore)
	result, err := runner.Run(ctx, a.history, a.orch, a.engine.Trained)
	if err != nil {
		return err
	}
	if len(result.TradeList) > 0 {
		path, err := report.WriteHTML(a.cfg.Replay.ReportDir, result.ID, result.TradeList)
		if err != nil {
			logger.Warnf("报告渲染失败: %v", err)
		} else {
			logger.Infof("回放报告: %s", path)
		}
	}
	return nil
}

func (a *App) Close() {
	if a.tunables != nil {
		a.tunables.Close()
	}
	if a.source != nil {
		a.source.Close()
	}
	if a.runStore != nil {
		a.runStore.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

// homeURLOf 取接口地址的站点根，用于会话预热。
func homeURLOf(chainURL string) string {
	for i := 8; i < len(chainURL); i++ { // 跳过 scheme://
		if chainURL[i] == '/' {
			return chainURL[:i]
		}
	}
	return chainURL
}
