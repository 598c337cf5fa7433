package decision

import (
	"context"
	"sync"
	"time"

	"premia/internal/features"
	"premia/internal/logger"
	"premia/internal/market"
	"premia/internal/paper"
	"premia/internal/predict"
	"premia/internal/profit"
	"premia/internal/regime"
	"premia/internal/risk"
	"premia/internal/signal"
)

// Config 是编排器的节奏与账户参数。
type Config struct {
	AccountValue   float64
	LotSize        int
	UpdateEvery    int // 每 N 个周期摄入一条训练样本
	TrainEvery     int // 每 N 个周期触发一次批量训练
	FeedbackEvery  int // 学习反馈路径的训练节奏（平仓后）
	HistoryCap     int
	BaseThreshold  float64
	RaiseThreshold float64
	LowerThreshold float64
	MinStrength    float64 // 额外的信号强度门槛，0 表示不启用
}

// SampleArchive 把喂给引擎的训练样本同步归档到外部存储。
type SampleArchive interface {
	AppendSample(ctx context.Context, tradeContext string, features map[string]float64, labels interface{}, at time.Time) error
}

func (c *Config) applyDefaults() {
	if c.AccountValue <= 0 {
		c.AccountValue = 500000
	}
	if c.LotSize <= 0 {
		c.LotSize = 50
	}
	if c.UpdateEvery <= 0 {
		c.UpdateEvery = 5
	}
	if c.TrainEvery <= 0 {
		c.TrainEvery = 25
	}
	if c.FeedbackEvery <= 0 {
		c.FeedbackEvery = 50
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = 240
	}
	if c.BaseThreshold <= 0 {
		c.BaseThreshold = 0.40
	}
	if c.RaiseThreshold <= 0 {
		c.RaiseThreshold = 0.55
	}
	if c.LowerThreshold <= 0 {
		c.LowerThreshold = 0.45
	}
}

// Record 是单个决策周期的定形产物（审计与状态接口消费）。
type Record struct {
	Cycle       int                 `json:"cycle"`
	At          time.Time           `json:"at"`
	Signal      int                 `json:"signal"`
	Strength    float64             `json:"strength"`
	Confidence  float64             `json:"confidence"`
	Source      string              `json:"source"` // model / heuristic / none
	Reason      string              `json:"reason,omitempty"`
	RegimeLabel string              `json:"regime"`
	Prediction  *predict.Prediction `json:"prediction,omitempty"`
	Entered     bool                `json:"entered"`
	TargetRatio float64             `json:"target_ratio,omitempty"`
	ExitAdvice  bool                `json:"exit_advice,omitempty"`
	ExitReason  string              `json:"exit_reason,omitempty"`
	PnL         float64             `json:"pnl,omitempty"`
}

// Orchestrator 串联 特征→预测→信号仲裁→风控→仓位→学习 的完整周期。
// 所有组件状态只在 Cycle 的单一调用序列里被修改；Records/Status
// 读取走同一把锁，保证与周期互斥。
type Orchestrator struct {
	mu  sync.Mutex
	cfg Config

	engine    *predict.Engine
	detector  *regime.Detector
	riskMgr   *risk.Manager
	optimizer *profit.Optimizer
	book      *paper.Book
	sink      signal.Sink
	archive   SampleArchive
	compare   comparative

	history      []market.Snapshot
	votes        []int
	lastAccepted int
	openRisk     float64
	cycle        int
	records      []Record
}

func NewOrchestrator(cfg Config, engine *predict.Engine, detector *regime.Detector,
	riskMgr *risk.Manager, optimizer *profit.Optimizer, book *paper.Book, sink signal.Sink) *Orchestrator {
	cfg.applyDefaults()
	if sink == nil {
		sink = signal.Noop{}
	}
	return &Orchestrator{
		cfg:       cfg,
		engine:    engine,
		detector:  detector,
		riskMgr:   riskMgr,
		optimizer: optimizer,
		book:      book,
		sink:      sink,
	}
}

// UseSampleArchive 启用训练样本的外部归档（nil 表示不归档）。
func (o *Orchestrator) UseSampleArchive(a SampleArchive) {
	o.mu.Lock()
	o.archive = a
	o.mu.Unlock()
}

// SetThresholds 热更新置信度门槛（参数热加载回调用，0 值忽略）。
func (o *Orchestrator) SetThresholds(base, raise, lower float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if base > 0 && base < 1 {
		o.cfg.BaseThreshold = base
	}
	if raise > 0 && raise < 1 {
		o.cfg.RaiseThreshold = raise
	}
	if lower > 0 && lower < 1 {
		o.cfg.LowerThreshold = lower
	}
}

// SetMinStrength 热更新信号强度门槛（0 关闭，负值忽略）。
func (o *Orchestrator) SetMinStrength(v float64) {
	if v < 0 {
		return
	}
	o.mu.Lock()
	o.cfg.MinStrength = v
	o.mu.Unlock()
}

// Records 返回最近的决策记录副本。
func (o *Orchestrator) Records(n int) []Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n <= 0 || n > len(o.records) {
		n = len(o.records)
	}
	out := make([]Record, n)
	copy(out, o.records[len(o.records)-n:])
	return out
}

// Book 暴露仓位账本（状态接口用）。
func (o *Orchestrator) Book() *paper.Book { return o.book }

// Cycle 执行一个完整的 评估→决策→执行→学习 周期。
// 快照为空视为采集失败，本周期跳过。
func (o *Orchestrator) Cycle(ctx context.Context, snap *market.Snapshot) *Record {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.cycle++
	rec := &Record{Cycle: o.cycle, Source: "none"}
	if snap == nil || snap.Underlying <= 0 {
		rec.Reason = "行情缺失"
		o.push(rec)
		return rec
	}
	rec.At = snap.Timestamp

	o.history = append(o.history, *snap)
	if len(o.history) > o.cfg.HistoryCap {
		o.history = o.history[len(o.history)-o.cfg.HistoryCap:]
	}

	reg := o.detector.Detect(snap.Timestamp, snap.Underlying)
	rec.RegimeLabel = reg.Label
	o.riskMgr.RecordPrice(snap.Underlying)
	o.book.Observe(snap)

	atm := snap.ATMStrike()
	vec, err := features.Extract(snap, o.history, atm, o.engine.FeatureNames())
	if err != nil {
		logger.Debugf("decision: 特征提取失败，跳过周期: %v", err)
		rec.Reason = "特征提取失败"
		o.push(rec)
		return rec
	}
	if pcr, ok := vec.Get("pcr_oi"); ok {
		o.compare.observe(pcr)
	}

	hSig, hStrength := HeuristicSignal(snap, atm)
	pred := o.engine.Predict(vec)

	candidate, conf, strength := o.arbitrate(rec, pred, hSig, hStrength, vec)
	if candidate != 0 && o.cfg.MinStrength > 0 && strength < o.cfg.MinStrength {
		rec.Reason = "信号强度低于热更新门槛"
		candidate = 0
	}
	candidate = o.stabilize(rec, candidate)
	rec.Signal = candidate
	rec.Confidence = conf
	rec.Strength = strength

	if err := o.sink.Send(ctx, candidate); err != nil {
		logger.Warnf("decision: 信号发送失败: %v", err)
	}

	// 离场时机评分只作为并行建议记录，真正平仓由账本的规则链决定。
	rec.ExitAdvice = o.adviseExit(snap, reg, strength)

	if exit := o.book.CheckExit(ctx, snap, candidate, reg.Label, snap.Timestamp); exit != nil {
		rec.ExitReason = exit.Reason
		rec.PnL = exit.PnL
		o.riskMgr.RecordTrade(exit.PnL)
		o.riskMgr.RegisterClose(o.openRisk)
		o.openRisk = 0
		o.learnFromClose(ctx, vec, exit, snap.Timestamp)
	}

	if candidate != 0 {
		o.tryEnter(rec, candidate, conf, strength, reg, snap, atm, pred)
	}

	// 常规学习节奏：定期摄入样本、定期批量重训。
	if o.cycle%o.cfg.UpdateEvery == 0 {
		labels := predict.DeriveLabels(vec.Map(), nil)
		o.ingest(ctx, vec, labels, "cycle", snap.Timestamp)
	}
	if o.cycle%o.cfg.TrainEvery == 0 {
		if report, err := o.engine.TrainModels(ctx); err != nil {
			logger.Warnf("decision: 训练周期失败: %v", err)
		} else if report.Ran {
			logger.Infof("decision: 训练周期完成 samples=%d trained=%v", report.Samples, report.Trained())
		}
	}

	o.push(rec)
	return rec
}

// arbitrate 在模型预测与规则信号之间仲裁，返回候选信号、置信度与强度。
func (o *Orchestrator) arbitrate(rec *Record, pred *predict.Prediction, hSig int, hStrength float64, vec *features.Vector) (int, float64, float64) {
	if pred == nil {
		rec.Source = "heuristic"
		return hSig, hStrength / 10, hStrength
	}

	rec.Source = "model"
	rec.Prediction = pred

	pcr, _ := vec.Get("pcr_oi")
	conf := pred.Confidence + o.compare.adjust(pred, pcr)
	if conf > 1 {
		conf = 1
	}
	strength := hStrength
	if s := float64(pred.Pattern) * 2.5; s > strength {
		strength = s
	}

	threshold := o.threshold()
	if conf < threshold {
		rec.Reason = "置信度低于动态阈值"
		return 0, conf, strength
	}

	mSig := pred.SignalDirection
	switch {
	case conf >= 0.8:
		return mSig, conf, strength
	case conf >= 0.7 && mSig == hSig:
		return mSig, conf, strength
	case conf >= 0.75:
		// 模型与规则相悖，只有足够高的置信度才允许模型压倒规则。
		return mSig, conf, strength
	case conf >= 0.7:
		rec.Reason = "模型与规则相悖且置信度不足"
		return 0, conf, strength
	case mSig == hSig:
		return mSig, conf, strength
	default:
		rec.Reason = "低置信度区间要求模型与规则一致"
		return 0, conf, strength
	}
}

// threshold 按最近 10 笔成交胜率动态调整置信度门槛。
func (o *Orchestrator) threshold() float64 {
	trades := o.book.ClosedTrades()
	if len(trades) > 10 {
		trades = trades[len(trades)-10:]
	}
	if len(trades) == 0 {
		return o.cfg.BaseThreshold
	}
	wins := 0
	for _, t := range trades {
		if t.Outcome == 1 {
			wins++
		}
	}
	winRate := float64(wins) / float64(len(trades))
	switch {
	case winRate < 0.4:
		return o.cfg.RaiseThreshold
	case winRate > 0.7:
		return o.cfg.LowerThreshold
	default:
		return o.cfg.BaseThreshold
	}
}

// stabilize 要求信号翻转得到最近三票中至少两票支持，否则强制中性。
func (o *Orchestrator) stabilize(rec *Record, candidate int) int {
	o.votes = append(o.votes, candidate)
	if len(o.votes) > 3 {
		o.votes = o.votes[len(o.votes)-3:]
	}
	if candidate == o.lastAccepted {
		return candidate
	}
	agree := 0
	for _, v := range o.votes {
		if v == candidate {
			agree++
		}
	}
	if agree < 2 {
		if rec.Reason == "" {
			rec.Reason = "信号翻转未获多数票"
		}
		return 0
	}
	o.lastAccepted = candidate
	return candidate
}

// tryEnter 依次通过盈利时机与组合风控两道闸门后开仓。
func (o *Orchestrator) tryEnter(rec *Record, sig int, conf, strength float64, reg regime.Regime,
	snap *market.Snapshot, atm float64, pred *predict.Prediction) {
	if _, open := o.book.Open(); open {
		return
	}
	row, ok := snap.Row(atm)
	if !ok {
		return
	}
	entryPrice := row.CallLTP
	if sig == 1 {
		entryPrice = row.PutLTP
	}
	if entryPrice <= 0 {
		return
	}

	flags := market.Session(snap.Timestamp)
	if !o.optimizer.ShouldEnter(strength, reg.Volatility, reg.Label, flags, o.recentPnls(5)) {
		rec.Reason = "入场时机评分不足"
		return
	}
	rec.TargetRatio = o.optimizer.TargetRatio(strength, reg.Volatility, reg.Label, flags)

	lots := o.riskMgr.PositionSize(o.cfg.AccountValue, reg.Volatility, conf*3, strength)
	stopPts := o.riskMgr.DynamicStopLoss(entryPrice, reg.Volatility, strength)
	riskAmount := stopPts * float64(lots*o.cfg.LotSize)
	if ok, reason := o.riskMgr.CheckPortfolioRisk(o.cfg.AccountValue, riskAmount); !ok {
		rec.Reason = reason
		return
	}

	if o.book.Enter(sig, entryPrice, atm, lots, reg.Label, pred, snap.Timestamp) {
		o.riskMgr.RegisterOpen(riskAmount)
		o.openRisk = riskAmount
		rec.Entered = true
	}
}

// learnFromClose 是平仓后的学习反馈路径：用真实盈亏生成标签，
// 并按独立节奏触发一次训练。
func (o *Orchestrator) learnFromClose(ctx context.Context, vec *features.Vector, exit *paper.ExitResult, at time.Time) {
	pnl := exit.PnL
	labels := predict.DeriveLabels(vec.Map(), &pnl)
	o.ingest(ctx, vec, labels, "trade_close", at)

	// 缓冲价差伪标签：为样本多样性补充弱监督素材。
	for _, ps := range o.book.PseudoSamples(3) {
		change := ps.PriceChangePct
		pseudo := predict.DeriveLabels(map[string]float64{
			"call_ltp_change_pct": change,
			"put_ltp_change_pct":  -change,
		}, nil)
		o.ingest(ctx, vec, pseudo, "buffer_delta", ps.At)
	}

	if o.cycle%o.cfg.FeedbackEvery == 0 {
		if _, err := o.engine.TrainModels(ctx); err != nil {
			logger.Warnf("decision: 反馈训练失败: %v", err)
		}
	}
}

// ingest 把一条训练样本同时喂给引擎与外部归档。
// 归档失败只告警，不影响在线学习。
func (o *Orchestrator) ingest(ctx context.Context, vec *features.Vector, labels predict.LabelSet, tradeContext string, at time.Time) {
	o.engine.UpdateTrainingData(vec, labels, tradeContext, at)
	if o.archive == nil {
		return
	}
	if err := o.archive.AppendSample(ctx, tradeContext, vec.Map(), labels, at); err != nil {
		logger.Warnf("decision: 训练样本归档失败: %v", err)
	}
}

// adviseExit 对在场仓位计算离场时机评分。
func (o *Orchestrator) adviseExit(snap *market.Snapshot, reg regime.Regime, strength float64) bool {
	pos, open := o.book.Open()
	if !open {
		return false
	}
	row, ok := snap.Row(pos.EntryStrike)
	if !ok {
		return false
	}
	cur := row.CallLTP
	if pos.Side == paper.SideShortPut {
		cur = row.PutLTP
	}
	if cur <= 0 || pos.EntryPrice <= 0 {
		return false
	}
	holding := snap.Timestamp.Sub(pos.EntryTime).Minutes()
	profitPct := (pos.EntryPrice - cur) / pos.EntryPrice * 100
	advise := o.optimizer.ShouldExit(holding, profitPct, strength, reg.Label)
	if advise {
		logger.Debugf("decision: 离场评分建议平仓 持仓=%.0f分钟 盈亏=%.1f%%", holding, profitPct)
	}
	return advise
}

func (o *Orchestrator) recentPnls(n int) []float64 {
	trades := o.book.ClosedTrades()
	if len(trades) > n {
		trades = trades[len(trades)-n:]
	}
	out := make([]float64, 0, len(trades))
	for _, t := range trades {
		out = append(out, t.PnL)
	}
	return out
}

func (o *Orchestrator) push(rec *Record) {
	o.records = append(o.records, *rec)
	if len(o.records) > 500 {
		o.records = o.records[len(o.records)-500:]
	}
}
