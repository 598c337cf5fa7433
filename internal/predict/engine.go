package predict

import (
	"context"
	"math"
	"sync"
	"time"

	"premia/internal/features"
	"premia/internal/logger"
)

// Config 控制训练节奏与缓冲规模。
type Config struct {
	MinTrainingSamples int
	MaxTrainingSamples int
	SequenceLength     int
	MetaMinSamples     int
	SequenceMinBuffer  int
	SequenceBufferCap  int
	SequenceEpochs     int
}

func (c *Config) applyDefaults() {
	if c.MinTrainingSamples <= 0 {
		c.MinTrainingSamples = 30
	}
	if c.MaxTrainingSamples <= 0 {
		c.MaxTrainingSamples = 2000
	}
	if c.SequenceLength <= 0 {
		c.SequenceLength = 10
	}
	if c.MetaMinSamples <= 0 {
		c.MetaMinSamples = 50
	}
	if c.SequenceMinBuffer <= 0 {
		c.SequenceMinBuffer = 100
	}
	if c.SequenceBufferCap <= 0 {
		c.SequenceBufferCap = 500
	}
	if c.SequenceEpochs <= 0 {
		c.SequenceEpochs = 5
	}
}

// TrainingSample 是一条归档的训练样本。
type TrainingSample struct {
	Values       map[string]float64
	Labels       LabelSet
	TradeContext string
	Timestamp    time.Time
}

// RoleResult 记录单个角色本轮是否训练及跳过原因。
type RoleResult struct {
	Trained bool   `json:"trained"`
	Reason  string `json:"reason,omitempty"`
}

// TrainingReport 是一次训练周期的结构化结果：
// 哪些角色训练了、哪些被跳过及原因。
type TrainingReport struct {
	Ran             bool                `json:"ran"`
	Samples         int                 `json:"samples"`
	Roles           map[Role]RoleResult `json:"roles"`
	SequenceTrained bool                `json:"sequence_trained"`
	At              time.Time           `json:"at"`
}

// Trained 表示本轮至少有一个角色成功训练。
func (r *TrainingReport) Trained() bool {
	if r == nil || !r.Ran {
		return false
	}
	if r.SequenceTrained {
		return true
	}
	for _, res := range r.Roles {
		if res.Trained {
			return true
		}
	}
	return false
}

// Prediction 是集成输出的定形记录。
type Prediction struct {
	Regime            int     `json:"regime"`
	Confidence        float64 `json:"confidence"`
	Pattern           int     `json:"pattern"`
	SignalDirection   int     `json:"signal_direction"`
	ExternalSignal    int     `json:"external_signal"`
	PositionSize      float64 `json:"position_size"`
	StopLossPct       float64 `json:"stop_loss_pct"`
	TrailingStopPct   float64 `json:"trailing_stop_pct"`
	SequenceModelUsed bool    `json:"sequence_model_used"`
}

// Engine 持有特征 schema、集成模型、序列模型与标准化器，
// 支持增量样本摄入、带多样性闸门的批量重训、按角色优雅降级的
// 预测，以及带版本校验的持久化。
type Engine struct {
	mu sync.Mutex

	cfg    Config
	schema *Schema // feature_names：只增不减
	frozen *Schema // trained_feature_names：上次成功训练时冻结
	scaler StandardScaler

	models map[Role]Model
	seq    *SequenceModel

	samples   []TrainingSample
	seqWindow [][]float64
	seqBuffer []SequenceSample

	trained    bool
	lastReport *TrainingReport
	persist    Persister
}

func NewEngine(cfg Config, persist Persister) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:     cfg,
		schema:  NewSchema(),
		models:  make(map[Role]Model),
		persist: persist,
	}
}

// Trained 表示至少有一个角色就绪（预测路径的总闸门）。
func (e *Engine) Trained() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trained
}

// FeatureNames 返回当前 schema（特征抽取回填用）。
func (e *Engine) FeatureNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schema.Names()
}

// LastReport 返回最近一次训练报告。
func (e *Engine) LastReport() *TrainingReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReport
}

// SampleCount 返回样本缓冲大小。
func (e *Engine) SampleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.samples)
}

// UpdateTrainingData 追加样本并维护 schema 与序列窗口。
// schema 增长时序列模型的输入层宽度失配，必须整体重建并重置
// 优化器——这是显式的架构行为，不是偶然副作用。
func (e *Engine) UpdateTrainingData(vec *features.Vector, labels LabelSet, tradeContext string, at time.Time) {
	if vec == nil || vec.Len() == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.samples = append(e.samples, TrainingSample{
		Values:       copyValues(vec.Map()),
		Labels:       labels,
		TradeContext: tradeContext,
		Timestamp:    at,
	})
	if len(e.samples) > e.cfg.MaxTrainingSamples {
		e.samples = e.samples[len(e.samples)-e.cfg.MaxTrainingSamples:]
	}

	if grew := e.schema.Extend(vec.Names()); grew {
		logger.Infof("predict: schema 增长到 %d 列，重建序列模型", e.schema.Len())
		e.seq = NewSequenceModel(e.schema.Len(), e.cfg.SequenceLength)
		e.seqWindow = nil
		e.seqBuffer = nil
	}
	if e.seq == nil {
		e.seq = NewSequenceModel(e.schema.Len(), e.cfg.SequenceLength)
	}

	row := sanitizeVec(e.schema.Project(vec.Map()))
	e.seqWindow = append(e.seqWindow, row)
	if len(e.seqWindow) > e.cfg.SequenceLength {
		e.seqWindow = e.seqWindow[len(e.seqWindow)-e.cfg.SequenceLength:]
	}
	if len(e.seqWindow) == e.cfg.SequenceLength {
		steps := make([][]float64, len(e.seqWindow))
		copy(steps, e.seqWindow)
		e.seqBuffer = append(e.seqBuffer, SequenceSample{Steps: steps, Label: labels.Regime})
		if len(e.seqBuffer) > e.cfg.SequenceBufferCap {
			e.seqBuffer = e.seqBuffer[len(e.seqBuffer)-e.cfg.SequenceBufferCap:]
		}
	}
}

// TrainModels 执行一次批量训练周期。样本不足时是无操作。
// 单个分类角色缺少标签多样性只跳过该角色，绝不中止整个周期。
func (e *Engine) TrainModels(ctx context.Context) (*TrainingReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := &TrainingReport{Roles: make(map[Role]RoleResult), At: time.Now(), Samples: len(e.samples)}
	if len(e.samples) < e.cfg.MinTrainingSamples {
		logger.Debugf("predict: 样本不足（%d/%d），跳过训练", len(e.samples), e.cfg.MinTrainingSamples)
		e.lastReport = report
		return report, nil
	}
	if e.schema.Len() == 0 {
		e.lastReport = report
		return report, nil
	}

	// 设计矩阵按 feature_names 顺序构造，非有限值归零。
	X := make([][]float64, 0, len(e.samples))
	for _, s := range e.samples {
		X = append(X, sanitizeVec(e.schema.Project(s.Values)))
	}
	if len(X) == 0 || len(X[0]) == 0 {
		e.lastReport = report
		return report, nil
	}
	report.Ran = true

	// 首次成功进入训练即冻结 trained_feature_names。
	if e.frozen == nil {
		e.frozen = e.schema.Clone()
	}

	// 重排进冻结顺序（容忍冻结后的 schema 增长），
	// 并在这份最终矩阵上重新拟合标准化器。
	Xf := make([][]float64, len(X))
	for i, row := range X {
		Xf[i] = e.frozen.Reorder(row, e.schema)
	}
	if e.scaler.Width() != e.frozen.Len() && e.scaler.Width() != 0 {
		logger.Warnf("predict: 标准化器宽度 %d 与冻结宽度 %d 不符，废弃重建", e.scaler.Width(), e.frozen.Len())
		e.scaler = StandardScaler{}
	}
	e.scaler.Fit(Xf)
	Xs := e.scaler.TransformMatrix(Xf)

	labelVec := func(role Role) []float64 {
		out := make([]float64, len(e.samples))
		for i, s := range e.samples {
			out[i] = s.Labels.valueFor(role)
		}
		return out
	}

	anyTrained := false

	// 四个分类角色：各自做多样性闸门。
	for _, role := range ClassifierRoles {
		y := labelVec(role)
		if DistinctLabelCount(y) < 2 {
			report.Roles[role] = RoleResult{Reason: "标签缺少多样性"}
			continue
		}
		clf := NewSoftmaxClassifier()
		if err := clf.Fit(Xs, y); err != nil {
			report.Roles[role] = RoleResult{Reason: err.Error()}
			continue
		}
		e.models[role] = clf
		report.Roles[role] = RoleResult{Trained: true}
		anyTrained = true
	}

	// 三个回归角色：无条件训练。
	for _, role := range RegressorRoles {
		reg := NewRidgeRegressor()
		if err := reg.Fit(Xs, labelVec(role)); err != nil {
			report.Roles[role] = RoleResult{Reason: err.Error()}
			continue
		}
		e.models[role] = reg
		report.Roles[role] = RoleResult{Trained: true}
		anyTrained = true
	}

	// 元学习器：样本充足且 regime+confidence 都已就绪才训练。
	if len(e.samples) >= e.cfg.MetaMinSamples &&
		report.Roles[RoleRegime].Trained && report.Roles[RoleConfidence].Trained {
		meta := NewSoftmaxClassifier()
		if err := meta.Fit(Xs, labelVec(RoleMeta)); err != nil {
			report.Roles[RoleMeta] = RoleResult{Reason: err.Error()}
		} else {
			e.models[RoleMeta] = meta
			report.Roles[RoleMeta] = RoleResult{Trained: true}
			anyTrained = true
		}
	} else {
		report.Roles[RoleMeta] = RoleResult{Reason: "样本不足或基础分类器未就绪"}
	}

	// 序列模型：积累足够多的完整序列后训练。
	if len(e.seqBuffer) >= e.cfg.SequenceMinBuffer && e.seq != nil {
		if err := e.seq.Train(e.seqBuffer, e.cfg.SequenceEpochs); err != nil {
			logger.Warnf("predict: 序列模型训练失败: %v", err)
		} else {
			report.SequenceTrained = true
			anyTrained = true
		}
	}

	if anyTrained {
		e.trained = true
	}
	e.lastReport = report

	if e.persist != nil {
		if err := e.saveLocked(ctx); err != nil {
			logger.Errorf("predict: 持久化失败: %v", err)
		}
	}
	return report, nil
}

// Predict 产出组合预测；未训练时返回 nil（回退启发式由编排器负责）。
// 单个角色失败只替换为中性默认值，不影响整体输出。
func (e *Engine) Predict(vec *features.Vector) *Prediction {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.trained || e.schema.Len() == 0 || e.frozen == nil || vec == nil {
		return nil
	}

	raw := sanitizeVec(e.schema.Project(vec.Map()))
	proj := e.frozen.Reorder(raw, e.schema)
	scaled := e.scaler.Transform(proj)

	p := &Prediction{
		Confidence:      0.5,
		PositionSize:    0.5,
		StopLossPct:     0.10,
		TrailingStopPct: 0.5,
	}

	regimeVal := e.predictRole(RoleRegime, scaled, 0)
	if meta, ok := e.models[RoleMeta]; ok {
		if v, err := meta.Predict(scaled); err == nil {
			regimeVal = v
		}
	}
	confVal := e.predictConfidence(scaled)
	p.Pattern = int(e.predictRole(RolePattern, scaled, 0))
	p.SignalDirection = int(e.predictRole(RoleDirection, scaled, 0))
	p.PositionSize = clampLabel(e.predictRole(RoleSizer, scaled, 0.5), 0.1, 1.0)
	p.StopLossPct = clampLabel(e.predictRole(RoleStopLoss, scaled, 0.10), 0.05, 0.20)
	p.TrailingStopPct = clampLabel(e.predictRole(RoleTrailing, scaled, 0.5), 0.3, 0.8)

	// 序列模型：窗口足够时与元学习器（或基础分类器）取平均。
	if e.seq != nil && len(e.seqWindow) >= e.cfg.SequenceLength-1 {
		steps := make([][]float64, 0, len(e.seqWindow)+1)
		steps = append(steps, e.seqWindow...)
		steps = append(steps, raw)
		if seqRegime, seqConf, err := e.seq.Predict(steps); err == nil {
			regimeVal = (regimeVal + seqRegime) / 2
			confVal = (confVal + seqConf) / 2
			p.SequenceModelUsed = true
		}
	}

	p.Regime = int(math.Round(regimeVal))
	p.Confidence = confVal

	// 方向信号一经给出，置信度至少 0.7；外部信号码与方向一致。
	p.ExternalSignal = p.SignalDirection
	if p.SignalDirection != 0 && p.Confidence < 0.7 {
		p.Confidence = 0.7
	}
	return p
}

// predictRole 执行单个角色，失败时返回角色的中性默认值。
func (e *Engine) predictRole(role Role, x []float64, fallback float64) float64 {
	model, ok := e.models[role]
	if !ok {
		return fallback
	}
	v, err := model.Predict(x)
	if err != nil {
		logger.Debugf("predict: 角色 %s 预测失败，使用默认值: %v", role, err)
		return fallback
	}
	return v
}

// predictConfidence 把置信度分类 {0,1,2} 映射到 [0,1] 分值。
func (e *Engine) predictConfidence(x []float64) float64 {
	model, ok := e.models[RoleConfidence]
	if !ok {
		return 0.5
	}
	v, err := model.Predict(x)
	if err != nil {
		return 0.5
	}
	return clampLabel(v/2, 0, 1)
}

func sanitizeVec(vec []float64) []float64 {
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			vec[i] = 0
		}
	}
	return vec
}

func copyValues(values map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
