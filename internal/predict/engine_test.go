package predict

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"premia/internal/features"
)

// memPersister 把快照留在内存里（测试用）。
type memPersister struct {
	data []byte
}

func (m *memPersister) SaveSnapshot(_ context.Context, data []byte) error {
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *memPersister) LoadSnapshot(context.Context) ([]byte, error) {
	return m.data, nil
}

func sampleVector(i int) *features.Vector {
	v := features.NewVector()
	v.Set("pcr_oi", 0.5+float64(i%5)*0.3)
	v.Set("atm_call_ltp", 40+float64(i%7))
	v.Set("atm_put_ltp", 35+float64(i%3))
	v.Set("underlying_price", 24+float64(i%4)*0.01)
	return v
}

func variedLabels(i int) LabelSet {
	return LabelSet{
		Regime:          float64(i%3 - 1),
		Confidence:      float64(i % 3),
		Pattern:         float64(i % 4),
		SignalDirection: float64(i%3 - 1),
		PositionSize:    0.2 + 0.1*float64(i%5),
		StopLossPct:     0.05 + 0.01*float64(i%5),
		TrailingStopPct: 0.3 + 0.05*float64(i%5),
	}
}

func feedEngine(e *Engine, n int, labels func(int) LabelSet) {
	base := time.Date(2026, 8, 31, 10, 0, 0, 0, time.Local)
	for i := 0; i < n; i++ {
		e.UpdateTrainingData(sampleVector(i), labels(i), "test", base.Add(time.Duration(i)*time.Minute))
	}
}

func TestPredictNilBeforeTraining(t *testing.T) {
	e := NewEngine(Config{}, nil)
	assert.Nil(t, e.Predict(sampleVector(0)))
	assert.False(t, e.Trained())
}

func TestTrainSkipsBelowMinSamples(t *testing.T) {
	e := NewEngine(Config{MinTrainingSamples: 30}, nil)
	feedEngine(e, 5, variedLabels)
	report, err := e.TrainModels(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Ran)
	assert.False(t, e.Trained())
}

func TestDiversityGating(t *testing.T) {
	e := NewEngine(Config{MinTrainingSamples: 10, SequenceLength: 50}, nil)
	// 分类标签全部取同一个值，回归标签保持变化
	feedEngine(e, 15, func(i int) LabelSet {
		return LabelSet{
			Regime:          0,
			Confidence:      1,
			Pattern:         0,
			SignalDirection: 0,
			PositionSize:    0.2 + 0.1*float64(i%5),
			StopLossPct:     0.05 + 0.01*float64(i%5),
			TrailingStopPct: 0.3 + 0.05*float64(i%5),
		}
	})
	report, err := e.TrainModels(context.Background())
	require.NoError(t, err)
	require.True(t, report.Ran)

	assert.False(t, report.Roles[RoleRegime].Trained)
	assert.NotEmpty(t, report.Roles[RoleRegime].Reason)
	assert.True(t, report.Roles[RoleSizer].Trained)
	assert.True(t, report.Roles[RoleStopLoss].Trained)
	// 至少一个角色成功即视为已训练
	assert.True(t, e.Trained())
	assert.True(t, report.Trained())
}

func TestTrainAndPredictShape(t *testing.T) {
	e := NewEngine(Config{MinTrainingSamples: 20, SequenceLength: 50, MetaMinSamples: 30}, nil)
	feedEngine(e, 40, variedLabels)
	report, err := e.TrainModels(context.Background())
	require.NoError(t, err)
	require.True(t, report.Ran)
	require.True(t, e.Trained())

	p := e.Predict(sampleVector(1))
	require.NotNil(t, p)
	assert.GreaterOrEqual(t, p.PositionSize, 0.1)
	assert.LessOrEqual(t, p.PositionSize, 1.0)
	assert.GreaterOrEqual(t, p.StopLossPct, 0.05)
	assert.LessOrEqual(t, p.StopLossPct, 0.20)
	assert.GreaterOrEqual(t, p.TrailingStopPct, 0.3)
	assert.LessOrEqual(t, p.TrailingStopPct, 0.8)
	if p.SignalDirection != 0 {
		assert.GreaterOrEqual(t, p.Confidence, 0.7)
	}
	assert.Equal(t, p.SignalDirection, p.ExternalSignal)
}

func TestSchemaGrowthRebuildsSequenceModel(t *testing.T) {
	e := NewEngine(Config{SequenceLength: 5}, nil)
	feedEngine(e, 3, variedLabels)
	require.NotNil(t, e.seq)
	oldWidth := e.seq.InputSize

	v := sampleVector(0)
	v.Set("brand_new_feature", 1)
	e.UpdateTrainingData(v, variedLabels(0), "test", time.Now())

	assert.Greater(t, e.seq.InputSize, oldWidth)
	// 增长时窗口先清空，再压入触发增长的这一条
	assert.Len(t, e.seqWindow, 1)
	assert.Empty(t, e.seqBuffer)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	persist := &memPersister{}
	// SequenceLength 大于样本数，排除序列窗口对预测路径的影响
	cfg := Config{MinTrainingSamples: 20, SequenceLength: 100, MetaMinSamples: 30}
	e := NewEngine(cfg, persist)
	feedEngine(e, 40, variedLabels)
	_, err := e.TrainModels(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, persist.data, "训练后必须写出快照")

	probe := sampleVector(2)
	want := e.Predict(probe)
	require.NotNil(t, want)

	restored := NewEngine(cfg, persist)
	require.NoError(t, restored.Load(context.Background()))
	require.True(t, restored.Trained())

	got := restored.Predict(probe)
	require.NotNil(t, got)
	assert.Equal(t, want.Regime, got.Regime)
	assert.Equal(t, want.Pattern, got.Pattern)
	assert.Equal(t, want.SignalDirection, got.SignalDirection)
	assert.InDelta(t, want.Confidence, got.Confidence, 1e-6)
	assert.InDelta(t, want.PositionSize, got.PositionSize, 1e-6)
	assert.InDelta(t, want.StopLossPct, got.StopLossPct, 1e-6)
	assert.InDelta(t, want.TrailingStopPct, got.TrailingStopPct, 1e-6)
}

func TestSaveRejectsWidthDisagreement(t *testing.T) {
	persist := &memPersister{}
	e := NewEngine(Config{MinTrainingSamples: 20, SequenceLength: 100}, persist)
	feedEngine(e, 25, variedLabels)
	_, err := e.TrainModels(context.Background())
	require.NoError(t, err)

	// 人为制造宽度漂移的模型，saveLocked 必须拒绝写出
	e.mu.Lock()
	bad := NewRidgeRegressor()
	require.NoError(t, bad.Fit([][]float64{{1, 2, 3, 4, 5, 6, 7}}, []float64{1}))
	e.models[RoleSizer] = bad
	err = e.saveLocked(context.Background())
	e.mu.Unlock()
	assert.Error(t, err)
}

func TestLoadToleratesMissingAndCorrupt(t *testing.T) {
	e := NewEngine(Config{}, &memPersister{})
	require.NoError(t, e.Load(context.Background()))
	assert.False(t, e.Trained())

	corrupt := &memPersister{data: []byte("{not json")}
	e2 := NewEngine(Config{}, corrupt)
	require.NoError(t, e2.Load(context.Background()))
	assert.False(t, e2.Trained())
}

func TestDeriveLabelsFromPnl(t *testing.T) {
	values := map[string]float64{"pcr_oi": 1.4, "call_ltp_change_pct": 8, "put_ltp_change_pct": 1, "pcr_volume": 1.3}
	pnl := 12.0
	ls := DeriveLabels(values, &pnl)
	assert.Equal(t, 2.0, ls.Confidence)
	assert.Equal(t, 1.0, ls.SignalDirection)

	loss := -5.0
	ls = DeriveLabels(values, &loss)
	assert.Equal(t, 0.0, ls.Confidence)
	assert.Equal(t, 0.0, ls.SignalDirection, "亏损样本抑制方向标签")
}

func TestSoftmaxRequiresDiversity(t *testing.T) {
	c := NewSoftmaxClassifier()
	err := c.Fit([][]float64{{1}, {2}}, []float64{1, 1})
	assert.Error(t, err)
}

func TestTrainingSampleEviction(t *testing.T) {
	e := NewEngine(Config{MaxTrainingSamples: 10}, nil)
	feedEngine(e, 25, variedLabels)
	assert.Equal(t, 10, e.SampleCount())
}

func TestSequenceModelDeterministicRebuild(t *testing.T) {
	a := NewSequenceModel(4, 5)
	b := NewSequenceModel(4, 5)
	require.NotNil(t, a)
	for i := range a.Wz {
		assert.Equal(t, a.Wz[i], b.Wz[i], fmt.Sprintf("固定种子下第 %d 行循环权重必须一致", i))
	}
}
