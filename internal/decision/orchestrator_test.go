package decision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"premia/internal/market"
	"premia/internal/paper"
	"premia/internal/predict"
	"premia/internal/profit"
	"premia/internal/regime"
	"premia/internal/risk"
	"premia/internal/signal"
)

func newTestOrchestrator() *Orchestrator {
	engine := predict.NewEngine(predict.Config{}, nil)
	return NewOrchestrator(Config{AccountValue: 500000},
		engine, regime.NewDetector(), risk.NewManager(risk.Config{}),
		profit.NewOptimizer(), paper.NewBook(nil), signal.Noop{})
}

func bullishSnapshot(at time.Time) *market.Snapshot {
	return &market.Snapshot{
		Timestamp:  at,
		Underlying: 24000,
		Rows: []market.ChainRow{
			{
				Strike: 24000,
				CallOI: 1000, PutOI: 2000,
				CallVolume: 400, PutVolume: 800,
				CallChangeOI: 100, PutChangeOI: 500,
				CallLTP: 60, PutLTP: 40,
			},
		},
	}
}

func TestCycleSkipsOnMissingMarketData(t *testing.T) {
	o := newTestOrchestrator()
	rec := o.Cycle(context.Background(), nil)
	require.NotNil(t, rec)
	assert.Equal(t, 0, rec.Signal)
	assert.Equal(t, "none", rec.Source)
	assert.NotEmpty(t, rec.Reason)
}

func TestHeuristicPathWhenUntrained(t *testing.T) {
	o := newTestOrchestrator()
	at := time.Date(2026, 8, 31, 11, 30, 0, 0, time.Local)
	rec := o.Cycle(context.Background(), bullishSnapshot(at))
	assert.Equal(t, "heuristic", rec.Source)
	assert.Nil(t, rec.Prediction)
}

func TestStabilityFilterBlocksFirstFlip(t *testing.T) {
	o := newTestOrchestrator()
	at := time.Date(2026, 8, 31, 11, 30, 0, 0, time.Local)

	// 第一票：翻转未获多数，强制中性
	rec1 := o.Cycle(context.Background(), bullishSnapshot(at))
	assert.Equal(t, 0, rec1.Signal)
	assert.False(t, rec1.Entered)

	// 第二票：2/3 多数达成，信号放行并开仓
	rec2 := o.Cycle(context.Background(), bullishSnapshot(at.Add(time.Minute)))
	assert.Equal(t, 1, rec2.Signal)
	assert.True(t, rec2.Entered)

	// 第三周期：已有在场仓位，不再开仓
	rec3 := o.Cycle(context.Background(), bullishSnapshot(at.Add(2*time.Minute)))
	assert.Equal(t, 1, rec3.Signal)
	assert.False(t, rec3.Entered)
	_, open := o.Book().Open()
	assert.True(t, open)
}

func TestRecordsRingBuffer(t *testing.T) {
	o := newTestOrchestrator()
	at := time.Date(2026, 8, 31, 11, 30, 0, 0, time.Local)
	for i := 0; i < 5; i++ {
		o.Cycle(context.Background(), bullishSnapshot(at.Add(time.Duration(i)*time.Minute)))
	}
	recs := o.Records(3)
	require.Len(t, recs, 3)
	assert.Equal(t, 5, recs[2].Cycle)
}

func TestSetThresholdsIgnoresInvalid(t *testing.T) {
	o := newTestOrchestrator()
	o.SetThresholds(0.5, 0, 1.5)
	assert.InDelta(t, 0.5, o.cfg.BaseThreshold, 1e-9)
	assert.InDelta(t, 0.55, o.cfg.RaiseThreshold, 1e-9, "0 值沿用默认")
	assert.InDelta(t, 0.45, o.cfg.LowerThreshold, 1e-9, "越界值被忽略")
}

func TestThresholdAdjustsWithWinRate(t *testing.T) {
	o := newTestOrchestrator()
	assert.InDelta(t, 0.40, o.threshold(), 1e-9, "无成交时用基准阈值")
}

type archivedSample struct {
	context string
	feats   map[string]float64
	at      time.Time
}

type memArchive struct {
	samples []archivedSample
}

func (m *memArchive) AppendSample(_ context.Context, tradeContext string, features map[string]float64, _ interface{}, at time.Time) error {
	m.samples = append(m.samples, archivedSample{context: tradeContext, feats: features, at: at})
	return nil
}

func TestTrainingSamplesArchived(t *testing.T) {
	o := newTestOrchestrator()
	arc := &memArchive{}
	o.UseSampleArchive(arc)

	at := time.Date(2026, 8, 31, 11, 30, 0, 0, time.Local)
	for i := 0; i < 5; i++ {
		o.Cycle(context.Background(), bullishSnapshot(at.Add(time.Duration(i)*time.Minute)))
	}

	// 摄入节奏为每 5 个周期一条：引擎收到的样本同步落入归档
	require.Len(t, arc.samples, 1)
	s := arc.samples[0]
	assert.Equal(t, "cycle", s.context)
	assert.Contains(t, s.feats, "pcr_oi")
	assert.Equal(t, at.Add(4*time.Minute), s.at)
}

func TestMinStrengthGateNeutralizesSignal(t *testing.T) {
	o := newTestOrchestrator()
	o.SetMinStrength(9.5)

	at := time.Date(2026, 8, 31, 11, 30, 0, 0, time.Local)
	for i := 0; i < 3; i++ {
		rec := o.Cycle(context.Background(), bullishSnapshot(at.Add(time.Duration(i)*time.Minute)))
		assert.Equal(t, 0, rec.Signal)
		assert.False(t, rec.Entered)
	}
	_, open := o.Book().Open()
	assert.False(t, open)

	// 负值忽略，0 关闭门槛
	o.SetMinStrength(-1)
	assert.InDelta(t, 9.5, o.cfg.MinStrength, 1e-9)
	o.SetMinStrength(0)
	assert.Zero(t, o.cfg.MinStrength)
}

func TestComparativeAdjustBounds(t *testing.T) {
	var c comparative
	for i := 0; i < 50; i++ {
		c.observe(1.0 + float64(i)*0.01)
	}
	pred := &predict.Prediction{SignalDirection: 1, Pattern: 3, SequenceModelUsed: true}
	delta := c.adjust(pred, 2.0) // 极端高分位且方向一致
	assert.LessOrEqual(t, delta, 0.25)
	assert.GreaterOrEqual(t, delta, -0.05)
	assert.InDelta(t, 0.20, delta, 1e-9)

	against := &predict.Prediction{SignalDirection: -1}
	assert.InDelta(t, -0.05, c.adjust(against, 2.0), 1e-9)
	assert.Zero(t, c.adjust(nil, 2.0))
}
