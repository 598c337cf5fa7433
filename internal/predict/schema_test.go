package predict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaMonotonicGrowth(t *testing.T) {
	s := NewSchema()
	require.True(t, s.Extend([]string{"a", "b"}))
	first := s.Names()

	// 重复名不增长，新名只追加在尾部
	assert.False(t, s.Extend([]string{"b", "a"}))
	require.True(t, s.Extend([]string{"c", "a"}))

	grown := s.Names()
	require.Len(t, grown, 3)
	assert.Equal(t, first, grown[:len(first)])
	assert.Equal(t, "c", grown[2])
}

func TestSchemaProjectZeroFills(t *testing.T) {
	s := SchemaFromNames([]string{"x", "y", "z"})
	vec := s.Project(map[string]float64{"y": 2, "w": 9})
	assert.Equal(t, []float64{0, 2, 0}, vec)
}

func TestReorderIdempotent(t *testing.T) {
	live := SchemaFromNames([]string{"a", "b", "c", "d"})
	frozen := SchemaFromNames([]string{"b", "a", "c"})

	vec := live.Project(map[string]float64{"a": 1, "b": 2, "c": 3, "d": 4})
	once := frozen.Reorder(vec, live)
	assert.Equal(t, []float64{2, 1, 3}, once)

	// 已在冻结顺序中的向量再重排一次结果不变
	twice := frozen.Reorder(once, frozen)
	assert.Equal(t, once, twice)
}

func TestReorderToleratesGrowth(t *testing.T) {
	frozen := SchemaFromNames([]string{"a", "b", "new_after_freeze"})
	live := SchemaFromNames([]string{"a", "b"})
	out := frozen.Reorder([]float64{1, 2}, live)
	assert.Equal(t, []float64{1, 2, 0}, out)
}

func TestStandardScaler(t *testing.T) {
	var s StandardScaler
	s.Fit([][]float64{{1, 10}, {3, 10}})
	assert.Equal(t, 2, s.Width())

	out := s.Transform([]float64{2, 10})
	assert.InDelta(t, 0, out[0], 1e-9)
	// 零方差列退化为 std=1，不产生 NaN
	assert.InDelta(t, 0, out[1], 1e-9)

	// 宽度不符原样返回
	raw := []float64{1, 2, 3}
	assert.Equal(t, raw, s.Transform(raw))
}
