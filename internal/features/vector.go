package features

// Vector 是按插入顺序排列的命名特征向量。
// 顺序在这里只反映构造顺序；训练/预测时由 predict.Schema 统一重排。
type Vector struct {
	names  []string
	values map[string]float64
}

func NewVector() *Vector {
	return &Vector{values: make(map[string]float64)}
}

// Set 写入特征；重复写入覆盖值但不改变首次出现的顺序。
func (v *Vector) Set(name string, val float64) {
	if _, ok := v.values[name]; !ok {
		v.names = append(v.names, name)
	}
	v.values[name] = val
}

func (v *Vector) Get(name string) (float64, bool) {
	val, ok := v.values[name]
	return val, ok
}

// Names 返回特征名（插入顺序副本）。
func (v *Vector) Names() []string {
	out := make([]string, len(v.names))
	copy(out, v.names)
	return out
}

// Map 返回底层键值（共享引用，调用方只读）。
func (v *Vector) Map() map[string]float64 {
	return v.values
}

func (v *Vector) Len() int {
	return len(v.names)
}
