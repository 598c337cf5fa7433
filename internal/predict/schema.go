package predict

// Schema 是有序的特征名表：名字一经加入永不删除、永不重排，
// 因为所有已训练模型的权重都按位置绑定到这个顺序。
type Schema struct {
	names []string
	index map[string]int
}

func NewSchema() *Schema {
	return &Schema{index: make(map[string]int)}
}

// Extend 追加未知的特征名，返回是否发生增长。
func (s *Schema) Extend(names []string) bool {
	grew := false
	for _, name := range names {
		if _, ok := s.index[name]; ok {
			continue
		}
		s.index[name] = len(s.names)
		s.names = append(s.names, name)
		grew = true
	}
	return grew
}

// Names 返回特征名副本（保持顺序）。
func (s *Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

func (s *Schema) Len() int {
	return len(s.names)
}

// Project 按本 schema 的顺序把命名值投影成定长向量，缺失名补 0。
func (s *Schema) Project(values map[string]float64) []float64 {
	out := make([]float64, len(s.names))
	for i, name := range s.names {
		out[i] = values[name]
	}
	return out
}

// Reorder 把 from 顺序下的向量重排到本 schema 的顺序。
// from 中不存在的名字补 0（容忍 schema 自上次冻结后的增长）。
// 操作幂等：重排两次与一次结果相同。
func (s *Schema) Reorder(vec []float64, from *Schema) []float64 {
	out := make([]float64, len(s.names))
	for i, name := range s.names {
		if j, ok := from.index[name]; ok && j < len(vec) {
			out[i] = vec[j]
		}
	}
	return out
}

// Clone 复制 schema（冻结 trained 顺序时使用）。
func (s *Schema) Clone() *Schema {
	c := NewSchema()
	c.Extend(s.names)
	return c
}

// SchemaFromNames 从持久化的名字列表还原 schema。
func SchemaFromNames(names []string) *Schema {
	s := NewSchema()
	s.Extend(names)
	return s
}
