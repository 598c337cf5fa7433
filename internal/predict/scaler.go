package predict

import "math"

// StandardScaler 按列做零均值/单位方差标准化。
// 每个训练周期在最终送入模型的矩阵上重新拟合。
type StandardScaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Width 返回拟合时的列数；未拟合为 0。
func (s *StandardScaler) Width() int {
	return len(s.Mean)
}

// Fit 在矩阵 X 上拟合均值与标准差（std 为 0 的列退化为 1）。
func (s *StandardScaler) Fit(X [][]float64) {
	if len(X) == 0 || len(X[0]) == 0 {
		s.Mean, s.Std = nil, nil
		return
	}
	cols := len(X[0])
	s.Mean = make([]float64, cols)
	s.Std = make([]float64, cols)
	for j := 0; j < cols; j++ {
		sum := 0.0
		for _, row := range X {
			sum += row[j]
		}
		mean := sum / float64(len(X))
		variance := 0.0
		for _, row := range X {
			variance += (row[j] - mean) * (row[j] - mean)
		}
		std := math.Sqrt(variance / float64(len(X)))
		if std == 0 {
			std = 1
		}
		s.Mean[j] = mean
		s.Std[j] = std
	}
}

// Transform 标准化单个向量；宽度不符时原样返回。
func (s *StandardScaler) Transform(vec []float64) []float64 {
	if len(vec) != s.Width() {
		return vec
	}
	out := make([]float64, len(vec))
	for j, v := range vec {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out
}

// TransformMatrix 标准化整个矩阵。
func (s *StandardScaler) TransformMatrix(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = s.Transform(row)
	}
	return out
}
