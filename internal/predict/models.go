package predict

import (
	"fmt"
	"math"
	"sort"
)

// Role 标识集成中的模型角色。
type Role string

const (
	RoleRegime     Role = "regime_classifier"
	RoleConfidence Role = "signal_confidence"
	RolePattern    Role = "pattern_detector"
	RoleDirection  Role = "signal_direction"
	RoleSizer      Role = "position_sizer"
	RoleStopLoss   Role = "stop_loss_predictor"
	RoleTrailing   Role = "trailing_stop_predictor"
	RoleMeta       Role = "meta_learner"
)

// ClassifierRoles 需要标签多样性闸门的四个分类角色。
var ClassifierRoles = []Role{RoleRegime, RoleConfidence, RolePattern, RoleDirection}

// RegressorRoles 无条件训练的三个回归角色。
var RegressorRoles = []Role{RoleSizer, RoleStopLoss, RoleTrailing}

// Model 是集成内估计器的能力接口。
type Model interface {
	Fit(X [][]float64, y []float64) error
	Predict(x []float64) (float64, error)
	InputWidth() int
}

// ProbModel 可输出类别概率分布。
type ProbModel interface {
	PredictProba(x []float64) ([]float64, error)
}

// ---------------------------------------------------------------------------

// SoftmaxClassifier 是多类逻辑回归（全批梯度下降，零初始化，
// 训练过程确定，保证持久化往返后预测逐位一致）。
type SoftmaxClassifier struct {
	Classes []float64   `json:"classes"`
	W       [][]float64 `json:"w"` // [类别][特征]
	B       []float64   `json:"b"`
	LR      float64     `json:"lr"`
	Epochs  int         `json:"epochs"`
}

func NewSoftmaxClassifier() *SoftmaxClassifier {
	return &SoftmaxClassifier{LR: 0.05, Epochs: 60}
}

func (c *SoftmaxClassifier) InputWidth() int {
	if len(c.W) == 0 {
		return 0
	}
	return len(c.W[0])
}

func (c *SoftmaxClassifier) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("softmax: 训练集形状非法 rows=%d labels=%d", len(X), len(y))
	}
	classes := distinct(y)
	if len(classes) < 2 {
		return fmt.Errorf("softmax: 标签缺少多样性（仅 %d 类）", len(classes))
	}
	d := len(X[0])
	k := len(classes)
	c.Classes = classes
	c.W = zeroMatrix(k, d)
	c.B = make([]float64, k)

	classIdx := make(map[float64]int, k)
	for i, cls := range classes {
		classIdx[cls] = i
	}

	n := float64(len(X))
	for epoch := 0; epoch < c.Epochs; epoch++ {
		gradW := zeroMatrix(k, d)
		gradB := make([]float64, k)
		for i, row := range X {
			probs := c.proba(row)
			target := classIdx[y[i]]
			for cls := 0; cls < k; cls++ {
				diff := probs[cls]
				if cls == target {
					diff -= 1
				}
				for j := 0; j < d; j++ {
					gradW[cls][j] += diff * row[j]
				}
				gradB[cls] += diff
			}
		}
		for cls := 0; cls < k; cls++ {
			for j := 0; j < d; j++ {
				c.W[cls][j] -= c.LR * gradW[cls][j] / n
			}
			c.B[cls] -= c.LR * gradB[cls] / n
		}
	}
	return nil
}

func (c *SoftmaxClassifier) proba(x []float64) []float64 {
	k := len(c.W)
	logits := make([]float64, k)
	maxLogit := math.Inf(-1)
	for cls := 0; cls < k; cls++ {
		z := c.B[cls]
		for j, v := range x {
			if j < len(c.W[cls]) {
				z += c.W[cls][j] * v
			}
		}
		logits[cls] = z
		if z > maxLogit {
			maxLogit = z
		}
	}
	sum := 0.0
	for cls := range logits {
		logits[cls] = math.Exp(logits[cls] - maxLogit)
		sum += logits[cls]
	}
	for cls := range logits {
		logits[cls] /= sum
	}
	return logits
}

func (c *SoftmaxClassifier) Predict(x []float64) (float64, error) {
	if len(c.W) == 0 {
		return 0, fmt.Errorf("softmax: 未训练")
	}
	if len(x) != c.InputWidth() {
		return 0, fmt.Errorf("softmax: 输入宽度 %d 与训练宽度 %d 不符", len(x), c.InputWidth())
	}
	probs := c.proba(x)
	best := 0
	for cls := 1; cls < len(probs); cls++ {
		if probs[cls] > probs[best] {
			best = cls
		}
	}
	return c.Classes[best], nil
}

func (c *SoftmaxClassifier) PredictProba(x []float64) ([]float64, error) {
	if len(c.W) == 0 {
		return nil, fmt.Errorf("softmax: 未训练")
	}
	if len(x) != c.InputWidth() {
		return nil, fmt.Errorf("softmax: 输入宽度 %d 与训练宽度 %d 不符", len(x), c.InputWidth())
	}
	return c.proba(x), nil
}

// ---------------------------------------------------------------------------

// RidgeRegressor 是带 L2 正则的线性回归（全批梯度下降，确定性训练）。
type RidgeRegressor struct {
	W      []float64 `json:"w"`
	B      float64   `json:"b"`
	LR     float64   `json:"lr"`
	Epochs int       `json:"epochs"`
	L2     float64   `json:"l2"`
}

func NewRidgeRegressor() *RidgeRegressor {
	return &RidgeRegressor{LR: 0.01, Epochs: 80, L2: 1e-3}
}

func (r *RidgeRegressor) InputWidth() int { return len(r.W) }

func (r *RidgeRegressor) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("ridge: 训练集形状非法 rows=%d labels=%d", len(X), len(y))
	}
	d := len(X[0])
	r.W = make([]float64, d)
	r.B = 0
	n := float64(len(X))
	for epoch := 0; epoch < r.Epochs; epoch++ {
		gradW := make([]float64, d)
		gradB := 0.0
		for i, row := range X {
			pred := r.predict(row)
			diff := pred - y[i]
			for j := 0; j < d; j++ {
				gradW[j] += diff * row[j]
			}
			gradB += diff
		}
		for j := 0; j < d; j++ {
			r.W[j] -= r.LR * (gradW[j]/n + r.L2*r.W[j])
		}
		r.B -= r.LR * gradB / n
	}
	return nil
}

func (r *RidgeRegressor) predict(x []float64) float64 {
	z := r.B
	for j, v := range x {
		if j < len(r.W) {
			z += r.W[j] * v
		}
	}
	return z
}

func (r *RidgeRegressor) Predict(x []float64) (float64, error) {
	if len(r.W) == 0 {
		return 0, fmt.Errorf("ridge: 未训练")
	}
	if len(x) != len(r.W) {
		return 0, fmt.Errorf("ridge: 输入宽度 %d 与训练宽度 %d 不符", len(x), len(r.W))
	}
	return r.predict(x), nil
}

// ---------------------------------------------------------------------------

func distinct(vals []float64) []float64 {
	seen := make(map[float64]bool)
	var out []float64
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

func zeroMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

// DistinctLabelCount 统计标签的取值种数（多样性闸门用）。
func DistinctLabelCount(vals []float64) int {
	return len(distinct(vals))
}
