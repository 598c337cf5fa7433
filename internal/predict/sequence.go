package predict

import (
	"fmt"
	"math"
	"math/rand"
)

// 序列模型默认规格。
const (
	defaultHiddenSize = 32
	seqClasses        = 3 // 市场状态 {-1, 0, 1}
	sequenceSeed      = 7 // 固定种子，保证重建可复现
)

// SequenceModel 是单层 GRU + 加性注意力的状态分类器。
// 输入宽度在构造时固定：schema 增长后无法原地扩列，必须整体重建
// （并重置优化器动量），这会丢失之前的序列学习成果。
//
// 循环层权重按固定种子初始化后保持冻结，训练只更新注意力打分
// 向量与输出层（Adam），使在线重训的开销保持在常数级。
type SequenceModel struct {
	InputSize  int `json:"input_size"`
	HiddenSize int `json:"hidden_size"`
	SeqLen     int `json:"seq_len"`

	Wz [][]float64 `json:"wz"`
	Wr [][]float64 `json:"wr"`
	Wh [][]float64 `json:"wh"`
	Uz [][]float64 `json:"uz"`
	Ur [][]float64 `json:"ur"`
	Uh [][]float64 `json:"uh"`
	Bz []float64   `json:"bz"`
	Br []float64   `json:"br"`
	Bh []float64   `json:"bh"`

	Wa []float64   `json:"wa"` // 注意力打分向量
	Wo [][]float64 `json:"wo"` // 输出层 [类别][隐层]
	Bo []float64   `json:"bo"`

	opt *adamState
}

// NewSequenceModel 构造固定输入宽度的序列模型（新的优化器状态）。
func NewSequenceModel(inputSize, seqLen int) *SequenceModel {
	if inputSize <= 0 || seqLen <= 0 {
		return nil
	}
	m := &SequenceModel{
		InputSize:  inputSize,
		HiddenSize: defaultHiddenSize,
		SeqLen:     seqLen,
	}
	rng := rand.New(rand.NewSource(sequenceSeed))
	scale := 1 / math.Sqrt(float64(inputSize))
	m.Wz = randMatrix(rng, m.HiddenSize, inputSize, scale)
	m.Wr = randMatrix(rng, m.HiddenSize, inputSize, scale)
	m.Wh = randMatrix(rng, m.HiddenSize, inputSize, scale)
	hScale := 1 / math.Sqrt(float64(m.HiddenSize))
	m.Uz = randMatrix(rng, m.HiddenSize, m.HiddenSize, hScale)
	m.Ur = randMatrix(rng, m.HiddenSize, m.HiddenSize, hScale)
	m.Uh = randMatrix(rng, m.HiddenSize, m.HiddenSize, hScale)
	m.Bz = make([]float64, m.HiddenSize)
	m.Br = make([]float64, m.HiddenSize)
	m.Bh = make([]float64, m.HiddenSize)
	m.Wa = randVector(rng, m.HiddenSize, hScale)
	m.Wo = zeroMatrix(seqClasses, m.HiddenSize)
	m.Bo = make([]float64, seqClasses)
	m.opt = newAdamState(m.HiddenSize, seqClasses)
	return m
}

// forward 返回注意力上下文、逐步隐状态与注意力权重。
func (m *SequenceModel) forward(seq [][]float64) (context []float64, hiddens [][]float64, alphas []float64) {
	h := make([]float64, m.HiddenSize)
	hiddens = make([][]float64, 0, len(seq))
	for _, x := range seq {
		z := gateVec(m.Wz, m.Uz, m.Bz, x, h, sigmoid)
		r := gateVec(m.Wr, m.Ur, m.Br, x, h, sigmoid)
		rh := make([]float64, m.HiddenSize)
		for i := range rh {
			rh[i] = r[i] * h[i]
		}
		hTilde := gateVec(m.Wh, m.Uh, m.Bh, x, rh, math.Tanh)
		next := make([]float64, m.HiddenSize)
		for i := range next {
			next[i] = (1-z[i])*h[i] + z[i]*hTilde[i]
		}
		h = next
		hiddens = append(hiddens, h)
	}

	scores := make([]float64, len(hiddens))
	maxScore := math.Inf(-1)
	for t, ht := range hiddens {
		scores[t] = dot(m.Wa, ht)
		if scores[t] > maxScore {
			maxScore = scores[t]
		}
	}
	alphas = make([]float64, len(scores))
	sum := 0.0
	for t := range scores {
		alphas[t] = math.Exp(scores[t] - maxScore)
		sum += alphas[t]
	}
	context = make([]float64, m.HiddenSize)
	for t := range alphas {
		alphas[t] /= sum
		for i := range context {
			context[i] += alphas[t] * hiddens[t][i]
		}
	}
	return context, hiddens, alphas
}

// Predict 返回状态类别（-1/0/1）与置信度（最大类别概率）。
func (m *SequenceModel) Predict(seq [][]float64) (float64, float64, error) {
	if m == nil {
		return 0, 0, fmt.Errorf("sequence: 模型未初始化")
	}
	if len(seq) == 0 {
		return 0, 0, fmt.Errorf("sequence: 序列为空")
	}
	for _, x := range seq {
		if len(x) != m.InputSize {
			return 0, 0, fmt.Errorf("sequence: 输入宽度 %d 与模型 %d 不符", len(x), m.InputSize)
		}
	}
	context, _, _ := m.forward(seq)
	probs := m.outputProbs(context)
	best := 0
	for c := 1; c < len(probs); c++ {
		if probs[c] > probs[best] {
			best = c
		}
	}
	return classToRegime(best), probs[best], nil
}

func (m *SequenceModel) outputProbs(context []float64) []float64 {
	logits := make([]float64, seqClasses)
	maxLogit := math.Inf(-1)
	for c := 0; c < seqClasses; c++ {
		logits[c] = m.Bo[c] + dot(m.Wo[c], context)
		if logits[c] > maxLogit {
			maxLogit = logits[c]
		}
	}
	sum := 0.0
	for c := range logits {
		logits[c] = math.Exp(logits[c] - maxLogit)
		sum += logits[c]
	}
	for c := range logits {
		logits[c] /= sum
	}
	return logits
}

// SequenceSample 是一条带标签的训练序列。
type SequenceSample struct {
	Steps [][]float64 `json:"steps"`
	Label float64     `json:"label"` // 状态 {-1, 0, 1}
}

// Train 用交叉熵训练注意力与输出层。
func (m *SequenceModel) Train(samples []SequenceSample, epochs int) error {
	if m == nil {
		return fmt.Errorf("sequence: 模型未初始化")
	}
	if len(samples) == 0 {
		return fmt.Errorf("sequence: 无训练序列")
	}
	if epochs <= 0 {
		epochs = 5
	}
	if m.opt == nil {
		m.opt = newAdamState(m.HiddenSize, seqClasses)
	}
	for epoch := 0; epoch < epochs; epoch++ {
		for _, sample := range samples {
			if len(sample.Steps) == 0 || len(sample.Steps[0]) != m.InputSize {
				continue
			}
			m.step(sample)
		}
	}
	return nil
}

func (m *SequenceModel) step(sample SequenceSample) {
	context, hiddens, alphas := m.forward(sample.Steps)
	probs := m.outputProbs(context)
	target := regimeToClass(sample.Label)

	// dL/dlogits = p - onehot
	dLogits := make([]float64, seqClasses)
	copy(dLogits, probs)
	dLogits[target] -= 1

	// 输出层梯度
	gradWo := zeroMatrix(seqClasses, m.HiddenSize)
	gradBo := make([]float64, seqClasses)
	for c := 0; c < seqClasses; c++ {
		for i := 0; i < m.HiddenSize; i++ {
			gradWo[c][i] = dLogits[c] * context[i]
		}
		gradBo[c] = dLogits[c]
	}

	// dL/dcontext
	dContext := make([]float64, m.HiddenSize)
	for i := 0; i < m.HiddenSize; i++ {
		for c := 0; c < seqClasses; c++ {
			dContext[i] += dLogits[c] * m.Wo[c][i]
		}
	}

	// 注意力打分梯度（softmax 反传）
	proj := make([]float64, len(hiddens))
	expect := 0.0
	for t, ht := range hiddens {
		proj[t] = dot(ht, dContext)
		expect += alphas[t] * proj[t]
	}
	gradWa := make([]float64, m.HiddenSize)
	for t, ht := range hiddens {
		ds := alphas[t] * (proj[t] - expect)
		for i := 0; i < m.HiddenSize; i++ {
			gradWa[i] += ds * ht[i]
		}
	}

	m.opt.apply(m.Wo, m.Bo, m.Wa, gradWo, gradBo, gradWa)
}

// ---------------------------------------------------------------------------

// adamState 保存输出层与注意力参数的 Adam 动量。
type adamState struct {
	T   int
	MWo [][]float64
	VWo [][]float64
	MBo []float64
	VBo []float64
	MWa []float64
	VWa []float64
}

const (
	adamLR    = 0.005
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

func newAdamState(hidden, classes int) *adamState {
	return &adamState{
		MWo: zeroMatrix(classes, hidden),
		VWo: zeroMatrix(classes, hidden),
		MBo: make([]float64, classes),
		VBo: make([]float64, classes),
		MWa: make([]float64, hidden),
		VWa: make([]float64, hidden),
	}
}

func (a *adamState) apply(Wo [][]float64, Bo, Wa []float64, gWo [][]float64, gBo, gWa []float64) {
	a.T++
	corr1 := 1 - math.Pow(adamBeta1, float64(a.T))
	corr2 := 1 - math.Pow(adamBeta2, float64(a.T))
	update := func(param, m, v *float64, grad float64) {
		*m = adamBeta1**m + (1-adamBeta1)*grad
		*v = adamBeta2**v + (1-adamBeta2)*grad*grad
		mHat := *m / corr1
		vHat := *v / corr2
		*param -= adamLR * mHat / (math.Sqrt(vHat) + adamEps)
	}
	for c := range Wo {
		for i := range Wo[c] {
			update(&Wo[c][i], &a.MWo[c][i], &a.VWo[c][i], gWo[c][i])
		}
		update(&Bo[c], &a.MBo[c], &a.VBo[c], gBo[c])
	}
	for i := range Wa {
		update(&Wa[i], &a.MWa[i], &a.VWa[i], gWa[i])
	}
}

// ---------------------------------------------------------------------------

func gateVec(W, U [][]float64, b, x, h []float64, act func(float64) float64) []float64 {
	out := make([]float64, len(b))
	for i := range out {
		z := b[i] + dot(W[i], x) + dot(U[i], h)
		out[i] = act(z)
	}
	return out
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func sigmoid(x float64) float64 {
	if x > 20 {
		return 1
	}
	if x < -20 {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}

func randMatrix(rng *rand.Rand, rows, cols int, scale float64) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
		for j := range m[i] {
			m[i][j] = rng.NormFloat64() * scale
		}
	}
	return m
}

func randVector(rng *rand.Rand, n int, scale float64) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rng.NormFloat64() * scale
	}
	return v
}

func regimeToClass(label float64) int {
	switch {
	case label < -0.5:
		return 0
	case label > 0.5:
		return 2
	default:
		return 1
	}
}

func classToRegime(class int) float64 {
	switch class {
	case 0:
		return -1
	case 2:
		return 1
	default:
		return 0
	}
}
