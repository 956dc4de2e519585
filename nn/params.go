package nn

import (
	"fmt"
	"math/rand/v2"
)

// ParamSet 是按注册顺序保存的具名参数集合，用于优化器与检查点。
type ParamSet struct {
	names  []string
	params map[string]*Tensor
}

func NewParamSet() *ParamSet {
	return &ParamSet{params: make(map[string]*Tensor)}
}

// Add 注册参数；重名会 panic。
func (s *ParamSet) Add(name string, t *Tensor) *Tensor {
	if _, ok := s.params[name]; ok {
		panic(fmt.Sprintf("nn: duplicate parameter %q", name))
	}
	t.requiresGrad = true
	s.names = append(s.names, name)
	s.params[name] = t
	return t
}

// Names 返回注册顺序的参数名。
func (s *ParamSet) Names() []string { return append([]string(nil), s.names...) }

// Get 按名称取参数。
func (s *ParamSet) Get(name string) (*Tensor, bool) {
	t, ok := s.params[name]
	return t, ok
}

// Len 参数个数。
func (s *ParamSet) Len() int { return len(s.names) }

// ZeroGrad 清零所有梯度。
func (s *ParamSet) ZeroGrad() {
	for _, t := range s.params {
		t.ZeroGrad()
	}
}

// ParamState 是单个参数的序列化形态。
type ParamState struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// State 导出全部参数（拷贝）。
func (s *ParamSet) State() map[string]ParamState {
	out := make(map[string]ParamState, len(s.names))
	for _, name := range s.names {
		t := s.params[name]
		out[name] = ParamState{Rows: t.Rows, Cols: t.Cols, Data: append([]float64(nil), t.Data...)}
	}
	return out
}

// LoadState 覆盖参数值；名称集合与形状必须完全一致。
func (s *ParamSet) LoadState(state map[string]ParamState) error {
	if len(state) != len(s.names) {
		return fmt.Errorf("nn: state has %d parameters, model has %d", len(state), len(s.names))
	}
	for _, name := range s.names {
		st, ok := state[name]
		if !ok {
			return fmt.Errorf("nn: state missing parameter %q", name)
		}
		t := s.params[name]
		if st.Rows != t.Rows || st.Cols != t.Cols || len(st.Data) != len(t.Data) {
			return fmt.Errorf("nn: parameter %q shape %dx%d, want %dx%d", name, st.Rows, st.Cols, t.Rows, t.Cols)
		}
		copy(t.Data, st.Data)
	}
	return nil
}

// Linear 是全连接层 y = xW + b。
type Linear struct {
	W *Tensor
	B *Tensor
}

// NewLinear 创建并注册全连接层，W 用 Xavier 初始化，b 置零。
func NewLinear(ps *ParamSet, name string, in, out int, rng *rand.Rand) *Linear {
	w := ps.Add(name+".weight", New(in, out))
	w.InitXavier(rng)
	b := ps.Add(name+".bias", New(1, out))
	return &Linear{W: w, B: b}
}

func (l *Linear) Forward(x *Tensor) *Tensor {
	return AddRowVector(MatMul(x, l.W), l.B)
}

// LayerNormLayer 是带可学习 gain/bias 的层归一化。
type LayerNormLayer struct {
	Gain *Tensor
	Bias *Tensor
	Eps  float64
}

func NewLayerNorm(ps *ParamSet, name string, dim int) *LayerNormLayer {
	g := ps.Add(name+".gain", New(1, dim))
	g.Fill(1)
	b := ps.Add(name+".bias", New(1, dim))
	return &LayerNormLayer{Gain: g, Bias: b, Eps: 1e-5}
}

func (l *LayerNormLayer) Forward(x *Tensor) *Tensor {
	return LayerNorm(x, l.Gain, l.Bias, l.Eps)
}
