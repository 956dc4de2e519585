package nn

import "math"

// AdamW 是带解耦权重衰减的 Adam 优化器。
type AdamW struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64

	params *ParamSet
	step   int
	m      map[string][]float64
	v      map[string][]float64
}

// NewAdamW 创建优化器，beta 取常用默认值 (0.9, 0.999)。
func NewAdamW(ps *ParamSet, lr, weightDecay float64) *AdamW {
	return &AdamW{
		LR:          lr,
		Beta1:       0.9,
		Beta2:       0.999,
		Eps:         1e-8,
		WeightDecay: weightDecay,
		params:      ps,
		m:           make(map[string][]float64),
		v:           make(map[string][]float64),
	}
}

// Step 用当前梯度更新参数并清零梯度。
func (o *AdamW) Step() {
	o.step++
	bc1 := 1 - math.Pow(o.Beta1, float64(o.step))
	bc2 := 1 - math.Pow(o.Beta2, float64(o.step))
	for _, name := range o.params.names {
		p := o.params.params[name]
		if p.Grad == nil {
			continue
		}
		m, ok := o.m[name]
		if !ok {
			m = make([]float64, len(p.Data))
			o.m[name] = m
			o.v[name] = make([]float64, len(p.Data))
		}
		v := o.v[name]
		for i, g := range p.Grad {
			p.Data[i] -= o.LR * o.WeightDecay * p.Data[i]
			m[i] = o.Beta1*m[i] + (1-o.Beta1)*g
			v[i] = o.Beta2*v[i] + (1-o.Beta2)*g*g
			p.Data[i] -= o.LR * (m[i] / bc1) / (math.Sqrt(v[i]/bc2) + o.Eps)
			p.Grad[i] = 0
		}
	}
}

// AdamWState 是优化器的可序列化状态。
type AdamWState struct {
	Step int                  `json:"step"`
	LR   float64              `json:"lr"`
	M    map[string][]float64 `json:"m"`
	V    map[string][]float64 `json:"v"`
}

func (o *AdamW) State() AdamWState {
	st := AdamWState{Step: o.step, LR: o.LR, M: make(map[string][]float64), V: make(map[string][]float64)}
	for k, m := range o.m {
		st.M[k] = append([]float64(nil), m...)
		st.V[k] = append([]float64(nil), o.v[k]...)
	}
	return st
}

func (o *AdamW) LoadState(st AdamWState) {
	o.step = st.Step
	o.LR = st.LR
	o.m = make(map[string][]float64, len(st.M))
	o.v = make(map[string][]float64, len(st.V))
	for k, m := range st.M {
		o.m[k] = append([]float64(nil), m...)
	}
	for k, v := range st.V {
		o.v[k] = append([]float64(nil), v...)
	}
}

// Plateau 在被跟踪的指标（越大越好）停滞 Patience 轮后把学习率乘以 Factor。
type Plateau struct {
	Factor    float64
	Patience  int
	MinLR     float64
	Threshold float64 // 相对提升阈值

	best   float64
	bad    int
	seeded bool
}

func NewPlateau(factor float64, patience int, minLR float64) *Plateau {
	return &Plateau{Factor: factor, Patience: patience, MinLR: minLR, Threshold: 1e-4}
}

// Step 记录一轮的指标，必要时调低 opt.LR，返回是否调整。
func (p *Plateau) Step(metric float64, opt *AdamW) bool {
	if !p.seeded || metric > p.best+math.Abs(p.best)*p.Threshold {
		p.best = metric
		p.bad = 0
		p.seeded = true
		return false
	}
	p.bad++
	if p.bad <= p.Patience {
		return false
	}
	p.bad = 0
	next := math.Max(opt.LR*p.Factor, p.MinLR)
	if next >= opt.LR {
		return false
	}
	opt.LR = next
	return true
}
