package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/rushteam/saveeat/nn"
)

// ContextReranker 是三层递减宽度的前馈网络，输出加到基础分数上的调整量：
//
//	adjusted = base + f(ctx) − f(0)
//
// 上下文全 0（中性）时调整量恒为 0，不会改变基础排序；调整量与 base 相加，
// 对 base 单调。
type ContextReranker struct {
	dim     int
	dropout float64
	l1      *nn.Linear
	l2      *nn.Linear
	out     *nn.Linear
}

// NewContextReranker 创建重排网络，参数注册到 ps。
func NewContextReranker(contextDim int, hidden []int, dropout float64, ps *nn.ParamSet, rng *rand.Rand) (*ContextReranker, error) {
	if len(hidden) != 2 || hidden[0] < hidden[1] || hidden[1] < 1 {
		return nil, fmt.Errorf("model: reranker hidden widths must be two decreasing sizes, got %v", hidden)
	}
	return &ContextReranker{
		dim:     contextDim,
		dropout: dropout,
		l1:      nn.NewLinear(ps, "rerank.l1", contextDim, hidden[0], rng),
		l2:      nn.NewLinear(ps, "rerank.l2", hidden[0], hidden[1], rng),
		out:     nn.NewLinear(ps, "rerank.out", hidden[1], 1, rng),
	}, nil
}

// Dim 上下文特征维度。
func (r *ContextReranker) Dim() int { return r.dim }

func (r *ContextReranker) mlp(x *nn.Tensor, rng *rand.Rand) *nn.Tensor {
	h := nn.Dropout(nn.ReLU(r.l1.Forward(x)), r.dropout, rng)
	h = nn.Dropout(nn.ReLU(r.l2.Forward(h)), r.dropout, rng)
	return r.out.Forward(h)
}

// Adjustment 计算 n×C 上下文的调整量（n×1）。rng 非 nil 时为训练模式。
func (r *ContextReranker) Adjustment(ctx *nn.Tensor, rng *rand.Rand) *nn.Tensor {
	base := r.mlp(nn.New(1, r.dim), nil)
	return nn.AddRowVector(r.mlp(ctx, rng), nn.Scale(base, -1))
}

// Rerank 返回调整后的分数，与 base 一一对应。
func (r *ContextReranker) Rerank(base []float64, ctx [][]float64) ([]float64, error) {
	if len(base) != len(ctx) {
		return nil, fmt.Errorf("model: %d scores but %d context rows", len(base), len(ctx))
	}
	if len(base) == 0 {
		return nil, nil
	}
	for i, c := range ctx {
		if len(c) != r.dim {
			return nil, fmt.Errorf("model: context row %d has %d features, want %d", i, len(c), r.dim)
		}
	}
	adj := r.Adjustment(nn.FromRows(ctx, r.dim), nil)
	out := make([]float64, len(base))
	for i, b := range base {
		out[i] = b + adj.Data[i]
	}
	return out, nil
}
