package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/rushteam/saveeat/graph"
	"github.com/rushteam/saveeat/nn"
)

// relationAttention 是单一关系（src 类型 → dst 类型）上的多头图注意力。
//
// 对每个头 h：
//
//	e_ij = LeakyReLU(a_src·W_src x_i + a_dst·W_dst x_j)
//	α_ij = softmax_i(e_ij) · w_ij
//	out_j = Σ_i α_ij W_src x_i
//
// 各头输出按列拼接，总宽度为 out。
type relationAttention struct {
	heads   int
	headDim int
	slope   float64
	src     *nn.Linear
	dst     *nn.Linear
	attSrc  *nn.Tensor // headDim × heads
	attDst  *nn.Tensor
}

func newRelationAttention(ps *nn.ParamSet, name string, in, out, heads int, slope float64, rng *rand.Rand) *relationAttention {
	if out%heads != 0 {
		panic(fmt.Sprintf("model: hidden dim %d not divisible by %d heads", out, heads))
	}
	dh := out / heads
	a := &relationAttention{
		heads:   heads,
		headDim: dh,
		slope:   slope,
		src:     nn.NewLinear(ps, name+".src", in, out, rng),
		dst:     nn.NewLinear(ps, name+".dst", in, out, rng),
		attSrc:  ps.Add(name+".att_src", nn.New(dh, heads)),
		attDst:  ps.Add(name+".att_dst", nn.New(dh, heads)),
	}
	a.attSrc.InitXavier(rng)
	a.attDst.InitXavier(rng)
	return a
}

// forward 计算 dst 节点聚合到的消息（nDst × out）。
func (a *relationAttention) forward(xSrc, xDst *nn.Tensor, e graph.Edges, nDst int) *nn.Tensor {
	if e.Len() == 0 {
		return nn.New(nDst, a.heads*a.headDim)
	}
	hs := a.src.Forward(xSrc)
	hd := a.dst.Forward(xDst)
	weight := nn.Column(e.Weight)

	outs := make([]*nn.Tensor, a.heads)
	for h := 0; h < a.heads; h++ {
		from, to := h*a.headDim, (h+1)*a.headDim
		hsh := nn.SliceCols(hs, from, to)
		hdh := nn.SliceCols(hd, from, to)
		es := nn.MatMul(hsh, nn.SliceCols(a.attSrc, h, h+1))
		ed := nn.MatMul(hdh, nn.SliceCols(a.attDst, h, h+1))
		score := nn.LeakyReLU(nn.Add(nn.Gather(es, e.Src), nn.Gather(ed, e.Dst)), a.slope)
		alpha := nn.Mul(nn.SegmentSoftmax(score, e.Dst, nDst), weight)
		msg := nn.MulCol(nn.Gather(hsh, e.Src), alpha)
		outs[h] = nn.ScatterAdd(msg, e.Dst, nDst)
	}
	return nn.ConcatCols(outs...)
}
