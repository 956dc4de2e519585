// Package nn 是一个面向行主序矩阵的小型反向自动微分实现，
// 提供图注意力网络、融合层和重排网络训练所需的算子与优化器。
package nn

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Tensor 是行主序的二维矩阵。参与求导时 Grad 与 Data 等长。
type Tensor struct {
	Rows, Cols int
	Data       []float64
	Grad       []float64

	requiresGrad bool
	parents      []*Tensor
	backward     func()
}

// New 创建全零常量矩阵。
func New(rows, cols int) *Tensor {
	return &Tensor{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// FromData 用已有数据创建常量矩阵，不复制。
func FromData(rows, cols int, data []float64) *Tensor {
	if len(data) != rows*cols {
		panic(fmt.Sprintf("nn: data length %d does not match %dx%d", len(data), rows, cols))
	}
	return &Tensor{Rows: rows, Cols: cols, Data: data}
}

// FromRows 把二维切片拷贝成矩阵；所有行必须等长。
func FromRows(rows [][]float64, cols int) *Tensor {
	t := New(len(rows), cols)
	for i, r := range rows {
		copy(t.Data[i*cols:(i+1)*cols], r)
	}
	return t
}

// Column 创建 n×1 常量列向量。
func Column(v []float64) *Tensor {
	return FromData(len(v), 1, v)
}

// NewParam 创建可训练参数。
func NewParam(rows, cols int) *Tensor {
	t := New(rows, cols)
	t.requiresGrad = true
	return t
}

// RequiresGrad 是否需要梯度。
func (t *Tensor) RequiresGrad() bool { return t.requiresGrad }

// At 返回 (i, j) 元素。
func (t *Tensor) At(i, j int) float64 { return t.Data[i*t.Cols+j] }

// Row 返回第 i 行（共享底层数组）。
func (t *Tensor) Row(i int) []float64 { return t.Data[i*t.Cols : (i+1)*t.Cols] }

// Detach 拷贝数据，返回脱离计算图的常量。
func (t *Tensor) Detach() *Tensor {
	out := New(t.Rows, t.Cols)
	copy(out.Data, t.Data)
	return out
}

// ZeroGrad 清零梯度。
func (t *Tensor) ZeroGrad() {
	for i := range t.Grad {
		t.Grad[i] = 0
	}
}

func (t *Tensor) ensureGrad() {
	if t.Grad == nil {
		t.Grad = make([]float64, len(t.Data))
	}
}

// Scalar 返回 1×1 矩阵的值。
func (t *Tensor) Scalar() float64 {
	if len(t.Data) != 1 {
		panic(fmt.Sprintf("nn: Scalar on %dx%d tensor", t.Rows, t.Cols))
	}
	return t.Data[0]
}

// result 创建算子输出；任一输入需要梯度时输出也需要梯度并记录父节点。
func result(rows, cols int, parents ...*Tensor) *Tensor {
	out := New(rows, cols)
	for _, p := range parents {
		if p.requiresGrad {
			out.requiresGrad = true
			out.parents = parents
			break
		}
	}
	return out
}

// Backward 从标量 loss 出发做反向传播，梯度累加到所有可训练参数上。
func Backward(loss *Tensor) {
	if len(loss.Data) != 1 {
		panic("nn: Backward requires a scalar loss")
	}
	if !loss.requiresGrad {
		return
	}

	var order []*Tensor
	visited := make(map[*Tensor]bool)
	var visit func(t *Tensor)
	visit = func(t *Tensor) {
		if visited[t] {
			return
		}
		visited[t] = true
		for _, p := range t.parents {
			if p.requiresGrad {
				visit(p)
			}
		}
		order = append(order, t)
	}
	visit(loss)

	loss.ensureGrad()
	loss.Grad[0] = 1
	for i := len(order) - 1; i >= 0; i-- {
		t := order[i]
		if t.backward != nil && t.Grad != nil {
			t.backward()
		}
	}
	// 释放中间节点，参数的梯度保留给优化器
	for _, t := range order {
		if t.parents != nil {
			t.parents = nil
			t.backward = nil
			t.Grad = nil
		}
	}
}

// InitXavier 用 Glorot 均匀分布初始化。
func (t *Tensor) InitXavier(rng *rand.Rand) {
	limit := math.Sqrt(6.0 / float64(t.Rows+t.Cols))
	for i := range t.Data {
		t.Data[i] = (rng.Float64()*2 - 1) * limit
	}
}

// InitNormal 用 N(0, std²) 初始化。
func (t *Tensor) InitNormal(rng *rand.Rand, std float64) {
	for i := range t.Data {
		t.Data[i] = rng.NormFloat64() * std
	}
}

// Fill 用常数填充。
func (t *Tensor) Fill(v float64) {
	for i := range t.Data {
		t.Data[i] = v
	}
}
