package nn

import (
	"fmt"
	"math"
	"math/rand/v2"
)

func sameShape(op string, a, b *Tensor) {
	if a.Rows != b.Rows || a.Cols != b.Cols {
		panic(fmt.Sprintf("nn: %s shape mismatch %dx%d vs %dx%d", op, a.Rows, a.Cols, b.Rows, b.Cols))
	}
}

// MatMul 计算 a·b。
func MatMul(a, b *Tensor) *Tensor {
	if a.Cols != b.Rows {
		panic(fmt.Sprintf("nn: MatMul shape mismatch %dx%d · %dx%d", a.Rows, a.Cols, b.Rows, b.Cols))
	}
	n, k, m := a.Rows, a.Cols, b.Cols
	out := result(n, m, a, b)
	for i := 0; i < n; i++ {
		orow := out.Data[i*m : (i+1)*m]
		for p := 0; p < k; p++ {
			av := a.Data[i*k+p]
			if av == 0 {
				continue
			}
			brow := b.Data[p*m : (p+1)*m]
			for j := range orow {
				orow[j] += av * brow[j]
			}
		}
	}
	if out.requiresGrad {
		out.backward = func() {
			if a.requiresGrad {
				a.ensureGrad()
				for i := 0; i < n; i++ {
					grow := out.Grad[i*m : (i+1)*m]
					for p := 0; p < k; p++ {
						brow := b.Data[p*m : (p+1)*m]
						var s float64
						for j := range grow {
							s += grow[j] * brow[j]
						}
						a.Grad[i*k+p] += s
					}
				}
			}
			if b.requiresGrad {
				b.ensureGrad()
				for i := 0; i < n; i++ {
					grow := out.Grad[i*m : (i+1)*m]
					for p := 0; p < k; p++ {
						av := a.Data[i*k+p]
						if av == 0 {
							continue
						}
						bg := b.Grad[p*m : (p+1)*m]
						for j := range grow {
							bg[j] += av * grow[j]
						}
					}
				}
			}
		}
	}
	return out
}

// AddRowVector 把 1×m 的 bias 广播加到每一行。
func AddRowVector(a, bias *Tensor) *Tensor {
	if bias.Rows != 1 || bias.Cols != a.Cols {
		panic(fmt.Sprintf("nn: AddRowVector bias %dx%d for %dx%d", bias.Rows, bias.Cols, a.Rows, a.Cols))
	}
	m := a.Cols
	out := result(a.Rows, m, a, bias)
	for i := range out.Data {
		out.Data[i] = a.Data[i] + bias.Data[i%m]
	}
	if out.requiresGrad {
		out.backward = func() {
			if a.requiresGrad {
				a.ensureGrad()
				for i, g := range out.Grad {
					a.Grad[i] += g
				}
			}
			if bias.requiresGrad {
				bias.ensureGrad()
				for i, g := range out.Grad {
					bias.Grad[i%m] += g
				}
			}
		}
	}
	return out
}

// Add 逐元素相加。
func Add(a, b *Tensor) *Tensor {
	sameShape("Add", a, b)
	out := result(a.Rows, a.Cols, a, b)
	for i := range out.Data {
		out.Data[i] = a.Data[i] + b.Data[i]
	}
	if out.requiresGrad {
		out.backward = func() {
			accumulate(a, out.Grad, 1)
			accumulate(b, out.Grad, 1)
		}
	}
	return out
}

// Sub 逐元素相减。
func Sub(a, b *Tensor) *Tensor {
	sameShape("Sub", a, b)
	out := result(a.Rows, a.Cols, a, b)
	for i := range out.Data {
		out.Data[i] = a.Data[i] - b.Data[i]
	}
	if out.requiresGrad {
		out.backward = func() {
			accumulate(a, out.Grad, 1)
			accumulate(b, out.Grad, -1)
		}
	}
	return out
}

func accumulate(t *Tensor, g []float64, sign float64) {
	if !t.requiresGrad {
		return
	}
	t.ensureGrad()
	for i, v := range g {
		t.Grad[i] += sign * v
	}
}

// Mul 逐元素相乘。
func Mul(a, b *Tensor) *Tensor {
	sameShape("Mul", a, b)
	out := result(a.Rows, a.Cols, a, b)
	for i := range out.Data {
		out.Data[i] = a.Data[i] * b.Data[i]
	}
	if out.requiresGrad {
		out.backward = func() {
			if a.requiresGrad {
				a.ensureGrad()
				for i, g := range out.Grad {
					a.Grad[i] += g * b.Data[i]
				}
			}
			if b.requiresGrad {
				b.ensureGrad()
				for i, g := range out.Grad {
					b.Grad[i] += g * a.Data[i]
				}
			}
		}
	}
	return out
}

// Scale 乘以常数。
func Scale(a *Tensor, s float64) *Tensor {
	out := result(a.Rows, a.Cols, a)
	for i := range out.Data {
		out.Data[i] = a.Data[i] * s
	}
	if out.requiresGrad {
		out.backward = func() { accumulate(a, out.Grad, s) }
	}
	return out
}

func unary(a *Tensor, f func(x float64) float64, df func(x, y float64) float64) *Tensor {
	out := result(a.Rows, a.Cols, a)
	for i, x := range a.Data {
		out.Data[i] = f(x)
	}
	if out.requiresGrad {
		out.backward = func() {
			a.ensureGrad()
			for i, g := range out.Grad {
				a.Grad[i] += g * df(a.Data[i], out.Data[i])
			}
		}
	}
	return out
}

// ReLU max(0, x)。
func ReLU(a *Tensor) *Tensor {
	return unary(a,
		func(x float64) float64 { return math.Max(0, x) },
		func(x, _ float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		})
}

// LeakyReLU x>0 ? x : slope·x。
func LeakyReLU(a *Tensor, slope float64) *Tensor {
	return unary(a,
		func(x float64) float64 {
			if x > 0 {
				return x
			}
			return slope * x
		},
		func(x, _ float64) float64 {
			if x > 0 {
				return 1
			}
			return slope
		})
}

// Sigmoid 1/(1+e^-x)。
func Sigmoid(a *Tensor) *Tensor {
	return unary(a, SigmoidScalar, func(_, y float64) float64 { return y * (1 - y) })
}

// SigmoidScalar 数值稳定的 sigmoid。
func SigmoidScalar(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Gather 按索引取行：out[r] = table[idx[r]]。
func Gather(table *Tensor, idx []int) *Tensor {
	m := table.Cols
	out := result(len(idx), m, table)
	for r, i := range idx {
		copy(out.Data[r*m:(r+1)*m], table.Data[i*m:(i+1)*m])
	}
	if out.requiresGrad {
		out.backward = func() {
			table.ensureGrad()
			for r, i := range idx {
				dst := table.Grad[i*m : (i+1)*m]
				for j, g := range out.Grad[r*m : (r+1)*m] {
					dst[j] += g
				}
			}
		}
	}
	return out
}

// ScatterAdd 按索引把行累加到 n 行的输出：out[index[r]] += src[r]。
func ScatterAdd(src *Tensor, index []int, n int) *Tensor {
	if len(index) != src.Rows {
		panic(fmt.Sprintf("nn: ScatterAdd index length %d for %d rows", len(index), src.Rows))
	}
	m := src.Cols
	out := result(n, m, src)
	for r, i := range index {
		dst := out.Data[i*m : (i+1)*m]
		for j, v := range src.Data[r*m : (r+1)*m] {
			dst[j] += v
		}
	}
	if out.requiresGrad {
		out.backward = func() {
			src.ensureGrad()
			for r, i := range index {
				g := out.Grad[i*m : (i+1)*m]
				sg := src.Grad[r*m : (r+1)*m]
				for j := range sg {
					sg[j] += g[j]
				}
			}
		}
	}
	return out
}

// ConcatCols 按列拼接，所有输入行数相同。
func ConcatCols(ts ...*Tensor) *Tensor {
	rows := ts[0].Rows
	cols := 0
	for _, t := range ts {
		if t.Rows != rows {
			panic(fmt.Sprintf("nn: ConcatCols row mismatch %d vs %d", t.Rows, rows))
		}
		cols += t.Cols
	}
	out := result(rows, cols, ts...)
	off := 0
	for _, t := range ts {
		for i := 0; i < rows; i++ {
			copy(out.Data[i*cols+off:i*cols+off+t.Cols], t.Data[i*t.Cols:(i+1)*t.Cols])
		}
		off += t.Cols
	}
	if out.requiresGrad {
		out.backward = func() {
			off := 0
			for _, t := range ts {
				if t.requiresGrad {
					t.ensureGrad()
					for i := 0; i < rows; i++ {
						g := out.Grad[i*cols+off : i*cols+off+t.Cols]
						tg := t.Grad[i*t.Cols : (i+1)*t.Cols]
						for j := range tg {
							tg[j] += g[j]
						}
					}
				}
				off += t.Cols
			}
		}
	}
	return out
}

// SliceCols 取 [from, to) 列。
func SliceCols(a *Tensor, from, to int) *Tensor {
	if from < 0 || to > a.Cols || from >= to {
		panic(fmt.Sprintf("nn: SliceCols [%d,%d) of %d", from, to, a.Cols))
	}
	w := to - from
	out := result(a.Rows, w, a)
	for i := 0; i < a.Rows; i++ {
		copy(out.Data[i*w:(i+1)*w], a.Data[i*a.Cols+from:i*a.Cols+to])
	}
	if out.requiresGrad {
		out.backward = func() {
			a.ensureGrad()
			for i := 0; i < a.Rows; i++ {
				ag := a.Grad[i*a.Cols+from : i*a.Cols+to]
				for j, g := range out.Grad[i*w : (i+1)*w] {
					ag[j] += g
				}
			}
		}
	}
	return out
}

// RowDot 按行点积，输出 n×1。
func RowDot(a, b *Tensor) *Tensor {
	sameShape("RowDot", a, b)
	m := a.Cols
	out := result(a.Rows, 1, a, b)
	for i := 0; i < a.Rows; i++ {
		var s float64
		for j := 0; j < m; j++ {
			s += a.Data[i*m+j] * b.Data[i*m+j]
		}
		out.Data[i] = s
	}
	if out.requiresGrad {
		out.backward = func() {
			for i := 0; i < a.Rows; i++ {
				g := out.Grad[i]
				if a.requiresGrad {
					a.ensureGrad()
					for j := 0; j < m; j++ {
						a.Grad[i*m+j] += g * b.Data[i*m+j]
					}
				}
				if b.requiresGrad {
					b.ensureGrad()
					for j := 0; j < m; j++ {
						b.Grad[i*m+j] += g * a.Data[i*m+j]
					}
				}
			}
		}
	}
	return out
}

// MulCol 每行乘以 c 的对应元素（c 为 n×1）。
func MulCol(a, c *Tensor) *Tensor {
	if c.Cols != 1 || c.Rows != a.Rows {
		panic(fmt.Sprintf("nn: MulCol column %dx%d for %dx%d", c.Rows, c.Cols, a.Rows, a.Cols))
	}
	m := a.Cols
	out := result(a.Rows, m, a, c)
	for i := 0; i < a.Rows; i++ {
		for j := 0; j < m; j++ {
			out.Data[i*m+j] = a.Data[i*m+j] * c.Data[i]
		}
	}
	if out.requiresGrad {
		out.backward = func() {
			for i := 0; i < a.Rows; i++ {
				var s float64
				for j := 0; j < m; j++ {
					g := out.Grad[i*m+j]
					if a.requiresGrad {
						a.ensureGrad()
						a.Grad[i*m+j] += g * c.Data[i]
					}
					s += g * a.Data[i*m+j]
				}
				if c.requiresGrad {
					c.ensureGrad()
					c.Grad[i] += s
				}
			}
		}
	}
	return out
}

// SegmentSoftmax 对 E×1 的打分按 segment 分组做 softmax（segment 取值 [0, n)）。
// 用于图注意力：同一目标节点的入边互相归一化。
func SegmentSoftmax(e *Tensor, segment []int, n int) *Tensor {
	if e.Cols != 1 || len(segment) != e.Rows {
		panic("nn: SegmentSoftmax expects an E×1 tensor with one segment per row")
	}
	maxv := make([]float64, n)
	for i := range maxv {
		maxv[i] = math.Inf(-1)
	}
	for r, s := range segment {
		if e.Data[r] > maxv[s] {
			maxv[s] = e.Data[r]
		}
	}
	sum := make([]float64, n)
	out := result(e.Rows, 1, e)
	for r, s := range segment {
		v := math.Exp(e.Data[r] - maxv[s])
		out.Data[r] = v
		sum[s] += v
	}
	for r, s := range segment {
		out.Data[r] /= sum[s]
	}
	if out.requiresGrad {
		out.backward = func() {
			e.ensureGrad()
			dot := make([]float64, n)
			for r, s := range segment {
				dot[s] += out.Data[r] * out.Grad[r]
			}
			for r, s := range segment {
				e.Grad[r] += out.Data[r] * (out.Grad[r] - dot[s])
			}
		}
	}
	return out
}

// LayerNorm 按行归一化后做仿射变换，gain/bias 为 1×m。
func LayerNorm(a, gain, bias *Tensor, eps float64) *Tensor {
	m := a.Cols
	out := result(a.Rows, m, a, gain, bias)
	xhat := make([]float64, len(a.Data))
	invstd := make([]float64, a.Rows)
	for i := 0; i < a.Rows; i++ {
		row := a.Data[i*m : (i+1)*m]
		var mean, variance float64
		for _, x := range row {
			mean += x
		}
		mean /= float64(m)
		for _, x := range row {
			variance += (x - mean) * (x - mean)
		}
		variance /= float64(m)
		invstd[i] = 1 / math.Sqrt(variance+eps)
		for j, x := range row {
			xh := (x - mean) * invstd[i]
			xhat[i*m+j] = xh
			out.Data[i*m+j] = xh*gain.Data[j] + bias.Data[j]
		}
	}
	if out.requiresGrad {
		out.backward = func() {
			if gain.requiresGrad || bias.requiresGrad {
				gain.ensureGrad()
				bias.ensureGrad()
				for i, g := range out.Grad {
					gain.Grad[i%m] += g * xhat[i]
					bias.Grad[i%m] += g
				}
			}
			if !a.requiresGrad {
				return
			}
			a.ensureGrad()
			fm := float64(m)
			dxhat := make([]float64, m)
			for i := 0; i < a.Rows; i++ {
				var sum, sumX float64
				for j := 0; j < m; j++ {
					dxhat[j] = out.Grad[i*m+j] * gain.Data[j]
					sum += dxhat[j]
					sumX += dxhat[j] * xhat[i*m+j]
				}
				for j := 0; j < m; j++ {
					a.Grad[i*m+j] += invstd[i] / fm * (fm*dxhat[j] - sum - xhat[i*m+j]*sumX)
				}
			}
		}
	}
	return out
}

// Dropout 以概率 p 置零并按 1/(1-p) 缩放；rng 为 nil 或 p<=0 时原样返回（推理模式）。
func Dropout(a *Tensor, p float64, rng *rand.Rand) *Tensor {
	if rng == nil || p <= 0 {
		return a
	}
	keep := 1 - p
	mask := make([]float64, len(a.Data))
	for i := range mask {
		if rng.Float64() < keep {
			mask[i] = 1 / keep
		}
	}
	return Mul(a, FromData(a.Rows, a.Cols, mask))
}

// BCEWithLogits 计算二分类交叉熵的均值，logits 为 n×1。
func BCEWithLogits(logits *Tensor, targets []float64) *Tensor {
	if logits.Cols != 1 || logits.Rows != len(targets) {
		panic("nn: BCEWithLogits expects n×1 logits and n targets")
	}
	n := float64(len(targets))
	out := result(1, 1, logits)
	var loss float64
	for i, x := range logits.Data {
		t := targets[i]
		loss += math.Max(x, 0) - x*t + math.Log1p(math.Exp(-math.Abs(x)))
	}
	out.Data[0] = loss / n
	if out.requiresGrad {
		out.backward = func() {
			logits.ensureGrad()
			g := out.Grad[0] / n
			for i, x := range logits.Data {
				logits.Grad[i] += g * (SigmoidScalar(x) - targets[i])
			}
		}
	}
	return out
}
