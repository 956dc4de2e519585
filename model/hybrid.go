package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/rushteam/saveeat/graph"
	"github.com/rushteam/saveeat/nn"
)

const (
	nodeUser       = "user"
	nodeRecipe     = "recipe"
	nodeIngredient = "ingredient"
)

// heteroLayer 是一层异构图注意力：每类节点 = 自身投影 + 各入边关系的注意力消息之和。
type heteroLayer struct {
	self map[string]*nn.Linear
	ur   *relationAttention // user → recipe
	ru   *relationAttention // recipe → user
	ri   *relationAttention // recipe → ingredient
	ir   *relationAttention // ingredient → recipe
	norm map[string]*nn.LayerNormLayer
}

func newHeteroLayer(ps *nn.ParamSet, name string, in, out int, cfg Config, rng *rand.Rand) *heteroLayer {
	l := &heteroLayer{
		self: make(map[string]*nn.Linear, 3),
		norm: make(map[string]*nn.LayerNormLayer, 3),
	}
	for _, t := range []string{nodeUser, nodeRecipe, nodeIngredient} {
		l.self[t] = nn.NewLinear(ps, name+".self."+t, in, out, rng)
		l.norm[t] = nn.NewLayerNorm(ps, name+".norm."+t, out)
	}
	l.ur = newRelationAttention(ps, name+".user_recipe", in, out, cfg.Heads, cfg.NegativeSlope, rng)
	l.ru = newRelationAttention(ps, name+".recipe_user", in, out, cfg.Heads, cfg.NegativeSlope, rng)
	l.ri = newRelationAttention(ps, name+".recipe_ingredient", in, out, cfg.Heads, cfg.NegativeSlope, rng)
	l.ir = newRelationAttention(ps, name+".ingredient_recipe", in, out, cfg.Heads, cfg.NegativeSlope, rng)
	return l
}

func (l *heteroLayer) forward(g *graph.Graph, x map[string]*nn.Tensor) map[string]*nn.Tensor {
	nu, nr, ni := g.Users().Len(), g.Recipes().Len(), g.Ingredients().Len()
	ur, ri := g.UserRecipe(), g.RecipeIngredient()

	users := nn.Add(l.self[nodeUser].Forward(x[nodeUser]),
		l.ru.forward(x[nodeRecipe], x[nodeUser], ur.Reverse(), nu))
	recipes := nn.Add(l.self[nodeRecipe].Forward(x[nodeRecipe]),
		nn.Add(l.ur.forward(x[nodeUser], x[nodeRecipe], ur, nr),
			l.ir.forward(x[nodeIngredient], x[nodeRecipe], ri.Reverse(), nr)))
	ingredients := nn.Add(l.self[nodeIngredient].Forward(x[nodeIngredient]),
		l.ri.forward(x[nodeRecipe], x[nodeIngredient], ri, ni))

	return map[string]*nn.Tensor{nodeUser: users, nodeRecipe: recipes, nodeIngredient: ingredients}
}

// HybridGNN 是混合图模型：图分支给出用户与菜谱向量，菜谱向量再与文本向量门控融合。
type HybridGNN struct {
	cfg Config

	userEmb       *nn.Tensor
	recipeEmb     *nn.Tensor
	ingredientEmb *nn.Tensor

	layers     []*heteroLayer
	userProj   *nn.Linear
	recipeProj *nn.Linear

	textProj *nn.Linear // TextDim → D
	gate     *nn.Linear // [graph, text] 2D → D
	fuseOut  *nn.Linear // D → D

	pair *nn.Linear // u⊙r → 1
}

// NewHybridGNN 创建模型并把参数注册到 ps。初始节点向量取自图的 embedding 表。
func NewHybridGNN(cfg Config, g *graph.Graph, ps *nn.ParamSet, rng *rand.Rand) (*HybridGNN, error) {
	if cfg.EmbeddingDim != g.Dim() {
		return nil, fmt.Errorf("model: embedding dim %d does not match graph dim %d", cfg.EmbeddingDim, g.Dim())
	}
	if cfg.Layers < 1 || cfg.Heads < 1 || cfg.HiddenDim%cfg.Heads != 0 {
		return nil, fmt.Errorf("model: invalid structure layers=%d heads=%d hidden=%d", cfg.Layers, cfg.Heads, cfg.HiddenDim)
	}
	d := cfg.EmbeddingDim
	m := &HybridGNN{
		cfg:           cfg,
		userEmb:       ps.Add("embedding.user", g.UserEmbedding()),
		recipeEmb:     ps.Add("embedding.recipe", g.RecipeEmbedding()),
		ingredientEmb: ps.Add("embedding.ingredient", g.IngredientEmbedding()),
	}
	in := d
	for i := 0; i < cfg.Layers; i++ {
		m.layers = append(m.layers, newHeteroLayer(ps, fmt.Sprintf("gat%d", i), in, cfg.HiddenDim, cfg, rng))
		in = cfg.HiddenDim
	}
	m.userProj = nn.NewLinear(ps, "proj.user", cfg.HiddenDim, d, rng)
	m.recipeProj = nn.NewLinear(ps, "proj.recipe", cfg.HiddenDim, d, rng)
	if cfg.TextDim > 0 {
		m.textProj = nn.NewLinear(ps, "fusion.text", cfg.TextDim, d, rng)
		m.gate = nn.NewLinear(ps, "fusion.gate", 2*d, d, rng)
		m.fuseOut = nn.NewLinear(ps, "fusion.out", d, d, rng)
	}
	m.pair = nn.NewLinear(ps, "score.pair", d, 1, rng)
	return m, nil
}

// Config 返回结构超参。
func (m *HybridGNN) Config() Config { return m.cfg }

// Embed 在图 g 上前向传播，返回 (用户向量 nu×D, 菜谱向量 nr×D)。
// text 为 nr×TextDim 的文本向量（TextDim 为 0 时忽略）。
// rng 非 nil 表示训练模式（启用 dropout）；推理时传 nil，结果确定。
func (m *HybridGNN) Embed(g *graph.Graph, text *nn.Tensor, rng *rand.Rand) (users, recipes *nn.Tensor) {
	x := map[string]*nn.Tensor{
		nodeUser:       m.userEmb,
		nodeRecipe:     m.recipeEmb,
		nodeIngredient: m.ingredientEmb,
	}
	for i, layer := range m.layers {
		x = layer.forward(g, x)
		if i == len(m.layers)-1 {
			break
		}
		for _, t := range []string{nodeUser, nodeRecipe, nodeIngredient} {
			v := layer.norm[t].Forward(x[t])
			v = nn.Dropout(v, m.cfg.Dropout, rng)
			x[t] = nn.ReLU(v)
		}
	}
	users = m.userProj.Forward(x[nodeUser])
	recipes = m.recipeProj.Forward(x[nodeRecipe])
	if m.textProj != nil && text != nil {
		recipes = m.fuse(recipes, text)
	}
	return users, recipes
}

// fuse 门控融合：g = σ(W[r, t]); fused = t + g⊙(r − t)，再投影回 D 维。
func (m *HybridGNN) fuse(graphVec, text *nn.Tensor) *nn.Tensor {
	tp := m.textProj.Forward(text)
	g := nn.Sigmoid(m.gate.Forward(nn.ConcatCols(graphVec, tp)))
	mixed := nn.Add(tp, nn.Mul(g, nn.Sub(graphVec, tp)))
	return m.fuseOut.Forward(mixed)
}

// PairLogits 批量打分：dot(u, r) + w·(u⊙r) + b，输出 n×1。
func (m *HybridGNN) PairLogits(users, recipes *nn.Tensor, userIdx, recipeIdx []int) *nn.Tensor {
	u := nn.Gather(users, userIdx)
	r := nn.Gather(recipes, recipeIdx)
	return nn.Add(nn.RowDot(u, r), m.pair.Forward(nn.Mul(u, r)))
}

// Score 对单个向量对打分，与 PairLogits 同一公式。
func (m *HybridGNN) Score(u, r []float64) float64 {
	var dot, pair float64
	w := m.pair.W.Data
	for i := range u {
		p := u[i] * r[i]
		dot += p
		pair += p * w[i]
	}
	return dot + pair + m.pair.B.Data[0]
}
