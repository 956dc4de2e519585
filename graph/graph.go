// Package graph 构建用户-菜谱-配料异构图：三张只读索引表、带类型的边和初始 embedding 表。
package graph

import (
	"cmp"
	"slices"

	"github.com/rushteam/saveeat/nn"
)

// Edges 是一类边的 COO 表示，Src/Dst 为各自节点类型内的下标。
type Edges struct {
	Src    []int     `json:"src"`
	Dst    []int     `json:"dst"`
	Weight []float64 `json:"weight"`
}

// Len 边数。
func (e Edges) Len() int { return len(e.Src) }

// Reverse 返回反向边（消息从 Dst 流向 Src）。
func (e Edges) Reverse() Edges {
	return Edges{Src: e.Dst, Dst: e.Src, Weight: e.Weight}
}

func (e Edges) sorted() Edges {
	order := make([]int, e.Len())
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		if c := cmp.Compare(e.Src[a], e.Src[b]); c != 0 {
			return c
		}
		return cmp.Compare(e.Dst[a], e.Dst[b])
	})
	out := Edges{Src: make([]int, len(order)), Dst: make([]int, len(order)), Weight: make([]float64, len(order))}
	for i, j := range order {
		out.Src[i], out.Dst[i], out.Weight[i] = e.Src[j], e.Dst[j], e.Weight[j]
	}
	return out
}

// Graph 是异构图。构建后不可变；变更 ID 空间只能通过重新 Build。
type Graph struct {
	dim         int
	users       *Index[int64]
	recipes     *Index[int64]
	ingredients *Index[string]

	// UserRecipe 交互边，权重为 rating/5
	userRecipe Edges
	// RecipeIngredient 组成边，权重恒为 1
	recipeIngredient Edges

	userEmb       []float64
	recipeEmb     []float64
	ingredientEmb []float64

	popularity []int
}

func (g *Graph) Dim() int                    { return g.dim }
func (g *Graph) Users() *Index[int64]        { return g.users }
func (g *Graph) Recipes() *Index[int64]      { return g.recipes }
func (g *Graph) Ingredients() *Index[string] { return g.ingredients }
func (g *Graph) UserRecipe() Edges           { return g.userRecipe }
func (g *Graph) RecipeIngredient() Edges     { return g.recipeIngredient }

// Popularity 返回菜谱下标对应的交互次数。
func (g *Graph) Popularity(recipeIdx int) int { return g.popularity[recipeIdx] }

// PopularityByID 按菜谱 ID 返回交互次数，未知菜谱为 0。
func (g *Graph) PopularityByID(id int64) int {
	if i, ok := g.recipes.Lookup(id); ok {
		return g.popularity[i]
	}
	return 0
}

// UserEmbedding 返回初始用户 embedding 表的副本（n×dim）。
func (g *Graph) UserEmbedding() *nn.Tensor {
	return nn.FromData(g.users.Len(), g.dim, slices.Clone(g.userEmb))
}

// RecipeEmbedding 返回初始菜谱 embedding 表的副本。
func (g *Graph) RecipeEmbedding() *nn.Tensor {
	return nn.FromData(g.recipes.Len(), g.dim, slices.Clone(g.recipeEmb))
}

// IngredientEmbedding 返回初始配料 embedding 表的副本。
func (g *Graph) IngredientEmbedding() *nn.Tensor {
	return nn.FromData(g.ingredients.Len(), g.dim, slices.Clone(g.ingredientEmb))
}

// Positives 返回每个用户交互过的菜谱下标（升序）。
func (g *Graph) Positives() [][]int {
	out := make([][]int, g.users.Len())
	for i, u := range g.userRecipe.Src {
		out[u] = append(out[u], g.userRecipe.Dst[i])
	}
	return out
}

// WithoutInteractions 返回去掉部分交互边的新图，索引表与 embedding 共享。
// 用于训练时把验证集交互从消息传递中剔除。
func (g *Graph) WithoutInteractions(drop func(user, recipe int) bool) *Graph {
	kept := Edges{}
	for i := range g.userRecipe.Src {
		u, r := g.userRecipe.Src[i], g.userRecipe.Dst[i]
		if drop(u, r) {
			continue
		}
		kept.Src = append(kept.Src, u)
		kept.Dst = append(kept.Dst, r)
		kept.Weight = append(kept.Weight, g.userRecipe.Weight[i])
	}
	cp := *g
	cp.userRecipe = kept
	return &cp
}
