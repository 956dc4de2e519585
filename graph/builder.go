package graph

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/rs/zerolog"

	"github.com/rushteam/saveeat/core"
)

// DefaultRating 是隐式交互（无评分）的默认评分。
const DefaultRating = 3.0

// MaxRating 用于把评分归一化为边权重。
const MaxRating = 5.0

// Builder 从交互与菜谱记录构建异构图。
type Builder struct {
	// Dim 是初始 embedding 维度
	Dim int
	// Std 是初始化正态分布的标准差
	Std float64
	// Seed 固定随机初始化
	Seed uint64
	// DropDangling 为 true 时丢弃引用未知菜谱的交互并记录日志，否则中止构建
	DropDangling bool
	Logger       zerolog.Logger
}

func NewBuilder(dim int, seed uint64, logger zerolog.Logger) *Builder {
	return &Builder{
		Dim:    dim,
		Std:    0.1,
		Seed:   seed,
		Logger: logger.With().Str("component", "graph_builder").Logger(),
	}
}

// Build 构建图。交互引用了不存在的菜谱记录时返回 DATA_INTEGRITY 错误（DropDangling 除外）。
func (b *Builder) Build(interactions []core.Interaction, recipes []core.Recipe) (*Graph, error) {
	if b.Dim <= 0 {
		return nil, fmt.Errorf("graph: embedding dim must be positive, got %d", b.Dim)
	}

	recipeIDs := make([]int64, 0, len(recipes))
	seen := make(map[int64]int, len(recipes))
	for i, r := range recipes {
		if j, dup := seen[r.ID]; dup {
			err := core.NewDataIntegrityError(fmt.Sprintf("recipes[%d] recipe_id=%d", i, r.ID),
				"duplicate recipe id (first seen at recipes[%d])", j)
			b.Logger.Error().Err(err).Int("row", i).Int64("recipe_id", r.ID).Msg("graph build aborted")
			return nil, err
		}
		seen[r.ID] = i
		recipeIDs = append(recipeIDs, r.ID)
	}
	recipeIdx := newIndex(recipeIDs)

	// 同一 (user, recipe) 只保留时间最新的一条
	type pair struct{ user, recipe int64 }
	latest := make(map[pair]core.Interaction, len(interactions))
	userIDs := make([]int64, 0)
	dropped := 0
	for i, it := range interactions {
		if _, ok := recipeIdx.Lookup(it.RecipeID); !ok {
			record := fmt.Sprintf("interactions[%d] user_id=%d recipe_id=%d", i, it.UserID, it.RecipeID)
			if !b.DropDangling {
				err := core.NewDataIntegrityError(record, "interaction references a recipe with no record")
				b.Logger.Error().Err(err).Int("row", i).Int64("user_id", it.UserID).Int64("recipe_id", it.RecipeID).Msg("graph build aborted")
				return nil, err
			}
			b.Logger.Warn().Int("row", i).Int64("user_id", it.UserID).Int64("recipe_id", it.RecipeID).Msg("dropping interaction with unknown recipe")
			dropped++
			continue
		}
		if it.Rating != nil && (math.IsNaN(*it.Rating) || math.IsInf(*it.Rating, 0)) {
			return nil, core.NewDataIntegrityError(fmt.Sprintf("interactions[%d] user_id=%d recipe_id=%d", i, it.UserID, it.RecipeID), "rating is not finite")
		}
		k := pair{it.UserID, it.RecipeID}
		if prev, ok := latest[k]; !ok || !it.Timestamp.Before(prev.Timestamp) {
			latest[k] = it
		}
		userIDs = append(userIDs, it.UserID)
	}
	userIdx := newIndex(userIDs)

	ingredientKeys := make([]string, 0)
	for i := range recipes {
		ingredientKeys = append(ingredientKeys, recipes[i].NormalizedIngredients()...)
	}
	ingredientIdx := newIndex(ingredientKeys)

	g := &Graph{
		dim:         b.Dim,
		users:       userIdx,
		recipes:     recipeIdx,
		ingredients: ingredientIdx,
		popularity:  make([]int, recipeIdx.Len()),
	}

	ur := Edges{}
	for k, it := range latest {
		u, _ := userIdx.Lookup(k.user)
		r, _ := recipeIdx.Lookup(k.recipe)
		ur.Src = append(ur.Src, u)
		ur.Dst = append(ur.Dst, r)
		ur.Weight = append(ur.Weight, edgeWeight(it.Rating))
		g.popularity[r]++
	}
	g.userRecipe = ur.sorted()

	ri := Edges{}
	for i := range recipes {
		r, _ := recipeIdx.Lookup(recipes[i].ID)
		for _, ing := range recipes[i].NormalizedIngredients() {
			j, _ := ingredientIdx.Lookup(ing)
			ri.Src = append(ri.Src, r)
			ri.Dst = append(ri.Dst, j)
			ri.Weight = append(ri.Weight, 1)
		}
	}
	g.recipeIngredient = ri.sorted()

	rng := rand.New(rand.NewPCG(b.Seed, b.Seed^0x5eea7))
	g.userEmb = b.randomTable(rng, userIdx.Len())
	g.recipeEmb = b.randomTable(rng, recipeIdx.Len())
	g.ingredientEmb = b.randomTable(rng, ingredientIdx.Len())

	b.Logger.Info().
		Int("users", userIdx.Len()).
		Int("recipes", recipeIdx.Len()).
		Int("ingredients", ingredientIdx.Len()).
		Int("interaction_edges", g.userRecipe.Len()).
		Int("composition_edges", g.recipeIngredient.Len()).
		Int("dropped", dropped).
		Msg("graph built")
	return g, nil
}

func (b *Builder) randomTable(rng *rand.Rand, n int) []float64 {
	std := b.Std
	if std <= 0 {
		std = 0.1
	}
	out := make([]float64, n*b.Dim)
	for i := range out {
		out[i] = rng.NormFloat64() * std
	}
	return out
}

func edgeWeight(rating *float64) float64 {
	r := DefaultRating
	if rating != nil {
		r = *rating
	}
	return math.Min(math.Max(r/MaxRating, 0), 1)
}
