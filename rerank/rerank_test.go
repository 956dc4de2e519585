package rerank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/feature"
	"github.com/rushteam/saveeat/pkg/utils"
	"github.com/rushteam/saveeat/rank"
)

// coverageBoost 把覆盖率放大为调整量，中性上下文下调整量为 0。
type coverageBoost struct{ weight float64 }

func (c coverageBoost) Dim() int { return int(feature.ContextDim) }

func (c coverageBoost) Rerank(base []float64, ctx [][]float64) ([]float64, error) {
	out := make([]float64, len(base))
	for i := range base {
		out[i] = base[i] + c.weight*ctx[i][feature.Coverage]
	}
	return out, nil
}

func items(rankType string, recipes ...core.Recipe) []*core.Item {
	out := make([]*core.Item, len(recipes))
	for i := range recipes {
		out[i] = core.NewItem(&recipes[i])
		out[i].Score = float64(len(recipes) - i)
		out[i].PutLabel(utils.LabelRankType, utils.Label{Value: rankType, Source: "rank"})
	}
	return out
}

func fixture() []core.Recipe {
	return []core.Recipe{
		{ID: 1, Ingredients: []string{"beef", "onion"}},
		{ID: 2, Ingredients: []string{"rice", "egg"}},
		{ID: 3, Ingredients: []string{"tomato", "pasta"}},
	}
}

func TestContextNodeNeutralKeepsOrder(t *testing.T) {
	n := &ContextNode{Reranker: coverageBoost{weight: 10}, PoolFactor: 2}
	rctx := &core.RecommendContext{Request: &core.RecommendRequest{TopK: 3}}
	out, err := n.Process(context.Background(), rctx, items(rank.TypeHybrid, fixture()...))
	require.NoError(t, err)
	assert.Equal(t, int64(1), out[0].ID)
	assert.Equal(t, int64(3), out[2].ID)
	assert.InDelta(t, sigmoid(3), out[0].Score, 1e-12)
	assert.Empty(t, out[0].Label(utils.LabelRerank))
}

func TestContextNodeBoostsCoverage(t *testing.T) {
	n := &ContextNode{Reranker: coverageBoost{weight: 10}, PoolFactor: 2}
	rctx := &core.RecommendContext{Request: &core.RecommendRequest{TopK: 3, AvailableIngredients: []string{"tomato", "pasta"}}}
	out, err := n.Process(context.Background(), rctx, items(rank.TypeHybrid, fixture()...))
	require.NoError(t, err)
	assert.Equal(t, int64(3), out[0].ID)
	assert.Equal(t, 1.0, out[0].Features["ctx_coverage"])
	assert.Equal(t, 1.0, out[0].Features["base_logit"])
	assert.Equal(t, "rerank.context", out[0].Label(utils.LabelRerank))
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].Score, out[i].Score)
	}
}

func TestContextNodePoolAndColdTail(t *testing.T) {
	hybrid := items(rank.TypeHybrid, fixture()[:2]...)
	cold := items(rank.TypeColdStart, fixture()[2])
	cold[0].Score = 0.99

	n := &ContextNode{PoolFactor: 2}
	rctx := &core.RecommendContext{Request: &core.RecommendRequest{TopK: 1}}
	out, err := n.Process(context.Background(), rctx, append(hybrid, cold...))
	require.NoError(t, err)
	require.Len(t, out, 2)

	rctx.Request.TopK = 5
	hybrid = items(rank.TypeHybrid, fixture()[:2]...)
	out, err = n.Process(context.Background(), rctx, append(hybrid, cold...))
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.LessOrEqual(t, out[2].Score, out[1].Score)
}

func TestContextNodeSkipsFallback(t *testing.T) {
	n := &ContextNode{Reranker: coverageBoost{weight: 10}}
	in := items(rank.TypeFallback, fixture()...)
	out, err := n.Process(context.Background(), &core.RecommendContext{Request: &core.RecommendRequest{}}, in)
	require.NoError(t, err)
	assert.Equal(t, 3.0, out[0].Score)
}

func TestTopNNode(t *testing.T) {
	in := items(rank.TypeFallback, fixture()...)
	out, err := (&TopNNode{N: 10}).Process(context.Background(), &core.RecommendContext{Request: &core.RecommendRequest{TopK: 2}}, in)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	out, err = (&TopNNode{N: 1}).Process(context.Background(), &core.RecommendContext{Request: &core.RecommendRequest{}}, in)
	require.NoError(t, err)
	assert.Len(t, out, 1)

	out, err = (&TopNNode{}).Process(context.Background(), nil, in)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestExplainNodeFillsMissing(t *testing.T) {
	rs := []core.Recipe{
		{ID: 1, Ingredients: []string{"pasta", "tomato"}},
		{ID: 2, Ingredients: []string{"beef"}},
	}
	in := items(rank.TypeHybrid, rs...)
	in[1].PutLabel(utils.LabelExplain, utils.Label{Value: "kept", Source: "rank"})

	rctx := &core.RecommendContext{Request: &core.RecommendRequest{AvailableIngredients: []string{"Tomato"}}}
	out, err := (&ExplainNode{}).Process(context.Background(), rctx, in)
	require.NoError(t, err)
	assert.Equal(t, "you have 1 of 2 ingredients (50%); missing: pasta", out[0].Label(utils.LabelExplain))
	assert.Equal(t, "kept", out[1].Label(utils.LabelExplain))

	in = items(rank.TypeHybrid, rs[0])
	out, err = (&ExplainNode{}).Process(context.Background(), &core.RecommendContext{Request: &core.RecommendRequest{}}, in)
	require.NoError(t, err)
	assert.Equal(t, ExplainHistory, out[0].Label(utils.LabelExplain))
}
