package model

import (
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/graph"
	"github.com/rushteam/saveeat/nn"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.EmbeddingDim = 8
	cfg.HiddenDim = 8
	cfg.Heads = 2
	cfg.TextDim = 4
	cfg.ContextDim = 3
	cfg.RerankHidden = []int{6, 4}
	cfg.Dropout = 0.1
	return cfg
}

func testGraph(t *testing.T) *graph.Graph {
	t.Helper()
	recipes := []core.Recipe{
		{ID: 1, Ingredients: []string{"tomato", "pasta"}},
		{ID: 2, Ingredients: []string{"tomato", "lettuce"}},
		{ID: 3, Ingredients: []string{"bread", "cheese"}},
		{ID: 4, Ingredients: []string{"pasta", "cheese"}},
	}
	now := time.Now()
	interactions := []core.Interaction{
		{UserID: 10, RecipeID: 1, Rating: core.Float(5), Timestamp: now},
		{UserID: 10, RecipeID: 4, Rating: core.Float(4), Timestamp: now},
		{UserID: 11, RecipeID: 2, Timestamp: now},
		{UserID: 11, RecipeID: 3, Rating: core.Float(1), Timestamp: now},
	}
	g, err := graph.NewBuilder(8, 1, zerolog.Nop()).Build(interactions, recipes)
	require.NoError(t, err)
	return g
}

func testText(n, dim int) *nn.Tensor {
	rng := rand.New(rand.NewPCG(5, 5))
	t := nn.New(n, dim)
	t.InitNormal(rng, 1)
	return t
}

func TestEmbedShapesAndDeterminism(t *testing.T) {
	g := testGraph(t)
	m, err := New(testConfig(), g, 42)
	require.NoError(t, err)
	text := testText(4, 4)

	emb := m.Embed(g, text)
	u, ok := emb.User(10)
	require.True(t, ok)
	assert.Len(t, u, 8)

	s1, err := emb.ScoreByID(10, 3)
	require.NoError(t, err)
	s2, err := emb.ScoreByID(10, 3)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)

	again := m.Embed(g, text)
	s3, err := again.ScoreByID(10, 3)
	require.NoError(t, err)
	assert.Equal(t, s1, s3)
}

func TestScoreMatchesPairLogits(t *testing.T) {
	g := testGraph(t)
	m, err := New(testConfig(), g, 42)
	require.NoError(t, err)
	users, recipes := m.GNN.Embed(g, testText(4, 4), nil)
	logits := m.GNN.PairLogits(users, recipes, []int{0, 1}, []int{2, 3})
	assert.InDelta(t, m.GNN.Score(users.Row(0), recipes.Row(2)), logits.Data[0], 1e-12)
	assert.InDelta(t, m.GNN.Score(users.Row(1), recipes.Row(3)), logits.Data[1], 1e-12)
}

func TestColdStart(t *testing.T) {
	g := testGraph(t)
	m, err := New(testConfig(), g, 42)
	require.NoError(t, err)
	emb := m.Embed(g, testText(4, 4))
	_, err = emb.ScoreByID(999, 1)
	assert.True(t, core.IsColdStart(err))
	_, err = emb.ScoreByID(10, 999)
	assert.True(t, core.IsColdStart(err))
}

func TestRerankerNeutralContextIsIdentity(t *testing.T) {
	g := testGraph(t)
	m, err := New(testConfig(), g, 42)
	require.NoError(t, err)
	base := []float64{0.9, 0.5, -0.2}
	out, err := m.Reranker.Rerank(base, [][]float64{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, base, out, 1e-12)

	_, err = m.Reranker.Rerank(base, [][]float64{{0, 0, 0}})
	assert.Error(t, err)
	_, err = NewContextReranker(3, []int{4, 8}, 0, nn.NewParamSet(), rand.New(rand.NewPCG(1, 1)))
	assert.Error(t, err)
}

func TestJointTrainingReducesLoss(t *testing.T) {
	g := testGraph(t)
	cfg := testConfig()
	cfg.Dropout = 0
	m, err := New(cfg, g, 42)
	require.NoError(t, err)
	text := testText(4, 4)
	opt := nn.NewAdamW(m.Params, 0.01, 0)

	userIdx := []int{0, 0, 1, 1, 0, 1}
	recipeIdx := []int{0, 3, 1, 2, 1, 0}
	targets := []float64{1, 1, 1, 1, 0, 0}
	ctx := nn.FromRows([][]float64{{1, 0, 1}, {0.5, 0.5, 1}, {0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 1, 0}}, 3)

	loss := func() *nn.Tensor {
		u, r := m.GNN.Embed(g, text, nil)
		logits := nn.Add(m.GNN.PairLogits(u, r, userIdx, recipeIdx), m.Reranker.Adjustment(ctx, nil))
		return nn.BCEWithLogits(logits, targets)
	}
	first := loss().Scalar()
	for i := 0; i < 30; i++ {
		l := loss()
		nn.Backward(l)
		opt.Step()
	}
	assert.Less(t, loss().Scalar(), first)
}

func TestCheckpointRoundTrip(t *testing.T) {
	g := testGraph(t)
	m, err := New(testConfig(), g, 42)
	require.NoError(t, err)
	opt := nn.NewAdamW(m.Params, 0.01, 1e-4)
	text := testText(4, 4)

	path := filepath.Join(t.TempDir(), "ckpt", "model.json")
	require.NoError(t, SaveCheckpoint(path, m.Snapshot(3, "ndcg@10", 0.42, opt)))

	ck, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, 3, ck.Epoch)
	assert.Equal(t, 0.42, ck.Metric)
	require.NotNil(t, ck.Optimizer)

	restored, err := FromCheckpoint(ck, g)
	require.NoError(t, err)
	want, _ := m.Embed(g, text).ScoreByID(11, 4)
	got, _ := restored.Embed(g, text).ScoreByID(11, 4)
	assert.Equal(t, want, got)

	_, err = LoadCheckpoint(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, core.IsModelUnavailable(err))

	other, err := graph.NewBuilder(8, 1, zerolog.Nop()).Build(nil, []core.Recipe{{ID: 1, Ingredients: []string{"x"}}})
	require.NoError(t, err)
	_, err = FromCheckpoint(ck, other)
	assert.True(t, core.IsModelUnavailable(err))
}
