package train

import (
	"context"
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/feature"
	"github.com/rushteam/saveeat/graph"
	"github.com/rushteam/saveeat/model"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixture(t *testing.T) (*graph.Graph, []core.Interaction, []core.Recipe) {
	t.Helper()
	recipes := []core.Recipe{
		{ID: 1, Name: "Pasta Pomodoro", Ingredients: []string{"pasta", "tomato", "basil"}, PrepTime: 20},
		{ID: 2, Name: "Mac and Cheese", Ingredients: []string{"pasta", "cheese", "milk"}, PrepTime: 25},
		{ID: 3, Name: "Caprese", Ingredients: []string{"tomato", "mozzarella cheese", "basil"}, PrepTime: 10},
		{ID: 4, Name: "Beef Stew", Ingredients: []string{"beef", "carrot", "potato"}, PrepTime: 120},
		{ID: 5, Name: "Tomato Soup", Ingredients: []string{"tomato", "onion"}, PrepTime: 30},
		{ID: 6, Name: "Steak", Ingredients: []string{"beef", "butter"}, PrepTime: 15},
	}
	interactions := []core.Interaction{
		{UserID: 1, RecipeID: 1, Rating: core.Float(5), Timestamp: t0},
		{UserID: 1, RecipeID: 3, Rating: core.Float(4), Timestamp: t0.Add(time.Hour)},
		{UserID: 1, RecipeID: 5, Rating: core.Float(5), Timestamp: t0.Add(2 * time.Hour)},
		{UserID: 2, RecipeID: 4, Rating: core.Float(5), Timestamp: t0},
		{UserID: 2, RecipeID: 6, Rating: core.Float(4), Timestamp: t0.Add(time.Hour)},
		{UserID: 3, RecipeID: 2, Timestamp: t0},
	}
	g, err := graph.NewBuilder(8, 3, zerolog.Nop()).Build(interactions, recipes)
	require.NoError(t, err)
	return g, interactions, recipes
}

func TestSplitLeaveLastOut(t *testing.T) {
	g, interactions, _ := fixture(t)
	// 重复交互以最近一次为准：用户 1 再次交互菜谱 1，使其成为最后一条
	interactions = append(interactions, core.Interaction{UserID: 1, RecipeID: 1, Timestamp: t0.Add(3 * time.Hour)})
	s := SplitLeaveLastOut(g, interactions)

	idx := func(id int64) int { i, _ := g.Recipes().Lookup(id); return i }
	u := func(id int64) int { i, _ := g.Users().Lookup(id); return i }

	valid := s.ValidByUser()
	assert.Equal(t, []int{idx(1)}, valid[u(1)])
	assert.Equal(t, []int{idx(6)}, valid[u(2)])
	_, ok := valid[u(3)]
	assert.False(t, ok, "single-interaction users stay in train")

	train := s.TrainByUser(g.Users().Len())
	assert.Equal(t, []int{idx(3), idx(5)}, train[u(1)])
	assert.Equal(t, []int{idx(2)}, train[u(3)])
	assert.Len(t, s.Train, 4)
}

func TestNegativeSamplerExcludesPositives(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	s := NewNegativeSampler(5, 3, [][]int{{0, 1, 2}, {0, 1, 2, 3, 4}}, rng)
	for range 20 {
		for _, r := range s.Sample(0) {
			assert.Contains(t, []int{3, 4}, r)
		}
	}
	assert.Len(t, s.Sample(0), 3)
	assert.Empty(t, s.Sample(1), "user who saw everything has no negatives")
}

func TestNegativesExcludeHeldOutRecipes(t *testing.T) {
	g, interactions, _ := fixture(t)
	split := SplitLeaveLastOut(g, interactions)
	require.NotEmpty(t, split.Valid)

	nu, nr := g.Users().Len(), g.Recipes().Len()
	all := split.InteractedByUser(nu)
	for _, p := range split.Valid {
		assert.Contains(t, all[p.User], p.Recipe)
	}

	s := negativeSampler(split, nu, nr, 5, rand.New(rand.NewPCG(7, 7)))
	for _, p := range split.Valid {
		for range 1000 {
			for _, r := range s.Sample(p.User) {
				require.NotEqual(t, p.Recipe, r, "held-out recipe sampled as negative for user %d", p.User)
			}
		}
	}
}

func TestUserMetrics(t *testing.T) {
	ranked := []int{4, 2, 7, 1}
	m := UserMetrics(ranked, []int{2}, []int{1, 2})
	assert.Equal(t, 0.0, m[NDCGName(1)])
	assert.InDelta(t, 1/math.Log2(3), m[NDCGName(2)], 1e-12)
	assert.Equal(t, 0.0, m[RecallName(1)])
	assert.Equal(t, 1.0, m[RecallName(2)])
	assert.Equal(t, 0.5, m[MetricMRR])

	m = UserMetrics(ranked, []int{9}, []int{2})
	assert.Equal(t, 0.0, m[NDCGName(2)])
	assert.Equal(t, 0.0, m[MetricMRR])
}

func TestRankExcludesAndBreaksTies(t *testing.T) {
	assert.Equal(t, []int{1, 3, 0}, Rank([]float64{0.1, 0.5, 0.9, 0.5}, []int{2}))
}

func TestEvaluatorAverages(t *testing.T) {
	e := NewEvaluator(4, 1)
	scores := map[int][]float64{
		0: {0.9, 0.1, 0.2, 0.3},
		1: {0.9, 0.8, 0.1, 0.0},
	}
	m := e.Evaluate(func(u int, out []float64) { copy(out, scores[u]) },
		map[int][]int{0: {0}, 1: {1}},
		[][]int{{}, {0}},
	)
	// 用户 0 命中第一名，用户 1 排除 0 号后 1 号居首
	assert.Equal(t, 1.0, m[NDCGName(1)])
	assert.Equal(t, 1.0, m[MetricMRR])
	assert.Nil(t, e.Evaluate(nil, nil, nil))
}

func TestContextSampler(t *testing.T) {
	g, _, recipes := fixture(t)
	tr := &Trainer{Recipes: recipes}
	byIdx := tr.recipesByIndex(g)
	r1, _ := g.Recipes().Lookup(1)
	r3, _ := g.Recipes().Lookup(3)

	s := NewContextSampler(1, byIdx, [][]int{{r1, r3}}, rand.New(rand.NewPCG(3, 4)))
	for range 20 {
		c := s.Sample(0)
		assert.ElementsMatch(t, []string{"pasta", "tomato", "basil", "mozzarella cheese"}, c.Available)
		if c.MaxTime != nil {
			assert.Equal(t, 25.0, *c.MaxTime)
		}
		for _, r := range c.Restrictions {
			// 意面与卡普雷塞都含麸质或奶制品，只剩素食
			assert.Equal(t, core.RestrictionVegetarian, r)
		}
	}

	neutral := NewContextSampler(0, byIdx, nil, rand.New(rand.NewPCG(3, 4)))
	assert.True(t, neutral.Sample(0).Neutral())
}

func newModel(t *testing.T, g *graph.Graph) *model.Model {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.EmbeddingDim, cfg.HiddenDim, cfg.Heads = 8, 8, 2
	cfg.TextDim = 0
	cfg.RerankHidden = []int{8, 4}
	cfg.ContextDim = feature.ContextDim
	m, err := model.New(cfg, g, 7)
	require.NoError(t, err)
	return m
}

func TestFitSavesBestCheckpoint(t *testing.T) {
	g, interactions, recipes := fixture(t)
	m := newModel(t, g)

	cfg := DefaultConfig()
	cfg.Epochs = 4
	cfg.BatchSize = 2
	cfg.Negatives = 2
	cfg.EvalK = []int{2}
	cfg.CheckpointPath = filepath.Join(t.TempDir(), "model.ckpt.json")

	var epochs []EpochStats
	tr := &Trainer{
		Config:       cfg,
		Model:        m,
		Graph:        g,
		Interactions: interactions,
		Recipes:      recipes,
		Logger:       zerolog.Nop(),
		OnEpoch:      func(s EpochStats) { epochs = append(epochs, s) },
	}
	res, err := tr.Fit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, NDCGName(2), res.MetricName)
	assert.Len(t, epochs, len(res.History))
	assert.True(t, epochs[0].Improved)
	for _, s := range res.History {
		assert.False(t, math.IsNaN(s.Loss))
		assert.LessOrEqual(t, s.Metric, res.BestMetric)
	}

	ck, err := model.LoadCheckpoint(cfg.CheckpointPath)
	require.NoError(t, err)
	assert.Equal(t, res.BestEpoch, ck.Epoch)
	assert.Equal(t, res.BestMetric, ck.Metric)

	restored, err := model.FromCheckpoint(ck, g)
	require.NoError(t, err)
	emb := restored.Embed(g, nil)
	assert.True(t, emb.HasUser(1))
}

func TestFitWithoutInteractions(t *testing.T) {
	g, _, recipes := fixture(t)
	tr := &Trainer{Config: DefaultConfig(), Model: newModel(t, g), Graph: g, Recipes: recipes, Logger: zerolog.Nop()}
	_, err := tr.Fit(context.Background())
	assert.True(t, core.IsInvalidInput(err))
}

func TestFitCancelled(t *testing.T) {
	g, interactions, recipes := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := &Trainer{Config: DefaultConfig(), Model: newModel(t, g), Graph: g, Interactions: interactions, Recipes: recipes, Logger: zerolog.Nop()}
	_, err := tr.Fit(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
