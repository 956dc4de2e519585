package graph

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/saveeat/core"
)

func fixture() ([]core.Interaction, []core.Recipe) {
	recipes := []core.Recipe{
		{ID: 30, Name: "Salad", Ingredients: []string{"Tomato", " lettuce ", "olive  oil"}},
		{ID: 10, Name: "Pasta", Ingredients: []string{"pasta", "TOMATO", "cheese"}},
		{ID: 20, Name: "Toast", Ingredients: []string{"bread", "Cheese", "cheese"}},
	}
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	interactions := []core.Interaction{
		{UserID: 2, RecipeID: 10, Rating: core.Float(5), Timestamp: t0},
		{UserID: 1, RecipeID: 30, Timestamp: t0.Add(time.Hour)},
		{UserID: 2, RecipeID: 20, Rating: core.Float(4), Timestamp: t0.Add(2 * time.Hour)},
		{UserID: 2, RecipeID: 10, Rating: core.Float(2), Timestamp: t0.Add(3 * time.Hour)},
	}
	return interactions, recipes
}

func TestBuild(t *testing.T) {
	interactions, recipes := fixture()
	g, err := NewBuilder(4, 7, zerolog.Nop()).Build(interactions, recipes)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2}, g.Users().Keys())
	assert.Equal(t, []int64{10, 20, 30}, g.Recipes().Keys())
	assert.Equal(t, []string{"bread", "cheese", "lettuce", "olive oil", "pasta", "tomato"}, g.Ingredients().Keys())

	// 同一用户对同一菜谱只保留最新的一条，评分 2 → 0.4
	ur := g.UserRecipe()
	assert.Equal(t, []int{0, 1, 1}, ur.Src)
	assert.Equal(t, []int{2, 0, 1}, ur.Dst)
	assert.InDeltaSlice(t, []float64{DefaultRating / MaxRating, 0.4, 0.8}, ur.Weight, 1e-12)

	// "Cheese" 与 "cheese" 合并为一个节点，一条组成边
	assert.Equal(t, 9-1, g.RecipeIngredient().Len())
	assert.Equal(t, 1, g.PopularityByID(10))
	assert.Equal(t, 0, g.PopularityByID(99))

	assert.Equal(t, [][]int{{2}, {0, 1}}, g.Positives())
	emb := g.RecipeEmbedding()
	assert.Equal(t, 3, emb.Rows)
	assert.Equal(t, 4, emb.Cols)
}

func TestBuildDeterministic(t *testing.T) {
	interactions, recipes := fixture()
	a, err := NewBuilder(4, 7, zerolog.Nop()).Build(interactions, recipes)
	require.NoError(t, err)
	b, err := NewBuilder(4, 7, zerolog.Nop()).Build(interactions, recipes)
	require.NoError(t, err)
	assert.Equal(t, a.UserEmbedding().Data, b.UserEmbedding().Data)
	assert.Equal(t, a.UserRecipe(), b.UserRecipe())
}

func TestBuildDataIntegrity(t *testing.T) {
	interactions, recipes := fixture()
	interactions = append(interactions, core.Interaction{UserID: 3, RecipeID: 404})

	_, err := NewBuilder(4, 7, zerolog.Nop()).Build(interactions, recipes)
	require.Error(t, err)
	assert.True(t, core.IsDataIntegrity(err))
	assert.Contains(t, err.Error(), "interactions[4]")
	assert.Contains(t, err.Error(), "recipe_id=404")

	b := NewBuilder(4, 7, zerolog.Nop())
	b.DropDangling = true
	g, err := b.Build(interactions, recipes)
	require.NoError(t, err)
	_, ok := g.Users().Lookup(3)
	assert.False(t, ok)

	dup := append(recipes, core.Recipe{ID: 10})
	_, err = NewBuilder(4, 7, zerolog.Nop()).Build(nil, dup)
	assert.True(t, core.IsDataIntegrity(err))
}

func TestWithoutInteractions(t *testing.T) {
	interactions, recipes := fixture()
	g, err := NewBuilder(4, 7, zerolog.Nop()).Build(interactions, recipes)
	require.NoError(t, err)
	h := g.WithoutInteractions(func(u, r int) bool { return u == 1 && r == 1 })
	assert.Equal(t, 2, h.UserRecipe().Len())
	assert.Equal(t, 3, g.UserRecipe().Len())
	assert.Same(t, g.Users(), h.Users())
}

func TestArtifactRoundTrip(t *testing.T) {
	interactions, recipes := fixture()
	g, err := NewBuilder(4, 7, zerolog.Nop()).Build(interactions, recipes)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, g.SaveFile(path))
	got, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, g.Users().Keys(), got.Users().Keys())
	assert.Equal(t, g.Ingredients().Keys(), got.Ingredients().Keys())
	assert.Equal(t, g.UserRecipe(), got.UserRecipe())
	assert.Equal(t, g.RecipeEmbedding().Data, got.RecipeEmbedding().Data)
	assert.Equal(t, g.PopularityByID(20), got.PopularityByID(20))
}

func TestLoadRejectsBadArtifact(t *testing.T) {
	_, err := Load(bytes.NewBufferString(`{"version":99}`))
	assert.Error(t, err)

	_, err = Load(bytes.NewBufferString(`{"version":1,"dim":2,"users":[1],"recipes":[5],"ingredients":[],
		"user_recipe":{"src":[0],"dst":[3],"weight":[1]},"recipe_ingredient":{"src":[],"dst":[],"weight":[]},
		"user_embedding":[0,0],"recipe_embedding":[0,0],"ingredient_embedding":[],"popularity":[1]}`))
	assert.ErrorContains(t, err, "out of range")
}
