package filter

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/pkg/utils"
	"github.com/rushteam/saveeat/store"
)

func items(recipes ...core.Recipe) []*core.Item {
	out := make([]*core.Item, len(recipes))
	for i := range recipes {
		out[i] = core.NewItem(&recipes[i])
	}
	return out
}

func ids(items []*core.Item) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

var pantry = []string{
	"tomato", "pasta", "cheese", "peanut butter", "chicken breast", "rice", "tofu", "lettuce",
	"olive oil", "egg", "eggplant", "butter", "coconut milk", "flour", "almond flour", "salmon",
	"garlic", "onion", "soy sauce", "honey", "bread", "milk", "mushroom", "basil", "peanuts",
}

func randomRecipes(n int, seed uint64) []core.Recipe {
	rng := rand.New(rand.NewPCG(seed, seed))
	out := make([]core.Recipe, n)
	for i := range out {
		k := 1 + rng.IntN(5)
		ings := make([]string, k)
		for j := range ings {
			ings[j] = pantry[rng.IntN(len(pantry))]
		}
		r := core.Recipe{ID: int64(i + 1), Name: fmt.Sprintf("r%d", i+1), Ingredients: ings, PrepTime: float64(rng.IntN(90))}
		if rng.IntN(4) > 0 {
			r.Nutrition.Calories = core.Float(float64(100 + rng.IntN(900)))
		}
		out[i] = r
	}
	return out
}

func TestMatches(t *testing.T) {
	tests := []struct {
		term, ingredient string
		want             bool
	}{
		{"peanut", "Peanut Butter", true},
		{"peanuts", "peanut", true},
		{"Peanuts", "roasted peanut oil", true},
		{"shellfish", "fish", true},
		{"tomatoes", "cherry tomato", true},
		{"berries", "strawberry jam", true},
		{"milk", "oil", false},
		{"walnut", "peanut", false},
		{"", "peanut", false},
	}
	for _, tt := range tests {
		t.Run(tt.term+"/"+tt.ingredient, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.term, tt.ingredient))
		})
	}
}

func TestStageOrderIsFixed(t *testing.T) {
	pp := NewProfilePipeline(zerolog.Nop())
	assert.Equal(t, []string{StageAllergy, StageRestriction, StageNutrition, StageDisliked, StagePrepTime}, pp.Stages())
}

func TestAllergySafety(t *testing.T) {
	pp := NewProfilePipeline(zerolog.Nop())
	recipes := randomRecipes(300, 11)
	for _, allergen := range []string{"peanuts", "egg", "milk", "soy", "fish"} {
		profile := &core.DietaryProfile{UserID: 1, Allergies: []string{allergen}}
		res := pp.Run(items(recipes...), profile)
		for _, it := range res.Items {
			for _, ing := range it.Recipe.Ingredients {
				assert.False(t, Matches(allergen, ing), "recipe %d keeps %q for allergen %q", it.ID, ing, allergen)
			}
		}
	}
}

func TestVeganOutputHasNoDisqualifyingIngredient(t *testing.T) {
	pp := NewProfilePipeline(zerolog.Nop())
	profile := &core.DietaryProfile{DietaryRestrictions: []string{core.RestrictionVegan}}
	res := pp.Run(items(randomRecipes(300, 12)...), profile)
	require.NotEmpty(t, res.Items)
	for _, it := range res.Items {
		_, bad := Violates(core.RestrictionVegan, it.Recipe)
		assert.False(t, bad, "recipe %d", it.ID)
	}
	eggplant := core.Recipe{ID: 1, Ingredients: []string{"Eggplant", "coconut milk", "peanut butter"}}
	_, bad := Violates(core.RestrictionVegan, &eggplant)
	assert.False(t, bad)
	cheese := core.Recipe{ID: 2, Ingredients: []string{"Parmesan Cheese"}}
	ing, bad := Violates(core.RestrictionVegan, &cheese)
	assert.True(t, bad)
	assert.Equal(t, "parmesan cheese", ing)
	assert.Contains(t, DisqualifyingTerms(core.RestrictionVegan), "honey")
	assert.Nil(t, DisqualifyingTerms("keto"))
}

func TestIdempotence(t *testing.T) {
	pp := NewProfilePipeline(zerolog.Nop())
	profile := &core.DietaryProfile{
		Allergies:           []string{"peanuts"},
		DietaryRestrictions: []string{core.RestrictionVegetarian},
		MaxCalories:         core.Float(600),
		DislikedIngredients: []string{"mushroom"},
		MaxPrepTime:         core.Float(45),
	}
	in := items(randomRecipes(200, 13)...)
	first := pp.Run(in, profile)
	second := pp.Run(in, profile)
	assert.Equal(t, ids(first.Items), ids(second.Items))
	assert.Equal(t, first.Counts, second.Counts)
	again := pp.Run(first.Items, profile)
	assert.Equal(t, ids(first.Items), ids(again.Items))
}

func TestMonotonicity(t *testing.T) {
	pp := NewProfilePipeline(zerolog.Nop())
	in := items(randomRecipes(200, 14)...)
	prev := len(in) + 1
	for _, maxCal := range []float64{2000, 900, 600, 300, 150} {
		profile := &core.DietaryProfile{MaxCalories: core.Float(maxCal)}
		n := len(pp.Run(in, profile).Items)
		assert.LessOrEqual(t, n, prev, "max_calories=%v", maxCal)
		prev = n
	}
	base := &core.DietaryProfile{MaxCalories: core.Float(600)}
	stricter := base.Clone()
	stricter.Allergies = []string{"egg"}
	stricter.DietaryRestrictions = []string{core.RestrictionDairyFree}
	assert.LessOrEqual(t, len(pp.Run(in, stricter).Items), len(pp.Run(in, base).Items))
}

func TestNutritionUnknownPasses(t *testing.T) {
	recipes := []core.Recipe{
		{ID: 1, Nutrition: core.Nutrition{Calories: core.Float(800)}},
		{ID: 2},
		{ID: 3, Nutrition: core.Nutrition{Calories: core.Float(0), Protein: core.Float(30)}},
		{ID: 4, Nutrition: core.Nutrition{Calories: core.Float(400), Protein: core.Float(5)}},
	}
	profile := &core.DietaryProfile{MaxCalories: core.Float(500), MinProtein: core.Float(10)}
	out := NutritionStage{}.Apply(items(recipes...), profile)
	assert.Equal(t, []int64{2, 3}, ids(out))
}

func TestPrepTime(t *testing.T) {
	recipes := []core.Recipe{{ID: 1, PrepTime: 20}, {ID: 2, PrepTime: 90}, {ID: 3}}
	out := PrepTimeStage{}.Apply(items(recipes...), &core.DietaryProfile{MaxPrepTime: core.Float(30)})
	assert.Equal(t, []int64{1, 3}, ids(out))
}

// 50 道菜谱，其中恰好 10 道是 600 千卡以下的纯素菜。
func veganFixture() ([]core.Recipe, []int64) {
	var recipes []core.Recipe
	var want []int64
	id := int64(1)
	add := func(ings []string, cal float64) int64 {
		recipes = append(recipes, core.Recipe{ID: id, Ingredients: ings, Nutrition: core.Nutrition{Calories: core.Float(cal)}})
		id++
		return id - 1
	}
	for i := 0; i < 10; i++ {
		want = append(want, add([]string{"tofu", "rice", "Broccoli"}, float64(200+i*30)))
	}
	for i := 0; i < 10; i++ {
		add([]string{"lentils", "coconut milk"}, float64(650+i*10)) // 纯素但超热量
	}
	for i := 0; i < 10; i++ {
		add([]string{"pasta", "Parmesan cheese"}, 400)
	}
	for i := 0; i < 10; i++ {
		add([]string{"chicken breast", "rice"}, 350)
	}
	for i := 0; i < 10; i++ {
		add([]string{"toast", "honey", "butter"}, 300)
	}
	return recipes, want
}

func TestScenarioVeganUnder600(t *testing.T) {
	recipes, want := veganFixture()
	require.Len(t, recipes, 50)
	profile := &core.DietaryProfile{DietaryRestrictions: []string{core.RestrictionVegan}, MaxCalories: core.Float(600)}
	res := NewProfilePipeline(zerolog.Nop()).Run(items(recipes...), profile)
	assert.Equal(t, want, ids(res.Items))
	assert.Equal(t, StageCount{Stage: StageRestriction, In: 50, Out: 20}, res.Counts[1])
	assert.Equal(t, StageCount{Stage: StageNutrition, In: 20, Out: 10}, res.Counts[2])
}

func TestScenarioAllPeanuts(t *testing.T) {
	recipes := []core.Recipe{
		{ID: 1, Ingredients: []string{"peanuts", "noodles"}},
		{ID: 2, Ingredients: []string{"Peanut Butter", "bread"}},
		{ID: 3, Ingredients: []string{"satay sauce", "roasted peanut"}},
	}
	var observed []StageCount
	node := &ProfileNode{Pipeline: NewProfilePipeline(zerolog.Nop()), Observe: func(c StageCount) { observed = append(observed, c) }}
	rctx := &core.RecommendContext{Profile: &core.DietaryProfile{Allergies: []string{"peanuts"}}}
	out, err := node.Process(context.Background(), rctx, items(recipes...))
	require.NoError(t, err)
	assert.Empty(t, out)
	reason, ok := rctx.GetLabel(utils.LabelEmptyReason)
	require.True(t, ok)
	assert.Contains(t, reason.Value, ReasonProfileTooRestrictive)
	stage, _ := rctx.GetLabel(utils.LabelEmptyStage)
	assert.Equal(t, StageAllergy, stage.Value)
	require.Len(t, observed, 5)
	assert.Equal(t, StageCount{Stage: StagePrepTime, In: 0, Out: 0}, observed[4])
}

func TestProfileNodeWithoutProfile(t *testing.T) {
	node := &ProfileNode{Pipeline: NewProfilePipeline(zerolog.Nop())}
	in := items(randomRecipes(5, 1)...)
	out, err := node.Process(context.Background(), &core.RecommendContext{}, in)
	require.NoError(t, err)
	assert.Len(t, out, 5)
}

func TestFilterNodeWithExprAndBlacklist(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, "blacklist:recipes", []byte(`[3]`), 0))

	expr, err := NewExprFilter([]string{"item.prep_time <= 45.0"})
	require.NoError(t, err)
	node := &FilterNode{
		Filters: []Filter{expr, NewBlacklistFilter([]int64{1}, kv, "blacklist:recipes")},
		Logger:  zerolog.Nop(),
	}
	recipes := []core.Recipe{{ID: 1, PrepTime: 10}, {ID: 2, PrepTime: 20}, {ID: 3, PrepTime: 30}, {ID: 4, PrepTime: 60}}
	in := items(recipes...)
	rctx := &core.RecommendContext{}
	out, err := node.Process(ctx, rctx, in)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(out))
	assert.Equal(t, "true", in[3].Label(utils.LabelFiltered))
	assert.Equal(t, "filter.expr", in[3].Labels[utils.LabelFiltered].Source)

	_, err = NewExprFilter([]string{"item.prep_time <="})
	assert.Error(t, err)
}
