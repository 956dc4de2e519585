package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/saveeat/core"
)

func TestMemoryStoreBasics(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	_, err := s.Get(ctx, "missing")
	assert.True(t, core.IsStoreNotFound(err))

	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	v, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, s.BatchSet(ctx, map[string][]byte{"b": []byte("2"), "c": []byte("3")}))
	got, err := s.BatchGet(ctx, []string{"a", "b", "nope"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.True(t, core.IsStoreNotFound(err))
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	s.data["old"] = entry{value: []byte("x"), expire: time.Now().Add(-time.Second)}
	_, err := s.Get(ctx, "old")
	assert.True(t, core.IsStoreNotFound(err))

	require.NoError(t, s.Set(ctx, "fresh", []byte("y"), 60))
	_, err = s.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestMemoryStoreSortedSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	require.NoError(t, s.ZAdd(ctx, "z", 1, "a"))
	require.NoError(t, s.ZAdd(ctx, "z", 5, "b"))
	v, err := s.ZIncrBy(ctx, "z", 3, "a")
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)

	members, err := s.ZRange(ctx, "z", 0, -1)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "b", members[0].Member)
	assert.Equal(t, "a", members[1].Member)

	top, err := s.ZRange(ctx, "z", 0, 0)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	_, err = s.ZScore(ctx, "z", "c")
	assert.True(t, core.IsStoreNotFound(err))
}

func TestPopularityRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	require.NoError(t, PublishPopularity(ctx, s, map[int64]int{1: 3, 2: 7}))
	n, err := RecordInteraction(ctx, s, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	pop, err := LoadPopularity(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 4, 2: 7}, pop)
}

func TestProfileStoreCRUD(t *testing.T) {
	ctx := context.Background()
	ps := NewProfileStore(NewMemoryStore())

	p := core.NewDietaryProfile(7)
	p.Allergies = []string{" Peanuts "}
	p.DietaryRestrictions = []string{core.RestrictionVegan}

	created, err := ps.Create(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"peanuts"}, created.Allergies)

	_, err = ps.Create(ctx, p)
	assert.True(t, core.IsAlreadyExists(err))

	got, err := ps.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{core.RestrictionVegan}, got.DietaryRestrictions)

	got.SkillLevel = core.SkillAdvanced
	updated, err := ps.Update(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, core.SkillAdvanced, updated.SkillLevel)

	require.NoError(t, ps.Delete(ctx, 7))
	_, err = ps.Get(ctx, 7)
	assert.ErrorIs(t, err, core.ErrProfileNotFound)
	assert.ErrorIs(t, ps.Delete(ctx, 7), core.ErrProfileNotFound)

	missing, err := ps.GetUserProfile(ctx, 7)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestProfileStoreUpdateMissing(t *testing.T) {
	ps := NewProfileStore(NewMemoryStore())
	_, err := ps.Update(context.Background(), core.NewDietaryProfile(1))
	assert.True(t, core.IsNotFound(err))
}

func TestProfileStorePatch(t *testing.T) {
	ctx := context.Background()
	ps := NewProfileStore(NewMemoryStore())

	p := core.NewDietaryProfile(3)
	p.Allergies = []string{"shellfish"}
	p.MaxCalories = core.Float(800)
	_, err := ps.Create(ctx, p)
	require.NoError(t, err)

	patched, err := ps.Patch(ctx, 3, []byte(`{"max_calories": 600, "disliked_ingredients": ["Cilantro"]}`))
	require.NoError(t, err)
	assert.Equal(t, 600.0, *patched.MaxCalories)
	assert.Equal(t, []string{"shellfish"}, patched.Allergies)
	assert.Equal(t, []string{"cilantro"}, patched.DislikedIngredients)

	tests := []struct {
		name  string
		patch string
	}{
		{"unknown key", `{"favourite_color": "blue"}`},
		{"invalid restriction", `{"dietary_restrictions": ["keto"]}`},
		{"none with others", `{"dietary_restrictions": ["none", "vegan"]}`},
		{"negative calories", `{"max_calories": -5}`},
		{"null spice tolerance", `{"spice_tolerance": null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ps.Patch(ctx, 3, []byte(tt.patch))
			require.Error(t, err)
			assert.True(t, core.IsInvalidInput(err))

			cur, err := ps.Get(ctx, 3)
			require.NoError(t, err)
			assert.Equal(t, 600.0, *cur.MaxCalories)
		})
	}

	_, err = ps.Patch(ctx, 99, []byte(`{}`))
	assert.ErrorIs(t, err, core.ErrProfileNotFound)
}

func TestProfileStorePatchNullClearsBound(t *testing.T) {
	ctx := context.Background()
	ps := NewProfileStore(NewMemoryStore())

	p := core.NewDietaryProfile(4)
	p.Allergies = []string{"peanut"}
	p.DislikedIngredients = []string{"olives"}
	p.MaxCalories = core.Float(600)
	p.MaxPrepTime = core.Float(30)
	p.SpiceTolerance = 6
	_, err := ps.Create(ctx, p)
	require.NoError(t, err)

	patched, err := ps.Patch(ctx, 4, []byte(`{"max_calories": null, "disliked_ingredients": null}`))
	require.NoError(t, err)
	assert.Nil(t, patched.MaxCalories)
	assert.Empty(t, patched.DislikedIngredients)
	require.NotNil(t, patched.MaxPrepTime, "absent keys keep their value")
	assert.Equal(t, 30.0, *patched.MaxPrepTime)
	assert.Equal(t, []string{"peanut"}, patched.Allergies)
	assert.Equal(t, 6, patched.SpiceTolerance)

	stored, err := ps.Get(ctx, 4)
	require.NoError(t, err)
	assert.Nil(t, stored.MaxCalories)
	assert.Empty(t, stored.DislikedIngredients)
}

func TestProfileStoreRejectsNilProfile(t *testing.T) {
	ctx := context.Background()
	ps := NewProfileStore(NewMemoryStore())

	_, err := ps.Create(ctx, nil)
	assert.True(t, core.IsInvalidInput(err))
	_, err = ps.Update(ctx, nil)
	assert.True(t, core.IsInvalidInput(err))
	_, err = ps.Put(ctx, nil)
	assert.True(t, core.IsInvalidInput(err))
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "saveeat.db"))
	require.NoError(t, err)
	defer s.Close()

	recipes := []core.Recipe{
		{ID: 2, Name: "Tofu Stir Fry", Ingredients: []string{"tofu", "soy sauce"}, PrepTime: 20,
			Nutrition: core.Nutrition{Calories: core.Float(450)}, Tags: []string{"vegan"}},
		{ID: 1, Name: "Omelette", Ingredients: []string{"egg", "butter"}, PrepTime: 10},
	}
	require.NoError(t, s.InsertRecipes(ctx, recipes))

	got, err := s.GetRecipes(ctx, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Nil(t, got[0].Nutrition.Calories)
	assert.Equal(t, 450.0, *got[1].Nutrition.Calories)
	assert.Equal(t, []string{"tofu", "soy sauce"}, got[1].Ingredients)

	one, err := s.GetRecipes(ctx, &core.RecipeFilter{IDs: []int64{2}})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "Tofu Stir Fry", one[0].Name)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.AppendInteractions(ctx, []core.Interaction{
		{UserID: 5, RecipeID: 1, Rating: core.Float(4), Timestamp: ts},
		{UserID: 5, RecipeID: 2, Timestamp: ts.Add(time.Hour)},
	}))
	its, err := s.GetInteractions(ctx)
	require.NoError(t, err)
	require.Len(t, its, 2)
	assert.Equal(t, 4.0, *its[0].Rating)
	assert.Nil(t, its[1].Rating)
	assert.True(t, its[0].Timestamp.Equal(ts))

	prof, err := s.GetUserProfile(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, prof)

	p := core.NewDietaryProfile(5)
	p.Allergies = []string{"peanuts"}
	_, err = s.Profiles().Create(ctx, p)
	require.NoError(t, err)
	prof, err = s.GetUserProfile(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, prof)
	assert.Equal(t, []string{"peanuts"}, prof.Allergies)

	require.NoError(t, PublishPopularity(ctx, s, map[int64]int{1: 3, 2: 5}))
	n, err := RecordInteraction(ctx, s, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	pop, err := LoadPopularity(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 4, 2: 5}, pop)
	top, err := s.ZRange(ctx, PopularityKey, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []core.ScoredMember{{Member: "2", Score: 5}}, top)
	_, err = s.ZScore(ctx, PopularityKey, "9")
	assert.True(t, core.IsStoreNotFound(err))
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("SAVEEAT_TEST_REDIS")
	if addr == "" {
		t.Skip("SAVEEAT_TEST_REDIS not set")
	}
	ctx := context.Background()
	s, err := NewRedisStore(ctx, addr, 0, WithKeyPrefix("saveeat-test:"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 30))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.True(t, core.IsStoreNotFound(err))

	require.NoError(t, s.Delete(ctx, PopularityKey))
	require.NoError(t, PublishPopularity(ctx, s, map[int64]int{10: 2}))
	pop, err := LoadPopularity(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 2, pop[10])
}
