package dsl

import (
	"testing"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/pkg/utils"
)

func testItem() *core.Item {
	it := core.NewItem(&core.Recipe{
		ID:          7,
		Name:        "Tomato Pasta",
		Ingredients: []string{"Tomato", "Pasta"},
		Nutrition:   core.Nutrition{Calories: core.Float(450)},
		PrepTime:    25,
		Cuisine:     "italian",
		Tags:        []string{"quick"},
	})
	it.Score = 0.8
	it.PutLabel(utils.LabelRankType, utils.Label{Value: "fallback", Source: "rank"})
	return it
}

func TestEvaluate(t *testing.T) {
	rctx := &core.RecommendContext{UserID: 3, Request: &core.RecommendRequest{TopK: 5}}
	tests := []struct {
		expr string
		want bool
	}{
		{"", true},
		{"item.score > 0.7", true},
		{"item.calories >= 0 && item.calories < 500", true},
		{"item.protein < 0", true},
		{"item.prep_time > 30", false},
		{`"pasta" in item.ingredients`, true},
		{`label.rank_type == "fallback"`, true},
		{`item.cuisine == "italian" && rctx.top_k == 5`, true},
		{`"quick" in item.tags && rctx.user_id == 3`, true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr, testItem(), rctx)
			if err != nil {
				t.Fatalf("Evaluate(%q) error: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	if _, err := Compile("item.score >"); err == nil {
		t.Error("expected syntax error")
	}
	if _, err := Compile(`"abc"`); err == nil {
		t.Error("expected non-bool expression to be rejected")
	}
}
