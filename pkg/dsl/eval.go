package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/saveeat/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("item", cel.DynType),
			cel.Variable("label", cel.DynType),
			cel.Variable("rctx", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Program 是编译后的规则表达式，可被多个 goroutine 复用。
//
// 可用变量：
//   - item.id / item.score / item.prep_time / item.calories / item.protein
//     / item.carbs / item.fat / item.cuisine / item.tags / item.ingredients
//   - label.<key>：Label 的值，例如 label.rank_type == "fallback"
//   - rctx.user_id / rctx.top_k / rctx.params
//
// 未知营养值以 -1 表示，规则里写 item.calories >= 0 && item.calories < 500。
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式；表达式必须返回 bool。
func Compile(expr string) (*Program, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("dsl: cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("dsl: compile %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, fmt.Errorf("dsl: expression %q must return bool, got %v", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("dsl: program %q: %w", expr, err)
	}
	return &Program{expr: expr, prg: prg}, nil
}

// String 返回原始表达式。
func (p *Program) String() string { return p.expr }

// Eval 对单个 item 求值。
func (p *Program) Eval(item *core.Item, rctx *core.RecommendContext) (bool, error) {
	out, _, err := p.prg.Eval(buildInput(item, rctx))
	if err != nil {
		return false, fmt.Errorf("dsl: eval %q: %w", p.expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("dsl: expression %q must return boolean, got %T", p.expr, out.Value())
	}
	return result, nil
}

// Evaluate 编译并执行一次表达式；空表达式恒为 true。
func Evaluate(expr string, item *core.Item, rctx *core.RecommendContext) (bool, error) {
	if expr == "" {
		return true, nil
	}
	p, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return p.Eval(item, rctx)
}

func nutrient(v *float64) float64 {
	if !core.Known(v) {
		return -1
	}
	return *v
}

func buildInput(item *core.Item, rctx *core.RecommendContext) map[string]any {
	label := make(map[string]any, len(item.Labels))
	for k, v := range item.Labels {
		label[k] = v.Value
	}

	it := map[string]any{
		"id":    item.ID,
		"score": item.Score,
	}
	if r := item.Recipe; r != nil {
		it["name"] = r.Name
		it["prep_time"] = r.PrepTime
		it["calories"] = nutrient(r.Nutrition.Calories)
		it["protein"] = nutrient(r.Nutrition.Protein)
		it["carbs"] = nutrient(r.Nutrition.Carbs)
		it["fat"] = nutrient(r.Nutrition.Fat)
		it["cuisine"] = r.Cuisine
		it["tags"] = append([]string{}, r.Tags...)
		it["ingredients"] = r.NormalizedIngredients()
	}

	rc := map[string]any{"user_id": int64(0), "top_k": int64(0), "params": map[string]any{}}
	if rctx != nil {
		rc["user_id"] = rctx.UserID
		if rctx.Request != nil {
			rc["top_k"] = int64(rctx.Request.TopK)
		}
		if rctx.Params != nil {
			rc["params"] = rctx.Params
		}
	}

	return map[string]any{
		"item":  it,
		"label": label,
		"rctx":  rc,
	}
}
