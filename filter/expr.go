package filter

import (
	"context"
	"fmt"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/pkg/dsl"
)

// ExprFilter 用运营配置的 CEL 规则做保留条件：任一规则为 false 的菜谱被过滤。
// 例如 `item.prep_time <= 45.0`、`!("spicy" in item.tags)`。
type ExprFilter struct {
	rules []*dsl.Program
}

// NewExprFilter 编译全部规则，任一规则无法编译即返回错误。
func NewExprFilter(exprs []string) (*ExprFilter, error) {
	f := &ExprFilter{}
	for _, e := range exprs {
		p, err := dsl.Compile(e)
		if err != nil {
			return nil, fmt.Errorf("filter.expr: %w", err)
		}
		f.rules = append(f.rules, p)
	}
	return f, nil
}

func (f *ExprFilter) Name() string { return "filter.expr" }

func (f *ExprFilter) ShouldFilter(_ context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error) {
	for _, p := range f.rules {
		ok, err := p.Eval(item, rctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
	}
	return false, nil
}
