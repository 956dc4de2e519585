package recall

import (
	"context"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/pipeline"
	"github.com/rushteam/saveeat/pkg/utils"
)

// Source 是可复用的召回源：给定请求上下文产出候选集。
type Source interface {
	Name() string
	Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error)
}

var (
	_ Source        = (*Catalog)(nil)
	_ pipeline.Node = (*Catalog)(nil)
)

// Catalog 召回全部菜谱作为候选集。
// 菜谱记录在进程内只读共享；每次请求生成新的 Item，节点可以自由修改 Item。
// Catalog 同时实现 Source 和 Node 接口。
type Catalog struct {
	recipes []core.Recipe
	byID    map[int64]int
}

// NewCatalog 以菜谱列表创建召回源（复制一份，之后不再修改）。
func NewCatalog(recipes []core.Recipe) *Catalog {
	c := &Catalog{
		recipes: append([]core.Recipe(nil), recipes...),
		byID:    make(map[int64]int, len(recipes)),
	}
	for i, r := range c.recipes {
		c.byID[r.ID] = i
	}
	return c
}

func (c *Catalog) Name() string        { return "recall.catalog" }
func (c *Catalog) Kind() pipeline.Kind { return pipeline.KindRecall }

// Len 菜谱数量。
func (c *Catalog) Len() int { return len(c.recipes) }

// Lookup 按 ID 查找菜谱。
func (c *Catalog) Lookup(id int64) (*core.Recipe, bool) {
	i, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return &c.recipes[i], true
}

func (c *Catalog) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return c.Recall(ctx, rctx)
}

func (c *Catalog) Recall(ctx context.Context, _ *core.RecommendContext) ([]*core.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items := make([]*core.Item, len(c.recipes))
	for i := range c.recipes {
		it := core.NewItem(&c.recipes[i])
		it.PutLabel(utils.LabelRecallSource, utils.Label{Value: c.Name(), Source: "recall"})
		items[i] = it
	}
	return items, nil
}
