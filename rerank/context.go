package rerank

import (
	"context"
	"math"
	"sort"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/feature"
	"github.com/rushteam/saveeat/pipeline"
	"github.com/rushteam/saveeat/pkg/utils"
	"github.com/rushteam/saveeat/rank"
)

// Reranker 是上下文重排网络的最小抽象（model.ContextReranker 实现）。
type Reranker interface {
	Dim() int
	Rerank(base []float64, ctx [][]float64) ([]float64, error)
}

// ContextNode 用上下文特征调整模型打分。
//
// 只处理 rank_type=hybrid 的前 TopK*PoolFactor 个候选：
//   - 计算 (请求, 菜谱) 上下文特征并写入 item.Features
//   - adjusted = base + f(ctx) − f(0)，最终分数 sigmoid(adjusted)
//   - 按最终分数重新排序
//
// 排在模型候选之后的冷启动/兜底候选保持原顺序，分数不高于最后一个模型候选，
// 保证输出分数单调不增。Reranker 为 nil 时只做 sigmoid 换算。
type ContextNode struct {
	Reranker   Reranker
	TopK       int
	PoolFactor int
}

func (n *ContextNode) Name() string        { return "rerank.context" }
func (n *ContextNode) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *ContextNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}
	items = items[:min(len(items), n.poolSize(rctx))]

	split := 0
	for split < len(items) && items[split].Label(utils.LabelRankType) == rank.TypeHybrid {
		split++
	}
	if split == 0 {
		return items, nil
	}
	head := items[:split]

	c := feature.NewContext(rctx.Request)
	base := make([]float64, len(head))
	recipes := make([]*core.Recipe, len(head))
	for i, it := range head {
		base[i] = it.Score
		recipes[i] = it.Recipe
	}
	ctxRows := feature.ExtractBatch(c, recipes)
	for i, it := range head {
		feature.Annotate(it, ctxRows[i])
	}

	adjusted := base
	if n.Reranker != nil {
		var err error
		if adjusted, err = n.Reranker.Rerank(base, ctxRows); err != nil {
			return nil, err
		}
		if !c.Neutral() {
			for _, it := range head {
				it.PutLabel(utils.LabelRerank, utils.Label{Value: n.Name(), Source: "rerank"})
			}
		}
	}
	for i, it := range head {
		it.Features["base_logit"] = base[i]
		it.Score = sigmoid(adjusted[i])
	}
	sort.SliceStable(head, func(i, j int) bool {
		if head[i].Score != head[j].Score {
			return head[i].Score > head[j].Score
		}
		return head[i].ID < head[j].ID
	})

	floor := head[len(head)-1].Score
	for _, it := range items[split:] {
		it.Score = math.Min(it.Score, floor)
	}
	return items, nil
}

func (n *ContextNode) poolSize(rctx *core.RecommendContext) int {
	k := n.TopK
	if rctx != nil && rctx.Request != nil && rctx.Request.TopK > 0 {
		k = rctx.Request.TopK
	}
	if k <= 0 {
		return math.MaxInt
	}
	f := n.PoolFactor
	if f < 1 {
		f = 1
	}
	return k * f
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
