package rerank

import (
	"context"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/pipeline"
)

// TopNNode 是 Top-N 截断节点，放在重排之后。
// N 取请求的 top_k；请求未指定时用 N 字段；两者都 <= 0 时不截断。
type TopNNode struct {
	N int
}

func (n *TopNNode) Name() string {
	return "rerank.topn"
}

func (n *TopNNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *TopNNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	k := n.N
	if rctx != nil && rctx.Request != nil && rctx.Request.TopK > 0 {
		k = rctx.Request.TopK
	}
	if k <= 0 || len(items) <= k {
		return items, nil
	}
	return items[:k], nil
}
