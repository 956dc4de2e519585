package rerank

import (
	"context"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/feature"
	"github.com/rushteam/saveeat/pipeline"
	"github.com/rushteam/saveeat/pkg/utils"
	"github.com/rushteam/saveeat/rank"
)

// ExplainHistory 是无可用配料时模型打分菜谱的解释。
const ExplainHistory = "matches your cooking history"

// ExplainNode 为没有解释的候选补上解释，兜底/冷启动候选的解释已在排序阶段写入。
//   - 给出可用配料：配料覆盖率说明，与兜底打分同一格式
//   - 未给出：ExplainHistory
type ExplainNode struct{}

func (n *ExplainNode) Name() string        { return "postprocess.explain" }
func (n *ExplainNode) Kind() pipeline.Kind { return pipeline.KindPostProcess }

func (n *ExplainNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	available := feature.NewContext(rctx.Request).Available
	for _, it := range items {
		if it.Label(utils.LabelExplain) != "" || it.Recipe == nil {
			continue
		}
		msg := ExplainHistory
		if len(available) > 0 {
			msg = rank.Explain(feature.ComputeOverlap(it.Recipe, available))
		}
		it.PutLabel(utils.LabelExplain, utils.Label{Value: msg, Source: "postprocess"})
	}
	return items, nil
}
