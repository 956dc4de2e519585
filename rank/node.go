package rank

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/feature"
	"github.com/rushteam/saveeat/model"
	"github.com/rushteam/saveeat/pipeline"
	"github.com/rushteam/saveeat/pkg/utils"
)

// 排序类型（写入 item label rank_type）。
const (
	TypeHybrid    = "hybrid"
	TypeFallback  = "fallback"
	TypeColdStart = "cold_start"
)

// 兜底原因（写入请求级 label fallback）。
const (
	FallbackModelUnavailable = "model_unavailable"
	FallbackColdStartUser    = "cold_start_user"
	FallbackColdStartRecipe  = "cold_start_recipe"
)

// FallbackObserver 在每次走兜底路径时被调用（用于打点）。
type FallbackObserver func(reason string)

// HybridNode 用训练好的混合图模型打分。
//   - Scorer 为 nil（未训练/未加载）：整批走兜底打分
//   - 用户冷启动：整批走兜底打分
//   - 菜谱冷启动：该菜谱用配料覆盖率打分，排在模型打分的菜谱之后
//
// 模型分数为 logit，写入 item.Score；重排阶段再换算为最终分数。
type HybridNode struct {
	Scorer   model.Scorer
	Fallback *FallbackScorer
	Observe  FallbackObserver
	Logger   zerolog.Logger
}

func (n *HybridNode) Name() string        { return "rank.hybrid" }
func (n *HybridNode) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *HybridNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}
	available := feature.NewContext(rctx.Request).Available

	if n.Scorer == nil {
		return n.fallback(rctx, items, available, FallbackModelUnavailable), nil
	}
	if !n.Scorer.HasUser(rctx.UserID) {
		return n.fallback(rctx, items, available, FallbackColdStartUser), nil
	}

	scored := make([]*core.Item, 0, len(items))
	var cold []*core.Item
	for _, it := range items {
		if it == nil {
			continue
		}
		s, err := n.Scorer.ScoreByID(rctx.UserID, it.ID)
		if core.IsColdStart(err) {
			cold = append(cold, it)
			continue
		}
		if err != nil {
			return nil, err
		}
		it.Score = s
		it.PutLabel(utils.LabelRankType, utils.Label{Value: TypeHybrid, Source: "rank"})
		it.PutLabel(utils.LabelRankModel, utils.Label{Value: n.Scorer.Name(), Source: "rank"})
		scored = append(scored, it)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})

	if len(cold) > 0 {
		n.Logger.Debug().Int64("user_id", rctx.UserID).Int("recipes", len(cold)).Msg("cold-start recipes scored by ingredient overlap")
		n.observe(rctx, FallbackColdStartRecipe)
		for _, it := range n.fallbackScorer().Score(cold, available) {
			it.PutLabel(utils.LabelRankType, utils.Label{Value: TypeColdStart, Source: "rank"})
			scored = append(scored, it)
		}
	}
	return scored, nil
}

func (n *HybridNode) fallback(rctx *core.RecommendContext, items []*core.Item, available []string, reason string) []*core.Item {
	n.Logger.Debug().Int64("user_id", rctx.UserID).Str("reason", reason).Msg("ranking with fallback scorer")
	n.observe(rctx, reason)
	out := n.fallbackScorer().Score(items, available)
	for _, it := range out {
		it.PutLabel(utils.LabelRankType, utils.Label{Value: TypeFallback, Source: "rank"})
	}
	return out
}

func (n *HybridNode) observe(rctx *core.RecommendContext, reason string) {
	rctx.PutLabel(utils.LabelFallback, utils.Label{Value: reason, Source: "rank"})
	if n.Observe != nil {
		n.Observe(reason)
	}
}

func (n *HybridNode) fallbackScorer() *FallbackScorer {
	if n.Fallback == nil {
		return NewFallbackScorer(nil, 0)
	}
	return n.Fallback
}

// FallbackNode 只用兜底打分，用于未训练部署或显式关闭模型的 Pipeline。
type FallbackNode struct {
	Scorer *FallbackScorer
}

func (n *FallbackNode) Name() string        { return "rank.fallback" }
func (n *FallbackNode) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *FallbackNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	s := n.Scorer
	if s == nil {
		s = NewFallbackScorer(nil, 0)
	}
	out := s.Score(items, feature.NewContext(rctx.Request).Available)
	for _, it := range out {
		it.PutLabel(utils.LabelRankType, utils.Label{Value: TypeFallback, Source: "rank"})
	}
	return out, nil
}
