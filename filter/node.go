// Package filter 实现候选过滤：固定安全顺序的画像过滤管线（过敏 → 饮食限制 → 营养 → 不喜欢 → 时长），
// 以及可组合的单品过滤器（CEL 规则、黑名单）。
package filter

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/pipeline"
	"github.com/rushteam/saveeat/pkg/utils"
)

// Filter 判断单个候选是否移除，返回 true 表示移除。
type Filter interface {
	Name() string
	ShouldFilter(ctx context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error)
}

// FilterNode 是过滤 Node，可以组合多个过滤器进行过滤。
// 如果任何一个过滤器返回 true，该物品就会被过滤掉。
type FilterNode struct {
	Filters []Filter
	Logger  zerolog.Logger
}

func (n *FilterNode) Name() string {
	return "filter.node"
}

func (n *FilterNode) Kind() pipeline.Kind {
	return pipeline.KindFilter
}

func (n *FilterNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(n.Filters) == 0 || len(items) == 0 {
		return items, nil
	}

	out := make([]*core.Item, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}

		filteredBy := ""
		for _, f := range n.Filters {
			ok, err := f.ShouldFilter(ctx, rctx, item)
			if err != nil {
				// 过滤器错误时记录但不中断流程
				n.Logger.Warn().Err(err).Str("filter", f.Name()).Int64("recipe_id", item.ID).Msg("filter error, keeping item")
				continue
			}
			if ok {
				filteredBy = f.Name()
				break
			}
		}

		if filteredBy != "" {
			item.PutLabel(utils.LabelFiltered, utils.Label{Value: "true", Source: filteredBy})
			continue
		}
		out = append(out, item)
	}

	return out, nil
}

// StageObserver 接收每个画像过滤阶段的计数。
type StageObserver func(count StageCount)

// ReasonProfileTooRestrictive 是画像过滤清空候选集时返回给调用方的原因。
const ReasonProfileTooRestrictive = "profile too restrictive"

// ProfileNode 把画像过滤管线接入推荐 Pipeline。
// 有效画像取自 rctx.Profile；清空候选集不是错误，而是在 rctx 上记录原因后返回空集。
type ProfileNode struct {
	Pipeline *ProfilePipeline
	Observe  StageObserver
}

func (n *ProfileNode) Name() string        { return "filter.profile" }
func (n *ProfileNode) Kind() pipeline.Kind { return pipeline.KindFilter }

func (n *ProfileNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if rctx.Profile == nil {
		return items, nil
	}
	res := n.Pipeline.Run(items, rctx.Profile)
	if n.Observe != nil {
		for _, c := range res.Counts {
			n.Observe(c)
		}
	}
	if res.EmptiedBy != "" {
		rctx.PutLabel(utils.LabelEmptyReason, utils.Label{
			Value:  fmt.Sprintf("%s: no recipes left after the %s filter", ReasonProfileTooRestrictive, res.EmptiedBy),
			Source: n.Name(),
		})
		rctx.PutLabel(utils.LabelEmptyStage, utils.Label{Value: res.EmptiedBy, Source: n.Name()})
	}
	return res.Items, nil
}
