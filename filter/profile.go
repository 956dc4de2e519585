package filter

import (
	"github.com/rs/zerolog"

	"github.com/rushteam/saveeat/core"
)

// Stage 名称，同时也是管线中的固定顺序。
const (
	StageAllergy     = "allergy"
	StageRestriction = "dietary_restriction"
	StageNutrition   = "nutrition"
	StageDisliked    = "disliked_ingredient"
	StagePrepTime    = "prep_time"
)

// Stage 是画像过滤管线中的一个阶段：输入候选集与画像，返回保留的子集（保持原顺序）。
// 实现必须是纯函数，不依赖随机状态。
type Stage interface {
	Name() string
	Apply(items []*core.Item, profile *core.DietaryProfile) []*core.Item
}

// keep 保留 pred 为 true 的候选，返回新切片。
func keep(items []*core.Item, pred func(r *core.Recipe) bool) []*core.Item {
	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it.Recipe != nil && pred(it.Recipe) {
			out = append(out, it)
		}
	}
	return out
}

// AllergyStage 移除含任一过敏原的菜谱。
type AllergyStage struct{}

func (AllergyStage) Name() string { return StageAllergy }

func (AllergyStage) Apply(items []*core.Item, p *core.DietaryProfile) []*core.Item {
	if len(p.Allergies) == 0 {
		return items
	}
	return keep(items, func(r *core.Recipe) bool {
		_, hit := AnyMatch(p.Allergies, r)
		return !hit
	})
}

// RestrictionStage 按静态表移除违反任一饮食限制的菜谱。
type RestrictionStage struct{}

func (RestrictionStage) Name() string { return StageRestriction }

func (RestrictionStage) Apply(items []*core.Item, p *core.DietaryProfile) []*core.Item {
	active := p.ActiveRestrictions()
	if len(active) == 0 {
		return items
	}
	return keep(items, func(r *core.Recipe) bool {
		for _, restriction := range active {
			if _, bad := Violates(restriction, r); bad {
				return false
			}
		}
		return true
	})
}

// NutritionStage 独立检查画像中存在的每个营养上下限。
// 菜谱缺失（nil 或 0）的营养值视为不违反该限制。
type NutritionStage struct{}

func (NutritionStage) Name() string { return StageNutrition }

func (NutritionStage) Apply(items []*core.Item, p *core.DietaryProfile) []*core.Item {
	if p.MaxCalories == nil && p.MinProtein == nil && p.MaxCarbs == nil && p.MaxFat == nil {
		return items
	}
	return keep(items, func(r *core.Recipe) bool {
		n := r.Nutrition
		return withinMax(n.Calories, p.MaxCalories) &&
			atLeast(n.Protein, p.MinProtein) &&
			withinMax(n.Carbs, p.MaxCarbs) &&
			withinMax(n.Fat, p.MaxFat)
	})
}

func withinMax(v, bound *float64) bool {
	if bound == nil || !core.Known(v) {
		return true
	}
	return *v <= *bound
}

func atLeast(v, bound *float64) bool {
	if bound == nil || !core.Known(v) {
		return true
	}
	return *v >= *bound
}

// DislikedStage 移除含不喜欢配料的菜谱，匹配规则同过敏原。
type DislikedStage struct{}

func (DislikedStage) Name() string { return StageDisliked }

func (DislikedStage) Apply(items []*core.Item, p *core.DietaryProfile) []*core.Item {
	if len(p.DislikedIngredients) == 0 {
		return items
	}
	return keep(items, func(r *core.Recipe) bool {
		_, hit := AnyMatch(p.DislikedIngredients, r)
		return !hit
	})
}

// PrepTimeStage 移除超过最长准备时间的菜谱；准备时间未知（0）的菜谱保留。
type PrepTimeStage struct{}

func (PrepTimeStage) Name() string { return StagePrepTime }

func (PrepTimeStage) Apply(items []*core.Item, p *core.DietaryProfile) []*core.Item {
	if p.MaxPrepTime == nil {
		return items
	}
	return keep(items, func(r *core.Recipe) bool {
		return r.PrepTime <= 0 || r.PrepTime <= *p.MaxPrepTime
	})
}

// StageCount 记录某阶段的输入输出数量。
type StageCount struct {
	Stage string `json:"stage"`
	In    int    `json:"in"`
	Out   int    `json:"out"`
}

// Result 是一次画像过滤的结果。
type Result struct {
	Items  []*core.Item
	Counts []StageCount
	// EmptiedBy 是把候选集清空的阶段，未清空时为空串
	EmptiedBy string
}

// Empty 候选集是否被清空。
func (r Result) Empty() bool { return len(r.Items) == 0 }

// ProfilePipeline 按固定安全顺序依次执行各阶段。
// 任一阶段清空候选集后不再执行后续阶段，但仍为其记录 0/0 计数。
type ProfilePipeline struct {
	stages []Stage
	logger zerolog.Logger
}

// NewProfilePipeline 返回固定顺序的管线：过敏 → 饮食限制 → 营养 → 不喜欢 → 时长。
func NewProfilePipeline(logger zerolog.Logger) *ProfilePipeline {
	return &ProfilePipeline{
		stages: []Stage{
			AllergyStage{},
			RestrictionStage{},
			NutritionStage{},
			DislikedStage{},
			PrepTimeStage{},
		},
		logger: logger.With().Str("component", "profile_filter").Logger(),
	}
}

// Stages 返回阶段名称（执行顺序）。
func (pp *ProfilePipeline) Stages() []string {
	out := make([]string, len(pp.stages))
	for i, s := range pp.stages {
		out[i] = s.Name()
	}
	return out
}

// Run 执行管线。profile 为 nil 时原样返回。
func (pp *ProfilePipeline) Run(items []*core.Item, profile *core.DietaryProfile) Result {
	if profile == nil {
		return Result{Items: items}
	}
	res := Result{Counts: make([]StageCount, 0, len(pp.stages))}
	cur := items
	for _, s := range pp.stages {
		in := len(cur)
		if in > 0 {
			cur = s.Apply(cur, profile)
		}
		res.Counts = append(res.Counts, StageCount{Stage: s.Name(), In: in, Out: len(cur)})
		pp.logger.Debug().Int64("user_id", profile.UserID).Str("stage", s.Name()).Int("in", in).Int("out", len(cur)).Msg("filter stage")
		if in > 0 && len(cur) == 0 {
			res.EmptiedBy = s.Name()
		}
	}
	res.Items = cur
	return res
}
