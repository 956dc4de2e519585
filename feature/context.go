package feature

import (
	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/filter"
)

// 上下文特征布局（固定顺序，ContextDim 维）。
// 全 0 向量表示中性上下文：没有给出配料时配料类特征为 0，
// 没有给出时间上限时时间类特征为 0，没有请求某个饮食偏好时对应指示为 0。
const (
	Coverage       = iota // 已有配料 / 菜谱配料数
	MissingFrac           // 缺少配料 / 菜谱配料数
	AvailableUsed         // 已有配料 / 用户可用配料数
	TimeRatio             // prep_time / max_time，截断到 [0, 2]
	TimeFeasible          // prep_time <= max_time 时为 1，否则 -1
	PrepHours             // prep_time / 60，截断到 [0, 4]
	DietVegetarian        // +1 合规，-1 违反，0 未请求
	DietVegan
	DietGlutenFree
	DietDairyFree

	ContextDim
)

// Names 是各维特征名，写入 Item.Features 时使用。
var Names = [ContextDim]string{
	"ctx_coverage",
	"ctx_missing_frac",
	"ctx_available_used",
	"ctx_time_ratio",
	"ctx_time_feasible",
	"ctx_prep_hours",
	"ctx_diet_vegetarian",
	"ctx_diet_vegan",
	"ctx_diet_gluten_free",
	"ctx_diet_dairy_free",
}

var dietSlots = [...]struct {
	restriction string
	slot        int
}{
	{core.RestrictionVegetarian, DietVegetarian},
	{core.RestrictionVegan, DietVegan},
	{core.RestrictionGlutenFree, DietGlutenFree},
	{core.RestrictionDairyFree, DietDairyFree},
}

// Context 是一次请求中与菜谱无关的上下文信号。
type Context struct {
	Available    []string // 规范化、去重后的可用配料
	MaxTime      *float64
	Restrictions []string
}

// NewContext 从请求构造上下文；req 为 nil 时返回中性上下文。
func NewContext(req *core.RecommendRequest) Context {
	if req == nil {
		return Context{}
	}
	c := Context{MaxTime: req.MaxTime}
	seen := make(map[string]struct{}, len(req.AvailableIngredients))
	for _, ing := range req.AvailableIngredients {
		n := core.NormalizeIngredient(ing)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		c.Available = append(c.Available, n)
	}
	for _, r := range req.DietaryPreferences {
		if n := core.NormalizeIngredient(r); n != "" && n != core.RestrictionNone {
			c.Restrictions = append(c.Restrictions, n)
		}
	}
	return c
}

// Neutral 上下文是否不携带任何信号。
func (c Context) Neutral() bool {
	return len(c.Available) == 0 && c.MaxTime == nil && len(c.Restrictions) == 0
}

// Overlap 是菜谱与可用配料的匹配结果。
type Overlap struct {
	Matched []string // 菜谱中能被可用配料覆盖的配料（规范化，保持菜谱顺序）
	Missing []string // 菜谱中缺少的配料
	Total   int      // 菜谱规范化后的配料数
}

// Ratio 返回 matched / total；菜谱没有配料时为 0。
func (o Overlap) Ratio() float64 {
	if o.Total == 0 {
		return 0
	}
	return float64(len(o.Matched)) / float64(o.Total)
}

// ComputeOverlap 计算菜谱配料被可用配料覆盖的情况，匹配规则与过敏原匹配相同。
func ComputeOverlap(r *core.Recipe, available []string) Overlap {
	ings := r.NormalizedIngredients()
	o := Overlap{Total: len(ings)}
	for _, ing := range ings {
		hit := false
		for _, a := range available {
			if filter.Matches(a, ing) {
				hit = true
				break
			}
		}
		if hit {
			o.Matched = append(o.Matched, ing)
		} else {
			o.Missing = append(o.Missing, ing)
		}
	}
	return o
}

// Extract 计算 (上下文, 菜谱) 的特征向量。
func Extract(c Context, r *core.Recipe) []float64 {
	out := make([]float64, ContextDim)
	if len(c.Available) > 0 {
		o := ComputeOverlap(r, c.Available)
		if o.Total > 0 {
			out[Coverage] = o.Ratio()
			out[MissingFrac] = float64(len(o.Missing)) / float64(o.Total)
		}
		out[AvailableUsed] = clamp(float64(len(o.Matched))/float64(len(c.Available)), 0, 1)
	}
	if c.MaxTime != nil && *c.MaxTime > 0 && r.PrepTime > 0 {
		out[TimeRatio] = clamp(r.PrepTime / *c.MaxTime, 0, 2)
		if r.PrepTime <= *c.MaxTime {
			out[TimeFeasible] = 1
		} else {
			out[TimeFeasible] = -1
		}
		out[PrepHours] = clamp(r.PrepTime/60, 0, 4)
	}
	for _, d := range dietSlots {
		for _, want := range c.Restrictions {
			if want == d.restriction {
				out[d.slot] = filter.Compatible(d.restriction, r)
				break
			}
		}
	}
	return out
}

// ExtractBatch 为一组菜谱计算特征矩阵（每行一个菜谱）。
func ExtractBatch(c Context, recipes []*core.Recipe) [][]float64 {
	out := make([][]float64, len(recipes))
	for i, r := range recipes {
		out[i] = Extract(c, r)
	}
	return out
}

// Annotate 把特征写入 Item.Features，便于解释与 CEL 规则使用。
func Annotate(it *core.Item, vec []float64) {
	if it.Features == nil {
		it.Features = make(map[string]float64, len(vec))
	}
	for i, v := range vec {
		it.Features[Names[i]] = v
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
