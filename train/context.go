package train

import (
	"math/rand/v2"
	"sort"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/feature"
	"github.com/rushteam/saveeat/filter"
)

// maxContextRecipes 是合成“手头配料”时最多借用的正样本数。
const maxContextRecipes = 3

var restrictions = []string{
	core.RestrictionVegetarian,
	core.RestrictionVegan,
	core.RestrictionGlutenFree,
	core.RestrictionDairyFree,
}

// ContextSampler 为训练样本合成请求上下文，让重排网络见到与用户历史一致的信号。
//
// 以 Rate 的概率生成非中性上下文：
//   - 可用配料取自用户最多 3 个训练正样本的配料并集
//   - 一半概率附带 max_time（全部菜谱已知备餐时间的中位数）
//   - 一半概率附带一个与用户全部正样本都兼容的饮食限制
//
// 其余情况返回中性上下文。
type ContextSampler struct {
	Rate float64

	recipes   []*core.Recipe
	positives [][]int
	medianPT  *float64
	rng       *rand.Rand
}

// NewContextSampler 创建采样器；recipes 按图下标排列，可能含 nil（无元数据）。
func NewContextSampler(rate float64, recipes []*core.Recipe, positives [][]int, rng *rand.Rand) *ContextSampler {
	var times []float64
	for _, r := range recipes {
		if r != nil && r.PrepTime > 0 {
			times = append(times, r.PrepTime)
		}
	}
	s := &ContextSampler{Rate: rate, recipes: recipes, positives: positives, rng: rng}
	if len(times) > 0 {
		sort.Float64s(times)
		m := times[len(times)/2]
		s.medianPT = &m
	}
	return s
}

// Sample 为用户 u 生成一个上下文。
func (s *ContextSampler) Sample(u int) feature.Context {
	if s.Rate <= 0 || s.rng.Float64() >= s.Rate {
		return feature.Context{}
	}
	var pos []int
	if u < len(s.positives) {
		pos = s.positives[u]
	}
	var c feature.Context
	seen := make(map[string]struct{})
	for _, i := range s.pick(pos, maxContextRecipes) {
		if r := s.recipe(i); r != nil {
			for _, ing := range r.NormalizedIngredients() {
				if _, ok := seen[ing]; !ok {
					seen[ing] = struct{}{}
					c.Available = append(c.Available, ing)
				}
			}
		}
	}
	if s.medianPT != nil && s.rng.Float64() < 0.5 {
		c.MaxTime = core.Float(*s.medianPT)
	}
	if s.rng.Float64() < 0.5 {
		if r, ok := s.compatibleRestriction(pos); ok {
			c.Restrictions = []string{r}
		}
	}
	return c
}

func (s *ContextSampler) pick(pos []int, n int) []int {
	if len(pos) <= n {
		return pos
	}
	out := make([]int, 0, n)
	for _, k := range s.rng.Perm(len(pos))[:n] {
		out = append(out, pos[k])
	}
	return out
}

func (s *ContextSampler) recipe(i int) *core.Recipe {
	if i < 0 || i >= len(s.recipes) {
		return nil
	}
	return s.recipes[i]
}

func (s *ContextSampler) compatibleRestriction(pos []int) (string, bool) {
	if len(pos) == 0 {
		return "", false
	}
	var ok []string
	for _, restriction := range restrictions {
		all := true
		for _, i := range pos {
			r := s.recipe(i)
			if r == nil {
				continue
			}
			if _, bad := filter.Violates(restriction, r); bad {
				all = false
				break
			}
		}
		if all {
			ok = append(ok, restriction)
		}
	}
	if len(ok) == 0 {
		return "", false
	}
	return ok[s.rng.IntN(len(ok))], true
}
