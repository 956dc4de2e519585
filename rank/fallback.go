package rank

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/feature"
	"github.com/rushteam/saveeat/pkg/utils"
)

// maxMissingShown 是解释中最多列出的缺少配料数。
const maxMissingShown = 3

// Popularity 是菜谱热度（交互次数）表，只读。
type Popularity map[int64]int

// Max 返回最大交互次数。
func (p Popularity) Max() int {
	m := 0
	for _, c := range p {
		if c > m {
			m = c
		}
	}
	return m
}

// FallbackScorer 是不依赖训练结果的兜底打分：
//   - 给出可用配料时，分数为配料覆盖率，按覆盖率降序、热度降序、ID 升序排列
//   - 没有给出配料时，分数为归一化热度
//
// 模型不可用或冷启动时使用，保证零训练也能出结果。
type FallbackScorer struct {
	Popularity Popularity
	// MinOverlapRatio > 0 且给出配料时，覆盖率低于该值或一个配料都没匹配上的菜谱被剔除
	MinOverlapRatio float64

	maxPop int
}

// NewFallbackScorer 创建兜底打分器。
func NewFallbackScorer(pop Popularity, minOverlapRatio float64) *FallbackScorer {
	if pop == nil {
		pop = Popularity{}
	}
	return &FallbackScorer{Popularity: pop, MinOverlapRatio: minOverlapRatio, maxPop: pop.Max()}
}

// Score 为 items 打分、写入解释并排序，返回（可能被剔除部分后的）新切片。
// available 为规范化后的可用配料。
func (s *FallbackScorer) Score(items []*core.Item, available []string) []*core.Item {
	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it == nil || it.Recipe == nil {
			continue
		}
		if len(available) == 0 {
			it.Score = s.normalizedPopularity(it.ID)
			it.PutLabel(utils.LabelExplain, utils.Label{Value: "popular recipe", Source: "rank"})
			out = append(out, it)
			continue
		}
		o := feature.ComputeOverlap(it.Recipe, available)
		if s.MinOverlapRatio > 0 && (len(o.Matched) == 0 || o.Ratio() < s.MinOverlapRatio) {
			continue
		}
		it.Score = o.Ratio()
		it.Features["overlap_ratio"] = o.Ratio()
		it.PutLabel(utils.LabelExplain, utils.Label{Value: Explain(o), Source: "rank"})
		out = append(out, it)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		pa, pb := s.Popularity[a.ID], s.Popularity[b.ID]
		if pa != pb {
			return pa > pb
		}
		return a.ID < b.ID
	})
	return out
}

func (s *FallbackScorer) normalizedPopularity(id int64) float64 {
	if s.maxPop == 0 {
		return 0
	}
	return float64(s.Popularity[id]) / float64(s.maxPop)
}

// Explain 生成配料匹配的可读解释。
func Explain(o feature.Overlap) string {
	if o.Total == 0 {
		return "no ingredient list"
	}
	pct := int(o.Ratio()*100 + 0.5)
	head := fmt.Sprintf("you have %d of %d ingredients (%d%%)", len(o.Matched), o.Total, pct)
	if len(o.Missing) == 0 {
		return head + "; all ingredients available"
	}
	shown := o.Missing
	more := 0
	if len(shown) > maxMissingShown {
		more = len(shown) - maxMissingShown
		shown = shown[:maxMissingShown]
	}
	missing := strings.Join(shown, ", ")
	if more > 0 {
		missing += fmt.Sprintf(" +%d more", more)
	}
	return head + "; missing: " + missing
}
