package train

import "math/rand/v2"

// maxRejections 是单个负样本的最大拒绝次数，超过后放弃该样本。
const maxRejections = 64

// NegativeSampler 从全部菜谱中均匀采样用户未交互过的菜谱（按 ID 拒绝采样，不做热度校正）。
type NegativeSampler struct {
	NumRecipes int
	Ratio      int

	positives []map[int]struct{}
	rng       *rand.Rand
}

// NewNegativeSampler 以每个用户的已知正样本创建采样器。
func NewNegativeSampler(numRecipes, ratio int, positives [][]int, rng *rand.Rand) *NegativeSampler {
	sets := make([]map[int]struct{}, len(positives))
	for u, rs := range positives {
		sets[u] = make(map[int]struct{}, len(rs))
		for _, r := range rs {
			sets[u][r] = struct{}{}
		}
	}
	return &NegativeSampler{NumRecipes: numRecipes, Ratio: ratio, positives: sets, rng: rng}
}

// Sample 为用户采样 Ratio 个负样本；用户几乎交互过全部菜谱时可能少于 Ratio 个。
func (s *NegativeSampler) Sample(user int) []int {
	if s.NumRecipes == 0 {
		return nil
	}
	var pos map[int]struct{}
	if user < len(s.positives) {
		pos = s.positives[user]
	}
	if len(pos) >= s.NumRecipes {
		return nil
	}
	out := make([]int, 0, s.Ratio)
	for len(out) < s.Ratio {
		found := false
		for try := 0; try < maxRejections; try++ {
			r := s.rng.IntN(s.NumRecipes)
			if _, ok := pos[r]; !ok {
				out = append(out, r)
				found = true
				break
			}
		}
		if !found {
			break
		}
	}
	return out
}
