package train

import (
	"fmt"
	"math"
	"sort"
)

// MetricMRR 是平均倒数排名的指标名。
const MetricMRR = "mrr"

// NDCGName / RecallName 返回 @k 指标名。
func NDCGName(k int) string   { return fmt.Sprintf("ndcg@%d", k) }
func RecallName(k int) string { return fmt.Sprintf("recall@%d", k) }

// Metrics 是指标名到取值（对用户取平均）的映射。
type Metrics map[string]float64

// ScoreFunc 为用户 u 计算全部菜谱的分数，写入 out（长度为菜谱数）。
type ScoreFunc func(u int, out []float64)

// Evaluator 在留出的交互上计算 NDCG@k、Recall@k 与 MRR。
// 排名时排除用户的训练正样本；相关度为二值，增益 2^rel − 1。
type Evaluator struct {
	Ks         []int
	NumRecipes int
}

// NewEvaluator 创建评估器；ks 为空时默认 {10, 20}。
func NewEvaluator(numRecipes int, ks ...int) *Evaluator {
	if len(ks) == 0 {
		ks = []int{10, 20}
	}
	return &Evaluator{Ks: ks, NumRecipes: numRecipes}
}

// Evaluate 对 heldOut 中的每个用户打分排序并计算平均指标；没有用户时返回 nil。
func (e *Evaluator) Evaluate(score ScoreFunc, heldOut map[int][]int, seen [][]int) Metrics {
	if len(heldOut) == 0 {
		return nil
	}
	users := make([]int, 0, len(heldOut))
	for u := range heldOut {
		users = append(users, u)
	}
	sort.Ints(users)

	sum := make(Metrics)
	scores := make([]float64, e.NumRecipes)
	for _, u := range users {
		score(u, scores)
		var exclude []int
		if u < len(seen) {
			exclude = seen[u]
		}
		ranked := Rank(scores, exclude)
		for name, v := range UserMetrics(ranked, heldOut[u], e.Ks) {
			sum[name] += v
		}
	}
	for name := range sum {
		sum[name] /= float64(len(users))
	}
	return sum
}

// Rank 返回按分数降序（同分按下标升序）的菜谱下标，exclude 中的下标不参与排名。
func Rank(scores []float64, exclude []int) []int {
	skip := make(map[int]struct{}, len(exclude))
	for _, r := range exclude {
		skip[r] = struct{}{}
	}
	out := make([]int, 0, len(scores))
	for i := range scores {
		if _, ok := skip[i]; !ok {
			out = append(out, i)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return scores[out[a]] > scores[out[b]]
	})
	return out
}

// UserMetrics 计算单个用户的指标。
func UserMetrics(ranked, relevant []int, ks []int) Metrics {
	rel := make(map[int]struct{}, len(relevant))
	for _, r := range relevant {
		rel[r] = struct{}{}
	}
	m := make(Metrics, 2*len(ks)+1)
	if len(rel) == 0 {
		return m
	}
	for _, k := range ks {
		var dcg, idcg float64
		hits := 0
		for i := 0; i < k && i < len(ranked); i++ {
			if _, ok := rel[ranked[i]]; ok {
				dcg += 1 / math.Log2(float64(i)+2)
				hits++
			}
		}
		for i := 0; i < k && i < len(rel); i++ {
			idcg += 1 / math.Log2(float64(i)+2)
		}
		m[NDCGName(k)] = dcg / idcg
		m[RecallName(k)] = float64(hits) / float64(len(rel))
	}
	m[MetricMRR] = 0
	for i, r := range ranked {
		if _, ok := rel[r]; ok {
			m[MetricMRR] = 1 / float64(i+1)
			break
		}
	}
	return m
}
