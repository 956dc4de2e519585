// Package train 实现离线训练：留一法切分、负采样、联合训练图模型与重排网络、排序指标评估。
//
// 状态机：Init →（每个 epoch：TrainStep* → Validate）→ [EarlyStop | MaxEpochs] → Save。
// 持久化的是验证指标最好的那一轮，而不是最后一轮。
package train

import (
	"sort"
	"time"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/graph"
)

// Pair 是图下标空间里的一条 (用户, 菜谱) 交互。
type Pair struct {
	User   int
	Recipe int
}

// Split 是训练/验证切分。
type Split struct {
	Train []Pair
	Valid []Pair
}

// ValidByUser 按用户聚合验证集。
func (s Split) ValidByUser() map[int][]int {
	out := make(map[int][]int)
	for _, p := range s.Valid {
		out[p.User] = append(out[p.User], p.Recipe)
	}
	return out
}

// TrainByUser 返回每个用户的训练正样本（升序），长度为 numUsers。
func (s Split) TrainByUser(numUsers int) [][]int {
	out := make([][]int, numUsers)
	for _, p := range s.Train {
		out[p.User] = append(out[p.User], p.Recipe)
	}
	for _, rs := range out {
		sort.Ints(rs)
	}
	return out
}

// InteractedByUser 返回每个用户交互过的全部菜谱（训练集 + 验证集，升序），长度为 numUsers。
// 负采样必须排除它，验证集菜谱不能作为训练负样本出现。
func (s Split) InteractedByUser(numUsers int) [][]int {
	out := s.TrainByUser(numUsers)
	for _, p := range s.Valid {
		out[p.User] = append(out[p.User], p.Recipe)
	}
	for _, rs := range out {
		sort.Ints(rs)
	}
	return out
}

// SplitLeaveLastOut 按时间戳做逐用户留一切分：
// 有不少于 2 个不同菜谱交互的用户，把最近一次交互的菜谱放入验证集，其余进入训练集。
// 同一 (用户, 菜谱) 的重复交互按最近一次计；不在图中的记录被忽略。
func SplitLeaveLastOut(g *graph.Graph, interactions []core.Interaction) Split {
	type seen struct {
		ts    time.Time
		order int
	}
	latest := make(map[Pair]seen)
	for i, it := range interactions {
		u, ok := g.Users().Lookup(it.UserID)
		if !ok {
			continue
		}
		r, ok := g.Recipes().Lookup(it.RecipeID)
		if !ok {
			continue
		}
		p := Pair{User: u, Recipe: r}
		if cur, ok := latest[p]; !ok || !it.Timestamp.Before(cur.ts) {
			latest[p] = seen{ts: it.Timestamp, order: i}
		}
	}

	type event struct {
		recipe int
		seen
	}
	byUser := make(map[int][]event)
	for p, s := range latest {
		byUser[p.User] = append(byUser[p.User], event{recipe: p.Recipe, seen: s})
	}

	users := make([]int, 0, len(byUser))
	for u := range byUser {
		users = append(users, u)
	}
	sort.Ints(users)

	var out Split
	for _, u := range users {
		evs := byUser[u]
		sort.Slice(evs, func(i, j int) bool {
			if !evs[i].ts.Equal(evs[j].ts) {
				return evs[i].ts.Before(evs[j].ts)
			}
			return evs[i].order < evs[j].order
		})
		last := len(evs)
		if len(evs) >= 2 {
			last = len(evs) - 1
			out.Valid = append(out.Valid, Pair{User: u, Recipe: evs[last].recipe})
		}
		for _, e := range evs[:last] {
			out.Train = append(out.Train, Pair{User: u, Recipe: e.recipe})
		}
	}
	return out
}
