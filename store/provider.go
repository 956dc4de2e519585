package store

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/rushteam/saveeat/core"
)

// MemoryProvider 是内存中的 core.DataProvider，用于测试与离线实验。
type MemoryProvider struct {
	mu           sync.RWMutex
	recipes      []core.Recipe
	interactions []core.Interaction
	profiles     core.ProfileSource
}

var _ core.DataProvider = (*MemoryProvider)(nil)

// NewMemoryProvider 以给定数据创建 provider；profiles 为 nil 时所有用户都没有画像。
func NewMemoryProvider(recipes []core.Recipe, interactions []core.Interaction, profiles core.ProfileSource) *MemoryProvider {
	rs := append([]core.Recipe(nil), recipes...)
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
	return &MemoryProvider{
		recipes:      rs,
		interactions: append([]core.Interaction(nil), interactions...),
		profiles:     profiles,
	}
}

func (p *MemoryProvider) GetUserProfile(ctx context.Context, userID int64) (*core.DietaryProfile, error) {
	if p.profiles == nil {
		return nil, nil
	}
	return p.profiles.GetUserProfile(ctx, userID)
}

func (p *MemoryProvider) GetRecipes(ctx context.Context, filter *core.RecipeFilter) ([]core.Recipe, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var want map[int64]struct{}
	if filter != nil && len(filter.IDs) > 0 {
		want = make(map[int64]struct{}, len(filter.IDs))
		for _, id := range filter.IDs {
			want[id] = struct{}{}
		}
	}
	out := make([]core.Recipe, 0, len(p.recipes))
	for _, r := range p.recipes {
		if want != nil {
			if _, ok := want[r.ID]; !ok {
				continue
			}
		}
		out = append(out, r)
		if filter != nil && filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (p *MemoryProvider) GetInteractions(ctx context.Context) ([]core.Interaction, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]core.Interaction(nil), p.interactions...), nil
}

// PopularityKey 是菜谱热度有序集合的 key。
const PopularityKey = "popularity:recipes"

// PublishPopularity 把每个菜谱的交互次数写入有序集合（覆盖旧值）。
func PublishPopularity(ctx context.Context, kv core.KeyValueStore, counts map[int64]int) error {
	for id, c := range counts {
		if err := kv.ZAdd(ctx, PopularityKey, float64(c), strconv.FormatInt(id, 10)); err != nil {
			return err
		}
	}
	return nil
}

// RecordInteraction 为一次新交互累加菜谱热度。
func RecordInteraction(ctx context.Context, kv core.KeyValueStore, recipeID int64) (int, error) {
	v, err := kv.ZIncrBy(ctx, PopularityKey, 1, strconv.FormatInt(recipeID, 10))
	return int(v), err
}

// LoadPopularity 读取全部菜谱热度；非数字成员被忽略。
func LoadPopularity(ctx context.Context, kv core.KeyValueStore) (map[int64]int, error) {
	members, err := kv.ZRange(ctx, PopularityKey, 0, -1)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]int, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m.Member, 10, 64)
		if err != nil {
			continue
		}
		out[id] = int(m.Score)
	}
	return out, nil
}
