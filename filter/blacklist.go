package filter

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/rushteam/saveeat/core"
)

// BlacklistFilter 是黑名单过滤器，过滤掉黑名单中的菜谱。
type BlacklistFilter struct {
	// RecipeIDs 是内存中的黑名单
	RecipeIDs map[int64]struct{}

	// Store 用于从存储中读取黑名单（可选），值为 JSON 数组 [1, 2, 3]
	Store core.Store

	// Key 是 Store 中的黑名单 key（可选）
	Key string
}

// NewBlacklistFilter 创建一个黑名单过滤器。
func NewBlacklistFilter(ids []int64, store core.Store, key string) *BlacklistFilter {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return &BlacklistFilter{RecipeIDs: set, Store: store, Key: key}
}

func (f *BlacklistFilter) Name() string {
	return "filter.blacklist"
}

func (f *BlacklistFilter) ShouldFilter(
	ctx context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	if _, ok := f.RecipeIDs[item.ID]; ok {
		return true, nil
	}
	if f.Store == nil || f.Key == "" {
		return false, nil
	}
	stored, err := f.load(ctx, rctx)
	if err != nil {
		return false, err
	}
	_, ok := stored[item.ID]
	return ok, nil
}

// load 每个请求只读一次 Store，结果缓存在 rctx.Params。
func (f *BlacklistFilter) load(ctx context.Context, rctx *core.RecommendContext) (map[int64]struct{}, error) {
	cacheKey := "blacklist:" + f.Key
	if rctx != nil && rctx.Params != nil {
		if set, ok := rctx.Params[cacheKey].(map[int64]struct{}); ok {
			return set, nil
		}
	}
	set := make(map[int64]struct{})
	data, err := f.Store.Get(ctx, f.Key)
	switch {
	case core.IsStoreNotFound(err):
	case err != nil:
		return nil, fmt.Errorf("blacklist: read %s: %w", f.Key, err)
	default:
		var ids []int64
		if err := json.Unmarshal(data, &ids); err != nil {
			return nil, fmt.Errorf("blacklist: decode %s: %w", f.Key, err)
		}
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}
	if rctx != nil {
		if rctx.Params == nil {
			rctx.Params = make(map[string]any)
		}
		rctx.Params[cacheKey] = set
	}
	return set, nil
}
