package core

import "github.com/rushteam/saveeat/pkg/utils"

// RecommendRequest 是服务层传入的推荐请求记录。
type RecommendRequest struct {
	UserID               int64    `json:"user_id"`
	AvailableIngredients []string `json:"available_ingredients"`
	MaxTime              *float64 `json:"max_time,omitempty"`     // 分钟
	MaxCalories          *float64 `json:"max_calories,omitempty"` // 千卡
	DietaryPreferences   []string `json:"dietary_preferences,omitempty"`
	TopK                 int      `json:"top_k"`
	UseProfile           bool     `json:"use_profile"`
}

// HasContext 请求是否携带重排所需的上下文信号。
func (r *RecommendRequest) HasContext() bool {
	return len(r.AvailableIngredients) > 0 || r.MaxTime != nil || len(r.DietaryPreferences) > 0
}

// RecommendContext 承载用户/请求/画像信息，贯穿整个 Pipeline 透传。
type RecommendContext struct {
	RequestID string
	UserID    int64

	// Request 是原始请求
	Request *RecommendRequest

	// Profile 是叠加请求约束后的有效画像；nil 表示不做画像过滤
	Profile *DietaryProfile

	// Labels 是请求级标签，可驱动整个 Pipeline 行为
	// 例如：fallback 原因、过滤清空时的阶段
	Labels map[string]utils.Label

	// Params 请求级上下文参数
	Params map[string]any
}

// PutLabel 写入请求级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取请求级 Label。
func (rctx *RecommendContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}

// AvailableIngredients 返回规范化后的可用配料集合。
func (rctx *RecommendContext) AvailableIngredients() map[string]struct{} {
	out := make(map[string]struct{})
	if rctx == nil || rctx.Request == nil {
		return out
	}
	for _, ing := range rctx.Request.AvailableIngredients {
		if n := NormalizeIngredient(ing); n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}
