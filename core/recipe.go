package core

import (
	"strings"
	"time"
)

// Recipe 是入库后不可变的菜谱记录。
type Recipe struct {
	ID          int64     `json:"recipe_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Ingredients []string  `json:"ingredients"` // 保持原始顺序
	Steps       []string  `json:"steps,omitempty"`
	Nutrition   Nutrition `json:"nutrition"`
	PrepTime    float64   `json:"prep_time"` // 分钟，0 表示未知
	Tags        []string  `json:"tags,omitempty"`
	Cuisine     string    `json:"cuisine,omitempty"`
}

// Nutrition 营养信息。nil 或 0 都表示"未知"。
type Nutrition struct {
	Calories *float64 `json:"calories,omitempty"`
	Protein  *float64 `json:"protein,omitempty"`
	Carbs    *float64 `json:"carbs,omitempty"`
	Fat      *float64 `json:"fat,omitempty"`
}

// Known 返回 v 是否为已知值。
func Known(v *float64) bool {
	return v != nil && *v != 0
}

// NormalizedIngredients 返回规范化后的配料（去重，保持首次出现的顺序）。
func (r *Recipe) NormalizedIngredients() []string {
	out := make([]string, 0, len(r.Ingredients))
	seen := make(map[string]struct{}, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		n := NormalizeIngredient(ing)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Interaction 是训练信号：只追加，不修改。
type Interaction struct {
	UserID    int64     `json:"user_id"`
	RecipeID  int64     `json:"recipe_id"`
	Rating    *float64  `json:"rating,omitempty"` // nil 表示隐式信号
	Timestamp time.Time `json:"timestamp"`
}

// NormalizeIngredient 是配料身份的唯一规则：小写 + 去首尾空白 + 合并内部空白。
// 不做模糊匹配，同名不同大小写的配料映射到同一节点。
func NormalizeIngredient(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Float 返回 v 的指针，便于构造可选字段。
func Float(v float64) *float64 {
	return &v
}
