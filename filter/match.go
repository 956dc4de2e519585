package filter

import (
	"strings"

	"github.com/rushteam/saveeat/core"
)

// minReverseMatch 是"词条包含配料"反向匹配时配料的最短长度，避免 "oil" 之类的短配料误伤。
const minReverseMatch = 3

// Matches 判断词条 term（过敏原/不喜欢的配料）是否命中配料 ingredient。
// 两者都先规范化；命中条件任一成立即可：
//   - 配料包含词条，例如 "peanut" 命中 "peanut butter"
//   - 词条包含配料（配料不短于 3 个字符），例如 "peanuts" 命中 "peanut"
//   - 配料包含词条的单数形式，例如 "peanuts" 命中 "roasted peanut oil"
//
// 宁可多过滤也不漏过滤。
func Matches(term, ingredient string) bool {
	t := core.NormalizeIngredient(term)
	ing := core.NormalizeIngredient(ingredient)
	if t == "" || ing == "" {
		return false
	}
	if strings.Contains(ing, t) {
		return true
	}
	if len(ing) >= minReverseMatch && strings.Contains(t, ing) {
		return true
	}
	if s := singular(t); s != t && len(s) >= minReverseMatch && strings.Contains(ing, s) {
		return true
	}
	return false
}

// AnyMatch 判断 terms 中是否有词条命中菜谱的任一配料，返回命中的词条。
func AnyMatch(terms []string, r *core.Recipe) (string, bool) {
	for _, term := range terms {
		for _, ing := range r.Ingredients {
			if Matches(term, ing) {
				return term, true
			}
		}
	}
	return "", false
}

func singular(s string) string {
	switch {
	case strings.HasSuffix(s, "ies"):
		return strings.TrimSuffix(s, "ies") + "y"
	case strings.HasSuffix(s, "oes"), strings.HasSuffix(s, "shes"), strings.HasSuffix(s, "ches"):
		return strings.TrimSuffix(s, "es")
	case strings.HasSuffix(s, "ss"):
		return s
	case strings.HasSuffix(s, "s"):
		return strings.TrimSuffix(s, "s")
	}
	return s
}
