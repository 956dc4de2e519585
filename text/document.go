// Package text 把菜谱文本（名称 + 描述 + 标签）编码为定长向量。
package text

import (
	"strings"

	"github.com/rushteam/saveeat/core"
)

// Document 按固定规则拼接菜谱文本：`名称. 描述. tags: t1, t2`，空段省略。
func Document(r *core.Recipe) string {
	parts := make([]string, 0, 3)
	if s := strings.TrimSpace(r.Name); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(r.Description); s != "" {
		parts = append(parts, s)
	}
	tags := make([]string, 0, len(r.Tags))
	for _, t := range r.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) > 0 {
		parts = append(parts, "tags: "+strings.Join(tags, ", "))
	}
	return strings.Join(parts, ". ")
}

// Documents 按菜谱顺序生成文档。
func Documents(recipes []core.Recipe) []string {
	out := make([]string, len(recipes))
	for i := range recipes {
		out[i] = Document(&recipes[i])
	}
	return out
}
