package utils

// Label 是推荐链路中的一等公民：可解释、可追踪、可透传。
// Value 与 Source 的语义由业务自定义；这里只提供标准化的合并规则。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // recall / rank / rerank / rule / postprocess ...
}

// MergeLabel 用于合并同名 Label，遵循“保留历史、可追踪”的默认策略。
// - Value: 以 '|' 累积
// - Source: 以 ',' 累积
//
// 如果你需要更复杂的 DSL/优先级/覆盖规则，可以在上层封装自己的 merge 策略。
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" {
		return existing
	}

	merged := existing
	merged.Value = existing.Value + "|" + incoming.Value
	switch {
	case existing.Source == "":
		merged.Source = incoming.Source
	case incoming.Source == "":
		merged.Source = existing.Source
	default:
		merged.Source = existing.Source + "," + incoming.Source
	}
	return merged
}

// 链路中约定的 Label key。
const (
	LabelRankType     = "rank_type"     // hybrid / fallback / cold_start
	LabelRankModel    = "rank_model"    // 打分模型名称
	LabelRerank       = "rerank"        // 重排节点
	LabelFiltered     = "filtered"      // 被过滤时写入
	LabelExplain      = "explain"       // 人类可读的解释
	LabelFallback     = "fallback"      // 请求级：兜底原因
	LabelEmptyReason  = "empty_reason"  // 请求级：候选集被清空的原因
	LabelEmptyStage   = "empty_stage"   // 请求级：清空候选集的过滤阶段
	LabelRecallSource = "recall_source" // 召回来源
)

// FirstValue 返回 '|' 累积值中的第一段（最早写入的值）。
func FirstValue(lbl Label) string {
	for i := 0; i < len(lbl.Value); i++ {
		if lbl.Value[i] == '|' {
			return lbl.Value[:i]
		}
	}
	return lbl.Value
}
