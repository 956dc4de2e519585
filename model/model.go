// Package model 实现混合图模型（多头图注意力 + 文本融合）与上下文重排网络。
package model

// Scorer 是排序阶段的最小抽象：给 (user, recipe) 打一个可比较的分数。
// 用户或菜谱不在图中时返回 core.ErrColdStart。
type Scorer interface {
	Name() string
	// HasUser 用户是否有学到的向量
	HasUser(userID int64) bool
	ScoreByID(userID, recipeID int64) (float64, error)
}

// Config 是模型结构超参。
type Config struct {
	EmbeddingDim int     `json:"embedding_dim"`
	HiddenDim    int     `json:"hidden_dim"`
	Layers       int     `json:"layers"`
	Heads        int     `json:"heads"`
	Dropout      float64 `json:"dropout"`
	// TextDim 为 0 时不启用文本融合分支
	TextDim int `json:"text_dim"`
	// RerankHidden 是重排网络两层隐藏层宽度（递减）
	RerankHidden []int `json:"rerank_hidden"`
	// ContextDim 是重排网络输入的上下文特征维度
	ContextDim int `json:"context_dim"`
	// NegativeSlope 是注意力打分的 LeakyReLU 斜率
	NegativeSlope float64 `json:"negative_slope"`
}

// DefaultConfig 返回默认结构：2 层、4 头。
func DefaultConfig() Config {
	return Config{
		EmbeddingDim:  64,
		HiddenDim:     64,
		Layers:        2,
		Heads:         4,
		Dropout:       0.3,
		TextDim:       384,
		RerankHidden:  []int{32, 16},
		ContextDim:    10,
		NegativeSlope: 0.2,
	}
}
