// Package saveeat 是一个混合菜谱推荐器。
//
// 设计要点：
// - Graph + Text: 用户-菜谱-食材异构图上的 GAT 表示与菜谱文本向量融合打分
// - Context-aware: 可用食材、时间、饮食限制通过上下文重排修正基础分
// - Profile-first: 过敏原、饮食限制、营养上限按有序阶段过滤，过滤结果可解释
// - Fallback: 模型不可用或冷启动时按食材覆盖率与热度降级
//
// 推荐链路由 pipeline 的 Node 串联（Recall → Filter → Rank → ReRank → PostProcess），
// engine 负责装配，cmd/saveeat 提供命令行入口。
package saveeat

import (
	"github.com/rushteam/saveeat/engine"
	"github.com/rushteam/saveeat/pipeline"
)

// 轻量 facade：便于直接 import "saveeat" 使用核心抽象。
type (
	Engine   = engine.Engine
	Response = engine.Response
	Option   = engine.Option
	Pipeline = pipeline.Pipeline
	Node     = pipeline.Node
	Kind     = pipeline.Kind
)

const (
	KindRecall      = pipeline.KindRecall
	KindFilter      = pipeline.KindFilter
	KindRank        = pipeline.KindRank
	KindReRank      = pipeline.KindReRank
	KindPostProcess = pipeline.KindPostProcess
)

// New 见 engine.New。
var New = engine.New

// Load 见 engine.Load。
var Load = engine.Load
