package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/filter"
	"github.com/rushteam/saveeat/metrics"
	"github.com/rushteam/saveeat/model"
	"github.com/rushteam/saveeat/pipeline"
	"github.com/rushteam/saveeat/pkg/conv"
	"github.com/rushteam/saveeat/rank"
	"github.com/rushteam/saveeat/recall"
	"github.com/rushteam/saveeat/rerank"
)

// DefaultPipelineYAML 是未配置 serve.pipeline_file 时使用的推荐链路。
const DefaultPipelineYAML = `
pipeline:
  name: saveeat
  nodes:
    - type: recall.catalog
    - type: filter.blacklist
    - type: filter.expr
    - type: filter.profile
    - type: rank.hybrid
    - type: rerank.context
    - type: rerank.topn
    - type: postprocess.explain
`

// NodeProfileFilter 是画像过滤节点的类型名，每条链路都必须包含。
const NodeProfileFilter = "filter.profile"

// Deps 是构建 Node 所需的运行期依赖，由引擎在加载完数据与模型后填充。
type Deps struct {
	Catalog *recall.Catalog
	// Scorer 为 nil 表示模型不可用，rank.hybrid 走兜底打分
	Scorer   model.Scorer
	Reranker rerank.Reranker
	// Popularity 为兜底打分的热度表
	Popularity rank.Popularity
	Profiles   *filter.ProfilePipeline
	// Store 提供黑名单（可选）
	Store    core.Store
	Recorder *metrics.Recorder
	Logger   zerolog.Logger
	Serve    ServeConfig
}

// DefaultFactory 返回注册了全部内置 Node 的工厂，builder 闭包捕获 deps。
func DefaultFactory(deps Deps) *pipeline.NodeFactory {
	f := pipeline.NewNodeFactory()

	// Recall
	f.Register("recall.catalog", func(map[string]any) (pipeline.Node, error) {
		if deps.Catalog == nil {
			return nil, errors.New("recall.catalog: no catalog loaded")
		}
		return deps.Catalog, nil
	})

	// Filter
	f.Register(NodeProfileFilter, func(map[string]any) (pipeline.Node, error) {
		pp := deps.Profiles
		if pp == nil {
			pp = filter.NewProfilePipeline(deps.Logger)
		}
		n := &filter.ProfileNode{Pipeline: pp}
		if deps.Recorder != nil {
			n.Observe = func(c filter.StageCount) { deps.Recorder.ObserveStage(c.Stage, c.In, c.Out) }
		}
		return n, nil
	})
	f.Register("filter.expr", func(cfg map[string]any) (pipeline.Node, error) {
		rules := conv.Strings(cfg, "rules")
		if rules == nil {
			rules = deps.Serve.Rules
		}
		ef, err := filter.NewExprFilter(rules)
		if err != nil {
			return nil, err
		}
		return &filter.FilterNode{Filters: []filter.Filter{ef}, Logger: deps.Logger}, nil
	})
	f.Register("filter.blacklist", func(cfg map[string]any) (pipeline.Node, error) {
		var ids []int64
		if raw, ok := cfg["ids"].([]any); ok {
			for _, v := range raw {
				if id, ok := conv.ToInt(v); ok {
					ids = append(ids, int64(id))
				}
			}
		}
		key := conv.String(cfg, "key", deps.Serve.BlacklistKey)
		bf := filter.NewBlacklistFilter(ids, deps.Store, key)
		return &filter.FilterNode{Filters: []filter.Filter{bf}, Logger: deps.Logger}, nil
	})

	// Rank
	f.Register("rank.hybrid", func(cfg map[string]any) (pipeline.Node, error) {
		n := &rank.HybridNode{
			Scorer:   deps.Scorer,
			Fallback: rank.NewFallbackScorer(deps.Popularity, conv.Float(cfg, "min_overlap_ratio", deps.Serve.MinOverlapRatio)),
			Logger:   deps.Logger,
		}
		if deps.Recorder != nil {
			n.Observe = deps.Recorder.ObserveFallback
		}
		return n, nil
	})
	f.Register("rank.fallback", func(cfg map[string]any) (pipeline.Node, error) {
		return &rank.FallbackNode{
			Scorer: rank.NewFallbackScorer(deps.Popularity, conv.Float(cfg, "min_overlap_ratio", deps.Serve.MinOverlapRatio)),
		}, nil
	})

	// ReRank
	f.Register("rerank.context", func(cfg map[string]any) (pipeline.Node, error) {
		return &rerank.ContextNode{
			Reranker:   deps.Reranker,
			TopK:       conv.Int(cfg, "top_k", deps.Serve.TopK),
			PoolFactor: conv.Int(cfg, "pool_factor", deps.Serve.RerankPoolFactor),
		}, nil
	})
	f.Register("rerank.topn", func(cfg map[string]any) (pipeline.Node, error) {
		return &rerank.TopNNode{N: conv.Int(cfg, "n", deps.Serve.TopK)}, nil
	})

	// PostProcess
	f.Register("postprocess.explain", func(map[string]any) (pipeline.Node, error) {
		return &rerank.ExplainNode{}, nil
	})
	return f
}

// PipelineConfig 读取 serve.pipeline_file，未配置时使用 DefaultPipelineYAML。
func (c *Config) PipelineConfig() (*pipeline.Config, error) {
	if c.Serve.PipelineFile == "" {
		return pipeline.ParseYAML([]byte(DefaultPipelineYAML))
	}
	if _, err := os.Stat(c.Serve.PipelineFile); err != nil {
		return nil, fmt.Errorf("pipeline file: %w", err)
	}
	return pipeline.LoadFromYAML(c.Serve.PipelineFile)
}

// ValidatePipelineConfig 校验配置中的 node 类型均已在 f 中注册；有未支持类型时返回包含已支持列表的错误。
// 链路必须包含 filter.profile，且它之前只能是召回与过滤节点：过敏原排除不能被自定义链路绕过或排在打分之后。
func ValidatePipelineConfig(cfg *pipeline.Config, f *pipeline.NodeFactory) error {
	if cfg == nil {
		return nil
	}
	supported := f.Types()
	for _, nc := range cfg.Pipeline.Nodes {
		if !slices.Contains(supported, nc.Type) {
			return fmt.Errorf("unsupported node type %q (supported: %v)", nc.Type, supported)
		}
	}
	for i, nc := range cfg.Pipeline.Nodes {
		if nc.Type == NodeProfileFilter {
			return nil
		}
		if !strings.HasPrefix(nc.Type, "recall.") && !strings.HasPrefix(nc.Type, "filter.") {
			return fmt.Errorf("node %d %q runs before %s; only recall and filter nodes may precede it", i, nc.Type, NodeProfileFilter)
		}
	}
	return fmt.Errorf("pipeline %q has no %s node", cfg.Pipeline.Name, NodeProfileFilter)
}
