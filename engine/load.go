package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/saveeat/config"
	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/graph"
	"github.com/rushteam/saveeat/logging"
	"github.com/rushteam/saveeat/model"
	"github.com/rushteam/saveeat/nn"
	"github.com/rushteam/saveeat/rank"
	"github.com/rushteam/saveeat/service"
	"github.com/rushteam/saveeat/store"
	"github.com/rushteam/saveeat/text"
)

// NewTextEncoder 按配置创建文本编码器；骨干在进程内按名称缓存，只加载一次。
func NewTextEncoder(cfg config.TextConfig) (*text.Encoder, error) {
	logger := logging.Component("text")
	name := fmt.Sprintf("%s:%s:%d", cfg.Backbone, cfg.ModelName, cfg.Dim)
	bb, err := text.Shared().Get(name, func() (text.Backbone, error) {
		switch cfg.Backbone {
		case "", "hashing":
			return text.NewHashingBackbone(cfg.Dim, cfg.MaxLength), nil
		case "torchserve":
			svc, err := service.NewEmbeddingService(&service.ServiceConfig{
				Type:      service.ServiceTypeTorchServe,
				Endpoint:  cfg.Endpoint,
				ModelName: cfg.ModelName,
				Timeout:   cfg.Timeout,
			})
			if err != nil {
				return nil, err
			}
			return text.NewServiceBackbone(svc, cfg.ModelName, cfg.Dim, cfg.MaxLength), nil
		default:
			return nil, fmt.Errorf("text: unknown backbone %q", cfg.Backbone)
		}
	})
	if err != nil {
		return nil, err
	}
	return text.NewEncoder(bb, cfg.BatchSize, cfg.Workers, logger), nil
}

// EncodeRecipes 编码全部菜谱文本，返回按图下标排列的 nr×Dim 张量；目录中缺失的菜谱为零向量。
func EncodeRecipes(ctx context.Context, enc *text.Encoder, g *graph.Graph, recipes []core.Recipe) (*nn.Tensor, error) {
	vecs, err := enc.Encode(ctx, text.Documents(recipes))
	if err != nil {
		return nil, err
	}
	return textTensor(g, recipes, vecs, enc.Dim()), nil
}

func textTensor(g *graph.Graph, recipes []core.Recipe, vecs [][]float64, dim int) *nn.Tensor {
	out := nn.New(g.Recipes().Len(), dim)
	for i := range recipes {
		if idx, ok := g.Recipes().Lookup(recipes[i].ID); ok {
			copy(out.Row(idx), vecs[i])
		}
	}
	return out
}

// Load 从持久化边界与产物文件组装引擎。
//
// 图、检查点与菜谱文本编码并发加载。图或检查点缺失、或二者不匹配时不报错，
// 引擎以兜底打分运行；数据源读取失败与产物文件损坏才返回错误。
// 推荐链路取 serve.pipeline_file，文件缺失或链路不合法时返回错误。
func Load(ctx context.Context, cfg *config.Config, provider core.DataProvider, opts ...Option) (*Engine, error) {
	logger := logging.Component("engine")
	start := time.Now()

	pc, err := cfg.PipelineConfig()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	recipes, err := provider.GetRecipes(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("engine: load recipes: %w", err)
	}

	var (
		g       *graph.Graph
		ck      *model.Checkpoint
		encoded [][]float64
	)
	enc, err := NewTextEncoder(cfg.Text)
	if err != nil {
		return nil, err
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		var err error
		g, err = optional(graph.LoadFile(cfg.Artifacts.GraphPath))
		return err
	})
	grp.Go(func() error {
		if _, err := os.Stat(cfg.Artifacts.CheckpointPath); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		var err error
		ck, err = model.LoadCheckpoint(cfg.Artifacts.CheckpointPath)
		return err
	})
	grp.Go(func() error {
		var err error
		encoded, err = enc.Encode(gctx, text.Documents(recipes))
		return err
	})
	if err := grp.Wait(); err != nil {
		return nil, fmt.Errorf("engine: load artifacts: %w", err)
	}

	pop, err := loadPopularity(ctx, provider, g)
	if err != nil {
		return nil, err
	}
	all := []Option{WithPopularity(pop), WithProfiles(provider), WithLogger(logger), WithPipelineConfig(pc)}

	switch {
	case g == nil:
		logger.Warn().Str("path", cfg.Artifacts.GraphPath).Msg("graph artifact missing, serving with fallback scorer")
	case ck == nil:
		logger.Warn().Str("path", cfg.Artifacts.CheckpointPath).Msg("checkpoint missing, serving with fallback scorer")
	default:
		m, err := model.FromCheckpoint(ck, g)
		if err != nil {
			logger.Warn().Err(err).Msg("checkpoint rejected, serving with fallback scorer")
			break
		}
		var tt *nn.Tensor
		if m.Config.TextDim > 0 {
			if m.Config.TextDim != enc.Dim() {
				logger.Warn().Int("model", m.Config.TextDim).Int("encoder", enc.Dim()).
					Msg("text dim mismatch, serving with fallback scorer")
				break
			}
			tt = textTensor(g, recipes, encoded, enc.Dim())
		}
		all = append(all, WithModel(m, g, tt))
		logger.Info().Int("epoch", ck.Epoch).Str("metric", ck.MetricName).Float64("value", ck.Metric).Msg("model loaded")
	}

	e, err := New(cfg.Serve, recipes, append(all, opts...)...)
	if err != nil {
		return nil, err
	}
	logger.Info().Dur("elapsed", time.Since(start)).Msg("engine loaded")
	return e, nil
}

// optional 把“文件不存在”视为缺失而不是错误。
func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return v, err
}

// loadPopularity 优先读取 KV 中发布的热度，否则按交互记录计数。
func loadPopularity(ctx context.Context, provider core.DataProvider, g *graph.Graph) (rank.Popularity, error) {
	if kv, ok := provider.(core.KeyValueStore); ok {
		pop, err := store.LoadPopularity(ctx, kv)
		if err != nil {
			return nil, fmt.Errorf("engine: load popularity: %w", err)
		}
		if len(pop) > 0 {
			return rank.Popularity(pop), nil
		}
	}
	if g != nil {
		pop := make(rank.Popularity, g.Recipes().Len())
		for i := 0; i < g.Recipes().Len(); i++ {
			if c := g.Popularity(i); c > 0 {
				pop[g.Recipes().Key(i)] = c
			}
		}
		return pop, nil
	}
	interactions, err := provider.GetInteractions(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: load interactions: %w", err)
	}
	pop := make(rank.Popularity)
	for _, it := range interactions {
		pop[it.RecipeID]++
	}
	return pop, nil
}
