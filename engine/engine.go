// Package engine 是推荐服务的应用上下文：启动时加载一次目录、图、模型与画像来源，
// 之后以只读方式被所有请求共享。
//
//	eng, err := engine.Load(ctx, cfg, provider, engine.WithRecorder(rec))
//	resp, err := eng.Recommend(ctx, &core.RecommendRequest{UserID: 1, TopK: 5})
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rushteam/saveeat/config"
	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/filter"
	"github.com/rushteam/saveeat/graph"
	"github.com/rushteam/saveeat/logging"
	"github.com/rushteam/saveeat/metrics"
	"github.com/rushteam/saveeat/model"
	"github.com/rushteam/saveeat/nn"
	"github.com/rushteam/saveeat/pipeline"
	"github.com/rushteam/saveeat/pkg/utils"
	"github.com/rushteam/saveeat/rank"
	"github.com/rushteam/saveeat/recall"
)

// ReasonNoMatch 是候选集为空且没有更具体原因时的说明。
const ReasonNoMatch = "no recipes matched the request"

// ProfileSource 是引擎读取画像的唯一入口；引擎从不修改画像。
type ProfileSource = core.ProfileSource

// Response 是一次推荐的结果。空结果不是错误，Reason 说明原因。
type Response struct {
	RequestID    string    `json:"request_id"`
	RecipeIDs    []int64   `json:"recipe_ids"`
	Scores       []float64 `json:"scores"`
	Explanations []string  `json:"explanations,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	// Fallback 非空表示本次未使用（或未完全使用）模型打分
	Fallback string `json:"fallback,omitempty"`
}

// Engine 持有推荐所需的全部只读状态。
type Engine struct {
	serve      config.ServeConfig
	catalog    *recall.Catalog
	graph      *graph.Graph
	model      *model.Model
	scorer     model.Scorer
	popularity rank.Popularity
	profiles   ProfileSource
	blacklist  core.Store
	pipeline   *pipeline.Pipeline
	recorder   *metrics.Recorder
	logger     zerolog.Logger

	pipelineConfig *pipeline.Config
	text           *nn.Tensor
}

// Option 配置 Engine。
type Option func(*Engine)

// WithModel 启用模型打分；text 为模型文本分支的输入（未启用文本融合时为 nil）。
func WithModel(m *model.Model, g *graph.Graph, text *nn.Tensor) Option {
	return func(e *Engine) {
		e.model, e.graph, e.text = m, g, text
	}
}

// WithPopularity 设置兜底打分的热度表。
func WithPopularity(p rank.Popularity) Option {
	return func(e *Engine) { e.popularity = p }
}

// WithProfiles 设置画像来源。
func WithProfiles(src ProfileSource) Option {
	return func(e *Engine) { e.profiles = src }
}

// WithBlacklistStore 设置存放黑名单的 Store。
func WithBlacklistStore(s core.Store) Option {
	return func(e *Engine) { e.blacklist = s }
}

// WithRecorder 设置指标记录器。
func WithRecorder(r *metrics.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithLogger 设置 logger，默认 logging.Component("engine")。
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithPipelineConfig 替换默认推荐链路。
func WithPipelineConfig(pc *pipeline.Config) Option {
	return func(e *Engine) { e.pipelineConfig = pc }
}

// New 以菜谱目录创建引擎。没有模型时所有请求走兜底打分。
func New(serve config.ServeConfig, recipes []core.Recipe, opts ...Option) (*Engine, error) {
	e := &Engine{
		serve:   serve,
		catalog: recall.NewCatalog(recipes),
		logger:  logging.Component("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.popularity == nil {
		e.popularity = rank.Popularity{}
	}

	deps := config.Deps{
		Catalog:    e.catalog,
		Popularity: e.popularity,
		Profiles:   filter.NewProfilePipeline(e.logger),
		Store:      e.blacklist,
		Recorder:   e.recorder,
		Logger:     e.logger,
		Serve:      serve,
	}
	if e.model != nil && e.graph != nil {
		emb := e.model.Embed(e.graph, e.text)
		e.scorer = emb
		deps.Scorer = emb
		deps.Reranker = e.model.Reranker
	}

	pc := e.pipelineConfig
	if pc == nil {
		var err error
		if pc, err = pipeline.ParseYAML([]byte(config.DefaultPipelineYAML)); err != nil {
			return nil, err
		}
	}
	factory := config.DefaultFactory(deps)
	if err := config.ValidatePipelineConfig(pc, factory); err != nil {
		return nil, err
	}
	p, err := pc.BuildPipeline(factory)
	if err != nil {
		return nil, err
	}
	p.Logger = e.logger
	if e.recorder != nil {
		p.Hooks = append(p.Hooks, e.recorder.NodeHook())
	}
	e.pipeline = p

	e.logger.Info().
		Int("recipes", e.catalog.Len()).
		Bool("model", e.scorer != nil).
		Int("nodes", len(p.Nodes)).
		Msg("engine ready")
	return e, nil
}

// ModelLoaded 是否使用模型打分。
func (e *Engine) ModelLoaded() bool { return e.scorer != nil }

// Catalog 返回菜谱目录。
func (e *Engine) Catalog() *recall.Catalog { return e.catalog }

// Recommend 执行一次推荐。
// 参数非法、读取画像失败或链路出现意外错误时返回错误；候选集被过滤清空时返回空结果与原因。
func (e *Engine) Recommend(ctx context.Context, req *core.RecommendRequest) (*Response, error) {
	start := time.Now()
	resp, err := e.recommend(ctx, req)
	if e.recorder != nil {
		outcome := metrics.OutcomeOK
		switch {
		case err != nil:
			outcome = metrics.OutcomeError
		case len(resp.RecipeIDs) == 0:
			outcome = metrics.OutcomeEmpty
		}
		e.recorder.ObserveRequest(outcome, time.Since(start))
	}
	return resp, err
}

func (e *Engine) recommend(ctx context.Context, req *core.RecommendRequest) (*Response, error) {
	if req == nil {
		return nil, core.NewInvalidInputError(core.ModuleService, errors.New("request is required"))
	}
	r := *req
	switch {
	case r.TopK < 0:
		return nil, core.NewInvalidInputError(core.ModuleService, fmt.Errorf("top_k must not be negative, got %d", r.TopK))
	case r.TopK == 0:
		r.TopK = e.serve.TopK
	case e.serve.MaxTopK > 0 && r.TopK > e.serve.MaxTopK:
		r.TopK = e.serve.MaxTopK
	}

	rctx := &core.RecommendContext{
		RequestID: uuid.NewString(),
		UserID:    r.UserID,
		Request:   &r,
	}
	log := e.logger.With().Str("request_id", rctx.RequestID).Int64("user_id", r.UserID).Logger()

	var stored *core.DietaryProfile
	if r.UseProfile && e.profiles != nil {
		p, err := e.profiles.GetUserProfile(ctx, r.UserID)
		if err != nil {
			log.Error().Err(err).Msg("load profile failed")
			return nil, fmt.Errorf("engine: load profile for user %d: %w", r.UserID, err)
		}
		stored = p
	}
	profile := stored.Tighten(r.MaxTime, r.MaxCalories, r.DietaryPreferences)
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if !profile.IsEmpty() {
		profile.UserID = r.UserID
		rctx.Profile = profile
	}

	items, err := e.pipeline.Run(ctx, rctx, nil)
	if err != nil {
		log.Error().Err(err).Msg("recommend failed")
		return nil, err
	}

	resp := &Response{
		RequestID:    rctx.RequestID,
		RecipeIDs:    make([]int64, 0, len(items)),
		Scores:       make([]float64, 0, len(items)),
		Explanations: make([]string, 0, len(items)),
	}
	for _, it := range items {
		resp.RecipeIDs = append(resp.RecipeIDs, it.ID)
		resp.Scores = append(resp.Scores, it.Score)
		resp.Explanations = append(resp.Explanations, it.Label(utils.LabelExplain))
	}
	if lbl, ok := rctx.GetLabel(utils.LabelFallback); ok {
		resp.Fallback = lbl.Value
	}
	if len(items) == 0 {
		resp.Reason = ReasonNoMatch
		if lbl, ok := rctx.GetLabel(utils.LabelEmptyReason); ok {
			resp.Reason = lbl.Value
		}
	}

	log.Info().
		Int("top_k", r.TopK).
		Int("returned", len(resp.RecipeIDs)).
		Bool("profile", rctx.Profile != nil).
		Str("fallback", resp.Fallback).
		Str("reason", resp.Reason).
		Msg("recommend")
	return resp, nil
}
