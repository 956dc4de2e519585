package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/graph"
	"github.com/rushteam/saveeat/nn"
)

// Model 把图模型与重排网络绑定在同一组参数上，联合训练、联合存档。
type Model struct {
	Config   Config
	Params   *nn.ParamSet
	GNN      *HybridGNN
	Reranker *ContextReranker
}

// New 按 cfg 在图 g 上创建模型，seed 固定参数初始化。
func New(cfg Config, g *graph.Graph, seed uint64) (*Model, error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	ps := nn.NewParamSet()
	gnn, err := NewHybridGNN(cfg, g, ps, rng)
	if err != nil {
		return nil, err
	}
	rr, err := NewContextReranker(cfg.ContextDim, cfg.RerankHidden, cfg.Dropout, ps, rng)
	if err != nil {
		return nil, err
	}
	return &Model{Config: cfg, Params: ps, GNN: gnn, Reranker: rr}, nil
}

// Embeddings 是推理期的只读向量表，请求之间共享，无需加锁。
type Embeddings struct {
	graph   *graph.Graph
	gnn     *HybridGNN
	users   *nn.Tensor
	recipes *nn.Tensor
}

// Embed 以推理模式（无 dropout）计算全部用户与菜谱向量。
func (m *Model) Embed(g *graph.Graph, text *nn.Tensor) *Embeddings {
	u, r := m.GNN.Embed(g, text, nil)
	return &Embeddings{graph: g, gnn: m.GNN, users: u.Detach(), recipes: r.Detach()}
}

func (e *Embeddings) Name() string { return "hybrid_gnn" }

// User 返回用户向量；不在图中返回 false。
func (e *Embeddings) User(userID int64) ([]float64, bool) {
	i, ok := e.graph.Users().Lookup(userID)
	if !ok {
		return nil, false
	}
	return e.users.Row(i), true
}

// HasUser 用户是否在图中。
func (e *Embeddings) HasUser(userID int64) bool {
	_, ok := e.graph.Users().Lookup(userID)
	return ok
}

// Recipe 返回菜谱向量；不在图中返回 false。
func (e *Embeddings) Recipe(recipeID int64) ([]float64, bool) {
	i, ok := e.graph.Recipes().Lookup(recipeID)
	if !ok {
		return nil, false
	}
	return e.recipes.Row(i), true
}

// ScoreByID 计算 (user, recipe) 的模型分数；任一方冷启动时返回 core.ErrColdStart。
func (e *Embeddings) ScoreByID(userID, recipeID int64) (float64, error) {
	u, ok := e.User(userID)
	if !ok {
		return 0, fmt.Errorf("user %d: %w", userID, core.ErrColdStart)
	}
	r, ok := e.Recipe(recipeID)
	if !ok {
		return 0, fmt.Errorf("recipe %d: %w", recipeID, core.ErrColdStart)
	}
	return e.gnn.Score(u, r), nil
}

var _ Scorer = (*Embeddings)(nil)
