package train

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/feature"
	"github.com/rushteam/saveeat/graph"
	"github.com/rushteam/saveeat/model"
	"github.com/rushteam/saveeat/nn"
)

// MetricNegLoss 是没有验证集时跟踪的指标：训练损失取负，越大越好。
const MetricNegLoss = "neg_loss"

// Config 训练超参。
type Config struct {
	Epochs                int
	BatchSize             int
	LearningRate          float64
	WeightDecay           float64
	Negatives             int
	SchedulerFactor       float64
	SchedulerPatience     int
	MinLR                 float64
	EarlyStoppingPatience int
	Seed                  uint64
	EvalK                 []int
	ContextRate           float64
	// CheckpointPath 非空时，每次验证指标创新高都原子写入检查点
	CheckpointPath string
}

// DefaultConfig 返回默认训练超参。
func DefaultConfig() Config {
	return Config{
		Epochs:                50,
		BatchSize:             512,
		LearningRate:          1e-3,
		WeightDecay:           1e-4,
		Negatives:             5,
		SchedulerFactor:       0.5,
		SchedulerPatience:     3,
		MinLR:                 1e-6,
		EarlyStoppingPatience: 5,
		Seed:                  42,
		EvalK:                 []int{10, 20},
		ContextRate:           0.7,
	}
}

// EpochStats 是一轮训练的摘要。
type EpochStats struct {
	Epoch   int
	Loss    float64
	LR      float64
	Metrics Metrics
	// Metric 是被跟踪指标的取值
	Metric   float64
	Improved bool
	Elapsed  time.Duration
}

// Result 是训练结果；模型权重已恢复为最好的一轮。
type Result struct {
	BestEpoch  int
	BestMetric float64
	MetricName string
	History    []EpochStats
	Checkpoint *model.Checkpoint
	// Stopped 为 true 表示触发了早停
	Stopped bool
}

// Trainer 在图上联合训练混合图模型与上下文重排网络。
type Trainer struct {
	Config Config
	Model  *model.Model
	Graph  *graph.Graph
	// Interactions 用于留一切分，按时间戳决定验证样本
	Interactions []core.Interaction
	// Recipes 提供上下文特征所需的配料/备餐时间/营养
	Recipes []core.Recipe
	// Text 为 nr×TextDim 的文本向量，模型未启用文本融合时为 nil
	Text    *nn.Tensor
	Logger  zerolog.Logger
	OnEpoch func(EpochStats)
}

// Fit 执行训练循环，ctx 取消时在批次边界返回 ctx.Err()。
func (t *Trainer) Fit(ctx context.Context) (*Result, error) {
	if t.Model == nil || t.Graph == nil {
		return nil, core.NewInvalidInputError(core.ModuleTrain, errors.New("model and graph are required"))
	}
	cfg := t.Config
	if cfg.BatchSize <= 0 || cfg.Epochs <= 0 {
		return nil, core.NewInvalidInputError(core.ModuleTrain, fmt.Errorf("epochs (%d) and batch size (%d) must be positive", cfg.Epochs, cfg.BatchSize))
	}
	if t.Model.Config.ContextDim != feature.ContextDim {
		return nil, core.NewInvalidInputError(core.ModuleTrain, fmt.Errorf("model context dim %d, features produce %d", t.Model.Config.ContextDim, feature.ContextDim))
	}

	split := SplitLeaveLastOut(t.Graph, t.Interactions)
	if len(split.Train) == 0 {
		return nil, core.NewInvalidInputError(core.ModuleTrain, errors.New("no training interactions"))
	}
	heldOut := make(map[Pair]struct{}, len(split.Valid))
	for _, p := range split.Valid {
		heldOut[p] = struct{}{}
	}
	g := t.Graph.WithoutInteractions(func(u, r int) bool {
		_, ok := heldOut[Pair{User: u, Recipe: r}]
		return ok
	})

	nu, nr := g.Users().Len(), g.Recipes().Len()
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5eed))
	positives := split.TrainByUser(nu)
	negatives := negativeSampler(split, nu, nr, cfg.Negatives, rng)
	contexts := NewContextSampler(cfg.ContextRate, t.recipesByIndex(g), positives, rng)
	evaluator := NewEvaluator(nr, cfg.EvalK...)
	valid := split.ValidByUser()

	opt := nn.NewAdamW(t.Model.Params, cfg.LearningRate, cfg.WeightDecay)
	plateau := nn.NewPlateau(cfg.SchedulerFactor, cfg.SchedulerPatience, cfg.MinLR)

	metricName := MetricNegLoss
	if len(valid) > 0 {
		metricName = NDCGName(evaluator.Ks[0])
	}
	t.Logger.Info().
		Int("users", nu).Int("recipes", nr).
		Int("train", len(split.Train)).Int("valid", len(split.Valid)).
		Str("metric", metricName).
		Msg("training started")

	res := &Result{MetricName: metricName}
	bad := 0
	train := append([]Pair(nil), split.Train...)
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		start := time.Now()
		rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })

		var lossSum float64
		batches := 0
		for lo := 0; lo < len(train); lo += cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			hi := min(lo+cfg.BatchSize, len(train))
			lossSum += t.step(g, train[lo:hi], negatives, contexts, opt, rng)
			batches++
		}
		loss := lossSum / float64(batches)

		stats := EpochStats{Epoch: epoch, Loss: loss, LR: opt.LR}
		if len(valid) > 0 {
			stats.Metrics = evaluator.Evaluate(t.scoreFunc(g), valid, positives)
			stats.Metric = stats.Metrics[metricName]
		} else {
			stats.Metric = -loss
		}
		if res.Checkpoint == nil || stats.Metric > res.BestMetric {
			stats.Improved = true
			bad = 0
			res.BestEpoch, res.BestMetric = epoch, stats.Metric
			res.Checkpoint = t.Model.Snapshot(epoch, metricName, stats.Metric, opt)
			if cfg.CheckpointPath != "" {
				if err := model.SaveCheckpoint(cfg.CheckpointPath, res.Checkpoint); err != nil {
					return nil, err
				}
			}
		} else {
			bad++
		}
		stats.Elapsed = time.Since(start)
		res.History = append(res.History, stats)

		ev := t.Logger.Info().Int("epoch", epoch).Float64("loss", loss).Float64("lr", opt.LR).
			Float64(metricName, stats.Metric).Bool("improved", stats.Improved).Dur("elapsed", stats.Elapsed)
		for name, v := range stats.Metrics {
			ev = ev.Float64(name, v)
		}
		ev.Msg("epoch finished")
		if t.OnEpoch != nil {
			t.OnEpoch(stats)
		}

		if bad >= cfg.EarlyStoppingPatience {
			res.Stopped = true
			t.Logger.Info().Int("epoch", epoch).Int("best_epoch", res.BestEpoch).Msg("early stopping")
			break
		}
		if plateau.Step(stats.Metric, opt) {
			t.Logger.Info().Float64("lr", opt.LR).Msg("learning rate reduced")
		}
	}

	if err := t.Model.Restore(res.Checkpoint); err != nil {
		return nil, fmt.Errorf("train: restore best weights: %w", err)
	}
	return res, nil
}

// step 训练一个批次，返回损失。
// 损失是基础打分与上下文调整后打分两个 BCE 的平均，两部分共享图模型参数。
func (t *Trainer) step(g *graph.Graph, batch []Pair, neg *NegativeSampler, ctxs *ContextSampler, opt *nn.AdamW, rng *rand.Rand) float64 {
	users, recipes := t.Model.GNN.Embed(g, t.Text, rng)

	n := len(batch) * (1 + neg.Ratio)
	ui := make([]int, 0, n)
	ri := make([]int, 0, n)
	labels := make([]float64, 0, n)
	rows := make([][]float64, 0, n)

	byUser := make(map[int]feature.Context)
	for _, p := range batch {
		c, ok := byUser[p.User]
		if !ok {
			c = ctxs.Sample(p.User)
			byUser[p.User] = c
		}
		add := func(r int, label float64) {
			ui = append(ui, p.User)
			ri = append(ri, r)
			labels = append(labels, label)
			rows = append(rows, t.contextRow(c, ctxs.recipe(r)))
		}
		add(p.Recipe, 1)
		for _, r := range neg.Sample(p.User) {
			add(r, 0)
		}
	}

	base := t.Model.GNN.PairLogits(users, recipes, ui, ri)
	adj := t.Model.Reranker.Adjustment(nn.FromRows(rows, feature.ContextDim), rng)
	loss := nn.Scale(nn.Add(
		nn.BCEWithLogits(base, labels),
		nn.BCEWithLogits(nn.Add(base, adj), labels),
	), 0.5)
	nn.Backward(loss)
	opt.Step()
	return loss.Scalar()
}

func (t *Trainer) contextRow(c feature.Context, r *core.Recipe) []float64 {
	if r == nil {
		return make([]float64, feature.ContextDim)
	}
	return feature.Extract(c, r)
}

// scoreFunc 以推理模式（无 dropout）计算全部向量后逐个打分。
func (t *Trainer) scoreFunc(g *graph.Graph) ScoreFunc {
	users, recipes := t.Model.GNN.Embed(g, t.Text, nil)
	return func(u int, out []float64) {
		uv := users.Row(u)
		for r := range out {
			out[r] = t.Model.GNN.Score(uv, recipes.Row(r))
		}
	}
}

func (t *Trainer) recipesByIndex(g *graph.Graph) []*core.Recipe {
	out := make([]*core.Recipe, g.Recipes().Len())
	for i := range t.Recipes {
		if idx, ok := g.Recipes().Lookup(t.Recipes[i].ID); ok {
			out[idx] = &t.Recipes[i]
		}
	}
	return out
}

// negativeSampler 以用户的全部交互（含验证集）作为排除集。
func negativeSampler(split Split, numUsers, numRecipes, ratio int, rng *rand.Rand) *NegativeSampler {
	return NewNegativeSampler(numRecipes, ratio, split.InteractedByUser(numUsers), rng)
}
