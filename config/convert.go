package config

import (
	"github.com/rushteam/saveeat/feature"
	"github.com/rushteam/saveeat/model"
	"github.com/rushteam/saveeat/train"
)

// ModelConfig 返回模型结构；文本分支维度取 text.dim。
func (c *Config) ModelConfig() model.Config {
	return model.Config{
		EmbeddingDim:  c.Model.EmbeddingDim,
		HiddenDim:     c.Model.HiddenDim,
		Layers:        c.Model.Layers,
		Heads:         c.Model.Heads,
		Dropout:       c.Model.Dropout,
		TextDim:       c.Text.Dim,
		RerankHidden:  append([]int(nil), c.Model.RerankHidden...),
		ContextDim:    feature.ContextDim,
		NegativeSlope: c.Model.NegativeSlope,
	}
}

// TrainConfig 返回训练超参，检查点写到 artifacts.checkpoint_path。
func (c *Config) TrainConfig() train.Config {
	t := c.Train
	return train.Config{
		Epochs:                t.Epochs,
		BatchSize:             t.BatchSize,
		LearningRate:          t.LearningRate,
		WeightDecay:           t.WeightDecay,
		Negatives:             t.Negatives,
		SchedulerFactor:       t.SchedulerFactor,
		SchedulerPatience:     t.SchedulerPatience,
		MinLR:                 t.MinLR,
		EarlyStoppingPatience: t.EarlyStoppingPatience,
		Seed:                  t.Seed,
		EvalK:                 append([]int(nil), t.EvalK...),
		ContextRate:           t.ContextRate,
		CheckpointPath:        c.Artifacts.CheckpointPath,
	}
}
