package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/pipeline"
	"github.com/rushteam/saveeat/recall"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	cfg, err := Load("")
	require.NoError(t, err)
	def := Default()
	assert.Equal(t, def.Model, cfg.Model)
	assert.Equal(t, def.Train, cfg.Train)
	assert.Equal(t, def.Text, cfg.Text)
	assert.Equal(t, def.Artifacts, cfg.Artifacts)
	assert.Equal(t, def.Serve.TopK, cfg.Serve.TopK)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saveeat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
train:
  epochs: 7
  eval_k: [5]
serve:
  top_k: 3
  rules:
    - item.prep_time <= 45.0
store:
  backend: memory
`), 0o644))

	t.Setenv("SAVEEAT_TRAIN__LEARNING_RATE", "0.0005")
	t.Setenv("SAVEEAT_MODEL__RERANK_HIDDEN", "16,8")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Train.Epochs)
	assert.Equal(t, []int{5}, cfg.Train.EvalK)
	assert.Equal(t, 0.0005, cfg.Train.LearningRate)
	assert.Equal(t, []int{16, 8}, cfg.Model.RerankHidden)
	assert.Equal(t, 3, cfg.Serve.TopK)
	assert.Equal(t, []string{"item.prep_time <= 45.0"}, cfg.Serve.Rules)
	assert.Equal(t, "memory", cfg.Store.Backend)
	// 未覆盖的字段保留默认值
	assert.Equal(t, 512, cfg.Train.BatchSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero epochs", func(c *Config) { c.Train.Epochs = 0 }},
		{"unknown backbone", func(c *Config) { c.Text.Backbone = "bert" }},
		{"torchserve without endpoint", func(c *Config) { c.Text.Backbone = "torchserve" }},
		{"redis without addr", func(c *Config) { c.Store.Backend = "redis" }},
		{"increasing rerank hidden", func(c *Config) { c.Model.RerankHidden = []int{8, 16} }},
		{"dims not divisible by heads", func(c *Config) { c.Model.Heads = 3 }},
		{"max top k below top k", func(c *Config) { c.Serve.MaxTopK = 5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultPipelineBuilds(t *testing.T) {
	deps := Deps{
		Catalog: recall.NewCatalog([]core.Recipe{{ID: 1, Ingredients: []string{"tomato"}}}),
		Logger:  zerolog.Nop(),
		Serve:   Default().Serve,
	}
	f := DefaultFactory(deps)
	pc, err := Default().PipelineConfig()
	require.NoError(t, err)
	require.NoError(t, ValidatePipelineConfig(pc, f))

	p, err := pc.BuildPipeline(f)
	require.NoError(t, err)
	assert.Len(t, p.Nodes, 8)

	rctx := &core.RecommendContext{UserID: 1, Request: &core.RecommendRequest{UserID: 1, TopK: 5}}
	out, err := p.Run(context.Background(), rctx, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].ID)
}

func TestValidatePipelineRejectsUnknownType(t *testing.T) {
	pc, err := Default().PipelineConfig()
	require.NoError(t, err)
	pc.Pipeline.Nodes[0].Type = "recall.ann"
	err = ValidatePipelineConfig(pc, DefaultFactory(Deps{}))
	assert.ErrorContains(t, err, `unsupported node type "recall.ann"`)
}

func TestValidatePipelineRequiresProfileFilterFirst(t *testing.T) {
	f := DefaultFactory(Deps{})
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "custom order",
			yaml: "pipeline:\n  name: custom\n  nodes:\n    - type: recall.catalog\n    - type: filter.profile\n    - type: filter.blacklist\n    - type: rank.fallback\n    - type: rerank.topn\n",
		},
		{
			name:    "missing profile filter",
			yaml:    "pipeline:\n  name: bare\n  nodes:\n    - type: recall.catalog\n    - type: rerank.topn\n      config:\n        n: 1\n",
			wantErr: `pipeline "bare" has no filter.profile node`,
		},
		{
			name:    "profile filter after ranking",
			yaml:    "pipeline:\n  name: late\n  nodes:\n    - type: recall.catalog\n    - type: rank.hybrid\n    - type: filter.profile\n",
			wantErr: `"rank.hybrid" runs before filter.profile`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := pipeline.ParseYAML([]byte(tt.yaml))
			require.NoError(t, err)
			err = ValidatePipelineConfig(pc, f)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestPipelineConfigFromFile(t *testing.T) {
	cfg := Default()
	cfg.Serve.PipelineFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := cfg.PipelineConfig()
	assert.ErrorContains(t, err, "pipeline file")

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  name: custom\n  nodes:\n    - type: recall.catalog\n    - type: filter.profile\n"), 0o644))
	cfg.Serve.PipelineFile = path
	pc, err := cfg.PipelineConfig()
	require.NoError(t, err)
	assert.Equal(t, "custom", pc.Pipeline.Name)
	assert.Len(t, pc.Pipeline.Nodes, 2)
}
