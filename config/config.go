package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/rushteam/saveeat/logging"
)

// EnvPrefix 是环境变量前缀；嵌套字段用双下划线分隔，例如
// SAVEEAT_TRAIN__LEARNING_RATE=0.0005 覆盖 train.learning_rate。
const EnvPrefix = "SAVEEAT_"

// ConfigPathEnvVar 指定配置文件路径的环境变量。
const ConfigPathEnvVar = "SAVEEAT_CONFIG"

// Config 是 saveeat 的完整配置。
type Config struct {
	Log       logging.Config  `koanf:"log"`
	Model     ModelConfig     `koanf:"model"`
	Train     TrainConfig     `koanf:"train"`
	Serve     ServeConfig     `koanf:"serve"`
	Text      TextConfig      `koanf:"text"`
	Store     StoreConfig     `koanf:"store"`
	Data      DataConfig      `koanf:"data"`
	Artifacts ArtifactsConfig `koanf:"artifacts"`
}

// ModelConfig 图模型结构。
type ModelConfig struct {
	EmbeddingDim  int     `koanf:"embedding_dim" validate:"gt=0"`
	HiddenDim     int     `koanf:"hidden_dim" validate:"gt=0"`
	Layers        int     `koanf:"layers" validate:"gte=1,lte=8"`
	Heads         int     `koanf:"heads" validate:"gte=1"`
	Dropout       float64 `koanf:"dropout" validate:"gte=0,lt=1"`
	RerankHidden  []int   `koanf:"rerank_hidden" validate:"len=2,dive,gt=0"`
	NegativeSlope float64 `koanf:"negative_slope" validate:"gte=0,lt=1"`
}

// TrainConfig 离线训练。
type TrainConfig struct {
	Epochs                int     `koanf:"epochs" validate:"gt=0"`
	BatchSize             int     `koanf:"batch_size" validate:"gt=0"`
	LearningRate          float64 `koanf:"learning_rate" validate:"gt=0"`
	WeightDecay           float64 `koanf:"weight_decay" validate:"gte=0"`
	Negatives             int     `koanf:"negatives" validate:"gt=0"`
	SchedulerFactor       float64 `koanf:"scheduler_factor" validate:"gt=0,lt=1"`
	SchedulerPatience     int     `koanf:"scheduler_patience" validate:"gte=0"`
	MinLR                 float64 `koanf:"min_lr" validate:"gte=0"`
	EarlyStoppingPatience int     `koanf:"early_stopping_patience" validate:"gt=0"`
	Seed                  uint64  `koanf:"seed"`
	EvalK                 []int   `koanf:"eval_k" validate:"min=1,dive,gt=0"`
	ContextRate           float64 `koanf:"context_rate" validate:"gte=0,lte=1"`
}

// ServeConfig 请求期行为。
type ServeConfig struct {
	TopK             int      `koanf:"top_k" validate:"gt=0"`
	MaxTopK          int      `koanf:"max_top_k" validate:"gtefield=TopK"`
	RerankPoolFactor int      `koanf:"rerank_pool_factor" validate:"gte=1"`
	MinOverlapRatio  float64  `koanf:"min_overlap_ratio" validate:"gte=0,lte=1"`
	Rules            []string `koanf:"rules"`
	BlacklistKey     string   `koanf:"blacklist_key"`
	PipelineFile     string   `koanf:"pipeline_file"`
}

// TextConfig 文本编码。
type TextConfig struct {
	Backbone  string `koanf:"backbone" validate:"oneof=hashing torchserve"`
	Endpoint  string `koanf:"endpoint" validate:"omitempty,url"`
	ModelName string `koanf:"model_name"`
	Dim       int    `koanf:"dim" validate:"gt=0"`
	MaxLength int    `koanf:"max_length" validate:"gt=0"`
	BatchSize int    `koanf:"batch_size" validate:"gt=0"`
	Workers   int    `koanf:"workers" validate:"gt=0"`
	Timeout   int    `koanf:"timeout" validate:"gte=0"` // 秒
}

// StoreConfig 画像/黑名单/热度的 KV 后端。
type StoreConfig struct {
	Backend   string `koanf:"backend" validate:"oneof=memory redis sqlite"`
	RedisAddr string `koanf:"redis_addr" validate:"required_if=Backend redis"`
	RedisDB   int    `koanf:"redis_db" validate:"gte=0"`
	KeyPrefix string `koanf:"key_prefix"`
}

// DataConfig 持久化边界。
type DataConfig struct {
	SQLitePath string `koanf:"sqlite_path" validate:"required"`
}

// ArtifactsConfig 图与模型存档路径。
type ArtifactsConfig struct {
	GraphPath      string `koanf:"graph_path" validate:"required"`
	CheckpointPath string `koanf:"checkpoint_path" validate:"required"`
}

// Default 返回默认配置。
func Default() *Config {
	return &Config{
		Log: logging.Config{Level: "info", Format: "json", Timestamp: true},
		Model: ModelConfig{
			EmbeddingDim:  64,
			HiddenDim:     64,
			Layers:        2,
			Heads:         4,
			Dropout:       0.3,
			RerankHidden:  []int{32, 16},
			NegativeSlope: 0.2,
		},
		Train: TrainConfig{
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
		},
		Serve: ServeConfig{
			TopK:             10,
			MaxTopK:          100,
			RerankPoolFactor: 2,
			BlacklistKey:     "blacklist:recipes",
		},
		Text: TextConfig{
			Backbone:  "hashing",
			ModelName: "minilm",
			Dim:       384,
			MaxLength: 128,
			BatchSize: 64,
			Workers:   4,
			Timeout:   30,
		},
		Store:     StoreConfig{Backend: "sqlite", RedisDB: 0},
		Data:      DataConfig{SQLitePath: "data/saveeat.db"},
		Artifacts: ArtifactsConfig{GraphPath: "artifacts/graph.json", CheckpointPath: "artifacts/model.ckpt.json"},
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate 按 struct tag 校验配置。
func (c *Config) Validate() error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	if c.Text.Backbone == "torchserve" && c.Text.Endpoint == "" {
		return errors.New("invalid config: text.endpoint is required for the torchserve backbone")
	}
	if c.Model.RerankHidden[0] < c.Model.RerankHidden[1] {
		return fmt.Errorf("invalid config: model.rerank_hidden must be decreasing, got %v", c.Model.RerankHidden)
	}
	if c.Model.EmbeddingDim%c.Model.Heads != 0 || c.Model.HiddenDim%c.Model.Heads != 0 {
		return fmt.Errorf("invalid config: model dims must be divisible by heads (%d)", c.Model.Heads)
	}
	return nil
}

// Load 依次叠加：默认值 → YAML 文件（path 为空时取 SAVEEAT_CONFIG，仍为空则跳过）→ 环境变量。
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := splitLists(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey: SAVEEAT_TRAIN__LEARNING_RATE -> train.learning_rate
func envKey(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

// listPaths 是环境变量里以逗号分隔的列表字段。
var listPaths = []string{"serve.rules", "train.eval_k", "model.rerank_hidden"}

func splitLists(k *koanf.Koanf) error {
	for _, path := range listPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var parts []string
		sep := ","
		if path == "serve.rules" {
			// CEL 表达式本身可能含逗号
			sep = ";"
		}
		for _, p := range strings.Split(s, sep) {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}
