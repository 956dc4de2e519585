package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rushteam/saveeat/config"
	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/logging"
	"github.com/rushteam/saveeat/metrics"
	"github.com/rushteam/saveeat/store"
)

// app 是一次命令执行的上下文，由根命令的 PersistentPreRunE 填充。
type app struct {
	configPath  string
	metricsFile string
	cfg         *config.Config
	logger      zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "saveeat",
		Short:         "Hybrid recipe recommender",
		Long:          `Import recipes and interactions, build the recipe graph, train the hybrid model and serve recommendations from the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			logging.Init(cfg.Log)
			a.logger = logging.Component("cli")
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to the YAML config file (default $SAVEEAT_CONFIG)")
	root.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file on exit")

	root.AddCommand(
		newImportCmd(a),
		newBuildGraphCmd(a),
		newTrainCmd(a),
		newRecommendCmd(a),
		newProfileCmd(a),
	)
	return root
}

// writeMetrics 在设置了 --metrics-file 时把指标写成 textfile collector 格式。
func (a *app) writeMetrics(rec *metrics.Recorder) error {
	if a.metricsFile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.metricsFile, rec.Registry()); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// openDB 打开 SQLite 持久化边界。
func (a *app) openDB() (*store.SQLiteStore, error) {
	return store.OpenSQLite(a.cfg.Data.SQLitePath)
}

// openKV 按 store.backend 打开画像/黑名单/热度所在的 KV。
// sqlite 后端直接复用 db。返回的 close 只关闭本函数新打开的连接。
func (a *app) openKV(ctx context.Context, db *store.SQLiteStore) (core.KeyValueStore, func() error, error) {
	noop := func() error { return nil }
	switch a.cfg.Store.Backend {
	case "sqlite":
		return db, noop, nil
	case "memory":
		s := store.NewMemoryStore()
		return s, s.Close, nil
	case "redis":
		opts := []store.RedisOption{}
		if a.cfg.Store.KeyPrefix != "" {
			opts = append(opts, store.WithKeyPrefix(a.cfg.Store.KeyPrefix))
		}
		s, err := store.NewRedisStore(ctx, a.cfg.Store.RedisAddr, a.cfg.Store.RedisDB, opts...)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
	}
}
