package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rushteam/saveeat/engine"
	"github.com/rushteam/saveeat/graph"
	"github.com/rushteam/saveeat/logging"
	"github.com/rushteam/saveeat/metrics"
	"github.com/rushteam/saveeat/model"
	"github.com/rushteam/saveeat/nn"
	"github.com/rushteam/saveeat/train"
)

func newTrainCmd(a *app) *cobra.Command {
	var epochs int
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the hybrid graph model and contextual reranker",
		Long:  `Trains on the graph artifact with leave-last-out validation and writes the best checkpoint to artifacts.checkpoint_path.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			g, err := graph.LoadFile(a.cfg.Artifacts.GraphPath)
			if err != nil {
				return fmt.Errorf("%w (run build-graph first)", err)
			}
			recipes, err := db.GetRecipes(ctx, nil)
			if err != nil {
				return err
			}
			interactions, err := db.GetInteractions(ctx)
			if err != nil {
				return err
			}

			mcfg := a.cfg.ModelConfig()
			var text *nn.Tensor
			if mcfg.TextDim > 0 {
				enc, err := engine.NewTextEncoder(a.cfg.Text)
				if err != nil {
					return err
				}
				if text, err = engine.EncodeRecipes(ctx, enc, g, recipes); err != nil {
					return err
				}
			}
			m, err := model.New(mcfg, g, a.cfg.Train.Seed)
			if err != nil {
				return err
			}

			tcfg := a.cfg.TrainConfig()
			if epochs > 0 {
				tcfg.Epochs = epochs
			}
			rec := metrics.NewRecorder()
			tr := &train.Trainer{
				Config:       tcfg,
				Model:        m,
				Graph:        g,
				Interactions: interactions,
				Recipes:      recipes,
				Text:         text,
				Logger:       logging.Component("train"),
				OnEpoch: func(s train.EpochStats) {
					rec.ObserveEpoch(s.Metrics)
					cmd.Printf("epoch %3d  loss %.4f  lr %.2e  %s\n", s.Epoch, s.Loss, s.LR, formatMetrics(s.Metrics))
				},
			}
			res, err := tr.Fit(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("Best epoch %d: %s = %.4f", res.BestEpoch, res.MetricName, res.BestMetric)
			if res.Stopped {
				cmd.Print(" (early stopped)")
			}
			cmd.Printf("\nCheckpoint written to %s\n", tcfg.CheckpointPath)
			return a.writeMetrics(rec)
		},
	}
	cmd.Flags().IntVar(&epochs, "epochs", 0, "Override train.epochs")
	return cmd
}

func formatMetrics(m train.Metrics) string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	out := ""
	for i, k := range names {
		if i > 0 {
			out += "  "
		}
		out += fmt.Sprintf("%s %.4f", k, m[k])
	}
	return out
}
