package main

import (
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/engine"
	"github.com/rushteam/saveeat/metrics"
	"github.com/rushteam/saveeat/rank"
	"github.com/rushteam/saveeat/store"
)

func newRecommendCmd(a *app) *cobra.Command {
	var (
		req         core.RecommendRequest
		maxTime     float64
		maxCalories float64
	)
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend recipes for a user",
		Long:  `Loads the catalog, graph and checkpoint, runs one recommendation request and prints the JSON response. Without a trained model the fallback scorer is used.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if cmd.Flags().Changed("max-time") {
				req.MaxTime = &maxTime
			}
			if cmd.Flags().Changed("max-calories") {
				req.MaxCalories = &maxCalories
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			kv, closeKV, err := a.openKV(ctx, db)
			if err != nil {
				return err
			}
			defer closeKV() //nolint:errcheck

			rec := metrics.NewRecorder()
			opts := []engine.Option{
				engine.WithProfiles(store.NewProfileStore(kv)),
				engine.WithBlacklistStore(kv),
				engine.WithRecorder(rec),
			}
			if a.cfg.Store.Backend != "sqlite" {
				pop, err := store.LoadPopularity(ctx, kv)
				if err != nil {
					return err
				}
				if len(pop) > 0 {
					opts = append(opts, engine.WithPopularity(rank.Popularity(pop)))
				}
			}
			eng, err := engine.Load(ctx, a.cfg, db, opts...)
			if err != nil {
				return err
			}
			resp, err := eng.Recommend(ctx, &req)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(out))
			return a.writeMetrics(rec)
		},
	}
	f := cmd.Flags()
	f.Int64VarP(&req.UserID, "user", "u", 0, "User id")
	f.StringSliceVarP(&req.AvailableIngredients, "ingredients", "i", nil, "Available ingredients (comma separated)")
	f.Float64Var(&maxTime, "max-time", 0, "Maximum preparation time in minutes")
	f.Float64Var(&maxCalories, "max-calories", 0, "Maximum calories")
	f.StringSliceVar(&req.DietaryPreferences, "diet", nil, "Dietary restrictions: vegetarian, vegan, gluten-free, dairy-free")
	f.IntVarP(&req.TopK, "top-k", "k", 0, "Number of recipes (default serve.top_k)")
	f.BoolVar(&req.UseProfile, "use-profile", false, "Apply the stored dietary profile")
	return cmd
}
