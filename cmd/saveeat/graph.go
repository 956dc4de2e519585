package main

import (
	"github.com/spf13/cobra"

	"github.com/rushteam/saveeat/graph"
	"github.com/rushteam/saveeat/logging"
	"github.com/rushteam/saveeat/store"
)

func newBuildGraphCmd(a *app) *cobra.Command {
	var dropDangling bool
	cmd := &cobra.Command{
		Use:   "build-graph",
		Short: "Build the user-recipe-ingredient graph artifact",
		Long:  `Builds the heterogeneous graph from the stored recipes and interactions, writes it to artifacts.graph_path and publishes recipe popularity to the configured store.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			recipes, err := db.GetRecipes(ctx, nil)
			if err != nil {
				return err
			}
			interactions, err := db.GetInteractions(ctx)
			if err != nil {
				return err
			}

			b := graph.NewBuilder(a.cfg.Model.EmbeddingDim, a.cfg.Train.Seed, logging.Component("graph"))
			b.DropDangling = dropDangling
			g, err := b.Build(interactions, recipes)
			if err != nil {
				return err
			}
			if err := g.SaveFile(a.cfg.Artifacts.GraphPath); err != nil {
				return err
			}

			kv, closeKV, err := a.openKV(ctx, db)
			if err != nil {
				return err
			}
			defer closeKV() //nolint:errcheck
			counts := make(map[int64]int, g.Recipes().Len())
			for i := 0; i < g.Recipes().Len(); i++ {
				counts[g.Recipes().Key(i)] = g.Popularity(i)
			}
			if err := store.PublishPopularity(ctx, kv, counts); err != nil {
				return err
			}

			cmd.Printf("Graph written to %s: %d users, %d recipes, %d ingredients, %d interactions\n",
				a.cfg.Artifacts.GraphPath, g.Users().Len(), g.Recipes().Len(), g.Ingredients().Len(), g.UserRecipe().Len())
			return nil
		},
	}
	cmd.Flags().BoolVar(&dropDangling, "drop-dangling", false, "Skip interactions that reference unknown recipes instead of aborting")
	return cmd
}
