package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rushteam/saveeat/core"
)

func newImportCmd(a *app) *cobra.Command {
	var recipesPath, interactionsPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import recipes and interactions into the SQLite store",
		Long:  `Reads JSON arrays of recipe and interaction records and writes them to data.sqlite_path. Recipes with an existing id are replaced; interactions are appended.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if recipesPath == "" && interactionsPath == "" {
				return fmt.Errorf("nothing to import: pass --recipes and/or --interactions")
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			if recipesPath != "" {
				var recipes []core.Recipe
				if err := readJSON(recipesPath, &recipes); err != nil {
					return err
				}
				if err := db.InsertRecipes(ctx, recipes); err != nil {
					return err
				}
				cmd.Printf("Imported %d recipes\n", len(recipes))
			}
			if interactionsPath != "" {
				var interactions []core.Interaction
				if err := readJSON(interactionsPath, &interactions); err != nil {
					return err
				}
				if err := db.AppendInteractions(ctx, interactions); err != nil {
					return err
				}
				cmd.Printf("Imported %d interactions\n", len(interactions))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&recipesPath, "recipes", "", "JSON file with an array of recipes")
	cmd.Flags().StringVar(&interactionsPath, "interactions", "", "JSON file with an array of interactions")
	return cmd
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
