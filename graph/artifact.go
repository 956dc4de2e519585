package graph

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/rushteam/saveeat/pkg/utils"
)

// ArtifactVersion 是图产物的 schema 版本。
const ArtifactVersion = 1

type artifact struct {
	Version          int       `json:"version"`
	Dim              int       `json:"dim"`
	Users            []int64   `json:"users"`
	Recipes          []int64   `json:"recipes"`
	Ingredients      []string  `json:"ingredients"`
	UserRecipe       Edges     `json:"user_recipe"`
	RecipeIngredient Edges     `json:"recipe_ingredient"`
	UserEmb          []float64 `json:"user_embedding"`
	RecipeEmb        []float64 `json:"recipe_embedding"`
	IngredientEmb    []float64 `json:"ingredient_embedding"`
	Popularity       []int     `json:"popularity"`
}

// Save 把图序列化为带版本号的 JSON。
func (g *Graph) Save(w io.Writer) error {
	a := artifact{
		Version:          ArtifactVersion,
		Dim:              g.dim,
		Users:            g.users.keys,
		Recipes:          g.recipes.keys,
		Ingredients:      g.ingredients.keys,
		UserRecipe:       g.userRecipe,
		RecipeIngredient: g.recipeIngredient,
		UserEmb:          g.userEmb,
		RecipeEmb:        g.recipeEmb,
		IngredientEmb:    g.ingredientEmb,
		Popularity:       g.popularity,
	}
	if err := json.NewEncoder(w).Encode(&a); err != nil {
		return fmt.Errorf("graph: encode artifact: %w", err)
	}
	return nil
}

// SaveFile 原子写入：先写临时文件再 rename。
func (g *Graph) SaveFile(path string) error {
	if err := utils.WriteFileAtomic(path, g.Save); err != nil {
		return fmt.Errorf("graph: save %s: %w", path, err)
	}
	return nil
}

// Load 读取 Save 写出的产物并校验一致性。
func Load(r io.Reader) (*Graph, error) {
	var a artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("graph: decode artifact: %w", err)
	}
	if a.Version != ArtifactVersion {
		return nil, fmt.Errorf("graph: unsupported artifact version %d (want %d)", a.Version, ArtifactVersion)
	}
	g := &Graph{
		dim:              a.Dim,
		users:            newIndex(a.Users),
		recipes:          newIndex(a.Recipes),
		ingredients:      newIndex(a.Ingredients),
		userRecipe:       a.UserRecipe,
		recipeIngredient: a.RecipeIngredient,
		userEmb:          a.UserEmb,
		recipeEmb:        a.RecipeEmb,
		ingredientEmb:    a.IngredientEmb,
		popularity:       a.Popularity,
	}
	if err := g.validate(len(a.Users), len(a.Recipes), len(a.Ingredients)); err != nil {
		return nil, err
	}
	return g, nil
}

// LoadFile 从文件读取图产物。
func LoadFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("graph: open artifact: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func (g *Graph) validate(nu, nr, ni int) error {
	if g.dim <= 0 {
		return fmt.Errorf("graph: artifact dim %d", g.dim)
	}
	if g.users.Len() != nu || g.recipes.Len() != nr || g.ingredients.Len() != ni {
		return fmt.Errorf("graph: artifact index tables are not sorted and unique")
	}
	if len(g.userEmb) != nu*g.dim || len(g.recipeEmb) != nr*g.dim || len(g.ingredientEmb) != ni*g.dim {
		return fmt.Errorf("graph: artifact embedding tables do not match index sizes")
	}
	if len(g.popularity) != nr {
		return fmt.Errorf("graph: artifact popularity has %d entries, want %d", len(g.popularity), nr)
	}
	if err := checkEdges("user_recipe", g.userRecipe, nu, nr); err != nil {
		return err
	}
	return checkEdges("recipe_ingredient", g.recipeIngredient, nr, ni)
}

func checkEdges(name string, e Edges, ns, nd int) error {
	if len(e.Dst) != len(e.Src) || len(e.Weight) != len(e.Src) {
		return fmt.Errorf("graph: %s edge arrays have different lengths", name)
	}
	for i := range e.Src {
		if e.Src[i] < 0 || e.Src[i] >= ns || e.Dst[i] < 0 || e.Dst[i] >= nd {
			return fmt.Errorf("graph: %s edge %d (%d->%d) out of range", name, i, e.Src[i], e.Dst[i])
		}
	}
	return nil
}
