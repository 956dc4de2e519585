package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/engine"
)

const testRecipes = `[
  {"recipe_id": 1, "name": "Tofu Bowl", "ingredients": ["tofu", "rice", "scallion"], "nutrition": {"calories": 420}, "prep_time": 20},
  {"recipe_id": 2, "name": "Chicken Rice", "ingredients": ["chicken", "rice", "ginger"], "nutrition": {"calories": 650}, "prep_time": 35},
  {"recipe_id": 3, "name": "Beef Stew", "ingredients": ["beef", "potato", "carrot"], "nutrition": {"calories": 800}, "prep_time": 120}
]`

const testInteractions = `[
  {"user_id": 1, "recipe_id": 2, "timestamp": "2024-01-01T10:00:00Z"},
  {"user_id": 1, "recipe_id": 3, "timestamp": "2024-01-02T10:00:00Z"},
  {"user_id": 2, "recipe_id": 1, "timestamp": "2024-01-01T10:00:00Z"},
  {"user_id": 2, "recipe_id": 2, "timestamp": "2024-01-03T10:00:00Z"}
]`

// setupCLI 在临时目录写入配置和数据文件，返回配置路径。
func setupCLI(t *testing.T) (cfgPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	cfg := "log:\n  level: disabled\n" +
		"store:\n  backend: sqlite\n" +
		"data:\n  sqlite_path: " + filepath.Join(dir, "saveeat.db") + "\n" +
		"artifacts:\n  graph_path: " + filepath.Join(dir, "graph.bin") + "\n" +
		"  checkpoint_path: " + filepath.Join(dir, "model.ckpt") + "\n"
	cfgPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "recipes.json"), []byte(testRecipes), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "interactions.json"), []byte(testInteractions), 0o644))
	return cfgPath, dir
}

func run(t *testing.T, cfgPath, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeResponse(t *testing.T, out string) engine.Response {
	t.Helper()
	var resp engine.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestCLIImportGraphRecommend(t *testing.T) {
	cfgPath, dir := setupCLI(t)

	out, err := run(t, cfgPath, "", "import",
		"--recipes", filepath.Join(dir, "recipes.json"),
		"--interactions", filepath.Join(dir, "interactions.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 3 recipes")
	assert.Contains(t, out, "Imported 4 interactions")

	out, err = run(t, cfgPath, "", "build-graph")
	require.NoError(t, err)
	assert.Contains(t, out, "2 users, 3 recipes")
	_, err = os.Stat(filepath.Join(dir, "graph.bin"))
	require.NoError(t, err)

	out, err = run(t, cfgPath, "", "recommend", "--user", "1", "--ingredients", "rice,tofu", "--top-k", "3")
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	require.NotEmpty(t, resp.RecipeIDs)
	assert.Equal(t, int64(1), resp.RecipeIDs[0])
	assert.NotEmpty(t, resp.Fallback)
	assert.NotEmpty(t, resp.RequestID)

	metricsPath := filepath.Join(dir, "saveeat.prom")
	out, err = run(t, cfgPath, "", "--metrics-file", metricsPath, "recommend", "--user", "1", "--diet", "vegan")
	require.NoError(t, err)
	resp = decodeResponse(t, out)
	assert.Equal(t, []int64{1}, resp.RecipeIDs)

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "saveeat_requests_total")
}

func TestCLIImportRequiresInput(t *testing.T) {
	cfgPath, _ := setupCLI(t)
	_, err := run(t, cfgPath, "", "import")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to import")
}

func TestCLIProfileLifecycle(t *testing.T) {
	cfgPath, dir := setupCLI(t)
	_, err := run(t, cfgPath, "", "import", "--recipes", filepath.Join(dir, "recipes.json"))
	require.NoError(t, err)

	_, err = run(t, cfgPath, "", "profile", "get", "7")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrProfileNotFound)

	out, err := run(t, cfgPath, `{"dietary_restrictions": ["vegan"], "allergies": ["Peanut"]}`, "profile", "set", "7", "--create")
	require.NoError(t, err)
	var p core.DietaryProfile
	require.NoError(t, json.Unmarshal([]byte(out), &p), out)
	assert.Equal(t, int64(7), p.UserID)
	assert.Equal(t, []string{"vegan"}, p.DietaryRestrictions)
	assert.Equal(t, []string{"peanut"}, p.Allergies)

	_, err = run(t, cfgPath, `{}`, "profile", "set", "7", "--create")
	assert.ErrorIs(t, err, core.ErrProfileExists)

	out, err = run(t, cfgPath, "", "recommend", "--user", "7", "--use-profile")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, decodeResponse(t, out).RecipeIDs)

	out, err = run(t, cfgPath, "", "profile", "patch", "7", `{"max_calories": 500}`)
	require.NoError(t, err)
	p = core.DietaryProfile{}
	require.NoError(t, json.Unmarshal([]byte(out), &p), out)
	require.NotNil(t, p.MaxCalories)
	assert.InDelta(t, 500, *p.MaxCalories, 1e-9)
	assert.Equal(t, []string{"vegan"}, p.DietaryRestrictions)

	_, err = run(t, cfgPath, "", "profile", "patch", "7", `{"favourite_color": "red"}`)
	require.Error(t, err)

	_, err = run(t, cfgPath, "", "profile", "patch", "7", `{"dietary_restrictions": ["keto"]}`)
	require.Error(t, err)

	out, err = run(t, cfgPath, "", "profile", "delete", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted profile 7")

	_, err = run(t, cfgPath, "", "profile", "get", "7")
	assert.ErrorIs(t, err, core.ErrProfileNotFound)
}

func TestParseUserID(t *testing.T) {
	id, err := parseUserID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = parseUserID("-1")
	assert.Error(t, err)
	_, err = parseUserID("abc")
	assert.Error(t, err)
}
