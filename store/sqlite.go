package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/rushteam/saveeat/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS recipes (
	recipe_id   INTEGER PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	ingredients TEXT NOT NULL DEFAULT '[]',
	steps       TEXT NOT NULL DEFAULT '[]',
	calories    REAL,
	protein     REAL,
	carbs       REAL,
	fat         REAL,
	prep_time   REAL NOT NULL DEFAULT 0,
	tags        TEXT NOT NULL DEFAULT '[]',
	cuisine     TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS interactions (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id   INTEGER NOT NULL,
	recipe_id INTEGER NOT NULL,
	rating    REAL,
	ts        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions(user_id);
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER
);
CREATE TABLE IF NOT EXISTS zsets (
	key    TEXT NOT NULL,
	member TEXT NOT NULL,
	score  REAL NOT NULL,
	PRIMARY KEY (key, member)
);
`

// SQLiteStore 是基于 SQLite 的持久化边界：
//   - 实现 core.DataProvider（菜谱、交互、画像只读访问）
//   - 实现 core.KeyValueStore（kv 与 zsets 表），让画像、黑名单与热度可以落盘
//
// 推荐核心只读；写入方法仅供导入与 CLI 使用。
type SQLiteStore struct {
	db       *sql.DB
	path     string
	profiles *ProfileStore
}

var (
	_ core.DataProvider  = (*SQLiteStore)(nil)
	_ core.KeyValueStore = (*SQLiteStore)(nil)
)

// OpenSQLite 打开（必要时创建）数据库文件并建表。
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	s := &SQLiteStore{db: db, path: path}
	s.profiles = NewProfileStore(s)
	return s, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

// Path 返回数据库文件路径。
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Profiles 返回落在本库 kv 表上的画像存储。
func (s *SQLiteStore) Profiles() *ProfileStore { return s.profiles }

// GetUserProfile 不存在时返回 (nil, nil)。
func (s *SQLiteStore) GetUserProfile(ctx context.Context, userID int64) (*core.DietaryProfile, error) {
	return s.profiles.GetUserProfile(ctx, userID)
}

// GetRecipes 按 recipe_id 升序返回菜谱。
func (s *SQLiteStore) GetRecipes(ctx context.Context, filter *core.RecipeFilter) ([]core.Recipe, error) {
	q := `SELECT recipe_id, name, description, ingredients, steps, calories, protein, carbs, fat,
		prep_time, tags, cuisine FROM recipes`
	var args []any
	if filter != nil && len(filter.IDs) > 0 {
		q += " WHERE recipe_id IN (" + strings.TrimSuffix(strings.Repeat("?,", len(filter.IDs)), ",") + ")"
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	q += " ORDER BY recipe_id"
	if filter != nil && filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying recipes: %w", err)
	}
	defer rows.Close()

	var out []core.Recipe
	for rows.Next() {
		var (
			r                             core.Recipe
			ingredients, steps, tags      string
			calories, protein, carbs, fat sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &ingredients, &steps,
			&calories, &protein, &carbs, &fat, &r.PrepTime, &tags, &r.Cuisine); err != nil {
			return nil, fmt.Errorf("scanning recipe: %w", err)
		}
		if err := decodeList(ingredients, &r.Ingredients); err != nil {
			return nil, fmt.Errorf("recipe %d ingredients: %w", r.ID, err)
		}
		if err := decodeList(steps, &r.Steps); err != nil {
			return nil, fmt.Errorf("recipe %d steps: %w", r.ID, err)
		}
		if err := decodeList(tags, &r.Tags); err != nil {
			return nil, fmt.Errorf("recipe %d tags: %w", r.ID, err)
		}
		r.Nutrition = core.Nutrition{
			Calories: nullFloat(calories),
			Protein:  nullFloat(protein),
			Carbs:    nullFloat(carbs),
			Fat:      nullFloat(fat),
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetInteractions 按写入顺序返回全部交互。
func (s *SQLiteStore) GetInteractions(ctx context.Context) ([]core.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, recipe_id, rating, ts FROM interactions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying interactions: %w", err)
	}
	defer rows.Close()

	var out []core.Interaction
	for rows.Next() {
		var (
			it     core.Interaction
			rating sql.NullFloat64
			ts     int64
		)
		if err := rows.Scan(&it.UserID, &it.RecipeID, &rating, &ts); err != nil {
			return nil, fmt.Errorf("scanning interaction: %w", err)
		}
		it.Rating = nullFloat(rating)
		it.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, it)
	}
	return out, rows.Err()
}

// InsertRecipes 写入（或覆盖）菜谱记录。
func (s *SQLiteStore) InsertRecipes(ctx context.Context, recipes []core.Recipe) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO recipes
		(recipe_id, name, description, ingredients, steps, calories, protein, carbs, fat, prep_time, tags, cuisine)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range recipes {
		r := &recipes[i]
		ingredients, _ := json.Marshal(nonNil(r.Ingredients))
		steps, _ := json.Marshal(nonNil(r.Steps))
		tags, _ := json.Marshal(nonNil(r.Tags))
		if _, err := stmt.ExecContext(ctx, r.ID, r.Name, r.Description, string(ingredients), string(steps),
			r.Nutrition.Calories, r.Nutrition.Protein, r.Nutrition.Carbs, r.Nutrition.Fat,
			r.PrepTime, string(tags), r.Cuisine); err != nil {
			return fmt.Errorf("inserting recipe %d: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// AppendInteractions 追加交互记录。
func (s *SQLiteStore) AppendInteractions(ctx context.Context, interactions []core.Interaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO interactions (user_id, recipe_id, rating, ts) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, it := range interactions {
		if _, err := stmt.ExecContext(ctx, it.UserID, it.RecipeID, it.Rating, it.Timestamp.UnixNano()); err != nil {
			return fmt.Errorf("inserting interaction %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value   []byte
		expires sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM kv WHERE key = ?`, key).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrStoreNotFound
	}
	if err != nil {
		return nil, err
	}
	if expires.Valid && time.Now().UnixNano() > expires.Int64 {
		return nil, core.ErrStoreNotFound
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO kv (key, value, expires_at) VALUES (?, ?, ?)`,
		key, value, expiresAt(ttl))
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (s *SQLiteStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, err := s.Get(ctx, k)
		if core.IsStoreNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (s *SQLiteStore) BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	exp := expiresAt(ttl)
	for k, v := range kvs {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO kv (key, value, expires_at) VALUES (?, ?, ?)`, k, v, exp); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO zsets (key, member, score) VALUES (?, ?, ?)`, key, member, score)
	return err
}

func (s *SQLiteStore) ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error) {
	var score float64
	err := s.db.QueryRowContext(ctx, `INSERT INTO zsets (key, member, score) VALUES (?, ?, ?)
		ON CONFLICT (key, member) DO UPDATE SET score = score + excluded.score
		RETURNING score`, key, member, delta).Scan(&score)
	return score, err
}

// ZRange 与 Redis ZREVRANGE 一致：分数降序，同分按成员降序。
func (s *SQLiteStore) ZRange(ctx context.Context, key string, start, stop int64) ([]core.ScoredMember, error) {
	limit := int64(-1)
	if stop >= 0 {
		if stop < start {
			return nil, nil
		}
		limit = stop - start + 1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT member, score FROM zsets WHERE key = ?
		ORDER BY score DESC, member DESC LIMIT ? OFFSET ?`, key, limit, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.ScoredMember
	for rows.Next() {
		var m core.ScoredMember
		if err := rows.Scan(&m.Member, &m.Score); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ZScore(ctx context.Context, key string, member string) (float64, error) {
	var score float64
	err := s.db.QueryRowContext(ctx, `SELECT score FROM zsets WHERE key = ? AND member = ?`, key, member).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrStoreNotFound
	}
	return score, err
}

func expiresAt(ttl []int) any {
	if len(ttl) > 0 && ttl[0] > 0 {
		return time.Now().Add(time.Duration(ttl[0]) * time.Second).UnixNano()
	}
	return nil
}

func decodeList(raw string, dst *[]string) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
