package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/rushteam/saveeat/core"
)

const profileKeyPrefix = "profile:"

// ProfileStore 在任意 core.Store 上保存饮食画像（JSON 记录，key 为 profile:{user_id}）。
//
// 写操作在进程内串行化，保证 Patch 的读-改-写不会丢更新；
// 推荐请求只通过 GetUserProfile 读取。
type ProfileStore struct {
	store core.Store
	mu    sync.Mutex
	now   func() time.Time
}

var _ core.ProfileSource = (*ProfileStore)(nil)

func NewProfileStore(s core.Store) *ProfileStore {
	return &ProfileStore{store: s, now: time.Now}
}

var errNilProfile = core.NewInvalidInputError(core.ModuleProfile, errors.New("nil profile"))

func profileKey(userID int64) string {
	return profileKeyPrefix + strconv.FormatInt(userID, 10)
}

// Create 保存新画像；已存在时返回 core.ErrProfileExists。
func (s *ProfileStore) Create(ctx context.Context, p *core.DietaryProfile) (*core.DietaryProfile, error) {
	if p == nil {
		return nil, errNilProfile
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.read(ctx, p.UserID); err == nil {
		return nil, fmt.Errorf("user %d: %w", p.UserID, core.ErrProfileExists)
	} else if !core.IsNotFound(err) {
		return nil, err
	}
	return s.write(ctx, p)
}

// Get 读取画像；不存在时返回 core.ErrProfileNotFound。
func (s *ProfileStore) Get(ctx context.Context, userID int64) (*core.DietaryProfile, error) {
	return s.read(ctx, userID)
}

// GetUserProfile 实现 core.ProfileSource：不存在时返回 (nil, nil)。
func (s *ProfileStore) GetUserProfile(ctx context.Context, userID int64) (*core.DietaryProfile, error) {
	p, err := s.read(ctx, userID)
	if core.IsNotFound(err) {
		return nil, nil
	}
	return p, err
}

// Update 整体替换已存在的画像。
func (s *ProfileStore) Update(ctx context.Context, p *core.DietaryProfile) (*core.DietaryProfile, error) {
	if p == nil {
		return nil, errNilProfile
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.read(ctx, p.UserID); err != nil {
		return nil, err
	}
	return s.write(ctx, p)
}

// Put 创建或整体替换画像。
func (s *ProfileStore) Put(ctx context.Context, p *core.DietaryProfile) (*core.DietaryProfile, error) {
	if p == nil {
		return nil, errNilProfile
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, p)
}

// Patch 严格解码 JSON 变更集并合并到已有画像。
// 未知字段、非法取值都会拒绝，且原记录保持不变。
func (s *ProfileStore) Patch(ctx context.Context, userID int64, data []byte) (*core.DietaryProfile, error) {
	patch, err := core.DecodeProfilePatch(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.read(ctx, userID)
	if err != nil {
		return nil, err
	}
	merged, err := cur.Merge(patch)
	if err != nil {
		return nil, err
	}
	return s.write(ctx, merged)
}

// Delete 删除画像；不存在时返回 core.ErrProfileNotFound。
func (s *ProfileStore) Delete(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.read(ctx, userID); err != nil {
		return err
	}
	return s.store.Delete(ctx, profileKey(userID))
}

func (s *ProfileStore) read(ctx context.Context, userID int64) (*core.DietaryProfile, error) {
	raw, err := s.store.Get(ctx, profileKey(userID))
	if core.IsStoreNotFound(err) {
		return nil, fmt.Errorf("user %d: %w", userID, core.ErrProfileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read profile %d: %w", userID, err)
	}
	var p core.DietaryProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile %d: %w", userID, err)
	}
	p.UserID = userID
	return &p, nil
}

func (s *ProfileStore) write(ctx context.Context, p *core.DietaryProfile) (*core.DietaryProfile, error) {
	out := p.Clone()
	out.Normalize()
	if err := out.Validate(); err != nil {
		return nil, err
	}
	out.UpdateTime = s.now().UTC()
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode profile %d: %w", out.UserID, err)
	}
	if err := s.store.Set(ctx, profileKey(out.UserID), raw); err != nil {
		return nil, fmt.Errorf("write profile %d: %w", out.UserID, err)
	}
	return out, nil
}
