package core

import "context"

// DataProvider 是持久化层的入站边界。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 推荐核心只读：不通过此接口写回任何数据
//   - 每次请求对画像做一次原子读取
//
// 实现：
//   - store.SQLiteStore
//   - store.MemoryProvider（测试/离线）
type DataProvider interface {
	// GetUserProfile 获取用户饮食画像；不存在时返回 (nil, nil)
	GetUserProfile(ctx context.Context, userID int64) (*DietaryProfile, error)

	// GetRecipes 获取菜谱记录；filter 为 nil 时返回全部
	GetRecipes(ctx context.Context, filter *RecipeFilter) ([]Recipe, error)

	// GetInteractions 获取全部交互记录
	GetInteractions(ctx context.Context) ([]Interaction, error)
}

// ProfileSource 是请求路径读取画像的最小接口。
type ProfileSource interface {
	GetUserProfile(ctx context.Context, userID int64) (*DietaryProfile, error)
}

// RecipeFilter 是 GetRecipes 的可选条件。
type RecipeFilter struct {
	IDs   []int64
	Limit int
}
