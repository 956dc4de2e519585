// Package store 提供 core.Store / core.KeyValueStore / core.DataProvider 的实现：
//
//   - MemoryStore：进程内 KV，带 TTL 与有序集合
//   - RedisStore：多实例共享的 KV
//   - SQLiteStore：菜谱、交互与 kv 表的持久化边界
//   - ProfileStore：任意 core.Store 之上的饮食画像 CRUD
//
// 接口定义在 core 包，此包只包含实现。
package store
