package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// 构建状态使用的键
const (
	// StateLastBuild 记录最近一次成功构建的 BuildRecord
	StateLastBuild = "build.last"
	// StateBuildLock 防止多个进程同时构建
	StateBuildLock = "build.lock"
)

// BuildRecord 描述一次成功的索引构建
type BuildRecord struct {
	GenerationID string    `json:"generation_id"`
	CorpusStamp  string    `json:"corpus_stamp"`
	Chunks       int       `json:"chunks"`
	Embedder     string    `json:"embedder,omitempty"`
	Tokenizer    string    `json:"tokenizer,omitempty"`
	BuiltAt      time.Time `json:"built_at"`
}

// KVSet 设置键值，ttl 为 0 表示永不过期；过期时间以毫秒时间戳保存
func (db *DB) KVSet(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt *int64
	if ttl > 0 {
		ms := time.Now().Add(ttl).UnixMilli()
		expiresAt = &ms
	}

	_, err := db.ExecContext(ctx,
		"INSERT OR REPLACE INTO kv_store (key, value, expires_at) VALUES (?, ?, ?)",
		key, value, expiresAt,
	)
	return err
}

// KVGet 获取键值，过期视为不存在
func (db *DB) KVGet(ctx context.Context, key string) (string, error) {
	var value string
	var expiresAt sql.NullInt64

	err := db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM kv_store WHERE key = ?",
		key,
	).Scan(&value, &expiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if expiresAt.Valid && expiresAt.Int64 <= time.Now().UnixMilli() {
		_, _ = db.ExecContext(ctx, "DELETE FROM kv_store WHERE key = ?", key)
		return "", ErrNotFound
	}

	return value, nil
}

// KVDelete 删除键值
func (db *DB) KVDelete(ctx context.Context, key string) error {
	result, err := db.ExecContext(ctx, "DELETE FROM kv_store WHERE key = ?", key)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// TryLock 尝试获取带过期时间的锁；锁已被其他 holder 持有且未过期时返回 false
func (db *DB) TryLock(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	now := time.Now()
	result, err := db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
		WHERE kv_store.value = excluded.value
		   OR kv_store.expires_at < ?`,
		key, holder, now.Add(ttl).UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Unlock 释放 holder 持有的锁
func (db *DB) Unlock(ctx context.Context, key, holder string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM kv_store WHERE key = ? AND value = ?", key, holder)
	return err
}

// SaveBuildRecord 保存最近一次构建记录
func (db *DB) SaveBuildRecord(ctx context.Context, rec BuildRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return db.KVSet(ctx, StateLastBuild, string(data), 0)
}

// LastBuildRecord 返回最近一次构建记录，没有时返回 ErrNotFound
func (db *DB) LastBuildRecord(ctx context.Context) (*BuildRecord, error) {
	value, err := db.KVGet(ctx, StateLastBuild)
	if err != nil {
		return nil, err
	}
	var rec BuildRecord
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
