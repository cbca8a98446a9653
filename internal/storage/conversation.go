package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// tsLayout 是消息时间的存储格式，统一为 UTC 且定宽，保证按字符串排序即按时间排序
const tsLayout = "2006-01-02T15:04:05.000000000Z"

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}

// Conversation 会话实体
type Conversation struct {
	ConvID       string     `json:"conv_id"`
	Title        string     `json:"title"`
	Participants []string   `json:"participants"`
	LastActive   *time.Time `json:"last_active,omitempty"`
}

// UpsertConversation 新增或更新会话元数据
func (db *DB) UpsertConversation(ctx context.Context, c Conversation) error {
	return upsertConversation(ctx, db.DB, c)
}

// UpsertConversation 在事务中新增或更新会话元数据
func (tx *Tx) UpsertConversation(ctx context.Context, c Conversation) error {
	return upsertConversation(ctx, tx.Tx, c)
}

func upsertConversation(ctx context.Context, q execer, c Conversation) error {
	if c.ConvID == "" {
		return errors.New("conversation id is required")
	}
	participants := c.Participants
	if participants == nil {
		participants = []string{}
	}
	data, err := json.Marshal(participants)
	if err != nil {
		return err
	}

	var lastActive *string
	if c.LastActive != nil {
		s := formatTS(*c.LastActive)
		lastActive = &s
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO conversations (conv_id, title, participants, last_active_ts)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(conv_id) DO UPDATE SET
			title = excluded.title,
			participants = excluded.participants,
			last_active_ts = excluded.last_active_ts`,
		c.ConvID, c.Title, string(data), lastActive,
	)
	return err
}

// GetConversation 获取会话
func (db *DB) GetConversation(ctx context.Context, convID string) (*Conversation, error) {
	row := db.QueryRowContext(ctx,
		"SELECT conv_id, title, participants, last_active_ts FROM conversations WHERE conv_id = ?",
		convID,
	)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListConversations 按写入顺序列出所有会话
func (db *DB) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT conv_id, title, participants, last_active_ts FROM conversations ORDER BY rowid",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *c)
	}
	return convs, rows.Err()
}

// ConversationIDs 按写入顺序返回所有会话 ID
func (db *DB) ConversationIDs(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT conv_id FROM conversations ORDER BY rowid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteConversation 删除会话及其消息
func (db *DB) DeleteConversation(ctx context.Context, convID string) error {
	result, err := db.ExecContext(ctx, "DELETE FROM conversations WHERE conv_id = ?", convID)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (*Conversation, error) {
	var (
		c            Conversation
		participants string
		lastActive   sql.NullString
	)
	if err := s.Scan(&c.ConvID, &c.Title, &participants, &lastActive); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(participants), &c.Participants); err != nil {
		return nil, fmt.Errorf("decode participants of %s: %w", c.ConvID, err)
	}
	if lastActive.Valid && lastActive.String != "" {
		t, err := parseTS(lastActive.String)
		if err != nil {
			return nil, err
		}
		c.LastActive = &t
	}
	return &c, nil
}
