package storage

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Message 消息实体
type Message struct {
	ID        string    `json:"id"`
	ConvID    string    `json:"conv_id"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"ts"`
	Text      string    `json:"text"`
}

// maxIDsPerQuery 限制单条 IN 查询的参数个数
const maxIDsPerQuery = 500

// UpsertMessage 新增或覆盖消息
func (db *DB) UpsertMessage(ctx context.Context, m Message) error {
	return upsertMessage(ctx, db.DB, m)
}

// UpsertMessage 在事务中新增或覆盖消息
func (tx *Tx) UpsertMessage(ctx context.Context, m Message) error {
	return upsertMessage(ctx, tx.Tx, m)
}

func upsertMessage(ctx context.Context, q execer, m Message) error {
	if m.ID == "" || m.ConvID == "" {
		return errors.New("message id and conversation id are required")
	}
	_, err := q.ExecContext(ctx,
		"INSERT OR REPLACE INTO messages (id, conv_id, sender, ts, text) VALUES (?, ?, ?, ?, ?)",
		m.ID, m.ConvID, m.Sender, formatTS(m.Timestamp), m.Text,
	)
	return err
}

// ListMessages 按时间顺序列出会话的全部消息，时间相同按 ID 排序
func (db *DB) ListMessages(ctx context.Context, convID string) ([]Message, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, conv_id, sender, ts, text FROM messages WHERE conv_id = ? ORDER BY ts, id",
		convID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetMessagesByIDs 按 ID 批量获取消息，结果按时间排序；不存在的 ID 被忽略
func (db *DB) GetMessagesByIDs(ctx context.Context, ids []string) ([]Message, error) {
	var msgs []Message
	for batch := range slices.Chunk(ids, maxIDsPerQuery) {
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")

		rows, err := db.QueryContext(ctx,
			"SELECT id, conv_id, sender, ts, text FROM messages WHERE id IN ("+placeholders+")",
			args...,
		)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			m, err := scanMessage(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			msgs = append(msgs, m)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	slices.SortStableFunc(msgs, func(a, b Message) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return msgs, nil
}

// CountMessages 返回消息总数
func (db *DB) CountMessages(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n)
	return n, err
}

// CorpusStamp 返回标识当前语料内容的指纹，语料变化后指纹随之变化
func (db *DB) CorpusStamp(ctx context.Context) (string, error) {
	var (
		count  int
		maxTS  string
		maxRow int64
		convs  int
	)
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MAX(ts), ''), COALESCE(MAX(rowid), 0),
		       (SELECT COUNT(*) FROM conversations)
		FROM messages`,
	).Scan(&count, &maxTS, &maxRow, &convs)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{
		strconv.Itoa(convs), strconv.Itoa(count), strconv.FormatInt(maxRow, 10), maxTS,
	}, "/"), nil
}

func scanMessage(s scanner) (Message, error) {
	var (
		m  Message
		ts string
	)
	if err := s.Scan(&m.ID, &m.ConvID, &m.Sender, &ts, &m.Text); err != nil {
		return Message{}, err
	}
	t, err := parseTS(ts)
	if err != nil {
		return Message{}, err
	}
	m.Timestamp = t
	return m, nil
}
