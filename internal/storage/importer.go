package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// ExportFile 是聊天导出文件的 JSON 结构
type ExportFile struct {
	Conversations []ExportConversation `json:"conversations"`
}

// ExportConversation 导出文件中的单个会话
type ExportConversation struct {
	ConvID       string          `json:"conv_id"`
	Title        string          `json:"title"`
	Participants []string        `json:"participants"`
	Messages     []ExportMessage `json:"messages"`
}

// ExportMessage 导出文件中的单条消息
type ExportMessage struct {
	ID     string `json:"id"`
	Sender string `json:"sender"`
	TS     string `json:"ts"`
	Text   string `json:"text"`
}

// ImportStats 导入结果统计
type ImportStats struct {
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
}

// localLayouts 是不带时区的时间格式，按传入的时区解释
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTimestamp 解析导出文件中的时间：RFC3339 带时区；其余格式按 loc 解释
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp %q", s)
}

// ImportJSON 在单个事务中导入聊天导出文件，已存在的会话和消息会被覆盖
func (db *DB) ImportJSON(ctx context.Context, r io.Reader, loc *time.Location) (ImportStats, error) {
	var file ExportFile
	dec := json.NewDecoder(r)
	if err := dec.Decode(&file); err != nil {
		return ImportStats{}, fmt.Errorf("decode export: %w", err)
	}

	var stats ImportStats
	err := db.WithTx(ctx, func(tx *Tx) error {
		for _, ec := range file.Conversations {
			if ec.ConvID == "" {
				return fmt.Errorf("conversation #%d: missing conv_id", stats.Conversations+1)
			}

			msgs := make([]Message, 0, len(ec.Messages))
			var lastActive *time.Time
			for _, em := range ec.Messages {
				if em.ID == "" {
					return fmt.Errorf("conversation %s: message without id", ec.ConvID)
				}
				ts, err := ParseTimestamp(em.TS, loc)
				if err != nil {
					return fmt.Errorf("conversation %s message %s: %w", ec.ConvID, em.ID, err)
				}
				if lastActive == nil || ts.After(*lastActive) {
					lastActive = &ts
				}
				msgs = append(msgs, Message{
					ID:        em.ID,
					ConvID:    ec.ConvID,
					Sender:    em.Sender,
					Timestamp: ts,
					Text:      em.Text,
				})
			}

			conv := Conversation{
				ConvID:       ec.ConvID,
				Title:        ec.Title,
				Participants: ec.Participants,
				LastActive:   lastActive,
			}
			if err := tx.UpsertConversation(ctx, conv); err != nil {
				return fmt.Errorf("conversation %s: %w", ec.ConvID, err)
			}
			for _, m := range msgs {
				if err := tx.UpsertMessage(ctx, m); err != nil {
					return fmt.Errorf("conversation %s message %s: %w", ec.ConvID, m.ID, err)
				}
			}

			stats.Conversations++
			stats.Messages += len(msgs)
		}
		return nil
	})
	if err != nil {
		return ImportStats{}, err
	}
	return stats, nil
}
