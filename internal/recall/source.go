package recall

import (
	"context"

	"recall/internal/memory"
	"recall/internal/storage"
)

// StoreSource exposes the chat store as a memory.Source for index builds.
type StoreSource struct {
	db *storage.DB
}

// NewStoreSource wraps db.
func NewStoreSource(db *storage.DB) *StoreSource {
	return &StoreSource{db: db}
}

// ConversationIDs returns conversation ids in store insertion order.
func (s *StoreSource) ConversationIDs(ctx context.Context) ([]string, error) {
	return s.db.ConversationIDs(ctx)
}

// ConversationMessages returns the messages of convID in timestamp order.
func (s *StoreSource) ConversationMessages(ctx context.Context, convID string) ([]memory.Message, error) {
	stored, err := s.db.ListMessages(ctx, convID)
	if err != nil {
		return nil, err
	}
	msgs := make([]memory.Message, len(stored))
	for i, m := range stored {
		msgs[i] = memory.Message{
			ID:        m.ID,
			ConvID:    m.ConvID,
			Sender:    m.Sender,
			Timestamp: m.Timestamp,
			Text:      m.Text,
		}
	}
	return msgs, nil
}

var _ memory.Source = (*StoreSource)(nil)
