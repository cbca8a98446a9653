package memory

import "time"

// Message is a single ingested chat message. Messages are immutable once
// ingested.
type Message struct {
	ID        string    `json:"id"`
	ConvID    string    `json:"conv_id"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"ts"`
	Text      string    `json:"text"`
}

// Chunk is a bounded, time-ordered group of messages treated as one
// retrievable unit.
//
// TimeStart <= TimeEnd, MessageIDs follow source timestamp order and Text is
// the "sender: text" lines of those messages joined by newlines.
type Chunk struct {
	ChunkID    string    `json:"chunk_id"`
	ConvID     string    `json:"conv_id"`
	TimeStart  time.Time `json:"time_start"`
	TimeEnd    time.Time `json:"time_end"`
	Text       string    `json:"text"`
	MessageIDs []string  `json:"message_ids"`
	Senders    []string  `json:"senders,omitempty"`
}

// Confidence is a coarse bucket derived from the fused score.
type Confidence string

// Confidence labels.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Query holds the arguments of a search. A nil Start or End leaves that side
// of the time range unbounded; an empty ConvID searches all conversations.
type Query struct {
	Text   string     `json:"query"`
	TopK   int        `json:"top_k"`
	ConvID string     `json:"conv_id,omitempty"`
	Start  *time.Time `json:"start_ts,omitempty"`
	End    *time.Time `json:"end_ts,omitempty"`
}

// DefaultTopK is used when a query does not set TopK.
const DefaultTopK = 5

// SearchHit is one ranked result of a hybrid search.
type SearchHit struct {
	ChunkID    string     `json:"chunk_id"`
	ConvID     string     `json:"conv_id"`
	TimeStart  time.Time  `json:"time_start"`
	TimeEnd    time.Time  `json:"time_end"`
	Score      float64    `json:"score"`
	Confidence Confidence `json:"confidence"`
	Text       string     `json:"text"`
	MessageIDs []string   `json:"message_ids"`
}
