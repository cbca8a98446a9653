package memory

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// SegmenterOptions configures the Segmenter.
type SegmenterOptions struct {
	MaxMessages int           // Default 8
	MinMessages int           // Default 2
	TimeGap     time.Duration // Default 30m
	MaxChars    int           // Default 1000
}

// DefaultSegmenterOptions returns the default segmenter configuration.
func DefaultSegmenterOptions() SegmenterOptions {
	return SegmenterOptions{
		MaxMessages: 8,
		MinMessages: 2,
		TimeGap:     30 * time.Minute,
		MaxChars:    1000,
	}
}

// Segmenter groups the messages of one conversation into chunks.
type Segmenter struct {
	opts SegmenterOptions
}

// NewSegmenter creates a new Segmenter with the given options.
func NewSegmenter(opts SegmenterOptions) *Segmenter {
	def := DefaultSegmenterOptions()
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = def.MaxMessages
	}
	if opts.MinMessages <= 0 {
		opts.MinMessages = def.MinMessages
	}
	if opts.MinMessages > opts.MaxMessages {
		opts.MinMessages = opts.MaxMessages
	}
	if opts.TimeGap <= 0 {
		opts.TimeGap = def.TimeGap
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = def.MaxChars
	}
	return &Segmenter{opts: opts}
}

// Options returns the effective options.
func (s *Segmenter) Options() SegmenterOptions {
	return s.opts
}

// bufferedMessage is a kept message with its normalized text.
type bufferedMessage struct {
	id     string
	sender string
	ts     time.Time
	text   string
}

func (m bufferedMessage) line() string {
	return m.sender + ": " + m.text
}

// segmentState is the segmenter's state between messages. Transitions are
// pure: each returns the next state and leaves the receiver untouched.
type segmentState struct {
	buffer     []bufferedMessage
	startTS    time.Time
	lastKeptTS time.Time
}

func (s segmentState) empty() bool {
	return len(s.buffer) == 0
}

// appendMessage returns the state with m added to the buffer.
func (s segmentState) appendMessage(m bufferedMessage) segmentState {
	next := segmentState{
		buffer:     append(slices.Clip(s.buffer), m),
		startTS:    s.startTS,
		lastKeptTS: m.ts,
	}
	if s.empty() {
		next.startTS = m.ts
	}
	return next
}

// flush turns the buffer into chunks split at message boundaries so that no
// chunk text exceeds maxChars runes, unless a single line already does.
func (s segmentState) flush(convID string, maxChars int) (segmentState, []Chunk) {
	if s.empty() {
		return s, nil
	}

	var (
		chunks []Chunk
		cur    []bufferedMessage
		curLen int
	)
	for _, m := range s.buffer {
		added := utf8.RuneCountInString(m.line())
		if len(cur) > 0 {
			added++ // newline
		}
		if len(cur) > 0 && curLen+added > maxChars {
			chunks = append(chunks, newChunk(convID, cur))
			cur = nil
			curLen = 0
			added = utf8.RuneCountInString(m.line())
		}
		cur = append(cur, m)
		curLen += added
	}
	chunks = append(chunks, newChunk(convID, cur))

	return segmentState{}, chunks
}

// Build segments the time-ordered messages of one conversation. Messages are
// normalized first and noise is dropped. The result satisfies
// len(MessageIDs) >= MinMessages for every chunk except possibly the first.
func (s *Segmenter) Build(convID string, messages []Message) []Chunk {
	var (
		state  segmentState
		chunks []Chunk
		out    []Chunk
	)

	for _, msg := range messages {
		text := Normalize(msg.Text)
		if IsNoise(text) {
			continue
		}
		m := bufferedMessage{id: msg.ID, sender: msg.Sender, ts: msg.Timestamp, text: text}

		if !state.empty() && m.ts.Sub(state.lastKeptTS) > s.opts.TimeGap {
			state, out = state.flush(convID, s.opts.MaxChars)
			chunks = append(chunks, out...)
		}

		state = state.appendMessage(m)

		if len(state.buffer) >= s.opts.MaxMessages {
			state, out = state.flush(convID, s.opts.MaxChars)
			chunks = append(chunks, out...)
		}
	}
	_, out = state.flush(convID, s.opts.MaxChars)
	chunks = append(chunks, out...)

	return mergeSmall(chunks, s.opts.MinMessages)
}

// mergeSmall folds every chunk with fewer than minMessages ids into the
// preceding one. The first chunk has no predecessor and is kept as is.
func mergeSmall(chunks []Chunk, minMessages int) []Chunk {
	merged := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if len(merged) == 0 || len(c.MessageIDs) >= minMessages {
			merged = append(merged, c)
			continue
		}
		prev := &merged[len(merged)-1]
		prev.Text = prev.Text + "\n" + c.Text
		prev.TimeEnd = c.TimeEnd
		prev.MessageIDs = append(prev.MessageIDs, c.MessageIDs...)
		prev.Senders = append(prev.Senders, c.Senders...)
		prev.ChunkID = chunkID(prev.ConvID, prev.MessageIDs)
	}
	return merged
}

func newChunk(convID string, msgs []bufferedMessage) Chunk {
	lines := make([]string, len(msgs))
	ids := make([]string, len(msgs))
	senders := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = m.line()
		ids[i] = m.id
		senders[i] = m.sender
	}
	return Chunk{
		ChunkID:    chunkID(convID, ids),
		ConvID:     convID,
		TimeStart:  msgs[0].ts,
		TimeEnd:    msgs[len(msgs)-1].ts,
		Text:       strings.Join(lines, "\n"),
		MessageIDs: ids,
		Senders:    senders,
	}
}

func chunkID(convID string, ids []string) string {
	return convID + "_" + ids[0] + "_" + ids[len(ids)-1]
}
