// Package recall answers "what did we say about X" questions: it infers the
// time window and conversation from the question, runs the hybrid search and
// attaches the original messages behind every hit.
package recall

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"recall/internal/convmatch"
	"recall/internal/memory"
	"recall/internal/storage"
	"recall/internal/timerange"
)

// Searcher runs a hybrid search. *memory.Engine satisfies it.
type Searcher interface {
	Search(ctx context.Context, q memory.Query) ([]memory.SearchHit, error)
}

// ChatStore is the part of the chat store the service reads.
type ChatStore interface {
	ListConversations(ctx context.Context) ([]storage.Conversation, error)
	GetMessagesByIDs(ctx context.Context, ids []string) ([]storage.Message, error)
}

// AskRequest is one question. Explicit ConvID, Start and End always win over
// anything detected from the query text; detection only runs when AutoDetect
// is set and the corresponding filter is empty.
type AskRequest struct {
	Query      string
	TopK       int
	ConvID     string
	Start      *time.Time
	End        *time.Time
	Now        time.Time // zero means time.Now() in the service location
	AutoDetect bool
}

// AskResponse carries the hits plus how the filters were derived.
type AskResponse struct {
	Hits         []memory.SearchHit           `json:"hits"`
	Filters      memory.Query                 `json:"filters"`
	Time         timerange.Result             `json:"time"`
	Conversation convmatch.Match              `json:"conversation"`
	Evidence     map[string][]storage.Message `json:"evidence,omitempty"`
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Searcher Searcher
	Store    ChatStore
	Location *time.Location // for relative dates; default time.Local
	Logger   zerolog.Logger
}

// Service is safe for concurrent use.
type Service struct {
	searcher Searcher
	store    ChatStore
	loc      *time.Location
	logger   zerolog.Logger
}

// NewService creates a Service.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Searcher == nil {
		return nil, errors.New("recall: searcher is required")
	}
	if opts.Store == nil {
		return nil, errors.New("recall: store is required")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Service{
		searcher: opts.Searcher,
		store:    opts.Store,
		loc:      opts.Location,
		logger:   opts.Logger,
	}, nil
}

// Ask resolves filters, searches and fetches evidence. Unrecognized time or
// conversation references leave the filter open and are reported in the
// response; they are not errors.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(s.loc)

	q := memory.Query{
		Text:   req.Query,
		TopK:   req.TopK,
		ConvID: req.ConvID,
		Start:  req.Start,
		End:    req.End,
	}
	resp := &AskResponse{}

	if req.AutoDetect && q.Start == nil && q.End == nil {
		resp.Time = timerange.Parse(req.Query, now)
		if resp.Time.Outcome == timerange.OutcomeMatched {
			q.Start, q.End = resp.Time.Start, resp.Time.End
		}
	}

	if req.AutoDetect && q.ConvID == "" {
		match, err := s.detectConversation(ctx, req.Query)
		if err != nil {
			return nil, err
		}
		resp.Conversation = match
		if match.Outcome == convmatch.OutcomeMatched {
			q.ConvID = match.ConvID
		}
	}

	s.logger.Debug().
		Str("conv_id", q.ConvID).
		Str("time_outcome", resp.Time.Outcome.String()).
		Str("conv_outcome", resp.Conversation.Outcome.String()).
		Msg("recall: filters resolved")

	hits, err := s.searcher.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	resp.Hits = hits
	resp.Filters = q

	evidence, err := s.evidence(ctx, hits)
	if err != nil {
		s.logger.Warn().Err(err).Msg("recall: evidence lookup failed, returning hits only")
	} else {
		resp.Evidence = evidence
	}
	return resp, nil
}

func (s *Service) detectConversation(ctx context.Context, query string) (convmatch.Match, error) {
	stored, err := s.store.ListConversations(ctx)
	if err != nil {
		return convmatch.Match{}, &memory.MemoryError{Op: "list conversations", Err: err}
	}
	convs := make([]convmatch.Conversation, len(stored))
	for i, c := range stored {
		convs[i] = convmatch.Conversation{ConvID: c.ConvID, Title: c.Title, Participants: c.Participants}
	}
	return convmatch.Find(query, convs), nil
}

// evidence maps every hit's chunk id to its messages in chunk order.
func (s *Service) evidence(ctx context.Context, hits []memory.SearchHit) (map[string][]storage.Message, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	var ids []string
	for _, h := range hits {
		ids = append(ids, h.MessageIDs...)
	}
	msgs, err := s.store.GetMessagesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]storage.Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}

	out := make(map[string][]storage.Message, len(hits))
	for _, h := range hits {
		list := make([]storage.Message, 0, len(h.MessageIDs))
		for _, id := range h.MessageIDs {
			if m, ok := byID[id]; ok {
				m.Timestamp = m.Timestamp.In(s.loc)
				list = append(list, m)
			}
		}
		out[h.ChunkID] = list
	}
	return out, nil
}
