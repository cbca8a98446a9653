package recall

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"recall/internal/memory"
	"recall/internal/storage"
)

// ErrBuildInProgress is returned when another process holds the build lock.
var ErrBuildInProgress = errors.New("recall: another build is in progress")

// DefaultLockTTL bounds how long a crashed builder can block others.
const DefaultLockTTL = 30 * time.Minute

// RebuildResult describes the outcome of Rebuilder.Rebuild.
type RebuildResult struct {
	GenerationID string        `json:"generation_id"`
	Chunks       int           `json:"chunks"`
	Skipped      bool          `json:"skipped"` // corpus unchanged since the last build
	Duration     time.Duration `json:"duration"`
}

// RebuilderOptions configures a Rebuilder.
type RebuilderOptions struct {
	DB          *storage.DB
	Builder     *memory.Builder
	Generations *memory.GenerationStore
	LockTTL     time.Duration
	Logger      zerolog.Logger
}

// Rebuilder runs offline builds against the chat store, publishes the result
// and records what was built so unchanged corpora are not rebuilt.
type Rebuilder struct {
	db      *storage.DB
	builder *memory.Builder
	gens    *memory.GenerationStore
	lockTTL time.Duration
	holder  string
	logger  zerolog.Logger
}

// NewRebuilder creates a Rebuilder.
func NewRebuilder(opts RebuilderOptions) (*Rebuilder, error) {
	if opts.DB == nil || opts.Builder == nil || opts.Generations == nil {
		return nil, errors.New("recall: db, builder and generations are required")
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	host, _ := os.Hostname()
	return &Rebuilder{
		db:      opts.DB,
		builder: opts.Builder,
		gens:    opts.Generations,
		lockTTL: opts.LockTTL,
		holder:  fmt.Sprintf("%s/%d/%s", host, os.Getpid(), uuid.NewString()),
		logger:  opts.Logger,
	}, nil
}

// Rebuild builds and publishes a new generation. Unless force is set, it is
// a no-op when the corpus, the embedder and the tokenizer are unchanged and
// the recorded generation is still current.
func (r *Rebuilder) Rebuild(ctx context.Context, force bool) (RebuildResult, error) {
	start := time.Now()

	stamp, err := r.db.CorpusStamp(ctx)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("corpus stamp: %w", err)
	}

	if !force {
		if rec, ok := r.upToDate(ctx, stamp); ok {
			r.logger.Info().Str("generation", rec.GenerationID).Msg("rebuild: corpus unchanged, skipping")
			return RebuildResult{GenerationID: rec.GenerationID, Chunks: rec.Chunks, Skipped: true, Duration: time.Since(start)}, nil
		}
	}

	locked, err := r.db.TryLock(ctx, storage.StateBuildLock, r.holder, r.lockTTL)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("acquire build lock: %w", err)
	}
	if !locked {
		return RebuildResult{}, ErrBuildInProgress
	}
	defer func() {
		if err := r.db.Unlock(context.WithoutCancel(ctx), storage.StateBuildLock, r.holder); err != nil {
			r.logger.Warn().Err(err).Msg("rebuild: release lock failed")
		}
	}()

	gen, err := r.builder.Rebuild(ctx, r.gens)
	if err != nil {
		return RebuildResult{}, err
	}

	rec := storage.BuildRecord{
		GenerationID: gen.ID(),
		CorpusStamp:  stamp,
		Chunks:       gen.Len(),
		Embedder:     r.builder.EmbedderName(),
		Tokenizer:    r.builder.TokenizerName(),
		BuiltAt:      time.Now().UTC(),
	}
	if err := r.db.SaveBuildRecord(ctx, rec); err != nil {
		// the generation is live; only the next skip check is lost
		r.logger.Warn().Err(err).Msg("rebuild: save build record failed")
	}

	res := RebuildResult{GenerationID: gen.ID(), Chunks: gen.Len(), Duration: time.Since(start)}
	r.logger.Info().
		Str("generation", res.GenerationID).
		Int("chunks", res.Chunks).
		Dur("duration", res.Duration).
		Msg("rebuild: generation published")
	return res, nil
}

func (r *Rebuilder) upToDate(ctx context.Context, stamp string) (*storage.BuildRecord, bool) {
	rec, err := r.db.LastBuildRecord(ctx)
	if err != nil {
		return nil, false
	}
	if rec.CorpusStamp != stamp ||
		rec.Embedder != r.builder.EmbedderName() ||
		rec.Tokenizer != r.builder.TokenizerName() {
		return nil, false
	}
	current, err := r.gens.CurrentID()
	if err != nil || current != rec.GenerationID {
		return nil, false
	}
	return rec, true
}
