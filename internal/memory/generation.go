package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Artifact file names inside a generation directory.
const (
	CurrentFile    = "CURRENT"
	generationsDir = "generations"
	manifestFile   = "manifest.yaml"
	chunksFile     = "chunks.json"
	embeddingsFile = "embeddings.f32"
	lexicalFile    = "lexical.json"
)

const generationFormat = 1

// Manifest describes one persisted generation.
type Manifest struct {
	ID         string    `yaml:"id"`
	CreatedAt  time.Time `yaml:"created_at"`
	Chunks     int       `yaml:"chunks"`
	Dimensions int       `yaml:"dimensions"`
	Embedder   string    `yaml:"embedder"`
	Tokenizer  string    `yaml:"tokenizer"`
	Format     int       `yaml:"format"`
}

// Generation is an immutable, row-aligned set of chunks, embeddings and
// lexical index. Row i of every component describes the same chunk.
type Generation struct {
	Manifest Manifest
	Chunks   []Chunk
	Vectors  *VectorIndex
	Lexical  *LexicalIndex
}

// NewGeneration assembles a generation and verifies that its components agree
// on the number of rows.
func NewGeneration(m Manifest, chunks []Chunk, vectors *VectorIndex, lexical *LexicalIndex) (*Generation, error) {
	if vectors.Rows() != len(chunks) || lexical.Docs() != len(chunks) {
		return nil, &IndexConsistencyError{
			Generation: m.ID,
			Chunks:     len(chunks),
			Embeddings: vectors.Rows(),
			Documents:  lexical.Docs(),
		}
	}
	m.Chunks = len(chunks)
	m.Dimensions = vectors.Dimensions()
	if m.Format == 0 {
		m.Format = generationFormat
	}
	return &Generation{Manifest: m, Chunks: chunks, Vectors: vectors, Lexical: lexical}, nil
}

// ID returns the generation ID.
func (g *Generation) ID() string {
	return g.Manifest.ID
}

// Len returns the number of chunks.
func (g *Generation) Len() int {
	return len(g.Chunks)
}

// GenerationStore persists generations under a directory:
//
//	<dir>/CURRENT                  id of the active generation
//	<dir>/generations/<id>/...     artifacts
//
// Generations are written to a temporary directory and renamed into place;
// CURRENT is replaced the same way, so readers never observe a partial set.
type GenerationStore struct {
	dir    string
	keep   int
	logger zerolog.Logger
}

// GenerationStoreOptions configures a GenerationStore.
type GenerationStoreOptions struct {
	Dir    string
	Keep   int // Generations retained after a publish, including the active one. Default 3.
	Logger zerolog.Logger
}

// NewGenerationStore creates a store rooted at opts.Dir.
func NewGenerationStore(opts GenerationStoreOptions) *GenerationStore {
	if opts.Keep <= 0 {
		opts.Keep = 3
	}
	return &GenerationStore{dir: opts.Dir, keep: opts.Keep, logger: opts.Logger}
}

// Dir returns the index directory.
func (s *GenerationStore) Dir() string {
	return s.dir
}

// CurrentPath returns the path of the CURRENT pointer file.
func (s *GenerationStore) CurrentPath() string {
	return filepath.Join(s.dir, CurrentFile)
}

// CurrentID returns the id named by CURRENT.
func (s *GenerationStore) CurrentID() (string, error) {
	data, err := os.ReadFile(s.CurrentPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &ConfigurationError{Dir: s.dir, Err: err}
		}
		return "", fmt.Errorf("read current: %w", err)
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", &ConfigurationError{Dir: s.dir, Err: errors.New("CURRENT is empty")}
	}
	return id, nil
}

// Save writes gen as a new generation directory and makes it current.
// Old generations beyond the retention count are removed afterwards.
func (s *GenerationStore) Save(gen *Generation) error {
	root := filepath.Join(s.dir, generationsDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create generations dir: %w", err)
	}

	if gen.Manifest.ID == "" {
		gen.Manifest.ID = uuid.NewString()
	}
	id := gen.Manifest.ID

	tmp, err := os.MkdirTemp(root, ".tmp-"+id+"-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	if err := writeGeneration(tmp, gen); err != nil {
		_ = os.RemoveAll(tmp)
		return &MemoryError{Op: "save", ID: id, Err: err}
	}
	if err := os.Rename(tmp, filepath.Join(root, id)); err != nil {
		_ = os.RemoveAll(tmp)
		return &MemoryError{Op: "save", ID: id, Err: err}
	}

	if err := writeFileAtomic(s.CurrentPath(), []byte(id+"\n")); err != nil {
		return &MemoryError{Op: "publish", ID: id, Err: err}
	}

	s.logger.Info().
		Str("generation", id).
		Int("chunks", gen.Len()).
		Msg("generation: published")

	if err := s.prune(id); err != nil {
		s.logger.Warn().Err(err).Msg("generation: prune failed")
	}
	return nil
}

func writeGeneration(dir string, gen *Generation) error {
	manifest, err := yaml.Marshal(gen.Manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), manifest, 0o644); err != nil {
		return err
	}

	chunks := gen.Chunks
	if chunks == nil {
		chunks = []Chunk{}
	}
	if err := writeFileWith(filepath.Join(dir, chunksFile), func(w io.Writer) error {
		return json.NewEncoder(w).Encode(chunks)
	}); err != nil {
		return err
	}
	if err := writeFileWith(filepath.Join(dir, embeddingsFile), func(w io.Writer) error {
		_, err := gen.Vectors.WriteTo(w)
		return err
	}); err != nil {
		return err
	}
	return writeFileWith(filepath.Join(dir, lexicalFile), func(w io.Writer) error {
		_, err := gen.Lexical.WriteTo(w)
		return err
	})
}

// LoadCurrent loads the generation named by CURRENT.
func (s *GenerationStore) LoadCurrent() (*Generation, error) {
	id, err := s.CurrentID()
	if err != nil {
		return nil, err
	}
	return s.Load(id)
}

// Load reads generation id and verifies its row alignment.
func (s *GenerationStore) Load(id string) (*Generation, error) {
	dir := filepath.Join(s.dir, generationsDir, id)

	var m Manifest
	if err := readFileWith(filepath.Join(dir, manifestFile), func(r io.Reader) error {
		return yaml.NewDecoder(r).Decode(&m)
	}); err != nil {
		return nil, s.loadError(id, err)
	}
	m.ID = id

	var chunks []Chunk
	if err := readFileWith(filepath.Join(dir, chunksFile), func(r io.Reader) error {
		if err := json.NewDecoder(r).Decode(&chunks); err != nil {
			return fmt.Errorf("%w: chunks: %w", ErrInvalidArtifact, err)
		}
		return nil
	}); err != nil {
		return nil, s.loadError(id, err)
	}

	var vectors *VectorIndex
	if err := readFileWith(filepath.Join(dir, embeddingsFile), func(r io.Reader) (err error) {
		vectors, err = ReadVectorIndex(r)
		return err
	}); err != nil {
		return nil, s.loadError(id, err)
	}

	var lexical *LexicalIndex
	if err := readFileWith(filepath.Join(dir, lexicalFile), func(r io.Reader) (err error) {
		lexical, err = ReadLexicalIndex(r)
		return err
	}); err != nil {
		return nil, s.loadError(id, err)
	}

	gen, err := NewGeneration(m, chunks, vectors, lexical)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().
		Str("generation", id).
		Int("chunks", gen.Len()).
		Msg("generation: loaded")
	return gen, nil
}

func (s *GenerationStore) loadError(id string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return &ConfigurationError{Dir: s.dir, Err: err}
	}
	return &MemoryError{Op: "load", ID: id, Err: err}
}

// prune removes the oldest generations so that at most keep remain. The
// active generation is never removed.
func (s *GenerationStore) prune(active string) error {
	root := filepath.Join(s.dir, generationsDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}

	type candidate struct {
		id      string
		created time.Time
	}
	var others []candidate
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || e.Name() == active {
			continue
		}
		var m Manifest
		err := readFileWith(filepath.Join(root, e.Name(), manifestFile), func(r io.Reader) error {
			return yaml.NewDecoder(r).Decode(&m)
		})
		if err != nil {
			continue
		}
		others = append(others, candidate{id: e.Name(), created: m.CreatedAt})
	}
	if len(others) < s.keep {
		return nil
	}

	sort.Slice(others, func(i, j int) bool {
		return others[i].created.After(others[j].created)
	})
	var errs []error
	for _, c := range others[s.keep-1:] {
		if err := os.RemoveAll(filepath.Join(root, c.id)); err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Debug().Str("generation", c.id).Msg("generation: pruned")
	}
	return errors.Join(errs...)
}

func writeFileWith(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readFileWith(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}

// writeFileAtomic replaces path with data via a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
