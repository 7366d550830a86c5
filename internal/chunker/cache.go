package chunker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"document-processor/internal/helper"
	"document-processor/internal/models"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

const cacheVersion = 1

type cacheFile struct {
	Version      int            `json:"version"`
	FileHash     string         `json:"file_hash"`
	ChunkSize    int            `json:"chunk_size"`
	ChunkOverlap int            `json:"chunk_overlap"`
	CreatedAt    time.Time      `json:"created_at"`
	Chunks       []models.Chunk `json:"chunks"`
}

type cacheEntry struct {
	opts   Options
	chunks []models.Chunk
}

// Cache stores built chunks per file hash on disk, with an in-memory LRU in front.
type Cache struct {
	dir string
	mem *lru.Cache[string, cacheEntry]
}

func NewCache(dir string, memEntries int) (*Cache, error) {
	if err := helper.CreateFolder(dir); err != nil {
		return nil, err
	}
	if memEntries <= 0 {
		memEntries = 1
	}
	mem, err := lru.New[string, cacheEntry](memEntries)
	if err != nil {
		return nil, fmt.Errorf("create chunk lru: %w", err)
	}
	return &Cache{dir: dir, mem: mem}, nil
}

func (c *Cache) path(hash string) string {
	return filepath.Join(c.dir, hash+"_chunks.json")
}

// Load returns the cached chunks for hash. ok is false on a miss.
func (c *Cache) Load(hash string) ([]models.Chunk, bool, error) {
	e, ok, err := c.load(hash)
	return e.chunks, ok, err
}

func (c *Cache) load(hash string) (cacheEntry, bool, error) {
	if e, ok := c.mem.Get(hash); ok {
		return e, true, nil
	}

	data, err := os.ReadFile(c.path(hash))
	if errors.Is(err, os.ErrNotExist) {
		return cacheEntry{}, false, nil
	}
	if err != nil {
		return cacheEntry{}, false, fmt.Errorf("read chunk cache: %w", err)
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return cacheEntry{}, false, fmt.Errorf("decode chunk cache %s: %w", c.path(hash), err)
	}
	if f.Version != cacheVersion || f.FileHash != hash {
		return cacheEntry{}, false, fmt.Errorf("chunk cache %s: version %d hash %q do not match", c.path(hash), f.Version, f.FileHash)
	}
	for i, ch := range f.Chunks {
		if ch.Index != i {
			return cacheEntry{}, false, fmt.Errorf("chunk cache %s: chunk %d has index %d", c.path(hash), i, ch.Index)
		}
	}

	e := cacheEntry{
		opts:   Options{ChunkSize: f.ChunkSize, Overlap: f.ChunkOverlap},
		chunks: f.Chunks,
	}
	c.mem.Add(hash, e)
	return e, true, nil
}

func (c *Cache) Store(hash string, opts Options, chunks []models.Chunk) error {
	if chunks == nil {
		chunks = []models.Chunk{}
	}
	data, err := json.Marshal(cacheFile{
		Version:      cacheVersion,
		FileHash:     hash,
		ChunkSize:    opts.ChunkSize,
		ChunkOverlap: opts.Overlap,
		CreatedAt:    time.Now().UTC(),
		Chunks:       chunks,
	})
	if err != nil {
		return fmt.Errorf("encode chunk cache: %w", err)
	}
	if err := helper.WriteFileAtomic(c.path(hash), data); err != nil {
		return err
	}
	c.mem.Add(hash, cacheEntry{opts: opts, chunks: chunks})
	log.Debug().Str("hash", hash).Int("chunks", len(chunks)).Msg("Chunks cached")
	return nil
}

// GetOrBuild returns cached chunks for hash, or calls build and caches the result.
// Cached chunks win even when built with other options, since saved progress
// refers to their indexes.
func (c *Cache) GetOrBuild(hash string, opts Options, build func() ([]models.Chunk, error)) ([]models.Chunk, bool, error) {
	e, ok, err := c.load(hash)
	if err != nil {
		log.Warn().Err(err).Str("hash", hash).Msg("Ignoring unreadable chunk cache")
	}
	if ok {
		if e.opts != opts {
			log.Warn().
				Str("hash", hash).
				Int("cached_size", e.opts.ChunkSize).
				Int("cached_overlap", e.opts.Overlap).
				Int("requested_size", opts.ChunkSize).
				Int("requested_overlap", opts.Overlap).
				Msg("Chunk options differ from cache; using cached chunks")
		}
		log.Info().Str("hash", hash).Int("chunks", len(e.chunks)).Msg("Loaded chunks from cache")
		return e.chunks, true, nil
	}

	chunks, err := build()
	if err != nil {
		return nil, false, err
	}
	if err := c.Store(hash, opts, chunks); err != nil {
		return nil, false, err
	}
	return chunks, false, nil
}
