package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"document-processor/internal/helper"
	"document-processor/internal/models"
	"document-processor/internal/pricing"

	"github.com/rs/zerolog/log"
)

var ErrNotFound = errors.New("processing state not found")

// Store persists one ProcessingState per file content hash as <dir>/<hash>.json.
// Two processes must not write the same hash concurrently.
type Store struct {
	dir     string
	pricing *pricing.Table
}

// Summary is a short view of a saved state.
type Summary struct {
	FileHash        string    `json:"file_hash"`
	FilePath        string    `json:"file_path"`
	ProcessedChunks int       `json:"processed_chunks"`
	TotalChunks     int       `json:"total_chunks"`
	CurrentModel    string    `json:"current_model"`
	TotalCost       float64   `json:"total_cost"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func NewStore(dir string, table *pricing.Table) (*Store, error) {
	if err := helper.CreateFolder(dir); err != nil {
		return nil, err
	}
	if table == nil {
		table = pricing.Default()
	}
	return &Store{dir: dir, pricing: table}, nil
}

func (s *Store) Pricing() *pricing.Table {
	return s.pricing
}

// HashFile returns the hex SHA-256 of the file contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Store) path(hash string) string {
	return filepath.Join(s.dir, hash+".json")
}

// Load returns the saved state for the file's current contents.
func (s *Store) Load(path string) (*models.ProcessingState, error) {
	hash, err := HashFile(path)
	if err != nil {
		return nil, err
	}
	return s.LoadByHash(hash)
}

func (s *Store) LoadByHash(hash string) (*models.ProcessingState, error) {
	data, err := os.ReadFile(s.path(hash))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", hash, err)
	}

	st, err := DecodeState(data)
	if err != nil {
		log.Error().Err(err).Str("hash", hash).Msg("State file is corrupt")
		return nil, err
	}
	if st.FileHash != hash {
		return nil, fmt.Errorf("%w: state file %s holds hash %s", ErrCorruptState, hash, st.FileHash)
	}
	return st, nil
}

// List returns summaries of every readable state, most recently updated first.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read state dir: %w", err)
	}

	var out []Summary
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		st, err := s.LoadByHash(strings.TrimSuffix(name, ".json"))
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("Skipping unreadable state")
			continue
		}
		out = append(out, Summary{
			FileHash:        st.FileHash,
			FilePath:        st.FilePath,
			ProcessedChunks: st.ProcessedChunks,
			TotalChunks:     st.TotalChunks,
			CurrentModel:    st.CurrentModel,
			TotalCost:       st.TotalCost,
			UpdatedAt:       st.UpdatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Initialize returns the saved state for path when there is one (resumed is
// true). Otherwise it creates, saves and returns a fresh state for chunks.
func (s *Store) Initialize(path, model string, chunks []models.Chunk) (*models.ProcessingState, bool, error) {
	hash, err := HashFile(path)
	if err != nil {
		return nil, false, err
	}

	st, err := s.LoadByHash(hash)
	switch {
	case err == nil:
		log.Info().
			Str("file", st.FilePath).
			Int("processed", st.ProcessedChunks).
			Int("total", st.TotalChunks).
			Str("model", st.CurrentModel).
			Float64("cost", st.TotalCost).
			Msg("Resuming from saved state")
		if st.TotalChunks != len(chunks) {
			log.Warn().Int("state_chunks", st.TotalChunks).Int("chunks", len(chunks)).Msg("Saved state does not match chunk count")
		}
		return st, true, nil
	case !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	if !s.pricing.Has(model) {
		return nil, false, fmt.Errorf("%w: %q", pricing.ErrUnknownModel, model)
	}

	now := time.Now().UTC()
	st = &models.ProcessingState{
		Version:      models.StateVersion,
		FilePath:     path,
		FileHash:     hash,
		TotalChunks:  len(chunks),
		CurrentModel: model,
		Results:      []models.ChunkResult{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Save(st); err != nil {
		return nil, false, err
	}
	log.Info().Str("file", path).Str("hash", hash).Int("chunks", len(chunks)).Msg("Created processing state")
	return st, false, nil
}

// Save stamps UpdatedAt and replaces the state file atomically.
func (s *Store) Save(st *models.ProcessingState) error {
	st.UpdatedAt = time.Now().UTC()
	data, err := EncodeState(st)
	if err != nil {
		return err
	}
	if err := helper.WriteFileAtomic(s.path(st.FileHash), data); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	log.Debug().Str("hash", st.FileHash).Int("processed", st.ProcessedChunks).Msg("State saved")
	return nil
}

// ChangeModel switches the model for the remaining chunks and saves.
func (s *Store) ChangeModel(st *models.ProcessingState, model string) error {
	if !s.pricing.Has(model) {
		return fmt.Errorf("%w: %q", pricing.ErrUnknownModel, model)
	}
	old := st.CurrentModel
	st.CurrentModel = model
	if err := s.Save(st); err != nil {
		st.CurrentModel = old
		return err
	}
	log.Info().Str("from", old).Str("to", model).Msg("Model changed")
	return nil
}

// Export writes an immutable snapshot of st to outPath.
func (s *Store) Export(st *models.ProcessingState, outPath string) error {
	results := append([]models.ChunkResult{}, st.Results...)
	snapshot := models.ResultExport{
		FilePath:        st.FilePath,
		FileHash:        st.FileHash,
		Model:           st.CurrentModel,
		TotalCost:       st.TotalCost,
		ProcessedChunks: st.ProcessedChunks,
		TotalChunks:     st.TotalChunks,
		CreatedAt:       st.CreatedAt,
		UpdatedAt:       st.UpdatedAt,
		ExportedAt:      time.Now().UTC(),
		Results:         results,
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	if err := helper.WriteFileAtomic(outPath, data); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	log.Info().Str("output", outPath).Int("results", len(results)).Msg("Results exported")
	return nil
}
