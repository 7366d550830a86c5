package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"document-processor/internal/models"
)

// ErrCorruptState means a state file exists but cannot be trusted.
var ErrCorruptState = errors.New("no resumable state found")

// wire types use pointers so absent fields are detectable.
type wireState struct {
	Version         *int          `json:"version"`
	FilePath        *string       `json:"file_path"`
	FileHash        *string       `json:"file_hash"`
	TotalChunks     *int          `json:"total_chunks"`
	ProcessedChunks *int          `json:"processed_chunks"`
	CurrentModel    *string       `json:"current_model"`
	TotalCost       *float64      `json:"total_cost"`
	Results         *[]wireResult `json:"results"`
	CreatedAt       *time.Time    `json:"created_at"`
	UpdatedAt       *time.Time    `json:"updated_at"`
}

type wireResult struct {
	ChunkIndex   *int       `json:"chunk_index"`
	Response     *string    `json:"response"`
	InputTokens  *int       `json:"input_tokens"`
	OutputTokens *int       `json:"output_tokens"`
	Cost         *float64   `json:"cost"`
	Model        string     `json:"model,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func EncodeState(st *models.ProcessingState) ([]byte, error) {
	if err := validate(st); err != nil {
		return nil, err
	}

	results := make([]wireResult, len(st.Results))
	for i := range st.Results {
		r := &st.Results[i]
		results[i] = wireResult{
			ChunkIndex:   &r.ChunkIndex,
			Response:     &r.Response,
			InputTokens:  &r.InputTokens,
			OutputTokens: &r.OutputTokens,
			Cost:         &r.Cost,
			Model:        r.Model,
		}
		if !r.CompletedAt.IsZero() {
			results[i].CompletedAt = &r.CompletedAt
		}
	}

	version := models.StateVersion
	w := wireState{
		Version:         &version,
		FilePath:        &st.FilePath,
		FileHash:        &st.FileHash,
		TotalChunks:     &st.TotalChunks,
		ProcessedChunks: &st.ProcessedChunks,
		CurrentModel:    &st.CurrentModel,
		TotalCost:       &st.TotalCost,
		Results:         &results,
		CreatedAt:       &st.CreatedAt,
		UpdatedAt:       &st.UpdatedAt,
	}
	return json.MarshalIndent(w, "", "  ")
}

// DecodeState parses a state document. Any missing field, unknown field or
// broken invariant yields ErrCorruptState.
func DecodeState(data []byte) (*models.ProcessingState, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w wireState
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after state document", ErrCorruptState)
	}

	missing := func(field string) error {
		return fmt.Errorf("%w: missing field %q", ErrCorruptState, field)
	}
	switch {
	case w.Version == nil:
		return nil, missing("version")
	case w.FilePath == nil:
		return nil, missing("file_path")
	case w.FileHash == nil:
		return nil, missing("file_hash")
	case w.TotalChunks == nil:
		return nil, missing("total_chunks")
	case w.ProcessedChunks == nil:
		return nil, missing("processed_chunks")
	case w.CurrentModel == nil:
		return nil, missing("current_model")
	case w.TotalCost == nil:
		return nil, missing("total_cost")
	case w.Results == nil:
		return nil, missing("results")
	case w.CreatedAt == nil:
		return nil, missing("created_at")
	case w.UpdatedAt == nil:
		return nil, missing("updated_at")
	}
	if *w.Version != models.StateVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptState, *w.Version)
	}

	st := &models.ProcessingState{
		Version:         *w.Version,
		FilePath:        *w.FilePath,
		FileHash:        *w.FileHash,
		TotalChunks:     *w.TotalChunks,
		ProcessedChunks: *w.ProcessedChunks,
		CurrentModel:    *w.CurrentModel,
		TotalCost:       *w.TotalCost,
		Results:         make([]models.ChunkResult, 0, len(*w.Results)),
		CreatedAt:       *w.CreatedAt,
		UpdatedAt:       *w.UpdatedAt,
	}
	for i, r := range *w.Results {
		if r.ChunkIndex == nil || r.Response == nil || r.InputTokens == nil || r.OutputTokens == nil || r.Cost == nil {
			return nil, fmt.Errorf("%w: result %d is incomplete", ErrCorruptState, i)
		}
		res := models.ChunkResult{
			ChunkIndex:   *r.ChunkIndex,
			Response:     *r.Response,
			InputTokens:  *r.InputTokens,
			OutputTokens: *r.OutputTokens,
			Cost:         *r.Cost,
			Model:        r.Model,
		}
		if r.CompletedAt != nil {
			res.CompletedAt = *r.CompletedAt
		}
		st.Results = append(st.Results, res)
	}

	if err := validate(st); err != nil {
		return nil, err
	}
	return st, nil
}

func validate(st *models.ProcessingState) error {
	if st == nil {
		return fmt.Errorf("%w: nil state", ErrCorruptState)
	}
	if st.FileHash == "" {
		return fmt.Errorf("%w: empty file hash", ErrCorruptState)
	}
	if st.ProcessedChunks < 0 || st.ProcessedChunks > st.TotalChunks {
		return fmt.Errorf("%w: processed %d of %d chunks", ErrCorruptState, st.ProcessedChunks, st.TotalChunks)
	}
	if len(st.Results) != st.ProcessedChunks {
		return fmt.Errorf("%w: %d results for %d processed chunks", ErrCorruptState, len(st.Results), st.ProcessedChunks)
	}
	for i, r := range st.Results {
		if r.ChunkIndex != i {
			return fmt.Errorf("%w: result %d has chunk index %d", ErrCorruptState, i, r.ChunkIndex)
		}
	}
	if st.TotalCost < 0 {
		return fmt.Errorf("%w: negative total cost", ErrCorruptState)
	}
	return nil
}
