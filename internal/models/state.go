package models

import "time"

// StateVersion is the current schema version of persisted processing state.
const StateVersion = 1

// ChunkResult is the recorded LLM output for one chunk.
type ChunkResult struct {
	ChunkIndex   int       `json:"chunk_index"`
	Response     string    `json:"response"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	Model        string    `json:"model"`
	CompletedAt  time.Time `json:"completed_at"`
}

// ProcessingState tracks progress of one file, keyed by its content hash.
// len(Results) == ProcessedChunks and Results[i].ChunkIndex == i.
type ProcessingState struct {
	Version         int
	FilePath        string
	FileHash        string
	TotalChunks     int
	ProcessedChunks int
	CurrentModel    string
	TotalCost       float64
	Results         []ChunkResult
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Done reports whether every chunk has a recorded result.
func (s *ProcessingState) Done() bool {
	return s.ProcessedChunks >= s.TotalChunks
}

// Progress returns the processed fraction in [0, 1].
func (s *ProcessingState) Progress() float64 {
	if s.TotalChunks == 0 {
		return 1
	}
	return float64(s.ProcessedChunks) / float64(s.TotalChunks)
}

// ResultExport is the snapshot written on export.
type ResultExport struct {
	FilePath        string        `json:"file_path"`
	FileHash        string        `json:"file_hash"`
	Model           string        `json:"model"`
	TotalCost       float64       `json:"total_cost"`
	ProcessedChunks int           `json:"processed_chunks"`
	TotalChunks     int           `json:"total_chunks"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	ExportedAt      time.Time     `json:"exported_at"`
	Results         []ChunkResult `json:"results"`
}

// PromptResponse is an answer produced from indexed results.
type PromptResponse struct {
	Query   string
	Source  string
	Content string
}
