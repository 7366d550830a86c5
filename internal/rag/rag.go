package rag

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"document-processor/internal/chromemdb"
	"document-processor/internal/embedding"
	"document-processor/internal/llmservice"
	"document-processor/internal/models"

	"github.com/rs/zerolog/log"
)

var ErrNoResults = errors.New("no indexed results match the question")

var thinkTag = regexp.MustCompile(models.ThinkTag)

// RAG indexes chunk results and answers questions over them.
type RAG struct {
	index    *chromemdb.VectorDBManager
	embedder embedding.Embedder
	client   llmservice.Client
	model    string
	topK     int
}

func NewRAG(index *chromemdb.VectorDBManager, embedder embedding.Embedder, client llmservice.Client, model string, topK int) *RAG {
	if topK < 1 {
		topK = 5
	}
	return &RAG{index: index, embedder: embedder, client: client, model: model, topK: topK}
}

func documentID(fileHash string, chunkIndex int) string {
	return fmt.Sprintf("%s-%d", fileHash, chunkIndex)
}

// IndexResults embeds every non-empty result of st and stores it, replacing
// earlier entries for the same chunks.
func (r *RAG) IndexResults(ctx context.Context, st *models.ProcessingState) error {
	var docs []chromemdb.Document
	for _, res := range st.Results {
		if strings.TrimSpace(res.Response) == "" {
			continue
		}
		vec, err := embedding.GenerateEmbedding(ctx, r.embedder, res.Response)
		if err != nil {
			return fmt.Errorf("embed chunk %d: %w", res.ChunkIndex, err)
		}
		docs = append(docs, chromemdb.Document{
			ID:      documentID(st.FileHash, res.ChunkIndex),
			Content: res.Response,
			Metadata: map[string]string{
				chromemdb.MetaFileHash:   st.FileHash,
				chromemdb.MetaFilePath:   st.FilePath,
				chromemdb.MetaChunkIndex: strconv.Itoa(res.ChunkIndex),
				chromemdb.MetaModel:      res.Model,
			},
			Embedding: vec,
		})
	}

	log.Info().Str("file", st.FilePath).Int("documents", len(docs)).Msg("Indexing results")
	if r.index.Count() > 0 {
		if err := r.index.DeleteFile(ctx, st.FileHash); err != nil {
			return fmt.Errorf("clear previous entries: %w", err)
		}
	}
	return r.index.CreateDocs(ctx, docs)
}

// Query answers query from the closest indexed results. A non-empty fileHash
// restricts the search to one file.
func (r *RAG) Query(ctx context.Context, query, fileHash string) (*models.PromptResponse, error) {
	vec, err := embedding.GenerateEmbedding(ctx, r.embedder, query)
	if err != nil {
		return nil, err
	}

	var where map[string]string
	if fileHash != "" {
		where = map[string]string{chromemdb.MetaFileHash: fileHash}
	}
	results, err := r.index.Search(ctx, vec, r.topK, where)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	var context, source strings.Builder
	for _, res := range results {
		context.WriteString(res.Content + "\n\n")
		fmt.Fprintf(&source, "%s chunk %s (similarity %.3f)\n",
			filepath.Base(res.Metadata[chromemdb.MetaFilePath]), res.Metadata[chromemdb.MetaChunkIndex], res.Similarity)
	}

	log.Debug().Int("results", len(results)).Str("model", r.model).Msg("Answering from index")
	resp, err := r.client.Complete(ctx, llmservice.Request{
		Model:    r.model,
		Messages: []llmservice.Message{{Text: fmt.Sprintf(models.AnswerPromptTemplate, context.String(), query)}},
	})
	if err != nil {
		return nil, err
	}

	return &models.PromptResponse{
		Query:   query,
		Source:  strings.TrimSpace(source.String()),
		Content: strings.TrimSpace(thinkTag.ReplaceAllString(resp.Text, "")),
	}, nil
}
