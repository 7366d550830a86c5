package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"document-processor/internal/chromemdb"
	"document-processor/internal/chunker"
	"document-processor/internal/config"
	"document-processor/internal/embedding"
	"document-processor/internal/llmservice"
	"document-processor/internal/models"
	"document-processor/internal/pricing"
	"document-processor/internal/processor"
	"document-processor/internal/rag"
	"document-processor/internal/state"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func pricingTable(cfg *config.Config) *pricing.Table {
	return pricing.FromConfig(cfg.Pricing)
}

func newPipeline(cfg *config.Config) (*processor.Pipeline, error) {
	store, err := state.NewStore(cfg.StateDir, pricingTable(cfg))
	if err != nil {
		return nil, err
	}
	cache, err := chunker.NewCache(cfg.ChunkDir, cfg.Chunking.CacheEntries)
	if err != nil {
		return nil, err
	}
	return processor.NewPipeline(cache, store, cfg.Processing.CheckpointEvery), nil
}

func newClient(cfg *config.Config, provider, model, apiKey string) (llmservice.Client, error) {
	provider = llmservice.ResolveProvider(provider, cfg.LLM.Provider, model)
	return llmservice.New(provider, llmservice.OptionsFromConfig(cfg, provider, model, apiKey))
}

// checkCredentials fails when the provider serving model needs an API key
// that neither the flag nor the config supplies.
func checkCredentials(cfg *config.Config, provider, model, apiKey string) error {
	provider = llmservice.ResolveProvider(provider, cfg.LLM.Provider, model)
	opts := llmservice.OptionsFromConfig(cfg, provider, model, apiKey)
	if llmservice.NeedsCredentials(provider) && opts.APIKey == "" {
		return fmt.Errorf("%w: provider %s", llmservice.ErrMissingCredentials, provider)
	}
	return nil
}

func addChunkFlags(cmd *cobra.Command) {
	cmd.Flags().Int("chunk-size", 0, "Maximum chunk size in characters (default from config)")
	cmd.Flags().Int("chunk-overlap", -1, "Characters carried over between chunks (default from config)")
	cmd.Flags().Bool("optimize-images", false, "Downscale large images before sending them")
}

func chunkOptions(cmd *cobra.Command, cfg *config.Config) processor.ChunkOptions {
	opts := processor.ChunkOptions{
		ChunkSize:      cfg.Chunking.ChunkSize,
		Overlap:        cfg.Chunking.ChunkOverlap,
		OptimizeImages: cfg.Chunking.OptimizeImages,
		MaxImageSize:   cfg.Chunking.MaxImageSize,
	}
	if v, _ := cmd.Flags().GetInt("chunk-size"); v > 0 {
		opts.ChunkSize = v
		if opts.Overlap >= v {
			opts.Overlap = 0
		}
	}
	if v, _ := cmd.Flags().GetInt("chunk-overlap"); v >= 0 {
		opts.Overlap = v
	}
	if cmd.Flags().Changed("optimize-images") {
		opts.OptimizeImages, _ = cmd.Flags().GetBool("optimize-images")
	}
	return opts
}

func defaultOutputPath(cfg *config.Config, input string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(cfg.ResultsDir, base+"_results.json")
}

func printEstimate(w io.Writer, est *state.CostEstimate, st *models.ProcessingState) {
	fmt.Fprintf(w, "\nFile:             %s\n", st.FilePath)
	fmt.Fprintf(w, "Chunks:           %d total, %d processed, %d remaining\n", st.TotalChunks, st.ProcessedChunks, est.RemainingChunks)
	if st.ProcessedChunks > 0 {
		fmt.Fprintf(w, "Cost so far:      $%.4f\n", st.TotalCost)
	}
	fmt.Fprintf(w, "Estimated tokens: %d input, %d output\n", est.InputTokens, est.OutputTokens)
	fmt.Fprintf(w, "Estimated cost:   $%.4f with %s\n\n", est.EstimatedCost, est.Model)

	printComparison(w, est.ModelComparison, est.Model)
	if est.Savings > 0 {
		fmt.Fprintf(w, "\n%s would save $%.4f\n", est.Cheapest.Model, est.Savings)
	}
}

func printComparison(w io.Writer, costs []pricing.ModelCost, current string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tCOST")
	for _, c := range costs {
		marker := ""
		if c.Model == current {
			marker = " *"
		}
		fmt.Fprintf(tw, "%s\t$%.4f%s\n", c.Model, c.Cost, marker)
	}
	tw.Flush()
}

// newRAG opens the results index and the embedder and answer clients.
func newRAG(cfg *config.Config) (*rag.RAG, *chromemdb.VectorDBManager, error) {
	index, err := chromemdb.NewVectorDBManager(cfg.Index)
	if err != nil {
		return nil, nil, err
	}
	if _, err := index.GetOrCreateCollection(cfg.Index.Collection); err != nil {
		return nil, nil, err
	}
	if cfg.Index.InMemory && cfg.Index.EncryptionKey != "" {
		if err := index.Import(); err != nil {
			// first run has nothing to import
			log.Warn().Err(err).Msg("No exported index loaded")
		}
	}

	embedTarget := cfg.Index.Embed
	if embedTarget.Provider == llmservice.ProviderOpenAI && embedTarget.Key == "" {
		embedTarget.Key = cfg.LLM.OpenAI.Key
	}
	if embedTarget.Provider == llmservice.ProviderOllama && embedTarget.BaseURL == "" {
		embedTarget.BaseURL = cfg.LLM.Ollama.BaseURL
	}
	embedder, err := embedding.NewEmbedder(embedTarget)
	if err != nil {
		return nil, nil, err
	}

	answer := cfg.Index.Answer
	if answer.Model == "" {
		answer.Model = cfg.Processing.DefaultModel
	}
	provider := llmservice.ResolveProvider(answer.Provider, cfg.LLM.Provider, answer.Model)
	opts := llmservice.OptionsFromConfig(cfg, provider, answer.Model, answer.Key)
	if answer.BaseURL != "" {
		opts.BaseURL = answer.BaseURL
	}
	client, err := llmservice.New(provider, opts)
	if err != nil {
		return nil, nil, err
	}

	return rag.NewRAG(index, embedder, client, answer.Model, cfg.Index.TopK), index, nil
}

// persistIndex exports an in-memory index so the next run can import it.
func persistIndex(cfg *config.Config, index *chromemdb.VectorDBManager) error {
	if !cfg.Index.InMemory || cfg.Index.EncryptionKey == "" {
		return nil
	}
	return index.Export()
}
