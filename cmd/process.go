package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"document-processor/internal/processor"
	"document-processor/internal/state"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var processCMD = &cobra.Command{
	Use:   "process <file>",
	Short: "Process a document, resuming saved progress if any",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcess(cmd, args[0], false)
	},
}

var resumeCMD = &cobra.Command{
	Use:   "resume <file>",
	Short: "Resume processing from saved state",
	Long:  "Resume processing from saved state. Pass --model to continue with a different model.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcess(cmd, args[0], true)
	},
}

func init() {
	addProcessFlags(processCMD)
	addProcessFlags(resumeCMD)
}

func addProcessFlags(c *cobra.Command) {
	c.Flags().String("prompt", "", "Prompt template, {chunk_text} is replaced by the chunk")
	c.Flags().String("system-prompt", "", "System prompt")
	c.Flags().String("model", "", "Model to use (default from config, or the saved state's model on resume)")
	c.Flags().Int("max-output", 0, "Maximum output tokens per chunk")
	c.Flags().String("provider", "", "LLM provider: anthropic, openai or ollama")
	c.Flags().String("api-key", "", "API key, overrides config and environment")
	c.Flags().StringP("output", "o", "", "Result file (default <results_dir>/<name>_results.json)")
	c.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	addChunkFlags(c)
}

func runProcess(cmd *cobra.Command, path string, resume bool) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	pipeline, err := newPipeline(cfg)
	if err != nil {
		return err
	}

	model, _ := cmd.Flags().GetString("model")
	startModel := model
	saved, err := pipeline.Store().Load(path)
	switch {
	case err == nil:
		if startModel == "" {
			startModel = saved.CurrentModel
		}
	case resume && (errors.Is(err, state.ErrNotFound) || errors.Is(err, state.ErrCorruptState)):
		return fmt.Errorf("no resumable state found for %s", path)
	case resume:
		return err
	}
	if startModel == "" {
		startModel = cfg.Processing.DefaultModel
	}

	provider, _ := cmd.Flags().GetString("provider")
	apiKey, _ := cmd.Flags().GetString("api-key")
	if err := checkCredentials(cfg, provider, startModel, apiKey); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chunks, err := pipeline.Prepare(ctx, path, chunkOptions(cmd, cfg))
	if err != nil {
		return err
	}
	st, resumed, err := pipeline.Start(path, startModel, chunks)
	if err != nil {
		return err
	}
	if model == "" {
		model = st.CurrentModel
	}
	if resumed {
		fmt.Fprintf(out, "Resuming: %d of %d chunks already processed (%.0f%%, $%.4f)\n",
			st.ProcessedChunks, st.TotalChunks, st.Progress()*100, st.TotalCost)
	}

	outPath, _ := cmd.Flags().GetString("output")
	if outPath == "" {
		outPath = defaultOutputPath(cfg, path)
	}
	if st.Done() {
		fmt.Fprintln(out, "All chunks already processed.")
		return pipeline.Store().Export(st, outPath)
	}

	maxOutput, _ := cmd.Flags().GetInt("max-output")
	if maxOutput <= 0 {
		maxOutput = cfg.Processing.MaxOutputTokens
	}
	est, err := pipeline.Estimate(chunks, st, model, maxOutput)
	if err != nil {
		return err
	}
	printEstimate(out, est, st)

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		chosen, ok, err := confirm(cmd.InOrStdin(), out, pipeline.Store().Pricing(), model)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Cancelled. Progress is saved; run resume to continue.")
			return nil
		}
		if chosen != model {
			est, err := pipeline.Estimate(chunks, st, chosen, maxOutput)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Switched to %s, estimated cost $%.4f\n", chosen, est.EstimatedCost)
			model = chosen
		}
	}

	client, err := newClient(cfg, provider, model, apiKey)
	if err != nil {
		return err
	}

	pause := &processor.Pause{}
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		select {
		case <-signals:
			log.Warn().Msg("Interrupt received, pausing after the current chunk")
			pause.Request()
		case <-ctx.Done():
		}
	}()

	prompt, _ := cmd.Flags().GetString("prompt")
	if prompt == "" {
		prompt = cfg.Processing.PromptTemplate
	}
	systemPrompt, _ := cmd.Flags().GetString("system-prompt")
	if systemPrompt == "" {
		systemPrompt = cfg.Processing.SystemPrompt
	}

	outcome, err := pipeline.Run(ctx, client, chunks, st, pause, processor.RunOptions{
		SystemPrompt:    systemPrompt,
		PromptTemplate:  prompt,
		Model:           model,
		MaxOutputTokens: maxOutput,
		OnProgress: func(p processor.Progress) {
			fmt.Fprintf(out, "\rProcessed %d/%d chunks, cost $%.4f", p.Processed, p.Total, p.TotalCost)
		},
	})
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("%w (progress saved, run resume to continue)", err)
	}

	if outcome == processor.OutcomePaused {
		fmt.Fprintf(out, "Paused at %d/%d chunks. Run `resume %s` to continue.\n", st.ProcessedChunks, st.TotalChunks, path)
		return nil
	}

	if err := pipeline.Store().Export(st, outPath); err != nil {
		return err
	}
	fmt.Fprintf(out, "Done: %d chunks, total cost $%.4f, results in %s\n", st.ProcessedChunks, st.TotalCost, outPath)
	return nil
}
