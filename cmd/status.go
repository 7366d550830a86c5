package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"document-processor/internal/helper"
	"document-processor/internal/state"

	"github.com/spf13/cobra"
)

var statusCMD = &cobra.Command{
	Use:   "status",
	Short: "List saved processing states",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := state.NewStore(cfg.StateDir, pricingTable(cfg))
		if err != nil {
			return err
		}
		summaries, err := store.List()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(summaries) == 0 {
			fmt.Fprintln(out, "No saved processing states.")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "FILE\tPROGRESS\tMODEL\tCOST\tUPDATED\tHASH")
		for _, s := range summaries {
			fmt.Fprintf(tw, "%s\t%d/%d\t%s\t$%.4f\t%s\t%.12s\n",
				s.FilePath, s.ProcessedChunks, s.TotalChunks, s.CurrentModel, s.TotalCost,
				s.UpdatedAt.Local().Format("2006-01-02 15:04"), s.FileHash)
		}
		return tw.Flush()
	},
}

var exportCMD = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the results recorded for a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := state.NewStore(cfg.StateDir, pricingTable(cfg))
		if err != nil {
			return err
		}
		st, err := store.Load(args[0])
		if errors.Is(err, state.ErrNotFound) {
			return fmt.Errorf("no saved state for %s", args[0])
		}
		if err != nil {
			return err
		}

		outPath, _ := cmd.Flags().GetString("output")
		if outPath == "" {
			outPath = defaultOutputPath(cfg, args[0])
		}
		if err := store.Export(st, outPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d/%d results to %s\n", st.ProcessedChunks, st.TotalChunks, outPath)
		return nil
	},
}

var estimateCMD = &cobra.Command{
	Use:   "estimate <file>",
	Short: "Estimate the cost of processing a file without calling the LLM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pipeline, err := newPipeline(cfg)
		if err != nil {
			return err
		}
		chunks, err := pipeline.Prepare(context.Background(), args[0], chunkOptions(cmd, cfg))
		if err != nil {
			return err
		}

		model, _ := cmd.Flags().GetString("model")
		if model == "" {
			model = cfg.Processing.DefaultModel
		}
		maxOutput, _ := cmd.Flags().GetInt("max-output")
		if maxOutput <= 0 {
			maxOutput = cfg.Processing.MaxOutputTokens
		}

		start := 0
		if st, err := pipeline.Store().Load(args[0]); err == nil && st.TotalChunks == len(chunks) {
			start = st.ProcessedChunks
		}
		est, err := pipeline.Store().EstimateRemainingCost(chunks, start, model, maxOutput)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			helper.PrettyPrint(est)
			return nil
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Chunks: %d total, %d remaining\n", len(chunks), est.RemainingChunks)
		fmt.Fprintf(out, "Estimated tokens: %d input, %d output\n", est.InputTokens, est.OutputTokens)
		fmt.Fprintf(out, "Estimated cost: $%.4f with %s\n\n", est.EstimatedCost, model)
		printComparison(out, est.ModelComparison, model)
		return nil
	},
}

var modelsCMD = &cobra.Command{
	Use:   "models",
	Short: "Show model prices and the cost of a given token volume",
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetInt("input")
		output, _ := cmd.Flags().GetInt("output")
		table := pricingTable(cfg)

		out := cmd.OutOrStdout()
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "MODEL\tINPUT $/M\tOUTPUT $/M\tCOST")
		costs := table.CompareModels(input, output)
		for i, e := range table.Models() {
			fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t$%.4f\n", e.Model, e.InputPricePerMillion, e.OutputPricePerMillion, costs[i].Cost)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		cheapest := table.Cheapest(input, output)
		fmt.Fprintf(out, "\nCheapest for %d input / %d output tokens: %s ($%.4f)\n", input, output, cheapest.Model, cheapest.Cost)
		return nil
	},
}

func init() {
	exportCMD.Flags().StringP("output", "o", "", "Result file (default <results_dir>/<name>_results.json)")

	estimateCMD.Flags().String("model", "", "Model to estimate for")
	estimateCMD.Flags().Int("max-output", 0, "Expected output tokens per chunk")
	estimateCMD.Flags().Bool("json", false, "Print the estimate as JSON")
	addChunkFlags(estimateCMD)

	modelsCMD.Flags().Int("input", 1_000_000, "Input tokens")
	modelsCMD.Flags().Int("output", 100_000, "Output tokens")
}
