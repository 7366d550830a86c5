package main

import (
	"context"
	"fmt"
	"strings"

	"document-processor/internal/state"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var indexCMD = &cobra.Command{
	Use:   "index <file>",
	Short: "Index the recorded results of a file for questions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := state.NewStore(cfg.StateDir, pricingTable(cfg))
		if err != nil {
			return err
		}
		st, err := store.Load(args[0])
		if err != nil {
			return err
		}
		if len(st.Results) == 0 {
			return fmt.Errorf("no results recorded for %s yet", args[0])
		}

		r, index, err := newRAG(cfg)
		if err != nil {
			return err
		}
		if reset, _ := cmd.Flags().GetBool("reset"); reset {
			log.Info().Str("collection", cfg.Index.Collection).Msg("Dropping index collection")
			if err := index.DeleteCollection(); err != nil {
				return err
			}
			if _, err := index.GetOrCreateCollection(cfg.Index.Collection); err != nil {
				return err
			}
		}
		if err := r.IndexResults(context.Background(), st); err != nil {
			return err
		}
		if err := persistIndex(cfg, index); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d results, %d documents in collection %s\n",
			len(st.Results), index.Count(), cfg.Index.Collection)
		return nil
	},
}

var askCMD = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from indexed results",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		var fileHash string
		if file, _ := cmd.Flags().GetString("file"); file != "" {
			hash, err := state.HashFile(file)
			if err != nil {
				return err
			}
			fileHash = hash
		}

		r, _, err := newRAG(cfg)
		if err != nil {
			return err
		}
		response, err := r.Query(context.Background(), query, fileHash)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Fprintf(out, "%s\n\n", response.Query)
		log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Fprintf(out, "%s\n\n", response.Source)
		log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Fprintf(out, "%s\n\n", response.Content)
		return nil
	},
}

func init() {
	indexCMD.Flags().Bool("reset", false, "Drop the whole collection before indexing")
	askCMD.Flags().String("file", "", "Only search results of this file")
}
