package main

import (
	"os"
	"time"

	"document-processor/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "./configs/config.yaml"

var cfg *config.Config

var mainCMD = &cobra.Command{
	Use:   "docproc",
	Short: "Process large documents with LLMs",
	Long: "Splits large documents into chunks, sends each chunk to an LLM, tracks token cost " +
		"and saves progress so processing can be paused and resumed.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return err
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			loaded.LogLevel = level
		}
		setupLogging(loaded.LogLevel)
		log.Debug().Str("config", path).Msg("Loaded config")
		cfg = loaded
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

func init() {
	mainCMD.PersistentFlags().String("config", defaultConfigPath, "Path to the YAML config file")
	mainCMD.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	mainCMD.AddCommand(processCMD)
	mainCMD.AddCommand(resumeCMD)
	mainCMD.AddCommand(statusCMD)
	mainCMD.AddCommand(exportCMD)
	mainCMD.AddCommand(estimateCMD)
	mainCMD.AddCommand(modelsCMD)
	mainCMD.AddCommand(serveCMD)
	mainCMD.AddCommand(indexCMD)
	mainCMD.AddCommand(askCMD)
}

func main() {
	if err := mainCMD.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}
