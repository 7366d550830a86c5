package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"document-processor/internal/db"
	"document-processor/internal/jobs"
	"document-processor/internal/server"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

var serveCMD = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP server that accepts uploads and runs processing jobs in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("host") {
			cfg.Server.Host, _ = cmd.Flags().GetString("host")
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		pipeline, err := newPipeline(cfg)
		if err != nil {
			return err
		}

		var deps jobs.Deps
		if cfg.Database.Enabled {
			archive, err := db.OpenArchive(ctx, &cfg.Database)
			if err != nil {
				return err
			}
			defer archive.Close()
			deps.Archiver = archive
		}
		if cfg.Index.Enabled {
			r, index, err := newRAG(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := persistIndex(cfg, index); err != nil {
					log.Error().Err(err).Msg("Failed to export index")
				}
			}()
			deps.Indexer = r
		}

		manager, err := jobs.NewManager(cfg, pipeline, jobs.NewRegistry(), deps)
		if err != nil {
			return err
		}
		srv, err := server.New(cfg, manager, pipeline.Store().Pricing())
		if err != nil {
			return err
		}
		httpSrv := srv.HTTPServer()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info().Str("addr", httpSrv.Addr).Msg("HTTP server listening")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			log.Info().Msg("Shutting down, pausing running jobs")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return manager.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	serveCMD.Flags().String("host", "0.0.0.0", "Host server will be listening on")
	serveCMD.Flags().Int("port", 5000, "Port server will be listening on")
}
