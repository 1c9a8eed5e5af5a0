package commands

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/prajwalbangera/interview-voice/internal/backend"
	"github.com/prajwalbangera/interview-voice/internal/config"
)

var backendLivekitURL string

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Run the local mock interview backend",
	Long: `Run a local backend that serves the interview lifecycle endpoints.

Interviews persist to a JSON file so state survives restarts. Tokens
are mock credentials suitable for local development only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return runBackend(cfg)
	},
}

func init() {
	backendCmd.Flags().StringVar(&backendLivekitURL, "livekit-url", "", "room service URL handed out with tokens")
	rootCmd.AddCommand(backendCmd)
}

func runBackend(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := backend.NewStore(cfg.BackendDataFile)
	if err != nil {
		return err
	}

	r := backend.SetupRouter(cfg.Mode, backend.NewServer(store, backendLivekitURL))
	addr := backend.Addr(cfg.BackendPort)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("module", "backend").Str("addr", addr).Msg("backend started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("module", "backend").Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Str("module", "backend").Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Str("module", "backend").Msg("forced shutdown")
		return err
	}
	log.Info().Str("module", "backend").Msg("backend exited gracefully")
	return nil
}
