package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/prajwalbangera/interview-voice/internal/adapters/audio"
	"github.com/prajwalbangera/interview-voice/internal/adapters/room"
	"github.com/prajwalbangera/interview-voice/internal/config"
	"github.com/prajwalbangera/interview-voice/internal/core"
	"github.com/prajwalbangera/interview-voice/internal/domain"
	"github.com/prajwalbangera/interview-voice/internal/gateway"
	"github.com/prajwalbangera/interview-voice/internal/media"
	"github.com/prajwalbangera/interview-voice/internal/session"
	"github.com/prajwalbangera/interview-voice/internal/status"
)

var (
	runRefNum      string
	runParticipant string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Join an interview room and stream audio",
	Long: `Run a full interview session.

The session is initialized with the backend, a room credential is
fetched, and the client connects and publishes microphone audio.
Ctrl-C stops the session cleanly: the room is left first, then the
backend is told the interview is over.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if runRefNum != "" {
			cfg.RefNum = runRefNum
		}
		if runParticipant != "" {
			cfg.ParticipantName = runParticipant
		}
		return runSession(cfg)
	},
}

func init() {
	runCmd.Flags().StringVar(&runRefNum, "ref-num", "", "interview reference number (overrides config)")
	runCmd.Flags().StringVar(&runParticipant, "participant", "", "participant name (overrides config)")
	rootCmd.AddCommand(runCmd)
}

func runSession(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess, err := domain.NewSession(cfg.RefNum, cfg.Organization, cfg.ParticipantName)
	if err != nil {
		return err
	}

	gw := gateway.NewClient(cfg.BackendURL, cfg.Organization, cfg.RequestTimeout)
	device := audio.NewDevice(cfg.CaptureSource)
	sink := audio.NewSink(cfg.PlaybackDir)
	statusLog := status.NewLog()
	mgr := media.NewManager(device, sink, statusLog)

	dial := func() core.RoomConnection {
		return room.NewConnection(room.DefaultWebRTCConfig())
	}

	ctl := session.NewController(sess, gw, dial, mgr, statusLog, session.Config{
		DurationMinutes: cfg.DurationMinutes,
		RequestTimeout:  cfg.RequestTimeout,
		ConnectTimeout:  cfg.ConnectTimeout,
	})

	done := make(chan struct{})
	ctl.OnStateChange(func(s domain.ConnectionState) {
		log.Info().Str("module", "cli").Str("state", string(s)).Msg("session state")
		if s == domain.StateFailed {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})

	if err := ctl.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	log.Info().Str("module", "cli").Str("room", sess.RoomName).Msg("session starting")

	select {
	case <-ctx.Done():
		log.Info().Str("module", "cli").Msg("interrupt received, stopping session")
	case <-done:
		if last, ok := statusLog.Last(); ok {
			return fmt.Errorf("session failed: %s", last.Message)
		}
		return fmt.Errorf("session failed")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer stopCancel()
	if err := ctl.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	log.Info().Str("module", "cli").Msg("session stopped")
	return nil
}
