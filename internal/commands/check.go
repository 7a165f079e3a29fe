package commands

import (
	"errors"

	"roomwatch/internal/config"
	"roomwatch/internal/database"
	"roomwatch/internal/health"
	"roomwatch/internal/preflight"
	"roomwatch/internal/services"

	"github.com/spf13/cobra"
)

// ErrPreflightFailed is returned when at least one check failed
var ErrPreflightFailed = errors.New("pre-flight checks failed")

// CheckCmd validates a deployment without starting any loop
var CheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run pre-flight checks",
	Long: `Validates the room configs, pings Redis, asks the inference endpoint which
models it serves, and verifies ffmpeg and the alert player where they are needed.
With --deep every model also gets one real image completion.

Exits non-zero if any check fails.`,
	SilenceUsage: true,
	RunE:         runCheck,
}

func init() {
	CheckCmd.Flags().Bool("deep", false, "Send a test frame to every model instead of only listing served models")
}

// inferenceProbe picks how models are checked
func inferenceProbe(cfg *config.Config, deep bool) health.Probe {
	endpoint := health.Endpoint{
		BaseURL: cfg.Inference.BaseURL,
		APIKey:  cfg.Inference.APIKey,
		Timeout: cfg.Inference.Timeout,
	}
	if deep {
		return &health.VisionProbe{
			Endpoint: endpoint,
			Width:    config.DefaultFrameWidth,
			Height:   config.DefaultFrameHeight,
		}
	}
	return &health.ModelsProbe{Endpoint: endpoint}
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd, nil)
	if err != nil {
		return err
	}
	rooms, roomsErr := config.LoadRooms(RoomFiles)

	var store preflight.Pinger
	if redisService, err := services.NewRedisService(cfg.RedisURL); err == nil {
		defer redisService.Close()
		store = services.NewFrameStore(redisService, cfg.KeyPrefix)
	}

	var archive preflight.Pinger
	if cfg.Archive.Enabled() {
		if db, err := database.New(cfg.Archive.DSN); err == nil {
			defer db.Close()
			archive = db
		}
	}

	deep, _ := cmd.Flags().GetBool("deep")
	probe := inferenceProbe(cfg, deep)

	results := preflight.NewChecker(cfg, rooms, roomsErr, store, archive, probe).RunAll()
	if preflight.HasFailures(results) {
		return ErrPreflightFailed
	}
	return nil
}
