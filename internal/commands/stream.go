package commands

import (
	"context"
	"errors"
	"fmt"
	"log"

	"roomwatch/internal/capture"
	"roomwatch/internal/producer"
	"roomwatch/internal/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// StreamCmd runs the frame producers
var StreamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Capture camera frames into the frame store",
	Long: `Runs one frame producer per room. Each producer keeps the newest frames
in the room's realtime queue and a slower sample in its subsampled queue.

Camera and Redis failures are retried; the command only stops on SIGINT or SIGTERM.`,
	RunE: runStream,
}

func init() {
	StreamCmd.Flags().String("ffmpeg", "ffmpeg", "ffmpeg binary used for stream and device sources")
}

func runStream(cmd *cobra.Command, args []string) error {
	env, err := loadRuntime(cmd, nil)
	if err != nil {
		return err
	}
	ffmpegPath, _ := cmd.Flags().GetString("ffmpeg")

	ctx, stop := signalContext()
	defer stop()

	redisService, err := services.NewRedisService(env.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisService.Close()

	store := services.NewFrameStore(redisService, env.cfg.KeyPrefix)
	metrics := services.NewMetrics(prometheus.DefaultRegisterer)
	serveOps(ctx, env.cfg.MetricsAddr, newOpsApp(prometheus.DefaultRegisterer, "stream",
		map[string]statusSection{"store": storeSection(store)}, nil))

	group, groupCtx := errgroup.WithContext(ctx)
	for _, room := range env.rooms {
		source := capture.Open(room.Camera.URI, capture.Options{
			Width:      room.Camera.FrameWidth,
			Height:     room.Camera.FrameHeight,
			FFmpegPath: ffmpegPath,
		})
		p := producer.New(room, source, store, metrics)
		group.Go(func() error {
			return p.Run(groupCtx)
		})
	}

	log.Printf("🎥 Streaming %d room(s), press Ctrl+C to stop", len(env.rooms))

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Println("👋 Producers stopped")
	return nil
}
