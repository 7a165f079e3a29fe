// Package commands holds the roomwatch subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"roomwatch/internal/config"
	"roomwatch/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Persistent flag values, bound by the root command
var (
	RoomFiles    []string
	SettingsFile string
	Verbose      bool
)

// runtimeEnv is what every subcommand starts from
type runtimeEnv struct {
	cfg   *config.Config
	rooms []*config.RoomConfig
}

// loadSettings reads .env, the settings file and any flags bound on cmd.
// bind maps viper keys to flag names of cmd.
func loadSettings(cmd *cobra.Command, bind map[string]string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("⚠️  Warning: could not read .env: %v", err)
		}
	}

	v, err := config.NewViper(SettingsFile)
	if err != nil {
		return nil, err
	}
	if err := bindFlags(v, cmd, bind); err != nil {
		return nil, err
	}
	if Verbose {
		v.Set("log_level", "debug")
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.LogLevel)
	return cfg, nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, bind map[string]string) error {
	for key, name := range bind {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			return fmt.Errorf("unknown flag %q", name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}
	return nil
}

// loadRuntime loads settings and the room files. At least one room is required.
func loadRuntime(cmd *cobra.Command, bind map[string]string) (*runtimeEnv, error) {
	cfg, err := loadSettings(cmd, bind)
	if err != nil {
		return nil, err
	}
	if len(RoomFiles) == 0 {
		return nil, errors.New("no room configs given (use --rooms)")
	}
	rooms, err := config.LoadRooms(RoomFiles)
	if err != nil {
		return nil, err
	}
	return &runtimeEnv{cfg: cfg, rooms: rooms}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
