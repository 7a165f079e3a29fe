package alert

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"sync/atomic"
)

// SoundAlerter plays the alert sound through an external player such as aplay or paplay.
// The same sound plays for every rule.
type SoundAlerter struct {
	Player    string
	SoundFile string

	playing atomic.Bool
	start   func(name string, args ...string) (wait func() error, err error)
}

// NewSoundAlerter creates a sound sink
func NewSoundAlerter(player, soundFile string) *SoundAlerter {
	return &SoundAlerter{Player: player, SoundFile: soundFile, start: startCommand}
}

func startCommand(name string, args ...string) (func() error, error) {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd.Wait, nil
}

// Fire starts the player and returns without waiting for playback.
// An alert arriving while the sound is still playing does not stack a second player.
func (s *SoundAlerter) Fire(ctx context.Context, a Alert) error {
	if !s.playing.CompareAndSwap(false, true) {
		return nil
	}

	wait, err := s.start(s.Player, s.SoundFile)
	if err != nil {
		s.playing.Store(false)
		return fmt.Errorf("failed to start %s: %w", s.Player, err)
	}

	go func() {
		defer s.playing.Store(false)
		if err := wait(); err != nil {
			log.Printf("⚠️  [ALERT] Sound player exited: %v", err)
		}
	}()
	return nil
}
