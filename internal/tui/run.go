package tui

import (
	"context"
	"errors"

	"roomwatch/internal/models"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the terminal dashboard until the user quits or ctx is done
func Run(ctx context.Context, client *Client, target string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app := NewApp(target, func() tea.Msg { return client.Snapshot(ctx) })
	program := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		client.Stream(ctx,
			func(evt models.Event) { program.Send(EventMsg{Event: evt}) },
			func(status ConnectionStatus, err error) { program.Send(StatusUpdateMsg{Status: status, Error: err}) },
		)
	}()

	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
