// Package tui is a terminal view of a running dashboard.
package tui

import (
	"fmt"
	"strings"
	"time"

	"roomwatch/internal/models"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// App is the main TUI application model
type App struct {
	state    *AppState
	theme    *Theme
	spinner  spinner.Model
	cursor   int
	expanded bool // show the selected room's full recent log
	quitting bool
	target   string
	load     func() tea.Msg
	now      func() time.Time
}

// NewApp creates the model. load fetches the initial snapshot and runs off the UI loop.
func NewApp(target string, load func() tea.Msg) *App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = DefaultTheme.Spinner

	return &App{
		state:   NewAppState(),
		theme:   DefaultTheme,
		spinner: s,
		target:  target,
		load:    load,
		now:     time.Now,
	}
}

// Init starts the spinner, the clock and the snapshot load
func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.spinner.Tick, a.tick()}
	if a.load != nil {
		cmds = append(cmds, a.load)
	}
	return tea.Batch(cmds...)
}

func (a *App) tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}

// Update handles one message
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.state.SetSize(msg.Width, msg.Height)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case TickMsg:
		return a, a.tick()

	case StatusUpdateMsg:
		a.state.SetStatus(msg.Status, msg.Error)

	case RoomsLoadedMsg:
		if msg.Error != nil {
			a.state.LoadError = msg.Error
			return a, nil
		}
		a.state.Load(msg.Rooms, msg.Logs)
		if a.cursor >= len(a.state.Order) {
			a.cursor = 0
		}

	case EventMsg:
		a.state.Apply(msg.Event)
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		a.quitting = true
		return a, tea.Quit
	case "up", "k":
		if a.cursor > 0 {
			a.cursor--
		}
	case "down", "j":
		if a.cursor < len(a.state.Order)-1 {
			a.cursor++
		}
	case "enter", " ":
		a.expanded = !a.expanded
	case "r":
		if a.load != nil {
			return a, a.load
		}
	}
	return a, nil
}

// View renders the whole screen
func (a *App) View() string {
	if a.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(a.viewHeader())
	b.WriteString("\n")

	switch {
	case a.state.LoadError != nil:
		b.WriteString(a.theme.StatusError.Render("Failed to load rooms: " + a.state.LoadError.Error()))
		b.WriteString("\n")
	case !a.state.Loaded:
		b.WriteString(a.spinner.View() + " Loading rooms from " + a.target)
		b.WriteString("\n")
	case len(a.state.Order) == 0:
		b.WriteString(a.theme.Muted.Render("No rooms visible with this token."))
		b.WriteString("\n")
	default:
		now := a.now()
		for i, name := range a.state.Order {
			b.WriteString(a.viewRoom(a.state.Rooms[name], i == a.cursor, now))
			b.WriteString("\n")
		}
	}

	b.WriteString(a.theme.Footer.Render("↑/↓ select · enter expand · r reload · q quit"))
	return b.String()
}

func (a *App) viewHeader() string {
	var status string
	switch a.state.Status {
	case StatusConnected:
		status = a.theme.StatusSuccess.Render("● " + a.state.Status.String())
	case StatusError:
		status = a.theme.StatusError.Render("● " + a.state.Status.String())
	default:
		status = a.theme.StatusWarning.Render(a.spinner.View() + " " + a.state.Status.String())
	}
	if a.state.LastError != nil && a.state.Status != StatusConnected {
		status += a.theme.Muted.Render("  " + a.state.LastError.Error())
	}

	return a.theme.Header.Render(a.theme.Logo.Render("roomwatch") + "  " + a.theme.Muted.Render(a.target) + "  " + status)
}

func (a *App) viewRoom(room *RoomView, selected bool, now time.Time) string {
	style := a.theme.Card
	if selected {
		style = a.theme.CardSelected
	}
	alerting := room.Alerting(now)
	if alerting {
		style = a.theme.CardAlerting
	}
	if a.state.Width > 4 {
		style = style.Width(a.state.Width - 4)
	}

	lines := []string{a.theme.Title.Render(room.Summary.Name) + "  " +
		a.theme.Muted.Render(strings.Join(room.Summary.Instructions, " · "))}

	if alerting {
		remaining := time.Duration(room.Summary.CooldownMs)*time.Millisecond - now.Sub(room.LastAlertAt)
		lines = append(lines, a.theme.StatusError.Render(fmt.Sprintf("ALERT  cooldown %s", remaining.Round(time.Second))))
	}
	if room.Failures > 0 {
		lines = append(lines, a.theme.StatusWarning.Render(fmt.Sprintf("%d consecutive failed ticks", room.Failures)))
	}

	if _, ok := room.Latest(); !ok {
		lines = append(lines, a.theme.Muted.Render("no verdicts yet"))
		return style.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
	}

	count := 1
	if selected && a.expanded {
		count = len(room.Entries)
	}
	for _, entry := range room.Entries[:count] {
		lines = append(lines, a.formatEntry(entry, now))
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (a *App) formatEntry(e models.LogEntry, now time.Time) string {
	age := now.Sub(e.Timestamp).Round(time.Second)
	prefix := a.theme.Muted.Render(fmt.Sprintf("%8s ago ", age))

	if e.Kind == models.LogKindError {
		return prefix + a.theme.StatusWarning.Render("failed: "+e.Error)
	}

	verdict := a.theme.StatusSuccess.Render("ok")
	switch {
	case e.AlertFired:
		verdict = a.theme.StatusError.Render("ALERT")
	case e.ShouldAlert:
		verdict = a.theme.StatusWarning.Render("alert (cooldown)")
	}
	level := ""
	if e.AwarenessLevel != "" {
		level = a.theme.Muted.Render(" [" + string(e.AwarenessLevel) + "]")
	}
	return prefix + verdict + level + " " + e.Reasoning
}
