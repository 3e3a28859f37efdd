// internal/tui/app.go
//
// Terminal dashboard for the engine, built on bubbletea's Elm-style loop:
// Model holds state, Update folds messages into the model, View renders it.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/foundry/internal/agent"
	"github.com/kingrea/foundry/internal/logbook"
	"github.com/kingrea/foundry/internal/orchestrator"
	"github.com/kingrea/foundry/internal/task"
)

// appState represents which "screen" we're on.
type appState int

const (
	stateBoard      appState = iota // Task board with cost meter
	stateTypeSelect                 // Agent type picker for a new task
	statePromptEdit                 // Prompt entry for a new task
)

const boardRefreshInterval = 2 * time.Second

// Engine is the orchestrator surface the dashboard drives.
type Engine interface {
	Submit(req orchestrator.SubmitRequest) (string, error)
	Cancel(id string) error
	List(f orchestrator.Filter) []task.Task
	ConfirmCostContinue()
	Agents() []agent.Descriptor
	System() orchestrator.SystemStatus
}

type refreshMsg struct {
	tasks  []task.Task
	system orchestrator.SystemStatus
}

type refreshTickMsg struct{}

// agentOption implements list.Item for the type picker.
type agentOption struct {
	taskType task.Type
	name     string
	model    string
}

func (o agentOption) Title() string       { return string(o.taskType) }
func (o agentOption) Description() string { return fmt.Sprintf("%s · %s", o.name, o.model) }
func (o agentOption) FilterValue() string { return string(o.taskType) }

// App is the dashboard model. It holds all UI state.
type App struct {
	state   appState
	engine  Engine
	logbook *logbook.Logbook

	tasks     []task.Task
	system    orchestrator.SystemStatus
	selection int
	statusMsg string

	typeMenu    list.Model
	promptInput textinput.Model
	spin        spinner.Model
	chosenType  task.Type

	width  int
	height int
}

// AppOption customizes App construction.
type AppOption func(*App)

// WithLogbook attaches a logbook for UI-side diagnostics.
func WithLogbook(l *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = l
	}
}

// NewApp builds the dashboard over a running engine.
func NewApp(engine Engine, opts ...AppOption) (*App, error) {
	if engine == nil {
		return nil, fmt.Errorf("tui: engine is required")
	}
	items := []list.Item{}
	for _, d := range engine.Agents() {
		items = append(items, agentOption{taskType: d.Type, name: d.Name, model: d.Model})
	}
	typeMenu := list.New(items, list.NewDefaultDelegate(), 0, 0)
	typeMenu.Title = "New Task · Agent Type"
	typeMenu.SetShowStatusBar(false)
	typeMenu.SetFilteringEnabled(false)

	promptInput := textinput.New()
	promptInput.Placeholder = "Describe the work…"
	promptInput.CharLimit = 2000
	promptInput.Width = 60

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	app := &App{
		state:       stateBoard,
		engine:      engine,
		typeMenu:    typeMenu,
		promptInput: promptInput,
		spin:        spin,
		statusMsg:   "n → new task    c → confirm cost pause    x → cancel    q → quit",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	return app, nil
}

func (a *App) logInfo(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Info(format, args...)
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.fetchSnapshot(), a.spin.Tick)
}

func (a *App) fetchSnapshot() tea.Cmd {
	engine := a.engine
	return func() tea.Msg {
		return refreshMsg{
			tasks:  engine.List(orchestrator.Filter{}),
			system: engine.System(),
		}
	}
}

func (a *App) scheduleRefresh() tea.Cmd {
	return tea.Tick(boardRefreshInterval, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

// Update folds a message into the model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.typeMenu.SetSize(max(0, msg.Width-6), max(0, msg.Height-10))
		return a, nil

	case refreshTickMsg:
		return a, a.fetchSnapshot()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd

	case refreshMsg:
		a.tasks = msg.tasks
		a.system = msg.system
		if len(a.tasks) == 0 {
			a.selection = 0
		} else if a.selection >= len(a.tasks) {
			a.selection = len(a.tasks) - 1
		}
		return a, a.scheduleRefresh()

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a.updateFocusedComponent(msg)
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c":
		return a, tea.Quit
	case "q":
		if a.state == stateBoard {
			return a, tea.Quit
		}
	case "esc":
		if a.state != stateBoard {
			a.state = stateBoard
			a.statusMsg = "Cancelled"
			return a, nil
		}
	case "enter":
		switch a.state {
		case stateTypeSelect:
			return a.confirmTypeSelection()
		case statePromptEdit:
			return a.submitTask()
		}
	}

	if a.state == stateBoard {
		switch key {
		case "n":
			a.state = stateTypeSelect
			a.statusMsg = "Pick an agent type"
			return a, nil
		case "r":
			return a, a.fetchSnapshot()
		case "c":
			a.engine.ConfirmCostContinue()
			a.logInfo("Cost pause confirmed from dashboard")
			a.statusMsg = "Cost pause confirmed, queue resumed"
			return a, a.fetchSnapshot()
		case "x":
			return a.cancelSelected()
		case "up", "k":
			if a.selection > 0 {
				a.selection--
			}
			return a, nil
		case "down", "j":
			if a.selection < len(a.tasks)-1 {
				a.selection++
			}
			return a, nil
		}
	}

	return a.updateFocusedComponent(msg)
}

func (a *App) updateFocusedComponent(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.state {
	case stateTypeSelect:
		a.typeMenu, cmd = a.typeMenu.Update(msg)
	case statePromptEdit:
		a.promptInput, cmd = a.promptInput.Update(msg)
	}
	return a, cmd
}

func (a *App) confirmTypeSelection() (tea.Model, tea.Cmd) {
	item, ok := a.typeMenu.SelectedItem().(agentOption)
	if !ok {
		a.statusMsg = "No agent types available"
		return a, nil
	}
	a.chosenType = item.taskType
	a.state = statePromptEdit
	a.promptInput.SetValue("")
	a.promptInput.Focus()
	a.statusMsg = fmt.Sprintf("New %s task · Enter → submit, Esc → back", a.chosenType)
	return a, textinput.Blink
}

func (a *App) submitTask() (tea.Model, tea.Cmd) {
	prompt := strings.TrimSpace(a.promptInput.Value())
	if prompt == "" {
		a.statusMsg = "Prompt is required"
		return a, nil
	}
	id, err := a.engine.Submit(orchestrator.SubmitRequest{Type: a.chosenType, Prompt: prompt})
	if err != nil {
		a.statusMsg = fmt.Sprintf("Submit failed: %v", err)
		return a, nil
	}
	a.logInfo("Dashboard submitted task %s (%s)", id, a.chosenType)
	a.state = stateBoard
	a.statusMsg = fmt.Sprintf("Task %s queued", shortID(id))
	return a, a.fetchSnapshot()
}

func (a *App) cancelSelected() (tea.Model, tea.Cmd) {
	if a.selection >= len(a.tasks) {
		return a, nil
	}
	target := a.tasks[a.selection]
	if err := a.engine.Cancel(target.ID); err != nil {
		a.statusMsg = fmt.Sprintf("Cancel failed: %v", err)
		return a, nil
	}
	a.logInfo("Dashboard cancelled task %s", target.ID)
	a.statusMsg = fmt.Sprintf("Cancelling %s", shortID(target.ID))
	return a, a.fetchSnapshot()
}

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF9E3B")).
		MarginBottom(1).
		Render("⚒ FOUNDRY")

	var content string
	switch a.state {
	case stateTypeSelect:
		content = a.typeMenu.View()
	case statePromptEdit:
		content = a.renderPromptEditor()
	default:
		content = a.renderBoard(width - 6)
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(40, width-2)).
		Render(lipgloss.JoinVertical(lipgloss.Left, a.renderCostPanel(), "", content))

	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(a.statusMsg)
	return strings.Join([]string{header, box, footer, a.renderLogPanel()}, "\n")
}

func (a *App) renderCostPanel() string {
	cost := a.system.Cost
	busy := " "
	if a.system.Running > 0 {
		busy = a.spin.View()
	}
	line := fmt.Sprintf("%s Spend: $%.4f / $%.2f · running %d · queued %d",
		busy, cost.TotalUSD, cost.LimitUSD, a.system.Running, a.system.Queued)
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))
	if cost.Paused {
		style = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
		line += "  ⚠ PAUSED · press c to confirm and continue"
	}
	return style.Render(line)
}

func (a *App) renderBoard(width int) string {
	if len(a.tasks) == 0 {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).
			Render("No tasks yet. Press n to submit one.")
	}
	rows := make([]string, 0, len(a.tasks))
	for i, t := range a.tasks {
		marker := "  "
		if i == a.selection {
			marker = "▸ "
		}
		row := fmt.Sprintf("%s%-9s %-12s %3d%%  $%.4f  %s",
			marker, shortID(t.ID), t.Status, t.Progress, t.CostUSD, truncate(t.Prompt, max(10, width-50)))
		if i == a.selection {
			row = lipgloss.NewStyle().Bold(true).Render(row)
		}
		rows = append(rows, row)
	}
	return strings.Join(rows, "\n")
}

func (a *App) renderPromptEditor() string {
	title := lipgloss.NewStyle().Bold(true).
		Render(fmt.Sprintf("New %s task", a.chosenType))
	hint := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		MarginTop(1).
		Render("Enter → submit    Esc → back")
	return lipgloss.JoinVertical(lipgloss.Left, title, a.promptInput.View(), hint)
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, _ := a.logbook.Tail(6)
	if len(lines) == 0 {
		return ""
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render("LOG")
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}

// Run starts the dashboard program and blocks until it exits.
func Run(engine Engine, opts ...AppOption) error {
	app, err := NewApp(engine, opts...)
	if err != nil {
		return err
	}
	program := tea.NewProgram(app, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncate(s string, limit int) string {
	if limit <= 3 || len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
