// ABOUTME: Live conversation console built on bubbletea.
// ABOUTME: Renders engine snapshots in a viewport with streamed updates.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389/coven-client/internal/api"
	"github.com/2389/coven-client/internal/config"
	"github.com/2389/coven-client/internal/conversation"
	"github.com/2389/coven-client/internal/engine"
)

var version = "dev"

type theme struct {
	user      lipgloss.Style
	assistant lipgloss.Style
	system    lipgloss.Style
	tool      lipgloss.Style
	pending   lipgloss.Style
	errBanner lipgloss.Style
	status    lipgloss.Style
}

func newTheme() theme {
	return theme{
		user:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		assistant: lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		system:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		tool:      lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		pending:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true),
		errBanner: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		status:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// snapshotMsg carries one snapshot from the engine subscription.
type snapshotMsg struct {
	snap *conversation.Snapshot
}

// snapshotClosedMsg signals the subscription channel closed.
type snapshotClosedMsg struct{}

// sendDoneMsg reports the outcome of a background send.
type sendDoneMsg struct {
	err error
}

type model struct {
	e              *engine.Engine
	ctx            context.Context
	conversationID string
	theme          theme

	snapshots <-chan *conversation.Snapshot
	snap      *conversation.Snapshot

	input      textinput.Model
	transcript viewport.Model
	spin       spinner.Model

	width  int
	height int
	ready  bool
	status string
}

func newModel(ctx context.Context, e *engine.Engine, conversationID string) model {
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 4000
	input.Placeholder = "Message (esc quits)"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))

	ch, _ := e.Subscribe(ctx, conversationID)

	return model{
		e:              e,
		ctx:            ctx,
		conversationID: conversationID,
		theme:          newTheme(),
		snapshots:      ch,
		snap:           e.Snapshot(),
		input:          input,
		transcript:     viewport.New(0, 0),
		spin:           sp,
		status:         "connected",
	}
}

func waitForSnapshot(ch <-chan *conversation.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return snapshotClosedMsg{}
		}
		return snapshotMsg{snap: snap}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spin.Tick,
		textinput.Blink,
		waitForSnapshot(m.snapshots),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.transcript.Width = msg.Width
		m.transcript.Height = msg.Height - 3
		m.input.Width = msg.Width - 4
		m.ready = true
		m.refreshTranscript()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				break
			}
			m.input.SetValue("")
			m.status = "sending..."
			cmds = append(cmds, m.sendCmd(text))
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.transcript, cmd = m.transcript.Update(msg)
			cmds = append(cmds, cmd)
		}

	case snapshotMsg:
		m.snap = msg.snap
		m.status = statusLine(msg.snap)
		m.refreshTranscript()
		m.transcript.GotoBottom()
		cmds = append(cmds, waitForSnapshot(m.snapshots))

	case snapshotClosedMsg:
		m.status = "disconnected"

	case sendDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("send failed: %v", msg.err)
		} else {
			m.status = "sent"
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m model) sendCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return sendDoneMsg{err: m.e.Send(m.ctx, text, nil)}
	}
}

func statusLine(snap *conversation.Snapshot) string {
	switch snap.Status {
	case conversation.StatusInProgress:
		if snap.ActiveAgent != "" {
			return snap.ActiveAgent + " is responding"
		}
		return "responding"
	case conversation.StatusErrored:
		return "errored"
	case conversation.StatusCompleted:
		return "idle"
	default:
		return "connected"
	}
}

// refreshTranscript rebuilds the viewport content from the snapshot,
// interleaving tool calls under the messages they are anchored to.
func (m *model) refreshTranscript() {
	if m.snap == nil {
		return
	}
	var b strings.Builder

	if m.snap.HistoryError != "" {
		b.WriteString(m.theme.errBanner.Render("! "+m.snap.HistoryError) + "\n\n")
	}

	for _, msg := range m.snap.Messages {
		b.WriteString(m.renderMessage(msg))
		for _, toolID := range m.snap.Anchored[msg.ID] {
			if tc, ok := m.snap.ToolCall(toolID); ok {
				b.WriteString(m.renderTool(tc))
			}
		}
		b.WriteString("\n")
	}

	for _, toolID := range m.snap.Unanchored {
		if tc, ok := m.snap.ToolCall(toolID); ok {
			b.WriteString(m.renderTool(tc))
		}
	}

	if m.snap.ErrorMessage != "" {
		b.WriteString(m.theme.errBanner.Render("! "+m.snap.ErrorMessage) + "\n")
	}

	m.transcript.SetContent(b.String())
}

func (m *model) renderMessage(msg conversation.Message) string {
	label := string(msg.Role)
	style := m.theme.system
	switch msg.Role {
	case conversation.RoleUser:
		label, style = "you", m.theme.user
	case conversation.RoleAssistant:
		label, style = "agent", m.theme.assistant
	}

	line := style.Render(label+":") + " " + msg.Content
	if msg.Pending {
		line += " " + m.theme.pending.Render("(sending)")
	}
	if msg.Streaming {
		line += " " + m.spin.View()
	}
	return line + "\n"
}

func (m *model) renderTool(tc conversation.ToolCall) string {
	status := string(tc.Status)
	return m.theme.tool.Render(fmt.Sprintf("  [%s] %s", tc.Name, status)) + "\n"
}

func (m model) View() string {
	if !m.ready {
		return "loading..."
	}

	header := m.theme.status.Render(fmt.Sprintf("coven-console · %s · %s", m.conversationID, m.status))
	return header + "\n" + m.transcript.View() + "\n" + m.input.View()
}

func main() {
	server := flag.String("server", "", "Gateway server URL (overrides config)")
	configPath := flag.String("config", "", "Config file path")
	conversationID := flag.String("conversation", "", "Conversation to open")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("coven-console %s\n", version)
		return
	}
	if *conversationID == "" {
		fmt.Fprintln(os.Stderr, "Usage: coven-console -conversation <id> [-server <url>]")
		os.Exit(1)
	}

	cfg := loadConfig(*configPath, *server)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	token, err := cfg.ResolveToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := engine.New(engine.Options{
		API:             api.New(cfg.Server.BaseURL, token, logger),
		Logger:          logger,
		TitleTimeout:    cfg.Timing.TitlePendingTimeout,
		MetadataTimeout: cfg.Timing.MetadataPendingTimeout,
		SearchDebounce:  cfg.Timing.SearchDebounce,
		HistoryPageSize: cfg.History.PageSize,
	})
	defer e.Close()
	e.StartAccountStreams(ctx)
	e.OpenConversation(ctx, *conversationID)

	p := tea.NewProgram(newModel(ctx, e, *conversationID), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path, serverFlag string) *config.Config {
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		cfg = &config.Config{}
		cfg.Server.BaseURL = "http://localhost:8080"
	}
	if serverFlag != "" {
		cfg.Server.BaseURL = serverFlag
	}
	return cfg
}
