package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	session "github.com/voxprep/voxprep-core/core"
)

const eventBufferSize = 64

type statusMsg struct {
	state session.ConnectionState
	text  string
}

type chatMsg struct {
	sender      string
	text        string
	messageType string
}

type assistantDeltaMsg struct {
	delta string
}

type interruptedMsg struct{}

type sessionErrMsg struct {
	err error
}

type sessionStartedMsg struct {
	err error
}

type sessionStoppedMsg struct {
	err error
}

type chatLine struct {
	sender string
	text   string
}

type uiTheme struct {
	header      lipgloss.Style
	panel       lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	helpText    lipgloss.Style
	senders     map[string]lipgloss.Style
}

func newTheme() uiTheme {
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	pink := lipgloss.Color("#ff71ce")
	muted := lipgloss.Color("#9ca3d8")

	return uiTheme{
		header: lipgloss.NewStyle().
			Foreground(blue).
			Bold(true).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),
		status:      lipgloss.NewStyle().Foreground(blue).Bold(true),
		errorStatus: lipgloss.NewStyle().Foreground(pink).Bold(true),
		helpText:    lipgloss.NewStyle().Foreground(muted),
		senders: map[string]lipgloss.Style{
			"user":      lipgloss.NewStyle().Foreground(mint).Bold(true),
			"assistant": lipgloss.NewStyle().Foreground(blue).Bold(true),
			"system":    lipgloss.NewStyle().Foreground(muted).Bold(true),
		},
	}
}

type model struct {
	controller *session.Controller
	cfg        appConfig

	events chan tea.Msg

	transcript viewport.Model
	spinner    spinner.Model
	theme      uiTheme

	lines            []chatLine
	assistantPartial string
	statusLine       string
	statusIsError    bool
	sessionActive    bool
	busy             bool
	quitting         bool

	width  int
	height int
}

func newModel(controller *session.Controller, cfg appConfig) model {
	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	return model{
		controller: controller,
		cfg:        cfg,
		events:     make(chan tea.Msg, eventBufferSize),
		transcript: viewport.New(0, 0),
		spinner:    sp,
		theme:      newTheme(),
		statusLine: "Press s to start a session.",
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

// waitForEvent bridges callbacks fired on session goroutines into the
// bubbletea update loop. It re-arms itself after every delivery.
func (m model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return <-events
	}
}

func (m model) startCmd() tea.Cmd {
	controller := m.controller
	cfg := m.cfg
	events := m.events
	return func() tea.Msg {
		opts := []session.StartOption{
			session.WithStatusCallback(func(state session.ConnectionState, text string) {
				events <- statusMsg{state: state, text: text}
			}),
			session.WithMessageCallback(func(sender, text, messageType string) {
				events <- chatMsg{sender: sender, text: text, messageType: messageType}
			}),
			session.WithAssistantTranscriptCallback(func(delta string) {
				events <- assistantDeltaMsg{delta: delta}
			}),
			session.WithResponseInterruptedCallback(func(string) {
				events <- interruptedMsg{}
			}),
			session.WithErrorCallback(func(err error) {
				events <- sessionErrMsg{err: err}
			}),
		}
		if cfg.model != "" {
			opts = append(opts, session.WithModel(cfg.model))
		}
		if cfg.endpoint != "" {
			opts = append(opts, session.WithEndpoint(cfg.endpoint))
		}
		if cfg.apiKey != "" {
			opts = append(opts, session.WithAPIKey(cfg.apiKey))
		}
		return sessionStartedMsg{err: controller.Start(context.Background(), opts...)}
	}
}

func (m model) stopCmd() tea.Cmd {
	controller := m.controller
	return func() tea.Msg {
		return sessionStoppedMsg{err: controller.Stop(context.Background())}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.transcript.Width = max(msg.Width-4, 10)
		m.transcript.Height = max(msg.Height-6, 3)
		m.refreshTranscript()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			if m.sessionActive || m.busy {
				m.busy = true
				m.statusLine = "Stopping session..."
				return m, m.stopCmd()
			}
			return m, tea.Quit
		case "s":
			if m.sessionActive || m.busy {
				return m, nil
			}
			m.busy = true
			m.statusIsError = false
			m.statusLine = "Starting session..."
			return m, m.startCmd()
		case "x":
			if !m.sessionActive || m.busy {
				return m, nil
			}
			m.busy = true
			m.statusLine = "Stopping session..."
			return m, m.stopCmd()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case sessionStartedMsg:
		m.busy = false
		if msg.err != nil {
			m.statusIsError = true
			m.statusLine = fmt.Sprintf("Start failed: %v", msg.err)
			return m, m.waitForEvent()
		}
		m.sessionActive = true
		return m, m.waitForEvent()

	case sessionStoppedMsg:
		m.busy = false
		m.sessionActive = false
		m.assistantPartial = ""
		if msg.err != nil {
			m.statusIsError = true
			m.statusLine = fmt.Sprintf("Stop failed: %v", msg.err)
		}
		if m.quitting {
			return m, tea.Quit
		}
		m.refreshTranscript()
		return m, m.waitForEvent()

	case statusMsg:
		m.statusIsError = msg.state == session.StateError
		m.statusLine = msg.text
		if msg.state == session.StateSessionStopped || msg.state == session.StateDisconnected {
			m.sessionActive = false
		}
		return m, m.waitForEvent()

	case chatMsg:
		if msg.sender == "assistant" {
			m.assistantPartial = ""
		}
		m.lines = append(m.lines, chatLine{sender: msg.sender, text: msg.text})
		m.refreshTranscript()
		return m, m.waitForEvent()

	case assistantDeltaMsg:
		m.assistantPartial += msg.delta
		m.refreshTranscript()
		return m, m.waitForEvent()

	case interruptedMsg:
		if m.assistantPartial != "" {
			m.lines = append(m.lines, chatLine{sender: "assistant", text: m.assistantPartial + " [interrupted]"})
			m.assistantPartial = ""
			m.refreshTranscript()
		}
		return m, m.waitForEvent()

	case sessionErrMsg:
		m.statusIsError = true
		m.statusLine = msg.err.Error()
		return m, m.waitForEvent()
	}

	var cmd tea.Cmd
	m.transcript, cmd = m.transcript.Update(msg)
	return m, cmd
}

func (m *model) refreshTranscript() {
	width := m.transcript.Width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	for _, line := range m.lines {
		b.WriteString(m.renderLine(line, width))
		b.WriteString("\n")
	}
	if m.assistantPartial != "" {
		b.WriteString(m.renderLine(chatLine{sender: "assistant", text: m.assistantPartial}, width))
		b.WriteString("\n")
	}
	m.transcript.SetContent(b.String())
	m.transcript.GotoBottom()
}

func (m *model) renderLine(line chatLine, width int) string {
	style, ok := m.theme.senders[line.sender]
	if !ok {
		style = m.theme.senders["system"]
	}
	label := style.Render(line.sender + ":")
	return label + " " + wordwrap.String(line.text, max(width-len(line.sender)-2, 20))
}

func (m model) View() string {
	header := m.theme.header.Render("voxprep voice session")

	status := m.statusLine
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	statusStyle := m.theme.status
	if m.statusIsError {
		statusStyle = m.theme.errorStatus
	}

	help := m.theme.helpText.Render("s start | x stop | q quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.theme.panel.Render(m.transcript.View()),
		statusStyle.Render(status),
		help,
	)
}
