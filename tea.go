package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"galileo/agent"
	"galileo/config"
	"galileo/sink"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			MarginBottom(1)

	errorStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#EF4444")).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

// turnStartMsg, fragmentMsg and turnEndMsg carry the dialogue into the program.
type turnStartMsg struct {
	speaker sink.Speaker
	turn    int
}

type fragmentMsg struct {
	speaker  sink.Speaker
	fragment string
}

type turnEndMsg struct {
	speaker sink.Speaker
	turn    int
}

// dialogueDoneMsg reports why the scheduler stopped.
type dialogueDoneMsg struct {
	err error
}

// teaSink forwards fragments to a running bubbletea program.
type teaSink struct {
	program *tea.Program
}

func (s *teaSink) Emit(speaker sink.Speaker, fragment string) error {
	s.program.Send(fragmentMsg{speaker: speaker, fragment: fragment})
	return nil
}

func (s *teaSink) BeginTurn(speaker sink.Speaker, turn int) {
	s.program.Send(turnStartMsg{speaker: speaker, turn: turn})
}

func (s *teaSink) EndTurn(speaker sink.Speaker, turn int) {
	s.program.Send(turnEndMsg{speaker: speaker, turn: turn})
}

type turnView struct {
	speaker  sink.Speaker
	turn     int
	text     string
	rendered string
}

// dialogueModel is the bubbletea model for --tui.
type dialogueModel struct {
	topic    string
	spinner  spinner.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer
	turns    []turnView
	current  *turnView
	status   string
	err      error
	ready    bool
	finished bool
	quitting bool
	follow   bool
}

func newDialogueModel(topic string) dialogueModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED"))
	return dialogueModel{
		topic:   topic,
		spinner: s,
		status:  "Waiting for the first speaker...",
		follow:  true,
	}
}

func (m dialogueModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m dialogueModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := msg.Height - 5
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		}
		m.viewport.Width = msg.Width
		m.viewport.Height = height
		m.renderer = newMarkdownRenderer(msg.Width - 4)
		for i := range m.turns {
			m.turns[i].rendered = m.renderTurn(m.turns[i])
		}
		m.refresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "end", "G":
			m.follow = true
			m.viewport.GotoBottom()
		case "up", "k", "pgup", "b", "home", "g":
			m.follow = false
		}

	case turnStartMsg:
		m.current = &turnView{speaker: msg.speaker, turn: msg.turn}
		m.status = fmt.Sprintf("%s is speaking (turn %d)", msg.speaker.Name, msg.turn+1)
		m.refresh()

	case fragmentMsg:
		if m.current == nil {
			m.current = &turnView{speaker: msg.speaker}
		}
		m.current.text += msg.fragment
		m.refresh()

	case turnEndMsg:
		if m.current != nil {
			done := *m.current
			done.rendered = m.renderTurn(done)
			m.turns = append(m.turns, done)
			m.current = nil
		}
		m.refresh()

	case dialogueDoneMsg:
		m.finished = true
		m.err = msg.err
		switch {
		case msg.err == nil, errors.Is(msg.err, context.Canceled):
			m.status = "Dialogue stopped."
		default:
			m.status = "Dialogue halted."
		}
		m.current = nil
		m.refresh()

	case spinner.TickMsg:
		if !m.finished && !m.quitting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
		if m.viewport.AtBottom() {
			m.follow = true
		}
	}

	return m, tea.Batch(cmds...)
}

func (m dialogueModel) View() string {
	if m.quitting {
		return "\nGoodbye! 👋\n"
	}
	if !m.ready {
		return fmt.Sprintf("\n%s %s\n", m.spinner.View(), m.status)
	}

	header := titleStyle.Render("Dialogue on " + m.topic)

	status := statusStyle.Render(m.status)
	if !m.finished {
		status = m.spinner.View() + " " + status
	}
	if m.err != nil && !errors.Is(m.err, context.Canceled) {
		status = errorStyle.Render(m.err.Error())
	}

	footer := helpStyle.Render("↑/↓: scroll • G: follow • q/ctrl+c: quit")
	return header + "\n" + m.viewport.View() + "\n" + status + "\n" + footer
}

// refresh rebuilds the viewport from completed turns plus the live one.
func (m *dialogueModel) refresh() {
	if !m.ready {
		return
	}

	var b strings.Builder
	for _, t := range m.turns {
		b.WriteString(t.rendered)
		b.WriteString("\n")
	}
	if m.current != nil {
		style := lipgloss.NewStyle().Foreground(sink.ColorFor(m.current.speaker.Tag))
		b.WriteString(speakerHeader(m.current.speaker))
		b.WriteString("\n")
		b.WriteString(style.Width(m.viewport.Width - 2).Render(m.current.text))
		b.WriteString("\n")
	}

	m.viewport.SetContent(b.String())
	if m.follow {
		m.viewport.GotoBottom()
	}
}

// renderTurn formats a finished turn as markdown, falling back to plain text.
func (m dialogueModel) renderTurn(t turnView) string {
	body := t.text
	if m.renderer != nil {
		if rendered, err := m.renderer.Render(t.text); err == nil {
			body = strings.TrimRight(rendered, "\n")
		}
	}
	return speakerHeader(t.speaker) + "\n" + body
}

func speakerHeader(s sink.Speaker) string {
	return lipgloss.NewStyle().Bold(true).Foreground(sink.ColorFor(s.Tag)).Render(s.Name)
}

func newMarkdownRenderer(width int) *glamour.TermRenderer {
	if width < 20 {
		width = 20
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return renderer
}

// runTUI runs the dialogue and the terminal UI side by side. Quitting the UI stops the dialogue;
// a halted dialogue stays on screen until the user quits.
func runTUI(ctx context.Context, cfg *config.Config, configs [2]agent.Config, gen agent.Generator, logger *log.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(newDialogueModel(cfg.Topic), tea.WithAltScreen(), tea.WithContext(ctx))
	out := &teaSink{program: program}

	dialogue, err := newDialogue(configs, gen, out, out, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := dialogue.Run(gctx, cfg.Seed)
		program.Send(dialogueDoneMsg{err: err})
		return err
	})
	g.Go(func() error {
		_, err := program.Run()
		cancel()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})
	return g.Wait()
}
