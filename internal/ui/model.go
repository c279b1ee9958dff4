package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/satindergrewal/tonalstudy/internal/config"
	"github.com/satindergrewal/tonalstudy/internal/playback"
)

var (
	fg     = lipgloss.Color("#D8DEE9")
	accent = lipgloss.Color("#88C0D0")
	warm   = lipgloss.Color("#EBCB8B")
	rec    = lipgloss.Color("#BF616A")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1)
	textStyle   = lipgloss.NewStyle().Foreground(fg).Align(lipgloss.Center)
	promptStyle = lipgloss.NewStyle().Foreground(fg).MarginBottom(1)
	focusStyle  = lipgloss.NewStyle().Foreground(warm).Bold(true)
	recStyle    = lipgloss.NewStyle().Foreground(rec).Bold(true)
	hintStyle   = lipgloss.NewStyle().Faint(true).MarginTop(1)
)

type kind int

const (
	kindMessage kind = iota
	kindText
	kindChoice
)

// request is one blocking question put to the participant. reply has room
// for exactly one answer so the UI never waits on the controller.
type request struct {
	kind    kind
	text    string
	options []string
	reply   chan string
}

func newRequest(k kind, text string, options []string) *request {
	return &request{kind: k, text: text, options: options, reply: make(chan string, 1)}
}

type requestMsg struct{ req *request }
type progressMsg playback.Progress

type model struct {
	title   string
	playing string
	onQuit  func()

	req    *request
	input  textinput.Model
	cursor int
	prog   *playback.Progress

	width  int
	height int
}

func newModel(title, playing string, onQuit func()) model {
	ti := textinput.New()
	ti.CharLimit = 200
	ti.Width = 40
	ti.Prompt = "> "
	return model{title: title, playing: playing, onQuit: onQuit, input: ti}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case requestMsg:
		m.req = msg.req
		m.prog = nil
		m.cursor = 0
		if m.req.kind == kindText {
			m.input.Reset()
			cmd := m.input.Focus()
			return m, cmd
		}
		m.input.Blur()
		return m, nil

	case progressMsg:
		p := playback.Progress(msg)
		m.prog = &p
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.MouseMsg:
		if m.req != nil && m.req.kind == kindMessage && isClick(msg) {
			m.answer("")
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c":
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		}
		if m.req == nil {
			return m, nil
		}
		switch m.req.kind {
		case kindMessage:
			m.answer("")
		case kindChoice:
			switch msg.String() {
			case "up", "k", "w":
				m.cursor = (m.cursor - 1 + len(m.req.options)) % len(m.req.options)
			case "down", "j", "s":
				m.cursor = (m.cursor + 1) % len(m.req.options)
			case "enter", " ":
				m.answer(m.req.options[m.cursor])
			}
		case kindText:
			if msg.Type == tea.KeyEnter {
				m.answer(strings.TrimSpace(m.input.Value()))
				m.input.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

// isClick reports a button press. Wheel events arrive as presses too.
func isClick(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}
	switch msg.Button {
	case tea.MouseButtonLeft, tea.MouseButtonMiddle, tea.MouseButtonRight:
		return true
	}
	return false
}

// answer replies to the pending request and clears it.
func (m *model) answer(v string) {
	m.req.reply <- v
	m.req = nil
}

func (m model) View() string {
	var body string
	switch {
	case m.req != nil:
		body = m.requestView()
	case m.prog != nil:
		body = m.progressView()
	default:
		body = ""
	}
	if m.title != "" {
		body = lipgloss.JoinVertical(lipgloss.Center, titleStyle.Render(m.title), body)
	}
	if m.width == 0 || m.height == 0 {
		return body
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, body)
}

func (m model) requestView() string {
	switch m.req.kind {
	case kindText:
		return lipgloss.JoinVertical(lipgloss.Left,
			promptStyle.Render(m.req.text),
			m.input.View(),
			hintStyle.Render("Enter to confirm"),
		)
	case kindChoice:
		var b strings.Builder
		for i, opt := range m.req.options {
			if i == m.cursor {
				fmt.Fprintln(&b, focusStyle.Render("› "+opt))
			} else {
				fmt.Fprintln(&b, "  "+opt)
			}
		}
		return lipgloss.JoinVertical(lipgloss.Left,
			promptStyle.Render(m.req.text),
			strings.TrimRight(b.String(), "\n"),
			hintStyle.Render("↑/↓ choose  Enter confirm"),
		)
	default:
		return textStyle.Render(m.req.text)
	}
}

func (m model) progressView() string {
	p := m.prog
	line := textStyle.Render(config.Fill(m.playing, p.Index, p.Total))
	clock := formatElapsed(p.Elapsed)
	if p.Capturing {
		clock += "  " + recStyle.Render("● REC")
	}
	return lipgloss.JoinVertical(lipgloss.Center, line, "", clock)
}

func formatElapsed(d time.Duration) string {
	s := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
