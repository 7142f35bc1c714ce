package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"biblerag/internal/domain"
	"biblerag/internal/retrieval"
	"biblerag/internal/service"
)

// AskPort is the TUI-facing subset of the RAG service.
type AskPort interface {
	Ask(ctx context.Context, sessionID, question string, mode domain.Mode) (service.Reply, error)
}

type turn struct {
	question string
	reply    service.Reply
}

type answerMsg struct {
	question string
	reply    service.Reply
	err      error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	service   AskPort
	timeout   time.Duration
	input     textinput.Model
	viewport  viewport.Model
	turns     []turn
	mode      domain.Mode
	sessionID string
	status    string
	pending   bool
	ready     bool
}

// New creates a chat model. timeout bounds each question; zero means none.
func New(service AskPort, mode domain.Mode, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about scripture and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service:  service,
		timeout:  timeout,
		input:    ti,
		viewport: vp,
		mode:     mode,
		status:   "Ready. Tab switches mode.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around transcript and query boxes
		_, rh := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 1                                    // header
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.refresh()
		return m, nil
	case answerMsg:
		m.pending = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.sessionID = msg.reply.SessionID
		m.turns = append(m.turns, turn{question: msg.question, reply: msg.reply})
		m.status = fmt.Sprintf("%s via %s", msg.reply.Outcome, msg.reply.Method)
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "tab":
			if m.mode == domain.ModeScriptureOnly {
				m.mode = domain.ModeScriptureWithCommentary
			} else {
				m.mode = domain.ModeScriptureOnly
			}
			m.status = "Mode: " + modeLabel(m.mode)
			return m, nil
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.pending = true
			m.input.SetValue("")
			m.status = "Thinking..."
			return m, m.ask(q)
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(q string) tea.Cmd {
	svc, sessionID, mode, timeout := m.service, m.sessionID, m.mode, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		reply, err := svc.Ask(ctx, sessionID, q, mode)
		return answerMsg{question: q, reply: reply, err: err}
	}
}

// View renders the TUI layout and the transcript.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Scripture Chat") + "  " +
		modeStyle.Render("["+modeLabel(m.mode)+"]")
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return "No questions yet. Try \"Explain Genesis 3\"."
	}
	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: " + t.question))
		b.WriteString("\n")
		b.WriteString(highlightBestLine(t.reply.Answer, t.question))
	}
	return b.String()
}

func modeLabel(mode domain.Mode) string {
	if mode == domain.ModeScriptureWithCommentary {
		return "Scripture + Commentary"
	}
	return "Scripture Only"
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	questionStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	modeStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// highlightBestLine emphasizes the answer line sharing the most words with
// the question. Answers are line oriented (one verse per line).
func highlightBestLine(text, query string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	terms := retrieval.Terms(query)
	if len(terms) == 0 || len(lines) < 2 {
		return strings.Join(lines, "\n")
	}
	bestIdx := -1
	bestScore := 0
	for i, l := range lines {
		if score, _ := retrieval.Overlap(terms, l); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx >= 0 {
		lines[bestIdx] = highlightStyle.Render(lines[bestIdx])
	}
	return strings.Join(lines, "\n")
}
