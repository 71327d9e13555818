package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/borgesius/babylon-scriptorium/internal/events"
	"github.com/borgesius/babylon-scriptorium/internal/task"
)

var (
	styleRole = map[string]lipgloss.Style{
		"analyzer":    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		"planner":     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"executor":    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"reviewer":    lipgloss.NewStyle().Foreground(lipgloss.Color("213")),
		"coordinator": lipgloss.NewStyle().Foreground(lipgloss.Color("99")),
		"steward":     lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		"oracle":      lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
	}
	styleMuted     = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	styleError     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleOK        = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	styleHeader    = lipgloss.NewStyle().Bold(true).Underline(true)
	styleNudge     = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Italic(true)
	maxScrollLines = 2000
)

// lineMsg is sent into the running bubbletea program by HandleEvent; it is
// the only message type the model's Update needs to handle besides the
// framework's own window-size and key messages.
type lineMsg string

// terminalModel is a minimal scrolling log view: it keeps the last
// maxScrollLines rendered lines and redraws on every event or resize.
type terminalModel struct {
	lines  []string
	width  int
	height int
}

func (m terminalModel) Init() tea.Cmd { return nil }

func (m terminalModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case lineMsg:
		m.lines = append(m.lines, string(msg))
		if len(m.lines) > maxScrollLines {
			m.lines = m.lines[len(m.lines)-maxScrollLines:]
		}
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m terminalModel) View() string {
	lines := m.lines
	if m.height > 2 && len(lines) > m.height-1 {
		lines = lines[len(lines)-(m.height-1):]
	}
	return strings.Join(lines, "\n")
}

// terminalRenderer drives a bubbletea program on a background goroutine
// and feeds it one lineMsg per interesting event, styled with lipgloss.
// agent:content text that contains a code fence or a "# " heading is
// rendered as markdown through glamour before being sent in, so
// long-form agent output reads like a formatted document rather than a
// raw text dump; other content is sent as is.
type terminalRenderer struct {
	program *tea.Program
	done    chan struct{}
	md      *glamour.TermRenderer
}

func newTerminalRenderer() *terminalRenderer {
	md, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		md = nil
	}
	r := &terminalRenderer{done: make(chan struct{}), md: md}
	r.program = tea.NewProgram(terminalModel{}, tea.WithoutSignalHandler())
	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return r
}

func (r *terminalRenderer) send(line string) {
	if r.program == nil {
		return
	}
	r.program.Send(lineMsg(line))
}

func (r *terminalRenderer) Close() error {
	if r.program == nil {
		return nil
	}
	r.program.Quit()
	<-r.done
	return nil
}

func (r *terminalRenderer) renderMarkdown(content string) string {
	if r.md == nil {
		return content
	}
	out, err := r.md.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

func roleStyle(role string) lipgloss.Style {
	if s, ok := styleRole[role]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

func (r *terminalRenderer) HandleEvent(_ context.Context, ev events.Event) error {
	ts := time.UnixMilli(ev.Timestamp()).Format("15:04:05")
	prefix := styleMuted.Render(ts)

	switch e := ev.(type) {
	case *events.WorkflowStartEvent:
		r.send(fmt.Sprintf("%s %s", prefix, styleHeader.Render("▶ "+e.Description)))
	case *events.WorkflowCompleteEvent:
		style := styleOK
		if e.Status != task.StatusCompleted {
			style = styleError
		}
		r.send(fmt.Sprintf("%s %s (%s)", prefix, style.Render("■ "+string(e.Status)), e.Duration.Round(time.Millisecond)))
	case *events.StepStartEvent:
		r.send(fmt.Sprintf("%s %s starting", prefix, roleStyle(e.Role).Render(e.Role)))
	case *events.StepCompleteEvent:
		style := styleOK
		if e.Status != task.AgentCompleted {
			style = styleError
		}
		r.send(fmt.Sprintf("%s %s %s (%d tokens in, %d out, %s)", prefix, roleStyle(e.Role).Render(e.Role), style.Render(string(e.Status)), e.Usage.PromptTokens, e.Usage.CompletionTokens, e.Duration.Round(time.Millisecond)))
	case *events.StepRetryEvent:
		r.send(fmt.Sprintf("%s %s (attempt %d/%d): %s", prefix, styleNudge.Render("↻ retry"), e.Attempt, e.MaxRetries, e.Reason))
	case *events.AgentToolCallEvent:
		r.send(fmt.Sprintf("%s   %s", prefix, styleMuted.Render("→ "+e.ToolName)))
	case *events.AgentContentEvent:
		content := e.Content
		if strings.Contains(content, "```") || strings.Contains(content, "# ") {
			content = r.renderMarkdown(content)
		}
		r.send(content)
	case *events.SubtaskStartEvent:
		r.send(fmt.Sprintf("%s %s [%d] %s", prefix, styleMuted.Render("├─ subtask"), e.Index, e.Description))
	case *events.SubtaskCompleteEvent:
		r.send(fmt.Sprintf("%s %s [%d] %s", prefix, styleMuted.Render("└─ subtask"), e.Index, e.Status))
	case *events.CompositeCycleStartEvent:
		r.send(fmt.Sprintf("%s %s %d", prefix, styleHeader.Render("composite cycle"), e.Cycle))
	case *events.OracleInvokedEvent:
		r.send(fmt.Sprintf("%s %s", prefix, styleNudge.Render("⚖ oracle consulted")))
	case *events.OracleDecisionEvent:
		r.send(fmt.Sprintf("%s %s %s", prefix, styleNudge.Render("⚖ oracle decided"), e.Action))
	case *events.OversightCheckInEvent:
		if e.Nudge != "" {
			r.send(fmt.Sprintf("%s %s %s", prefix, styleNudge.Render("☂ steward voice:"), e.Nudge))
		}
	case *events.CostUpdateEvent:
		r.send(fmt.Sprintf("%s %s $%.4f", prefix, styleMuted.Render("cost so far"), e.TotalCost))
	}
	return nil
}
