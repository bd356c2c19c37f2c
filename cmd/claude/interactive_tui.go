package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/openclaude/openclaude/internal/abort"
	"github.com/openclaude/openclaude/internal/agentloop"
	"github.com/openclaude/openclaude/internal/model"
	"github.com/openclaude/openclaude/internal/tools"
)

// tuiLineKind declares the semantic role of a transcript line for styling.
type tuiLineKind string

const (
	tuiLineUser      tuiLineKind = "user"
	tuiLineUserBash  tuiLineKind = "user_bash"
	tuiLineAssistant tuiLineKind = "assistant"
	tuiLineThinking  tuiLineKind = "thinking"
	tuiLineTool      tuiLineKind = "tool"
	tuiLineSystem    tuiLineKind = "system"
	tuiLineError     tuiLineKind = "error"
)

// tuiLine is one rendered transcript entry.
type tuiLine struct {
	kind tuiLineKind
	text string
}

// tuiSpinnerInterval defines the "thinking" spinner cadence.
const tuiSpinnerInterval = 120 * time.Millisecond

var tuiSpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// tuiSpinnerVerbs rotate through the status line while a turn runs.
var tuiSpinnerVerbs = []string{
	"Brewing", "Cerebrating", "Clauding", "Cogitating", "Conjuring",
	"Crafting", "Crunching", "Deliberating", "Forging", "Mulling",
	"Noodling", "Pondering", "Ruminating", "Scheming", "Synthesizing",
}

var (
	tuiUserStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	tuiBashStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	tuiThinkingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	tuiToolStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	tuiSystemStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	tuiErrorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	tuiStatusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	tuiApprovalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
)

// agentEventMsg wraps one agentloop.Event delivered from the run goroutine.
type agentEventMsg struct {
	event agentloop.Event
}

// runDoneMsg signals that a Prompt call returned.
type runDoneMsg struct {
	err error
}

// approvalRequestMsg asks the user to confirm a tool execution. The run
// goroutine blocks on respond until the user answers.
type approvalRequestMsg struct {
	toolName string
	respond  chan error
}

// bashDoneMsg carries the result of a direct "!" shell execution.
type bashDoneMsg struct {
	command  string
	output   string
	exitCode int
	err      error
}

type tuiSpinnerTickMsg struct{}

// tuiModel is the bubbletea model for the interactive session view.
type tuiModel struct {
	session     *agentloop.AgentSession
	permissions tools.Permissions
	modelID     string

	viewport viewport.Model
	input    textarea.Model
	renderer *glamour.TermRenderer

	lines     []tuiLine
	streaming strings.Builder

	running      bool
	abortHandle  *abort.Handle
	spinnerFrame int
	spinnerVerb  int

	approval *approvalRequestMsg

	width  int
	height int
	ready  bool

	program *tea.Program
}

// runInteractiveTUI launches the terminal UI bound to the agent session.
func runInteractiveTUI(as *agentloop.AgentSession, permissions tools.Permissions, modelID string) error {
	input := textarea.New()
	input.Placeholder = "Prompt (Enter to send, ! for bash, /quit to exit)"
	input.SetHeight(3)
	input.CharLimit = 0
	input.ShowLineNumbers = false
	input.Focus()

	m := &tuiModel{
		session:     as,
		permissions: permissions,
		modelID:     modelID,
		input:       input,
	}
	m.lines = append(m.lines, tuiLine{
		kind: tuiLineSystem,
		text: fmt.Sprintf("session %s · model %s", shortID(as.Session.Header.ID), modelID),
	})

	program := tea.NewProgram(m, tea.WithAltScreen())
	m.program = program

	// Tool confirmations cross from the run goroutine into the UI and
	// back over a per-call channel; denials are absorbed into the
	// conversation as error tool results.
	as.Agent.Config.AuthorizeTool = func(name string, _ json.RawMessage) error {
		if !m.permissions.AllowsTool() {
			return fmt.Errorf("tool %s is disabled in plan mode", name)
		}
		if tools.IsPlanMode(as.Agent.Registry.EnvDir, as.Session.Header.ID) {
			return fmt.Errorf("tool %s is disabled in plan mode", name)
		}
		if !m.permissions.ShouldPrompt(name) {
			return nil
		}
		respond := make(chan error, 1)
		program.Send(approvalRequestMsg{toolName: name, respond: respond})
		return <-respond
	}

	_, err := program.Run()
	return err
}

func (m *tuiModel) Init() tea.Cmd {
	return textarea.Blink
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.resize(msg)
	case tea.KeyMsg:
		return m.handleKey(msg)
	case agentEventMsg:
		return m.handleAgentEvent(msg.event)
	case runDoneMsg:
		m.running = false
		if msg.err != nil {
			m.appendLine(tuiLine{kind: tuiLineError, text: msg.err.Error()})
		}
		return m, nil
	case approvalRequestMsg:
		request := msg
		m.approval = &request
		return m, nil
	case bashDoneMsg:
		m.running = false
		if msg.err != nil {
			m.appendLine(tuiLine{kind: tuiLineError, text: msg.err.Error()})
			return m, nil
		}
		text := msg.output
		if msg.exitCode != 0 {
			text = fmt.Sprintf("%s\n(exit %d)", msg.output, msg.exitCode)
		}
		m.appendLine(tuiLine{kind: tuiLineTool, text: text})
		return m, nil
	case tuiSpinnerTickMsg:
		if !m.running {
			return m, nil
		}
		m.spinnerFrame = (m.spinnerFrame + 1) % len(tuiSpinnerFrames)
		if m.spinnerFrame == 0 {
			m.spinnerVerb = (m.spinnerVerb + 1) % len(tuiSpinnerVerbs)
		}
		m.refreshViewport()
		return m, m.spinnerTick()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *tuiModel) resize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	inputHeight := 4
	if !m.ready {
		m.viewport = viewport.New(msg.Width, msg.Height-inputHeight-1)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - inputHeight - 1
	}
	m.input.SetWidth(msg.Width - 2)
	if renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(msg.Width-2)); err == nil {
		m.renderer = renderer
	}
	m.refreshViewport()
	return m, nil
}

func (m *tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.approval != nil {
		switch msg.String() {
		case "y", "Y":
			m.approval.respond <- nil
			m.appendLine(tuiLine{kind: tuiLineSystem, text: fmt.Sprintf("approved %s", m.approval.toolName)})
			m.approval = nil
		case "n", "N", "esc":
			m.approval.respond <- fmt.Errorf("user denied tool %s", m.approval.toolName)
			m.appendLine(tuiLine{kind: tuiLineSystem, text: fmt.Sprintf("denied %s", m.approval.toolName)})
			m.approval = nil
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyCtrlC:
		if m.running && m.abortHandle != nil {
			m.abortHandle.Abort("interrupt")
		}
		return m, tea.Quit
	case tea.KeyEsc:
		if m.running && m.abortHandle != nil {
			m.abortHandle.Abort("interrupt")
			m.appendLine(tuiLine{kind: tuiLineSystem, text: "aborting..."})
		}
		return m, nil
	case tea.KeyEnter:
		if m.running {
			return m, nil
		}
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		return m.submit(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit dispatches one line of input: slash commands, bash mode, or a
// regular prompt turn.
func (m *tuiModel) submit(text string) (tea.Model, tea.Cmd) {
	switch {
	case text == "/quit" || text == "/exit":
		return m, tea.Quit
	case text == "/help":
		m.appendLine(tuiLine{kind: tuiLineSystem, text: "/quit to exit · !cmd runs a shell command · Esc aborts a running turn"})
		return m, nil
	case strings.HasPrefix(text, "!"):
		return m.runBash(strings.TrimSpace(strings.TrimPrefix(text, "!")))
	}

	m.appendLine(tuiLine{kind: tuiLineUser, text: text})
	m.running = true
	m.streaming.Reset()
	m.abortHandle = abort.NewHandle()
	signal := m.abortHandle.Signal()
	program := m.program

	go func() {
		_, err := m.session.Prompt(context.Background(), signal, model.UserContent{Text: text}, func(ev agentloop.Event) {
			program.Send(agentEventMsg{event: ev})
		})
		program.Send(runDoneMsg{err: err})
	}()

	return m, m.spinnerTick()
}

// runBash executes a "!" line directly, recording it as a bash_execution
// session entry rather than a conversation turn.
func (m *tuiModel) runBash(command string) (tea.Model, tea.Cmd) {
	if command == "" {
		return m, nil
	}
	m.appendLine(tuiLine{kind: tuiLineUserBash, text: command})
	m.running = true
	session := m.session
	program := m.program

	go func() {
		cmd := exec.Command("bash", "-lc", command)
		var combined bytes.Buffer
		cmd.Stdout = &combined
		cmd.Stderr = &combined
		runErr := cmd.Run()
		exitCode := 0
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			runErr = nil
		}
		output := strings.TrimSpace(combined.String())
		if runErr == nil {
			runErr = session.RecordBashExecution(context.Background(), command, output, exitCode)
		}
		program.Send(bashDoneMsg{command: command, output: output, exitCode: exitCode, err: runErr})
	}()

	return m, m.spinnerTick()
}

func (m *tuiModel) handleAgentEvent(ev agentloop.Event) (tea.Model, tea.Cmd) {
	switch ev.Kind {
	case agentloop.EventText:
		m.streaming.WriteString(ev.TextDelta)
		m.refreshViewport()
	case agentloop.EventThinking:
		// Thinking deltas are summarized, not streamed verbatim.
	case agentloop.EventToolCallStarting:
		m.appendLine(tuiLine{kind: tuiLineTool, text: fmt.Sprintf("→ %s", ev.ToolCallName)})
	case agentloop.EventToolUpdate:
		if ev.ToolUpdateContent != nil && ev.ToolUpdateContent.Text != "" {
			m.appendLine(tuiLine{kind: tuiLineTool, text: "  " + ev.ToolUpdateContent.Text})
		}
	case agentloop.EventToolExecuteEnd:
		status := "ok"
		if ev.ToolIsError {
			status = "error"
		}
		m.appendLine(tuiLine{kind: tuiLineTool, text: fmt.Sprintf("← %s (%s)", ev.ToolCallName, status)})
	case agentloop.EventAssistantDone:
		m.finishAssistantMessage(ev.AssistantMessage)
	case agentloop.EventErr:
		m.appendLine(tuiLine{kind: tuiLineError, text: ev.Err.Error()})
	}
	return m, nil
}

// finishAssistantMessage replaces the raw streamed text with the final
// rendered message once a turn's assistant message completes.
func (m *tuiModel) finishAssistantMessage(msg *model.AssistantMessage) {
	m.streaming.Reset()
	if msg == nil {
		return
	}
	for _, block := range msg.Content {
		switch block.Kind {
		case model.ContentThinking:
			if block.Text != "" {
				m.appendLine(tuiLine{kind: tuiLineThinking, text: firstLine(block.Text)})
			}
		case model.ContentText:
			if block.Text != "" {
				m.appendLine(tuiLine{kind: tuiLineAssistant, text: block.Text})
			}
		}
	}
	if msg.StopReason == model.StopAborted {
		m.appendLine(tuiLine{kind: tuiLineSystem, text: "turn aborted"})
	}
}

func (m *tuiModel) appendLine(line tuiLine) {
	m.lines = append(m.lines, line)
	m.refreshViewport()
}

func (m *tuiModel) refreshViewport() {
	if !m.ready {
		return
	}
	var out strings.Builder
	for _, line := range m.lines {
		out.WriteString(m.renderLine(line))
		out.WriteByte('\n')
	}
	if m.streaming.Len() > 0 {
		out.WriteString(m.streaming.String())
		out.WriteByte('\n')
	}
	m.viewport.SetContent(out.String())
	m.viewport.GotoBottom()
}

func (m *tuiModel) renderLine(line tuiLine) string {
	switch line.kind {
	case tuiLineUser:
		return tuiUserStyle.Render("> ") + line.text
	case tuiLineUserBash:
		return tuiBashStyle.Render("! ") + line.text
	case tuiLineAssistant:
		if m.renderer != nil {
			if rendered, err := m.renderer.Render(line.text); err == nil {
				return strings.TrimRight(rendered, "\n")
			}
		}
		return line.text
	case tuiLineThinking:
		return tuiThinkingStyle.Render("✳ " + line.text)
	case tuiLineTool:
		return tuiToolStyle.Render(line.text)
	case tuiLineError:
		return tuiErrorStyle.Render("error: " + line.text)
	default:
		return tuiSystemStyle.Render(line.text)
	}
}

func (m *tuiModel) View() string {
	if !m.ready {
		return "starting..."
	}
	status := tuiStatusStyle.Render(fmt.Sprintf(" %s · %s", m.modelID, shortID(m.session.Session.Header.ID)))
	if m.running {
		status = tuiStatusStyle.Render(fmt.Sprintf(" %s %s… (Esc to abort)",
			tuiSpinnerFrames[m.spinnerFrame], tuiSpinnerVerbs[m.spinnerVerb]))
	}
	if m.approval != nil {
		status = tuiApprovalStyle.Render(fmt.Sprintf(" Allow tool %s? (y/n)", m.approval.toolName))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		status,
		m.input.View(),
	)
}

func (m *tuiModel) spinnerTick() tea.Cmd {
	return tea.Tick(tuiSpinnerInterval, func(time.Time) tea.Msg {
		return tuiSpinnerTickMsg{}
	})
}

// shortID abbreviates a session id for the status line.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// firstLine truncates multi-line thinking text to its first line.
func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx] + " …"
	}
	return text
}
