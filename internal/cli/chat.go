package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textinput"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/mlundqvist/matechat-go/internal/chat"
	"github.com/mlundqvist/matechat-go/internal/models"
	"github.com/mlundqvist/matechat-go/internal/settings"
)

var (
	chatLanguage  string
	chatModelFlag string
)

var chatCmd = &cobra.Command{
	Use:   "chat [conversation-id]",
	Short: "Start or continue a conversation",
	Long: `Open the interactive chat view. Without an argument a new
conversation starts on your first message; with a conversation id the
existing transcript is loaded.

Each message you send triggers three replies: Editor Mate comments on
your text, Chat Mate answers in the target language, and Editor Mate
explains that answer.

Keys: enter sends, esc cancels the replies in flight, ctrl+c quits.

Examples:
  matechat chat
  matechat chat 4f7c...
  matechat chat --language Japanese --model gpt-4o`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatLanguage, "language", "l", "", "target language for a new conversation")
	chatCmd.Flags().StringVarP(&chatModelFlag, "model", "m", "", "model for a new conversation")
}

func runChat(cmd *cobra.Command, args []string) error {
	listener := &uiListener{}
	orch := chat.NewOrchestrator(st, settings.NewResolver(st), aiClient, chat.Options{
		Metrics:  stats,
		Listener: listener,
	})

	if len(args) > 0 {
		if err := orch.SetConversation(args[0]); err != nil {
			return fmt.Errorf("load conversation: %w", err)
		}
	}
	orch.SetPendingSelection(chatLanguage, chatModelFlag)

	model := newChatModel(orch)
	p := tea.NewProgram(model)
	listener.attach(p.Send)

	_, err := p.Run()
	orch.Wait()
	if err != nil {
		return fmt.Errorf("chat UI error: %w", err)
	}
	return nil
}

// uiListener forwards orchestrator callbacks into the running bubbletea
// program. Callbacks arriving before the program starts are dropped;
// the first render reads the full state anyway.
type uiListener struct {
	send func(tea.Msg)
}

func (l *uiListener) attach(send func(tea.Msg)) { l.send = send }

func (l *uiListener) post(msg tea.Msg) {
	if l.send != nil {
		l.send(msg)
	}
}

func (l *uiListener) ConversationCreated(id string) { l.post(transcriptChangedMsg{}) }
func (l *uiListener) ConversationUpdated()          { l.post(transcriptChangedMsg{}) }
func (l *uiListener) MessageUpdated(models.Message) { l.post(transcriptChangedMsg{}) }

func (l *uiListener) Notify(level chat.NotifyLevel, message string) {
	l.post(noticeMsg{level: level, text: message})
}

// Messages flowing through the chat UI.
type transcriptChangedMsg struct{}

type noticeMsg struct {
	level chat.NotifyLevel
	text  string
}

type roundDoneMsg struct{ err error }

// chatTheme holds the color scheme for the chat view.
type chatTheme struct {
	User      lipgloss.Color
	ChatMate  lipgloss.Color
	Editor    lipgloss.Color
	Reasoning lipgloss.Color
	Notice    lipgloss.Color
	Error     lipgloss.Color
}

var defaultChatTheme = chatTheme{
	User:      lipgloss.Color("#5FAFD7"), // light blue
	ChatMate:  lipgloss.Color("#00D787"), // green
	Editor:    lipgloss.Color("#D7AF5F"), // amber
	Reasoning: lipgloss.Color("#6C6C6C"), // dim gray
	Notice:    lipgloss.Color("#6C6C6C"),
	Error:     lipgloss.Color("#FF005F"), // red
}

func (t chatTheme) roleStyle(role models.Role) lipgloss.Style {
	switch role {
	case models.RoleUser:
		return lipgloss.NewStyle().Foreground(t.User).Bold(true)
	case models.RoleChatMate:
		return lipgloss.NewStyle().Foreground(t.ChatMate).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(t.Editor).Bold(true)
	}
}

func (t chatTheme) reasoningStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Reasoning).Italic(true)
}

func (t chatTheme) noticeStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Notice).Italic(true)
}

func (t chatTheme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

// chatUIModel is the bubbletea model for the chat view.
type chatUIModel struct {
	orch  *chat.Orchestrator
	theme chatTheme

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model

	width         int
	height        int
	ready         bool
	loading       bool
	showReasoning bool
	status        string
	statusIsError bool
}

func newChatModel(orch *chat.Orchestrator) chatUIModel {
	input := textinput.New()
	input.Placeholder = "Write in your target language..."
	input.Focus()

	return chatUIModel{
		orch:          orch,
		theme:         defaultChatTheme,
		viewport:      viewport.New(),
		input:         input,
		spin:          spinner.New(spinner.WithSpinner(spinner.Dot)),
		showReasoning: st.GlobalSettings().ReasoningExpanded,
	}
}

// Init returns the initial command.
func (m chatUIModel) Init() tea.Cmd {
	return nil
}

// Update handles messages and returns the updated model.
func (m chatUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.SetWidth(msg.Width)
		m.viewport.SetHeight(msg.Height - 3)
		m.input.SetWidth(msg.Width - 4)
		m.ready = true
		m.refreshTranscript()
		return m, nil

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.loading {
				m.orch.Cancel()
				return m, nil
			}
			return m, tea.Quit
		case "esc":
			if m.loading {
				m.orch.Cancel()
				return m, nil
			}
			return m, tea.Quit
		case "enter":
			return m.submit()
		}

	case transcriptChangedMsg:
		m.refreshTranscript()
		return m, nil

	case noticeMsg:
		m.status = msg.text
		m.statusIsError = msg.level == chat.NotifyError
		return m, nil

	case roundDoneMsg:
		m.loading = false
		if msg.err != nil && !errors.Is(msg.err, chat.ErrCancelled) {
			m.status = msg.err.Error()
			m.statusIsError = true
		}
		m.refreshTranscript()
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m chatUIModel) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.loading {
		return m, nil
	}

	m.input.SetValue("")
	m.loading = true
	m.status = ""

	orch := m.orch
	submitCmd := func() tea.Msg {
		return roundDoneMsg{err: orch.Submit(context.Background(), text)}
	}
	return m, tea.Batch(m.spin.Tick, submitCmd)
}

// refreshTranscript re-renders the viewport from the orchestrator's live
// view and keeps it pinned to the newest message.
func (m *chatUIModel) refreshTranscript() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m *chatUIModel) renderTranscript() string {
	messages := m.orch.Messages()
	if len(messages) == 0 {
		return m.theme.noticeStyle().Render("Say something to get started.")
	}

	var b strings.Builder
	for _, msg := range messages {
		header := roleLabels[msg.Role]
		if msg.IsStreaming {
			header += " " + m.spin.View()
		}
		b.WriteString(m.theme.roleStyle(msg.Role).Render(header))
		b.WriteString("\n")
		if m.showReasoning && msg.Reasoning != "" {
			b.WriteString(m.theme.reasoningStyle().Render(msg.Reasoning))
			b.WriteString("\n")
		}
		b.WriteString(msg.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}

// View renders the chat display.
func (m chatUIModel) View() tea.View {
	if !m.ready {
		return tea.NewView("Loading...")
	}

	statusLine := ""
	switch {
	case m.statusIsError && m.status != "":
		statusLine = m.theme.errorStyle().Render(m.status)
	case m.loading:
		statusLine = m.theme.noticeStyle().Render(m.spin.View() + " waiting for replies, esc cancels")
	case m.status != "":
		statusLine = m.theme.noticeStyle().Render(m.status)
	}

	return tea.NewView(fmt.Sprintf("%s\n%s\n%s", m.viewport.View(), statusLine, m.input.View()))
}
