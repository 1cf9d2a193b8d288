package tui

import (
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

// tickMsg is fired every second to update the elapsed timer.
type tickMsg time.Time

// state represents the current phase of a command.
type state int

const (
	stateWorking       state = iota
	stateRefreshing          // exchanging the refresh token
	stateSuccess             // command finished
	stateLoginRequired       // no usable session
	stateError               // fatal error
)

// statusKind distinguishes line types in the status log.
type statusKind int

const (
	statusOK   statusKind = iota
	statusWarn            // warning / non-fatal
	statusInfo            // neutral info
)

// statusLine is one row in the scrolling status log.
type statusLine struct {
	kind statusKind
	text string
}

// Model is the BubbleTea model for one CLI command.
type Model struct {
	state   state
	spinner spinner.Model
	width   int
	height  int
	now     func() time.Time

	server  string
	profile string
	started time.Time
	elapsed time.Duration

	// Rendered command results, in arrival order
	output []string
	errMsg string

	// Scrolling status log shown below the main panel
	statusLines []statusLine
}

var (
	styleTitleBox = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 2)

	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleErr  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleBold = lipgloss.NewStyle().Bold(true)
)

// NewModel creates the initial TUI model.
func NewModel() Model {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))),
	)
	return Model{
		state:   stateWorking,
		spinner: s,
		now:     time.Now,
		started: time.Now(),
	}
}

// Init starts the spinner animation and the elapsed timer.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickAfterSecond())
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if !m.busy() {
			return m, nil
		}
		m.elapsed = time.Time(msg).Sub(m.started)
		return m, tickAfterSecond()

	case tea.KeyPressMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	// ── session events ───────────────────────────────────────────────────────

	case MsgBanner:
		m.server = msg.Server
		m.profile = msg.Profile
		return m, nil

	case MsgAccessTokenRejected:
		m.addStatus(statusWarn, "Access token rejected (401)")
		return m, nil

	case MsgRefreshing:
		m.state = stateRefreshing
		m.addStatus(statusInfo, "Refreshing access token...")
		return m, nil

	case MsgRefreshOK:
		m.state = stateWorking
		m.addStatus(statusOK, "Token refreshed successfully")
		return m, nil

	case MsgRefreshFailed:
		m.state = stateWorking
		m.addStatus(statusWarn, fmt.Sprintf("Refresh failed: %v", msg.Err))
		return m, nil

	case MsgRetrying:
		m.addStatus(statusInfo, "Retrying request with the new token...")
		return m, nil

	case MsgSessionExpired:
		m.addStatus(statusWarn, "Session expired, stored tokens cleared")
		return m, nil

	// ── command results ──────────────────────────────────────────────────────

	case MsgLoggedIn:
		m.addOutput(styleOK.Render("✓ Logged in as " + msg.Username))
		return m, nil

	case MsgRegistered:
		text := styleOK.Render("✓ Account " + msg.Username + " created")
		if !msg.LoggedIn {
			text += "\n" + styleDim.Render("Log in with: subtrackr login -username "+msg.Username)
		}
		m.addOutput(text)
		return m, nil

	case MsgLoggedOut:
		m.addOutput(styleOK.Render("✓ Logged out"))
		return m, nil

	case MsgLoginRequired:
		if msg.Err != nil {
			m.errMsg = msg.Err.Error()
		}
		m.state = stateLoginRequired
		return m, nil

	case MsgStatus:
		m.addOutput(renderStatus(msg.Profile, msg.Authenticated, msg.User))
		return m, nil

	case MsgSubscriptions:
		m.addOutput(renderSubscriptions(msg.Items, true))
		return m, nil

	case MsgSubscriptionAdded:
		s := msg.Subscription
		m.addOutput(styleOK.Render(fmt.Sprintf("✓ Added %s (%s, %s)", s.Name, s.Price, s.Cycle)) +
			styleDim.Render("  id "+string(s.ID)))
		return m, nil

	case MsgSubscriptionRemoved:
		m.addOutput(styleOK.Render("✓ Removed subscription " + string(msg.ID)))
		return m, nil

	case MsgSummary:
		m.addOutput(renderSummary(msg.Summary, true))
		return m, nil

	case MsgRenewals:
		m.addOutput(renderRenewals(msg.Items, true))
		return m, nil

	case MsgTrend:
		m.addOutput(renderTrend(msg.Months))
		return m, nil

	case MsgNotifications:
		m.addOutput(renderNotifications(msg.Items, m.now()))
		return m, nil

	case MsgNotificationRead:
		m.addOutput(styleOK.Render("✓ Notification " + string(msg.ID) + " marked as read"))
		return m, nil

	case MsgProfile:
		m.addOutput(renderProfile(msg.Profile))
		return m, nil

	case MsgActivities:
		m.addOutput(renderActivities(msg.Items, m.now(), true))
		return m, nil

	case MsgPasswordResetRequested:
		m.addOutput("If " + msg.Email + " belongs to an account, a reset link is on its way.")
		return m, nil

	case MsgDone:
		if m.busy() {
			m.state = stateSuccess
		}
		return m, nil

	case MsgFatal:
		m.errMsg = msg.Err.Error()
		m.state = stateError
		return m, nil
	}

	return m, nil
}

func (m Model) busy() bool {
	return m.state == stateWorking || m.state == stateRefreshing
}

// View renders the TUI.
func (m Model) View() tea.View {
	var b strings.Builder
	b.WriteString(m.viewHeader())

	switch m.state {
	case stateSuccess:
		b.WriteString(m.viewOutput())
	case stateLoginRequired:
		b.WriteString(m.viewOutput())
		b.WriteString(m.viewLoginRequired())
	case stateError:
		b.WriteString(m.viewOutput())
		b.WriteString(m.viewError())
	default:
		b.WriteString(m.viewOutput())
		b.WriteString(m.viewWorking())
	}

	b.WriteString(m.viewStatusLog())
	return tea.NewView(b.String())
}

func (m Model) viewHeader() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(styleTitleBox.Render("  SubTrackr  "))
	if m.server != "" {
		b.WriteString("\n")
		b.WriteString(styleDim.Render(m.server + " · profile " + m.profile))
	}
	b.WriteString("\n\n")
	return b.String()
}

// viewWorking is shown while a command is in flight.
func (m Model) viewWorking() string {
	var b strings.Builder
	b.WriteString(m.spinner.View())
	if m.state == stateRefreshing {
		b.WriteString(" Refreshing access token...")
	} else {
		b.WriteString(" Working...")
	}
	if m.elapsed >= time.Second {
		b.WriteString("  ")
		b.WriteString(styleDim.Render(formatDuration(m.elapsed)))
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) viewOutput() string {
	if len(m.output) == 0 {
		return ""
	}
	return strings.Join(m.output, "\n\n") + "\n"
}

func (m Model) viewLoginRequired() string {
	var b strings.Builder
	b.WriteString(styleWarn.Render("  ⚠ Please log in"))
	b.WriteString("\n")
	if m.errMsg != "" {
		b.WriteString(styleDim.Render("  " + m.errMsg))
		b.WriteString("\n")
	}
	b.WriteString(styleBold.Render("  subtrackr login -username <name>"))
	b.WriteString("\n")
	return b.String()
}

// viewError is shown when a fatal error occurs.
func (m Model) viewError() string {
	var b strings.Builder
	b.WriteString(styleErr.Render("  ✗ Command failed"))
	b.WriteString("\n\n")
	b.WriteString(styleDim.Render("  " + m.errMsg))
	b.WriteString("\n")
	return b.String()
}

// viewStatusLog renders the scrolling status log.
func (m Model) viewStatusLog() string {
	if len(m.statusLines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")

	for _, line := range m.statusLines {
		switch line.kind {
		case statusOK:
			b.WriteString(styleOK.Render("  ✓ " + line.text))
		case statusWarn:
			b.WriteString(styleWarn.Render("  ⚠ " + line.text))
		default:
			b.WriteString(styleDim.Render("  · " + line.text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// addStatus appends a line to the status log.
func (m *Model) addStatus(kind statusKind, text string) {
	m.statusLines = append(m.statusLines, statusLine{kind: kind, text: text})
}

func (m *Model) addOutput(block string) {
	m.output = append(m.output, block)
}

// tickAfterSecond returns a command that fires tickMsg after one second.
func tickAfterSecond() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// formatDuration formats a duration as "Xm Ys" or "Xs".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
