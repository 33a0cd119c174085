// Package monitor renders live channel traffic in an interactive terminal
// UI. It reads snapshots from a transcript.Store that a Collector keeps
// current, so a watch process can follow a run owned by another process.
package monitor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kenta2/cryptsetup/internal/transcript"
)

type tickMsg struct{}

// TUI runs the interactive transcript watcher.
type TUI struct {
	Store           *transcript.Store
	SocketPath      string
	RefreshInterval time.Duration // 0 uses a 250ms default
	ThemeName       string
	// Stats, when set, supplies collected/dropped event counts for the
	// footer (the collector's Stats method).
	Stats func() (recorded, dropped uint64)
}

func (t *TUI) Run(ctx context.Context) error {
	refresh := t.RefreshInterval
	if refresh <= 0 {
		refresh = 250 * time.Millisecond
	}
	m := &watchModel{
		store:      t.Store,
		socketPath: t.SocketPath,
		stats:      t.Stats,
		refresh:    refresh,
		styles:     newStyles(ThemeByName(t.ThemeName)),
		follow:     true,
		vp:         viewport.New(0, 0),
	}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// watchModel implements tea.Model.
type watchModel struct {
	store      *transcript.Store
	socketPath string
	stats      func() (recorded, dropped uint64)
	refresh    time.Duration
	styles     styles

	views  []transcript.ChannelView
	cursor int
	follow bool // keep the viewport pinned to the bottom

	vp     viewport.Model
	width  int
	height int
}

const channelPaneWidth = 28

func (m *watchModel) Init() tea.Cmd {
	return m.scheduleTick()
}

// scheduleTick returns a tea.Cmd that sends a tickMsg after the refresh
// interval.
func (m *watchModel) scheduleTick() tea.Cmd {
	return tea.Tick(m.refresh, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.vp.Width = m.tailWidth()
		m.vp.Height = m.bodyHeight()
		m.refreshTail()
		return m, nil

	case tickMsg:
		m.views = m.store.Snapshot(time.Now())
		if m.cursor >= len(m.views) {
			m.cursor = 0
		}
		m.refreshTail()
		return m, m.scheduleTick()
	}

	return m, nil
}

func (m *watchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.refreshTail()
		}
	case "down", "j", "tab":
		if m.cursor < len(m.views)-1 {
			m.cursor++
			m.refreshTail()
		}
	case "f":
		m.follow = !m.follow
		if m.follow {
			m.vp.GotoBottom()
		}
	case "pgup", "b":
		m.follow = false
		m.vp.ViewUp()
	case "pgdown", " ":
		m.vp.ViewDown()
		if m.vp.AtBottom() {
			m.follow = true
		}
	case "g":
		m.follow = false
		m.vp.GotoTop()
	case "G":
		m.follow = true
		m.vp.GotoBottom()
	}
	return m, nil
}

// refreshTail loads the selected channel's tail into the viewport.
func (m *watchModel) refreshTail() {
	if m.cursor >= len(m.views) {
		m.vp.SetContent("")
		return
	}
	m.vp.SetContent(renderTail(m.views[m.cursor].Tail, m.tailWidth()))
	if m.follow {
		m.vp.GotoBottom()
	}
}

func (m *watchModel) tailWidth() int {
	w := m.width - channelPaneWidth - 3
	if w < 20 {
		w = 20
	}
	return w
}

func (m *watchModel) bodyHeight() int {
	h := m.height - 3 // title + footer
	if h < 3 {
		h = 3
	}
	return h
}

var csiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

// renderTail converts raw channel bytes into printable lines: CSI escape
// sequences are stripped, carriage returns dropped, and other control
// bytes shown as dots.
func renderTail(tail []byte, width int) string {
	s := csiRe.ReplaceAllString(string(tail), "")
	var b strings.Builder
	col := 0
	for _, r := range s {
		switch {
		case r == '\n':
			b.WriteRune(r)
			col = 0
		case r == '\r':
			// dropped
		case r == '\t':
			b.WriteString("    ")
			col += 4
		case r < 0x20 || r == 0x7f:
			b.WriteByte('.')
			col++
		default:
			b.WriteRune(r)
			col++
		}
		if width > 0 && col >= width {
			b.WriteByte('\n')
			col = 0
		}
	}
	return b.String()
}

func (m *watchModel) View() string {
	if m.width == 0 {
		return "loading..."
	}

	title := m.styles.title.Render("consoledrive watch") +
		m.styles.dim.Render("  "+m.socketPath)

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.viewChannels(),
		m.styles.border.Render(strings.Repeat("│\n", m.bodyHeight())),
		m.vp.View(),
	)

	return title + "\n" + body + "\n" + m.viewFooter()
}

// viewChannels renders the left pane: one row per channel with byte count
// and time since last activity.
func (m *watchModel) viewChannels() string {
	rows := make([]string, 0, len(m.views)+1)
	if len(m.views) == 0 {
		rows = append(rows, m.styles.dim.Render("waiting for events..."))
	}
	now := time.Now()
	for i, v := range m.views {
		age := now.Sub(v.Last).Round(time.Second)
		ageStyle := m.styles.active
		if age > 30*time.Second {
			ageStyle = m.styles.stale
		}
		marker := "  "
		nameStyle := m.styles.channel
		if i == m.cursor {
			marker = "> "
			nameStyle = m.styles.selected
		}
		arrow := "<-"
		if v.LastDir == transcript.DirectionWrite {
			arrow = "->"
		}
		row := fmt.Sprintf("%s%s %s %s %s",
			marker,
			nameStyle.Render(pad(v.Channel, 10)),
			m.styles.dim.Render(pad(formatBytes(v.Bytes), 7)),
			arrow,
			ageStyle.Render(age.String()),
		)
		rows = append(rows, row)
	}
	pane := strings.Join(rows, "\n")
	return lipgloss.NewStyle().Width(channelPaneWidth).Height(m.bodyHeight()).Render(pane)
}

func (m *watchModel) viewFooter() string {
	follow := "follow off"
	if m.follow {
		follow = "follow on"
	}
	hints := []string{
		m.styles.hintKey.Render("↑/↓") + m.styles.hintDesc.Render(" channel"),
		m.styles.hintKey.Render("f") + m.styles.hintDesc.Render(" "+follow),
		m.styles.hintKey.Render("pgup/pgdn") + m.styles.hintDesc.Render(" scroll"),
		m.styles.hintKey.Render("q") + m.styles.hintDesc.Render(" quit"),
	}
	if m.stats != nil {
		recorded, dropped := m.stats()
		counts := fmt.Sprintf("%d events", recorded)
		if dropped > 0 {
			counts += fmt.Sprintf(", %d dropped", dropped)
		}
		hints = append(hints, m.styles.dim.Render(counts))
	}
	return m.styles.dim.Render(strings.Join(hints, "  "))
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fkB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
