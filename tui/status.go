// ABOUTME: TUI view for live board session status
// ABOUTME: Displays object count, peers, leader, save state and history depth
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/mural/board"
	"github.com/harperreed/mural/history"
	"github.com/harperreed/mural/presence"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Underline(true)

	savedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	savingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	unsavedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	leaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// Options carries the live session pieces the view reads from.
type Options struct {
	Store   *board.Store
	Channel *presence.Channel
	History *history.Manager
	Undo    func() error
	Redo    func() error
}

type refreshMsg time.Time

type model struct {
	opts Options

	peers    map[int64][]string
	leaderID int64
	lastErr  error
}

// Run starts the status view and blocks until the user quits.
func Run(opts Options) error {
	p := tea.NewProgram(model{opts: opts})
	_, err := p.Run()
	return err
}

func (m model) Init() tea.Cmd {
	return refreshTick()
}

func refreshTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "u":
			if m.opts.Undo != nil {
				m.lastErr = m.opts.Undo()
			}
		case "r":
			if m.opts.Redo != nil {
				m.lastErr = m.opts.Redo()
			}
		}

	case refreshMsg:
		ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
		peers, err := m.opts.Channel.PeerSelections(ctx)
		if err == nil {
			m.peers = peers
		}
		m.leaderID = m.opts.Channel.LeaderID(ctx)
		cancel()
		return m, refreshTick()
	}

	return m, nil
}

func (m model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(fmt.Sprintf("Board %s", m.opts.Store.BoardID())))
	s.WriteString("\n\n")

	s.WriteString(fmt.Sprintf("Objects: %d", len(m.opts.Store.Objects())))
	if sel := m.opts.Store.Selection(); len(sel) > 0 {
		s.WriteString(dimStyle.Render(fmt.Sprintf("  (%d selected)", len(sel))))
	}
	s.WriteString("\n")

	s.WriteString("Save: ")
	switch m.opts.Store.Status() {
	case board.StatusSaved:
		s.WriteString(savedStyle.Render("✓ Saved"))
	case board.StatusSaving:
		s.WriteString(savingStyle.Render("⟳ Saving..."))
	default:
		s.WriteString(unsavedStyle.Render("● Unsaved changes"))
	}
	s.WriteString("\n")

	s.WriteString(fmt.Sprintf("History: step %d of %d", m.opts.History.Step()+1, m.opts.History.Depth()))
	s.WriteString("\n\n")

	s.WriteString(headerStyle.Render("Peers"))
	s.WriteString("\n")
	s.WriteString(m.renderPeers())
	s.WriteString("\n")

	if m.lastErr != nil {
		s.WriteString(unsavedStyle.Render(fmt.Sprintf("Error: %v", m.lastErr)))
		s.WriteString("\n\n")
	}

	s.WriteString(helpStyle.Render("u: Undo • r: Redo • q: Quit"))
	s.WriteString("\n")

	return s.String()
}

func (m model) renderPeers() string {
	selfID := m.opts.Channel.ConnID()

	ids := []int64{selfID}
	for id := range m.peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var s strings.Builder
	for _, id := range ids {
		line := fmt.Sprintf("  conn %d", id)
		if id == selfID {
			line += " (you)"
		}
		if sel := m.peers[id]; id != selfID && len(sel) > 0 {
			line += dimStyle.Render(fmt.Sprintf("  selecting %d", len(sel)))
		}
		if id == m.leaderID {
			s.WriteString(leaderStyle.Render(line + "  ★ leader"))
		} else {
			s.WriteString(line)
		}
		s.WriteString("\n")
	}
	return s.String()
}
