package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// lampRows mirrors the physical board: five rows of relays, numbered
// 1-10 on the panel, wired to channels 0-9.
var lampRows = [][]int{
	{9, 8},
	{1, 6, 5},
	{3, 2},
	{4, 7},
	{0},
}

var (
	simTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	litStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	darkStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	rowStyle      = lipgloss.NewStyle().Width(36).Align(lipgloss.Center)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	helpStyle     = lipgloss.NewStyle().Faint(true)
)

type lampMsg struct {
	number int
	on     bool
}

type flashHintMsg struct {
	mode int
}

type statusTickMsg time.Time

func statusTick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}

// Simulator renders the rig in a terminal so shows can be rehearsed
// without relay hardware. Lamp changes arrive by message from the
// memory channels, which run on timer goroutines.
type Simulator struct {
	mu   sync.Mutex
	prog *tea.Program
}

func NewSimulator() *Simulator {
	return &Simulator{}
}

// LampChanged is the notify hook for NewMemoryChannels. Changes that
// land before the UI starts are dropped; the rig is dark then anyway.
func (s *Simulator) LampChanged(number int, on bool) {
	s.mu.Lock()
	prog := s.prog
	s.mu.Unlock()
	if prog != nil {
		prog.Send(lampMsg{number: number, on: on})
	}
}

// Run drives the terminal UI until the user quits.
func (s *Simulator) Run(ctrl *ShowController, channelCount int) error {
	model := simModel{
		ctrl:   ctrl,
		lamps:  make([]bool, channelCount),
		status: ctrl.Status(),
	}
	prog := tea.NewProgram(model)

	s.mu.Lock()
	s.prog = prog
	s.mu.Unlock()

	ctrl.OnFlashEvent = func(mode int) {
		prog.Send(flashHintMsg{mode: mode})
	}

	_, err := prog.Run()
	return err
}

type simModel struct {
	ctrl   *ShowController
	lamps  []bool
	status ControllerStatus
	notice string
}

func (m simModel) Init() tea.Cmd {
	return statusTick()
}

func (m simModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case lampMsg:
		if msg.number >= 0 && msg.number < len(m.lamps) {
			m.lamps[msg.number] = msg.on
		}
		return m, nil

	case flashHintMsg:
		m.notice = fmt.Sprintf("song hinted flash mode %d", msg.mode)
		return m, nil

	case statusTickMsg:
		m.status = m.ctrl.Status()
		return m, statusTick()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "l":
			if err := m.ctrl.StartShow(); err != nil {
				m.notice = err.Error()
			} else {
				m.notice = ""
			}
		case "m":
			m.ctrl.CycleMode()
			m.notice = ""
		case "s":
			m.ctrl.StopShow()
			m.notice = ""
		case "n":
			if err := m.ctrl.Skip(); err != nil {
				m.notice = err.Error()
			}
		}
		m.status = m.ctrl.Status()
		return m, nil
	}
	return m, nil
}

func (m simModel) View() string {
	var b strings.Builder

	b.WriteString(simTitleStyle.Render("Pi Lightshow Simulator") + "\n\n")

	for _, row := range lampRows {
		var cells []string
		for _, number := range row {
			if number >= len(m.lamps) {
				continue
			}
			label := fmt.Sprintf("● %d", number+1)
			if m.lamps[number] {
				cells = append(cells, litStyle.Render(label))
			} else {
				cells = append(cells, darkStyle.Render(fmt.Sprintf("○ %d", number+1)))
			}
		}
		b.WriteString(rowStyle.Render(strings.Join(cells, "   ")) + "\n")
	}

	b.WriteString("\n" + statusStyle.Render(m.statusLine()) + "\n")
	for _, sec := range m.status.Sections {
		b.WriteString(statusStyle.Render(fmt.Sprintf("  %s: beat %d/%d", sec.Name, sec.Beat, sec.TotalBeats)) + "\n")
	}
	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice) + "\n")
	}

	b.WriteString("\n" + helpStyle.Render("l: lightshow • m: mode • n: skip • s: stop • q: quit"))
	return b.String()
}

func (m simModel) statusLine() string {
	if m.status.Song != nil {
		line := fmt.Sprintf("Playing %q by %s", m.status.Song.Title, m.status.Song.Artist)
		if m.status.Position >= 0 {
			line += fmt.Sprintf("  %.1fs", m.status.Position)
		}
		return line
	}
	return fmt.Sprintf("Idle (%s)", m.status.ModeName)
}
