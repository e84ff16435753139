package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/hexgamma/board"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Width(12).Foreground(lipgloss.Color("8"))
	blackStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Bold(true)
	whiteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	hintStyle  = lipgloss.NewStyle().Faint(true)
)

type model struct {
	size        int
	workers     int
	startTime   time.Time
	gamesPlayed int
	moves       int64
	wins        map[board.Color]int
	recentGames []string
	updates     chan GameUpdate
}

func initialModel(size, workers int, updates chan GameUpdate) model {
	return model{
		size:      size,
		workers:   workers,
		startTime: time.Now(),
		wins:      map[board.Color]int{},
		updates:   updates,
	}
}

type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func waitForUpdate(updates chan GameUpdate) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		m.moves = totalMoves.Load()
		return m, tickCmd()
	case GameUpdate:
		m.gamesPlayed++
		m.wins[msg.Winner]++
		line := fmt.Sprintf("worker %2d  %s  %s in %d", msg.WorkerID, msg.GameID[:8], colorLabel(msg.Winner), msg.Moves)
		m.recentGames = append([]string{line}, m.recentGames...)
		if len(m.recentGames) > 10 {
			m.recentGames = m.recentGames[:10]
		}
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m model) View() string {
	elapsed := time.Since(m.startTime)
	var gamesPerSec, movesPerSec float64
	if elapsed >= time.Second {
		gamesPerSec = float64(m.gamesPlayed) / elapsed.Seconds()
		movesPerSec = float64(m.moves) / elapsed.Seconds()
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("hex selfplay %dx%d, %d workers", m.size, m.size, m.workers)))
	b.WriteString("\n\n")
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}
	row("games", fmt.Sprintf("%d (%.2f/s)", m.gamesPlayed, gamesPerSec))
	row("moves", fmt.Sprintf("%d (%.0f/s)", m.moves, movesPerSec))
	row("black wins", fmt.Sprint(m.wins[board.Black]))
	row("white wins", fmt.Sprint(m.wins[board.White]))
	row("elapsed", elapsed.Round(time.Second).String())

	b.WriteString("\nRecent games:\n")
	for _, g := range m.recentGames {
		b.WriteString(g + "\n")
	}
	b.WriteString("\n" + hintStyle.Render("Press q to stop after the current games.") + "\n")
	return b.String()
}

func colorLabel(c board.Color) string {
	switch c {
	case board.Black:
		return blackStyle.Render("black")
	case board.White:
		return whiteStyle.Render("white")
	}
	return c.String()
}
