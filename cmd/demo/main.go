package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kass/go-speedlimit/pkg/models"
	"github.com/kass/go-speedlimit/pkg/speedlimit"
)

const (
	totalLookups = 5000
	batchSize    = 250
)

var (
	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF79C6")).
			Background(lipgloss.Color("#282A36")).
			Padding(0, 1).
			MarginTop(1).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F1FA8C"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#BD93F9")).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)

	statStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFB86C"))
)

type stage int

const (
	stageOpening stage = iota
	stageRunning
	stageDone
	stageFailed
)

type openedMsg struct {
	session *speedlimit.Session
	err     error
}

type batchMsg struct {
	gridHits   int
	windowHits int
	misses     int
}

type model struct {
	stage    stage
	spinner  spinner.Model
	progress progress.Model

	dbPath  string
	session *speedlimit.Session
	bounds  models.Bounds

	completed  int
	gridHits   int
	windowHits int
	misses     int

	started time.Time
	elapsed time.Duration
	err     error
}

func newModel(dbPath string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#BD93F9"))

	return model{
		stage:    stageOpening,
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient()),
		dbPath:   dbPath,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, openDataset(m.dbPath))
}

func openDataset(path string) tea.Cmd {
	return func() tea.Msg {
		session, err := speedlimit.Open(path)
		return openedMsg{session: session, err: err}
	}
}

func runBatch(session *speedlimit.Session, bounds models.Bounds) tea.Cmd {
	return func() tea.Msg {
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		var msg batchMsg

		for i := 0; i < batchSize; i++ {
			lat := bounds.MinLat + r.Float64()*(bounds.MaxLat-bounds.MinLat)
			lon := bounds.MinLon + r.Float64()*(bounds.MaxLon-bounds.MinLon)

			res, err := session.Lookup(lat, lon)
			if err != nil {
				continue
			}
			switch {
			case res.Found && res.Source == speedlimit.SourceGrid:
				msg.gridHits++
			case res.Found:
				msg.windowHits++
			default:
				msg.misses++
			}
		}
		return msg
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.session != nil {
				m.session.Close()
			}
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case openedMsg:
		if msg.err != nil {
			m.stage = stageFailed
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.bounds = m.session.Bounds()
		m.stage = stageRunning
		m.started = time.Now()
		return m, runBatch(m.session, m.bounds)

	case batchMsg:
		m.gridHits += msg.gridHits
		m.windowHits += msg.windowHits
		m.misses += msg.misses
		m.completed += batchSize

		if m.completed >= totalLookups {
			m.stage = stageDone
			m.elapsed = time.Since(m.started)
			return m, nil
		}
		return m, runBatch(m.session, m.bounds)
	}

	return m, nil
}

func (m model) View() string {
	s := titleStyle.Render("Speed Limit Lookup Demo") + "\n"

	switch m.stage {
	case stageOpening:
		s += fmt.Sprintf("%s Opening dataset %s...\n",
			m.spinner.View(), infoStyle.Render(m.dbPath))

	case stageFailed:
		s += errorStyle.Render(fmt.Sprintf("Failed to open dataset: %v", m.err)) + "\n"
		s += dimStyle.Render("Press q to quit") + "\n"

	case stageRunning:
		s += successStyle.Render(fmt.Sprintf("Dataset open: [%.2f,%.2f] x [%.2f,%.2f], grid %dx%d",
			m.bounds.MinLat, m.bounds.MaxLat, m.bounds.MinLon, m.bounds.MaxLon,
			m.bounds.GridSize, m.bounds.GridSize)) + "\n\n"

		percent := float64(m.completed) / float64(totalLookups)
		s += m.progress.ViewAs(percent) + "\n"
		s += dimStyle.Render(fmt.Sprintf("%d / %d lookups", m.completed, totalLookups)) + "\n"

	case stageDone:
		perSecond := float64(m.completed) / m.elapsed.Seconds()

		stats := fmt.Sprintf("%s\n\n", statStyle.Render("Results"))
		stats += fmt.Sprintf("Lookups:      %s\n", statStyle.Render(fmt.Sprintf("%d", m.completed)))
		stats += fmt.Sprintf("Grid hits:    %s\n", successStyle.Render(fmt.Sprintf("%d", m.gridHits)))
		stats += fmt.Sprintf("Window hits:  %s\n", infoStyle.Render(fmt.Sprintf("%d", m.windowHits)))
		stats += fmt.Sprintf("Misses:       %s\n", errorStyle.Render(fmt.Sprintf("%d", m.misses)))
		stats += fmt.Sprintf("Total time:   %v\n", m.elapsed)
		stats += fmt.Sprintf("Throughput:   %.0f lookups/sec", perSecond)

		s += boxStyle.Render(stats) + "\n"
		s += dimStyle.Render("Press q to quit") + "\n"
	}

	return s
}

func main() {
	dbPath := "za_speedlimits.db"
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	}

	p := tea.NewProgram(newModel(dbPath))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running demo: %v\n", err)
		os.Exit(1)
	}
}
