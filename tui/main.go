package main

import (
	"fmt"
	"os"
	"time"

	"tui/db"
	"tui/styles"
	"tui/views"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
)

type tab int

const (
	tabDashboard tab = iota
	tabLeads
	tabJobs
	tabLogs
)

type model struct {
	db            *db.Client
	activeTab     tab
	width, height int
	notification  string
	notifyUntil   time.Time
	paused        bool

	dashboard views.Dashboard
	leads     views.Leads
	jobs      views.Jobs
	logs      views.Logs
}

type tickMsg time.Time
type logTickMsg time.Time

func initialModel(dbClient *db.Client, logPath string) model {
	return model{
		db:        dbClient,
		activeTab: tabDashboard,
		dashboard: views.NewDashboard(dbClient, logPath),
		leads:     views.NewLeads(dbClient),
		jobs:      views.NewJobs(dbClient),
		logs:      views.NewLogs(dbClient),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.dashboard.Init(),
		m.leads.Init(),
		m.jobs.Init(),
		m.logs.Init(),
		tickCmd(),
		logTickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(30*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func logTickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return logTickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "d":
			m.activeTab = tabDashboard
		case "o":
			m.activeTab = tabLeads
		case "c":
			m.activeTab = tabJobs
		case "l":
			m.activeTab = tabLogs
		case "tab":
			m.activeTab = (m.activeTab + 1) % 4
		case "r":
			m.notification = "Refreshed"
			m.notifyUntil = time.Now().Add(2 * time.Second)
			return m, m.refreshActive()
		case "s":
			if err := m.db.SweepNow(); err == nil {
				m.notification = "Sweep queued!"
				m.notifyUntil = time.Now().Add(2 * time.Second)
			}
		case "w":
			if err := m.db.ReportNow(); err == nil {
				m.notification = "Weekly digest queued!"
				m.notifyUntil = time.Now().Add(2 * time.Second)
			}
		case "x":
			if err := m.db.ClearCache(); err == nil {
				m.notification = "Cache clear queued!"
				m.notifyUntil = time.Now().Add(2 * time.Second)
			}
		case "P":
			if m.paused {
				if err := m.db.Resume(); err == nil {
					m.paused = false
					m.notification = "Scheduler resumed"
					m.notifyUntil = time.Now().Add(2 * time.Second)
				}
			} else {
				if err := m.db.Pause(); err == nil {
					m.paused = true
					m.notification = "Scheduler paused"
					m.notifyUntil = time.Now().Add(2 * time.Second)
				}
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// Propagate size to all views
		m.dashboard = m.dashboard.SetSize(msg.Width, msg.Height-4)
		m.leads = m.leads.SetSize(msg.Width, msg.Height-4)
		m.jobs = m.jobs.SetSize(msg.Width, msg.Height-4)
		m.logs = m.logs.SetSize(msg.Width, msg.Height-4)

	case tickMsg:
		cmds = append(cmds, m.refreshActive(), tickCmd())

	case logTickMsg:
		cmds = append(cmds, m.dashboard.RefreshLog(), logTickCmd())

	case views.NotifyMsg:
		m.notification = msg.Text
		m.notifyUntil = time.Now().Add(2 * time.Second)
	}

	// Route key messages only to the active tab, everything else to all
	// views (initial loads land while another tab is showing).
	switch msg.(type) {
	case tea.KeyMsg:
		switch m.activeTab {
		case tabDashboard:
			newDashboard, cmd := m.dashboard.Update(msg)
			m.dashboard = newDashboard.(views.Dashboard)
			cmds = append(cmds, cmd)
		case tabLeads:
			newLeads, cmd := m.leads.Update(msg)
			m.leads = newLeads.(views.Leads)
			cmds = append(cmds, cmd)
		case tabJobs:
			newJobs, cmd := m.jobs.Update(msg)
			m.jobs = newJobs.(views.Jobs)
			cmds = append(cmds, cmd)
		case tabLogs:
			newLogs, cmd := m.logs.Update(msg)
			m.logs = newLogs.(views.Logs)
			cmds = append(cmds, cmd)
		}
	default:
		newDashboard, cmd1 := m.dashboard.Update(msg)
		m.dashboard = newDashboard.(views.Dashboard)
		cmds = append(cmds, cmd1)

		newLeads, cmd2 := m.leads.Update(msg)
		m.leads = newLeads.(views.Leads)
		cmds = append(cmds, cmd2)

		newJobs, cmd3 := m.jobs.Update(msg)
		m.jobs = newJobs.(views.Jobs)
		cmds = append(cmds, cmd3)

		newLogs, cmd4 := m.logs.Update(msg)
		m.logs = newLogs.(views.Logs)
		cmds = append(cmds, cmd4)
	}

	return m, tea.Batch(cmds...)
}

func (m model) refreshActive() tea.Cmd {
	switch m.activeTab {
	case tabDashboard:
		return m.dashboard.Refresh()
	case tabLeads:
		return m.leads.Refresh()
	case tabJobs:
		return m.jobs.Refresh()
	case tabLogs:
		return m.logs.Refresh()
	}
	return nil
}

func (m model) View() string {
	tabs := m.renderTabs()
	content := m.renderContent()
	statusBar := m.renderStatusBar()

	return lipgloss.JoinVertical(lipgloss.Left, tabs, content, statusBar)
}

func (m model) renderTabs() string {
	tabNames := []string{"Dashboard", "Leads", "Jobs", "Logs"}
	var rendered []string
	for i, name := range tabNames {
		if tab(i) == m.activeTab {
			rendered = append(rendered, styles.TabActive.Render(name))
		} else {
			rendered = append(rendered, styles.TabInactive.Render(name))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...) + "\n"
}

func (m model) renderContent() string {
	switch m.activeTab {
	case tabDashboard:
		return m.dashboard.View()
	case tabLeads:
		return m.leads.View()
	case tabJobs:
		return m.jobs.View()
	case tabLogs:
		return m.logs.View()
	}
	return ""
}

func (m model) renderStatusBar() string {
	left := "d Dash  o Leads  c Jobs  l Logs  r Refresh  s Sweep  w Report  P Pause  q Quit"
	right := ""
	if m.paused {
		right = styles.StatusPending.Render(" PAUSED ")
	}
	if time.Now().Before(m.notifyUntil) {
		right = styles.Notification.Render(m.notification)
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 0 {
		gap = 0
	}

	return styles.StatusBar.Render(left) + lipgloss.NewStyle().Width(gap).Render("") + right
}

func main() {
	_ = godotenv.Load() // Load .env if present

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = "analyzer.db"
	}

	opsPath := os.Getenv("OPS_DB_PATH")
	if opsPath == "" {
		opsPath = "ops.db"
	}

	logPath := os.Getenv("LOG_FILE")
	if logPath == "" {
		logPath = "crawler.log"
	}

	dbClient, err := db.New(databaseURL, opsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	p := tea.NewProgram(
		initialModel(dbClient, logPath),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
