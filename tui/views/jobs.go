package views

import (
	"fmt"
	"time"

	"tui/db"
	"tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type jobsMsg struct {
	jobs  []db.Job
	stats map[string]db.JobStat
}

type Jobs struct {
	db            *db.Client
	width, height int
	jobs          []db.Job
	stats         map[string]db.JobStat
	selected      int
}

func NewJobs(dbClient *db.Client) Jobs {
	return Jobs{db: dbClient}
}

func (j Jobs) Init() tea.Cmd {
	return j.Refresh()
}

func (j Jobs) Refresh() tea.Cmd {
	return func() tea.Msg {
		jobs, _ := j.db.GetJobs()
		stats, _ := j.db.GetJobStats()
		byName := make(map[string]db.JobStat, len(stats))
		for _, s := range stats {
			byName[s.JobName] = s
		}
		return jobsMsg{jobs, byName}
	}
}

func (j Jobs) SetSize(w, h int) Jobs {
	j.width = w
	j.height = h
	return j
}

func (j Jobs) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case jobsMsg:
		j.jobs = msg.jobs
		j.stats = msg.stats
		if j.selected >= len(j.jobs) {
			j.selected = 0
		}

	case tea.WindowSizeMsg:
		j.width = msg.Width
		j.height = msg.Height - 4

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if j.selected > 0 {
				j.selected--
			}
		case "down", "j":
			if j.selected < len(j.jobs)-1 {
				j.selected++
			}
		case "enter":
			if len(j.jobs) > 0 {
				name := j.jobs[j.selected].Name
				if err := j.db.RunJob(name); err == nil {
					return j, func() tea.Msg {
						return NotifyMsg{Text: "Run queued: " + name}
					}
				}
			}
		}
	}
	return j, nil
}

func (j Jobs) View() string {
	header := styles.Title.Render("Crawl Jobs") +
		"  " + styles.Muted.Render("[k/j] Select  [enter] Run now")

	if len(j.jobs) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			styles.Muted.Render("No jobs configured"),
		)
	}

	var cards []string
	for i, job := range j.jobs {
		cards = append(cards, j.renderJobCard(job, i == j.selected))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		lipgloss.JoinHorizontal(lipgloss.Top, cards...),
	)
}

func (j Jobs) renderJobCard(job db.Job, selected bool) string {
	active := styles.Muted.Render("○ paused")
	if job.IsActive {
		active = styles.StatusSuccess.Render("● active")
	}

	target := job.City
	if job.Category != "" {
		if target != "" {
			target += " / "
		}
		target += job.Category
	}
	if target == "" {
		target = "-"
	}

	lastRun := "never"
	if job.LastRun != nil {
		lastRun = relativeTime(*job.LastRun)
	}

	lines := []string{
		styles.StatValue.Render(truncate(job.Name, 24)),
		active,
		styles.StatLabel.Render(fmt.Sprintf("%s, min %.1f", job.Frequency, job.MinScore)),
		styles.StatLabel.Render(fmt.Sprintf("Target: %s", truncate(target, 20))),
		styles.StatLabel.Render(fmt.Sprintf("Monitored: %d", len(job.Monitored))),
		styles.StatLabel.Render(fmt.Sprintf("Last: %s", lastRun)),
		styles.StatLabel.Render(fmt.Sprintf("Next: %s", nextIn(job.NextRun))),
		styles.StatLabel.Render(fmt.Sprintf("Found: %d", job.ProfilesFound)),
	}

	if s, ok := j.stats[job.Name]; ok {
		lines = append(lines,
			styles.StatLabel.Render(fmt.Sprintf("Runs: %d (%.0f%%)", s.TotalRuns, s.SuccessRate*100)))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, lines...)
	border := styles.JobCardBorder
	if selected {
		border = styles.CardBorder
	}
	return border.Width(28).Render(content)
}

func nextIn(t *time.Time) string {
	if t == nil {
		return "-"
	}
	d := time.Until(*t)
	if d <= 0 {
		return "due now"
	}
	switch {
	case d < time.Hour:
		return fmt.Sprintf("in %dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("in %dh", int(d.Hours()))
	default:
		return fmt.Sprintf("in %dd", int(d.Hours()/24))
	}
}
