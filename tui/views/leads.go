package views

import (
	"fmt"
	"strings"

	"tui/db"
	"tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type leadsMsg struct {
	leads []db.Lead
	total int
}

type historyMsg struct {
	points []db.ScorePoint
}

// NotifyMsg bubbles a one-line confirmation up to the status bar.
type NotifyMsg struct {
	Text string
}

type Leads struct {
	db              *db.Client
	width, height   int
	leads           []db.Lead
	history         []db.ScorePoint
	selectedRow     int
	uncontactedOnly bool
	dbPage          int // current database page (0-indexed)
	dbPageSize      int // items per database page
	totalLeads      int // total leads in DB
}

func NewLeads(dbClient *db.Client) Leads {
	return Leads{db: dbClient, dbPageSize: 100}
}

func (l Leads) Init() tea.Cmd {
	return l.Refresh()
}

func (l Leads) Refresh() tea.Cmd {
	return func() tea.Msg {
		leads, _ := l.db.GetLeads(l.dbPageSize, l.dbPage*l.dbPageSize, 0, l.uncontactedOnly)
		total, _ := l.db.LeadCount(0, l.uncontactedOnly)
		return leadsMsg{leads, total}
	}
}

func (l Leads) SetSize(w, h int) Leads {
	l.width = w
	l.height = h
	return l
}

func (l Leads) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case leadsMsg:
		l.leads = msg.leads
		l.totalLeads = msg.total
		if l.selectedRow >= len(l.leads) {
			l.selectedRow = 0
		}
		if len(l.leads) > 0 {
			return l, l.loadHistory(l.leads[l.selectedRow].Username)
		}

	case historyMsg:
		l.history = msg.points

	case tea.WindowSizeMsg:
		l.width = msg.Width
		l.height = msg.Height - 4

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if l.selectedRow > 0 {
				l.selectedRow--
				if len(l.leads) > 0 {
					return l, l.loadHistory(l.leads[l.selectedRow].Username)
				}
			}
		case "down", "j":
			if len(l.leads) > 0 && l.selectedRow < len(l.leads)-1 {
				l.selectedRow++
				return l, l.loadHistory(l.leads[l.selectedRow].Username)
			}
		case "pgdown", "ctrl+d":
			if len(l.leads) > 0 {
				l.selectedRow += 10
				if l.selectedRow >= len(l.leads) {
					l.selectedRow = len(l.leads) - 1
				}
				return l, l.loadHistory(l.leads[l.selectedRow].Username)
			}
		case "pgup", "ctrl+u":
			if len(l.leads) > 0 {
				l.selectedRow -= 10
				if l.selectedRow < 0 {
					l.selectedRow = 0
				}
				return l, l.loadHistory(l.leads[l.selectedRow].Username)
			}
		case "home", "g":
			if len(l.leads) > 0 {
				l.selectedRow = 0
				return l, l.loadHistory(l.leads[l.selectedRow].Username)
			}
		case "end", "G":
			if len(l.leads) > 0 {
				l.selectedRow = len(l.leads) - 1
				return l, l.loadHistory(l.leads[l.selectedRow].Username)
			}
		case "u":
			l.uncontactedOnly = !l.uncontactedOnly
			l.selectedRow = 0
			l.dbPage = 0
			return l, l.Refresh()
		case "enter":
			if len(l.leads) > 0 {
				username := l.leads[l.selectedRow].Username
				if err := l.db.AnalyzeNow(username); err == nil {
					return l, func() tea.Msg {
						return NotifyMsg{Text: "Analysis queued for @" + username}
					}
				}
			}
		case "1", "2", "3", "4", "5", "6", "7", "8", "9", "0":
			// Jump to database page (1=page 1, 0=page 10)
			pageNum := int(msg.String()[0] - '0')
			if pageNum == 0 {
				pageNum = 10
			}
			if pageNum <= l.getTotalDBPages() {
				l.dbPage = pageNum - 1
				l.selectedRow = 0
				return l, l.Refresh()
			}
		case "[":
			if l.dbPage > 0 {
				l.dbPage--
				l.selectedRow = 0
				return l, l.Refresh()
			}
		case "]":
			if l.dbPage < l.getTotalDBPages()-1 {
				l.dbPage++
				l.selectedRow = 0
				return l, l.Refresh()
			}
		}
	}
	return l, nil
}

func (l Leads) loadHistory(username string) tea.Cmd {
	return func() tea.Msg {
		points, _ := l.db.GetLeadHistory(username)
		return historyMsg{points}
	}
}

func (l Leads) getVisibleRows() int {
	rows := 25
	if l.height > 0 {
		rows = (l.height * 60) / 100
		if rows < 10 {
			rows = 10
		}
	}
	return rows
}

func (l Leads) getTotalDBPages() int {
	if l.dbPageSize == 0 || l.totalLeads == 0 {
		return 1
	}
	return (l.totalLeads + l.dbPageSize - 1) / l.dbPageSize
}

func (l Leads) View() string {
	filterStatus := "All"
	if l.uncontactedOnly {
		filterStatus = "Uncontacted"
	}

	globalPos := l.dbPage*l.dbPageSize + l.selectedRow + 1
	if len(l.leads) == 0 {
		globalPos = 0
	}
	position := fmt.Sprintf("  %d/%d", globalPos, l.totalLeads)
	pageInfo := fmt.Sprintf("  Page %d/%d", l.dbPage+1, l.getTotalDBPages())

	header := styles.Title.Render("Leads") +
		styles.StatValue.Render(position) +
		styles.StatLabel.Render(pageInfo) +
		"  " + styles.Muted.Render(fmt.Sprintf("[u] Filter: %s  [enter] Re-analyze  [1-0] Page  [[ ]] Prev/Next", filterStatus))

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		l.renderLeadsTable(),
		"",
		l.renderBottomPanel(),
	)
}

func (l Leads) renderLeadsTable() string {
	if len(l.leads) == 0 {
		return styles.Muted.Render("No analyses yet")
	}

	header := fmt.Sprintf("%-24s %5s %9s %6s %-16s %-7s %-9s %-10s",
		"Handle", "Score", "Follower", "ER%", "Posting", "Growth", "Contacted", "Analyzed")
	rows := styles.TableHeader.Render(header) + "\n"

	visibleRows := l.getVisibleRows()

	scrollOffset := 0
	if l.selectedRow >= visibleRows {
		scrollOffset = l.selectedRow - visibleRows + 1
	}

	endRow := scrollOffset + visibleRows
	if endRow > len(l.leads) {
		endRow = len(l.leads)
	}

	for i := scrollOffset; i < endRow; i++ {
		ld := l.leads[i]

		contacted := "-"
		if ld.Converted {
			contacted = "client"
		} else if ld.Contacted {
			contacted = "yes"
		}

		row := fmt.Sprintf("%-24s %5.1f %9d %6.2f %-16s %-7s %-9s %-10s",
			truncate("@"+ld.Username, 24),
			ld.OpportunityScore,
			ld.Followers,
			ld.EngagementRate,
			truncate(ld.PostingFrequency, 16),
			truncate(ld.GrowthPotential, 7),
			contacted,
			relativeTime(ld.AnalyzedAt),
		)

		if i == l.selectedRow {
			rows += styles.TableSelected.Render(row) + "\n"
		} else {
			rows += row + "\n"
		}
	}

	if len(l.leads) > visibleRows {
		rows += styles.Muted.Render(fmt.Sprintf("  [%d-%d of %d]", scrollOffset+1, endRow, len(l.leads)))
	}

	return rows
}

func (l Leads) renderBottomPanel() string {
	details := l.renderLeadDetails()
	history := l.renderScoreHistory()

	detailsBox := styles.CardBorder.Width(l.width/2 - 2).Render(
		styles.Title.Render("Lead Details") + "\n" + details,
	)
	historyBox := styles.JobCardBorder.Width(l.width/2 - 2).Render(
		styles.Title.Render("Score History") + "\n" + history,
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, detailsBox, historyBox)
}

func (l Leads) renderLeadDetails() string {
	if len(l.leads) == 0 {
		return styles.Muted.Render("Select a lead")
	}

	ld := l.leads[l.selectedRow]
	lines := []string{
		styles.StatValue.Render("@"+ld.Username) + "  " + styles.Muted.Render(ld.FullName),
		fmt.Sprintf("Score: %.1f   Growth: %s", ld.OpportunityScore, ld.GrowthPotential),
		"",
	}

	if len(ld.Issues) > 0 {
		lines = append(lines, styles.StatLabel.Render("Issues"))
		for _, issue := range ld.Issues {
			lines = append(lines, "  - "+issue)
		}
	}
	if len(ld.Recommendations) > 0 {
		lines = append(lines, styles.StatLabel.Render("Recommendations"))
		for _, rec := range ld.Recommendations {
			lines = append(lines, "  - "+rec)
		}
	}
	if ld.Notes != "" {
		lines = append(lines, "")
		lines = append(lines, wrapText("Notes: "+ld.Notes, l.width/2-6)...)
	}

	return strings.Join(lines, "\n")
}

func (l Leads) renderScoreHistory() string {
	if len(l.history) == 0 {
		return styles.Muted.Render("Select a lead")
	}

	header := fmt.Sprintf("%-12s %6s", "Date", "Score")
	rows := styles.TableHeader.Render(header) + "\n"

	maxRows := 8
	if len(l.history) < maxRows {
		maxRows = len(l.history)
	}

	// Newest first; color each row against the one above it.
	var prev float64
	for i := 0; i < maxRows; i++ {
		p := l.history[i]
		date := p.AnalyzedAt.Format("2006-01-02")

		scoreStyle := lipgloss.NewStyle()
		if i > 0 && prev > 0 && p.Score != prev {
			if p.Score > prev {
				scoreStyle = styles.StatusError
			} else {
				scoreStyle = styles.StatusSuccess
			}
		}
		prev = p.Score

		rows += fmt.Sprintf("%-12s %s\n", date, scoreStyle.Render(fmt.Sprintf("%6.1f", p.Score)))
	}
	return rows
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		width = 40
	}
	var lines []string
	words := strings.Fields(text)
	var line string
	for _, word := range words {
		if len(line)+len(word)+1 > width {
			lines = append(lines, line)
			line = word
		} else {
			if line != "" {
				line += " "
			}
			line += word
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}
