// Package report renders run summaries for terminals and chat.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Summary describes a finished run.
type Summary struct {
	RunID        string
	Workflow     string
	Records      int
	Chunks       int
	ChunksFailed int
	Rows         int
	Diagnostics  map[string]int
	Output       string
	Journal      string
	Started      time.Time
	Finished     time.Time
}

// Duration is the wall time of the run.
func (s Summary) Duration() time.Duration {
	if s.Finished.IsZero() || s.Started.IsZero() {
		return 0
	}
	return s.Finished.Sub(s.Started).Round(time.Millisecond)
}

// OK reports whether every chunk succeeded.
func (s Summary) OK() bool { return s.ChunksFailed == 0 }

func (s Summary) kinds() []string {
	kinds := make([]string, 0, len(s.Diagnostics))
	for k, n := range s.Diagnostics {
		if n > 0 {
			kinds = append(kinds, k)
		}
	}
	sort.Strings(kinds)
	return kinds
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

// Render draws the summary as a bordered terminal panel.
func Render(s Summary) string {
	line := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(fmt.Sprintf("%-22s", label)), value)
	}

	status := okStyle.Render("completed")
	if !s.OK() {
		status = failStyle.Render(fmt.Sprintf("completed with %d failed chunk(s)", s.ChunksFailed))
	}

	lines := []string{
		titleStyle.Render("scribe " + s.Workflow),
		line("run", s.RunID),
		line("status", status),
		line("records", fmt.Sprintf("%d in %d chunk(s)", s.Records, s.Chunks)),
		line("rows", fmt.Sprintf("%d", s.Rows)),
		line("duration", s.Duration().String()),
	}
	if s.Output != "" {
		lines = append(lines, line("output", s.Output))
	}
	if s.Journal != "" {
		lines = append(lines, line("diagnostics", s.Journal))
	}
	for _, k := range s.kinds() {
		lines = append(lines, line("  "+k, fmt.Sprintf("%d", s.Diagnostics[k])))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// Markdown formats the summary for Slack mrkdwn.
func Markdown(s Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*scribe %s run* `%s`\n", s.Workflow, s.RunID)
	if s.OK() {
		sb.WriteString("Status: completed\n")
	} else {
		fmt.Fprintf(&sb, "Status: completed with %d failed chunk(s)\n", s.ChunksFailed)
	}
	fmt.Fprintf(&sb, "Records: %d in %d chunk(s), %d row(s) written in %s\n", s.Records, s.Chunks, s.Rows, s.Duration())
	if s.Output != "" {
		fmt.Fprintf(&sb, "Output: %s\n", s.Output)
	}
	kinds := s.kinds()
	if len(kinds) == 0 {
		sb.WriteString("_No diagnostics._")
		return sb.String()
	}
	sb.WriteString("Diagnostics:\n")
	for _, k := range kinds {
		fmt.Fprintf(&sb, "• %s: %d\n", k, s.Diagnostics[k])
	}
	return strings.TrimRight(sb.String(), "\n")
}
