package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/satyaki-up/agileflow/internal/workflow"
)

var (
	colorPass   = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	colorFail   = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	colorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

const (
	iconPass = "✓"
	iconWarn = "⚠"
	iconFail = "✗"
)

// styles are bound to the output writer so colors drop out when it is not
// a terminal.
type styles struct {
	header lipgloss.Style
	muted  lipgloss.Style
	pass   lipgloss.Style
	warn   lipgloss.Style
	fail   lipgloss.Style
	accent lipgloss.Style
	box    lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		header: r.NewStyle().Bold(true).Foreground(colorAccent),
		muted:  r.NewStyle().Foreground(colorMuted),
		pass:   r.NewStyle().Foreground(colorPass),
		warn:   r.NewStyle().Foreground(colorWarn),
		fail:   r.NewStyle().Foreground(colorFail),
		accent: r.NewStyle().Foreground(colorAccent),
		box: r.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1),
	}
}

func (s styles) status(st workflow.Status) string {
	switch st {
	case workflow.StatusDone:
		return s.pass.Render(string(st))
	case workflow.StatusBlocked:
		return s.fail.Render(string(st))
	case workflow.StatusTodo:
		return s.muted.Render(string(st))
	default:
		return s.accent.Render(string(st))
	}
}

func (s styles) sprintStatus(st workflow.SprintStatus) string {
	switch st {
	case workflow.SprintActive:
		return s.accent.Render(string(st))
	case workflow.SprintCompleted:
		return s.pass.Render(string(st))
	case workflow.SprintCancelled:
		return s.fail.Render(string(st))
	default:
		return s.muted.Render(string(st))
	}
}

func (s styles) health(l workflow.HealthLevel) string {
	switch l {
	case workflow.HealthExcellent, workflow.HealthGood:
		return s.pass.Render(string(l))
	case workflow.HealthFair:
		return s.warn.Render(string(l))
	default:
		return s.fail.Render(string(l))
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// emit prints v as JSON under --json, otherwise calls text.
func (a *app) emit(v any, text func(w io.Writer)) error {
	if a.jsonOut {
		return printJSON(a.out, v)
	}
	text(a.out)
	return nil
}

func hours(h float64) string {
	return humanize.FtoaWithDigits(h, 1) + "h"
}

func (a *app) printProject(w io.Writer, p *workflow.Project) {
	fmt.Fprintf(w, "%s %s\n", a.st.header.Render(p.Key), p.Name)
	if p.Description != "" {
		fmt.Fprintf(w, "  %s\n", p.Description)
	}
	fmt.Fprintf(w, "  %s\n", a.st.muted.Render("created "+humanize.Time(p.CreatedAt)))
}

func (a *app) storyLine(w io.Writer, s *workflow.Story) {
	ready := ""
	if workflow.IsReady(s) {
		ready = " " + a.st.pass.Render("ready")
	}
	fmt.Fprintf(w, "%-16s %-12s %3dpt  p%-3d %s%s\n", s.ID, a.st.status(s.Status), s.Points, s.Priority, s.Title, ready)
}

func (a *app) printStory(w io.Writer, s *workflow.Story, tasks []*workflow.Task) {
	fmt.Fprintf(w, "%s %s\n", a.st.header.Render(s.ID), s.Title)
	fmt.Fprintf(w, "  status:    %s\n", a.st.status(s.Status))
	fmt.Fprintf(w, "  points:    %d\n", s.Points)
	fmt.Fprintf(w, "  priority:  %d\n", s.Priority)
	if s.SprintID != "" {
		fmt.Fprintf(w, "  sprint:    %s\n", s.SprintID)
	}
	if s.EpicID != "" {
		fmt.Fprintf(w, "  epic:      %s\n", s.EpicID)
	}
	if s.BusinessValue > 0 {
		fmt.Fprintf(w, "  scores:    value %d, urgency %d, time %d, risk %d\n",
			s.BusinessValue, s.Urgency, s.TimeCriticality, s.RiskReduction)
	}
	if len(s.Dependencies) > 0 {
		fmt.Fprintf(w, "  depends:   %s\n", strings.Join(s.Dependencies, ", "))
	}
	fmt.Fprintf(w, "  updated:   %s\n", a.st.muted.Render(humanize.Time(s.UpdatedAt)))
	if d := s.Description.String(); d != "" {
		fmt.Fprintf(w, "\n  %s\n", d)
	}
	if s.Criteria.Valid() {
		fmt.Fprintln(w)
		fmt.Fprintln(w, indent(a.st.box.Render(s.Criteria.Gherkin()), "  "))
	}
	if len(tasks) > 0 {
		fmt.Fprintln(w)
		for _, t := range tasks {
			a.taskLine(w, t)
		}
	}
}

func (a *app) taskLine(w io.Writer, t *workflow.Task) {
	flag := ""
	if t.Blocked {
		flag = " " + a.st.fail.Render(iconFail+" "+t.BlockReason)
	}
	fmt.Fprintf(w, "  %-18s %-12s %6s/%-6s %s%s\n", t.ID, a.st.status(t.Status), hours(t.ActualHours), hours(t.EstimatedHours), t.Title, flag)
}

func (a *app) printTask(w io.Writer, t *workflow.Task) {
	fmt.Fprintf(w, "%s %s\n", a.st.header.Render(t.ID), t.Title)
	fmt.Fprintf(w, "  status:    %s\n", a.st.status(t.Status))
	fmt.Fprintf(w, "  story:     %s\n", t.StoryID)
	if t.SprintID != "" {
		fmt.Fprintf(w, "  sprint:    %s\n", t.SprintID)
	}
	if t.AssigneeID != "" {
		fmt.Fprintf(w, "  assignee:  %s\n", t.AssigneeID)
	}
	fmt.Fprintf(w, "  hours:     %s of %s\n", hours(t.ActualHours), hours(t.EstimatedHours))
	if t.Blocked {
		fmt.Fprintf(w, "  blocked:   %s", a.st.fail.Render(t.BlockReason))
		if t.BlockedBy != "" {
			fmt.Fprintf(w, " (by %s)", t.BlockedBy)
		}
		fmt.Fprintln(w)
	}
	if t.Description != "" {
		fmt.Fprintf(w, "  %s\n", t.Description)
	}
	fmt.Fprintf(w, "  updated:   %s\n", a.st.muted.Render(humanize.Time(t.UpdatedAt)))
}

func (a *app) sprintLine(w io.Writer, sp *workflow.Sprint) {
	capacity := "-"
	if sp.Capacity != nil {
		capacity = fmt.Sprintf("%dpt", *sp.Capacity)
	}
	fmt.Fprintf(w, "%-10s %-11s %s..%s  %5s  %s\n", sp.ID, a.st.sprintStatus(sp.Status),
		sp.StartDate.Format("2006-01-02"), sp.EndDate.Format("2006-01-02"), capacity, sp.Goal)
}

func (a *app) printMetrics(w io.Writer, m workflow.Metrics) {
	track := a.st.warn.Render(iconWarn + " behind")
	if m.OnTrack {
		track = a.st.pass.Render(iconPass + " on track")
	}
	fmt.Fprintf(w, "%s %s\n", a.st.header.Render("Metrics"), track)
	fmt.Fprintf(w, "  points:   %d/%d done, %d remaining (%.1f%%)\n", m.CompletedPoints, m.TotalPoints, m.RemainingPoints, m.Progress)
	fmt.Fprintf(w, "  stories:  %d done, %d in progress, %d todo of %d\n", m.CompletedStories, m.InProgressStories, m.TodoStories, m.TotalStories)
	fmt.Fprintf(w, "  tasks:    %d done, %d in progress of %d\n", m.CompletedTasks, m.InProgressTasks, m.TotalTasks)
	fmt.Fprintf(w, "  hours:    %s spent, %s remaining of %s\n", hours(m.ActualHours), hours(m.RemainingHours), hours(m.EstimatedHours))
	fmt.Fprintf(w, "  days:     %d of %d elapsed, %d remaining\n", m.ElapsedDays, m.DurationDays, m.RemainingDays)
	fmt.Fprintf(w, "  rate:     %.2f actual vs %.2f expected pts/day\n", m.ActualVelocityRate, m.ExpectedVelocityRate)
}

func (a *app) printBurndown(w io.Writer, b workflow.Burndown) {
	fmt.Fprintf(w, "%s %d/%d points remaining, ideal %d\n", a.st.header.Render("Burndown"), b.RemainingPoints, b.TotalPoints, b.IdealRemaining)
	for day, ideal := range b.IdealCurve {
		marker := " "
		if day == b.ElapsedDays {
			marker = ">"
		}
		fmt.Fprintf(w, " %s day %2d  %6.1f\n", marker, day, ideal)
	}
	if b.BehindIdeal {
		fmt.Fprintln(w, a.st.warn.Render(iconWarn+" behind the ideal line"))
	}
}

func (a *app) printHealth(w io.Writer, h workflow.Health) {
	fmt.Fprintf(w, "%s %d %s\n", a.st.header.Render("Health"), h.Score, a.st.health(h.Level))
	for _, s := range h.Issues {
		fmt.Fprintf(w, "  %s %s\n", a.st.fail.Render(iconFail), s)
	}
	for _, s := range h.Warnings {
		fmt.Fprintf(w, "  %s %s\n", a.st.warn.Render(iconWarn), s)
	}
	for _, s := range h.Recommendations {
		fmt.Fprintf(w, "  %s %s\n", a.st.muted.Render("-"), s)
	}
}

func (a *app) printCheck(w io.Writer, c workflow.Check) {
	if c.OK() {
		fmt.Fprintln(w, a.st.pass.Render(iconPass+" ok"))
	}
	for _, s := range c.Errors {
		fmt.Fprintf(w, "%s %s\n", a.st.fail.Render(iconFail), s)
	}
	for _, s := range c.Warnings {
		fmt.Fprintf(w, "%s %s\n", a.st.warn.Render(iconWarn), s)
	}
}

func (a *app) printRanked(w io.Writer, m workflow.Method, ranked []workflow.Ranked) {
	for _, r := range ranked {
		extra := ""
		if m == workflow.MethodMoSCoW {
			extra = "  " + string(workflow.Category(r.Score))
		}
		fmt.Fprintf(w, "%3d  %-16s %8.2f%s  %s\n", r.Priority, r.Story.ID, r.Score, extra, r.Story.Title)
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
