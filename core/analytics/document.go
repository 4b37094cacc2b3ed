package analytics

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iradukundapaci/communiserver-sub002/core/activity"
	"github.com/iradukundapaci/communiserver-sub002/core/document"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
)

// BuildDocument lays the overview out as a printable document.
func BuildDocument(o Overview, appName, generatedBy string) document.Document {
	doc := document.Document{
		Title:       appName + " analytics report",
		Subtitle:    rangeLabel(o.Range),
		GeneratedBy: generatedBy,
		GeneratedAt: o.GeneratedAt,
	}

	doc.Sections = append(doc.Sections,
		document.TextSection("Summary", fmt.Sprintf(
			"%d users, %d tasks and %d reports over the period. %s of tasks were completed "+
				"and %s of reports came with evidence.",
			o.Users.Total, o.Tasks.Total, o.Reports.Total,
			pct(o.Tasks.CompletionRate), pct(o.Reports.EvidenceRate),
		)),
		document.MetricsSection("Key figures",
			document.Metric{Label: "Users", Value: strconv.Itoa(o.Users.Total)},
			document.Metric{Label: "Leadership coverage", Value: pct(o.Leadership.Overall), Hint: "cells, villages and isibos with a leader"},
			document.Metric{Label: "Task completion", Value: pct(o.Tasks.CompletionRate), Hint: fmt.Sprintf("%d of %d tasks", o.Tasks.ByStatus[activity.StatusCompleted], o.Tasks.Total)},
			document.Metric{Label: "Evidence submitted", Value: pct(o.Reports.EvidenceRate), Hint: fmt.Sprintf("%d of %d reports", o.Reports.WithEvidence, o.Reports.Total)},
			document.Metric{Label: "Cost variance", Value: money(o.Tasks.CostVariance), Hint: "actual minus estimated"},
			document.Metric{Label: "Participation", Value: pct(o.Tasks.ParticipationRate), Hint: fmt.Sprintf("%d of %d expected", o.Tasks.ActualParticipants, o.Tasks.ExpectedParticipants)},
		),
	)

	userRows := make([][]string, 0, len(permission.Roles))
	for _, role := range permission.Roles {
		userRows = append(userRows, []string{roleLabel(role), strconv.Itoa(o.Users.ByRole[role])})
	}
	doc.Sections = append(doc.Sections, document.TableSection("Users by role", []string{"Role", "Users"}, userRows))

	leaderRows := make([][]string, 0, len(o.Leadership.Levels))
	for _, lc := range o.Leadership.Levels {
		leaderRows = append(leaderRows, []string{
			capitalize(string(lc.Level)),
			strconv.Itoa(lc.Total),
			strconv.Itoa(lc.WithLeader),
			pct(lc.Coverage),
		})
	}
	doc.Sections = append(doc.Sections, document.TableSection("Leadership coverage",
		[]string{"Level", "Locations", "With leader", "Coverage"}, leaderRows))

	statusRows := make([][]string, 0, len(activity.Statuses))
	for _, st := range activity.Statuses {
		statusRows = append(statusRows, []string{string(st), strconv.Itoa(o.Tasks.ByStatus[st])})
	}
	doc.Sections = append(doc.Sections,
		document.TableSection("Tasks by status", []string{"Status", "Tasks"}, statusRows),
		document.MetricsSection("Finances",
			document.Metric{Label: "Estimated cost", Value: money(o.Tasks.EstimatedCost)},
			document.Metric{Label: "Actual cost", Value: money(o.Tasks.ActualCost)},
			document.Metric{Label: "Expected impact", Value: money(o.Tasks.ExpectedImpact)},
			document.Metric{Label: "Actual impact", Value: money(o.Tasks.ActualImpact)},
		),
	)

	seriesRows := make([][]string, 0, len(o.TimeSeries))
	for _, p := range o.TimeSeries {
		if p.Activities == 0 && p.TasksCompleted == 0 && p.Reports == 0 {
			continue
		}
		seriesRows = append(seriesRows, []string{
			p.Date, strconv.Itoa(p.Activities), strconv.Itoa(p.TasksCompleted), strconv.Itoa(p.Reports),
		})
	}
	if len(seriesRows) == 0 {
		doc.Sections = append(doc.Sections, document.TextSection("Daily activity", "No activity over the period."))
	} else {
		doc.Sections = append(doc.Sections, document.TableSection("Daily activity",
			[]string{"Date", "Activities", "Tasks completed", "Reports"}, seriesRows))
	}
	return doc
}

func rangeLabel(r Range) string {
	label := r.Start.Format("2 Jan 2006") + " to " + r.End.Format("2 Jan 2006")
	if r.Period != "" {
		label = "Last " + r.Period + ": " + label
	}
	return label
}

func roleLabel(role permission.Role) string {
	words := strings.Split(strings.ToLower(string(role)), "_")
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func pct(f float64) string   { return strconv.FormatFloat(f, 'f', -1, 64) + "%" }
func money(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) + " RWF" }
