package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core/activity"
	"github.com/iradukundapaci/communiserver-sub002/core/analytics"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
)

const dailyCountsSQL = `SELECT day, SUM(activities) AS activities, SUM(tasks_completed) AS tasks_completed, SUM(reports) AS reports
FROM (
	SELECT date_trunc('day', date AT TIME ZONE 'UTC') AS day, 1 AS activities, 0 AS tasks_completed, 0 AS reports
	FROM activities WHERE deleted_at IS NULL AND date BETWEEN ? AND ?
	UNION ALL
	SELECT date_trunc('day', updated_at AT TIME ZONE 'UTC'), 0, 1, 0
	FROM tasks WHERE deleted_at IS NULL AND status = ? AND updated_at BETWEEN ? AND ?
	UNION ALL
	SELECT date_trunc('day', created_at AT TIME ZONE 'UTC'), 0, 0, 1
	FROM reports WHERE deleted_at IS NULL AND created_at BETWEEN ? AND ?
) counts
GROUP BY day
ORDER BY day`

type analyticsStore struct {
	base
}

var _ analytics.Store = (*analyticsStore)(nil)

func NewAnalyticsStore(db *sqlx.DB) analytics.Store {
	return &analyticsStore{base{db: db}}
}

func (s *analyticsStore) UsersByRole(ctx context.Context) (map[permission.Role]int, error) {
	var rows []struct {
		Role  string `db:"role"`
		Count int    `db:"n"`
	}
	q := "SELECT role, COUNT(*) AS n FROM users WHERE deleted_at IS NULL GROUP BY role"
	if err := s.exec(ctx).SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "counting users by role")
	}
	counts := make(map[permission.Role]int, len(rows))
	for _, row := range rows {
		counts[permission.Role(row.Role)] = row.Count
	}
	return counts, nil
}

func (s *analyticsStore) Leadership(ctx context.Context, level location.Level) (total, withLeader int, err error) {
	t, ok := levelTables[level]
	if !ok {
		return 0, 0, errors.Errorf("unknown level %q", level)
	}
	led := "0"
	if level.HasLeader() {
		led = "COUNT(*) FILTER (WHERE has_leader)"
	}

	var row struct {
		Total      int `db:"total"`
		WithLeader int `db:"with_leader"`
	}
	q := "SELECT COUNT(*) AS total, " + led + " AS with_leader FROM " + t.name + " WHERE deleted_at IS NULL"
	if err = s.exec(ctx).GetContext(ctx, &row, q); err != nil {
		return 0, 0, errors.Wrap(err, "counting "+t.name)
	}
	return row.Total, row.WithLeader, nil
}

func (s *analyticsStore) TaskTotals(ctx context.Context, r analytics.Range) (analytics.TaskTotals, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"n"`
		figuresRow
	}
	q := `SELECT status, COUNT(*) AS n,
		COALESCE(SUM(estimated_cost), 0) AS estimated_cost,
		COALESCE(SUM(actual_cost), 0) AS actual_cost,
		COALESCE(SUM(expected_participants), 0) AS expected_participants,
		COALESCE(SUM(actual_participants), 0) AS actual_participants,
		COALESCE(SUM(expected_financial_impact), 0) AS expected_financial_impact,
		COALESCE(SUM(actual_financial_impact), 0) AS actual_financial_impact
		FROM tasks WHERE deleted_at IS NULL AND created_at BETWEEN ? AND ?
		GROUP BY status`

	exec := s.exec(ctx)
	if err := exec.SelectContext(ctx, &rows, exec.Rebind(q), r.Start.UTC(), r.End.UTC()); err != nil {
		return analytics.TaskTotals{}, errors.Wrap(err, "summing tasks")
	}

	tt := analytics.TaskTotals{ByStatus: make(map[activity.TaskStatus]int, len(rows))}
	for _, row := range rows {
		tt.ByStatus[activity.TaskStatus(row.Status)] = row.Count
		tt.Total += row.Count
		tt.EstimatedCost += row.EstimatedCost
		tt.ActualCost += row.ActualCost
		tt.ExpectedParticipants += row.ExpectedParticipants
		tt.ActualParticipants += row.ActualParticipants
		tt.ExpectedImpact += row.ExpectedFinancialImpact
		tt.ActualImpact += row.ActualFinancialImpact
	}
	return tt, nil
}

func (s *analyticsStore) ReportTotals(ctx context.Context, r analytics.Range) (analytics.ReportTotals, error) {
	exec := s.exec(ctx)
	var rt analytics.ReportTotals

	var reports struct {
		Total        int `db:"total"`
		WithEvidence int `db:"with_evidence"`
	}
	q := `SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE cardinality(evidence_urls) > 0) AS with_evidence
		FROM reports WHERE deleted_at IS NULL AND created_at BETWEEN ? AND ?`
	if err := exec.GetContext(ctx, &reports, exec.Rebind(q), r.Start.UTC(), r.End.UTC()); err != nil {
		return rt, errors.Wrap(err, "counting reports")
	}

	var acts struct {
		Total       int `db:"total"`
		WithReports int `db:"with_reports"`
	}
	q = `SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE EXISTS (
			SELECT 1 FROM reports r WHERE r.activity_id = a.id AND r.deleted_at IS NULL
		)) AS with_reports
		FROM activities a WHERE a.deleted_at IS NULL AND a.date BETWEEN ? AND ?`
	if err := exec.GetContext(ctx, &acts, exec.Rebind(q), r.Start.UTC(), r.End.UTC()); err != nil {
		return rt, errors.Wrap(err, "counting reported activities")
	}

	rt.Total = reports.Total
	rt.WithEvidence = reports.WithEvidence
	rt.Activities = acts.Total
	rt.ActivitiesWithReports = acts.WithReports
	return rt, nil
}

func (s *analyticsStore) DailyCounts(ctx context.Context, r analytics.Range) ([]analytics.DailyCount, error) {
	var rows []struct {
		Day            time.Time `db:"day"`
		Activities     int       `db:"activities"`
		TasksCompleted int       `db:"tasks_completed"`
		Reports        int       `db:"reports"`
	}
	start, end := r.Start.UTC(), r.End.UTC()

	exec := s.exec(ctx)
	err := exec.SelectContext(ctx, &rows, exec.Rebind(dailyCountsSQL),
		start, end,
		string(activity.StatusCompleted), start, end,
		start, end)
	if err != nil {
		return nil, errors.Wrap(err, "counting daily activity")
	}

	counts := make([]analytics.DailyCount, 0, len(rows))
	for _, row := range rows {
		y, m, d := row.Day.Date()
		counts = append(counts, analytics.DailyCount{
			Day:            time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
			Activities:     row.Activities,
			TasksCompleted: row.TasksCompleted,
			Reports:        row.Reports,
		})
	}
	return counts, nil
}
