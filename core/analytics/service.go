// Package analytics computes read-only rollups over users, locations, tasks and reports.
// Every figure is queried fresh per request.
package analytics

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/activity"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
)

type (
	// Store runs the aggregation queries; ranged queries are inclusive on both ends.
	Store interface {
		UsersByRole(ctx context.Context) (map[permission.Role]int, error)
		// Leadership counts the live nodes of a level and how many have a leader.
		Leadership(ctx context.Context, level location.Level) (total, withLeader int, err error)
		TaskTotals(ctx context.Context, r Range) (TaskTotals, error)
		ReportTotals(ctx context.Context, r Range) (ReportTotals, error)
		// DailyCounts returns the non empty days of the range.
		DailyCounts(ctx context.Context, r Range) ([]DailyCount, error)
	}

	Service interface {
		Overview(ctx context.Context, r Range) (Overview, error)
		Users(ctx context.Context) (UserStats, error)
		Leadership(ctx context.Context) (LeadershipStats, error)
		Tasks(ctx context.Context, r Range) (TaskStats, error)
		Reports(ctx context.Context, r Range) (ReportStats, error)
		TimeSeries(ctx context.Context, r Range) ([]SeriesPoint, error)
	}

	service struct {
		store Store
		now   core.NowFunc
	}
)

func NewService(store Store) Service {
	return &service{store: store, now: core.UTCNow}
}

func (svc *service) Overview(ctx context.Context, r Range) (Overview, error) {
	var (
		o   = Overview{Range: r, GeneratedAt: svc.now()}
		err error
	)
	if o.Users, err = svc.Users(ctx); err != nil {
		return Overview{}, err
	}
	if o.Leadership, err = svc.Leadership(ctx); err != nil {
		return Overview{}, err
	}
	if o.Tasks, err = svc.Tasks(ctx, r); err != nil {
		return Overview{}, err
	}
	if o.Reports, err = svc.Reports(ctx, r); err != nil {
		return Overview{}, err
	}
	if o.TimeSeries, err = svc.TimeSeries(ctx, r); err != nil {
		return Overview{}, err
	}
	return o, nil
}

func (svc *service) Users(ctx context.Context) (UserStats, error) {
	counts, err := svc.store.UsersByRole(ctx)
	if err != nil {
		return UserStats{}, errors.Wrap(err, "counting users")
	}
	stats := UserStats{ByRole: make(map[permission.Role]int, len(permission.Roles))}
	for _, role := range permission.Roles {
		stats.ByRole[role] = counts[role]
		stats.Total += counts[role]
	}
	return stats, nil
}

func (svc *service) Leadership(ctx context.Context) (LeadershipStats, error) {
	var (
		stats             LeadershipStats
		total, withLeader int
	)
	for _, level := range location.LeaderLevels {
		t, w, err := svc.store.Leadership(ctx, level)
		if err != nil {
			return LeadershipStats{}, errors.Wrapf(err, "counting %s leaders", level)
		}
		stats.Levels = append(stats.Levels, LevelCoverage{
			Level:      level,
			Total:      t,
			WithLeader: w,
			Coverage:   Percent(float64(w), float64(t)),
		})
		total += t
		withLeader += w
	}
	stats.Overall = Percent(float64(withLeader), float64(total))
	return stats, nil
}

func (svc *service) Tasks(ctx context.Context, r Range) (TaskStats, error) {
	tt, err := svc.store.TaskTotals(ctx, r)
	if err != nil {
		return TaskStats{}, errors.Wrap(err, "aggregating tasks")
	}
	stats := TaskStats{
		Total:                tt.Total,
		ByStatus:             make(map[activity.TaskStatus]int, len(activity.Statuses)),
		CompletionRate:       Percent(float64(tt.ByStatus[activity.StatusCompleted]), float64(tt.Total)),
		EstimatedCost:        round(tt.EstimatedCost),
		ActualCost:           round(tt.ActualCost),
		CostVariance:         round(tt.ActualCost - tt.EstimatedCost),
		ExpectedParticipants: tt.ExpectedParticipants,
		ActualParticipants:   tt.ActualParticipants,
		ParticipationRate:    Percent(float64(tt.ActualParticipants), float64(tt.ExpectedParticipants)),
		ExpectedImpact:       round(tt.ExpectedImpact),
		ActualImpact:         round(tt.ActualImpact),
		ImpactVariance:       round(tt.ActualImpact - tt.ExpectedImpact),
	}
	for _, st := range activity.Statuses {
		stats.ByStatus[st] = tt.ByStatus[st]
	}
	return stats, nil
}

func (svc *service) Reports(ctx context.Context, r Range) (ReportStats, error) {
	rt, err := svc.store.ReportTotals(ctx, r)
	if err != nil {
		return ReportStats{}, errors.Wrap(err, "aggregating reports")
	}
	return ReportStats{
		Total:                 rt.Total,
		WithEvidence:          rt.WithEvidence,
		EvidenceRate:          Percent(float64(rt.WithEvidence), float64(rt.Total)),
		Activities:            rt.Activities,
		ActivitiesWithReports: rt.ActivitiesWithReports,
		ActivityCoverage:      Percent(float64(rt.ActivitiesWithReports), float64(rt.Activities)),
	}, nil
}

// TimeSeries returns one point per day of the range, zero filled.
func (svc *service) TimeSeries(ctx context.Context, r Range) ([]SeriesPoint, error) {
	counts, err := svc.store.DailyCounts(ctx, r)
	if err != nil {
		return nil, errors.Wrap(err, "aggregating daily counts")
	}
	byDay := make(map[string]DailyCount, len(counts))
	for _, c := range counts {
		byDay[dayKey(c.Day)] = c
	}

	days := r.Days()
	points := make([]SeriesPoint, 0, len(days))
	for _, d := range days {
		key := dayKey(d)
		c := byDay[key]
		points = append(points, SeriesPoint{
			Date:           key,
			Activities:     c.Activities,
			TasksCompleted: c.TasksCompleted,
			Reports:        c.Reports,
		})
	}
	return points, nil
}

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }
