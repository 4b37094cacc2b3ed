package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/iradukundapaci/communiserver-sub002/core/activity"
	"github.com/iradukundapaci/communiserver-sub002/core/analytics"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
)

type analyticsStore struct {
	db *DB
}

func NewAnalyticsStore(db *DB) analytics.Store {
	return &analyticsStore{db: db}
}

func inRange(t time.Time, r analytics.Range) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *analyticsStore) UsersByRole(context.Context) (map[permission.Role]int, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	counts := make(map[permission.Role]int)
	for _, u := range s.db.users {
		if u.DeletedAt == nil {
			counts[u.Role]++
		}
	}
	return counts, nil
}

func (s *analyticsStore) Leadership(_ context.Context, level location.Level) (total, withLeader int, err error) {
	s.db.RLock()
	defer s.db.RUnlock()

	for _, n := range s.db.nodes[level] {
		if n.DeletedAt != nil {
			continue
		}
		total++
		if n.HasLeader {
			withLeader++
		}
	}
	return total, withLeader, nil
}

func (s *analyticsStore) TaskTotals(_ context.Context, r analytics.Range) (analytics.TaskTotals, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	tt := analytics.TaskTotals{ByStatus: make(map[activity.TaskStatus]int)}
	for _, t := range s.db.tasks {
		if t.DeletedAt != nil || !inRange(t.CreatedAt, r) {
			continue
		}
		tt.Total++
		tt.ByStatus[t.Status]++
		tt.EstimatedCost += t.EstimatedCost
		tt.ActualCost += t.ActualCost
		tt.ExpectedParticipants += t.ExpectedParticipants
		tt.ActualParticipants += t.ActualParticipants
		tt.ExpectedImpact += t.ExpectedFinancialImpact
		tt.ActualImpact += t.ActualFinancialImpact
	}
	return tt, nil
}

func (s *analyticsStore) ReportTotals(_ context.Context, r analytics.Range) (analytics.ReportTotals, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	var rt analytics.ReportTotals
	reported := make(map[string]bool)
	for _, rep := range s.db.reports {
		if rep.DeletedAt != nil {
			continue
		}
		reported[rep.ActivityID] = true
		if !inRange(rep.CreatedAt, r) {
			continue
		}
		rt.Total++
		if rep.HasEvidence() {
			rt.WithEvidence++
		}
	}
	for _, a := range s.db.activities {
		if a.DeletedAt != nil || !inRange(a.Date, r) {
			continue
		}
		rt.Activities++
		if reported[a.ID] {
			rt.ActivitiesWithReports++
		}
	}
	return rt, nil
}

func (s *analyticsStore) DailyCounts(_ context.Context, r analytics.Range) ([]analytics.DailyCount, error) {
	s.db.RLock()
	defer s.db.RUnlock()

	byDay := make(map[time.Time]*analytics.DailyCount)
	get := func(t time.Time) *analytics.DailyCount {
		d := day(t)
		c, ok := byDay[d]
		if !ok {
			c = &analytics.DailyCount{Day: d}
			byDay[d] = c
		}
		return c
	}

	for _, a := range s.db.activities {
		if a.DeletedAt == nil && inRange(a.Date, r) {
			get(a.Date).Activities++
		}
	}
	for _, t := range s.db.tasks {
		if t.DeletedAt == nil && t.Status == activity.StatusCompleted && inRange(t.UpdatedAt, r) {
			get(t.UpdatedAt).TasksCompleted++
		}
	}
	for _, rep := range s.db.reports {
		if rep.DeletedAt == nil && inRange(rep.CreatedAt, r) {
			get(rep.CreatedAt).Reports++
		}
	}

	counts := make([]analytics.DailyCount, 0, len(byDay))
	for _, c := range byDay {
		counts = append(counts, *c)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Day.Before(counts[j].Day) })
	return counts, nil
}
