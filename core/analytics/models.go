package analytics

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/activity"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
)

const DefaultPeriod = "30d"

// MaxRangeDays bounds explicit start/end ranges, leap years included.
const MaxRangeDays = 366

// periods maps the accepted period values to their length in days.
var periods = map[string]int{"7d": 7, "30d": 30, "90d": 90, "1y": 365}

var (
	errInvalidPeriod = errors.New("period must be one of 7d, 30d, 90d or 1y")
	errRangeBounds   = errors.New("start and end must be given together")
	errRangeOrder    = errors.New("start must be before end")
	errRangeSpan     = errors.Errorf("range cannot span more than %d days", MaxRangeDays)
)

// Range is the inclusive reporting interval.
type Range struct {
	Period string    `json:"period,omitempty"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// ParseRange resolves either an explicit start/end pair or a period ending now.
func ParseRange(period, start, end string, now time.Time) (Range, error) {
	period = core.CleanString(period, true /* lower */)
	start = core.CleanString(start)
	end = core.CleanString(end)
	now = now.UTC()

	if start != "" || end != "" {
		if start == "" || end == "" {
			return Range{}, core.NewValidationError(errRangeBounds)
		}
		s, _, err := activity.ParseDate(start)
		if err != nil {
			return Range{}, core.NewValidationError(nil, core.FieldError{Field: "start", Error: err.Error()})
		}
		e, dateOnly, err := activity.ParseDate(end)
		if err != nil {
			return Range{}, core.NewValidationError(nil, core.FieldError{Field: "end", Error: err.Error()})
		}
		if dateOnly {
			e = e.Add(24*time.Hour - time.Nanosecond)
		}
		if e.Before(s) {
			return Range{}, core.NewValidationError(errRangeOrder)
		}
		if !startOfDay(e).Before(startOfDay(s).AddDate(0, 0, MaxRangeDays)) {
			return Range{}, core.NewValidationError(nil, core.FieldError{Field: "end", Error: errRangeSpan.Error()})
		}
		return Range{Start: s, End: e}, nil
	}

	if period == "" {
		period = DefaultPeriod
	}
	days, ok := periods[period]
	if !ok {
		return Range{}, core.NewValidationError(nil, core.FieldError{Field: "period", Error: errInvalidPeriod.Error()})
	}
	return Range{
		Period: period,
		Start:  startOfDay(now).AddDate(0, 0, -(days - 1)),
		End:    now,
	}, nil
}

// Days lists the first instant of every day of the range.
func (r Range) Days() []time.Time {
	var days []time.Time
	for d := startOfDay(r.Start); !d.After(r.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Percent returns num/den as a percentage rounded to 2 decimals, and 0 when den is 0.
func Percent(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return round(num / den * 100)
}

func round(f float64) float64 {
	return math.Round(f*100) / 100
}

// raw figures returned by the Store

type TaskTotals struct {
	ByStatus             map[activity.TaskStatus]int
	Total                int
	EstimatedCost        float64
	ActualCost           float64
	ExpectedParticipants int
	ActualParticipants   int
	ExpectedImpact       float64
	ActualImpact         float64
}

type ReportTotals struct {
	Total                 int
	WithEvidence          int
	Activities            int
	ActivitiesWithReports int
}

type DailyCount struct {
	Day            time.Time
	Activities     int
	TasksCompleted int
	Reports        int
}

// rollups served to clients

type UserStats struct {
	Total  int                     `json:"total"`
	ByRole map[permission.Role]int `json:"byRole"`
}

type LevelCoverage struct {
	Level      location.Level `json:"level"`
	Total      int            `json:"total"`
	WithLeader int            `json:"withLeader"`
	Coverage   float64        `json:"coverage"`
}

type LeadershipStats struct {
	Levels  []LevelCoverage `json:"levels"`
	Overall float64         `json:"overall"`
}

type TaskStats struct {
	Total                int                         `json:"total"`
	ByStatus             map[activity.TaskStatus]int `json:"byStatus"`
	CompletionRate       float64                     `json:"completionRate"`
	EstimatedCost        float64                     `json:"estimatedCost"`
	ActualCost           float64                     `json:"actualCost"`
	CostVariance         float64                     `json:"costVariance"`
	ExpectedParticipants int                         `json:"expectedParticipants"`
	ActualParticipants   int                         `json:"actualParticipants"`
	ParticipationRate    float64                     `json:"participationRate"`
	ExpectedImpact       float64                     `json:"expectedImpact"`
	ActualImpact         float64                     `json:"actualImpact"`
	ImpactVariance       float64                     `json:"impactVariance"`
}

type ReportStats struct {
	Total                 int     `json:"total"`
	WithEvidence          int     `json:"withEvidence"`
	EvidenceRate          float64 `json:"evidenceRate"`
	Activities            int     `json:"activities"`
	ActivitiesWithReports int     `json:"activitiesWithReports"`
	ActivityCoverage      float64 `json:"activityCoverage"`
}

type SeriesPoint struct {
	Date           string `json:"date"` // YYYY-MM-DD
	Activities     int    `json:"activities"`
	TasksCompleted int    `json:"tasksCompleted"`
	Reports        int    `json:"reports"`
}

type Overview struct {
	Range       Range           `json:"range"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Users       UserStats       `json:"users"`
	Leadership  LeadershipStats `json:"leadership"`
	Tasks       TaskStats       `json:"tasks"`
	Reports     ReportStats     `json:"reports"`
	TimeSeries  []SeriesPoint   `json:"timeSeries"`
}
