package activity

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core"
)

type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusOngoing   TaskStatus = "ongoing"
	StatusCompleted TaskStatus = "completed"
	StatusCancelled TaskStatus = "cancelled"
)

var Statuses = []TaskStatus{StatusPending, StatusOngoing, StatusCompleted, StatusCancelled}

// transitions lists the allowed targets of every non terminal status.
var transitions = map[TaskStatus][]TaskStatus{
	StatusPending: {StatusOngoing, StatusCancelled},
	StatusOngoing: {StatusCompleted, StatusCancelled},
}

func ParseStatus(s string) (TaskStatus, bool) {
	st := TaskStatus(core.CleanString(s, true /* lower */))
	return st, st.Valid()
}

func (s TaskStatus) Valid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether a task may move from `from` to `to`.
// Staying in the same status is not a transition.
func CanTransition(from, to TaskStatus) bool {
	for _, st := range transitions[from] {
		if st == to {
			return true
		}
	}
	return false
}

type Activity struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Date        time.Time  `json:"date"`
	VillageID   string     `json:"villageId"`
	Tasks       []Task     `json:"tasks,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

// Figures are the planned and as-executed numbers shared by tasks and reports.
type Figures struct {
	EstimatedCost           float64 `json:"estimatedCost"`
	ActualCost              float64 `json:"actualCost"`
	ExpectedParticipants    int     `json:"expectedParticipants"`
	ActualParticipants      int     `json:"actualParticipants"`
	ExpectedFinancialImpact float64 `json:"expectedFinancialImpact"`
	ActualFinancialImpact   float64 `json:"actualFinancialImpact"`
}

// Variances are actual minus planned figures; never stored.
type Variances struct {
	CostVariance        float64 `json:"costVariance"`
	ParticipantVariance int     `json:"participantVariance"`
	ImpactVariance      float64 `json:"impactVariance"`
}

func (f Figures) Variances() Variances {
	return Variances{
		CostVariance:        f.ActualCost - f.EstimatedCost,
		ParticipantVariance: f.ActualParticipants - f.ExpectedParticipants,
		ImpactVariance:      f.ActualFinancialImpact - f.ExpectedFinancialImpact,
	}
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	ActivityID  string     `json:"activityId"`
	IsiboID     string     `json:"isiboId"`
	Figures
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

func (t Task) MarshalJSON() ([]byte, error) {
	type task Task
	return json.Marshal(struct {
		task
		Variances
	}{task(t), t.Figures.Variances()})
}

// Attendee is a snapshot of an isibo member who attended.
type Attendee struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Report struct {
	ID           string     `json:"id"`
	TaskID       string     `json:"taskId"`
	ActivityID   string     `json:"activityId"`
	Comment      string     `json:"comment"`
	EvidenceURLs []string   `json:"evidenceUrls"`
	Attendees    []Attendee `json:"attendees"`
	Figures
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

func (r Report) MarshalJSON() ([]byte, error) {
	type report Report
	return json.Marshal(struct {
		report
		Variances
	}{report(r), r.Figures.Variances()})
}

func (r Report) HasEvidence() bool { return len(r.EvidenceURLs) > 0 }

// NewActivity contains information needed to create a new Activity.
type NewActivity struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	Date        time.Time `json:"date" validate:"required"`
	VillageID   string    `json:"villageId" validate:"required"`
}

func (na *NewActivity) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	na.VillageID = core.CleanString(na.VillageID)
	return validate.Struct(na)
}

// UpdateActivity defines what may change on an existing Activity.
type UpdateActivity struct {
	Title       *string    `json:"title" validate:"omitempty,min=1"`
	Description *string    `json:"description"`
	Date        *time.Time `json:"date"`
	VillageID   *string    `json:"villageId" validate:"omitempty,min=1"`
}

func (ua *UpdateActivity) Validate(validate *validator.Validate) error {
	cleanPtr(ua.Title)
	cleanPtr(ua.Description)
	cleanPtr(ua.VillageID)
	return validate.Struct(ua)
}

type NewTask struct {
	Title                   string  `json:"title" validate:"required"`
	Description             string  `json:"description"`
	ActivityID              string  `json:"activityId" validate:"required"`
	IsiboID                 string  `json:"isiboId" validate:"required"`
	EstimatedCost           float64 `json:"estimatedCost" validate:"gte=0"`
	ExpectedParticipants    int     `json:"expectedParticipants" validate:"gte=0"`
	ExpectedFinancialImpact float64 `json:"expectedFinancialImpact" validate:"gte=0"`
}

func (nt *NewTask) Validate(validate *validator.Validate) error {
	nt.Title = core.CleanString(nt.Title)
	nt.Description = core.CleanString(nt.Description)
	nt.ActivityID = core.CleanString(nt.ActivityID)
	nt.IsiboID = core.CleanString(nt.IsiboID)
	return validate.Struct(nt)
}

// UpdateTask defines what may change on an existing Task. The activity and isibo are fixed.
type UpdateTask struct {
	Title                   *string  `json:"title" validate:"omitempty,min=1"`
	Description             *string  `json:"description"`
	Status                  *string  `json:"status" validate:"omitempty,taskstatus"`
	EstimatedCost           *float64 `json:"estimatedCost" validate:"omitempty,gte=0"`
	ActualCost              *float64 `json:"actualCost" validate:"omitempty,gte=0"`
	ExpectedParticipants    *int     `json:"expectedParticipants" validate:"omitempty,gte=0"`
	ActualParticipants      *int     `json:"actualParticipants" validate:"omitempty,gte=0"`
	ExpectedFinancialImpact *float64 `json:"expectedFinancialImpact" validate:"omitempty,gte=0"`
	ActualFinancialImpact   *float64 `json:"actualFinancialImpact" validate:"omitempty,gte=0"`
}

func (ut *UpdateTask) Validate(validate *validator.Validate) error {
	cleanPtr(ut.Title)
	cleanPtr(ut.Description)
	cleanPtr(ut.Status, true /* lower */)
	return validate.Struct(ut)
}

// touchesPlan reports whether the update changes a planned figure of t.
func (ut UpdateTask) touchesPlan(t Task) bool {
	return (ut.EstimatedCost != nil && *ut.EstimatedCost != t.EstimatedCost) ||
		(ut.ExpectedParticipants != nil && *ut.ExpectedParticipants != t.ExpectedParticipants) ||
		(ut.ExpectedFinancialImpact != nil && *ut.ExpectedFinancialImpact != t.ExpectedFinancialImpact)
}

type UpdateStatus struct {
	Status string `json:"status" validate:"required,taskstatus"`
}

func (us *UpdateStatus) Validate(validate *validator.Validate) error {
	us.Status = core.CleanString(us.Status, true /* lower */)
	return validate.Struct(us)
}

type NewReport struct {
	TaskID                string   `json:"taskId" validate:"required"`
	ActivityID            string   `json:"activityId"`
	Comment               string   `json:"comment"`
	EvidenceURLs          []string `json:"evidenceUrls" validate:"omitempty,dive,url"`
	AttendeeIDs           []string `json:"attendeeIds" validate:"omitempty,unique"`
	ActualCost            *float64 `json:"actualCost" validate:"omitempty,gte=0"`
	ActualParticipants    *int     `json:"actualParticipants" validate:"omitempty,gte=0"`
	ActualFinancialImpact *float64 `json:"actualFinancialImpact" validate:"omitempty,gte=0"`
	// TaskStatus, when set, moves the task along in the same transaction.
	TaskStatus string `json:"taskStatus" validate:"omitempty,taskstatus"`
}

func (nr *NewReport) Validate(validate *validator.Validate) error {
	nr.TaskID = core.CleanString(nr.TaskID)
	nr.ActivityID = core.CleanString(nr.ActivityID)
	nr.Comment = core.CleanString(nr.Comment)
	nr.TaskStatus = core.CleanString(nr.TaskStatus, true /* lower */)
	for i := range nr.EvidenceURLs {
		nr.EvidenceURLs[i] = core.CleanString(nr.EvidenceURLs[i])
	}
	for i := range nr.AttendeeIDs {
		nr.AttendeeIDs[i] = core.CleanString(nr.AttendeeIDs[i])
	}
	return validate.Struct(nr)
}

type UpdateReport struct {
	Comment               *string   `json:"comment"`
	EvidenceURLs          *[]string `json:"evidenceUrls" validate:"omitempty,dive,url"`
	AttendeeIDs           *[]string `json:"attendeeIds" validate:"omitempty,unique"`
	ActualCost            *float64  `json:"actualCost" validate:"omitempty,gte=0"`
	ActualParticipants    *int      `json:"actualParticipants" validate:"omitempty,gte=0"`
	ActualFinancialImpact *float64  `json:"actualFinancialImpact" validate:"omitempty,gte=0"`
}

func (ur *UpdateReport) Validate(validate *validator.Validate) error {
	cleanPtr(ur.Comment)
	return validate.Struct(ur)
}

type ActivityFilter struct {
	VillageID string `query:"villageId"`
	FromStr   string `query:"from"` // YYYY-MM-DD or RFC 3339
	ToStr     string `query:"to"`

	From time.Time `query:"-"`
	To   time.Time `query:"-"`
}

// Clean parses the date bounds; a bare `to` date includes the whole day.
func (af *ActivityFilter) Clean() error {
	af.VillageID = core.CleanString(af.VillageID)
	var flds []core.FieldError
	if af.FromStr != "" {
		t, _, err := ParseDate(af.FromStr)
		if err != nil {
			flds = append(flds, core.FieldError{Field: "from", Error: err.Error()})
		}
		af.From = t
	}
	if af.ToStr != "" {
		t, dateOnly, err := ParseDate(af.ToStr)
		if err != nil {
			flds = append(flds, core.FieldError{Field: "to", Error: err.Error()})
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		af.To = t
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

var errInvalidDate = errors.New("invalid date, expected YYYY-MM-DD or RFC 3339")

// ParseDate accepts a calendar date or an RFC 3339 timestamp, and reports which it got.
func ParseDate(s string) (t time.Time, dateOnly bool, err error) {
	s = core.CleanString(s)
	if t, err = time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), true, nil
	}
	if t, err = time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), false, nil
	}
	return time.Time{}, false, errInvalidDate
}

type TaskFilter struct {
	ActivityID string `query:"activityId"`
	IsiboID    string `query:"isiboId"`
	Status     string `query:"status"`
}

func (tf *TaskFilter) Clean() {
	tf.ActivityID = core.CleanString(tf.ActivityID)
	tf.IsiboID = core.CleanString(tf.IsiboID)
	tf.Status = core.CleanString(tf.Status, true /* lower */)
}

type ReportFilter struct {
	TaskID     string `query:"taskId"`
	ActivityID string `query:"activityId"`
}

func cleanPtr(s *string, lower ...bool) {
	if s != nil {
		*s = core.CleanString(*s, lower...)
	}
}
