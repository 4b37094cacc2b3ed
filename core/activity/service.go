package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
)

var (
	ErrTaskExists      = errors.New("this isibo already has a task for the activity")
	ErrReportExists    = errors.New("this task already has a report")
	ErrPlanFrozen      = errors.New("estimated and expected figures cannot change once the task has a report")
	ErrIsiboNotInScope = errors.New("isibo does not belong to the activity's village")
	ErrActivityMatch   = errors.New("activity does not match the task's activity")
)

type (
	Repository interface {
		CreateActivity(ctx context.Context, a Activity) (Activity, error)
		GetActivity(ctx context.Context, id string, unscoped bool) (Activity, error)
		QueryActivities(ctx context.Context, filter ActivityFilter, pq core.PageQuery) (core.Page[Activity], error)
		UpdateActivity(ctx context.Context, a Activity) (Activity, error)
		// DeleteActivity soft-deletes the activity with its tasks and reports.
		DeleteActivity(ctx context.Context, id string, at time.Time) error

		CreateTask(ctx context.Context, t Task) (Task, error)
		GetTask(ctx context.Context, id string, unscoped bool) (Task, error)
		QueryTasks(ctx context.Context, filter TaskFilter, pq core.PageQuery) (core.Page[Task], error)
		// ListTasks returns the live tasks of an activity.
		ListTasks(ctx context.Context, activityID string) ([]Task, error)
		// TaskExists checks for a live task of the (activity, isibo) pair.
		TaskExists(ctx context.Context, activityID, isiboID string) (bool, error)
		UpdateTask(ctx context.Context, t Task) (Task, error)
		// DeleteTask soft-deletes the task with its reports.
		DeleteTask(ctx context.Context, id string, at time.Time) error

		CreateReport(ctx context.Context, r Report) (Report, error)
		GetReport(ctx context.Context, id string, unscoped bool) (Report, error)
		// GetTaskReport returns the live report of a task, or a NotFoundError.
		GetTaskReport(ctx context.Context, taskID string) (Report, error)
		QueryReports(ctx context.Context, filter ReportFilter, pq core.PageQuery) (core.Page[Report], error)
		UpdateReport(ctx context.Context, r Report) (Report, error)
		DeleteReport(ctx context.Context, id string, at time.Time) error
	}

	// Locations resolves the villages and isibos activities point to.
	Locations interface {
		Get(ctx context.Context, level location.Level, id string, unscoped bool) (location.Node, error)
	}

	Service interface {
		CreateActivity(ctx context.Context, na NewActivity) (Activity, error)
		GetActivity(ctx context.Context, id string, unscoped bool) (Activity, error)
		QueryActivities(ctx context.Context, filter ActivityFilter, pq core.PageQuery) (core.Page[Activity], error)
		UpdateActivity(ctx context.Context, id string, ua UpdateActivity) (Activity, error)
		DeleteActivity(ctx context.Context, id string) error

		CreateTask(ctx context.Context, nt NewTask) (Task, error)
		GetTask(ctx context.Context, id string, unscoped bool) (Task, error)
		QueryTasks(ctx context.Context, filter TaskFilter, pq core.PageQuery) (core.Page[Task], error)
		UpdateTask(ctx context.Context, id string, ut UpdateTask) (Task, error)
		// UpdateStatus applies an explicit transition; staying in place is rejected.
		UpdateStatus(ctx context.Context, id string, us UpdateStatus) (Task, error)
		DeleteTask(ctx context.Context, id string) error

		CreateReport(ctx context.Context, nr NewReport) (Report, error)
		GetReport(ctx context.Context, id string, unscoped bool) (Report, error)
		QueryReports(ctx context.Context, filter ReportFilter, pq core.PageQuery) (core.Page[Report], error)
		UpdateReport(ctx context.Context, id string, ur UpdateReport) (Report, error)
		DeleteReport(ctx context.Context, id string) error

		Validator() *validator.Validate
	}

	service struct {
		tx        core.Transactor
		repo      Repository
		locations Locations
		validate  *validator.Validate
		now       core.NowFunc
	}
)

var _ Service = (*service)(nil)

func NewService(tx core.Transactor, repo Repository, locations Locations, validate *validator.Validate) Service {
	return &service{tx: tx, repo: repo, locations: locations, validate: validate, now: core.UTCNow}
}

func (svc *service) Validator() *validator.Validate { return svc.validate }

func transitionError(from, to TaskStatus) error {
	msg := fmt.Sprintf("cannot move a task from %s to %s", from, to)
	return core.NewValidationError(nil, core.FieldError{Field: "status", Error: msg})
}

// activities

func (svc *service) liveVillage(ctx context.Context, id string) error {
	if _, err := svc.locations.Get(ctx, location.LevelVillage, id, false); err != nil {
		if core.IsNotFound(err) {
			return core.NewNotFoundError("village")
		}
		return err
	}
	return nil
}

func (svc *service) CreateActivity(ctx context.Context, na NewActivity) (Activity, error) {
	if err := na.Validate(svc.validate); err != nil {
		return Activity{}, err
	}
	if err := svc.liveVillage(ctx, na.VillageID); err != nil {
		return Activity{}, err
	}

	now := svc.now()
	act, err := svc.repo.CreateActivity(ctx, Activity{
		Title:       na.Title,
		Description: na.Description,
		Date:        na.Date.UTC(),
		VillageID:   na.VillageID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	return act, errors.Wrap(err, "creating activity")
}

// GetActivity returns the activity with its live tasks.
func (svc *service) GetActivity(ctx context.Context, id string, unscoped bool) (Activity, error) {
	act, err := svc.repo.GetActivity(ctx, id, unscoped)
	if err != nil {
		return Activity{}, errors.Wrap(err, "getting activity")
	}
	if act.Tasks, err = svc.repo.ListTasks(ctx, act.ID); err != nil {
		return Activity{}, errors.Wrap(err, "listing tasks")
	}
	return act, nil
}

func (svc *service) QueryActivities(ctx context.Context, filter ActivityFilter, pq core.PageQuery) (core.Page[Activity], error) {
	if err := filter.Clean(); err != nil {
		return core.Page[Activity]{}, err
	}
	pq.Clean()
	page, err := svc.repo.QueryActivities(ctx, filter, pq)
	return page, errors.Wrap(err, "querying activities")
}

func (svc *service) UpdateActivity(ctx context.Context, id string, ua UpdateActivity) (Activity, error) {
	if err := ua.Validate(svc.validate); err != nil {
		return Activity{}, err
	}
	act, err := svc.repo.GetActivity(ctx, id, false)
	if err != nil {
		return Activity{}, errors.Wrap(err, "getting activity")
	}

	if ua.Title != nil {
		act.Title = *ua.Title
	}
	if ua.Description != nil {
		act.Description = *ua.Description
	}
	if ua.Date != nil {
		act.Date = ua.Date.UTC()
	}
	if ua.VillageID != nil && *ua.VillageID != act.VillageID {
		tasks, err := svc.repo.ListTasks(ctx, act.ID)
		if err != nil {
			return Activity{}, errors.Wrap(err, "listing tasks")
		}
		if len(tasks) > 0 {
			return Activity{}, core.NewValidationError(nil, core.FieldError{
				Field: "villageId",
				Error: "village cannot change once tasks are assigned",
			})
		}
		if err := svc.liveVillage(ctx, *ua.VillageID); err != nil {
			return Activity{}, err
		}
		act.VillageID = *ua.VillageID
	}
	act.UpdatedAt = svc.now()

	act, err = svc.repo.UpdateActivity(ctx, act)
	return act, errors.Wrap(err, "updating activity")
}

func (svc *service) DeleteActivity(ctx context.Context, id string) error {
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := svc.repo.GetActivity(ctx, id, false); err != nil {
			return err
		}
		return svc.repo.DeleteActivity(ctx, id, svc.now())
	})
	return errors.Wrap(err, "deleting activity")
}

// tasks

func (svc *service) CreateTask(ctx context.Context, nt NewTask) (Task, error) {
	if err := nt.Validate(svc.validate); err != nil {
		return Task{}, err
	}

	var task Task
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		act, err := svc.repo.GetActivity(ctx, nt.ActivityID, false)
		if err != nil {
			return err
		}
		isibo, err := svc.locations.Get(ctx, location.LevelIsibo, nt.IsiboID, false)
		if err != nil {
			if core.IsNotFound(err) {
				return core.NewNotFoundError("isibo")
			}
			return err
		}
		if isibo.ParentID != act.VillageID {
			return core.NewValidationError(nil, core.FieldError{Field: "isiboId", Error: ErrIsiboNotInScope.Error()})
		}

		exists, err := svc.repo.TaskExists(ctx, act.ID, isibo.ID)
		if err != nil {
			return err
		}
		if exists {
			return core.NewConflictError("isiboId", ErrTaskExists.Error())
		}

		now := svc.now()
		task, err = svc.repo.CreateTask(ctx, Task{
			Title:       nt.Title,
			Description: nt.Description,
			Status:      StatusPending,
			ActivityID:  act.ID,
			IsiboID:     isibo.ID,
			Figures: Figures{
				EstimatedCost:           nt.EstimatedCost,
				ExpectedParticipants:    nt.ExpectedParticipants,
				ExpectedFinancialImpact: nt.ExpectedFinancialImpact,
			},
			CreatedAt: now,
			UpdatedAt: now,
		})
		return err
	})
	if err != nil {
		return Task{}, errors.Wrap(err, "creating task")
	}
	return task, nil
}

func (svc *service) GetTask(ctx context.Context, id string, unscoped bool) (Task, error) {
	t, err := svc.repo.GetTask(ctx, id, unscoped)
	return t, errors.Wrap(err, "getting task")
}

func (svc *service) QueryTasks(ctx context.Context, filter TaskFilter, pq core.PageQuery) (core.Page[Task], error) {
	filter.Clean()
	if filter.Status != "" {
		if _, ok := ParseStatus(filter.Status); !ok {
			return core.Page[Task]{}, core.NewValidationError(nil, core.FieldError{Field: "status", Error: taskStatusText})
		}
	}
	pq.Clean()
	page, err := svc.repo.QueryTasks(ctx, filter, pq)
	return page, errors.Wrap(err, "querying tasks")
}

func (svc *service) UpdateTask(ctx context.Context, id string, ut UpdateTask) (Task, error) {
	if err := ut.Validate(svc.validate); err != nil {
		return Task{}, err
	}

	var task Task
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := svc.repo.GetTask(ctx, id, false)
		if err != nil {
			return err
		}

		if ut.touchesPlan(t) {
			if _, err := svc.repo.GetTaskReport(ctx, t.ID); err == nil {
				return core.NewValidationError(ErrPlanFrozen)
			} else if !core.IsNotFound(err) {
				return err
			}
		}
		if ut.Status != nil {
			to := TaskStatus(*ut.Status)
			if to != t.Status {
				if !CanTransition(t.Status, to) {
					return transitionError(t.Status, to)
				}
				t.Status = to
			}
		}

		if ut.Title != nil {
			t.Title = *ut.Title
		}
		if ut.Description != nil {
			t.Description = *ut.Description
		}
		if ut.EstimatedCost != nil {
			t.EstimatedCost = *ut.EstimatedCost
		}
		if ut.ActualCost != nil {
			t.ActualCost = *ut.ActualCost
		}
		if ut.ExpectedParticipants != nil {
			t.ExpectedParticipants = *ut.ExpectedParticipants
		}
		if ut.ActualParticipants != nil {
			t.ActualParticipants = *ut.ActualParticipants
		}
		if ut.ExpectedFinancialImpact != nil {
			t.ExpectedFinancialImpact = *ut.ExpectedFinancialImpact
		}
		if ut.ActualFinancialImpact != nil {
			t.ActualFinancialImpact = *ut.ActualFinancialImpact
		}
		t.UpdatedAt = svc.now()

		task, err = svc.repo.UpdateTask(ctx, t)
		return err
	})
	if err != nil {
		return Task{}, errors.Wrap(err, "updating task")
	}
	return task, nil
}

func (svc *service) UpdateStatus(ctx context.Context, id string, us UpdateStatus) (Task, error) {
	if err := us.Validate(svc.validate); err != nil {
		return Task{}, err
	}
	t, err := svc.repo.GetTask(ctx, id, false)
	if err != nil {
		return Task{}, errors.Wrap(err, "getting task")
	}
	to := TaskStatus(us.Status)
	if !CanTransition(t.Status, to) {
		return Task{}, transitionError(t.Status, to)
	}
	t.Status = to
	t.UpdatedAt = svc.now()

	t, err = svc.repo.UpdateTask(ctx, t)
	return t, errors.Wrap(err, "updating task status")
}

func (svc *service) DeleteTask(ctx context.Context, id string) error {
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := svc.repo.GetTask(ctx, id, false); err != nil {
			return err
		}
		return svc.repo.DeleteTask(ctx, id, svc.now())
	})
	return errors.Wrap(err, "deleting task")
}

// reports

// attendees resolves ids against the isibo roster; unknown ids are rejected.
func attendees(isibo location.Node, ids []string) ([]Attendee, error) {
	out := make([]Attendee, 0, len(ids))
	for _, id := range ids {
		m, ok := isibo.Member(id)
		if !ok {
			msg := fmt.Sprintf("%s is not a member of the task's isibo", id)
			return nil, core.NewValidationError(nil, core.FieldError{Field: "attendeeIds", Error: msg})
		}
		out = append(out, Attendee{ID: m.ID, Name: m.Name})
	}
	return out, nil
}

func (svc *service) taskIsibo(ctx context.Context, t Task) (location.Node, error) {
	// a report may still be edited after its isibo got deleted
	isibo, err := svc.locations.Get(ctx, location.LevelIsibo, t.IsiboID, true)
	if err != nil && core.IsNotFound(err) {
		return location.Node{}, core.NewNotFoundError("isibo")
	}
	return isibo, err
}

// CreateReport records the as-executed figures of a task. The task's actual figures
// follow the report and an optional status change is applied in the same transaction.
func (svc *service) CreateReport(ctx context.Context, nr NewReport) (Report, error) {
	if err := nr.Validate(svc.validate); err != nil {
		return Report{}, err
	}

	var report Report
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := svc.repo.GetTask(ctx, nr.TaskID, false)
		if err != nil {
			return err
		}
		if nr.ActivityID != "" && nr.ActivityID != t.ActivityID {
			return core.NewValidationError(nil, core.FieldError{Field: "activityId", Error: ErrActivityMatch.Error()})
		}
		if _, err := svc.repo.GetActivity(ctx, t.ActivityID, false); err != nil {
			return err
		}

		if _, err := svc.repo.GetTaskReport(ctx, t.ID); err == nil {
			return core.NewConflictError("taskId", ErrReportExists.Error())
		} else if !core.IsNotFound(err) {
			return err
		}

		isibo, err := svc.taskIsibo(ctx, t)
		if err != nil {
			return err
		}
		att, err := attendees(isibo, nr.AttendeeIDs)
		if err != nil {
			return err
		}

		if nr.TaskStatus != "" {
			to := TaskStatus(nr.TaskStatus)
			if to != t.Status && !CanTransition(t.Status, to) {
				return transitionError(t.Status, to)
			}
			t.Status = to
		}

		fig := t.Figures
		if nr.ActualCost != nil {
			fig.ActualCost = *nr.ActualCost
		}
		if nr.ActualParticipants != nil {
			fig.ActualParticipants = *nr.ActualParticipants
		} else {
			fig.ActualParticipants = len(att)
		}
		if nr.ActualFinancialImpact != nil {
			fig.ActualFinancialImpact = *nr.ActualFinancialImpact
		}

		now := svc.now()
		evidence := nr.EvidenceURLs
		if evidence == nil {
			evidence = []string{}
		}
		report, err = svc.repo.CreateReport(ctx, Report{
			TaskID:       t.ID,
			ActivityID:   t.ActivityID,
			Comment:      nr.Comment,
			EvidenceURLs: evidence,
			Attendees:    att,
			Figures:      fig,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return err
		}

		t.Figures = fig
		t.UpdatedAt = now
		_, err = svc.repo.UpdateTask(ctx, t)
		return err
	})
	if err != nil {
		return Report{}, errors.Wrap(err, "creating report")
	}
	return report, nil
}

func (svc *service) GetReport(ctx context.Context, id string, unscoped bool) (Report, error) {
	r, err := svc.repo.GetReport(ctx, id, unscoped)
	return r, errors.Wrap(err, "getting report")
}

func (svc *service) QueryReports(ctx context.Context, filter ReportFilter, pq core.PageQuery) (core.Page[Report], error) {
	filter.TaskID = core.CleanString(filter.TaskID)
	filter.ActivityID = core.CleanString(filter.ActivityID)
	pq.Clean()
	page, err := svc.repo.QueryReports(ctx, filter, pq)
	return page, errors.Wrap(err, "querying reports")
}

func (svc *service) UpdateReport(ctx context.Context, id string, ur UpdateReport) (Report, error) {
	if err := ur.Validate(svc.validate); err != nil {
		return Report{}, err
	}

	var report Report
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		r, err := svc.repo.GetReport(ctx, id, false)
		if err != nil {
			return err
		}
		t, err := svc.repo.GetTask(ctx, r.TaskID, true)
		if err != nil {
			return err
		}

		if ur.Comment != nil {
			r.Comment = *ur.Comment
		}
		if ur.EvidenceURLs != nil {
			r.EvidenceURLs = *ur.EvidenceURLs
		}
		if ur.AttendeeIDs != nil {
			isibo, err := svc.taskIsibo(ctx, t)
			if err != nil {
				return err
			}
			if r.Attendees, err = attendees(isibo, *ur.AttendeeIDs); err != nil {
				return err
			}
		}
		if ur.ActualCost != nil {
			r.ActualCost = *ur.ActualCost
		}
		if ur.ActualParticipants != nil {
			r.ActualParticipants = *ur.ActualParticipants
		}
		if ur.ActualFinancialImpact != nil {
			r.ActualFinancialImpact = *ur.ActualFinancialImpact
		}
		now := svc.now()
		r.UpdatedAt = now

		if report, err = svc.repo.UpdateReport(ctx, r); err != nil {
			return err
		}
		if t.DeletedAt != nil {
			return nil
		}
		t.ActualCost = r.ActualCost
		t.ActualParticipants = r.ActualParticipants
		t.ActualFinancialImpact = r.ActualFinancialImpact
		t.UpdatedAt = now
		_, err = svc.repo.UpdateTask(ctx, t)
		return err
	})
	if err != nil {
		return Report{}, errors.Wrap(err, "updating report")
	}
	return report, nil
}

func (svc *service) DeleteReport(ctx context.Context, id string) error {
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := svc.repo.GetReport(ctx, id, false); err != nil {
			return err
		}
		return svc.repo.DeleteReport(ctx, id, svc.now())
	})
	return errors.Wrap(err, "deleting report")
}
