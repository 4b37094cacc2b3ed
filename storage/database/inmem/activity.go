package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/activity"
)

type activityRepository struct {
	db *DB
}

func NewActivityRepository(db *DB) activity.Repository {
	return &activityRepository{db: db}
}

func copyReport(r *activity.Report) activity.Report {
	out := *r
	out.EvidenceURLs = copyStrings(r.EvidenceURLs)
	if r.Attendees != nil {
		out.Attendees = append([]activity.Attendee{}, r.Attendees...)
	}
	return out
}

// activities

func (repo *activityRepository) CreateActivity(_ context.Context, a activity.Activity) (activity.Activity, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	a.ID = newID()
	a.Tasks = nil
	stored := a
	repo.db.activities[a.ID] = &stored
	return a, nil
}

func (repo *activityRepository) getActivity(id string, unscoped bool) (*activity.Activity, error) {
	a, ok := repo.db.activities[id]
	if !ok || (a.DeletedAt != nil && !unscoped) {
		return nil, core.NewNotFoundError("activity")
	}
	return a, nil
}

func (repo *activityRepository) GetActivity(_ context.Context, id string, unscoped bool) (activity.Activity, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	a, err := repo.getActivity(id, unscoped)
	if err != nil {
		return activity.Activity{}, err
	}
	return *a, nil
}

func (repo *activityRepository) QueryActivities(_ context.Context, filter activity.ActivityFilter, pq core.PageQuery) (core.Page[activity.Activity], error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	acts := make([]activity.Activity, 0)
	for _, a := range repo.db.activities {
		if a.DeletedAt != nil {
			continue
		}
		if filter.VillageID != "" && a.VillageID != filter.VillageID {
			continue
		}
		if !filter.From.IsZero() && a.Date.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && a.Date.After(filter.To) {
			continue
		}
		if !matches(pq.Search, a.Title, a.Description) {
			continue
		}
		acts = append(acts, *a)
	}
	sort.Slice(acts, func(i, j int) bool {
		if acts[i].Date.Equal(acts[j].Date) {
			return acts[i].ID < acts[j].ID
		}
		return acts[i].Date.After(acts[j].Date)
	})
	return core.Paginate(acts, pq), nil
}

func (repo *activityRepository) UpdateActivity(_ context.Context, a activity.Activity) (activity.Activity, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, err := repo.getActivity(a.ID, false)
	if err != nil {
		return activity.Activity{}, err
	}
	orig.Title = a.Title
	orig.Description = a.Description
	orig.Date = a.Date
	orig.VillageID = a.VillageID
	orig.UpdatedAt = a.UpdatedAt
	return *orig, nil
}

func (repo *activityRepository) DeleteActivity(_ context.Context, id string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	a, err := repo.getActivity(id, false)
	if err != nil {
		return err
	}
	a.DeletedAt = core.TimePtr(at)
	for _, t := range repo.db.tasks {
		if t.ActivityID == id && t.DeletedAt == nil {
			t.DeletedAt = core.TimePtr(at)
		}
	}
	for _, r := range repo.db.reports {
		if r.ActivityID == id && r.DeletedAt == nil {
			r.DeletedAt = core.TimePtr(at)
		}
	}
	return nil
}

// tasks

func (repo *activityRepository) CreateTask(_ context.Context, t activity.Task) (activity.Task, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.tasks {
		if existing.DeletedAt == nil && existing.ActivityID == t.ActivityID && existing.IsiboID == t.IsiboID {
			return activity.Task{}, core.NewConflictError("isiboId", activity.ErrTaskExists.Error())
		}
	}
	t.ID = newID()
	stored := t
	repo.db.tasks[t.ID] = &stored
	return t, nil
}

func (repo *activityRepository) getTask(id string, unscoped bool) (*activity.Task, error) {
	t, ok := repo.db.tasks[id]
	if !ok || (t.DeletedAt != nil && !unscoped) {
		return nil, core.NewNotFoundError("task")
	}
	return t, nil
}

func (repo *activityRepository) GetTask(_ context.Context, id string, unscoped bool) (activity.Task, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	t, err := repo.getTask(id, unscoped)
	if err != nil {
		return activity.Task{}, err
	}
	return *t, nil
}

func sortTasks(tasks []activity.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

func (repo *activityRepository) QueryTasks(_ context.Context, filter activity.TaskFilter, pq core.PageQuery) (core.Page[activity.Task], error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	tasks := make([]activity.Task, 0)
	for _, t := range repo.db.tasks {
		if t.DeletedAt != nil {
			continue
		}
		if filter.ActivityID != "" && t.ActivityID != filter.ActivityID {
			continue
		}
		if filter.IsiboID != "" && t.IsiboID != filter.IsiboID {
			continue
		}
		if filter.Status != "" && string(t.Status) != filter.Status {
			continue
		}
		if !matches(pq.Search, t.Title, t.Description) {
			continue
		}
		tasks = append(tasks, *t)
	}
	sortTasks(tasks)
	return core.Paginate(tasks, pq), nil
}

func (repo *activityRepository) ListTasks(_ context.Context, activityID string) ([]activity.Task, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	tasks := make([]activity.Task, 0)
	for _, t := range repo.db.tasks {
		if t.DeletedAt == nil && t.ActivityID == activityID {
			tasks = append(tasks, *t)
		}
	}
	sortTasks(tasks)
	return tasks, nil
}

func (repo *activityRepository) TaskExists(_ context.Context, activityID, isiboID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, t := range repo.db.tasks {
		if t.DeletedAt == nil && t.ActivityID == activityID && t.IsiboID == isiboID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *activityRepository) UpdateTask(_ context.Context, t activity.Task) (activity.Task, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, err := repo.getTask(t.ID, true)
	if err != nil {
		return activity.Task{}, err
	}
	orig.Title = t.Title
	orig.Description = t.Description
	orig.Status = t.Status
	orig.Figures = t.Figures
	orig.UpdatedAt = t.UpdatedAt
	return *orig, nil
}

func (repo *activityRepository) DeleteTask(_ context.Context, id string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	t, err := repo.getTask(id, false)
	if err != nil {
		return err
	}
	t.DeletedAt = core.TimePtr(at)
	for _, r := range repo.db.reports {
		if r.TaskID == id && r.DeletedAt == nil {
			r.DeletedAt = core.TimePtr(at)
		}
	}
	return nil
}

// reports

func (repo *activityRepository) CreateReport(_ context.Context, r activity.Report) (activity.Report, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.reports {
		if existing.DeletedAt == nil && existing.TaskID == r.TaskID {
			return activity.Report{}, core.NewConflictError("taskId", activity.ErrReportExists.Error())
		}
	}
	r.ID = newID()
	stored := copyReport(&r)
	repo.db.reports[r.ID] = &stored
	return r, nil
}

func (repo *activityRepository) getReport(id string, unscoped bool) (*activity.Report, error) {
	r, ok := repo.db.reports[id]
	if !ok || (r.DeletedAt != nil && !unscoped) {
		return nil, core.NewNotFoundError("report")
	}
	return r, nil
}

func (repo *activityRepository) GetReport(_ context.Context, id string, unscoped bool) (activity.Report, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	r, err := repo.getReport(id, unscoped)
	if err != nil {
		return activity.Report{}, err
	}
	return copyReport(r), nil
}

func (repo *activityRepository) GetTaskReport(_ context.Context, taskID string) (activity.Report, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, r := range repo.db.reports {
		if r.DeletedAt == nil && r.TaskID == taskID {
			return copyReport(r), nil
		}
	}
	return activity.Report{}, core.NewNotFoundError("report")
}

func (repo *activityRepository) QueryReports(_ context.Context, filter activity.ReportFilter, pq core.PageQuery) (core.Page[activity.Report], error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	reports := make([]activity.Report, 0)
	for _, r := range repo.db.reports {
		if r.DeletedAt != nil {
			continue
		}
		if filter.TaskID != "" && r.TaskID != filter.TaskID {
			continue
		}
		if filter.ActivityID != "" && r.ActivityID != filter.ActivityID {
			continue
		}
		if !matches(pq.Search, r.Comment) {
			continue
		}
		reports = append(reports, copyReport(r))
	}
	sort.Slice(reports, func(i, j int) bool {
		if reports[i].CreatedAt.Equal(reports[j].CreatedAt) {
			return reports[i].ID < reports[j].ID
		}
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
	return core.Paginate(reports, pq), nil
}

func (repo *activityRepository) UpdateReport(_ context.Context, r activity.Report) (activity.Report, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, err := repo.getReport(r.ID, false)
	if err != nil {
		return activity.Report{}, err
	}
	orig.Comment = r.Comment
	orig.EvidenceURLs = copyStrings(r.EvidenceURLs)
	orig.Attendees = append([]activity.Attendee{}, r.Attendees...)
	orig.Figures = r.Figures
	orig.UpdatedAt = r.UpdatedAt
	return copyReport(orig), nil
}

func (repo *activityRepository) DeleteReport(_ context.Context, id string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	r, err := repo.getReport(id, false)
	if err != nil {
		return err
	}
	r.DeletedAt = core.TimePtr(at)
	return nil
}
