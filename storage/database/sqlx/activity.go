package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/activity"
)

const (
	activityColumns = "id, title, description, date, village_id, created_at, updated_at, deleted_at"
	figureColumns   = "estimated_cost, actual_cost, expected_participants, actual_participants, expected_financial_impact, actual_financial_impact"
	taskColumns     = "id, title, description, status, activity_id, isibo_id, " + figureColumns + ", created_at, updated_at, deleted_at"
	reportColumns   = "id, task_id, activity_id, comment, evidence_urls, attendees, " + figureColumns + ", created_at, updated_at, deleted_at"
)

type activityRow struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Date        time.Time `db:"date"`
	VillageID   string    `db:"village_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	DeletedAt   null.Time `db:"deleted_at"`
}

func (row activityRow) activity() activity.Activity {
	return activity.Activity{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Date:        row.Date.UTC(),
		VillageID:   row.VillageID,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
		DeletedAt:   row.DeletedAt.Ptr(),
	}
}

type figuresRow struct {
	EstimatedCost           float64 `db:"estimated_cost"`
	ActualCost              float64 `db:"actual_cost"`
	ExpectedParticipants    int     `db:"expected_participants"`
	ActualParticipants      int     `db:"actual_participants"`
	ExpectedFinancialImpact float64 `db:"expected_financial_impact"`
	ActualFinancialImpact   float64 `db:"actual_financial_impact"`
}

func (row figuresRow) figures() activity.Figures {
	return activity.Figures(row)
}

func figureArgs(f activity.Figures) []interface{} {
	return []interface{}{
		f.EstimatedCost, f.ActualCost,
		f.ExpectedParticipants, f.ActualParticipants,
		f.ExpectedFinancialImpact, f.ActualFinancialImpact,
	}
}

type taskRow struct {
	ID          string `db:"id"`
	Title       string `db:"title"`
	Description string `db:"description"`
	Status      string `db:"status"`
	ActivityID  string `db:"activity_id"`
	IsiboID     string `db:"isibo_id"`
	figuresRow
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
	DeletedAt null.Time `db:"deleted_at"`
}

func (row taskRow) task() activity.Task {
	return activity.Task{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Status:      activity.TaskStatus(row.Status),
		ActivityID:  row.ActivityID,
		IsiboID:     row.IsiboID,
		Figures:     row.figures(),
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
		DeletedAt:   row.DeletedAt.Ptr(),
	}
}

type reportRow struct {
	ID           string         `db:"id"`
	TaskID       string         `db:"task_id"`
	ActivityID   string         `db:"activity_id"`
	Comment      string         `db:"comment"`
	EvidenceURLs pq.StringArray `db:"evidence_urls"`
	Attendees    types.JSONText `db:"attendees"`
	figuresRow
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
	DeletedAt null.Time `db:"deleted_at"`
}

func (row reportRow) report() (activity.Report, error) {
	r := activity.Report{
		ID:           row.ID,
		TaskID:       row.TaskID,
		ActivityID:   row.ActivityID,
		Comment:      row.Comment,
		EvidenceURLs: []string(row.EvidenceURLs),
		Attendees:    []activity.Attendee{},
		Figures:      row.figures(),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		DeletedAt:    row.DeletedAt.Ptr(),
	}
	if r.EvidenceURLs == nil {
		r.EvidenceURLs = []string{}
	}
	if len(row.Attendees) > 0 {
		if err := row.Attendees.Unmarshal(&r.Attendees); err != nil {
			return activity.Report{}, errors.Wrap(err, "decoding attendees")
		}
	}
	return r, nil
}

func marshalAttendees(attendees []activity.Attendee) (types.JSONText, error) {
	if attendees == nil {
		attendees = []activity.Attendee{}
	}
	b, err := json.Marshal(attendees)
	return types.JSONText(b), errors.Wrap(err, "encoding attendees")
}

type activityRepository struct {
	base
}

var _ activity.Repository = (*activityRepository)(nil)

func NewActivityRepository(db *sqlx.DB) activity.Repository {
	return &activityRepository{base{db: db}}
}

// activities

func (repo *activityRepository) CreateActivity(ctx context.Context, a activity.Activity) (activity.Activity, error) {
	a.ID = newID()
	a.Tasks = nil

	exec := repo.exec(ctx)
	q := insertSQL("activities", "id", "title", "description", "date", "village_id", "created_at", "updated_at")
	_, err := exec.ExecContext(ctx, exec.Rebind(q),
		a.ID, a.Title, a.Description, a.Date.UTC(), a.VillageID, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		return activity.Activity{}, translate(err, "village", "inserting activity")
	}
	return a, nil
}

func (repo *activityRepository) GetActivity(ctx context.Context, id string, unscoped bool) (activity.Activity, error) {
	if !validID(id) {
		return activity.Activity{}, core.NewNotFoundError("activity")
	}
	q := "SELECT " + activityColumns + " FROM activities WHERE id = ?"
	if !unscoped {
		q += " AND deleted_at IS NULL"
	}

	exec := repo.exec(ctx)
	var row activityRow
	if err := exec.GetContext(ctx, &row, exec.Rebind(q), id); err != nil {
		return activity.Activity{}, translate(err, "activity", "getting activity")
	}
	return row.activity(), nil
}

func (repo *activityRepository) QueryActivities(ctx context.Context, filter activity.ActivityFilter, pq core.PageQuery) (core.Page[activity.Activity], error) {
	var w where
	w.add("deleted_at IS NULL")
	if filter.VillageID != "" {
		if !validID(filter.VillageID) {
			return core.NewPage[activity.Activity](nil, 0, pq), nil
		}
		w.add("village_id = ?", filter.VillageID)
	}
	if !filter.From.IsZero() {
		w.add("date >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		w.add("date <= ?", filter.To.UTC())
	}
	if pq.Search != "" {
		w.search(pq.SearchPattern(), "title", "description")
	}

	var rows []activityRow
	total, err := selectPage(ctx, repo.exec(ctx), &rows, activityColumns, "activities", w, "date DESC, id", pq)
	if err != nil {
		return core.Page[activity.Activity]{}, errors.Wrap(err, "querying activities")
	}
	acts := make([]activity.Activity, 0, len(rows))
	for _, row := range rows {
		acts = append(acts, row.activity())
	}
	return core.NewPage(acts, total, pq), nil
}

func (repo *activityRepository) UpdateActivity(ctx context.Context, a activity.Activity) (activity.Activity, error) {
	if !validID(a.ID) {
		return activity.Activity{}, core.NewNotFoundError("activity")
	}
	exec := repo.exec(ctx)
	q := "UPDATE activities SET title = ?, description = ?, date = ?, village_id = ?, updated_at = ?" +
		" WHERE id = ? AND deleted_at IS NULL RETURNING " + activityColumns
	var row activityRow
	err := exec.GetContext(ctx, &row, exec.Rebind(q),
		a.Title, a.Description, a.Date.UTC(), a.VillageID, a.UpdatedAt.UTC(), a.ID)
	if err != nil {
		return activity.Activity{}, translate(err, "activity", "updating activity")
	}
	return row.activity(), nil
}

func (repo *activityRepository) DeleteActivity(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return core.NewNotFoundError("activity")
	}
	exec := repo.exec(ctx)
	res, err := exec.ExecContext(ctx,
		exec.Rebind("UPDATE activities SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL"), at.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "deleting activity")
	}
	if err = affected(res, "activity"); err != nil {
		return err
	}
	if _, err = exec.ExecContext(ctx,
		exec.Rebind("UPDATE tasks SET deleted_at = ? WHERE activity_id = ? AND deleted_at IS NULL"), at.UTC(), id); err != nil {
		return errors.Wrap(err, "deleting activity tasks")
	}
	if _, err = exec.ExecContext(ctx,
		exec.Rebind("UPDATE reports SET deleted_at = ? WHERE activity_id = ? AND deleted_at IS NULL"), at.UTC(), id); err != nil {
		return errors.Wrap(err, "deleting activity reports")
	}
	return nil
}

// tasks

func (repo *activityRepository) CreateTask(ctx context.Context, t activity.Task) (activity.Task, error) {
	t.ID = newID()

	exec := repo.exec(ctx)
	q := insertSQL("tasks", "id", "title", "description", "status", "activity_id", "isibo_id",
		"estimated_cost", "actual_cost", "expected_participants", "actual_participants",
		"expected_financial_impact", "actual_financial_impact", "created_at", "updated_at")
	args := append([]interface{}{t.ID, t.Title, t.Description, string(t.Status), t.ActivityID, t.IsiboID},
		figureArgs(t.Figures)...)
	args = append(args, t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if _, err := exec.ExecContext(ctx, exec.Rebind(q), args...); err != nil {
		return activity.Task{}, translate(err, "activity", "inserting task")
	}
	return t, nil
}

func (repo *activityRepository) GetTask(ctx context.Context, id string, unscoped bool) (activity.Task, error) {
	if !validID(id) {
		return activity.Task{}, core.NewNotFoundError("task")
	}
	q := "SELECT " + taskColumns + " FROM tasks WHERE id = ?"
	if !unscoped {
		q += " AND deleted_at IS NULL"
	}

	exec := repo.exec(ctx)
	var row taskRow
	if err := exec.GetContext(ctx, &row, exec.Rebind(q), id); err != nil {
		return activity.Task{}, translate(err, "task", "getting task")
	}
	return row.task(), nil
}

func (repo *activityRepository) QueryTasks(ctx context.Context, filter activity.TaskFilter, pq core.PageQuery) (core.Page[activity.Task], error) {
	var w where
	w.add("deleted_at IS NULL")
	if !w.ids([2]string{"activity_id", filter.ActivityID}, [2]string{"isibo_id", filter.IsiboID}) {
		return core.NewPage[activity.Task](nil, 0, pq), nil
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if pq.Search != "" {
		w.search(pq.SearchPattern(), "title", "description")
	}

	var rows []taskRow
	total, err := selectPage(ctx, repo.exec(ctx), &rows, taskColumns, "tasks", w, "created_at, id", pq)
	if err != nil {
		return core.Page[activity.Task]{}, errors.Wrap(err, "querying tasks")
	}
	tasks := make([]activity.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.task())
	}
	return core.NewPage(tasks, total, pq), nil
}

func (repo *activityRepository) ListTasks(ctx context.Context, activityID string) ([]activity.Task, error) {
	tasks := make([]activity.Task, 0)
	if !validID(activityID) {
		return tasks, nil
	}
	exec := repo.exec(ctx)
	var rows []taskRow
	q := "SELECT " + taskColumns + " FROM tasks WHERE activity_id = ? AND deleted_at IS NULL ORDER BY created_at, id"
	if err := exec.SelectContext(ctx, &rows, exec.Rebind(q), activityID); err != nil {
		return nil, errors.Wrap(err, "listing tasks")
	}
	for _, row := range rows {
		tasks = append(tasks, row.task())
	}
	return tasks, nil
}

func (repo *activityRepository) TaskExists(ctx context.Context, activityID, isiboID string) (bool, error) {
	if !validID(activityID) || !validID(isiboID) {
		return false, nil
	}
	exec := repo.exec(ctx)
	var exists bool
	q := "SELECT EXISTS (SELECT 1 FROM tasks WHERE activity_id = ? AND isibo_id = ? AND deleted_at IS NULL)"
	if err := exec.GetContext(ctx, &exists, exec.Rebind(q), activityID, isiboID); err != nil {
		return false, errors.Wrap(err, "checking task")
	}
	return exists, nil
}

// UpdateTask also updates soft-deleted tasks.
func (repo *activityRepository) UpdateTask(ctx context.Context, t activity.Task) (activity.Task, error) {
	if !validID(t.ID) {
		return activity.Task{}, core.NewNotFoundError("task")
	}
	exec := repo.exec(ctx)
	q := `UPDATE tasks SET title = ?, description = ?, status = ?,
		estimated_cost = ?, actual_cost = ?, expected_participants = ?, actual_participants = ?,
		expected_financial_impact = ?, actual_financial_impact = ?, updated_at = ?
		WHERE id = ? RETURNING ` + taskColumns
	args := append([]interface{}{t.Title, t.Description, string(t.Status)}, figureArgs(t.Figures)...)
	args = append(args, t.UpdatedAt.UTC(), t.ID)

	var row taskRow
	if err := exec.GetContext(ctx, &row, exec.Rebind(q), args...); err != nil {
		return activity.Task{}, translate(err, "task", "updating task")
	}
	return row.task(), nil
}

func (repo *activityRepository) DeleteTask(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return core.NewNotFoundError("task")
	}
	exec := repo.exec(ctx)
	res, err := exec.ExecContext(ctx,
		exec.Rebind("UPDATE tasks SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL"), at.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "deleting task")
	}
	if err = affected(res, "task"); err != nil {
		return err
	}
	if _, err = exec.ExecContext(ctx,
		exec.Rebind("UPDATE reports SET deleted_at = ? WHERE task_id = ? AND deleted_at IS NULL"), at.UTC(), id); err != nil {
		return errors.Wrap(err, "deleting task reports")
	}
	return nil
}

// reports

func (repo *activityRepository) CreateReport(ctx context.Context, r activity.Report) (activity.Report, error) {
	r.ID = newID()
	if r.EvidenceURLs == nil {
		r.EvidenceURLs = []string{}
	}
	if r.Attendees == nil {
		r.Attendees = []activity.Attendee{}
	}
	attendees, err := marshalAttendees(r.Attendees)
	if err != nil {
		return activity.Report{}, err
	}

	exec := repo.exec(ctx)
	q := insertSQL("reports", "id", "task_id", "activity_id", "comment", "evidence_urls", "attendees",
		"estimated_cost", "actual_cost", "expected_participants", "actual_participants",
		"expected_financial_impact", "actual_financial_impact", "created_at", "updated_at")
	args := append([]interface{}{r.ID, r.TaskID, r.ActivityID, r.Comment, pq.Array(r.EvidenceURLs), attendees},
		figureArgs(r.Figures)...)
	args = append(args, r.CreatedAt.UTC(), r.UpdatedAt.UTC())
	if _, err = exec.ExecContext(ctx, exec.Rebind(q), args...); err != nil {
		return activity.Report{}, translate(err, "task", "inserting report")
	}
	return r, nil
}

func (repo *activityRepository) getReport(ctx context.Context, cond string, arg interface{}) (activity.Report, error) {
	exec := repo.exec(ctx)
	var row reportRow
	q := "SELECT " + reportColumns + " FROM reports WHERE " + cond
	if err := exec.GetContext(ctx, &row, exec.Rebind(q), arg); err != nil {
		return activity.Report{}, translate(err, "report", "getting report")
	}
	return row.report()
}

func (repo *activityRepository) GetReport(ctx context.Context, id string, unscoped bool) (activity.Report, error) {
	if !validID(id) {
		return activity.Report{}, core.NewNotFoundError("report")
	}
	cond := "id = ?"
	if !unscoped {
		cond += " AND deleted_at IS NULL"
	}
	return repo.getReport(ctx, cond, id)
}

func (repo *activityRepository) GetTaskReport(ctx context.Context, taskID string) (activity.Report, error) {
	if !validID(taskID) {
		return activity.Report{}, core.NewNotFoundError("report")
	}
	return repo.getReport(ctx, "task_id = ? AND deleted_at IS NULL", taskID)
}

func (repo *activityRepository) QueryReports(ctx context.Context, filter activity.ReportFilter, pq core.PageQuery) (core.Page[activity.Report], error) {
	var w where
	w.add("deleted_at IS NULL")
	if !w.ids([2]string{"task_id", filter.TaskID}, [2]string{"activity_id", filter.ActivityID}) {
		return core.NewPage[activity.Report](nil, 0, pq), nil
	}
	if pq.Search != "" {
		w.search(pq.SearchPattern(), "comment")
	}

	var rows []reportRow
	total, err := selectPage(ctx, repo.exec(ctx), &rows, reportColumns, "reports", w, "created_at DESC, id", pq)
	if err != nil {
		return core.Page[activity.Report]{}, errors.Wrap(err, "querying reports")
	}
	reports := make([]activity.Report, 0, len(rows))
	for _, row := range rows {
		r, err := row.report()
		if err != nil {
			return core.Page[activity.Report]{}, err
		}
		reports = append(reports, r)
	}
	return core.NewPage(reports, total, pq), nil
}

func (repo *activityRepository) UpdateReport(ctx context.Context, r activity.Report) (activity.Report, error) {
	if !validID(r.ID) {
		return activity.Report{}, core.NewNotFoundError("report")
	}
	attendees, err := marshalAttendees(r.Attendees)
	if err != nil {
		return activity.Report{}, err
	}
	if r.EvidenceURLs == nil {
		r.EvidenceURLs = []string{}
	}

	exec := repo.exec(ctx)
	q := `UPDATE reports SET comment = ?, evidence_urls = ?, attendees = ?,
		estimated_cost = ?, actual_cost = ?, expected_participants = ?, actual_participants = ?,
		expected_financial_impact = ?, actual_financial_impact = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL RETURNING ` + reportColumns
	args := append([]interface{}{r.Comment, pq.Array(r.EvidenceURLs), attendees}, figureArgs(r.Figures)...)
	args = append(args, r.UpdatedAt.UTC(), r.ID)

	var row reportRow
	if err = exec.GetContext(ctx, &row, exec.Rebind(q), args...); err != nil {
		return activity.Report{}, translate(err, "report", "updating report")
	}
	return row.report()
}

func (repo *activityRepository) DeleteReport(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return core.NewNotFoundError("report")
	}
	exec := repo.exec(ctx)
	res, err := exec.ExecContext(ctx,
		exec.Rebind("UPDATE reports SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL"), at.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "deleting report")
	}
	return affected(res, "report")
}
