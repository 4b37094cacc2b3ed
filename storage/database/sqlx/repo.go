// Package sqlxrepos implements the repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/activity"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
	"github.com/iradukundapaci/communiserver-sub002/core/user"
	"github.com/iradukundapaci/communiserver-sub002/storage/database"
)

// postgres error codes
const (
	pqUniqueViolation           = "23505"
	pqForeignKeyViolation       = "23503"
	pqInvalidTextRepresentation = "22P02"
)

type conflict struct {
	field, message string
}

// conflicts maps unique index names to the offending input field.
var conflicts = map[string]conflict{
	"users_email_key":          {"email", user.ErrEmailExists.Error()},
	"users_phone_key":          {"phone", user.ErrPhoneExists.Error()},
	"profiles_user_id_key":     {"userId", "user already has a profile"},
	"provinces_name_key":       {"name", location.ErrNameTaken.Error()},
	"cells_name_key":           {"name", location.ErrNameTaken.Error()},
	"tasks_activity_isibo_key": {"isiboId", activity.ErrTaskExists.Error()},
	"reports_task_key":         {"taskId", activity.ErrReportExists.Error()},
}

// translate maps driver errors to core errors: missing or dangling rows to NotFoundError,
// unique violations to ConflictError.
func translate(err error, resource, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return core.NewNotFoundError(resource)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqInvalidTextRepresentation, pqForeignKeyViolation:
			return core.NewNotFoundError(resource)
		case pqUniqueViolation:
			if c, ok := conflicts[pqErr.Constraint]; ok {
				return core.NewConflictError(c.field, c.message)
			}
			return core.NewConflictError("", pqErr.Message)
		}
	}
	return errors.Wrap(err, msg)
}

// validID reports whether id can be compared to a uuid column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func newID() string { return uuid.New().String() }

// base holds the pool; queries run on the transaction carried by ctx when there is one.
type base struct {
	db *sqlx.DB
}

func (b base) exec(ctx context.Context) database.Executor {
	return database.ExecutorFrom(ctx, b.db)
}

// where accumulates AND-ed conditions written with `?` placeholders.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) search(pattern string, columns ...string) {
	ors := make([]string, 0, len(columns))
	for _, col := range columns {
		ors = append(ors, col+" ILIKE ?")
		w.args = append(w.args, pattern)
	}
	w.conds = append(w.conds, "("+strings.Join(ors, " OR ")+")")
}

// ids adds an equality condition per non empty {column, id} pair.
// It returns false when an id is not a uuid, so nothing can match.
func (w *where) ids(pairs ...[2]string) bool {
	for _, p := range pairs {
		if p[1] == "" {
			continue
		}
		if !validID(p[1]) {
			return false
		}
		w.add(p[0]+" = ?", p[1])
	}
	return true
}

func (w where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// selectPage counts the rows matching w then loads one page of them into dest.
func selectPage(ctx context.Context, exec database.Executor, dest interface{}, columns, from string, w where, orderBy string, page core.PageQuery) (int, error) {
	var total int
	countQ := exec.Rebind("SELECT COUNT(*) FROM " + from + w.String())
	if err := exec.GetContext(ctx, &total, countQ, w.args...); err != nil {
		return 0, errors.Wrap(err, "counting rows")
	}
	if total == 0 {
		return 0, nil
	}

	q := exec.Rebind("SELECT " + columns + " FROM " + from + w.String() + " ORDER BY " + orderBy + " LIMIT ? OFFSET ?")
	args := append(append([]interface{}{}, w.args...), page.Size, page.Offset())
	if err := exec.SelectContext(ctx, dest, q, args...); err != nil {
		return 0, errors.Wrap(err, "selecting rows")
	}
	return total, nil
}

// affected turns a zero row count into a NotFoundError.
func affected(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reading affected rows")
	}
	if n == 0 {
		return core.NewNotFoundError(resource)
	}
	return nil
}
