package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
	"github.com/iradukundapaci/communiserver-sub002/core/user"
)

const (
	userColumns         = "id, email, phone, password_hash, role, is_active, refresh_token, verified_at, last_login, created_at, updated_at, deleted_at"
	profileColumns      = "id, user_id, names, created_at, updated_at"
	verificationColumns = "id, user_id, code, expires_at, created_at"
)

type userRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	Phone        string    `db:"phone"`
	PasswordHash []byte    `db:"password_hash"`
	Role         string    `db:"role"`
	IsActive     bool      `db:"is_active"`
	RefreshToken string    `db:"refresh_token"`
	VerifiedAt   null.Time `db:"verified_at"`
	LastLogin    null.Time `db:"last_login"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	DeletedAt    null.Time `db:"deleted_at"`
}

func (row userRow) user() user.User {
	return user.User{
		ID:           row.ID,
		Email:        row.Email,
		Phone:        row.Phone,
		Role:         permission.Role(row.Role),
		IsActive:     row.IsActive,
		PasswordHash: row.PasswordHash,
		RefreshToken: row.RefreshToken,
		VerifiedAt:   row.VerifiedAt.Ptr(),
		LastLogin:    row.LastLogin.Ptr(),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		DeletedAt:    row.DeletedAt.Ptr(),
	}
}

type profileRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Names     string    `db:"names"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row profileRow) profile() user.Profile {
	return user.Profile{
		ID:        row.ID,
		UserID:    row.UserID,
		Names:     row.Names,
		Positions: []user.Position{},
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type positionRow struct {
	ProfileID  string `db:"profile_id"`
	Level      string `db:"level"`
	LocationID string `db:"location_id"`
}

type verificationRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Code      string    `db:"code"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

type userRepository struct {
	base
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{base{db: db}}
}

func validIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, email, phone string, excludedIDs ...string) error {
	if email == "" && phone == "" {
		return nil
	}
	var w where
	w.add("deleted_at IS NULL")
	w.add("(email = ? OR phone = ?)", email, phone)
	q := "SELECT email, phone FROM users" + w.String()
	args := w.args
	if ids := validIDs(excludedIDs); len(ids) > 0 {
		var err error
		if q, args, err = sqlx.In(q+" AND id NOT IN (?)", append(args, ids)...); err != nil {
			return errors.Wrap(err, "building uniqueness query")
		}
	}

	exec := repo.exec(ctx)
	var found []struct {
		Email string `db:"email"`
		Phone string `db:"phone"`
	}
	if err := exec.SelectContext(ctx, &found, exec.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, f := range found {
		if email != "" && f.Email == email {
			return user.ErrEmailExists
		}
	}
	for _, f := range found {
		if phone != "" && f.Phone == phone {
			return user.ErrPhoneExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = newID()
	usr.Profile = nil

	exec := repo.exec(ctx)
	q := insertSQL("users", "id", "email", "phone", "password_hash", "role", "is_active", "refresh_token",
		"verified_at", "last_login", "created_at", "updated_at")
	_, err := exec.ExecContext(ctx, exec.Rebind(q),
		usr.ID, usr.Email, usr.Phone, usr.PasswordHash, string(usr.Role), usr.IsActive, usr.RefreshToken,
		null.TimeFromPtr(usr.VerifiedAt), null.TimeFromPtr(usr.LastLogin), usr.CreatedAt.UTC(), usr.UpdatedAt.UTC())
	if err != nil {
		return user.User{}, translate(err, "user", "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var w where
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return user.User{}, core.NewNotFoundError("user")
		}
		w.add("id = ?", filter.ID)
	case filter.Email != "":
		w.add("email = ?", filter.Email)
	case filter.Phone != "":
		w.add("phone = ?", filter.Phone)
	case filter.Login != "":
		w.add("(email = ? OR phone = ?)", filter.Login, filter.Login)
	case filter.RefreshToken != "":
		w.add("refresh_token = ?", filter.RefreshToken)
	default:
		return user.User{}, core.NewNotFoundError("user")
	}
	if !filter.Unscoped {
		w.add("deleted_at IS NULL")
	}

	exec := repo.exec(ctx)
	var row userRow
	q := "SELECT " + userColumns + " FROM users" + w.String() + " ORDER BY deleted_at DESC NULLS FIRST LIMIT 1"
	if err := exec.GetContext(ctx, &row, exec.Rebind(q), w.args...); err != nil {
		return user.User{}, translate(err, "user", "getting user")
	}
	users, err := repo.withProfiles(ctx, []user.User{row.user()})
	if err != nil {
		return user.User{}, err
	}
	return users[0], nil
}

// withProfiles attaches the profile, with its positions, of every user that has one.
func (repo *userRepository) withProfiles(ctx context.Context, users []user.User) ([]user.User, error) {
	if len(users) == 0 {
		return users, nil
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}

	profiles, err := repo.profilesWhere(ctx, "user_id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	byUser := make(map[string]user.Profile, len(profiles))
	for _, p := range profiles {
		byUser[p.UserID] = p
	}
	for i := range users {
		if p, ok := byUser[users[i].ID]; ok {
			users[i].Profile = &p
		}
	}
	return users, nil
}

// profilesWhere loads the profiles matching cond, a single `IN (?)` condition, with their positions.
func (repo *userRepository) profilesWhere(ctx context.Context, cond string, ids []string) ([]user.Profile, error) {
	q, args, err := sqlx.In("SELECT "+profileColumns+" FROM profiles WHERE "+cond, ids)
	if err != nil {
		return nil, errors.Wrap(err, "building profiles query")
	}
	exec := repo.exec(ctx)
	var rows []profileRow
	if err = exec.SelectContext(ctx, &rows, exec.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting profiles")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	profileIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		profileIDs = append(profileIDs, row.ID)
	}
	if q, args, err = sqlx.In("SELECT profile_id, level, location_id FROM profile_positions WHERE profile_id IN (?) ORDER BY level", profileIDs); err != nil {
		return nil, errors.Wrap(err, "building positions query")
	}
	var positions []positionRow
	if err = exec.SelectContext(ctx, &positions, exec.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting positions")
	}

	byProfile := make(map[string][]user.Position, len(rows))
	for _, pos := range positions {
		byProfile[pos.ProfileID] = append(byProfile[pos.ProfileID], user.Position{
			Level:      location.Level(pos.Level),
			LocationID: pos.LocationID,
		})
	}
	profiles := make([]user.Profile, 0, len(rows))
	for _, row := range rows {
		p := row.profile()
		if pos := byProfile[row.ID]; pos != nil {
			p.Positions = pos
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, pq core.PageQuery) (core.Page[user.User], error) {
	var w where
	if !filter.Unscoped {
		w.add("deleted_at IS NULL")
	}
	if filter.Role != "" {
		w.add("role = ?", filter.Role)
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}
	if pq.Search != "" {
		pattern := pq.SearchPattern()
		w.add("(email ILIKE ? OR phone ILIKE ? OR id IN (SELECT user_id FROM profiles WHERE names ILIKE ?))",
			pattern, pattern, pattern)
	}

	var rows []userRow
	total, err := selectPage(ctx, repo.exec(ctx), &rows, userColumns, "users", w, "created_at DESC, id", pq)
	if err != nil {
		return core.Page[user.User]{}, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	if users, err = repo.withProfiles(ctx, users); err != nil {
		return core.Page[user.User]{}, err
	}
	return core.NewPage(users, total, pq), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	if !validID(usr.ID) {
		return user.User{}, core.NewNotFoundError("user")
	}
	exec := repo.exec(ctx)
	q := `UPDATE users SET email = ?, phone = ?, password_hash = ?, role = ?, is_active = ?, refresh_token = ?,
		verified_at = ?, last_login = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`
	res, err := exec.ExecContext(ctx, exec.Rebind(q),
		usr.Email, usr.Phone, usr.PasswordHash, string(usr.Role), usr.IsActive, usr.RefreshToken,
		null.TimeFromPtr(usr.VerifiedAt), null.TimeFromPtr(usr.LastLogin), usr.UpdatedAt.UTC(), usr.ID)
	if err != nil {
		return user.User{}, translate(err, "user", "updating user")
	}
	if err = affected(res, "user"); err != nil {
		return user.User{}, err
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
}

func (repo *userRepository) DeleteUser(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return core.NewNotFoundError("user")
	}
	exec := repo.exec(ctx)
	res, err := exec.ExecContext(ctx,
		exec.Rebind("UPDATE users SET deleted_at = ?, refresh_token = '' WHERE id = ? AND deleted_at IS NULL"),
		at.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return affected(res, "user")
}

// profiles

func (repo *userRepository) CreateProfile(ctx context.Context, p user.Profile) (user.Profile, error) {
	p.ID = newID()
	p.Positions = []user.Position{}

	exec := repo.exec(ctx)
	q := insertSQL("profiles", "id", "user_id", "names", "created_at", "updated_at")
	if _, err := exec.ExecContext(ctx, exec.Rebind(q), p.ID, p.UserID, p.Names, p.CreatedAt.UTC(), p.UpdatedAt.UTC()); err != nil {
		return user.Profile{}, translate(err, "user", "inserting profile")
	}
	return p, nil
}

func (repo *userRepository) GetProfile(ctx context.Context, userID string) (user.Profile, error) {
	if !validID(userID) {
		return user.Profile{}, core.NewNotFoundError("profile")
	}
	profiles, err := repo.profilesWhere(ctx, "user_id IN (?)", []string{userID})
	if err != nil {
		return user.Profile{}, err
	}
	if len(profiles) == 0 {
		return user.Profile{}, core.NewNotFoundError("profile")
	}
	return profiles[0], nil
}

func (repo *userRepository) UpdateProfile(ctx context.Context, p user.Profile) (user.Profile, error) {
	if !validID(p.ID) {
		return user.Profile{}, core.NewNotFoundError("profile")
	}
	exec := repo.exec(ctx)
	res, err := exec.ExecContext(ctx, exec.Rebind("UPDATE profiles SET names = ?, updated_at = ? WHERE id = ?"),
		p.Names, p.UpdatedAt.UTC(), p.ID)
	if err != nil {
		return user.Profile{}, errors.Wrap(err, "updating profile")
	}
	if err = affected(res, "profile"); err != nil {
		return user.Profile{}, err
	}
	profiles, err := repo.profilesWhere(ctx, "id IN (?)", []string{p.ID})
	if err != nil {
		return user.Profile{}, err
	}
	if len(profiles) == 0 {
		return user.Profile{}, core.NewNotFoundError("profile")
	}
	return profiles[0], nil
}

func (repo *userRepository) SetPosition(ctx context.Context, profileID string, pos user.Position) error {
	if !validID(profileID) {
		return core.NewNotFoundError("profile")
	}
	exec := repo.exec(ctx)
	q := insertSQL("profile_positions", "profile_id", "level", "location_id") +
		" ON CONFLICT (profile_id, level) DO UPDATE SET location_id = EXCLUDED.location_id"
	_, err := exec.ExecContext(ctx, exec.Rebind(q), profileID, string(pos.Level), pos.LocationID)
	return translate(err, "profile", "setting position")
}

func (repo *userRepository) ClearPosition(ctx context.Context, profileID string, level location.Level, locationID string) error {
	if !validID(profileID) || !validID(locationID) {
		return nil
	}
	exec := repo.exec(ctx)
	_, err := exec.ExecContext(ctx,
		exec.Rebind("DELETE FROM profile_positions WHERE profile_id = ? AND level = ? AND location_id = ?"),
		profileID, string(level), locationID)
	return errors.Wrap(err, "clearing position")
}

// verifications

func (repo *userRepository) CreateVerification(ctx context.Context, v user.Verification) (user.Verification, error) {
	v.ID = newID()
	exec := repo.exec(ctx)
	q := insertSQL("verifications", "id", "user_id", "code", "expires_at", "created_at")
	if _, err := exec.ExecContext(ctx, exec.Rebind(q), v.ID, v.UserID, v.Code, v.ExpiresAt.UTC(), v.CreatedAt.UTC()); err != nil {
		return user.Verification{}, translate(err, "user", "inserting verification")
	}
	return v, nil
}

func (repo *userRepository) GetVerification(ctx context.Context, userID, code string) (user.Verification, error) {
	if !validID(userID) {
		return user.Verification{}, core.NewNotFoundError("verification")
	}
	exec := repo.exec(ctx)
	var row verificationRow
	q := "SELECT " + verificationColumns + " FROM verifications WHERE user_id = ? AND code = ? ORDER BY created_at DESC LIMIT 1"
	if err := exec.GetContext(ctx, &row, exec.Rebind(q), userID, code); err != nil {
		return user.Verification{}, translate(err, "verification", "getting verification")
	}
	return user.Verification{
		ID:        row.ID,
		UserID:    row.UserID,
		Code:      row.Code,
		ExpiresAt: row.ExpiresAt.UTC(),
		CreatedAt: row.CreatedAt.UTC(),
	}, nil
}

func (repo *userRepository) DeleteVerifications(ctx context.Context, userID string) error {
	if !validID(userID) {
		return nil
	}
	exec := repo.exec(ctx)
	_, err := exec.ExecContext(ctx, exec.Rebind("DELETE FROM verifications WHERE user_id = ?"), userID)
	return errors.Wrap(err, "deleting verifications")
}

func (repo *userRepository) DeleteExpiredVerifications(ctx context.Context, before time.Time) (int64, error) {
	exec := repo.exec(ctx)
	res, err := exec.ExecContext(ctx, exec.Rebind("DELETE FROM verifications WHERE expires_at <= ?"), before.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "deleting expired verifications")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "reading affected rows")
}
