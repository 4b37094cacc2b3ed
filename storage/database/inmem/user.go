package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
	"github.com/iradukundapaci/communiserver-sub002/core/user"
)

type userRepository struct {
	db *DB
}

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func copyProfile(p *user.Profile) *user.Profile {
	out := *p
	out.Positions = append([]user.Position{}, p.Positions...)
	return &out
}

// withProfile returns a copy of usr with its profile attached.
func (repo *userRepository) withProfile(usr *user.User) user.User {
	out := *usr
	out.Profile = nil
	for _, p := range repo.db.profiles {
		if p.UserID == usr.ID {
			out.Profile = copyProfile(p)
			break
		}
	}
	return out
}

func (repo *userRepository) CheckUniqueness(_ context.Context, email, phone string, excludedIDs ...string) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[string]bool, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = true
	}
	for _, usr := range repo.db.users {
		if usr.DeletedAt != nil || excluded[usr.ID] {
			continue
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
		if phone != "" && usr.Phone == phone {
			return user.ErrPhoneExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, u := range repo.db.users {
		if u.DeletedAt != nil {
			continue
		}
		if u.Email == usr.Email {
			return user.User{}, core.NewConflictError("email", user.ErrEmailExists.Error())
		}
		if u.Phone == usr.Phone {
			return user.User{}, core.NewConflictError("phone", user.ErrPhoneExists.Error())
		}
	}

	usr.ID = newID()
	usr.Profile = nil
	stored := usr
	repo.db.users[usr.ID] = &stored
	return usr, nil
}

func (repo *userRepository) find(filter user.GetFilter) *user.User {
	if filter.ID != "" {
		if usr, ok := repo.db.users[filter.ID]; ok && (usr.DeletedAt == nil || filter.Unscoped) {
			return usr
		}
		return nil
	}
	for _, usr := range repo.db.users {
		if usr.DeletedAt != nil && !filter.Unscoped {
			continue
		}
		switch {
		case filter.Email != "" && usr.Email == filter.Email,
			filter.Phone != "" && usr.Phone == filter.Phone,
			filter.Login != "" && (usr.Email == filter.Login || usr.Phone == filter.Login),
			filter.RefreshToken != "" && usr.RefreshToken == filter.RefreshToken:
			return usr
		}
	}
	return nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	usr := repo.find(filter)
	if usr == nil {
		return user.User{}, core.NewNotFoundError("user")
	}
	return repo.withProfile(usr), nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter, pq core.PageQuery) (core.Page[user.User], error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := make([]user.User, 0)
	for _, u := range repo.db.users {
		if u.DeletedAt != nil && !filter.Unscoped {
			continue
		}
		if filter.Role != "" && string(u.Role) != filter.Role {
			continue
		}
		if filter.IsActive != nil && u.IsActive != *filter.IsActive {
			continue
		}
		usr := repo.withProfile(u)
		var names string
		if usr.Profile != nil {
			names = usr.Profile.Names
		}
		if !matches(pq.Search, usr.Email, usr.Phone, names) {
			continue
		}
		users = append(users, usr)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return core.Paginate(users, pq), nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok || orig.DeletedAt != nil {
		return user.User{}, core.NewNotFoundError("user")
	}
	for _, u := range repo.db.users {
		if u.ID == usr.ID || u.DeletedAt != nil {
			continue
		}
		if u.Email == usr.Email {
			return user.User{}, core.NewConflictError("email", user.ErrEmailExists.Error())
		}
		if u.Phone == usr.Phone {
			return user.User{}, core.NewConflictError("phone", user.ErrPhoneExists.Error())
		}
	}

	usr.CreatedAt = orig.CreatedAt
	usr.DeletedAt = nil
	usr.Profile = nil
	*orig = usr
	return repo.withProfile(orig), nil
}

func (repo *userRepository) DeleteUser(_ context.Context, id string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr, ok := repo.db.users[id]
	if !ok || usr.DeletedAt != nil {
		return core.NewNotFoundError("user")
	}
	usr.DeletedAt = core.TimePtr(at)
	usr.RefreshToken = ""
	return nil
}

func (repo *userRepository) CreateProfile(_ context.Context, p user.Profile) (user.Profile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, prof := range repo.db.profiles {
		if prof.UserID == p.UserID {
			return user.Profile{}, core.NewConflictError("userId", "user already has a profile")
		}
	}
	p.ID = newID()
	if p.Positions == nil {
		p.Positions = []user.Position{}
	}
	repo.db.profiles[p.ID] = copyProfile(&p)
	return p, nil
}

func (repo *userRepository) GetProfile(_ context.Context, userID string) (user.Profile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, p := range repo.db.profiles {
		if p.UserID == userID {
			return *copyProfile(p), nil
		}
	}
	return user.Profile{}, core.NewNotFoundError("profile")
}

func (repo *userRepository) UpdateProfile(_ context.Context, p user.Profile) (user.Profile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.profiles[p.ID]
	if !ok {
		return user.Profile{}, core.NewNotFoundError("profile")
	}
	orig.Names = p.Names
	orig.UpdatedAt = p.UpdatedAt
	return *copyProfile(orig), nil
}

func (repo *userRepository) SetPosition(_ context.Context, profileID string, pos user.Position) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.profiles[profileID]
	if !ok {
		return core.NewNotFoundError("profile")
	}
	positions := make([]user.Position, 0, len(p.Positions)+1)
	for _, existing := range p.Positions {
		if existing.Level != pos.Level {
			positions = append(positions, existing)
		}
	}
	p.Positions = append(positions, pos)
	return nil
}

func (repo *userRepository) ClearPosition(_ context.Context, profileID string, level location.Level, locationID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.profiles[profileID]
	if !ok {
		return nil
	}
	positions := make([]user.Position, 0, len(p.Positions))
	for _, pos := range p.Positions {
		if pos.Level == level && pos.LocationID == locationID {
			continue
		}
		positions = append(positions, pos)
	}
	p.Positions = positions
	return nil
}

func (repo *userRepository) CreateVerification(_ context.Context, v user.Verification) (user.Verification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	v.ID = newID()
	stored := v
	repo.db.verifications[v.ID] = &stored
	return v, nil
}

func (repo *userRepository) GetVerification(_ context.Context, userID, code string) (user.Verification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, v := range repo.db.verifications {
		if v.UserID == userID && v.Code == code {
			return *v, nil
		}
	}
	return user.Verification{}, core.NewNotFoundError("verification")
}

func (repo *userRepository) DeleteVerifications(_ context.Context, userID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, v := range repo.db.verifications {
		if v.UserID == userID {
			delete(repo.db.verifications, id)
		}
	}
	return nil
}

func (repo *userRepository) DeleteExpiredVerifications(_ context.Context, before time.Time) (int64, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var n int64
	for id, v := range repo.db.verifications {
		if v.Expired(before) {
			delete(repo.db.verifications, id)
			n++
		}
	}
	return n, nil
}
