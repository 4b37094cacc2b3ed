package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
)

type User struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone"`
	Role         permission.Role `json:"role"`
	IsActive     bool            `json:"isActive"`
	PasswordHash []byte          `json:"-"`
	RefreshToken string          `json:"-"` // sha256 hex of the issued refresh token
	VerifiedAt   *time.Time      `json:"verifiedAt"`
	LastLogin    *time.Time      `json:"lastLogin"`
	CreatedAt    time.Time       `json:"createdAt"` // UTC
	UpdatedAt    time.Time       `json:"updatedAt"` // UTC
	DeletedAt    *time.Time      `json:"deletedAt,omitempty"`

	Profile *Profile `json:"profile,omitempty"`
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool    { return u.Role == permission.RoleAdmin }
func (u *User) IsVerified() bool { return u.VerifiedAt != nil }

// Permissions returns the capability set of the user's role.
func (u *User) Permissions() []permission.Permission {
	return permission.ForRole(string(u.Role))
}

func (u *User) Can(p permission.Permission) bool {
	return permission.Has(string(u.Role), p)
}

// Position is a leadership assignment: the profile leads locationID at level.
type Position struct {
	Level      location.Level `json:"level"`
	LocationID string         `json:"locationId"`
}

type Profile struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Names     string     `json:"names"`
	Positions []Position `json:"positions"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (p Profile) PositionAt(level location.Level) (Position, bool) {
	for _, pos := range p.Positions {
		if pos.Level == level {
			return pos, true
		}
	}
	return Position{}, false
}

// Leads reports whether the profile leads locationID at level.
func (p Profile) Leads(level location.Level, locationID string) bool {
	pos, ok := p.PositionAt(level)
	return ok && pos.LocationID == locationID
}

// Verification is a one-time code sent to confirm an email address.
type Verification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Code      string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

func (v Verification) Expired(now time.Time) bool { return !now.Before(v.ExpiresAt) }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Names           string `json:"names" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"required,phone"`
	Role            string `json:"role" validate:"omitempty,role"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Names = core.CleanString(nu.Names)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Phone = core.CleanString(nu.Phone)
	if nu.Role != "" {
		role, _ := permission.ParseRole(nu.Role)
		nu.Role = string(role)
	}

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Email, nu.Phone)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Names           string `json:"names"`
	Email           string `json:"email" validate:"omitempty,email"`
	Phone           string `json:"phone" validate:"omitempty,phone"`
	IsActive        *bool  `json:"isActive"`
	Role            string `json:"role" validate:"omitempty,role"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	names := core.CleanString(uu.Names)
	if names != "" {
		uu.Names = names
	} else if origUsr.Profile != nil {
		uu.Names = origUsr.Profile.Names
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	phone := core.CleanString(uu.Phone)
	if phone != "" {
		uu.Phone = phone
	} else {
		uu.Phone = origUsr.Phone
	}

	if uu.Role != "" {
		role, _ := permission.ParseRole(uu.Role)
		uu.Role = string(role)
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Email, uu.Phone, origUsr)
}

// UpdateProfile is what users may change on their own profile.
type UpdateProfile struct {
	Names string `json:"names" validate:"required"`
}

func (up *UpdateProfile) Validate(validate *validator.Validate) error {
	up.Names = core.CleanString(up.Names)
	return validate.Struct(up)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Role     string `query:"role"`
	IsActive *bool  `query:"isActive"`
	Unscoped bool   `query:"-"`
}

func (qf *QueryFilter) Clean() {
	if qf.Role != "" {
		role, _ := permission.ParseRole(qf.Role)
		qf.Role = string(role)
	}
}
