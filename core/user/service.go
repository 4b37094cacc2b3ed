package user

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
)

var (
	// errors
	ErrEmailExists     = errors.New("a user with this email already exists")
	ErrPhoneExists     = errors.New("a user with this phone number already exists")
	ErrInvalidCode     = errors.New("invalid or expired verification code")
	ErrAlreadyVerified = errors.New("account already verified")
)

type (
	// GetFilter selects a single user; the first non-empty field wins.
	GetFilter struct {
		ID           string
		Email        string
		Phone        string
		Login        string // email or phone
		RefreshToken string // hashed
		Unscoped     bool   // include soft-deleted users
	}

	Repository interface {
		// CheckUniqueness returns ErrEmailExists or ErrPhoneExists on collision with a live user.
		CheckUniqueness(ctx context.Context, email, phone string, excludedIDs ...string) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// GetUser returns the user with its profile, or a NotFoundError.
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		QueryUsers(ctx context.Context, filter QueryFilter, pq core.PageQuery) (core.Page[User], error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUser(ctx context.Context, id string, at time.Time) error

		CreateProfile(ctx context.Context, p Profile) (Profile, error)
		GetProfile(ctx context.Context, userID string) (Profile, error)
		UpdateProfile(ctx context.Context, p Profile) (Profile, error)
		// SetPosition replaces the profile's position at pos.Level.
		SetPosition(ctx context.Context, profileID string, pos Position) error
		// ClearPosition drops the position at level if it points to locationID.
		ClearPosition(ctx context.Context, profileID string, level location.Level, locationID string) error

		CreateVerification(ctx context.Context, v Verification) (Verification, error)
		GetVerification(ctx context.Context, userID, code string) (Verification, error)
		DeleteVerifications(ctx context.Context, userID string) error
		DeleteExpiredVerifications(ctx context.Context, before time.Time) (int64, error)
	}

	Service interface {
		location.Profiles

		CheckUniqueness(ctx context.Context, email, phone string, exclUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		// Register creates a CITIZEN account and sends it a verification code.
		Register(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context, filter QueryFilter, pq core.PageQuery) (core.Page[User], error)
		GetByID(ctx context.Context, id string) (User, error)
		// GetByLogin finds a live user by email or phone.
		GetByLogin(ctx context.Context, login string) (User, error)
		GetByRefreshToken(ctx context.Context, token string) (User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		Delete(ctx context.Context, id string) error

		SetLastLogin(ctx context.Context, usr User) (User, error)
		// IssueRefreshToken generates a new refresh token, replacing the stored one.
		IssueRefreshToken(ctx context.Context, usr User) (string, error)
		RevokeRefreshToken(ctx context.Context, userID string) error

		GetProfile(ctx context.Context, userID string) (Profile, error)
		UpdateProfile(ctx context.Context, userID string, up UpdateProfile) (Profile, error)

		RequestVerification(ctx context.Context, email string) error
		Verify(ctx context.Context, email, code string) (User, error)
		PurgeExpiredVerifications(ctx context.Context) (int64, error)

		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
	}

	service struct {
		tx      core.Transactor
		repo    Repository
		mailSvc core.EmailService
		tokens  *tokenGenerator
		codeTTL time.Duration
		now     core.NowFunc
		newCode func() (string, error)
		spawn   func(fn func())
	}
)

var _ Service = (*service)(nil)

func NewService(tx core.Transactor, repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		tx:      tx,
		repo:    repo,
		mailSvc: mailSvc,
		tokens:  newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
		codeTTL: conf.VerificationCodeTTL,
		now:     core.UTCNow,
		newCode: generateCode,
		spawn:   func(fn func()) { go fn() },
	}
}

func (svc *service) CheckUniqueness(ctx context.Context, email, phone string, exclUsers ...User) error {
	exclIDs := make([]string, 0, len(exclUsers))
	for _, u := range exclUsers {
		exclIDs = append(exclIDs, u.ID)
	}
	if err := svc.repo.CheckUniqueness(ctx, email, phone, exclIDs...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrEmailExists:
			field = "email"
		case ErrPhoneExists:
			field = "phone"
		default:
			return err
		}
		return core.NewConflictError(field, err.Error())
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	role := permission.Role(nu.Role)
	if role == "" {
		role = permission.RoleCitizen
	}

	now := svc.now()
	usr := User{
		Email:     nu.Email,
		Phone:     nu.Phone,
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}

	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		created, err := svc.repo.CreateUser(ctx, usr)
		if err != nil {
			return errors.Wrap(err, "creating user")
		}
		prof, err := svc.repo.CreateProfile(ctx, Profile{
			UserID:    created.ID,
			Names:     nu.Names,
			Positions: []Position{},
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return errors.Wrap(err, "creating profile")
		}
		created.Profile = &prof
		usr = created
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

func (svc *service) Register(ctx context.Context, nu NewUser) (User, error) {
	nu.Role = string(permission.RoleCitizen)
	usr, err := svc.Create(ctx, nu)
	if err != nil {
		return User{}, err
	}
	if err := svc.sendVerificationCode(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "sending verification code")
	}
	return usr, nil
}

func (svc *service) Query(ctx context.Context, filter QueryFilter, pq core.PageQuery) (core.Page[User], error) {
	filter.Clean()
	pq.Clean()
	return svc.repo.QueryUsers(ctx, filter, pq)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByLogin(ctx context.Context, login string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Login: core.CleanString(login, true /* lower */)})
}

func (svc *service) GetByRefreshToken(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, core.NewNotFoundError("user")
	}
	return svc.repo.GetUser(ctx, GetFilter{RefreshToken: hashToken(token)})
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	var usr User
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		orig, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
		if err != nil {
			return err
		}

		orig.Email = uu.Email
		orig.Phone = uu.Phone
		if uu.Role != "" {
			orig.Role = permission.Role(uu.Role)
		}
		if uu.IsActive != nil {
			orig.IsActive = *uu.IsActive
		}
		if uu.Password != "" {
			if err := orig.SetPassword(uu.Password); err != nil {
				return errors.Wrap(err, "hashing password")
			}
		}
		orig.UpdatedAt = svc.now()
		if usr, err = svc.repo.UpdateUser(ctx, orig); err != nil {
			return errors.Wrap(err, "updating user")
		}

		if orig.Profile != nil && uu.Names != "" && uu.Names != orig.Profile.Names {
			prof := *orig.Profile
			prof.Names = uu.Names
			prof.UpdatedAt = orig.UpdatedAt
			if prof, err = svc.repo.UpdateProfile(ctx, prof); err != nil {
				return errors.Wrap(err, "updating profile")
			}
			usr.Profile = &prof
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

// Delete soft-deletes the user; the email and phone become available again.
func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteUser(ctx, id, svc.now())
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	now := svc.now()
	usr.LastLogin = &now
	usr.UpdatedAt = now
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) IssueRefreshToken(ctx context.Context, usr User) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "generating refresh token")
	}
	token := hex.EncodeToString(buf)
	usr.RefreshToken = hashToken(token)
	if _, err := svc.repo.UpdateUser(ctx, usr); err != nil {
		return "", errors.Wrap(err, "storing refresh token")
	}
	return token, nil
}

func (svc *service) RevokeRefreshToken(ctx context.Context, userID string) error {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: userID})
	if err != nil {
		return err
	}
	if usr.RefreshToken == "" {
		return nil
	}
	usr.RefreshToken = ""
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (svc *service) GetProfile(ctx context.Context, userID string) (Profile, error) {
	return svc.repo.GetProfile(ctx, userID)
}

func (svc *service) UpdateProfile(ctx context.Context, userID string, up UpdateProfile) (Profile, error) {
	prof, err := svc.repo.GetProfile(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	prof.Names = up.Names
	prof.UpdatedAt = svc.now()
	return svc.repo.UpdateProfile(ctx, prof)
}

// location.Profiles

func (svc *service) EnsureProfile(ctx context.Context, userID string) (string, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: userID})
	if err != nil {
		return "", err
	}
	if usr.Profile != nil {
		return usr.Profile.ID, nil
	}
	now := svc.now()
	prof, err := svc.repo.CreateProfile(ctx, Profile{
		UserID:    usr.ID,
		Positions: []Position{},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return "", errors.Wrap(err, "creating profile")
	}
	return prof.ID, nil
}

func (svc *service) SetPosition(ctx context.Context, profileID string, level location.Level, locationID string) error {
	return svc.repo.SetPosition(ctx, profileID, Position{Level: level, LocationID: locationID})
}

func (svc *service) ClearPosition(ctx context.Context, profileID string, level location.Level, locationID string) error {
	return svc.repo.ClearPosition(ctx, profileID, level, locationID)
}

func (svc *service) UserExists(ctx context.Context, userID string) error {
	_, err := svc.repo.GetUser(ctx, GetFilter{ID: userID})
	return err
}

// verification

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func (svc *service) RequestVerification(ctx context.Context, email string) error {
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	if usr.IsVerified() {
		return core.NewValidationError(ErrAlreadyVerified)
	}
	return svc.sendVerificationCode(ctx, usr)
}

// sendVerificationCode replaces any pending code of usr with a fresh one and mails it.
func (svc *service) sendVerificationCode(ctx context.Context, usr User) error {
	code, err := svc.newCode()
	if err != nil {
		return errors.Wrap(err, "generating code")
	}
	now := svc.now()
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := svc.repo.DeleteVerifications(ctx, usr.ID); err != nil {
			return err
		}
		_, err := svc.repo.CreateVerification(ctx, Verification{
			UserID:    usr.ID,
			Code:      code,
			ExpiresAt: now.Add(svc.codeTTL),
			CreatedAt: now,
		})
		return err
	})
	if err != nil {
		return errors.Wrap(err, "storing verification")
	}

	svc.spawn(func() { svc.sendVerificationMail(usr, code) })
	return nil
}

func (svc *service) sendVerificationMail(usr User, code string) {
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.displayName(), Address: usr.Email}},
		Subject:      "Verify your email address",
		TemplateName: "verification",
		TemplateData: map[string]interface{}{
			"Name":      usr.displayName(),
			"Code":      code,
			"ExpiresIn": svc.codeTTL.String(),
		},
	}
	svc.mailSvc.SendMessages(msg)
}

func (svc *service) Verify(ctx context.Context, email, code string) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, core.NewValidationError(ErrInvalidCode)
		}
		return User{}, err
	}
	if usr.IsVerified() {
		return usr, nil
	}

	v, err := svc.repo.GetVerification(ctx, usr.ID, core.CleanString(code))
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, core.NewValidationError(ErrInvalidCode)
		}
		return User{}, err
	}
	now := svc.now()
	if v.Expired(now) {
		return User{}, core.NewValidationError(ErrInvalidCode)
	}

	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		usr.VerifiedAt = &now
		usr.UpdatedAt = now
		if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
			return err
		}
		return svc.repo.DeleteVerifications(ctx, usr.ID)
	})
	if err != nil {
		return User{}, errors.Wrap(err, "verifying user")
	}
	return usr, nil
}

// PurgeExpiredVerifications deletes every expired code and returns how many went.
func (svc *service) PurgeExpiredVerifications(ctx context.Context) (int64, error) {
	return svc.repo.DeleteExpiredVerifications(ctx, svc.now())
}

// password reset

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return core.NewNotFoundError("user")
	}
	svc.spawn(func() { svc.sendPasswordResetMail(usr) })
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.displayName(), Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":  usr.displayName(),
			"UID":   EncodeUID(usr),
			"Token": svc.tokens.makeToken(usr),
		},
	}
	svc.mailSvc.SendMessages(msg)
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	uid, err := decodeUID(data.UID)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "uid", Error: "invalid value"})
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: uid})
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(nil, core.FieldError{Field: "uid", Error: "invalid value"})
		}
		return err
	}
	if err := svc.tokens.verifyToken(usr, data.Token); err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "token", Error: err.Error()})
	}

	if err := usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	// logged in sessions must start over
	usr.RefreshToken = ""
	usr.UpdatedAt = svc.now()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating password")
}

func (u User) displayName() string {
	if u.Profile != nil && u.Profile.Names != "" {
		return u.Profile.Names
	}
	return u.Email
}
