package echoapi

import (
	"crypto/subtle"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
	"github.com/iradukundapaci/communiserver-sub002/core/user"
)

const (
	tokenContextKey  = "userToken"
	claimsContextKey = "claims"
	userContextKey   = "user"

	// systemSubject is the subject of the principal authenticated by the system token.
	systemSubject = "system"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Email       string          `json:"email,omitempty"`
	Role        permission.Role `json:"role"`
	Permissions []string        `json:"permissions,omitempty"`
}

func (c Claims) IsSystem() bool { return c.Subject == systemSubject }

type authenticator struct {
	conf      *core.Config
	svc       user.Service
	denylist  core.TokenDenylist
	jwtConfig middleware.JWTConfig
	now       core.NowFunc
}

func newAuthenticator(conf *core.Config, svc user.Service, denylist core.TokenDenylist) *authenticator {
	a := &authenticator{conf: conf, svc: svc, denylist: denylist, now: core.UTCNow}
	a.jwtConfig = middleware.JWTConfig{
		Skipper:       a.isSystemRequest,
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
	}
	return a
}

// isSystemRequest reports whether the request carries the configured system token.
func (a *authenticator) isSystemRequest(ctx echo.Context) bool {
	token := a.conf.Server.SystemToken
	if token == "" {
		return false
	}
	auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
	return subtle.ConstantTimeCompare([]byte(auth), []byte(middleware.DefaultJWTConfig.AuthScheme+" "+token)) == 1
}

func (a *authenticator) systemPrincipal() (Claims, user.User) {
	claims := Claims{
		StandardClaims: jwt.StandardClaims{Issuer: a.conf.AppName, Subject: systemSubject},
		Role:           permission.RoleAdmin,
	}
	return claims, user.User{ID: systemSubject, Role: permission.RoleAdmin, IsActive: true}
}

// middleware authenticates the request by its bearer token and loads the context user.
// Revoked tokens, deleted users and deactivated users are rejected.
func (a *authenticator) middleware() echo.MiddlewareFunc {
	jwtMiddleware := middleware.JWTWithConfig(a.jwtConfig)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return jwtMiddleware(func(ctx echo.Context) error {
			if a.isSystemRequest(ctx) {
				claims, usr := a.systemPrincipal()
				ctx.Set(claimsContextKey, claims)
				ctx.Set(userContextKey, usr)
				return next(ctx)
			}

			token, ok := ctx.Get(tokenContextKey).(*jwt.Token)
			if !ok {
				return errUnauthorized
			}
			claims, ok := token.Claims.(*Claims)
			if !ok {
				return errUnauthorized
			}

			rctx := ctx.Request().Context()
			revoked, err := a.denylist.IsRevoked(rctx, claims.Id)
			if err != nil {
				return errors.Wrap(err, "checking token denylist")
			}
			if revoked {
				return errTokenRevoked
			}

			usr, err := a.svc.GetByID(rctx, claims.Subject)
			if err != nil {
				if core.IsNotFound(err) {
					return errUnauthorized
				}
				return errors.Wrap(err, "finding user by ID")
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}

			ctx.Set(claimsContextKey, *claims)
			ctx.Set(userContextKey, usr)
			return next(ctx)
		})
	}
}

func (a *authenticator) userClaims(usr user.User) *Claims {
	now := a.now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.New().String(),
			Issuer:    a.conf.AppName,
			Subject:   usr.ID,
			ExpiresAt: now.Add(a.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email:       usr.Email,
		Role:        usr.Role,
		Permissions: permission.Strings(usr.Permissions()),
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func (a *authenticator) GenerateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(a.jwtConfig.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(a.jwtConfig.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// issueTokens signs a new access token for usr and rotates its refresh token.
func (a *authenticator) issueTokens(ctx echo.Context, usr user.User) (TokenResponse, error) {
	claims := a.userClaims(usr)
	access, err := a.GenerateToken(claims)
	if err != nil {
		return TokenResponse{}, err
	}
	refresh, err := a.svc.IssueRefreshToken(ctx.Request().Context(), usr)
	if err != nil {
		return TokenResponse{}, errors.Wrap(err, "issuing refresh token")
	}
	return TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Unix(claims.ExpiresAt, 0).UTC(),
		User:         usr,
	}, nil
}

func (a *authenticator) authenticate(ctx echo.Context, login, pwd string) (user.User, error) {
	rctx := ctx.Request().Context()
	usr, err := a.svc.GetByLogin(rctx, login)
	if err != nil {
		if core.IsNotFound(err) {
			return user.User{}, errAuthenticationFailed
		}
		return user.User{}, errors.Wrap(err, "finding user by email or phone")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return user.User{}, errAuthenticationFailed
	}
	if !usr.IsActive {
		return user.User{}, errAccountDeactivated
	}
	usr, err = a.svc.SetLastLogin(rctx, usr)
	return usr, errors.Wrap(err, "setting lastLogin")
}

// refresh exchanges a refresh token for new tokens. A session can be refreshed
// until JWTRefreshExpirationDelta after the login that opened it.
func (a *authenticator) refresh(ctx echo.Context, token string) (TokenResponse, error) {
	usr, err := a.svc.GetByRefreshToken(ctx.Request().Context(), token)
	if err != nil {
		if core.IsNotFound(err) {
			return TokenResponse{}, errInvalidRefreshToken
		}
		return TokenResponse{}, errors.Wrap(err, "finding user by refresh token")
	}
	if !usr.IsActive {
		return TokenResponse{}, errAccountDeactivated
	}
	if usr.LastLogin == nil || a.now().After(usr.LastLogin.Add(a.conf.Server.JWTRefreshExpirationDelta)) {
		return TokenResponse{}, errRefreshExpired
	}
	return a.issueTokens(ctx, usr)
}

// revoke denylists the access token of the request until it expires and drops the refresh token.
func (a *authenticator) revoke(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if claims.IsSystem() {
		return nil
	}
	rctx := ctx.Request().Context()
	if ttl := time.Unix(claims.ExpiresAt, 0).Sub(a.now()); ttl > 0 {
		if err := a.denylist.Revoke(rctx, claims.Id, ttl); err != nil {
			return errors.Wrap(err, "revoking access token")
		}
	}
	return errors.Wrap(a.svc.RevokeRefreshToken(rctx, claims.Subject), "revoking refresh token")
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if claims, ok := ctx.Get(claimsContextKey).(Claims); ok {
		return claims, nil
	}
	return Claims{}, errUnauthorized
}

func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(userContextKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUnauthorized
}
