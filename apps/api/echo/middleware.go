package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core/permission"
)

// permissionMiddleware lets the request through when the context user's role grants any of perms.
func permissionMiddleware(perms ...permission.Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if permission.HasAny(string(usr.Role), perms...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
