package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
)

const (
	pageParam        = "page"
	sizeParam        = "size"
	searchParam      = "q"
	withDeletedParam = "withDeleted"
)

// bindPage reads the pagination parameters; malformed numbers fall back to the defaults.
func bindPage(ctx echo.Context) core.PageQuery {
	pq := core.PageQuery{
		Page:   queryInt(ctx, pageParam),
		Size:   queryInt(ctx, sizeParam),
		Search: ctx.QueryParam(searchParam),
	}
	pq.Clean()
	return pq
}

func queryInt(ctx echo.Context, name string) int {
	n, err := strconv.Atoi(ctx.QueryParam(name))
	if err != nil {
		return 0
	}
	return n
}

// bindWithDeleted reports whether soft-deleted rows were asked for. Only admins may ask.
func bindWithDeleted(ctx echo.Context) (bool, error) {
	unscoped, _ := strconv.ParseBool(ctx.QueryParam(withDeletedParam))
	if !unscoped {
		return false, nil
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return false, err
	}
	if !usr.Can(permission.ManageSettings) {
		return false, errHttpForbidden
	}
	return true, nil
}
