package main

import (
	"context"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/user"
)

// resetPassword sets a new password and drops the refresh token, signing the user out everywhere.
func (cli *commandLine) resetPassword(login, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Login: core.CleanString(login, true /* lower */)})
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.RefreshToken = ""
	usr.UpdatedAt = cli.now()
	_, err = cli.usrRepo.UpdateUser(ctx, usr)
	return err
}
