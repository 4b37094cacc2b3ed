package main

import (
	"context"
	"fmt"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/permission"
	"github.com/iradukundapaci/communiserver-sub002/core/user"
)

// addUser updates or creates an active, verified user.User with a profile.
func (cli *commandLine) addUser(names, email, phone, roleName, pwd string) error {
	ctx := context.Background()
	names = core.CleanString(names)
	email = core.CleanString(email, true /* lower */)
	phone = core.CleanString(phone)

	role, ok := permission.ParseRole(roleName)
	if !ok {
		return fmt.Errorf("%q: no such role", roleName)
	}

	now := cli.now()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	exists := err == nil
	if err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		usr = user.User{Email: email, CreatedAt: now}
	}

	usr.Phone = phone
	usr.Role = role
	usr.IsActive = true
	if usr.VerifiedAt == nil {
		usr.VerifiedAt = &now
	}
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		if _, err := cli.usrRepo.UpdateUser(ctx, usr); err != nil {
			return err
		}
		if usr.Profile != nil {
			prof := *usr.Profile
			prof.Names = names
			prof.UpdatedAt = now
			_, err = cli.usrRepo.UpdateProfile(ctx, prof)
			return err
		}
	} else if usr, err = cli.usrRepo.CreateUser(ctx, usr); err != nil {
		return err
	}

	_, err = cli.usrRepo.CreateProfile(ctx, user.Profile{
		UserID:    usr.ID,
		Names:     names,
		Positions: []user.Position{},
		CreatedAt: now,
		UpdatedAt: now,
	})
	return err
}
