package user

import (
	"github.com/iradukundapaci/communiserver-sub002/core"
)

// NewServiceMock returns a Service that sends mails synchronously and whose
// verification codes are always `code`.
func NewServiceMock(tx core.Transactor, repo Repository, mailSvc core.EmailService, conf *core.Config, code string) Service {
	svc := NewService(tx, repo, mailSvc, conf).(*service)
	svc.spawn = func(fn func()) { fn() } // run synchronously
	svc.newCode = func() (string, error) { return code, nil }
	return svc
}

// MakePasswordResetToken exposes the reset token of usr, for tests of the API layer.
func MakePasswordResetToken(conf *core.Config, usr User) string {
	return newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta).makeToken(usr)
}
