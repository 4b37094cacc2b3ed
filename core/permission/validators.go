package permission

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/iradukundapaci/communiserver-sub002/core"
)

var (
	roleTag  = "role"
	roleText = "invalid role"
)

// InitValidators registers the `role` validation tag.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(validate, translator, roleTag, roleText)
}

// roleValidation checks that the field names one of Roles (case-insensitive).
func roleValidation(fl validator.FieldLevel) bool {
	return IsValidRole(fl.Field().String())
}
