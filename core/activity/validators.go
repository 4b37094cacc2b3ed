package activity

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/iradukundapaci/communiserver-sub002/core"
)

var (
	taskStatusTag  = "taskstatus"
	taskStatusText = "status must be one of pending, ongoing, completed or cancelled"
)

// InitValidators registers the `taskstatus` validation tag.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(taskStatusTag, taskStatusValidation)
	core.RegisterCustomTranslation(validate, translator, taskStatusTag, taskStatusText)
}

func taskStatusValidation(fl validator.FieldLevel) bool {
	_, ok := ParseStatus(fl.Field().String())
	return ok
}
