package location

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/iradukundapaci/communiserver-sub002/core"
)

var (
	levelTag  = "level"
	levelText = "invalid location level"
)

// InitValidators registers the `level` validation tag.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(levelTag, levelValidation)
	core.RegisterCustomTranslation(validate, translator, levelTag, levelText)
}

func levelValidation(fl validator.FieldLevel) bool {
	_, ok := ParseLevel(fl.Field().String())
	return ok
}
