package shift

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tapir/core"
)

var (
	clockTag  = "clock"
	clockText = "enter a time as HH:MM"
)

// InitValidators registers the shift validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(clockTag, func(fl validator.FieldLevel) bool {
		return isClock(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, clockTag, clockText)
}
