package catalog

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/learnsphere/moderation/internal/model"
)

var translator ut.Translator

func init() {
	english := en.New()
	translator, _ = ut.New(english, english).GetTranslator("en")
}

// NewValidator returns a validator that reports JSON field names.
func NewValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}

// check validates v and reports the first offending field as ValidationFailed.
func (c *Catalog) check(v any) error {
	err := c.validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return model.ValidationFailed(fe.Field(), fe.Translate(translator))
	}

	return model.ValidationFailed("", err.Error())
}
