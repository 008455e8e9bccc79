package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/service"
)

// trans is the singleton English translator for validation errors.
var trans ut.Translator

// browserExamKeyLen is the length of a hex-encoded SHA-256 browser exam key.
const browserExamKeyLen = 64

// customMessages are the translations of the SEB-specific tags.
var customMessages = map[string]string{
	"sebmode":   "{0} must be a mode between 0 and 4",
	"regexlist": "{0} must contain one valid regular expression per line",
	"keylist":   "{0} must contain 64-character hexadecimal browser exam keys",
}

// Setup registers the validator with English translations on Gin's binding engine.
// Call once during application startup.
func Setup() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		// Use JSON tag name for field names in error messages, form tag for queries.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "" {
				tag = fld.Tag.Get("form")
			}
			name := strings.SplitN(tag, ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		_ = v.RegisterValidation("sebmode", validateSEBMode)
		_ = v.RegisterValidation("regexlist", validateRegexList)
		_ = v.RegisterValidation("keylist", validateKeyList)

		// Register English translations.
		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		trans, _ = uni.GetTranslator("en")
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		for tag, msg := range customMessages {
			registerTranslation(v, tag, msg)
		}
	}
}

func registerTranslation(v *govalidator.Validate, tag, msg string) {
	_ = v.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, msg, true)
		},
		func(ut ut.Translator, fe govalidator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		},
	)
}

func validateSEBMode(fl govalidator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return model.RequireMode(fl.Field().Int()).Valid()
	}
	return false
}

func validateRegexList(fl govalidator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	return service.CompileRegexList(fl.Field().String()) == nil
}

func validateKeyList(fl govalidator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	for _, key := range model.NormalizeBrowserExamKeys(fl.Field().String()) {
		if len(key) != browserExamKeyLen || !isHex(key) {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name → human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(trans)
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}

// BindQuery binds and validates query parameters into dst.
func BindQuery(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindQuery(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
