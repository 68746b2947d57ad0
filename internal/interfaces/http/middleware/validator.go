package middleware

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Record and zone names are path segments on fetch/delete routes, so they
// must stay URL-safe.
var recordNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// SetupValidator registers custom binding validations with gin's validator.
func SetupValidator() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("recordname", validRecordName)
	}
}

func validRecordName(fl validator.FieldLevel) bool {
	return recordNameRe.MatchString(fl.Field().String())
}
