package validator

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// New creates a validator with the custom rules used by catalog files:
//
//	notblank  rejects empty and whitespace-only strings
//	duration  accepts strings understood by time.ParseDuration
func New() *validator.Validate {
	v := validator.New()

	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return true // Not a string, let other validators handle it
		}
		return strings.TrimSpace(str) != ""
	})

	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		_, err := time.ParseDuration(str)
		return err == nil
	})

	return v
}
