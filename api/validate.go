package api

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const tagPasswordStrength = "password_strength"

// MinPasswordStrength is the lowest PasswordStrength accepted at registration.
const MinPasswordStrength = 3

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report wire names, not Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(tagPasswordStrength, func(fl validator.FieldLevel) bool {
		return PasswordStrength(fl.Field().String()) >= MinPasswordStrength
	})
	return v
}

func (c *Client) validate(s any) error {
	err := c.validator.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return &ValidationError{Errors: fieldErrs}
	}
	return err
}
