package models

import (
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"learnizone-backend/internal/apperr"
)

// forbiddenChars may never appear in text that is rendered as HTML by clients.
const forbiddenChars = `<>"'&`

var validate = newValidator()

// newValidator reports struct fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validator returns the shared validator used for entity URLs and request DTOs.
func Validator() *validator.Validate {
	return validate
}

func containsForbidden(s string) bool {
	return strings.ContainsAny(s, forbiddenChars)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

func isWellFormedURL(raw string) bool {
	return validate.Var(raw, "required,url") == nil
}

// cleanText applies the shared text policy: trim, clamp to max runes, then
// reject forbidden characters.
func cleanText(field, value string, max int, required bool) (string, error) {
	v := truncate(strings.TrimSpace(value), max)
	if required && v == "" {
		return "", apperr.Invalid(field, "This field is required")
	}
	if containsForbidden(v) {
		return "", apperr.Invalid(field, "Contains forbidden characters")
	}
	return v, nil
}

func validMetadata(m map[string]any) bool {
	for k, v := range m {
		if strings.TrimSpace(k) == "" || v == nil {
			return false
		}
	}
	return true
}
