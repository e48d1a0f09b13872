package jobconfig

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their flag key rather than the Go field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("flag"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("repourl", func(fl validator.FieldLevel) bool {
		return IsRepositoryURL(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("jobconfig: register repourl: %v", err))
	}
	return v
}

// IsRepositoryURL reports whether s looks like an http(s) repository URL
// with at least an owner and a repository path segment.
func IsRepositoryURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	var segments int
	for _, part := range strings.Split(u.Path, "/") {
		if part != "" {
			segments++
		}
	}
	return segments >= 2
}

// Validate checks an already assembled Configuration, for example one
// restored from saved panel state.
func Validate(cfg Configuration) error {
	return validateStruct(cfg)
}

func validateStruct(cfg Configuration) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate configuration: %w", err)
	}

	fe := fieldErrs[0]
	return NewValidationError(fe.Field(), messageFor(fe))
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "repourl":
		return "must be a repository URL like https://github.com/org/repo"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		return "must be >= " + fe.Param()
	case "max":
		return "must be <= " + fe.Param()
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
