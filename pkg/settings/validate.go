package settings

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the settings for out-of-range or malformed values.
// A missing ntfy topic is not a validation error: monitoring works without
// one, only delivery is skipped.
func Validate(s *Settings) []error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []error{err}
	}

	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fieldError(fe))
	}
	return errs
}

// Sanitize validates s and resets every invalid field to its default value.
// It returns the problems found so the caller can report them.
func Sanitize(s *Settings) []error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []error{err}
	}

	def := Default()
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fieldError(fe))
		switch fe.Field() {
		case "ntfy_topic":
			s.NtfyTopic = def.NtfyTopic
		case "ntfy_server":
			s.NtfyServer = def.NtfyServer
		case "default_logfile":
			s.DefaultLogFile = def.DefaultLogFile
		case "test_logfile":
			s.TestLogFile = def.TestLogFile
		case "completion_delay":
			s.CompletionDelay = def.CompletionDelay
		case "check_interval":
			s.CheckInterval = def.CheckInterval
		}
	}
	return errs
}

// ValidateParams checks monitor timing values in seconds.
func ValidateParams(completionDelay, checkInterval int) error {
	if completionDelay < MinCompletionDelay || completionDelay > MaxCompletionDelay {
		return fmt.Errorf("completion_delay must be between %d and %d seconds, got %d", MinCompletionDelay, MaxCompletionDelay, completionDelay)
	}
	if checkInterval < MinCheckInterval || checkInterval > MaxCheckInterval {
		return fmt.Errorf("check_interval must be between %d and %d seconds, got %d", MinCheckInterval, MaxCheckInterval, checkInterval)
	}
	return nil
}

func fieldError(fe validator.FieldError) error {
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "min":
		return fmt.Errorf("%s must be at least %s, got %v", fe.Field(), fe.Param(), fe.Value())
	case "max":
		return fmt.Errorf("%s must be at most %s, got %v", fe.Field(), fe.Param(), fe.Value())
	case "url":
		return fmt.Errorf("%s must be a URL, got %q", fe.Field(), fe.Value())
	case "excludesall":
		return fmt.Errorf("%s must not contain any of %q", fe.Field(), fe.Param())
	default:
		return fmt.Errorf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
