package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their koanf key so messages match the config file and env names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("koanf"), ",")
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks cfg against its struct tags plus rules that tags cannot express.
// The first violation is returned as a *ConfigError.
func Validate(cfg *Config) error {
	if cfg == nil {
		return NewValidationError("config", "is nil")
	}

	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return NewValidationError("config", err.Error())
	}

	return validateBaseURL(cfg.Client.BaseURL)
}

// validateBaseURL requires an absolute http(s) URL without query or fragment.
func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return NewInvalidFieldError("client.baseurl", err.Error(), nil)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewInvalidFieldError("client.baseurl", fmt.Sprintf("unsupported scheme %q", u.Scheme), []string{"http", "https"})
	}
	if u.Host == "" {
		return NewInvalidFieldError("client.baseurl", "host is required", nil)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return NewInvalidFieldError("client.baseurl", "must not contain a query or fragment", nil)
	}
	return nil
}

func fieldError(fe validator.FieldError) *ConfigError {
	field := fieldPath(fe.Namespace())

	switch fe.Tag() {
	case "required", "required_if":
		envVar := EnvPrefix + strings.ToUpper(strings.ReplaceAll(field, ".", "_"))
		return NewMissingFieldError(field, envVar, field)
	case "oneof":
		return NewInvalidFieldError(field, fmt.Sprintf("invalid value %q", fmt.Sprint(fe.Value())), strings.Fields(fe.Param()))
	case "url":
		return NewInvalidFieldError(field, fmt.Sprintf("invalid url %q", fmt.Sprint(fe.Value())), nil)
	default:
		return NewValidationError(field, fmt.Sprintf("failed %s=%s (got %v)", fe.Tag(), fe.Param(), fe.Value()))
	}
}

// fieldPath turns "Config.client.baseurl" into "client.baseurl".
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}
