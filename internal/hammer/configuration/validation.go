package configuration

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/G-Research/mediahammer/internal/common/hammererrors"
	"github.com/G-Research/mediahammer/internal/common/logging"
)

var validate = newValidator()

// newValidator reports fields by their flag name rather than their Go name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// check runs the struct validations and converts the first violation into an ErrInvalidArgument.
func check(options interface{}) error {
	err := validate.Struct(options)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return errors.WithStack(err)
	}
	fieldError := fieldErrors[0]
	return errors.WithStack(&hammererrors.ErrInvalidArgument{
		Name:    "--" + fieldError.Field(),
		Value:   fieldError.Value(),
		Message: describe(fieldError),
	})
}

func describe(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "required":
		return "a value is required"
	case "required_with":
		return "a value is required when --results-redis-addr is set"
	case "gte":
		return "must be at least " + fieldError.Param()
	case "gt":
		return "must be greater than " + fieldError.Param()
	case "oneof":
		return "must be one of " + fieldError.Param()
	case "url":
		return "must be an absolute URL"
	case "hostname_port":
		return "must be host:port"
	}
	return "failed the " + fieldError.Tag() + " check"
}

func checkLogging(config logging.Config) error {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		return errors.WithStack(&hammererrors.ErrInvalidArgument{Name: "--log-level", Value: config.Level, Message: err.Error()})
	}
	switch config.Format {
	case "", logging.FormatCommandLine, logging.FormatText, logging.FormatJson:
		return nil
	}
	return errors.WithStack(&hammererrors.ErrInvalidArgument{
		Name:    "--log-format",
		Value:   config.Format,
		Message: "must be one of cli, text or json",
	})
}

func (o *ClusterOptions) Validate() error {
	if err := check(o); err != nil {
		return err
	}
	return checkLogging(o.Logging)
}

func (o *LoadOptions) Validate() error {
	if err := check(o); err != nil {
		return err
	}
	if o.VerifyMedia && o.ClientCount < 2 {
		return errors.WithStack(&hammererrors.ErrInvalidArgument{
			Name:    "--client-count",
			Value:   o.ClientCount,
			Message: "media can only be verified with at least 2 clients, as a client never receives its own media",
		})
	}
	return checkLogging(o.Logging)
}

func (o *ScanOptions) Validate() error {
	if err := check(o); err != nil {
		return err
	}
	if o.Api.ApiKey == "" && !o.Gateway.Simulate {
		return errors.WithStack(&hammererrors.ErrInvalidArgument{
			Name:    "--api-key",
			Value:   "",
			Message: "the API key is required",
		})
	}
	if !o.Gateway.Simulate {
		if err := validate.Var(o.Api.ApiBaseUrl, "required,url"); err != nil {
			return errors.WithStack(&hammererrors.ErrInvalidArgument{
				Name:    "--api-base-url",
				Value:   o.Api.ApiBaseUrl,
				Message: "must be an absolute URL",
			})
		}
	}
	return checkLogging(o.Logging)
}
