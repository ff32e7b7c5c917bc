package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

var periodRe = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ValidPeriod reports whether s is a YYYY-MM period.
func ValidPeriod(s string) bool { return periodRe.MatchString(s) }

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = validate.RegisterValidation("period", func(fl validator.FieldLevel) bool {
			return periodRe.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Struct validates s against its `validate` tags and returns violations keyed
// by JSON field path (e.g. "steps[0].name").
func Struct(s any) Violations {
	v := Violations{}
	err := instance().Struct(s)
	if err == nil {
		return v
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		v["_"] = "invalid"
		return v
	}
	for _, fe := range ve {
		v[fieldPath(fe.Namespace())] = message(fe)
	}
	return v
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "required"
	case "oneof":
		return "must_be_one_of:" + fe.Param()
	case "gte", "lte", "gt", "lt", "min", "max":
		return "out_of_range"
	case "email":
		return "invalid_email"
	case "period":
		return "invalid_period"
	default:
		return "invalid"
	}
}
