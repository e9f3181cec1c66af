// Package validation checks request bodies with go-playground/validator and
// renders failures as per-field messages.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	AccountNameMinLength = 3
	AccountNameMaxLength = 15
	PasswordMinLength    = 8
	PasswordMaxLength    = 128
)

var (
	accountNamePattern = regexp.MustCompile("^[a-zA-Z0-9\\-_`]+$")
	lowercasePattern   = regexp.MustCompile(`[a-z]`)
	uppercasePattern   = regexp.MustCompile(`[A-Z]`)
	digitPattern       = regexp.MustCompile(`[0-9]`)
	specialPattern     = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// New returns a validator that knows the "accountname" tag and reports
// fields by their JSON names.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("accountname", func(fl validator.FieldLevel) bool {
		return len(AccountNameProblems(fl.Field().String())) == 0
	}); err != nil {
		panic(err)
	}
	return v
}

// AccountNameProblems lists every rule name breaks.
func AccountNameProblems(name string) []string {
	var problems []string
	n := utf8.RuneCountInString(name)
	if n < AccountNameMinLength {
		problems = append(problems, fmt.Sprintf("Account name must be at least %d characters", AccountNameMinLength))
	}
	if n > AccountNameMaxLength {
		problems = append(problems, fmt.Sprintf("Account name must be at most %d characters", AccountNameMaxLength))
	}
	if name != "" && !accountNamePattern.MatchString(name) {
		problems = append(problems, "Account name may only contain letters, numbers, hyphens, underscores, and backticks")
	}
	return problems
}

// PasswordProblems lists every password policy rule password breaks.
func PasswordProblems(password string) []string {
	var problems []string
	n := utf8.RuneCountInString(password)
	if n < PasswordMinLength {
		problems = append(problems, fmt.Sprintf("Password must be at least %d characters", PasswordMinLength))
	}
	if n > PasswordMaxLength {
		problems = append(problems, fmt.Sprintf("Password must be at most %d characters", PasswordMaxLength))
	}
	if !lowercasePattern.MatchString(password) {
		problems = append(problems, "Password must contain at least one lowercase letter")
	}
	if !uppercasePattern.MatchString(password) {
		problems = append(problems, "Password must contain at least one uppercase letter")
	}
	if !digitPattern.MatchString(password) {
		problems = append(problems, "Password must contain at least one digit")
	}
	if !specialPattern.MatchString(password) {
		problems = append(problems, "Password must contain at least one special character")
	}
	return problems
}

// Fields converts a validator error into field -> message pairs. It returns
// nil for errors that did not come from the validator.
func Fields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = message(fe)
	}
	return fields
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "accountname":
		value, _ := fe.Value().(string)
		return strings.Join(AccountNameProblems(value), "; ")
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
