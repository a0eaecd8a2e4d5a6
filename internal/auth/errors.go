package auth

import (
	"errors"
	"sort"
	"strings"

	"github.com/chepyr/tasktracker/internal/apperr"
	validation "github.com/go-ozzo/ozzo-validation"
)

var (
	ErrInvalidCredentials = apperr.New(apperr.KindAuth, "INVALID_CREDENTIALS", "Invalid email or password")

	ErrEmailTaken          = apperr.New(apperr.KindValidation, "EMAIL_TAKEN", "The email has already been taken.")
	ErrWeakPassword        = apperr.New(apperr.KindValidation, "WEAK_PASSWORD", "The password does not meet the password policy.")
	ErrPasswordCompromised = apperr.New(apperr.KindValidation, "PASSWORD_COMPROMISED", "The given password has appeared in a data leak. Please choose a different password.")

	ErrBreachCheckUnavailable = apperr.New(apperr.KindUnavailable, "BREACH_CHECK_UNAVAILABLE", "Password breach check is unavailable, please try again later")

	ErrTokenExpired = apperr.New(apperr.KindSession, "TOKEN_EXPIRED", "Token has expired")
	ErrTokenInvalid = apperr.New(apperr.KindSession, "TOKEN_INVALID", "Token is invalid")
	ErrTokenMissing = apperr.New(apperr.KindSession, "TOKEN_MISSING", "Authorization token not found")

	ErrRateLimited = apperr.New(apperr.KindRateLimit, "TOO_MANY_ATTEMPTS", "Too many login attempts. Please try again later.")
)

// fieldError attaches a single field message to a validation-kind sentinel.
func fieldError(sentinel *apperr.Error, field, message string) *apperr.Error {
	e := *sentinel
	e.Fields = map[string]string{field: message}
	return &e
}

// ValidationError converts ozzo validation errors into an apperr validation
// error keyed by field. Other errors pass through unchanged.
func ValidationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return err
	}
	fields := make(map[string]string, len(errs))
	for name, fe := range errs {
		if fe != nil {
			fields[name] = upperFirst(fe.Error())
		}
	}
	return apperr.Validation(fields)
}

// FieldNames returns the sorted keys of a validation error, for logging.
func FieldNames(err error) string {
	e, ok := apperr.As(err)
	if !ok {
		return ""
	}
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
