package auth

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"golang.org/x/crypto/bcrypt"
)

type PasswordHasher struct {
	cost int
}

// NewPasswordHasher uses bcrypt.DefaultCost when cost is out of range.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func (h *PasswordHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var (
	hasUpper  = regexp.MustCompile(`\p{Lu}`)
	hasLower  = regexp.MustCompile(`\p{Ll}`)
	hasDigit  = regexp.MustCompile(`\p{Nd}`)
	hasSymbol = regexp.MustCompile(`[^\p{L}\p{Nd}\s]`)
)

// bcrypt ignores everything past 72 bytes
const maxPasswordBytes = 72

// passwordRules is the registration password policy. Length is counted in
// characters; the bcrypt cap separately in bytes.
func passwordRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("The password field is required."),
		validation.RuneLength(8, 0).Error("The password field must be at least 8 characters."),
		validation.By(func(value interface{}) error {
			if s, _ := value.(string); len(s) > maxPasswordBytes {
				return errors.New("The password field must not be greater than 72 bytes.")
			}
			return nil
		}),
		validation.Match(hasUpper).Error("The password field must contain at least one uppercase and one lowercase letter."),
		validation.Match(hasLower).Error("The password field must contain at least one uppercase and one lowercase letter."),
		validation.Match(hasDigit).Error("The password field must contain at least one number."),
		validation.Match(hasSymbol).Error("The password field must contain at least one symbol."),
	}
}

// CheckPasswordPolicy reports the first policy rule the password breaks.
func CheckPasswordPolicy(password string) error {
	if err := validation.Validate(password, passwordRules()...); err != nil {
		return fieldError(ErrWeakPassword, "password", err.Error())
	}
	return nil
}
