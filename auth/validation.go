package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/swecha/corpus-contrib/network"
)

const (
	minSignupPasswordLength = 8
	minResetPasswordLength  = 6
	minChangePasswordLength = 8
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidEmail ...
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func validateSignup(c Completion) error {
	if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Email) == "" || c.Password == "" || c.ConfirmPassword == "" {
		return network.NewValidationError("fields", "Please fill in all fields.")
	}
	if !ValidEmail(strings.TrimSpace(c.Email)) {
		return network.NewValidationError("email", "Please enter a valid email address.")
	}
	if c.Password != c.ConfirmPassword {
		return network.NewValidationError("confirm_password", "Passwords don't match.")
	}
	if utf8.RuneCountInString(c.Password) < minSignupPasswordLength {
		return network.NewValidationError("password", "Password must be at least 8 characters long.")
	}
	if !c.HasGivenConsent {
		return network.NewValidationError("has_given_consent", "Please agree to the terms and conditions.")
	}
	return nil
}

func validateReset(c Completion) error {
	if c.Password == "" || c.ConfirmPassword == "" {
		return network.NewValidationError("new_password", "Please fill in all password fields.")
	}
	if c.Password != c.ConfirmPassword {
		return network.NewValidationError("confirm_password", "Passwords don't match. Please try again.")
	}
	if utf8.RuneCountInString(c.Password) < minResetPasswordLength {
		return network.NewValidationError("new_password", "Password must be at least 6 characters long.")
	}
	return nil
}

func validatePasswordChange(current, newPassword, confirm string) error {
	if current == "" || newPassword == "" || confirm == "" {
		return network.NewValidationError("password", "Please fill in all password fields")
	}
	if newPassword != confirm {
		return network.NewValidationError("confirm_password", "New passwords don't match")
	}
	if utf8.RuneCountInString(newPassword) < minChangePasswordLength {
		return network.NewValidationError("new_password", "New password must be at least 8 characters long")
	}
	return nil
}
