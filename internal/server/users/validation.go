package users

import (
	"net/mail"
	"strings"
	"unicode"

	"github.com/alprslanymeria/oauthserver/internal/server/models"
)

const (
	minPasswordLength = 6
	userNameChars     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-._@+"
)

func validateUser(u *models.User) []string {
	var reasons []string

	switch {
	case u.UserName == "":
		reasons = append(reasons, "User name is required.")
	case strings.Trim(u.UserName, userNameChars) != "":
		reasons = append(reasons, "User name can only contain letters, digits and -._@+ characters.")
	}

	if u.Email != "" {
		if addr, err := mail.ParseAddress(u.Email); err != nil || addr.Address != u.Email {
			reasons = append(reasons, "Email is invalid.")
		}
	}

	if u.Email == "" && u.PhoneNumber == "" {
		reasons = append(reasons, "Either email or phone number is required.")
	}

	return reasons
}

func validatePassword(p string) []string {
	var (
		reasons                      []string
		hasDigit, hasLower, hasUpper bool
		hasSymbol                    bool
	)

	for _, r := range p {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case !unicode.IsLetter(r):
			hasSymbol = true
		}
	}

	if len(p) < minPasswordLength {
		reasons = append(reasons, "Passwords must be at least 6 characters.")
	}
	if !hasDigit {
		reasons = append(reasons, "Passwords must have at least one digit ('0'-'9').")
	}
	if !hasLower {
		reasons = append(reasons, "Passwords must have at least one lowercase ('a'-'z').")
	}
	if !hasUpper {
		reasons = append(reasons, "Passwords must have at least one uppercase ('A'-'Z').")
	}
	if !hasSymbol {
		reasons = append(reasons, "Passwords must have at least one non alphanumeric character.")
	}

	return reasons
}
