package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrInvalidTradeCode        = errors.New("trade code must be # followed by 5 letters or digits")
	ErrInvalidUsername         = errors.New("invalid username")
	ErrInvalidPassword         = errors.New("invalid password")
	ErrInvalidTelegramUsername = errors.New("invalid telegram username")
	ErrInvalidName             = errors.New("name must be 1 to 100 characters")
)

var (
	tradeCodeRegex = regexp.MustCompile(`^#[A-Z0-9]{5}$`)
	usernameRegex  = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
	telegramRegex  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{4,31}$`)
)

// NormalizeTradeCode upper-cases code and adds a missing leading '#'.
func NormalizeTradeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code != "" && !strings.HasPrefix(code, "#") {
		code = "#" + code
	}
	return code
}

func ValidateTradeCode(code string) error {
	if !tradeCodeRegex.MatchString(code) {
		return ErrInvalidTradeCode
	}
	return nil
}

// NormalizeTelegramUsername drops a leading '@'.
func NormalizeTelegramUsername(username string) string {
	return strings.TrimPrefix(strings.TrimSpace(username), "@")
}

func ValidateTelegramUsername(username string) error {
	if !telegramRegex.MatchString(username) {
		return ErrInvalidTelegramUsername
	}
	return nil
}

func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || len([]rune(trimmed)) > 100 {
		return ErrInvalidName
	}
	return nil
}

func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrInvalidPassword
	}
	return nil
}
