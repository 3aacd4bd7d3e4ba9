package utils

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	numericRegex = regexp.MustCompile(`^[0-9]+$`)
)

func IsValidEmail(email string) bool {
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

func IsStrongPassword(password string) bool {
	if len(password) < MinPasswordLength {
		return false
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		}
	}

	return hasUpper && hasLower && hasNumber
}

func IsNumeric(str string) bool {
	return numericRegex.MatchString(str)
}

func IsValidPIN(pin string) bool {
	if len(pin) < MinPINLength || len(pin) > MaxPINLength {
		return false
	}
	return IsNumeric(pin)
}

func IsValidBusinessName(name string) bool {
	name = strings.TrimSpace(name)
	return len(name) >= 1 && len(name) <= 100
}

func IsValidProductName(name string) bool {
	name = strings.TrimSpace(name)
	return len(name) >= 1 && len(name) <= 200
}

func IsValidDeviceID(id string) bool {
	if len(id) < 8 || len(id) > 64 {
		return false
	}

	for _, char := range id {
		if !unicode.IsLetter(char) && !unicode.IsNumber(char) && char != '-' && char != '_' {
			return false
		}
	}

	return true
}

func SanitizeInput(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")
	return input
}
