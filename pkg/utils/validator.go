package utils

import (
	"fmt"
	"regexp"
)

var (
	emailRegex     = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	controlChars   = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	matriculeRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-/]{1,31}$`)
)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateMatricule validates an agent registration number
func ValidateMatricule(matricule string) error {
	if !matriculeRegex.MatchString(matricule) {
		return fmt.Errorf("invalid matricule: %s", matricule)
	}
	return nil
}

// SanitizeString removes control characters, keeping tabs and line breaks
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}
