package services

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Field bounds, in runes, measured after trimming.
const (
	DemandContentMin = 50
	DemandContentMax = 1000
	SupplyContentMin = 30
	SupplyContentMax = 1000
	QueryMin         = 30
	QueryMax         = 500
	PhoneMin         = 5
	PhoneMax         = 20
	DaysMin          = 1
	DaysMax          = 180
)

var (
	markupRE     = regexp.MustCompile(`[<>'"]`)
	whitespaceRE = regexp.MustCompile(`\s+`)

	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New() })
	return validate
}

// sanitize strips markup characters and collapses whitespace.
func sanitize(s string) string {
	s = markupRE.ReplaceAllString(s, "")
	s = whitespaceRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// cleanText trims s, checks its rune length and returns the sanitized value.
func cleanText(field, s string, min, max int) (string, error) {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	if n < min {
		return "", invalid(field, "must be at least "+strconv.Itoa(min)+" characters")
	}
	if n > max {
		return "", invalid(field, "must be at most "+strconv.Itoa(max)+" characters")
	}
	return sanitize(s), nil
}

func cleanEmail(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if err := validatorInstance().Var(s, "required,email,max=254"); err != nil {
		return "", invalid("email", "must be a valid email address")
	}
	return s, nil
}

// cleanPhone accepts an empty value; otherwise it enforces the length bounds.
func cleanPhone(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	n := utf8.RuneCountInString(s)
	if n < PhoneMin || n > PhoneMax {
		return "", invalid("phone", "must be between "+strconv.Itoa(PhoneMin)+" and "+strconv.Itoa(PhoneMax)+" characters")
	}
	return sanitize(s), nil
}

func checkDays(days int) error {
	if days < DaysMin || days > DaysMax {
		return invalid("days", "must be between "+strconv.Itoa(DaysMin)+" and "+strconv.Itoa(DaysMax))
	}
	return nil
}

func checkID(field, id string) error {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return invalid(field, "must be a UUID")
	}
	return nil
}

func checkUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return invalid("user_id", "is required")
	}
	return nil
}
