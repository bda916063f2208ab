package utils

import (
	"errors"
	"regexp"
	"strings"
)

var (
	validIDPattern   = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	dangerousPattern = regexp.MustCompile(`[<>]|--|\/\*|\*\/|;.*--`)
	htmlTagPattern   = regexp.MustCompile(`<[^>]*>`)
)

// ValidateID accepts place ids (UUIDs) and other short ASCII identifiers.
func ValidateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}
	if len(id) > 100 {
		return errors.New("id too long (max 100 characters)")
	}
	if !validIDPattern.MatchString(id) {
		return errors.New("id contains invalid characters")
	}
	return nil
}

// ValidateQuery checks free-text search and address input. Empty is allowed.
func ValidateQuery(query string) error {
	if query == "" {
		return nil
	}
	if len(query) > 200 {
		return errors.New("query too long (max 200 characters)")
	}
	if dangerousPattern.MatchString(query) {
		return errors.New("query contains invalid characters")
	}
	return nil
}

func ValidateLatitude(lat float64) error {
	if lat < -90.0 || lat > 90.0 {
		return errors.New("latitude must be between -90 and 90")
	}
	return nil
}

func ValidateLongitude(lon float64) error {
	if lon < -180.0 || lon > 180.0 {
		return errors.New("longitude must be between -180 and 180")
	}
	return nil
}

// SanitizeInput strips HTML tags and surrounding whitespace.
func SanitizeInput(input string) string {
	return strings.TrimSpace(htmlTagPattern.ReplaceAllString(input, ""))
}

func ValidateAndSanitizeQuery(query string) (string, error) {
	if err := ValidateQuery(query); err != nil {
		return "", err
	}
	return SanitizeInput(query), nil
}

// ValidateLocationParams collects coordinate range errors keyed by parameter name.
func ValidateLocationParams(lat, lon float64) map[string][]string {
	fieldErrors := make(map[string][]string)
	if err := ValidateLatitude(lat); err != nil {
		fieldErrors["lat"] = append(fieldErrors["lat"], err.Error())
	}
	if err := ValidateLongitude(lon); err != nil {
		fieldErrors["lon"] = append(fieldErrors["lon"], err.Error())
	}
	return fieldErrors
}
