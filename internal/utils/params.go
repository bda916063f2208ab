package utils

import (
	"fmt"
	"net/url"
	"strconv"
)

func invalidValue(key string) string {
	return fmt.Sprintf("Invalid field value for field %q.", key)
}

// ParseFloatParam retrieves a float64 value from the provided URL query parameters.
// If the key is missing or the value is invalid it returns 0; invalid values are
// also recorded in fieldErrors.
func ParseFloatParam(params url.Values, key string, fieldErrors map[string][]string) (float64, map[string][]string) {
	if fieldErrors == nil {
		fieldErrors = make(map[string][]string)
	}

	val := params.Get(key)
	if val == "" {
		return 0, fieldErrors
	}

	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		fieldErrors[key] = append(fieldErrors[key], invalidValue(key))
		return 0, fieldErrors
	}
	return f, fieldErrors
}

// ParseOptionalFloat is ParseFloatParam for parameters where absence differs from zero.
func ParseOptionalFloat(params url.Values, key string, fieldErrors map[string][]string) (*float64, map[string][]string) {
	if params.Get(key) == "" {
		if fieldErrors == nil {
			fieldErrors = make(map[string][]string)
		}
		return nil, fieldErrors
	}
	f, fieldErrors := ParseFloatParam(params, key, fieldErrors)
	if len(fieldErrors[key]) > 0 {
		return nil, fieldErrors
	}
	return &f, fieldErrors
}

func ParseOptionalInt(params url.Values, key string, fieldErrors map[string][]string) (*int, map[string][]string) {
	if fieldErrors == nil {
		fieldErrors = make(map[string][]string)
	}
	val := params.Get(key)
	if val == "" {
		return nil, fieldErrors
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		fieldErrors[key] = append(fieldErrors[key], invalidValue(key))
		return nil, fieldErrors
	}
	return &n, fieldErrors
}

func ParseOptionalBool(params url.Values, key string, fieldErrors map[string][]string) (*bool, map[string][]string) {
	if fieldErrors == nil {
		fieldErrors = make(map[string][]string)
	}
	val := params.Get(key)
	if val == "" {
		return nil, fieldErrors
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		fieldErrors[key] = append(fieldErrors[key], invalidValue(key))
		return nil, fieldErrors
	}
	return &b, fieldErrors
}
