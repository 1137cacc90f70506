package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ParseString returns the value of the environment variable key, or
// defaultValue if unset or blank.
func ParseString(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

// ParseInt returns the integer value of the environment variable key,
// or defaultValue if unset or unparsable.
func ParseInt(key string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

// ParseFloat returns the float value of the environment variable key,
// or defaultValue if unset or unparsable.
func ParseFloat(key string, defaultValue float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// ParseDuration returns the duration value of the environment variable
// key, or defaultValue if unset or unparsable.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

// ParseBool returns the boolean value of the environment variable key,
// or defaultValue if unset or unparsable.
func ParseBool(key string, defaultValue bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}
