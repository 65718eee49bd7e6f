package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	VideoIDValidator   = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	VideoPathValidator = regexp.MustCompile(`^[a-zA-Z0-9._/-]+$`)
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingField    = errors.New("missing required field")
)

const (
	maxVideoIDLen   = 255
	maxVideoPathLen = 1024
)

// ValidateVideoID checks a catalog id.
func ValidateVideoID(id string) error {
	if id == "" {
		return ErrMissingField
	}
	if len(id) > maxVideoIDLen {
		return ErrInvalidInput
	}
	if !VideoIDValidator.MatchString(id) {
		return ErrInvalidInput
	}
	return nil
}

// ValidateVideoPath checks a relative object key such as "movies/a.mp4".
// Absolute paths and ".." segments are refused.
func ValidateVideoPath(path string) error {
	if path == "" {
		return ErrMissingField
	}
	if len(path) > maxVideoPathLen {
		return ErrInvalidInput
	}
	if !VideoPathValidator.MatchString(path) || strings.HasPrefix(path, "/") {
		return ErrInvalidInput
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return ErrInvalidInput
		}
	}
	return nil
}
