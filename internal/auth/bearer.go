// Package auth turns the credential presented at connection time into a
// verified Identity.
package auth

import (
	"errors"
	"strings"
)

var (
	// ErrMissingCredential is returned when no Authorization header was sent.
	ErrMissingCredential = errors.New("missing credential")
	// ErrMalformedCredential is returned when the header is not "<scheme> <token>".
	ErrMalformedCredential = errors.New("malformed credential")
)

// BearerToken extracts the token part of an Authorization header value.
// Only the second space-separated field is used; the scheme is not checked.
func BearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", ErrMissingCredential
	}

	parts := strings.Fields(header)
	if len(parts) < 2 {
		return "", ErrMalformedCredential
	}

	return parts[1], nil
}
