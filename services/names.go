package services

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"pongmatch/models"
)

const maxNameLength = 64

// NormalizeName returns the canonical form of a player name, so that
// visually identical names map to the same record.
func NormalizeName(name string) (string, error) {
	n := strings.TrimSpace(norm.NFC.String(name))
	if n == "" {
		return "", invalid("player name is required")
	}
	if utf8.RuneCountInString(n) > maxNameLength {
		return "", invalid("player name %q is longer than %d characters", n, maxNameLength)
	}
	if n == models.AnyoneName {
		return "", invalid("player name %q is reserved", n)
	}
	return n, nil
}
