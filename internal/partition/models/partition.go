package models

import (
	"strings"

	dErrors "voterstore/pkg/domain-errors"
)

// MaxNameLength matches the Postgres identifier limit so every valid name can
// be a table name unchanged.
const MaxNameLength = 63

// ReservedPrefixes are engine-internal namespaces that are never selectable.
var ReservedPrefixes = []string{"system.", "pg_"}

// IsReserved reports whether name lives in an engine-reserved namespace.
func IsReserved(name string) bool {
	for _, p := range ReservedPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// SanitizeName trims name and reports whether it is usable as a partition
// name: non-empty, no NUL byte, not reserved, within MaxNameLength.
func SanitizeName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsRune(name, 0) {
		return "", false
	}
	if IsReserved(name) || len(name) > MaxNameLength {
		return "", false
	}
	return name, true
}

// ValidateName is SanitizeName for trust boundaries that must reject instead
// of ignore.
func ValidateName(name string) (string, error) {
	clean, ok := SanitizeName(name)
	if !ok {
		return "", dErrors.New(dErrors.CodeValidation, "invalid partition name")
	}
	return clean, nil
}
