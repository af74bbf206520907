package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultBaseVersion is the version assumed when a product has no history.
const DefaultBaseVersion = "1.0"

// ErrInvalidVersionID indicates a version id that is not a decimal number.
var ErrInvalidVersionID = errors.New("domain: invalid version id")

// ParseVersionID converts a version id such as "3.0" into its numeric value.
func ParseVersionID(id string) (float64, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidVersionID)
	}
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidVersionID, id)
	}
	return value, nil
}

// FormatVersionID renders a numeric version with exactly one decimal place.
func FormatVersionID(value float64) string {
	return strconv.FormatFloat(value, 'f', 1, 64)
}

// LatestVersion returns the id of the most recently created entry of history. Entries created at
// the same instant are ordered by numeric id, the higher id counting as more recent.
func LatestVersion(history []VersionHistoryEntry) (string, error) {
	if len(history) == 0 {
		return DefaultBaseVersion, nil
	}

	type ranked struct {
		entry VersionHistoryEntry
		value float64
	}
	items := make([]ranked, 0, len(history))
	for _, entry := range history {
		value, err := ParseVersionID(entry.VersionID)
		if err != nil {
			return "", err
		}
		items = append(items, ranked{entry: entry, value: value})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].entry.CreatedAt.Equal(items[j].entry.CreatedAt) {
			return items[i].entry.CreatedAt.After(items[j].entry.CreatedAt)
		}
		return items[i].value > items[j].value
	})
	return items[0].entry.VersionID, nil
}

// NextVersionID increments the most recently created version by one.
func NextVersionID(history []VersionHistoryEntry) (string, error) {
	base, err := LatestVersion(history)
	if err != nil {
		return "", err
	}
	value, err := ParseVersionID(base)
	if err != nil {
		return "", err
	}
	return FormatVersionID(value + 1.0), nil
}
