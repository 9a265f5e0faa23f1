// Package domain defines the persistence models for projects, their status
// history, and user API tokens. These types are mapped with GORM and shared
// across the repository, service, and HTTP layers.
package domain

import (
	"errors"
	"strings"
)

// Status is the health value attached to a status history entry.
type Status string

// The closed set of accepted status values.
const (
	StatusOperational Status = "operational"
	StatusDegraded    Status = "degraded"
	StatusOutage      Status = "outage"
	StatusMaintenance Status = "maintenance"
	StatusUnknown     Status = "unknown"
)

// ErrInvalidStatus is returned by ParseStatus for values outside the enum.
var ErrInvalidStatus = errors.New("invalid status")

var allStatuses = []Status{
	StatusOperational,
	StatusDegraded,
	StatusOutage,
	StatusMaintenance,
	StatusUnknown,
}

// Statuses returns the accepted values in display order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Valid reports whether s is one of the accepted values.
func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseStatus validates raw strictly. Surrounding whitespace is ignored but
// case is not folded, and legacy names such as "major_outage" are rejected.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", ErrInvalidStatus
	}
	return s, nil
}

// StatusList renders the accepted values as "a, b, c" for error messages.
func StatusList() string {
	parts := make([]string, len(allStatuses))
	for i, s := range allStatuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
