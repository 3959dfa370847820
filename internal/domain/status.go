// Package domain holds the pure types shared by every layer of pfp:
// file statuses, analysis records, sentinel errors and service interfaces.
package domain

import (
	"fmt"
	"strings"
)

// FileStatus tracks one file's lifecycle inside a batch.
//
//	Pending → Processing → Done | Error | Cancelled
type FileStatus int

const (
	StatusPending FileStatus = iota
	StatusProcessing
	StatusDone
	StatusError
	StatusCancelled
)

var statusNames = [...]string{
	StatusPending:    "Pending",
	StatusProcessing: "Processing",
	StatusDone:       "Done",
	StatusError:      "Error",
	StatusCancelled:  "Cancelled",
}

func (s FileStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("FileStatus(%d)", int(s))
	}
	return statusNames[s]
}

// IsTerminal returns true once the file can no longer change status.
func (s FileStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusError || s == StatusCancelled
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to FileStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to.IsTerminal()
	default:
		return false
	}
}

// ParseFileStatus is the inverse of String; matching is case-insensitive.
func ParseFileStatus(s string) (FileStatus, error) {
	for i, name := range statusNames {
		if strings.EqualFold(name, s) {
			return FileStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown file status %q", s)
}

// MarshalText renders the status by name so JSON and TOML stay readable.
func (s FileStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *FileStatus) UnmarshalText(b []byte) error {
	v, err := ParseFileStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
