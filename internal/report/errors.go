package report

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown report ids.
	ErrNotFound = errors.New("report not found")
	// ErrInvalidState is returned for transitions the lifecycle does not allow,
	// including a resolve that lost a race.
	ErrInvalidState = errors.New("report is not pending")
	// ErrDetection wraps any failure or timeout of the detector.
	ErrDetection = errors.New("defect detection unavailable")
	// ErrForbidden is returned when the caller may not act on the report.
	ErrForbidden = errors.New("not allowed to modify this report")
)

// ValidationError describes a missing or malformed submission field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// AuditRejectedError means the resolution image still shows defects.
type AuditRejectedError struct {
	DetectedCount int
}

func (e *AuditRejectedError) Error() string {
	return fmt.Sprintf("audit rejected: %d defect(s) still detected", e.DetectedCount)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func detectionFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrDetection, err)
}
