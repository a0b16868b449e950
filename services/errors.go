package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("kyc record not found")
	ErrStepOutOfOrder       = errors.New("capture is out of order for this record")
	ErrNotEditable          = errors.New("kyc record can no longer be changed")
	ErrNotReady             = errors.New("kyc record is missing required documents")
	ErrConfirmationRequired = errors.New("details must be confirmed before submission")
	ErrInvalidTransition    = errors.New("status transition is not allowed")
)

// ValidationError carries a user facing message for one input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }

func invalid(field, message string) error { return &ValidationError{Field: field, Message: message} }

// QualityError is returned when a captured frame fails the quality gate.
type QualityError struct {
	Report QualityReport
}

func (e *QualityError) Error() string { return e.Report.Message() }
