package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflicting state")
	ErrTemporary    = errors.New("temporary failure")

	// Pipeline taxonomy.
	ErrExtractionFailed   = errors.New("extraction failed")
	ErrValidationFailed   = errors.New("extracted data validation failed")
	ErrApprovalFailed     = errors.New("approval failed")
	ErrActivationRejected = errors.New("activation rejected")
	ErrInsufficientData   = errors.New("insufficient training data")
	ErrTrainingJobFailed  = errors.New("training job failed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
