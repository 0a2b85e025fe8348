// Package errors contains helper functions and types to work with errors
package errors

import (
	"errors"
)

// Category defines error category
type Category int

const (
	// CategoryNoError indicates the absence of an error.
	CategoryNoError Category = iota
	// CategoryDataError The remote system sent data the sync cannot use,
	// for example an attendance record without shift times.
	CategoryDataError
	// CategoryUnauthorized The remote API rejected the credential (401) or
	// the credential exchange failed.
	CategoryUnauthorized
	// CategoryResourceNotFound A lookup found no matching record.
	CategoryResourceNotFound
	// CategoryDataConflict A write collided with existing data, e.g. a
	// duplicate key on insert.
	CategoryDataConflict
	// CategoryDependencyFailure A dependent service (remote API, cache,
	// database) is failing; the error is usually transient.
	CategoryDependencyFailure
	// CategoryGeneralError The service failed in an unexpected way.
	CategoryGeneralError
)

func (c Category) String() string {
	switch c {
	case CategoryDataError:
		return "CategoryDataError"
	case CategoryUnauthorized:
		return "CategoryUnauthorized"
	case CategoryResourceNotFound:
		return "CategoryResourceNotFound"
	case CategoryDataConflict:
		return "CategoryDataConflict"
	case CategoryDependencyFailure:
		return "CategoryDependencyFailure"
	default:
		return "CategoryGeneralError"
	}
}

// ServiceError represents service specific error type that
// is used all over the services.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

// Error method to comply with error interface
func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err ServiceError) Unwrap() error {
	return err.Err
}

// Is implements the custom condition to check an error is equal to a service error
func (err ServiceError) Is(target error) bool {
	return err.Message == target.Error()
}

// Is checks that provided error is a ServiceError with desired Category
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Category == cat {
		return true
	}
	return false
}

// AuthError returns an error with category Unauthorized. Raised when the
// credential exchange fails or the remote API rejects the bearer token.
func AuthError(err error, message string) error {
	if err == nil {
		err = errors.New("unauthorized: " + message)
	}
	return &ServiceError{
		Category: CategoryUnauthorized,
		Message:  message,
		Err:      err,
	}
}

// ValidationError returns an error with category DataError. Raised for
// malformed remote records; callers skip the record and continue.
func ValidationError(err error, message string) error {
	if err == nil {
		err = errors.New("invalid data: " + message)
	}
	return &ServiceError{
		Category: CategoryDataError,
		Message:  message,
		Err:      err,
	}
}

// ConflictError returns an error with category DataConflict. Raised for
// duplicate-key collisions; callers treat these as benign.
func ConflictError(err error, message string) error {
	if err == nil {
		err = errors.New("conflict: " + message)
	}
	return &ServiceError{
		Category: CategoryDataConflict,
		Message:  message,
		Err:      err,
	}
}

// TransientError returns an error with category DependencyFailure. Raised
// for per-page fetch failures; the sync abandons the current entity and
// moves on.
func TransientError(err error, message string) error {
	if err == nil {
		err = errors.New("dependency failure: " + message)
	}
	return &ServiceError{
		Category: CategoryDependencyFailure,
		Message:  message,
		Err:      err,
	}
}

// GeneralError returns a general service error for unexpected failures.
func GeneralError(err error) error {
	if err == nil {
		err = errors.New("internal error")
	}
	return &ServiceError{
		Category: CategoryGeneralError,
		Message:  "internal error",
		Err:      err,
	}
}
