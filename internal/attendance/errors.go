package attendance

import "errors"

var (
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidDate   = errors.New("date must be YYYY-MM-DD")
	ErrNotOwner      = errors.New("teacher does not own this class")
	ErrNotEnrolled   = errors.New("student is not enrolled in this class")
	ErrAlreadyMarked = errors.New("attendance already marked for today")
	ErrClassNotFound = errors.New("class not found")

	// ErrDuplicateKey is returned by a Store when the uniqueness constraint rejects an insert.
	ErrDuplicateKey = errors.New("duplicate attendance key")
)
