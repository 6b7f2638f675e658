package notification

import "errors"

var (
	ErrNotFound   = errors.New("notification not found")
	ErrNotOwner   = errors.New("notification belongs to another user")
	ErrValidation = errors.New("validation error")
)
