package arena

import "errors"

var (
	ErrNotFound     = errors.New("battle not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidState = errors.New("invalid state")
)
