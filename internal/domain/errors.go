package domain

import "errors"

var (
	ErrQuoteNotFound  = errors.New("quote not found")
	ErrScriptNotFound = errors.New("script not found")
	ErrAlertNotFound  = errors.New("alert not found")
	ErrInvalidScript  = errors.New("invalid script")
	ErrInvalidAlert   = errors.New("invalid alert")
	ErrTooManyViewers = errors.New("too many viewers")
)
