package apperr

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrIntegrity = errors.New("annotated directory has annotated descendants")
	ErrNotChild  = errors.New("listed path is not a child of its parent")
)
