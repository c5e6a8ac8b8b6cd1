package state

import "errors"

var (
	ErrNameTaken = errors.New("username already in use")
	ErrNotNamed  = errors.New("session has no username")
)
