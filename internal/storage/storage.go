package storage

import "errors"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUserNameExists = errors.New("user name already exists")
	ErrEmailExists    = errors.New("email already exists")
)
