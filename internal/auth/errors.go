package auth

import "errors"

var (
	ErrKeyNotFound  = errors.New("api key not found")
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidHash  = errors.New("invalid argon2id hash")
)
