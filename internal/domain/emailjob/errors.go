package emailjob

import "errors"

var (
	ErrNotFound          = errors.New("email job not found")
	ErrAlreadyClaimed    = errors.New("email job already claimed")
	ErrIdempotencyExists = errors.New("email job idempotency key already exists")
)
