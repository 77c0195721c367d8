package business

import (
	"errors"
	"fmt"
	"time"
)

// Terminal failure reasons surfaced by the engines. Handlers map these onto
// HTTP status codes; messages stay generic so callers cannot probe which
// accounts exist.
var (
	ErrInvalidCredential      = errors.New("invalid credentials")
	ErrInvalidCode            = errors.New("invalid verification code")
	ErrRateLimited            = errors.New("too many attempts")
	ErrInactive               = errors.New("account is deactivated")
	ErrExpired                = errors.New("expired")
	ErrQuotaExceeded          = errors.New("quota exceeded")
	ErrAlreadyLinkedElsewhere = errors.New("identity already linked to another account")
	ErrLastAuthMethod         = errors.New("cannot remove the last authentication method")
	ErrProtectedResource      = errors.New("system resource cannot be modified")
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
)

// RateLimitedError carries the retry hint alongside the sentinel.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}
