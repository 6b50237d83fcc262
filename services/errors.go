package services

import (
	"errors"
	"fmt"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrProjectInactive = errors.New("project is inactive")

	// ErrNoProviders means no enabled chat surface has an API key configured.
	ErrNoProviders        = errors.New("no configured provider for the enabled surfaces")
	ErrNoHealthyProviders = errors.New("no healthy providers")
	ErrNoQueries          = errors.New("project has no active queries")
)

// Actions suggested to the user when quota runs out.
const (
	ActionUpgrade        = "upgrade"
	ActionContactSupport = "contact_support"
)

// QuotaExceededError stops a SERP run. It is raised both by the local quota
// gate and when the upstream search account is exhausted.
type QuotaExceededError struct {
	Plan           string `json:"plan"`
	QuotaUsed      int    `json:"quota_used"`
	QuotaLimit     int    `json:"quota_limit"`
	ActionRequired string `json:"action_required"`
	Message        string `json:"message"`
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded (%d/%d on plan %q): %s", e.QuotaUsed, e.QuotaLimit, e.Plan, e.Message)
}

// IsQuotaExceeded reports whether err carries a QuotaExceededError.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// ValidationError rejects an inconsistent project before any write.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid project %s: %s", e.Field, e.Reason)
}
