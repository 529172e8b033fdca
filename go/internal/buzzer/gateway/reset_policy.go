package gateway

import (
	"crypto/subtle"
	"errors"
	"fmt"
)

var ErrResetNotAllowed = errors.New("reset not allowed")

// ResetMode selects who may re-arm the contest.
type ResetMode string

const (
	// ResetOpen lets any observer or HTTP caller reset.
	ResetOpen ResetMode = "open"
	// ResetToken requires the configured admin token.
	ResetToken ResetMode = "token"
)

// ParseResetMode validates a configured mode string.
func ParseResetMode(s string) (ResetMode, error) {
	switch ResetMode(s) {
	case ResetOpen, ResetToken:
		return ResetMode(s), nil
	default:
		return "", fmt.Errorf("unknown reset policy %q", s)
	}
}

type ResetPolicy struct {
	Mode  ResetMode
	Token string
}

// OpenResetPolicy allows every reset request.
func OpenResetPolicy() ResetPolicy {
	return ResetPolicy{Mode: ResetOpen}
}

// Authorize returns ErrResetNotAllowed when token does not satisfy the policy.
func (p ResetPolicy) Authorize(token string) error {
	switch p.Mode {
	case ResetOpen, "":
		return nil
	case ResetToken:
		if p.Token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(p.Token)) != 1 {
			return ErrResetNotAllowed
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown policy %q", ErrResetNotAllowed, p.Mode)
	}
}
