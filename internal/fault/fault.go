// Package fault holds the daemon-wide error taxonomy. Every failure
// that crosses the command boundary is one of these sentinels, possibly
// wrapped with call-site detail, so the dispatcher can map errors to a
// uniform reply without string matching.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized reports that a required role account was not
	// bootstrapped before use.
	ErrNotInitialized = errors.New("role account is not initialized")

	// ErrUnknownAccount reports an account reference that names no
	// known role and is not an encoded identifier.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrDecode reports a malformed externally-encoded identifier.
	ErrDecode = errors.New("identifier decode failed")

	// ErrEmptyVault reports a transfer attempt from an account whose
	// vault holds no assets.
	ErrEmptyVault = errors.New("vault is empty")

	// ErrNoConsumableNotes reports a consume attempt against an
	// account with zero consumable notes.
	ErrNoConsumableNotes = errors.New("no consumable notes")

	// ErrTransportUnavailable reports that the command queue is full
	// or the worker is no longer accepting commands.
	ErrTransportUnavailable = errors.New("command transport unavailable")

	// ErrInternalComm reports that the worker terminated before
	// replying to an accepted command.
	ErrInternalComm = errors.New("internal communication error")

	// ErrThresholdNotMet reports a failed business-rule check.
	ErrThresholdNotMet = errors.New("threshold not met")

	// ErrNetwork wraps a failed call into the underlying ledger.
	ErrNetwork = errors.New("ledger network failure")
)

// Network wraps a ledger-client error into the network sentinel while
// keeping the original cause on the chain.
func Network(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

// Category buckets an error for metrics and reply mapping.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrUnknownAccount), errors.Is(err, ErrNotInitialized):
		return "account"
	case errors.Is(err, ErrEmptyVault):
		return "vault"
	case errors.Is(err, ErrNoConsumableNotes):
		return "notes"
	case errors.Is(err, ErrTransportUnavailable):
		return "transport"
	case errors.Is(err, ErrInternalComm):
		return "internal"
	case errors.Is(err, ErrThresholdNotMet):
		return "rule"
	case errors.Is(err, ErrNetwork):
		return "network"
	default:
		return "api"
	}
}
