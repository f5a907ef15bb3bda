package session

import "errors"

// Error taxonomy surfaced to the presentation layer. Validation and
// authentication failures are locally recoverable (re-prompt or retry);
// not-found and full are terminal for the attempted action; store failures
// mean the same action may be retried.
var (
	ErrNotAuthenticated = errors.New("no player identity yet")
	ErrValidation       = errors.New("invalid input")
	ErrNotFound         = errors.New("game not found")
	ErrGameFull         = errors.New("game is already full")
	ErrStore            = errors.New("store failure")
)
