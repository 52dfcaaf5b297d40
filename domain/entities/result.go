package entities

import "errors"

// Outcome is the discriminator of an engine Result
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeAlreadyJoined     Outcome = "already_joined"
	OutcomeAlreadyLocked     Outcome = "already_locked"
	OutcomeQueued            Outcome = "queued"
	OutcomeInsufficientFunds Outcome = "insufficient_funds"
	OutcomePoolFull          Outcome = "pool_full"
	OutcomePoolNotFound      Outcome = "pool_not_found"
	OutcomePoolClosed        Outcome = "pool_closed"
	OutcomeNotMember         Outcome = "not_member"
	OutcomePlayerLocked      Outcome = "player_locked"
	OutcomeInvalidNumber     Outcome = "invalid_number"
	OutcomeInvalidRequest    Outcome = "invalid_request"
	OutcomeTryAgain          Outcome = "try_again"
	OutcomeDangling          Outcome = "dangling"
	OutcomeUnauthenticated   Outcome = "unauthenticated"
	OutcomeError             Outcome = "error"
)

// IsSuccess reports whether the outcome leaves the caller's intent satisfied.
// Idempotent short-circuits and queued intents count as success.
func (o Outcome) IsSuccess() bool {
	switch o {
	case OutcomeSuccess, OutcomeAlreadyJoined, OutcomeAlreadyLocked, OutcomeQueued:
		return true
	}
	return false
}

// Result is what every public engine call returns instead of an error
type Result struct {
	Outcome     Outcome      `json:"outcome"`
	Message     string       `json:"message"`
	Pool        *Pool        `json:"pool,omitempty"`
	Transaction *Transaction `json:"transaction,omitempty"`
	Refund      int64        `json:"refund,omitempty"`
	IntentID    string       `json:"intent_id,omitempty"`
	Err         error        `json:"-"`
}

// OK reports whether the result counts as success
func (r Result) OK() bool {
	return r.Outcome.IsSuccess()
}

var outcomeMessages = map[Outcome]string{
	OutcomeSuccess:           "Done.",
	OutcomeAlreadyJoined:     "You are already in this pool.",
	OutcomeAlreadyLocked:     "Your number is already locked in.",
	OutcomeQueued:            "You are offline. The request was queued and will sync when you reconnect.",
	OutcomeInsufficientFunds: "Your balance is too low for this entry fee.",
	OutcomePoolFull:          "This pool just filled up.",
	OutcomePoolNotFound:      "That pool does not exist.",
	OutcomePoolClosed:        "This pool is no longer accepting that action.",
	OutcomeNotMember:         "You are not in this pool.",
	OutcomePlayerLocked:      "You already locked a number and cannot leave this round.",
	OutcomeInvalidNumber:     "That number is outside the pool range.",
	OutcomeInvalidRequest:    "The request is invalid.",
	OutcomeTryAgain:          "The pool is busy right now. Please try again.",
	OutcomeDangling:          "Something went wrong with your payment. Support has been notified.",
	OutcomeUnauthenticated:   "Please sign in first.",
	OutcomeError:             "Something went wrong. Please try again.",
}

// NewResult builds a result with the default user-facing message for outcome
func NewResult(outcome Outcome) Result {
	return Result{Outcome: outcome, Message: outcomeMessages[outcome]}
}

// FailureResult classifies err into the failure taxonomy
func FailureResult(err error) Result {
	result := NewResult(OutcomeFor(err))
	result.Err = err
	return result
}

// OutcomeFor maps a sentinel error to its outcome
func OutcomeFor(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrTransactionDangling):
		return OutcomeDangling
	case errors.Is(err, ErrInsufficientFunds):
		return OutcomeInsufficientFunds
	case errors.Is(err, ErrPoolFull):
		return OutcomePoolFull
	case errors.Is(err, ErrAlreadyJoined):
		return OutcomeAlreadyJoined
	case errors.Is(err, ErrAlreadyLocked):
		return OutcomeAlreadyLocked
	case errors.Is(err, ErrPoolNotFound):
		return OutcomePoolNotFound
	case errors.Is(err, ErrPoolClosed):
		return OutcomePoolClosed
	case errors.Is(err, ErrNotMember):
		return OutcomeNotMember
	case errors.Is(err, ErrPlayerLocked):
		return OutcomePlayerLocked
	case errors.Is(err, ErrNumberOutOfRange):
		return OutcomeInvalidNumber
	case errors.Is(err, ErrStaleWrite), errors.Is(err, ErrTryAgain):
		return OutcomeTryAgain
	default:
		return OutcomeError
	}
}
