package entities

import "errors"

// Failure taxonomy shared by the store, ledger and engine layers.
var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrPoolFull            = errors.New("pool is full")
	ErrAlreadyJoined       = errors.New("player already joined pool")
	ErrAlreadyLocked       = errors.New("player already locked a number")
	ErrStaleWrite          = errors.New("concurrent modification detected")
	ErrTransactionDangling = errors.New("money moved without matching state change")
	ErrSyncExhausted       = errors.New("sync retry budget exhausted")
	ErrTryAgain            = errors.New("shared store did not accept the change, try again")

	ErrPoolNotFound        = errors.New("pool not found")
	ErrPoolClosed          = errors.New("pool is not accepting this action")
	ErrNotMember           = errors.New("player is not a member of this pool")
	ErrPlayerLocked        = errors.New("player has locked a number and cannot leave")
	ErrNumberOutOfRange    = errors.New("number is outside the pool range")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrIntentNotFound      = errors.New("intent not found")
)
