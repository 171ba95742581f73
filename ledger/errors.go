/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify with errors.Is / errors.As; the HTTP layer maps these
  onto status codes.

ERROR CATEGORIES:
  1. Lookup errors   - missing users, accounts, transactions, actions
  2. Domain errors   - business-rule violations (balance, currency, emptiness)
  3. Lifecycle errors - pending-action state machine violations
  4. Validation       - per-intent deficiency lists

Nothing here is fatal: every error is local to one mutation or one pending
action and leaves the store in a well-defined state.
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUserNotFound is returned when a referenced user doesn't exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrAccountNotFound is returned when a referenced account doesn't exist
	// or belongs to a different user.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransactionNotFound is returned when a referenced transaction
	// doesn't exist or belongs to a different user.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrActionNotFound is returned when a pending action id is unknown.
	ErrActionNotFound = errors.New("pending action not found")

	// ErrInsufficientBalance is returned when an expense or transfer would
	// overdraw the source account.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAccountNotEmpty is returned when deleting an account whose balance
	// is not exactly zero.
	ErrAccountNotEmpty = errors.New("account balance is not zero")

	// ErrCurrencyMismatch is returned when a caller-supplied currency does
	// not match the resolved account's currency.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrForbidden is returned when the requester does not own the pending
	// action. Security-relevant; never leaks action contents.
	ErrForbidden = errors.New("forbidden")

	// ErrActionExpired is returned when confirming past the expiry time.
	// The action transitions to expired and no mutation is applied.
	ErrActionExpired = errors.New("pending action expired")

	// ErrAlreadyProcessed is returned when confirming an action that has
	// already been confirmed, cancelled, or expired. A no-op by contract.
	ErrAlreadyProcessed = errors.New("pending action already processed")

	// ErrUnsupportedEdit is returned when editing the amount of a transfer.
	// The engine only re-adjusts balances for income and expense edits.
	ErrUnsupportedEdit = errors.New("transfer amount edits are not supported")

	// ErrSameAccountTransfer is returned when a transfer names the same
	// account as source and destination. Without this check the credit write
	// would overwrite the debit write and create money from nothing.
	ErrSameAccountTransfer = errors.New("source and destination accounts are identical")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports a balance shortage on a named account.
type InsufficientBalanceError struct {
	AccountName string
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on %q: available %s, requested %s",
		e.AccountName, e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// CurrencyMismatchError reports a caller currency that conflicts with the
// resolved account's currency. The engine never auto-converts.
type CurrencyMismatchError struct {
	AccountName     string
	AccountCurrency string
	GivenCurrency   string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency %s given, but account %q is in %s",
		e.GivenCurrency, e.AccountName, e.AccountCurrency)
}

func (e *CurrencyMismatchError) Unwrap() error { return ErrCurrencyMismatch }

// AccountNotEmptyError reports the blocking balance on a delete attempt.
type AccountNotEmptyError struct {
	AccountName string
	Balance     decimal.Decimal
}

func (e *AccountNotEmptyError) Error() string {
	return fmt.Sprintf("cannot delete account %q with non-zero balance %s",
		e.AccountName, e.Balance.StringFixed(2))
}

func (e *AccountNotEmptyError) Unwrap() error { return ErrAccountNotEmpty }

// ValidationError carries the human-readable deficiency list produced by the
// validation layer. No state has changed when this is returned.
type ValidationError struct {
	Deficiencies []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Deficiencies, "; ")
}

// ClarificationError signals that the intent is plausible but needs one more
// piece of information from the user (e.g. the credited amount of a
// cross-currency transfer). Not a hard validation failure.
type ClarificationError struct {
	Prompt string
}

func (e *ClarificationError) Error() string { return "clarification needed: " + e.Prompt }

// PartialBatchError reports a batch where some sub-operations applied and
// some failed. Sub-operations commit independently; the successes listed in
// the accompanying ApplyResult stand.
type PartialBatchError struct {
	Succeeded int
	Total     int
	Failures  []BatchFailure
}

// BatchFailure ties an error to the 1-based index of the failed operation.
type BatchFailure struct {
	Index int
	Err   string
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("%d of %d operations succeeded", e.Succeeded, e.Total)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrActionNotFound)
}

// IsClientError reports whether the error is due to invalid client input or
// a domain-rule violation, as opposed to a store failure.
func IsClientError(err error) bool {
	var ve *ValidationError
	var ce *ClarificationError
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrAccountNotEmpty) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrUnsupportedEdit) ||
		errors.Is(err, ErrSameAccountTransfer) ||
		errors.As(err, &ve) ||
		errors.As(err, &ce)
}
