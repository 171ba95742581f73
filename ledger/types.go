/*
Package ledger provides the core personal-finance ledger engine.

PURPOSE:
  This package contains the domain model and algorithms for a
  confirmation-driven finance ledger: accounts with stored running balances,
  an atomic mutation engine, and a staged "pending action" lifecycle where
  every mutation is previewed and must be explicitly confirmed before it is
  applied.

KEY CONCEPTS IN THIS FILE (types.go):
  - User: an owner identified by an opaque external id
  - Account: named balance container in a single currency
  - Transaction: income, expense, or transfer touching one or two accounts
  - Typed identifiers for users, accounts, transactions, pending actions

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal (2 dp) to avoid floating-point drift
  2. Type Safety: Strong typing for IDs prevents mixing user/account IDs
  3. Reversibility: Every transaction's balance effect can be undone exactly
  4. Balances change only through the mutation engine, never directly

SEE ALSO:
  - engine.go: Balance-adjusting operations
  - pending.go: Staged-change records awaiting confirmation
  - confirm.go: The confirmation state machine
*/
package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type AccountID string
type TransactionID string
type ActionID string

func NewUserID() UserID               { return UserID(uuid.NewString()) }
func NewAccountID() AccountID         { return AccountID(uuid.NewString()) }
func NewTransactionID() TransactionID { return TransactionID(uuid.NewString()) }
func NewActionID() ActionID           { return ActionID(uuid.NewString()) }

// =============================================================================
// MONEY HELPERS
// =============================================================================

// Money amounts are fixed-point with two decimal places. Quantize is applied
// at every engine boundary so stored balances never accumulate sub-cent dust.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// USER
// =============================================================================

// User is created on first contact and never hard-deleted.
type User struct {
	ID         UserID
	ExternalID string // opaque identity from the transport layer
	Timezone   string

	// DefaultAccountID is the account used when a mutation omits an explicit
	// account reference. Nil when the user has no accounts yet.
	DefaultAccountID *AccountID

	// SpreadsheetRef is an optional external-spreadsheet reference kept for
	// the import/export collaborators. Opaque to this package.
	SpreadsheetRef string

	CreatedAt time.Time
}

const DefaultTimezone = "Europe/London"

// =============================================================================
// ACCOUNT
// =============================================================================

// Account holds a stored running balance in a single currency.
//
// INVARIANTS:
//   - Name is unique per user (case-insensitive), enforced by validation.
//   - At most one account per user has IsDefault set.
//   - Balance equals the sum of signed effects of all non-reversed
//     transactions since creation; only the engine mutates it.
type Account struct {
	ID        AccountID
	UserID    UserID
	Name      string
	Currency  string
	Balance   decimal.Decimal
	IsDefault bool
	CreatedAt time.Time
}

// =============================================================================
// TRANSACTION
// =============================================================================

type TransactionType string

const (
	TxIncome   TransactionType = "income"
	TxExpense  TransactionType = "expense"
	TxTransfer TransactionType = "transfer"
)

// Transaction records a single balance-affecting event. Income and expense
// reference one account; a transfer references a source and a destination,
// and may carry a distinct credited amount for cross-currency moves.
type Transaction struct {
	ID     TransactionID
	UserID UserID
	Type   TransactionType

	Amount   decimal.Decimal
	Currency string

	AccountID     *AccountID // income/expense
	FromAccountID *AccountID // transfer
	ToAccountID   *AccountID // transfer

	// Credited leg of a cross-currency transfer. Nil/empty when the transfer
	// is same-currency.
	ToAmount   *decimal.Decimal
	ToCurrency string

	Category    string
	Subcategory string
	Description string

	// OperationDate is the user-local time the operation happened, used for
	// ordering and reporting. Distinct from CreatedAt.
	OperationDate time.Time
	CreatedAt     time.Time
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	From  *time.Time
	To    *time.Time
	Type  TransactionType // empty = all
	Limit int             // 0 = store default
}

// NumberedTransaction pairs a transaction with its 1-based row number in a
// most-recent-first listing. Row numbers are how users reference
// transactions in edit/delete commands.
type NumberedTransaction struct {
	Row int
	Tx  Transaction
}

// =============================================================================
// NORMALIZATION HELPERS
// =============================================================================

// normalizeName lowercases and trims a user-supplied name for matching.
func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeCurrency canonicalizes a currency code for storage.
func normalizeCurrency(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// =============================================================================
// TIME HELPERS
// =============================================================================

// NowInTimezone returns the current time in the named IANA timezone, falling
// back to UTC when the name does not resolve.
func NowInTimezone(tz string) time.Time {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Now().UTC()
	}
	return time.Now().In(loc)
}

// ParseOperationDate accepts RFC3339 or plain YYYY-MM-DD date strings,
// localizing naive values to the given timezone.
func ParseOperationDate(s, tz string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, loc); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
