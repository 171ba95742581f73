/*
store.go - Persistence interface for users, accounts, transactions, actions

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:   Entity persistence (users, accounts, transactions, pending actions)
  TxStore: Transactional scope for atomic multi-write operations

ATOMICITY:
  Every balance read-modify-write runs inside WithTx so a concurrent reader
  never observes a half-applied transfer. The pending-action status update
  UpdatePendingStatus is a compare-and-set: it fails unless the current
  status matches the expected one, which is what makes double-confirmation
  impossible when executed in the same transaction as the apply.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - ledger/store/memory.go: In-memory for testing
*/
package ledger

import "context"

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// Users
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id UserID) (*User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error

	// Accounts. ListAccounts returns accounts in creation order — the fuzzy
	// name resolver depends on that ordering.
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, id AccountID) (*Account, error)
	ListAccounts(ctx context.Context, userID UserID) ([]Account, error)
	UpdateAccount(ctx context.Context, a *Account) error
	DeleteAccount(ctx context.Context, id AccountID) error
	DeleteAccountsByUser(ctx context.Context, userID UserID) (int, error)

	// Transactions. ListTransactions returns most-recent-first by
	// operation date.
	CreateTransaction(ctx context.Context, t *Transaction) error
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)
	ListTransactions(ctx context.Context, userID UserID, f TransactionFilter) ([]Transaction, error)
	UpdateTransaction(ctx context.Context, t *Transaction) error
	DeleteTransaction(ctx context.Context, id TransactionID) error
	DeleteTransactionsByUser(ctx context.Context, userID UserID) (int, error)

	// Pending actions. UpdatePendingStatus is a compare-and-set: it returns
	// ErrAlreadyProcessed when the current status differs from `from`.
	CreatePendingAction(ctx context.Context, p *PendingAction) error
	GetPendingAction(ctx context.Context, id ActionID) (*PendingAction, error)
	UpdatePendingStatus(ctx context.Context, id ActionID, from, to PendingStatus) error
	SetPreviewMessage(ctx context.Context, id ActionID, messageID int64) error
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a storage transaction.
	// If fn returns an error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
