/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.Store and ledger.TxStore using SQLite. In production, the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  users:           Owners, keyed by opaque external id
  accounts:        Named balance containers (balance stored as decimal text)
  transactions:    Income/expense/transfer history
  pending_actions: Staged mutations awaiting confirmation

TRANSACTION SCOPE:
  Every statement goes through a querier, which is either the root *sql.DB or
  the *sql.Tx opened by WithTx. Reads inside WithTx therefore observe writes
  made earlier in the same transaction; the bulk-import flow depends on that
  (it clears tables and re-reads within one transaction).

STATUS CAS:
  UpdatePendingStatus is a guarded UPDATE (WHERE status = ?). Zero rows
  affected means the action is missing or already resolved, which is how
  concurrent confirms of the same action are serialized.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode. Multiple readers
  don't block; a single writer at a time.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/finbot/ledger-engine/ledger"
	_ "github.com/mattn/go-sqlite3"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx so every statement can run
// either standalone or inside a WithTx scope.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		timezone TEXT NOT NULL,
		default_account_id TEXT,
		spreadsheet_ref TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		currency TEXT NOT NULL,
		balance TEXT NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Creation order drives fuzzy name resolution; rowid preserves it even
	-- when created_at timestamps collide.
	CREATE INDEX IF NOT EXISTS idx_accounts_user
		ON accounts(user_id);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		account_id TEXT,
		from_account_id TEXT,
		to_account_id TEXT,
		to_amount TEXT,
		to_currency TEXT,
		category TEXT,
		subcategory TEXT,
		description TEXT,
		operation_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Hot path: most-recent-first listings per user
	CREATE INDEX IF NOT EXISTS idx_transactions_user_date
		ON transactions(user_id, operation_date DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_type
		ON transactions(tx_type);

	CREATE TABLE IF NOT EXISTS pending_actions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		preview_message_id INTEGER,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pending_actions_user_status
		ON pending_actions(user_id, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// USERS
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, u *ledger.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createUser(ctx, s.db, u)
}

func createUser(ctx context.Context, q querier, u *ledger.User) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, external_id, timezone, default_account_id, spreadsheet_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.ExternalID, u.Timezone,
		nullAccountID(u.DefaultAccountID),
		u.SpreadsheetRef,
		u.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id ledger.UserID) (*ledger.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getUserBy(ctx, s.db, "id", string(id))
}

func (s *Store) GetUserByExternalID(ctx context.Context, externalID string) (*ledger.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getUserBy(ctx, s.db, "external_id", externalID)
}

func getUserBy(ctx context.Context, q querier, column, value string) (*ledger.User, error) {
	var (
		u         ledger.User
		defaultID sql.NullString
		createdAt string
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, external_id, timezone, default_account_id, spreadsheet_ref, created_at
		 FROM users WHERE `+column+` = ?`, value,
	).Scan(&u.ID, &u.ExternalID, &u.Timezone, &defaultID, &u.SpreadsheetRef, &createdAt)

	if err == sql.ErrNoRows {
		return nil, ledger.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if defaultID.Valid {
		id := ledger.AccountID(defaultID.String)
		u.DefaultAccountID = &id
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u *ledger.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateUser(ctx, s.db, u)
}

func updateUser(ctx context.Context, q querier, u *ledger.User) error {
	res, err := q.ExecContext(ctx, `
		UPDATE users SET timezone = ?, default_account_id = ?, spreadsheet_ref = ?
		WHERE id = ?`,
		u.Timezone, nullAccountID(u.DefaultAccountID), u.SpreadsheetRef, u.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireRow(res, ledger.ErrUserNotFound)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) CreateAccount(ctx context.Context, a *ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createAccount(ctx, s.db, a)
}

func createAccount(ctx context.Context, q querier, a *ledger.Account) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, name, currency, balance, is_default, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, a.Currency,
		a.Balance.String(), a.IsDefault,
		a.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

const accountColumns = "id, user_id, name, currency, balance, is_default, created_at"

func (s *Store) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccount(ctx, s.db, id)
}

func getAccount(ctx context.Context, q querier, id ledger.AccountID) (*ledger.Account, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)

	a, err := scanAccount(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return a, nil
}

func (s *Store) ListAccounts(ctx context.Context, userID ledger.UserID) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAccounts(ctx, s.db, userID)
}

func listAccounts(ctx context.Context, q querier, userID ledger.UserID) ([]ledger.Account, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE user_id = ? ORDER BY created_at ASC, rowid ASC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func scanAccount(scan func(...any) error) (*ledger.Account, error) {
	var (
		a         ledger.Account
		balance   string
		createdAt string
	)
	if err := scan(&a.ID, &a.UserID, &a.Name, &a.Currency, &balance, &a.IsDefault, &createdAt); err != nil {
		return nil, err
	}
	a.Balance = ledger.MustDecimal(balance)
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a *ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateAccount(ctx, s.db, a)
}

func updateAccount(ctx context.Context, q querier, a *ledger.Account) error {
	res, err := q.ExecContext(ctx, `
		UPDATE accounts SET name = ?, currency = ?, balance = ?, is_default = ?
		WHERE id = ?`,
		a.Name, a.Currency, a.Balance.String(), a.IsDefault, a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return requireRow(res, ledger.ErrAccountNotFound)
}

func (s *Store) DeleteAccount(ctx context.Context, id ledger.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteAccount(ctx, s.db, id)
}

func deleteAccount(ctx context.Context, q querier, id ledger.AccountID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return requireRow(res, ledger.ErrAccountNotFound)
}

func (s *Store) DeleteAccountsByUser(ctx context.Context, userID ledger.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteAccountsByUser(ctx, s.db, userID)
}

func deleteAccountsByUser(ctx context.Context, q querier, userID ledger.UserID) (int, error) {
	res, err := q.ExecContext(ctx, "DELETE FROM accounts WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete accounts: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

const txColumns = `id, user_id, tx_type, amount, currency, account_id, from_account_id,
	to_account_id, to_amount, to_currency, category, subcategory, description,
	operation_date, created_at`

func (s *Store) CreateTransaction(ctx context.Context, t *ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createTransaction(ctx, s.db, t)
}

func createTransaction(ctx context.Context, q querier, t *ledger.Transaction) error {
	var toAmount *string
	if t.ToAmount != nil {
		v := t.ToAmount.String()
		toAmount = &v
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions
		(id, user_id, tx_type, amount, currency, account_id, from_account_id,
		 to_account_id, to_amount, to_currency, category, subcategory, description,
		 operation_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Type,
		t.Amount.String(), t.Currency,
		nullAccountID(t.AccountID), nullAccountID(t.FromAccountID), nullAccountID(t.ToAccountID),
		toAmount, nullString(t.ToCurrency),
		nullString(t.Category), nullString(t.Subcategory), nullString(t.Description),
		t.OperationDate.Format(time.RFC3339),
		t.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTransaction(ctx, s.db, id)
}

func getTransaction(ctx context.Context, q querier, id ledger.TransactionID) (*ledger.Transaction, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE id = ?", id)

	t, err := scanTransaction(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID ledger.UserID, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTransactions(ctx, s.db, userID, f)
}

func listTransactions(ctx context.Context, q querier, userID ledger.UserID, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	query := "SELECT " + txColumns + " FROM transactions WHERE user_id = ?"
	args := []any{userID}

	if f.Type != "" {
		query += " AND tx_type = ?"
		args = append(args, f.Type)
	}
	if f.From != nil {
		query += " AND operation_date >= ?"
		args = append(args, f.From.Format(time.RFC3339))
	}
	if f.To != nil {
		query += " AND operation_date <= ?"
		args = append(args, f.To.Format(time.RFC3339))
	}

	// rowid breaks same-second ties so that later inserts list first.
	query += " ORDER BY operation_date DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func scanTransaction(scan func(...any) error) (*ledger.Transaction, error) {
	var (
		t                                 ledger.Transaction
		amount                            string
		accountID, fromID, toID           sql.NullString
		toAmount, toCurrency              sql.NullString
		category, subcategory, desc       sql.NullString
		operationDate, createdAt          string
	)

	err := scan(
		&t.ID, &t.UserID, &t.Type, &amount, &t.Currency,
		&accountID, &fromID, &toID, &toAmount, &toCurrency,
		&category, &subcategory, &desc,
		&operationDate, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	t.Amount = ledger.MustDecimal(amount)
	if accountID.Valid {
		id := ledger.AccountID(accountID.String)
		t.AccountID = &id
	}
	if fromID.Valid {
		id := ledger.AccountID(fromID.String)
		t.FromAccountID = &id
	}
	if toID.Valid {
		id := ledger.AccountID(toID.String)
		t.ToAccountID = &id
	}
	if toAmount.Valid {
		v := ledger.MustDecimal(toAmount.String)
		t.ToAmount = &v
	}
	t.ToCurrency = toCurrency.String
	t.Category = category.String
	t.Subcategory = subcategory.String
	t.Description = desc.String
	t.OperationDate, _ = time.Parse(time.RFC3339, operationDate)
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &t, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t *ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateTransaction(ctx, s.db, t)
}

func updateTransaction(ctx context.Context, q querier, t *ledger.Transaction) error {
	res, err := q.ExecContext(ctx, `
		UPDATE transactions SET amount = ?, category = ?, subcategory = ?, description = ?, operation_date = ?
		WHERE id = ?`,
		t.Amount.String(),
		nullString(t.Category), nullString(t.Subcategory), nullString(t.Description),
		t.OperationDate.Format(time.RFC3339),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return requireRow(res, ledger.ErrTransactionNotFound)
}

func (s *Store) DeleteTransaction(ctx context.Context, id ledger.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteTransaction(ctx, s.db, id)
}

func deleteTransaction(ctx context.Context, q querier, id ledger.TransactionID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return requireRow(res, ledger.ErrTransactionNotFound)
}

func (s *Store) DeleteTransactionsByUser(ctx context.Context, userID ledger.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteTransactionsByUser(ctx, s.db, userID)
}

func deleteTransactionsByUser(ctx context.Context, q querier, userID ledger.UserID) (int, error) {
	res, err := q.ExecContext(ctx, "DELETE FROM transactions WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// =============================================================================
// PENDING ACTIONS
// =============================================================================

func (s *Store) CreatePendingAction(ctx context.Context, p *ledger.PendingAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createPendingAction(ctx, s.db, p)
}

func createPendingAction(ctx context.Context, q querier, p *ledger.PendingAction) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO pending_actions (id, user_id, kind, payload, preview_message_id, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Kind, string(p.Payload),
		p.PreviewMessageID, p.Status,
		p.CreatedAt.Format(time.RFC3339),
		p.ExpiresAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert pending action: %w", err)
	}
	return nil
}

func (s *Store) GetPendingAction(ctx context.Context, id ledger.ActionID) (*ledger.PendingAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPendingAction(ctx, s.db, id)
}

func getPendingAction(ctx context.Context, q querier, id ledger.ActionID) (*ledger.PendingAction, error) {
	var (
		p          ledger.PendingAction
		payload    string
		previewID  sql.NullInt64
		createdAt  string
		expiresAt  string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, kind, payload, preview_message_id, status, created_at, expires_at
		FROM pending_actions WHERE id = ?`, id,
	).Scan(&p.ID, &p.UserID, &p.Kind, &payload, &previewID, &p.Status, &createdAt, &expiresAt)

	if err == sql.ErrNoRows {
		return nil, ledger.ErrActionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pending action: %w", err)
	}

	p.Payload = []byte(payload)
	if previewID.Valid {
		v := previewID.Int64
		p.PreviewMessageID = &v
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	return &p, nil
}

// UpdatePendingStatus transitions an action's status with a guarded UPDATE.
// Zero rows affected means either the action does not exist or its current
// status is not `from`.
func (s *Store) UpdatePendingStatus(ctx context.Context, id ledger.ActionID, from, to ledger.PendingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePendingStatus(ctx, s.db, id, from, to)
}

func updatePendingStatus(ctx context.Context, q querier, id ledger.ActionID, from, to ledger.PendingStatus) error {
	res, err := q.ExecContext(ctx,
		"UPDATE pending_actions SET status = ? WHERE id = ? AND status = ?",
		to, id, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update pending action status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}

	var exists int
	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pending_actions WHERE id = ?", id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check pending action: %w", err)
	}
	if exists == 0 {
		return ledger.ErrActionNotFound
	}
	return ledger.ErrAlreadyProcessed
}

func (s *Store) SetPreviewMessage(ctx context.Context, id ledger.ActionID, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setPreviewMessage(ctx, s.db, id, messageID)
}

func setPreviewMessage(ctx context.Context, q querier, id ledger.ActionID, messageID int64) error {
	res, err := q.ExecContext(ctx,
		"UPDATE pending_actions SET preview_message_id = ? WHERE id = ?",
		messageID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set preview message: %w", err)
	}
	return requireRow(res, ledger.ErrActionNotFound)
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every Store call through the open *sql.Tx so reads observe
// the transaction's own writes.
type txStore struct {
	q *sql.Tx
}

func (ts *txStore) CreateUser(ctx context.Context, u *ledger.User) error {
	return createUser(ctx, ts.q, u)
}

func (ts *txStore) GetUser(ctx context.Context, id ledger.UserID) (*ledger.User, error) {
	return getUserBy(ctx, ts.q, "id", string(id))
}

func (ts *txStore) GetUserByExternalID(ctx context.Context, externalID string) (*ledger.User, error) {
	return getUserBy(ctx, ts.q, "external_id", externalID)
}

func (ts *txStore) UpdateUser(ctx context.Context, u *ledger.User) error {
	return updateUser(ctx, ts.q, u)
}

func (ts *txStore) CreateAccount(ctx context.Context, a *ledger.Account) error {
	return createAccount(ctx, ts.q, a)
}

func (ts *txStore) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	return getAccount(ctx, ts.q, id)
}

func (ts *txStore) ListAccounts(ctx context.Context, userID ledger.UserID) ([]ledger.Account, error) {
	return listAccounts(ctx, ts.q, userID)
}

func (ts *txStore) UpdateAccount(ctx context.Context, a *ledger.Account) error {
	return updateAccount(ctx, ts.q, a)
}

func (ts *txStore) DeleteAccount(ctx context.Context, id ledger.AccountID) error {
	return deleteAccount(ctx, ts.q, id)
}

func (ts *txStore) DeleteAccountsByUser(ctx context.Context, userID ledger.UserID) (int, error) {
	return deleteAccountsByUser(ctx, ts.q, userID)
}

func (ts *txStore) CreateTransaction(ctx context.Context, t *ledger.Transaction) error {
	return createTransaction(ctx, ts.q, t)
}

func (ts *txStore) GetTransaction(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	return getTransaction(ctx, ts.q, id)
}

func (ts *txStore) ListTransactions(ctx context.Context, userID ledger.UserID, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	return listTransactions(ctx, ts.q, userID, f)
}

func (ts *txStore) UpdateTransaction(ctx context.Context, t *ledger.Transaction) error {
	return updateTransaction(ctx, ts.q, t)
}

func (ts *txStore) DeleteTransaction(ctx context.Context, id ledger.TransactionID) error {
	return deleteTransaction(ctx, ts.q, id)
}

func (ts *txStore) DeleteTransactionsByUser(ctx context.Context, userID ledger.UserID) (int, error) {
	return deleteTransactionsByUser(ctx, ts.q, userID)
}

func (ts *txStore) CreatePendingAction(ctx context.Context, p *ledger.PendingAction) error {
	return createPendingAction(ctx, ts.q, p)
}

func (ts *txStore) GetPendingAction(ctx context.Context, id ledger.ActionID) (*ledger.PendingAction, error) {
	return getPendingAction(ctx, ts.q, id)
}

func (ts *txStore) UpdatePendingStatus(ctx context.Context, id ledger.ActionID, from, to ledger.PendingStatus) error {
	return updatePendingStatus(ctx, ts.q, id, from, to)
}

func (ts *txStore) SetPreviewMessage(ctx context.Context, id ledger.ActionID, messageID int64) error {
	return setPreviewMessage(ctx, ts.q, id, messageID)
}

// =============================================================================
// HELPERS
// =============================================================================

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullAccountID(id *ledger.AccountID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}
