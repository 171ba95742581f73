/*
engine.go - The ledger mutation engine

PURPOSE:
  One operation per mutation intent. Every operation is atomic with respect
  to its own store writes: the balance read-modify-write and the transaction
  row change happen inside a single WithTx scope, so a concurrent reader
  never observes a half-applied transfer.

BALANCE EFFECTS:
  income    account.balance += amount
  expense   account.balance -= amount   (precondition: balance >= amount)
  transfer  from.balance -= amount; to.balance += credited amount
  edit      balance adjusted by the amount delta (income/expense only)
  delete    original effect reversed exactly

CURRENCY POLICY:
  A caller-supplied currency is used only for mismatch validation; the
  stored currency is always the account's. No auto-conversion, ever.

FAILURE SEMANTICS:
  Precondition failures raise typed errors (ErrAccountNotFound,
  ErrInsufficientBalance, ErrAccountNotEmpty, ErrCurrencyMismatch) rather
  than clamping or coercing. The engine never retries internally.
*/
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store TxStore
	log   zerolog.Logger
}

func NewEngine(store TxStore, log zerolog.Logger) *Engine {
	return &Engine{store: store, log: log}
}

// TxMeta carries the optional descriptive fields of a mutation.
type TxMeta struct {
	Category    string
	Subcategory string
	Description string

	// OperationDate defaults to "now in the user's timezone" when zero.
	OperationDate time.Time
}

// =============================================================================
// USERS
// =============================================================================

// GetOrCreateUser looks a user up by external id, creating one on first
// contact with the given timezone (DefaultTimezone when empty).
func (e *Engine) GetOrCreateUser(ctx context.Context, externalID, timezone string) (*User, error) {
	u, err := e.store.GetUserByExternalID(ctx, externalID)
	if err == nil {
		return u, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	if timezone == "" {
		timezone = DefaultTimezone
	}
	u = &User{
		ID:         NewUserID(),
		ExternalID: externalID,
		Timezone:   timezone,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	e.log.Info().Str("user_id", string(u.ID)).Msg("created new user")
	return u, nil
}

// =============================================================================
// INCOME / EXPENSE
// =============================================================================

// AddIncome increases the account balance and records the transaction.
func (e *Engine) AddIncome(ctx context.Context, userID UserID, accountID AccountID, amount decimal.Decimal, givenCurrency string, meta TxMeta) (*Transaction, error) {
	var out *Transaction
	err := e.store.WithTx(ctx, func(s Store) error {
		tx, err := e.addIncome(ctx, s, userID, accountID, amount, givenCurrency, meta)
		out = tx
		return err
	})
	return out, err
}

func (e *Engine) addIncome(ctx context.Context, s Store, userID UserID, accountID AccountID, amount decimal.Decimal, givenCurrency string, meta TxMeta) (*Transaction, error) {
	account, err := e.ownedAccount(ctx, s, userID, accountID)
	if err != nil {
		return nil, err
	}
	if err := checkCurrency(account, givenCurrency); err != nil {
		return nil, err
	}

	amount = Quantize(amount)
	account.Balance = account.Balance.Add(amount)
	if err := s.UpdateAccount(ctx, account); err != nil {
		return nil, err
	}

	tx := e.newTransaction(ctx, s, userID, TxIncome, amount, account.Currency, meta)
	tx.AccountID = &account.ID
	if err := s.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("account", string(account.ID)).
		Str("amount", amount.StringFixed(2)).
		Str("currency", account.Currency).
		Msg("added income")
	return tx, nil
}

// AddExpense decreases the account balance and records the transaction.
// Fails with InsufficientBalance when the account cannot cover the amount.
func (e *Engine) AddExpense(ctx context.Context, userID UserID, accountID AccountID, amount decimal.Decimal, givenCurrency string, meta TxMeta) (*Transaction, error) {
	var out *Transaction
	err := e.store.WithTx(ctx, func(s Store) error {
		tx, err := e.addExpense(ctx, s, userID, accountID, amount, givenCurrency, meta)
		out = tx
		return err
	})
	return out, err
}

func (e *Engine) addExpense(ctx context.Context, s Store, userID UserID, accountID AccountID, amount decimal.Decimal, givenCurrency string, meta TxMeta) (*Transaction, error) {
	account, err := e.ownedAccount(ctx, s, userID, accountID)
	if err != nil {
		return nil, err
	}
	if err := checkCurrency(account, givenCurrency); err != nil {
		return nil, err
	}

	amount = Quantize(amount)
	if account.Balance.LessThan(amount) {
		return nil, &InsufficientBalanceError{
			AccountName: account.Name,
			Available:   account.Balance,
			Requested:   amount,
		}
	}

	account.Balance = account.Balance.Sub(amount)
	if err := s.UpdateAccount(ctx, account); err != nil {
		return nil, err
	}

	tx := e.newTransaction(ctx, s, userID, TxExpense, amount, account.Currency, meta)
	tx.AccountID = &account.ID
	if err := s.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("account", string(account.ID)).
		Str("amount", amount.StringFixed(2)).
		Str("currency", account.Currency).
		Msg("added expense")
	return tx, nil
}

// =============================================================================
// TRANSFER
// =============================================================================

// Transfer moves amount out of the source and credits the destination.
// For cross-currency moves the caller supplies the credited amount; nothing
// is converted implicitly. A single transaction records both legs.
func (e *Engine) Transfer(ctx context.Context, userID UserID, fromID, toID AccountID, amount decimal.Decimal, toAmount *decimal.Decimal, toCurrency string, meta TxMeta) (*Transaction, error) {
	var out *Transaction
	err := e.store.WithTx(ctx, func(s Store) error {
		tx, err := e.transfer(ctx, s, userID, fromID, toID, amount, toAmount, toCurrency, meta)
		out = tx
		return err
	})
	return out, err
}

func (e *Engine) transfer(ctx context.Context, s Store, userID UserID, fromID, toID AccountID, amount decimal.Decimal, toAmount *decimal.Decimal, toCurrency string, meta TxMeta) (*Transaction, error) {
	if fromID == toID {
		return nil, ErrSameAccountTransfer
	}
	from, err := e.ownedAccount(ctx, s, userID, fromID)
	if err != nil {
		return nil, err
	}
	to, err := e.ownedAccount(ctx, s, userID, toID)
	if err != nil {
		return nil, err
	}

	amount = Quantize(amount)
	if from.Balance.LessThan(amount) {
		return nil, &InsufficientBalanceError{
			AccountName: from.Name,
			Available:   from.Balance,
			Requested:   amount,
		}
	}

	credit := amount
	if toAmount != nil {
		credit = Quantize(*toAmount)
	}

	from.Balance = from.Balance.Sub(amount)
	to.Balance = to.Balance.Add(credit)
	if err := s.UpdateAccount(ctx, from); err != nil {
		return nil, err
	}
	if err := s.UpdateAccount(ctx, to); err != nil {
		return nil, err
	}

	tx := e.newTransaction(ctx, s, userID, TxTransfer, amount, from.Currency, meta)
	tx.FromAccountID = &from.ID
	tx.ToAccountID = &to.ID
	if toAmount != nil {
		tx.ToAmount = &credit
		tx.ToCurrency = toCurrency
		if tx.ToCurrency == "" {
			tx.ToCurrency = to.Currency
		}
	}
	if err := s.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("from", string(from.ID)).
		Str("to", string(to.ID)).
		Str("amount", amount.StringFixed(2)).
		Str("credited", credit.StringFixed(2)).
		Msg("transfer")
	return tx, nil
}

// =============================================================================
// ACCOUNT MANAGEMENT
// =============================================================================

// CreateAccount creates an account. The user's first account automatically
// becomes the default and the user's default reference is set to it.
func (e *Engine) CreateAccount(ctx context.Context, userID UserID, name, currency string, initialBalance decimal.Decimal) (*Account, error) {
	var out *Account
	err := e.store.WithTx(ctx, func(s Store) error {
		a, err := e.createAccount(ctx, s, userID, name, currency, initialBalance)
		out = a
		return err
	})
	return out, err
}

func (e *Engine) createAccount(ctx context.Context, s Store, userID UserID, name, currency string, initialBalance decimal.Decimal) (*Account, error) {
	existing, err := s.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	first := len(existing) == 0

	account := &Account{
		ID:        NewAccountID(),
		UserID:    userID,
		Name:      name,
		Currency:  normalizeCurrency(currency),
		Balance:   Quantize(initialBalance),
		IsDefault: first,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	if first {
		user, err := s.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		user.DefaultAccountID = &account.ID
		if err := s.UpdateUser(ctx, user); err != nil {
			return nil, err
		}
	}

	e.log.Info().
		Str("account", string(account.ID)).
		Str("name", name).
		Bool("default", first).
		Msg("created account")
	return account, nil
}

// DeleteAccount removes an account. Fails with AccountNotEmpty unless the
// balance is exactly zero in the fixed-point representation.
func (e *Engine) DeleteAccount(ctx context.Context, userID UserID, accountID AccountID) error {
	return e.store.WithTx(ctx, func(s Store) error {
		return e.deleteAccount(ctx, s, userID, accountID)
	})
}

func (e *Engine) deleteAccount(ctx context.Context, s Store, userID UserID, accountID AccountID) error {
	account, err := e.ownedAccount(ctx, s, userID, accountID)
	if err != nil {
		return err
	}
	if !account.Balance.IsZero() {
		return &AccountNotEmptyError{AccountName: account.Name, Balance: account.Balance}
	}
	if err := s.DeleteAccount(ctx, account.ID); err != nil {
		return err
	}
	e.log.Info().Str("account", string(account.ID)).Msg("deleted account")
	return nil
}

// RenameAccount changes the account name in place.
func (e *Engine) RenameAccount(ctx context.Context, userID UserID, accountID AccountID, newName string) (*Account, error) {
	var out *Account
	err := e.store.WithTx(ctx, func(s Store) error {
		account, err := e.ownedAccount(ctx, s, userID, accountID)
		if err != nil {
			return err
		}
		account.Name = newName
		if err := s.UpdateAccount(ctx, account); err != nil {
			return err
		}
		out = account
		return nil
	})
	return out, err
}

// SetDefaultAccount clears the prior default flag for the user, marks the
// new account, and updates the user's default reference.
func (e *Engine) SetDefaultAccount(ctx context.Context, userID UserID, accountID AccountID) (*Account, error) {
	var out *Account
	err := e.store.WithTx(ctx, func(s Store) error {
		a, err := e.setDefaultAccount(ctx, s, userID, accountID)
		out = a
		return err
	})
	return out, err
}

func (e *Engine) setDefaultAccount(ctx context.Context, s Store, userID UserID, accountID AccountID) (*Account, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	account, err := e.ownedAccount(ctx, s, userID, accountID)
	if err != nil {
		return nil, err
	}

	accounts, err := s.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].IsDefault && accounts[i].ID != account.ID {
			accounts[i].IsDefault = false
			if err := s.UpdateAccount(ctx, &accounts[i]); err != nil {
				return nil, err
			}
		}
	}

	account.IsDefault = true
	if err := s.UpdateAccount(ctx, account); err != nil {
		return nil, err
	}
	user.DefaultAccountID = &account.ID
	if err := s.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	e.log.Info().Str("account", string(account.ID)).Msg("set default account")
	return account, nil
}

// =============================================================================
// TRANSACTION EDIT / DELETE
// =============================================================================

// UpdateTransaction edits a transaction's amount, category, or description.
// When the amount changes, the account balance is adjusted by the delta:
// income balance += diff, expense balance -= diff (a bigger expense reduces
// the balance further). Transfer amount edits are not supported.
func (e *Engine) UpdateTransaction(ctx context.Context, userID UserID, txID TransactionID, newAmount *decimal.Decimal, newCategory, newDescription *string) (*Transaction, error) {
	var out *Transaction
	err := e.store.WithTx(ctx, func(s Store) error {
		tx, err := e.updateTransaction(ctx, s, userID, txID, newAmount, newCategory, newDescription)
		out = tx
		return err
	})
	return out, err
}

func (e *Engine) updateTransaction(ctx context.Context, s Store, userID UserID, txID TransactionID, newAmount *decimal.Decimal, newCategory, newDescription *string) (*Transaction, error) {
	tx, err := e.ownedTransaction(ctx, s, userID, txID)
	if err != nil {
		return nil, err
	}

	if newAmount != nil {
		amount := Quantize(*newAmount)
		if !amount.Equal(tx.Amount) {
			if tx.Type == TxTransfer {
				return nil, ErrUnsupportedEdit
			}
			diff := amount.Sub(tx.Amount)

			account, err := s.GetAccount(ctx, *tx.AccountID)
			if err != nil {
				return nil, err
			}
			switch tx.Type {
			case TxIncome:
				account.Balance = account.Balance.Add(diff)
			case TxExpense:
				account.Balance = account.Balance.Sub(diff)
			}
			if err := s.UpdateAccount(ctx, account); err != nil {
				return nil, err
			}
			tx.Amount = amount
		}
	}

	if newCategory != nil {
		tx.Category = *newCategory
	}
	if newDescription != nil {
		tx.Description = *newDescription
	}

	if err := s.UpdateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	e.log.Info().Str("transaction", string(tx.ID)).Msg("updated transaction")
	return tx, nil
}

// DeleteTransaction reverses the original balance effect and removes the
// row. The transfer reversal credits the source and debits the destination
// with the original debit amount on both legs, even when a distinct credited
// amount was recorded.
func (e *Engine) DeleteTransaction(ctx context.Context, userID UserID, txID TransactionID) error {
	return e.store.WithTx(ctx, func(s Store) error {
		return e.deleteTransaction(ctx, s, userID, txID)
	})
}

func (e *Engine) deleteTransaction(ctx context.Context, s Store, userID UserID, txID TransactionID) error {
	tx, err := e.ownedTransaction(ctx, s, userID, txID)
	if err != nil {
		return err
	}

	switch tx.Type {
	case TxIncome:
		account, err := s.GetAccount(ctx, *tx.AccountID)
		if err != nil {
			return err
		}
		account.Balance = account.Balance.Sub(tx.Amount)
		if err := s.UpdateAccount(ctx, account); err != nil {
			return err
		}
	case TxExpense:
		account, err := s.GetAccount(ctx, *tx.AccountID)
		if err != nil {
			return err
		}
		account.Balance = account.Balance.Add(tx.Amount)
		if err := s.UpdateAccount(ctx, account); err != nil {
			return err
		}
	case TxTransfer:
		// Both legs cancel out when the transfer references one account.
		if *tx.FromAccountID == *tx.ToAccountID {
			break
		}
		from, err := s.GetAccount(ctx, *tx.FromAccountID)
		if err != nil {
			return err
		}
		to, err := s.GetAccount(ctx, *tx.ToAccountID)
		if err != nil {
			return err
		}
		from.Balance = from.Balance.Add(tx.Amount)
		to.Balance = to.Balance.Sub(tx.Amount)
		if err := s.UpdateAccount(ctx, from); err != nil {
			return err
		}
		if err := s.UpdateAccount(ctx, to); err != nil {
			return err
		}
	}

	if err := s.DeleteTransaction(ctx, tx.ID); err != nil {
		return err
	}
	e.log.Info().Str("transaction", string(tx.ID)).Msg("deleted transaction")
	return nil
}

// =============================================================================
// RAW INSERT AND BULK CLEAR
// =============================================================================

// CreateTransactionRaw inserts a transaction row with no balance side
// effect. Only for import/migration flows where balances are supplied
// independently by the source.
func (e *Engine) CreateTransactionRaw(ctx context.Context, userID UserID, txType TransactionType, amount decimal.Decimal, currency string, accountID AccountID, meta TxMeta) (*Transaction, error) {
	var out *Transaction
	err := e.store.WithTx(ctx, func(s Store) error {
		tx, err := e.createTransactionRaw(ctx, s, userID, txType, amount, currency, accountID, meta)
		out = tx
		return err
	})
	return out, err
}

func (e *Engine) createTransactionRaw(ctx context.Context, s Store, userID UserID, txType TransactionType, amount decimal.Decimal, currency string, accountID AccountID, meta TxMeta) (*Transaction, error) {
	tx := e.newTransaction(ctx, s, userID, txType, Quantize(amount), normalizeCurrency(currency), meta)
	tx.AccountID = &accountID
	if err := s.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// ClearAllData deletes all transactions, then all accounts for the user and
// clears the default-account reference. Returns counts deleted.
func (e *Engine) ClearAllData(ctx context.Context, userID UserID) (txDeleted, accDeleted int, err error) {
	err = e.store.WithTx(ctx, func(s Store) error {
		var innerErr error
		txDeleted, accDeleted, innerErr = e.clearAllData(ctx, s, userID)
		return innerErr
	})
	return txDeleted, accDeleted, err
}

func (e *Engine) clearAllData(ctx context.Context, s Store, userID UserID) (int, int, error) {
	txCount, err := s.DeleteTransactionsByUser(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	accCount, err := s.DeleteAccountsByUser(ctx, userID)
	if err != nil {
		return 0, 0, err
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	user.DefaultAccountID = nil
	if err := s.UpdateUser(ctx, user); err != nil {
		return 0, 0, err
	}

	e.log.Info().
		Int("transactions", txCount).
		Int("accounts", accCount).
		Str("user", string(userID)).
		Msg("cleared user data")
	return txCount, accCount, nil
}

// =============================================================================
// READ PATH
// =============================================================================

// ListAccounts returns the user's accounts in creation order.
func (e *Engine) ListAccounts(ctx context.Context, userID UserID) ([]Account, error) {
	return e.store.ListAccounts(ctx, userID)
}

// ListNumberedTransactions returns the user's transactions with 1-based row
// numbers, most recent first. Row numbers are the handle users quote in
// edit/delete commands.
func (e *Engine) ListNumberedTransactions(ctx context.Context, userID UserID, f TransactionFilter) ([]NumberedTransaction, error) {
	txs, err := e.store.ListTransactions(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	out := make([]NumberedTransaction, len(txs))
	for i, tx := range txs {
		out[i] = NumberedTransaction{Row: i + 1, Tx: tx}
	}
	return out, nil
}

// TransactionByRowNumber resolves a 1-based row number in the
// most-recent-first listing to the underlying transaction.
func (e *Engine) TransactionByRowNumber(ctx context.Context, userID UserID, row int) (*Transaction, error) {
	return transactionByRowNumber(ctx, e.store, userID, row)
}

func transactionByRowNumber(ctx context.Context, s Store, userID UserID, row int) (*Transaction, error) {
	if row < 1 {
		return nil, ErrTransactionNotFound
	}
	txs, err := s.ListTransactions(ctx, userID, TransactionFilter{Limit: row})
	if err != nil {
		return nil, err
	}
	if row > len(txs) {
		return nil, ErrTransactionNotFound
	}
	tx := txs[row-1]
	return &tx, nil
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (e *Engine) ownedAccount(ctx context.Context, s Store, userID UserID, accountID AccountID) (*Account, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

func (e *Engine) ownedTransaction(ctx context.Context, s Store, userID UserID, txID TransactionID) (*Transaction, error) {
	tx, err := s.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}

func (e *Engine) newTransaction(ctx context.Context, s Store, userID UserID, txType TransactionType, amount decimal.Decimal, currency string, meta TxMeta) *Transaction {
	opDate := meta.OperationDate
	if opDate.IsZero() {
		tz := DefaultTimezone
		if user, err := s.GetUser(ctx, userID); err == nil {
			tz = user.Timezone
		}
		opDate = NowInTimezone(tz)
	}
	return &Transaction{
		ID:            NewTransactionID(),
		UserID:        userID,
		Type:          txType,
		Amount:        amount,
		Currency:      currency,
		Category:      meta.Category,
		Subcategory:   meta.Subcategory,
		Description:   meta.Description,
		OperationDate: opDate,
		CreatedAt:     time.Now().UTC(),
	}
}

// checkCurrency validates a caller-supplied currency against the account.
// Empty means "not stated" and always passes.
func checkCurrency(account *Account, given string) error {
	if given == "" {
		return nil
	}
	if !strings.EqualFold(given, account.Currency) {
		return &CurrencyMismatchError{
			AccountName:     account.Name,
			AccountCurrency: account.Currency,
			GivenCurrency:   strings.ToUpper(given),
		}
	}
	return nil
}
