package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbot/ledger-engine/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUser(t *testing.T, s *Store) *ledger.User {
	t.Helper()
	u := &ledger.User{
		ID:         ledger.NewUserID(),
		ExternalID: string(ledger.NewUserID()),
		Timezone:   "Europe/London",
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func seedAccount(t *testing.T, s *Store, userID ledger.UserID, name, balance string) *ledger.Account {
	t.Helper()
	a := &ledger.Account{
		ID:        ledger.NewAccountID(),
		UserID:    userID,
		Name:      name,
		Currency:  "USD",
		Balance:   ledger.MustDecimal(balance),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.CreateAccount(context.Background(), a))
	return a
}

func seedTransaction(t *testing.T, s *Store, userID ledger.UserID, accountID ledger.AccountID, amount string, opDate time.Time) *ledger.Transaction {
	t.Helper()
	tx := &ledger.Transaction{
		ID:            ledger.NewTransactionID(),
		UserID:        userID,
		Type:          ledger.TxExpense,
		Amount:        ledger.MustDecimal(amount),
		Currency:      "USD",
		AccountID:     &accountID,
		OperationDate: opDate,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.CreateTransaction(context.Background(), tx))
	return tx
}

// =============================================================================
// USERS
// =============================================================================

func TestUserRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ExternalID, got.ExternalID)
	assert.Equal(t, u.Timezone, got.Timezone)
	assert.Nil(t, got.DefaultAccountID)

	byExt, err := s.GetUserByExternalID(ctx, u.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, byExt.ID)

	accID := ledger.NewAccountID()
	got.DefaultAccountID = &accID
	got.Timezone = "UTC"
	require.NoError(t, s.UpdateUser(ctx, got))

	updated, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.DefaultAccountID)
	assert.Equal(t, accID, *updated.DefaultAccountID)
	assert.Equal(t, "UTC", updated.Timezone)
}

func TestGetUser_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetUser(context.Background(), ledger.NewUserID())
	assert.ErrorIs(t, err, ledger.ErrUserNotFound)

	_, err = s.GetUserByExternalID(context.Background(), "nobody")
	assert.ErrorIs(t, err, ledger.ErrUserNotFound)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestAccountRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s)
	a := seedAccount(t, s, u.ID, "Cash", "123.45")

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cash", got.Name)
	assert.True(t, got.Balance.Equal(ledger.MustDecimal("123.45")), "balance %s", got.Balance)
	assert.False(t, got.IsDefault)

	got.Balance = ledger.MustDecimal("99.99")
	got.IsDefault = true
	require.NoError(t, s.UpdateAccount(ctx, got))

	updated, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, updated.Balance.Equal(ledger.MustDecimal("99.99")))
	assert.True(t, updated.IsDefault)

	require.NoError(t, s.DeleteAccount(ctx, a.ID))
	_, err = s.GetAccount(ctx, a.ID)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestListAccounts_CreationOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s)

	seedAccount(t, s, u.ID, "First", "0")
	seedAccount(t, s, u.ID, "Second", "0")
	seedAccount(t, s, u.ID, "Third", "0")

	accounts, err := s.ListAccounts(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, "First", accounts[0].Name)
	assert.Equal(t, "Second", accounts[1].Name)
	assert.Equal(t, "Third", accounts[2].Name)
}

func TestDeleteAccountsByUser_ReturnsCount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s)
	other := seedUser(t, s)

	seedAccount(t, s, u.ID, "A", "0")
	seedAccount(t, s, u.ID, "B", "0")
	kept := seedAccount(t, s, other.ID, "C", "0")

	n, err := s.DeleteAccountsByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.GetAccount(ctx, kept.ID)
	assert.NoError(t, err, "other user's account must survive")
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestTransactionRoundTrip_TransferLegs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s)
	from := seedAccount(t, s, u.ID, "From", "100")
	to := seedAccount(t, s, u.ID, "To", "0")

	toAmount := ledger.MustDecimal("10")
	tx := &ledger.Transaction{
		ID:            ledger.NewTransactionID(),
		UserID:        u.ID,
		Type:          ledger.TxTransfer,
		Amount:        ledger.MustDecimal("900"),
		Currency:      "RUB",
		FromAccountID: &from.ID,
		ToAccountID:   &to.ID,
		ToAmount:      &toAmount,
		ToCurrency:    "USD",
		Category:      "moves",
		OperationDate: time.Now().UTC().Truncate(time.Second),
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.CreateTransaction(ctx, tx))

	got, err := s.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TxTransfer, got.Type)
	require.NotNil(t, got.FromAccountID)
	require.NotNil(t, got.ToAccountID)
	assert.Equal(t, from.ID, *got.FromAccountID)
	assert.Equal(t, to.ID, *got.ToAccountID)
	require.NotNil(t, got.ToAmount)
	assert.True(t, got.ToAmount.Equal(toAmount))
	assert.Equal(t, "USD", got.ToCurrency)
	assert.Nil(t, got.AccountID)
}

func TestListTransactions_MostRecentFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s)
	a := seedAccount(t, s, u.ID, "Cash", "1000")

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedTransaction(t, s, u.ID, a.ID, "1", base)
	seedTransaction(t, s, u.ID, a.ID, "2", base.AddDate(0, 0, 10))
	seedTransaction(t, s, u.ID, a.ID, "3", base.AddDate(0, 0, 5))

	txs, err := s.ListTransactions(ctx, u.ID, ledger.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.True(t, txs[0].Amount.Equal(ledger.MustDecimal("2")))
	assert.True(t, txs[1].Amount.Equal(ledger.MustDecimal("3")))
	assert.True(t, txs[2].Amount.Equal(ledger.MustDecimal("1")))
}

func TestListTransactions_EqualDatesNewestInsertFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s)
	a := seedAccount(t, s, u.ID, "Cash", "1000")

	when := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	seedTransaction(t, s, u.ID, a.ID, "1", when)
	seedTransaction(t, s, u.ID, a.ID, "2", when)

	txs, err := s.ListTransactions(ctx, u.ID, ledger.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.True(t, txs[0].Amount.Equal(ledger.MustDecimal("2")), "latest insert should list first")
}

func TestListTransactions_FilterAndLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s)
	a := seedAccount(t, s, u.ID, "Cash", "1000")

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seedTransaction(t, s, u.ID, a.ID, "1", base)
	seedTransaction(t, s, u.ID, a.ID, "2", base.AddDate(0, 0, 1))
	seedTransaction(t, s, u.ID, a.ID, "3", base.AddDate(0, 0, 2))

	from := base.AddDate(0, 0, 1)
	txs, err := s.ListTransactions(ctx, u.ID, ledger.TransactionFilter{From: &from})
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	txs, err = s.ListTransactions(ctx, u.ID, ledger.TransactionFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].Amount.Equal(ledger.MustDecimal("3")))

	txs, err = s.ListTransactions(ctx, u.ID, ledger.TransactionFilter{Type: ledger.TxIncome})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestDeleteTransactionsByUser_ReturnsCount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s)
	a := seedAccount(t, s, u.ID, "Cash", "1000")

	when := time.Now().UTC()
	seedTransaction(t, s, u.ID, a.ID, "1", when)
	seedTransaction(t, s, u.ID, a.ID, "2", when)

	n, err := s.DeleteTransactionsByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	txs, err := s.ListTransactions(ctx, u.ID, ledger.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

// =============================================================================
// PENDING ACTIONS
// =============================================================================

func seedPendingAction(t *testing.T, s *Store, userID ledger.UserID) *ledger.PendingAction {
	t.Helper()
	payload, err := json.Marshal(&ledger.Payload{Intent: ledger.IntentExpense, Fields: &ledger.Fields{}})
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	p := &ledger.PendingAction{
		ID:        ledger.NewActionID(),
		UserID:    userID,
		Kind:      ledger.ActionExpense,
		Payload:   payload,
		Status:    ledger.StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(15 * time.Minute),
	}
	require.NoError(t, s.CreatePendingAction(context.Background(), p))
	return p
}

func TestPendingActionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s)
	p := seedPendingAction(t, s, u.ID)

	got, err := s.GetPendingAction(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ActionExpense, got.Kind)
	assert.Equal(t, ledger.StatusPending, got.Status)
	assert.Nil(t, got.PreviewMessageID)
	assert.Equal(t, p.ExpiresAt, got.ExpiresAt)

	decoded, err := got.DecodePayload()
	require.NoError(t, err)
	assert.Equal(t, ledger.IntentExpense, decoded.Intent)
}

func TestUpdatePendingStatus_CAS(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s)
	p := seedPendingAction(t, s, u.ID)

	// First transition wins
	require.NoError(t, s.UpdatePendingStatus(ctx, p.ID, ledger.StatusPending, ledger.StatusConfirmed))

	got, err := s.GetPendingAction(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusConfirmed, got.Status)

	// Second transition from pending loses
	err = s.UpdatePendingStatus(ctx, p.ID, ledger.StatusPending, ledger.StatusCancelled)
	assert.ErrorIs(t, err, ledger.ErrAlreadyProcessed)

	// Unknown action is distinguishable from a resolved one
	err = s.UpdatePendingStatus(ctx, ledger.NewActionID(), ledger.StatusPending, ledger.StatusConfirmed)
	assert.ErrorIs(t, err, ledger.ErrActionNotFound)
}

func TestSetPreviewMessage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s)
	p := seedPendingAction(t, s, u.ID)

	require.NoError(t, s.SetPreviewMessage(ctx, p.ID, 777))

	got, err := s.GetPendingAction(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PreviewMessageID)
	assert.Equal(t, int64(777), *got.PreviewMessageID)

	err = s.SetPreviewMessage(ctx, ledger.NewActionID(), 1)
	assert.ErrorIs(t, err, ledger.ErrActionNotFound)
}

// =============================================================================
// TRANSACTION SCOPE
// =============================================================================

func TestWithTx_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s)

	boom := errors.New("boom")
	accID := ledger.NewAccountID()
	err := s.WithTx(ctx, func(tx ledger.Store) error {
		a := &ledger.Account{
			ID:        accID,
			UserID:    u.ID,
			Name:      "Doomed",
			Currency:  "USD",
			Balance:   ledger.MustDecimal("10"),
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.CreateAccount(ctx, a); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetAccount(ctx, accID)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestWithTx_ReadsSeeUncommittedWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedUser(t, s)
	seedAccount(t, s, u.ID, "Old", "10")

	err := s.WithTx(ctx, func(tx ledger.Store) error {
		if _, err := tx.DeleteAccountsByUser(ctx, u.ID); err != nil {
			return err
		}
		a := &ledger.Account{
			ID:        ledger.NewAccountID(),
			UserID:    u.ID,
			Name:      "New",
			Currency:  "USD",
			Balance:   ledger.MustDecimal("0"),
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.CreateAccount(ctx, a); err != nil {
			return err
		}

		accounts, err := tx.ListAccounts(ctx, u.ID)
		if err != nil {
			return err
		}
		if len(accounts) != 1 || accounts[0].Name != "New" {
			return errors.New("transaction-scoped read did not observe own writes")
		}
		return nil
	})
	require.NoError(t, err)

	accounts, err := s.ListAccounts(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "New", accounts[0].Name)
}
