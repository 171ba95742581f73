package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finbot/ledger-engine/ledger"
	"github.com/finbot/ledger-engine/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestEngine(t *testing.T) (*ledger.Engine, *store.TxMemory, ledger.UserID) {
	t.Helper()
	mem := store.NewTxMemory()
	engine := ledger.NewEngine(mem, zerolog.Nop())

	user, err := engine.GetOrCreateUser(context.Background(), "ext-1", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return engine, mem, user.ID
}

func mustAccount(t *testing.T, e *ledger.Engine, userID ledger.UserID, name, currency, balance string) *ledger.Account {
	t.Helper()
	a, err := e.CreateAccount(context.Background(), userID, name, currency, ledger.MustDecimal(balance))
	if err != nil {
		t.Fatalf("create account %s: %v", name, err)
	}
	return a
}

func accountBalance(t *testing.T, mem *store.TxMemory, id ledger.AccountID) decimal.Decimal {
	t.Helper()
	a, err := mem.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return a.Balance
}

func dec(s string) decimal.Decimal { return ledger.MustDecimal(s) }

// =============================================================================
// INCOME / EXPENSE
// =============================================================================

func TestAddExpense_DeleteRestoresBalance(t *testing.T) {
	// GIVEN: Account "Cash"/RUB with balance 1000
	// WHEN: add_expense(300) then delete_transaction on the result
	// THEN: Balance goes 1000 -> 700 -> 1000 exactly

	ctx := context.Background()
	engine, mem, userID := newTestEngine(t)
	cash := mustAccount(t, engine, userID, "Cash", "RUB", "1000")

	tx, err := engine.AddExpense(ctx, userID, cash.ID, dec("300"), "", ledger.TxMeta{Category: "food"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := accountBalance(t, mem, cash.ID); !got.Equal(dec("700")) {
		t.Fatalf("expected balance 700 after expense, got %s", got)
	}

	if err := engine.DeleteTransaction(ctx, userID, tx.ID); err != nil {
		t.Fatalf("delete transaction: %v", err)
	}
	if got := accountBalance(t, mem, cash.ID); !got.Equal(dec("1000")) {
		t.Errorf("expected balance restored to 1000, got %s", got)
	}
}

func TestAddIncome_EditThenDelete_RestoresOriginal(t *testing.T) {
	// GIVEN: Account with balance 100, income of 50 recorded
	// WHEN: The income amount is edited to 80, then the transaction is deleted
	// THEN: Balance returns to 100 (delta adjustment and reversal compose)

	ctx := context.Background()
	engine, mem, userID := newTestEngine(t)
	acc := mustAccount(t, engine, userID, "Main", "EUR", "100")

	tx, err := engine.AddIncome(ctx, userID, acc.ID, dec("50"), "", ledger.TxMeta{})
	if err != nil {
		t.Fatalf("add income: %v", err)
	}
	if got := accountBalance(t, mem, acc.ID); !got.Equal(dec("150")) {
		t.Fatalf("expected 150 after income, got %s", got)
	}

	newAmount := dec("80")
	if _, err := engine.UpdateTransaction(ctx, userID, tx.ID, &newAmount, nil, nil); err != nil {
		t.Fatalf("update transaction: %v", err)
	}
	if got := accountBalance(t, mem, acc.ID); !got.Equal(dec("180")) {
		t.Fatalf("expected 180 after edit, got %s", got)
	}

	if err := engine.DeleteTransaction(ctx, userID, tx.ID); err != nil {
		t.Fatalf("delete transaction: %v", err)
	}
	if got := accountBalance(t, mem, acc.ID); !got.Equal(dec("100")) {
		t.Errorf("expected 100 after delete, got %s", got)
	}
}

func TestAddExpense_InsufficientBalance(t *testing.T) {
	// GIVEN: Account with balance 100
	// WHEN: An expense of 500 is attempted
	// THEN: InsufficientBalance with the shortage details; balance unchanged

	ctx := context.Background()
	engine, mem, userID := newTestEngine(t)
	acc := mustAccount(t, engine, userID, "Cash", "USD", "100")

	_, err := engine.AddExpense(ctx, userID, acc.ID, dec("500"), "", ledger.TxMeta{})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	var ibe *ledger.InsufficientBalanceError
	if !errors.As(err, &ibe) {
		t.Fatalf("expected structured InsufficientBalanceError, got %T", err)
	}
	if !ibe.Available.Equal(dec("100")) || !ibe.Requested.Equal(dec("500")) {
		t.Errorf("unexpected shortage details: available %s requested %s", ibe.Available, ibe.Requested)
	}
	if got := accountBalance(t, mem, acc.ID); !got.Equal(dec("100")) {
		t.Errorf("balance should be unchanged, got %s", got)
	}
}

func TestAddExpense_CurrencyMismatch(t *testing.T) {
	// GIVEN: A USD account
	// WHEN: An expense explicitly stated in EUR is attempted
	// THEN: CurrencyMismatch; nothing is converted or written

	ctx := context.Background()
	engine, mem, userID := newTestEngine(t)
	acc := mustAccount(t, engine, userID, "Card", "USD", "100")

	_, err := engine.AddExpense(ctx, userID, acc.ID, dec("10"), "EUR", ledger.TxMeta{})
	if !errors.Is(err, ledger.ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
	if got := accountBalance(t, mem, acc.ID); !got.Equal(dec("100")) {
		t.Errorf("balance should be unchanged, got %s", got)
	}
}

func TestAddIncome_StoresAccountCurrency(t *testing.T) {
	// GIVEN: A USD account
	// WHEN: Income arrives with a matching caller currency in lowercase
	// THEN: The stored transaction carries the account's currency code

	ctx := context.Background()
	engine, _, userID := newTestEngine(t)
	acc := mustAccount(t, engine, userID, "Card", "USD", "0")

	tx, err := engine.AddIncome(ctx, userID, acc.ID, dec("25"), "usd", ledger.TxMeta{})
	if err != nil {
		t.Fatalf("add income: %v", err)
	}
	if tx.Currency != "USD" {
		t.Errorf("expected stored currency USD, got %q", tx.Currency)
	}
}

// =============================================================================
// TRANSFERS
// =============================================================================

func TestTransfer_SameCurrencyConservation(t *testing.T) {
	// GIVEN: Two RUB accounts with balances 1000 and 200
	// WHEN: 300 is transferred between them
	// THEN: The combined balance is invariant across the operation

	ctx := context.Background()
	engine, mem, userID := newTestEngine(t)
	from := mustAccount(t, engine, userID, "Cash", "RUB", "1000")
	to := mustAccount(t, engine, userID, "Savings", "RUB", "200")

	if _, err := engine.Transfer(ctx, userID, from.ID, to.ID, dec("300"), nil, "", ledger.TxMeta{}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	fromBal := accountBalance(t, mem, from.ID)
	toBal := accountBalance(t, mem, to.ID)
	if !fromBal.Equal(dec("700")) || !toBal.Equal(dec("500")) {
		t.Errorf("expected 700/500, got %s/%s", fromBal, toBal)
	}
	if !fromBal.Add(toBal).Equal(dec("1200")) {
		t.Errorf("combined balance not conserved: %s", fromBal.Add(toBal))
	}
}

func TestTransfer_CrossCurrencyExplicitCredit(t *testing.T) {
	// GIVEN: CashRUB balance 1000, WalletUSD balance 0
	// WHEN: transfer(900, to_amount=10)
	// THEN: CashRUB=100, WalletUSD=10; no implied conversion

	ctx := context.Background()
	engine, mem, userID := newTestEngine(t)
	cash := mustAccount(t, engine, userID, "CashRUB", "RUB", "1000")
	wallet := mustAccount(t, engine, userID, "WalletUSD", "USD", "0")

	toAmount := dec("10")
	tx, err := engine.Transfer(ctx, userID, cash.ID, wallet.ID, dec("900"), &toAmount, "USD", ledger.TxMeta{})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if got := accountBalance(t, mem, cash.ID); !got.Equal(dec("100")) {
		t.Errorf("expected CashRUB=100, got %s", got)
	}
	if got := accountBalance(t, mem, wallet.ID); !got.Equal(dec("10")) {
		t.Errorf("expected WalletUSD=10, got %s", got)
	}
	if tx.ToAmount == nil || !tx.ToAmount.Equal(dec("10")) || tx.ToCurrency != "USD" {
		t.Errorf("credited leg not recorded: %+v", tx)
	}
}

func TestDeleteTransfer_ReversesWithDebitAmount(t *testing.T) {
	// GIVEN: A cross-currency transfer of 900 RUB credited as 10 USD
	// WHEN: The transfer is deleted
	// THEN: Both legs are reversed with the original debit amount. The
	//       destination loses 900, not 10, leaving it negative. This mirrors
	//       the recorded reversal rule exactly.

	ctx := context.Background()
	engine, mem, userID := newTestEngine(t)
	cash := mustAccount(t, engine, userID, "CashRUB", "RUB", "1000")
	wallet := mustAccount(t, engine, userID, "WalletUSD", "USD", "0")

	toAmount := dec("10")
	tx, err := engine.Transfer(ctx, userID, cash.ID, wallet.ID, dec("900"), &toAmount, "USD", ledger.TxMeta{})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if err := engine.DeleteTransaction(ctx, userID, tx.ID); err != nil {
		t.Fatalf("delete transfer: %v", err)
	}
	if got := accountBalance(t, mem, cash.ID); !got.Equal(dec("1000")) {
		t.Errorf("expected source restored to 1000, got %s", got)
	}
	if got := accountBalance(t, mem, wallet.ID); !got.Equal(dec("-890")) {
		t.Errorf("expected destination at -890 after debit-amount reversal, got %s", got)
	}
}

func TestTransfer_InsufficientSourceBalance(t *testing.T) {
	// GIVEN: Source account with 100
	// WHEN: A transfer of 200 is attempted
	// THEN: InsufficientBalance, neither account changes

	ctx := context.Background()
	engine, mem, userID := newTestEngine(t)
	from := mustAccount(t, engine, userID, "A", "EUR", "100")
	to := mustAccount(t, engine, userID, "B", "EUR", "50")

	_, err := engine.Transfer(ctx, userID, from.ID, to.ID, dec("200"), nil, "", ledger.TxMeta{})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := accountBalance(t, mem, from.ID); !got.Equal(dec("100")) {
		t.Errorf("source changed: %s", got)
	}
	if got := accountBalance(t, mem, to.ID); !got.Equal(dec("50")) {
		t.Errorf("destination changed: %s", got)
	}
}

func TestTransfer_SameAccountRejected(t *testing.T) {
	// GIVEN: Account "Cash"/RUB with balance 1000
	// WHEN: A transfer names it as both source and destination
	// THEN: The transfer is rejected and the balance is untouched

	ctx := context.Background()
	engine, mem, userID := newTestEngine(t)
	cash := mustAccount(t, engine, userID, "Cash", "RUB", "1000")

	_, err := engine.Transfer(ctx, userID, cash.ID, cash.ID, dec("100"), nil, "", ledger.TxMeta{})
	if !errors.Is(err, ledger.ErrSameAccountTransfer) {
		t.Fatalf("expected ErrSameAccountTransfer, got %v", err)
	}
	if got := accountBalance(t, mem, cash.ID); !got.Equal(dec("1000")) {
		t.Errorf("self-transfer changed balance: expected 1000, got %s", got)
	}
}

func TestDeleteTransfer_SameAccountRowNoBalanceEffect(t *testing.T) {
	// GIVEN: A stored transfer row whose legs reference one account
	// WHEN: The row is deleted
	// THEN: The reversal nets to zero and the balance stays put

	ctx := context.Background()
	engine, mem, userID := newTestEngine(t)
	cash := mustAccount(t, engine, userID, "Cash", "RUB", "1000")

	tx := &ledger.Transaction{
		ID:            ledger.NewTransactionID(),
		UserID:        userID,
		Type:          ledger.TxTransfer,
		Amount:        dec("100"),
		Currency:      "RUB",
		FromAccountID: &cash.ID,
		ToAccountID:   &cash.ID,
		OperationDate: time.Now().UTC(),
		CreatedAt:     time.Now().UTC(),
	}
	if err := mem.CreateTransaction(ctx, tx); err != nil {
		t.Fatal(err)
	}

	if err := engine.DeleteTransaction(ctx, userID, tx.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := accountBalance(t, mem, cash.ID); !got.Equal(dec("1000")) {
		t.Errorf("expected balance unchanged at 1000, got %s", got)
	}
}

func TestUpdateTransaction_TransferAmountUnsupported(t *testing.T) {
	// GIVEN: A recorded transfer
	// WHEN: Its amount is edited
	// THEN: ErrUnsupportedEdit; category edits still work

	ctx := context.Background()
	engine, _, userID := newTestEngine(t)
	from := mustAccount(t, engine, userID, "A", "EUR", "100")
	to := mustAccount(t, engine, userID, "B", "EUR", "0")

	tx, err := engine.Transfer(ctx, userID, from.ID, to.ID, dec("40"), nil, "", ledger.TxMeta{})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	newAmount := dec("50")
	if _, err := engine.UpdateTransaction(ctx, userID, tx.ID, &newAmount, nil, nil); !errors.Is(err, ledger.ErrUnsupportedEdit) {
		t.Fatalf("expected ErrUnsupportedEdit, got %v", err)
	}

	category := "moves"
	updated, err := engine.UpdateTransaction(ctx, userID, tx.ID, nil, &category, nil)
	if err != nil {
		t.Fatalf("category edit: %v", err)
	}
	if updated.Category != "moves" {
		t.Errorf("category not updated: %q", updated.Category)
	}
}

// =============================================================================
// ACCOUNT MANAGEMENT
// =============================================================================

func TestCreateAccount_FirstBecomesDefault(t *testing.T) {
	// GIVEN: A user with no accounts
	// WHEN: Their first and second accounts are created
	// THEN: Only the first is marked default and referenced by the user

	ctx := context.Background()
	engine, mem, userID := newTestEngine(t)

	first := mustAccount(t, engine, userID, "Cash", "RUB", "0")
	second := mustAccount(t, engine, userID, "Card", "RUB", "0")

	if !first.IsDefault {
		t.Error("first account should be default")
	}
	if second.IsDefault {
		t.Error("second account should not be default")
	}

	user, err := mem.GetUser(ctx, userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.DefaultAccountID == nil || *user.DefaultAccountID != first.ID {
		t.Error("user's default reference should point at the first account")
	}
}

func TestDeleteAccount_NonZeroBalanceFails(t *testing.T) {
	// GIVEN: An account with balance 5.00
	// WHEN: Deletion is attempted
	// THEN: AccountNotEmpty, account still present

	ctx := context.Background()
	engine, mem, userID := newTestEngine(t)
	acc := mustAccount(t, engine, userID, "Cash", "USD", "5.00")

	err := engine.DeleteAccount(ctx, userID, acc.ID)
	if !errors.Is(err, ledger.ErrAccountNotEmpty) {
		t.Fatalf("expected ErrAccountNotEmpty, got %v", err)
	}
	if _, err := mem.GetAccount(ctx, acc.ID); err != nil {
		t.Errorf("account should still exist: %v", err)
	}
}

func TestDeleteAccount_ZeroBalanceSucceeds(t *testing.T) {
	ctx := context.Background()
	engine, mem, userID := newTestEngine(t)
	acc := mustAccount(t, engine, userID, "Empty", "USD", "0")

	if err := engine.DeleteAccount(ctx, userID, acc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := mem.GetAccount(ctx, acc.ID); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("expected account gone, got %v", err)
	}
}

func TestSetDefaultAccount_ClearsPriorFlag(t *testing.T) {
	// GIVEN: Two accounts where the first is default
	// WHEN: The second is made default
	// THEN: Exactly one default flag remains set, and the user reference moves

	ctx := context.Background()
	engine, mem, userID := newTestEngine(t)
	mustAccount(t, engine, userID, "Cash", "RUB", "0")
	second := mustAccount(t, engine, userID, "Card", "RUB", "0")

	if _, err := engine.SetDefaultAccount(ctx, userID, second.ID); err != nil {
		t.Fatalf("set default: %v", err)
	}

	accounts, err := mem.ListAccounts(ctx, userID)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	defaults := 0
	for _, a := range accounts {
		if a.IsDefault {
			defaults++
			if a.ID != second.ID {
				t.Errorf("wrong account flagged default: %s", a.Name)
			}
		}
	}
	if defaults != 1 {
		t.Errorf("expected exactly one default, got %d", defaults)
	}

	user, _ := mem.GetUser(ctx, userID)
	if user.DefaultAccountID == nil || *user.DefaultAccountID != second.ID {
		t.Error("user's default reference should point at the new default")
	}
}

func TestClearAllData_CountsAndClearsReference(t *testing.T) {
	// GIVEN: Two accounts and three transactions
	// WHEN: clear_all_data runs
	// THEN: Counts are reported and the default reference is cleared

	ctx := context.Background()
	engine, mem, userID := newTestEngine(t)
	a := mustAccount(t, engine, userID, "A", "EUR", "100")
	b := mustAccount(t, engine, userID, "B", "EUR", "0")

	if _, err := engine.AddExpense(ctx, userID, a.ID, dec("10"), "", ledger.TxMeta{}); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.AddIncome(ctx, userID, b.ID, dec("5"), "", ledger.TxMeta{}); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Transfer(ctx, userID, a.ID, b.ID, dec("20"), nil, "", ledger.TxMeta{}); err != nil {
		t.Fatal(err)
	}

	txCount, accCount, err := engine.ClearAllData(ctx, userID)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if txCount != 3 || accCount != 2 {
		t.Errorf("expected 3 transactions and 2 accounts deleted, got %d/%d", txCount, accCount)
	}

	user, _ := mem.GetUser(ctx, userID)
	if user.DefaultAccountID != nil {
		t.Error("default account reference should be cleared")
	}
}

// =============================================================================
// RAW INSERTS AND ROW NUMBERS
// =============================================================================

func TestCreateTransactionRaw_NoBalanceEffect(t *testing.T) {
	ctx := context.Background()
	engine, mem, userID := newTestEngine(t)
	acc := mustAccount(t, engine, userID, "Cash", "USD", "50")

	_, err := engine.CreateTransactionRaw(ctx, userID, ledger.TxExpense, dec("30"), "USD", acc.ID, ledger.TxMeta{})
	if err != nil {
		t.Fatalf("raw insert: %v", err)
	}
	if got := accountBalance(t, mem, acc.ID); !got.Equal(dec("50")) {
		t.Errorf("raw insert must not touch balance, got %s", got)
	}
}

func TestTransactionByRowNumber(t *testing.T) {
	// GIVEN: Three transactions with distinct operation dates
	// WHEN: Row 1 is resolved
	// THEN: It is the most recent transaction; out-of-range rows are NotFound

	ctx := context.Background()
	engine, _, userID := newTestEngine(t)
	acc := mustAccount(t, engine, userID, "Cash", "USD", "1000")

	older, _ := ledger.ParseOperationDate("2026-08-01", "UTC")
	newer, _ := ledger.ParseOperationDate("2026-08-20", "UTC")
	newest, _ := ledger.ParseOperationDate("2026-08-28", "UTC")

	if _, err := engine.AddExpense(ctx, userID, acc.ID, dec("1"), "", ledger.TxMeta{OperationDate: older}); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.AddExpense(ctx, userID, acc.ID, dec("2"), "", ledger.TxMeta{OperationDate: newest}); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.AddExpense(ctx, userID, acc.ID, dec("3"), "", ledger.TxMeta{OperationDate: newer}); err != nil {
		t.Fatal(err)
	}

	tx, err := engine.TransactionByRowNumber(ctx, userID, 1)
	if err != nil {
		t.Fatalf("row 1: %v", err)
	}
	if !tx.Amount.Equal(dec("2")) {
		t.Errorf("row 1 should be the newest transaction, got amount %s", tx.Amount)
	}

	if _, err := engine.TransactionByRowNumber(ctx, userID, 4); !errors.Is(err, ledger.ErrTransactionNotFound) {
		t.Errorf("expected not found for row 4, got %v", err)
	}
	if _, err := engine.TransactionByRowNumber(ctx, userID, 0); !errors.Is(err, ledger.ErrTransactionNotFound) {
		t.Errorf("expected not found for row 0, got %v", err)
	}
}

func TestOwnership_CrossUserAccessDenied(t *testing.T) {
	// GIVEN: Two users, one account each
	// WHEN: User B tries to spend from user A's account
	// THEN: The account is reported as not found, not forbidden

	ctx := context.Background()
	engine, _, userA := newTestEngine(t)
	accA := mustAccount(t, engine, userA, "Cash", "USD", "100")

	userB, err := engine.GetOrCreateUser(ctx, "ext-2", "")
	if err != nil {
		t.Fatal(err)
	}

	_, err = engine.AddExpense(ctx, userB.ID, accA.ID, dec("10"), "", ledger.TxMeta{})
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}
