package ledger_test

import (
	"testing"

	"github.com/finbot/ledger-engine/ledger"
)

func namedAccounts(names ...string) []ledger.Account {
	accounts := make([]ledger.Account, 0, len(names))
	for _, n := range names {
		accounts = append(accounts, ledger.Account{ID: ledger.NewAccountID(), Name: n, Currency: "USD"})
	}
	return accounts
}

// =============================================================================
// FUZZY RESOLUTION
// =============================================================================

func TestFuzzyResolver_ExactMatchBeatsSubstring(t *testing.T) {
	// GIVEN: Accounts "Cash2" (older) and "Cash"
	// WHEN: "cash" is resolved
	// THEN: The exact match wins even though the substring match was created first

	accounts := namedAccounts("Cash2", "Cash")
	got := ledger.FuzzyResolver{}.Resolve(accounts, "cash")
	if got == nil || got.Name != "Cash" {
		t.Fatalf("expected exact match Cash, got %+v", got)
	}
}

func TestFuzzyResolver_SubstringBothDirections(t *testing.T) {
	accounts := namedAccounts("Main Card")

	// Query contained in name
	if got := (ledger.FuzzyResolver{}).Resolve(accounts, "card"); got == nil || got.Name != "Main Card" {
		t.Errorf("query-in-name should match, got %+v", got)
	}
	// Name contained in query
	if got := (ledger.FuzzyResolver{}).Resolve(accounts, "my main card please"); got == nil || got.Name != "Main Card" {
		t.Errorf("name-in-query should match, got %+v", got)
	}
}

func TestFuzzyResolver_CreationOrderBreaksTies(t *testing.T) {
	// GIVEN: Two accounts both containing "cash"
	// WHEN: "cash" is resolved with no exact match
	// THEN: The earlier-created account wins

	accounts := namedAccounts("Cash RUB", "Cash USD")
	got := ledger.FuzzyResolver{}.Resolve(accounts, "cash")
	if got == nil || got.Name != "Cash RUB" {
		t.Fatalf("expected first-created match, got %+v", got)
	}
}

func TestFuzzyResolver_NoMatch(t *testing.T) {
	accounts := namedAccounts("Cash", "Card")
	if got := (ledger.FuzzyResolver{}).Resolve(accounts, "broker"); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
	if got := (ledger.FuzzyResolver{}).Resolve(accounts, "   "); got != nil {
		t.Errorf("blank query should resolve to nil, got %+v", got)
	}
}

func TestExactResolver_IgnoresSubstrings(t *testing.T) {
	accounts := namedAccounts("Cash2")
	if got := (ledger.ExactResolver{}).Resolve(accounts, "cash"); got != nil {
		t.Errorf("expected nil for substring query, got %+v", got)
	}
	if got := (ledger.ExactResolver{}).Resolve(accounts, " CASH2 "); got == nil {
		t.Error("expected trimmed case-insensitive exact match")
	}
}

// =============================================================================
// DEFAULT FALLBACK CHAIN
// =============================================================================

func TestDefaultAccount_ExplicitReferenceWins(t *testing.T) {
	accounts := namedAccounts("A", "B")
	accounts[0].IsDefault = true
	user := &ledger.User{ID: ledger.NewUserID(), DefaultAccountID: &accounts[1].ID}

	got := ledger.DefaultAccount(user, accounts)
	if got == nil || got.Name != "B" {
		t.Fatalf("explicit reference should override the flag, got %+v", got)
	}
}

func TestDefaultAccount_FlagFallback(t *testing.T) {
	accounts := namedAccounts("A", "B")
	accounts[1].IsDefault = true

	got := ledger.DefaultAccount(&ledger.User{}, accounts)
	if got == nil || got.Name != "B" {
		t.Fatalf("expected flagged account, got %+v", got)
	}
}

func TestDefaultAccount_SoleAccountFallback(t *testing.T) {
	accounts := namedAccounts("Only")
	got := ledger.DefaultAccount(&ledger.User{}, accounts)
	if got == nil || got.Name != "Only" {
		t.Fatalf("a sole account is the implicit default, got %+v", got)
	}
}

func TestDefaultAccount_NoCandidate(t *testing.T) {
	accounts := namedAccounts("A", "B")
	if got := ledger.DefaultAccount(&ledger.User{}, accounts); got != nil {
		t.Errorf("expected nil with two unflagged accounts, got %+v", got)
	}
	if got := ledger.DefaultAccount(nil, nil); got != nil {
		t.Errorf("expected nil with no accounts, got %+v", got)
	}
}

func TestDefaultAccount_DanglingReferenceFallsThrough(t *testing.T) {
	// GIVEN: A user whose default reference points at a deleted account
	// WHEN: The default is resolved
	// THEN: The chain falls through to the flag

	accounts := namedAccounts("A", "B")
	accounts[0].IsDefault = true
	gone := ledger.NewAccountID()
	user := &ledger.User{ID: ledger.NewUserID(), DefaultAccountID: &gone}

	got := ledger.DefaultAccount(user, accounts)
	if got == nil || got.Name != "A" {
		t.Fatalf("expected flag fallback, got %+v", got)
	}
}
