/*
resolver.go - Account name resolution and default-account fallback

PURPOSE:
  Users reference accounts by loosely-typed names ("Cash", "my card").
  Resolution policy: exact case-insensitive match wins; otherwise a
  substring match in either direction is accepted, first match by account
  creation order. This is deliberately loose and has a known ambiguity risk
  ("Cash" also matches "Cash2"), so it lives behind an interface — a
  stricter matcher can replace it without touching the engine.
*/
package ledger

import "strings"

// =============================================================================
// ACCOUNT RESOLVER
// =============================================================================

// AccountResolver maps a user-supplied name to one of the user's accounts.
// Accounts are given in creation order. Returns nil when nothing matches.
type AccountResolver interface {
	Resolve(accounts []Account, query string) *Account
}

// FuzzyResolver is the default resolver: exact case-insensitive match, then
// substring containment in either direction.
type FuzzyResolver struct{}

func (FuzzyResolver) Resolve(accounts []Account, query string) *Account {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	for i := range accounts {
		if strings.ToLower(accounts[i].Name) == q {
			return &accounts[i]
		}
	}

	for i := range accounts {
		name := strings.ToLower(accounts[i].Name)
		if strings.Contains(name, q) || strings.Contains(q, name) {
			return &accounts[i]
		}
	}

	return nil
}

// ExactResolver matches only on a case-insensitive exact name. Used where
// fuzzy matching would be dangerous (e.g. duplicate-name checks).
type ExactResolver struct{}

func (ExactResolver) Resolve(accounts []Account, query string) *Account {
	q := strings.ToLower(strings.TrimSpace(query))
	for i := range accounts {
		if strings.ToLower(accounts[i].Name) == q {
			return &accounts[i]
		}
	}
	return nil
}

// =============================================================================
// DEFAULT ACCOUNT FALLBACK
// =============================================================================

// DefaultAccount resolves the account used when a mutation omits an explicit
// reference. Fallback chain: the user's explicit default reference, then the
// account-level default flag, then a sole account. Pure function so the
// chain is testable in isolation.
func DefaultAccount(user *User, accounts []Account) *Account {
	if user != nil && user.DefaultAccountID != nil {
		for i := range accounts {
			if accounts[i].ID == *user.DefaultAccountID {
				return &accounts[i]
			}
		}
	}

	for i := range accounts {
		if accounts[i].IsDefault {
			return &accounts[i]
		}
	}

	if len(accounts) == 1 {
		return &accounts[0]
	}

	return nil
}
