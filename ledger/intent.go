/*
intent.go - Parsed-intent payloads staged into pending actions

PURPOSE:
  Defines the typed field bag an upstream natural-language parser produces,
  plus the composite payloads (batch, bulk import) a pending action can hold.
  These types round-trip losslessly through JSON: the serialized payload is
  what the Pending Action Store persists.

The parser itself is out of scope; this package only consumes its output.
*/
package ledger

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// INTENT KINDS
// =============================================================================

type IntentKind string

const (
	IntentIncome            IntentKind = "income"
	IntentExpense           IntentKind = "expense"
	IntentTransfer          IntentKind = "transfer"
	IntentAccountAdd        IntentKind = "account_add"
	IntentAccountDelete     IntentKind = "account_delete"
	IntentAccountRename     IntentKind = "account_rename"
	IntentSetDefaultAccount IntentKind = "set_default_account"
	IntentEditTransaction   IntentKind = "edit_transaction"
	IntentDeleteTransaction IntentKind = "delete_transaction"
	IntentClearAllData      IntentKind = "clear_all_data"
)

// MutationIntents lists every intent that requires staging and confirmation.
var MutationIntents = []IntentKind{
	IntentIncome, IntentExpense, IntentTransfer,
	IntentAccountAdd, IntentAccountDelete, IntentAccountRename,
	IntentSetDefaultAccount, IntentEditTransaction, IntentDeleteTransaction,
	IntentClearAllData,
}

func IsMutationIntent(k IntentKind) bool {
	for _, m := range MutationIntents {
		if m == k {
			return true
		}
	}
	return false
}

// =============================================================================
// FIELD BAG
// =============================================================================

// Fields is the union of every field an intent can carry. Optional fields
// are pointers or empty strings so the JSON encoding stays sparse.
type Fields struct {
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Currency string           `json:"currency,omitempty"`

	AccountName     string           `json:"account_name,omitempty"`
	FromAccountName string           `json:"from_account_name,omitempty"`
	ToAccountName   string           `json:"to_account_name,omitempty"`
	ToAmount        *decimal.Decimal `json:"to_amount,omitempty"`
	ToCurrency      string           `json:"to_currency,omitempty"`

	OperationDate string  `json:"operation_date,omitempty"`
	Period        *Period `json:"period,omitempty"`

	AccountNew     *NewAccount `json:"account_new,omitempty"`
	AccountOldName string      `json:"account_old_name,omitempty"`
	AccountNewName string      `json:"account_new_name,omitempty"`

	Category    string `json:"category,omitempty"`
	Subcategory string `json:"subcategory,omitempty"`
	Description string `json:"description,omitempty"`

	// Transaction reference for edit/delete: either a direct id or a 1-based
	// row number in the most-recent-first listing.
	TransactionID string `json:"transaction_id,omitempty"`
	RowNumber     *int   `json:"row_number,omitempty"`

	NewAmount      *decimal.Decimal `json:"new_amount,omitempty"`
	NewCategory    *string          `json:"new_category,omitempty"`
	NewDescription *string          `json:"new_description,omitempty"`
}

// Period is a date range descriptor carried by some intents.
type Period struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Preset string `json:"preset,omitempty"` // today|week|month|year|custom
}

// NewAccount describes an account to be created.
type NewAccount struct {
	Name           string          `json:"name"`
	Currency       string          `json:"currency"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

// =============================================================================
// COMPOSITE PAYLOADS
// =============================================================================

// BatchOperation is one sub-mutation inside a batch pending action.
type BatchOperation struct {
	Intent IntentKind `json:"intent"`
	Fields Fields     `json:"data"`
}

// ImportPayload is the full parsed account/transaction set of a bulk import.
// Balances come from the import source directly, not derived from the
// imported transactions.
type ImportPayload struct {
	Accounts     []ImportedAccount     `json:"accounts"`
	Transactions []ImportedTransaction `json:"transactions"`
}

type ImportedAccount struct {
	Name           string          `json:"name"`
	Currency       string          `json:"currency"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	IsDefault      bool            `json:"is_default,omitempty"`
}

type ImportedTransaction struct {
	Type          string          `json:"transaction_type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	AccountName   string          `json:"account_name,omitempty"`
	Category      string          `json:"category,omitempty"`
	Description   string          `json:"description,omitempty"`
	OperationDate string          `json:"operation_date,omitempty"`
}

// Payload is the serialized description of the mutation(s) a pending action
// will apply on confirmation. Exactly one of Fields, Operations, or Import
// is set, matching the action kind.
type Payload struct {
	Intent     IntentKind       `json:"intent"`
	Fields     *Fields          `json:"data,omitempty"`
	Operations []BatchOperation `json:"operations,omitempty"`
	Import     *ImportPayload   `json:"imported_data,omitempty"`
}
