/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers and the domain layer, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/intent.go: The field bag embedded in staging requests
*/
package api

import (
	"time"

	"github.com/finbot/ledger-engine/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// UserDTO represents a user in API responses.
type UserDTO struct {
	ID               string `json:"id"`
	ExternalID       string `json:"external_id"`
	Timezone         string `json:"timezone"`
	DefaultAccountID string `json:"default_account_id,omitempty"`
	CreatedAt        string `json:"created_at,omitempty"`
}

// GetOrCreateUserRequest identifies a user by opaque external id.
type GetOrCreateUserRequest struct {
	ExternalID string `json:"external_id"`
	Timezone   string `json:"timezone,omitempty"`
}

// AccountDTO represents an account in API responses. Balance is a decimal
// string to avoid float rounding on the wire.
type AccountDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Currency  string `json:"currency"`
	Balance   string `json:"balance"`
	IsDefault bool   `json:"is_default"`
	CreatedAt string `json:"created_at,omitempty"`
}

// TransactionDTO represents a ledger transaction. Row is the 1-based position
// in the most-recent-first listing, the handle used in edit/delete commands.
type TransactionDTO struct {
	Row           int    `json:"row,omitempty"`
	ID            string `json:"id"`
	Type          string `json:"type"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	AccountID     string `json:"account_id,omitempty"`
	FromAccountID string `json:"from_account_id,omitempty"`
	ToAccountID   string `json:"to_account_id,omitempty"`
	ToAmount      string `json:"to_amount,omitempty"`
	ToCurrency    string `json:"to_currency,omitempty"`
	Category      string `json:"category,omitempty"`
	Subcategory   string `json:"subcategory,omitempty"`
	Description   string `json:"description,omitempty"`
	OperationDate string `json:"operation_date"`
	CreatedAt     string `json:"created_at,omitempty"`
}

// ValidateRequest checks an intent's field bag without staging anything.
type ValidateRequest struct {
	UserID string            `json:"user_id"`
	Intent ledger.IntentKind `json:"intent"`
	Fields *ledger.Fields    `json:"data,omitempty"`
}

// ValidateResponse carries the deficiency list (empty = valid) and an
// optional clarification prompt.
type ValidateResponse struct {
	Valid         bool     `json:"valid"`
	Deficiencies  []string `json:"deficiencies,omitempty"`
	Clarification string   `json:"clarification,omitempty"`
}

// StageRequest stages a mutation for confirmation. Exactly one shape is
// used: intent+data for a single mutation, operations for a batch, or
// imported_data for a bulk import.
type StageRequest struct {
	UserID     string                  `json:"user_id"`
	Intent     ledger.IntentKind       `json:"intent,omitempty"`
	Fields     *ledger.Fields          `json:"data,omitempty"`
	Operations []ledger.BatchOperation `json:"operations,omitempty"`
	Import     *ledger.ImportPayload   `json:"imported_data,omitempty"`
}

// StageResponse returns the staged action's handle and preview text.
type StageResponse struct {
	ActionID  string `json:"action_id"`
	Kind      string `json:"kind"`
	Preview   string `json:"preview"`
	ExpiresAt string `json:"expires_at"`
}

// ActionDTO represents a pending action in API responses.
type ActionDTO struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Preview   string `json:"preview,omitempty"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
}

// ActorRequest identifies the requesting user on confirm/cancel.
type ActorRequest struct {
	UserID string `json:"user_id"`
}

// PreviewMessageRequest records the transport message id of the rendered
// preview.
type PreviewMessageRequest struct {
	UserID    string `json:"user_id"`
	MessageID int64  `json:"message_id"`
}

// ConfirmResponse reports what a confirmed action did.
type ConfirmResponse struct {
	Status      string             `json:"status"` // applied | partial
	Transaction *TransactionDTO    `json:"transaction,omitempty"`
	Account     *AccountDTO        `json:"account,omitempty"`
	Batch       []BatchOutcomeDTO  `json:"batch,omitempty"`
	Import      *ImportResultDTO   `json:"import,omitempty"`
	Message     string             `json:"message,omitempty"`
}

// BatchOutcomeDTO is the per-index result of one batch sub-operation.
type BatchOutcomeDTO struct {
	Index       int             `json:"index"`
	Error       string          `json:"error,omitempty"`
	Transaction *TransactionDTO `json:"transaction,omitempty"`
	Account     *AccountDTO     `json:"account,omitempty"`
}

// ImportResultDTO summarizes a completed bulk import.
type ImportResultDTO struct {
	ClearedTransactions  int `json:"cleared_transactions"`
	ClearedAccounts      int `json:"cleared_accounts"`
	AccountsCreated      int `json:"accounts_created"`
	TransactionsImported int `json:"transactions_imported"`
	Skipped              int `json:"skipped"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toUserDTO(u *ledger.User) UserDTO {
	dto := UserDTO{
		ID:         string(u.ID),
		ExternalID: u.ExternalID,
		Timezone:   u.Timezone,
		CreatedAt:  u.CreatedAt.Format(time.RFC3339),
	}
	if u.DefaultAccountID != nil {
		dto.DefaultAccountID = string(*u.DefaultAccountID)
	}
	return dto
}

func toAccountDTO(a *ledger.Account) AccountDTO {
	return AccountDTO{
		ID:        string(a.ID),
		Name:      a.Name,
		Currency:  a.Currency,
		Balance:   a.Balance.StringFixed(2),
		IsDefault: a.IsDefault,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTO(t *ledger.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:            string(t.ID),
		Type:          string(t.Type),
		Amount:        t.Amount.StringFixed(2),
		Currency:      t.Currency,
		ToCurrency:    t.ToCurrency,
		Category:      t.Category,
		Subcategory:   t.Subcategory,
		Description:   t.Description,
		OperationDate: t.OperationDate.Format(time.RFC3339),
		CreatedAt:     t.CreatedAt.Format(time.RFC3339),
	}
	if t.AccountID != nil {
		dto.AccountID = string(*t.AccountID)
	}
	if t.FromAccountID != nil {
		dto.FromAccountID = string(*t.FromAccountID)
	}
	if t.ToAccountID != nil {
		dto.ToAccountID = string(*t.ToAccountID)
	}
	if t.ToAmount != nil {
		dto.ToAmount = t.ToAmount.StringFixed(2)
	}
	return dto
}

func toBatchOutcomeDTOs(outcomes []ledger.BatchOutcome) []BatchOutcomeDTO {
	dtos := make([]BatchOutcomeDTO, len(outcomes))
	for i, o := range outcomes {
		dto := BatchOutcomeDTO{Index: o.Index, Error: o.Err}
		if o.Transaction != nil {
			tx := toTransactionDTO(o.Transaction)
			dto.Transaction = &tx
		}
		if o.Account != nil {
			a := toAccountDTO(o.Account)
			dto.Account = &a
		}
		dtos[i] = dto
	}
	return dtos
}

func toConfirmResponse(res *ledger.ApplyResult) ConfirmResponse {
	out := ConfirmResponse{Status: "applied"}
	if res == nil {
		return out
	}
	if res.Transaction != nil {
		tx := toTransactionDTO(res.Transaction)
		out.Transaction = &tx
	}
	if res.Account != nil {
		a := toAccountDTO(res.Account)
		out.Account = &a
	}
	if len(res.Batch) > 0 {
		out.Batch = toBatchOutcomeDTOs(res.Batch)
	}
	if res.Import != nil {
		out.Import = &ImportResultDTO{
			ClearedTransactions:  res.Import.ClearedTransactions,
			ClearedAccounts:      res.Import.ClearedAccounts,
			AccountsCreated:      res.Import.AccountsCreated,
			TransactionsImported: res.Import.TransactionsImported,
			Skipped:              res.Import.Skipped,
		}
	}
	return out
}
