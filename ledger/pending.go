/*
pending.go - Staged-change records awaiting confirmation

PURPOSE:
  A PendingAction is a short-lived record of a validated mutation that has
  been previewed to the user and awaits an explicit confirm or cancel.

STATE MACHINE:
  pending ──confirm──▶ confirmed   (terminal, exactly one apply attempt)
  pending ──cancel───▶ cancelled   (terminal, no effect)
  pending ──confirm after expiry──▶ expired (terminal, no effect)

  Exactly one non-pending transition is permitted. Expiry is evaluated
  lazily at confirm time; there is no background sweep.

SEE ALSO:
  - confirm.go: The transitions and apply semantics
*/
package ledger

import (
	"encoding/json"
	"time"
)

// =============================================================================
// ACTION KINDS AND STATUSES
// =============================================================================

// ActionKind mirrors the mutation intents plus the composite kinds.
type ActionKind string

const (
	ActionIncome            ActionKind = "income"
	ActionExpense           ActionKind = "expense"
	ActionTransfer          ActionKind = "transfer"
	ActionAccountAdd        ActionKind = "account_add"
	ActionAccountDelete     ActionKind = "account_delete"
	ActionAccountRename     ActionKind = "account_rename"
	ActionSetDefaultAccount ActionKind = "set_default_account"
	ActionEditTransaction   ActionKind = "edit_transaction"
	ActionDeleteTransaction ActionKind = "delete_transaction"
	ActionClearAllData      ActionKind = "clear_all_data"
	ActionBatch             ActionKind = "batch"
	ActionBulkImport        ActionKind = "bulk_import"
)

type PendingStatus string

const (
	StatusPending   PendingStatus = "pending"
	StatusConfirmed PendingStatus = "confirmed"
	StatusCancelled PendingStatus = "cancelled"
	StatusExpired   PendingStatus = "expired"
)

// Default time-to-live per action shape. Batches and imports are staged with
// shorter windows because their previews go stale faster.
const (
	DefaultSingleTTL = 15 * time.Minute
	DefaultBatchTTL  = 5 * time.Minute
	DefaultImportTTL = 10 * time.Minute
)

// =============================================================================
// PENDING ACTION
// =============================================================================

type PendingAction struct {
	ID     ActionID
	UserID UserID
	Kind   ActionKind

	// Payload is the JSON-serialized Payload describing the mutation(s).
	Payload json.RawMessage

	// PreviewMessageID references the rendered preview message in the
	// transport layer, so it can be edited later. Optional.
	PreviewMessageID *int64

	Status    PendingStatus
	CreatedAt time.Time
	ExpiresAt time.Time
}

// DecodePayload unmarshals the stored payload.
func (p *PendingAction) DecodePayload() (*Payload, error) {
	var out Payload
	if err := json.Unmarshal(p.Payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Expired reports whether the action's confirmation window has closed.
func (p *PendingAction) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
