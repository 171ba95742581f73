/*
confirm.go - The pending-action confirmation state machine

PURPOSE:
  Stages validated mutations as pending actions and resolves them on
  explicit confirm or cancel. Confirmation is the only path through which
  the mutation engine is reached for user-initiated changes.

CONFIRM CHECK ORDER:
  exists -> owner -> expiry -> status -> apply. Expiry is evaluated lazily
  here; there is no background sweep.

ATOMIC CONFIRM:
  For single mutations and imports, the pending->confirmed compare-and-set
  runs inside the same storage transaction as the apply. Two concurrent
  confirms of the same action cannot both commit: the loser's CAS fails and
  its transaction rolls back, leaving exactly one applied mutation.

  Batches commit sub-operations independently, so the same guard is not
  available. Instead the action is moved pending->confirmed up front (the
  concurrency gate), sub-operations are applied, and a fully-failed batch is
  moved back to pending so the user can retry after fixing the cause.

SEE ALSO:
  - engine.go: The operations applied on confirmation
  - validate.go: The checks that gate staging
*/
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// =============================================================================
// LIFECYCLE METRICS
// =============================================================================

// LifecycleMetrics receives pending-action state transitions. Implemented by
// the metrics package; NopMetrics is used when observability is not wired.
type LifecycleMetrics interface {
	ActionStaged(kind ActionKind)
	ActionConfirmed(kind ActionKind)
	ActionCancelled(kind ActionKind)
	ActionExpired(kind ActionKind)
	ApplyFailed(kind ActionKind)
}

type NopMetrics struct{}

func (NopMetrics) ActionStaged(ActionKind)    {}
func (NopMetrics) ActionConfirmed(ActionKind) {}
func (NopMetrics) ActionCancelled(ActionKind) {}
func (NopMetrics) ActionExpired(ActionKind)   {}
func (NopMetrics) ApplyFailed(ActionKind)     {}

// =============================================================================
// CONFIRMATION SERVICE
// =============================================================================

// TTLConfig bounds how long each action shape stays confirmable.
type TTLConfig struct {
	Single time.Duration
	Batch  time.Duration
	Import time.Duration
}

func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		Single: DefaultSingleTTL,
		Batch:  DefaultBatchTTL,
		Import: DefaultImportTTL,
	}
}

type ConfirmationService struct {
	store     TxStore
	engine    *Engine
	validator *Validator
	resolver  AccountResolver
	metrics   LifecycleMetrics
	log       zerolog.Logger
	ttl       TTLConfig

	// now is swappable in tests to drive expiry.
	now func() time.Time
}

func NewConfirmationService(store TxStore, engine *Engine, validator *Validator, metrics LifecycleMetrics, log zerolog.Logger) *ConfirmationService {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &ConfirmationService{
		store:     store,
		engine:    engine,
		validator: validator,
		resolver:  FuzzyResolver{},
		metrics:   metrics,
		log:       log,
		ttl:       DefaultTTLConfig(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetTTLConfig overrides the staging windows. Zero fields keep defaults.
func (c *ConfirmationService) SetTTLConfig(cfg TTLConfig) {
	if cfg.Single > 0 {
		c.ttl.Single = cfg.Single
	}
	if cfg.Batch > 0 {
		c.ttl.Batch = cfg.Batch
	}
	if cfg.Import > 0 {
		c.ttl.Import = cfg.Import
	}
}

// =============================================================================
// STAGING
// =============================================================================

// Stage validates a single mutation intent and creates a pending action for
// it. Returns the action together with its rendered preview.
func (c *ConfirmationService) Stage(ctx context.Context, userID UserID, intent IntentKind, fields *Fields) (*PendingAction, string, error) {
	if !IsMutationIntent(intent) {
		return nil, "", &ValidationError{Deficiencies: []string{fmt.Sprintf("intent %q cannot be staged", intent)}}
	}
	res, err := c.validator.Validate(ctx, userID, intent, fields)
	if err != nil {
		return nil, "", err
	}
	if err := res.Err(); err != nil {
		return nil, "", err
	}

	payload := &Payload{Intent: intent, Fields: fields}
	return c.stage(ctx, userID, ActionKind(intent), payload, c.ttl.Single)
}

// StageBatch validates and stages an ordered list of sub-mutations as one
// pending action.
func (c *ConfirmationService) StageBatch(ctx context.Context, userID UserID, ops []BatchOperation) (*PendingAction, string, error) {
	res, err := c.validator.ValidateBatch(ctx, userID, ops)
	if err != nil {
		return nil, "", err
	}
	if err := res.Err(); err != nil {
		return nil, "", err
	}

	payload := &Payload{Operations: ops}
	return c.stage(ctx, userID, ActionBatch, payload, c.ttl.Batch)
}

// StageImport stages a full parsed import set. Import payloads are not
// validated against current state: they replace it wholesale.
func (c *ConfirmationService) StageImport(ctx context.Context, userID UserID, imp *ImportPayload) (*PendingAction, string, error) {
	if imp == nil || len(imp.Accounts) == 0 {
		return nil, "", &ValidationError{Deficiencies: []string{"import contains no accounts"}}
	}
	payload := &Payload{Import: imp}
	return c.stage(ctx, userID, ActionBulkImport, payload, c.ttl.Import)
}

func (c *ConfirmationService) stage(ctx context.Context, userID UserID, kind ActionKind, payload *Payload, ttl time.Duration) (*PendingAction, string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("encode payload: %w", err)
	}

	now := c.now()
	action := &PendingAction{
		ID:        NewActionID(),
		UserID:    userID,
		Kind:      kind,
		Payload:   raw,
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := c.store.CreatePendingAction(ctx, action); err != nil {
		return nil, "", err
	}

	c.metrics.ActionStaged(kind)
	c.log.Info().
		Str("action", string(action.ID)).
		Str("kind", string(kind)).
		Time("expires_at", action.ExpiresAt).
		Msg("staged pending action")
	return action, BuildPreview(kind, payload), nil
}

// SetPreviewMessage records the transport-layer message id of the rendered
// preview so it can be edited after resolution.
func (c *ConfirmationService) SetPreviewMessage(ctx context.Context, id ActionID, messageID int64) error {
	return c.store.SetPreviewMessage(ctx, id, messageID)
}

// GetAction loads a pending action, enforcing ownership.
func (c *ConfirmationService) GetAction(ctx context.Context, id ActionID, requester UserID) (*PendingAction, error) {
	action, err := c.store.GetPendingAction(ctx, id)
	if err != nil {
		return nil, err
	}
	if action.UserID != requester {
		return nil, ErrForbidden
	}
	return action, nil
}

// =============================================================================
// APPLY RESULTS
// =============================================================================

// ApplyResult reports what a confirmed action did.
type ApplyResult struct {
	Kind ActionKind

	// Single-mutation outcomes; at most one is set.
	Transaction *Transaction
	Account     *Account

	// Batch outcomes, one per sub-operation in order.
	Batch []BatchOutcome

	// Import summary.
	Import *ImportResult
}

// BatchOutcome is the per-index result of one batch sub-operation.
type BatchOutcome struct {
	Index       int
	Err         string
	Transaction *Transaction
	Account     *Account
}

// ImportResult summarizes a completed bulk import.
type ImportResult struct {
	ClearedTransactions  int
	ClearedAccounts      int
	AccountsCreated      int
	TransactionsImported int
	Skipped              int
}

// =============================================================================
// CONFIRM / CANCEL
// =============================================================================

// Confirm resolves a pending action by applying its mutation(s).
func (c *ConfirmationService) Confirm(ctx context.Context, id ActionID, requester UserID) (*ApplyResult, error) {
	action, err := c.GetAction(ctx, id, requester)
	if err != nil {
		return nil, err
	}

	if action.Expired(c.now()) {
		if err := c.store.UpdatePendingStatus(ctx, id, StatusPending, StatusExpired); err != nil {
			return nil, err
		}
		c.metrics.ActionExpired(action.Kind)
		c.log.Info().Str("action", string(id)).Msg("pending action expired")
		return nil, ErrActionExpired
	}

	if action.Status != StatusPending {
		return nil, ErrAlreadyProcessed
	}

	payload, err := action.DecodePayload()
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var result *ApplyResult
	switch action.Kind {
	case ActionBatch:
		result, err = c.applyBatch(ctx, action, payload.Operations)
	case ActionBulkImport:
		result, err = c.applyImport(ctx, action, payload.Import)
	default:
		result, err = c.applySingle(ctx, action, payload)
	}
	if err != nil {
		if _, partial := err.(*PartialBatchError); !partial {
			c.metrics.ApplyFailed(action.Kind)
		}
		return result, err
	}

	c.metrics.ActionConfirmed(action.Kind)
	c.log.Info().Str("action", string(id)).Str("kind", string(action.Kind)).Msg("confirmed pending action")
	return result, nil
}

// Cancel resolves a pending action without applying it. Accepted even past
// expiry, as long as the action has not already been resolved.
func (c *ConfirmationService) Cancel(ctx context.Context, id ActionID, requester UserID) error {
	action, err := c.GetAction(ctx, id, requester)
	if err != nil {
		return err
	}
	if err := c.store.UpdatePendingStatus(ctx, action.ID, StatusPending, StatusCancelled); err != nil {
		return err
	}
	c.metrics.ActionCancelled(action.Kind)
	c.log.Info().Str("action", string(id)).Msg("cancelled pending action")
	return nil
}

// =============================================================================
// APPLY - SINGLE MUTATION
// =============================================================================

func (c *ConfirmationService) applySingle(ctx context.Context, action *PendingAction, payload *Payload) (*ApplyResult, error) {
	result := &ApplyResult{Kind: action.Kind}
	err := c.store.WithTx(ctx, func(s Store) error {
		outcome, err := c.applyOperation(ctx, s, action.UserID, payload.Intent, payload.Fields)
		if err != nil {
			return err
		}
		result.Transaction = outcome.Transaction
		result.Account = outcome.Account
		return s.UpdatePendingStatus(ctx, action.ID, StatusPending, StatusConfirmed)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// =============================================================================
// APPLY - BATCH
// =============================================================================

// applyBatch applies sub-operations sequentially, each in its own storage
// transaction. Earlier successes are never rolled back by later failures.
func (c *ConfirmationService) applyBatch(ctx context.Context, action *PendingAction, ops []BatchOperation) (*ApplyResult, error) {
	// Concurrency gate: take the action out of pending before applying.
	if err := c.store.UpdatePendingStatus(ctx, action.ID, StatusPending, StatusConfirmed); err != nil {
		return nil, err
	}

	result := &ApplyResult{Kind: ActionBatch}
	succeeded := 0
	var failures []BatchFailure

	for i := range ops {
		op := &ops[i]
		outcome := BatchOutcome{Index: i + 1}
		err := c.store.WithTx(ctx, func(s Store) error {
			o, err := c.applyOperation(ctx, s, action.UserID, op.Intent, &op.Fields)
			if err != nil {
				return err
			}
			outcome.Transaction = o.Transaction
			outcome.Account = o.Account
			return nil
		})
		if err != nil {
			outcome.Err = err.Error()
			failures = append(failures, BatchFailure{Index: i + 1, Err: err.Error()})
			c.log.Warn().
				Str("action", string(action.ID)).
				Int("operation", i+1).
				Err(err).
				Msg("batch sub-operation failed")
		} else {
			succeeded++
		}
		result.Batch = append(result.Batch, outcome)
	}

	if succeeded == 0 {
		// Nothing happened. Reopen the action so the user can retry.
		if err := c.store.UpdatePendingStatus(ctx, action.ID, StatusConfirmed, StatusPending); err != nil {
			return result, err
		}
		c.metrics.ApplyFailed(ActionBatch)
		return result, &PartialBatchError{Succeeded: 0, Total: len(ops), Failures: failures}
	}
	if succeeded < len(ops) {
		return result, &PartialBatchError{Succeeded: succeeded, Total: len(ops), Failures: failures}
	}
	return result, nil
}

// =============================================================================
// APPLY - BULK IMPORT
// =============================================================================

// applyImport replaces the user's data wholesale in one storage transaction:
// clear, recreate accounts with imported balances, raw-insert transactions.
// Unparseable transactions are skipped and counted, never aborting the
// import; any store error aborts and rolls back the whole transaction.
func (c *ConfirmationService) applyImport(ctx context.Context, action *PendingAction, imp *ImportPayload) (*ApplyResult, error) {
	if imp == nil {
		return nil, &ValidationError{Deficiencies: []string{"import payload is empty"}}
	}

	result := &ApplyResult{Kind: ActionBulkImport}
	err := c.store.WithTx(ctx, func(s Store) error {
		user, err := s.GetUser(ctx, action.UserID)
		if err != nil {
			return err
		}

		txCleared, accCleared, err := c.engine.clearAllData(ctx, s, action.UserID)
		if err != nil {
			return err
		}

		summary := &ImportResult{ClearedTransactions: txCleared, ClearedAccounts: accCleared}

		// Imported balances are authoritative; accounts are created directly
		// rather than through the engine so no default-flag side effects or
		// transaction-derived balances apply.
		byName := map[string]*Account{}
		var first *Account
		var defaultAcc *Account
		for i := range imp.Accounts {
			ia := &imp.Accounts[i]
			account := &Account{
				ID:        NewAccountID(),
				UserID:    action.UserID,
				Name:      ia.Name,
				Currency:  normalizeCurrency(ia.Currency),
				Balance:   Quantize(ia.InitialBalance),
				CreatedAt: time.Now().UTC(),
			}
			if err := s.CreateAccount(ctx, account); err != nil {
				return err
			}
			byName[normalizeName(ia.Name)] = account
			if first == nil {
				first = account
			}
			if ia.IsDefault && defaultAcc == nil {
				defaultAcc = account
			}
			summary.AccountsCreated++
		}

		if defaultAcc == nil {
			defaultAcc = first
		}
		if defaultAcc != nil {
			defaultAcc.IsDefault = true
			if err := s.UpdateAccount(ctx, defaultAcc); err != nil {
				return err
			}
			user.DefaultAccountID = &defaultAcc.ID
			if err := s.UpdateUser(ctx, user); err != nil {
				return err
			}
		}

		for i := range imp.Transactions {
			it := &imp.Transactions[i]
			txType, ok := parseImportedType(it.Type)
			if !ok || !it.Amount.IsPositive() {
				summary.Skipped++
				continue
			}

			// A row without an operation date carries no position on the
			// timeline. Skip it rather than invent one.
			if it.OperationDate == "" {
				summary.Skipped++
				continue
			}
			opDate, err := ParseOperationDate(it.OperationDate, user.Timezone)
			if err != nil {
				summary.Skipped++
				continue
			}

			account := byName[normalizeName(it.AccountName)]
			if account == nil {
				account = first
			}
			if account == nil {
				summary.Skipped++
				continue
			}

			currency := normalizeCurrency(it.Currency)
			if currency == "" {
				currency = account.Currency
			}
			meta := TxMeta{Category: it.Category, Description: it.Description, OperationDate: opDate}
			if _, err := c.engine.createTransactionRaw(ctx, s, action.UserID, txType, it.Amount, currency, account.ID, meta); err != nil {
				return err
			}
			summary.TransactionsImported++
		}

		result.Import = summary
		return s.UpdatePendingStatus(ctx, action.ID, StatusPending, StatusConfirmed)
	})
	if err != nil {
		return nil, err
	}

	c.log.Info().
		Str("action", string(action.ID)).
		Int("accounts", result.Import.AccountsCreated).
		Int("transactions", result.Import.TransactionsImported).
		Int("skipped", result.Import.Skipped).
		Msg("bulk import applied")
	return result, nil
}

// =============================================================================
// APPLY - OPERATION DISPATCH
// =============================================================================

type operationOutcome struct {
	Transaction *Transaction
	Account     *Account
}

// applyOperation resolves the field bag against current state and invokes
// the matching engine operation within the caller's transaction scope.
func (c *ConfirmationService) applyOperation(ctx context.Context, s Store, userID UserID, intent IntentKind, fields *Fields) (operationOutcome, error) {
	var out operationOutcome
	if fields == nil {
		fields = &Fields{}
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return out, err
	}

	meta := TxMeta{
		Category:    fields.Category,
		Subcategory: fields.Subcategory,
		Description: fields.Description,
	}
	if fields.OperationDate != "" {
		meta.OperationDate, err = ParseOperationDate(fields.OperationDate, user.Timezone)
		if err != nil {
			return out, &ValidationError{Deficiencies: []string{
				fmt.Sprintf("operation date %q is not a recognizable date", fields.OperationDate)}}
		}
	}

	switch intent {
	case IntentIncome, IntentExpense:
		account, err := c.resolveAccountRef(ctx, s, user, fields.AccountName)
		if err != nil {
			return out, err
		}
		amount := deref(fields.Amount)
		if intent == IntentIncome {
			out.Transaction, err = c.engine.addIncome(ctx, s, userID, account.ID, amount, fields.Currency, meta)
		} else {
			out.Transaction, err = c.engine.addExpense(ctx, s, userID, account.ID, amount, fields.Currency, meta)
		}
		return out, err

	case IntentTransfer:
		from, err := c.resolveAccountRef(ctx, s, user, fields.FromAccountName)
		if err != nil {
			return out, err
		}
		to, err := c.resolveAccountRef(ctx, s, user, fields.ToAccountName)
		if err != nil {
			return out, err
		}
		out.Transaction, err = c.engine.transfer(ctx, s, userID, from.ID, to.ID,
			deref(fields.Amount), fields.ToAmount, fields.ToCurrency, meta)
		return out, err

	case IntentAccountAdd:
		if fields.AccountNew == nil {
			return out, &ValidationError{Deficiencies: []string{"account details are required"}}
		}
		out.Account, err = c.engine.createAccount(ctx, s, userID,
			fields.AccountNew.Name, fields.AccountNew.Currency, fields.AccountNew.InitialBalance)
		return out, err

	case IntentAccountDelete:
		account, err := c.resolveAccountRef(ctx, s, user, fields.AccountName)
		if err != nil {
			return out, err
		}
		return out, c.engine.deleteAccount(ctx, s, userID, account.ID)

	case IntentAccountRename:
		account, err := c.resolveAccountRef(ctx, s, user, fields.AccountOldName)
		if err != nil {
			return out, err
		}
		account.Name = fields.AccountNewName
		if err := s.UpdateAccount(ctx, account); err != nil {
			return out, err
		}
		out.Account = account
		return out, nil

	case IntentSetDefaultAccount:
		account, err := c.resolveAccountRef(ctx, s, user, fields.AccountName)
		if err != nil {
			return out, err
		}
		out.Account, err = c.engine.setDefaultAccount(ctx, s, userID, account.ID)
		return out, err

	case IntentEditTransaction:
		tx, err := c.resolveTransactionRef(ctx, s, userID, fields)
		if err != nil {
			return out, err
		}
		out.Transaction, err = c.engine.updateTransaction(ctx, s, userID, tx.ID,
			fields.NewAmount, fields.NewCategory, fields.NewDescription)
		return out, err

	case IntentDeleteTransaction:
		tx, err := c.resolveTransactionRef(ctx, s, userID, fields)
		if err != nil {
			return out, err
		}
		return out, c.engine.deleteTransaction(ctx, s, userID, tx.ID)

	case IntentClearAllData:
		_, _, err := c.engine.clearAllData(ctx, s, userID)
		return out, err

	default:
		return out, &ValidationError{Deficiencies: []string{fmt.Sprintf("unknown intent %q", intent)}}
	}
}

// resolveAccountRef resolves a named account, or falls back to the default
// when the name is empty.
func (c *ConfirmationService) resolveAccountRef(ctx context.Context, s Store, user *User, name string) (*Account, error) {
	accounts, err := s.ListAccounts(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if a := DefaultAccount(user, accounts); a != nil {
			return a, nil
		}
		return nil, ErrAccountNotFound
	}
	if a := c.resolver.Resolve(accounts, name); a != nil {
		return a, nil
	}
	return nil, ErrAccountNotFound
}

func (c *ConfirmationService) resolveTransactionRef(ctx context.Context, s Store, userID UserID, fields *Fields) (*Transaction, error) {
	switch {
	case fields.TransactionID != "":
		tx, err := s.GetTransaction(ctx, TransactionID(fields.TransactionID))
		if err != nil {
			return nil, err
		}
		if tx.UserID != userID {
			return nil, ErrTransactionNotFound
		}
		return tx, nil
	case fields.RowNumber != nil:
		return transactionByRowNumber(ctx, s, userID, *fields.RowNumber)
	default:
		return nil, ErrTransactionNotFound
	}
}

// =============================================================================
// SMALL HELPERS
// =============================================================================

func parseImportedType(s string) (TransactionType, bool) {
	switch TransactionType(normalizeName(s)) {
	case TxIncome:
		return TxIncome, true
	case TxExpense:
		return TxExpense, true
	case TxTransfer:
		return TxTransfer, true
	}
	return "", false
}
