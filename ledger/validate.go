/*
validate.go - Per-intent deficiency checks run before staging

PURPOSE:
  Given an intent kind and its field bag, produce a list of human-readable
  deficiency strings (empty = valid). Validation reads the store but never
  writes; no state changes when a deficiency is found.

CLARIFICATION VS FAILURE:
  A cross-currency transfer without an explicit credited amount is not a
  hard failure. It is reported as a clarification prompt so the caller can
  ask the user for the missing amount instead of rejecting the command.

BATCH SUPPRESSION:
  Batch validation tracks the accounts created earlier in the same batch and
  suppresses "account not found" for references to them, so an account_add
  followed by an expense on that account in one message validates cleanly.
*/
package ledger

import (
	"context"
	"fmt"
	"strings"
)

// =============================================================================
// VALIDATOR
// =============================================================================

type Validator struct {
	store    Store
	resolver AccountResolver
}

func NewValidator(store Store, resolver AccountResolver) *Validator {
	if resolver == nil {
		resolver = FuzzyResolver{}
	}
	return &Validator{store: store, resolver: resolver}
}

// ValidationResult separates hard deficiencies from a clarification prompt.
// Clarification is set when the intent is plausible but needs one more piece
// of information from the user.
type ValidationResult struct {
	Deficiencies  []string
	Clarification string
}

func (r ValidationResult) Valid() bool {
	return len(r.Deficiencies) == 0 && r.Clarification == ""
}

// Err converts the result into the matching error value, or nil when valid.
func (r ValidationResult) Err() error {
	if len(r.Deficiencies) > 0 {
		return &ValidationError{Deficiencies: r.Deficiencies}
	}
	if r.Clarification != "" {
		return &ClarificationError{Prompt: r.Clarification}
	}
	return nil
}

// =============================================================================
// SINGLE-INTENT VALIDATION
// =============================================================================

// Validate checks one intent's field bag against the user's current state.
// The returned error is reserved for store failures; domain deficiencies go
// into the result.
func (v *Validator) Validate(ctx context.Context, userID UserID, intent IntentKind, fields *Fields) (ValidationResult, error) {
	return v.validate(ctx, userID, intent, fields, nil)
}

// validate runs the per-intent rules. pendingNames holds lowercase account
// names created earlier in the same batch; references to them are treated as
// resolvable even though the accounts do not exist yet.
func (v *Validator) validate(ctx context.Context, userID UserID, intent IntentKind, fields *Fields, pendingNames map[string]bool) (ValidationResult, error) {
	var res ValidationResult
	if fields == nil {
		fields = &Fields{}
	}

	user, err := v.store.GetUser(ctx, userID)
	if err != nil {
		return res, err
	}
	accounts, err := v.store.ListAccounts(ctx, userID)
	if err != nil {
		return res, err
	}

	add := func(format string, args ...any) {
		res.Deficiencies = append(res.Deficiencies, fmt.Sprintf(format, args...))
	}

	checkDate := func() {
		if fields.OperationDate == "" {
			return
		}
		if _, err := ParseOperationDate(fields.OperationDate, user.Timezone); err != nil {
			add("operation date %q is not a recognizable date", fields.OperationDate)
		}
	}

	// resolveRef resolves an account reference, consulting the pending-batch
	// name set before reporting not-found. Returns nil both for "not found"
	// (reported) and "pending in batch" (suppressed).
	resolveRef := func(name, role string) *Account {
		if name == "" {
			return nil
		}
		if a := v.resolver.Resolve(accounts, name); a != nil {
			return a
		}
		if matchesPending(pendingNames, name) {
			return nil
		}
		add("%s account %q not found", role, name)
		return nil
	}

	switch intent {
	case IntentIncome, IntentExpense:
		if fields.Amount == nil || !fields.Amount.IsPositive() {
			add("amount must be present and positive")
		}
		checkDate()

		var account *Account
		if fields.AccountName != "" {
			account = resolveRef(fields.AccountName, "target")
		} else {
			account = DefaultAccount(user, accounts)
			if account == nil && !anyPending(pendingNames) {
				add("no account specified and no default account is set")
			}
		}
		if account != nil && fields.Currency != "" && !strings.EqualFold(fields.Currency, account.Currency) {
			add("currency %s does not match account %q currency %s",
				strings.ToUpper(fields.Currency), account.Name, account.Currency)
		}

	case IntentTransfer:
		if fields.Amount == nil || !fields.Amount.IsPositive() {
			add("amount must be present and positive")
		}
		checkDate()
		if fields.FromAccountName == "" {
			add("source account is required")
		}
		if fields.ToAccountName == "" {
			add("destination account is required")
		}
		from := resolveRef(fields.FromAccountName, "source")
		to := resolveRef(fields.ToAccountName, "destination")
		if from != nil && to != nil && from.ID == to.ID {
			add("source and destination are the same account (%q)", from.Name)
		}
		if from != nil && to != nil && !strings.EqualFold(from.Currency, to.Currency) && fields.ToAmount == nil {
			res.Clarification = fmt.Sprintf(
				"accounts %q (%s) and %q (%s) use different currencies; specify the credited amount",
				from.Name, from.Currency, to.Name, to.Currency)
		}

	case IntentAccountAdd:
		if fields.AccountNew == nil {
			add("account details are required")
			break
		}
		if strings.TrimSpace(fields.AccountNew.Name) == "" {
			add("account name is required")
		}
		if strings.TrimSpace(fields.AccountNew.Currency) == "" {
			add("account currency is required")
		}
		if (ExactResolver{}).Resolve(accounts, fields.AccountNew.Name) != nil {
			add("account %q already exists", fields.AccountNew.Name)
		}

	case IntentAccountDelete, IntentSetDefaultAccount:
		if fields.AccountName == "" {
			add("account name is required")
		} else {
			resolveRef(fields.AccountName, "target")
		}

	case IntentAccountRename:
		if fields.AccountOldName == "" {
			add("current account name is required")
		} else {
			resolveRef(fields.AccountOldName, "target")
		}
		if strings.TrimSpace(fields.AccountNewName) == "" {
			add("new account name is required")
		} else if (ExactResolver{}).Resolve(accounts, fields.AccountNewName) != nil {
			add("account %q already exists", fields.AccountNewName)
		}

	case IntentEditTransaction, IntentDeleteTransaction:
		if err := v.checkTransactionRef(ctx, userID, fields, add); err != nil {
			return res, err
		}
		if intent == IntentEditTransaction &&
			fields.NewAmount == nil && fields.NewCategory == nil && fields.NewDescription == nil {
			add("nothing to change")
		}
		if fields.NewAmount != nil && !fields.NewAmount.IsPositive() {
			add("new amount must be positive")
		}

	case IntentClearAllData:
		// No preconditions. The staged preview is the safety net.

	default:
		add("unknown intent %q", intent)
	}

	return res, nil
}

func (v *Validator) checkTransactionRef(ctx context.Context, userID UserID, fields *Fields, add func(string, ...any)) error {
	switch {
	case fields.TransactionID != "":
		tx, err := v.store.GetTransaction(ctx, TransactionID(fields.TransactionID))
		if err != nil {
			if IsNotFound(err) {
				add("transaction %q not found", fields.TransactionID)
				return nil
			}
			return err
		}
		if tx.UserID != userID {
			add("transaction %q not found", fields.TransactionID)
		}
	case fields.RowNumber != nil:
		if _, err := transactionByRowNumber(ctx, v.store, userID, *fields.RowNumber); err != nil {
			if IsNotFound(err) {
				add("transaction #%d not found", *fields.RowNumber)
				return nil
			}
			return err
		}
	default:
		add("transaction reference is required")
	}
	return nil
}

// =============================================================================
// BATCH VALIDATION
// =============================================================================

// ValidateBatch validates each sub-operation in order, prefixing deficiencies
// with the 1-based operation index. Account names created by earlier
// account_add operations are treated as resolvable by later operations.
func (v *Validator) ValidateBatch(ctx context.Context, userID UserID, ops []BatchOperation) (ValidationResult, error) {
	var out ValidationResult
	if len(ops) == 0 {
		out.Deficiencies = append(out.Deficiencies, "batch contains no operations")
		return out, nil
	}

	pending := map[string]bool{}
	for i := range ops {
		op := &ops[i]
		res, err := v.validate(ctx, userID, op.Intent, &op.Fields, pending)
		if err != nil {
			return out, err
		}
		for _, d := range res.Deficiencies {
			out.Deficiencies = append(out.Deficiencies, fmt.Sprintf("operation %d: %s", i+1, d))
		}
		if res.Clarification != "" && out.Clarification == "" {
			out.Clarification = fmt.Sprintf("operation %d: %s", i+1, res.Clarification)
		}

		if op.Intent == IntentAccountAdd && op.Fields.AccountNew != nil {
			pending[strings.ToLower(strings.TrimSpace(op.Fields.AccountNew.Name))] = true
		}
	}
	return out, nil
}

// =============================================================================
// PENDING-NAME HELPERS
// =============================================================================

func anyPending(pending map[string]bool) bool { return len(pending) > 0 }

// matchesPending applies the same loose matching the resolver uses, against
// the names of accounts staged earlier in the batch.
func matchesPending(pending map[string]bool, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	if pending[q] {
		return true
	}
	for name := range pending {
		if strings.Contains(name, q) || strings.Contains(q, name) {
			return true
		}
	}
	return false
}
