/*
preview.go - Human-readable previews of staged actions

PURPOSE:
  Renders the text shown to the user between staging and confirmation.
  The preview is built from the serialized payload alone so it can be
  re-rendered at any time without touching ledger state.

Amounts are formatted with currency-aware symbols and separators where the
currency code is known, falling back to "123.45 XXX" otherwise.
*/
package ledger

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT FORMATTING
// =============================================================================

// FormatAmount renders an amount in its currency's conventional display form.
func FormatAmount(amount decimal.Decimal, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if c := money.GetCurrency(code); c != nil {
		minor := amount.Shift(int32(c.Fraction)).Round(0).IntPart()
		return money.New(minor, code).Display()
	}
	if code == "" {
		return amount.StringFixed(2)
	}
	return amount.StringFixed(2) + " " + code
}

// =============================================================================
// PREVIEW BUILDER
// =============================================================================

// BuildPreview renders the confirmation prompt for any staged payload.
func BuildPreview(kind ActionKind, p *Payload) string {
	switch kind {
	case ActionBatch:
		return buildBatchPreview(p.Operations)
	case ActionBulkImport:
		return buildImportPreview(p.Import)
	default:
		if p.Fields == nil {
			return "Confirm this action?"
		}
		return buildOperationPreview(p.Intent, p.Fields)
	}
}

func buildOperationPreview(intent IntentKind, f *Fields) string {
	var b strings.Builder

	switch intent {
	case IntentIncome:
		fmt.Fprintf(&b, "Income: %s", FormatAmount(deref(f.Amount), f.Currency))
		if f.AccountName != "" {
			fmt.Fprintf(&b, " to %q", f.AccountName)
		}
	case IntentExpense:
		fmt.Fprintf(&b, "Expense: %s", FormatAmount(deref(f.Amount), f.Currency))
		if f.AccountName != "" {
			fmt.Fprintf(&b, " from %q", f.AccountName)
		}
	case IntentTransfer:
		fmt.Fprintf(&b, "Transfer: %s from %q to %q",
			FormatAmount(deref(f.Amount), f.Currency), f.FromAccountName, f.ToAccountName)
		if f.ToAmount != nil {
			fmt.Fprintf(&b, " (credited %s)", FormatAmount(*f.ToAmount, f.ToCurrency))
		}
	case IntentAccountAdd:
		if f.AccountNew != nil {
			fmt.Fprintf(&b, "Create account %q (%s)", f.AccountNew.Name, strings.ToUpper(f.AccountNew.Currency))
			if !f.AccountNew.InitialBalance.IsZero() {
				fmt.Fprintf(&b, " with balance %s",
					FormatAmount(f.AccountNew.InitialBalance, f.AccountNew.Currency))
			}
		} else {
			b.WriteString("Create account")
		}
	case IntentAccountDelete:
		fmt.Fprintf(&b, "Delete account %q", f.AccountName)
	case IntentAccountRename:
		fmt.Fprintf(&b, "Rename account %q to %q", f.AccountOldName, f.AccountNewName)
	case IntentSetDefaultAccount:
		fmt.Fprintf(&b, "Set %q as the default account", f.AccountName)
	case IntentEditTransaction:
		b.WriteString("Edit transaction")
		writeTxRef(&b, f)
		if f.NewAmount != nil {
			fmt.Fprintf(&b, ": amount %s", FormatAmount(*f.NewAmount, f.Currency))
		}
		if f.NewCategory != nil {
			fmt.Fprintf(&b, ", category %q", *f.NewCategory)
		}
		if f.NewDescription != nil {
			fmt.Fprintf(&b, ", description %q", *f.NewDescription)
		}
	case IntentDeleteTransaction:
		b.WriteString("Delete transaction")
		writeTxRef(&b, f)
	case IntentClearAllData:
		b.WriteString("Delete ALL accounts and transactions. This cannot be undone")
	default:
		fmt.Fprintf(&b, "%s", intent)
	}

	if f.Category != "" {
		fmt.Fprintf(&b, " [%s", f.Category)
		if f.Subcategory != "" {
			fmt.Fprintf(&b, "/%s", f.Subcategory)
		}
		b.WriteString("]")
	}
	if f.Description != "" {
		fmt.Fprintf(&b, " - %s", f.Description)
	}
	if f.OperationDate != "" {
		fmt.Fprintf(&b, " on %s", f.OperationDate)
	}
	return b.String()
}

func buildBatchPreview(ops []BatchOperation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Confirm %d operations:\n", len(ops))
	for i := range ops {
		fmt.Fprintf(&b, "%d. %s\n", i+1, buildOperationPreview(ops[i].Intent, &ops[i].Fields))
	}
	return strings.TrimRight(b.String(), "\n")
}

func buildImportPreview(imp *ImportPayload) string {
	if imp == nil {
		return "Import data?"
	}
	return fmt.Sprintf(
		"Import %d accounts and %d transactions. All existing data will be replaced",
		len(imp.Accounts), len(imp.Transactions))
}

func writeTxRef(b *strings.Builder, f *Fields) {
	if f.RowNumber != nil {
		fmt.Fprintf(b, " #%d", *f.RowNumber)
	} else if f.TransactionID != "" {
		fmt.Fprintf(b, " %s", f.TransactionID)
	}
}

func deref(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
