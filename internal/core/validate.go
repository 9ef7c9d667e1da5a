package core

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Validate checks the transaction's own fields. Referenced rows are checked
// by the service layer.
func (t Transaction) Validate() error {
	const op = "validate transaction"
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Type.Valid() {
		return ValidationError(op, "unknown transaction type %q", t.Type)
	}
	if t.AccountID <= 0 {
		return ValidationError(op, "account is required")
	}
	if t.Date.IsZero() {
		return ValidationError(op, "date is required")
	}
	if utf8.RuneCountInString(t.Note) > maxNoteLength {
		return ValidationError(op, "note exceeds %d characters", maxNoteLength)
	}
	switch t.Type {
	case Transfer:
		if t.ToAccountID == nil {
			return ValidationError(op, "transfer requires a destination account")
		}
		if *t.ToAccountID == t.AccountID {
			return ValidationError(op, "transfer source and destination must differ")
		}
	default:
		if t.ToAccountID != nil {
			return ValidationError(op, "only transfers carry a destination account")
		}
		if t.CategoryID == nil {
			return ValidationError(op, "category is required")
		}
	}
	for _, tag := range t.Tags {
		if strings.Contains(tag, ListSeparator) {
			return ValidationError(op, "tag %q must not contain %q", tag, ListSeparator)
		}
	}
	for _, a := range t.Attachments {
		if !IsSafeRelativePath(a) || strings.Contains(a, ListSeparator) {
			return ValidationError(op, "invalid attachment path %q", a)
		}
	}
	return nil
}

func (a Account) Validate() error {
	const op = "validate account"
	if strings.TrimSpace(a.Name) == "" {
		return ValidationError(op, "account name is required")
	}
	if !a.Type.Valid() {
		return ValidationError(op, "unknown account type %q", a.Type)
	}
	if len(a.Currency) != 3 {
		return ValidationError(op, "currency must be a 3-letter code")
	}
	return nil
}

func (c Category) Validate() error {
	const op = "validate category"
	if strings.TrimSpace(c.Name) == "" {
		return ValidationError(op, "category name is required")
	}
	if !c.Type.Valid() {
		return ValidationError(op, "unknown category type %q", c.Type)
	}
	if c.ParentID != nil && c.ID != 0 && *c.ParentID == c.ID {
		return ValidationError(op, "category cannot be its own parent")
	}
	if c.MonthlyBudget != nil && c.MonthlyBudget.Cents < 0 {
		return ValidationError(op, "monthly budget cannot be negative")
	}
	return nil
}

// Validate covers the field rules of budget creation; uniqueness and the
// category lookup need the store.
func (b Budget) Validate() error {
	if b.Amount.Cents <= 0 {
		return ValidationError("validate budget", "budget amount must be greater than zero")
	}
	if b.NotifyThreshold != nil {
		if th := *b.NotifyThreshold; th <= 0 || th > 1 {
			return ValidationError("validate budget", "notify threshold must be in (0, 1]")
		}
	}
	return b.Period.Validate()
}

func (r RecurringTransaction) Validate() error {
	const op = "validate recurring transaction"
	tx := r.Template(r.StartDate)
	if err := tx.Validate(); err != nil {
		return err
	}
	if !r.Every.Valid() {
		return ValidationError(op, "unknown repetition %q", r.Every)
	}
	if !r.EndDate.IsZero() && r.EndDate.Before(r.StartDate) {
		return ValidationError(op, "end date before start date")
	}
	return nil
}

// Template returns the transaction the recurring template materializes on date.
func (r RecurringTransaction) Template(date time.Time) Transaction {
	return Transaction{
		Amount:      r.Amount,
		Type:        r.Type,
		CategoryID:  r.CategoryID,
		AccountID:   r.AccountID,
		ToAccountID: r.ToAccountID,
		Date:        date,
		Note:        r.Note,
	}
}

// IsSafeRelativePath rejects absolute paths and any ".." element.
func IsSafeRelativePath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) || strings.Contains(p, ":") {
		return false
	}
	for _, part := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return false
		}
	}
	return true
}
