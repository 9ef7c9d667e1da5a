package core

import (
	"strings"
	"time"
)

const (
	Expense  TransactionType = "expense"
	Income   TransactionType = "income"
	Transfer TransactionType = "transfer"
)

const (
	ExpenseCategory CategoryType = "expense"
	IncomeCategory  CategoryType = "income"
)

const (
	AccountCash       AccountType = "cash"
	AccountBankCard   AccountType = "bank_card"
	AccountCreditCard AccountType = "credit_card"
	AccountAlipay     AccountType = "alipay"
	AccountWeChat     AccountType = "wechat"
	AccountPayPal     AccountType = "paypal"
	AccountOther      AccountType = "other"
)

const (
	Daily   RepetitionType = "daily"
	Weekly  RepetitionType = "weekly"
	Monthly RepetitionType = "monthly"
	Yearly  RepetitionType = "yearly"
)

// OverallCategoryID is the category sentinel carried by the overall budget's progress.
const OverallCategoryID int64 = 0

const maxNoteLength = 500

// ListSeparator joins tags and attachment paths into one cell in tabular
// exports, so neither may contain it.
const ListSeparator = "|"

type (
	TransactionType string
	CategoryType    string
	AccountType     string
	RepetitionType  string

	Transaction struct {
		ID          int64           `json:"id"`
		Amount      Money           `json:"amount"`                  // magnitude; the sign comes from Type
		Type        TransactionType `json:"type"`
		CategoryID  *int64          `json:"category_id,omitempty"`
		AccountID   int64           `json:"account_id"`
		ToAccountID *int64          `json:"to_account_id,omitempty"` // transfers only
		Date        time.Time       `json:"date"`
		Note        string          `json:"note"`
		Tags        []string        `json:"tags,omitempty"`
		Location    string          `json:"location"`
		Attachments []string        `json:"attachments,omitempty"`   // paths relative to the images directory
		CreatedAt   time.Time       `json:"created_at"`
		UpdatedAt   time.Time       `json:"updated_at"`
	}

	Account struct {
		ID        int64       `json:"id"`
		Name      string      `json:"name"`
		Type      AccountType `json:"type"`
		Balance   Money       `json:"balance"`
		Currency  string      `json:"currency"`
		Archived  bool        `json:"archived"`
		CreatedAt time.Time   `json:"created_at"`
		UpdatedAt time.Time   `json:"updated_at"`
	}

	Category struct {
		ID            int64        `json:"id"`
		Name          string       `json:"name"`
		Type          CategoryType `json:"type"`
		Icon          string       `json:"icon"`
		Color         string       `json:"color"`
		ParentID      *int64       `json:"parent_id,omitempty"`
		OrderIndex    int          `json:"order_index"`
		Archived      bool         `json:"archived"`
		MonthlyBudget *Money       `json:"monthly_budget,omitempty"`
	}

	// Budget is a monthly spending cap. A nil CategoryID makes it the overall budget.
	Budget struct {
		ID              int64     `json:"id"`
		CategoryID      *int64    `json:"category_id,omitempty"`
		Period          YearMonth `json:"period"`
		Amount          Money     `json:"amount"`
		NotifyThreshold *float64  `json:"notify_threshold,omitempty"`
		Note            string    `json:"note"`
		Enabled         bool      `json:"enabled"`
		CreatedAt       time.Time `json:"created_at"`
		UpdatedAt       time.Time `json:"updated_at"`
	}

	// BudgetProgress joins a budget with the month's matching expenditure.
	BudgetProgress struct {
		BudgetID        int64    `json:"budget_id"`                  // 0 for the synthetic overall entry
		CategoryID      int64    `json:"category_id"`                // OverallCategoryID for the overall budget
		CategoryName    string   `json:"category_name"`
		Amount          Money    `json:"amount"`
		Spent           Money    `json:"spent"`
		Remaining       Money    `json:"remaining"`
		Progress        float64  `json:"progress"`                   // percent, not clamped
		NotifyThreshold *float64 `json:"notify_threshold,omitempty"`
		Synthetic       bool     `json:"synthetic"`
	}

	BudgetAlert struct {
		ID        int64     `json:"id"`
		BudgetID  int64     `json:"budget_id"`
		Period    YearMonth `json:"period"`
		Threshold float64   `json:"threshold"`
		Progress  float64   `json:"progress"`
		FiredAt   time.Time `json:"fired_at"`
	}

	RecurringTransaction struct {
		ID            int64           `json:"id"`
		Amount        Money           `json:"amount"`
		Type          TransactionType `json:"type"`
		CategoryID    *int64          `json:"category_id,omitempty"`
		AccountID     int64           `json:"account_id"`
		ToAccountID   *int64          `json:"to_account_id,omitempty"`
		Note          string          `json:"note"`
		Every         RepetitionType  `json:"every"`
		StartDate     time.Time       `json:"start_date"`
		EndDate       time.Time       `json:"end_date"`                // zero when open-ended
		LastExecution time.Time       `json:"last_execution"`          // zero when never executed
		Active        bool            `json:"active"`
	}

	// CategorySum is the total and count of one category's transactions.
	CategorySum struct {
		CategoryID   int64  `json:"category_id"`
		CategoryName string `json:"category_name"`
		Total        Money  `json:"total"`
		Count        int    `json:"count"`
	}

	BackupRecord struct {
		ID           int64     `json:"id"`
		FileName     string    `json:"file_name"`
		SizeBytes    int64     `json:"size_bytes"`
		Transactions int       `json:"transactions"`
		CreatedAt    time.Time `json:"created_at"`
	}

	// Dataset is every persisted entity, the unit of backup and bulk export.
	Dataset struct {
		Accounts     []Account         `json:"accounts"`
		Categories   []Category        `json:"categories"`
		Transactions []Transaction     `json:"transactions"`
		Budgets      []Budget          `json:"budgets"`
		Settings     map[string]string `json:"settings,omitempty"`
	}
)

func (t TransactionType) Valid() bool {
	switch t {
	case Expense, Income, Transfer:
		return true
	}
	return false
}

func (c CategoryType) Valid() bool {
	return c == ExpenseCategory || c == IncomeCategory
}

func (a AccountType) Valid() bool {
	switch a {
	case AccountCash, AccountBankCard, AccountCreditCard, AccountAlipay, AccountWeChat, AccountPayPal, AccountOther:
		return true
	}
	return false
}

func (r RepetitionType) Valid() bool {
	switch r {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// CategoryTypeFor returns the category type a transaction of type t must use.
func CategoryTypeFor(t TransactionType) (CategoryType, bool) {
	switch t {
	case Expense:
		return ExpenseCategory, true
	case Income:
		return IncomeCategory, true
	}
	return "", false
}

// IsOverall reports whether the budget caps total monthly spending.
func (b Budget) IsOverall() bool {
	return b.CategoryID == nil
}

// CategoryKey returns the category id, or OverallCategoryID for the overall budget.
func (b Budget) CategoryKey() int64 {
	if b.CategoryID == nil {
		return OverallCategoryID
	}
	return *b.CategoryID
}

// ClampedProgress is the progress-bar fill in [0, 100]. The numeric label
// keeps using Progress.
func (p BudgetProgress) ClampedProgress() float64 {
	switch {
	case p.Progress < 0:
		return 0
	case p.Progress > 100:
		return 100
	}
	return p.Progress
}

// OverBudget reports whether spending passed the cap.
func (p BudgetProgress) OverBudget() bool {
	return p.Remaining.Cents < 0
}

// ThresholdReached reports whether progress reached the notify threshold.
func (p BudgetProgress) ThresholdReached() bool {
	if p.NotifyThreshold == nil {
		return false
	}
	return p.Progress >= *p.NotifyThreshold*100
}

// Months returns every month the transaction touches; used for cache
// invalidation when a transaction moves between months on update.
func Months(txs ...Transaction) []YearMonth {
	seen := map[YearMonth]struct{}{}
	var out []YearMonth
	for _, tx := range txs {
		if tx.Date.IsZero() {
			continue
		}
		ym := YearMonthOf(tx.Date)
		if _, ok := seen[ym]; ok {
			continue
		}
		seen[ym] = struct{}{}
		out = append(out, ym)
	}
	return out
}

// BalanceEffect returns the signed balance delta the transaction applies to
// each account it touches.
func BalanceEffect(tx Transaction) map[int64]int64 {
	effect := map[int64]int64{}
	switch tx.Type {
	case Expense:
		effect[tx.AccountID] -= tx.Amount.Cents
	case Income:
		effect[tx.AccountID] += tx.Amount.Cents
	case Transfer:
		effect[tx.AccountID] -= tx.Amount.Cents
		if tx.ToAccountID != nil {
			effect[*tx.ToAccountID] += tx.Amount.Cents
		}
	}
	return effect
}

// NormalizeTags trims, drops blanks and dedupes while preserving order.
func NormalizeTags(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}
