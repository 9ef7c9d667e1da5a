package core

import "fmt"

// CheckIntegrity verifies every reference inside the dataset resolves to a
// row of the same dataset. It returns a FileFormatError naming the first
// dangling reference.
func (d Dataset) CheckIntegrity() error {
	const op = "check integrity"
	accounts := make(map[int64]struct{}, len(d.Accounts))
	for _, a := range d.Accounts {
		if _, dup := accounts[a.ID]; dup {
			return FileFormatError(op, "duplicate account id %d", a.ID)
		}
		accounts[a.ID] = struct{}{}
	}
	categories := make(map[int64]struct{}, len(d.Categories))
	for _, c := range d.Categories {
		if _, dup := categories[c.ID]; dup {
			return FileFormatError(op, "duplicate category id %d", c.ID)
		}
		categories[c.ID] = struct{}{}
	}
	for _, c := range d.Categories {
		if c.ParentID == nil {
			continue
		}
		if _, ok := categories[*c.ParentID]; !ok {
			return FileFormatError(op, "category %d references missing parent %d", c.ID, *c.ParentID)
		}
	}
	txIDs := make(map[int64]struct{}, len(d.Transactions))
	for _, tx := range d.Transactions {
		if _, dup := txIDs[tx.ID]; dup {
			return FileFormatError(op, "duplicate transaction id %d", tx.ID)
		}
		txIDs[tx.ID] = struct{}{}
		if _, ok := accounts[tx.AccountID]; !ok {
			return FileFormatError(op, "transaction %d references missing account %d", tx.ID, tx.AccountID)
		}
		if tx.ToAccountID != nil {
			if _, ok := accounts[*tx.ToAccountID]; !ok {
				return FileFormatError(op, "transaction %d references missing account %d", tx.ID, *tx.ToAccountID)
			}
		}
		if tx.CategoryID != nil {
			if _, ok := categories[*tx.CategoryID]; !ok {
				return FileFormatError(op, "transaction %d references missing category %d", tx.ID, *tx.CategoryID)
			}
		}
	}
	budgets := make(map[string]struct{}, len(d.Budgets))
	for _, b := range d.Budgets {
		if b.CategoryID != nil {
			if _, ok := categories[*b.CategoryID]; !ok {
				return FileFormatError(op, "budget %d references missing category %d", b.ID, *b.CategoryID)
			}
		}
		key := fmt.Sprintf("%d/%s", b.CategoryKey(), b.Period)
		if _, dup := budgets[key]; dup {
			return FileFormatError(op, "duplicate budget for category %d in %s", b.CategoryKey(), b.Period)
		}
		budgets[key] = struct{}{}
	}
	return nil
}

// AccountNames indexes account names by id.
func (d Dataset) AccountNames() map[int64]string {
	out := make(map[int64]string, len(d.Accounts))
	for _, a := range d.Accounts {
		out[a.ID] = a.Name
	}
	return out
}

// CategoryNames indexes category names by id.
func (d Dataset) CategoryNames() map[int64]string {
	out := make(map[int64]string, len(d.Categories))
	for _, c := range d.Categories {
		out[c.ID] = c.Name
	}
	return out
}

// ValidateRows applies the per-entity field rules to every row, reporting
// the first failure as a FileFormatError.
func (d Dataset) ValidateRows() error {
	const op = "validate dataset"
	for _, a := range d.Accounts {
		if err := a.Validate(); err != nil {
			return FileFormatError(op, "account %d: %s", a.ID, MessageOf(err))
		}
	}
	for _, c := range d.Categories {
		if err := c.Validate(); err != nil {
			return FileFormatError(op, "category %d: %s", c.ID, MessageOf(err))
		}
	}
	for _, t := range d.Transactions {
		if err := t.Validate(); err != nil {
			return FileFormatError(op, "transaction %d: %s", t.ID, MessageOf(err))
		}
	}
	for _, b := range d.Budgets {
		if err := b.Validate(); err != nil {
			return FileFormatError(op, "budget %d: %s", b.ID, MessageOf(err))
		}
	}
	return nil
}
