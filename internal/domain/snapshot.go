package domain

// Snapshot is the immutable input of one evaluation run.
// Nothing in the engine writes to it.
type Snapshot struct {
	Customers    []Customer    `json:"customers"`
	Accounts     []Account     `json:"accounts"`
	Transactions []Transaction `json:"transactions"`
}

// IsEmpty reports whether the snapshot carries no transactions.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Transactions) == 0
}

// Index holds the lookup tables built once per run for foreign key resolution.
type Index struct {
	accounts  map[string]*Account
	customers map[string]*Customer
}

// NewIndex builds account and customer lookups for a snapshot.
// When IDs repeat, the last row wins.
func NewIndex(s *Snapshot) *Index {
	idx := &Index{
		accounts:  make(map[string]*Account),
		customers: make(map[string]*Customer),
	}
	if s == nil {
		return idx
	}

	for i := range s.Accounts {
		idx.accounts[s.Accounts[i].ID] = &s.Accounts[i]
	}
	for i := range s.Customers {
		idx.customers[s.Customers[i].ID] = &s.Customers[i]
	}
	return idx
}

// Account looks up an account by ID.
func (x *Index) Account(id string) (*Account, bool) {
	a, ok := x.accounts[id]
	return a, ok
}

// Customer looks up a customer by ID.
func (x *Index) Customer(id string) (*Customer, bool) {
	c, ok := x.customers[id]
	return c, ok
}

// OwnerOf resolves transaction -> account -> customer.
// A missing link is a *ReferentialIntegrityError.
func (x *Index) OwnerOf(tx *Transaction) (*Account, *Customer, error) {
	acct, ok := x.accounts[tx.AccountID]
	if !ok {
		return nil, nil, &ReferentialIntegrityError{
			Entity:      "transaction",
			EntityID:    tx.ID,
			Reference:   "account",
			ReferenceID: tx.AccountID,
		}
	}

	cust, ok := x.customers[acct.CustomerID]
	if !ok {
		return acct, nil, &ReferentialIntegrityError{
			Entity:      "account",
			EntityID:    acct.ID,
			Reference:   "customer",
			ReferenceID: acct.CustomerID,
		}
	}

	return acct, cust, nil
}

// CustomerIDOf resolves the owning customer ID of a transaction without
// requiring the customer row to exist. Used by best-effort joins.
func (x *Index) CustomerIDOf(tx *Transaction) (string, bool) {
	acct, ok := x.accounts[tx.AccountID]
	if !ok {
		return "", false
	}
	return acct.CustomerID, true
}
