package domain

import "slices"

// User owns provider credentials, accounts and sync profiles.
type User struct {
	ID   int64
	Name string
}

// Provider is an external financial system registered in the local store.
type Provider struct {
	ID       int64
	Name     string
	Code     string
	IsSource bool
	IsTarget bool
}

// Account is a provider-side ledger (bank account, transaction account,
// database) identified locally by (UserID, ProviderID, ExternalRef).
type Account struct {
	ID          int64
	UserID      int64
	ProviderID  int64
	ExternalRef string
	Name        string
	Currency    string
}

func (*Account) Kind() RecordType { return RecordAccount }

// SameContent reports whether every stored field other than ID matches.
func (a *Account) SameContent(o *Account) bool {
	return a.UserID == o.UserID &&
		a.ProviderID == o.ProviderID &&
		a.ExternalRef == o.ExternalRef &&
		a.Name == o.Name &&
		a.Currency == o.Currency
}

// Category is a provider-side category. Tree holds the titles from the root
// down to and including Name.
type Category struct {
	ID          int64
	UserID      int64
	ProviderID  int64
	ExternalRef string
	Name        string
	Tree        []string
}

func (*Category) Kind() RecordType { return RecordCategory }

// SameContent reports whether every stored field other than ID matches.
func (c *Category) SameContent(o *Category) bool {
	return c.UserID == o.UserID &&
		c.ProviderID == o.ProviderID &&
		c.ExternalRef == o.ExternalRef &&
		c.Name == o.Name &&
		slices.Equal(c.Tree, o.Tree)
}
