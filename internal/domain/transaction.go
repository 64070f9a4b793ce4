package domain

import (
	"slices"

	"cloud.google.com/go/civil"
)

// Attachment describes a receipt or document linked to a transaction on the
// provider side. Only the reference is stored; the bytes are fetched on upload.
type Attachment struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	Description string `json:"description,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// Transaction is the canonical, provider-independent transaction.
// Amount is held in the lowest common unit of the account currency
// (e.g. cents), IN = positive, OUT = negative.
// (AccountID, ExternalRef) is unique.
type Transaction struct {
	ID          int64
	AccountID   int64
	ExternalRef string
	Payee       string
	Amount      int64
	Date        civil.Date
	IsTransfer  bool
	CategoryID  *int64
	Attachments []Attachment
}

func (*Transaction) Kind() RecordType { return RecordTransaction }

// SameContent reports whether every stored field other than ID matches.
func (t *Transaction) SameContent(o *Transaction) bool {
	if t.AccountID != o.AccountID ||
		t.ExternalRef != o.ExternalRef ||
		t.Payee != o.Payee ||
		t.Amount != o.Amount ||
		t.Date != o.Date ||
		t.IsTransfer != o.IsTransfer {
		return false
	}
	switch {
	case t.CategoryID == nil && o.CategoryID == nil:
	case t.CategoryID == nil || o.CategoryID == nil:
		return false
	case *t.CategoryID != *o.CategoryID:
		return false
	}
	return slices.Equal(t.Attachments, o.Attachments)
}

// Clone returns a deep copy.
func (t *Transaction) Clone() *Transaction {
	c := *t
	if t.CategoryID != nil {
		id := *t.CategoryID
		c.CategoryID = &id
	}
	c.Attachments = slices.Clone(t.Attachments)
	return &c
}
