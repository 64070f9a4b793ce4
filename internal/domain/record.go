package domain

import (
	"encoding/json"
	"time"
)

// RecordType is the closed set of entity kinds the ingest path knows about.
type RecordType string

const (
	RecordAccount     RecordType = "account"
	RecordCategory    RecordType = "category"
	RecordTransaction RecordType = "transaction"
)

// Entity is implemented by the canonical records a raw payload can normalize
// into. The set is closed: *Account, *Category and *Transaction.
type Entity interface {
	Kind() RecordType
}

var (
	_ Entity = (*Account)(nil)
	_ Entity = (*Category)(nil)
	_ Entity = (*Transaction)(nil)
)

// Owner scopes raw records and config to one user on one provider.
type Owner struct {
	UserID     int64
	ProviderID int64
}

// RawRecord is the last-seen payload for one provider item.
// (Owner, Type, ExternalRef) is unique.
type RawRecord struct {
	ID          int64
	Type        RecordType
	Owner       Owner
	ExternalRef string
	Payload     json.RawMessage
	LastSeenAt  time.Time
}

// UpsertOutcome reports what an idempotent upsert did.
type UpsertOutcome int

const (
	Unchanged UpsertOutcome = iota
	Created
	Updated
)

func (o UpsertOutcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}
