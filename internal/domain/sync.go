package domain

// SyncProfile pairs a source account with a target account. Name is unique
// per user.
type SyncProfile struct {
	ID              int64
	UserID          int64
	Name            string
	SourceAccountID int64
	TargetAccountID int64
}

// LedgerEntry marks a transaction selected for upload under a profile and not
// yet confirmed delivered by the target.
type LedgerEntry struct {
	ProfileID     int64
	TransactionID int64
}
