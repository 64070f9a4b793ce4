// Package storetest holds the behavioural suite every store.Store
// implementation must pass.
package storetest

import (
	"context"
	"encoding/json"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/suite"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/store"
)

// Suite runs against a fresh store per test.
type Suite struct {
	suite.Suite
	NewStore func() store.Store

	ctx   context.Context
	store store.Store
	user  *domain.User
	prov  *domain.Provider
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.NewStore()

	user, err := s.store.EnsureUser(s.ctx, "default")
	s.Require().NoError(err)
	s.user = user

	s.prov = &domain.Provider{Name: "RevolutBusiness", Code: "REVBIZ", IsSource: true}
	s.Require().NoError(s.store.UpsertProvider(s.ctx, s.prov))
}

func (s *Suite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *Suite) owner() domain.Owner {
	return domain.Owner{UserID: s.user.ID, ProviderID: s.prov.ID}
}

func (s *Suite) account(ref string) *domain.Account {
	a := &domain.Account{UserID: s.user.ID, ProviderID: s.prov.ID, ExternalRef: ref, Name: "Main", Currency: "GBP"}
	_, err := s.store.UpsertAccount(s.ctx, a)
	s.Require().NoError(err)
	return a
}

func (s *Suite) transaction(accountID int64, ref string) *domain.Transaction {
	t := &domain.Transaction{
		AccountID:   accountID,
		ExternalRef: ref,
		Payee:       "Coffee",
		Amount:      -500,
		Date:        civil.Date{Year: 2020, Month: 1, Day: 1},
	}
	_, err := s.store.UpsertTransaction(s.ctx, t)
	s.Require().NoError(err)
	return t
}

func (s *Suite) TestEnsureUser_Idempotent() {
	again, err := s.store.EnsureUser(s.ctx, "default")
	s.Require().NoError(err)
	s.Equal(s.user.ID, again.ID)
}

func (s *Suite) TestUpsertRaw_CreatedThenUnchanged() {
	rec := domain.RawRecord{
		Type:        domain.RecordTransaction,
		Owner:       s.owner(),
		ExternalRef: "tx-1",
		Payload:     json.RawMessage(`{"id":"tx-1","amount":-5}`),
	}

	first, err := s.store.UpsertRaw(s.ctx, rec)
	s.Require().NoError(err)
	s.Equal(domain.Created, first.Outcome)

	stored, err := s.store.RawRecordsByID(s.ctx, []int64{first.ID})
	s.Require().NoError(err)
	s.Require().Len(stored, 1)

	second, err := s.store.UpsertRaw(s.ctx, rec)
	s.Require().NoError(err)
	s.Equal(domain.Unchanged, second.Outcome)
	s.Equal(first.ID, second.ID)

	after, err := s.store.RawRecordsByID(s.ctx, []int64{first.ID})
	s.Require().NoError(err)
	s.Require().Len(after, 1)
	s.JSONEq(string(stored[0].Payload), string(after[0].Payload))
	s.True(stored[0].LastSeenAt.Equal(after[0].LastSeenAt))
}

func (s *Suite) TestUpsertRaw_ReorderedKeysUnchanged() {
	rec := domain.RawRecord{Type: domain.RecordAccount, Owner: s.owner(), ExternalRef: "acc", Payload: json.RawMessage(`{"a":1,"b":2}`)}
	_, err := s.store.UpsertRaw(s.ctx, rec)
	s.Require().NoError(err)

	rec.Payload = json.RawMessage(`{"b":2,"a":1}`)
	res, err := s.store.UpsertRaw(s.ctx, rec)
	s.Require().NoError(err)
	s.Equal(domain.Unchanged, res.Outcome)
}

func (s *Suite) TestUpsertRaw_ChangedPayloadUpdated() {
	rec := domain.RawRecord{Type: domain.RecordTransaction, Owner: s.owner(), ExternalRef: "tx-1", Payload: json.RawMessage(`{"state":"pending"}`)}
	first, err := s.store.UpsertRaw(s.ctx, rec)
	s.Require().NoError(err)

	rec.Payload = json.RawMessage(`{"state":"completed"}`)
	res, err := s.store.UpsertRaw(s.ctx, rec)
	s.Require().NoError(err)
	s.Equal(domain.Updated, res.Outcome)
	s.Equal(first.ID, res.ID)

	stored, err := s.store.RawRecordsByID(s.ctx, []int64{res.ID})
	s.Require().NoError(err)
	s.JSONEq(`{"state":"completed"}`, string(stored[0].Payload))
}

func (s *Suite) TestUpsertRaw_LargeIntegerChangeUpdated() {
	rec := domain.RawRecord{Type: domain.RecordTransaction, Owner: s.owner(), ExternalRef: "tx-big", Payload: json.RawMessage(`{"id":12345678901234567}`)}
	_, err := s.store.UpsertRaw(s.ctx, rec)
	s.Require().NoError(err)

	rec.Payload = json.RawMessage(`{"id":12345678901234568}`)
	res, err := s.store.UpsertRaw(s.ctx, rec)
	s.Require().NoError(err)
	s.Equal(domain.Updated, res.Outcome)

	stored, err := s.store.RawRecordsByID(s.ctx, []int64{res.ID})
	s.Require().NoError(err)
	s.JSONEq(`{"id":12345678901234568}`, string(stored[0].Payload))
}

func (s *Suite) TestUpsertRaw_KeyIncludesType() {
	payload := json.RawMessage(`{}`)
	a, err := s.store.UpsertRaw(s.ctx, domain.RawRecord{Type: domain.RecordAccount, Owner: s.owner(), ExternalRef: "1", Payload: payload})
	s.Require().NoError(err)
	b, err := s.store.UpsertRaw(s.ctx, domain.RawRecord{Type: domain.RecordTransaction, Owner: s.owner(), ExternalRef: "1", Payload: payload})
	s.Require().NoError(err)
	s.Equal(domain.Created, b.Outcome)
	s.NotEqual(a.ID, b.ID)
}

func (s *Suite) TestUpsertTransaction_AnyFieldTriggersUpdate() {
	acct := s.account("acc-1")
	tx := s.transaction(acct.ID, "leg-1")

	same := *tx
	res, err := s.store.UpsertTransaction(s.ctx, &same)
	s.Require().NoError(err)
	s.Equal(domain.Unchanged, res.Outcome)

	changed := *tx
	changed.IsTransfer = true
	res, err = s.store.UpsertTransaction(s.ctx, &changed)
	s.Require().NoError(err)
	s.Equal(domain.Updated, res.Outcome)
	s.Equal(tx.ID, res.ID)

	withAttachment := changed
	withAttachment.Attachments = []domain.Attachment{{URL: "https://files/1", Filename: "r.pdf"}}
	res, err = s.store.UpsertTransaction(s.ctx, &withAttachment)
	s.Require().NoError(err)
	s.Equal(domain.Updated, res.Outcome)

	got, err := s.store.TransactionsByID(s.ctx, []int64{tx.ID})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.True(got[0].IsTransfer)
	s.Equal(withAttachment.Attachments, got[0].Attachments)
	s.Equal(civil.Date{Year: 2020, Month: 1, Day: 1}, got[0].Date)
}

func (s *Suite) TestUpsertTransaction_NeverDuplicates() {
	acct := s.account("acc-1")
	first := s.transaction(acct.ID, "leg-1")
	second := s.transaction(acct.ID, "leg-1")
	s.Equal(first.ID, second.ID)
}

func (s *Suite) TestUpsertAccount() {
	a := s.account("acc-1")

	renamed := *a
	renamed.Name = "Business"
	res, err := s.store.UpsertAccount(s.ctx, &renamed)
	s.Require().NoError(err)
	s.Equal(domain.Updated, res.Outcome)

	got, err := s.store.AccountByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal("Business", got.Name)

	list, err := s.store.AccountsByProvider(s.ctx, s.user.ID, s.prov.ID)
	s.Require().NoError(err)
	s.Len(list, 1)

	_, err = s.store.AccountByID(s.ctx, 9999)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *Suite) TestLedger_AddIsIdempotentAndDeleteIsExact() {
	src, dst := s.account("src"), s.account("dst")
	profile := &domain.SyncProfile{UserID: s.user.ID, Name: "p", SourceAccountID: src.ID, TargetAccountID: dst.ID}
	s.Require().NoError(s.store.CreateProfile(s.ctx, profile))

	t1, t2 := s.transaction(src.ID, "a"), s.transaction(src.ID, "b")
	s.Require().NoError(s.store.AddLedgerEntry(s.ctx, profile.ID, t1.ID))
	s.Require().NoError(s.store.AddLedgerEntry(s.ctx, profile.ID, t1.ID))
	s.Require().NoError(s.store.AddLedgerEntry(s.ctx, profile.ID, t2.ID))

	entries, err := s.store.LedgerEntries(s.ctx, profile.ID)
	s.Require().NoError(err)
	s.Len(entries, 2)

	s.Require().NoError(s.store.DeleteLedgerEntries(s.ctx, profile.ID, []int64{t1.ID}))
	entries, err = s.store.LedgerEntries(s.ctx, profile.ID)
	s.Require().NoError(err)
	s.Equal([]domain.LedgerEntry{{ProfileID: profile.ID, TransactionID: t2.ID}}, entries)
}

func (s *Suite) TestDeleteTransactions_CascadesLedger() {
	src, dst := s.account("src"), s.account("dst")
	profile := &domain.SyncProfile{UserID: s.user.ID, Name: "p", SourceAccountID: src.ID, TargetAccountID: dst.ID}
	s.Require().NoError(s.store.CreateProfile(s.ctx, profile))

	tx := s.transaction(src.ID, "a")
	s.Require().NoError(s.store.AddLedgerEntry(s.ctx, profile.ID, tx.ID))
	s.Require().NoError(s.store.DeleteTransactions(s.ctx, []int64{tx.ID}))

	entries, err := s.store.LedgerEntries(s.ctx, profile.ID)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *Suite) TestCreateProfile_DuplicateName() {
	src, dst := s.account("src"), s.account("dst")
	p := &domain.SyncProfile{UserID: s.user.ID, Name: "nightly", SourceAccountID: src.ID, TargetAccountID: dst.ID}
	s.Require().NoError(s.store.CreateProfile(s.ctx, p))

	dup := *p
	dup.ID = 0
	err := s.store.CreateProfile(s.ctx, &dup)
	s.True(apperr.Is(err, apperr.KindDuplicateName), "got %v", err)

	got, err := s.store.ProfileByName(s.ctx, s.user.ID, "nightly")
	s.Require().NoError(err)
	s.Equal(p.ID, got.ID)

	_, err = s.store.ProfileByName(s.ctx, s.user.ID, "missing")
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *Suite) TestProviderConfig_RoundTrip() {
	cfg, err := s.store.ProviderConfig(s.ctx, s.owner())
	s.Require().NoError(err)
	s.Nil(cfg)

	want := map[string]any{"accessToken": "abc", "nested": map[string]any{"k": "v"}}
	s.Require().NoError(s.store.SaveProviderConfig(s.ctx, s.owner(), want))

	got, err := s.store.ProviderConfig(s.ctx, s.owner())
	s.Require().NoError(err)
	s.Equal(want, got)
}

func (s *Suite) TestUpsertProvider_ByName() {
	again := &domain.Provider{Name: "RevolutBusiness", Code: "REVBIZ", IsSource: true}
	s.Require().NoError(s.store.UpsertProvider(s.ctx, again))
	s.Equal(s.prov.ID, again.ID)

	got, err := s.store.ProviderByID(s.ctx, s.prov.ID)
	s.Require().NoError(err)
	s.Equal("REVBIZ", got.Code)
}

func (s *Suite) TestCategoryMap() {
	target := &domain.Provider{Name: "FreeAgent", Code: "FREEAG", IsSource: true, IsTarget: true}
	s.Require().NoError(s.store.UpsertProvider(s.ctx, target))

	left := &domain.Category{UserID: s.user.ID, ProviderID: s.prov.ID, ExternalRef: "11", Name: "Travel", Tree: []string{"Expenses", "Travel"}}
	right := &domain.Category{UserID: s.user.ID, ProviderID: target.ID, ExternalRef: "365", Name: "Travel"}
	_, err := s.store.UpsertCategory(s.ctx, left)
	s.Require().NoError(err)
	_, err = s.store.UpsertCategory(s.ctx, right)
	s.Require().NoError(err)

	s.Require().NoError(s.store.MapCategory(s.ctx, left.ID, right.ID))

	ref, err := s.store.MappedCategoryRef(s.ctx, left.ID, target.ID)
	s.Require().NoError(err)
	s.Equal("365", ref)

	ref, err = s.store.MappedCategoryRef(s.ctx, right.ID, s.prov.ID)
	s.Require().NoError(err)
	s.Equal("11", ref)

	_, err = s.store.MappedCategoryRef(s.ctx, left.ID, 9999)
	s.ErrorIs(err, store.ErrNotFound)

	got, err := s.store.CategoryByExternalRef(s.ctx, s.owner(), "11")
	s.Require().NoError(err)
	s.Equal([]string{"Expenses", "Travel"}, got.Tree)
}
