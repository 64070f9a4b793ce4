package engine

import (
	"context"
	"errors"
	"iter"
	"sync"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/providers"
	"github.com/dvloznov/pocketsync/internal/providers/registry"
	"github.com/dvloznov/pocketsync/internal/store"
)

// fakeSource serves canned transactions, upserting them the way a real
// adapter's normalizer does so they carry IDs.
type fakeSource struct {
	store     store.Store
	account   *domain.Account
	txs       []domain.Transaction
	downloads int
	from      civil.Date
}

func (f *fakeSource) FetchAccounts(ctx context.Context) ([]*domain.Account, error) {
	return []*domain.Account{f.account}, nil
}

func (f *fakeSource) DownloadTransactions(ctx context.Context, account *domain.Account, from civil.Date) ([]*domain.Transaction, error) {
	f.downloads++
	f.from = from
	var out []*domain.Transaction
	for _, t := range f.txs {
		tx := t
		tx.AccountID = account.ID
		if _, err := f.store.UpsertTransaction(ctx, &tx); err != nil {
			return nil, err
		}
		out = append(out, &tx)
	}
	return out, nil
}

// fakeTarget acknowledges uploads according to its knobs.
type fakeTarget struct {
	mu        sync.Mutex
	account   *domain.Account
	existing  []*domain.Transaction
	newest    civil.Date
	hasNewest bool

	// failAfter > 0 fails the upload after that many acks.
	failAfter int
	// skip holds refs accepted but never confirmed.
	skip map[string]bool

	newestCalls   int
	downloadCalls int
	uploads       [][]*domain.Transaction
	requests      []providers.UploadRequest
	uploadCtxErr  error
}

func (f *fakeTarget) FetchAccounts(ctx context.Context) ([]*domain.Account, error) {
	return []*domain.Account{f.account}, nil
}

func (f *fakeTarget) DownloadTransactions(ctx context.Context, account *domain.Account, from civil.Date) ([]*domain.Transaction, error) {
	f.downloadCalls++
	return f.existing, nil
}

func (f *fakeTarget) NewestTransactionDate(ctx context.Context, account *domain.Account) (civil.Date, bool, error) {
	f.newestCalls++
	return f.newest, f.hasNewest, nil
}

func (f *fakeTarget) UploadTransactions(ctx context.Context, req providers.UploadRequest) iter.Seq2[*domain.Transaction, error] {
	return func(yield func(*domain.Transaction, error) bool) {
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.uploadCtxErr = ctx.Err()
		f.mu.Unlock()

		var sent []*domain.Transaction
		defer func() {
			f.mu.Lock()
			f.uploads = append(f.uploads, sent)
			f.mu.Unlock()
		}()
		for i, t := range req.Transactions {
			if f.failAfter > 0 && i == f.failAfter {
				yield(nil, errors.New("connection reset"))
				return
			}
			sent = append(sent, t)
			if f.skip[t.ExternalRef] {
				continue
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}

func (f *fakeTarget) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var refs []string
	for _, batch := range f.uploads {
		for _, t := range batch {
			refs = append(refs, t.ExternalRef)
		}
	}
	return refs
}

type fakeLoader struct {
	instances map[int64]registry.Instance
}

func (l *fakeLoader) LoadByID(ctx context.Context, id int64) (registry.Instance, error) {
	inst, ok := l.instances[id]
	if !ok {
		return registry.Instance{}, store.ErrNotFound
	}
	return inst, nil
}

// scriptedPrompt answers from queues and records the questions asked.
type scriptedPrompt struct {
	confirms  []bool
	selects   []int
	inputs    []string
	questions []string
}

func (p *scriptedPrompt) Confirm(ctx context.Context, question string, def bool) (bool, error) {
	p.questions = append(p.questions, question)
	if len(p.confirms) == 0 {
		return def, nil
	}
	v := p.confirms[0]
	p.confirms = p.confirms[1:]
	return v, nil
}

func (p *scriptedPrompt) Select(ctx context.Context, question string, options []string) (int, error) {
	p.questions = append(p.questions, question)
	if len(p.selects) == 0 {
		return 0, nil
	}
	v := p.selects[0]
	p.selects = p.selects[1:]
	return v, nil
}

func (p *scriptedPrompt) Input(ctx context.Context, question, def string) (string, error) {
	p.questions = append(p.questions, question)
	if len(p.inputs) == 0 {
		return def, nil
	}
	v := p.inputs[0]
	p.inputs = p.inputs[1:]
	return v, nil
}
