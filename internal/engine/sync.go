package engine

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/logger"
	"github.com/dvloznov/pocketsync/internal/providers"
)

// side is one end of a profile: the account with its provider.
type side struct {
	account  *domain.Account
	provider domain.Provider
}

func (s side) String() string {
	return fmt.Sprintf("%s: %s", s.provider.Name, s.account.Name)
}

func (e *Engine) resolve(ctx context.Context, accountID int64) (side, providers.Adapter, error) {
	acc, err := e.Store.AccountByID(ctx, accountID)
	if err != nil {
		return side{}, nil, fmt.Errorf("loading account %d: %w", accountID, err)
	}
	inst, err := e.Loader.LoadByID(ctx, acc.ProviderID)
	if err != nil {
		return side{}, nil, err
	}
	return side{account: acc, provider: inst.Provider}, inst.Adapter, nil
}

// checkpoint is a cooperative cancellation point.
func checkpoint(ctx context.Context, r *run) error {
	if err := ctx.Err(); err != nil {
		if terr := r.to(Cancelled); terr != nil {
			return terr
		}
		return err
	}
	return nil
}

// RunSync runs one profile. A non-empty ledger is resumed as-is, unless the
// operator declines, in which case it is discarded and a fresh fetch runs.
func (e *Engine) RunSync(ctx context.Context, profile *domain.SyncProfile, opts Options) (err error) {
	log := e.Log.With().
		Str("profile", profile.Name).
		Str("run_id", uuid.NewString()).
		Bool("dry_run", opts.DryRun).
		Logger()
	ctx = logger.WithContext(ctx, log)

	r := newRun(profile.Name, log, e.Metrics)
	defer func() {
		if err != nil {
			r.fail()
		}
	}()

	srcSide, srcAdapter, err := e.resolve(ctx, profile.SourceAccountID)
	if err != nil {
		return fmt.Errorf("RunSync: source: %w", err)
	}
	tgtSide, tgtAdapter, err := e.resolve(ctx, profile.TargetAccountID)
	if err != nil {
		return fmt.Errorf("RunSync: target: %w", err)
	}
	source, ok := srcAdapter.(providers.Source)
	if !ok || !srcSide.provider.IsSource {
		return paramNotSource(srcSide.provider.Name)
	}
	target, ok := tgtAdapter.(providers.Target)
	if !ok || !tgtSide.provider.IsTarget {
		return paramNotTarget(tgtSide.provider.Name)
	}

	candidates, resumed, err := e.resume(ctx, profile, opts)
	if err != nil {
		return fmt.Errorf("RunSync: %w", err)
	}

	if resumed {
		if err := r.to(AwaitingConfirmation); err != nil {
			return err
		}
	} else {
		candidates, err = e.fetchAndDedup(ctx, r, profile, srcSide, tgtSide, source, target)
		if err != nil {
			return fmt.Errorf("RunSync: %w", err)
		}
		if r.state == Empty {
			return nil
		}
	}

	e.printf("%d transactions ready to push to %s (%s)", len(candidates), tgtSide.provider.Name, tgtSide.account.Name)

	if opts.DryRun {
		if err := e.printTable(candidates, srcSide.account.Currency); err != nil {
			return fmt.Errorf("RunSync: %w", err)
		}
		return r.to(Completed)
	}

	if err := checkpoint(ctx, r); err != nil {
		return err
	}
	proceed, err := e.confirm(ctx, opts, fmt.Sprintf("Ready to sync %s to %s. Proceed?", srcSide, tgtSide), false)
	if err != nil {
		return fmt.Errorf("RunSync: %w", err)
	}
	if !proceed {
		e.printf("Sync cancelled")
		return r.to(Cancelled)
	}

	return e.upload(ctx, r, profile, srcSide, tgtSide, target, candidates)
}

// resume loads the transactions of a pending ledger. It returns resumed=false
// when there is nothing to resume or the operator discarded the ledger.
func (e *Engine) resume(ctx context.Context, profile *domain.SyncProfile, opts Options) ([]*domain.Transaction, bool, error) {
	entries, err := e.Store.LedgerEntries(ctx, profile.ID)
	if err != nil {
		return nil, false, fmt.Errorf("reading ledger: %w", err)
	}
	if len(entries) == 0 {
		return nil, false, nil
	}

	ids := make([]int64, 0, len(entries))
	for _, le := range entries {
		ids = append(ids, le.TransactionID)
	}

	ok, err := e.confirm(ctx, opts, fmt.Sprintf("An incomplete sync job was found containing %d transactions. Resume it?", len(entries)), true)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		if err := e.Store.DeleteLedgerEntries(ctx, profile.ID, ids); err != nil {
			return nil, false, fmt.Errorf("clearing ledger: %w", err)
		}
		e.printf("%d transactions were cleared from previous sync job", len(entries))
		return nil, false, nil
	}

	txs, err := e.Store.TransactionsByID(ctx, ids)
	if err != nil {
		return nil, false, fmt.Errorf("loading ledger transactions: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().
		Int("ledger_entries", len(entries)).
		Int("transactions", len(txs)).
		Msg("Resuming incomplete sync job")
	return txs, len(txs) > 0, nil
}

func (e *Engine) fetchAndDedup(ctx context.Context, r *run, profile *domain.SyncProfile, src, tgt side, source providers.Source, target providers.Target) ([]*domain.Transaction, error) {
	log := logger.FromContext(ctx)

	if err := checkpoint(ctx, r); err != nil {
		return nil, err
	}
	if err := r.to(Fetching); err != nil {
		return nil, err
	}

	e.printf("Fetching most recent target transaction. Please wait ...")
	newest, found, err := target.NewestTransactionDate(ctx, tgt.account)
	if err != nil {
		return nil, fmt.Errorf("newest target transaction: %w", err)
	}
	var from civil.Date
	if found {
		from = newest
	}

	e.printf("Fetching source transactions from %s. Please wait ...", formatFrom(from))
	sourceTxs, err := source.DownloadTransactions(ctx, src.account, from)
	if err != nil {
		return nil, fmt.Errorf("downloading source transactions: %w", err)
	}
	if len(sourceTxs) == 0 {
		e.printf("No transactions to be pushed to %s (%s)", tgt.provider.Name, tgt.account.Name)
		return nil, r.to(Empty)
	}

	if err := checkpoint(ctx, r); err != nil {
		return nil, err
	}
	if err := r.to(Deduping); err != nil {
		return nil, err
	}

	// from is inclusive, so the target may already hold some of that day.
	e.printf("Fetching target transactions from %s. Please wait ...", formatFrom(from))
	targetTxs, err := target.DownloadTransactions(ctx, tgt.account, from)
	if err != nil {
		return nil, fmt.Errorf("downloading target transactions: %w", err)
	}

	res := MatchDuplicates(sourceTxs, targetTxs)
	if len(res.Duplicates) > 0 {
		ids := make([]int64, 0, len(res.Duplicates))
		for _, t := range res.Duplicates {
			ids = append(ids, t.ID)
		}
		if err := e.Store.DeleteLedgerEntries(ctx, profile.ID, ids); err != nil {
			return nil, fmt.Errorf("pruning duplicate ledger entries: %w", err)
		}
		e.Metrics.RecordDuplicates(profile.Name, len(res.Duplicates))
	}
	log.Info().
		Int("source", len(sourceTxs)).
		Int("target", len(targetTxs)).
		Int("duplicates", len(res.Duplicates)).
		Int("unmatched", len(res.Unmatched)).
		Msg("Deduplicated against target")

	if len(res.Unmatched) == 0 {
		e.printf("No transactions to be pushed to %s (%s)", tgt.provider.Name, tgt.account.Name)
		return nil, r.to(Empty)
	}
	return res.Unmatched, r.to(AwaitingConfirmation)
}

// upload records intent in the ledger, then streams the batch to the target
// and prunes one ledger entry per acknowledgment. The upload runs detached
// from ctx cancellation so a started batch always reaches completion or
// failure.
func (e *Engine) upload(ctx context.Context, r *run, profile *domain.SyncProfile, src, tgt side, target providers.Target, txs []*domain.Transaction) error {
	log := logger.FromContext(ctx)
	ctx = context.WithoutCancel(ctx)

	for _, t := range txs {
		if err := e.Store.AddLedgerEntry(ctx, profile.ID, t.ID); err != nil {
			return fmt.Errorf("RunSync: recording ledger entry %d: %w", t.ID, err)
		}
	}
	if err := r.to(Uploading); err != nil {
		return err
	}

	e.printf("Sync running - %s to %s. Please wait ...", src, tgt)
	req := providers.UploadRequest{
		Account: tgt.account,
		Origin: providers.Origin{
			ProviderCode: src.provider.Code,
			AccountRef:   src.account.ExternalRef,
			Currency:     src.account.Currency,
		},
		Transactions: txs,
	}

	var acked int
	for t, err := range target.UploadTransactions(ctx, req) {
		if err != nil {
			log.Error().
				Err(err).
				Int("acked", acked).
				Int("pending", len(txs)-acked).
				Msg("Upload failed; pending transactions stay in the ledger")
			return fmt.Errorf("RunSync: uploading to %s: %w", tgt, err)
		}
		if err := e.Store.DeleteLedgerEntries(ctx, profile.ID, []int64{t.ID}); err != nil {
			return fmt.Errorf("RunSync: pruning ledger entry %d: %w", t.ID, err)
		}
		acked++
		e.Metrics.RecordUploaded(profile.Name)
	}

	if pending := len(txs) - acked; pending > 0 {
		log.Warn().
			Int("acked", acked).
			Int("pending", pending).
			Msg("Target did not confirm every transaction; run the profile again to resume")
	}
	e.printf("Sync completed")
	return r.to(Completed)
}

func formatFrom(d civil.Date) string {
	if d.IsZero() {
		return "1970-01-01"
	}
	return d.String()
}
