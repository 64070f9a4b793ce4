package engine

import (
	"strings"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/pocketsync/internal/domain"
)

// dedupKey is the identity two transactions from different systems share
// when they record the same economic event.
type dedupKey struct {
	payee  string
	amount int64
	date   civil.Date
}

func keyOf(t *domain.Transaction) dedupKey {
	return dedupKey{
		payee:  strings.ToLower(strings.TrimSpace(t.Payee)),
		amount: t.Amount,
		date:   t.Date,
	}
}

// MatchResult splits source transactions by whether the target already has
// them.
type MatchResult struct {
	// Unmatched are the source transactions to upload, in source order.
	Unmatched []*domain.Transaction
	// Duplicates are the source transactions with a target counterpart.
	Duplicates []*domain.Transaction
}

// MatchDuplicates pairs each source transaction with at most one unused
// target transaction of the same payee (trimmed, case-insensitive), amount
// and date. Two identical source transactions need two target counterparts
// to both count as duplicates.
func MatchDuplicates(source, target []*domain.Transaction) MatchResult {
	pool := make(map[dedupKey]int, len(target))
	for _, t := range target {
		pool[keyOf(t)]++
	}

	var res MatchResult
	for _, s := range source {
		k := keyOf(s)
		if pool[k] > 0 {
			pool[k]--
			res.Duplicates = append(res.Duplicates, s)
			continue
		}
		res.Unmatched = append(res.Unmatched, s)
	}
	return res
}
