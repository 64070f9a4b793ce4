package ingest

import (
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/store"
)

// Counter aggregates upsert outcomes for one batch.
type Counter struct {
	Created int
	Updated int
	Total   int
	IDs     []int64
}

// Add counts one result.
func (c *Counter) Add(res store.UpsertResult) {
	switch res.Outcome {
	case domain.Created:
		c.Created++
	case domain.Updated:
		c.Updated++
	}
	c.Total++
	if res.ID != 0 {
		c.IDs = append(c.IDs, res.ID)
	}
}

// Merge folds other into c.
func (c *Counter) Merge(other Counter) {
	c.Created += other.Created
	c.Updated += other.Updated
	c.Total += other.Total
	c.IDs = append(c.IDs, other.IDs...)
}
