package freeagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/ingest"
	"github.com/dvloznov/pocketsync/internal/providers"
)

// categoryGroups are the keys of the categories response, with the label
// used as the root of each category's tree.
var categoryGroups = []struct {
	key   string
	label string
}{
	{"admin_expenses_categories", "Admin Expenses"},
	{"cost_of_sales_categories", "Cost of Sales"},
	{"income_categories", "Income"},
	{"general_categories", "General"},
}

var categorySchema = ingest.MustCompileSchema("freeagent_category", []byte(`{
	"type": "object",
	"required": ["url", "description"],
	"properties": {
		"url": {"type": "string"},
		"description": {"type": "string"},
		"group": {"type": "string"}
	}
}`))

type category struct {
	URL         string `json:"url"`
	Description string `json:"description"`
	Group       string `json:"group"`
}

// FetchCategories implements the providers.CategorySource interface.
func (a *Adapter) FetchCategories(ctx context.Context) ([]*domain.Category, error) {
	var resp map[string][]json.RawMessage
	if err := a.client.Do(ctx, providers.Get("categories", nil), &resp); err != nil {
		return nil, fmt.Errorf("FetchCategories: %w", err)
	}

	var items []ingest.Item
	for _, g := range categoryGroups {
		for _, raw := range resp[g.key] {
			var c category
			if err := json.Unmarshal(raw, &c); err != nil {
				return nil, apperr.Transport(err, "FetchCategories: decoding category")
			}
			ref, err := a.extractID("categories", c.URL)
			if err != nil {
				a.env.Log.Warn().Err(err).Msg("Skipping category without a usable URL")
				continue
			}
			// The group is not part of the item itself; keep it with the
			// payload so normalization can build the tree.
			c.Group = g.label
			payload, err := json.Marshal(c)
			if err != nil {
				return nil, fmt.Errorf("FetchCategories: %w", err)
			}
			items = append(items, ingest.Item{Ref: ref, Payload: payload})
		}
	}

	owner := a.env.Owner()
	return ingest.Process(ctx, a.env.Sink(), domain.RecordCategory, ingest.SinglePage(items), categorySchema,
		func(ctx context.Context, rec domain.RawRecord) (*domain.Category, bool, error) {
			var c category
			if err := json.Unmarshal(rec.Payload, &c); err != nil {
				return nil, false, apperr.Validation(err, "decoding category")
			}
			return &domain.Category{
				UserID:      owner.UserID,
				ProviderID:  owner.ProviderID,
				ExternalRef: rec.ExternalRef,
				Name:        c.Description,
				Tree:        []string{c.Group, c.Description},
			}, true, nil
		})
}
