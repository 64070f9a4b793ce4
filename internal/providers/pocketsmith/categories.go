package pocketsmith

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/dvloznov/pocketsync/internal/apperr"
	"github.com/dvloznov/pocketsync/internal/domain"
	"github.com/dvloznov/pocketsync/internal/ingest"
	"github.com/dvloznov/pocketsync/internal/providers"
)

var categorySchema = ingest.MustCompileSchema("pocketsmith_category", []byte(`{
	"type": "object",
	"required": ["id", "title"],
	"properties": {
		"id": {"type": "integer"},
		"title": {"type": "string"},
		"parent_id": {"type": ["integer", "null"]}
	}
}`))

type category struct {
	ID       int64      `json:"id"`
	Title    string     `json:"title"`
	ParentID *int64     `json:"parent_id"`
	Children []category `json:"children,omitempty"`
}

// flatten returns every category in the forest, parents before children.
func flatten(cats []category) []category {
	var out []category
	var walk func([]category)
	walk = func(level []category) {
		for _, c := range level {
			children := c.Children
			c.Children = nil
			out = append(out, c)
			walk(children)
		}
	}
	walk(cats)
	return out
}

// tree returns the titles from the root down to c.
func tree(c category, byID map[int64]category) []string {
	path := []string{c.Title}
	seen := map[int64]bool{c.ID: true}
	for c.ParentID != nil {
		parent, ok := byID[*c.ParentID]
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		path = append(path, parent.Title)
		c = parent
	}
	slices.Reverse(path)
	return path
}

// FetchCategories implements the providers.CategorySource interface.
func (a *Adapter) FetchCategories(ctx context.Context) ([]*domain.Category, error) {
	userID, err := a.me(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchCategories: %w", err)
	}
	var resp []category
	if err := a.client.Do(ctx, providers.Get("users/"+userID+"/categories", nil), &resp); err != nil {
		return nil, fmt.Errorf("FetchCategories: %w", err)
	}

	flat := flatten(resp)
	byID := make(map[int64]category, len(flat))
	items := make([]ingest.Item, 0, len(flat))
	for _, c := range flat {
		byID[c.ID] = c
		payload, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("FetchCategories: %w", err)
		}
		items = append(items, ingest.Item{Ref: strconv.FormatInt(c.ID, 10), Payload: payload})
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
				Name:        c.Title,
				Tree:        tree(c, byID),
			}, true, nil
		})
}
