package notion

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
)

// Service is the subset of the Notion API the adapter uses.
// This interface enables mocking and testing of Notion operations.
type Service interface {
	// RetrieveDatabase returns the database metadata.
	RetrieveDatabase(ctx context.Context, databaseID string) (*notionapi.Database, error)

	// CreatePage creates a new page in a Notion database with the given properties.
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)

	// QueryDatabase queries a Notion database with the given filter.
	QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// Client is the concrete implementation of Service using the Notion SDK.
type Client struct {
	client *notionapi.Client
}

// NewClient creates a new Client with the provided integration token.
func NewClient(token string) *Client {
	return &Client{
		client: notionapi.NewClient(notionapi.Token(token)),
	}
}

var _ Service = (*Client)(nil)

// RetrieveDatabase returns the database metadata.
func (n *Client) RetrieveDatabase(ctx context.Context, databaseID string) (*notionapi.Database, error) {
	db, err := n.client.Database.Get(ctx, notionapi.DatabaseID(databaseID))
	if err != nil {
		return nil, fmt.Errorf("RetrieveDatabase: %w", err)
	}
	return db, nil
}

// CreatePage creates a new page in a Notion database with the given properties.
func (n *Client) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	}

	page, err := n.client.Page.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}

	return page, nil
}

// QueryDatabase queries a Notion database with the given filter.
func (n *Client) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	resp, err := n.client.Database.Query(ctx, notionapi.DatabaseID(databaseID), req)
	if err != nil {
		return nil, fmt.Errorf("QueryDatabase: %w", err)
	}

	return resp, nil
}
