package backend

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/luqta/shopbot/internal/models"
)

// ProductClient drives the product catalog endpoints.
type ProductClient struct {
	caller
}

// NewProductClient creates a client rooted at the products API base URL
// (".../api/v1/products/").
func NewProductClient(httpClient *http.Client, baseURL string, logger *slog.Logger) *ProductClient {
	return &ProductClient{caller: newCaller(httpClient, baseURL, logger)}
}

// Get retrieves a single product by slug.
func (c *ProductClient) Get(ctx context.Context, slug string) (models.Product, error) {
	var product models.Product

	if err := c.do(ctx, http.MethodGet, slug+"/", nil, nil, &product, ""); err != nil {
		return models.Product{}, err
	}

	return product, nil
}

// List retrieves the public catalog.
func (c *ProductClient) List(ctx context.Context) ([]models.Product, error) {
	var products []models.Product

	if err := c.do(ctx, http.MethodGet, "", nil, nil, &products, ""); err != nil {
		return nil, err
	}

	return products, nil
}

// ListByOwner retrieves the products belonging to one account. The
// caller's access token scopes the result server-side.
func (c *ProductClient) ListByOwner(ctx context.Context, owner string, accessToken string) ([]models.Product, error) {
	params := url.Values{"owner": {owner}}

	var products []models.Product
	if err := c.do(ctx, http.MethodGet, "", params, nil, &products, accessToken); err != nil {
		return nil, err
	}

	return products, nil
}
