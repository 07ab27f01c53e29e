package backend

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/luqta/shopbot/internal/models"
)

// UserClient drives the user management endpoints. Staff-only on the
// backend side; the bot gates access before calling.
type UserClient struct {
	caller
}

// NewUserClient creates a client rooted at the users API base URL
// (".../api/v1/auth/users/").
func NewUserClient(httpClient *http.Client, baseURL string, logger *slog.Logger) *UserClient {
	return &UserClient{caller: newCaller(httpClient, baseURL, logger)}
}

// Get retrieves a single user by id.
func (c *UserClient) Get(ctx context.Context, id string, accessToken string) (models.User, error) {
	var user models.User

	if err := c.do(ctx, http.MethodGet, id+"/", nil, nil, &user, accessToken); err != nil {
		return models.User{}, err
	}

	return user, nil
}

// List retrieves users, optionally filtered by query parameters.
func (c *UserClient) List(ctx context.Context, params url.Values, accessToken string) ([]models.User, error) {
	var users []models.User

	if err := c.do(ctx, http.MethodGet, "", params, nil, &users, accessToken); err != nil {
		return nil, err
	}

	return users, nil
}

// Update patches a user's fields.
func (c *UserClient) Update(ctx context.Context, id string, fields map[string]any, accessToken string) (models.User, error) {
	var user models.User

	if err := c.do(ctx, http.MethodPatch, id+"/", nil, fields, &user, accessToken); err != nil {
		return models.User{}, err
	}

	return user, nil
}

// Delete removes a user. The backend answers 204 on success.
func (c *UserClient) Delete(ctx context.Context, id string, accessToken string) error {
	return c.do(ctx, http.MethodDelete, id+"/", nil, nil, nil, accessToken)
}
