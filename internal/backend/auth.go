package backend

import (
	"context"
	"log/slog"
	"net/http"
)

// AuthClient drives the backend's token lifecycle endpoints. It is pure
// transport: caching tokens and deciding when to refresh is the auth
// service's job.
type AuthClient struct {
	caller
}

// NewAuthClient creates a client rooted at the auth API base URL
// (".../api/v1/auth/").
func NewAuthClient(httpClient *http.Client, baseURL string, logger *slog.Logger) *AuthClient {
	return &AuthClient{caller: newCaller(httpClient, baseURL, logger)}
}

// TokenPair is an access/refresh token pair as issued by the backend.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Credentials is a token-create request. TelegramID ties the issued pair
// to the chat principal.
type Credentials struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	TelegramID string `json:"telegram_id,omitempty"`
}

// RegisterRequest is a new-account request.
type RegisterRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Register creates a new backend account.
func (c *AuthClient) Register(ctx context.Context, req RegisterRequest) error {
	return c.do(ctx, http.MethodPost, "register/", nil, req, nil, "")
}

// CreateToken exchanges credentials for a token pair.
func (c *AuthClient) CreateToken(ctx context.Context, creds Credentials) (TokenPair, error) {
	// The create endpoint nests the pair one level deeper than refresh
	// does; the wrapper keeps that quirk out of callers.
	var data struct {
		Data TokenPair `json:"data"`
	}

	if err := c.do(ctx, http.MethodPost, "token/create/", nil, creds, &data, ""); err != nil {
		return TokenPair{}, err
	}

	return data.Data, nil
}

// RefreshToken exchanges a refresh token for a new pair, identifying
// the chat principal alongside it. The backend rotates the refresh
// token, so callers must store both returned values.
func (c *AuthClient) RefreshToken(ctx context.Context, refresh, principal string) (TokenPair, error) {
	var pair TokenPair

	body := map[string]string{"refresh": refresh}
	if principal != "" {
		body["telegram_id"] = principal
	}

	if err := c.do(ctx, http.MethodPost, "token/refresh/", nil, body, &pair, ""); err != nil {
		return TokenPair{}, err
	}

	return pair, nil
}

// DestroyToken revokes a refresh token server-side.
func (c *AuthClient) DestroyToken(ctx context.Context, refresh string) error {
	body := map[string]string{"refresh": refresh}

	return c.do(ctx, http.MethodPost, "token/destroy/", nil, body, nil, "")
}

// VerifyToken checks a token's validity with the backend.
func (c *AuthClient) VerifyToken(ctx context.Context, token string) error {
	body := map[string]string{"token": token}

	return c.do(ctx, http.MethodPost, "token/verify/", nil, body, nil, "")
}

// IsStaff asks whether the bearer of accessToken holds staff privileges.
func (c *AuthClient) IsStaff(ctx context.Context, accessToken string) (bool, error) {
	var data struct {
		IsStaff bool `json:"is_staff"`
	}

	if err := c.do(ctx, http.MethodGet, "me/is-staff/", nil, nil, &data, accessToken); err != nil {
		return false, err
	}

	return data.IsStaff, nil
}
