package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Credential attaches authentication to the upstream dial request.
type Credential interface {
	// Apply returns the (possibly rewritten) endpoint URL and any extra
	// request headers for the WebSocket handshake.
	Apply(ctx context.Context, endpoint string) (string, http.Header, error)
}

// APIKeyCredential authenticates with a developer API key passed as a
// query parameter.
type APIKeyCredential struct {
	Key string
}

func (c APIKeyCredential) Apply(_ context.Context, endpoint string) (string, http.Header, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", c.Key)
	u.RawQuery = q.Encode()
	return u.String(), nil, nil
}

// OAuthCredential authenticates with a bearer token from an OAuth2 token
// source (application-default credentials in Vertex deployments).
type OAuthCredential struct {
	Source oauth2.TokenSource
}

// NewOAuthCredential builds a credential from application-default
// credentials with cloud-platform scope.
func NewOAuthCredential(ctx context.Context) (OAuthCredential, error) {
	src, err := google.DefaultTokenSource(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return OAuthCredential{}, fmt.Errorf("resolving default credentials: %w", err)
	}
	return OAuthCredential{Source: src}, nil
}

func (c OAuthCredential) Apply(_ context.Context, endpoint string) (string, http.Header, error) {
	tok, err := c.Source.Token()
	if err != nil {
		return "", nil, fmt.Errorf("fetching token: %w", err)
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+tok.AccessToken)
	return endpoint, h, nil
}
