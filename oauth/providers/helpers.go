package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const maxBodyBytes = 1 << 20

// DefaultRequestTimeout bounds provider calls when the caller set no deadline.
const DefaultRequestTimeout = 30 * time.Second

// EnsureTimeout returns ctx unchanged when it already has a deadline.
func EnsureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// ExchangeCode trades code for a token using httpClient, adding the PKCE
// verifier when one is given. A token endpoint rejection (4xx) is client-side,
// everything else is transport.
func ExchangeCode(ctx context.Context, id ID, cfg *oauth2.Config, httpClient *http.Client, code, verifier string) (*oauth2.Token, error) {
	if code == "" {
		return nil, ClientError(id, "authorization code missing")
	}
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	tok, err := cfg.Exchange(ctx, code, opts...)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode >= 400 && re.Response.StatusCode < 500 {
			return nil, ClientError(id, "code exchange rejected: %s", re.ErrorCode)
		}
		return nil, TransportError(id, fmt.Errorf("code exchange: %w", err))
	}
	return tok, nil
}

// FetchJSON GETs url with tok as bearer credentials and decodes the JSON
// body into dst. Non-2xx responses are transport failures.
func FetchJSON(ctx context.Context, id ID, httpClient *http.Client, url string, tok *oauth2.Token, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return TransportError(id, err)
	}
	req.Header.Set("Accept", "application/json")
	if tok != nil {
		tok.SetAuthHeader(req)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return TransportError(id, fmt.Errorf("profile request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return TransportError(id, fmt.Errorf("profile endpoint returned status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dst); err != nil {
		return TransportError(id, fmt.Errorf("decode profile: %w", err))
	}
	return nil
}

// DefaultHTTPClient returns a client with the default request timeout.
func DefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultRequestTimeout}
}
