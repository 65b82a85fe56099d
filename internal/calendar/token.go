package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotAuthorized is returned when no usable OAuth token is on disk and a
// refresh is impossible. The operator has to rerun the authorization flow.
var ErrNotAuthorized = errors.New("calendar: not authorized")

const googleTokenURL = "https://oauth2.googleapis.com/token"

// storedToken is the on-disk OAuth token format, compatible with tokens
// written by Google's client libraries.
type storedToken struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	TokenURI     string    `json:"token_uri,omitempty"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Expiry       time.Time `json:"expiry"`
}

func (t *storedToken) valid() bool {
	return t.AccessToken != "" && time.Now().Before(t.Expiry.Add(-time.Minute))
}

func loadToken(path string) (*storedToken, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotAuthorized
		}
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok storedToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}

func saveToken(path string, tok *storedToken) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// refreshToken trades the refresh token for a fresh access token.
func refreshToken(ctx context.Context, hc *http.Client, tok *storedToken) error {
	if tok.RefreshToken == "" || tok.ClientID == "" || tok.ClientSecret == "" {
		return ErrNotAuthorized
	}
	endpoint := tok.TokenURI
	if endpoint == "" {
		endpoint = googleTokenURL
	}

	form := url.Values{
		"client_id":     {tok.ClientID},
		"client_secret": {tok.ClientSecret},
		"refresh_token": {tok.RefreshToken},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		bytes.NewBufferString(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("token refresh: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("token refresh: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: token endpoint status %d: %s",
			ErrNotAuthorized, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return fmt.Errorf("token refresh: %w", err)
	}
	if body.AccessToken == "" {
		return ErrNotAuthorized
	}

	tok.AccessToken = body.AccessToken
	tok.Expiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return nil
}
