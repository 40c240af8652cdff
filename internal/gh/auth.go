package gh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AppAuth mints installation access tokens for a GitHub App, for deployments
// that run without a PAT.
type AppAuth struct {
	AppID      string
	PrivateKey string

	// HTTPClient may be injected in tests; defaults to a 10s-timeout client.
	HTTPClient *http.Client
}

// InstallationToken is a short-lived installation access token.
type InstallationToken struct {
	Token     string
	ExpiresAt time.Time
}

// signJWT creates the App-level JWT used to request installation tokens.
func (a *AppAuth) signJWT() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(a.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}
	appID, err := strconv.ParseInt(a.AppID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid app ID: %w", err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    strconv.FormatInt(appID, 10),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

// InstallationToken returns an installation access token scoped to the
// repository's installation.
func (a *AppAuth) InstallationToken(ctx context.Context, owner, repo string) (*InstallationToken, error) {
	appJWT, err := a.signJWT()
	if err != nil {
		return nil, err
	}

	installationID, err := a.installationID(ctx, appJWT, owner, repo)
	if err != nil {
		return nil, err
	}

	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	url := fmt.Sprintf("https://api.github.com/app/installations/%d/access_tokens", installationID)
	if err := a.appRequest(ctx, http.MethodPost, url, appJWT, &result); err != nil {
		return nil, fmt.Errorf("failed to create installation token: %w", err)
	}
	return &InstallationToken{Token: result.Token, ExpiresAt: result.ExpiresAt}, nil
}

func (a *AppAuth) installationID(ctx context.Context, appJWT, owner, repo string) (int64, error) {
	var result struct {
		ID int64 `json:"id"`
	}
	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/installation", owner, repo)
	if err := a.appRequest(ctx, http.MethodGet, url, appJWT, &result); err != nil {
		return 0, fmt.Errorf("failed to resolve installation for %s/%s: %w", owner, repo, err)
	}
	return result.ID, nil
}

func (a *AppAuth) appRequest(ctx context.Context, method, url, appJWT string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	client := a.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GitHub API error: %d - %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
