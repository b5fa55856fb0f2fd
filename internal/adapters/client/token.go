package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultSecureTokenURL is the Firebase endpoint that exchanges a refresh
// token for a fresh ID token.
const DefaultSecureTokenURL = "https://securetoken.googleapis.com/v1/token"

// firebaseSource refreshes Firebase ID tokens. The ID token is exposed as
// the oauth2 access token, which is what the API expects as the bearer.
type firebaseSource struct {
	endpoint     string
	apiKey       string
	refreshToken string
	httpClient   *http.Client
}

// NewFirebaseTokenSource returns a caching token source that refreshes ID
// tokens with the given refresh token.
func NewFirebaseTokenSource(apiKey, refreshToken, endpoint string, httpClient *http.Client) oauth2.TokenSource {
	if endpoint == "" {
		endpoint = DefaultSecureTokenURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return oauth2.ReuseTokenSource(nil, &firebaseSource{
		endpoint:     endpoint,
		apiKey:       apiKey,
		refreshToken: refreshToken,
		httpClient:   httpClient,
	})
}

type secureTokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
}

func (s *firebaseSource) Token() (*oauth2.Token, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {s.refreshToken},
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		s.endpoint+"?key="+url.QueryEscape(s.apiKey), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &oauth2.RetrieveError{Response: resp, Body: body}
	}

	var out secureTokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if out.IDToken == "" {
		return nil, fmt.Errorf("token response carried no id_token")
	}
	if out.RefreshToken != "" {
		s.refreshToken = out.RefreshToken
	}

	token := &oauth2.Token{AccessToken: out.IDToken, TokenType: "Bearer"}
	if secs, err := strconv.Atoi(out.ExpiresIn); err == nil && secs > 0 {
		token.Expiry = time.Now().Add(time.Duration(secs) * time.Second)
	}
	return token, nil
}

// TokenSource picks the credential the CLI should use: a refresh token when
// one and an API key are configured, else a static ID token. It returns nil
// when neither is available.
func TokenSource(apiKey, idToken, refreshToken string) oauth2.TokenSource {
	apiKey = strings.TrimSpace(apiKey)
	refreshToken = strings.TrimSpace(refreshToken)
	idToken = strings.TrimSpace(idToken)

	switch {
	case refreshToken != "" && apiKey != "":
		return NewFirebaseTokenSource(apiKey, refreshToken, "", nil)
	case idToken != "":
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: idToken, TokenType: "Bearer"})
	}
	return nil
}
