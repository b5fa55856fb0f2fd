package services

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/config"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
)

const firebaseIssuerPrefix = "https://securetoken.google.com/"

// Claims represents the Firebase ID token claims
type Claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// KeySource resolves the public key for a token key id.
type KeySource interface {
	PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// AuthService verifies Firebase ID tokens
type AuthService struct {
	projectID string
	keys      KeySource
	now       func() time.Time
	logger    *logger.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(cfg config.FirebaseConfig, keys KeySource, logger *logger.Logger) *AuthService {
	if keys == nil {
		keys = NewGoogleCertSource(cfg.CertsURL, nil)
	}
	return &AuthService{
		projectID: cfg.ProjectID,
		keys:      keys,
		now:       time.Now,
		logger:    logger.WithComponent("auth"),
	}
}

// VerifyIDToken validates a Firebase ID token and returns the identity it carries
func (s *AuthService) VerifyIDToken(ctx context.Context, tokenString string) (*entities.User, error) {
	if s.projectID == "" {
		return nil, fmt.Errorf("firebase project id: %w", entities.ErrNotConfigured)
	}
	if tokenString == "" {
		return nil, fmt.Errorf("missing token: %w", entities.ErrUnauthorized)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(s.projectID),
		jwt.WithIssuer(firebaseIssuerPrefix+s.projectID),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return s.keys.PublicKey(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %v: %w", err, entities.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims: %w", entities.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has empty subject: %w", entities.ErrUnauthorized)
	}

	return &entities.User{
		UID:           claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
	}, nil
}

// GoogleCertSource fetches the x509 certificates Google signs Firebase ID
// tokens with, caching them for as long as the response allows.
type GoogleCertSource struct {
	url    string
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	expires time.Time
}

func NewGoogleCertSource(url string, client *http.Client) *GoogleCertSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoogleCertSource{url: url, client: client, now: time.Now}
}

// PublicKey implements KeySource.
func (g *GoogleCertSource) PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.keys == nil || !g.now().Before(g.expires) {
		if err := g.refresh(ctx); err != nil {
			return nil, err
		}
	}

	key, ok := g.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return key, nil
}

func (g *GoogleCertSource) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return fmt.Errorf("build cert request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch certs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch certs: unexpected status %d", resp.StatusCode)
	}

	var certs map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&certs); err != nil {
		return fmt.Errorf("decode certs: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, pem := range certs {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return fmt.Errorf("parse cert %s: %w", kid, err)
		}
		keys[kid] = key
	}

	g.keys = keys
	g.expires = g.now().Add(maxAge(resp.Header.Get("Cache-Control")))
	return nil
}

func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
