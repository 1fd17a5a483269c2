package ledger

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/username/ledgerdesk/backend/src/config"
	"github.com/username/ledgerdesk/backend/src/logger"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	serviceTokenIssuer   = "ledgerdesk-backend"
	serviceTokenSubject  = "transaction-core"
	serviceTokenAudience = "ledger-api"
)

// ClientConfig holds what is needed to reach the ledger API.
type ClientConfig struct {
	BaseURL            string
	Timeout            time.Duration
	ServiceTokenSecret []byte
	ServiceTokenTTL    time.Duration
	OAuthTokenURL      string
	OAuthClientID      string
	OAuthClientSecret  string
	OAuthScopes        []string
}

// ConfigFromApp extracts the ledger settings of the application config.
func ConfigFromApp(cfg *config.AppConfig) ClientConfig {
	return ClientConfig{
		BaseURL:            cfg.LedgerAPIBaseURL,
		Timeout:            cfg.LedgerAPITimeout,
		ServiceTokenSecret: cfg.LedgerServiceTokenSecret,
		ServiceTokenTTL:    cfg.LedgerServiceTokenTTL,
		OAuthTokenURL:      cfg.LedgerOAuthTokenURL,
		OAuthClientID:      cfg.LedgerOAuthClientID,
		OAuthClientSecret:  cfg.LedgerOAuthClientSecret,
		OAuthScopes:        cfg.LedgerOAuthScopes,
	}
}

// serviceTokenSource mints short-lived HS256 bearer tokens for the ledger API.
type serviceTokenSource struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewServiceTokenSource returns a token source signing service tokens with secret.
func NewServiceTokenSource(secret []byte, ttl time.Duration) oauth2.TokenSource {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &serviceTokenSource{secret: secret, ttl: ttl, now: time.Now}
}

func (s *serviceTokenSource) Token() (*oauth2.Token, error) {
	if len(s.secret) == 0 {
		return nil, errors.New("ledger service token secret is empty")
	}
	now := s.now()
	expiry := now.Add(s.ttl)

	claims := jwt.RegisteredClaims{
		Issuer:    serviceTokenIssuer,
		Subject:   serviceTokenSubject,
		Audience:  jwt.ClaimStrings{serviceTokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiry),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: signed, TokenType: "Bearer", Expiry: expiry}, nil
}

// ParseServiceToken validates a token minted by NewServiceTokenSource.
func ParseServiceToken(tokenString string, secret []byte) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(serviceTokenIssuer),
		jwt.WithAudience(serviceTokenAudience),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// NewHTTPClient builds the HTTP client used against the ledger API. OAuth2 client
// credentials take precedence over the shared-secret service token; with neither
// configured, requests are sent unauthenticated.
func NewHTTPClient(cfg ClientConfig) *http.Client {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := &http.Client{
		Jar:     jar,
		Timeout: timeout,
	}

	var source oauth2.TokenSource
	switch {
	case cfg.OAuthTokenURL != "":
		cc := clientcredentials.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			TokenURL:     cfg.OAuthTokenURL,
			Scopes:       cfg.OAuthScopes,
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})
		source = cc.TokenSource(tokenCtx)
		logger.L.Info("Ledger client using OAuth2 client credentials", "tokenURL", cfg.OAuthTokenURL)
	case len(cfg.ServiceTokenSecret) > 0:
		source = oauth2.ReuseTokenSource(nil, NewServiceTokenSource(cfg.ServiceTokenSecret, cfg.ServiceTokenTTL))
		logger.L.Info("Ledger client using signed service tokens")
	default:
		logger.L.Warn("Ledger client has no credentials configured; requests are unauthenticated")
	}

	if source != nil {
		client.Transport = &oauth2.Transport{Source: source}
	}
	return client
}
