package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"
)

// CodePrompt shows authURL to the user and returns the authorization code
// they paste back.
type CodePrompt func(ctx context.Context, authURL string) (string, error)

// AuthConfig configures an Authenticator.
type AuthConfig struct {
	// ClientSecretsFile is the OAuth client JSON downloaded from the Google
	// API console.
	ClientSecretsFile string
	// TokenFile stores the user's token. Ignored when Store is set.
	TokenFile string
	Store     TokenStore
	// Prompt runs the interactive consent flow when no token is stored. Nil
	// makes a missing token an error.
	Prompt CodePrompt
	// Transport is the base round tripper. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// Authenticator produces HTTP clients authorized for video uploads.
type Authenticator struct {
	cfg    AuthConfig
	store  TokenStore
	logger *slog.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	store := cfg.Store
	if store == nil {
		store = NewFileTokenStore(cfg.TokenFile)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Authenticator{cfg: cfg, store: store, logger: logger.With("component", "auth")}
}

// OAuthConfig reads the client secrets file.
func (a *Authenticator) OAuthConfig() (*oauth2.Config, error) {
	data, err := os.ReadFile(a.cfg.ClientSecretsFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: client secrets file %s not found; download it from the Google API console",
				ErrCredentials, a.cfg.ClientSecretsFile)
		}
		return nil, fmt.Errorf("%w: read client secrets: %v", ErrCredentials, err)
	}
	conf, err := google.ConfigFromJSON(data, youtube.YoutubeUploadScope)
	if err != nil {
		return nil, fmt.Errorf("%w: parse client secrets: %v", ErrCredentials, err)
	}
	return conf, nil
}

func (a *Authenticator) transport() http.RoundTripper {
	base := a.cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(base)
}

// Client returns an HTTP client carrying a valid access token. The stored
// token is refreshed when expired and the refreshed token is persisted.
func (a *Authenticator) Client(ctx context.Context) (*http.Client, error) {
	conf, err := a.OAuthConfig()
	if err != nil {
		return nil, err
	}

	tok, err := a.store.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentials, err)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: a.transport()})

	if tok == nil {
		if tok, err = a.authorize(ctx, conf); err != nil {
			return nil, err
		}
	}

	src := conf.TokenSource(ctx, tok)
	fresh, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: refresh token: %v", ErrCredentials, err)
	}
	persisting := &persistingSource{src: src, store: a.store, last: tok, logger: a.logger}
	if err := persisting.persist(fresh); err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(fresh, persisting),
			Base:   a.transport(),
		},
	}, nil
}

// Authorize runs the consent flow unconditionally and stores the new token.
func (a *Authenticator) Authorize(ctx context.Context) error {
	conf, err := a.OAuthConfig()
	if err != nil {
		return err
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: a.transport()})
	_, err = a.authorize(ctx, conf)
	return err
}

func (a *Authenticator) authorize(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error) {
	if a.cfg.Prompt == nil {
		return nil, fmt.Errorf("%w: no stored token; run the auth command first", ErrCredentials)
	}

	authURL := conf.AuthCodeURL(uuid.NewString(), oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	code, err := a.cfg.Prompt(ctx, authURL)
	if err != nil {
		return nil, fmt.Errorf("%w: authorization prompt: %v", ErrCredentials, err)
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: exchange authorization code: %v", ErrCredentials, err)
	}
	if err := a.store.Save(tok); err != nil {
		return nil, err
	}
	a.logger.Info("stored new upload token")
	return tok, nil
}

// persistingSource saves every token that differs from the last one seen.
type persistingSource struct {
	src    oauth2.TokenSource
	store  TokenStore
	logger *slog.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}
	if err := p.persist(tok); err != nil {
		p.logger.Warn("could not persist refreshed token", "error", err)
	}
	return tok, nil
}

func (p *persistingSource) persist(tok *oauth2.Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last != nil && p.last.AccessToken == tok.AccessToken {
		return nil
	}
	if err := p.store.Save(tok); err != nil {
		return err
	}
	p.last = tok
	p.logger.Debug("persisted refreshed token", "expiry", tok.Expiry)
	return nil
}
