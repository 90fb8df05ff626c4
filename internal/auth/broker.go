// Package auth obtains and caches the bearer credentials the bot posts with,
// and issues the operator tokens that protect the admin API.
//
// AUTHORIZATION BROKER:
// Each category posts from its own X account, so each category needs its own
// OAuth2 access token. The broker hands one out in one of two ways:
//
//  1. Stored session (every run after the first): read the sessions row,
//     unseal it, return it. No network, no listener.
//  2. Interactive flow (first run only): PKCE authorization-code flow.
//     The operator opens a printed URL, approves the app, and X redirects the
//     browser to our loopback callback listener with ?code=...&state=...
//     We exchange the code (plus the PKCE verifier) for a token, persist it,
//     and return it.
//
// The interactive flow blocks until the operator finishes or the callback
// timeout elapses. Run `bot authorize <category>` once before deploying so the
// scheduler never has to wait on a browser.
//
// CONCURRENCY:
// Concurrent Authorize calls for the same category share one flow
// (singleflight). Flows for different categories are serialized as well,
// because they all bind the same registered callback address.
//
// The shared flow does not belong to any one caller: it ignores caller
// cancellation and ends only on the callback or exchange timeout. A caller
// whose context ends stops waiting and gets an authorization error, while
// the others keep waiting on the same flow.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/sakif/highest-aircraft/internal/apperror"
	"github.com/sakif/highest-aircraft/internal/model"
	"github.com/sakif/highest-aircraft/internal/repository"
)

// X OAuth2 endpoints and the scopes the bot needs to post.
var (
	XEndpoint = oauth2.Endpoint{
		AuthURL:  "https://twitter.com/i/oauth2/authorize",
		TokenURL: "https://api.twitter.com/2/oauth2/token",
	}
	XScopes = []string{"users.read", "tweet.read", "tweet.write"}
)

const (
	DefaultCallbackAddr    = "0.0.0.0:8000"
	DefaultRedirectURL     = "http://127.0.0.1:8000/callback"
	DefaultCallbackTimeout = 10 * time.Minute
	DefaultExchangeTimeout = 30 * time.Second
)

// ClientCredentials identifies the OAuth app used for one category.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// BrokerConfig configures the interactive flow.
type BrokerConfig struct {
	// Clients maps each category to its OAuth app.
	Clients map[model.Category]ClientCredentials

	// Endpoint defaults to XEndpoint; Scopes default to XScopes.
	Endpoint oauth2.Endpoint
	Scopes   []string

	// CallbackAddr is the address the one-shot listener binds.
	// RedirectURL must be what is registered with the provider; its path is
	// the path the listener serves.
	CallbackAddr string
	RedirectURL  string

	CallbackTimeout time.Duration
	ExchangeTimeout time.Duration
}

func (c *BrokerConfig) applyDefaults() {
	if c.Endpoint.AuthURL == "" && c.Endpoint.TokenURL == "" {
		c.Endpoint = XEndpoint
	}
	if len(c.Scopes) == 0 {
		c.Scopes = XScopes
	}
	if c.CallbackAddr == "" {
		c.CallbackAddr = DefaultCallbackAddr
	}
	if c.RedirectURL == "" {
		c.RedirectURL = DefaultRedirectURL
	}
	if c.CallbackTimeout <= 0 {
		c.CallbackTimeout = DefaultCallbackTimeout
	}
	if c.ExchangeTimeout <= 0 {
		c.ExchangeTimeout = DefaultExchangeTimeout
	}
}

// PromptFunc shows the authorization URL to the operator. It must not block.
type PromptFunc func(category model.Category, authURL string)

// ListenFunc binds the callback listener. net.Listen in production.
type ListenFunc func(network, address string) (net.Listener, error)

// Broker hands out bearer tokens per category.
type Broker struct {
	sessions     repository.SessionRepository
	cfg          BrokerConfig
	oauth        map[model.Category]*oauth2.Config
	callbackPath string
	sealer       *Sealer
	prompt       PromptFunc
	listen       ListenFunc
	logger       *slog.Logger

	flows      singleflight.Group
	listenerMu sync.Mutex
}

// BrokerOption customizes a Broker.
type BrokerOption func(*Broker)

// WithSealer encrypts tokens at rest. Without it tokens are stored as-is.
func WithSealer(s *Sealer) BrokerOption { return func(b *Broker) { b.sealer = s } }

// WithPrompt replaces the default stdout prompt.
func WithPrompt(p PromptFunc) BrokerOption { return func(b *Broker) { b.prompt = p } }

// WithListen replaces net.Listen for the callback listener.
func WithListen(l ListenFunc) BrokerOption { return func(b *Broker) { b.listen = l } }

// NewBroker creates a Broker. Categories without client credentials can
// still use a stored session but cannot run the interactive flow.
func NewBroker(sessions repository.SessionRepository, cfg BrokerConfig, logger *slog.Logger, opts ...BrokerOption) (*Broker, error) {
	cfg.applyDefaults()

	redirect, err := url.Parse(cfg.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("auth: parsing redirect URL: %w", err)
	}
	path := redirect.Path
	if path == "" {
		path = "/"
	}

	b := &Broker{
		sessions:     sessions,
		cfg:          cfg,
		oauth:        make(map[model.Category]*oauth2.Config, len(cfg.Clients)),
		callbackPath: path,
		listen:       net.Listen,
		logger:       logger,
	}
	b.prompt = b.stdoutPrompt

	for category, creds := range cfg.Clients {
		if creds.ClientID == "" {
			continue
		}
		b.oauth[category] = &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     cfg.Endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		}
	}

	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Authorize returns the bearer token for category, running the interactive
// flow only when no session has been stored yet.
func (b *Broker) Authorize(ctx context.Context, category model.Category) (*oauth2.Token, error) {
	token, err := b.storedToken(ctx, category)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	ch := b.flows.DoChan(string(category), func() (any, error) {
		flowCtx := context.WithoutCancel(ctx)

		// A flow that finished just before we got here already stored a session.
		if token, err := b.storedToken(flowCtx, category); err == nil {
			return token, nil
		} else if !errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return b.interactive(flowCtx, category)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			b.logger.Debug("joined in-flight authorization", slog.String("category", string(category)))
		}
		return res.Val.(*oauth2.Token), nil
	case <-ctx.Done():
		return nil, apperror.Authorization("waiting for authorization", ctx.Err())
	}
}

// HasSession reports whether category already has a stored session.
func (b *Broker) HasSession(ctx context.Context, category model.Category) (bool, error) {
	_, err := b.sessions.GetSession(ctx, model.ProviderX, category)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, apperror.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (b *Broker) storedToken(ctx context.Context, category model.Category) (*oauth2.Token, error) {
	session, err := b.sessions.GetSession(ctx, model.ProviderX, category)
	if err != nil {
		return nil, err
	}

	access, err := b.sealer.Open(session.AccessToken, sealContext(model.ProviderX, category))
	if err != nil {
		return nil, apperror.Persistence(fmt.Sprintf("unsealing %s session", category), err)
	}

	return &oauth2.Token{AccessToken: access, TokenType: "Bearer"}, nil
}

// interactive runs the PKCE authorization-code flow for category.
//
// Nothing is persisted unless the exchange succeeds, so a failed or timed-out
// flow leaves the category exactly as it was and the next run starts over.
func (b *Broker) interactive(ctx context.Context, category model.Category) (*oauth2.Token, error) {
	conf, ok := b.oauth[category]
	if !ok {
		return nil, apperror.Authorization(fmt.Sprintf("no OAuth client configured for %s", category), nil)
	}

	b.listenerMu.Lock()
	defer b.listenerMu.Unlock()

	verifier := oauth2.GenerateVerifier()
	state := oauth2.GenerateVerifier()
	authURL := conf.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	// Bind before prompting so the redirect has somewhere to land.
	ln, err := b.listen("tcp", b.cfg.CallbackAddr)
	if err != nil {
		return nil, apperror.Authorization("binding callback listener on "+b.cfg.CallbackAddr, err)
	}

	logger := b.logger.With(slog.String("category", string(category)))
	logger.Info("interactive authorization required",
		slog.String("callback", ln.Addr().String()),
		slog.Duration("timeout", b.cfg.CallbackTimeout),
	)
	b.prompt(category, authURL)

	cb, err := awaitCallback(ctx, ln, b.callbackPath, b.cfg.CallbackTimeout, logger)
	if err != nil {
		return nil, err
	}
	if cb.state != state {
		return nil, apperror.Authorization("callback state does not match", nil)
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, b.cfg.ExchangeTimeout)
	defer cancel()

	tok, err := conf.Exchange(exchangeCtx, cb.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, apperror.Authorization("exchanging authorization code", err)
	}
	if tok.AccessToken == "" {
		return nil, apperror.Authorization("token response has no access token", nil)
	}

	sealed, err := b.sealer.Seal(tok.AccessToken, sealContext(model.ProviderX, category))
	if err != nil {
		return nil, apperror.Persistence("sealing session token", err)
	}

	session := &model.Session{Provider: model.ProviderX, Category: category, AccessToken: sealed}
	if err := b.sessions.CreateSession(ctx, session); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		// Another process stored a session meanwhile. Keep theirs; the token
		// we just got is still valid for this run.
		logger.Warn("session already stored by another process")
	}

	logger.Info("authorization complete, session stored")
	return &oauth2.Token{AccessToken: tok.AccessToken, TokenType: "Bearer"}, nil
}

func (b *Broker) stdoutPrompt(category model.Category, authURL string) {
	fmt.Fprintf(os.Stdout, "[%s] Browse to: %s\n", category, authURL)
}

func sealContext(provider model.Provider, category model.Category) string {
	return string(provider) + "/" + string(category)
}
