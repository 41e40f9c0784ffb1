package googleads

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"ads-sync/domain/dto"
	"ads-sync/infrastructure/logger"

	"github.com/google/go-querystring/query"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const (
	AdwordsScope     = "https://www.googleapis.com/auth/adwords"
	defaultRevokeURL = "https://oauth2.googleapis.com/revoke"
)

// OAuthConfig represents the Google OAuth client used to link ads accounts
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// Endpoint, RevokeURL and UserInfoURL default to Google's production endpoints.
	Endpoint    *oauth2.Endpoint
	RevokeURL   string
	UserInfoURL string
}

type OAuthProvider struct {
	config      *oauth2.Config
	revokeURL   string
	userInfoURL string
	httpClient  *http.Client
}

type revokeForm struct {
	Token string `url:"token"`
}

func NewOAuthProvider(cfg OAuthConfig, httpClient *http.Client) *OAuthProvider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{AdwordsScope, oauth2api.UserinfoEmailScope}
	}
	endpoint := google.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	revokeURL := cfg.RevokeURL
	if revokeURL == "" {
		revokeURL = defaultRevokeURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OAuthProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		revokeURL:   revokeURL,
		userInfoURL: cfg.UserInfoURL,
		httpClient:  httpClient,
	}
}

// AuthCodeURL asks for offline access so the exchange always yields a refresh token.
func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (p *OAuthProvider) Exchange(ctx context.Context, code string) (*dto.OAuthTokenResult, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("exchange authorization code: no refresh token granted")
	}

	result := toTokenResult(tok)
	email, err := p.userEmail(ctx, tok)
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("Could not read account email")
	} else {
		result.Email = email
	}
	return result, nil
}

func (p *OAuthProvider) Refresh(ctx context.Context, refreshToken string) (*dto.OAuthTokenResult, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh access token: %w", err)
	}
	return toTokenResult(tok), nil
}

func (p *OAuthProvider) Revoke(ctx context.Context, token string) error {
	form, err := query.Values(revokeForm{Token: token})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke token: status %d", resp.StatusCode)
	}
	return nil
}

func (p *OAuthProvider) userEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	opts := []option.ClientOption{option.WithTokenSource(oauth2.StaticTokenSource(tok))}
	if p.userInfoURL != "" {
		opts = append(opts, option.WithEndpoint(p.userInfoURL))
	}
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return "", err
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return info.Email, nil
}

func toTokenResult(tok *oauth2.Token) *dto.OAuthTokenResult {
	result := &dto.OAuthTokenResult{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		result.Scopes = scope
	}
	return result
}
