package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	googleOAuth "golang.org/x/oauth2/google"

	"github.com/sumire/taskflow/internal/domain"
)

// Provider profile endpoints. Variables so tests can point them elsewhere.
var (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	githubUserURL     = "https://api.github.com/user"
	githubEmailsURL   = "https://api.github.com/user/emails"
)

// OAuthConfig holds OAuth client credentials. A provider without a client
// ID is disabled.
type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GitHubClientID     string
	GitHubClientSecret string
	// CallbackBaseURL is the public base URL of this API.
	CallbackBaseURL string
}

// OAuthProfile is the identity returned by a provider.
type OAuthProfile struct {
	ProviderID string
	Email      string
	Name       string
	AvatarURL  string
}

type oauthProvider struct {
	config *oauth2.Config
	fetch  func(ctx context.Context, client *http.Client) (*OAuthProfile, error)
}

// OAuthService signs users in through external identity providers.
type OAuthService struct {
	auth      *AuthService
	providers map[domain.AuthProvider]oauthProvider
}

// NewOAuthService creates a new OAuthService with every configured provider.
func NewOAuthService(auth *AuthService, cfg OAuthConfig) *OAuthService {
	base := strings.TrimRight(cfg.CallbackBaseURL, "/")
	providers := make(map[domain.AuthProvider]oauthProvider)

	if cfg.GoogleClientID != "" {
		providers[domain.AuthProviderGoogle] = oauthProvider{
			config: &oauth2.Config{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				Endpoint:     googleOAuth.Endpoint,
				Scopes:       []string{"openid", "profile", "email"},
				RedirectURL:  base + "/auth/google/callback",
			},
			fetch: fetchGoogleProfile,
		}
	}
	if cfg.GitHubClientID != "" {
		providers[domain.AuthProviderGitHub] = oauthProvider{
			config: &oauth2.Config{
				ClientID:     cfg.GitHubClientID,
				ClientSecret: cfg.GitHubClientSecret,
				Endpoint:     github.Endpoint,
				Scopes:       []string{"user:email"},
				RedirectURL:  base + "/auth/github/callback",
			},
			fetch: fetchGitHubProfile,
		}
	}

	return &OAuthService{auth: auth, providers: providers}
}

// Enabled reports whether the provider is configured.
func (s *OAuthService) Enabled(p domain.AuthProvider) bool {
	_, ok := s.providers[p]
	return ok
}

// AuthURL returns the provider consent page URL for the given state.
func (s *OAuthService) AuthURL(p domain.AuthProvider, state string) (string, error) {
	provider, ok := s.providers[p]
	if !ok {
		return "", fmt.Errorf("%w: oauth provider %q", domain.ErrNotFound, p)
	}
	return provider.config.AuthCodeURL(state), nil
}

// Callback exchanges an authorization code, upserts the user and issues a
// session token.
func (s *OAuthService) Callback(ctx context.Context, p domain.AuthProvider, code string) (*Session, error) {
	provider, ok := s.providers[p]
	if !ok {
		return nil, fmt.Errorf("%w: oauth provider %q", domain.ErrNotFound, p)
	}

	token, err := provider.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s token exchange: %w", p, err)
	}

	profile, err := provider.fetch(ctx, provider.config.Client(ctx, token))
	if err != nil {
		return nil, fmt.Errorf("fetch %s profile: %w", p, err)
	}

	return s.auth.LoginOAuth(ctx, p, *profile)
}

// LoginOAuth creates or refreshes an OAuth-provisioned account and issues a
// session. OAuth accounts are treated as verified.
func (s *AuthService) LoginOAuth(ctx context.Context, p domain.AuthProvider, profile OAuthProfile) (*Session, error) {
	email := NormalizeEmail(profile.Email)
	if err := s.validateEmail(email); err != nil {
		return nil, err
	}
	if profile.ProviderID == "" {
		return nil, &domain.ValidationError{Field: "providerId", Message: "is required"}
	}

	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	user, err := s.users.UpsertOAuth(ctx, domain.User{
		Email:      email,
		Name:       name,
		Avatar:     strPtr(profile.AvatarURL),
		Provider:   p,
		ProviderID: &profile.ProviderID,
	})
	if err != nil {
		return nil, err
	}

	return s.newSession(user)
}

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// errUnverifiedEmail rejects provider identities whose address the provider
// has not confirmed; accounts created from them are marked verified.
var errUnverifiedEmail = errors.New("provider email is not verified")

func fetchGoogleProfile(ctx context.Context, client *http.Client) (*OAuthProfile, error) {
	var info googleUserInfo
	if err := getJSON(ctx, client, googleUserInfoURL, &info); err != nil {
		return nil, err
	}
	if !info.VerifiedEmail {
		return nil, fmt.Errorf("google: %w", errUnverifiedEmail)
	}
	return &OAuthProfile{
		ProviderID: info.ID,
		Email:      info.Email,
		Name:       info.Name,
		AvatarURL:  info.Picture,
	}, nil
}

type githubUserInfo struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func fetchGitHubProfile(ctx context.Context, client *http.Client) (*OAuthProfile, error) {
	var info githubUserInfo
	if err := getJSON(ctx, client, githubUserURL, &info); err != nil {
		return nil, err
	}

	if info.Email == "" {
		var emails []githubEmail
		if err := getJSON(ctx, client, githubEmailsURL, &emails); err != nil {
			return nil, err
		}
		info.Email = primaryGitHubEmail(emails)
		if info.Email == "" {
			return nil, fmt.Errorf("no email found for github user")
		}
	}

	name := info.Name
	if name == "" {
		name = info.Login
	}

	return &OAuthProfile{
		ProviderID: fmt.Sprintf("%d", info.ID),
		Email:      info.Email,
		Name:       name,
		AvatarURL:  info.AvatarURL,
	}, nil
}

func primaryGitHubEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	return ""
}

func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
