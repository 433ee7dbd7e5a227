package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"portfolio/internal/config"
	"portfolio/internal/database"
)

// 支持的第三方登录。
const (
	ProviderGitHub = "github"
	ProviderGoogle = "google"
)

const (
	googleIssuer  = "https://accounts.google.com"
	githubAPIBase = "https://api.github.com"
	stateTTL      = 10 * time.Minute
)

var (
	ErrUnknownProvider = errors.New("unknown oauth provider")
	ErrInvalidState    = errors.New("invalid oauth state")
	ErrNoVerifiedEmail = errors.New("no verified email")
)

// ExternalIdentity 是第三方返回的用户信息。
type ExternalIdentity struct {
	Provider string
	Email    string
	Name     string
}

// OAuthState 随授权请求往返，使用 HMAC 签名防止伪造。
type OAuthState struct {
	CSRF      string `json:"csrf"`
	Provider  string `json:"provider"`
	ExpiresAt int64  `json:"exp"`
}

// OAuth 封装 GitHub 与 Google 登录。
type OAuth struct {
	configs     map[string]*oauth2.Config
	verifier    *oidc.IDTokenVerifier
	stateSecret []byte
	apiBase     string
	now         func() time.Time
}

// NewOAuth 根据配置初始化已启用的提供方。Google 需要在启动时拉取 OIDC 元数据。
func NewOAuth(ctx context.Context, cfg config.OAuthConfig) (*OAuth, error) {
	o := &OAuth{
		configs:     map[string]*oauth2.Config{},
		stateSecret: []byte(cfg.StateSecret),
		apiBase:     githubAPIBase,
		now:         time.Now,
	}
	callbackBase := strings.TrimRight(cfg.CallbackBaseURL, "/")

	if cfg.GitHubClientID != "" {
		o.configs[ProviderGitHub] = &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  callbackBase + "/auth/oauth/github/callback",
			Endpoint:     github.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		}
	}

	if cfg.GoogleClientID != "" {
		provider, err := oidc.NewProvider(ctx, googleIssuer)
		if err != nil {
			return nil, fmt.Errorf("discover google oidc provider: %w", err)
		}
		o.configs[ProviderGoogle] = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  callbackBase + "/auth/oauth/google/callback",
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		}
		o.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.GoogleClientID})
	}

	return o, nil
}

// Enabled 判断提供方是否已配置。
func (o *OAuth) Enabled(provider string) bool {
	_, ok := o.configs[provider]
	return ok
}

// AuthCodeURL 返回跳转到提供方的授权地址。
func (o *OAuth) AuthCodeURL(provider string) (string, error) {
	cfg, ok := o.configs[provider]
	if !ok {
		return "", ErrUnknownProvider
	}

	csrf := make([]byte, 16)
	if _, err := rand.Read(csrf); err != nil {
		return "", fmt.Errorf("generate csrf: %w", err)
	}
	state, err := o.SignState(OAuthState{
		CSRF:      base64.RawURLEncoding.EncodeToString(csrf),
		Provider:  provider,
		ExpiresAt: o.now().Add(stateTTL).Unix(),
	})
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state), nil
}

// SignState 序列化并签名 state。
func (o *OAuth) SignState(state OAuthState) (string, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	mac := hmac.New(sha256.New, o.stateSecret)
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// VerifyState 校验签名、过期时间与提供方。
func (o *OAuth) VerifyState(encoded, provider string) (*OAuthState, error) {
	payloadPart, sigPart, ok := strings.Cut(encoded, ".")
	if !ok {
		return nil, ErrInvalidState
	}
	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return nil, ErrInvalidState
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return nil, ErrInvalidState
	}

	mac := hmac.New(sha256.New, o.stateSecret)
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, ErrInvalidState
	}

	var state OAuthState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, ErrInvalidState
	}
	if o.now().Unix() > state.ExpiresAt || state.Provider != provider {
		return nil, ErrInvalidState
	}
	return &state, nil
}

// Exchange 校验 state，使用授权码换取令牌并读取用户邮箱。
func (o *OAuth) Exchange(ctx context.Context, provider, code, state string) (*ExternalIdentity, error) {
	cfg, ok := o.configs[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}
	if _, err := o.VerifyState(state, provider); err != nil {
		return nil, err
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange %s code: %w", provider, err)
	}

	switch provider {
	case ProviderGoogle:
		return o.googleIdentity(ctx, token)
	default:
		return o.githubIdentity(ctx, cfg.Client(ctx, token))
	}
}

func (o *OAuth) googleIdentity(ctx context.Context, token *oauth2.Token) (*ExternalIdentity, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("no id_token field in oauth2 token")
	}
	idToken, err := o.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verify google id token: %w", err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode google claims: %w", err)
	}
	if claims.Email == "" || !claims.EmailVerified {
		return nil, ErrNoVerifiedEmail
	}
	return &ExternalIdentity{Provider: ProviderGoogle, Email: strings.ToLower(claims.Email), Name: claims.Name}, nil
}

type githubUser struct {
	Login string `json:"login"`
	Name  string `json:"name"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (o *OAuth) githubIdentity(ctx context.Context, client *http.Client) (*ExternalIdentity, error) {
	var user githubUser
	if err := getJSON(ctx, client, o.apiBase+"/user", &user); err != nil {
		return nil, err
	}
	var emails []githubEmail
	if err := getJSON(ctx, client, o.apiBase+"/user/emails", &emails); err != nil {
		return nil, err
	}

	email := primaryVerifiedEmail(emails)
	if email == "" {
		return nil, ErrNoVerifiedEmail
	}
	name := user.Name
	if name == "" {
		name = user.Login
	}
	return &ExternalIdentity{Provider: ProviderGitHub, Email: strings.ToLower(email), Name: name}, nil
}

func primaryVerifiedEmail(emails []githubEmail) string {
	fallback := ""
	for _, e := range emails {
		if !e.Verified {
			continue
		}
		if e.Primary {
			return e.Email
		}
		if fallback == "" {
			fallback = e.Email
		}
	}
	return fallback
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: unexpected status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// RoleFor 决定 OAuth 用户的角色：只有配置列表中的邮箱是管理员。
func RoleFor(email string, adminEmails []string) string {
	for _, admin := range adminEmails {
		if strings.EqualFold(strings.TrimSpace(admin), email) {
			return database.RoleAdmin
		}
	}
	return database.RoleUser
}
