package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"portfolio/internal/api/middleware"
	"portfolio/internal/apperr"
	"portfolio/internal/auth"
	"portfolio/internal/database"
)

const refreshTokenCookieName = "refresh_token"

// AuthOptions 是认证处理器的非依赖型配置。
type AuthOptions struct {
	AdminEmails     []string
	SuccessRedirect string
	CookieDomain    string
}

// AuthHandler 处理登录、刷新、退出、改密与第三方登录。
type AuthHandler struct {
	tokens   *auth.AuthService
	users    *auth.Users
	sessions *auth.Sessions
	oauth    *auth.OAuth
	opts     AuthOptions
}

// NewAuthHandler 构造认证处理器。oauth 为 nil 时第三方登录路由返回 404。
func NewAuthHandler(tokens *auth.AuthService, users *auth.Users, sessions *auth.Sessions, oauth *auth.OAuth, opts AuthOptions) *AuthHandler {
	return &AuthHandler{
		tokens:   tokens,
		users:    users,
		sessions: sessions,
		oauth:    oauth,
		opts:     opts,
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken        string `json:"access_token"`
	TokenType          string `json:"token_type"`
	ExpiresIn          int    `json:"expires_in"`
	Role               string `json:"role"`
	MustChangePassword bool   `json:"must_change_password"`
}

// Login 校验邮箱与口令并返回 Token。
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	email := strings.ToLower(strings.TrimSpace(req.Email))
	logger := middleware.LoggerFromContext(c).With(slog.String("email", email))

	if err := h.sessions.CheckLogin(ctx, c.ClientIP(), email); err != nil {
		logger.Info("login throttled", slog.String("reason", err.Error()))
		Error(c, http.StatusTooManyRequests, err.Error())
		return
	}

	user, err := h.users.ByEmail(ctx, email)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			writeError(c, err)
			return
		}
		logger.Info("login failed: user not found")
		_ = h.sessions.LoginFailed(ctx, email)
		Error(c, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		logger.Info("login failed: password mismatch", slog.String("user_id", user.ID))
		_ = h.sessions.LoginFailed(ctx, email)
		Error(c, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	_ = h.sessions.LoginSucceeded(ctx, email)
	logger.Info("login succeeded", slog.String("user_id", user.ID))
	h.issue(c, user)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh 校验刷新令牌并颁发新的 TokenPair，旧令牌随即吊销。
func (h *AuthHandler) Refresh(c *gin.Context) {
	claims, ok := h.refreshClaims(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.ByID(ctx, claims.UserID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			Error(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		writeError(c, err)
		return
	}

	if err := h.sessions.Revoke(ctx, claims.ID, expiryOf(claims)); err != nil {
		writeError(c, apperr.E(apperr.KindInternal, "", err))
		return
	}
	h.issue(c, user)
}

// Logout 将刷新令牌加入黑名单并清除 Cookie。
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := h.refreshClaims(c)
	if !ok {
		return
	}
	if err := h.sessions.Revoke(c.Request.Context(), claims.ID, expiryOf(claims)); err != nil {
		writeError(c, apperr.E(apperr.KindInternal, "", err))
		return
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

// ChangePassword 校验当前密码并更新为新密码，成功后吊销旧刷新令牌并重新签发。
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	userID, ok := middleware.UserID(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.ByID(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.users.ChangePassword(ctx, user, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(c, err)
		return
	}

	if raw, err := c.Cookie(refreshTokenCookieName); err == nil && raw != "" {
		if claims, err := h.tokens.ValidateToken(raw); err == nil && claims.TokenType == auth.TokenTypeRefresh && claims.ID != "" {
			if err := h.sessions.Revoke(ctx, claims.ID, expiryOf(claims)); err != nil {
				middleware.LoggerFromContext(c).Warn("revoke refresh token after password change failed", slog.Any("error", err))
			}
		}
	}

	middleware.LoggerFromContext(c).Info("password changed", slog.String("user_id", user.ID))
	h.issue(c, user)
}

type meResponse struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	Name               string `json:"name"`
	Role               string `json:"role"`
	MustChangePassword bool   `json:"mustChangePassword"`
}

// Me 返回当前登录账号。
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	user, err := h.users.ByID(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, meResponse{
		ID:                 user.ID,
		Email:              user.Email,
		Name:               user.Name,
		Role:               user.Role,
		MustChangePassword: user.MustChangePassword,
	})
}

// OAuthStart 跳转到第三方授权页。
func (h *AuthHandler) OAuthStart(c *gin.Context) {
	provider := c.Param("provider")
	if h.oauth == nil || !h.oauth.Enabled(provider) {
		NotFound(c, "Unknown provider")
		return
	}
	target, err := h.oauth.AuthCodeURL(provider)
	if err != nil {
		writeError(c, apperr.E(apperr.KindInternal, "", err))
		return
	}
	c.Redirect(http.StatusFound, target)
}

// OAuthCallback 完成授权码交换，按邮箱建立账号后写入刷新 Cookie 并跳回后台。
// 前端随后调用 /auth/refresh 取得访问令牌。
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	provider := c.Param("provider")
	if h.oauth == nil || !h.oauth.Enabled(provider) {
		NotFound(c, "Unknown provider")
		return
	}
	logger := middleware.LoggerFromContext(c).With(slog.String("provider", provider))

	if reason := c.Query("error"); reason != "" {
		logger.Info("oauth denied by provider", slog.String("reason", reason))
		Error(c, http.StatusUnauthorized, "Authorization denied")
		return
	}

	ctx := c.Request.Context()
	ident, err := h.oauth.Exchange(ctx, provider, c.Query("code"), c.Query("state"))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidState):
			BadRequest(c, "Invalid state")
		case errors.Is(err, auth.ErrNoVerifiedEmail):
			Error(c, http.StatusUnauthorized, "No verified email")
		default:
			logger.Error("oauth exchange failed", slog.Any("error", err))
			Error(c, http.StatusBadGateway, "Authorization failed")
		}
		return
	}

	user, err := h.users.UpsertExternal(ctx, *ident, h.opts.AdminEmails)
	if err != nil {
		writeError(c, err)
		return
	}

	pair, err := h.tokens.GenerateTokenPair(principalOf(user))
	if err != nil {
		writeError(c, apperr.E(apperr.KindInternal, "", err))
		return
	}
	h.setRefreshCookie(c, pair.RefreshToken)
	logger.Info("oauth login succeeded", slog.String("user_id", user.ID), slog.String("role", user.Role))
	c.Redirect(http.StatusFound, h.opts.SuccessRedirect)
}

func principalOf(user *database.User) auth.Principal {
	return auth.Principal{
		UserID:             user.ID,
		Role:               user.Role,
		MustChangePassword: user.MustChangePassword,
	}
}

func (h *AuthHandler) issue(c *gin.Context, user *database.User) {
	pair, err := h.tokens.GenerateTokenPair(principalOf(user))
	if err != nil {
		writeError(c, apperr.E(apperr.KindInternal, "", err))
		return
	}
	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:        pair.AccessToken,
		TokenType:          "Bearer",
		ExpiresIn:          int(h.tokens.AccessTokenTTL().Seconds()),
		Role:               user.Role,
		MustChangePassword: user.MustChangePassword,
	})
}

// refreshClaims 取出并校验刷新令牌，失败时已写入 401。
func (h *AuthHandler) refreshClaims(c *gin.Context) (*auth.TokenClaims, bool) {
	raw := h.extractRefreshToken(c)
	if raw == "" {
		Error(c, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}

	logger := middleware.LoggerFromContext(c)
	claims, err := h.tokens.ValidateToken(raw)
	if err != nil || claims.TokenType != auth.TokenTypeRefresh || claims.ID == "" {
		logger.Info("refresh token rejected", slog.Any("error", err))
		Error(c, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}

	revoked, err := h.sessions.IsRevoked(c.Request.Context(), claims.ID)
	if err != nil {
		writeError(c, apperr.E(apperr.KindInternal, "", err))
		return nil, false
	}
	if revoked {
		logger.Info("refresh token revoked", slog.String("jti", claims.ID))
		Error(c, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	return claims, true
}

func (h *AuthHandler) extractRefreshToken(c *gin.Context) string {
	if token, err := c.Cookie(refreshTokenCookieName); err == nil && token != "" {
		return token
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err == nil {
		return req.RefreshToken
	}
	return ""
}

func expiryOf(claims *auth.TokenClaims) time.Time {
	if claims.ExpiresAt == nil {
		return time.Now().Add(time.Hour)
	}
	return claims.ExpiresAt.Time
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	ttl := h.tokens.RefreshTokenTTL()
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    token,
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		Path:     "/",
		Domain:   strings.TrimSpace(h.opts.CookieDomain),
		Secure:   isHTTPSRequest(c),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    "",
		MaxAge:   -1,
		Path:     "/",
		Domain:   strings.TrimSpace(h.opts.CookieDomain),
		Secure:   isHTTPSRequest(c),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func isHTTPSRequest(c *gin.Context) bool {
	if c.Request.TLS != nil {
		return true
	}
	return strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
}
