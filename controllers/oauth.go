package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/creeps/board/config"
	"github.com/creeps/board/models"
	"github.com/creeps/board/utils"
)

const (
	oauthStateTTL       = 10 * time.Minute
	googleUserInfoURL   = "https://www.googleapis.com/oauth2/v2/userinfo"
	socialCompletePath  = "/social-complete"
	socialFailurePath   = "/login"
	maxGeneratedNameLen = 30
)

type oauthUser struct {
	ID       string
	Nickname string
	Name     string
	Email    string
}

// OAuthLogin redirects the browser to the provider consent page.
func (a *AuthController) OAuthLogin(ctx *gin.Context) {
	provider := ctx.Param("provider")
	cfg, err := oauthConfig(provider)
	if err != nil {
		utils.Detail(ctx, http.StatusBadRequest, err.Error())
		return
	}

	state := uuid.NewString()
	if err := utils.PutToken(utils.OAuthStatePrefix+state, provider, oauthStateTTL); err != nil {
		utils.Sugar.Errorw("save oauth state failed", "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to start login")
		return
	}
	ctx.Redirect(http.StatusFound, cfg.AuthCodeURL(state, oauth2.AccessTypeOnline))
}

// OAuthCallback exchanges the code, signs the user in and hands the tokens to the frontend.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := ctx.Param("provider")
	code := ctx.Query("code")
	state := ctx.Query("state")
	if code == "" || state == "" {
		a.socialFailure(ctx, "missing_code")
		return
	}

	saved, ok, err := utils.TakeToken(utils.OAuthStatePrefix + state)
	if err != nil || !ok || saved != provider {
		a.socialFailure(ctx, "invalid_state")
		return
	}

	cfg, err := oauthConfig(provider)
	if err != nil {
		utils.Detail(ctx, http.StatusBadRequest, err.Error())
		return
	}
	token, err := cfg.Exchange(ctx.Request.Context(), code)
	if err != nil {
		utils.Sugar.Warnw("oauth exchange failed", "provider", provider, "error", err)
		a.socialFailure(ctx, "exchange_failed")
		return
	}

	profile, err := fetchGoogleUser(ctx, cfg, token)
	if err != nil {
		utils.Sugar.Errorw("fetch oauth profile failed", "provider", provider, "error", err)
		a.socialFailure(ctx, "profile_failed")
		return
	}

	user, err := a.findOrCreateOAuthUser(provider, profile)
	if err != nil {
		utils.Sugar.Errorw("persist oauth user failed", "provider", provider, "error", err)
		a.socialFailure(ctx, "persist_failed")
		return
	}
	if !user.IsActive {
		a.socialFailure(ctx, "inactive")
		return
	}

	pair, err := utils.GenerateTokenPair(user.ID, user.Username)
	if err != nil {
		a.socialFailure(ctx, "token_failed")
		return
	}
	_ = a.db.Model(user).UpdateColumn("last_login_at", time.Now()).Error

	q := url.Values{}
	q.Set("access", pair.Access)
	q.Set("refresh", pair.Refresh)
	target := fmt.Sprintf("%s%s?%s#%s", strings.TrimRight(config.Get().FrontendBaseURL, "/"), socialCompletePath, q.Encode(), q.Encode())
	ctx.Redirect(http.StatusFound, target)
}

func (a *AuthController) socialFailure(ctx *gin.Context, reason string) {
	target := fmt.Sprintf("%s%s?social_error=%s", strings.TrimRight(config.Get().FrontendBaseURL, "/"), socialFailurePath, url.QueryEscape(reason))
	ctx.Redirect(http.StatusFound, target)
}

func oauthConfig(provider string) (*oauth2.Config, error) {
	cfg := config.Get()
	switch strings.ToLower(provider) {
	case "google":
		if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
			return nil, fmt.Errorf("google oauth not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  fmt.Sprintf("%s/api/auth/oauth/google/callback/", strings.TrimRight(cfg.OAuthRedirectBase, "/")),
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func fetchGoogleUser(ctx *gin.Context, cfg *oauth2.Config, token *oauth2.Token) (*oauthUser, error) {
	client := cfg.Client(ctx.Request.Context(), token)
	resp, err := client.Get(googleUserInfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google user info request failed: %s", resp.Status)
	}

	var payload struct {
		ID         string `json:"id"`
		Email      string `json:"email"`
		Name       string `json:"name"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.ID == "" {
		return nil, errors.New("google user info without id")
	}

	return &oauthUser{
		ID:       payload.ID,
		Nickname: payload.GivenName,
		Name:     payload.Name,
		Email:    payload.Email,
	}, nil
}

func (a *AuthController) findOrCreateOAuthUser(provider string, data *oauthUser) (*models.User, error) {
	var user models.User
	err := a.db.Where("provider = ? AND provider_id = ?", provider, data.ID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	local, _, _ := strings.Cut(data.Email, "@")
	base := fallback(sanitizeUsername(data.Nickname), sanitizeUsername(data.Name), sanitizeUsername(local), sanitizeUsername(provider+"_"+data.ID))
	user = models.User{
		Username:   a.ensureUniqueUsername(base, data.ID),
		Email:      strings.TrimSpace(data.Email),
		Provider:   provider,
		ProviderID: data.ID,
		IsActive:   true,
	}
	if err := a.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func fallback(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func sanitizeUsername(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	var builder strings.Builder
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '_' || r == '-' || r == '.' || r == ' ':
			builder.WriteRune('_')
		}
	}
	result := strings.Trim(builder.String(), "_")
	if len(result) > maxGeneratedNameLen {
		result = result[:maxGeneratedNameLen]
	}
	return result
}

func (a *AuthController) ensureUniqueUsername(base, id string) string {
	if base == "" {
		base = "user_" + id
	}

	candidate := base
	for suffix := 1; ; suffix++ {
		var count int64
		if err := a.db.Model(&models.User{}).Where("LOWER(username) = ?", strings.ToLower(candidate)).Count(&count).Error; err != nil {
			return candidate
		}
		if count == 0 {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", base, suffix)
	}
}
