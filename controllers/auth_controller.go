package controllers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/creeps/board/config"
	"github.com/creeps/board/middleware"
	"github.com/creeps/board/models"
	"github.com/creeps/board/utils"
)

const maxUsernameLength = 150

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// AuthController handles account endpoints: registration, tokens, password reset and withdrawal.
type AuthController struct {
	db *gorm.DB
}

func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

// registerRequest accepts the key aliases older and newer clients send.
type registerRequest struct {
	Username             string   `json:"username"`
	Email                string   `json:"email"`
	Password             string   `json:"password"`
	Password1            string   `json:"password1"`
	Password2            string   `json:"password2"`
	PasswordConfirm      string   `json:"passwordConfirm"`
	PasswordConfirmation string   `json:"password_confirmation"`
	AgreeTerms           flexBool `json:"agree_terms"`
	AgreePrivacy         flexBool `json:"agree_privacy"`
	Agree                flexBool `json:"agree"`
	AgreeMarketing       flexBool `json:"agree_marketing"`
	MarketingOptIn       flexBool `json:"marketing_opt_in"`
	CaptchaID            string   `json:"captcha_id"`
	CaptchaAnswer        string   `json:"captcha_answer"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Register creates a local account and records the accepted policy versions.
func (a *AuthController) Register(ctx *gin.Context) {
	var req registerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Detail(ctx, http.StatusBadRequest, "invalid request payload")
		return
	}

	ip := utils.ClientIP(ctx.Request)
	if !utils.RegistrationCooldownTry(ip) {
		utils.Detail(ctx, http.StatusTooManyRequests, "Too many attempts. Please wait a moment.")
		return
	}
	if !utils.RegistrationDailyLimitCheck(ip) {
		utils.Detail(ctx, http.StatusTooManyRequests, "Daily registration limit reached.")
		return
	}

	cfg := config.Get()
	errs := utils.FieldErrors{}

	if cfg.RegisterCaptchaEnabled && !utils.VerifyCaptcha(strings.TrimSpace(req.CaptchaID), strings.TrimSpace(req.CaptchaAnswer)) {
		errs.Add("captcha", "Invalid or expired captcha.")
	}

	username := strings.TrimSpace(req.Username)
	switch {
	case username == "":
		errs.Add("username", "This field is required.")
	case len([]rune(username)) > maxUsernameLength:
		errs.Add("username", "Ensure this field has no more than 150 characters.")
	case !usernamePattern.MatchString(username):
		errs.Add("username", "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.")
	}

	email := strings.TrimSpace(req.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			errs.Add("email", "Enter a valid email address.")
		}
	}

	password := firstNonEmpty(req.Password1, req.Password)
	confirm := firstNonEmpty(req.Password2, req.PasswordConfirm, req.PasswordConfirmation)
	if password == "" {
		errs.Add("password1", "This field is required.")
	} else {
		if confirm == "" || confirm != password {
			errs.Add("password2", "The two password fields didn't match.")
		}
		for _, msg := range utils.ValidatePassword(password, username, email) {
			errs.Add("password1", msg)
		}
	}

	agreeTerms := bool(req.AgreeTerms) || bool(req.Agree)
	agreePrivacy := bool(req.AgreePrivacy) || bool(req.Agree)
	if !agreeTerms {
		errs.Add("agree_terms", "You must accept the terms of service.")
	}
	if !agreePrivacy {
		errs.Add("agree_privacy", "You must accept the privacy policy.")
	}

	if _, bad := errs["username"]; !bad {
		var count int64
		if err := a.db.Model(&models.User{}).Where("LOWER(username) = ?", strings.ToLower(username)).Count(&count).Error; err != nil {
			utils.Sugar.Errorw("check username failed", "error", err)
			utils.Detail(ctx, http.StatusInternalServerError, "failed to register")
			return
		}
		if count > 0 {
			errs.Add("username", "A user with that username already exists.")
		}
	}

	if len(errs) > 0 {
		utils.Invalid(ctx, errs)
		return
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		utils.Detail(ctx, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := a.db.Create(&user).Error; err != nil {
		utils.Sugar.Errorw("create user failed", "username", username, "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to create user")
		return
	}

	consent := models.UserConsent{
		UserID:          user.ID,
		AcceptedTermsAt: time.Now(),
		TermsVersion:    cfg.PolicyVersion,
		PrivacyVersion:  cfg.PolicyVersion,
		MarketingOptIn:  bool(req.AgreeMarketing) || bool(req.MarketingOptIn),
		ClientIP:        ip,
	}
	if err := a.db.Create(&consent).Error; err != nil {
		utils.Sugar.Warnw("record consent failed", "user_id", user.ID, "error", err)
	}

	utils.RegistrationDailyIncrement(ip)
	utils.JSON(ctx, http.StatusCreated, gin.H{"detail": "Registration complete."})
}

// Captcha issues a new captcha image for the registration form.
func (a *AuthController) Captcha(ctx *gin.Context) {
	id, b64, err := utils.GenerateCaptcha()
	if err != nil {
		utils.Sugar.Errorw("generate captcha failed", "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to generate captcha")
		return
	}
	utils.JSON(ctx, http.StatusOK, gin.H{"id": id, "image": b64})
}

// Login exchanges username and password for an access/refresh token pair.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Detail(ctx, http.StatusBadRequest, "invalid request payload")
		return
	}

	const badCredentials = "No active account found with the given credentials"
	var user models.User
	if err := a.db.Where("username = ?", strings.TrimSpace(req.Username)).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Sugar.Errorw("load user failed", "error", err)
		}
		utils.Detail(ctx, http.StatusUnauthorized, badCredentials)
		return
	}
	if !user.IsActive || !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Detail(ctx, http.StatusUnauthorized, badCredentials)
		return
	}

	pair, err := utils.GenerateTokenPair(user.ID, user.Username)
	if err != nil {
		utils.Detail(ctx, http.StatusInternalServerError, "failed to generate token")
		return
	}
	if err := a.db.Model(&user).UpdateColumn("last_login_at", time.Now()).Error; err != nil {
		utils.Sugar.Warnw("update last login failed", "user_id", user.ID, "error", err)
	}

	utils.JSON(ctx, http.StatusOK, pair)
}

// Refresh issues a new access token for a valid refresh token.
func (a *AuthController) Refresh(ctx *gin.Context) {
	var req struct {
		Refresh string `json:"refresh" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Invalid(ctx, utils.FieldErrors{"refresh": {"This field is required."}})
		return
	}

	claims, err := utils.ParseToken(req.Refresh)
	if err != nil || claims.TokenType != utils.RefreshToken || utils.IsTokenBlacklisted(claims.ID) {
		utils.Detail(ctx, http.StatusUnauthorized, "Token is invalid or expired")
		return
	}

	var user models.User
	if err := a.db.First(&user, claims.UserID).Error; err != nil || !user.IsActive {
		utils.Detail(ctx, http.StatusUnauthorized, "User not found")
		return
	}

	access, err := utils.GenerateToken(user.ID, user.Username, utils.AccessToken, time.Duration(config.Get().AccessTokenMinutes)*time.Minute)
	if err != nil {
		utils.Detail(ctx, http.StatusInternalServerError, "failed to generate token")
		return
	}
	utils.JSON(ctx, http.StatusOK, gin.H{"access": access})
}

// Logout revokes the presented access token and, when given, the refresh token.
func (a *AuthController) Logout(ctx *gin.Context) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	_ = ctx.ShouldBindJSON(&req)

	if v, ok := ctx.Get(middleware.ContextClaimsKey); ok {
		if claims, ok := v.(*utils.Claims); ok {
			revoke(claims)
		}
	}
	if req.Refresh != "" {
		if claims, err := utils.ParseToken(req.Refresh); err == nil && claims.TokenType == utils.RefreshToken {
			revoke(claims)
		}
	}
	utils.JSON(ctx, http.StatusOK, gin.H{"detail": "Successfully logged out."})
}

func revoke(claims *utils.Claims) {
	if claims.ExpiresAt == nil {
		return
	}
	if err := utils.BlacklistToken(claims.ID, claims.ExpiresAt.Time); err != nil {
		utils.Sugar.Warnw("blacklist token failed", "jti", claims.ID, "error", err)
	}
}

// Me returns the authenticated user.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, _ := getUserID(ctx)
	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil || !user.IsActive {
		utils.Detail(ctx, http.StatusUnauthorized, "User not found")
		return
	}
	utils.JSON(ctx, http.StatusOK, serializeUser(user))
}

// UsernameLookup lists the usernames registered with an email whose password matches.
func (a *AuthController) UsernameLookup(ctx *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = ctx.ShouldBindJSON(&req)
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		utils.Detail(ctx, http.StatusBadRequest, "Enter your email and password.")
		return
	}

	var users []models.User
	if err := a.db.Where("LOWER(email) = ?", strings.ToLower(email)).Find(&users).Error; err != nil {
		utils.Sugar.Errorw("lookup users failed", "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "lookup failed")
		return
	}
	matched := []string{}
	for _, u := range users {
		if utils.CheckPassword(u.PasswordHash, req.Password) {
			matched = append(matched, u.Username)
		}
	}
	if len(matched) == 0 {
		utils.JSON(ctx, http.StatusOK, gin.H{"detail": "Checked. No account matches the given information."})
		return
	}
	utils.JSON(ctx, http.StatusOK, gin.H{"usernames": matched})
}

func encodeUID(id uint) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatUint(uint64(id), 10)))
}

func decodeUID(uid string) (uint, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(uid, "="))
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(n), nil
}

// issueResetToken stores a single-use reset token for the user.
func issueResetToken(user models.User) (uid, token string, err error) {
	token, err = utils.RandomToken(20)
	if err != nil {
		return "", "", err
	}
	uid = encodeUID(user.ID)
	ttl := time.Duration(config.Get().PasswordResetTTLMinutes) * time.Minute
	if err := utils.PutToken(utils.PasswordResetPrefix+token, uid, ttl); err != nil {
		return "", "", err
	}
	return uid, token, nil
}

// PasswordResetRequest mails reset links to active accounts with the email. It always answers 200.
func (a *AuthController) PasswordResetRequest(ctx *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	_ = ctx.ShouldBindJSON(&req)
	ok := gin.H{"detail": "A password reset email has been sent. Please check your inbox."}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		utils.JSON(ctx, http.StatusOK, ok)
		return
	}

	var users []models.User
	if err := a.db.Where("LOWER(email) = ? AND is_active = ?", strings.ToLower(email), true).Find(&users).Error; err != nil {
		utils.Sugar.Errorw("lookup reset users failed", "error", err)
		utils.JSON(ctx, http.StatusOK, ok)
		return
	}

	base := strings.TrimRight(config.Get().FrontendBaseURL, "/")
	for _, u := range users {
		uid, token, err := issueResetToken(u)
		if err != nil {
			utils.Sugar.Errorw("issue reset token failed", "user_id", u.ID, "error", err)
			continue
		}
		link := fmt.Sprintf("%s/reset-password?uid=%s&token=%s", base, uid, token)
		body := fmt.Sprintf("Hello %s,\n\nReset your password using the link below:\n%s\n\nIf you did not request this, you can ignore this email.", u.Username, link)
		go func(to, body string) {
			if err := utils.SendMail(to, "Password reset", body); err != nil {
				utils.Sugar.Warnw("send reset mail failed", "error", err)
			}
		}(email, body)
	}
	utils.JSON(ctx, http.StatusOK, ok)
}

// PasswordResetIssue returns reset parameters directly when username and email match.
func (a *AuthController) PasswordResetIssue(ctx *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	_ = ctx.ShouldBindJSON(&req)
	username, email := strings.TrimSpace(req.Username), strings.TrimSpace(req.Email)
	if username == "" || email == "" {
		utils.Invalid(ctx, utils.FieldErrors{"detail": {"Enter your username and email."}})
		return
	}

	var user models.User
	err := a.db.Where("LOWER(username) = ? AND LOWER(email) = ? AND is_active = ?",
		strings.ToLower(username), strings.ToLower(email), true).First(&user).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Sugar.Errorw("lookup reset user failed", "error", err)
		}
		utils.Invalid(ctx, utils.FieldErrors{"detail": {"The information does not match."}})
		return
	}

	uid, token, err := issueResetToken(user)
	if err != nil {
		utils.Sugar.Errorw("issue reset token failed", "user_id", user.ID, "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to issue token")
		return
	}
	utils.JSON(ctx, http.StatusOK, gin.H{"uid": uid, "token": token})
}

// PasswordResetConfirm consumes a reset token and sets the new password.
func (a *AuthController) PasswordResetConfirm(ctx *gin.Context) {
	var req struct {
		UID          string `json:"uid"`
		Token        string `json:"token"`
		NewPassword1 string `json:"new_password1"`
		NewPassword2 string `json:"new_password2"`
	}
	_ = ctx.ShouldBindJSON(&req)
	if req.UID == "" || req.Token == "" {
		utils.Detail(ctx, http.StatusBadRequest, "Invalid request.")
		return
	}
	if req.NewPassword1 == "" || req.NewPassword1 != req.NewPassword2 {
		utils.Invalid(ctx, utils.FieldErrors{"new_password2": {"The two password fields didn't match."}})
		return
	}

	userID, err := decodeUID(req.UID)
	if err != nil {
		utils.Detail(ctx, http.StatusBadRequest, "Invalid token.")
		return
	}
	var user models.User
	if err := a.db.Where("id = ? AND is_active = ?", userID, true).First(&user).Error; err != nil {
		utils.Detail(ctx, http.StatusBadRequest, "Invalid token.")
		return
	}
	if problems := utils.ValidatePassword(req.NewPassword1, user.Username, user.Email); len(problems) > 0 {
		utils.Invalid(ctx, utils.FieldErrors{"new_password1": problems})
		return
	}

	owner, ok, err := utils.TakeToken(utils.PasswordResetPrefix + req.Token)
	if err != nil {
		utils.Sugar.Errorw("consume reset token failed", "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to reset password")
		return
	}
	if !ok || owner != encodeUID(user.ID) {
		utils.Detail(ctx, http.StatusBadRequest, "Invalid token.")
		return
	}

	hash, err := utils.HashPassword(req.NewPassword1)
	if err != nil {
		utils.Detail(ctx, http.StatusInternalServerError, "failed to hash password")
		return
	}
	if err := a.db.Model(&user).Update("password_hash", hash).Error; err != nil {
		utils.Sugar.Errorw("update password failed", "user_id", user.ID, "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to reset password")
		return
	}
	utils.JSON(ctx, http.StatusOK, gin.H{"detail": "Your password has been changed."})
}

// DeleteAccount anonymizes and deactivates the caller's account. Posts and comments remain.
func (a *AuthController) DeleteAccount(ctx *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	_ = ctx.ShouldBindJSON(&req)

	userID, _ := getUserID(ctx)
	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil || !user.IsActive {
		utils.Detail(ctx, http.StatusUnauthorized, "User not found")
		return
	}
	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Invalid(ctx, utils.FieldErrors{"password": {"The password is incorrect."}})
		return
	}

	updates := map[string]interface{}{
		"email":     "",
		"username":  fmt.Sprintf("deleted_%d_%s", user.ID, time.Now().Format("20060102150405")),
		"is_active": false,
	}
	if err := a.db.Model(&user).Updates(updates).Error; err != nil {
		utils.Sugar.Errorw("delete account failed", "user_id", user.ID, "error", err)
		utils.Detail(ctx, http.StatusInternalServerError, "failed to delete account")
		return
	}

	if v, ok := ctx.Get(middleware.ContextClaimsKey); ok {
		if claims, ok := v.(*utils.Claims); ok {
			revoke(claims)
		}
	}
	ctx.Status(http.StatusNoContent)
}
