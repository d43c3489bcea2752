package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/creeps/board/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUsernameKey stores the username inside Gin context.
	ContextUsernameKey = "username"
	// ContextClaimsKey stores the parsed access token claims.
	ContextClaimsKey = "claims"
)

// AuthRequired ensures the request carries a valid, unrevoked access token.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims, msg := authenticate(ctx)
		if claims == nil {
			if msg == "" {
				msg = "Authentication credentials were not provided."
			}
			utils.Detail(ctx, http.StatusUnauthorized, msg)
			ctx.Abort()
			return
		}
		setIdentity(ctx, claims)
		ctx.Next()
	}
}

// OptionalAuth attaches the identity when a valid token is present and lets anonymous requests through.
// A malformed or revoked token is still rejected.
func OptionalAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.GetHeader("Authorization") == "" {
			ctx.Next()
			return
		}
		claims, msg := authenticate(ctx)
		if claims == nil {
			utils.Detail(ctx, http.StatusUnauthorized, msg)
			ctx.Abort()
			return
		}
		setIdentity(ctx, claims)
		ctx.Next()
	}
}

// authenticate returns the access token claims, or nil and a reason.
func authenticate(ctx *gin.Context) (*utils.Claims, string) {
	authHeader := ctx.GetHeader("Authorization")
	if authHeader == "" {
		return nil, ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, "invalid authorization header format"
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return nil, "empty bearer token"
	}

	claims, err := utils.ParseToken(tokenString)
	if err != nil || claims.TokenType != utils.AccessToken {
		return nil, "Given token not valid for any token type"
	}

	if utils.IsTokenBlacklisted(claims.ID) {
		return nil, "token revoked"
	}
	return claims, ""
}

func setIdentity(ctx *gin.Context, claims *utils.Claims) {
	ctx.Set(ContextUserIDKey, claims.UserID)
	ctx.Set(ContextUsernameKey, claims.Username)
	ctx.Set(ContextClaimsKey, claims)
}
