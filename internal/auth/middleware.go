package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gdg-garage/event-checkin/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// WithUser returns a copy of ctx carrying the authenticated organizer.
func WithUser(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func UserID(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(UserIDKey).(uint)
	return id, ok && id != 0
}

// RequireUser returns the organizer resolved by AuthMiddleware or a 401.
func RequireUser(ctx context.Context) (uint, error) {
	id, ok := UserID(ctx)
	if !ok {
		return 0, huma.Error401Unauthorized("Unauthorized")
	}
	return id, nil
}

// AuthMiddleware resolves the caller from an X-API-KEY header or the session
// cookie and stores it in the request context. It never rejects a request;
// handlers that need an organizer call RequireUser.
func (h *AuthHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if h.cfg.AuthDisabled {
			userID, err := h.localUser(ctx)
			if err == nil {
				next.ServeHTTP(w, r.WithContext(WithUser(ctx, userID)))
				return
			}
			h.logger.ErrorContext(ctx, "failed to load local organizer", slog.Any("error", err))
		}

		if apiKey := r.Header.Get("X-API-KEY"); apiKey != "" {
			if userID, ok := h.apiKeyUser(ctx, apiKey); ok {
				next.ServeHTTP(w, r.WithContext(WithUser(ctx, userID)))
				return
			}
		}

		if cookie, err := r.Cookie(cookieName); err == nil {
			if userID, ok := h.sessionUser(w, cookie.Value); ok {
				ctx = WithUser(ctx, userID)
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *AuthHandler) apiKeyUser(ctx context.Context, key string) (uint, bool) {
	if h.db == nil {
		return 0, false
	}
	db := h.db.WithContext(ctx)

	var apiKey models.APIKey
	if err := db.Where("key = ?", key).First(&apiKey).Error; err != nil {
		return 0, false
	}
	now := time.Now()
	if apiKey.Expired(now) {
		return 0, false
	}

	if err := db.Model(&apiKey).Update("last_used_at", now).Error; err != nil {
		h.logger.WarnContext(ctx, "failed to stamp api key usage", slog.Uint64("api_key_id", uint64(apiKey.ID)), slog.Any("error", err))
	}
	return apiKey.UserID, true
}

// sessionUser validates a session token. Tokens in the last half of their
// lifetime are replaced with a fresh cookie.
func (h *AuthHandler) sessionUser(w http.ResponseWriter, tokenString string) (uint, bool) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(h.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, false
	}
	userIDFloat, ok := claims["user_id"].(float64)
	if !ok || userIDFloat <= 0 {
		return 0, false
	}
	userID := uint(userIDFloat)

	if exp, ok := claims["exp"].(float64); ok {
		remaining := time.Until(time.Unix(int64(exp), 0))
		if remaining < TokenDuration/2 {
			if newToken, err := h.GenerateToken(userID); err == nil {
				http.SetCookie(w, h.sessionCookie(newToken))
			}
		}
	}
	return userID, true
}
