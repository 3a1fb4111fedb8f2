package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/strefethen/vr-console-go/internal/api"
	"github.com/strefethen/vr-console-go/internal/apperrors"
	"github.com/strefethen/vr-console-go/internal/backend"
	"github.com/strefethen/vr-console-go/internal/config"
)

// Authenticator checks operator credentials against the fleet backend.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*backend.LoginResult, error)
	Me(ctx context.Context, token string) (*backend.User, error)
}

// RegisterRoutes wires auth routes to the router.
func RegisterRoutes(router chi.Router, authenticator Authenticator, cfg config.Config) {
	limited := router.With(loginRateLimit(cfg.LoginRateLimitPerMin))
	limited.Method(http.MethodPost, "/v1/auth/login", api.Handler(login(authenticator, cfg)))
	router.Method(http.MethodPost, "/v1/auth/refresh", api.Handler(refresh(cfg)))
	router.Method(http.MethodGet, "/v1/auth/me", api.Handler(me))
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// loginRateLimit throttles login attempts per client IP. Zero disables it.
func loginRateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			api.WriteError(w, r, apperrors.NewAppError(apperrors.ErrorCodeRateLimited, "Too many login attempts", http.StatusTooManyRequests, nil))
		}),
	)
}

func login(authenticator Authenticator, cfg config.Config) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		var body loginRequest
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		body.Email = strings.TrimSpace(body.Email)
		if err := api.Validate(body); err != nil {
			return err
		}

		result, err := authenticator.Login(r.Context(), body.Email, body.Password)
		if err != nil {
			return loginError(err)
		}

		user := result.User
		if user.ID == "" {
			profile, err := authenticator.Me(r.Context(), result.AccessToken)
			if err != nil {
				return loginError(err)
			}
			user = *profile
		}
		if user.ID == "" {
			return apperrors.NewUnauthorizedError("Login failed", apperrors.ErrorCodeAuthLoginFailed)
		}

		tokens, err := GenerateTokenPair(cfg, TokenPayload{Sub: user.ID, Name: user.Name, Email: user.Email})
		if err != nil {
			return apperrors.NewInternalError("Failed to generate token pair")
		}

		log.Printf("AUTH: operator %s signed in", user.Email)

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":         "token_pair",
			"access_token":   tokens.AccessToken,
			"refresh_token":  tokens.RefreshToken,
			"expires_in_sec": tokens.ExpiresInSec,
			"user": map[string]any{
				"id":    user.ID,
				"name":  user.Name,
				"email": user.Email,
			},
		})
	}
}

func loginError(err error) error {
	var backendErr *backend.Error
	if errors.As(err, &backendErr) {
		if backendErr.StatusCode < http.StatusInternalServerError {
			return apperrors.NewUnauthorizedError(backend.MessageOf(err), apperrors.ErrorCodeAuthLoginFailed)
		}
		return apperrors.NewBackendError(backend.MessageOf(err), false)
	}
	return apperrors.NewBackendError("Fleet backend is unavailable", true)
}

func refresh(cfg config.Config) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := api.DecodeJSON(r, &body); err != nil {
			return err
		}
		if body.RefreshToken == "" {
			return apperrors.NewValidationError("refresh_token is required", nil)
		}

		accessToken, expiresIn, err := RefreshAccessToken(cfg, body.RefreshToken)
		if err != nil {
			switch {
			case errors.Is(err, ErrTokenExpired):
				return apperrors.NewUnauthorizedError("Refresh token has expired", apperrors.ErrorCodeAuthTokenExpired)
			case errors.Is(err, ErrTokenType):
				return apperrors.NewUnauthorizedError("Invalid token: expected refresh token", apperrors.ErrorCodeAuthTokenInvalid)
			default:
				return apperrors.NewUnauthorizedError("Invalid refresh token", apperrors.ErrorCodeAuthTokenInvalid)
			}
		}

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":         "token_refresh",
			"access_token":   accessToken,
			"expires_in_sec": expiresIn,
		})
	}
}

func me(w http.ResponseWriter, r *http.Request) error {
	user, ok := UserFromContext(r.Context())
	if !ok {
		return apperrors.NewUnauthorizedError("Not authenticated")
	}
	return api.WriteResource(w, http.StatusOK, map[string]any{
		"object": "operator",
		"id":     user.Sub,
		"name":   user.Name,
		"email":  user.Email,
	})
}
