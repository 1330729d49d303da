package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"go.uber.org/zap"

	"github.com/linesmerrill/chama-disputes-api/disputes"
)

// ScopeAdmin marks a platform administrator token
const ScopeAdmin = "admin"

const tokenCacheTTL = 5 * time.Minute

// Claims are the JWT claims issued by the accounts service
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies bearer JWTs with go-guardian and puts the caller on
// the request context
type Authenticator struct {
	secret        []byte
	authenticator auth.Authenticator
}

// NewAuthenticator sets up the go-guardian bearer strategy over HS256 tokens
// signed with secret. Verified tokens are cached briefly.
func NewAuthenticator(secret string) *Authenticator {
	a := &Authenticator{secret: []byte(secret)}
	cache := store.NewFIFO(context.Background(), tokenCacheTTL)
	tokenStrategy := bearer.New(a.verifyToken, cache)

	a.authenticator = auth.New()
	a.authenticator.EnableStrategy(bearer.CachedStrategyKey, tokenStrategy)
	return a
}

// Middleware rejects unauthenticated requests with 401
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// browsers cannot set headers on a websocket handshake
		if r.Header.Get("Authorization") == "" {
			if token := r.URL.Query().Get("access_token"); token != "" {
				r.Header.Set("Authorization", "Bearer "+token)
			}
		}

		user, err := a.authenticator.Authenticate(r)
		if err != nil {
			zap.S().Warnw("unauthorized",
				"url", r.URL.Path,
				"error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "unauthorized"}`))
			return
		}

		actor := disputes.Actor{UserID: user.ID()}
		for _, g := range user.Groups() {
			if g == ScopeAdmin {
				actor.PlatformAdmin = true
			}
		}
		zap.S().Debugw("user authenticated", "userId", actor.UserID, "platformAdmin", actor.PlatformAdmin)
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func (a *Authenticator) verifyToken(ctx context.Context, r *http.Request, tokenString string) (auth.Info, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("invalid token: missing subject")
	}

	var groups []string
	if claims.Scope == ScopeAdmin {
		groups = append(groups, ScopeAdmin)
	}
	return auth.NewDefaultUser(claims.Subject, claims.Subject, groups, nil), nil
}

// IssueToken signs a token for userID. It exists for operators and tests;
// production tokens come from the accounts service.
func IssueToken(secret, userID, scope string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
