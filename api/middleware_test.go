package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/chama-disputes-api/api"
	"github.com/linesmerrill/chama-disputes-api/disputes"
)

const testSecret = "test-secret"

func captureActor(got *disputes.Actor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := api.ActorFromContext(r.Context())
		if ok {
			*got = actor
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestMiddlewareAuthenticatesMember(t *testing.T) {
	token, err := api.IssueToken(testSecret, "member-1", "", time.Hour)
	require.NoError(t, err)

	var got disputes.Actor
	handler := api.NewAuthenticator(testSecret).Middleware(captureActor(&got))

	req := httptest.NewRequest("GET", "/api/v1/disputes/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, disputes.Actor{UserID: "member-1"}, got)
}

func TestMiddlewareAdminScopeFromQuery(t *testing.T) {
	token, err := api.IssueToken(testSecret, "ops-1", api.ScopeAdmin, time.Hour)
	require.NoError(t, err)

	var got disputes.Actor
	handler := api.NewAuthenticator(testSecret).Middleware(captureActor(&got))

	req := httptest.NewRequest("GET", "/ws/notifications?access_token="+token, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, disputes.Actor{UserID: "ops-1", PlatformAdmin: true}, got)
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	wrongKey, err := api.IssueToken("another-secret", "member-1", "", time.Hour)
	require.NoError(t, err)
	expired, err := api.IssueToken(testSecret, "member-1", "", -time.Minute)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, api.Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	handler := api.NewAuthenticator(testSecret).Middleware(captureActor(&disputes.Actor{}))

	for name, header := range map[string]string{
		"missing":    "",
		"garbage":    "Bearer not-a-jwt",
		"wrong key":  "Bearer " + wrongKey,
		"expired":    "Bearer " + expired,
		"no subject": "Bearer " + noSubject,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/disputes/x", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.JSONEq(t, `{"error": "unauthorized"}`, rr.Body.String())
		})
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	rr := httptest.NewRecorder()
	api.TimeoutMiddleware(10*time.Millisecond)(slow).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	fast := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	rr = httptest.NewRecorder()
	api.TimeoutMiddleware(time.Second)(fast).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusCreated, rr.Code)
}
