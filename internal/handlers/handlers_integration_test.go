package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"potatoauth/internal/handlers"
	"potatoauth/internal/repositories"
	"potatoauth/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingNotifier remembers the last token emailed per template.
type recordingNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
	fail   bool
}

func (n *recordingNotifier) Send(_ context.Context, template, _ string, vars map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("smtp down")
	}
	n.tokens[template] = vars["token"].(string)
	return nil
}

func (n *recordingNotifier) token(template string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tokens[template]
}

// setupApp sets up a Fiber app for testing with a private in-memory SQLite database.
func setupApp(t *testing.T) (*fiber.App, *recordingNotifier) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := repositories.OpenDatabase("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	notifier := &recordingNotifier{tokens: make(map[string]string)}
	issuer := services.NewTokenIssuer("test_jwt_secret", 20*time.Minute, 365*24*time.Hour)
	authService, err := services.NewAuthService(
		repositories.NewGORMUserRepository(db),
		repositories.NewGORMTokenRepository(db),
		issuer,
		notifier,
		services.Config{ResetTokenTTL: 10 * time.Minute, BaseURL: "http://localhost:8080"},
	)
	require.NoError(t, err)

	return handlers.NewApp(handlers.NewAuthHandler(authService), ""), notifier
}

// TestMain runs setup and teardown for all tests
func TestMain(m *testing.M) {
	// Suppress logging during tests for cleaner output
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}, bearer string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(jsonBody)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return do(t, app, req)
}

func doForm(t *testing.T, app *fiber.App, path string, form url.Values) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(t, app, req)
}

func do(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(req, -1) // -1 for no timeout
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

var potato = map[string]string{
	"username": "Potato",
	"email":    "potato@test.com",
	"password": "s3cur3",
}

func registerAndLogin(t *testing.T, app *fiber.App, notifier *recordingNotifier) services.TokenPair {
	t.Helper()
	resp, _ := doJSON(t, app, http.MethodPost, "/user/register", potato, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = doJSON(t, app, http.MethodGet, "/user/verify/"+notifier.token(services.TemplateRegister), nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodPost, "/user/login", map[string]string{"username": "Potato", "password": "s3cur3"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pair services.TokenPair
	require.NoError(t, json.Unmarshal(body, &pair))
	return pair
}

func TestRegisterVerifyLogin(t *testing.T) {
	app, notifier := setupApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/user/register", potato, "")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var user map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &user))
	assert.NotEmpty(t, user["id"])
	assert.Equal(t, "Potato", user["username"])
	assert.Equal(t, false, user["verified"])
	assert.NotContains(t, user, "password")
	assert.NotContains(t, user, "password_hash")
	assert.NotContains(t, string(body), "PasswordIdentifier")

	// Unverified users cannot log in
	resp, body = doJSON(t, app, http.MethodPost, "/user/login", potato, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, services.StatusUserNotVerified, string(body))

	resp, body = doJSON(t, app, http.MethodGet, "/user/verify/wrong1", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, services.StatusTokenNotFound, string(body))

	token := notifier.token(services.TemplateRegister)
	resp, body = doJSON(t, app, http.MethodGet, "/user/verify/"+token, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, services.StatusAccountVerified, string(body))

	resp, body = doJSON(t, app, http.MethodGet, "/user/verify/"+token, nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, services.StatusTokenNotFound, string(body))

	resp, body = doJSON(t, app, http.MethodPost, "/user/login", potato, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var pair map[string]string
	require.NoError(t, json.Unmarshal(body, &pair))
	assert.NotEmpty(t, pair["token"])
	assert.NotEmpty(t, pair["refresh_token"])
}

func TestRegisterValidation(t *testing.T) {
	app, _ := setupApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/user/register", map[string]string{
		"username": "Po",
		"email":    "potato-at-test.com",
	}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var codes map[string]int
	require.NoError(t, json.Unmarshal(body, &codes))
	assert.Equal(t, map[string]int{"username": 1, "email": 3, "password": 1}, codes)

	resp, _ = doJSON(t, app, http.MethodPost, "/user/register", potato, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Test duplicate registration
	resp, body = doJSON(t, app, http.MethodPost, "/user/register", potato, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &codes))
	assert.Equal(t, 4, codes["username"])
	assert.Equal(t, 4, codes["email"])
}

func TestRegisterEmailFailure(t *testing.T) {
	app, notifier := setupApp(t)
	notifier.fail = true

	resp, body := doJSON(t, app, http.MethodPost, "/user/register", potato, "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, services.StatusInternalServerError, string(body))

	// The user was removed, so registering again succeeds
	notifier.fail = false
	resp, _ = doJSON(t, app, http.MethodPost, "/user/register", potato, "")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestLoginInvalidCredentials(t *testing.T) {
	app, notifier := setupApp(t)
	registerAndLogin(t, app, notifier)

	resp, wrongPassword := doJSON(t, app, http.MethodPost, "/user/login", map[string]string{"email": "potato@test.com", "password": "wrong-password"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, unknownUser := doJSON(t, app, http.MethodPost, "/user/login", map[string]string{"email": "nobody@test.com", "password": "s3cur3"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, services.StatusInvalidCredentials, string(wrongPassword))
	assert.Equal(t, wrongPassword, unknownUser)
}

func TestProfileRefreshLogout(t *testing.T) {
	app, notifier := setupApp(t)
	pair := registerAndLogin(t, app, notifier)

	resp, body := doJSON(t, app, http.MethodGet, "/user/profile", nil, pair.Token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var user map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &user))
	assert.Equal(t, "Potato", user["username"])
	assert.Equal(t, true, user["verified"])

	// Refresh tokens are not accepted where an access token is required, and vice versa
	resp, _ = doJSON(t, app, http.MethodGet, "/user/profile", nil, pair.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = doJSON(t, app, http.MethodGet, "/user/refresh", nil, pair.Token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = doJSON(t, app, http.MethodGet, "/user/profile", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodGet, "/user/refresh", nil, pair.RefreshToken)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var refreshed map[string]string
	require.NoError(t, json.Unmarshal(body, &refreshed))
	assert.NotEmpty(t, refreshed["token"])

	// A second session survives logging out of the first
	resp, body = doJSON(t, app, http.MethodPost, "/user/login", potato, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var second services.TokenPair
	require.NoError(t, json.Unmarshal(body, &second))

	resp, body = doJSON(t, app, http.MethodGet, "/user/logout", nil, pair.RefreshToken)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, services.StatusLoggedOut, string(body))

	resp, body = doJSON(t, app, http.MethodGet, "/user/refresh", nil, pair.RefreshToken)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, services.StatusInvalidSession, string(body))

	resp, _ = doJSON(t, app, http.MethodGet, "/user/refresh", nil, second.RefreshToken)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestResend(t *testing.T) {
	app, notifier := setupApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/user/register", potato, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token := notifier.token(services.TemplateRegister)

	resp, body := doJSON(t, app, http.MethodPost, "/user/resend", map[string]string{"email": "potato@test.com"}, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, services.StatusEmailSent, string(body))
	assert.Equal(t, token, notifier.token(services.TemplateRegister))

	resp, body = doJSON(t, app, http.MethodPost, "/user/resend", map[string]string{"email": "nobody@test.com"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, services.StatusUserNotFound, string(body))

	notifier.fail = true
	resp, body = doJSON(t, app, http.MethodPost, "/user/resend", map[string]string{"email": "potato@test.com"}, "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, services.StatusInternalServerError, string(body))
	notifier.fail = false

	resp, _ = doJSON(t, app, http.MethodGet, "/user/verify/"+token, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = doJSON(t, app, http.MethodPost, "/user/resend", map[string]string{"email": "potato@test.com"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, services.StatusAccountAlreadyVerified, string(body))
}

func TestPasswordReset(t *testing.T) {
	app, notifier := setupApp(t)
	pair := registerAndLogin(t, app, notifier)

	resp, body := doJSON(t, app, http.MethodPost, "/user/send-password-reset", map[string]string{"email": "potato@test.com"}, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, services.StatusEmailSent, string(body))
	token := notifier.token(services.TemplatePasswordReset)
	require.Len(t, token, 12)

	resp, body = doJSON(t, app, http.MethodGet, "/user/reset-password/"+token, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `value="`+token+`"`)
	assert.Contains(t, string(body), `action="/user/reset-password"`)

	resp, body = doForm(t, app, "/user/reset-password", url.Values{
		"token":          {token},
		"password":       {"n3wpass"},
		"password_again": {"different"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "Password fields do not match")

	resp, body = doForm(t, app, "/user/reset-password", url.Values{
		"token":          {token},
		"password":       {"abc"},
		"password_again": {"abc"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"password":1}`, string(body))

	resp, body = doForm(t, app, "/user/reset-password", url.Values{
		"token":          {token},
		"password":       {"n3wpass"},
		"password_again": {"n3wpass"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, services.StatusPasswordChanged, string(body))

	// Refresh tokens issued before the change are rejected
	resp, body = doJSON(t, app, http.MethodGet, "/user/refresh", nil, pair.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, services.StatusInvalidToken, string(body))

	resp, body = doForm(t, app, "/user/reset-password", url.Values{
		"token":          {token},
		"password":       {"n3wpass"},
		"password_again": {"n3wpass"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, services.StatusTokenNotFound, string(body))

	resp, _ = doJSON(t, app, http.MethodPost, "/user/login", map[string]string{"username": "Potato", "password": "n3wpass"}, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSendPasswordResetErrors(t *testing.T) {
	app, notifier := setupApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/user/send-password-reset", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"username":1,"email":0}`, string(body))

	resp, body = doJSON(t, app, http.MethodPost, "/user/send-password-reset", map[string]string{"username": "Potato"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, services.StatusUserNotFound, string(body))

	resp, _ = doJSON(t, app, http.MethodPost, "/user/register", potato, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodPost, "/user/send-password-reset", map[string]string{"username": "Potato"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, services.StatusUserNotVerified, string(body))
	assert.Empty(t, notifier.token(services.TemplatePasswordReset))
}

func TestHealthAndPrefix(t *testing.T) {
	app, _ := setupApp(t)
	resp, body := doJSON(t, app, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "200 OK", string(body))

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := repositories.OpenDatabase("sqlite", dsn)
	require.NoError(t, err)
	authService, err := services.NewAuthService(
		repositories.NewGORMUserRepository(db),
		repositories.NewGORMTokenRepository(db),
		services.NewTokenIssuer("test_jwt_secret", time.Minute, time.Hour),
		&recordingNotifier{tokens: make(map[string]string)},
		services.Config{},
	)
	require.NoError(t, err)
	prefixed := handlers.NewApp(handlers.NewAuthHandler(authService), "/api")

	resp, body = doJSON(t, prefixed, http.MethodGet, "/api/user/reset-password/abc", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `action="/api/user/reset-password"`)

	resp, _ = doJSON(t, prefixed, http.MethodGet, "/user/verify/abc", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
