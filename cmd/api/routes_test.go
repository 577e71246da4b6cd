package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/debt-tracer/internal/accounts"
	"github.com/yourusername/debt-tracer/internal/auth"
	"github.com/yourusername/debt-tracer/internal/blocking"
	"github.com/yourusername/debt-tracer/internal/ledger"
	"github.com/yourusername/debt-tracer/internal/logging"
	"github.com/yourusername/debt-tracer/internal/observability"
	"github.com/yourusername/debt-tracer/internal/session"
)

const testOrigin = "http://localhost:5173"

var (
	aliceID = uuid.MustParse("6f1c1c6e-7c1a-4a57-9a57-6b0f2f0e4a11")
	bobID   = uuid.MustParse("0b7a3f43-2b59-4d0e-8d3e-0f5b6c1c2d22")
)

type memoryBackend struct {
	mu   sync.Mutex
	data map[string]map[string]any

	saves      int
	failSaveAt int
}

func (b *memoryBackend) Load(_ context.Context, id string) (map[string]any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	stored, ok := b.data[id]
	if !ok {
		return nil, nil
	}
	out := make(map[string]any, len(stored))
	for k, v := range stored {
		out[k] = v
	}
	return out, nil
}

func (b *memoryBackend) Save(_ context.Context, id string, values map[string]any, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves++
	if b.failSaveAt > 0 && b.saves == b.failSaveAt {
		return errors.New("redis: connection reset")
	}
	b.data[id] = values
	return nil
}

func (b *memoryBackend) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, id)
	return nil
}

// failNthSaveFromNow は今から n 回目の Save を失敗させます。
func (b *memoryBackend) failNthSaveFromNow(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failSaveAt = b.saves + n
}

func (b *memoryBackend) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

type accountTable struct {
	mu    sync.Mutex
	users map[string]*auth.StoredCredentials
}

func (a *accountTable) GetStoredCredentials(_ context.Context, username string) (*auth.StoredCredentials, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.users[username], nil
}

func (a *accountTable) Create(_ context.Context, acc accounts.Account) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.users[acc.Username]; ok {
		return accounts.ErrUsernameTaken
	}
	a.users[acc.Username] = &auth.StoredCredentials{
		UserID:       acc.UserID,
		Username:     acc.Username,
		PasswordHash: auth.NewSecret(acc.PasswordHash),
	}
	return nil
}

type debtTable struct {
	mu    sync.Mutex
	debts []ledger.Debt
}

func (d *debtTable) Create(_ context.Context, nd ledger.NewDebt) (uuid.UUID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := uuid.New()
	d.debts = append(d.debts, ledger.Debt{
		DebtID:     id,
		CreditorID: nd.CreditorID,
		DebtorID:   nd.DebtorID,
		Amount:     float64(nd.Amount),
		Currency:   string(nd.Currency),
		Status:     nd.Status,
	})
	return id, nil
}

func (d *debtTable) ListByUser(_ context.Context, userID uuid.UUID) ([]ledger.Debt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []ledger.Debt{}
	for _, debt := range d.debts {
		if debt.CreditorID == userID || debt.DebtorID == userID {
			out = append(out, debt)
		}
	}
	return out, nil
}

type testEnv struct {
	router   *gin.Engine
	backend  *memoryBackend
	accounts *accountTable
	debts    *debtTable
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hasher := auth.NewHasher(auth.HashParams{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	aliceHash, err := hasher.Hash(auth.NewSecret("alice-password"))
	require.NoError(t, err)
	bobHash, err := hasher.Hash(auth.NewSecret("bob-password"))
	require.NoError(t, err)
	dummy, err := auth.NewDummyHash(hasher)
	require.NoError(t, err)

	table := &accountTable{users: map[string]*auth.StoredCredentials{
		"alice": {UserID: aliceID, Username: "alice", PasswordHash: auth.NewSecret(aliceHash)},
		"bob":   {UserID: bobID, Username: "bob", PasswordHash: auth.NewSecret(bobHash)},
	}}

	pool := blocking.NewPool(2)
	t.Cleanup(pool.Close)

	registry := observability.NewRegistry()
	metrics := observability.NewMetrics(registry)

	verifier, err := auth.NewVerifier(table, hasher, pool, dummy, metrics)
	require.NoError(t, err)

	logger := logging.Discard()
	backend := &memoryBackend{data: map[string]map[string]any{}}
	debts := &debtTable{}

	s := &server{
		logger:       logger,
		sessionStore: session.NewStore(backend, time.Hour, []byte("0123456789abcdef0123456789abcdef")),
		authManager:  auth.NewManager(verifier, resolveSession, auth.WithLogger(logger), auth.WithRecorder(metrics)),
		signUp:       accounts.NewHandler(table, hasher, pool, logger),
		debts:        ledger.NewHandler(debts, logger),
		metrics:      observability.Handler(registry),
	}

	return &testEnv{
		router:   newRouter(s, testOrigin),
		backend:  backend,
		accounts: table,
		debts:    debts,
	}
}

func (e *testEnv) do(method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// sessionCookie はレスポンスが最後に発行したセッションクッキーを返します。
func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	var last *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.DefaultCookieName {
			last = c
		}
	}
	return last
}

func (e *testEnv) login(t *testing.T, username, password string) *http.Cookie {
	t.Helper()
	rec := e.do(http.MethodPost, "/login", `{"username":"`+username+`","password":"`+password+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	return cookie
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health_check", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestLoginThenMe(t *testing.T) {
	env := newTestEnv(t)

	cookie := env.login(t, "alice", "alice-password")
	assert.True(t, cookie.HttpOnly)
	assert.NotContains(t, cookie.Value, "alice")

	rec := env.do(http.MethodGet, "/users/me", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var got auth.Identity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, aliceID, got.UserID)
	assert.Equal(t, "alice", got.Username)
}

func TestProtectedRoutesWithoutCookie(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/users/me"},
		{http.MethodGet, "/debts"},
		{http.MethodPost, "/debt"},
		{http.MethodPost, "/logout"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := env.do(tc.method, tc.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestLoginWrongPasswordIssuesNoSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/login", `{"username":"alice","password":"nope"}`, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, sessionCookie(rec))
	assert.Equal(t, 0, env.backend.len())
}

func TestLoginRotatesSessionID(t *testing.T) {
	env := newTestEnv(t)

	first := env.login(t, "alice", "alice-password")

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"bob","password":"bob-password"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(first)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	second := sessionCookie(rec)
	require.NotNil(t, second)
	assert.NotEqual(t, first.Value, second.Value)
	assert.Equal(t, 1, env.backend.len())

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/users/me", "", first).Code)

	me := env.do(http.MethodGet, "/users/me", "", second)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"username":"bob"`)
}

func TestPartialLoginDoesNotMixIdentities(t *testing.T) {
	env := newTestEnv(t)
	bobCookie := env.login(t, "bob", "bob-password")

	// Renew と user_id の保存は成功し、username の保存だけ失敗する
	env.backend.failNthSaveFromNow(3)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"alice","password":"alice-password"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(bobCookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	renewed := sessionCookie(rec)
	require.NotNil(t, renewed)
	me := env.do(http.MethodGet, "/users/me", "", renewed)
	assert.Equal(t, http.StatusUnauthorized, me.Code, me.Body.String())

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/users/me", "", bobCookie).Code)
}

func TestLogoutInvalidatesSession(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "alice", "alice-password")

	rec := env.do(http.MethodPost, "/logout", "", cookie)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, env.backend.len())

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/users/me", "", cookie).Code)
}

func TestSignUpThenLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/signup", `{"username":"carol","password":"carol-password","email":"carol@example.com"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookie := env.login(t, "carol", "carol-password")
	me := env.do(http.MethodGet, "/users/me", "", cookie)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"username":"carol"`)

	dup := env.do(http.MethodPost, "/signup", `{"username":"carol","password":"x","email":"carol@example.com"}`, nil)
	assert.Equal(t, http.StatusConflict, dup.Code)
}

func TestDebtsForLoggedInUser(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t, "alice", "alice-password")

	body := `{"creditor_id":"` + aliceID.String() + `","debtor_id":"` + bobID.String() + `","amount":12.5,"currency":"jpy","description":"ランチ"}`
	rec := env.do(http.MethodPost, "/debt", body, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	list := env.do(http.MethodGet, "/debts", "", cookie)
	require.Equal(t, http.StatusOK, list.Code)

	var debts []ledger.Debt
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &debts))
	require.Len(t, debts, 1)
	assert.Equal(t, "JPY", debts[0].Currency)
	assert.Equal(t, bobID, debts[0].DebtorID)
}

func TestMetricsEndpointCountsLogins(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "alice", "alice-password")
	env.do(http.MethodGet, "/users/me", "", nil)

	rec := env.do(http.MethodGet, "/metrics", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `debt_tracer_login_attempts_total{outcome="success"} 1`)
	assert.Contains(t, rec.Body.String(), `debt_tracer_auth_rejections_total{reason="anonymous"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/login", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, testOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestSplitOrigins(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, splitOrigins(" http://a, ,http://b "))
	assert.Nil(t, splitOrigins(""))
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := newRootCmd()

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])
	assert.True(t, names["hash-password"])
}

func TestHashPasswordFromPipe(t *testing.T) {
	t.Setenv("HASH_MEMORY_KIB", "64")
	t.Setenv("HASH_ITERATIONS", "1")
	t.Chdir(t.TempDir())

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader("s3cret\n"))
	cmd.SetArgs([]string{"hash-password"})

	require.NoError(t, cmd.Execute())

	hash := strings.TrimSpace(out.String())
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=64,t=1,p=1$"), hash)
	ok, err := auth.NewHasher(auth.DefaultHashParams()).Verify(auth.NewSecret("s3cret"), hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := runMigrate(cmd, "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
