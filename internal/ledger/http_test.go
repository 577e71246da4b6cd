package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/debt-tracer/internal/auth"
	"github.com/yourusername/debt-tracer/internal/logging"
)

type fakeStore struct {
	created   []NewDebt
	createErr error
	debts     []Debt
	listErr   error
	listedFor uuid.UUID
}

func (f *fakeStore) Create(_ context.Context, d NewDebt) (uuid.UUID, error) {
	if f.createErr != nil {
		return uuid.Nil, f.createErr
	}
	f.created = append(f.created, d)
	return uuid.New(), nil
}

func (f *fakeStore) ListByUser(_ context.Context, userID uuid.UUID) ([]Debt, error) {
	f.listedFor = userID
	return f.debts, f.listErr
}

// newRouter は Identity を直接コンテキストに載せたルーターを返します。
func newRouter(store Store, id auth.Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(store, logging.Discard())
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.ContextWithIdentity(c.Request.Context(), id))
		c.Next()
	})
	r.POST("/debt", auth.WithIdentity(h.Create))
	r.GET("/debts", auth.WithIdentity(h.List))
	return r
}

func send(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func debtBody(creditor, debtor uuid.UUID, amount string, currency string) string {
	return `{"creditor_id":"` + creditor.String() + `","debtor_id":"` + debtor.String() +
		`","amount":` + amount + `,"currency":"` + currency + `","description":"dinner"}`
}

func TestCreateDebt(t *testing.T) {
	alice := auth.Identity{UserID: uuid.New(), Username: "alice"}
	bob := uuid.New()
	store := &fakeStore{}

	rec := send(newRouter(store, alice), http.MethodPost, "/debt", debtBody(alice.UserID, bob, "25.5", "usd"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	_, err := uuid.Parse(body["debt_id"])
	assert.NoError(t, err)

	require.Len(t, store.created, 1)
	assert.Equal(t, Currency("USD"), store.created[0].Currency)
	assert.Equal(t, StatusPending, store.created[0].Status)
}

func TestCreateDebtValidation(t *testing.T) {
	alice := auth.Identity{UserID: uuid.New(), Username: "alice"}
	bob := uuid.New()

	tests := map[string]struct {
		body string
		code int
	}{
		"negative amount":  {debtBody(alice.UserID, bob, "-1", "USD"), http.StatusBadRequest},
		"unknown currency": {debtBody(alice.UserID, bob, "1", "XYZ"), http.StatusBadRequest},
		"not a party":      {debtBody(uuid.New(), bob, "1", "USD"), http.StatusForbidden},
		"not json":         {`nope`, http.StatusBadRequest},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			store := &fakeStore{}
			rec := send(newRouter(store, alice), http.MethodPost, "/debt", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Empty(t, store.created)
		})
	}
}

func TestCreateDebtStoreErrors(t *testing.T) {
	alice := auth.Identity{UserID: uuid.New(), Username: "alice"}
	body := debtBody(alice.UserID, uuid.New(), "1", "USD")

	rec := send(newRouter(&fakeStore{createErr: ErrUnknownUser}, alice), http.MethodPost, "/debt", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNKNOWN_USER")

	rec = send(newRouter(&fakeStore{createErr: errors.New("db down")}, alice), http.MethodPost, "/debt", body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestListDebtsUsesSessionUser(t *testing.T) {
	alice := auth.Identity{UserID: uuid.New(), Username: "alice"}
	store := &fakeStore{debts: []Debt{{DebtID: uuid.New(), CreditorName: "alice", DebtorName: "bob", Currency: "EUR", Status: StatusPending}}}

	rec := send(newRouter(store, alice), http.MethodGet, "/debts", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, alice.UserID, store.listedFor)
	var got []Debt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0].DebtorName)
}

func TestListDebtsStoreError(t *testing.T) {
	alice := auth.Identity{UserID: uuid.New(), Username: "alice"}
	rec := send(newRouter(&fakeStore{listErr: errors.New("db down")}, alice), http.MethodGet, "/debts", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
