package payments

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bundlemart/internal/common/api"
)

func newTestRouter(store *memStore) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(newTestService(store, &fakeGateway{}), logger)
	r := chi.NewRouter()
	handler.Register(r)
	return r
}

func postPurchase(t *testing.T, r chi.Router, body string) (*httptest.ResponseRecorder, *api.Error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/purchases", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var resp api.Response[json.RawMessage]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec, resp.Error
}

func TestPurchaseHandlerNotFound(t *testing.T) {
	t.Run("unknown product", func(t *testing.T) {
		store := newMemStore()
		store.balances["user-1"] = 5000
		r := newTestRouter(store)

		rec, apiErr := postPurchase(t, r,
			`{"product_id":"nope","phone_number":"0241234567","method":"wallet","user_id":"user-1"}`)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		require.NotNil(t, apiErr)
		assert.Equal(t, "product not found", apiErr.Message)
	})

	t.Run("missing buyer wallet", func(t *testing.T) {
		store := newMemStore()
		r := newTestRouter(store)

		rec, apiErr := postPurchase(t, r,
			`{"product_id":"bundle-5gb","phone_number":"0241234567","method":"wallet","user_id":"no-wallet"}`)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		require.NotNil(t, apiErr)
		assert.Equal(t, "wallet not found", apiErr.Message)
	})

	t.Run("insufficient balance is not a 404", func(t *testing.T) {
		store := newMemStore()
		store.balances["user-1"] = 100
		r := newTestRouter(store)

		rec, apiErr := postPurchase(t, r,
			`{"product_id":"bundle-5gb","phone_number":"0241234567","method":"wallet","user_id":"user-1"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, apiErr)
		assert.Equal(t, api.ErrCodeInsufficientFunds, apiErr.Code)
	})
}
