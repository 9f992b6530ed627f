package recon

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bundlemart/internal/common/database"
	"bundlemart/internal/common/money"
	"bundlemart/internal/gateway"
	"bundlemart/internal/transaction"
)

type fakeStore struct {
	txns map[string]*transaction.Transaction

	completed []string
	purchased []string
	failed    []string
	failMeta  map[string]string

	completeOutcome transaction.Outcome
}

func newFakeStore(txns ...*transaction.Transaction) *fakeStore {
	s := &fakeStore{
		txns:            make(map[string]*transaction.Transaction),
		completeOutcome: transaction.OutcomeApplied,
	}
	for _, t := range txns {
		s.txns[t.Reference] = t
	}
	return s
}

func (s *fakeStore) GetTransaction(_ context.Context, reference string) (*transaction.Transaction, error) {
	txn, ok := s.txns[reference]
	if !ok {
		return nil, database.ErrNotFound
	}
	return txn, nil
}

func (s *fakeStore) CompleteDeposit(_ context.Context, txn *transaction.Transaction, _ map[string]string) (transaction.Outcome, error) {
	s.completed = append(s.completed, txn.Reference)
	return s.completeOutcome, nil
}

func (s *fakeStore) CompletePurchase(_ context.Context, txn *transaction.Transaction, _ map[string]string) (transaction.Outcome, error) {
	s.purchased = append(s.purchased, txn.Reference)
	return s.completeOutcome, nil
}

func (s *fakeStore) FailTransaction(_ context.Context, txn *transaction.Transaction, meta map[string]string) (transaction.Outcome, error) {
	s.failed = append(s.failed, txn.Reference)
	s.failMeta = meta
	return transaction.OutcomeApplied, nil
}

func (s *fakeStore) mutations() int {
	return len(s.completed) + len(s.purchased) + len(s.failed)
}

type fakeNotifier struct {
	completed []string
	failed    []string
}

func (n *fakeNotifier) PaymentCompleted(_ context.Context, _, reference string, _ int64) {
	n.completed = append(n.completed, reference)
}

func (n *fakeNotifier) PaymentFailed(_ context.Context, _, reference, _ string) {
	n.failed = append(n.failed, reference)
}

const testSecret = "sk_test_secret"

func testConfig() Config {
	return Config{
		WebhookSecret:       testSecret,
		ToleranceFloorMinor: 50,
		ToleranceBPS:        100,
	}
}

func newTestService(store *fakeStore, notifier *fakeNotifier) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(testConfig(), store, notifier, gateway.VerifySignature, logger)
}

func pendingDeposit(t *testing.T, reference string, amount, fee int64) *transaction.Transaction {
	t.Helper()
	txn, err := transaction.New("01TXN"+reference, "user-1", transaction.TypeDeposit, amount, money.GHS, reference)
	require.NoError(t, err)
	txn.FeeMinor = fee
	return txn
}

func chargeSuccess(t *testing.T, reference string, paid int64) []byte {
	t.Helper()
	body, err := json.Marshal(Event{
		Event: EventChargeSuccess,
		Data: EventData{
			ID:          123456,
			Reference:   reference,
			AmountMinor: paid,
			Currency:    "GHS",
			Metadata:    EventMetadata{PaymentType: PaymentTypeDeposit},
		},
	})
	require.NoError(t, err)
	return body
}

func TestProcessWebhook(t *testing.T) {
	t.Run("completes a deposit within tolerance", func(t *testing.T) {
		store := newFakeStore(pendingDeposit(t, "DEP01", 9900, 100))
		notifier := &fakeNotifier{}
		svc := newTestService(store, notifier)

		body := chargeSuccess(t, "DEP01", 9960)
		result, err := svc.ProcessWebhook(context.Background(), body, gateway.Sign(body, testSecret))
		require.NoError(t, err)

		assert.True(t, result.Handled)
		assert.False(t, result.Replay)
		assert.Equal(t, []string{"DEP01"}, store.completed)
		assert.Empty(t, store.failed)
		assert.Equal(t, []string{"DEP01"}, notifier.completed)
	})

	t.Run("rejects bad signature with zero mutations", func(t *testing.T) {
		store := newFakeStore(pendingDeposit(t, "DEP01", 9900, 100))
		svc := newTestService(store, &fakeNotifier{})

		body := chargeSuccess(t, "DEP01", 10000)
		_, err := svc.ProcessWebhook(context.Background(), body, gateway.Sign(body, "wrong-secret"))

		assert.ErrorIs(t, err, ErrSignature)
		assert.Zero(t, store.mutations())
	})

	t.Run("tampered body with original signature is rejected", func(t *testing.T) {
		store := newFakeStore(pendingDeposit(t, "DEP01", 9900, 100))
		svc := newTestService(store, &fakeNotifier{})

		body := chargeSuccess(t, "DEP01", 10000)
		sig := gateway.Sign(body, testSecret)
		tampered := []byte(strings.Replace(string(body), "10000", "99999", 1))

		_, err := svc.ProcessWebhook(context.Background(), tampered, sig)
		assert.ErrorIs(t, err, ErrSignature)
		assert.Zero(t, store.mutations())
	})

	t.Run("fraud gate fails underpaid transaction", func(t *testing.T) {
		// Expected 10000 with floor 50 and 1% relative: tolerance is 100.
		store := newFakeStore(pendingDeposit(t, "DEP01", 9900, 100))
		notifier := &fakeNotifier{}
		svc := newTestService(store, notifier)

		body := chargeSuccess(t, "DEP01", 9700)
		_, err := svc.ProcessWebhook(context.Background(), body, gateway.Sign(body, testSecret))

		assert.ErrorIs(t, err, ErrFraud)
		assert.Equal(t, []string{"DEP01"}, store.failed)
		assert.Empty(t, store.completed)
		assert.Equal(t, "amount_mismatch", store.failMeta[transaction.MetaFraudFlag])
		assert.Equal(t, []string{"DEP01"}, notifier.failed)
	})

	t.Run("replayed webhook is acknowledged without re-credit", func(t *testing.T) {
		store := newFakeStore(pendingDeposit(t, "DEP01", 9900, 100))
		store.completeOutcome = transaction.OutcomeAlreadyApplied
		notifier := &fakeNotifier{}
		svc := newTestService(store, notifier)

		body := chargeSuccess(t, "DEP01", 10000)
		result, err := svc.ProcessWebhook(context.Background(), body, gateway.Sign(body, testSecret))
		require.NoError(t, err)

		assert.True(t, result.Replay)
		assert.Empty(t, notifier.completed)
	})

	t.Run("unknown reference is a hard error", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store, &fakeNotifier{})

		body := chargeSuccess(t, "DEP404", 10000)
		_, err := svc.ProcessWebhook(context.Background(), body, gateway.Sign(body, testSecret))

		assert.True(t, database.IsNotFound(err))
		assert.Zero(t, store.mutations())
	})

	t.Run("purchase transactions route to the purchase path", func(t *testing.T) {
		txn, err := transaction.New("01TXNPUR", "store-1", transaction.TypePurchase, 2500, money.GHS, "PUR01")
		require.NoError(t, err)
		store := newFakeStore(txn)
		svc := newTestService(store, &fakeNotifier{})

		body := chargeSuccess(t, "PUR01", 2500)
		result, err := svc.ProcessWebhook(context.Background(), body, gateway.Sign(body, testSecret))
		require.NoError(t, err)

		assert.True(t, result.Handled)
		assert.Equal(t, []string{"PUR01"}, store.purchased)
		assert.Empty(t, store.completed)
	})

	t.Run("non-gateway transaction types are never credited", func(t *testing.T) {
		// A paid reference pointing at a withdrawal row means wiring is
		// broken somewhere; it must not be completed as a deposit.
		txn, err := transaction.New("01TXNWTH", "agent-1", transaction.TypeWithdrawal, 5000, money.GHS, "WTH01")
		require.NoError(t, err)
		store := newFakeStore(txn)
		notifier := &fakeNotifier{}
		svc := newTestService(store, notifier)

		body := chargeSuccess(t, "WTH01", 5000)
		_, err = svc.ProcessWebhook(context.Background(), body, gateway.Sign(body, testSecret))

		require.Error(t, err)
		assert.Zero(t, store.mutations())
		assert.Empty(t, notifier.completed)
	})

	t.Run("other events are acknowledged but not handled", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store, &fakeNotifier{})

		body := []byte(`{"event":"transfer.success","data":{}}`)
		result, err := svc.ProcessWebhook(context.Background(), body, gateway.Sign(body, testSecret))
		require.NoError(t, err)

		assert.False(t, result.Handled)
		assert.Zero(t, store.mutations())
	})
}

func TestTolerance(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeNotifier{})

	// Floor dominates small amounts; the relative bound dominates large ones.
	assert.Equal(t, int64(50), svc.Tolerance(1000))
	assert.Equal(t, int64(50), svc.Tolerance(5000))
	assert.Equal(t, int64(100), svc.Tolerance(10000))
	assert.Equal(t, int64(500), svc.Tolerance(50000))
}

func TestWebhookHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("unauthorized on tampering", func(t *testing.T) {
		store := newFakeStore(pendingDeposit(t, "DEP01", 9900, 100))
		svc := newTestService(store, &fakeNotifier{})
		handler := NewWebhookHandler(svc, logger)

		body := chargeSuccess(t, "DEP01", 10000)
		sig := gateway.Sign(body, testSecret)
		tampered := strings.Replace(string(body), "DEP01", "DEP02", 1)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", strings.NewReader(tampered))
		req.Header.Set(SignatureHeader, sig)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Zero(t, store.mutations())
	})

	t.Run("ok on success", func(t *testing.T) {
		store := newFakeStore(pendingDeposit(t, "DEP01", 9900, 100))
		svc := newTestService(store, &fakeNotifier{})
		handler := NewWebhookHandler(svc, logger)

		body := chargeSuccess(t, "DEP01", 10000)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", strings.NewReader(string(body)))
		req.Header.Set(SignatureHeader, gateway.Sign(body, testSecret))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"DEP01"}, store.completed)
	})
}
